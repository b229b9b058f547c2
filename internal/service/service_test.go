package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/ontomatch/internal/candidate"
	"github.com/vedran77/ontomatch/internal/domain"
	"github.com/vedran77/ontomatch/internal/repository/sqlite"
)

type testEnv struct {
	store    *sqlite.Store
	matches  *MatchService
	chats    *ChatService
	messages *MessageService
}

func newTestEnv(t *testing.T, pool ...uuid.UUID) *testEnv {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	chats := NewChatService(store.Matches(), store.Chats())
	return &testEnv{
		store:    store,
		matches:  NewMatchService(store.Matches(), candidate.NewStatic(pool), 3),
		chats:    chats,
		messages: NewMessageService(store.Messages(), chats, 4000),
	}
}

// mutualMatch makes a and b like each other and returns the match id.
func (e *testEnv) mutualMatch(t *testing.T) (matchID, a, b uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	a, b = uuid.New(), uuid.New()

	_, err := e.matches.RegisterInterest(ctx, a, b)
	require.NoError(t, err)
	res, err := e.matches.RegisterInterest(ctx, b, a)
	require.NoError(t, err)
	require.True(t, res.IsMatch)
	return *res.MatchID, a, b
}

func (e *testEnv) session(t *testing.T) (*domain.ChatSession, uuid.UUID, uuid.UUID) {
	t.Helper()
	matchID, a, b := e.mutualMatch(t)
	s, err := e.chats.GetOrCreateSession(context.Background(), a, matchID)
	require.NoError(t, err)
	return s, a, b
}
