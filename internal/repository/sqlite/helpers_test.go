package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/ontomatch/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// fixedClock pins the store clock so timestamps collide and the id
// tie-break is exercised.
func fixedClock(s *Store, at time.Time) {
	s.now = func() time.Time { return at }
}

func mutualSession(t *testing.T, s *Store) (*domain.ChatSession, uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	_, _, err := s.Matches().RegisterInterest(ctx, a, b)
	require.NoError(t, err)
	m, flipped, err := s.Matches().RegisterInterest(ctx, b, a)
	require.NoError(t, err)
	require.True(t, flipped)

	session := &domain.ChatSession{ID: uuid.New(), MatchID: m.ID}
	require.NoError(t, s.Chats().CreateSession(ctx, session))

	got, err := s.Chats().GetSessionByID(ctx, session.ID)
	require.NoError(t, err)
	return got, a, b
}
