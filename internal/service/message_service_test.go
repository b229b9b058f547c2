package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/ontomatch/internal/domain"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []uuid.UUID
	err  error
}

func (n *recordingNotifier) Publish(_ context.Context, matchID uuid.UUID, msg *domain.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg.ID)
	return n.err
}

func TestSend_PersistsThenNotifies(t *testing.T) {
	env := newTestEnv(t)
	session, a, _ := env.session(t)
	notifier := &recordingNotifier{}
	env.messages.SetNotifier(notifier)

	msg, err := env.messages.Send(context.Background(), a, session.ID, "hello", "")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, msg.ID)
	assert.Equal(t, domain.MessageKindText, msg.Kind)
	assert.Equal(t, []uuid.UUID{msg.ID}, notifier.sent)
}

func TestSend_NotifierFailureDoesNotFailSend(t *testing.T) {
	env := newTestEnv(t)
	session, a, b := env.session(t)
	env.messages.SetNotifier(&recordingNotifier{err: errors.New("transport down")})

	msg, err := env.messages.Send(context.Background(), a, session.ID, "still stored", "text")
	require.NoError(t, err)

	page, err := env.messages.List(context.Background(), b, session.ID, nil, 0)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, msg.ID, page.Messages[0].ID)
}

func TestSend_Validation(t *testing.T) {
	env := newTestEnv(t)
	session, a, _ := env.session(t)
	ctx := context.Background()

	_, err := env.messages.Send(ctx, a, session.ID, "   ", "text")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = env.messages.Send(ctx, a, session.ID, strings.Repeat("x", 4001), "text")
	assert.ErrorIs(t, err, ErrMessageTooLong)

	_, err = env.messages.Send(ctx, a, session.ID, "hi", "video")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = env.messages.Send(ctx, uuid.New(), session.ID, "hi", "text")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestList_Pagination(t *testing.T) {
	env := newTestEnv(t)
	session, a, b := env.session(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := env.messages.Send(ctx, a, session.ID, "m", "text")
		require.NoError(t, err)
	}

	var (
		all    []domain.Message
		cursor *domain.Cursor
	)
	for {
		page, err := env.messages.List(ctx, b, session.ID, cursor, 2)
		require.NoError(t, err)
		all = append(all, page.Messages...)
		if page.NextCursor == nil {
			break
		}
		cursor = page.NextCursor
	}

	require.Len(t, all, 5)
	seen := map[uuid.UUID]bool{}
	for i, m := range all {
		assert.False(t, seen[m.ID])
		seen[m.ID] = true
		if i > 0 {
			assert.Equal(t, -1, all[i-1].Cursor().Compare(m.Cursor()))
		}
	}
}

func TestMarkRead_IdempotentAndScoped(t *testing.T) {
	env := newTestEnv(t)
	session, a, b := env.session(t)
	ctx := context.Background()

	_, err := env.messages.Send(ctx, b, session.ID, "hey", "text")
	require.NoError(t, err)

	n, err := env.messages.MarkRead(ctx, a, session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = env.messages.MarkRead(ctx, a, session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = env.messages.MarkRead(ctx, uuid.New(), session.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}
