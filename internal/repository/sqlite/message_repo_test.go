package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/ontomatch/internal/domain"
)

func TestAppend_AssignsIDAndTimestamp(t *testing.T) {
	s := openTestStore(t)
	session, a, _ := mutualSession(t, s)

	clientTime := time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)
	msg := &domain.Message{
		ID:              uuid.New(),
		SessionID:       session.ID,
		SenderID:        a,
		Content:         "hello",
		Kind:            domain.MessageKindText,
		ServerTimestamp: clientTime,
		IsRead:          true,
	}
	callerID := msg.ID

	require.NoError(t, s.Messages().Append(context.Background(), msg))
	assert.NotEqual(t, callerID, msg.ID, "id comes from the store")
	assert.True(t, msg.ServerTimestamp.After(clientTime), "timestamp comes from the store")
	assert.False(t, msg.IsRead)
}

func TestListSince_OrderedAndResumable(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	session, a, b := mutualSession(t, s)

	var appended []domain.Message
	for i, sender := range []uuid.UUID{a, b, a, b, a} {
		msg := &domain.Message{SessionID: session.ID, SenderID: sender, Content: string(rune('a' + i)), Kind: domain.MessageKindText}
		require.NoError(t, s.Messages().Append(ctx, msg))
		appended = append(appended, *msg)
	}

	all, err := s.Messages().ListSince(ctx, session.ID, nil, 100)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.Equal(t, -1, all[i-1].Cursor().Compare(all[i].Cursor()), "strictly ordered")
	}

	first, err := s.Messages().ListSince(ctx, session.ID, nil, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)

	cursor := first[1].Cursor()
	rest, err := s.Messages().ListSince(ctx, session.ID, &cursor, 100)
	require.NoError(t, err)
	require.Len(t, rest, 3)
	assert.Equal(t, appended[2].ID, rest[0].ID)
}

func TestListSince_TieBreakByID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	session, a, _ := mutualSession(t, s)

	at := time.Now()
	fixedClock(s, at)
	for i := 0; i < 4; i++ {
		require.NoError(t, s.Messages().Append(ctx, &domain.Message{
			SessionID: session.ID, SenderID: a, Content: "x", Kind: domain.MessageKindText,
		}))
	}

	// A cursor at the shared instant with the zero id sees everything at or
	// after that instant.
	cursor := domain.Cursor{Timestamp: at.Add(-time.Nanosecond), ID: uuid.Nil}
	msgs, err := s.Messages().ListSince(ctx, session.ID, &cursor, 100)
	require.NoError(t, err)
	require.Len(t, msgs, 4)

	seen := map[uuid.UUID]bool{}
	for i, m := range msgs {
		assert.False(t, seen[m.ID], "duplicate id")
		seen[m.ID] = true
		if i > 0 {
			assert.Equal(t, -1, msgs[i-1].Cursor().Compare(m.Cursor()))
		}
	}
}

func TestMarkRead_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	session, a, b := mutualSession(t, s)

	for _, sender := range []uuid.UUID{a, b, b} {
		require.NoError(t, s.Messages().Append(ctx, &domain.Message{
			SessionID: session.ID, SenderID: sender, Content: "x", Kind: domain.MessageKindText,
		}))
	}

	n, err := s.Messages().MarkRead(ctx, session.ID, a)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.Messages().MarkRead(ctx, session.ID, a)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	msgs, err := s.Messages().ListSince(ctx, session.ID, nil, 100)
	require.NoError(t, err)
	for _, m := range msgs {
		assert.Equal(t, m.SenderID == b, m.IsRead, "only the peer's messages are read")
	}
}

func TestAppend_UnknownSession(t *testing.T) {
	s := openTestStore(t)

	err := s.Messages().Append(context.Background(), &domain.Message{
		SessionID: uuid.New(), SenderID: uuid.New(), Content: "x", Kind: domain.MessageKindText,
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
