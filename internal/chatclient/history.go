package chatclient

import (
	"context"
	"iter"

	"github.com/google/uuid"
	"github.com/vedran77/ontomatch/internal/domain"
)

// Backend is the durable side of a chat. *service.MessageService satisfies
// it directly; remote clients implement it over HTTP.
type Backend interface {
	List(ctx context.Context, userID, sessionID uuid.UUID, after *domain.Cursor, limit int) (*domain.MessagePage, error)
	Send(ctx context.Context, userID, sessionID uuid.UUID, content, kind string) (*domain.Message, error)
	MarkRead(ctx context.Context, userID, sessionID uuid.UUID) (int64, error)
}

// History lazily walks a session's messages after the cursor, one page at a
// time. Iteration stops at the first error, which is yielded. Ranging over
// the sequence again restarts from the same cursor.
func History(ctx context.Context, b Backend, userID, sessionID uuid.UUID, after *domain.Cursor, pageSize int) iter.Seq2[domain.Message, error] {
	return func(yield func(domain.Message, error) bool) {
		cursor := after
		for {
			page, err := b.List(ctx, userID, sessionID, cursor, pageSize)
			if err != nil {
				yield(domain.Message{}, err)
				return
			}
			for _, m := range page.Messages {
				if !yield(m, nil) {
					return
				}
			}
			if page.NextCursor == nil {
				return
			}
			cursor = page.NextCursor
		}
	}
}
