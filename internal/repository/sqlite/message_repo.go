package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/vedran77/ontomatch/internal/domain"
)

type MessageRepo struct {
	store *Store
}

func (r *MessageRepo) Append(ctx context.Context, msg *domain.Message) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generating message id: %w", err)
	}
	ts := r.store.timestamp()

	if _, err := r.store.db.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, sender_id, content, kind, server_ts, is_read)
		VALUES (?, ?, ?, ?, ?, ?, 0)`,
		id, msg.SessionID, msg.SenderID, msg.Content, string(msg.Kind), ts,
	); err != nil {
		return translateError(err)
	}

	msg.ID = id
	msg.ServerTimestamp = fromNanos(ts)
	msg.IsRead = false
	return nil
}

func (r *MessageRepo) ListSince(ctx context.Context, sessionID uuid.UUID, after *domain.Cursor, limit int) ([]domain.Message, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if after != nil {
		rows, err = r.store.db.QueryContext(ctx, `
			SELECT id, session_id, sender_id, content, kind, server_ts, is_read
			FROM messages
			WHERE session_id = ? AND (server_ts, id) > (?, ?)
			ORDER BY server_ts, id
			LIMIT ?`, sessionID, after.Timestamp.UnixNano(), after.ID, limit)
	} else {
		rows, err = r.store.db.QueryContext(ctx, `
			SELECT id, session_id, sender_id, content, kind, server_ts, is_read
			FROM messages
			WHERE session_id = ?
			ORDER BY server_ts, id
			LIMIT ?`, sessionID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var (
			msg  domain.Message
			kind string
			ts   int64
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.SenderID, &msg.Content, &kind, &ts, &msg.IsRead); err != nil {
			return nil, err
		}
		msg.Kind = domain.MessageKind(kind)
		msg.ServerTimestamp = fromNanos(ts)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *MessageRepo) MarkRead(ctx context.Context, sessionID, readerID uuid.UUID) (int64, error) {
	res, err := r.store.db.ExecContext(ctx, `
		UPDATE messages SET is_read = 1
		WHERE session_id = ? AND sender_id <> ? AND is_read = 0`,
		sessionID, readerID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
