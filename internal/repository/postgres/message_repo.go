package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/ontomatch/internal/domain"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

// Append lets the database clock stamp the row; clock_timestamp() rather than
// now() so messages inside one transaction still get distinct times.
func (r *MessageRepo) Append(ctx context.Context, msg *domain.Message) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generating message id: %w", err)
	}

	query := `
		INSERT INTO messages (id, session_id, sender_id, content, kind, server_ts, is_read)
		VALUES ($1, $2, $3, $4, $5, clock_timestamp(), false)
		RETURNING server_ts`
	if err := r.pool.QueryRow(ctx, query,
		id, msg.SessionID, msg.SenderID, msg.Content, string(msg.Kind),
	).Scan(&msg.ServerTimestamp); err != nil {
		return translateError(err)
	}

	msg.ID = id
	msg.IsRead = false
	return nil
}

func (r *MessageRepo) ListSince(ctx context.Context, sessionID uuid.UUID, after *domain.Cursor, limit int) ([]domain.Message, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if after != nil {
		rows, err = r.pool.Query(ctx, `
			SELECT id, session_id, sender_id, content, kind, server_ts, is_read
			FROM messages
			WHERE session_id = $1 AND (server_ts, id) > ($2, $3)
			ORDER BY server_ts, id
			LIMIT $4`, sessionID, after.Timestamp, after.ID, limit)
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT id, session_id, sender_id, content, kind, server_ts, is_read
			FROM messages
			WHERE session_id = $1
			ORDER BY server_ts, id
			LIMIT $2`, sessionID, limit)
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
		)
		if err := rows.Scan(
			&msg.ID, &msg.SessionID, &msg.SenderID, &msg.Content, &kind, &msg.ServerTimestamp, &msg.IsRead,
		); err != nil {
			return nil, err
		}
		msg.Kind = domain.MessageKind(kind)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *MessageRepo) MarkRead(ctx context.Context, sessionID, readerID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE messages SET is_read = true
		WHERE session_id = $1 AND sender_id <> $2 AND NOT is_read`,
		sessionID, readerID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
