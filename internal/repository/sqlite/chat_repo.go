package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/vedran77/ontomatch/internal/domain"
)

type ChatRepo struct {
	store *Store
}

// CreateSession stamps CreatedAt with the store clock.
func (r *ChatRepo) CreateSession(ctx context.Context, session *domain.ChatSession) error {
	ts := r.store.timestamp()
	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, match_id, created_at) VALUES (?, ?, ?)`,
		session.ID, session.MatchID, ts,
	)
	if err != nil {
		return translateError(err)
	}
	session.CreatedAt = fromNanos(ts)
	return nil
}

func (r *ChatRepo) GetSessionByMatch(ctx context.Context, matchID uuid.UUID) (*domain.ChatSession, error) {
	return r.getSession(ctx, `
		SELECT s.id, s.match_id, s.created_at, m.user_a_id, m.user_b_id
		FROM chat_sessions s
		JOIN matches m ON m.id = s.match_id
		WHERE s.match_id = ?`, matchID)
}

func (r *ChatRepo) GetSessionByID(ctx context.Context, id uuid.UUID) (*domain.ChatSession, error) {
	return r.getSession(ctx, `
		SELECT s.id, s.match_id, s.created_at, m.user_a_id, m.user_b_id
		FROM chat_sessions s
		JOIN matches m ON m.id = s.match_id
		WHERE s.id = ?`, id)
}

func (r *ChatRepo) getSession(ctx context.Context, query string, arg uuid.UUID) (*domain.ChatSession, error) {
	var (
		s  domain.ChatSession
		ts int64
	)
	err := r.store.db.QueryRowContext(ctx, query, arg).Scan(&s.ID, &s.MatchID, &ts, &s.UserAID, &s.UserBID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.CreatedAt = fromNanos(ts)
	return &s, nil
}

func (r *ChatRepo) ListSessions(ctx context.Context, userID uuid.UUID) ([]domain.SessionSummary, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT s.id, s.match_id, s.created_at, m.user_a_id, m.user_b_id,
			lm.id, lm.sender_id, lm.content, lm.kind, lm.server_ts, lm.is_read,
			(SELECT count(*) FROM messages u
				WHERE u.session_id = s.id AND u.sender_id <> ? AND u.is_read = 0)
		FROM chat_sessions s
		JOIN matches m ON m.id = s.match_id
		LEFT JOIN messages lm ON lm.id = (
			SELECT id FROM messages
			WHERE session_id = s.id
			ORDER BY server_ts DESC, id DESC
			LIMIT 1
		)
		WHERE m.user_a_id = ? OR m.user_b_id = ?
		ORDER BY COALESCE(lm.server_ts, s.created_at) DESC`,
		userID, userID, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []domain.SessionSummary
	for rows.Next() {
		var (
			sum       domain.SessionSummary
			createdAt int64
			lastID    uuid.NullUUID
			sender    uuid.NullUUID
			content   sql.NullString
			kind      sql.NullString
			serverTS  sql.NullInt64
			isRead    sql.NullBool
		)
		if err := rows.Scan(
			&sum.ID, &sum.MatchID, &createdAt, &sum.UserAID, &sum.UserBID,
			&lastID, &sender, &content, &kind, &serverTS, &isRead,
			&sum.UnreadCount,
		); err != nil {
			return nil, err
		}

		sum.CreatedAt = fromNanos(createdAt)
		sum.LastActivity = sum.CreatedAt
		sum.OtherUserID = sum.UserAID
		if sum.UserAID == userID {
			sum.OtherUserID = sum.UserBID
		}
		if lastID.Valid {
			sum.LastMessage = &domain.Message{
				ID:              lastID.UUID,
				SessionID:       sum.ID,
				SenderID:        sender.UUID,
				Content:         content.String,
				Kind:            domain.MessageKind(kind.String),
				ServerTimestamp: fromNanos(serverTS.Int64),
				IsRead:          isRead.Bool,
			}
			sum.LastActivity = sum.LastMessage.ServerTimestamp
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}
