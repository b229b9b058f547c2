package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/ontomatch/internal/domain"
)

type ChatRepo struct {
	pool *pgxpool.Pool
}

func NewChatRepo(pool *pgxpool.Pool) *ChatRepo {
	return &ChatRepo{pool: pool}
}

func (r *ChatRepo) CreateSession(ctx context.Context, session *domain.ChatSession) error {
	query := `
		INSERT INTO chat_sessions (id, match_id, created_at)
		VALUES ($1, $2, $3)`
	_, err := r.pool.Exec(ctx, query, session.ID, session.MatchID, session.CreatedAt)
	return translateError(err)
}

func (r *ChatRepo) GetSessionByMatch(ctx context.Context, matchID uuid.UUID) (*domain.ChatSession, error) {
	return r.getSession(ctx, `
		SELECT s.id, s.match_id, s.created_at, m.user_a_id, m.user_b_id
		FROM chat_sessions s
		JOIN matches m ON m.id = s.match_id
		WHERE s.match_id = $1`, matchID)
}

func (r *ChatRepo) GetSessionByID(ctx context.Context, id uuid.UUID) (*domain.ChatSession, error) {
	return r.getSession(ctx, `
		SELECT s.id, s.match_id, s.created_at, m.user_a_id, m.user_b_id
		FROM chat_sessions s
		JOIN matches m ON m.id = s.match_id
		WHERE s.id = $1`, id)
}

func (r *ChatRepo) getSession(ctx context.Context, query string, arg uuid.UUID) (*domain.ChatSession, error) {
	var s domain.ChatSession
	err := r.pool.QueryRow(ctx, query, arg).Scan(&s.ID, &s.MatchID, &s.CreatedAt, &s.UserAID, &s.UserBID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *ChatRepo) ListSessions(ctx context.Context, userID uuid.UUID) ([]domain.SessionSummary, error) {
	query := `
		SELECT s.id, s.match_id, s.created_at, m.user_a_id, m.user_b_id,
			lm.id, lm.sender_id, lm.content, lm.kind, lm.server_ts, lm.is_read,
			(SELECT count(*) FROM messages u
				WHERE u.session_id = s.id AND u.sender_id <> $1 AND NOT u.is_read) AS unread
		FROM chat_sessions s
		JOIN matches m ON m.id = s.match_id
		LEFT JOIN LATERAL (
			SELECT id, sender_id, content, kind, server_ts, is_read
			FROM messages
			WHERE session_id = s.id
			ORDER BY server_ts DESC, id DESC
			LIMIT 1
		) lm ON true
		WHERE m.user_a_id = $1 OR m.user_b_id = $1
		ORDER BY COALESCE(lm.server_ts, s.created_at) DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []domain.SessionSummary
	for rows.Next() {
		var (
			sum      domain.SessionSummary
			lastID   *uuid.UUID
			sender   *uuid.UUID
			content  *string
			kind     *string
			serverTS *time.Time
			isRead   *bool
		)
		if err := rows.Scan(
			&sum.ID, &sum.MatchID, &sum.CreatedAt, &sum.UserAID, &sum.UserBID,
			&lastID, &sender, &content, &kind, &serverTS, &isRead,
			&sum.UnreadCount,
		); err != nil {
			return nil, err
		}

		sum.OtherUserID = sum.UserAID
		if sum.UserAID == userID {
			sum.OtherUserID = sum.UserBID
		}
		sum.LastActivity = sum.CreatedAt
		if lastID != nil {
			sum.LastMessage = &domain.Message{
				ID:              *lastID,
				SessionID:       sum.ID,
				SenderID:        *sender,
				Content:         *content,
				Kind:            domain.MessageKind(*kind),
				ServerTimestamp: *serverTS,
				IsRead:          *isRead,
			}
			sum.LastActivity = *serverTS
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}
