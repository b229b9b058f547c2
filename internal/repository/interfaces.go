package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/vedran77/ontomatch/internal/domain"
)

// Get* methods return (nil, nil) when the row does not exist. Write methods
// return errors from the domain taxonomy (domain.ErrConflict on races and
// unique violations).

type MatchRepository interface {
	// RegisterInterest stores from->to (idempotently) and evaluates
	// mutuality for the pair as one atomic step. flipped is true only for
	// the call that moved the match from non-mutual to mutual.
	RegisterInterest(ctx context.Context, from, to uuid.UUID) (match *domain.Match, flipped bool, err error)
	GetMatchByID(ctx context.Context, id uuid.UUID) (*domain.Match, error)
	GetMatchByUsers(ctx context.Context, userA, userB uuid.UUID) (*domain.Match, error)
	ListMutualMatches(ctx context.Context, userID uuid.UUID) ([]domain.Match, error)
	ListIncomingInterests(ctx context.Context, userID uuid.UUID) ([]domain.InterestEdge, error)
	ListOutgoingInterests(ctx context.Context, userID uuid.UUID) ([]domain.InterestEdge, error)
}

type ChatRepository interface {
	// CreateSession fails with domain.ErrConflict when a session for the
	// match already exists.
	CreateSession(ctx context.Context, session *domain.ChatSession) error
	GetSessionByMatch(ctx context.Context, matchID uuid.UUID) (*domain.ChatSession, error)
	GetSessionByID(ctx context.Context, id uuid.UUID) (*domain.ChatSession, error)
	ListSessions(ctx context.Context, userID uuid.UUID) ([]domain.SessionSummary, error)
}

type MessageRepository interface {
	// Append assigns ID and ServerTimestamp before persisting msg.
	Append(ctx context.Context, msg *domain.Message) error
	// ListSince returns up to limit messages strictly after the cursor
	// (from the start when after is nil), ordered by (ServerTimestamp, ID).
	ListSince(ctx context.Context, sessionID uuid.UUID, after *domain.Cursor, limit int) ([]domain.Message, error)
	// MarkRead flags every unread message not sent by readerID and reports
	// how many rows changed.
	MarkRead(ctx context.Context, sessionID, readerID uuid.UUID) (int64, error)
}
