package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/ontomatch/internal/domain"
	"github.com/vedran77/ontomatch/internal/repository"
)

var (
	ErrMatchNotFound         = fmt.Errorf("%w: match not found", domain.ErrNotFound)
	ErrNotMatchParticipant   = fmt.Errorf("%w: you are not part of this match", domain.ErrForbidden)
	ErrMatchNotMutual        = fmt.Errorf("%w: match is not mutual", domain.ErrNotEligible)
	ErrSessionNotFound       = fmt.Errorf("%w: chat session not found", domain.ErrNotFound)
	ErrNotSessionParticipant = fmt.Errorf("%w: you are not a participant of this chat", domain.ErrForbidden)
)

type ChatService struct {
	matchRepo repository.MatchRepository
	chatRepo  repository.ChatRepository
}

func NewChatService(matchRepo repository.MatchRepository, chatRepo repository.ChatRepository) *ChatService {
	return &ChatService{
		matchRepo: matchRepo,
		chatRepo:  chatRepo,
	}
}

// GetOrCreateSession returns the chat session of a mutual match, creating
// it on first access. Concurrent callers all receive the same session: the
// store allows one session per match and a losing insert re-reads the
// winner's row.
func (s *ChatService) GetOrCreateSession(ctx context.Context, userID, matchID uuid.UUID) (*domain.ChatSession, error) {
	match, err := s.matchRepo.GetMatchByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, ErrMatchNotFound
	}
	if !match.HasParticipant(userID) {
		slog.Warn("session requested by non-participant", "match_id", matchID, "user_id", userID)
		return nil, ErrNotMatchParticipant
	}
	if !match.IsMutual {
		return nil, ErrMatchNotMutual
	}

	session, err := s.chatRepo.GetSessionByMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if session != nil {
		return session, nil
	}

	session = &domain.ChatSession{
		ID:        uuid.New(),
		MatchID:   matchID,
		CreatedAt: time.Now(),
		UserAID:   match.UserAID,
		UserBID:   match.UserBID,
	}
	err = s.chatRepo.CreateSession(ctx, session)
	switch {
	case err == nil:
		slog.Info("chat session created", "session_id", session.ID, "match_id", matchID)
		return session, nil
	case errors.Is(err, domain.ErrConflict):
		// Lost the race; the winner's row is committed.
		winner, err := s.chatRepo.GetSessionByMatch(ctx, matchID)
		if err != nil {
			return nil, err
		}
		if winner == nil {
			return nil, fmt.Errorf("creating chat session: %w", domain.ErrConflict)
		}
		return winner, nil
	default:
		return nil, fmt.Errorf("creating chat session: %w", err)
	}
}

// GetSession returns a session after checking that userID participates.
func (s *ChatService) GetSession(ctx context.Context, userID, sessionID uuid.UUID) (*domain.ChatSession, error) {
	session, err := s.chatRepo.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if !session.HasParticipant(userID) {
		slog.Warn("session access by non-participant", "session_id", sessionID, "user_id", userID)
		return nil, ErrNotSessionParticipant
	}
	return session, nil
}

// ListSessions returns the user's chats, most recent activity first.
func (s *ChatService) ListSessions(ctx context.Context, userID uuid.UUID) ([]domain.SessionSummary, error) {
	sums, err := s.chatRepo.ListSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sums == nil {
		sums = []domain.SessionSummary{}
	}
	return sums, nil
}
