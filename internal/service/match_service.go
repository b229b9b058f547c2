package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/vedran77/ontomatch/internal/candidate"
	"github.com/vedran77/ontomatch/internal/domain"
	"github.com/vedran77/ontomatch/internal/repository"
)

var (
	ErrInvalidUserID  = fmt.Errorf("%w: user id is required", domain.ErrInvalidArgument)
	ErrCannotLikeSelf = fmt.Errorf("%w: cannot express interest in yourself", domain.ErrInvalidArgument)
)

const (
	defaultCandidateLimit = 20
	maxCandidateLimit     = 100
)

type MatchService struct {
	matchRepo  repository.MatchRepository
	candidates candidate.Source
	maxRetries int
	retryDelay time.Duration
}

func NewMatchService(matchRepo repository.MatchRepository, candidates candidate.Source, maxRetries int) *MatchService {
	return &MatchService{
		matchRepo:  matchRepo,
		candidates: candidates,
		maxRetries: maxRetries,
		retryDelay: 20 * time.Millisecond,
	}
}

func (s *MatchService) retryBackOff() backoff.BackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     s.retryDelay,
		RandomizationFactor: 0.5,
		Multiplier:          2,
		MaxInterval:         time.Second,
	}
}

// RegisterInterest records from->to and reports whether the pair is now a
// mutual match. Calling it again with the same arguments is a no-op that
// reports the current state. Store conflicts are retried up to maxRetries
// times with exponential backoff before ErrConflict is surfaced.
func (s *MatchService) RegisterInterest(ctx context.Context, from, to uuid.UUID) (*domain.InterestResult, error) {
	if from == uuid.Nil || to == uuid.Nil {
		return nil, ErrInvalidUserID
	}
	if from == to {
		return nil, ErrCannotLikeSelf
	}

	type outcome struct {
		match   *domain.Match
		flipped bool
	}
	tries := uint(1)
	if s.maxRetries > 0 {
		tries += uint(s.maxRetries)
	}
	attempt := 0
	res, err := backoff.Retry(ctx, func() (outcome, error) {
		attempt++
		match, flipped, err := s.matchRepo.RegisterInterest(ctx, from, to)
		if err != nil {
			if !errors.Is(err, domain.ErrConflict) {
				return outcome{}, backoff.Permanent(err)
			}
			slog.Debug("interest conflict", "from", from, "to", to, "attempt", attempt)
			return outcome{}, err
		}
		return outcome{match: match, flipped: flipped}, nil
	},
		backoff.WithMaxTries(tries),
		backoff.WithBackOff(s.retryBackOff()),
		backoff.WithMaxElapsedTime(0),
	)
	if err != nil {
		return nil, fmt.Errorf("registering interest: %w", err)
	}
	match, flipped := res.match, res.flipped

	// The peer may have flipped the pair right after this call committed.
	if !match.IsMutual {
		current, err := s.matchRepo.GetMatchByUsers(ctx, from, to)
		if err != nil {
			slog.Warn("re-reading match after interest", "from", from, "to", to, "error", err)
		} else if current != nil {
			match = current
		}
	}

	if !match.IsMutual {
		return &domain.InterestResult{IsMatch: false}, nil
	}

	if flipped {
		slog.Info("match created", "match_id", match.ID, "user_a", match.UserAID, "user_b", match.UserBID)
	}

	id := match.ID
	return &domain.InterestResult{IsMatch: true, MatchID: &id, BecameMutual: flipped}, nil
}

// GetMatch returns a match visible to userID.
func (s *MatchService) GetMatch(ctx context.Context, userID, matchID uuid.UUID) (*domain.Match, error) {
	match, err := s.matchRepo.GetMatchByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, ErrMatchNotFound
	}
	if !match.HasParticipant(userID) {
		slog.Warn("match access by non-participant", "match_id", matchID, "user_id", userID)
		return nil, ErrNotMatchParticipant
	}
	match.OtherUserID = match.Other(userID)
	return match, nil
}

// ListMatches returns the user's mutual matches, newest first.
func (s *MatchService) ListMatches(ctx context.Context, userID uuid.UUID) ([]domain.Match, error) {
	matches, err := s.matchRepo.ListMutualMatches(ctx, userID)
	if err != nil {
		return nil, err
	}
	if matches == nil {
		matches = []domain.Match{}
	}
	return matches, nil
}

// ListIncomingInterests returns interests other users expressed in userID.
func (s *MatchService) ListIncomingInterests(ctx context.Context, userID uuid.UUID) ([]domain.InterestEdge, error) {
	edges, err := s.matchRepo.ListIncomingInterests(ctx, userID)
	if err != nil {
		return nil, err
	}
	if edges == nil {
		edges = []domain.InterestEdge{}
	}
	return edges, nil
}

// ListOutgoingInterests returns interests userID expressed.
func (s *MatchService) ListOutgoingInterests(ctx context.Context, userID uuid.UUID) ([]domain.InterestEdge, error) {
	edges, err := s.matchRepo.ListOutgoingInterests(ctx, userID)
	if err != nil {
		return nil, err
	}
	if edges == nil {
		edges = []domain.InterestEdge{}
	}
	return edges, nil
}

// Candidates asks the candidate source for users to show next and drops
// anyone userID already expressed interest in.
func (s *MatchService) Candidates(ctx context.Context, userID uuid.UUID, limit int) ([]uuid.UUID, error) {
	if limit <= 0 || limit > maxCandidateLimit {
		limit = defaultCandidateLimit
	}

	outgoing, err := s.matchRepo.ListOutgoingInterests(ctx, userID)
	if err != nil {
		return nil, err
	}
	seen := make(map[uuid.UUID]struct{}, len(outgoing)+1)
	seen[userID] = struct{}{}
	for _, e := range outgoing {
		seen[e.ToUserID] = struct{}{}
	}

	ids, err := s.candidates.NextCandidates(ctx, userID, limit+len(outgoing))
	if err != nil {
		return nil, fmt.Errorf("fetching candidates: %w", err)
	}

	out := make([]uuid.UUID, 0, limit)
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
