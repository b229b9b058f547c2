package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/ontomatch/internal/domain"
	"github.com/vedran77/ontomatch/internal/repository"
)

func TestRegisterInterest_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := uuid.New()

	_, err := env.matches.RegisterInterest(ctx, uuid.Nil, id)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = env.matches.RegisterInterest(ctx, id, id)
	assert.ErrorIs(t, err, ErrCannotLikeSelf)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestRegisterInterest_MutualFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	res, err := env.matches.RegisterInterest(ctx, a, b)
	require.NoError(t, err)
	assert.False(t, res.IsMatch)
	assert.Nil(t, res.MatchID)

	res, err = env.matches.RegisterInterest(ctx, b, a)
	require.NoError(t, err)
	assert.True(t, res.IsMatch)
	assert.True(t, res.BecameMutual)
	require.NotNil(t, res.MatchID)

	again, err := env.matches.RegisterInterest(ctx, a, b)
	require.NoError(t, err)
	assert.True(t, again.IsMatch)
	assert.False(t, again.BecameMutual)
	assert.Equal(t, *res.MatchID, *again.MatchID)
}

func TestRegisterInterest_ConcurrentSameInstant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	var (
		wg      sync.WaitGroup
		results [2]*domain.InterestResult
		errs    [2]error
	)
	start := make(chan struct{})
	for i, pair := range [][2]uuid.UUID{{a, b}, {b, a}} {
		wg.Add(1)
		go func(i int, from, to uuid.UUID) {
			defer wg.Done()
			<-start
			results[i], errs[i] = env.matches.RegisterInterest(ctx, from, to)
		}(i, pair[0], pair[1])
	}
	close(start)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.True(t, results[0].BecameMutual != results[1].BecameMutual, "exactly one call flips")

	var matchID uuid.UUID
	for _, r := range results {
		if r.IsMatch {
			require.NotNil(t, r.MatchID)
			if matchID != uuid.Nil {
				assert.Equal(t, matchID, *r.MatchID)
			}
			matchID = *r.MatchID
		}
	}

	// Either side opening the chat lands in the same single session.
	s1, err := env.chats.GetOrCreateSession(ctx, a, matchID)
	require.NoError(t, err)
	s2, err := env.chats.GetOrCreateSession(ctx, b, matchID)
	require.NoError(t, err)
	assert.Equal(t, s1.ID, s2.ID)

	// A retry by the losing side reports the match.
	res, err := env.matches.RegisterInterest(ctx, a, b)
	require.NoError(t, err)
	assert.True(t, res.IsMatch)
}

type conflictingRepo struct {
	repository.MatchRepository
	failures int
	calls    int
}

func (r *conflictingRepo) RegisterInterest(ctx context.Context, from, to uuid.UUID) (*domain.Match, bool, error) {
	r.calls++
	if r.calls <= r.failures {
		return nil, false, domain.ErrConflict
	}
	return r.MatchRepository.RegisterInterest(ctx, from, to)
}

func TestRegisterInterest_RetriesConflicts(t *testing.T) {
	env := newTestEnv(t)
	repo := &conflictingRepo{MatchRepository: env.store.Matches(), failures: 2}
	svc := NewMatchService(repo, nil, 3)
	svc.retryDelay = time.Millisecond

	_, err := svc.RegisterInterest(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 3, repo.calls)
}

func TestRegisterInterest_ConflictSurfacesAfterBound(t *testing.T) {
	env := newTestEnv(t)
	repo := &conflictingRepo{MatchRepository: env.store.Matches(), failures: 100}
	svc := NewMatchService(repo, nil, 2)
	svc.retryDelay = time.Millisecond

	_, err := svc.RegisterInterest(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 3, repo.calls)
}

type brokenRepo struct {
	repository.MatchRepository
	calls int
}

func (r *brokenRepo) RegisterInterest(context.Context, uuid.UUID, uuid.UUID) (*domain.Match, bool, error) {
	r.calls++
	return nil, false, errors.New("disk on fire")
}

func TestRegisterInterest_OtherErrorsAreNotRetried(t *testing.T) {
	env := newTestEnv(t)
	repo := &brokenRepo{MatchRepository: env.store.Matches()}
	svc := NewMatchService(repo, nil, 3)
	svc.retryDelay = time.Millisecond

	_, err := svc.RegisterInterest(context.Background(), uuid.New(), uuid.New())
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 1, repo.calls)
}

func TestRegisterInterest_ConflictRetryStopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	repo := &conflictingRepo{MatchRepository: env.store.Matches(), failures: 100}
	svc := NewMatchService(repo, nil, 50)
	svc.retryDelay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.RegisterInterest(ctx, uuid.New(), uuid.New())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, repo.calls)
}

// lateFlipRepo lets the peer's interest commit right after ours, before the
// service looks at the result, the window two simultaneous likes race in.
type lateFlipRepo struct {
	repository.MatchRepository
}

func (r *lateFlipRepo) RegisterInterest(ctx context.Context, from, to uuid.UUID) (*domain.Match, bool, error) {
	m, flipped, err := r.MatchRepository.RegisterInterest(ctx, from, to)
	if err != nil {
		return nil, false, err
	}
	if _, _, err := r.MatchRepository.RegisterInterest(ctx, to, from); err != nil {
		return nil, false, err
	}
	return m, flipped, nil
}

func TestRegisterInterest_ReportsPeerFlipThatLandedAfterCommit(t *testing.T) {
	env := newTestEnv(t)
	svc := NewMatchService(&lateFlipRepo{MatchRepository: env.store.Matches()}, nil, 3)
	a, b := uuid.New(), uuid.New()

	res, err := svc.RegisterInterest(context.Background(), a, b)
	require.NoError(t, err)
	assert.True(t, res.IsMatch)
	assert.False(t, res.BecameMutual, "the peer performed the flip")
	require.NotNil(t, res.MatchID)

	stored, err := env.store.Matches().GetMatchByUsers(context.Background(), b, a)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, *res.MatchID)
}

func TestCandidates_ExcludesAlreadyLiked(t *testing.T) {
	me, liked, fresh1, fresh2 := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	env := newTestEnv(t, liked, me, fresh1, fresh2)
	ctx := context.Background()

	_, err := env.matches.RegisterInterest(ctx, me, liked)
	require.NoError(t, err)

	got, err := env.matches.Candidates(ctx, me, 0)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{fresh1, fresh2}, got)

	got, err = env.matches.Candidates(ctx, me, 1)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{fresh1}, got)
}

func TestListMatchesAndInterests_NeverNil(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := uuid.New()

	matches, err := env.matches.ListMatches(ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, matches)

	in, err := env.matches.ListIncomingInterests(ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, in)

	out, err := env.matches.ListOutgoingInterests(ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, out)
}

func TestGetMatch_Participants(t *testing.T) {
	env := newTestEnv(t)
	matchID, a, b := env.mutualMatch(t)

	m, err := env.matches.GetMatch(context.Background(), a, matchID)
	require.NoError(t, err)
	assert.Equal(t, b, m.OtherUserID)

	_, err = env.matches.GetMatch(context.Background(), uuid.New(), matchID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}
