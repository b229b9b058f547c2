package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/ontomatch/internal/domain"
)

type MatchRepo struct {
	pool *pgxpool.Pool
}

func NewMatchRepo(pool *pgxpool.Pool) *MatchRepo {
	return &MatchRepo{pool: pool}
}

const matchColumns = `id, user_a_id, user_b_id, first_liked_at, mutual_at, is_mutual`

func scanMatch(row pgx.Row) (*domain.Match, error) {
	var m domain.Match
	err := row.Scan(&m.ID, &m.UserAID, &m.UserBID, &m.FirstLikedAt, &m.MutualAt, &m.IsMutual)
	return &m, err
}

// RegisterInterest runs the whole check-and-flip inside one transaction. The
// pair row is upserted first with ON CONFLICT DO UPDATE, which takes its row
// lock, so two participants liking each other at the same time are
// serialized on that row and the second one always sees the first one's edge.
func (r *MatchRepo) RegisterInterest(ctx context.Context, from, to uuid.UUID) (*domain.Match, bool, error) {
	userA, userB := domain.CanonicalPair(from, to)

	var (
		match   *domain.Match
		flipped bool
	)
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		var err error
		match, err = scanMatch(tx.QueryRow(ctx, `
			INSERT INTO matches (id, user_a_id, user_b_id, first_liked_at, is_mutual)
			VALUES ($1, $2, $3, now(), false)
			ON CONFLICT (user_a_id, user_b_id) DO UPDATE SET user_a_id = EXCLUDED.user_a_id
			RETURNING `+matchColumns,
			uuid.New(), userA, userB,
		))
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO interests (from_user_id, to_user_id, created_at)
			VALUES ($1, $2, now())
			ON CONFLICT (from_user_id, to_user_id) DO NOTHING`,
			from, to,
		); err != nil {
			return err
		}

		if match.IsMutual {
			return nil
		}

		var reverse bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM interests WHERE from_user_id = $1 AND to_user_id = $2)`,
			to, from,
		).Scan(&reverse); err != nil {
			return err
		}
		if !reverse {
			return nil
		}

		err = tx.QueryRow(ctx, `
			UPDATE matches SET is_mutual = true, mutual_at = COALESCE(mutual_at, now())
			WHERE id = $1 AND NOT is_mutual
			RETURNING mutual_at`,
			match.ID,
		).Scan(&match.MutualAt)
		if errors.Is(err, pgx.ErrNoRows) {
			// Already mutual; the row lock makes this unreachable in practice.
			match.IsMutual = true
			return nil
		}
		if err != nil {
			return err
		}
		match.IsMutual = true
		flipped = true
		return nil
	})
	if err != nil {
		return nil, false, translateError(err)
	}
	return match, flipped, nil
}

func (r *MatchRepo) GetMatchByID(ctx context.Context, id uuid.UUID) (*domain.Match, error) {
	m, err := scanMatch(r.pool.QueryRow(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MatchRepo) GetMatchByUsers(ctx context.Context, userA, userB uuid.UUID) (*domain.Match, error) {
	u1, u2 := domain.CanonicalPair(userA, userB)
	m, err := scanMatch(r.pool.QueryRow(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE user_a_id = $1 AND user_b_id = $2`, u1, u2))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MatchRepo) ListMutualMatches(ctx context.Context, userID uuid.UUID) ([]domain.Match, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE (user_a_id = $1 OR user_b_id = $1) AND is_mutual
		ORDER BY mutual_at DESC, id`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []domain.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		m.OtherUserID = m.Other(userID)
		matches = append(matches, *m)
	}
	return matches, rows.Err()
}

func (r *MatchRepo) ListIncomingInterests(ctx context.Context, userID uuid.UUID) ([]domain.InterestEdge, error) {
	return r.listInterests(ctx, `
		SELECT from_user_id, to_user_id, created_at
		FROM interests
		WHERE to_user_id = $1
		ORDER BY created_at DESC`, userID)
}

func (r *MatchRepo) ListOutgoingInterests(ctx context.Context, userID uuid.UUID) ([]domain.InterestEdge, error) {
	return r.listInterests(ctx, `
		SELECT from_user_id, to_user_id, created_at
		FROM interests
		WHERE from_user_id = $1
		ORDER BY created_at DESC`, userID)
}

func (r *MatchRepo) listInterests(ctx context.Context, query string, userID uuid.UUID) ([]domain.InterestEdge, error) {
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []domain.InterestEdge
	for rows.Next() {
		var e domain.InterestEdge
		if err := rows.Scan(&e.FromUserID, &e.ToUserID, &e.CreatedAt); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
