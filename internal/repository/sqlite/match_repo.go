package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/vedran77/ontomatch/internal/domain"
)

type MatchRepo struct {
	store *Store
}

const matchColumns = `id, user_a_id, user_b_id, first_liked_at, mutual_at, is_mutual`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMatch(row rowScanner) (*domain.Match, error) {
	var (
		m        domain.Match
		liked    int64
		mutualAt sql.NullInt64
	)
	if err := row.Scan(&m.ID, &m.UserAID, &m.UserBID, &liked, &mutualAt, &m.IsMutual); err != nil {
		return nil, err
	}
	m.FirstLikedAt = fromNanos(liked)
	if mutualAt.Valid {
		t := fromNanos(mutualAt.Int64)
		m.MutualAt = &t
	}
	return &m, nil
}

// RegisterInterest runs inside an immediate transaction, which holds the
// database write lock from the first statement, so concurrent calls for the
// same pair are fully serialized.
func (r *MatchRepo) RegisterInterest(ctx context.Context, from, to uuid.UUID) (*domain.Match, bool, error) {
	match, flipped, err := r.registerInterest(ctx, from, to)
	if err != nil {
		return nil, false, translateError(err)
	}
	return match, flipped, nil
}

func (r *MatchRepo) registerInterest(ctx context.Context, from, to uuid.UUID) (*domain.Match, bool, error) {
	userA, userB := domain.CanonicalPair(from, to)

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	now := r.store.timestamp()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO matches (id, user_a_id, user_b_id, first_liked_at, is_mutual)
		VALUES (?, ?, ?, ?, 0)
		ON CONFLICT (user_a_id, user_b_id) DO NOTHING`,
		uuid.New(), userA, userB, now,
	); err != nil {
		return nil, false, err
	}

	match, err := scanMatch(tx.QueryRowContext(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE user_a_id = ? AND user_b_id = ?`, userA, userB))
	if err != nil {
		return nil, false, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO interests (from_user_id, to_user_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (from_user_id, to_user_id) DO NOTHING`,
		from, to, now,
	); err != nil {
		return nil, false, err
	}

	flipped := false
	if !match.IsMutual {
		var reverse bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM interests WHERE from_user_id = ? AND to_user_id = ?)`,
			to, from,
		).Scan(&reverse); err != nil {
			return nil, false, err
		}

		if reverse {
			res, err := tx.ExecContext(ctx, `
				UPDATE matches SET is_mutual = 1, mutual_at = COALESCE(mutual_at, ?)
				WHERE id = ? AND is_mutual = 0`,
				now, match.ID,
			)
			if err != nil {
				return nil, false, err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return nil, false, err
			}
			flipped = n == 1
			match.IsMutual = true
			if flipped {
				t := fromNanos(now)
				match.MutualAt = &t
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}
	return match, flipped, nil
}

func (r *MatchRepo) GetMatchByID(ctx context.Context, id uuid.UUID) (*domain.Match, error) {
	m, err := scanMatch(r.store.db.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (r *MatchRepo) GetMatchByUsers(ctx context.Context, userA, userB uuid.UUID) (*domain.Match, error) {
	u1, u2 := domain.CanonicalPair(userA, userB)
	m, err := scanMatch(r.store.db.QueryRowContext(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE user_a_id = ? AND user_b_id = ?`, u1, u2))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (r *MatchRepo) ListMutualMatches(ctx context.Context, userID uuid.UUID) ([]domain.Match, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT `+matchColumns+`
		FROM matches
		WHERE (user_a_id = ? OR user_b_id = ?) AND is_mutual = 1
		ORDER BY mutual_at DESC, id`, userID, userID)
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
		WHERE to_user_id = ?
		ORDER BY created_at DESC`, userID)
}

func (r *MatchRepo) ListOutgoingInterests(ctx context.Context, userID uuid.UUID) ([]domain.InterestEdge, error) {
	return r.listInterests(ctx, `
		SELECT from_user_id, to_user_id, created_at
		FROM interests
		WHERE from_user_id = ?
		ORDER BY created_at DESC`, userID)
}

func (r *MatchRepo) listInterests(ctx context.Context, query string, userID uuid.UUID) ([]domain.InterestEdge, error) {
	rows, err := r.store.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []domain.InterestEdge
	for rows.Next() {
		var (
			e  domain.InterestEdge
			ts int64
		)
		if err := rows.Scan(&e.FromUserID, &e.ToUserID, &ts); err != nil {
			return nil, err
		}
		e.CreatedAt = fromNanos(ts)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
