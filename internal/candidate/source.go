// Package candidate supplies users a person may express interest in. Ranking
// is owned by the source; the match engine only consumes identifiers.
package candidate

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Source returns up to limit candidate ids for userID, best first.
type Source interface {
	NextCandidates(ctx context.Context, userID uuid.UUID, limit int) ([]uuid.UUID, error)
}

// Static serves a fixed pool in order, skipping the requesting user.
type Static struct {
	pool []uuid.UUID
}

func NewStatic(pool []uuid.UUID) *Static {
	return &Static{pool: pool}
}

// ParseStatic builds a Static source from textual ids, as found in config.
func ParseStatic(ids []string) (*Static, error) {
	pool := make([]uuid.UUID, 0, len(ids))
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("candidate pool entry %q: %w", raw, err)
		}
		pool = append(pool, id)
	}
	return NewStatic(pool), nil
}

func (s *Static) NextCandidates(_ context.Context, userID uuid.UUID, limit int) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, min(limit, len(s.pool)))
	for _, id := range s.pool {
		if len(out) == limit {
			break
		}
		if id == userID {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}
