package candidate

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres delegates ranking to the get_compatible_users database function.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) NextCandidates(ctx context.Context, userID uuid.UUID, limit int) ([]uuid.UUID, error) {
	rows, err := p.pool.Query(ctx, `SELECT id FROM get_compatible_users($1, $2)`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying compatible users: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("scanning compatible users: %w", err)
	}
	return ids, nil
}
