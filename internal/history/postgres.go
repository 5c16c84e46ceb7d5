package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agisilaos/farewatch/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `CREATE TABLE IF NOT EXISTS price_observations (
	seq         BIGSERIAL PRIMARY KEY,
	id          TEXT NOT NULL UNIQUE,
	cycle_id    TEXT NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL,
	route       TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	min_price   NUMERIC(12,2),
	currency    TEXT NOT NULL,
	payload     JSONB NOT NULL
)`

type pgDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PGBackend appends observations to a Postgres table; the full record is kept
// as JSONB so the logical shape survives schema changes.
type PGBackend struct {
	db   pgDB
	pool *pgxpool.Pool
}

// NewPGBackend connects to dsn and ensures the table exists.
func NewPGBackend(ctx context.Context, dsn string) (*PGBackend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	b := &PGBackend{db: pool, pool: pool}
	if err := b.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return b, nil
}

func (b *PGBackend) Migrate(ctx context.Context) error {
	if _, err := b.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate price_observations: %w", err)
	}
	return nil
}

func (b *PGBackend) Load(ctx context.Context) ([]model.PriceObservation, error) {
	rows, err := b.db.Query(ctx, `SELECT payload FROM price_observations ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.PriceObservation, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var obs model.PriceObservation
		if err := json.Unmarshal(payload, &obs); err != nil {
			return nil, fmt.Errorf("decode observation: %w", err)
		}
		out = append(out, obs)
	}
	return out, rows.Err()
}

func (b *PGBackend) Append(ctx context.Context, obs model.PriceObservation) error {
	payload, err := json.Marshal(obs)
	if err != nil {
		return err
	}
	var minPrice any
	if obs.MinPrice != nil {
		minPrice = obs.MinPrice.String()
	}
	_, err = b.db.Exec(ctx,
		`INSERT INTO price_observations (id, cycle_id, observed_at, route, outcome, min_price, currency, payload)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		obs.ID, obs.CycleID, obs.ObservedAt, obs.Params.RouteKey(), string(obs.Outcome), minPrice, obs.Currency, payload,
	)
	return err
}

func (b *PGBackend) Close() error {
	if b.pool != nil {
		b.pool.Close()
	}
	return nil
}

var _ Backend = (*PGBackend)(nil)
