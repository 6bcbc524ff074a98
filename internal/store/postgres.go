package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS boards (
	id         TEXT PRIMARY KEY,
	version    INTEGER NOT NULL,
	record     JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Postgres stores records as JSONB rows.
type Postgres struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgres applies the schema and returns a store over pool. Close closes
// the pool.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("migrate boards table: %w", err)
	}
	return &Postgres{pool: pool, now: time.Now}, nil
}

func (p *Postgres) Load(ctx context.Context, id string) (Record, error) {
	var data []byte
	err := p.pool.QueryRow(ctx, `SELECT record FROM boards WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("load board %s: %w", id, err)
	}
	return Decode(data)
}

func (p *Postgres) Save(ctx context.Context, rec Record) error {
	rec.UpdatedAt = p.now().UTC()
	data, err := Encode(rec)
	if err != nil {
		return err
	}
	version := rec.Version
	if version == 0 {
		version = V2
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO boards (id, version, record, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			version = EXCLUDED.version,
			record = EXCLUDED.record,
			updated_at = EXCLUDED.updated_at`,
		rec.ID, version, data, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save board %s: %w", rec.ID, err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM boards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete board %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) List(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT id FROM boards ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	return ids, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
