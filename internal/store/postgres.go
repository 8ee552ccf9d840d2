package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres returns a Postgres-backed Store over the execution_records
// table. Call Migrate once before use.
func NewPostgres(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool}
}

// NewPool creates a pgxpool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

// Migrate creates the execution_records table if it does not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS execution_records (
			task_name         TEXT PRIMARY KEY,
			last_execute_time TIMESTAMPTZ NOT NULL,
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("migrate execution_records: %w", err)
	}
	return nil
}

func (s *postgresStore) Get(ctx context.Context, taskName string) (time.Time, bool, error) {
	var t time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT last_execute_time FROM execution_records WHERE task_name = $1
	`, taskName).Scan(&t)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("select watermark for %s: %w", taskName, err)
	}
	return t.UTC(), true, nil
}

func (s *postgresStore) Put(ctx context.Context, taskName string, t time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO execution_records (task_name, last_execute_time, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (task_name)
		DO UPDATE SET last_execute_time = EXCLUDED.last_execute_time, updated_at = NOW()
	`, taskName, t.UTC())
	if err != nil {
		return fmt.Errorf("upsert watermark for %s: %w", taskName, err)
	}
	return nil
}
