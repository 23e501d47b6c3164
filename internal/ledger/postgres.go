package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres keeps the ledger in a scanned_files table, shared by every
// process pointed at the same database.
type Postgres struct {
	pool  *pgxpool.Pool
	owned bool
}

// OpenPostgres connects a pool from opts.URL, verifies it and migrates.
func OpenPostgres(ctx context.Context, opts Options) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if opts.MaxConns > 0 {
		poolConfig.MaxConns = int32(opts.MaxConns)
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = int32(opts.MinConns)
	}
	if opts.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	l, err := NewPostgres(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	l.owned = true
	return l, nil
}

// NewPostgres uses an existing pool. Close does not close a pool it did not open.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	l := &Postgres{pool: pool}
	_, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS scanned_files (
		id         BIGSERIAL PRIMARY KEY,
		file_id    TEXT NOT NULL UNIQUE,
		scanned_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return l, nil
}

func (l *Postgres) IsScanned(ctx context.Context, fileID string) (bool, error) {
	var exists bool
	err := l.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM scanned_files WHERE file_id = $1)`, fileID).Scan(&exists)
	if err != nil {
		return false, ledgerError("", err)
	}
	return exists, nil
}

func (l *Postgres) MarkScanned(ctx context.Context, fileID string) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO scanned_files (file_id) VALUES ($1) ON CONFLICT (file_id) DO NOTHING`, fileID)
	if err != nil {
		return ledgerError("", err)
	}
	return nil
}

func (l *Postgres) List(ctx context.Context) ([]string, error) {
	rows, err := l.pool.Query(ctx, `SELECT file_id FROM scanned_files ORDER BY id`)
	if err != nil {
		return nil, ledgerError("", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, ledgerError("", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, ledgerError("", err)
	}
	return ids, nil
}

func (l *Postgres) Close() error {
	if l.owned {
		l.pool.Close()
	}
	return nil
}
