package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
// Repositories accept this so the same code works inside or outside a
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxBeginner is satisfied by *pgxpool.Pool.
type TxBeginner interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Client struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, url string, maxConns int32) (*Client, error) {
	// Parse connection string into pgxpool.Config to allow tweaking settings.
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	return &Client{pool: pool}, nil
}

// Pool exposes the pool to repositories.
func (c *Client) Pool() *pgxpool.Pool {
	return c.pool
}

func (c *Client) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

func (c *Client) Close() {
	c.pool.Close()
}

// InitSchema creates the necessary tables. Idempotent.
func (c *Client) InitSchema(ctx context.Context) error {
	_, err := c.pool.Exec(ctx, Schema)
	return err
}

// Schema is the full DDL of the service.
const Schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id UUID PRIMARY KEY,
    seq BIGSERIAL,
    type TEXT NOT NULL,
    state TEXT NOT NULL DEFAULT 'PENDING',
    recipient TEXT NOT NULL DEFAULT '',
    payload JSONB NOT NULL,
    unique_key TEXT UNIQUE,
    not_before TIMESTAMPTZ NOT NULL,
    attempt INTEGER NOT NULL DEFAULT 0,
    max_attempts INTEGER NOT NULL,
    worker_id TEXT,
    lease_expires_at TIMESTAMPTZ,
    last_error TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (attempt <= max_attempts)
);
CREATE INDEX IF NOT EXISTS idx_jobs_claimable ON jobs (type, not_before, seq) WHERE state = 'PENDING';
CREATE INDEX IF NOT EXISTS idx_jobs_leases ON jobs (lease_expires_at) WHERE state = 'RUNNING';

-- Outbox table: wake-up hints relayed to the broker once available_at passes.
CREATE TABLE IF NOT EXISTS job_outbox (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    job_id UUID NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
    routing_key TEXT NOT NULL,
    available_at TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_job_outbox_available ON job_outbox (available_at);

CREATE TABLE IF NOT EXISTS job_locks (
    id TEXT PRIMARY KEY,
    worker_id TEXT NOT NULL,
    locked_at TIMESTAMPTZ NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS employees (
    emp_id TEXT PRIMARY KEY,
    doc JSONB NOT NULL,
    version BIGINT NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS employee_details (
    emp_id TEXT PRIMARY KEY REFERENCES employees(emp_id) ON DELETE CASCADE,
    doc JSONB NOT NULL,
    version BIGINT NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS org_aggregate (
    id SMALLINT PRIMARY KEY CHECK (id = 1),
    doc JSONB NOT NULL,
    version BIGINT NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS processed_events (
    event_id TEXT PRIMARY KEY,
    emp_id TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
