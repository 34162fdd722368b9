// Package db provides the PostgreSQL-backed observation store. The
// repository accepts a DBTX interface satisfied by both *pgxpool.Pool (for
// normal queries) and pgx.Tx (for transactional execution), enabling clean
// transaction support for batch operations.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
// Repository code accepts this so the same queries work inside or outside a
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Connect opens a pgx connection pool and verifies connectivity.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Probe adapts a pool to the health check interface.
type Probe struct {
	Pool *pgxpool.Pool
}

// Name identifies the probe in the health response.
func (p Probe) Name() string { return "database" }

// Check pings the pool.
func (p Probe) Check(ctx context.Context) error { return p.Pool.Ping(ctx) }
