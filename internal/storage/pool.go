// Package storage provides the PostgreSQL backend of the processing-request
// store.
//
// It manages connection pooling via pgxpool, a forward-only migration runner
// over embedded SQL files, and the query methods implementing store.Store.
// Append operations run in a transaction that locks the owning request row,
// so appends against the same request serialize while requests stay
// independent of each other.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/metric"

	"github.com/ocrhub/pagetrack/internal/telemetry"
)

// DB wraps a pgxpool.Pool and implements store.Store.
type DB struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a new DB with a connection pool and verifies connectivity.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}

	db := &DB{pool: pool, logger: logger}
	if err := db.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping pool: %w", err)
	}

	registerPoolMetrics(pool, logger)

	return db, nil
}

// registerPoolMetrics exposes pgxpool utilization through the global meter.
// With no meter provider configured the instruments are no-ops.
func registerPoolMetrics(pool *pgxpool.Pool, logger *slog.Logger) {
	meter := telemetry.Meter("pagetrack/storage")
	acquired, _ := meter.Int64ObservableGauge("pagetrack.pool.acquired_conns",
		metric.WithDescription("Connections currently checked out of the pool"),
	)
	idle, _ := meter.Int64ObservableGauge("pagetrack.pool.idle_conns",
		metric.WithDescription("Idle connections held by the pool"),
	)
	_, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stat := pool.Stat()
		o.ObserveInt64(acquired, int64(stat.AcquiredConns()))
		o.ObserveInt64(idle, int64(stat.IdleConns()))
		return nil
	}, acquired, idle)
	if err != nil {
		logger.Warn("registering pool metrics", "error", err)
	}
}

// Ping checks connectivity to the database.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (db *DB) Close(context.Context) error {
	db.pool.Close()
	return nil
}
