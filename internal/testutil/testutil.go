// Package testutil provides shared test infrastructure for integration tests
// that require a Postgres container.
//
// Usage:
//
//	tc := testutil.MustStartPostgres()
//	t.Cleanup(tc.Terminate)
//	db := tc.NewTestDB(t, logger)
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ocrhub/pagetrack/internal/storage"
	"github.com/ocrhub/pagetrack/migrations"
)

// TestContainer wraps a testcontainers Postgres container.
type TestContainer struct {
	Container testcontainers.Container

	host   string
	port   string
	nextDB atomic.Int64
}

// MustStartPostgres starts a Postgres container. Calls os.Exit(1) on failure
// (suitable for TestMain as well as direct use).
func MustStartPostgres() *TestContainer {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "pagetrack",
			"POSTGRES_PASSWORD": "pagetrack",
			"POSTGRES_DB":       "pagetrack",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "testutil: failed to start container: %v\n", err)
		os.Exit(1)
	}

	host, err := container.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "testutil: failed to get container host: %v\n", err)
		os.Exit(1)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		fmt.Fprintf(os.Stderr, "testutil: failed to get container port: %v\n", err)
		os.Exit(1)
	}

	return &TestContainer{Container: container, host: host, port: port.Port()}
}

// Terminate stops the container.
func (tc *TestContainer) Terminate() {
	_ = tc.Container.Terminate(context.Background())
}

// NewTestDatabase creates a fresh database inside the container and returns
// its DSN. The database lives until the container terminates, so tests can
// connect to it more than once.
func (tc *TestContainer) NewTestDatabase(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	name := fmt.Sprintf("pagetrack_test_%d", tc.nextDB.Add(1))
	admin, err := pgx.Connect(ctx, tc.dsn("pagetrack"))
	if err != nil {
		t.Fatalf("testutil: connect admin: %v", err)
	}
	if _, err := admin.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", name)); err != nil {
		t.Fatalf("testutil: create database: %v", err)
	}
	if err := admin.Close(ctx); err != nil {
		t.Fatalf("testutil: close admin: %v", err)
	}
	return tc.dsn(name)
}

// NewTestDB creates a fresh database inside the container, runs migrations
// on it and returns a connected storage.DB. The pool is closed on test
// cleanup; the database itself lives until the container terminates.
func (tc *TestContainer) NewTestDB(t *testing.T, logger *slog.Logger) *storage.DB {
	t.Helper()
	ctx := context.Background()

	dsn := tc.NewTestDatabase(t)
	db, err := storage.New(ctx, dsn, logger)
	if err != nil {
		t.Fatalf("testutil: connect %s: %v", dsn, err)
	}
	t.Cleanup(func() { _ = db.Close(context.Background()) })

	if err := db.RunMigrations(ctx, migrations.Postgres); err != nil {
		t.Fatalf("testutil: migrate %s: %v", dsn, err)
	}
	return db
}

func (tc *TestContainer) dsn(database string) string {
	return fmt.Sprintf("postgres://pagetrack:pagetrack@%s:%s/%s?sslmode=disable",
		tc.host, tc.port, database)
}
