package storage_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocrhub/pagetrack/internal/model"
	"github.com/ocrhub/pagetrack/internal/storage"
	"github.com/ocrhub/pagetrack/internal/store"
	"github.com/ocrhub/pagetrack/internal/store/storetest"
	"github.com/ocrhub/pagetrack/internal/testutil"
	"github.com/ocrhub/pagetrack/migrations"
)

func startContainer(t *testing.T) *testutil.TestContainer {
	t.Helper()
	if os.Getenv("PAGETRACK_POSTGRES_INTEGRATION") == "" {
		t.Skip("set PAGETRACK_POSTGRES_INTEGRATION=1 to run Postgres integration tests")
	}
	tc := testutil.MustStartPostgres()
	t.Cleanup(tc.Terminate)
	return tc
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPostgresConformance(t *testing.T) {
	tc := startContainer(t)
	logger := quietLogger()

	storetest.Run(t, func(t *testing.T) store.Store {
		return tc.NewTestDB(t, logger)
	})
}

func TestPostgresMigrationsAreIdempotent(t *testing.T) {
	tc := startContainer(t)
	db := tc.NewTestDB(t, quietLogger())

	// NewTestDB already migrated; a second run must be a no-op.
	require.NoError(t, db.RunMigrations(context.Background(), migrations.Postgres))
}

func TestPostgresPersistsAcrossConnections(t *testing.T) {
	tc := startContainer(t)
	ctx := context.Background()
	logger := quietLogger()

	dsn := tc.NewTestDatabase(t)
	db, err := storage.New(ctx, dsn, logger)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations(ctx, migrations.Postgres))

	req, err := db.CreateRequest(ctx, store.CreateRequestParams{
		PageUUID:         "P-persist",
		Priority:         7,
		ProcessingStages: []string{"binarize", "ocr"},
	})
	require.NoError(t, err)

	end := req.StartTime.Add(3 * time.Second)
	require.NoError(t, db.AppendStageLog(ctx, req.UUID, model.StageLog{
		HostID:  "worker-01",
		Stage:   "binarize",
		Start:   req.StartTime,
		End:     &end,
		Status:  model.StatusSuccess,
		Log:     "ok",
		Version: "v1.0.0",
	}))
	require.NoError(t, db.Close(ctx))

	// Everything written above must be visible through a brand-new pool.
	db2, err := storage.New(ctx, dsn, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db2.Close(context.Background()) })
	require.NoError(t, db2.Ping(ctx))

	got, err := db2.GetRequest(ctx, req.UUID)
	require.NoError(t, err)
	assert.Equal(t, int32(7), got.Priority)
	require.Len(t, got.Logs, 1)
	assert.Equal(t, model.StatusSuccess, got.Logs[0].Status)
	require.NotNil(t, got.Logs[0].End)
	assert.True(t, got.Logs[0].End.Equal(end))
}
