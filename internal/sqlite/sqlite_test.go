package sqlite_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocrhub/pagetrack/internal/model"
	"github.com/ocrhub/pagetrack/internal/sqlite"
	"github.com/ocrhub/pagetrack/internal/store"
	"github.com/ocrhub/pagetrack/internal/store/storetest"
	"github.com/ocrhub/pagetrack/migrations"
)

func openTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "pagetrack.db"),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(context.Background()) })

	require.NoError(t, db.RunMigrations(context.Background(), migrations.SQLite))
	return db
}

func TestSQLiteConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return openTestDB(t)
	})
}

func TestSQLiteMigrationsAreIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.RunMigrations(context.Background(), migrations.SQLite))
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pagetrack.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := sqlite.Open(path, logger)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations(ctx, migrations.SQLite))

	req, err := db.CreateRequest(ctx, store.CreateRequestParams{
		PageUUID:         "P-reopen",
		Priority:         2,
		ProcessingStages: []string{"binarize", "ocr"},
	})
	require.NoError(t, err)
	require.NoError(t, db.AppendResult(ctx, req.UUID, model.Data{Name: "img", Content: []byte{0x1}}))
	require.NoError(t, db.Close(ctx))

	db, err = sqlite.Open(path, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(context.Background()) })

	got, err := db.GetRequest(ctx, req.UUID)
	require.NoError(t, err)
	assert.Equal(t, req.PageUUID, got.PageUUID)
	assert.Equal(t, req.ProcessingStages, got.ProcessingStages)
	assert.True(t, req.StartTime.Equal(got.StartTime))
	require.Len(t, got.Results, 1)
	assert.Equal(t, "img", got.Results[0].Name)
}

func TestSQLiteDeleteCascades(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	req, err := db.CreateRequest(ctx, store.CreateRequestParams{
		PageUUID:         "P-cascade",
		ProcessingStages: []string{"ocr"},
	})
	require.NoError(t, err)
	require.NoError(t, db.AppendResult(ctx, req.UUID, model.Data{Name: "img"}))
	require.NoError(t, db.AppendStageLog(ctx, req.UUID, model.StageLog{
		Stage:  "ocr",
		Start:  req.StartTime,
		Status: model.StatusSuccess,
	}))

	require.NoError(t, db.DeleteRequest(ctx, req.UUID))

	// Recreating a request must not resurrect any orphaned children.
	again, err := db.CreateRequest(ctx, store.CreateRequestParams{
		PageUUID:         "P-cascade",
		ProcessingStages: []string{"ocr"},
	})
	require.NoError(t, err)
	got, err := db.GetRequest(ctx, again.UUID)
	require.NoError(t, err)
	assert.Empty(t, got.Results)
	assert.Empty(t, got.Logs)
}
