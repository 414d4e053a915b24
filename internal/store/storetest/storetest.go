// Package storetest provides a conformance suite that every Store backend
// must pass. Backend test packages call Run with a factory that yields a
// fresh, empty store per subtest.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/ocrhub/pagetrack/internal/model"
	"github.com/ocrhub/pagetrack/internal/store"
)

// Factory returns a fresh, empty store. Cleanup is registered on t.
type Factory func(t *testing.T) store.Store

// Run executes the conformance suite against the backend built by f.
func Run(t *testing.T, f Factory) {
	t.Run("CreateRequest", func(t *testing.T) { testCreateRequest(t, f) })
	t.Run("AppendResult", func(t *testing.T) { testAppendResult(t, f) })
	t.Run("AppendStageLog", func(t *testing.T) { testAppendStageLog(t, f) })
	t.Run("GetRequest", func(t *testing.T) { testGetRequest(t, f) })
	t.Run("ListRequestsByPage", func(t *testing.T) { testListRequestsByPage(t, f) })
	t.Run("IsComplete", func(t *testing.T) { testIsComplete(t, f) })
	t.Run("DeleteRequest", func(t *testing.T) { testDeleteRequest(t, f) })
	t.Run("ConcurrentCreate", func(t *testing.T) { testConcurrentCreate(t, f) })
	t.Run("ConcurrentAppend", func(t *testing.T) { testConcurrentAppend(t, f) })
}

func create(t *testing.T, s store.Store, page string, stages ...string) model.ProcessingRequest {
	t.Helper()
	req, err := s.CreateRequest(context.Background(), store.CreateRequestParams{
		PageUUID:         page,
		Priority:         1,
		ProcessingStages: stages,
	})
	require.NoError(t, err)
	return req
}

func logEntry(stage string, status model.StageStatus, start time.Time) model.StageLog {
	return model.StageLog{
		HostID: "worker-test",
		Stage:  stage,
		Start:  start,
		Status: status,
	}
}

func testCreateRequest(t *testing.T, f Factory) {
	ctx := context.Background()

	t.Run("assigns distinct uuids", func(t *testing.T) {
		s := f(t)
		seen := make(map[uuid.UUID]bool)
		for i := 0; i < 20; i++ {
			req := create(t, s, "P1", "ocr")
			assert.False(t, seen[req.UUID], "uuid %s repeated", req.UUID)
			seen[req.UUID] = true
		}
	})

	t.Run("fixes attributes at creation", func(t *testing.T) {
		s := f(t)
		req := create(t, s, "P1", "binarize", "ocr")
		assert.Equal(t, "P1", req.PageUUID)
		assert.Equal(t, []string{"binarize", "ocr"}, req.ProcessingStages)
		assert.False(t, req.StartTime.IsZero())
		assert.Empty(t, req.Results)
		assert.Empty(t, req.Logs)
	})

	t.Run("rejects empty stage list", func(t *testing.T) {
		s := f(t)
		_, err := s.CreateRequest(ctx, store.CreateRequestParams{PageUUID: "P1"})
		assert.ErrorIs(t, err, store.ErrInvalidArgument)
	})

	t.Run("rejects blank stage name", func(t *testing.T) {
		s := f(t)
		_, err := s.CreateRequest(ctx, store.CreateRequestParams{
			PageUUID:         "P1",
			ProcessingStages: []string{"binarize", ""},
		})
		assert.ErrorIs(t, err, store.ErrInvalidArgument)
	})

	t.Run("rejects empty page uuid", func(t *testing.T) {
		s := f(t)
		_, err := s.CreateRequest(ctx, store.CreateRequestParams{
			ProcessingStages: []string{"ocr"},
		})
		assert.ErrorIs(t, err, store.ErrInvalidArgument)
	})
}

func testAppendResult(t *testing.T, f Factory) {
	ctx := context.Background()

	t.Run("preserves call order", func(t *testing.T) {
		s := f(t)
		req := create(t, s, "P1", "ocr")

		names := []string{"img", "page.xml", "alto.xml"}
		for _, name := range names {
			require.NoError(t, s.AppendResult(ctx, req.UUID, model.Data{
				Name:    name,
				Content: []byte(name + "-content"),
			}))
		}

		got, err := s.GetRequest(ctx, req.UUID)
		require.NoError(t, err)
		require.Len(t, got.Results, len(names))
		for i, name := range names {
			assert.Equal(t, name, got.Results[i].Name)
			assert.Equal(t, []byte(name+"-content"), got.Results[i].Content)
		}
	})

	t.Run("unknown uuid", func(t *testing.T) {
		s := f(t)
		err := s.AppendResult(ctx, uuid.New(), model.Data{Name: "img"})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("rejects blank name", func(t *testing.T) {
		s := f(t)
		req := create(t, s, "P1", "ocr")
		err := s.AppendResult(ctx, req.UUID, model.Data{Content: []byte("x")})
		assert.ErrorIs(t, err, store.ErrInvalidArgument)

		got, err := s.GetRequest(ctx, req.UUID)
		require.NoError(t, err)
		assert.Empty(t, got.Results, "failed append must leave no side effect")
	})
}

func testAppendStageLog(t *testing.T, f Factory) {
	ctx := context.Background()
	start := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("preserves call order", func(t *testing.T) {
		s := f(t)
		req := create(t, s, "P1", "binarize", "ocr")

		require.NoError(t, s.AppendStageLog(ctx, req.UUID, logEntry("binarize", model.StatusRunning, start)))
		require.NoError(t, s.AppendStageLog(ctx, req.UUID, logEntry("binarize", model.StatusSuccess, start.Add(time.Second))))
		require.NoError(t, s.AppendStageLog(ctx, req.UUID, logEntry("ocr", model.StatusRunning, start.Add(2*time.Second))))

		got, err := s.GetRequest(ctx, req.UUID)
		require.NoError(t, err)
		require.Len(t, got.Logs, 3)
		assert.Equal(t, "binarize", got.Logs[0].Stage)
		assert.Equal(t, model.StatusSuccess, got.Logs[1].Status)
		assert.Equal(t, "ocr", got.Logs[2].Stage)
	})

	t.Run("round-trips all fields", func(t *testing.T) {
		s := f(t)
		req := create(t, s, "P1", "ocr")

		end := start.Add(90 * time.Second)
		entry := model.StageLog{
			HostID:  "worker-07",
			Stage:   "ocr",
			Start:   start,
			End:     &end,
			Status:  model.StatusFailure,
			Log:     "engine exited with code 2",
			Version: "v2.1.3",
		}
		require.NoError(t, s.AppendStageLog(ctx, req.UUID, entry))

		got, err := s.GetRequest(ctx, req.UUID)
		require.NoError(t, err)
		require.Len(t, got.Logs, 1)
		assert.Equal(t, entry.HostID, got.Logs[0].HostID)
		assert.Equal(t, entry.Log, got.Logs[0].Log)
		assert.Equal(t, entry.Version, got.Logs[0].Version)
		require.NotNil(t, got.Logs[0].End)
		assert.True(t, got.Logs[0].End.Equal(end))
	})

	t.Run("unknown uuid leaves store unchanged", func(t *testing.T) {
		s := f(t)
		req := create(t, s, "P1", "ocr")

		err := s.AppendStageLog(ctx, uuid.New(), logEntry("ocr", model.StatusSuccess, start))
		assert.ErrorIs(t, err, store.ErrNotFound)

		got, err := s.GetRequest(ctx, req.UUID)
		require.NoError(t, err)
		assert.Empty(t, got.Logs)
	})

	t.Run("rejects undeclared stage", func(t *testing.T) {
		s := f(t)
		req := create(t, s, "P1", "binarize", "ocr")
		err := s.AppendStageLog(ctx, req.UUID, logEntry("translate", model.StatusSuccess, start))
		assert.ErrorIs(t, err, store.ErrInvalidArgument)
	})

	t.Run("rejects end before start", func(t *testing.T) {
		s := f(t)
		req := create(t, s, "P1", "ocr")
		end := start.Add(-time.Second)
		entry := logEntry("ocr", model.StatusSuccess, start)
		entry.End = &end
		err := s.AppendStageLog(ctx, req.UUID, entry)
		assert.ErrorIs(t, err, store.ErrInvalidArgument)
	})

	t.Run("rejects out-of-order start for same stage", func(t *testing.T) {
		s := f(t)
		req := create(t, s, "P1", "ocr")
		require.NoError(t, s.AppendStageLog(ctx, req.UUID, logEntry("ocr", model.StatusRetrying, start)))

		err := s.AppendStageLog(ctx, req.UUID, logEntry("ocr", model.StatusSuccess, start.Add(-time.Minute)))
		assert.ErrorIs(t, err, store.ErrInvalidArgument)

		got, err := s.GetRequest(ctx, req.UUID)
		require.NoError(t, err)
		assert.Len(t, got.Logs, 1, "rejected append must leave no side effect")
	})

	t.Run("allows out-of-order start across stages", func(t *testing.T) {
		// Only per-stage monotonicity is enforced; stages may interleave.
		s := f(t)
		req := create(t, s, "P1", "binarize", "ocr")
		require.NoError(t, s.AppendStageLog(ctx, req.UUID, logEntry("ocr", model.StatusRunning, start.Add(time.Hour))))
		require.NoError(t, s.AppendStageLog(ctx, req.UUID, logEntry("binarize", model.StatusSuccess, start)))
	})
}

func testGetRequest(t *testing.T, f Factory) {
	ctx := context.Background()

	t.Run("returns full aggregate", func(t *testing.T) {
		s := f(t)
		req := create(t, s, "P1", "ocr")
		require.NoError(t, s.AppendResult(ctx, req.UUID, model.Data{Name: "img", Content: []byte{0xFF, 0xD8}}))

		got, err := s.GetRequest(ctx, req.UUID)
		require.NoError(t, err)
		assert.Equal(t, req.UUID, got.UUID)
		assert.Equal(t, req.PageUUID, got.PageUUID)
		require.Len(t, got.Results, 1)
	})

	t.Run("returned copy is isolated", func(t *testing.T) {
		s := f(t)
		req := create(t, s, "P1", "ocr")

		got, err := s.GetRequest(ctx, req.UUID)
		require.NoError(t, err)
		got.ProcessingStages[0] = "mutated"
		got.Results = append(got.Results, model.Data{Name: "rogue"})

		again, err := s.GetRequest(ctx, req.UUID)
		require.NoError(t, err)
		assert.Equal(t, []string{"ocr"}, again.ProcessingStages)
		assert.Empty(t, again.Results)
	})

	t.Run("unknown uuid", func(t *testing.T) {
		s := f(t)
		_, err := s.GetRequest(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func testListRequestsByPage(t *testing.T, f Factory) {
	ctx := context.Background()

	t.Run("orders by start time ascending", func(t *testing.T) {
		s := f(t)
		first := create(t, s, "P1", "ocr")
		time.Sleep(5 * time.Millisecond) // distinct millisecond start times
		second := create(t, s, "P1", "ocr")
		create(t, s, "P2", "ocr")

		got, err := s.ListRequestsByPage(ctx, "P1")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, first.UUID, got[0].UUID)
		assert.Equal(t, second.UUID, got[1].UUID)
		assert.False(t, got[0].StartTime.After(got[1].StartTime))
	})

	t.Run("unknown page yields empty", func(t *testing.T) {
		s := f(t)
		got, err := s.ListRequestsByPage(ctx, "never-seen")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func testIsComplete(t *testing.T, f Factory) {
	ctx := context.Background()
	start := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("requires a terminal log per stage", func(t *testing.T) {
		s := f(t)
		req := create(t, s, "P1", "binarize", "ocr")

		done, err := s.IsComplete(ctx, req.UUID)
		require.NoError(t, err)
		assert.False(t, done)

		require.NoError(t, s.AppendStageLog(ctx, req.UUID, logEntry("binarize", model.StatusSuccess, start)))
		done, err = s.IsComplete(ctx, req.UUID)
		require.NoError(t, err)
		assert.False(t, done, "ocr has no log yet")

		require.NoError(t, s.AppendStageLog(ctx, req.UUID, logEntry("ocr", model.StatusRetrying, start.Add(time.Second))))
		done, err = s.IsComplete(ctx, req.UUID)
		require.NoError(t, err)
		assert.False(t, done, "retrying is not terminal")

		require.NoError(t, s.AppendStageLog(ctx, req.UUID, logEntry("ocr", model.StatusSuccess, start.Add(2*time.Second))))
		done, err = s.IsComplete(ctx, req.UUID)
		require.NoError(t, err)
		assert.True(t, done)
	})

	t.Run("failure is terminal", func(t *testing.T) {
		s := f(t)
		req := create(t, s, "P1", "ocr")
		require.NoError(t, s.AppendStageLog(ctx, req.UUID, logEntry("ocr", model.StatusFailure, start)))

		done, err := s.IsComplete(ctx, req.UUID)
		require.NoError(t, err)
		assert.True(t, done)
	})

	t.Run("unknown uuid", func(t *testing.T) {
		s := f(t)
		_, err := s.IsComplete(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func testDeleteRequest(t *testing.T, f Factory) {
	ctx := context.Background()

	t.Run("removes the whole aggregate", func(t *testing.T) {
		s := f(t)
		req := create(t, s, "P1", "ocr")
		keep := create(t, s, "P1", "ocr")

		require.NoError(t, s.DeleteRequest(ctx, req.UUID))

		_, err := s.GetRequest(ctx, req.UUID)
		assert.ErrorIs(t, err, store.ErrNotFound)

		got, err := s.ListRequestsByPage(ctx, "P1")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, keep.UUID, got[0].UUID)
	})

	t.Run("unknown uuid", func(t *testing.T) {
		s := f(t)
		err := s.DeleteRequest(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func testConcurrentCreate(t *testing.T, f Factory) {
	s := f(t)

	const n = 32
	results := make([]uuid.UUID, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			req, err := s.CreateRequest(context.Background(), store.CreateRequestParams{
				PageUUID:         "P1",
				ProcessingStages: []string{"ocr"},
			})
			if err != nil {
				return err
			}
			results[i] = req.UUID
			return nil
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[uuid.UUID]bool, n)
	for _, id := range results {
		assert.False(t, seen[id])
		seen[id] = true
	}

	got, err := s.ListRequestsByPage(context.Background(), "P1")
	require.NoError(t, err)
	assert.Len(t, got, n)
}

func testConcurrentAppend(t *testing.T, f Factory) {
	// Appends against the same uuid must serialize: after the dust settles
	// every append is present exactly once and per-stage order holds.
	s := f(t)
	ctx := context.Background()
	req := create(t, s, "P1", "ocr")

	start := time.Now().UTC().Truncate(time.Millisecond)
	const n = 16
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			return s.AppendResult(ctx, req.UUID, model.Data{
				Name:    "artifact",
				Content: []byte{byte(i)},
			})
		})
		g.Go(func() error {
			// Same start for every entry keeps per-stage monotonicity
			// satisfiable regardless of interleaving.
			return s.AppendStageLog(ctx, req.UUID, logEntry("ocr", model.StatusRetrying, start))
		})
	}
	require.NoError(t, g.Wait())

	got, err := s.GetRequest(ctx, req.UUID)
	require.NoError(t, err)
	assert.Len(t, got.Results, n)
	assert.Len(t, got.Logs, n)
}
