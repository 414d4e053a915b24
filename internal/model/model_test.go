package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageStatus(t *testing.T) {
	t.Run("closed set", func(t *testing.T) {
		for _, s := range []StageStatus{StatusPending, StatusRunning, StatusSuccess, StatusFailure, StatusRetrying} {
			assert.True(t, s.Valid(), string(s))
		}
		assert.False(t, StageStatus("").Valid())
		assert.False(t, StageStatus("SUCCESS").Valid())
	})

	t.Run("terminal", func(t *testing.T) {
		assert.True(t, StatusSuccess.Terminal())
		assert.True(t, StatusFailure.Terminal())
		assert.False(t, StatusPending.Terminal())
		assert.False(t, StatusRunning.Terminal())
		assert.False(t, StatusRetrying.Terminal())
	})
}

func TestStageLogValidate(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("ok in flight", func(t *testing.T) {
		l := StageLog{Stage: "ocr", Start: start, Status: StatusRunning}
		assert.NoError(t, l.Validate())
	})

	t.Run("ok complete", func(t *testing.T) {
		end := start.Add(time.Second)
		l := StageLog{Stage: "ocr", Start: start, End: &end, Status: StatusSuccess}
		assert.NoError(t, l.Validate())
	})

	t.Run("end equals start is allowed", func(t *testing.T) {
		end := start
		l := StageLog{Stage: "ocr", Start: start, End: &end, Status: StatusSuccess}
		assert.NoError(t, l.Validate())
	})

	t.Run("end before start", func(t *testing.T) {
		end := start.Add(-time.Millisecond)
		l := StageLog{Stage: "ocr", Start: start, End: &end, Status: StatusSuccess}
		assert.Error(t, l.Validate())
	})

	t.Run("empty stage", func(t *testing.T) {
		l := StageLog{Start: start, Status: StatusSuccess}
		assert.Error(t, l.Validate())
	})

	t.Run("zero start", func(t *testing.T) {
		l := StageLog{Stage: "ocr", Status: StatusSuccess}
		assert.Error(t, l.Validate())
	})

	t.Run("unknown status", func(t *testing.T) {
		l := StageLog{Stage: "ocr", Start: start, Status: "done"}
		assert.Error(t, l.Validate())
	})
}

func TestProcessingRequestComplete(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	r := ProcessingRequest{
		UUID:             uuid.New(),
		PageUUID:         "P1",
		StartTime:        start,
		ProcessingStages: []string{"binarize", "ocr"},
	}

	assert.False(t, r.Complete(), "no logs yet")

	r.Logs = append(r.Logs, StageLog{Stage: "binarize", Start: start, Status: StatusSuccess})
	assert.False(t, r.Complete(), "ocr still outstanding")

	r.Logs = append(r.Logs, StageLog{Stage: "ocr", Start: start.Add(time.Second), Status: StatusRetrying})
	assert.False(t, r.Complete(), "retrying is not terminal")

	r.Logs = append(r.Logs, StageLog{Stage: "ocr", Start: start.Add(2 * time.Second), Status: StatusFailure})
	assert.True(t, r.Complete(), "permanent failure is terminal")
}

func TestLastLogFor(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	r := ProcessingRequest{
		ProcessingStages: []string{"ocr"},
		Logs: []StageLog{
			{Stage: "ocr", Start: start, Status: StatusRetrying, HostID: "a"},
			{Stage: "ocr", Start: start.Add(time.Minute), Status: StatusSuccess, HostID: "b"},
		},
	}

	last := r.LastLogFor("ocr")
	require.NotNil(t, last)
	assert.Equal(t, "b", last.HostID)

	assert.Nil(t, r.LastLogFor("binarize"))
}

func TestClone_IsDeep(t *testing.T) {
	end := time.Date(2024, 6, 1, 12, 0, 1, 0, time.UTC)
	r := ProcessingRequest{
		UUID:             uuid.New(),
		ProcessingStages: []string{"ocr"},
		Results:          []Data{{Name: "img", Content: []byte{1, 2, 3}}},
		Logs:             []StageLog{{Stage: "ocr", Start: end.Add(-time.Second), End: &end, Status: StatusSuccess}},
	}

	c := r.Clone()
	c.ProcessingStages[0] = "mutated"
	c.Results[0].Content[0] = 9
	*c.Logs[0].End = end.Add(time.Hour)

	assert.Equal(t, "ocr", r.ProcessingStages[0])
	assert.Equal(t, byte(1), r.Results[0].Content[0])
	assert.Equal(t, end, *r.Logs[0].End)
}
