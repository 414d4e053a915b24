package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureRequest(t *testing.T) ProcessingRequest {
	t.Helper()
	end := time.Date(2024, 6, 1, 12, 0, 6, 250_000_000, time.UTC)
	return ProcessingRequest{
		UUID:             uuid.MustParse("6b1f6e30-9c3a-4d54-8f2a-0c9a6f6f2b11"),
		PageUUID:         "c3a1f0de-5c1b-4a5e-9d2e-7a1b2c3d4e5f",
		Priority:         3,
		StartTime:        time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		ProcessingStages: []string{"binarize", "ocr"},
		Results: []Data{
			{Name: "img", Content: []byte("fake-image-bytes")},
			{Name: "page.xml", Content: []byte("<xml/>")},
		},
		Logs: []StageLog{
			{
				HostID:  "worker-01",
				Stage:   "binarize",
				Start:   time.Date(2024, 6, 1, 12, 0, 5, 125_000_000, time.UTC),
				End:     &end,
				Status:  StatusSuccess,
				Log:     "binarized 1 page",
				Version: "v1.4.0",
			},
			{
				HostID: "worker-02",
				Stage:  "ocr",
				Start:  time.Date(2024, 6, 1, 12, 0, 7, 0, time.UTC),
				Status: StatusRunning,
			},
		},
	}
}

func TestEncodeRequest_Golden(t *testing.T) {
	g := goldie.New(t)

	b, err := EncodeRequest(fixtureRequest(t))
	require.NoError(t, err)
	g.Assert(t, "request", b)
}

func TestEncodeStageLog_Golden(t *testing.T) {
	g := goldie.New(t)

	end := time.Date(2024, 6, 1, 12, 0, 9, 500_000_000, time.UTC)
	b, err := EncodeStageLog(StageLog{
		HostID:  "worker-01",
		Stage:   "ocr",
		Start:   time.Date(2024, 6, 1, 12, 0, 7, 0, time.UTC),
		End:     &end,
		Status:  StatusFailure,
		Log:     "engine crashed",
		Version: "v1.4.0",
	})
	require.NoError(t, err)
	g.Assert(t, "stage_log", b)
}

func TestEncodeData_Golden(t *testing.T) {
	g := goldie.New(t)

	b, err := EncodeData(Data{Name: "img", Content: []byte("fake-image-bytes")})
	require.NoError(t, err)
	g.Assert(t, "data", b)
}

func TestRequestRoundTrip(t *testing.T) {
	orig := fixtureRequest(t)

	b, err := EncodeRequest(orig)
	require.NoError(t, err)

	got, err := DecodeRequest(b)
	require.NoError(t, err)
	assert.Equal(t, orig, got)
}

func TestEncodeRequest_NormalizesTimestamps(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	r := ProcessingRequest{
		UUID:             uuid.New(),
		PageUUID:         "p",
		StartTime:        time.Date(2024, 6, 1, 13, 0, 0, 999_999, loc), // sub-ms, non-UTC
		ProcessingStages: []string{"ocr"},
	}

	b, err := EncodeRequest(r)
	require.NoError(t, err)

	got, err := DecodeRequest(b)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), got.StartTime)
	assert.Equal(t, time.UTC, got.StartTime.Location())
}

func TestDecodeStageLog_RejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"end before start": `{"stage":"ocr","start":"2024-06-01T12:00:07Z","end":"2024-06-01T12:00:06Z","status":"success"}`,
		"unknown status":   `{"stage":"ocr","start":"2024-06-01T12:00:07Z","status":"exploded"}`,
		"empty stage":      `{"stage":"","start":"2024-06-01T12:00:07Z","status":"success"}`,
		"zero start":       `{"stage":"ocr","status":"success"}`,
		"not json":         `{{`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeStageLog([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestDecodeRequest_RejectsInvalidEmbedded(t *testing.T) {
	base := `{"uuid":"6b1f6e30-9c3a-4d54-8f2a-0c9a6f6f2b11","page_uuid":"p",` +
		`"start_time":"2024-06-01T12:00:00Z","processing_stages":["ocr"]`
	cases := map[string]string{
		"nameless result": base + `,"results":[{"name":"","content":"eA=="}]}`,
		"invalid log":     base + `,"logs":[{"stage":"","start":"2024-06-01T12:00:07Z","status":"success"}]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeRequest([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestDecodeData_RejectsEmptyName(t *testing.T) {
	_, err := DecodeData([]byte(`{"name":"","content":""}`))
	assert.Error(t, err)
}
