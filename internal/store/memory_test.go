package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/ocrhub/pagetrack/internal/store"
	"github.com/ocrhub/pagetrack/internal/store/storetest"
)

func TestMemoryConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return store.NewMemory()
	})
}

func TestMemoryStartTimeIsUTCMilliseconds(t *testing.T) {
	s := store.NewMemory()
	req, err := s.CreateRequest(context.Background(), store.CreateRequestParams{
		PageUUID:         "P1",
		ProcessingStages: []string{"ocr"},
	})
	require.NoError(t, err)

	assert.Equal(t, time.UTC, req.StartTime.Location())
	assert.Equal(t, req.StartTime, req.StartTime.Truncate(time.Millisecond))
}

func TestMemoryInstrumentationWrapper(t *testing.T) {
	// No providers are configured, so spans and instruments are no-ops; the
	// wrapper must still delegate faithfully.
	storetest.Run(t, func(t *testing.T) store.Store {
		return store.WithInstrumentation(store.NewMemory())
	})
}

func TestInstrumentationRecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(mp)
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	ctx := context.Background()
	s := store.WithInstrumentation(store.NewMemory())

	req, err := s.CreateRequest(ctx, store.CreateRequestParams{
		PageUUID:         "P1",
		ProcessingStages: []string{"ocr"},
	})
	require.NoError(t, err)
	_, err = s.GetRequest(ctx, req.UUID)
	require.NoError(t, err)
	_, err = s.GetRequest(ctx, uuid.New())
	require.ErrorIs(t, err, store.ErrNotFound)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	byName := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			byName[m.Name] = m
		}
	}

	opsMetric, ok := byName["pagetrack.store.operations"]
	require.True(t, ok, "operation counter missing from export")
	sum, ok := opsMetric.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	var total int64
	sawError := false
	for _, dp := range sum.DataPoints {
		total += dp.Value
		if v, found := dp.Attributes.Value("pagetrack.error"); found && v.AsBool() {
			sawError = true
		}
	}
	assert.EqualValues(t, 3, total)
	assert.True(t, sawError, "failed GetRequest must count as an error")

	_, ok = byName["pagetrack.store.duration"]
	assert.True(t, ok, "duration histogram missing from export")
}
