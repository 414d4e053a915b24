package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ocrhub/pagetrack/internal/model"
	"github.com/ocrhub/pagetrack/internal/telemetry"
)

// WithInstrumentation wraps a Store so that every operation runs inside an
// OpenTelemetry span carrying the request and page identifiers, and is
// counted and timed through the global meter. With the global providers
// unset this is a no-op wrapper.
func WithInstrumentation(next Store) Store {
	meter := telemetry.Meter("pagetrack/store")
	ops, _ := meter.Int64Counter("pagetrack.store.operations",
		metric.WithDescription("Store operations by name and outcome"),
	)
	dur, _ := meter.Float64Histogram("pagetrack.store.duration",
		metric.WithDescription("Store operation duration (ms)"),
		metric.WithUnit("ms"),
	)
	return &instrumentedStore{
		next:       next,
		tracer:     otel.Tracer("github.com/ocrhub/pagetrack/internal/store"),
		operations: ops,
		duration:   dur,
	}
}

type instrumentedStore struct {
	next   Store
	tracer trace.Tracer

	operations metric.Int64Counter
	duration   metric.Float64Histogram
}

func (s *instrumentedStore) CreateRequest(ctx context.Context, params CreateRequestParams) (model.ProcessingRequest, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "store.CreateRequest",
		trace.WithAttributes(
			attribute.String("pagetrack.page_uuid", params.PageUUID),
			attribute.Int("pagetrack.stages", len(params.ProcessingStages)),
		))
	defer span.End()

	req, err := s.next.CreateRequest(ctx, params)
	if err != nil {
		return req, s.finish(ctx, span, "CreateRequest", start, err)
	}
	span.SetAttributes(attribute.String("pagetrack.request_uuid", req.UUID.String()))
	return req, s.finish(ctx, span, "CreateRequest", start, nil)
}

func (s *instrumentedStore) AppendResult(ctx context.Context, id uuid.UUID, data model.Data) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "store.AppendResult",
		trace.WithAttributes(
			attribute.String("pagetrack.request_uuid", id.String()),
			attribute.String("pagetrack.result_name", data.Name),
			attribute.Int("pagetrack.result_bytes", len(data.Content)),
		))
	defer span.End()

	return s.finish(ctx, span, "AppendResult", start, s.next.AppendResult(ctx, id, data))
}

func (s *instrumentedStore) AppendStageLog(ctx context.Context, id uuid.UUID, entry model.StageLog) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "store.AppendStageLog",
		trace.WithAttributes(
			attribute.String("pagetrack.request_uuid", id.String()),
			attribute.String("pagetrack.stage", entry.Stage),
			attribute.String("pagetrack.status", string(entry.Status)),
		))
	defer span.End()

	return s.finish(ctx, span, "AppendStageLog", start, s.next.AppendStageLog(ctx, id, entry))
}

func (s *instrumentedStore) GetRequest(ctx context.Context, id uuid.UUID) (model.ProcessingRequest, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "store.GetRequest",
		trace.WithAttributes(attribute.String("pagetrack.request_uuid", id.String())))
	defer span.End()

	req, err := s.next.GetRequest(ctx, id)
	return req, s.finish(ctx, span, "GetRequest", start, err)
}

func (s *instrumentedStore) ListRequestsByPage(ctx context.Context, pageUUID string) ([]model.ProcessingRequest, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "store.ListRequestsByPage",
		trace.WithAttributes(attribute.String("pagetrack.page_uuid", pageUUID)))
	defer span.End()

	reqs, err := s.next.ListRequestsByPage(ctx, pageUUID)
	if err == nil {
		span.SetAttributes(attribute.Int("pagetrack.requests", len(reqs)))
	}
	return reqs, s.finish(ctx, span, "ListRequestsByPage", start, err)
}

func (s *instrumentedStore) IsComplete(ctx context.Context, id uuid.UUID) (bool, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "store.IsComplete",
		trace.WithAttributes(attribute.String("pagetrack.request_uuid", id.String())))
	defer span.End()

	done, err := s.next.IsComplete(ctx, id)
	return done, s.finish(ctx, span, "IsComplete", start, err)
}

func (s *instrumentedStore) DeleteRequest(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "store.DeleteRequest",
		trace.WithAttributes(attribute.String("pagetrack.request_uuid", id.String())))
	defer span.End()

	return s.finish(ctx, span, "DeleteRequest", start, s.next.DeleteRequest(ctx, id))
}

func (s *instrumentedStore) Close(ctx context.Context) error {
	return s.next.Close(ctx)
}

// finish records the operation's outcome on both the span and the metric
// instruments, then passes err through.
func (s *instrumentedStore) finish(ctx context.Context, span trace.Span, op string, start time.Time, err error) error {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	attrs := metric.WithAttributes(
		attribute.String("pagetrack.operation", op),
		attribute.Bool("pagetrack.error", err != nil),
	)
	s.operations.Add(ctx, 1, attrs)
	s.duration.Record(ctx, float64(time.Since(start).Microseconds())/1000, attrs)
	return err
}
