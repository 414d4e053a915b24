// Package store defines the processing-request store contract and provides
// the in-memory backend.
//
// A Store is the single source of truth for what a processing request has
// done so far: its fixed stage pipeline, its appended result artifacts and
// its append-only stage logs. Backends exist for memory (this package),
// SQLite (internal/sqlite) and Postgres (internal/storage); all satisfy the
// same interface and the same validation rules.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ocrhub/pagetrack/internal/model"
)

// ErrNotFound is returned when an operation references a request uuid that
// is not present in the store.
var ErrNotFound = errors.New("store: request not found")

// ErrInvalidArgument is returned for malformed input: an empty stage list,
// a blank stage name, a log entry for an undeclared stage, an end timestamp
// before start, or an out-of-order start for a stage.
var ErrInvalidArgument = errors.New("store: invalid argument")

// CreateRequestParams are the caller-supplied attributes of a new request.
// Everything else (uuid, start time) is assigned by the store.
type CreateRequestParams struct {
	PageUUID string
	// Priority orders requests for scheduling; higher values are preferred.
	Priority int32
	// ProcessingStages is the ordered pipeline the request must execute.
	// Must be non-empty with no blank names; fixed after creation.
	ProcessingStages []string
}

// Validate checks the parameters against the creation rules.
func (p CreateRequestParams) Validate() error {
	if p.PageUUID == "" {
		return errors.New("page uuid must not be empty")
	}
	if len(p.ProcessingStages) == 0 {
		return errors.New("processing stages must not be empty")
	}
	for _, s := range p.ProcessingStages {
		if s == "" {
			return errors.New("processing stages must not contain blank names")
		}
	}
	return nil
}

// Store is the bookkeeping boundary for processing requests.
//
// Appends against the same uuid are serialized by the implementation;
// operations against different uuids may run fully in parallel. Reads may
// run concurrently with appends but observe either the pre- or post-append
// state. Every operation either fully applies or fails with no side effect,
// reporting ErrNotFound or ErrInvalidArgument (wrapped, errors.Is-matchable).
type Store interface {
	// CreateRequest registers a new request with a fresh uuid and the
	// current time as start time, and returns the stored aggregate.
	CreateRequest(ctx context.Context, params CreateRequestParams) (model.ProcessingRequest, error)

	// AppendResult appends an artifact to the request's results. Ordering
	// of results reflects call order.
	AppendResult(ctx context.Context, id uuid.UUID, data model.Data) error

	// AppendStageLog appends an execution record to the request's logs.
	// The entry's stage must be declared in the request's pipeline, and its
	// start must not precede the start of the stage's latest entry.
	AppendStageLog(ctx context.Context, id uuid.UUID, entry model.StageLog) error

	// GetRequest returns a read-only copy of the full aggregate.
	GetRequest(ctx context.Context, id uuid.UUID) (model.ProcessingRequest, error)

	// ListRequestsByPage returns all requests referencing a page, ordered
	// by start time ascending.
	ListRequestsByPage(ctx context.Context, pageUUID string) ([]model.ProcessingRequest, error)

	// IsComplete reports whether every declared stage has at least one log
	// entry with a terminal status.
	IsComplete(ctx context.Context, id uuid.UUID) (bool, error)

	// DeleteRequest removes a request and everything it owns. This is the
	// only deletion the model permits; retention policy belongs to the
	// caller.
	DeleteRequest(ctx context.Context, id uuid.UUID) error

	// Close releases backend resources.
	Close(ctx context.Context) error
}

// ValidateAppend applies the append-time rules shared by all backends:
// the entry must be internally consistent, reference a declared stage, and
// not start before the latest entry for the same stage (append order must
// equal temporal order of stage starts).
func ValidateAppend(r model.ProcessingRequest, entry model.StageLog) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	if !r.HasStage(entry.Stage) {
		return errors.New("stage " + entry.Stage + " is not declared in the request pipeline")
	}
	if last := r.LastLogFor(entry.Stage); last != nil && entry.Start.Before(last.Start) {
		return errors.New("stage " + entry.Stage + " log starts before the previous entry for that stage")
	}
	return nil
}
