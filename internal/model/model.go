// Package model defines the core domain types for pagetrack.
//
// All types correspond directly to the wire schema for processing requests
// (see wire.go for the ordinal-to-field contract). Types use strong typing
// (UUIDs, time.Time, enums) and avoid interface{} wherever possible.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Data is a single named artifact produced by processing.
// Immutable once attached to a request. By convention the first result of a
// request holds the source page image.
type Data struct {
	Name    string `json:"name"`
	Content []byte `json:"content"`
}

// Validate checks that the artifact is well formed.
func (d Data) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("model: data name must not be empty")
	}
	return nil
}

// StageLog is an immutable record of one stage execution. Append-only: once
// recorded it is never mutated or deleted; corrections are made by appending
// a new entry for the same stage.
type StageLog struct {
	// HostID identifies the worker that executed the stage.
	HostID string `json:"host_id"`
	// Stage must match an entry in the owning request's ProcessingStages.
	Stage string    `json:"stage"`
	Start time.Time `json:"start"`
	// End is nil while the stage is in flight. Once set, End >= Start.
	End    *time.Time  `json:"end,omitempty"`
	Status StageStatus `json:"status"`
	// Log holds free-text diagnostic output from the stage.
	Log string `json:"log,omitempty"`
	// Version identifies the processing code version that ran the stage.
	Version string `json:"version,omitempty"`
}

// Validate checks intra-record consistency. Cross-checking Stage against the
// owning request's pipeline is the store's responsibility.
func (l StageLog) Validate() error {
	if l.Stage == "" {
		return fmt.Errorf("model: stage log has empty stage name")
	}
	if l.Start.IsZero() {
		return fmt.Errorf("model: stage log for %q has zero start time", l.Stage)
	}
	if !l.Status.Valid() {
		return fmt.Errorf("model: stage log for %q has unknown status %q", l.Stage, l.Status)
	}
	if l.End != nil && l.End.Before(l.Start) {
		return fmt.Errorf("model: stage log for %q ends before it starts", l.Stage)
	}
	return nil
}

// ProcessingRequest is the aggregate root: one execution instance of a
// processing pipeline against a page. UUID, PageUUID, Priority, StartTime
// and ProcessingStages are fixed at creation; Results and Logs only grow.
type ProcessingRequest struct {
	UUID     uuid.UUID `json:"uuid"`
	PageUUID string    `json:"page_uuid"`
	// Priority orders requests for scheduling. Higher values are preferred,
	// matching AMQP message priority semantics.
	Priority  int32     `json:"priority"`
	StartTime time.Time `json:"start_time"`
	// ProcessingStages is the ordered pipeline contract for this request.
	// StageLog entries are validated against it.
	ProcessingStages []string   `json:"processing_stages"`
	Results          []Data     `json:"results,omitempty"`
	Logs             []StageLog `json:"logs,omitempty"`
}

// HasStage reports whether name is one of the request's declared stages.
func (r ProcessingRequest) HasStage(name string) bool {
	for _, s := range r.ProcessingStages {
		if s == name {
			return true
		}
	}
	return false
}

// LastLogFor returns the most recently appended log entry for the given
// stage, or nil if the stage has not been logged yet.
func (r ProcessingRequest) LastLogFor(stage string) *StageLog {
	for i := len(r.Logs) - 1; i >= 0; i-- {
		if r.Logs[i].Stage == stage {
			return &r.Logs[i]
		}
	}
	return nil
}

// Complete reports whether every declared stage has at least one log entry
// with a terminal status.
func (r ProcessingRequest) Complete() bool {
	for _, stage := range r.ProcessingStages {
		if !r.stageDone(stage) {
			return false
		}
	}
	return true
}

func (r ProcessingRequest) stageDone(stage string) bool {
	for _, l := range r.Logs {
		if l.Stage == stage && l.Status.Terminal() {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the request. Stores hand out clones so that
// callers can never mutate shared state through a returned aggregate.
func (r ProcessingRequest) Clone() ProcessingRequest {
	out := r
	out.ProcessingStages = append([]string(nil), r.ProcessingStages...)
	if r.Results != nil {
		out.Results = make([]Data, len(r.Results))
		for i, d := range r.Results {
			out.Results[i] = Data{Name: d.Name, Content: append([]byte(nil), d.Content...)}
		}
	}
	if r.Logs != nil {
		out.Logs = make([]StageLog, len(r.Logs))
		for i, l := range r.Logs {
			out.Logs[i] = l
			if l.End != nil {
				end := *l.End
				out.Logs[i].End = &end
			}
		}
	}
	return out
}
