package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ocrhub/pagetrack/internal/model"
)

// Memory is the in-memory Store backend.
//
// The registry map is guarded by an RWMutex; each request additionally
// carries its own mutex, so appends to the same uuid serialize while
// operations on different uuids proceed in parallel. All returned
// aggregates are deep copies.
type Memory struct {
	mu       sync.RWMutex
	requests map[uuid.UUID]*memRequest
	byPage   map[string][]uuid.UUID

	// now is the clock used for start times. Overridable in tests.
	now func() time.Time
}

type memRequest struct {
	mu  sync.Mutex
	req model.ProcessingRequest
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		requests: make(map[uuid.UUID]*memRequest),
		byPage:   make(map[string][]uuid.UUID),
		now:      time.Now,
	}
}

// CreateRequest implements Store.
func (m *Memory) CreateRequest(_ context.Context, params CreateRequestParams) (model.ProcessingRequest, error) {
	if err := params.Validate(); err != nil {
		return model.ProcessingRequest{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New()
	for m.requests[id] != nil {
		id = uuid.New()
	}

	req := model.ProcessingRequest{
		UUID:             id,
		PageUUID:         params.PageUUID,
		Priority:         params.Priority,
		StartTime:        m.now().UTC().Truncate(time.Millisecond),
		ProcessingStages: append([]string(nil), params.ProcessingStages...),
	}
	m.requests[id] = &memRequest{req: req}
	m.byPage[params.PageUUID] = append(m.byPage[params.PageUUID], id)

	return req.Clone(), nil
}

// AppendResult implements Store.
func (m *Memory) AppendResult(_ context.Context, id uuid.UUID, data model.Data) error {
	if err := data.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	rec, err := m.lookup(id)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.req.Results = append(rec.req.Results, model.Data{
		Name:    data.Name,
		Content: append([]byte(nil), data.Content...),
	})
	return nil
}

// AppendStageLog implements Store.
func (m *Memory) AppendStageLog(_ context.Context, id uuid.UUID, entry model.StageLog) error {
	rec, err := m.lookup(id)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if err := ValidateAppend(rec.req, entry); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if entry.End != nil {
		end := *entry.End
		entry.End = &end
	}
	rec.req.Logs = append(rec.req.Logs, entry)
	return nil
}

// GetRequest implements Store.
func (m *Memory) GetRequest(_ context.Context, id uuid.UUID) (model.ProcessingRequest, error) {
	rec, err := m.lookup(id)
	if err != nil {
		return model.ProcessingRequest{}, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.req.Clone(), nil
}

// ListRequestsByPage implements Store.
func (m *Memory) ListRequestsByPage(_ context.Context, pageUUID string) ([]model.ProcessingRequest, error) {
	m.mu.RLock()
	ids := append([]uuid.UUID(nil), m.byPage[pageUUID]...)
	recs := make([]*memRequest, 0, len(ids))
	for _, id := range ids {
		if rec, ok := m.requests[id]; ok {
			recs = append(recs, rec)
		}
	}
	m.mu.RUnlock()

	out := make([]model.ProcessingRequest, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		out = append(out, rec.req.Clone())
		rec.mu.Unlock()
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, nil
}

// IsComplete implements Store.
func (m *Memory) IsComplete(_ context.Context, id uuid.UUID) (bool, error) {
	rec, err := m.lookup(id)
	if err != nil {
		return false, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.req.Complete(), nil
}

// DeleteRequest implements Store.
func (m *Memory) DeleteRequest(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.requests[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.requests, id)

	page := rec.req.PageUUID
	ids := m.byPage[page]
	for i, other := range ids {
		if other == id {
			m.byPage[page] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(m.byPage[page]) == 0 {
		delete(m.byPage, page)
	}
	return nil
}

// Close implements Store. The memory backend holds no external resources.
func (m *Memory) Close(context.Context) error {
	return nil
}

func (m *Memory) lookup(id uuid.UUID) (*memRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.requests[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, nil
}
