package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Wire codec for the three record types.
//
// The encoding is JSON keyed by the schema's field names. The schema's
// implicit field ordinals are a stable contract; they map to field names as
// follows and must never be renumbered:
//
//	Data               1 name, 2 content
//	StageLog           1 host_id, 2 stage, 3 start, 4 end, 5 status,
//	                   6 log, 7 version
//	ProcessingRequest  1 uuid, 2 page_uuid, 3 priority, 4 start_time,
//	                   5 processing_stages, 6 results, 7 logs
//
// Timestamps are wall-clock UTC instants with millisecond precision
// (RFC 3339). Content bytes are base64.

// EncodeRequest serializes a request, normalizing all timestamps.
func EncodeRequest(r ProcessingRequest) ([]byte, error) {
	n := r.Clone()
	n.StartTime = normalize(n.StartTime)
	for i := range n.Logs {
		n.Logs[i].Start = normalize(n.Logs[i].Start)
		if n.Logs[i].End != nil {
			end := normalize(*n.Logs[i].End)
			n.Logs[i].End = &end
		}
	}
	b, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("model: encode request: %w", err)
	}
	return b, nil
}

// DecodeRequest deserializes a request and validates it structurally.
func DecodeRequest(b []byte) (ProcessingRequest, error) {
	var r ProcessingRequest
	if err := json.Unmarshal(b, &r); err != nil {
		return ProcessingRequest{}, fmt.Errorf("model: decode request: %w", err)
	}
	for _, d := range r.Results {
		if err := d.Validate(); err != nil {
			return ProcessingRequest{}, fmt.Errorf("model: decode request: %w", err)
		}
	}
	for _, l := range r.Logs {
		if err := l.Validate(); err != nil {
			return ProcessingRequest{}, fmt.Errorf("model: decode request: %w", err)
		}
	}
	return r, nil
}

// EncodeStageLog serializes a single stage log record.
func EncodeStageLog(l StageLog) ([]byte, error) {
	l.Start = normalize(l.Start)
	if l.End != nil {
		end := normalize(*l.End)
		l.End = &end
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("model: encode stage log: %w", err)
	}
	return b, nil
}

// DecodeStageLog deserializes and validates a single stage log record.
func DecodeStageLog(b []byte) (StageLog, error) {
	var l StageLog
	if err := json.Unmarshal(b, &l); err != nil {
		return StageLog{}, fmt.Errorf("model: decode stage log: %w", err)
	}
	if err := l.Validate(); err != nil {
		return StageLog{}, fmt.Errorf("model: decode stage log: %w", err)
	}
	return l, nil
}

// EncodeData serializes a single artifact record.
func EncodeData(d Data) ([]byte, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("model: encode data: %w", err)
	}
	return b, nil
}

// DecodeData deserializes and validates a single artifact record.
func DecodeData(b []byte) (Data, error) {
	var d Data
	if err := json.Unmarshal(b, &d); err != nil {
		return Data{}, fmt.Errorf("model: decode data: %w", err)
	}
	if err := d.Validate(); err != nil {
		return Data{}, fmt.Errorf("model: decode data: %w", err)
	}
	return d, nil
}

// normalize truncates to millisecond precision and converts to UTC.
func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
