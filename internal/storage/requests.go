package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ocrhub/pagetrack/internal/model"
	"github.com/ocrhub/pagetrack/internal/store"
)

// CreateRequest implements store.Store.
func (db *DB) CreateRequest(ctx context.Context, params store.CreateRequestParams) (model.ProcessingRequest, error) {
	if err := params.Validate(); err != nil {
		return model.ProcessingRequest{}, fmt.Errorf("%w: %v", store.ErrInvalidArgument, err)
	}

	req := model.ProcessingRequest{
		UUID:             uuid.New(),
		PageUUID:         params.PageUUID,
		Priority:         params.Priority,
		StartTime:        time.Now().UTC().Truncate(time.Millisecond),
		ProcessingStages: append([]string(nil), params.ProcessingStages...),
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO processing_requests (uuid, page_uuid, priority, start_time, processing_stages)
		 VALUES ($1, $2, $3, $4, $5)`,
		req.UUID, req.PageUUID, req.Priority, req.StartTime, req.ProcessingStages,
	)
	if err != nil {
		return model.ProcessingRequest{}, fmt.Errorf("storage: create request: %w", err)
	}
	return req, nil
}

// AppendResult implements store.Store.
func (db *DB) AppendResult(ctx context.Context, id uuid.UUID, data model.Data) error {
	if err := data.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidArgument, err)
	}

	return db.withRequestLock(ctx, id, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO request_results (request_uuid, seq, name, content)
			 SELECT $1, COALESCE(MAX(seq) + 1, 0), $2, $3
			 FROM request_results WHERE request_uuid = $1`,
			id, data.Name, data.Content,
		)
		if err != nil {
			return fmt.Errorf("storage: append result: %w", err)
		}
		return nil
	})
}

// AppendStageLog implements store.Store.
func (db *DB) AppendStageLog(ctx context.Context, id uuid.UUID, entry model.StageLog) error {
	return db.withRequestLock(ctx, id, func(tx pgx.Tx) error {
		var stages []string
		err := tx.QueryRow(ctx,
			`SELECT processing_stages FROM processing_requests WHERE uuid = $1`, id,
		).Scan(&stages)
		if err != nil {
			return fmt.Errorf("storage: load stages: %w", err)
		}

		// Only the latest entry for the same stage matters for the
		// per-stage start-time monotonicity check.
		prior := model.ProcessingRequest{ProcessingStages: stages}
		var last model.StageLog
		err = tx.QueryRow(ctx,
			`SELECT host_id, stage, started_at, ended_at, status, log, version
			 FROM stage_logs WHERE request_uuid = $1 AND stage = $2
			 ORDER BY seq DESC LIMIT 1`,
			id, entry.Stage,
		).Scan(&last.HostID, &last.Stage, &last.Start, &last.End, &last.Status, &last.Log, &last.Version)
		switch {
		case err == nil:
			prior.Logs = []model.StageLog{last}
		case errors.Is(err, pgx.ErrNoRows):
			// First entry for this stage.
		default:
			return fmt.Errorf("storage: load last stage log: %w", err)
		}

		if err := store.ValidateAppend(prior, entry); err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidArgument, err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO stage_logs (request_uuid, seq, host_id, stage, started_at, ended_at, status, log, version)
			 SELECT $1, COALESCE(MAX(seq) + 1, 0), $2, $3, $4, $5, $6, $7, $8
			 FROM stage_logs WHERE request_uuid = $1`,
			id, entry.HostID, entry.Stage, entry.Start, entry.End,
			string(entry.Status), entry.Log, entry.Version,
		)
		if err != nil {
			return fmt.Errorf("storage: append stage log: %w", err)
		}
		return nil
	})
}

// GetRequest implements store.Store.
func (db *DB) GetRequest(ctx context.Context, id uuid.UUID) (model.ProcessingRequest, error) {
	var req model.ProcessingRequest
	err := db.pool.QueryRow(ctx,
		`SELECT uuid, page_uuid, priority, start_time, processing_stages
		 FROM processing_requests WHERE uuid = $1`, id,
	).Scan(&req.UUID, &req.PageUUID, &req.Priority, &req.StartTime, &req.ProcessingStages)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ProcessingRequest{}, fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
		return model.ProcessingRequest{}, fmt.Errorf("storage: get request: %w", err)
	}
	req.StartTime = req.StartTime.UTC()

	if req.Results, err = db.loadResults(ctx, id); err != nil {
		return model.ProcessingRequest{}, err
	}
	if req.Logs, err = db.loadLogs(ctx, id); err != nil {
		return model.ProcessingRequest{}, err
	}
	return req, nil
}

// ListRequestsByPage implements store.Store.
func (db *DB) ListRequestsByPage(ctx context.Context, pageUUID string) ([]model.ProcessingRequest, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT uuid FROM processing_requests
		 WHERE page_uuid = $1 ORDER BY start_time ASC, uuid ASC`, pageUUID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list requests: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("storage: scan request uuids: %w", err)
	}

	out := make([]model.ProcessingRequest, 0, len(ids))
	for _, id := range ids {
		req, err := db.GetRequest(ctx, id)
		if err != nil {
			// Deleted between the list and the load; skip it.
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}

// IsComplete implements store.Store.
func (db *DB) IsComplete(ctx context.Context, id uuid.UUID) (bool, error) {
	req, err := db.GetRequest(ctx, id)
	if err != nil {
		return false, err
	}
	return req.Complete(), nil
}

// DeleteRequest implements store.Store. Results and logs go with the
// request via ON DELETE CASCADE.
func (db *DB) DeleteRequest(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM processing_requests WHERE uuid = $1`, id)
	if err != nil {
		return fmt.Errorf("storage: delete request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return nil
}

// withRequestLock runs fn inside a transaction holding a row lock on the
// request, serializing appends against the same uuid. The transaction rolls
// back on any error, so a failed append has no observable side effect.
func (db *DB) withRequestLock(ctx context.Context, id uuid.UUID, fn func(tx pgx.Tx) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT true FROM processing_requests WHERE uuid = $1 FOR UPDATE`, id,
	).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
		return fmt.Errorf("storage: lock request: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit: %w", err)
	}
	return nil
}

func (db *DB) loadResults(ctx context.Context, id uuid.UUID) ([]model.Data, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT name, content FROM request_results
		 WHERE request_uuid = $1 ORDER BY seq ASC`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: load results: %w", err)
	}
	defer rows.Close()

	var results []model.Data
	for rows.Next() {
		var d model.Data
		if err := rows.Scan(&d.Name, &d.Content); err != nil {
			return nil, fmt.Errorf("storage: scan result: %w", err)
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

func (db *DB) loadLogs(ctx context.Context, id uuid.UUID) ([]model.StageLog, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT host_id, stage, started_at, ended_at, status, log, version
		 FROM stage_logs WHERE request_uuid = $1 ORDER BY seq ASC`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: load stage logs: %w", err)
	}
	defer rows.Close()

	var logs []model.StageLog
	for rows.Next() {
		var l model.StageLog
		var status string
		if err := rows.Scan(&l.HostID, &l.Stage, &l.Start, &l.End, &status, &l.Log, &l.Version); err != nil {
			return nil, fmt.Errorf("storage: scan stage log: %w", err)
		}
		l.Status = model.StageStatus(status)
		l.Start = l.Start.UTC()
		if l.End != nil {
			end := l.End.UTC()
			l.End = &end
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
