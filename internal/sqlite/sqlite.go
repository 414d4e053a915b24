// Package sqlite provides the embedded SQLite backend of the
// processing-request store, for single-host deployments that want a durable
// store without running a database server.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ocrhub/pagetrack/internal/model"
	"github.com/ocrhub/pagetrack/internal/store"
)

// timeFormat is a fixed-width RFC 3339 UTC layout with millisecond
// precision. Fixed width keeps lexical and chronological order identical,
// which ListRequestsByPage relies on.
const timeFormat = "2006-01-02T15:04:05.000Z"

// DB wraps a database/sql handle over modernc.org/sqlite and implements
// store.Store.
type DB struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if necessary) the SQLite database at path.
// Use ":memory:" for an ephemeral database.
func Open(path string, logger *slog.Logger) (*DB, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// SQLite allows a single writer; a second connection would see
	// SQLITE_BUSY instead of queueing behind the first.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping %s: %w", path, err)
	}
	return &DB{db: db, logger: logger}, nil
}

// dsn builds the driver DSN for path. Transactions begin with BEGIN
// IMMEDIATE so the write lock is taken up front rather than on the first
// write inside the transaction.
func dsn(path string) string {
	if path == ":memory:" {
		// A file-backed WAL makes no sense in memory; shared cache keeps
		// the database alive across database/sql's pooled connections.
		return "file::memory:?cache=shared&_txlock=immediate&_pragma=foreign_keys(1)"
	}
	return path + "?_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}

// RunMigrations executes unapplied SQL migration files from the provided
// filesystem in lexical order, tracking them in schema_migrations.
func (d *DB) RunMigrations(ctx context.Context, migrationsFS fs.FS) error {
	if _, err := d.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		)
	`); err != nil {
		return fmt.Errorf("sqlite: create schema_migrations: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := d.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("sqlite: load applied migrations: %w", err)
	}
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("sqlite: scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: read applied migrations: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, ".")
	if err != nil {
		return fmt.Errorf("sqlite: read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		name := entry.Name()
		if applied[name] {
			d.logger.Debug("migration already applied, skipping", "file", name)
			continue
		}
		content, err := fs.ReadFile(migrationsFS, name)
		if err != nil {
			return fmt.Errorf("sqlite: read migration %s: %w", name, err)
		}
		d.logger.Info("running migration", "file", name)
		if _, err := d.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("sqlite: execute migration %s: %w", name, err)
		}
		if _, err := d.db.ExecContext(ctx,
			`INSERT INTO schema_migrations (version) VALUES (?)`, name); err != nil {
			return fmt.Errorf("sqlite: record migration %s: %w", name, err)
		}
	}
	return nil
}

// CreateRequest implements store.Store.
func (d *DB) CreateRequest(ctx context.Context, params store.CreateRequestParams) (model.ProcessingRequest, error) {
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
	stages, err := json.Marshal(req.ProcessingStages)
	if err != nil {
		return model.ProcessingRequest{}, fmt.Errorf("sqlite: marshal stages: %w", err)
	}

	_, err = d.db.ExecContext(ctx,
		`INSERT INTO processing_requests (uuid, page_uuid, priority, start_time, processing_stages)
		 VALUES (?, ?, ?, ?, ?)`,
		req.UUID.String(), req.PageUUID, req.Priority, req.StartTime.Format(timeFormat), string(stages),
	)
	if err != nil {
		return model.ProcessingRequest{}, fmt.Errorf("sqlite: create request: %w", err)
	}
	return req, nil
}

// AppendResult implements store.Store.
func (d *DB) AppendResult(ctx context.Context, id uuid.UUID, data model.Data) error {
	if err := data.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidArgument, err)
	}

	return d.withTx(ctx, id, func(tx *sql.Tx) error {
		content := data.Content
		if content == nil {
			content = []byte{}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO request_results (request_uuid, seq, name, content)
			 SELECT ?, COALESCE(MAX(seq) + 1, 0), ?, ?
			 FROM request_results WHERE request_uuid = ?`,
			id.String(), data.Name, content, id.String(),
		)
		if err != nil {
			return fmt.Errorf("sqlite: append result: %w", err)
		}
		return nil
	})
}

// AppendStageLog implements store.Store.
func (d *DB) AppendStageLog(ctx context.Context, id uuid.UUID, entry model.StageLog) error {
	return d.withTx(ctx, id, func(tx *sql.Tx) error {
		var rawStages string
		err := tx.QueryRowContext(ctx,
			`SELECT processing_stages FROM processing_requests WHERE uuid = ?`, id.String(),
		).Scan(&rawStages)
		if err != nil {
			return fmt.Errorf("sqlite: load stages: %w", err)
		}
		var stages []string
		if err := json.Unmarshal([]byte(rawStages), &stages); err != nil {
			return fmt.Errorf("sqlite: unmarshal stages: %w", err)
		}

		prior := model.ProcessingRequest{ProcessingStages: stages}
		var lastStart string
		err = tx.QueryRowContext(ctx,
			`SELECT started_at FROM stage_logs WHERE request_uuid = ? AND stage = ?
			 ORDER BY seq DESC LIMIT 1`,
			id.String(), entry.Stage,
		).Scan(&lastStart)
		switch {
		case err == nil:
			start, err := time.Parse(timeFormat, lastStart)
			if err != nil {
				return fmt.Errorf("sqlite: parse last start: %w", err)
			}
			prior.Logs = []model.StageLog{{Stage: entry.Stage, Start: start, Status: model.StatusPending}}
		case errors.Is(err, sql.ErrNoRows):
			// First entry for this stage.
		default:
			return fmt.Errorf("sqlite: load last stage log: %w", err)
		}

		// Compare at stored precision so an entry written back out of the
		// store is never rejected against itself.
		checked := entry
		checked.Start = entry.Start.UTC().Truncate(time.Millisecond)
		if err := store.ValidateAppend(prior, checked); err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidArgument, err)
		}

		var end any
		if entry.End != nil {
			end = entry.End.UTC().Truncate(time.Millisecond).Format(timeFormat)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO stage_logs (request_uuid, seq, host_id, stage, started_at, ended_at, status, log, version)
			 SELECT ?, COALESCE(MAX(seq) + 1, 0), ?, ?, ?, ?, ?, ?, ?
			 FROM stage_logs WHERE request_uuid = ?`,
			id.String(), entry.HostID, entry.Stage,
			entry.Start.UTC().Truncate(time.Millisecond).Format(timeFormat), end,
			string(entry.Status), entry.Log, entry.Version, id.String(),
		)
		if err != nil {
			return fmt.Errorf("sqlite: append stage log: %w", err)
		}
		return nil
	})
}

// GetRequest implements store.Store.
func (d *DB) GetRequest(ctx context.Context, id uuid.UUID) (model.ProcessingRequest, error) {
	return d.loadRequest(ctx, id)
}

// ListRequestsByPage implements store.Store.
func (d *DB) ListRequestsByPage(ctx context.Context, pageUUID string) ([]model.ProcessingRequest, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT uuid FROM processing_requests
		 WHERE page_uuid = ? ORDER BY start_time ASC, uuid ASC`, pageUUID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list requests: %w", err)
	}
	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scan request uuid: %w", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: parse request uuid: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: read request uuids: %w", err)
	}

	out := make([]model.ProcessingRequest, 0, len(ids))
	for _, id := range ids {
		req, err := d.loadRequest(ctx, id)
		if err != nil {
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
func (d *DB) IsComplete(ctx context.Context, id uuid.UUID) (bool, error) {
	req, err := d.loadRequest(ctx, id)
	if err != nil {
		return false, err
	}
	return req.Complete(), nil
}

// DeleteRequest implements store.Store.
func (d *DB) DeleteRequest(ctx context.Context, id uuid.UUID) error {
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM processing_requests WHERE uuid = ?`, id.String())
	if err != nil {
		return fmt.Errorf("sqlite: delete request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: delete request: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return nil
}

// Close implements store.Store.
func (d *DB) Close(context.Context) error {
	return d.db.Close()
}

// withTx runs fn in an immediate transaction after confirming the request
// exists, so a failed append leaves no observable side effect.
func (d *DB) withTx(ctx context.Context, id uuid.UUID, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM processing_requests WHERE uuid = ?`, id.String(),
	).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
		return fmt.Errorf("sqlite: lookup request: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func (d *DB) loadRequest(ctx context.Context, id uuid.UUID) (model.ProcessingRequest, error) {
	var (
		req       model.ProcessingRequest
		rawUUID   string
		rawStart  string
		rawStages string
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT uuid, page_uuid, priority, start_time, processing_stages
		 FROM processing_requests WHERE uuid = ?`, id.String(),
	).Scan(&rawUUID, &req.PageUUID, &req.Priority, &rawStart, &rawStages)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ProcessingRequest{}, fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
		return model.ProcessingRequest{}, fmt.Errorf("sqlite: get request: %w", err)
	}

	if req.UUID, err = uuid.Parse(rawUUID); err != nil {
		return model.ProcessingRequest{}, fmt.Errorf("sqlite: parse uuid: %w", err)
	}
	if req.StartTime, err = time.Parse(timeFormat, rawStart); err != nil {
		return model.ProcessingRequest{}, fmt.Errorf("sqlite: parse start time: %w", err)
	}
	if err := json.Unmarshal([]byte(rawStages), &req.ProcessingStages); err != nil {
		return model.ProcessingRequest{}, fmt.Errorf("sqlite: unmarshal stages: %w", err)
	}

	if req.Results, err = d.loadResults(ctx, id); err != nil {
		return model.ProcessingRequest{}, err
	}
	if req.Logs, err = d.loadLogs(ctx, id); err != nil {
		return model.ProcessingRequest{}, err
	}
	return req, nil
}

func (d *DB) loadResults(ctx context.Context, id uuid.UUID) ([]model.Data, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT name, content FROM request_results
		 WHERE request_uuid = ? ORDER BY seq ASC`, id.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load results: %w", err)
	}
	defer rows.Close()

	var results []model.Data
	for rows.Next() {
		var res model.Data
		if err := rows.Scan(&res.Name, &res.Content); err != nil {
			return nil, fmt.Errorf("sqlite: scan result: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func (d *DB) loadLogs(ctx context.Context, id uuid.UUID) ([]model.StageLog, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT host_id, stage, started_at, ended_at, status, log, version
		 FROM stage_logs WHERE request_uuid = ? ORDER BY seq ASC`, id.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load stage logs: %w", err)
	}
	defer rows.Close()

	var logs []model.StageLog
	for rows.Next() {
		var (
			l        model.StageLog
			rawStart string
			rawEnd   sql.NullString
			status   string
		)
		if err := rows.Scan(&l.HostID, &l.Stage, &rawStart, &rawEnd, &status, &l.Log, &l.Version); err != nil {
			return nil, fmt.Errorf("sqlite: scan stage log: %w", err)
		}
		if l.Start, err = time.Parse(timeFormat, rawStart); err != nil {
			return nil, fmt.Errorf("sqlite: parse stage start: %w", err)
		}
		if rawEnd.Valid {
			end, err := time.Parse(timeFormat, rawEnd.String)
			if err != nil {
				return nil, fmt.Errorf("sqlite: parse stage end: %w", err)
			}
			l.End = &end
		}
		l.Status = model.StageStatus(status)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
