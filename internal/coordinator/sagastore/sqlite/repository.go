// Package sqlite provides a durable SQLite-backed sagastore.Store, so saga
// records survive an orchestrator restart.
//
// WAL mode is enabled on Open so that readers never block writers and vice
// versa: the consume loop writes while the HTTP facade reads.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jcmexdev/saga-orchestrator/internal/coordinator/sagastore"

	// Register the pure-Go SQLite driver. modernc.org/sqlite needs no CGO,
	// which keeps the Alpine image simple.
	_ "modernc.org/sqlite"
)

// schema is executed on every Open. Both statements are idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS sagas (
    saga_id     TEXT PRIMARY KEY,
    status      TEXT NOT NULL,
    -- JSON object holding the saga context (customer, items, learned ids).
    context     TEXT NOT NULL DEFAULT '{}',
    error       TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);

-- Append-only history. Rows are only ever inserted; id gives append order.
CREATE TABLE IF NOT EXISTS saga_steps (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    saga_id     TEXT NOT NULL REFERENCES sagas(saga_id),
    step        TEXT NOT NULL,
    status      TEXT NOT NULL,
    message_id  TEXT NOT NULL DEFAULT '',
    details     TEXT,
    trace_id    TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_saga_steps_saga_id ON saga_steps(saga_id, id);

-- Observability query: "find the saga for trace Y".
CREATE INDEX IF NOT EXISTS idx_saga_steps_trace_id ON saga_steps(trace_id);
`

// Repository is the SQLite implementation of sagastore.Store.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

var _ sagastore.Store = (*Repository)(nil)

// Open opens (or creates) the SQLite database at the given path and applies
// the schema. Use ":memory:" for a throwaway database.
//
//	repo, err := sqlite.Open("./data/saga.db")
func Open(path string) (*Repository, error) {
	// The pure-Go driver uses _pragma query parameters to configure connection state.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)

	// Use "sqlite", not "sqlite3" for the modernc driver.
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}

	// A single connection serializes writers and keeps an in-memory
	// database alive for the lifetime of the pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &Repository{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close releases the database connection. Call it with defer in main().
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) Create(ctx context.Context, id string, sc sagastore.Context, status sagastore.Status) (sagastore.Record, error) {
	raw, err := json.Marshal(sc)
	if err != nil {
		return sagastore.Record{}, fmt.Errorf("sqlite: encode context for %q: %w", id, err)
	}

	now := r.now()
	const q = `
		INSERT INTO sagas (saga_id, status, context, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (saga_id) DO NOTHING`

	res, err := r.db.ExecContext(ctx, q, id, string(status), string(raw), formatTime(now), formatTime(now))
	if err != nil {
		return sagastore.Record{}, fmt.Errorf("sqlite: create saga %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sagastore.Record{}, fmt.Errorf("%w: %s", sagastore.ErrAlreadyExists, id)
	}

	rec, _, err := r.Get(ctx, id)
	return rec, err
}

func (r *Repository) Get(ctx context.Context, id string) (sagastore.Record, bool, error) {
	const q = `
		SELECT saga_id, status, context, error, created_at, updated_at
		FROM   sagas
		WHERE  saga_id = ?`

	var (
		rec                  sagastore.Record
		rawCtx               string
		createdAt, updatedAt string
	)
	err := r.db.QueryRowContext(ctx, q, id).Scan(&rec.SagaID, &rec.Status, &rawCtx, &rec.Error, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return sagastore.Record{}, false, nil
	}
	if err != nil {
		return sagastore.Record{}, false, fmt.Errorf("sqlite: get saga %q: %w", id, err)
	}
	if err := json.Unmarshal([]byte(rawCtx), &rec.Context); err != nil {
		return sagastore.Record{}, false, fmt.Errorf("sqlite: decode context for %q: %w", id, err)
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return sagastore.Record{}, false, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return sagastore.Record{}, false, err
	}

	rec.Steps, err = r.steps(ctx, id)
	if err != nil {
		return sagastore.Record{}, false, err
	}
	return rec, true, nil
}

func (r *Repository) steps(ctx context.Context, id string) ([]sagastore.Step, error) {
	const q = `
		SELECT step, status, message_id, COALESCE(details, ''), trace_id, created_at
		FROM   saga_steps
		WHERE  saga_id = ?
		ORDER  BY id`

	rows, err := r.db.QueryContext(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list steps for %q: %w", id, err)
	}
	defer rows.Close()

	steps := []sagastore.Step{}
	for rows.Next() {
		var (
			s       sagastore.Step
			details string
			ts      string
		)
		if err := rows.Scan(&s.Step, &s.Status, &s.MessageID, &details, &s.TraceID, &ts); err != nil {
			return nil, fmt.Errorf("sqlite: scan step for %q: %w", id, err)
		}
		if details != "" {
			s.Details = json.RawMessage(details)
		}
		if s.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

func (r *Repository) UpdateStatus(ctx context.Context, id string, status sagastore.Status) error {
	const q = `UPDATE sagas SET status = ?, updated_at = ? WHERE saga_id = ?`
	return r.exec(ctx, id, "update status", q, string(status), formatTime(r.now()), id)
}

func (r *Repository) SetError(ctx context.Context, id string, reason string) error {
	const q = `UPDATE sagas SET error = ?, updated_at = ? WHERE saga_id = ?`
	return r.exec(ctx, id, "set error", q, reason, formatTime(r.now()), id)
}

func (r *Repository) SetContextValue(ctx context.Context, id string, field sagastore.Field, value string) error {
	switch field {
	case sagastore.FieldOrderID, sagastore.FieldShipmentID, sagastore.FieldPaymentID:
	default:
		return fmt.Errorf("%w: %s", sagastore.ErrUnknownField, field)
	}

	// json_set merges the single key and leaves the rest of the object alone.
	const q = `UPDATE sagas SET context = json_set(context, ?, ?), updated_at = ? WHERE saga_id = ?`
	return r.exec(ctx, id, "set context value", q, "$."+string(field), value, formatTime(r.now()), id)
}

func (r *Repository) AddStep(ctx context.Context, id string, step sagastore.StepName, status sagastore.StepStatus, opts ...sagastore.StepOption) error {
	entry := sagastore.NewStep(ctx, step, status, opts...)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin add step for %q: %w", id, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE sagas SET updated_at = ? WHERE saga_id = ?`, formatTime(r.now()), id)
	if err != nil {
		return fmt.Errorf("sqlite: touch saga %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", sagastore.ErrNotFound, id)
	}

	const q = `
		INSERT INTO saga_steps (saga_id, step, status, message_id, details, trace_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, q,
		id,
		string(entry.Step),
		string(entry.Status),
		entry.MessageID,
		nullableJSON(entry.Details),
		entry.TraceID,
		formatTime(entry.Timestamp),
	); err != nil {
		return fmt.Errorf("sqlite: add step %s for %q: %w", entry.Step, id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit add step for %q: %w", id, err)
	}
	return nil
}

// exec runs a single-row update and maps "no row touched" to ErrNotFound.
func (r *Repository) exec(ctx context.Context, id, op, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("sqlite: %s for %q: %w", op, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: %s for %q: %w", op, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", sagastore.ErrNotFound, id)
	}
	return nil
}

// nullableJSON stores NULL instead of an empty TEXT for steps without details.
func nullableJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
