// Package journal keeps a SQLite history of runs and of every item that was
// skipped, failed or replicated, so a human can triage without grepping logs.
// The record files stay the source of truth for resume; the journal is only
// a ledger.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// EventKind classifies a journal event.
type EventKind string

const (
	EventSkip       EventKind = "skip"
	EventFail       EventKind = "fail"
	EventAbort      EventKind = "abort"
	EventReplicated EventKind = "replicated"
)

// Run status values.
const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusAborted = "aborted"
	StatusFailed  = "failed"
)

// Run is one invocation of an action.
type Run struct {
	ID         int64      `db:"id" json:"id"`
	Action     string     `db:"action" json:"action"`
	StartedAt  time.Time  `db:"started_at" json:"started_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	Status     string     `db:"status" json:"status"`
	Written    int        `db:"written" json:"written"`
	Skipped    int        `db:"skipped" json:"skipped"`
	Failed     int        `db:"failed" json:"failed"`
	Message    string     `db:"message" json:"message"`
}

// Event is a per-item outcome recorded during a run.
type Event struct {
	ID        int64     `db:"id" json:"id"`
	RunID     int64     `db:"run_id" json:"run_id"`
	ItemID    string    `db:"item_id" json:"item_id"`
	Kind      EventKind `db:"kind" json:"kind"`
	Reason    string    `db:"reason" json:"reason"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Totals are the counters written when a run finishes.
type Totals struct {
	Status  string
	Written int
	Skipped int
	Failed  int
	Message string
}

// RunListOpts controls run listing.
type RunListOpts struct {
	Action string
	Limit  int
}

// Journal is the persistence interface.
type Journal interface {
	StartRun(ctx context.Context, action string) (int64, error)
	FinishRun(ctx context.Context, runID int64, t Totals) error
	AddEvent(ctx context.Context, runID int64, itemID string, kind EventKind, reason string) error

	ListRuns(ctx context.Context, opts RunListOpts) ([]Run, error)
	ListEvents(ctx context.Context, runID int64) ([]Event, error)

	Close() error
}

// SQLiteJournal implements Journal using SQLite.
type SQLiteJournal struct {
	db *sqlx.DB
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteJournal, error) {
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

func (j *SQLiteJournal) StartRun(ctx context.Context, action string) (int64, error) {
	res, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (action, started_at, status)
		VALUES (?, ?, ?)
	`, action, time.Now().UTC(), StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("start run %s: %w", action, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("start run %s: %w", action, err)
	}
	return id, nil
}

func (j *SQLiteJournal) FinishRun(ctx context.Context, runID int64, t Totals) error {
	_, err := j.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, status = ?, written = ?, skipped = ?, failed = ?, message = ?
		WHERE id = ?
	`, time.Now().UTC(), t.Status, t.Written, t.Skipped, t.Failed, t.Message, runID)
	if err != nil {
		return fmt.Errorf("finish run %d: %w", runID, err)
	}
	return nil
}

func (j *SQLiteJournal) AddEvent(ctx context.Context, runID int64, itemID string, kind EventKind, reason string) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO events (run_id, item_id, kind, reason, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, runID, itemID, kind, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("add event %s/%s: %w", kind, itemID, err)
	}
	return nil
}

func (j *SQLiteJournal) ListRuns(ctx context.Context, opts RunListOpts) ([]Run, error) {
	query := "SELECT * FROM runs WHERE 1=1"
	var args []any

	if opts.Action != "" {
		query += " AND action = ?"
		args = append(args, opts.Action)
	}

	query += " ORDER BY id DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	query += " LIMIT ?"
	args = append(args, limit)

	var runs []Run
	if err := j.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

func (j *SQLiteJournal) ListEvents(ctx context.Context, runID int64) ([]Event, error) {
	var events []Event
	err := j.db.SelectContext(ctx, &events,
		"SELECT * FROM events WHERE run_id = ? ORDER BY id", runID)
	if err != nil {
		return nil, fmt.Errorf("list events %d: %w", runID, err)
	}
	return events, nil
}

// Nop is a Journal that records nothing. Used when no journal path is set.
type Nop struct{}

func (Nop) StartRun(context.Context, string) (int64, error)                  { return 0, nil }
func (Nop) FinishRun(context.Context, int64, Totals) error                   { return nil }
func (Nop) AddEvent(context.Context, int64, string, EventKind, string) error { return nil }
func (Nop) ListRuns(context.Context, RunListOpts) ([]Run, error)             { return nil, nil }
func (Nop) ListEvents(context.Context, int64) ([]Event, error)               { return nil, nil }
func (Nop) Close() error                                                     { return nil }
