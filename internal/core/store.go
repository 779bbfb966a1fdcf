package core

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store is a SQLite ledger of runs, submissions, collected stats and app
// checks.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

//go:embed migrations/*.sql
var migrationFS embed.FS

// timeLayout is fixed width so started_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run kinds recorded in the ledger.
const (
	RunKindSubmit = "submit"
	RunKindStats  = "stats"
	RunKindCheck  = "check"
)

func NewStore(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// a single connection keeps :memory: databases shared across calls
	db.SetMaxOpenConns(1)
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema, err := migrationFS.ReadFile("migrations/0001_init.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return errors.New("db not initialized")
	}
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error { return s.db.Close() }

// StartRun records a new run and returns its id.
func (s *Store) StartRun(ctx context.Context, kind, label string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, label, started_at) VALUES (?, ?, ?, ?)`,
		id, kind, label, s.now().UTC().Format(timeLayout))
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	return id, nil
}

// RecordSubmission stores the outcome of submitting row index of a run.
func (s *Store) RecordSubmission(ctx context.Context, runID string, index int, r BenchmarkRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO submissions (run_id, row_index, task_name, task_id, error) VALUES (?, ?, ?, ?, ?)`,
		runID, index, r.TaskName, r.TaskID, r.SubmitError)
	if err != nil {
		return fmt.Errorf("record submission: %w", err)
	}
	return nil
}

// RecordStats upserts the latest stats for a task. Rows without a task id
// are skipped.
func (s *Store) RecordStats(ctx context.Context, r StatsRow) error {
	if r.TaskID == "" {
		return nil
	}
	var duration sql.NullInt64
	if r.DurationMinutes != nil {
		duration = sql.NullInt64{Int64: int64(*r.DurationMinutes), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_stats (task_id, status, cost, currency, duration_minutes, collected_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			status = excluded.status,
			cost = excluded.cost,
			currency = excluded.currency,
			duration_minutes = excluded.duration_minutes,
			collected_at = excluded.collected_at`,
		r.TaskID, r.Status, r.Cost, r.Currency, duration, s.now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("record stats: %w", err)
	}
	return nil
}

// CheckRecord is one app check outcome.
type CheckRecord struct {
	App    string
	TaskID string
	Status string
	Passed bool
	Detail string
}

func (s *Store) RecordCheck(ctx context.Context, runID string, c CheckRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checks (run_id, app, task_id, status, passed, detail) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, c.App, c.TaskID, c.Status, c.Passed, c.Detail)
	if err != nil {
		return fmt.Errorf("record check: %w", err)
	}
	return nil
}

// RunSummary aggregates one ledger run.
type RunSummary struct {
	ID           string
	Kind         string
	Label        string
	StartedAt    time.Time
	Submitted    int
	Failed       int
	ChecksPassed int
	ChecksFailed int
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.kind, r.label, r.started_at,
			(SELECT COUNT(*) FROM submissions s WHERE s.run_id = r.id AND s.task_id != ''),
			(SELECT COUNT(*) FROM submissions s WHERE s.run_id = r.id AND s.task_id = ''),
			(SELECT COUNT(*) FROM checks c WHERE c.run_id = r.id AND c.passed = 1),
			(SELECT COUNT(*) FROM checks c WHERE c.run_id = r.id AND c.passed = 0)
		FROM runs r
		ORDER BY r.started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var started string
		if err := rows.Scan(&r.ID, &r.Kind, &r.Label, &started, &r.Submitted, &r.Failed, &r.ChecksPassed, &r.ChecksFailed); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(timeLayout, started)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RunTaskIDs returns the ids of every task a run submitted, in row order.
func (s *Store) RunTaskIDs(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id FROM submissions WHERE run_id = ? AND task_id != '' ORDER BY row_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("run tasks: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
