// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package history records a summary of every research run in a SQLite
// database: who asked what, how it ended, and which engine served each
// category. Scraped content and answers are never persisted.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/alif/pkg/types"
)

// ErrNotFound is returned by Get for an unknown run ID.
var ErrNotFound = errors.New("run not found")

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// CategorySummary is the per-category result of a run.
type CategorySummary struct {
	Key       string `json:"key" yaml:"key"`
	Query     string `json:"query" yaml:"query"`
	Engine    string `json:"engine" yaml:"engine"`
	Sources   int    `json:"sources" yaml:"sources"`
	Exhausted bool   `json:"exhausted" yaml:"exhausted"`
}

// Run is one recorded research run.
type Run struct {
	ID          string            `json:"id" yaml:"id"`
	Prompt      string            `json:"prompt" yaml:"prompt"`
	Started     time.Time         `json:"started" yaml:"started"`
	Finished    time.Time         `json:"finished" yaml:"finished"`
	Outcome     Outcome           `json:"outcome" yaml:"outcome"`
	Error       string            `json:"error,omitempty" yaml:"error,omitempty"`
	Synthesized bool              `json:"synthesized" yaml:"synthesized"`
	Categories  []CategorySummary `json:"categories" yaml:"categories"`
}

// SourceCount returns the number of real sources across categories.
func (r Run) SourceCount() int {
	var n int
	for _, c := range r.Categories {
		if !c.Exhausted {
			n += c.Sources
		}
	}
	return n
}

// Summarize builds per-category summaries from a run snapshot and its plan,
// in snapshot order.
func Summarize(snap types.RunSnapshot, plan types.Plan) []CategorySummary {
	out := make([]CategorySummary, 0, len(snap.Order))
	for _, key := range snap.Order {
		st := snap.Categories[key]
		q, _ := plan.Query(key)
		out = append(out, CategorySummary{
			Key:       key,
			Query:     q.Query,
			Engine:    st.Engine,
			Sources:   len(st.Sources),
			Exhausted: st.Exhausted,
		})
	}
	return out
}

// Store manages the history SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database at cfg.Path and creates the
// schema if it does not exist.
func Open(cfg types.HistoryConfig) (*Store, error) {
	path := cfg.Path
	if path == "" {
		path = "alif.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			prompt TEXT NOT NULL,
			started TEXT NOT NULL,
			finished TEXT,
			outcome TEXT NOT NULL,
			error TEXT,
			synthesized INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS run_categories (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			key TEXT NOT NULL,
			query TEXT,
			engine TEXT,
			sources INTEGER NOT NULL DEFAULT 0,
			exhausted INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (run_id, key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Record inserts or replaces run and its category summaries.
func (s *Store) Record(ctx context.Context, run Run) error {
	if run.ID == "" {
		return errors.New("run has no ID")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	finished := ""
	if !run.Finished.IsZero() {
		finished = run.Finished.UTC().Format(time.RFC3339Nano)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, prompt, started, finished, outcome, error, synthesized)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			prompt=excluded.prompt, started=excluded.started, finished=excluded.finished,
			outcome=excluded.outcome, error=excluded.error, synthesized=excluded.synthesized`,
		run.ID, run.Prompt, run.Started.UTC().Format(time.RFC3339Nano), finished,
		string(run.Outcome), run.Error, run.Synthesized,
	)
	if err != nil {
		return fmt.Errorf("upserting run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_categories WHERE run_id = ?`, run.ID); err != nil {
		return fmt.Errorf("deleting old categories: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_categories (run_id, position, key, query, engine, sources, exhausted)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range run.Categories {
		if _, err := stmt.ExecContext(ctx, run.ID, i, c.Key, c.Query, c.Engine, c.Sources, c.Exhausted); err != nil {
			return fmt.Errorf("inserting category %s: %w", c.Key, err)
		}
	}

	return tx.Commit()
}

// List returns the most recent runs, newest first. A non-positive limit
// returns every run.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	q := `SELECT id, prompt, started, finished, outcome, error, synthesized FROM runs ORDER BY started DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}

	for i := range runs {
		cats, err := s.categories(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Categories = cats
	}
	return runs, nil
}

// Get returns the run with id.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, prompt, started, finished, outcome, error, synthesized FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Run{}, err
	}
	r.Categories, err = s.categories(ctx, id)
	if err != nil {
		return Run{}, err
	}
	return r, nil
}

// Prune deletes all but the newest keep runs and returns how many it removed.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE id NOT IN (SELECT id FROM runs ORDER BY started DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning runs: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) categories(ctx context.Context, runID string) ([]CategorySummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, query, engine, sources, exhausted FROM run_categories WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying categories: %w", err)
	}
	defer rows.Close()

	cats := []CategorySummary{}
	for rows.Next() {
		var (
			c             CategorySummary
			query, engine sql.NullString
		)
		if err := rows.Scan(&c.Key, &query, &engine, &c.Sources, &c.Exhausted); err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		c.Query, c.Engine = query.String, engine.String
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r                 Run
		started           string
		finished, errText sql.NullString
		outcome           string
	)
	if err := sc.Scan(&r.ID, &r.Prompt, &started, &finished, &outcome, &errText, &r.Synthesized); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scanning run: %w", err)
	}
	r.Outcome = Outcome(outcome)
	r.Error = errText.String
	r.Started, _ = time.Parse(time.RFC3339Nano, started)
	if finished.String != "" {
		r.Finished, _ = time.Parse(time.RFC3339Nano, finished.String)
	}
	return r, nil
}
