// Package persistence records finished workflow runs in a sqlite journal
// for audit and inspection. The scheduler core never consults it; it is an
// external collaborator wired in by the CLI.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aristath/conductor/internal/scheduler"
	_ "modernc.org/sqlite"
)

// RunSummary is one row of the run listing.
type RunSummary struct {
	ID         string
	Workflow   string
	Status     string
	TaskCount  int
	StartedAt  time.Time
	FinishedAt time.Time
}

// TaskRecord is the persisted outcome of one task in a run.
type TaskRecord struct {
	RunID     string
	TaskID    string
	Status    string
	Output    string
	Error     string
	Reason    string
	Attempts  int
	Duration  time.Duration
	StartedAt time.Time
}

// Store defines the persistence interface for the run journal.
type Store interface {
	// SaveRun persists a finished run and all of its task outcomes.
	SaveRun(ctx context.Context, workflow string, run *scheduler.Run) error

	// GetRun returns the summary and task records of one run.
	GetRun(ctx context.Context, runID string) (*RunSummary, []TaskRecord, error)

	// ListRuns returns run summaries, most recent first.
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)

	// Lifecycle
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode, foreign keys, and
// a busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	// Note: modernc.org/sqlite doesn't support _foreign_keys in the
	// connection string, hence the PRAGMA below.
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return initStore(ctx, db)
}

// NewMemoryStore creates an in-memory SQLite store for testing.
// Uses a shared cache so multiple connections see the same database.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file::memory:?mode=memory&cache=shared")
	if err != nil {
		return nil, fmt.Errorf("failed to open memory database: %w", err)
	}

	return initStore(ctx, db)
}

func initStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// One connection for primary queries, one for subqueries
	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
