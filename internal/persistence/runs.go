package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/aristath/conductor/internal/scheduler"
)

// SaveRun persists a finished run and its task outcomes in one transaction.
// Idempotent: saving the same run twice overwrites the previous rows.
func (s *SQLiteStore) SaveRun(ctx context.Context, workflow string, run *scheduler.Run) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	outcomes := run.Outcomes()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, workflow, status, task_count, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			workflow = excluded.workflow,
			status = excluded.status,
			task_count = excluded.task_count,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at
	`, run.ID(), workflow, run.Status().String(), len(outcomes), run.StartedAt(), run.FinishedAt())
	if err != nil {
		return fmt.Errorf("failed to upsert run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_results WHERE run_id = ?`, run.ID()); err != nil {
		return fmt.Errorf("failed to delete old task results: %w", err)
	}

	for taskID, outcome := range outcomes {
		errorStr := ""
		if outcome.Err != nil {
			errorStr = outcome.Err.Error()
		}
		reason := ""
		if outcome.Reason != scheduler.BlockNone {
			reason = outcome.Reason.String()
		}

		var startedAt interface{}
		if !outcome.StartedAt.IsZero() {
			startedAt = outcome.StartedAt
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO task_results (run_id, task_id, status, output, error, reason, attempts, duration_ms, started_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, run.ID(), taskID, outcome.Status.String(), outcome.Output, errorStr, reason,
			outcome.Attempts, outcome.Duration.Milliseconds(), startedAt)
		if err != nil {
			return fmt.Errorf("failed to insert task result %s: %w", taskID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetRun returns the summary and task records of one run.
// Task records come back sorted by task ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*RunSummary, []TaskRecord, error) {
	summary := &RunSummary{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workflow, status, task_count, started_at, finished_at
		FROM runs
		WHERE id = ?
	`, runID).Scan(&summary.ID, &summary.Workflow, &summary.Status, &summary.TaskCount,
		&summary.StartedAt, &summary.FinishedAt)

	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, status, output, error, reason, attempts, duration_ms, started_at
		FROM task_results
		WHERE run_id = ?
	`, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query task results: %w", err)
	}
	defer rows.Close()

	var records []TaskRecord
	for rows.Next() {
		rec := TaskRecord{RunID: runID}
		var durationMs int64
		var startedAt sql.NullTime
		if err := rows.Scan(&rec.TaskID, &rec.Status, &rec.Output, &rec.Error, &rec.Reason,
			&rec.Attempts, &durationMs, &startedAt); err != nil {
			return nil, nil, fmt.Errorf("failed to scan task result: %w", err)
		}
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		if startedAt.Valid {
			rec.StartedAt = startedAt.Time
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate task results: %w", err)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].TaskID < records[j].TaskID })

	return summary, records, nil
}

// ListRuns returns run summaries, most recent first.
// limit <= 0 returns all runs.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	query := `
		SELECT id, workflow, status, task_count, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var s RunSummary
		if err := rows.Scan(&s.ID, &s.Workflow, &s.Status, &s.TaskCount, &s.StartedAt, &s.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return summaries, nil
}
