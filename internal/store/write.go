package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/omtest/internal/report"
)

// NewRunID returns a UUIDv7, so ids sort by creation time.
func NewRunID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// caseDetails holds the list-valued parts of a case result.
type caseDetails struct {
	Missing []string `json:"missing,omitempty"`
	Failing []string `json:"failing,omitempty"`
}

// WriteRun records a run and its case results in one transaction.
// Uses ON CONFLICT DO NOTHING for idempotency: writing the same run id twice
// keeps the first copy.
//
// Case results are numbered by their position in run.Cases, starting at 1.
func (s *Store) WriteRun(ctx context.Context, run report.Run) error {
	if run.ID == "" {
		return fmt.Errorf("write run: id is required")
	}
	summary := run.Summary()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, suite, source, engine_version, started_at, passed, failed, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Suite,
		run.Source,
		run.EngineVersion,
		run.StartedAt.UTC().Format(timeLayout),
		summary.Passed,
		summary.Failed,
		summary.Errors,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}

	for i, c := range run.Cases {
		details, err := report.Marshal(caseDetails{Missing: c.Missing, Failing: c.Failing})
		if err != nil {
			return fmt.Errorf("write case %s: %w", c.Model, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO case_results
			(run_id, seq, model, stage, status, message, diagnostics, result_file, details, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`,
			run.ID,
			i+1,
			c.Model,
			c.Stage,
			string(c.Status),
			c.Message,
			c.Diagnostics,
			c.ResultFile,
			string(details),
			c.DurationMS,
		)
		if err != nil {
			return fmt.Errorf("write case %s: %w", c.Model, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// DeleteRun removes a run and, through the foreign key, its case results.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete run %s: %w", id, ErrNotFound)
	}
	return nil
}
