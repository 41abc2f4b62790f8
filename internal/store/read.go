package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/omtest/internal/report"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// RunSummary is a run without its case results.
type RunSummary struct {
	ID            string         `json:"id"`
	Suite         string         `json:"suite"`
	Source        string         `json:"source,omitempty"`
	EngineVersion string         `json:"engine_version,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	Summary       report.Summary `json:"summary"`
}

// CaseRecord is one case result together with the run it belongs to.
type CaseRecord struct {
	RunID     string            `json:"run_id"`
	Suite     string            `json:"suite"`
	StartedAt time.Time         `json:"started_at"`
	Result    report.CaseResult `json:"result"`
}

// ReadRun returns a run with its case results ordered by seq.
func (s *Store) ReadRun(ctx context.Context, id string) (*report.Run, error) {
	var run report.Run
	var startedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, suite, source, engine_version, started_at
		FROM runs
		WHERE id = ?
	`, id).Scan(&run.ID, &run.Suite, &run.Source, &run.EngineVersion, &startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read run: %w", err)
	}
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT model, stage, status, message, diagnostics, result_file, details, duration_ms
		FROM case_results
		WHERE run_id = ?
		ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query case results: %w", err)
	}
	defer rows.Close()

	run.Cases = []report.CaseResult{}
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		run.Cases = append(run.Cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate case results: %w", err)
	}
	return &run, nil
}

// ListRuns returns the most recent runs first, optionally restricted to one
// suite. limit <= 0 means no limit.
func (s *Store) ListRuns(ctx context.Context, suite string, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, suite, source, engine_version, started_at, passed, failed, errors
		FROM runs
		WHERE ? = '' OR suite = ?
		ORDER BY started_at DESC, id COLLATE BINARY DESC
		LIMIT ?
	`, suite, suite, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		var r RunSummary
		var startedAt string
		if err := rows.Scan(&r.ID, &r.Suite, &r.Source, &r.EngineVersion, &startedAt,
			&r.Summary.Passed, &r.Summary.Failed, &r.Summary.Errors); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		r.Summary.Total = r.Summary.Passed + r.Summary.Failed + r.Summary.Errors
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// CaseHistory returns the results recorded for model, most recent first.
func (s *Store) CaseHistory(ctx context.Context, model string, limit int) ([]CaseRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.suite, r.started_at,
		       c.model, c.stage, c.status, c.message, c.diagnostics, c.result_file, c.details, c.duration_ms
		FROM case_results c
		JOIN runs r ON c.run_id = r.id
		WHERE c.model = ?
		ORDER BY r.started_at DESC, r.id COLLATE BINARY DESC, c.seq ASC
		LIMIT ?
	`, model, limit)
	if err != nil {
		return nil, fmt.Errorf("query case history: %w", err)
	}
	defer rows.Close()

	records := []CaseRecord{}
	for rows.Next() {
		var rec CaseRecord
		var startedAt string
		var c report.CaseResult
		var status, details string
		if err := rows.Scan(&rec.RunID, &rec.Suite, &startedAt,
			&c.Model, &c.Stage, &status, &c.Message, &c.Diagnostics, &c.ResultFile, &details, &c.DurationMS); err != nil {
			return nil, fmt.Errorf("scan case history: %w", err)
		}
		if rec.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		c.Status = report.Status(status)
		if err := applyDetails(&c, details); err != nil {
			return nil, err
		}
		rec.Result = c
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate case history: %w", err)
	}
	return records, nil
}

func scanCase(rows *sql.Rows) (report.CaseResult, error) {
	var c report.CaseResult
	var status, details string
	if err := rows.Scan(&c.Model, &c.Stage, &status, &c.Message, &c.Diagnostics, &c.ResultFile, &details, &c.DurationMS); err != nil {
		return report.CaseResult{}, fmt.Errorf("scan case result: %w", err)
	}
	c.Status = report.Status(status)
	if err := applyDetails(&c, details); err != nil {
		return report.CaseResult{}, err
	}
	return c, nil
}

func applyDetails(c *report.CaseResult, details string) error {
	var d caseDetails
	if err := json.Unmarshal([]byte(details), &d); err != nil {
		return fmt.Errorf("decode details of %s: %w", c.Model, err)
	}
	c.Missing = d.Missing
	c.Failing = d.Failing
	return nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse started_at %q: %w", s, err)
	}
	return t, nil
}
