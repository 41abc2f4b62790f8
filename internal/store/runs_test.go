package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/omtest/internal/report"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRun(id, suite string, startedAt time.Time) report.Run {
	return report.Run{
		ID:            id,
		Suite:         suite,
		Source:        "suites/" + suite + ".cue",
		EngineVersion: "1.17.0",
		StartedAt:     startedAt,
		Cases: []report.CaseResult{
			{
				Model:      "Modelica.Blocks.Examples.PID_Controller",
				Stage:      "regression",
				Status:     report.StatusPass,
				ResultFile: "PID_Controller_res.csv",
				DurationMS: 1200,
			},
			{
				Model:       "Modelica.Blocks.Examples.Filter",
				Stage:       "regression",
				Status:      report.StatusFail,
				Message:     "result differs from reference",
				Diagnostics: "Warning: x\n",
				Missing:     []string{"y"},
				Failing:     []string{"lowPass.y", "highPass.y"},
				DurationMS:  800,
			},
			{
				Model:   "Broken.Model",
				Stage:   "load",
				Status:  report.StatusError,
				Message: "could not load Broken",
			},
		},
	}
}

func TestWriteRun_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	started := time.Date(2024, 5, 1, 12, 0, 0, 500, time.UTC)

	run := sampleRun(NewRunID(), "msl-blocks", started)
	require.NoError(t, s.WriteRun(ctx, run))

	got, err := s.ReadRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "msl-blocks", got.Suite)
	assert.Equal(t, run.Source, got.Source)
	assert.Equal(t, "1.17.0", got.EngineVersion)
	assert.True(t, started.Equal(got.StartedAt))
	assert.Equal(t, run.Cases, got.Cases)
}

func TestWriteRun_DuplicateKeepsFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	run := sampleRun(NewRunID(), "msl-blocks", time.Now())
	require.NoError(t, s.WriteRun(ctx, run))

	changed := run
	changed.Suite = "other"
	changed.Cases = run.Cases[:1]
	require.NoError(t, s.WriteRun(ctx, changed))

	got, err := s.ReadRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "msl-blocks", got.Suite)
	assert.Len(t, got.Cases, 3)
}

func TestWriteRun_RequiresID(t *testing.T) {
	s := openTestStore(t)
	err := s.WriteRun(context.Background(), report.Run{Suite: "x"})
	assert.ErrorContains(t, err, "id is required")
}

func TestReadRun_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.ReadRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRuns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	// Fractional seconds must still order correctly as text
	require.NoError(t, s.WriteRun(ctx, sampleRun("a", "msl-blocks", base)))
	require.NoError(t, s.WriteRun(ctx, sampleRun("b", "msl-blocks", base.Add(500*time.Millisecond))))
	require.NoError(t, s.WriteRun(ctx, sampleRun("c", "buildings", base.Add(time.Second))))

	all, err := s.ListRuns(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, report.Summary{Total: 3, Passed: 1, Failed: 1, Errors: 1}, all[0].Summary)

	blocks, err := s.ListRuns(ctx, "msl-blocks", 0)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, "b", blocks[0].ID)

	limited, err := s.ListRuns(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "c", limited[0].ID)
}

func TestCaseHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.WriteRun(ctx, sampleRun("old", "msl-blocks", base)))
	require.NoError(t, s.WriteRun(ctx, sampleRun("new", "msl-blocks", base.Add(time.Hour))))

	history, err := s.CaseHistory(ctx, "Modelica.Blocks.Examples.Filter", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "new", history[0].RunID)
	assert.Equal(t, "old", history[1].RunID)
	assert.Equal(t, report.StatusFail, history[0].Result.Status)
	assert.Equal(t, []string{"lowPass.y", "highPass.y"}, history[0].Result.Failing)

	none, err := s.CaseHistory(ctx, "Unknown", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeleteRun_CascadesToCases(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	run := sampleRun(NewRunID(), "msl-blocks", time.Now())
	require.NoError(t, s.WriteRun(ctx, run))

	require.NoError(t, s.DeleteRun(ctx, run.ID))

	var count int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM case_results").Scan(&count))
	assert.Zero(t, count)

	_, err := s.ReadRun(ctx, run.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.DeleteRun(ctx, run.ID), ErrNotFound)
}

func TestNewRunID_IsVersion7(t *testing.T) {
	id, err := uuid.Parse(NewRunID())
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
	assert.NotEqual(t, NewRunID(), NewRunID())
}
