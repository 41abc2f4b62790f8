package harness

import (
	"context"
	"time"

	"github.com/roach88/omtest/internal/report"
)

// Stages reported after the load protocol. Load stages come from the model
// package.
const (
	// StageSession means no responsive session could be opened.
	StageSession    = "session"
	StageSimulate   = "simulate"
	StageRegression = "regression"
)

// Recorder persists finished runs. *store.Store implements it.
type Recorder interface {
	WriteRun(ctx context.Context, run report.Run) error
}

// Option configures a Runner.
type Option func(*Runner)

// WithRecorder stores every finished run.
func WithRecorder(r Recorder) Option {
	return func(rn *Runner) {
		rn.recorder = r
	}
}

// WithClock replaces time.Now for start times and durations.
func WithClock(now func() time.Time) Option {
	return func(rn *Runner) {
		rn.now = now
	}
}

// WithRunID replaces the run id generator.
func WithRunID(newID func() string) Option {
	return func(rn *Runner) {
		rn.newID = newID
	}
}
