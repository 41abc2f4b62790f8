package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/roach88/omtest/internal/model"
	"github.com/roach88/omtest/internal/omc"
	"github.com/roach88/omtest/internal/report"
	"github.com/roach88/omtest/internal/session"
	"github.com/roach88/omtest/internal/simulation"
	"github.com/roach88/omtest/internal/store"
	"github.com/roach88/omtest/internal/suite"
)

// Runner executes suites. Cases run sequentially, one session each.
type Runner struct {
	dialer   omc.Dialer
	config   session.Config
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// New creates a Runner. Sessions are dialed through dialer with the limits
// in config; a suite's ignored diagnostics are added to config's.
func New(dialer omc.Dialer, config session.Config, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := &Runner{
		dialer: dialer,
		config: config,
		logger: logger.With("component", "harness"),
		now:    time.Now,
		newID:  store.NewRunID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes every case of s. Relative suite directories resolve against
// base.
//
// Case failures are recorded in the returned run, not returned as errors.
// An error means the run itself could not proceed: the work directory could
// not be created, ctx ended, or the recorder failed. In the last two cases
// the partial run is returned alongside the error.
func (r *Runner) Run(ctx context.Context, s *suite.Suite, base string) (*report.Run, error) {
	env := s.Environment(base)
	if env.WorkDir != "" {
		if err := os.MkdirAll(env.WorkDir, 0o755); err != nil {
			return nil, fmt.Errorf("create work directory: %w", err)
		}
	}

	cfg := r.config
	cfg.IgnoredDiagnostics = append(append([]string(nil), r.config.IgnoredDiagnostics...), s.IgnoredDiagnostics...)
	manager := session.NewManager(r.dialer, cfg, r.logger)

	run := &report.Run{
		ID:        r.newID(),
		Suite:     s.Name,
		Source:    s.Source,
		StartedAt: r.now().UTC(),
		Cases:     make([]report.CaseResult, 0, len(s.Cases)),
	}
	logger := r.logger.With("suite", s.Name, "run", run.ID)
	logger.Info("running suite", "cases", len(s.Cases))

	refDir := s.ReferencePath(base)
	for _, c := range s.Cases {
		if err := ctx.Err(); err != nil {
			return run, err
		}
		res := r.runCase(ctx, manager, s, c, env, refDir, run)
		logger.Info("case finished",
			"model", res.Model,
			"stage", res.Stage,
			"status", res.Status,
			"duration_ms", res.DurationMS)
		run.Cases = append(run.Cases, res)
	}

	summary := run.Summary()
	logger.Info("suite finished",
		"passed", summary.Passed,
		"failed", summary.Failed,
		"errors", summary.Errors)

	if r.recorder != nil {
		if err := r.recorder.WriteRun(ctx, *run); err != nil {
			return run, fmt.Errorf("record run: %w", err)
		}
	}
	return run, nil
}

func (r *Runner) runCase(ctx context.Context, m *session.Manager, s *suite.Suite, c suite.Case, env model.Environment, refDir string, run *report.Run) report.CaseResult {
	start := r.now()
	res := report.CaseResult{Model: c.Model, Stage: StageSession}

	opened := false
	err := session.WithSession(ctx, m, func(sess *omc.Session) error {
		opened = true
		res.Stage = string(model.StageLoad)
		if run.EngineVersion == "" {
			run.EngineVersion = r.engineVersion(sess)
		}
		return r.exercise(sess, s, c, env, refDir, &res)
	})

	res.DurationMS = r.now().Sub(start).Milliseconds()
	classify(&res, err, opened)
	return res
}

// exercise walks c through its stages, updating res.Stage as it goes.
func (r *Runner) exercise(sess *omc.Session, s *suite.Suite, c suite.Case, env model.Environment, refDir string, res *report.CaseResult) error {
	if err := model.Prepare(sess, env); err != nil {
		return err
	}

	opts := s.LoadOptions(c)
	opts.Logger = r.logger
	if err := model.Load(sess, c.Model, opts); err != nil {
		var se *model.StageError
		if errors.As(err, &se) {
			res.Stage = string(se.Stage)
		}
		return err
	}
	res.Stage = string(lastLoadStage(opts))
	if !c.Simulate {
		return nil
	}

	res.Stage = StageSimulate
	flags := ""
	if c.SimFlags {
		var err error
		if flags, err = simulation.SimFlags(sess, c.Model); err != nil {
			return err
		}
	}
	settings, err := simulation.GetSettings(sess, c.Model, c.Settings)
	if err != nil {
		return err
	}
	out, err := simulation.Simulate(sess, c.Model, settings, flags)
	res.ResultFile = out.ResultFile
	if err != nil {
		return err
	}
	if !c.Regression {
		return nil
	}

	res.Stage = StageRegression
	cmp, err := simulation.Regression(sess, c.Model, out.ResultFile, refDir, s.CaseTolerance(c))
	if err != nil {
		return err
	}
	if !cmp.Passed() {
		res.Missing = cmp.Missing
		res.Failing = cmp.Failing
		return omc.Errorf("%s: %d of %d compared variables differ, %d missing from reference",
			c.Model, len(cmp.Failing), cmp.Compared, len(cmp.Missing))
	}
	return nil
}

func (r *Runner) engineVersion(sess *omc.Session) string {
	banner, err := omc.VersionString(sess)
	if err != nil {
		r.logger.Warn("could not read engine version", "error", err)
		return ""
	}
	if v, err := omc.ParseVersion(banner); err == nil {
		return v.String()
	}
	return banner
}

func lastLoadStage(opts model.Options) model.Stage {
	switch {
	case opts.Check && opts.Instantiate:
		return model.StageInstantiate
	case opts.Check:
		return model.StageCheck
	default:
		return model.StageResolve
	}
}

// classify maps a case error to an outcome. Engine errors inside an open
// session are failures of the model; everything else is an error.
func classify(res *report.CaseResult, err error, opened bool) {
	if err == nil {
		res.Status = report.StatusPass
		return
	}

	res.Status = report.StatusError
	res.Message = err.Error()
	if e, ok := omc.AsError(err); ok {
		res.Message = e.Message
		res.Diagnostics = e.Diagnostics
		if opened {
			res.Status = report.StatusFail
		}
	}
}
