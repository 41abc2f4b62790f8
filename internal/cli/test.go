package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/omtest/internal/harness"
	"github.com/roach88/omtest/internal/report"
	"github.com/roach88/omtest/internal/store"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Filter     string // suite filter (glob pattern on the file name)
	NoStore    bool   // skip the history database
	ReportPath string // write canonical JSON of all runs here
}

// TestResult holds the overall test result.
type TestResult struct {
	Runs   []*report.Run `json:"runs"`
	Passed int           `json:"passed"`
	Failed int           `json:"failed"`
	Errors int           `json:"errors"`
	Total  int           `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <suite.cue|dir>...",
		Short: "Run regression suites",
		Long: `Run regression suites against the compiler.

Every case gets its own compiler session. Cases are loaded, checked,
optionally instantiated and simulated, and compared against reference
results. Runs are recorded in the history database.

Exit codes:
  0 - All cases passed
  1 - One or more cases failed
  2 - Command error (invalid paths, config, etc.)

Examples:
  omtest test suites/
  omtest test suites/ --filter "msl-*"
  omtest test suites/blocks.cue --report out/blocks.json
  omtest test suites/ --format json --no-store`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter suites by glob pattern")
	cmd.Flags().BoolVar(&opts.NoStore, "no-store", false, "do not record runs in the history database")
	cmd.Flags().StringVar(&opts.ReportPath, "report", "", "write a canonical JSON report to this file")

	return cmd
}

func runTests(opts *TestOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	files, err := FindSuiteFiles(paths, opts.Filter)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return formatter.Fail(ExitCommandError, loadErr.Code, loadErr.Message, nil)
		}
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}

	suites, loadErrors := LoadSuites(files, LoadModeFailFast)
	if len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return formatter.Fail(ExitCommandError, loadErr.Code, loadErr.Error(), nil)
		}
		return formatter.Fail(ExitCommandError, ErrCodeLoadFailed, loadErrors[0].Error(), nil)
	}

	env, err := opts.setup(cmd)
	if err != nil {
		return err
	}

	var harnessOpts []harness.Option
	if !opts.NoStore {
		st, err := store.Open(env.config.Store.Path)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open history database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				env.logger.Error("error closing database", "error", closeErr)
			}
		}()
		harnessOpts = append(harnessOpts, harness.WithRecorder(st))
	}
	runner := harness.New(env.dialer, env.config.SessionConfig(), env.logger, harnessOpts...)

	ctx := commandContext(cmd)

	result := TestResult{Runs: make([]*report.Run, 0, len(suites))}
	for _, ls := range suites {
		formatter.VerboseLog("Running suite %s from %s", ls.Suite.Name, ls.Path)
		run, err := runner.Run(ctx, ls.Suite, ls.Base)
		if run != nil {
			result.Runs = append(result.Runs, run)
			summary := run.Summary()
			result.Total += summary.Total
			result.Passed += summary.Passed
			result.Failed += summary.Failed
			result.Errors += summary.Errors
			if opts.Format != "json" {
				WriteRun(formatter.Writer, run)
			}
		}
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("suite %s", ls.Suite.Name), err)
		}
	}

	if opts.ReportPath != "" {
		if err := writeReport(opts.ReportPath, result.Runs); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "failed to write report", err)
		}
	}

	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	}

	if result.Passed != result.Total {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d case(s) did not pass", result.Total-result.Passed, result.Total))
	}
	return nil
}

// writeReport stores runs as canonical JSON.
func writeReport(path string, runs []*report.Run) error {
	data, err := report.Marshal(runs)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
