package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/omtest/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Suite  string
	Model  string
	Show   string
	Delete string
	Limit  int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs",
		Long: `List runs recorded by "omtest test", most recent first.

Examples:
  omtest history
  omtest history --suite blocks --limit 5
  omtest history --model Modelica.Blocks.Examples.PID_Controller
  omtest history --show 0190a5d2-7c4e-7b8a-9f00-2d1c3b4a5e6f`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Suite, "suite", "", "only list runs of this suite")
	cmd.Flags().StringVar(&opts.Model, "model", "", "list the recorded results of one model")
	cmd.Flags().StringVar(&opts.Show, "show", "", "show one run in full")
	cmd.Flags().StringVar(&opts.Delete, "delete", "", "delete one run")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of entries (0 for all)")
	cmd.MarkFlagsMutuallyExclusive("model", "show", "delete")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	env, err := opts.setup(cmd)
	if err != nil {
		return err
	}

	st, err := store.Open(env.config.Store.Path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open history database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			env.logger.Error("error closing database", "error", closeErr)
		}
	}()

	ctx := commandContext(cmd)
	switch {
	case opts.Show != "":
		run, err := st.ReadRun(ctx, opts.Show)
		if err != nil {
			return storeFailure(formatter, err)
		}
		if opts.Format == "json" {
			return formatter.Success(run)
		}
		fmt.Fprintf(formatter.Writer, "run %s  suite %s  compiler %s  started %s\n\n",
			run.ID, run.Suite, run.EngineVersion, run.StartedAt.Format(time.RFC3339))
		WriteRun(formatter.Writer, run)
		return nil

	case opts.Delete != "":
		if err := st.DeleteRun(ctx, opts.Delete); err != nil {
			return storeFailure(formatter, err)
		}
		if opts.Format == "json" {
			return formatter.Success(map[string]string{"deleted": opts.Delete})
		}
		fmt.Fprintf(formatter.Writer, "Deleted run %s\n", opts.Delete)
		return nil

	case opts.Model != "":
		records, err := st.CaseHistory(ctx, opts.Model, opts.Limit)
		if err != nil {
			return storeFailure(formatter, err)
		}
		if opts.Format == "json" {
			return formatter.Success(records)
		}
		if len(records) == 0 {
			fmt.Fprintf(formatter.Writer, "No results recorded for %s\n", opts.Model)
			return nil
		}
		tw := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "STARTED\tRUN\tSUITE\tSTATUS\tSTAGE\tMESSAGE")
		for _, r := range records {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				r.StartedAt.Format(time.RFC3339), r.RunID, r.Suite, r.Result.Status, r.Result.Stage, r.Result.Message)
		}
		return tw.Flush()
	}

	runs, err := st.ListRuns(ctx, opts.Suite, opts.Limit)
	if err != nil {
		return storeFailure(formatter, err)
	}
	if opts.Format == "json" {
		return formatter.Success(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(formatter.Writer, "No runs recorded")
		return nil
	}
	tw := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tRUN\tSUITE\tCOMPILER\tPASSED\tFAILED\tERRORS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			r.StartedAt.Format(time.RFC3339), r.ID, r.Suite, r.EngineVersion,
			r.Summary.Passed, r.Summary.Failed, r.Summary.Errors)
	}
	return tw.Flush()
}

func storeFailure(formatter *OutputFormatter, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "run not found", err)
	}
	return formatter.Fail(ExitCommandError, ErrCodeStore, "history query failed", err)
}
