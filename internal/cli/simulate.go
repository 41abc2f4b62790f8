package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/omtest/internal/simulation"
	"github.com/roach88/omtest/internal/suite"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Env        EnvironmentFlags
	Sets       []string // key=value simulation setting overrides
	Reference  string   // directory holding <model>_res.csv reference files
	Tolerance  float64
	NoSimFlags bool
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <model>...",
		Short: "Simulate models and optionally compare against references",
		Long: `Load, check and simulate each model with its experiment settings.
Settings given with --set override the model's defaults. With --reference,
the result file is compared against <dir>/<model>_res.csv.

Examples:
  omtest simulate Modelica.Blocks.Examples.PID_Controller -l Modelica@4.0.0
  omtest simulate MyLib.Step --set stopTime=10 --set outputFormat=csv
  omtest simulate MyLib.Step --reference ./reference --tolerance 1e-4`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := simulation.Settings{}
			for _, spec := range opts.Sets {
				key, value, err := ParseSetting(spec)
				if err != nil {
					return newFormatter(opts.RootOptions, cmd).Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
				}
				settings[key] = value
			}

			cases := make([]suite.Case, 0, len(args))
			for _, name := range args {
				cases = append(cases, suite.Case{
					Model:      name,
					Check:      true,
					Simulate:   true,
					Regression: opts.Reference != "",
					SimFlags:   !opts.NoSimFlags,
					Tolerance:  opts.Tolerance,
					Settings:   settings,
				})
			}
			opts.Env.reference = opts.Reference
			return runModels(opts.RootOptions, &opts.Env, "simulate", cases, cmd)
		},
	}

	opts.Env.register(cmd)
	cmd.Flags().StringArrayVar(&opts.Sets, "set", nil, "override a simulation setting, as key=value (repeatable)")
	cmd.Flags().StringVar(&opts.Reference, "reference", "", "compare results against reference files in this directory")
	cmd.Flags().Float64Var(&opts.Tolerance, "tolerance", simulation.DefaultTolerance, "relative tolerance for reference comparison")
	cmd.Flags().BoolVar(&opts.NoSimFlags, "no-simflags", false, "ignore the model's __OpenModelica_simulationFlags annotation")

	return cmd
}
