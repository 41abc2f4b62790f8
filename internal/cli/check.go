package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/omtest/internal/harness"
	"github.com/roach88/omtest/internal/model"
	"github.com/roach88/omtest/internal/simulation"
	"github.com/roach88/omtest/internal/suite"
)

// EnvironmentFlags describe the compiler environment for ad-hoc commands.
type EnvironmentFlags struct {
	Libraries []string // Name or Name@version
	Paths     []string // prepended to the Modelica path
	WorkDir   string
	Options   string // compiler command line options

	reference string
}

func (f *EnvironmentFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.Libraries, "lib", "l", nil, "library to load, as Name or Name@version (repeatable)")
	cmd.Flags().StringArrayVar(&f.Paths, "path", nil, "directory to prepend to the Modelica path (repeatable)")
	cmd.Flags().StringVarP(&f.WorkDir, "workdir", "w", "", "compiler working directory (default: current directory)")
	cmd.Flags().StringVar(&f.Options, "options", "", "compiler command line options, e.g. -d=newInst")
}

// suite builds a one-off suite named name around cases.
func (f *EnvironmentFlags) suite(name string, cases []suite.Case) (*suite.Suite, error) {
	s := &suite.Suite{
		Name:               name,
		WorkDir:            f.WorkDir,
		ReferenceDir:       f.reference,
		ModelicaPath:       f.Paths,
		CommandLineOptions: f.Options,
		Tolerance:          simulation.DefaultTolerance,
		Cases:              cases,
	}
	for _, spec := range f.Libraries {
		lib, err := ParseLibrary(spec)
		if err != nil {
			return nil, err
		}
		s.Libraries = append(s.Libraries, lib)
	}
	return s, nil
}

// ParseLibrary parses "Name" or "Name@version".
func ParseLibrary(spec string) (model.Library, error) {
	name, version, _ := strings.Cut(spec, "@")
	if name == "" {
		return model.Library{}, fmt.Errorf("invalid library %q: name is required", spec)
	}
	return model.Library{Name: name, Version: version}, nil
}

// ParseSetting parses key=value. Values that parse as numbers are numeric.
func ParseSetting(spec string) (string, simulation.Setting, error) {
	key, value, ok := strings.Cut(spec, "=")
	if !ok || key == "" {
		return "", simulation.Setting{}, fmt.Errorf("invalid setting %q: expected key=value", spec)
	}
	if n, err := strconv.ParseFloat(value, 64); err == nil {
		return key, simulation.Num(n), nil
	}
	return key, simulation.Str(value), nil
}

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Env         EnvironmentFlags
	Check       bool
	Instantiate bool
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check <model>...",
		Short: "Load and check models",
		Long: `Load each model's top-level package, resolve the model name and run
checkModel, optionally followed by instantiateModel.

Examples:
  omtest check Modelica.Blocks.Examples.PID_Controller --lib Modelica@4.0.0
  omtest check MyLib.Tests.Step --path ./libraries --instantiate`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cases := make([]suite.Case, 0, len(args))
			for _, name := range args {
				cases = append(cases, suite.Case{
					Model:       name,
					Check:       opts.Check,
					Instantiate: opts.Instantiate,
				})
			}
			return runModels(opts.RootOptions, &opts.Env, "check", cases, cmd)
		},
	}

	opts.Env.register(cmd)
	cmd.Flags().BoolVar(&opts.Check, "check", true, "run checkModel")
	cmd.Flags().BoolVar(&opts.Instantiate, "instantiate", false, "run instantiateModel after the check")

	return cmd
}

// runModels runs ad-hoc cases through the harness without recording them.
func runModels(opts *RootOptions, envFlags *EnvironmentFlags, name string, cases []suite.Case, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	s, err := envFlags.suite(name, cases)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}

	env, err := opts.setup(cmd)
	if err != nil {
		return err
	}

	base, err := os.Getwd()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to get working directory", err)
	}
	switch {
	case s.WorkDir == "":
		s.WorkDir = base
	case !filepath.IsAbs(s.WorkDir):
		s.WorkDir = filepath.Join(base, s.WorkDir)
	}

	run, err := harness.New(env.dialer, env.config.SessionConfig(), env.logger).Run(commandContext(cmd), s, base)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, name, err)
	}

	if opts.Format == "json" {
		if err := formatter.Success(run); err != nil {
			return err
		}
	} else {
		WriteRun(formatter.Writer, run)
	}

	if !run.Passed() {
		return NewExitError(ExitFailure, fmt.Sprintf("%s failed", name))
	}
	return nil
}
