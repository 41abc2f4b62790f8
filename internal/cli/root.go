package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/omtest/internal/config"
	"github.com/roach88/omtest/internal/omc"
	"github.com/roach88/omtest/internal/session"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// Dialer replaces the compiler launcher (for testing).
	// If nil, omc is launched as configured.
	Dialer omc.Dialer
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the omtest CLI.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWithOptions(&RootOptions{})
}

// NewRootCommandWithOptions creates the root command around opts, so tests
// can inject a dialer.
func NewRootCommandWithOptions(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "omtest",
		Short: "omtest - OpenModelica model testing",
		Long: `Load, check, simulate and regression-test Modelica models by driving
the OpenModelica compiler over its ZeroMQ scripting interface.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default ~/.omtest/config.yaml)")

	// Add subcommands
	cmd.AddCommand(NewVersionCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewSimulateCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// Execute runs cmd with a context that is cancelled on SIGINT or SIGTERM.
// A running suite stops between cases and a pending session start gives up.
func Execute(ctx context.Context, cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return cmd.ExecuteContext(ctx)
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// environment is what a command needs to reach the compiler.
type environment struct {
	config *config.Config
	logger *slog.Logger
	dialer omc.Dialer
}

// setup loads configuration, builds the logger and picks the dialer.
func (o *RootOptions) setup(cmd *cobra.Command) (*environment, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}

	logger, err := setupLogger(cfg.Logging.Level, o.Verbose, cmd.ErrOrStderr())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}

	dialer := o.Dialer
	if dialer == nil {
		dialer = omc.NewLauncher(cfg.LaunchConfig(), logger)
	}
	return &environment{config: cfg, logger: logger, dialer: dialer}, nil
}

func (e *environment) manager() *session.Manager {
	return session.NewManager(e.dialer, e.config.SessionConfig(), e.logger)
}

// setupLogger builds a text logger on w. --verbose forces debug level.
func setupLogger(level string, verbose bool, w io.Writer) (*slog.Logger, error) {
	logLevel, err := config.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	})
	return slog.New(handler), nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}
