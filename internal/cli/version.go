package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/omtest/internal/omc"
	"github.com/roach88/omtest/internal/session"
)

// VersionInfo is the compiler version as reported by getVersion(), with the
// command line options the compiler starts with.
type VersionInfo struct {
	Banner  string   `json:"banner"`
	Version string   `json:"version"`
	Options []string `json:"options"`
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the compiler version",
		Long: `Start a compiler session and print its version banner together with
the parsed release number and the compiler's default command line options.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(rootOpts, cmd)
		},
	}
}

func runVersion(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	env, err := opts.setup(cmd)
	if err != nil {
		return err
	}

	var info VersionInfo
	err = session.WithSession(commandContext(cmd), env.manager(), func(s *omc.Session) error {
		banner, err := omc.VersionString(s)
		if err != nil {
			return err
		}
		v, err := omc.ParseVersion(banner)
		if err != nil {
			return err
		}
		options, err := omc.CommandLineOptions(s)
		if err != nil {
			return err
		}
		info = VersionInfo{Banner: banner, Version: v.String(), Options: options}
		return nil
	})
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeSession, "failed to query compiler version", err)
	}

	if opts.Format == "json" {
		return formatter.Success(info)
	}
	fmt.Fprintf(formatter.Writer, "%s (%s)\n", info.Banner, info.Version)
	if len(info.Options) > 0 {
		fmt.Fprintf(formatter.Writer, "options: %s\n", strings.Join(info.Options, " "))
	}
	return nil
}
