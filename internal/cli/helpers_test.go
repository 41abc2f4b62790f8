package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/omtest/internal/codec"
	"github.com/roach88/omtest/internal/simulation"
	"github.com/roach88/omtest/internal/testutil"
)

const banner = "OMCompiler v1.17.0-dev.94+g4da66238ab"

// compiler builds engines that answer like a compiler with the Modelica
// library installed. Models whose name contains Broken do not load, models
// whose name contains Bad fail their check, and simulations report a result
// file in workDir.
func compiler(workDir string) func(int) *testutil.FakeEngine {
	return func(int) *testutil.FakeEngine {
		e := testutil.NewFakeEngine().
			On("getVersion", codec.Quote(banner)).
			On("getCommandLineOptions", `{"-d=newInst"}`).
			On("getClassInformation", `("package", "", false, false, false, "/lib/Modelica/package.mo")`).
			On("getClassRestriction", `"model"`).
			On("instantiateModel", `"class M end M;"`).
			On("getAnnotationNamedModifiers", "{}").
			On("getSimulationOptions", "(0.0, 1.0, 1e-06, 500, 0.002)").
			On("readSimulationResultVars", `{"time", "y"}`).
			On("diffSimulationResults", "(true, {})")

		e.Handle("cd", func(expr string) string {
			return strings.TrimSuffix(strings.TrimPrefix(expr, "cd("), ")")
		})
		e.Handle("loadModel", func(expr string) string {
			if strings.Contains(expr, "Broken") {
				return "false"
			}
			return "true"
		})
		e.Handle("checkModel", func(expr string) string {
			name := strings.TrimSuffix(strings.TrimPrefix(expr, "checkModel("), ")")
			if strings.Contains(name, "Bad") {
				return `""`
			}
			return codec.Quote(fmt.Sprintf("Check of %s completed successfully.", name))
		})
		e.Handle("simulate", func(expr string) string {
			name := expr[len("simulate("):strings.IndexByte(expr, ',')]
			return fmt.Sprintf("record SimulationResult resultFile = %s, messages = \"\" end SimulationResult;",
				codec.Quote(filepath.Join(workDir, simulation.ResultFileName(name))))
		})
		return e
	}
}

// writeConfig writes a config file keeping the history database in dir.
func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf("store:\n  path: %s\nlogging:\n  level: error\n", filepath.Join(dir, "history.db"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs the root command with args against dialer and returns
// standard output.
func execute(t *testing.T, dialer *testutil.FakeDialer, args ...string) (string, error) {
	t.Helper()
	opts := &RootOptions{}
	if dialer != nil {
		opts.Dialer = dialer
	}
	cmd := NewRootCommandWithOptions(opts)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
