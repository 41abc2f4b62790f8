package model

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/omtest/internal/omc"
	"github.com/roach88/omtest/internal/testutil"
)

const (
	fileClassInfo   = `("package", "Modelica Standard Library", false, false, false, "/usr/lib/omlibrary/Modelica 4.0.0/package.mo", true, 1, 1, 40, 12, {}, false, false, "", "", false, "")`
	inlineClassInfo = `("model", "", false, false, false, "<interactive>", false, 1, 1, 3, 8, {}, false, false, "", "", false, "")`
	pid             = "Modelica.Blocks.Examples.PID_Controller"
)

func loadableEngine() *testutil.FakeEngine {
	return testutil.NewFakeEngine().
		On("getClassInformation", fileClassInfo).
		On("loadModel", "true").
		On("getClassRestriction", `"model"`).
		On("checkModel", `"Check of Modelica.Blocks.Examples.PID_Controller completed successfully.
Class Modelica.Blocks.Examples.PID_Controller has 100 equation(s) and 100 variable(s).
"`)
}

func newSession(e *testutil.FakeEngine) *omc.Session {
	return omc.NewSession(e, omc.SessionOptions{})
}

func requireStageError(t *testing.T, err error, stage Stage) *omc.Error {
	t.Helper()
	require.Error(t, err)
	var se *StageError
	require.True(t, errors.As(err, &se), "expected a StageError, got %T", err)
	assert.Equal(t, stage, se.Stage)
	e, ok := omc.AsError(err)
	require.True(t, ok)
	return e
}

func TestLoad_AllStages(t *testing.T) {
	e := loadableEngine()

	err := Load(newSession(e), pid, Options{Check: true, Instantiate: true})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"getClassInformation(Modelica)",
		"getErrorString()",
		"loadModel(Modelica)",
		"getErrorString()",
		"getClassRestriction(Modelica.Blocks.Examples.PID_Controller)",
		"getErrorString()",
		"checkModel(Modelica.Blocks.Examples.PID_Controller)",
		"getErrorString()",
		"instantiateModel(Modelica.Blocks.Examples.PID_Controller)",
		"getErrorString()",
	}, e.Sent())
}

func TestLoad_InlineDefinitionSkipsLoad(t *testing.T) {
	e := testutil.NewFakeEngine().
		On("getClassInformation", inlineClassInfo).
		On("getClassRestriction", `"model"`)

	require.NoError(t, Load(newSession(e), "Inline", Options{}))
	assert.Zero(t, e.Count("loadModel"))
	assert.Equal(t, 1, e.Count("getClassRestriction"))
}

func TestLoad_PinnedVersion(t *testing.T) {
	e := loadableEngine()

	require.NoError(t, Load(newSession(e), pid, Options{Version: "4.0.0"}))
	assert.Contains(t, e.Sent(), `loadModel(Modelica, {"4.0.0"})`)
}

func TestLoad_MissingTopLevelCouldNotLoad(t *testing.T) {
	e := testutil.NewFakeEngine().
		On("loadModel", "false").
		On("getErrorString", `""`, `"Error: Failed to load package NoSuchLib (default) using MODELICAPATH /usr/lib/omlibrary.\n"`)

	err := Load(newSession(e), "NoSuchLib.Model", Options{Check: true})
	ee := requireStageError(t, err, StageLoad)
	assert.Equal(t, "could not load NoSuchLib", ee.Message)
	assert.Contains(t, ee.Diagnostics, "Failed to load package NoSuchLib")
	assert.Zero(t, e.Count("getClassRestriction"))
}

func TestLoad_DiagnosticsAloneFailLoad(t *testing.T) {
	e := testutil.NewFakeEngine().
		On("loadModel", "true").
		On("getErrorString", `""`, `"Warning: something odd\n"`)

	err := Load(newSession(e), "Lib.M", Options{})
	ee := requireStageError(t, err, StageLoad)
	assert.Equal(t, "could not load Lib", ee.Message)
}

func TestLoad_NoResultIsUnexpected(t *testing.T) {
	e := testutil.NewFakeEngine()

	err := Load(newSession(e), "Lib.M", Options{})
	ee := requireStageError(t, err, StageLoad)
	assert.Equal(t, "unexpected error loading Lib: no result", ee.Message)
}

func TestLoad_NestedNameNotFound(t *testing.T) {
	e := testutil.NewFakeEngine().
		On("getClassInformation", fileClassInfo).
		On("loadModel", "true").
		On("getClassRestriction", `""`)

	err := Load(newSession(e), "Modelica.Blocks.Examples.NoSuchModel", Options{Check: true})
	ee := requireStageError(t, err, StageResolve)
	assert.Equal(t, "Modelica.Blocks.Examples.NoSuchModel not found in search path", ee.Message)
	assert.Zero(t, e.Count("checkModel"))
}

func TestLoad_ResolveRunsWithoutFlags(t *testing.T) {
	e := loadableEngine()

	require.NoError(t, Load(newSession(e), pid, Options{}))
	assert.Equal(t, 1, e.Count("getClassRestriction"))
	assert.Zero(t, e.Count("checkModel"))
	assert.Zero(t, e.Count("instantiateModel"))
}

func TestLoad_CheckFailedCarriesOutputAndDiagnostics(t *testing.T) {
	e := testutil.NewFakeEngine().
		On("getClassInformation", fileClassInfo).
		On("loadModel", "true").
		On("getClassRestriction", `"model"`).
		On("checkModel", `""`).
		On("getErrorString", `""`, `""`, `""`, `"Error: Variable x not found in scope M.\n"`)

	err := Load(newSession(e), "Lib.M", Options{Check: true, Instantiate: true})
	ee := requireStageError(t, err, StageCheck)
	assert.Equal(t, "Lib.M check failed", ee.Message)
	assert.Contains(t, ee.Diagnostics, "Variable x not found")
	assert.Zero(t, e.Count("instantiateModel"))
}

func TestLoad_CheckOutputMustMatchName(t *testing.T) {
	e := loadableEngine()

	err := Load(newSession(e), "Modelica.Blocks.Examples.PID", Options{Check: true})
	ee := requireStageError(t, err, StageCheck)
	assert.Contains(t, ee.Diagnostics, "Check of Modelica.Blocks.Examples.PID_Controller")
}

func TestLoad_InstantiateDiagnosticsFail(t *testing.T) {
	e := loadableEngine().
		On("getErrorString", `""`, `""`, `""`, `""`, `"Error: Too many equations, over-determined system.\n"`)

	err := Load(newSession(e), pid, Options{Check: true, Instantiate: true})
	ee := requireStageError(t, err, StageInstantiate)
	assert.Equal(t, pid+" could not be instantiated", ee.Message)
	assert.Contains(t, ee.Diagnostics, "over-determined")
}

func TestLoad_InstantiateRequiresCheck(t *testing.T) {
	e := loadableEngine()

	require.NoError(t, Load(newSession(e), pid, Options{Instantiate: true}))
	assert.Zero(t, e.Count("instantiateModel"))
}

func TestLoad_IsModelIsDeprecated(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	e := loadableEngine()

	require.NoError(t, Load(newSession(e), pid, Options{IsModel: true, Logger: logger}))
	assert.Contains(t, buf.String(), "deprecated")
}

func TestTopLevel(t *testing.T) {
	assert.Equal(t, "Modelica", TopLevel(pid))
	assert.Equal(t, "M", TopLevel("M"))
}
