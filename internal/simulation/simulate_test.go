package simulation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/omtest/internal/omc"
	"github.com/roach88/omtest/internal/testutil"
)

func simulationRecord(resultFile, messages string) string {
	return `record SimulationResult
    resultFile = "` + resultFile + `",
    simulationOptions = "startTime = 0.0, stopTime = 1.0",
    messages = "` + messages + `",
    timeFrontend = 0.01,
    timeTotal = 0.75
end SimulationResult;
`
}

func TestSimulate_Success(t *testing.T) {
	e := testutil.NewFakeEngine().On("simulate", simulationRecord("/work/M_res.csv",
		`LOG_SUCCESS       | info    | The initialization finished successfully without homotopy method.
LOG_SUCCESS       | info    | The simulation finished successfully.
`))
	s := omc.NewSession(e, omc.SessionOptions{})

	settings, err := Merge(Defaults{StopTime: 1, Tolerance: 1e-6, NumberOfIntervals: 500, Interval: 0.002}, nil)
	require.NoError(t, err)

	res, err := Simulate(s, "M", settings, "-s=dassl")
	require.NoError(t, err)
	assert.Equal(t, "/work/M_res.csv", res.ResultFile)
	assert.Equal(t, 0.75, res.TimeTotal)
	assert.Equal(t,
		`simulate(M, startTime=0, stopTime=1, tolerance=1e-06, numberOfIntervals=500, outputFormat="csv", variableFilter=".*", simflags="-s=dassl")`,
		e.Sent()[0])
}

func TestSimulate_Failures(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		diag  string
		msg   string
	}{
		{
			name:  "execution failed",
			reply: simulationRecord("", `Simulation execution failed for model: M
LOG_STDOUT        | error   | division by zero
`),
			msg: "M: simulation failed",
		},
		{
			name: "warning",
			reply: simulationRecord("/work/M_res.csv", `LOG_STDOUT        | warning | The default linear solver fails, the fallback solver is used.
LOG_SUCCESS       | info    | The simulation finished successfully.
`),
			msg: "M: simulation produced a warning",
		},
		{
			name:  "no result file",
			reply: simulationRecord("", ""),
			msg:   "M: simulation failed",
		},
		{
			name:  "residual diagnostics",
			reply: simulationRecord("/work/M_res.csv", "LOG_SUCCESS | info | The simulation finished successfully.\n"),
			diag:  `"Warning: The model contains alias variables with redundant start and/or conflicting nominal values.\n"`,
			msg:   "M: simulation failed",
		},
		{
			name:  "not a record",
			reply: `""`,
			msg:   "M: simulation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testutil.NewFakeEngine().On("simulate", tt.reply)
			if tt.diag != "" {
				e.On("getErrorString", tt.diag)
			}
			s := omc.NewSession(e, omc.SessionOptions{})

			_, err := Simulate(s, "M", Settings{StopTime: Num(1)}, "")
			require.Error(t, err)
			ee, ok := omc.AsError(err)
			require.True(t, ok)
			assert.Equal(t, tt.msg, ee.Message)
			assert.NotContains(t, e.Sent()[0], "simflags")
		})
	}
}

func TestSimFlags(t *testing.T) {
	e := testutil.NewFakeEngine().
		On("getAnnotationNamedModifiers", `{"s", "lv", "noEquidistantTimeGrid"}`).
		On("getAnnotationModifierValue", `"dassl"`, `"LOG_STATS"`, `""`)
	s := omc.NewSession(e, omc.SessionOptions{})

	flags, err := SimFlags(s, "M")
	require.NoError(t, err)
	assert.Equal(t, "-s=dassl -lv=LOG_STATS -noEquidistantTimeGrid", flags)
	assert.Contains(t, e.Sent(), `getAnnotationModifierValue(M, "__OpenModelica_simulationFlags", "lv")`)
}

func TestSimFlags_NoAnnotation(t *testing.T) {
	e := testutil.NewFakeEngine().On("getAnnotationNamedModifiers", "{}")
	s := omc.NewSession(e, omc.SessionOptions{})

	flags, err := SimFlags(s, "M")
	require.NoError(t, err)
	assert.Empty(t, flags)
	assert.Zero(t, e.Count("getAnnotationModifierValue"))
}
