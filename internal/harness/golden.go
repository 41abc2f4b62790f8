package harness

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/omtest/internal/report"
	"github.com/roach88/omtest/internal/testutil"
)

// Transcript renders the exchanges of each engine under a "# session N"
// header, in dial order. Occurrences of each key in replace are substituted
// with its value so temporary paths do not leak into golden files.
func Transcript(engines []*testutil.FakeEngine, replace map[string]string) ([]byte, error) {
	var b bytes.Buffer
	for i, e := range engines {
		fmt.Fprintf(&b, "# session %d\n", i+1)
		if err := e.WriteTranscript(&b); err != nil {
			return nil, err
		}
	}
	return substitute(b.Bytes(), replace), nil
}

// ReportJSON renders run canonically, with the same substitutions as
// Transcript.
func ReportJSON(run *report.Run, replace map[string]string) ([]byte, error) {
	data, err := report.Marshal(run)
	if err != nil {
		return nil, err
	}
	return substitute(data, replace), nil
}

// AssertGolden compares data against testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name string, data []byte) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}

func substitute(data []byte, replace map[string]string) []byte {
	if len(replace) == 0 {
		return data
	}
	pairs := make([]string, 0, 2*len(replace))
	for old, repl := range replace {
		pairs = append(pairs, old, repl)
	}
	return []byte(strings.NewReplacer(pairs...).Replace(string(data)))
}
