// Package simulation runs models and compares their results against
// reference data.
package simulation

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/roach88/omtest/internal/omc"
)

// Setting keys understood by simulate().
const (
	StartTime         = "startTime"
	StopTime          = "stopTime"
	Tolerance         = "tolerance"
	NumberOfIntervals = "numberOfIntervals"
	OutputFormat      = "outputFormat"
	VariableFilter    = "variableFilter"

	// Interval is accepted as an override only. It is turned into
	// numberOfIntervals and never sent to the compiler.
	Interval = "interval"
)

// settingOrder fixes the argument order of simulate calls.
var settingOrder = []string{StartTime, StopTime, Tolerance, NumberOfIntervals, OutputFormat, VariableFilter}

var textKeys = map[string]bool{OutputFormat: true, VariableFilter: true}

// Setting is a numeric or string simulation parameter.
type Setting struct {
	Number float64
	Text   string
	IsText bool
}

// Num creates a numeric setting.
func Num(f float64) Setting { return Setting{Number: f} }

// Str creates a string setting.
func Str(s string) Setting { return Setting{Text: s, IsText: true} }

// Arg renders the setting for a call: strings quoted, numbers bare.
func (s Setting) Arg() omc.Arg {
	if s.IsText {
		return omc.String(s.Text)
	}
	return omc.Number(s.Number)
}

func (s Setting) String() string {
	if s.IsText {
		return strconv.Quote(s.Text)
	}
	return strconv.FormatFloat(s.Number, 'g', -1, 64)
}

// Settings maps setting keys to values.
type Settings map[string]Setting

// Keys returns the keys in simulate() argument order, followed by any
// others sorted.
func (s Settings) Keys() []string {
	keys := make([]string, 0, len(s))
	seen := make(map[string]bool, len(s))
	for _, k := range settingOrder {
		if _, ok := s[k]; ok {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range s {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// Defaults holds what getSimulationOptions reports for a model.
type Defaults struct {
	StartTime         float64
	StopTime          float64
	Tolerance         float64
	NumberOfIntervals float64
	Interval          float64
}

// ReadDefaults queries the model's experiment annotation.
func ReadDefaults(s *omc.Session, model string) (Defaults, error) {
	v, diag, err := s.Exec("getSimulationOptions", omc.Ident(model))
	if err != nil {
		return Defaults{}, err
	}
	if v.Kind != omc.KindTuple || len(v.Items) < 5 {
		return Defaults{}, omc.NewError(fmt.Sprintf("could not read simulation options of %s", model), diag)
	}

	nums := make([]float64, 5)
	for i := range nums {
		n, err := v.Items[i].AsNumber()
		if err != nil {
			return Defaults{}, omc.NewError(fmt.Sprintf("could not read simulation options of %s: %v", model, err), diag)
		}
		nums[i] = n
	}
	return Defaults{
		StartTime:         nums[0],
		StopTime:          nums[1],
		Tolerance:         nums[2],
		NumberOfIntervals: nums[3],
		Interval:          nums[4],
	}, nil
}

// GetSettings builds the settings for simulating model: the model's own
// defaults, csv output and an all-variables filter, then overrides.
//
// numberOfIntervals is recomputed as floor((stop-start)/interval) when the
// interval is overridden, or when a time bound is overridden while neither
// numberOfIntervals nor interval is. Unknown override keys are an error.
func GetSettings(s *omc.Session, model string, overrides Settings) (Settings, error) {
	d, err := ReadDefaults(s, model)
	if err != nil {
		return nil, err
	}
	return Merge(d, overrides)
}

// Merge applies overrides to defaults. See GetSettings.
func Merge(d Defaults, overrides Settings) (Settings, error) {
	settings := Settings{
		StartTime:         Num(d.StartTime),
		StopTime:          Num(d.StopTime),
		Tolerance:         Num(d.Tolerance),
		NumberOfIntervals: Num(d.NumberOfIntervals),
		OutputFormat:      Str("csv"),
		VariableFilter:    Str(".*"),
	}
	interval := d.Interval

	for _, k := range overrides.Keys() {
		v := overrides[k]
		if k == Interval {
			if v.IsText {
				return nil, omc.Errorf("simulation setting %s must be a number", k)
			}
			interval = v.Number
			continue
		}
		if _, ok := settings[k]; !ok {
			return nil, omc.Errorf("unknown simulation setting %q", k)
		}
		if v.IsText != textKeys[k] {
			want := "a number"
			if textKeys[k] {
				want = "a string"
			}
			return nil, omc.Errorf("simulation setting %s must be %s", k, want)
		}
		settings[k] = v
	}

	_, hasInterval := overrides[Interval]
	_, hasIntervals := overrides[NumberOfIntervals]
	_, hasStart := overrides[StartTime]
	_, hasStop := overrides[StopTime]

	if hasInterval || ((hasStart || hasStop) && !hasIntervals) {
		if interval <= 0 {
			return nil, omc.Errorf("simulation interval must be positive, got %g", interval)
		}
		span := settings[StopTime].Number - settings[StartTime].Number
		settings[NumberOfIntervals] = Num(math.Floor(span / interval))
	}
	return settings, nil
}
