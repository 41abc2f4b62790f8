package simulation

import (
	"fmt"
	"strings"

	"github.com/roach88/omtest/internal/omc"
)

const (
	// failureMarker starts the messages of a simulation that did not run.
	failureMarker = "Simulation execution failed"
	// warningMarker appears in runtime log lines at warning level.
	warningMarker = "| warning |"

	simulationFlagsAnnotation = "__OpenModelica_simulationFlags"
)

// Result is the decoded SimulationResult record.
type Result struct {
	ResultFile string
	Messages   string
	TimeTotal  float64
}

// Simulate runs model with settings and returns the result file path.
//
// Runtime warnings are failures. simflags, when set, are passed through as
// runtime flags (see SimFlags).
func Simulate(s *omc.Session, model string, settings Settings, simflags string) (Result, error) {
	args := []omc.Arg{omc.Ident(model)}
	for _, k := range settings.Keys() {
		args = append(args, omc.Named(k, settings[k].Arg()))
	}
	if simflags != "" {
		args = append(args, omc.Named("simflags", omc.String(simflags)))
	}

	v, diag, err := s.Exec("simulate", args...)
	if err != nil {
		return Result{}, err
	}
	if v.Kind != omc.KindRecord {
		return Result{}, omc.NewError(fmt.Sprintf("%s: simulation failed", model), joinText(v.String(), diag))
	}

	var res Result
	if f, ok := v.Field("resultFile"); ok {
		res.ResultFile = f.Text
	}
	if f, ok := v.Field("messages"); ok {
		res.Messages = f.Text
	}
	if f, ok := v.Field("timeTotal"); ok {
		res.TimeTotal = f.Number
	}

	switch {
	case strings.HasPrefix(res.Messages, failureMarker):
		return res, omc.NewError(fmt.Sprintf("%s: simulation failed", model), joinText(res.Messages, diag))
	case strings.Contains(res.Messages, warningMarker):
		return res, omc.NewError(fmt.Sprintf("%s: simulation produced a warning", model), joinText(res.Messages, diag))
	case res.ResultFile == "":
		return res, omc.NewError(fmt.Sprintf("%s: simulation failed", model), joinText(res.Messages, diag))
	case diag != "":
		return res, omc.NewError(fmt.Sprintf("%s: simulation failed", model), diag)
	}
	return res, nil
}

// SimFlags reads the runtime flags a model declares in its
// __OpenModelica_simulationFlags annotation and renders them as
// "-name=value" separated by spaces. Flags without a value render as "-name".
func SimFlags(s *omc.Session, model string) (string, error) {
	v, _, err := s.Exec("getAnnotationNamedModifiers", omc.Ident(model), omc.String(simulationFlagsAnnotation))
	if err != nil {
		return "", err
	}
	if v.Kind != omc.KindList {
		return "", nil
	}
	names, err := v.AsStrings()
	if err != nil {
		return "", fmt.Errorf("getAnnotationNamedModifiers: %w", err)
	}

	flags := make([]string, 0, len(names))
	for _, name := range names {
		val, diag, err := s.Exec("getAnnotationModifierValue", omc.Ident(model), omc.String(simulationFlagsAnnotation), omc.String(name))
		if err != nil {
			return "", err
		}
		if diag != "" {
			return "", omc.NewError(fmt.Sprintf("could not read simulation flag %s of %s", name, model), diag)
		}
		text := val.Text
		if val.Kind != omc.KindString {
			text = val.String()
		}
		if text == "" {
			flags = append(flags, "-"+name)
			continue
		}
		flags = append(flags, fmt.Sprintf("-%s=%s", name, text))
	}
	return strings.Join(flags, " "), nil
}

func joinText(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}
