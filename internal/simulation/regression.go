package simulation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/omtest/internal/omc"
)

// DefaultTolerance is the relative tolerance used when none is configured.
const DefaultTolerance = 1e-3

// ResultFileName is the compiler's name for the csv result of model.
func ResultFileName(model string) string {
	return model + "_res.csv"
}

// DiffLogName is the name of the comparison log written for model.
func DiffLogName(model string) string {
	return model + "_diff.log"
}

// Comparison is the outcome of a regression check.
type Comparison struct {
	Model string
	// Missing are variables in the new result that the reference lacks.
	Missing []string
	// Failing are compared variables whose trajectories differ.
	Failing []string
	// Compared is the number of variables present in both results.
	Compared int
	LogFile  string
}

// Passed reports whether nothing is missing and nothing differs.
func (c *Comparison) Passed() bool {
	return len(c.Missing) == 0 && len(c.Failing) == 0
}

// Regression compares resultFile, as reported by simulate(), against the
// reference file <model>_res.csv in refDir, using relative tolerance tol.
//
// Variables missing from the reference are reported without stopping the
// comparison, which covers the variables both files share. The outcome is
// also written to <model>_diff.log next to resultFile. An error is returned
// only when the comparison could not be made.
func Regression(s *omc.Session, model, resultFile, refDir string, tol float64) (*Comparison, error) {
	if tol <= 0 {
		tol = DefaultTolerance
	}
	actualFile := resultFile
	refFile := filepath.Join(refDir, ResultFileName(model))
	workDir := filepath.Dir(resultFile)

	actual, err := readVars(s, actualFile)
	if err != nil {
		return nil, err
	}
	reference, err := readVars(s, refFile)
	if err != nil {
		return nil, err
	}

	inRef := make(map[string]bool, len(reference))
	for _, v := range reference {
		inRef[v] = true
	}
	c := &Comparison{Model: model, LogFile: filepath.Join(workDir, DiffLogName(model))}
	var common []string
	for _, v := range actual {
		if inRef[v] {
			common = append(common, v)
		} else {
			c.Missing = append(c.Missing, v)
		}
	}
	c.Compared = len(common)

	if len(common) > 0 {
		c.Failing, err = diff(s, model, actualFile, refFile, filepath.Join(workDir, model+"_diff"), tol, common)
		if err != nil {
			return nil, err
		}
	}

	if err := writeDiffLog(c); err != nil {
		return nil, err
	}
	return c, nil
}

func readVars(s *omc.Session, file string) ([]string, error) {
	v, diag, err := s.Exec("readSimulationResultVars", omc.String(file))
	if err != nil {
		return nil, err
	}
	vars, err := v.AsStrings()
	if err != nil || len(vars) == 0 || diag != "" {
		return nil, omc.NewError(fmt.Sprintf("could not read result variables from %s", file), diag)
	}
	return vars, nil
}

func diff(s *omc.Session, model, actualFile, refFile, prefix string, tol float64, vars []string) ([]string, error) {
	v, diag, err := s.Exec("diffSimulationResults",
		omc.String(actualFile),
		omc.String(refFile),
		omc.String(prefix),
		omc.Named("relTol", omc.Number(tol)),
		omc.Named("vars", omc.Strings(vars)),
	)
	if err != nil {
		return nil, err
	}
	if v.Kind != omc.KindTuple || len(v.Items) < 2 {
		return nil, omc.NewError(fmt.Sprintf("could not compare results of %s", model), joinText(v.String(), diag))
	}
	failing, err := v.Items[1].AsStrings()
	if err != nil {
		return nil, omc.NewError(fmt.Sprintf("could not compare results of %s: %v", model, err), diag)
	}
	// A false flag or leftover diagnostics without any failing variable
	// means the files were never compared.
	ok, err := v.Items[0].AsBool()
	if err != nil || ((!ok || diag != "") && len(failing) == 0) {
		return nil, omc.NewError(fmt.Sprintf("could not compare results of %s", model), diag)
	}
	return failing, nil
}

func writeDiffLog(c *Comparison) error {
	var b strings.Builder
	fmt.Fprintf(&b, "model: %s\n", c.Model)
	fmt.Fprintf(&b, "compared: %d\n", c.Compared)
	for _, v := range c.Missing {
		fmt.Fprintf(&b, "missing in reference: %s\n", v)
	}
	for _, v := range c.Failing {
		fmt.Fprintf(&b, "differs: %s\n", v)
	}
	if c.Passed() {
		b.WriteString("result: pass\n")
	} else {
		b.WriteString("result: fail\n")
	}

	if err := os.WriteFile(c.LogFile, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write diff log: %w", err)
	}
	return nil
}
