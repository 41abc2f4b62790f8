// Package model loads, resolves, checks and instantiates models in a
// compiler session.
//
// Load runs the stages strictly in order and stops at the first failure:
//
//  1. load the top-level package, unless it was defined inline
//  2. resolve the full name (always)
//  3. check the model (Options.Check)
//  4. instantiate it (Options.Instantiate, only after a check)
//
// Every call is followed by a diagnostics drain so compiler messages are
// attributed to the stage that produced them. Model names are looked up
// live on every call and never cached.
package model

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/omtest/internal/omc"
)

// interactiveFile is the file name the compiler reports for classes that
// were defined inline in the session rather than loaded from disk.
const interactiveFile = "<interactive>"

// classInfoFileIndex is the position of the file name in the
// getClassInformation tuple.
const classInfoFileIndex = 5

// Stage names a step of the load protocol.
type Stage string

const (
	StageLoad        Stage = "load"
	StageResolve     Stage = "resolve"
	StageCheck       Stage = "check"
	StageInstantiate Stage = "instantiate"
)

// Options selects the optional stages of Load.
type Options struct {
	// IsModel is deprecated and has no effect. Setting it logs a warning.
	IsModel bool

	// Check runs checkModel after the name resolves.
	Check bool

	// Instantiate runs instantiateModel. It only takes effect together with Check.
	Instantiate bool

	// Version pins the version of the top-level package to load.
	Version string

	Logger *slog.Logger
}

// StageError is a load failure tagged with the stage that produced it.
type StageError struct {
	Stage Stage
	Err   *omc.Error
}

func (e *StageError) Error() string {
	return e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Load makes name available in the session and validates it according to
// opts. Failures are *StageError values wrapping an *omc.Error.
func Load(s *omc.Session, name string, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("model", name)

	if opts.IsModel {
		logger.Warn("the ismodel option is deprecated and ignored")
	}

	top := TopLevel(name)
	inline, err := DefinedInline(s, top)
	if err != nil {
		return err
	}
	if inline {
		logger.Debug("top-level package defined inline, skipping load", "package", top)
	} else if err := LoadPackage(s, top, opts.Version); err != nil {
		return stageError(StageLoad, err)
	}

	if err := Resolve(s, name); err != nil {
		return stageError(StageResolve, err)
	}

	if !opts.Check {
		if opts.Instantiate {
			logger.Debug("instantiate requested without check, skipping")
		}
		return nil
	}
	if err := Check(s, name); err != nil {
		return stageError(StageCheck, err)
	}

	if opts.Instantiate {
		if err := Instantiate(s, name); err != nil {
			return stageError(StageInstantiate, err)
		}
	}
	return nil
}

func stageError(stage Stage, err error) error {
	if e, ok := omc.AsError(err); ok {
		return &StageError{Stage: stage, Err: e}
	}
	return err
}

// TopLevel returns the first component of a dotted name.
func TopLevel(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}

// DefinedInline reports whether class was defined inline in the session.
// Unknown classes are not inline; the diagnostics the query leaves behind
// are drained and dropped.
func DefinedInline(s *omc.Session, class string) (bool, error) {
	v, _, err := s.Exec("getClassInformation", omc.Ident(class))
	if err != nil {
		return false, err
	}
	if v.Kind != omc.KindTuple || len(v.Items) <= classInfoFileIndex {
		return false, nil
	}
	file := v.Items[classInfoFileIndex]
	return file.Kind == omc.KindString && file.Text == interactiveFile, nil
}

// LoadPackage loads a top-level package, optionally pinned to version.
// An empty response is an unexpected error distinct from a failed load.
func LoadPackage(s *omc.Session, pkg, version string) error {
	args := []omc.Arg{omc.Ident(pkg)}
	if version != "" {
		args = append(args, omc.Strings([]string{version}))
	}

	v, diag, err := s.Exec("loadModel", args...)
	if err != nil {
		return err
	}
	if v.IsNone() {
		return omc.NewError(fmt.Sprintf("unexpected error loading %s: no result", pkg), diag)
	}
	if ok, err := v.AsBool(); err != nil || !ok || diag != "" {
		return omc.NewError(fmt.Sprintf("could not load %s", pkg), diag)
	}
	return nil
}

// Restriction returns the class restriction of name ("model", "package",
// "block", ...), or "" if the name does not resolve.
func Restriction(s *omc.Session, name string) (string, string, error) {
	v, diag, err := s.Exec("getClassRestriction", omc.Ident(name))
	if err != nil {
		return "", "", err
	}
	if v.IsNone() {
		return "", diag, nil
	}
	r, err := v.AsString()
	if err != nil {
		return "", "", fmt.Errorf("getClassRestriction: %w", err)
	}
	return r, diag, nil
}

// Resolve fails when name does not resolve, even if its top-level package
// loaded.
func Resolve(s *omc.Session, name string) error {
	r, diag, err := Restriction(s, name)
	if err != nil {
		return err
	}
	if r == "" {
		return omc.NewError(fmt.Sprintf("%s not found in search path", name), diag)
	}
	return nil
}

// Check runs checkModel. The output must start with the compiler's success
// line for name; anything else fails with the output and diagnostics attached.
func Check(s *omc.Session, name string) error {
	v, diag, err := s.Exec("checkModel", omc.Ident(name))
	if err != nil {
		return err
	}
	out := v.Text
	if v.Kind != omc.KindString {
		out = v.String()
	}

	want := fmt.Sprintf("Check of %s completed successfully.", name)
	if !strings.HasPrefix(out, want) {
		details := strings.TrimSpace(strings.Join([]string{out, diag}, "\n"))
		return omc.NewError(fmt.Sprintf("%s check failed", name), details)
	}
	return nil
}

// Instantiate runs instantiateModel. Any diagnostics fail the stage.
func Instantiate(s *omc.Session, name string) error {
	_, diag, err := s.Exec("instantiateModel", omc.Ident(name))
	if err != nil {
		return err
	}
	if diag != "" {
		return omc.NewError(fmt.Sprintf("%s could not be instantiated", name), diag)
	}
	return nil
}
