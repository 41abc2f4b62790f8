// Package suite loads regression-suite definitions written in CUE.
//
// A suite file is a single CUE value checked against the embedded #Suite
// schema:
//
//	name:         "msl-blocks"
//	referenceDir: "reference/msl-4.0.0"
//	libraries: [{name: "Modelica", version: "4.0.0"}]
//	cases: {
//	    "Modelica.Blocks.Examples.PID_Controller": {
//	        simulate:   true
//	        regression: true
//	        settings: {stopTime: 4, interval: 0.01}
//	    }
//	}
//
// Unknown fields and ill-typed values are rejected with their source
// position. Cases keep the order they are written in.
package suite

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/omtest/internal/model"
	"github.com/roach88/omtest/internal/simulation"
)

const schemaFile = "schema.cue"

//go:embed schema.cue
var schemaSource string

// Suite is a validated suite definition.
type Suite struct {
	Name               string
	WorkDir            string
	ReferenceDir       string
	ModelicaPath       []string
	CommandLineOptions string
	Libraries          []model.Library
	IgnoredDiagnostics []string
	Tolerance          float64
	Cases              []Case

	// Source is the file the suite was loaded from, if any.
	Source string
}

// Case is one model under test.
type Case struct {
	Model       string
	IsModel     bool
	Check       bool
	Instantiate bool
	Simulate    bool
	Regression  bool
	// SimFlags passes the model's own runtime flags annotation to simulate.
	SimFlags  bool
	Tolerance float64
	Settings  simulation.Settings
	Pos       token.Pos
}

// Error is a suite definition problem, located when CUE knows where.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type document struct {
	Name               string       `json:"name"`
	WorkDir            string       `json:"workDir"`
	ReferenceDir       string       `json:"referenceDir"`
	ModelicaPath       []string     `json:"modelicaPath"`
	CommandLineOptions string       `json:"commandLineOptions"`
	Libraries          []libraryDoc `json:"libraries"`
	IgnoredDiagnostics []string     `json:"ignoredDiagnostics"`
	Tolerance          float64      `json:"tolerance"`
}

type libraryDoc struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	Install    bool   `json:"install"`
	ExactMatch bool   `json:"exactMatch"`
}

type caseDoc struct {
	IsModel     bool           `json:"ismodel"`
	Check       bool           `json:"check"`
	Instantiate bool           `json:"instantiate"`
	Simulate    bool           `json:"simulate"`
	Regression  bool           `json:"regression"`
	SimFlags    bool           `json:"simflags"`
	Tolerance   float64        `json:"tolerance"`
	Settings    map[string]any `json:"settings"`
}

// Compile validates CUE source. filename is used in error positions.
func Compile(src []byte, filename string) (*Suite, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	s, err := build(ctx, v)
	if err != nil {
		return nil, err
	}
	s.Source = filename
	return s, nil
}

// LoadFile loads the suite in a single .cue file.
func LoadFile(path string) (*Suite, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &Error{Field: "file", Message: fmt.Sprintf("suite file not found: %s", path)}
	}
	if info.IsDir() {
		return nil, &Error{Field: "file", Message: fmt.Sprintf("not a file: %s", path)}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	instances := load.Instances([]string{filepath.Base(abs)}, &load.Config{Dir: filepath.Dir(abs)})
	if len(instances) == 0 {
		return nil, &Error{Field: "file", Message: "no CUE instances loaded"}
	}
	if err := instances[0].Err; err != nil {
		return nil, formatCUEError(err)
	}

	ctx := cuecontext.New()
	v := ctx.BuildInstance(instances[0])
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	s, err := build(ctx, v)
	if err != nil {
		return nil, err
	}
	s.Source = path
	return s, nil
}

// FindFiles walks dir and returns every .cue file, sorted.
func FindFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

func build(ctx *cue.Context, v cue.Value) (*Suite, error) {
	schema := ctx.CompileString(schemaSource, cue.Filename(schemaFile))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("suite schema: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Suite")).Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var doc document
	if err := decode(unified, &doc); err != nil {
		return nil, err
	}

	s := &Suite{
		Name:               doc.Name,
		WorkDir:            doc.WorkDir,
		ReferenceDir:       doc.ReferenceDir,
		ModelicaPath:       doc.ModelicaPath,
		CommandLineOptions: doc.CommandLineOptions,
		IgnoredDiagnostics: doc.IgnoredDiagnostics,
		Tolerance:          doc.Tolerance,
	}
	for _, l := range doc.Libraries {
		s.Libraries = append(s.Libraries, model.Library{
			Name:       l.Name,
			Version:    l.Version,
			Install:    l.Install,
			ExactMatch: l.ExactMatch,
		})
	}

	cases := unified.LookupPath(cue.ParsePath("cases"))
	iter, err := cases.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		c, err := buildCase(iter.Selector().Unquoted(), iter.Value(), v)
		if err != nil {
			return nil, err
		}
		s.Cases = append(s.Cases, c)
	}
	if len(s.Cases) == 0 {
		return nil, &Error{Field: "cases", Message: "at least one case is required", Pos: v.Pos()}
	}
	return s, nil
}

func buildCase(name string, v, src cue.Value) (Case, error) {
	pos := v.Pos()
	if p := src.LookupPath(cue.MakePath(cue.Str("cases"), cue.Str(name))); p.Exists() {
		pos = p.Pos()
	}

	var doc caseDoc
	if err := decode(v, &doc); err != nil {
		return Case{}, err
	}
	if doc.Regression && !doc.Simulate {
		return Case{}, &Error{Field: "cases." + name, Message: "regression requires simulate", Pos: pos}
	}

	c := Case{
		Model:       name,
		IsModel:     doc.IsModel,
		Check:       doc.Check,
		Instantiate: doc.Instantiate,
		Simulate:    doc.Simulate,
		Regression:  doc.Regression,
		SimFlags:    doc.SimFlags,
		Tolerance:   doc.Tolerance,
		Settings:    simulation.Settings{},
		Pos:         pos,
	}
	for k, raw := range doc.Settings {
		switch val := raw.(type) {
		case float64:
			c.Settings[k] = simulation.Num(val)
		case string:
			c.Settings[k] = simulation.Str(val)
		default:
			return Case{}, &Error{Field: "cases." + name + ".settings." + k, Message: fmt.Sprintf("unsupported value %v", raw), Pos: pos}
		}
	}
	return c, nil
}

func decode(v cue.Value, out any) error {
	data, err := v.MarshalJSON()
	if err != nil {
		return formatCUEError(err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode suite: %w", err)
	}
	return nil
}

// formatCUEError keeps the first error, located in the suite source rather
// than the schema when CUE reports both.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	e := &Error{Field: "cue", Message: first.Error()}
	for _, pos := range errors.Positions(first) {
		if !e.Pos.IsValid() || e.Pos.Filename() == schemaFile {
			e.Pos = pos
		}
	}
	return e
}

// Environment returns the compiler environment the suite's cases run in.
// Relative directories are resolved against base.
func (s *Suite) Environment(base string) model.Environment {
	return model.Environment{
		WorkDir:            s.resolve(base, s.WorkDir),
		ModelicaPath:       s.ModelicaPath,
		Libraries:          s.Libraries,
		CommandLineOptions: s.CommandLineOptions,
	}
}

// ReferencePath resolves the reference directory against base.
func (s *Suite) ReferencePath(base string) string {
	return s.resolve(base, s.ReferenceDir)
}

func (s *Suite) resolve(base, dir string) string {
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(base, dir)
}

// LoadOptions maps the case's stage flags and the suite's pinned version of
// the model's top-level package to model load options.
func (s *Suite) LoadOptions(c Case) model.Options {
	env := model.Environment{Libraries: s.Libraries}
	return model.Options{
		IsModel:     c.IsModel,
		Check:       c.Check,
		Instantiate: c.Instantiate,
		Version:     env.LibraryVersion(model.TopLevel(c.Model)),
	}
}

// CaseTolerance returns the case tolerance or the suite default.
func (s *Suite) CaseTolerance(c Case) float64 {
	if c.Tolerance > 0 {
		return c.Tolerance
	}
	return s.Tolerance
}
