package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/omtest/internal/suite"
)

// LoadMode controls how errors are handled during suite loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadedSuite is a suite together with the directory its relative paths
// resolve against.
type LoadedSuite struct {
	Suite *suite.Suite
	Path  string
	Base  string
}

// LoadError represents an error that occurred during suite loading.
type LoadError struct {
	Code    string
	File    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	if e.File != "" {
		return fmt.Sprintf("%s: %s: %s", e.File, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FindSuiteFiles expands paths into suite files. Directories are searched
// recursively for .cue files. filter, if set, is a glob matched against the
// file name without extension.
func FindSuiteFiles(paths []string, filter string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if errors.Is(err, os.ErrNotExist) {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("path not found: %s", p)}
		}
		if err != nil {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing %s: %v", p, err)}
		}

		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		found, err := suite.FindFiles(p)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
		}
		files = append(files, found...)
	}

	if filter != "" {
		kept := files[:0]
		for _, f := range files {
			name := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("invalid filter pattern: %v", err)}
			}
			if matched {
				kept = append(kept, f)
			}
		}
		files = kept
	}

	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no suite files found in %s", strings.Join(paths, ", "))}
	}
	return files, nil
}

// LoadSuites loads every file. With LoadModeFailFast it returns on the
// first error; otherwise every error is collected and the valid suites are
// still returned.
func LoadSuites(files []string, mode LoadMode) ([]LoadedSuite, []error) {
	var (
		suites []LoadedSuite
		errs   []error
	)
	for _, f := range files {
		s, err := suite.LoadFile(f)
		if err != nil {
			errs = append(errs, convertSuiteError(f, err))
			if mode == LoadModeFailFast {
				return suites, errs
			}
			continue
		}
		abs, err := filepath.Abs(f)
		if err != nil {
			errs = append(errs, &LoadError{Code: ErrCodeLoadFailed, File: f, Message: err.Error()})
			if mode == LoadModeFailFast {
				return suites, errs
			}
			continue
		}
		suites = append(suites, LoadedSuite{Suite: s, Path: f, Base: filepath.Dir(abs)})
	}
	return suites, errs
}

// convertSuiteError converts a suite error to a LoadError with position info.
func convertSuiteError(file string, err error) *LoadError {
	var suiteErr *suite.Error
	if errors.As(err, &suiteErr) {
		return &LoadError{
			Code:    mapSuiteErrorToCode(suiteErr),
			File:    file,
			Message: suiteErr.Message,
			Pos:     suiteErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeLoadFailed,
		File:    file,
		Message: err.Error(),
	}
}

func mapSuiteErrorToCode(e *suite.Error) string {
	switch {
	case e.Field == "file":
		return ErrCodeNotFound
	case e.Field == "cue":
		return ErrCodeSchema
	case e.Field == "cases" && strings.Contains(e.Message, "at least one case"):
		return ErrCodeNoCases
	case strings.Contains(e.Message, "regression requires simulate"):
		return ErrCodeRegression
	default:
		return ErrCodeGeneric
	}
}
