package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/roach88/omtest/internal/report"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // A case or validation failed
	ExitCommandError = 2 // Command error (bad paths, config, no compiler, etc.)
)

// Error code constants, shared by all commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No suite files found
	ErrCodeLoadFailed  = "E004" // Suite could not be loaded
	ErrCodeNotFound    = "E005" // Path or record not found
	ErrCodeConfig      = "E006" // Configuration error
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeStore       = "E008" // History database error
	ErrCodeSession     = "E009" // No compiler session

	// Suite validation errors
	ErrCodeSchema     = "E101" // Value does not match the suite schema
	ErrCodeNoCases    = "E102" // Suite defines no cases
	ErrCodeRegression = "E103" // Regression without simulate
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitSuccess for nil and ExitFailure if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E002", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports an error and returns it as an ExitError with exitCode.
func (f *OutputFormatter) Fail(exitCode int, code, message string, err error) error {
	msg := message
	if err != nil {
		msg = fmt.Sprintf("%s: %v", message, err)
	}
	_ = f.Error(code, msg, nil)
	return WrapExitError(exitCode, message, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// WriteRun prints one line per case, details for cases that did not pass,
// and a summary line.
func WriteRun(w io.Writer, run *report.Run) {
	for _, c := range run.Cases {
		mark := "✓"
		if c.Status != report.StatusPass {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s (%s, %dms)\n", mark, c.Model, c.Stage, c.DurationMS)
		if c.ResultFile != "" {
			fmt.Fprintf(w, "  result: %s\n", c.ResultFile)
		}
		if c.Status == report.StatusPass {
			continue
		}
		if c.Message != "" {
			fmt.Fprintf(w, "  %s: %s\n", c.Status, c.Message)
		}
		if d := strings.TrimSpace(c.Diagnostics); d != "" {
			for _, line := range strings.Split(d, "\n") {
				fmt.Fprintf(w, "    %s\n", line)
			}
		}
		for _, v := range c.Missing {
			fmt.Fprintf(w, "    missing in reference: %s\n", v)
		}
		for _, v := range c.Failing {
			fmt.Fprintf(w, "    differs: %s\n", v)
		}
	}

	s := run.Summary()
	fmt.Fprintf(w, "\n%s: %d case(s), %d passed, %d failed, %d error(s)\n",
		run.Suite, s.Total, s.Passed, s.Failed, s.Errors)
}
