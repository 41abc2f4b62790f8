package report

import (
	"time"
)

// Status is the outcome of one case.
type Status string

const (
	StatusPass Status = "pass"
	// StatusFail means the model was exercised and did not meet expectations.
	StatusFail Status = "fail"
	// StatusError means the case could not be run at all, for example
	// because no session could be opened.
	StatusError Status = "error"
)

// CaseResult is the outcome of testing one model.
type CaseResult struct {
	Model string `json:"model"`
	// Stage is the last stage attempted: session, load, resolve, check,
	// instantiate, simulate or regression.
	Stage       string   `json:"stage"`
	Status      Status   `json:"status"`
	Message     string   `json:"message,omitempty"`
	Diagnostics string   `json:"diagnostics,omitempty"`
	ResultFile  string   `json:"result_file,omitempty"`
	Missing     []string `json:"missing,omitempty"`
	Failing     []string `json:"failing,omitempty"`
	DurationMS  int64    `json:"duration_ms"`
}

// Run is one execution of a suite.
type Run struct {
	ID            string       `json:"id"`
	Suite         string       `json:"suite"`
	Source        string       `json:"source,omitempty"`
	EngineVersion string       `json:"engine_version,omitempty"`
	StartedAt     time.Time    `json:"started_at"`
	Cases         []CaseResult `json:"cases"`
}

// Summary counts case outcomes.
type Summary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
	Errors int `json:"errors"`
}

// Summary counts the run's case outcomes.
func (r *Run) Summary() Summary {
	s := Summary{Total: len(r.Cases)}
	for _, c := range r.Cases {
		switch c.Status {
		case StatusPass:
			s.Passed++
		case StatusFail:
			s.Failed++
		default:
			s.Errors++
		}
	}
	return s
}

// Passed reports whether every case passed.
func (r *Run) Passed() bool {
	s := r.Summary()
	return s.Passed == s.Total
}
