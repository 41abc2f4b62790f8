// Package session manages the lifecycle of compiler sessions: creation with
// retry, detection of frozen connections, and scoped use.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/omtest/internal/omc"
)

// Config bounds session creation and freeze recovery.
type Config struct {
	// MaxCreateAttempts is how many dials Create makes before giving up on
	// transient failures.
	MaxCreateAttempts int

	// FreezeTimeout is how long the liveness probe may take.
	FreezeTimeout time.Duration

	// MaxFreezeRetries is how many times a frozen session is replaced
	// before AvoidFreeze gives up.
	MaxFreezeRetries int

	// IgnoredDiagnostics is passed to every session. Matching is exact.
	IgnoredDiagnostics []string
}

// DefaultConfig returns the stock limits: 10 create attempts, a 100ms probe
// and 10 reconnects.
func DefaultConfig() Config {
	return Config{
		MaxCreateAttempts: 10,
		FreezeTimeout:     100 * time.Millisecond,
		MaxFreezeRetries:  10,
	}
}

// Manager creates, probes and closes sessions.
type Manager struct {
	dialer omc.Dialer
	config Config
	logger *slog.Logger
}

// NewManager creates a Manager. Zero limits in config fall back to
// DefaultConfig; a nil logger discards output.
func NewManager(dialer omc.Dialer, config Config, logger *slog.Logger) *Manager {
	defaults := DefaultConfig()
	if config.MaxCreateAttempts <= 0 {
		config.MaxCreateAttempts = defaults.MaxCreateAttempts
	}
	if config.FreezeTimeout <= 0 {
		config.FreezeTimeout = defaults.FreezeTimeout
	}
	if config.MaxFreezeRetries <= 0 {
		config.MaxFreezeRetries = defaults.MaxFreezeRetries
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		dialer: dialer,
		config: config,
		logger: logger.With("component", "session"),
	}
}

// Config returns the effective limits.
func (m *Manager) Config() Config {
	return m.config
}

// Create dials a new session. Transient failures are retried up to
// MaxCreateAttempts times; any other failure is returned at once.
func (m *Manager) Create(ctx context.Context) (*omc.Session, error) {
	for attempt := 1; attempt <= m.config.MaxCreateAttempts; attempt++ {
		t, err := m.dialer.Dial(ctx)
		if err == nil {
			s := omc.NewSession(t, omc.SessionOptions{
				IgnoredDiagnostics: m.config.IgnoredDiagnostics,
				Logger:             m.logger,
			})
			m.logger.Debug("session created", "session", s.ID(), "attempt", attempt)
			return s, nil
		}
		if !errors.Is(err, omc.ErrTransient) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if attempt == m.config.MaxCreateAttempts {
			break
		}
		m.logger.Warn("session creation failed, retrying",
			"attempt", attempt,
			"max_attempts", m.config.MaxCreateAttempts,
			"error", err)
	}
	return nil, omc.Errorf("session could not be created after %d retries", m.config.MaxCreateAttempts)
}

// AvoidFreeze returns a session known to respond. It probes s with
// getVersion(); if no reply arrives within FreezeTimeout the session is
// marked frozen, closed and replaced, and the replacement is probed in turn.
//
// At most MaxFreezeRetries replacements are made. On failure every session
// created here has been closed and s must not be used.
func (m *Manager) AvoidFreeze(ctx context.Context, s *omc.Session) (*omc.Session, error) {
	for reconnects := 0; ; reconnects++ {
		alive, err := m.probe(ctx, s)
		if err != nil {
			m.discard(s)
			return nil, err
		}
		if alive {
			s.SetState(omc.StateConnected)
			return s, nil
		}

		m.logger.Warn("session frozen", "session", s.ID(), "timeout", m.config.FreezeTimeout)
		s.SetState(omc.StateFrozen)
		m.discard(s)

		if reconnects >= m.config.MaxFreezeRetries {
			return nil, omc.Errorf("session frozen after %d reconnect attempts", m.config.MaxFreezeRetries)
		}

		s, err = m.Create(ctx)
		if err != nil {
			return nil, err
		}
	}
}

// probe races a getVersion() call against FreezeTimeout. A failed call
// counts as not alive, so the session is replaced as if it had frozen.
// The losing result is discarded.
func (m *Manager) probe(ctx context.Context, s *omc.Session) (bool, error) {
	result := make(chan error, 1)
	go func() {
		_, err := s.Call("getVersion")
		result <- err
	}()

	timer := time.NewTimer(m.config.FreezeTimeout)
	defer timer.Stop()

	select {
	case err := <-result:
		if err != nil {
			m.logger.Warn("liveness probe failed", "session", s.ID(), "error", err)
			return false, nil
		}
		return true, nil
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// discard closes a session whose close errors are of no interest.
func (m *Manager) discard(s *omc.Session) {
	if err := s.Close(); err != nil {
		m.logger.Warn("error closing session", "session", s.ID(), "error", err)
	}
}

// Close sends quit() without waiting for the reply and releases the
// transport. Termination of the compiler is not verified.
func (m *Manager) Close(s *omc.Session) error {
	m.logger.Debug("closing session", "session", s.ID())
	return s.Close()
}

// Open creates a session and makes sure it responds.
func (m *Manager) Open(ctx context.Context) (*omc.Session, error) {
	s, err := m.Create(ctx)
	if err != nil {
		return nil, err
	}
	return m.AvoidFreeze(ctx, s)
}

// WithSession opens a session, runs fn with it and closes it on every exit
// path, panics included. Close errors are logged.
func WithSession(ctx context.Context, m *Manager, fn func(*omc.Session) error) error {
	s, err := m.Open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(s); err != nil {
			m.logger.Warn("error closing session", "session", s.ID(), "error", err)
		}
	}()
	return fn(s)
}
