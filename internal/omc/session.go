// Package omc speaks the OpenModelica compiler's scripting protocol.
//
// Every operation is an expression such as loadModel(Modelica) sent over a
// request/response transport; the reply is compiler-syntax text that is
// decoded into a tagged Value at the call site.
//
// # Diagnostics
//
// The compiler accumulates error and warning text in a per-session buffer
// that is only cleared by reading it. Session.DrainDiagnostics reads it and
// must be called right after every call whose failure matters, otherwise the
// text leaks into an unrelated later check. Session.Exec does both in one
// step.
//
// # Transports
//
// Session is transport-agnostic. ZMQTransport talks to a running compiler and
// Launcher starts one and connects to it. Tests provide scripted transports.
package omc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Transport carries one expression and returns the raw reply text.
// Send blocks until the reply arrives and cannot be interrupted mid-flight.
type Transport interface {
	Send(expr string) (string, error)
	// SendNoWait sends an expression without reading its reply.
	SendNoWait(expr string) error
	Close() error
}

// Dialer opens new transports to a compiler instance.
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Transport, error)

// Dial calls f(ctx).
func (f DialerFunc) Dial(ctx context.Context) (Transport, error) { return f(ctx) }

// State is the lifecycle state of a session.
type State string

const (
	StateUnconnected State = "unconnected"
	StateConnecting  State = "connecting"
	StateConnected   State = "connected"
	StateFrozen      State = "frozen"
	StateClosed      State = "closed"
)

// SessionOptions configures a Session.
type SessionOptions struct {
	// IgnoredDiagnostics lists diagnostic texts that DrainDiagnostics
	// discards. Matching is exact.
	IgnoredDiagnostics []string

	// Logger receives debug output for every request. Defaults to a discard logger.
	Logger *slog.Logger
}

// Session is a handle to one live compiler connection.
//
// Calls are strictly sequential: one expression in flight at a time.
type Session struct {
	id        string
	transport Transport
	ignored   map[string]bool
	logger    *slog.Logger

	state atomic.Value
	mu    sync.Mutex
}

// NewSession wraps a transport. The session starts in StateConnecting until
// the lifecycle manager confirms it responds.
func NewSession(t Transport, opts SessionOptions) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ignored := make(map[string]bool, len(opts.IgnoredDiagnostics))
	for _, d := range opts.IgnoredDiagnostics {
		ignored[d] = true
	}

	s := &Session{
		id:        uuid.NewString(),
		transport: t,
		ignored:   ignored,
	}
	s.logger = logger.With("session", s.id)
	s.state.Store(StateConnecting)
	return s
}

// ID identifies the session in logs.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state.Load().(State)
}

// SetState records a lifecycle transition.
func (s *Session) SetState(st State) {
	s.state.Store(st)
}

// Raw sends an expression and returns the reply text unparsed.
func (s *Session) Raw(expr string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == StateClosed {
		return "", ErrSessionClosed
	}

	s.logger.Debug("sending expression", "expr", expr)
	reply, err := s.transport.Send(expr)
	if err != nil {
		return "", fmt.Errorf("send %s: %w", expr, err)
	}
	s.logger.Debug("received reply", "bytes", len(reply))
	return reply, nil
}

// Request sends an expression and decodes the reply.
func (s *Session) Request(expr string) (Value, error) {
	reply, err := s.Raw(expr)
	if err != nil {
		return Value{}, err
	}
	v, err := ParseValue(reply)
	if err != nil {
		return Value{}, fmt.Errorf("%s: %w", expr, err)
	}
	return v, nil
}

// Call formats and sends function(args...) and decodes the reply.
func (s *Session) Call(function string, args ...Arg) (Value, error) {
	return s.Request(FormatCall(function, args...))
}

// DrainDiagnostics reads and thereby clears the compiler's diagnostic
// buffer. Texts listed in SessionOptions.IgnoredDiagnostics read as empty.
func (s *Session) DrainDiagnostics() (string, error) {
	v, err := s.Call("getErrorString")
	if err != nil {
		return "", err
	}
	text, err := v.AsString()
	if err != nil {
		return "", fmt.Errorf("getErrorString: %w", err)
	}
	if s.ignored[text] {
		s.logger.Debug("ignoring known diagnostic", "text", text)
		return "", nil
	}
	return text, nil
}

// Exec calls function(args...) and drains the diagnostics it produced.
func (s *Session) Exec(function string, args ...Arg) (Value, string, error) {
	v, err := s.Call(function, args...)
	if err != nil {
		return Value{}, "", err
	}
	diag, err := s.DrainDiagnostics()
	if err != nil {
		return Value{}, "", err
	}
	return v, diag, nil
}

// Close asks the compiler to quit without waiting for the reply, then closes
// the transport. It does not verify that the compiler terminated.
// Closing an already closed session is a no-op.
func (s *Session) Close() error {
	if s.State() == StateClosed {
		return nil
	}
	s.SetState(StateClosed)

	s.logger.Debug("closing session")
	quitErr := s.transport.SendNoWait(FormatCall("quit"))
	closeErr := s.transport.Close()
	return errors.Join(quitErr, closeErr)
}
