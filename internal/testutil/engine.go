// Package testutil provides a scripted compiler for tests.
//
// FakeEngine implements omc.Transport. Replies are scripted per function
// name, every exchange is recorded in a transcript, and individual functions
// can be made to hang so freeze handling can be exercised without a real
// compiler.
package testutil

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/roach88/omtest/internal/omc"
)

// ErrEngineClosed is returned by Send after Close.
var ErrEngineClosed = errors.New("fake engine closed")

// Handler computes a reply from the full expression.
type Handler func(expr string) string

// Exchange is one recorded request and its reply.
type Exchange struct {
	Expr  string
	Reply string
}

// FakeEngine is an in-memory compiler scripted by function name.
//
// Unscripted functions reply with an empty response, except getErrorString
// which replies with an empty string literal so diagnostics drain clean.
//
// Thread-safety: all methods are safe for concurrent use. A hanging call
// blocks only itself.
type FakeEngine struct {
	mu         sync.Mutex
	replies    map[string][]string
	handlers   map[string]Handler
	hang       map[string]bool
	transcript []Exchange
	noWait     []string
	closed     bool
	released   chan struct{}
}

// NewFakeEngine creates an engine with no scripted replies.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{
		replies:  map[string][]string{},
		handlers: map[string]Handler{},
		hang:     map[string]bool{},
		released: make(chan struct{}),
	}
}

// On queues replies for a function. Replies are consumed in order and the
// last one repeats.
func (e *FakeEngine) On(function string, replies ...string) *FakeEngine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.replies[function] = append(e.replies[function], replies...)
	return e
}

// Handle routes a function to h. Handlers take precedence over queued replies.
func (e *FakeEngine) Handle(function string, h Handler) *FakeEngine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[function] = h
	return e
}

// Hang makes calls to function block until the engine is closed.
func (e *FakeEngine) Hang(function string) *FakeEngine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hang[function] = true
	return e
}

// Send implements omc.Transport.
func (e *FakeEngine) Send(expr string) (string, error) {
	fn := functionName(expr)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", ErrEngineClosed
	}
	if e.hang[fn] {
		e.mu.Unlock()
		<-e.released
		return "", ErrEngineClosed
	}

	reply := e.reply(fn, expr)
	e.transcript = append(e.transcript, Exchange{Expr: expr, Reply: reply})
	e.mu.Unlock()
	return reply, nil
}

// reply must be called with mu held.
func (e *FakeEngine) reply(fn, expr string) string {
	if h, ok := e.handlers[fn]; ok {
		return h(expr)
	}
	queue := e.replies[fn]
	if len(queue) == 0 {
		if fn == "getErrorString" {
			return `""`
		}
		return ""
	}
	if len(queue) > 1 {
		e.replies[fn] = queue[1:]
	}
	return queue[0]
}

// SendNoWait implements omc.Transport. The expression is recorded but never
// answered.
func (e *FakeEngine) SendNoWait(expr string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	e.noWait = append(e.noWait, expr)
	return nil
}

// Close implements omc.Transport and releases hanging calls.
func (e *FakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.released)
	}
	return nil
}

// Closed reports whether Close was called.
func (e *FakeEngine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// QuitSent reports whether quit() was sent.
func (e *FakeEngine) QuitSent() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, expr := range e.noWait {
		if expr == "quit()" {
			return true
		}
	}
	return false
}

// Transcript returns a copy of the answered exchanges in order.
func (e *FakeEngine) Transcript() []Exchange {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Exchange(nil), e.transcript...)
}

// Sent returns the answered expressions in order.
func (e *FakeEngine) Sent() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.transcript))
	for i, x := range e.transcript {
		out[i] = x.Expr
	}
	return out
}

// Count returns how many answered calls went to function.
func (e *FakeEngine) Count(function string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, x := range e.transcript {
		if functionName(x.Expr) == function {
			n++
		}
	}
	return n
}

// WriteTranscript renders the transcript as ">> expr" / "<< reply" lines.
// Multi-line replies are indented so the output stays line oriented.
func (e *FakeEngine) WriteTranscript(w io.Writer) error {
	for _, x := range e.Transcript() {
		reply := strings.ReplaceAll(strings.TrimRight(x.Reply, "\n"), "\n", "\n   ")
		if _, err := fmt.Fprintf(w, ">> %s\n<< %s\n", x.Expr, reply); err != nil {
			return err
		}
	}
	return nil
}

func functionName(expr string) string {
	if i := strings.IndexByte(expr, '('); i >= 0 {
		return expr[:i]
	}
	return expr
}

var _ omc.Transport = (*FakeEngine)(nil)
