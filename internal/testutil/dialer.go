package testutil

import (
	"context"
	"sync"

	"github.com/roach88/omtest/internal/omc"
)

// FakeDialer hands out FakeEngines. Queued errors are returned by the first
// dials before any engine is created.
type FakeDialer struct {
	mu      sync.Mutex
	build   func(n int) *FakeEngine
	errs    []error
	dials   int
	engines []*FakeEngine
}

// NewFakeDialer creates a dialer. build is called with the 1-based index of
// each successful dial; nil builds bare engines.
func NewFakeDialer(build func(n int) *FakeEngine) *FakeDialer {
	if build == nil {
		build = func(int) *FakeEngine { return NewFakeEngine() }
	}
	return &FakeDialer{build: build}
}

// FailNext queues errors for the next dials.
func (d *FakeDialer) FailNext(errs ...error) *FakeDialer {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs = append(d.errs, errs...)
	return d
}

// Dial implements omc.Dialer.
func (d *FakeDialer) Dial(ctx context.Context) (omc.Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		return nil, err
	}
	e := d.build(len(d.engines) + 1)
	d.engines = append(d.engines, e)
	return e, nil
}

// Dials returns the number of Dial calls, failed ones included.
func (d *FakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Engines returns the engines handed out so far.
func (d *FakeDialer) Engines() []*FakeEngine {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*FakeEngine(nil), d.engines...)
}

// Last returns the most recently created engine, or nil.
func (d *FakeDialer) Last() *FakeEngine {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.engines) == 0 {
		return nil
	}
	return d.engines[len(d.engines)-1]
}

var _ omc.Dialer = (*FakeDialer)(nil)
