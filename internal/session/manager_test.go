package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/omtest/internal/omc"
	"github.com/roach88/omtest/internal/testutil"
)

func testConfig() Config {
	return Config{
		MaxCreateAttempts: 10,
		FreezeTimeout:     30 * time.Millisecond,
		MaxFreezeRetries:  3,
	}
}

func responsive(int) *testutil.FakeEngine {
	return testutil.NewFakeEngine().On("getVersion", `"OpenModelica 1.14.2"`)
}

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager(testutil.NewFakeDialer(nil), Config{}, nil)
	assert.Equal(t, DefaultConfig(), m.Config())
	assert.Equal(t, 100*time.Millisecond, m.Config().FreezeTimeout)
}

func TestCreate_RetriesTransientFailures(t *testing.T) {
	d := testutil.NewFakeDialer(responsive).FailNext(omc.ErrTransient, omc.ErrTransient)
	m := NewManager(d, testConfig(), nil)

	s, err := m.Create(context.Background())
	require.NoError(t, err)
	assert.Equal(t, omc.StateConnecting, s.State())
	assert.Equal(t, 3, d.Dials())
}

func TestCreate_GivesUpAfterMaxAttempts(t *testing.T) {
	errs := make([]error, 12)
	for i := range errs {
		errs[i] = omc.ErrTransient
	}
	d := testutil.NewFakeDialer(responsive).FailNext(errs...)
	m := NewManager(d, testConfig(), nil)

	_, err := m.Create(context.Background())
	require.Error(t, err)
	e, ok := omc.AsError(err)
	require.True(t, ok)
	assert.Equal(t, "session could not be created after 10 retries", e.Message)
	assert.Equal(t, 10, d.Dials())
}

func TestCreate_NoRetryWarningAfterLastAttempt(t *testing.T) {
	errs := make([]error, 10)
	for i := range errs {
		errs[i] = omc.ErrTransient
	}
	d := testutil.NewFakeDialer(responsive).FailNext(errs...)
	var logs bytes.Buffer
	m := NewManager(d, testConfig(), slog.New(slog.NewTextHandler(&logs, nil)))

	_, err := m.Create(context.Background())
	require.Error(t, err)
	assert.Equal(t, 9, strings.Count(logs.String(), "session creation failed, retrying"))
}

func TestCreate_NonTransientFailsImmediately(t *testing.T) {
	d := testutil.NewFakeDialer(responsive).FailNext(omc.ErrCompilerNotInstalled)
	m := NewManager(d, testConfig(), nil)

	_, err := m.Create(context.Background())
	assert.ErrorIs(t, err, omc.ErrCompilerNotInstalled)
	assert.Equal(t, 1, d.Dials())
}

func TestAvoidFreeze_ResponsiveSessionIsKept(t *testing.T) {
	d := testutil.NewFakeDialer(responsive)
	m := NewManager(d, testConfig(), nil)

	s, err := m.Create(context.Background())
	require.NoError(t, err)

	got, err := m.AvoidFreeze(context.Background(), s)
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, omc.StateConnected, got.State())
	assert.Equal(t, 1, d.Dials())
}

func TestAvoidFreeze_ReplacesFrozenSession(t *testing.T) {
	d := testutil.NewFakeDialer(func(n int) *testutil.FakeEngine {
		if n == 1 {
			return testutil.NewFakeEngine().Hang("getVersion")
		}
		return responsive(n)
	})
	m := NewManager(d, testConfig(), nil)

	first, err := m.Create(context.Background())
	require.NoError(t, err)

	got, err := m.AvoidFreeze(context.Background(), first)
	require.NoError(t, err)
	assert.NotSame(t, first, got)
	assert.Equal(t, omc.StateClosed, first.State())
	assert.Equal(t, omc.StateConnected, got.State())

	engines := d.Engines()
	require.Len(t, engines, 2)
	assert.True(t, engines[0].Closed(), "frozen engine is closed")
	assert.False(t, engines[1].Closed())
}

func TestAvoidFreeze_FailedVersionCallReconnects(t *testing.T) {
	d := testutil.NewFakeDialer(func(n int) *testutil.FakeEngine {
		e := responsive(n)
		if n == 1 {
			_ = e.Close()
		}
		return e
	})
	m := NewManager(d, testConfig(), nil)

	first, err := m.Create(context.Background())
	require.NoError(t, err)

	got, err := m.AvoidFreeze(context.Background(), first)
	require.NoError(t, err)
	assert.NotSame(t, first, got)
	assert.Equal(t, omc.StateClosed, first.State())
	assert.Equal(t, omc.StateConnected, got.State())
	assert.Equal(t, 2, d.Dials())
}

// closeFailing is a transport whose Close reports an error.
type closeFailing struct {
	*testutil.FakeEngine
}

func (c closeFailing) Close() error {
	_ = c.FakeEngine.Close()
	return errors.New("close failed")
}

func TestOpen_StaleCloseErrorDoesNotPropagate(t *testing.T) {
	var (
		mu      sync.Mutex
		engines []*testutil.FakeEngine
	)
	dialer := omc.DialerFunc(func(context.Context) (omc.Transport, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(engines) == 0 {
			e := testutil.NewFakeEngine().Hang("getVersion")
			engines = append(engines, e)
			return closeFailing{e}, nil
		}
		e := responsive(len(engines) + 1)
		engines = append(engines, e)
		return e, nil
	})
	m := NewManager(dialer, testConfig(), nil)

	s, err := m.Open(context.Background())
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, omc.StateConnected, s.State())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, engines, 2)
	assert.True(t, engines[0].Closed())
	assert.False(t, engines[1].Closed())
}

func TestAvoidFreeze_IsBounded(t *testing.T) {
	d := testutil.NewFakeDialer(func(int) *testutil.FakeEngine {
		return testutil.NewFakeEngine().Hang("getVersion")
	})
	m := NewManager(d, testConfig(), nil)

	s, err := m.Create(context.Background())
	require.NoError(t, err)

	_, err = m.AvoidFreeze(context.Background(), s)
	require.Error(t, err)
	e, ok := omc.AsError(err)
	require.True(t, ok)
	assert.Equal(t, "session frozen after 3 reconnect attempts", e.Message)

	engines := d.Engines()
	assert.Len(t, engines, 4)
	for _, engine := range engines {
		assert.True(t, engine.Closed())
	}
}

func TestAvoidFreeze_ContextCancelled(t *testing.T) {
	d := testutil.NewFakeDialer(func(int) *testutil.FakeEngine {
		return testutil.NewFakeEngine().Hang("getVersion")
	})
	cfg := testConfig()
	cfg.FreezeTimeout = time.Minute
	m := NewManager(d, cfg, nil)

	s, err := m.Create(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = m.AvoidFreeze(ctx, s)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, omc.StateClosed, s.State())
}

func TestClose_SendsQuitWithoutWaiting(t *testing.T) {
	d := testutil.NewFakeDialer(responsive)
	m := NewManager(d, testConfig(), nil)

	s, err := m.Open(context.Background())
	require.NoError(t, err)
	require.NoError(t, m.Close(s))

	engine := d.Last()
	assert.True(t, engine.QuitSent())
	assert.True(t, engine.Closed())
	assert.NotContains(t, engine.Sent(), "quit()")
}

func TestWithSession_ClosesOnSuccessAndError(t *testing.T) {
	d := testutil.NewFakeDialer(responsive)
	m := NewManager(d, testConfig(), nil)

	var seen *omc.Session
	err := WithSession(context.Background(), m, func(s *omc.Session) error {
		seen = s
		_, err := omc.VersionString(s)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, omc.StateClosed, seen.State())

	boom := errors.New("boom")
	err = WithSession(context.Background(), m, func(*omc.Session) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.True(t, d.Last().QuitSent())
}

func TestWithSession_ClosesOnPanic(t *testing.T) {
	d := testutil.NewFakeDialer(responsive)
	m := NewManager(d, testConfig(), nil)

	assert.Panics(t, func() {
		_ = WithSession(context.Background(), m, func(*omc.Session) error {
			panic("model exploded")
		})
	})
	assert.True(t, d.Last().Closed())
}

func TestWithSession_OpenFailureSkipsFn(t *testing.T) {
	d := testutil.NewFakeDialer(responsive).FailNext(omc.ErrCompilerNotInstalled)
	m := NewManager(d, testConfig(), nil)

	called := false
	err := WithSession(context.Background(), m, func(*omc.Session) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, omc.ErrCompilerNotInstalled)
	assert.False(t, called)
}
