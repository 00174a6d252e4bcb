package server

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windlass-io/windlass/pkg/txnlog"
)

type testNotifier struct {
	ch chan struct{}
}

func newTestNotifier() *testNotifier {
	return &testNotifier{ch: make(chan struct{}, 4)}
}

func (n *testNotifier) Signal() {
	n.ch <- struct{}{}
}

func (n *testNotifier) signaled() int {
	return len(n.ch)
}

func openTestLog(t *testing.T, dir string, snapCount int) *txnlog.Log {
	t.Helper()

	l, err := txnlog.Open(txnlog.Options{DataDir: dir, SnapCount: snapCount})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func newRunningEngine(t *testing.T) *Engine {
	t.Helper()

	l := openTestLog(t, t.TempDir(), 0)
	e := New(Options{Log: l, TickTime: 100 * time.Millisecond})
	require.NoError(t, e.Start())
	return e
}

func TestEngineStartTransitionsToRunning(t *testing.T) {
	t.Parallel()

	l := openTestLog(t, t.TempDir(), 0)
	e := New(Options{Log: l, TickTime: time.Second})

	assert.Equal(t, StateInitializing, e.State())
	require.NoError(t, e.Start())
	assert.Equal(t, StateRunning, e.State())

	err := e.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}

func TestEngineRunIDIsPerBoot(t *testing.T) {
	t.Parallel()

	l := openTestLog(t, t.TempDir(), 0)
	a := New(Options{Log: l, TickTime: time.Second})
	b := New(Options{Log: l, TickTime: time.Second})

	assert.NotEmpty(t, a.RunID())
	assert.Equal(t, a.RunID(), a.RunID())
	assert.NotEqual(t, a.RunID(), b.RunID())
}

func TestEngineRejectsRequestsBeforeStart(t *testing.T) {
	t.Parallel()

	l := openTestLog(t, t.TempDir(), 0)
	e := New(Options{Log: l})

	_, err := e.Create("/x", nil, false)
	assert.ErrorIs(t, err, ErrNotRunning)
	_, _, err = e.Get("/x")
	assert.ErrorIs(t, err, ErrNotRunning)
	err = e.Delete("/x")
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestEngineCreateSetDelete(t *testing.T) {
	t.Parallel()

	e := newRunningEngine(t)

	stat, err := e.Create("/jobs", nil, true)
	require.NoError(t, err)
	assert.True(t, stat.Container)

	_, err = e.Create("/jobs/j1", []byte("pending"), false)
	require.NoError(t, err)

	data, stat, err := e.Get("/jobs/j1")
	require.NoError(t, err)
	assert.Equal(t, []byte("pending"), data)
	assert.Equal(t, int32(0), stat.Version)

	stat, err = e.Set("/jobs/j1", []byte("done"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), stat.Version)

	names, err := e.Children("/jobs")
	require.NoError(t, err)
	assert.Equal(t, []string{"j1"}, names)

	require.NoError(t, e.Delete("/jobs/j1"))
	_, err = e.Stat("/jobs/j1")
	assert.ErrorIs(t, err, ErrNoNode)
}

func TestEngineCreateValidation(t *testing.T) {
	t.Parallel()

	e := newRunningEngine(t)

	_, err := e.Create("/a", nil, false)
	require.NoError(t, err)

	_, err = e.Create("/a", nil, false)
	assert.ErrorIs(t, err, ErrNodeExists)

	_, err = e.Create("/no/parent", nil, false)
	assert.ErrorIs(t, err, ErrNoNode)

	_, err = e.Create("relative", nil, false)
	assert.ErrorIs(t, err, ErrBadPath)

	err = e.Delete("/")
	assert.ErrorIs(t, err, ErrBadPath)
}

func TestEngineShutdown(t *testing.T) {
	t.Parallel()

	e := newRunningEngine(t)
	_, err := e.Create("/keep", nil, false)
	require.NoError(t, err)

	assert.True(t, e.CanShutdown())
	require.NoError(t, e.Shutdown(false))
	assert.Equal(t, StateShutdown, e.State())
	assert.False(t, e.CanShutdown())

	// Already shut down: a second request is rejected
	err = e.Shutdown(false)
	require.Error(t, err)

	// Tree survives a non-clearing shutdown
	assert.Equal(t, 2, e.Tree().Count())
}

func TestEngineShutdownClearsState(t *testing.T) {
	t.Parallel()

	e := newRunningEngine(t)
	_, err := e.Create("/gone", nil, false)
	require.NoError(t, err)

	require.NoError(t, e.Shutdown(true))
	assert.Equal(t, 1, e.Tree().Count())
}

func TestEngineCannotShutdownBeforeStart(t *testing.T) {
	t.Parallel()

	l := openTestLog(t, t.TempDir(), 0)
	e := New(Options{Log: l})

	assert.False(t, e.CanShutdown())
	err := e.Shutdown(false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot shut down")
}

func TestEngineFatalNotifiesOnce(t *testing.T) {
	t.Parallel()

	l := openTestLog(t, t.TempDir(), 0)
	n := newTestNotifier()
	e := New(Options{Log: l, Notifier: n})
	require.NoError(t, e.Start())

	e.fatal(errors.New("disk gone"))
	assert.Equal(t, StateError, e.State())
	assert.Equal(t, 1, n.signaled())

	// Error state still allows shutdown
	assert.True(t, e.CanShutdown())

	// Further fatals are no-ops
	e.fatal(errors.New("again"))
	assert.Equal(t, 1, n.signaled())
}

func TestEngineRestartReplaysLog(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	l, err := txnlog.Open(txnlog.Options{DataDir: dir})
	require.NoError(t, err)
	e := New(Options{Log: l})
	require.NoError(t, e.Start())

	_, err = e.Create("/cfg", []byte("v1"), false)
	require.NoError(t, err)
	_, err = e.Set("/cfg", []byte("v2"))
	require.NoError(t, err)
	_, err = e.Create("/tmp", nil, false)
	require.NoError(t, err)
	require.NoError(t, e.Delete("/tmp"))

	require.NoError(t, e.Shutdown(false))
	require.NoError(t, l.Close())

	l2 := openTestLog(t, dir, 0)
	e2 := New(Options{Log: l2})
	require.NoError(t, e2.Start())

	data, stat, err := e2.Get("/cfg")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)
	assert.Equal(t, int32(1), stat.Version)

	_, err = e2.Stat("/tmp")
	assert.ErrorIs(t, err, ErrNoNode)
}

func TestEngineRestartFromSnapshot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	l, err := txnlog.Open(txnlog.Options{DataDir: dir, SnapCount: 3})
	require.NoError(t, err)
	e := New(Options{Log: l})
	require.NoError(t, e.Start())

	paths := []string{"/a", "/b", "/c", "/d", "/e"}
	for _, p := range paths {
		_, err := e.Create(p, []byte(p), false)
		require.NoError(t, err)
	}

	require.NoError(t, l.Close())

	l2 := openTestLog(t, dir, 3)
	e2 := New(Options{Log: l2})
	require.NoError(t, e2.Start())

	for _, p := range paths {
		data, _, err := e2.Get(p)
		require.NoError(t, err, "path %s", p)
		assert.Equal(t, []byte(p), data)
	}
	assert.Equal(t, uint64(5), l2.LastTxid())
}

func TestEngineStats(t *testing.T) {
	t.Parallel()

	e := newRunningEngine(t)
	_, err := e.Create("/s", nil, false)
	require.NoError(t, err)

	stats := e.Stats()
	assert.Equal(t, "running", stats.State)
	assert.Equal(t, 2, stats.NodeCount)
	assert.Equal(t, uint64(1), stats.LastTxid)
	assert.Equal(t, int64(100), stats.TickTimeMs)
	assert.False(t, stats.StartedAt.IsZero())
}
