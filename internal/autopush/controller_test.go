package autopush

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rclonetray/rclonetray/internal/jobs"
	"github.com/rclonetray/rclonetray/internal/logging"
)

type recorder struct {
	mu    sync.Mutex
	calls []time.Time
	ch    chan struct{}
	err   error
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan struct{}, 100)}
}

func (r *recorder) sync(ctx context.Context, src, dst string) error {
	r.mu.Lock()
	r.calls = append(r.calls, time.Now())
	err := r.err
	r.mu.Unlock()
	r.ch <- struct{}{}
	return err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recorder) last() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}

func watched(c *Controller) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.watchers))
	for name := range c.watchers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.ch:
	case <-time.After(5 * time.Second):
		t.Fatal("sync not called")
	}
}

func newController(t *testing.T, rec *recorder, debounce time.Duration) (*Controller, *jobs.Registry) {
	t.Helper()
	reg := jobs.NewRegistry()
	c := New(Options{
		Registry: reg,
		Sync:     rec.sync,
		Debounce: debounce,
		Log:      logging.Discard(),
	})
	t.Cleanup(func() { c.DisableAll() })
	return c, reg
}

func TestEnablePushesImmediately(t *testing.T) {
	rec := newRecorder()
	c, reg := newController(t, rec, time.Hour)
	dir := t.TempDir()

	_, err := c.Enable("b1", dir, "b1:")
	require.NoError(t, err)
	rec.wait(t)

	job, ok := reg.Get("b1", jobs.KindAutopush)
	require.True(t, ok)
	assert.Equal(t, dir, job.Metadata.(jobs.AutopushMetadata).LocalPath)
}

func TestDebounceCollapsesBurst(t *testing.T) {
	rec := newRecorder()
	const window = 400 * time.Millisecond
	c, _ := newController(t, rec, window)
	dir := t.TempDir()

	_, err := c.Enable("b1", dir, "b1:")
	require.NoError(t, err)
	rec.wait(t)

	var lastEvent time.Time
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("f%d.txt", i)), []byte("x"), 0o644))
		lastEvent = time.Now()
		time.Sleep(50 * time.Millisecond)
	}

	rec.wait(t)
	assert.GreaterOrEqual(t, rec.last().Sub(lastEvent), window-20*time.Millisecond)

	time.Sleep(2 * window)
	assert.Equal(t, 2, rec.count(), "one initial push plus one for the burst")
}

func TestEnableIsIdempotent(t *testing.T) {
	rec := newRecorder()
	c, _ := newController(t, rec, time.Hour)
	dir := t.TempDir()

	_, err := c.Enable("b1", dir, "b1:")
	require.NoError(t, err)
	_, err = c.Enable("b1", dir, "b1:")
	require.NoError(t, err)
	rec.wait(t)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, []string{"b1"}, watched(c))
}

func TestStopFuncRemovesJob(t *testing.T) {
	rec := newRecorder()
	c, reg := newController(t, rec, 50*time.Millisecond)
	dir := t.TempDir()

	stop, err := c.Enable("b1", dir, "b1:")
	require.NoError(t, err)
	rec.wait(t)

	stop()
	assert.Empty(t, watched(c))
	_, ok := reg.Get("b1", jobs.KindAutopush)
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "late.txt"), []byte("x"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
	stop()
}

func TestWatchesNewSubdirectories(t *testing.T) {
	rec := newRecorder()
	c, _ := newController(t, rec, 100*time.Millisecond)
	dir := t.TempDir()

	_, err := c.Enable("b1", dir, "b1:")
	require.NoError(t, err)
	rec.wait(t)

	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	rec.wait(t)

	// Give the watcher a moment to register the new directory.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "nested.txt"), []byte("x"), 0o644))
	rec.wait(t)
}

func TestPushDeferredWhilePulling(t *testing.T) {
	rec := newRecorder()
	c, reg := newController(t, rec, 100*time.Millisecond)
	dir := t.TempDir()

	pull, err := reg.Start("b1", jobs.KindPull, nil)
	require.NoError(t, err)

	_, err = c.Enable("b1", dir, "b1:")
	require.NoError(t, err)

	time.Sleep(250 * time.Millisecond)
	assert.Zero(t, rec.count())

	pull.Stop()
	rec.wait(t)
}

func TestSyncErrorsReported(t *testing.T) {
	rec := newRecorder()
	rec.err = errors.New("remote unavailable")
	var reported atomic.Int32
	reg := jobs.NewRegistry()
	c := New(Options{
		Registry: reg,
		Sync:     rec.sync,
		Debounce: time.Hour,
		OnError:  func(string, error) { reported.Add(1) },
		Log:      logging.Discard(),
	})
	defer c.DisableAll()

	_, err := c.Enable("b1", t.TempDir(), "b1:")
	require.NoError(t, err)
	rec.wait(t)

	assert.Eventually(t, func() bool { return reported.Load() == 1 }, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		_, ok := reg.Get("b1", jobs.KindPush)
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestDisableAll(t *testing.T) {
	rec := newRecorder()
	c, reg := newController(t, rec, time.Hour)
	for _, name := range []string{"b2", "b1"} {
		_, err := c.Enable(name, t.TempDir(), name+":")
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"b1", "b2"}, c.DisableAll())
	assert.Empty(t, watched(c))
	for _, name := range []string{"b1", "b2"} {
		_, ok := reg.Get(name, jobs.KindAutopush)
		assert.False(t, ok)
	}
}

func TestEnableRejectsMissingDirectory(t *testing.T) {
	c, reg := newController(t, newRecorder(), time.Hour)
	_, err := c.Enable("b1", filepath.Join(t.TempDir(), "missing"), "b1:")
	assert.Error(t, err)
	assert.Empty(t, reg.Kinds("b1"))
}

func TestDebouncer(t *testing.T) {
	var fired atomic.Int32
	d := newDebouncer(30*time.Millisecond, func() { fired.Add(1) })
	for i := 0; i < 5; i++ {
		d.Trigger()
		time.Sleep(5 * time.Millisecond)
	}
	assert.Zero(t, fired.Load())
	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)

	d.Trigger()
	d.Stop()
	d.Trigger()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestDebouncerIgnoresExpiredTimer(t *testing.T) {
	const window = 20 * time.Millisecond
	var mu sync.Mutex
	var runs []time.Time
	d := newDebouncer(window, func() {
		mu.Lock()
		runs = append(runs, time.Now())
		mu.Unlock()
	})

	d.Trigger()
	// Let the first timer expire while its callback waits for the lock,
	// then re-arm before releasing it.
	d.mu.Lock()
	time.Sleep(3 * window)
	d.armLocked()
	rearmed := time.Now()
	d.mu.Unlock()

	time.Sleep(5 * window)
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, runs, 1)
	assert.GreaterOrEqual(t, runs[0].Sub(rearmed), window)
}
