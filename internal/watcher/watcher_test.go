package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cyfung/portfolio-helper-sub000/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const _debounce = 100 * time.Millisecond

func newTestWatcher(t *testing.T) (*Watcher, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "main.holdings")
	require.NoError(t, os.WriteFile(path, []byte("AAPL 10\n"), 0o644))

	w := New(path, _debounce, logger.NewNopLogger())
	t.Cleanup(w.Stop)
	return w, path
}

func TestBurstCollapsesToOneCallback(t *testing.T) {
	w, path := newTestWatcher(t)

	var calls atomic.Int32
	w.OnChange(func() error {
		calls.Add(1)
		return nil
	})
	require.NoError(t, w.Start())

	// events spaced well inside the debounce window
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("AAPL 11\n"), 0o644))
		time.Sleep(20 * time.Millisecond)
	}

	// nothing may fire before the window elapses after the last event
	assert.Equal(t, int32(0), calls.Load())

	assert.Eventually(t, func() bool {
		return calls.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// and nothing more afterwards
	time.Sleep(3 * _debounce)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDeleteRecreateFiresOnce(t *testing.T) {
	w, path := newTestWatcher(t)

	var calls atomic.Int32
	w.OnChange(func() error {
		calls.Add(1)
		return nil
	})
	require.NoError(t, w.Start())

	require.NoError(t, os.Remove(path))
	require.NoError(t, os.WriteFile(path, []byte("TSLA 5\n"), 0o644))

	assert.Eventually(t, func() bool {
		return calls.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(3 * _debounce)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCallbackOrderAndFailureIsolation(t *testing.T) {
	w, path := newTestWatcher(t)

	var order []int
	called := make(chan struct{})
	w.OnChange(func() error {
		order = append(order, 1)
		return errors.New("bad callback")
	})
	w.OnChange(func() error {
		order = append(order, 2)
		close(called)
		return nil
	})
	require.NoError(t, w.Start())

	require.NoError(t, os.WriteFile(path, []byte("AAPL 12\n"), 0o644))

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("second callback never ran")
	}
	assert.Equal(t, []int{1, 2}, order)
}

func TestIgnoresSiblingFiles(t *testing.T) {
	w, path := newTestWatcher(t)

	var calls atomic.Int32
	w.OnChange(func() error {
		calls.Add(1)
		return nil
	})
	require.NoError(t, w.Start())

	sibling := filepath.Join(filepath.Dir(path), "other.cash")
	require.NoError(t, os.WriteFile(sibling, []byte("x,USD,1\n"), 0o644))

	time.Sleep(3 * _debounce)
	assert.Equal(t, int32(0), calls.Load())
}

func TestStartOnMissingParentDirFails(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "missing", "file.holdings"), _debounce, logger.NewNopLogger())
	assert.Error(t, w.Start())
}

func TestStartIdempotentAndStopSafe(t *testing.T) {
	w, _ := newTestWatcher(t)
	require.NoError(t, w.Start())
	require.NoError(t, w.Start())
	w.Stop()
	w.Stop()
}
