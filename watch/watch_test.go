package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func receiveBatch(t *testing.T, w *Watcher) []string {
	t.Helper()
	select {
	case batch := <-w.Changes():
		return batch
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change batch")
		return nil
	}
}

func TestWatcherCoalescesChanges(t *testing.T) {
	dir := t.TempDir()
	w, err := New([]string{dir}, 200*time.Millisecond, zap.NewNop())
	require.NoError(t, err)
	defer w.Close()

	a := filepath.Join(dir, "a.hs")
	b := filepath.Join(dir, "b.hs")
	require.NoError(t, os.WriteFile(a, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("b"), 0o644))

	batch := receiveBatch(t, w)
	assert.Contains(t, batch, a)
	assert.Contains(t, batch, b)
}

func TestWatcherPicksUpNewDirs(t *testing.T) {
	dir := t.TempDir()
	w, err := New([]string{dir}, 50*time.Millisecond, zap.NewNop())
	require.NoError(t, err)
	defer w.Close()

	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	receiveBatch(t, w) // the mkdir itself

	// Give the watcher a moment to register the new directory.
	time.Sleep(300 * time.Millisecond)
	inner := filepath.Join(sub, "inner.hs")
	require.NoError(t, os.WriteFile(inner, []byte("x"), 0o644))

	batch := receiveBatch(t, w)
	assert.Contains(t, batch, inner)
}

func TestWatcherCloseClosesChannel(t *testing.T) {
	w, err := New([]string{t.TempDir()}, 50*time.Millisecond, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, w.Close())

	select {
	case _, ok := <-w.Changes():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close")
	}
}

func TestWatcherCloseWhileFlushPending(t *testing.T) {
	dir := t.TempDir()
	w, err := New([]string{dir}, 50*time.Millisecond, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.hs"), []byte("a"), 0o644))
	// Let the debounce window elapse with nobody receiving, so the loop is
	// parked on the flush send.
	time.Sleep(300 * time.Millisecond)
	require.NoError(t, w.Close())

	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-w.Changes():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("watcher loop did not wind down after Close")
		}
	}
}

func TestWatcherMissingDir(t *testing.T) {
	_, err := New([]string{filepath.Join(t.TempDir(), "nope")}, time.Millisecond, zap.NewNop())
	require.Error(t, err)
}
