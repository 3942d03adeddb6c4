package scanner

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestWatcherFiresOnCapabilityChange(t *testing.T) {
	defer goleak.VerifyNone(t)

	ws := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(ws, ".claude"), 0o755))

	s := New(ws, "")
	fired := make(chan struct{}, 1)

	w, err := Watch(s, 50*time.Millisecond, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)
	defer w.Close()

	writeFile(t, filepath.Join(ws, "CLAUDE.md"), "# Memory\n")

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("watcher never fired after a capability file change")
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	defer goleak.VerifyNone(t)

	ws := t.TempDir()
	s := New(ws, "")

	calls := make(chan struct{}, 16)
	w, err := Watch(s, 200*time.Millisecond, func() { calls <- struct{}{} })
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 5; i++ {
		writeFile(t, filepath.Join(ws, "CLAUDE.md"), "# Memory\n\nedit\n")
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-calls:
	case <-time.After(3 * time.Second):
		t.Fatal("watcher never fired")
	}

	// The burst should have collapsed into one callback.
	select {
	case <-calls:
		t.Fatal("burst of writes produced more than one callback")
	case <-time.After(400 * time.Millisecond):
	}
}

func TestWatcherIgnoresHiddenTempFiles(t *testing.T) {
	defer goleak.VerifyNone(t)

	ws := t.TempDir()
	s := New(ws, "")

	fired := make(chan struct{}, 1)
	w, err := Watch(s, 50*time.Millisecond, func() { fired <- struct{}{} })
	require.NoError(t, err)
	defer w.Close()

	writeFile(t, filepath.Join(ws, ".CLAUDE.md.swp"), "swap")

	select {
	case <-fired:
		t.Fatal("editor temp file should not trigger a rescan")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherCloseIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	w, err := Watch(New(t.TempDir(), ""), 0, func() {})
	require.NoError(t, err)

	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}
