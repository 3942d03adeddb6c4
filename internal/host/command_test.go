package host

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func collectOutput(t *testing.T, h Host, handle string, want string, timeout time.Duration) string {
	t.Helper()
	var b strings.Builder
	deadline := time.After(timeout)
	for {
		if strings.Contains(b.String(), want) {
			return b.String()
		}
		select {
		case ev := <-h.Output():
			if ev.Handle == handle {
				b.Write(ev.Data)
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q, got %q", want, b.String())
		}
	}
}

func waitExit(t *testing.T, h Host, handle string, timeout time.Duration) ExitEvent {
	t.Helper()
	for {
		select {
		case ev := <-h.Exits():
			if ev.Handle == handle {
				return ev
			}
		case <-time.After(timeout):
			t.Fatalf("no exit event for %s", handle)
		}
	}
}

func TestSpawnStreamsOutputAndExit(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := NewCommandHost()
	defer h.Close()

	handle, err := h.Spawn(context.Background(), SpawnOptions{
		Command: "sh", Args: []string{"-c", "echo ready"},
	})
	require.NoError(t, err)
	require.NoError(t, uuid.Validate(handle))

	collectOutput(t, h, handle, "ready", 5*time.Second)
	ev := waitExit(t, h, handle, 5*time.Second)
	assert.Equal(t, 0, ev.Code)
}

func TestWriteReachesStdin(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := NewCommandHost()
	defer h.Close()

	handle, err := h.Spawn(context.Background(), SpawnOptions{
		Command: "sh", Args: []string{"-c", "read line && echo got:$line"},
	})
	require.NoError(t, err)

	require.NoError(t, h.Write(handle, []byte("hello\n")))
	collectOutput(t, h, handle, "got:hello", 5*time.Second)
	waitExit(t, h, handle, 5*time.Second)
}

func TestNonZeroExitCode(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := NewCommandHost()
	defer h.Close()

	handle, err := h.Spawn(context.Background(), SpawnOptions{
		Command: "sh", Args: []string{"-c", "exit 3"},
	})
	require.NoError(t, err)

	ev := waitExit(t, h, handle, 5*time.Second)
	assert.Equal(t, 3, ev.Code)
}

func TestKillTerminatesProcess(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := NewCommandHost()
	defer h.Close()

	handle, err := h.Spawn(context.Background(), SpawnOptions{
		Command: "sleep", Args: []string{"60"},
	})
	require.NoError(t, err)

	require.NoError(t, h.Kill(handle))
	ev := waitExit(t, h, handle, 5*time.Second)
	assert.Equal(t, -1, ev.Code)

	// Handle is reaped; further operations reject it.
	assert.ErrorIs(t, h.Write(handle, []byte("x")), ErrUnknownHandle)
	assert.ErrorIs(t, h.Kill(handle), ErrUnknownHandle)
}

func TestResizeRecordsDimensions(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := NewCommandHost()
	defer h.Close()

	handle, err := h.Spawn(context.Background(), SpawnOptions{
		Command: "sleep", Args: []string{"60"}, Cols: 80, Rows: 24,
	})
	require.NoError(t, err)

	cols, rows, err := h.Dimensions(handle)
	require.NoError(t, err)
	assert.Equal(t, 80, cols)
	assert.Equal(t, 24, rows)

	require.NoError(t, h.Resize(handle, 120, 40))
	cols, rows, _ = h.Dimensions(handle)
	assert.Equal(t, 120, cols)
	assert.Equal(t, 40, rows)

	require.NoError(t, h.Kill(handle))
	waitExit(t, h, handle, 5*time.Second)
}

func TestSpawnUnknownCommand(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := NewCommandHost()
	defer h.Close()

	_, err := h.Spawn(context.Background(), SpawnOptions{Command: "definitely-not-a-command-xyz"})
	assert.Error(t, err)
}

func TestCloseKillsEverything(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := NewCommandHost()

	_, err := h.Spawn(context.Background(), SpawnOptions{Command: "sleep", Args: []string{"60"}})
	require.NoError(t, err)
	_, err = h.Spawn(context.Background(), SpawnOptions{Command: "sleep", Args: []string{"60"}})
	require.NoError(t, err)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	_, err = h.Spawn(context.Background(), SpawnOptions{Command: "sh"})
	assert.ErrorIs(t, err, ErrHostClosed)
}

func TestContextCancellationKillsProcess(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := NewCommandHost()
	defer h.Close()

	ctx, cancel := context.WithCancel(context.Background())
	handle, err := h.Spawn(ctx, SpawnOptions{Command: "sleep", Args: []string{"60"}})
	require.NoError(t, err)

	cancel()
	ev := waitExit(t, h, handle, 5*time.Second)
	assert.Equal(t, -1, ev.Code)
}
