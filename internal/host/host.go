// Package host runs assistant processes on behalf of sessions and streams
// their output back as events keyed by an opaque handle.
package host

import (
	"context"
	"errors"
)

var (
	// ErrUnknownHandle means the handle does not map to a live process.
	ErrUnknownHandle = errors.New("unknown session handle")

	// ErrHostClosed means the host has shut down and cannot spawn.
	ErrHostClosed = errors.New("host is closed")
)

// OutputEvent carries one chunk of process output.
type OutputEvent struct {
	Handle string
	Data   []byte
}

// ExitEvent signals process termination. Code is -1 when the process was
// killed by a signal.
type ExitEvent struct {
	Handle string
	Code   int
}

// SpawnOptions describes the process to start for a session.
type SpawnOptions struct {
	Command string
	Args    []string
	Dir     string
	Env     []string // appended to the parent environment
	Cols    int
	Rows    int
}

// Host abstracts process management so the session layer can run against
// a real command host or a scripted fake.
type Host interface {
	// Spawn starts a process and returns its handle. The context bounds
	// the process lifetime: cancellation kills it.
	Spawn(ctx context.Context, opts SpawnOptions) (string, error)

	// Write sends input to the process's stdin.
	Write(handle string, data []byte) error

	// Resize records the terminal dimensions for the process.
	Resize(handle string, cols, rows int) error

	// Kill terminates the process. The exit event still arrives on Exits.
	Kill(handle string) error

	// Output streams output chunks from all live processes.
	Output() <-chan OutputEvent

	// Exits streams termination events.
	Exits() <-chan ExitEvent

	// Close kills every live process and stops the event streams.
	Close() error
}
