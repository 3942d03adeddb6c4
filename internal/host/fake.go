package host

import (
	"context"
	"fmt"
	"sync"
)

// Fake is a scripted Host for tests. Output and exits are injected with
// PushOutput/PushExit instead of coming from real processes.
type Fake struct {
	mu      sync.Mutex
	next    int
	live    map[string]bool
	written map[string][]byte
	sizes   map[string][2]int
	out     chan OutputEvent
	exits   chan ExitEvent
	closed  bool

	// SpawnErr, when set, fails the next Spawn.
	SpawnErr error
}

func NewFake() *Fake {
	return &Fake{
		live:    make(map[string]bool),
		written: make(map[string][]byte),
		sizes:   make(map[string][2]int),
		out:     make(chan OutputEvent, 64),
		exits:   make(chan ExitEvent, 8),
	}
}

func (f *Fake) Spawn(_ context.Context, _ SpawnOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return "", ErrHostClosed
	}
	if f.SpawnErr != nil {
		err := f.SpawnErr
		f.SpawnErr = nil
		return "", err
	}
	f.next++
	handle := fmt.Sprintf("fake-%d", f.next)
	f.live[handle] = true
	return handle, nil
}

func (f *Fake) Write(handle string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.live[handle] {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, handle)
	}
	f.written[handle] = append(f.written[handle], data...)
	return nil
}

func (f *Fake) Resize(handle string, cols, rows int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.live[handle] {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, handle)
	}
	f.sizes[handle] = [2]int{cols, rows}
	return nil
}

func (f *Fake) Kill(handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.live[handle] {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, handle)
	}
	delete(f.live, handle)
	f.exits <- ExitEvent{Handle: handle, Code: -1}
	return nil
}

func (f *Fake) Output() <-chan OutputEvent { return f.out }
func (f *Fake) Exits() <-chan ExitEvent    { return f.exits }

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// PushOutput injects an output chunk as if the process had emitted it.
func (f *Fake) PushOutput(handle, chunk string) {
	f.out <- OutputEvent{Handle: handle, Data: []byte(chunk)}
}

// PushExit injects a termination event.
func (f *Fake) PushExit(handle string, code int) {
	f.mu.Lock()
	delete(f.live, handle)
	f.mu.Unlock()
	f.exits <- ExitEvent{Handle: handle, Code: code}
}

// Written returns everything sent to a handle's stdin.
func (f *Fake) Written(handle string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.written[handle]...)
}
