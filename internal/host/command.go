package host

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/google/uuid"

	"partydeck/internal/logging"
)

const readChunkSize = 4096

// CommandHost runs sessions as child processes over pipes. Stdout and
// stderr are merged into one output stream per handle, the way a terminal
// would present them.
type CommandHost struct {
	mu     sync.Mutex
	procs  map[string]*process
	out    chan OutputEvent
	exits  chan ExitEvent
	done   chan struct{}
	closed bool
}

type process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	cols  int
	rows  int
}

func NewCommandHost() *CommandHost {
	return &CommandHost{
		procs: make(map[string]*process),
		out:   make(chan OutputEvent, 64),
		exits: make(chan ExitEvent, 8),
		done:  make(chan struct{}),
	}
}

func (h *CommandHost) Spawn(ctx context.Context, opts SpawnOptions) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return "", ErrHostClosed
	}

	cmd := exec.CommandContext(ctx, opts.Command, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.Env = append(os.Environ(), opts.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return "", fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start %s: %w", opts.Command, err)
	}

	handle := uuid.NewString()
	h.procs[handle] = &process{cmd: cmd, stdin: stdin, cols: opts.Cols, rows: opts.Rows}
	logging.Host("Spawned %s (pid %d) as %s", opts.Command, cmd.Process.Pid, handle)

	go h.pump(handle, cmd, stdout, stderr)
	return handle, nil
}

// pump forwards output until both streams close, then reaps the process
// and emits its exit event.
func (h *CommandHost) pump(handle string, cmd *exec.Cmd, stdout, stderr io.Reader) {
	var wg sync.WaitGroup
	for _, r := range []io.Reader{stdout, stderr} {
		wg.Add(1)
		go func(r io.Reader) {
			defer wg.Done()
			buf := make([]byte, readChunkSize)
			for {
				n, err := r.Read(buf)
				if n > 0 {
					data := make([]byte, n)
					copy(data, buf[:n])
					h.emit(OutputEvent{Handle: handle, Data: data})
				}
				if err != nil {
					return
				}
			}
		}(r)
	}
	wg.Wait()

	code := 0
	if err := cmd.Wait(); err != nil {
		code = cmd.ProcessState.ExitCode()
	}
	logging.Host("Session %s exited with code %d", handle, code)

	h.mu.Lock()
	delete(h.procs, handle)
	h.mu.Unlock()

	select {
	case h.exits <- ExitEvent{Handle: handle, Code: code}:
	case <-h.done:
	}
}

func (h *CommandHost) emit(ev OutputEvent) {
	select {
	case h.out <- ev:
	case <-h.done:
	}
}

func (h *CommandHost) Write(handle string, data []byte) error {
	h.mu.Lock()
	p, ok := h.procs[handle]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, handle)
	}
	_, err := p.stdin.Write(data)
	return err
}

// Resize records the dimensions. Pipe-backed processes have no terminal
// to resize, so this only affects what Dimensions reports.
func (h *CommandHost) Resize(handle string, cols, rows int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.procs[handle]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, handle)
	}
	p.cols, p.rows = cols, rows
	return nil
}

// Dimensions returns the last recorded terminal size for a handle.
func (h *CommandHost) Dimensions(handle string) (cols, rows int, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.procs[handle]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s", ErrUnknownHandle, handle)
	}
	return p.cols, p.rows, nil
}

func (h *CommandHost) Kill(handle string) error {
	h.mu.Lock()
	p, ok := h.procs[handle]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, handle)
	}
	logging.Host("Killing session %s", handle)
	return p.cmd.Process.Kill()
}

func (h *CommandHost) Output() <-chan OutputEvent { return h.out }
func (h *CommandHost) Exits() <-chan ExitEvent    { return h.exits }

// Close kills every live process and releases the event streams. Pump
// goroutines drain via the done channel, so Close does not wait for them.
func (h *CommandHost) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	procs := make([]*process, 0, len(h.procs))
	for _, p := range h.procs {
		procs = append(procs, p)
	}
	h.mu.Unlock()

	for _, p := range procs {
		_ = p.cmd.Process.Kill()
	}
	close(h.done)
	return nil
}
