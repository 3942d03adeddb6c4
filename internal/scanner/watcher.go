package scanner

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"partydeck/internal/logging"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher observes the directories a Scanner reads from and invokes a
// callback when capability sources change on disk. Bursts of events are
// debounced into a single callback.
type Watcher struct {
	fw       *fsnotify.Watcher
	onChange func()
	debounce time.Duration

	mu      sync.Mutex
	pending *time.Timer
	done    chan struct{}
	closed  bool
}

// Watch starts watching the workspace and global assistant directories for
// the given scanner. Events settle for the debounce duration before
// onChange fires; zero or negative falls back to the default. onChange
// runs on the watcher goroutine; keep it short or hand off.
func Watch(s *Scanner, debounce time.Duration, onChange func()) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if debounce <= 0 {
		debounce = defaultDebounce
	}
	w := &Watcher{
		fw:       fw,
		onChange: onChange,
		debounce: debounce,
		done:     make(chan struct{}),
	}

	for _, dir := range watchDirs(s) {
		if err := fw.Add(dir); err != nil {
			logging.Get(logging.CategoryScanner).Warn("Cannot watch %s: %v", dir, err)
		}
	}

	go w.run()
	return w, nil
}

// watchDirs lists the directories whose contents feed a scan. Missing
// directories are skipped by fsnotify's Add error path.
func watchDirs(s *Scanner) []string {
	var dirs []string
	if s.globalDir != "" {
		dirs = append(dirs,
			s.globalDir,
			filepath.Join(s.globalDir, "skills"),
			filepath.Join(s.globalDir, "agents"),
			filepath.Join(s.globalDir, "commands"),
			filepath.Join(s.globalDir, "plugins"),
		)
	}
	if s.workspace != "" {
		dirs = append(dirs,
			s.workspace,
			filepath.Join(s.workspace, assistantDir),
			filepath.Join(s.workspace, assistantDir, "skills"),
			filepath.Join(s.workspace, assistantDir, "agents"),
			filepath.Join(s.workspace, assistantDir, "commands"),
		)
	}
	return dirs
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if relevant(ev) {
				logging.ScannerDebug("Change detected: %s %s", ev.Op, ev.Name)
				w.schedule()
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryScanner).Warn("Watch error: %v", err)
		case <-w.done:
			return
		}
	}
}

// relevant filters out events that cannot change a scan result, mostly
// editor temp files and chmods.
func relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	base := filepath.Base(ev.Name)
	if strings.HasPrefix(base, ".") && base != assistantDir {
		return false
	}
	switch {
	case strings.HasSuffix(base, ".md"),
		strings.HasSuffix(base, ".json"),
		ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0:
		return true
	}
	return false
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.debounce, w.onChange)
}

// Close stops the watcher and cancels any pending callback.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.pending != nil {
		w.pending.Stop()
	}
	w.mu.Unlock()

	close(w.done)
	return w.fw.Close()
}
