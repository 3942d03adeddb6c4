// Package party implements the session registry: a bounded pool of
// interactive command sessions, each with its own status state machine,
// activity tracking, and context usage counter.
package party

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"partydeck/internal/budget"
	"partydeck/internal/classify"
	"partydeck/internal/logging"
	"partydeck/internal/types"
)

var (
	// ErrPoolAtCapacity means the session pool already holds the maximum
	// number of sessions.
	ErrPoolAtCapacity = errors.New("session pool at capacity")

	// ErrLastSession means the caller tried to close the only remaining
	// session. Once the pool has been populated it never drops below one.
	ErrLastSession = errors.New("cannot close the last session")

	// ErrUnknownSession means the caller passed a stale session id.
	ErrUnknownSession = errors.New("unknown session")

	// ErrNotConnected means the operation needs a live process handle and
	// the session does not have one.
	ErrNotConnected = errors.New("session is not connected")
)

// defaultMember is a display name/icon pair assigned to sessions created
// without a label.
type defaultMember struct {
	name string
	icon string
}

// Rotating roster for unnamed party members.
var roster = []defaultMember{
	{"Rogue", "🗡️"},
	{"Mage", "🔮"},
	{"Cleric", "✨"},
	{"Ranger", "🏹"},
	{"Paladin", "🛡️"},
}

// Registry owns the session pool. All methods are safe for concurrent use.
type Registry struct {
	mu sync.RWMutex

	sessions []*types.Session
	byHandle map[string]string // connection handle -> session id
	focused  string

	maxSessions   int
	sessionBudget int
	nameCursor    int

	now func() time.Time // test seam
}

// NewRegistry creates an empty session registry.
func NewRegistry(maxSessions, sessionBudget int) *Registry {
	return &Registry{
		byHandle:      make(map[string]string),
		maxSessions:   maxSessions,
		sessionBudget: sessionBudget,
		now:           time.Now,
	}
}

// Add creates a new session and focuses it. The session starts disconnected
// until a connection handle attaches. Returns ErrPoolAtCapacity when the
// pool is full.
func (r *Registry) Add(workingPath, label string) (types.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.sessions) >= r.maxSessions {
		return types.Session{}, fmt.Errorf("%w: %d/%d", ErrPoolAtCapacity, len(r.sessions), r.maxSessions)
	}

	member := roster[r.nameCursor%len(roster)]
	r.nameCursor++

	name := label
	icon := member.icon
	if name == "" {
		name = member.name
	}

	s := &types.Session{
		ID:           uuid.NewString(),
		Name:         name,
		Icon:         icon,
		Status:       types.StatusDisconnected,
		ContextUsage: 0,
		LastActivity: r.now(),
	}
	if workingPath != "" {
		s.Workspace = &types.WorkingPath{
			Path: workingPath,
			Name: filepath.Base(workingPath),
		}
	}

	r.sessions = append(r.sessions, s)
	r.focused = s.ID

	logging.Party("Session added: %s (%s), pool %d/%d", s.Name, s.ID, len(r.sessions), r.maxSessions)
	return *s, nil
}

// Restore re-adds a session persisted by a previous process, keeping its
// id and name. Restored sessions come back disconnected with zero context
// usage; live state does not survive a restart. Unlike Add, restoring does
// not steal focus from an already-focused session.
func (r *Registry) Restore(id, name, workingPath string) (types.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.sessions) >= r.maxSessions {
		return types.Session{}, fmt.Errorf("%w: %d/%d", ErrPoolAtCapacity, len(r.sessions), r.maxSessions)
	}
	if r.indexLocked(id) >= 0 {
		return types.Session{}, fmt.Errorf("session %s already in pool", id)
	}

	member := roster[r.nameCursor%len(roster)]
	r.nameCursor++
	if name == "" {
		name = member.name
	}

	s := &types.Session{
		ID:           id,
		Name:         name,
		Icon:         member.icon,
		Status:       types.StatusDisconnected,
		LastActivity: r.now(),
	}
	if workingPath != "" {
		s.Workspace = &types.WorkingPath{
			Path: workingPath,
			Name: filepath.Base(workingPath),
		}
	}

	r.sessions = append(r.sessions, s)
	if r.focused == "" {
		r.focused = s.ID
	}

	logging.Party("Session restored: %s (%s), pool %d/%d", s.Name, s.ID, len(r.sessions), r.maxSessions)
	return *s, nil
}

// Close removes a session. Closing the sole remaining session is rejected.
// If the closed session was focused, focus moves to the session after it by
// index, falling back to the last one.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	if len(r.sessions) == 1 {
		return ErrLastSession
	}

	s := r.sessions[idx]
	if s.Handle != "" {
		delete(r.byHandle, s.Handle)
	}
	r.sessions = append(r.sessions[:idx], r.sessions[idx+1:]...)

	if r.focused == id {
		next := idx
		if next >= len(r.sessions) {
			next = len(r.sessions) - 1
		}
		r.focused = r.sessions[next].ID
	}

	logging.Party("Session closed: %s, pool %d/%d", id, len(r.sessions), r.maxSessions)
	return nil
}

// Rename sets a session's display name.
func (r *Registry) Rename(id, name string) error {
	return r.mutate(id, func(s *types.Session) { s.Name = name })
}

// Focus makes a session the focused one.
func (r *Registry) Focus(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	r.focused = id
	r.sessions[idx].LastActivity = r.now()
	return nil
}

// UpdateTask sets a session's current task description.
func (r *Registry) UpdateTask(id, task string) error {
	return r.mutate(id, func(s *types.Session) { s.CurrentTask = task })
}

// TouchActivity bumps a session's last-activity timestamp.
func (r *Registry) TouchActivity(id string) error {
	return r.mutate(id, func(s *types.Session) {})
}

// IncrementContextUsage adds a delta to a session's context usage. Usage is
// monotonic between recoveries; non-positive deltas are ignored.
func (r *Registry) IncrementContextUsage(id string, delta int) error {
	if delta <= 0 {
		return nil
	}
	return r.mutate(id, func(s *types.Session) { s.ContextUsage += delta })
}

// SetContextUsage overwrites a session's context usage.
func (r *Registry) SetContextUsage(id string, usage int) error {
	if usage < 0 {
		usage = 0
	}
	return r.mutate(id, func(s *types.Session) { s.ContextUsage = usage })
}

// Recover resets a session's context usage to zero and touches activity.
// This is the "resurrect" operation surfaced once a session goes critical.
func (r *Registry) Recover(id string) error {
	err := r.mutate(id, func(s *types.Session) { s.ContextUsage = 0 })
	if err == nil {
		logging.Party("Session recovered: %s", id)
	}
	return err
}

// AttachLoadout associates (or clears, with empty id) a loadout reference.
func (r *Registry) AttachLoadout(id, loadoutID, name string, weight int) error {
	return r.mutate(id, func(s *types.Session) {
		if loadoutID == "" {
			s.Loadout = nil
			return
		}
		s.Loadout = &types.LoadoutRef{ID: loadoutID, Name: name, Weight: weight}
	})
}

// AttachPersona associates (or clears, with empty id) a sub-agent persona.
func (r *Registry) AttachPersona(id, personaID, name string) error {
	return r.mutate(id, func(s *types.Session) {
		if personaID == "" {
			s.Persona = nil
			return
		}
		s.Persona = &types.PersonaRef{ID: personaID, Name: name}
	})
}

// RebindWorkingPath rebinds (or clears, with empty path) the session's
// working directory.
func (r *Registry) RebindWorkingPath(id, path, name string) error {
	return r.mutate(id, func(s *types.Session) {
		if path == "" {
			s.Workspace = nil
			return
		}
		if name == "" {
			name = filepath.Base(path)
		}
		s.Workspace = &types.WorkingPath{Path: path, Name: name}
	})
}

// AttachHandle binds a connection handle to a session and moves it from
// Disconnected to Idle.
func (r *Registry) AttachHandle(id, handle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}

	s := r.sessions[idx]
	if s.Handle != "" {
		delete(r.byHandle, s.Handle)
	}
	s.Handle = handle
	s.IsConnected = true
	if s.Status == types.StatusDisconnected {
		s.Status = types.StatusIdle
	}
	s.LastActivity = r.now()
	r.byHandle[handle] = id

	logging.Party("Session %s connected (handle %s)", id, handle)
	return nil
}

// ApplyOutput feeds a raw output chunk from the host into the session the
// handle belongs to: the chunk is classified, any legal status transition is
// applied, the task description updated, and context usage incremented by
// the chunk's estimated token weight. Output for unknown handles is dropped.
func (r *Registry) ApplyOutput(handle, chunk string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byHandle[handle]
	if !ok {
		return
	}
	idx := r.indexLocked(id)
	if idx < 0 {
		return
	}
	s := r.sessions[idx]

	res := classify.Classify(chunk)
	if res.HasStatus {
		r.applyStatusLocked(s, res.Status)
	}
	if res.Task != "" {
		s.CurrentTask = res.Task
	}
	s.ContextUsage += budget.EstimateTokens(chunk)
	s.LastActivity = r.now()
}

// HandleExit marks the session owning the handle as disconnected. This is a
// terminal transition until the session is re-added or re-attached.
func (r *Registry) HandleExit(handle string, exitCode int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byHandle[handle]
	if !ok {
		return
	}
	delete(r.byHandle, handle)

	idx := r.indexLocked(id)
	if idx < 0 {
		return
	}
	s := r.sessions[idx]
	s.Status = types.StatusDisconnected
	s.IsConnected = false
	s.Handle = ""
	s.LastActivity = r.now()

	logging.Party("Session %s disconnected (exit code %d)", id, exitCode)
}

// applyStatusLocked applies a classifier-driven transition if it is legal
// from the current state. Disconnected sessions ignore classifier signals;
// reconnection is the only way out of Disconnected.
func (r *Registry) applyStatusLocked(s *types.Session, next types.SessionStatus) {
	if s.Status == types.StatusDisconnected || next == types.StatusDisconnected {
		return
	}
	s.Status = next
}

// Sessions returns a copy of the pool in creation order.
func (r *Registry) Sessions() []types.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	return out
}

// Get returns a copy of one session.
func (r *Registry) Get(id string) (types.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := r.indexLocked(id)
	if idx < 0 {
		return types.Session{}, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return *r.sessions[idx], nil
}

// Focused returns the focused session, if any.
func (r *Registry) Focused() (types.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := r.indexLocked(r.focused)
	if idx < 0 {
		return types.Session{}, false
	}
	return *r.sessions[idx], true
}

// Health classifies a session's context load against the per-session budget.
func (r *Registry) Health(id string) (types.SessionHealth, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := r.indexLocked(id)
	if idx < 0 {
		return "", fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return budget.SessionHealth(r.sessions[idx].ContextUsage, r.sessionBudget), nil
}

// Len returns the current pool size.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// mutate runs fn on a session under the lock and touches activity.
func (r *Registry) mutate(id string, fn func(*types.Session)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	fn(r.sessions[idx])
	r.sessions[idx].LastActivity = r.now()
	return nil
}

func (r *Registry) indexLocked(id string) int {
	for i, s := range r.sessions {
		if s.ID == id {
			return i
		}
	}
	return -1
}
