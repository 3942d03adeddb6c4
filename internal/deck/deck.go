// Package deck is the orchestration layer: it owns the capability
// allocator, the loadout registry, the session registry, and the process
// host, and exposes the operations the control surface calls. Multi-step
// operations (loadout application, rescan) run under one mutex so
// observers never see a half-applied state.
package deck

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"partydeck/internal/budget"
	"partydeck/internal/config"
	"partydeck/internal/host"
	"partydeck/internal/inventory"
	"partydeck/internal/loadout"
	"partydeck/internal/logging"
	"partydeck/internal/party"
	"partydeck/internal/persona"
	"partydeck/internal/scanner"
	"partydeck/internal/store"
	"partydeck/internal/types"
	"partydeck/internal/usage"
)

// stateKeyPending is the app_state key holding a deferred allocation so it
// survives process restarts.
const stateKeyPending = "pending_allocation"

// pendingState is the persisted form of a deferred allocation. Usage
// numbers are recomputed on restore, so only the request itself is stored.
type pendingState struct {
	CapabilityID string        `json:"capabilityId"`
	Slot         types.SlotRef `json:"targetSlot"`
}

// Snapshot is the read-only view handed to subscribers after every
// mutation.
type Snapshot struct {
	Capabilities []types.Capability
	Equipment    types.Equipment
	Stats        types.BudgetSnapshot
	Pending      *types.PendingAllocation
	Sessions     []types.Session
}

// Deck wires the subsystems together for one workspace.
type Deck struct {
	mu sync.Mutex

	cfg      config.Config
	alloc    *inventory.Allocator
	loadouts *loadout.Registry
	sessions *party.Registry
	personas *persona.Library
	scan     *scanner.Scanner
	st       *store.Store
	tracker  *usage.Tracker
	h        host.Host

	subsMu  sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int

	// hydrated flips once persisted state has been restored or the user
	// has mutated equipment. Rescans before that point must not overwrite
	// a previous process's checkpoint with the pre-restore empty state.
	hydrated bool

	done     chan struct{}
	pumpDone chan struct{}
}

// New assembles a deck from config. The host is injected so tests can run
// against a scripted one.
func New(cfg config.Config, h host.Host) (*Deck, error) {
	dbPath := cfg.Store.DatabasePath
	if dbPath != ":memory:" && !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(cfg.Workspace, dbPath)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	tracker, err := usage.NewTracker(filepath.Join(cfg.Workspace, ".partydeck"))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open usage tracker: %w", err)
	}

	model := budget.Model{
		Total:      cfg.Budget.Total,
		Healthy:    cfg.Budget.HealthyThreshold,
		Overloaded: cfg.Budget.OverloadedThreshold,
	}

	d := &Deck{
		cfg:      cfg,
		alloc:    inventory.New(model),
		loadouts: loadout.NewRegistry(st),
		sessions: party.NewRegistry(cfg.Party.MaxSessions, cfg.Budget.SessionBudget),
		personas: persona.NewLibrary(cfg.Workspace, cfg.Scanner.GlobalDir),
		scan:     scanner.New(cfg.Workspace, cfg.Scanner.GlobalDir),
		st:       st,
		tracker:  tracker,
		h:        h,
		subs:     make(map[int]chan Snapshot),
		done:     make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
	d.restoreSessions()
	go d.pump()
	return d, nil
}

// restoreSessions repopulates the pool from session metadata persisted by a
// previous process. Sessions come back disconnected; a stale loadout or
// persona reference is dropped silently rather than blocking startup.
func (d *Deck) restoreSessions() {
	metas, err := d.st.ListSessionMeta()
	if err != nil {
		logging.Get(logging.CategoryStore).Warn("List session meta failed: %v", err)
		return
	}
	for _, m := range metas {
		s, err := d.sessions.Restore(m.ID, m.Name, m.WorkingPath)
		if err != nil {
			logging.Get(logging.CategoryParty).Warn("Session %s not restored: %v", m.ID, err)
			continue
		}
		if m.LoadoutID != "" {
			if l, err := d.loadouts.Get(m.LoadoutID); err == nil {
				d.sessions.AttachLoadout(s.ID, l.ID, l.Name, l.TotalWeight)
			}
		}
		if m.PersonaID != "" {
			if p, err := d.personas.Find(m.PersonaID); err == nil {
				d.sessions.AttachPersona(s.ID, p.ID, personaDisplayName(p))
			}
		}
	}
}

// pump feeds host events into the session registry.
func (d *Deck) pump() {
	defer close(d.pumpDone)
	for {
		select {
		case ev, ok := <-d.h.Output():
			if !ok {
				return
			}
			d.sessions.ApplyOutput(ev.Handle, string(ev.Data))
			d.broadcast()
		case ev, ok := <-d.h.Exits():
			if !ok {
				return
			}
			d.sessions.HandleExit(ev.Handle, ev.Code)
			d.broadcast()
		case <-d.done:
			return
		}
	}
}

// Close shuts down the pump, the host, and the persistence layers.
func (d *Deck) Close() error {
	close(d.done)
	<-d.pumpDone

	d.h.Close()
	if err := d.tracker.Close(); err != nil {
		logging.Get(logging.CategoryUsage).Warn("Usage flush on close failed: %v", err)
	}
	return d.st.Close()
}

// --- capabilities and budget ---

// Rescan re-reads capabilities from disk and re-equips the survivors of
// the previous enabled set. Capabilities that vanished from disk come
// back as warnings.
func (d *Deck) Rescan(ctx context.Context) (types.ScanResult, []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	res := d.scan.Scan(ctx)

	enabled := equippedRefs(d.alloc.Equipped())
	d.alloc.SetCapabilities(res.Items)

	var warnings []string
	for _, ref := range enabled {
		if _, err := d.alloc.EquipCommitted(ref.id, ref.slot); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s no longer equippable: %v", ref.id, err))
		}
	}

	if d.hydrated {
		d.checkpoint()
	}
	d.broadcast()
	return res, warnings
}

// RestoreEquipment re-equips the set checkpointed by a previous process,
// then re-raises the pending allocation if one was awaiting confirmation.
// Ids that no longer scan cleanly come back as warnings.
func (d *Deck) RestoreEquipment() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	assignments, ok, err := d.loadouts.Restore()
	if err != nil {
		return nil, err
	}

	var warnings []string
	if ok {
		for _, cat := range types.SlotCategories() {
			idx := 0
			for _, capID := range assignments[cat] {
				if _, err := d.alloc.EquipCommitted(capID, types.SlotRef{Category: cat, Index: idx}); err != nil {
					warnings = append(warnings, fmt.Sprintf("dropped %s: %v", capID, err))
					continue
				}
				idx++
			}
		}
	}
	warnings = append(warnings, d.restorePendingLocked()...)

	d.commitCheckpoint()
	d.broadcast()
	return warnings, nil
}

// restorePendingLocked replays a persisted deferred equip request. The
// request goes back through the allocator, so it either defers again under
// the restored load or commits outright if the budget now allows it.
func (d *Deck) restorePendingLocked() []string {
	raw, err := d.st.GetState(stateKeyPending)
	if err != nil {
		return nil
	}

	var p pendingState
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		logging.Get(logging.CategoryStore).Warn("Discarding unreadable pending checkpoint: %v", err)
		return nil
	}
	if _, err := d.alloc.RequestEquip(p.CapabilityID, p.Slot); err != nil {
		return []string{fmt.Sprintf("dropped pending %s: %v", p.CapabilityID, err)}
	}
	return nil
}

// Watch starts a filesystem watcher over the scan sources. Each debounced
// change triggers a rescan; the result is delivered to onUpdate when it is
// non-nil. Close the returned watcher to stop.
func (d *Deck) Watch(onUpdate func(types.ScanResult, []string)) (*scanner.Watcher, error) {
	return scanner.Watch(d.scan, d.cfg.Scanner.DebounceDuration(), func() {
		res, warnings := d.Rescan(context.Background())
		if onUpdate != nil {
			onUpdate(res, warnings)
		}
	})
}

// commitCheckpoint marks the in-memory state authoritative and persists
// it. Every user-driven equipment mutation goes through here.
func (d *Deck) commitCheckpoint() {
	d.hydrated = true
	d.checkpoint()
}

// checkpoint persists the current equipped set and the pending allocation
// (if any) for the next process.
func (d *Deck) checkpoint() {
	if err := d.loadouts.Checkpoint(d.alloc.Equipped()); err != nil {
		logging.Get(logging.CategoryStore).Warn("Equipment checkpoint failed: %v", err)
	}

	if p := d.alloc.Pending(); p != nil {
		raw, err := json.Marshal(pendingState{CapabilityID: p.Capability.ID, Slot: p.TargetSlot})
		if err == nil {
			err = d.st.SetState(stateKeyPending, string(raw))
		}
		if err != nil {
			logging.Get(logging.CategoryStore).Warn("Pending checkpoint failed: %v", err)
		}
		return
	}
	if err := d.st.DeleteState(stateKeyPending); err != nil {
		logging.Get(logging.CategoryStore).Warn("Pending checkpoint clear failed: %v", err)
	}
}

func (d *Deck) Capabilities() []types.Capability { return d.alloc.Capabilities() }

// Capability looks up a single discovered capability by id.
func (d *Deck) Capability(id string) (types.Capability, error) { return d.alloc.Get(id) }

func (d *Deck) Equipped() types.Equipment { return d.alloc.Equipped() }

func (d *Deck) Stats() types.BudgetSnapshot { return d.alloc.Stats() }

func (d *Deck) Pending() *types.PendingAllocation {
	return d.alloc.Pending()
}

func (d *Deck) Equip(id string, slot types.SlotRef) (inventory.EquipResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	res, err := d.alloc.RequestEquip(id, slot)
	if err == nil {
		// Deferred requests checkpoint too, so the pending allocation
		// survives into the next process.
		d.commitCheckpoint()
	}
	d.broadcast()
	return res, err
}

func (d *Deck) ConfirmPending() (inventory.EquipResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	res, err := d.alloc.ConfirmPending()
	if err == nil {
		d.commitCheckpoint()
	}
	d.broadcast()
	return res, err
}

func (d *Deck) CancelPending() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alloc.CancelPending()
	d.commitCheckpoint()
	d.broadcast()
}

func (d *Deck) Release(slot types.SlotRef) types.BudgetSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	snap := d.alloc.Release(slot)
	d.commitCheckpoint()
	d.broadcast()
	return snap
}

func (d *Deck) ReleaseCapability(id string) (types.BudgetSnapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	snap, err := d.alloc.ReleaseCapability(id)
	if err == nil {
		d.commitCheckpoint()
	}
	d.broadcast()
	return snap, err
}

// --- loadouts ---

func (d *Deck) Loadouts() ([]types.Loadout, error) { return d.loadouts.List() }

func (d *Deck) SaveLoadout(name, icon, description string) (types.Loadout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loadouts.Save(name, icon, description, d.alloc.Equipped())
}

func (d *Deck) DeleteLoadout(id string) error { return d.loadouts.Delete(id) }

func (d *Deck) UpdateLoadoutMeta(id string, patch types.LoadoutMetaPatch) (types.Loadout, error) {
	return d.loadouts.UpdateMeta(id, patch)
}

// ApplyLoadout replaces the entire enabled set with a stored loadout in
// one transaction: release everything, then equip the stored assignments
// on the committed path. Stale capability ids are skipped and reported,
// never fatal.
func (d *Deck) ApplyLoadout(id string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	assignments, err := d.loadouts.Load(id)
	if err != nil {
		return nil, err
	}

	d.alloc.ReleaseAll()

	var warnings []string
	for _, cat := range types.SlotCategories() {
		idx := 0
		for _, capID := range assignments[cat] {
			_, err := d.alloc.EquipCommitted(capID, types.SlotRef{Category: cat, Index: idx})
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("skipped %s: %v", capID, err))
				continue
			}
			idx++
		}
	}

	d.loadouts.MarkUsed(id)
	d.commitCheckpoint()
	logging.Loadout("Applied loadout %s (%d warnings)", id, len(warnings))
	d.broadcast()
	return warnings, nil
}

// --- sessions ---

// AddSession creates a disconnected session and persists its metadata.
func (d *Deck) AddSession(workingPath string) (types.Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, err := d.sessions.Add(workingPath, "")
	if err != nil {
		return types.Session{}, err
	}
	d.persistSessionMeta(s)
	d.tracker.StartSession()
	d.broadcast()
	return s, nil
}

// ConnectSession spawns the assistant process for a session and attaches
// the handle, moving the session to Idle.
func (d *Deck) ConnectSession(ctx context.Context, id string, opts host.SpawnOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, err := d.sessions.Get(id)
	if err != nil {
		return err
	}
	if opts.Dir == "" && s.Workspace != nil {
		opts.Dir = s.Workspace.Path
	}

	handle, err := d.h.Spawn(ctx, opts)
	if err != nil {
		return fmt.Errorf("spawn session process: %w", err)
	}
	if err := d.sessions.AttachHandle(id, handle); err != nil {
		_ = d.h.Kill(handle)
		return err
	}
	d.broadcast()
	return nil
}

// CloseSession kills the session's process if connected and removes it
// from the pool. The last session cannot be closed.
func (d *Deck) CloseSession(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, err := d.sessions.Get(id)
	if err != nil {
		return err
	}
	if err := d.sessions.Close(id); err != nil {
		return err
	}
	if s.Handle != "" {
		if err := d.h.Kill(s.Handle); err != nil {
			logging.Get(logging.CategoryHost).Warn("Kill on close failed for %s: %v", s.Handle, err)
		}
	}
	if err := d.st.DeleteSessionMeta(id); err != nil {
		logging.Get(logging.CategoryStore).Warn("Delete session meta failed: %v", err)
	}
	d.tracker.EndSession()
	d.broadcast()
	return nil
}

// SendInput writes to a connected session's stdin and counts the message.
func (d *Deck) SendInput(id string, data []byte) error {
	s, err := d.sessions.Get(id)
	if err != nil {
		return err
	}
	if s.Handle == "" {
		return party.ErrNotConnected
	}
	if err := d.h.Write(s.Handle, data); err != nil {
		return err
	}
	d.sessions.TouchActivity(id)
	d.tracker.RecordMessage(int64(budget.EstimateTokens(string(data))), 0)
	return nil
}

func (d *Deck) RenameSession(id, name string) error {
	err := d.sessions.Rename(id, name)
	if err == nil {
		d.syncSessionMeta(id)
		d.broadcast()
	}
	return err
}

func (d *Deck) FocusSession(id string) error {
	err := d.sessions.Focus(id)
	if err == nil {
		d.broadcast()
	}
	return err
}

func (d *Deck) RecoverSession(id string) error {
	err := d.sessions.Recover(id)
	if err == nil {
		d.broadcast()
	}
	return err
}

// AttachLoadoutToSession records which loadout a session is running with.
func (d *Deck) AttachLoadoutToSession(sessionID, loadoutID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, err := d.loadouts.Get(loadoutID)
	if err != nil {
		return err
	}
	if err := d.sessions.AttachLoadout(sessionID, l.ID, l.Name, l.TotalWeight); err != nil {
		return err
	}
	d.syncSessionMeta(sessionID)
	d.broadcast()
	return nil
}

// AttachPersonaToSession validates a persona against the library and
// records it on the session. An empty persona id clears the association.
func (d *Deck) AttachPersonaToSession(sessionID, personaID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	name := ""
	if personaID != "" {
		p, err := d.personas.Find(personaID)
		if err != nil {
			return err
		}
		name = personaDisplayName(p)
	}
	if err := d.sessions.AttachPersona(sessionID, personaID, name); err != nil {
		return err
	}
	d.syncSessionMeta(sessionID)
	d.broadcast()
	return nil
}

// Personas lists the persona files visible to this workspace.
func (d *Deck) Personas() []persona.Persona { return d.personas.List() }

// FindPersona resolves a persona id across both scopes.
func (d *Deck) FindPersona(id string) (persona.Persona, error) { return d.personas.Find(id) }

// personaDisplayName prefers the frontmatter name over the file stem.
func personaDisplayName(p persona.Persona) string {
	if p.Config.Name != "" {
		return p.Config.Name
	}
	return p.ID
}

func (d *Deck) RebindSessionWorkingPath(sessionID, path string) error {
	err := d.sessions.RebindWorkingPath(sessionID, path, filepath.Base(path))
	if err == nil {
		d.syncSessionMeta(sessionID)
		d.broadcast()
	}
	return err
}

func (d *Deck) Sessions() []types.Session { return d.sessions.Sessions() }

func (d *Deck) Session(id string) (types.Session, error) { return d.sessions.Get(id) }

func (d *Deck) FocusedSession() (types.Session, bool) { return d.sessions.Focused() }

func (d *Deck) UsageTracker() *usage.Tracker { return d.tracker }

// --- subscriptions ---

// Subscribe returns a channel receiving a snapshot after every mutation,
// plus a cancel func. Slow subscribers miss intermediate snapshots rather
// than blocking mutations.
func (d *Deck) Subscribe() (<-chan Snapshot, func()) {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()

	id := d.nextSub
	d.nextSub++
	ch := make(chan Snapshot, 1)
	d.subs[id] = ch

	return ch, func() {
		d.subsMu.Lock()
		defer d.subsMu.Unlock()
		if _, ok := d.subs[id]; ok {
			delete(d.subs, id)
			close(ch)
		}
	}
}

func (d *Deck) broadcast() {
	snap := Snapshot{
		Capabilities: d.alloc.Capabilities(),
		Equipment:    d.alloc.Equipped(),
		Stats:        d.alloc.Stats(),
		Pending:      d.alloc.Pending(),
		Sessions:     d.sessions.Sessions(),
	}

	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	for _, ch := range d.subs {
		select {
		case ch <- snap:
		default:
			// Replace the stale snapshot so the subscriber always
			// wakes to the latest state.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// --- session meta persistence ---

func (d *Deck) persistSessionMeta(s types.Session) {
	m := store.SessionMeta{
		ID:        s.ID,
		Name:      s.Name,
		UpdatedAt: s.LastActivity,
	}
	if s.Workspace != nil {
		m.WorkingPath = s.Workspace.Path
	}
	if s.Persona != nil {
		m.PersonaID = s.Persona.ID
	}
	if s.Loadout != nil {
		m.LoadoutID = s.Loadout.ID
	}
	if err := d.st.SaveSessionMeta(m); err != nil {
		logging.Get(logging.CategoryStore).Warn("Persist session meta failed: %v", err)
	}
}

func (d *Deck) syncSessionMeta(id string) {
	if s, err := d.sessions.Get(id); err == nil {
		d.persistSessionMeta(s)
	}
}

type equippedRef struct {
	id   string
	slot types.SlotRef
}

// equippedRefs flattens an equipment view into (id, slot) pairs.
func equippedRefs(eq types.Equipment) []equippedRef {
	var out []equippedRef
	add := func(cat types.SlotCategory, caps ...*types.Capability) {
		idx := 0
		for _, c := range caps {
			if c == nil {
				continue
			}
			out = append(out, equippedRef{id: c.ID, slot: types.SlotRef{Category: cat, Index: idx}})
			idx++
		}
	}
	add(types.SlotHelm, eq.Helm)
	add(types.SlotMainhand, eq.Mainhand)
	add(types.SlotOffhand, eq.Offhand)
	add(types.SlotHooks, eq.Hooks...)
	add(types.SlotRings, eq.Rings...)
	add(types.SlotSpellbook, eq.Spellbook...)
	add(types.SlotCompanions, eq.Companions...)
	add(types.SlotTrinkets, eq.Trinkets...)
	return out
}
