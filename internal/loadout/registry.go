// Package loadout implements the loadout registry: named, persisted
// snapshots of a full slot assignment, plus the built-in presets.
package loadout

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"partydeck/internal/logging"
	"partydeck/internal/store"
	"partydeck/internal/types"
)

// currentID is the reserved id under which the live equipped set is
// checkpointed between runs. It never shows up in List.
const currentID = "internal-current"

var (
	// ErrUnknownLoadout means the caller passed a stale loadout id.
	ErrUnknownLoadout = errors.New("unknown loadout")

	// ErrPresetImmutable means the caller tried to edit or delete a preset.
	ErrPresetImmutable = errors.New("preset loadouts cannot be edited or deleted")
)

// Registry owns the preset loadouts and persists user loadouts through the
// store. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	store   *store.Store
	presets map[string]*types.Loadout

	now func() time.Time // test seam
}

// NewRegistry creates a registry backed by the given store and seeds the
// built-in presets.
func NewRegistry(st *store.Store) *Registry {
	r := &Registry{
		store:   st,
		presets: make(map[string]*types.Loadout),
		now:     time.Now,
	}
	for _, p := range presetLoadouts() {
		cp := p
		r.presets[p.ID] = &cp
	}
	return r
}

// presetLoadouts defines the fixed, non-deletable loadouts. Their
// assignments reference well-known capability ids; ids missing from the
// current workspace are skipped with a warning at apply time.
func presetLoadouts() []types.Loadout {
	epoch := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return []types.Loadout{
		{
			ID:          types.PresetPrefix + "traveler",
			Name:        "Traveler",
			Icon:        "🎒",
			Description: "Nothing equipped. Maximum headroom.",
			Assignments: map[types.SlotCategory][]string{},
			TotalWeight: 0,
			CreatedAt:   epoch,
		},
		{
			ID:          types.PresetPrefix + "scribe",
			Name:        "Scribe",
			Icon:        "📜",
			Description: "Memory file only, for writing-heavy work.",
			Assignments: map[types.SlotCategory][]string{
				types.SlotHelm: {"memory-project"},
			},
			TotalWeight: 2_000,
			CreatedAt:   epoch,
		},
		{
			ID:          types.PresetPrefix + "artificer",
			Name:        "Artificer",
			Icon:        "⚒️",
			Description: "Memory file plus the project plugin pair.",
			Assignments: map[types.SlotCategory][]string{
				types.SlotHelm:     {"memory-project"},
				types.SlotMainhand: {"plugin-primary"},
				types.SlotOffhand:  {"plugin-secondary"},
			},
			TotalWeight: 18_000,
			CreatedAt:   epoch,
		},
	}
}

// Save snapshots the current equipment as a new user loadout. TotalWeight
// is computed from the equipped capabilities' weights at save time and is
// never re-derived afterwards.
func (r *Registry) Save(name, icon, description string, eq types.Equipment) (types.Loadout, error) {
	assignments, total := snapshotEquipment(eq)

	l := types.Loadout{
		ID:          "user-" + uuid.NewString(),
		Name:        name,
		Icon:        icon,
		Description: description,
		Assignments: assignments,
		TotalWeight: total,
		CreatedAt:   r.now(),
	}

	if err := r.store.SaveLoadout(l); err != nil {
		return types.Loadout{}, err
	}
	logging.Loadout("Saved loadout %s (%s), weight %d", l.ID, name, total)
	return l, nil
}

// Get fetches a loadout by id, preset or user.
func (r *Registry) Get(id string) (types.Loadout, error) {
	r.mu.RLock()
	if p, ok := r.presets[id]; ok {
		cp := *p
		r.mu.RUnlock()
		return cp, nil
	}
	r.mu.RUnlock()

	l, err := r.store.GetLoadout(id)
	if errors.Is(err, store.ErrNotFound) {
		return types.Loadout{}, fmt.Errorf("%w: %s", ErrUnknownLoadout, id)
	}
	return l, err
}

// Load returns the stored slot assignments for the caller to apply through
// the allocator's two-pass protocol. The registry never touches the
// allocator itself.
func (r *Registry) Load(id string) (map[types.SlotCategory][]string, error) {
	l, err := r.Get(id)
	if err != nil {
		return nil, err
	}

	out := make(map[types.SlotCategory][]string, len(l.Assignments))
	for cat, ids := range l.Assignments {
		out[cat] = append([]string(nil), ids...)
	}
	return out, nil
}

// List returns presets followed by user loadouts (newest first).
func (r *Registry) List() ([]types.Loadout, error) {
	r.mu.RLock()
	presets := make([]types.Loadout, 0, len(r.presets))
	for _, p := range presetLoadouts() {
		if live, ok := r.presets[p.ID]; ok {
			presets = append(presets, *live)
		}
	}
	r.mu.RUnlock()

	stored, err := r.store.ListLoadouts()
	if err != nil {
		return nil, err
	}
	for _, l := range stored {
		if l.ID == currentID {
			continue
		}
		presets = append(presets, l)
	}
	return presets, nil
}

// Checkpoint persists the live equipped set under the reserved current
// id so the next process can restore it.
func (r *Registry) Checkpoint(eq types.Equipment) error {
	assignments, total := snapshotEquipment(eq)
	return r.store.SaveLoadout(types.Loadout{
		ID:          currentID,
		Name:        "current",
		Assignments: assignments,
		TotalWeight: total,
		CreatedAt:   r.now(),
	})
}

// Restore returns the checkpointed equipped set, or ok=false when none
// was ever written.
func (r *Registry) Restore() (map[types.SlotCategory][]string, bool, error) {
	l, err := r.store.GetLoadout(currentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return l.Assignments, true, nil
}

// Delete removes a user loadout. Presets are immutable.
func (r *Registry) Delete(id string) error {
	if isPreset(id) {
		return fmt.Errorf("%w: %s", ErrPresetImmutable, id)
	}
	err := r.store.DeleteLoadout(id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownLoadout, id)
	}
	if err == nil {
		logging.Loadout("Deleted loadout %s", id)
	}
	return err
}

// UpdateMeta patches a user loadout's name/icon/description. Assignments
// are never patchable; presets are immutable.
func (r *Registry) UpdateMeta(id string, patch types.LoadoutMetaPatch) (types.Loadout, error) {
	if isPreset(id) {
		return types.Loadout{}, fmt.Errorf("%w: %s", ErrPresetImmutable, id)
	}

	l, err := r.Get(id)
	if err != nil {
		return types.Loadout{}, err
	}

	if patch.Name != nil {
		l.Name = *patch.Name
	}
	if patch.Icon != nil {
		l.Icon = *patch.Icon
	}
	if patch.Description != nil {
		l.Description = *patch.Description
	}

	if err := r.store.SaveLoadout(l); err != nil {
		return types.Loadout{}, err
	}
	return l, nil
}

// MarkUsed records that a loadout was applied.
func (r *Registry) MarkUsed(id string) {
	when := r.now()

	r.mu.Lock()
	if p, ok := r.presets[id]; ok {
		t := when
		p.LastUsed = &t
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	if err := r.store.TouchLoadout(id, when); err != nil {
		logging.Get(logging.CategoryLoadout).Warn("Failed to record loadout use: %v", err)
	}
}

func isPreset(id string) bool {
	return types.Loadout{ID: id}.IsPreset()
}

// snapshotEquipment flattens an equipment view into per-category id lists
// plus the summed weight.
func snapshotEquipment(eq types.Equipment) (map[types.SlotCategory][]string, int) {
	assignments := make(map[types.SlotCategory][]string)
	total := 0

	add := func(cat types.SlotCategory, caps ...*types.Capability) {
		for _, c := range caps {
			if c == nil {
				continue
			}
			assignments[cat] = append(assignments[cat], c.ID)
			total += c.Weight
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
	return assignments, total
}
