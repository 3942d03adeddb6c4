// Package inventory implements the capability allocator: the authoritative
// list of scanned capabilities, the enabled set, the confirm-before-overload
// equip workflow, and the derived per-category equipped view.
package inventory

import (
	"errors"
	"fmt"
	"sync"

	"partydeck/internal/budget"
	"partydeck/internal/logging"
	"partydeck/internal/types"
)

var (
	// ErrUnknownCapability means the caller passed a stale capability id.
	ErrUnknownCapability = errors.New("unknown capability")

	// ErrUnknownSlot means the target slot does not exist or does not match
	// the capability's kind.
	ErrUnknownSlot = errors.New("unknown slot")

	// ErrCapacityExceeded means the target slot category is full. Capacity
	// is orthogonal to budget and is always checked first.
	ErrCapacityExceeded = errors.New("slot category at capacity")
)

// EquipResult reports the outcome of an equip request.
type EquipResult struct {
	// Committed is true when the capability was enabled; false when the
	// request was deferred behind a pending allocation.
	Committed bool
	Pending   *types.PendingAllocation
	Stats     types.BudgetSnapshot
	Warnings  []string
}

// Allocator owns the capability list and enabled state. All methods are safe
// for concurrent use; every mutation is atomic with respect to the others.
type Allocator struct {
	mu    sync.RWMutex
	model budget.Model

	caps  map[string]*types.Capability
	order []string // stable scan order, drives the derived view

	pending *types.PendingAllocation
}

// New creates an allocator with the given budget model and no capabilities.
func New(model budget.Model) *Allocator {
	return &Allocator{
		model: model,
		caps:  make(map[string]*types.Capability),
	}
}

// SetCapabilities replaces the capability list with the result of a scan.
// A pending allocation referring to a capability that no longer exists is
// discarded.
func (a *Allocator) SetCapabilities(items []types.Capability) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.caps = make(map[string]*types.Capability, len(items))
	a.order = a.order[:0]
	for i := range items {
		c := items[i]
		a.caps[c.ID] = &c
		a.order = append(a.order, c.ID)
	}

	if a.pending != nil {
		if _, ok := a.caps[a.pending.Capability.ID]; !ok {
			logging.Inventory("Discarding pending allocation for vanished capability %s", a.pending.Capability.ID)
			a.pending = nil
		}
	}

	logging.Inventory("Capability list replaced: %d items", len(items))
}

// Capabilities returns a copy of the full capability list in scan order.
func (a *Allocator) Capabilities() []types.Capability {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]types.Capability, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, *a.caps[id])
	}
	return out
}

// Get returns a copy of one capability.
func (a *Allocator) Get(id string) (types.Capability, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	c, ok := a.caps[id]
	if !ok {
		return types.Capability{}, fmt.Errorf("%w: %s", ErrUnknownCapability, id)
	}
	return *c, nil
}

// RequestEquip asks to enable a capability in the given slot. If committing
// would cross the overloaded threshold and the capability is not already
// enabled, no mutation happens and a pending allocation is returned instead;
// a pending allocation already in flight is replaced by the newer request.
// Capacity errors are rejected outright and never produce a pending
// allocation.
func (a *Allocator) RequestEquip(capabilityID string, slot types.SlotRef) (EquipResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	c, ok := a.caps[capabilityID]
	if !ok {
		return EquipResult{}, fmt.Errorf("%w: %s", ErrUnknownCapability, capabilityID)
	}
	if err := a.validateSlot(c, slot); err != nil {
		return EquipResult{}, err
	}
	if err := a.checkCapacity(c, slot); err != nil {
		return EquipResult{}, err
	}

	consumed := a.consumedLocked()
	projected := consumed
	if !c.Enabled {
		projected += c.Weight
	}
	projectedPct := float64(projected) / float64(a.model.Total)

	if projectedPct >= a.model.Overloaded && !c.Enabled {
		if a.pending != nil {
			logging.Inventory("Replacing pending allocation %s with %s", a.pending.Capability.ID, c.ID)
		}
		a.pending = &types.PendingAllocation{
			Capability:          *c,
			TargetSlot:          slot,
			CurrentUsage:        consumed,
			ProjectedUsage:      projected,
			ProjectedPercentage: projectedPct,
		}
		logging.Inventory("Equip of %s deferred: projected %.1f%% crosses overloaded threshold", c.ID, projectedPct*100)
		return EquipResult{
			Committed: false,
			Pending:   a.pendingCopyLocked(),
			Stats:     a.snapshotLocked(),
		}, nil
	}

	return a.performEquipLocked(c, slot)
}

// ConfirmPending commits the pending allocation regardless of threshold.
// Without a pending allocation it is a no-op.
func (a *Allocator) ConfirmPending() (EquipResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pending == nil {
		return EquipResult{Committed: false, Stats: a.snapshotLocked()}, nil
	}

	pendingID := a.pending.Capability.ID
	slot := a.pending.TargetSlot

	c, ok := a.caps[pendingID]
	if !ok {
		// Capability vanished between request and confirm (rescan).
		a.pending = nil
		return EquipResult{}, fmt.Errorf("%w: %s", ErrUnknownCapability, pendingID)
	}

	if err := a.checkCapacity(c, slot); err != nil {
		// The slot filled up while the confirmation was open; the pending
		// request can never succeed, so drop it.
		a.pending = nil
		return EquipResult{}, err
	}

	logging.Inventory("Pending allocation confirmed: %s", c.ID)
	return a.performEquipLocked(c, slot)
}

// CancelPending discards the pending allocation without mutating anything.
func (a *Allocator) CancelPending() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pending != nil {
		logging.Inventory("Pending allocation cancelled: %s", a.pending.Capability.ID)
		a.pending = nil
	}
}

// Pending returns a copy of the pending allocation, or nil.
func (a *Allocator) Pending() *types.PendingAllocation {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pendingCopyLocked()
}

// Release disables the capability occupying the given slot. Releasing an
// empty slot is a no-op.
func (a *Allocator) Release(slot types.SlotRef) types.BudgetSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	occupants := a.occupantsLocked(slot.Category)
	idx := slot.Index
	if types.SingleSlot(slot.Category) {
		idx = 0
	}
	if idx < 0 || idx >= len(occupants) {
		return a.snapshotLocked()
	}

	c := occupants[idx]
	c.Enabled = false
	logging.Inventory("Released %s from %s[%d]", c.ID, slot.Category, idx)
	return a.snapshotLocked()
}

// ReleaseCapability disables a capability by id. Releasing a capability that
// is not enabled is a no-op and does not change the budget snapshot.
func (a *Allocator) ReleaseCapability(id string) (types.BudgetSnapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	c, ok := a.caps[id]
	if !ok {
		return types.BudgetSnapshot{}, fmt.Errorf("%w: %s", ErrUnknownCapability, id)
	}
	if c.Enabled {
		c.Enabled = false
		logging.Inventory("Released %s", c.ID)
	}
	return a.snapshotLocked(), nil
}

// ReleaseAll disables every enabled capability and returns the released ids.
// Used as the first pass of loadout application.
func (a *Allocator) ReleaseAll() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	var released []string
	for _, id := range a.order {
		if a.caps[id].Enabled {
			a.caps[id].Enabled = false
			released = append(released, id)
		}
	}
	logging.Inventory("Released all: %d capabilities", len(released))
	return released
}

// EquipCommitted enables a capability bypassing the threshold confirmation.
// Capacity checks still apply. Used as the second pass of loadout
// application.
func (a *Allocator) EquipCommitted(capabilityID string, slot types.SlotRef) (EquipResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	c, ok := a.caps[capabilityID]
	if !ok {
		return EquipResult{}, fmt.Errorf("%w: %s", ErrUnknownCapability, capabilityID)
	}
	if err := a.validateSlot(c, slot); err != nil {
		return EquipResult{}, err
	}
	if err := a.checkCapacity(c, slot); err != nil {
		return EquipResult{}, err
	}
	return a.performEquipLocked(c, slot)
}

// Equipped rebuilds the derived per-category view from the enabled set.
func (a *Allocator) Equipped() types.Equipment {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.equippedLocked()
}

// Stats returns the current budget snapshot.
func (a *Allocator) Stats() types.BudgetSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshotLocked()
}

// performEquipLocked commits an equip: sets enabled, clears any pending
// allocation, recomputes the snapshot, and emits threshold warnings.
func (a *Allocator) performEquipLocked(c *types.Capability, slot types.SlotRef) (EquipResult, error) {
	c.Enabled = true
	a.pending = nil

	stats := a.snapshotLocked()

	var warnings []string
	switch stats.Status {
	case types.BudgetHeavy:
		warnings = append(warnings, "Context is getting heavy. Consider unequipping some items.")
	case types.BudgetOverloaded:
		warnings = append(warnings, "Context overloaded. Assistant performance will degrade significantly.")
	}

	logging.Inventory("Equipped %s into %s[%d] (consumed=%d, %.1f%%)",
		c.ID, slot.Category, slot.Index, stats.Consumed, stats.LoadPercentage*100)

	return EquipResult{Committed: true, Stats: stats, Warnings: warnings}, nil
}

// validateSlot checks that the slot exists and matches the capability kind.
func (a *Allocator) validateSlot(c *types.Capability, slot types.SlotRef) error {
	limit := types.SlotLimit(slot.Category)
	if limit == 0 {
		return fmt.Errorf("%w: %q", ErrUnknownSlot, slot.Category)
	}
	if types.SlotFor(c.Kind) != slot.Category {
		return fmt.Errorf("%w: capability %s (%s) cannot occupy %s", ErrUnknownSlot, c.ID, c.Kind, slot.Category)
	}
	if !types.SingleSlot(slot.Category) && (slot.Index < 0 || slot.Index >= limit) {
		return fmt.Errorf("%w: %s[%d]", ErrUnknownSlot, slot.Category, slot.Index)
	}
	return nil
}

// checkCapacity rejects equips into a full category. Already-enabled
// capabilities occupy their own place and pass.
func (a *Allocator) checkCapacity(c *types.Capability, slot types.SlotRef) error {
	if c.Enabled {
		return nil
	}
	count := len(a.occupantsLocked(slot.Category))
	if count >= types.SlotLimit(slot.Category) {
		return fmt.Errorf("%w: %s (%d/%d)", ErrCapacityExceeded, slot.Category, count, types.SlotLimit(slot.Category))
	}
	return nil
}

func (a *Allocator) occupantsLocked(cat types.SlotCategory) []*types.Capability {
	var out []*types.Capability
	for _, id := range a.order {
		c := a.caps[id]
		if c.Enabled && types.SlotFor(c.Kind) == cat {
			out = append(out, c)
		}
	}
	return out
}

func (a *Allocator) equippedLocked() types.Equipment {
	eq := types.Equipment{}
	take1 := func(cat types.SlotCategory) *types.Capability {
		occ := a.occupantsLocked(cat)
		if len(occ) == 0 {
			return nil
		}
		cp := *occ[0]
		return &cp
	}
	takeN := func(cat types.SlotCategory) []*types.Capability {
		occ := a.occupantsLocked(cat)
		limit := types.SlotLimit(cat)
		if len(occ) > limit {
			occ = occ[:limit]
		}
		out := make([]*types.Capability, 0, len(occ))
		for _, c := range occ {
			cp := *c
			out = append(out, &cp)
		}
		return out
	}

	eq.Helm = take1(types.SlotHelm)
	eq.Mainhand = take1(types.SlotMainhand)
	eq.Offhand = take1(types.SlotOffhand)
	eq.Hooks = takeN(types.SlotHooks)
	eq.Rings = takeN(types.SlotRings)
	eq.Spellbook = takeN(types.SlotSpellbook)
	eq.Companions = takeN(types.SlotCompanions)
	eq.Trinkets = takeN(types.SlotTrinkets)
	return eq
}

func (a *Allocator) consumedLocked() int {
	total := 0
	for _, c := range a.caps {
		if c.Enabled {
			total += c.Weight
		}
	}
	return total
}

func (a *Allocator) snapshotLocked() types.BudgetSnapshot {
	var weights []int
	for _, c := range a.caps {
		if c.Enabled {
			weights = append(weights, c.Weight)
		}
	}
	return a.model.Snapshot(weights)
}

func (a *Allocator) pendingCopyLocked() *types.PendingAllocation {
	if a.pending == nil {
		return nil
	}
	cp := *a.pending
	return &cp
}
