package types

import (
	"strings"
	"time"
)

// PresetPrefix namespaces the built-in loadouts. Presets can be loaded but
// never edited or deleted.
const PresetPrefix = "preset-"

// Loadout is a named snapshot of a full slot assignment. TotalWeight is
// computed once at save time from the referenced capabilities; it is allowed
// to drift from live weights if capabilities change on disk afterwards.
type Loadout struct {
	ID          string                    `json:"id"`
	Name        string                    `json:"name"`
	Icon        string                    `json:"icon"`
	Description string                    `json:"description,omitempty"`
	Assignments map[SlotCategory][]string `json:"slotAssignments"`
	TotalWeight int                       `json:"totalWeight"`
	CreatedAt   time.Time                 `json:"createdAt"`
	LastUsed    *time.Time                `json:"lastUsed,omitempty"`
}

// IsPreset reports whether the loadout id belongs to the preset namespace.
func (l Loadout) IsPreset() bool {
	return strings.HasPrefix(l.ID, PresetPrefix)
}

// LoadoutMetaPatch carries the editable metadata fields of a loadout.
// Assignments are immutable once saved.
type LoadoutMetaPatch struct {
	Name        *string `json:"name,omitempty"`
	Icon        *string `json:"icon,omitempty"`
	Description *string `json:"description,omitempty"`
}
