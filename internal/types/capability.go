// Package types defines the shared domain types for partydeck: capabilities,
// equipment slots, budget snapshots, loadouts, and party sessions.
package types

import "time"

// Kind identifies what sort of installable unit a capability is.
// Each kind maps to exactly one equipment slot category.
type Kind string

const (
	KindMemoryFile      Kind = "memory-file"      // CLAUDE.md memory files
	KindPrimaryPlugin   Kind = "primary-plugin"   // primary framework plugin
	KindSecondaryPlugin Kind = "secondary-plugin" // secondary plugin
	KindHook            Kind = "hook"             // lifecycle hooks
	KindSlashCommand    Kind = "slash-command"    // slash commands
	KindSkill           Kind = "skill"            // skills
	KindSubAgent        Kind = "sub-agent"        // isolated-context sub-agents
	KindProtocolServer  Kind = "protocol-server"  // MCP-style protocol servers
)

// SlotCategory is a bucket capabilities occupy when equipped.
type SlotCategory string

const (
	SlotHelm       SlotCategory = "helm"       // memory file (1)
	SlotMainhand   SlotCategory = "mainhand"   // primary plugin (1)
	SlotOffhand    SlotCategory = "offhand"    // secondary plugin (1)
	SlotHooks      SlotCategory = "hooks"      // hooks (max 6)
	SlotRings      SlotCategory = "rings"      // slash commands (max 2)
	SlotSpellbook  SlotCategory = "spellbook"  // skills (max 6)
	SlotCompanions SlotCategory = "companions" // sub-agents (max 3)
	SlotTrinkets   SlotCategory = "trinkets"   // protocol servers (max 3)
)

// SlotLimit returns the maximum number of capabilities a category may hold.
func SlotLimit(c SlotCategory) int {
	switch c {
	case SlotHelm, SlotMainhand, SlotOffhand:
		return 1
	case SlotHooks, SlotSpellbook:
		return 6
	case SlotRings:
		return 2
	case SlotCompanions, SlotTrinkets:
		return 3
	}
	return 0
}

// SingleSlot reports whether the category holds at most one capability.
func SingleSlot(c SlotCategory) bool {
	return SlotLimit(c) == 1
}

// SlotCategories lists every category in display order.
func SlotCategories() []SlotCategory {
	return []SlotCategory{
		SlotHelm, SlotMainhand, SlotOffhand, SlotHooks,
		SlotRings, SlotSpellbook, SlotCompanions, SlotTrinkets,
	}
}

// SlotFor maps a capability kind to its slot category.
func SlotFor(k Kind) SlotCategory {
	switch k {
	case KindMemoryFile:
		return SlotHelm
	case KindPrimaryPlugin:
		return SlotMainhand
	case KindSecondaryPlugin:
		return SlotOffhand
	case KindHook:
		return SlotHooks
	case KindSlashCommand:
		return SlotRings
	case KindSkill:
		return SlotSpellbook
	case KindSubAgent:
		return SlotCompanions
	case KindProtocolServer:
		return SlotTrinkets
	}
	return ""
}

// SlotRef addresses one slot instance: a category plus an index for
// multi-capacity categories. Index is ignored for single-slot categories.
type SlotRef struct {
	Category SlotCategory `json:"category"`
	Index    int          `json:"index"`
}

// Capability is one installable unit surfaced by a scan. The allocator
// mutates only the Enabled flag; everything else is owned by the scanner.
type Capability struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Kind        Kind   `json:"kind"`
	SourcePath  string `json:"sourcePath,omitempty"`
	Weight      int    `json:"weight"` // estimated cost units (tokens)
	Enabled     bool   `json:"enabled"`
}

// Equipment is the derived per-category view of enabled capabilities.
// It is rebuilt from the enabled set after every committed mutation and
// never hand-patched.
type Equipment struct {
	Helm       *Capability   `json:"helm,omitempty"`
	Mainhand   *Capability   `json:"mainhand,omitempty"`
	Offhand    *Capability   `json:"offhand,omitempty"`
	Hooks      []*Capability `json:"hooks"`
	Rings      []*Capability `json:"rings"`
	Spellbook  []*Capability `json:"spellbook"`
	Companions []*Capability `json:"companions"`
	Trinkets   []*Capability `json:"trinkets"`
}

// ScanResult is what a capability scan returns: the discovered items plus a
// non-fatal warning list for sources that could not be read.
type ScanResult struct {
	Items    []Capability  `json:"items"`
	Errors   []string      `json:"errors"`
	Duration time.Duration `json:"scanDuration"`
}
