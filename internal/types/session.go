package types

import "time"

// SessionStatus is the per-session state machine. Transitions are driven by
// the output classifier and by connection lifecycle events, never by the
// session itself.
type SessionStatus string

const (
	StatusIdle         SessionStatus = "idle"
	StatusWorking      SessionStatus = "working"
	StatusWaiting      SessionStatus = "waiting"
	StatusError        SessionStatus = "error"
	StatusDisconnected SessionStatus = "disconnected"
)

// SessionHealth labels a session's context load, mirroring the budget tiers.
type SessionHealth string

const (
	HealthFull     SessionHealth = "full"     // < 10% used
	HealthHealthy  SessionHealth = "healthy"  // 10% .. healthy boundary
	HealthWeakened SessionHealth = "weakened" // healthy .. overloaded boundary
	HealthCritical SessionHealth = "critical" // >= overloaded boundary
)

// LoadoutRef is the lightweight loadout association shown on a session.
type LoadoutRef struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Weight int    `json:"weight"`
}

// PersonaRef is the lightweight sub-agent persona association on a session.
type PersonaRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// WorkingPath binds a session to a project directory for display purposes.
type WorkingPath struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// Session is one interactive command session ("party member"). ContextUsage
// is a session-scoped resource tracker; it is never summed into the global
// capability budget.
type Session struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Icon         string        `json:"icon"`
	Status       SessionStatus `json:"status"`
	Handle       string        `json:"handle,omitempty"` // opaque host connection handle
	IsConnected  bool          `json:"isConnected"`
	CurrentTask  string        `json:"currentTask"`
	ContextUsage int           `json:"contextUsage"`
	LastActivity time.Time     `json:"lastActivity"`
	Loadout      *LoadoutRef   `json:"attachedLoadout,omitempty"`
	Persona      *PersonaRef   `json:"attachedPersona,omitempty"`
	Workspace    *WorkingPath  `json:"boundWorkingPath,omitempty"`
}
