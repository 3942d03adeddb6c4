// Package budget implements the pure capability-budget model: snapshot
// computation, the three-tier load classification, per-session health
// labeling, and the token weight heuristic.
package budget

import (
	"math"
	"unicode/utf8"

	"partydeck/internal/types"
)

// Default budget constants, calibrated to a 200k context window.
const (
	DefaultTotal         = 200_000
	DefaultSessionBudget = 200_000

	// HealthyThreshold is where the budget tips from healthy to heavy.
	HealthyThreshold = 0.25
	// OverloadedThreshold is where the budget tips into the top severity
	// tier and equip requests start requiring confirmation.
	OverloadedThreshold = 0.50

	// FullThreshold is the per-session boundary below which a session is
	// considered effectively untouched.
	FullThreshold = 0.10
)

// charsPerToken is the estimation ratio (~4 characters per token).
const charsPerToken = 4.0

// Model holds the budget parameters. Thresholds are fractions of Total.
type Model struct {
	Total      int
	Healthy    float64
	Overloaded float64
}

// DefaultModel returns the model with the default constants.
func DefaultModel() Model {
	return Model{
		Total:      DefaultTotal,
		Healthy:    HealthyThreshold,
		Overloaded: OverloadedThreshold,
	}
}

// Snapshot derives a budget snapshot from the weights of the currently
// enabled capabilities. Total must be > 0; that is the caller's
// responsibility.
func (m Model) Snapshot(enabledWeights []int) types.BudgetSnapshot {
	consumed := 0
	for _, w := range enabledWeights {
		consumed += w
	}
	pct := float64(consumed) / float64(m.Total)
	return types.BudgetSnapshot{
		Total:          m.Total,
		Consumed:       consumed,
		Available:      m.Total - consumed,
		LoadPercentage: pct,
		Status:         m.Classify(pct),
	}
}

// Classify maps a load percentage onto the three-tier budget status.
func (m Model) Classify(loadPercentage float64) types.BudgetStatus {
	switch {
	case loadPercentage >= m.Overloaded:
		return types.BudgetOverloaded
	case loadPercentage >= m.Healthy:
		return types.BudgetHeavy
	default:
		return types.BudgetHealthy
	}
}

// ComputeSnapshot derives a snapshot using the default model parameters.
func ComputeSnapshot(total int, enabledWeights []int) types.BudgetSnapshot {
	m := DefaultModel()
	m.Total = total
	return m.Snapshot(enabledWeights)
}

// Classify maps a load percentage onto the default model's tiers.
func Classify(loadPercentage float64) types.BudgetStatus {
	return DefaultModel().Classify(loadPercentage)
}

// SessionHealth labels a session's context load against its own budget.
// The tiers mirror Classify, with an extra "full" band under 10%.
func SessionHealth(used, sessionBudget int) types.SessionHealth {
	if sessionBudget <= 0 {
		return types.HealthFull
	}
	pct := float64(used) / float64(sessionBudget)
	switch {
	case pct >= OverloadedThreshold:
		return types.HealthCritical
	case pct >= HealthyThreshold:
		return types.HealthWeakened
	case pct >= FullThreshold:
		return types.HealthHealthy
	default:
		return types.HealthFull
	}
}

// NeedsRecovery reports whether a session has crossed into the critical band
// and should surface the recover affordance.
func NeedsRecovery(used, sessionBudget int) bool {
	return SessionHealth(used, sessionBudget) == types.HealthCritical
}

// EstimateTokens estimates the token count of a string using the chars/4
// heuristic, which is roughly 90% accurate for English text.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	runes := utf8.RuneCountInString(s)
	return int(math.Ceil(float64(runes) / charsPerToken))
}
