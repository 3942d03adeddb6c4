package types

// BudgetStatus is the three-tier load classification for the capability budget.
type BudgetStatus string

const (
	BudgetHealthy    BudgetStatus = "healthy"
	BudgetHeavy      BudgetStatus = "heavy"
	BudgetOverloaded BudgetStatus = "overloaded"
)

// BudgetSnapshot is the derived view of the capability budget after a
// committed mutation. Consumed always equals the sum of enabled weights.
type BudgetSnapshot struct {
	Total          int          `json:"totalBudget"`
	Consumed       int          `json:"consumed"`
	Available      int          `json:"available"`
	LoadPercentage float64      `json:"loadPercentage"`
	Status         BudgetStatus `json:"status"`
}

// PendingAllocation is a deferred equip request awaiting user confirmation
// because committing it would cross the overloaded threshold. At most one
// exists at a time; a newer request replaces it.
type PendingAllocation struct {
	Capability          Capability `json:"capability"`
	TargetSlot          SlotRef    `json:"targetSlot"`
	CurrentUsage        int        `json:"currentUsage"`
	ProjectedUsage      int        `json:"projectedUsage"`
	ProjectedPercentage float64    `json:"projectedPercentage"`
}
