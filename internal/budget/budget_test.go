package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"partydeck/internal/types"
)

func TestComputeSnapshot(t *testing.T) {
	tests := []struct {
		name       string
		total      int
		weights    []int
		consumed   int
		available  int
		status     types.BudgetStatus
		percentage float64
	}{
		{"empty", 200_000, nil, 0, 200_000, types.BudgetHealthy, 0.0},
		{"under healthy boundary", 200_000, []int{40_000}, 40_000, 160_000, types.BudgetHealthy, 0.20},
		{"at healthy boundary", 200_000, []int{50_000}, 50_000, 150_000, types.BudgetHeavy, 0.25},
		{"between boundaries", 200_000, []int{30_000, 40_000}, 70_000, 130_000, types.BudgetHeavy, 0.35},
		{"at overloaded boundary", 200_000, []int{100_000}, 100_000, 100_000, types.BudgetOverloaded, 0.50},
		{"over budget", 200_000, []int{150_000, 60_000}, 210_000, -10_000, types.BudgetOverloaded, 1.05},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := ComputeSnapshot(tt.total, tt.weights)
			assert.Equal(t, tt.total, snap.Total)
			assert.Equal(t, tt.consumed, snap.Consumed)
			assert.Equal(t, tt.available, snap.Available)
			assert.Equal(t, tt.status, snap.Status)
			assert.InDelta(t, tt.percentage, snap.LoadPercentage, 1e-9)
		})
	}
}

func TestSessionHealth(t *testing.T) {
	budget := 200_000

	tests := []struct {
		used int
		want types.SessionHealth
	}{
		{0, types.HealthFull},
		{19_999, types.HealthFull},
		{20_000, types.HealthHealthy},
		{49_999, types.HealthHealthy},
		{50_000, types.HealthWeakened},
		{99_999, types.HealthWeakened},
		{100_000, types.HealthCritical},
		{300_000, types.HealthCritical},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SessionHealth(tt.used, budget), "used=%d", tt.used)
	}
}

func TestNeedsRecovery(t *testing.T) {
	assert.False(t, NeedsRecovery(99_999, 200_000))
	assert.True(t, NeedsRecovery(100_000, 200_000))
}

func TestEstimateTokens(t *testing.T) {
	// 13 chars = ceil(13/4) = 4 tokens
	assert.Equal(t, 4, EstimateTokens("Hello, world!"))
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("a"))
	// Rune counting, not byte counting.
	assert.Equal(t, 1, EstimateTokens("日本語"))
}
