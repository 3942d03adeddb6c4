package classify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"partydeck/internal/types"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		want      types.SessionStatus
		hasStatus bool
	}{
		{
			name:      "working via interrupt hint",
			raw:       "⏵⏵ bypass permissions on · Implement parser (running) · esc to interrupt",
			want:      types.StatusWorking,
			hasStatus: true,
		},
		{
			name:      "idle via trailing prompt",
			raw:       "done\nuser@host:~/project$ ",
			want:      types.StatusIdle,
			hasStatus: true,
		},
		{
			name:      "idle via chevron prompt",
			raw:       "build complete\n❯ ",
			want:      types.StatusIdle,
			hasStatus: true,
		},
		{
			name:      "waiting on confirmation",
			raw:       "Do you want to make this edit?\n  1. Yes\n  2. No\n❯ ",
			want:      types.StatusWaiting,
			hasStatus: true,
		},
		{
			name:      "error overrides trailing prompt",
			raw:       "Error: failed to compile main.go\n$ ",
			want:      types.StatusError,
			hasStatus: true,
		},
		{
			name:      "error overrides working markers",
			raw:       "panic: runtime error\nesc to interrupt",
			want:      types.StatusError,
			hasStatus: true,
		},
		{
			name:      "plain output carries no signal",
			raw:       "copied 3 files",
			hasStatus: false,
		},
		{
			name:      "blank chunk carries no signal",
			raw:       "   \n\t\n",
			hasStatus: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Classify(tt.raw)
			assert.Equal(t, tt.hasStatus, res.HasStatus)
			if tt.hasStatus {
				assert.Equal(t, tt.want, res.Status)
			}
		})
	}
}

func TestExtractTask(t *testing.T) {
	raw := "✻ Implementing the session registry for the party pool\n"
	assert.Equal(t, "Implementing the session registry for the party pool", ExtractTask(raw))

	assert.Equal(t, "", ExtractTask("nothing interesting here"))
}

func TestExtractTaskTruncates(t *testing.T) {
	raw := "Refactoring " + strings.Repeat("the allocator ", 10)
	task := ExtractTask(raw)
	assert.True(t, strings.HasSuffix(task, "…"), "long tasks end with ellipsis, got %q", task)
	// 60 runes plus the ellipsis marker.
	assert.LessOrEqual(t, len([]rune(task)), maxTaskLen+1)
}

func TestClassifyReturnsTaskAlongsideStatus(t *testing.T) {
	raw := "Creating internal/loadout package · esc to interrupt"
	res := Classify(raw)
	assert.True(t, res.HasStatus)
	assert.Equal(t, types.StatusWorking, res.Status)
	assert.Contains(t, res.Task, "Creating internal/loadout package")
}
