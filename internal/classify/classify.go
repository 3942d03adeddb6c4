// Package classify infers session status and task descriptions from raw
// interactive-session output. The heuristics are best-effort pattern matching
// over terminal text, not a correctness-critical parser.
package classify

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"partydeck/internal/types"
)

// maxTaskLen is the truncation length for extracted task descriptions.
const maxTaskLen = 60

// Result is the classification of one output chunk. Status is only
// meaningful when HasStatus is true; Task is empty when no intent phrase
// matched.
type Result struct {
	Status    types.SessionStatus
	HasStatus bool
	Task      string
}

// Markers of active computation. Matching any of these suggests the
// assistant is mid-task.
var workingMarkers = []string{
	"esc to interrupt",
	"(running)",
	"Thinking",
	"ctrl+c to stop",
}

// Markers of an explicit confirmation prompt awaiting the user.
var waitingMarkers = []string{
	"Do you want to",
	"(y/n)",
	"[Y/n]",
	"1. Yes",
	"Waiting for your input",
}

// Markers of a failure. Checked last so they override Working/Idle, since
// failure text commonly ends with prompt-like trailing characters.
var errorMarkers = []string{
	"Error:",
	"error:",
	"FAILED",
	"panic:",
	"command not found",
	"Traceback (most recent call last)",
	"fatal:",
}

// promptPattern matches a shell-prompt-like trailing line.
var promptPattern = regexp.MustCompile(`[$%>#❯]\s*$`)

// taskPattern matches the first intent phrase in the chunk. The verb list
// covers the phrasing assistants use in their status lines.
var taskPattern = regexp.MustCompile(
	`(?:Creating|Implementing|Fixing|Updating|Refactoring|Writing|Adding|Analyzing|Searching|Reading|Running|Building|Testing|Installing|Generating|Reviewing)\b[^\n.!?]{0,120}`)

// Classify inspects a chunk of session output and returns an inferred status
// transition and/or task description. It is pure: no state is kept between
// chunks.
func Classify(raw string) Result {
	res := Result{}
	if strings.TrimSpace(raw) == "" {
		return res
	}

	if containsAny(raw, workingMarkers) {
		res.Status = types.StatusWorking
		res.HasStatus = true
	} else if promptPattern.MatchString(lastNonEmptyLine(raw)) {
		res.Status = types.StatusIdle
		res.HasStatus = true
	}

	if containsAny(raw, waitingMarkers) {
		res.Status = types.StatusWaiting
		res.HasStatus = true
	}

	// Error wins over everything matched above.
	if containsAny(raw, errorMarkers) {
		res.Status = types.StatusError
		res.HasStatus = true
	}

	res.Task = ExtractTask(raw)
	return res
}

// ExtractTask pulls a short task description out of the chunk, truncated
// with an ellipsis when longer than the display budget.
func ExtractTask(raw string) string {
	match := taskPattern.FindString(raw)
	if match == "" {
		return ""
	}
	task := strings.TrimSpace(match)
	if utf8.RuneCountInString(task) > maxTaskLen {
		runes := []rune(task)
		task = strings.TrimSpace(string(runes[:maxTaskLen])) + "…"
	}
	return task
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func lastNonEmptyLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if trimmed := strings.TrimRight(lines[i], " \t\r"); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
