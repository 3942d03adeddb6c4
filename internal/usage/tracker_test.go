package usage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	tr, err := NewTracker(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestSessionLifecycle(t *testing.T) {
	tr := newTestTracker(t)

	id := tr.StartSession()
	require.NotEmpty(t, id)

	s := tr.CurrentSession()
	require.NotNil(t, s)
	assert.Equal(t, id, s.SessionID)
	assert.Zero(t, s.Messages)

	tr.RecordMessage(1_200, 3)
	tr.RecordMessage(800, 0)

	s = tr.CurrentSession()
	assert.Equal(t, 2, s.Messages)
	assert.Equal(t, int64(2_000), s.Tokens)
	assert.Equal(t, 3, s.Tools)

	tr.EndSession()
	assert.Nil(t, tr.CurrentSession())
}

func TestStartSessionReplacesStaleSession(t *testing.T) {
	tr := newTestTracker(t)

	first := tr.StartSession()
	second := tr.StartSession()

	assert.NotEqual(t, first, second)
	assert.Equal(t, second, tr.CurrentSession().SessionID)

	today := tr.Daily(1)[0]
	assert.Equal(t, 2, today.Sessions)
}

func TestDailyRollup(t *testing.T) {
	tr := newTestTracker(t)

	tr.StartSession()
	tr.RecordMessage(500, 1)
	tr.RecordActivity(12)

	days := tr.Daily(3)
	require.Len(t, days, 3)

	today := days[0]
	assert.Equal(t, time.Now().Format(dayFormat), today.Date)
	assert.Equal(t, 1, today.Sessions)
	assert.Equal(t, 1, today.Messages)
	assert.Equal(t, int64(500), today.EstimatedTokens)
	assert.Equal(t, 12, today.ActiveMinutes)
	assert.Equal(t, 1, today.ToolsUsed)

	// Untracked days come back zeroed, not missing.
	assert.Zero(t, days[1].Sessions)
	assert.NotEmpty(t, days[1].Date)
}

func TestWeeklySummarySpansMondayToSunday(t *testing.T) {
	tr := newTestTracker(t)
	fixed := time.Date(2026, 8, 26, 15, 0, 0, 0, time.UTC) // a Wednesday
	tr.now = func() time.Time { return fixed }

	tr.RecordMessage(1_000, 2)
	tr.RecordActivity(30)

	w := tr.Weekly()
	assert.Equal(t, "2026-08-24", w.WeekStart)
	assert.Equal(t, "2026-08-30", w.WeekEnd)
	require.Len(t, w.DailyBreakdown, 7)
	assert.Equal(t, 1, w.TotalMessages)
	assert.Equal(t, int64(1_000), w.TotalTokens)
	assert.Equal(t, 30, w.TotalMinutes)
	assert.Equal(t, 2, w.TotalTools)
}

func TestMonthlySummaryIgnoresOtherMonths(t *testing.T) {
	tr := newTestTracker(t)
	fixed := time.Date(2026, 8, 26, 15, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return fixed }

	tr.RecordMessage(700, 0)
	tr.data.DailyUsage = append(tr.data.DailyUsage, DailyUsage{
		Date: "2026-07-31", Messages: 99, EstimatedTokens: 99_999,
	})

	m := tr.Monthly()
	assert.Equal(t, "2026-08", m.Month)
	assert.Equal(t, 1, m.TotalMessages)
	assert.Equal(t, int64(700), m.TotalTokens)
}

func TestFlushPersistsAndReloads(t *testing.T) {
	dir := t.TempDir()

	tr, err := NewTracker(dir)
	require.NoError(t, err)
	tr.StartSession()
	tr.RecordMessage(2_500, 1)
	require.NoError(t, tr.Close())

	reloaded, err := NewTracker(dir)
	require.NoError(t, err)
	defer reloaded.Close()

	today := reloaded.Daily(1)[0]
	assert.Equal(t, 1, today.Sessions)
	assert.Equal(t, int64(2_500), today.EstimatedTokens)

	s := reloaded.CurrentSession()
	require.NotNil(t, s, "open session survives restart until replaced")
	assert.Equal(t, 1, s.Messages)
}

func TestCorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, dataFile), []byte("{broken"), 0o644))

	tr, err := NewTracker(dir)
	require.NoError(t, err)
	defer tr.Close()

	assert.Nil(t, tr.CurrentSession())
	assert.Zero(t, tr.Daily(1)[0].Messages)
}
