// Package usage records session activity and answers daily, weekly, and
// monthly rollup queries. Data lives in a single JSON file; writes are
// debounced so bursts of recording do not hammer the disk.
package usage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"partydeck/internal/logging"
)

const (
	dataFile      = "usage.json"
	dayFormat     = "2006-01-02"
	monthFormat   = "2006-01"
	autoSaveDelay = 2 * time.Second
)

// Tracker records activity and persists it to <dir>/usage.json.
type Tracker struct {
	mu       sync.Mutex
	data     trackerData
	filePath string
	dirty    bool
	saveT    *time.Timer

	now func() time.Time // test seam
}

// NewTracker opens or creates the tracker file under dir. A corrupt or
// missing file starts the tracker empty rather than failing.
func NewTracker(dir string) (*Tracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create usage dir: %w", err)
	}

	t := &Tracker{
		filePath: filepath.Join(dir, dataFile),
		data:     trackerData{Version: "1.0"},
		now:      time.Now,
	}
	if err := t.load(); err != nil {
		logging.Get(logging.CategoryUsage).Warn("Starting with empty usage data: %v", err)
		t.data = trackerData{Version: "1.0"}
	}
	return t, nil
}

func (t *Tracker) load() error {
	raw, err := os.ReadFile(t.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, &t.data)
}

// StartSession opens a new tracked session, replacing any session left
// open by a crash, and bumps today's session count.
func (t *Tracker) StartSession() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := uuid.NewString()
	t.data.CurrentSession = &SessionData{
		SessionID: id,
		StartTime: t.now(),
	}
	t.todayLocked().Sessions++
	t.scheduleSaveLocked()

	logging.Usage("Started session %s", id)
	return id
}

// EndSession closes the current session.
func (t *Tracker) EndSession() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.CurrentSession = nil
	t.scheduleSaveLocked()
}

// RecordMessage counts one message plus its token and tool-call load
// against both the current session and today's rollup.
func (t *Tracker) RecordMessage(estimatedTokens int64, toolCalls int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s := t.data.CurrentSession; s != nil {
		s.Messages++
		s.Tokens += estimatedTokens
		s.Tools += toolCalls
	}

	day := t.todayLocked()
	day.Messages++
	day.EstimatedTokens += estimatedTokens
	day.ToolsUsed += toolCalls
	t.scheduleSaveLocked()
}

// RecordActivity adds active minutes to today's rollup.
func (t *Tracker) RecordActivity(minutes int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.todayLocked().ActiveMinutes += minutes
	t.scheduleSaveLocked()
}

// CurrentSession returns a copy of the in-progress session, or nil.
func (t *Tracker) CurrentSession() *SessionData {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.data.CurrentSession == nil {
		return nil
	}
	cp := *t.data.CurrentSession
	return &cp
}

// Daily returns usage for the past n days, today first. Days with no
// recorded activity appear as zero entries.
func (t *Tracker) Daily(n int) []DailyUsage {
	t.mu.Lock()
	defer t.mu.Unlock()

	today := t.now()
	out := make([]DailyUsage, 0, n)
	for i := 0; i < n; i++ {
		date := today.AddDate(0, 0, -i).Format(dayFormat)
		out = append(out, t.dayLocked(date))
	}
	return out
}

// Weekly summarizes the current Monday-to-Sunday week.
func (t *Tracker) Weekly() WeeklySummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	monday := now.AddDate(0, 0, -((int(now.Weekday()) + 6) % 7))

	s := WeeklySummary{
		WeekStart: monday.Format(dayFormat),
		WeekEnd:   monday.AddDate(0, 0, 6).Format(dayFormat),
	}
	for i := 0; i < 7; i++ {
		day := t.dayLocked(monday.AddDate(0, 0, i).Format(dayFormat))
		s.TotalSessions += day.Sessions
		s.TotalMessages += day.Messages
		s.TotalTokens += day.EstimatedTokens
		s.TotalMinutes += day.ActiveMinutes
		s.TotalTools += day.ToolsUsed
		s.DailyBreakdown = append(s.DailyBreakdown, day)
	}
	return s
}

// Monthly summarizes the current calendar month.
func (t *Tracker) Monthly() MonthlySummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	prefix := now.Format(monthFormat)

	s := MonthlySummary{Month: prefix}
	for _, day := range t.data.DailyUsage {
		if len(day.Date) < len(prefix) || day.Date[:len(prefix)] != prefix {
			continue
		}
		s.TotalSessions += day.Sessions
		s.TotalMessages += day.Messages
		s.TotalTokens += day.EstimatedTokens
		s.TotalMinutes += day.ActiveMinutes
		s.TotalTools += day.ToolsUsed
	}
	return s
}

// Flush writes pending changes to disk immediately.
func (t *Tracker) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saveLocked()
}

// Close flushes and stops the autosave timer.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.saveT != nil {
		t.saveT.Stop()
		t.saveT = nil
	}
	return t.saveLocked()
}

// todayLocked finds or creates today's entry.
func (t *Tracker) todayLocked() *DailyUsage {
	date := t.now().Format(dayFormat)
	for i := range t.data.DailyUsage {
		if t.data.DailyUsage[i].Date == date {
			return &t.data.DailyUsage[i]
		}
	}
	t.data.DailyUsage = append(t.data.DailyUsage, DailyUsage{Date: date})
	return &t.data.DailyUsage[len(t.data.DailyUsage)-1]
}

// dayLocked returns the entry for a date, or a zero entry if none exists.
func (t *Tracker) dayLocked(date string) DailyUsage {
	for _, d := range t.data.DailyUsage {
		if d.Date == date {
			return d
		}
	}
	return DailyUsage{Date: date}
}

func (t *Tracker) scheduleSaveLocked() {
	if t.dirty {
		return
	}
	t.dirty = true
	t.saveT = time.AfterFunc(autoSaveDelay, func() {
		if err := t.Flush(); err != nil {
			logging.Get(logging.CategoryUsage).Error("Autosave failed: %v", err)
		}
	})
}

func (t *Tracker) saveLocked() error {
	t.dirty = false
	raw, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(t.filePath, raw, 0o644)
}
