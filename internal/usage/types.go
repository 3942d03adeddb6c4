package usage

import "time"

// DailyUsage aggregates activity for one calendar day.
type DailyUsage struct {
	Date            string `json:"date"` // YYYY-MM-DD
	Sessions        int    `json:"sessions"`
	Messages        int    `json:"messages"`
	EstimatedTokens int64  `json:"estimated_tokens"`
	ActiveMinutes   int    `json:"active_minutes"`
	ToolsUsed       int    `json:"tools_used"`
}

// WeeklySummary rolls up Monday through Sunday of one week.
type WeeklySummary struct {
	WeekStart      string       `json:"week_start"` // Monday, YYYY-MM-DD
	WeekEnd        string       `json:"week_end"`   // Sunday, YYYY-MM-DD
	TotalSessions  int          `json:"total_sessions"`
	TotalMessages  int          `json:"total_messages"`
	TotalTokens    int64        `json:"total_tokens"`
	TotalMinutes   int          `json:"total_minutes"`
	TotalTools     int          `json:"total_tools"`
	DailyBreakdown []DailyUsage `json:"daily_breakdown"`
}

// MonthlySummary rolls up one calendar month.
type MonthlySummary struct {
	Month         string `json:"month"` // YYYY-MM
	TotalSessions int    `json:"total_sessions"`
	TotalMessages int    `json:"total_messages"`
	TotalTokens   int64  `json:"total_tokens"`
	TotalMinutes  int    `json:"total_minutes"`
	TotalTools    int    `json:"total_tools"`
}

// SessionData tracks the session currently in progress.
type SessionData struct {
	SessionID string    `json:"session_id"`
	StartTime time.Time `json:"start_time"`
	Messages  int       `json:"messages"`
	Tokens    int64     `json:"tokens"`
	Tools     int       `json:"tools"`
}

// trackerData is the persisted root structure.
type trackerData struct {
	Version        string       `json:"version"`
	DailyUsage     []DailyUsage `json:"daily_usage"`
	CurrentSession *SessionData `json:"current_session,omitempty"`
}
