// Package store persists loadouts and session metadata to SQLite.
//
// Storage location: .partydeck/partydeck.db
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"partydeck/internal/logging"
	"partydeck/internal/types"
)

// ErrNotFound means the requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps the sqlite database. Safe for concurrent use.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// SessionMeta is the persisted slice of a session: the fields worth
// restoring across restarts. Live status and context usage are not
// persisted; sessions always come back disconnected.
type SessionMeta struct {
	ID          string
	Name        string
	WorkingPath string
	PersonaID   string
	LoadoutID   string
	UpdatedAt   time.Time
}

// Open opens (or creates) the store at the given path. ":memory:" is
// supported for tests.
func Open(dbPath string) (*Store, error) {
	logging.StoreDebug("Opening store at %s", dbPath)

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, dbPath: dbPath}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("Store initialized at %s", dbPath)
	return s, nil
}

// initialize creates the database schema.
func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS loadouts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		icon TEXT,
		description TEXT,
		assignments TEXT NOT NULL,
		total_weight INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		last_used DATETIME
	);

	CREATE TABLE IF NOT EXISTS session_meta (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		working_path TEXT,
		persona_id TEXT,
		loadout_id TEXT,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS app_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_loadouts_created ON loadouts(created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveLoadout inserts or replaces a loadout row.
func (s *Store) SaveLoadout(l types.Loadout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	assignments, err := json.Marshal(l.Assignments)
	if err != nil {
		return fmt.Errorf("failed to encode assignments: %w", err)
	}

	var lastUsed interface{}
	if l.LastUsed != nil {
		lastUsed = *l.LastUsed
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO loadouts
			(id, name, icon, description, assignments, total_weight, created_at, last_used)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Name, l.Icon, l.Description, string(assignments), l.TotalWeight, l.CreatedAt, lastUsed)
	if err != nil {
		return fmt.Errorf("failed to save loadout %s: %w", l.ID, err)
	}

	logging.StoreDebug("Saved loadout %s (%s)", l.ID, l.Name)
	return nil
}

// GetLoadout fetches one loadout by id.
func (s *Store) GetLoadout(id string) (types.Loadout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, name, icon, description, assignments, total_weight, created_at, last_used
		FROM loadouts WHERE id = ?`, id)
	return scanLoadout(row)
}

// ListLoadouts returns all stored loadouts, newest first.
func (s *Store) ListLoadouts() ([]types.Loadout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, name, icon, description, assignments, total_weight, created_at, last_used
		FROM loadouts ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list loadouts: %w", err)
	}
	defer rows.Close()

	var out []types.Loadout
	for rows.Next() {
		l, err := scanLoadout(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// DeleteLoadout removes a loadout row. Deleting a missing row returns
// ErrNotFound.
func (s *Store) DeleteLoadout(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM loadouts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete loadout %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: loadout %s", ErrNotFound, id)
	}
	return nil
}

// TouchLoadout records when a loadout was last applied.
func (s *Store) TouchLoadout(id string, when time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE loadouts SET last_used = ? WHERE id = ?`, when, id)
	if err != nil {
		return fmt.Errorf("failed to touch loadout %s: %w", id, err)
	}
	return nil
}

// SaveSessionMeta inserts or replaces a session metadata row.
func (s *Store) SaveSessionMeta(m SessionMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO session_meta
			(id, name, working_path, persona_id, loadout_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.WorkingPath, m.PersonaID, m.LoadoutID, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save session meta %s: %w", m.ID, err)
	}
	return nil
}

// ListSessionMeta returns all persisted session metadata.
func (s *Store) ListSessionMeta() ([]SessionMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, name, working_path, persona_id, loadout_id, updated_at
		FROM session_meta ORDER BY updated_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list session meta: %w", err)
	}
	defer rows.Close()

	var out []SessionMeta
	for rows.Next() {
		var m SessionMeta
		var wp, persona, loadout sql.NullString
		if err := rows.Scan(&m.ID, &m.Name, &wp, &persona, &loadout, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session meta: %w", err)
		}
		m.WorkingPath = wp.String
		m.PersonaID = persona.String
		m.LoadoutID = loadout.String
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteSessionMeta removes a session metadata row. Missing rows are not an
// error; a closed session may never have been persisted.
func (s *Store) DeleteSessionMeta(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM session_meta WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session meta %s: %w", id, err)
	}
	return nil
}

// SetState stores a small application state value under a key.
func (s *Store) SetState(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT OR REPLACE INTO app_state (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set state %s: %w", key, err)
	}
	return nil
}

// GetState fetches a state value. Missing keys return ErrNotFound.
func (s *Store) GetState(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRow(`SELECT value FROM app_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: state %s", ErrNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get state %s: %w", key, err)
	}
	return value, nil
}

// DeleteState removes a state value. Missing keys are not an error.
func (s *Store) DeleteState(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM app_state WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete state %s: %w", key, err)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLoadout(row rowScanner) (types.Loadout, error) {
	var l types.Loadout
	var icon, desc sql.NullString
	var assignments string
	var lastUsed sql.NullTime

	err := row.Scan(&l.ID, &l.Name, &icon, &desc, &assignments, &l.TotalWeight, &l.CreatedAt, &lastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Loadout{}, fmt.Errorf("%w: loadout", ErrNotFound)
	}
	if err != nil {
		return types.Loadout{}, fmt.Errorf("failed to scan loadout: %w", err)
	}

	l.Icon = icon.String
	l.Description = desc.String
	if lastUsed.Valid {
		t := lastUsed.Time
		l.LastUsed = &t
	}
	if err := json.Unmarshal([]byte(assignments), &l.Assignments); err != nil {
		return types.Loadout{}, fmt.Errorf("failed to decode assignments for %s: %w", l.ID, err)
	}
	return l, nil
}
