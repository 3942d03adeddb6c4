package store

import (
	"database/sql"
	"fmt"

	"partydeck/internal/logging"
)

// Migration defines a column addition for databases created by older
// versions of the schema.
type Migration struct {
	Table  string
	Column string
	Def    string
}

// pendingMigrations lists columns added after the initial schema shipped.
var pendingMigrations = []Migration{
	// Loadout descriptions arrived after the first release.
	{"loadouts", "description", "TEXT"},
	// Usage timestamps for the "last used" sort in the picker.
	{"loadouts", "last_used", "DATETIME"},
	// Persona association on persisted sessions.
	{"session_meta", "persona_id", "TEXT"},
}

// runMigrations applies column migrations for existing databases.
func runMigrations(db *sql.DB) error {
	applied := 0
	for _, m := range pendingMigrations {
		if !tableExists(db, m.Table) {
			continue
		}
		if columnExists(db, m.Table, m.Column) {
			continue
		}
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := db.Exec(query); err != nil {
			// Column may already exist in a different form; don't fail startup.
			logging.Get(logging.CategoryStore).Warn("Migration failed: %s.%s: %v", m.Table, m.Column, err)
			continue
		}
		applied++
		logging.Store("Migration applied: added %s.%s", m.Table, m.Column)
	}
	logging.StoreDebug("Schema migrations complete: applied=%d", applied)
	return nil
}

func tableExists(db *sql.DB, table string) bool {
	var name string
	err := db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
	return err == nil
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}
