// Package sqlite implements the repository interfaces on SQLite.
//
// SQLite is embedded — no separate database server, a single file on disk,
// ":memory:" for tests. We use modernc.org/sqlite rather than mattn's CGo
// driver so the binary cross-compiles without a C toolchain.
//
// All multi-row mutations here go through sql.Tx: a library mutation and its
// stats recompute commit or roll back together, which is the consistency
// boundary the service layer relies on.
package sqlite

import (
	"database/sql"
	"fmt"

	// Registers the "sqlite" driver with database/sql at init time.
	_ "modernc.org/sqlite"
)

// DB wraps the sql.DB pool and carries the repository methods.
type DB struct {
	conn *sql.DB
}

// New opens the database, applies pragmas, and runs migrations.
//
// dbPath is either a file path ("data/anitrack.db") or ":memory:".
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Force an immediate connection so a bad path fails here, not on the
	// first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL allows concurrent reads while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are off by default in SQLite.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool. Callers should defer this right after New.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE TABLE IF NOT EXISTS keeps this safe to
// run on every start; a real migration tool can replace it once the schema
// starts evolving.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			avatar_path   TEXT NOT NULL DEFAULT '',
			bio           TEXT NOT NULL DEFAULT '',
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// One stats row per user, created zeroed at registration. The row is
	// always rewritten from the full entry set, never patched in place.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS stats (
			user_id        TEXT PRIMARY KEY REFERENCES users(id),
			total_anime    INTEGER NOT NULL DEFAULT 0,
			watching       INTEGER NOT NULL DEFAULT 0,
			completed      INTEGER NOT NULL DEFAULT 0,
			plan_to_watch  INTEGER NOT NULL DEFAULT 0,
			on_hold        INTEGER NOT NULL DEFAULT 0,
			dropped        INTEGER NOT NULL DEFAULT 0,
			total_episodes INTEGER NOT NULL DEFAULT 0,
			days_watched   REAL NOT NULL DEFAULT 0
		);
	`)
	if err != nil {
		return fmt.Errorf("creating stats table: %w", err)
	}

	// UNIQUE(user_id, anime_id) backs the one-entry-per-anime rule; the
	// repository also checks explicitly so the caller gets a clean conflict
	// error instead of a driver string.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS library_entries (
			id              TEXT PRIMARY KEY,
			user_id         TEXT NOT NULL REFERENCES users(id),
			anime_id        INTEGER NOT NULL,
			title           TEXT NOT NULL,
			image_url       TEXT NOT NULL DEFAULT '',
			status          TEXT NOT NULL,
			current_episode INTEGER NOT NULL DEFAULT 0,
			total_episodes  INTEGER,
			score           INTEGER,
			notes           TEXT NOT NULL DEFAULT '',
			added_at        DATETIME NOT NULL,
			completed_at    DATETIME,
			updated_at      DATETIME NOT NULL,
			UNIQUE(user_id, anime_id)
		);
		CREATE INDEX IF NOT EXISTS idx_library_entries_user_updated
			ON library_entries(user_id, updated_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("creating library_entries table: %w", err)
	}

	return nil
}
