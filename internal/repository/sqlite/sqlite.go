// Package sqlite implements the repository interfaces on top of SQLite.
//
// We use modernc.org/sqlite — a pure Go translation of SQLite — so the binary
// builds without CGo and cross-compiles anywhere Go runs. Pass ":memory:" as
// the path to get a throwaway database for tests.
//
// The vote counters on poll_options are only ever mutated with
// "votes = votes + 1" / "votes = votes - 1" statements inside transactions.
// No code path reads a counter and writes the value back, so concurrent voters
// cannot lose updates.
package sqlite

import (
	"database/sql"
	"fmt"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB owns the sql.DB connection pool and the schema. The per-aggregate
// repositories (UserRepo, PollRepo, VoteRepo) share its pool.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath, configures pragmas, and runs migrations.
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

	// WAL allows concurrent reads while a write is in progress — without it
	// every vote would lock the whole database file.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are off by default in SQLite. We rely on them for the
	// poll → options → votes delete cascade.
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

// Close closes the connection pool. Callers should defer this next to New.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE ... IF NOT EXISTS keeps this idempotent,
// so it is safe to run on every startup.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			username      TEXT NOT NULL,
			password_hash TEXT NOT NULL DEFAULT '',
			github_id     INTEGER,
			avatar_url    TEXT NOT NULL DEFAULT '',
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_github_id
			ON users(github_id) WHERE github_id IS NOT NULL;
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS polls (
			id                   TEXT PRIMARY KEY,
			title                TEXT NOT NULL,
			description          TEXT NOT NULL DEFAULT '',
			creator_id           TEXT NOT NULL REFERENCES users(id),
			is_public            INTEGER NOT NULL DEFAULT 1,
			allow_multiple_votes INTEGER NOT NULL DEFAULT 0,
			allow_add_options    INTEGER NOT NULL DEFAULT 0,
			expires_at           DATETIME,
			created_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_polls_creator_id ON polls(creator_id);
		CREATE INDEX IF NOT EXISTS idx_polls_created_at ON polls(created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating polls table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS poll_options (
			id       TEXT PRIMARY KEY,
			poll_id  TEXT NOT NULL REFERENCES polls(id) ON DELETE CASCADE,
			text     TEXT NOT NULL,
			votes    INTEGER NOT NULL DEFAULT 0,
			position INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_poll_options_poll_id ON poll_options(poll_id);
	`)
	if err != nil {
		return fmt.Errorf("creating poll_options table: %w", err)
	}

	// UNIQUE(user_id, poll_id, option_id) backs the voting policy's
	// idempotency: INSERT OR IGNORE on this key makes a duplicate cast a
	// no-op rather than a double count.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS votes (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES users(id),
			poll_id    TEXT NOT NULL REFERENCES polls(id) ON DELETE CASCADE,
			option_id  TEXT NOT NULL REFERENCES poll_options(id) ON DELETE CASCADE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, poll_id, option_id)
		);
		CREATE INDEX IF NOT EXISTS idx_votes_user_id ON votes(user_id);
		CREATE INDEX IF NOT EXISTS idx_votes_poll_id ON votes(poll_id);
	`)
	if err != nil {
		return fmt.Errorf("creating votes table: %w", err)
	}

	return nil
}
