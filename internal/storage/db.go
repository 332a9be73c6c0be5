// Package storage persists simulation state in SQLite and keeps the
// append-only event log in a WAL. Money and cost columns are TEXT holding
// exact decimal strings; they are never stored as floats.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const dbFileName = "corpsim.db"

// Open creates the data directory if needed and opens the SQLite database
// with foreign keys on, applying pending migrations.
func Open(dataDir string) (*sql.DB, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create data dir")
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)", filepath.Join(dataDir, dbFileName))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// modernc sqlite serializes writes; a single writer connection avoids
	// SQLITE_BUSY under concurrent phase commits.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

type migration struct {
	version int
	name    string
	upSQL   string
}

var migrations = []migration{
	{1, "init", `
CREATE TABLE companies (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    topology   TEXT NOT NULL,
    funds      TEXT NOT NULL,
    size       INTEGER NOT NULL,
    is_active  INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    deleted_at TIMESTAMP
);

CREATE TABLE employees (
    id                 TEXT PRIMARY KEY,
    company_id         TEXT NOT NULL REFERENCES companies(id),
    name               TEXT NOT NULL,
    role               TEXT NOT NULL,
    status             TEXT NOT NULL,
    personality        TEXT NOT NULL DEFAULT '',
    decision_style     TEXT NOT NULL DEFAULT '',
    level              INTEGER NOT NULL DEFAULT 1,
    experience         INTEGER NOT NULL DEFAULT 0,
    decisions_made     INTEGER NOT NULL DEFAULT 0,
    decisions_approved INTEGER NOT NULL DEFAULT 0,
    is_active          INTEGER NOT NULL DEFAULT 1,
    created_at         TIMESTAMP NOT NULL,
    updated_at         TIMESTAMP NOT NULL
);
CREATE INDEX idx_employees_company ON employees(company_id);

CREATE TABLE decisions (
    id                  TEXT PRIMARY KEY,
    company_id          TEXT NOT NULL REFERENCES companies(id),
    employee_id         TEXT NOT NULL REFERENCES employees(id),
    decision_type       TEXT NOT NULL,
    content             TEXT NOT NULL,
    reasoning           TEXT NOT NULL DEFAULT '',
    importance          INTEGER NOT NULL,
    urgency             INTEGER NOT NULL,
    status              TEXT NOT NULL,
    round               INTEGER NOT NULL,
    ai_provider         TEXT NOT NULL DEFAULT '',
    ai_model            TEXT NOT NULL DEFAULT '',
    prompt_tokens       INTEGER NOT NULL DEFAULT 0,
    completion_tokens   INTEGER NOT NULL DEFAULT 0,
    ai_cost             TEXT NOT NULL DEFAULT '0',
    votes_for           INTEGER NOT NULL DEFAULT 0,
    votes_against       INTEGER NOT NULL DEFAULT 0,
    abstentions         INTEGER NOT NULL DEFAULT 0,
    eligible_voters     INTEGER NOT NULL DEFAULT 0,
    eligible            TEXT NOT NULL DEFAULT '[]',
    ballots             TEXT NOT NULL DEFAULT '{}',
    vote_deadline_round INTEGER NOT NULL DEFAULT 0,
    created_at          TIMESTAMP NOT NULL,
    resolved_at         TIMESTAMP
);
CREATE INDEX idx_decisions_company ON decisions(company_id, created_at);
CREATE INDEX idx_decisions_status ON decisions(status);

CREATE TABLE sim_state (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    state      TEXT NOT NULL,
    mode       TEXT NOT NULL,
    round      INTEGER NOT NULL,
    seed       INTEGER NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`},
}

func migrate(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin migration")
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_version(version INTEGER NOT NULL)`); err != nil {
		return errors.Wrap(err, "create schema_version")
	}

	var current int
	err = tx.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&current)
	if err == sql.ErrNoRows {
		if _, err := tx.Exec(`INSERT INTO schema_version(version) VALUES (0)`); err != nil {
			return errors.Wrap(err, "init schema_version")
		}
	} else if err != nil {
		return errors.Wrap(err, "read schema_version")
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := tx.Exec(m.upSQL); err != nil {
			return errors.Wrapf(err, "apply migration %d_%s", m.version, m.name)
		}
		if _, err := tx.Exec(`UPDATE schema_version SET version=?`, m.version); err != nil {
			return errors.Wrapf(err, "bump schema_version to %d", m.version)
		}
	}
	return tx.Commit()
}
