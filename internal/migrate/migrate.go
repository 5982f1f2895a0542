// Package migrate brings a vault database to the latest declared schema
// version transactionally and idempotently, and re-asserts the full-text
// search objects (virtual table + triggers) on every call regardless of
// migration history. Grounded in the teacher's own
// PRAGMA-user_version-gated createSchema() (internal/store/store.go) and
// generalized to an ordered migration list the way
// untoldecay/BeadsLog's internal/storage/sqlite/migrations.go runs its
// migrationsList in order inside one guarding transaction per step.
package migrate

import (
	"database/sql"
	"fmt"
	"sort"
)

// Migration is one ordered, idempotent schema change. DDL should use
// "IF NOT EXISTS" wherever SQLite supports it; the surrounding
// transaction is what actually guarantees atomicity; idempotent DDL just
// means a migration that's accidentally re-run doesn't fail outright.
type Migration struct {
	Version int
	Name    string
	DDL     string
}

// Options overrides the default migration list and/or target version,
// used by tests that need to inject an extra migration (e.g. S5: apply
// v1, insert data, apply a test-only v2, assert the column exists with
// its default).
type Options struct {
	Migrations []Migration
	Target     int // 0 means "latest in the list"
}

// defaultMigrations is append-only: once shipped, a migration's DDL must
// never change, and version numbers never get reused or skipped.
var defaultMigrations = []Migration{
	{Version: 1, Name: "initial_schema", DDL: schemaV1},
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ingestion_runs (
    id            INTEGER PRIMARY KEY,
    provider      TEXT    NOT NULL,
    status        TEXT    NOT NULL DEFAULT 'running',
    source_label  TEXT,
    started_at    INTEGER NOT NULL,
    completed_at  INTEGER,
    error_message TEXT
);

CREATE TABLE IF NOT EXISTS raw_artifacts (
    id                 INTEGER PRIMARY KEY,
    sha256             TEXT    UNIQUE NOT NULL,
    run_id             INTEGER NOT NULL REFERENCES ingestion_runs(id),
    parent_artifact_id INTEGER REFERENCES raw_artifacts(id),
    provider           TEXT    NOT NULL,
    artifact_type      TEXT    NOT NULL,
    basename           TEXT    NOT NULL,
    path_in_container  TEXT,
    byte_size          INTEGER NOT NULL,
    stored_path        TEXT    NOT NULL,
    imported_at        INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_raw_artifacts_run ON raw_artifacts(run_id);

CREATE TABLE IF NOT EXISTS threads (
    id                 INTEGER PRIMARY KEY,
    provider           TEXT    NOT NULL,
    provider_thread_id TEXT,
    title              TEXT    NOT NULL DEFAULT '',
    created_at         INTEGER,
    artifact_id        INTEGER NOT NULL REFERENCES raw_artifacts(id),
    run_id             INTEGER NOT NULL REFERENCES ingestion_runs(id)
);

CREATE INDEX IF NOT EXISTS idx_threads_run ON threads(run_id);
CREATE INDEX IF NOT EXISTS idx_threads_provider ON threads(provider);

CREATE TABLE IF NOT EXISTS messages (
    id                         INTEGER PRIMARY KEY,
    thread_id                  INTEGER NOT NULL REFERENCES threads(id) ON DELETE CASCADE,
    provider                   TEXT    NOT NULL,
    provider_message_id        TEXT,
    role                       TEXT    NOT NULL,
    content                    TEXT    NOT NULL DEFAULT '',
    content_plain              TEXT    NOT NULL DEFAULT '',
    timestamp                  INTEGER,
    position                   INTEGER NOT NULL,
    parent_provider_message_id TEXT,
    content_hash               TEXT    NOT NULL,
    artifact_id                INTEGER NOT NULL REFERENCES raw_artifacts(id),
    run_id                     INTEGER NOT NULL REFERENCES ingestion_runs(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id);
CREATE INDEX IF NOT EXISTS idx_messages_run ON messages(run_id);
`

// ftsDDL is (re-)applied on every Migrate call, independent of version —
// the deterministic "FTS repair" pass described in the spec. It recovers
// a database whose triggers were dropped externally, or one produced by
// an older build that never had them.
const ftsDDL = `
CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
    content_plain,
    content=messages, content_rowid=id,
    tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
    INSERT INTO messages_fts(rowid, content_plain) VALUES (new.id, new.content_plain);
END;

CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, content_plain) VALUES ('delete', old.id, old.content_plain);
END;

CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, content_plain) VALUES ('delete', old.id, old.content_plain);
    INSERT INTO messages_fts(rowid, content_plain) VALUES (new.id, new.content_plain);
END;
`

// Migrate brings db to the latest (or opts.Target) schema version.
func Migrate(db *sql.DB, opts *Options) error {
	migrations := defaultMigrations
	target := 0
	if opts != nil {
		if opts.Migrations != nil {
			migrations = opts.Migrations
		}
		if opts.Target != 0 {
			target = opts.Target
		}
	}
	if target == 0 {
		for _, m := range migrations {
			if m.Version > target {
				target = m.Version
			}
		}
	}

	sorted := append([]Migration(nil), migrations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	current, err := currentVersion(db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	applied := current
	for _, m := range sorted {
		if m.Version <= current || m.Version > target {
			continue
		}

		if err := applyMigration(db, m); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
		}
		applied = m.Version
	}

	if _, err := db.Exec(ftsDDL); err != nil {
		return fmt.Errorf("fts repair: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", applied)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

func applyMigration(db *sql.DB, m Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.DDL); err != nil {
		return fmt.Errorf("apply ddl: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO schema_meta (key, value) VALUES ('schema_version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, fmt.Sprintf("%d", m.Version)); err != nil {
		return fmt.Errorf("record schema_version: %w", err)
	}

	return tx.Commit()
}

func currentVersion(db *sql.DB) (int, error) {
	var name string
	err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='schema_meta'`).Scan(&name)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var value string
	err = db.QueryRow(`SELECT value FROM schema_meta WHERE key = 'schema_version'`).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var version int
	if _, err := fmt.Sscanf(value, "%d", &version); err != nil {
		return 0, fmt.Errorf("parse schema_version %q: %w", value, err)
	}
	return version, nil
}

// CurrentVersion exposes currentVersion for diagnostics.
func CurrentVersion(db *sql.DB) (int, error) {
	return currentVersion(db)
}
