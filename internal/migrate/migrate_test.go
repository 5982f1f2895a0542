package migrate

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := sql.Open("sqlite", filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrate_CreatesSchema(t *testing.T) {
	db := openTestDB(t)
	if err := Migrate(db, nil); err != nil {
		t.Fatal(err)
	}

	tables := []string{"schema_meta", "ingestion_runs", "raw_artifacts", "threads", "messages", "messages_fts"}
	for _, table := range tables {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
}

func TestMigrate_SetsUserVersion(t *testing.T) {
	db := openTestDB(t)
	if err := Migrate(db, nil); err != nil {
		t.Fatal(err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatal(err)
	}
	if version != 1 {
		t.Errorf("user_version = %d, want 1", version)
	}

	v, err := CurrentVersion(db)
	if err != nil {
		t.Fatal(err)
	}
	if v != 1 {
		t.Errorf("CurrentVersion = %d, want 1", v)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)
	if err := Migrate(db, nil); err != nil {
		t.Fatal(err)
	}

	var before int
	db.QueryRow(`SELECT value FROM schema_meta WHERE key = 'schema_version'`).Scan(&before)

	if err := Migrate(db, nil); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}

	var after int
	db.QueryRow(`SELECT value FROM schema_meta WHERE key = 'schema_version'`).Scan(&after)
	if before != after {
		t.Errorf("schema_version changed across idempotent calls: %d -> %d", before, after)
	}
}

func TestMigrate_UpgradePreservesData(t *testing.T) {
	db := openTestDB(t)
	if err := Migrate(db, &Options{Migrations: defaultMigrations, Target: 1}); err != nil {
		t.Fatal(err)
	}

	_, err := db.Exec(`
		INSERT INTO ingestion_runs (id, provider, status, started_at) VALUES (1, 'chatgpt', 'complete', 0)
	`)
	if err != nil {
		t.Fatal(err)
	}
	_, err = db.Exec(`
		INSERT INTO raw_artifacts (id, sha256, run_id, provider, artifact_type, basename, byte_size, stored_path, imported_at)
		VALUES (1, 'deadbeef', 1, 'chatgpt', 'json', 'x.json', 10, '/tmp/x', 0)
	`)
	if err != nil {
		t.Fatal(err)
	}
	_, err = db.Exec(`
		INSERT INTO threads (id, provider, title, artifact_id, run_id) VALUES (1, 'chatgpt', 'hello', 1, 1)
	`)
	if err != nil {
		t.Fatal(err)
	}

	v2 := Migration{
		Version: 2,
		Name:    "add_pinned_column",
		DDL:     `ALTER TABLE threads ADD COLUMN pinned INTEGER NOT NULL DEFAULT 0;`,
	}
	opts := &Options{Migrations: append(append([]Migration(nil), defaultMigrations...), v2), Target: 2}
	if err := Migrate(db, opts); err != nil {
		t.Fatalf("v2 migration failed: %v", err)
	}

	var count int
	db.QueryRow(`SELECT COUNT(*) FROM threads`).Scan(&count)
	if count != 1 {
		t.Errorf("thread count after migration = %d, want 1 (data should survive)", count)
	}

	var pinned int
	db.QueryRow(`SELECT pinned FROM threads WHERE id = 1`).Scan(&pinned)
	if pinned != 0 {
		t.Errorf("pinned = %d, want default 0", pinned)
	}
}

func TestMigrate_FTSRepairAfterTriggersDropped(t *testing.T) {
	db := openTestDB(t)
	if err := Migrate(db, nil); err != nil {
		t.Fatal(err)
	}

	for _, trig := range []string{"messages_ai", "messages_ad", "messages_au"} {
		if _, err := db.Exec("DROP TRIGGER " + trig); err != nil {
			t.Fatal(err)
		}
	}

	if err := Migrate(db, nil); err != nil {
		t.Fatalf("repair migrate failed: %v", err)
	}

	seedRun(t, db)
	_, err := db.Exec(`
		INSERT INTO messages (thread_id, provider, role, content, content_plain, position, content_hash, artifact_id, run_id)
		VALUES (1, 'chatgpt', 'user', 'hello world', 'hello world', 0, 'h1', 1, 1)
	`)
	if err != nil {
		t.Fatal(err)
	}

	var rowid int64
	err = db.QueryRow(`SELECT rowid FROM messages_fts WHERE messages_fts MATCH 'hello'`).Scan(&rowid)
	if err != nil {
		t.Fatalf("fts lookup after repair failed: %v", err)
	}
}

func seedRun(t *testing.T, db *sql.DB) {
	t.Helper()
	if _, err := db.Exec(`INSERT INTO ingestion_runs (id, provider, status, started_at) VALUES (1, 'chatgpt', 'running', 0)`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`
		INSERT INTO raw_artifacts (id, sha256, run_id, provider, artifact_type, basename, byte_size, stored_path, imported_at)
		VALUES (1, 'abc123', 1, 'chatgpt', 'json', 'x.json', 10, '/tmp/x', 0)
	`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO threads (id, provider, title, artifact_id, run_id) VALUES (1, 'chatgpt', 't', 1, 1)`); err != nil {
		t.Fatal(err)
	}
}
