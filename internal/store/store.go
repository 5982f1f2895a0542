// Package store owns the vault database connection and the
// content-addressed artifact directory. It wraps the embedded SQLite
// connection the way the teacher's internal/store/store.go does
// (WAL, foreign keys on, a guarding sync.RWMutex so a search never
// observes a half-finished import), but against the run/artifact/
// thread/message schema instead of the teacher's files/sessions shape.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/localarchive/convovault/internal/migrate"
	"github.com/localarchive/convovault/internal/pathroot"
)

// Store is the single connection to the vault database plus the
// artifacts directory it owns. mu serializes writers against readers
// the same way the teacher's RWMutex does: a search (RLock) never sees
// a partially committed import, and imports (Lock) run one at a time,
// matching the single-threaded cooperative model.
type Store struct {
	db          *sql.DB
	mu          sync.RWMutex
	artifactDir string
}

// Open resolves paths from pathroot, creates the vault and artifacts
// directories, opens the database, and brings it to the latest schema.
func Open() (*Store, error) {
	paths := pathroot.Get()

	if err := os.MkdirAll(paths.Vault, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	if err := os.MkdirAll(paths.Artifacts, 0o755); err != nil {
		return nil, fmt.Errorf("create artifacts dir: %w", err)
	}

	db, err := sql.Open("sqlite", paths.DB)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable FK: %w", err)
	}

	if err := migrate.Migrate(db, nil); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	if err := stampVaultCreatedAt(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("stamp vault_created_at: %w", err)
	}

	return &Store{db: db, artifactDir: paths.Artifacts}, nil
}

// OpenAt is Open with an explicit database path and artifacts
// directory, bypassing pathroot. Tests use this to get an isolated
// store per t.TempDir() without racing pathroot's one-shot Init.
func OpenAt(dbPath, artifactsDir string) (*Store, error) {
	if err := os.MkdirAll(artifactsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifacts dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable FK: %w", err)
	}

	if err := migrate.Migrate(db, nil); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	if err := stampVaultCreatedAt(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("stamp vault_created_at: %w", err)
	}

	return &Store{db: db, artifactDir: artifactsDir}, nil
}

func stampVaultCreatedAt(db *sql.DB) error {
	_, err := db.Exec(`
		INSERT INTO schema_meta (key, value) VALUES ('vault_created_at', ?)
		ON CONFLICT(key) DO NOTHING
	`, fmt.Sprintf("%d", time.Now().UnixMilli()))
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for packages that need direct
// access inside a caller-owned transaction (parsers write inside the
// transaction opened around one parser invocation; diagnostics runs
// its own allowlisted queries).
func (s *Store) DB() *sql.DB {
	return s.db
}

// Lock and Unlock expose the writer lock to callers (the ingest
// controller) that need to hold it across an entire parser invocation,
// not just a single statement.
func (s *Store) Lock()    { s.mu.Lock() }
func (s *Store) Unlock()  { s.mu.Unlock() }
func (s *Store) RLock()   { s.mu.RLock() }
func (s *Store) RUnlock() { s.mu.RUnlock() }
