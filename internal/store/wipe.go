package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// Wipe removes every artifact file, then — only if every file removal
// succeeded — truncates all relational rows in one transaction. The two
// phases are never merged: a filesystem error must surface before any
// row is touched, so the vault never ends up with deleted rows pointing
// at files that still exist on disk. The reverse state (files gone, rows
// present) is tolerated — a later wipe or a re-import resolves it, since
// SHA dedup finds the stale row and rewrites the file.
func (s *Store) Wipe() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.artifactDir)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("list artifacts dir: %w", err)
	}

	var fileErrs []error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.artifactDir, e.Name())); err != nil {
			fileErrs = append(fileErrs, err)
		}
	}
	if len(fileErrs) > 0 {
		return fmt.Errorf("wipe: %d artifact file(s) failed to delete, first: %w", len(fileErrs), fileErrs[0])
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin wipe transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"messages", "threads", "raw_artifacts", "ingestion_runs"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}

	return tx.Commit()
}
