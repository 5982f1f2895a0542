package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Run mirrors one row of ingestion_runs.
type Run struct {
	ID       int64
	Provider string
	Status   string
}

// ArtifactResult is the return shape of StoreRawArtifact: the artifact's
// id and whether this call found a pre-existing row for the hash.
type ArtifactResult struct {
	ID      int64
	Skipped bool
}

// CreateIngestionRun opens a new run row in status "running". label is
// an optional free-text source label (e.g. the original filename).
func (s *Store) CreateIngestionRun(provider, label string) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sourceLabel sql.NullString
	if label != "" {
		sourceLabel = sql.NullString{String: label, Valid: true}
	}

	res, err := s.db.Exec(`
		INSERT INTO ingestion_runs (provider, status, source_label, started_at)
		VALUES (?, 'running', ?, ?)
	`, provider, sourceLabel, time.Now().UnixMilli())
	if err != nil {
		return Run{}, fmt.Errorf("create ingestion run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Run{}, fmt.Errorf("read run id: %w", err)
	}

	return Run{ID: id, Provider: provider, Status: "running"}, nil
}

// FinalizeIngestionRun transitions a run to "complete" or "failed". A
// run transitions exactly once; callers must not finalize twice.
func (s *Store) FinalizeIngestionRun(run Run, status string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errCol sql.NullString
	if errMsg != "" {
		errCol = sql.NullString{String: errMsg, Valid: true}
	}

	_, err := s.db.Exec(`
		UPDATE ingestion_runs SET status = ?, completed_at = ?, error_message = ?
		WHERE id = ?
	`, status, time.Now().UnixMilli(), errCol, run.ID)
	if err != nil {
		return fmt.Errorf("finalize ingestion run: %w", err)
	}
	return nil
}

// StoreRawArtifact persists bytes content-addressed by their SHA-256.
// A second call with identical bytes returns the existing row untouched
// and never writes to disk again — dedup is by hash, not by filename.
func (s *Store) StoreRawArtifact(run Run, provider, artifactType, filename string, data []byte, parentID *int64, pathInContainer string) (ArtifactResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := sha256.Sum256(data)
	sha := hex.EncodeToString(sum[:])

	var existing int64
	err := s.db.QueryRow(`SELECT id FROM raw_artifacts WHERE sha256 = ?`, sha).Scan(&existing)
	if err == nil {
		return ArtifactResult{ID: existing, Skipped: true}, nil
	}
	if err != sql.ErrNoRows {
		return ArtifactResult{}, fmt.Errorf("lookup sha256: %w", err)
	}

	safeName := filepath.Base(filename)
	storedPath := filepath.Join(s.artifactDir, fmt.Sprintf("%s-%s", sha, safeName))

	if err := writeAtomic(storedPath, data); err != nil {
		return ArtifactResult{}, fmt.Errorf("write artifact: %w", err)
	}

	var parent sql.NullInt64
	if parentID != nil {
		parent = sql.NullInt64{Int64: *parentID, Valid: true}
	}
	var containerPath sql.NullString
	if pathInContainer != "" {
		containerPath = sql.NullString{String: pathInContainer, Valid: true}
	}

	res, err := s.db.Exec(`
		INSERT INTO raw_artifacts
			(sha256, run_id, parent_artifact_id, provider, artifact_type, basename, path_in_container, byte_size, stored_path, imported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sha, run.ID, parent, provider, artifactType, safeName, containerPath, len(data), storedPath, time.Now().UnixMilli())
	if err != nil {
		os.Remove(storedPath)
		return ArtifactResult{}, fmt.Errorf("insert raw_artifact: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return ArtifactResult{}, fmt.Errorf("read artifact id: %w", err)
	}

	return ArtifactResult{ID: id, Skipped: false}, nil
}

// writeAtomic writes to a temp file in the same directory, then renames
// over the final path, so a crash mid-write never leaves a partial file
// at the name other code might already be dedup-checking against.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
