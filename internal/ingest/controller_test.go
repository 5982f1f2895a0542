package ingest

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/localarchive/convovault/internal/provider"
	"github.com/localarchive/convovault/internal/store"
	"github.com/localarchive/convovault/internal/vaulterr"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.OpenAt(filepath.Join(dir, "vault.db"), filepath.Join(dir, "artifacts"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func writeFixture(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestImportHeadless_FlatJSON_SentinelRoundTrip(t *testing.T) {
	s := openTestStore(t)
	dir := t.TempDir()

	fixture := []byte(`[
		{
			"id": "conv-1",
			"title": "t",
			"create_time": 0,
			"mapping": {
				"n1": {
					"message": {"author": {"role": "user"}, "content": {"content_type": "text", "parts": ["SENTINEL_CHATGPT_001"]}, "create_time": 0},
					"parent": null
				}
			}
		}
	]`)
	path := writeFixture(t, dir, "conversations.json", fixture)

	result, err := ImportHeadless(s, provider.ChatGPT, path)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if result.RunID == 0 || result.ArtifactID == 0 {
		t.Fatalf("result = %+v, expected nonzero ids", result)
	}

	hits, err := s.Search("SENTINEL_CHATGPT_001")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %d, want 1", len(hits))
	}
	if hits[0].Provider != "chatgpt" {
		t.Errorf("provider = %q, want chatgpt", hits[0].Provider)
	}

	var status string
	s.DB().QueryRow(`SELECT status FROM ingestion_runs WHERE id = ?`, result.RunID).Scan(&status)
	if status != "complete" {
		t.Errorf("status = %q, want complete", status)
	}
}

func buildZipFile(t *testing.T, dir, name string, entries map[string][]byte) string {
	t.Helper()
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for entryName, data := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: entryName, Method: zip.Deflate})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return writeFixture(t, dir, name, buf.Bytes())
}

func TestImportHeadless_Zip_ExtractsAndParsesConversationsJSON(t *testing.T) {
	s := openTestStore(t)
	dir := t.TempDir()

	archivePath := buildZipFile(t, dir, "export.zip", map[string][]byte{
		"conversations.json": []byte(`[
			{
				"id": "conv-1",
				"title": "t",
				"create_time": 0,
				"mapping": {
					"n1": {"message": {"author": {"role": "user"}, "content": {"content_type": "text", "parts": ["hello from zip"]}, "create_time": 0}, "parent": null}
				}
			}
		]`),
		"user.json": []byte(`{"ignored": true}`),
	})

	result, err := ImportHeadless(s, provider.ChatGPT, archivePath)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}

	hits, err := s.Search("hello")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %d, want 1", len(hits))
	}

	var artifactCount int
	s.DB().QueryRow(`SELECT COUNT(*) FROM raw_artifacts WHERE run_id = ?`, result.RunID).Scan(&artifactCount)
	if artifactCount != 3 {
		t.Errorf("artifact count = %d, want 3 (zip + 2 entries)", artifactCount)
	}
}

func TestImportHeadless_Zip_PathTraversalFailsRun(t *testing.T) {
	s := openTestStore(t)
	dir := t.TempDir()

	archivePath := buildZipFile(t, dir, "evil.zip", map[string][]byte{
		"../outside.txt": []byte("escape"),
	})

	_, err := ImportHeadless(s, provider.ChatGPT, archivePath)
	if vaulterr.CodeOf(err) != vaulterr.ZipSlipDetected {
		t.Errorf("CodeOf(err) = %v, want ZIP_SLIP_DETECTED", vaulterr.CodeOf(err))
	}

	var status string
	rows, _ := s.DB().Query(`SELECT status FROM ingestion_runs`)
	for rows.Next() {
		rows.Scan(&status)
	}
	rows.Close()
	if status != "failed" {
		t.Errorf("status = %q, want failed", status)
	}

	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "outside.txt")); err == nil {
		t.Error("outside.txt must not exist anywhere on disk")
	}

	var artifactCount int
	s.DB().QueryRow(`SELECT COUNT(*) FROM raw_artifacts`).Scan(&artifactCount)
	if artifactCount != 1 {
		t.Errorf("artifact count = %d, want 1 (only the parent zip, prescan aborts before any child is stored)", artifactCount)
	}
}

func TestImportHeadless_Zip_UnmatchedEntryStoredNotParsed(t *testing.T) {
	s := openTestStore(t)
	dir := t.TempDir()

	archivePath := buildZipFile(t, dir, "export.zip", map[string][]byte{
		"random_notes.txt": []byte("not a recognized shape"),
	})

	result, err := ImportHeadless(s, provider.ChatGPT, archivePath)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}

	var threadCount int
	s.DB().QueryRow(`SELECT COUNT(*) FROM threads WHERE run_id = ?`, result.RunID).Scan(&threadCount)
	if threadCount != 0 {
		t.Errorf("thread count = %d, want 0 (unmatched entry not parsed)", threadCount)
	}

	var artifactCount int
	s.DB().QueryRow(`SELECT COUNT(*) FROM raw_artifacts WHERE run_id = ?`, result.RunID).Scan(&artifactCount)
	if artifactCount != 2 {
		t.Errorf("artifact count = %d, want 2 (parent + stored-but-unparsed entry)", artifactCount)
	}
}
