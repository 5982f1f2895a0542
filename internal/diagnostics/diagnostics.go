// Package diagnostics implements the diagnostics() RPC call's privacy
// allowlist (§6, §4.7): it queries only schema_meta, ingestion_runs,
// and raw_artifacts — never messages, never threads, never titles or
// filenames — and redacts absolute paths out of any error tail before
// it leaves the process.
package diagnostics

import (
	"database/sql"
	"os"
	"regexp"
	"runtime"
	"time"

	"github.com/localarchive/convovault/internal/migrate"
	"github.com/localarchive/convovault/internal/vaulterr"
)

// Report is the diagnostics() payload. The desktop shell (out of
// scope, §1) is expected to merge in its own electron/node version
// fields; this core process reports what it actually knows about
// itself — the Go build and OS — leaving those two blank rather than
// fabricating values for a runtime that doesn't exist here.
type Report struct {
	GeneratedAt int64        `json:"generated_at"`
	App         App          `json:"app"`
	Runtime     RuntimeInfo  `json:"runtime"`
	Vault       VaultInfo    `json:"vault"`
	Ingestion   Ingestion    `json:"ingestion"`
	Artifacts   []ArtifactAg `json:"artifacts"`
	Health      Health       `json:"health"`
}

type App struct {
	Version    string `json:"version"`
	IsPackaged bool   `json:"is_packaged"`
}

type RuntimeInfo struct {
	Platform  string `json:"platform"`
	Arch      string `json:"arch"`
	Electron  string `json:"electron"`
	Node      string `json:"node"`
	OSRelease string `json:"os_release"`
	GoVersion string `json:"go_version"`
}

type VaultInfo struct {
	SchemaVersion       int   `json:"schema_version"`
	DBSizeBytes         int64 `json:"db_size_bytes"`
	ArtifactsTotalBytes int64 `json:"artifacts_total_bytes"`
	FTSEnabled          bool  `json:"fts_enabled"`
}

type Ingestion struct {
	RunsSummary map[string]int `json:"runs_summary"`
	RecentRuns  []RunSummary   `json:"recent_runs"`
}

type RunSummary struct {
	ID           int64  `json:"id"`
	Provider     string `json:"provider"`
	Status       string `json:"status"`
	StartedAt    int64  `json:"started_at"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type ArtifactAg struct {
	Provider   string `json:"provider"`
	Type       string `json:"type"`
	Count      int    `json:"count"`
	TotalBytes int64  `json:"total_bytes"`
}

type Health struct {
	SQLiteIntegrityCheck string `json:"sqlite_integrity_check"`
}

// absolutePathRe matches the common absolute-path shapes that might
// leak into a raw error message (POSIX and Windows drive-letter).
var absolutePathRe = regexp.MustCompile(`(/[^\s"']+)|([A-Za-z]:\\[^\s"']+)`)

// redactPaths replaces any absolute path substring with a fixed
// placeholder, never partial — the whole path segment is removed.
func redactPaths(msg string) string {
	return absolutePathRe.ReplaceAllString(msg, "[PATH_REDACTED]")
}

// Collect builds a Report from db and artifactsDir, appVersion, and
// whether this build is a packaged release.
func Collect(db *sql.DB, artifactsDir string, appVersion string, isPackaged bool, now time.Time) (Report, error) {
	r := Report{
		GeneratedAt: now.UnixMilli(),
		App:         App{Version: appVersion, IsPackaged: isPackaged},
		Runtime: RuntimeInfo{
			Platform:  runtime.GOOS,
			Arch:      runtime.GOARCH,
			OSRelease: osRelease(),
			GoVersion: runtime.Version(),
		},
	}

	schemaVersion, err := migrate.CurrentVersion(db)
	if err != nil {
		return r, vaulterr.New(vaulterr.DBWriteFailed, err)
	}
	r.Vault.SchemaVersion = schemaVersion
	r.Vault.FTSEnabled = ftsEnabled(db)

	if dbSize, err := fileSize(dbPathOf(db)); err == nil {
		r.Vault.DBSizeBytes = dbSize
	}
	r.Vault.ArtifactsTotalBytes = dirSize(artifactsDir)

	runsSummary, recentRuns, err := collectRuns(db)
	if err != nil {
		return r, err
	}
	r.Ingestion = Ingestion{RunsSummary: runsSummary, RecentRuns: recentRuns}

	artifacts, err := collectArtifacts(db)
	if err != nil {
		return r, err
	}
	r.Artifacts = artifacts

	integrity := "unknown"
	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err == nil {
		integrity = result
	}
	r.Health = Health{SQLiteIntegrityCheck: integrity}

	return r, nil
}

func collectRuns(db *sql.DB) (map[string]int, []RunSummary, error) {
	rows, err := db.Query(`SELECT status, COUNT(*) FROM ingestion_runs GROUP BY status`)
	if err != nil {
		return nil, nil, vaulterr.New(vaulterr.DBWriteFailed, err)
	}
	summary := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, nil, vaulterr.New(vaulterr.DBWriteFailed, err)
		}
		summary[status] = count
	}
	rows.Close()

	recentRows, err := db.Query(`
		SELECT id, provider, status, started_at, error_message
		FROM ingestion_runs ORDER BY started_at DESC LIMIT 20
	`)
	if err != nil {
		return nil, nil, vaulterr.New(vaulterr.DBWriteFailed, err)
	}
	defer recentRows.Close()

	var recent []RunSummary
	for recentRows.Next() {
		var rs RunSummary
		var errMsg sql.NullString
		if err := recentRows.Scan(&rs.ID, &rs.Provider, &rs.Status, &rs.StartedAt, &errMsg); err != nil {
			return nil, nil, vaulterr.New(vaulterr.DBWriteFailed, err)
		}
		if errMsg.Valid {
			rs.ErrorMessage = redactPaths(errMsg.String)
			rs.ErrorCode = string(vaulterr.CodeOf(vaulterr.New(parseLeadingCode(errMsg.String), nil)))
		}
		recent = append(recent, rs)
	}

	return summary, recent, nil
}

// parseLeadingCode extracts the leading "CODE: " prefix that
// controller.fail() writes into error_message, falling back to
// UnknownError when the message predates that convention or was
// written by something else.
func parseLeadingCode(msg string) vaulterr.Code {
	for _, c := range []vaulterr.Code{
		vaulterr.ZipEntryTooLarge, vaulterr.ZipTotalTooLarge, vaulterr.ZipTooManyEntries,
		vaulterr.ZipCorrupt, vaulterr.ZipSlipDetected, vaulterr.ParseJSONFailed,
		vaulterr.ParseChatHTMLFail, vaulterr.HTMLNoMessages, vaulterr.SchemaMismatch,
		vaulterr.DBWriteFailed, vaulterr.FSWriteFailed,
	} {
		if len(msg) >= len(c) && msg[:len(c)] == string(c) {
			return c
		}
	}
	return vaulterr.UnknownError
}

func collectArtifacts(db *sql.DB) ([]ArtifactAg, error) {
	rows, err := db.Query(`
		SELECT provider, artifact_type, COUNT(*), COALESCE(SUM(byte_size), 0)
		FROM raw_artifacts GROUP BY provider, artifact_type
	`)
	if err != nil {
		return nil, vaulterr.New(vaulterr.DBWriteFailed, err)
	}
	defer rows.Close()

	var out []ArtifactAg
	for rows.Next() {
		var a ArtifactAg
		if err := rows.Scan(&a.Provider, &a.Type, &a.Count, &a.TotalBytes); err != nil {
			return nil, vaulterr.New(vaulterr.DBWriteFailed, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func ftsEnabled(db *sql.DB) bool {
	var name string
	err := db.QueryRow(`SELECT name FROM sqlite_master WHERE name = 'messages_fts'`).Scan(&name)
	return err == nil
}

func dbPathOf(db *sql.DB) string {
	var seq int
	var name, file string
	rows, err := db.Query("PRAGMA database_list")
	if err != nil {
		return ""
	}
	defer rows.Close()
	for rows.Next() {
		if err := rows.Scan(&seq, &name, &file); err == nil && name == "main" {
			return file
		}
	}
	return ""
}

func fileSize(path string) (int64, error) {
	if path == "" {
		return 0, os.ErrNotExist
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func dirSize(dir string) int64 {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	var total int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if info, err := e.Info(); err == nil {
			total += info.Size()
		}
	}
	return total
}
