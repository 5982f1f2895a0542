// Package safezip implements the ZIP Safety Protocol (§4.5): a
// pre-scan of every central-directory entry that must pass in full
// before a single byte is extracted. It exists as its own
// unit-testable package (ambient stack addition, SPEC_FULL.md §2) so
// the ingest controller can call one function and trust the archive is
// safe to walk.
package safezip

import (
	"archive/zip"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/localarchive/convovault/internal/vaulterr"
)

// Limits bounds the work a ZIP extraction is allowed to do. Defaults
// match §4.5; the entry-count, single-file and total-size limits are
// overridable by an environment variable for tests and operators, and
// MaxRatio has no environment override.
type Limits struct {
	MaxEntries               int
	MaxSingleFileBytes        int64
	MaxTotalUncompressedBytes int64
	MaxRatio                  int64
}

const (
	defaultMaxEntries               = 10000
	defaultMaxSingleFileBytes        = 100 * 1024 * 1024
	defaultMaxTotalUncompressedBytes = 1024 * 1024 * 1024
	defaultMaxRatio                  = 100
)

// DefaultLimits returns the policy defaults, with MaxEntries,
// MaxSingleFileBytes and MaxTotalUncompressedBytes read from their
// environment variables when set; MaxRatio is always the default.
func DefaultLimits() Limits {
	return Limits{
		MaxEntries:                envInt("VAULT_ZIP_MAX_ENTRIES", defaultMaxEntries),
		MaxSingleFileBytes:        envInt64("VAULT_ZIP_MAX_SINGLE_FILE_BYTES", defaultMaxSingleFileBytes),
		MaxTotalUncompressedBytes: envInt64("VAULT_ZIP_MAX_TOTAL_BYTES", defaultMaxTotalUncompressedBytes),
		MaxRatio:                  defaultMaxRatio,
	}
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

// PreScan validates every entry in zr against limits before any entry
// is extracted. It is atomic in the sense that the caller never sees a
// partially-validated archive: either every entry passes, or the first
// violation is returned and nothing is extracted.
func PreScan(zr *zip.Reader, limits Limits) error {
	nonDirEntries := 0
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() {
			nonDirEntries++
		}
	}
	if nonDirEntries > limits.MaxEntries {
		return vaulterr.New(vaulterr.ZipTooManyEntries, fmt.Errorf("%d entries exceeds limit %d", nonDirEntries, limits.MaxEntries))
	}

	var totalUncompressed int64
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}

		if err := checkPathTraversal(f.Name); err != nil {
			return err
		}

		uncompressed := int64(f.UncompressedSize64)
		compressed := int64(f.CompressedSize64)

		if uncompressed > limits.MaxSingleFileBytes {
			return vaulterr.New(vaulterr.ZipEntryTooLarge, fmt.Errorf("entry %q: %d bytes exceeds limit %d", f.Name, uncompressed, limits.MaxSingleFileBytes))
		}

		if compressed > 0 {
			ratio := uncompressed / compressed
			if ratio > limits.MaxRatio {
				return vaulterr.New(vaulterr.ZipCorrupt, fmt.Errorf("entry %q: ratio %d exceeds limit %d", f.Name, ratio, limits.MaxRatio))
			}
		} else if uncompressed > 0 {
			return vaulterr.New(vaulterr.ZipCorrupt, fmt.Errorf("entry %q: zero compressed size with nonzero uncompressed size", f.Name))
		}

		totalUncompressed += uncompressed
		if totalUncompressed > limits.MaxTotalUncompressedBytes {
			return vaulterr.New(vaulterr.ZipTotalTooLarge, fmt.Errorf("total uncompressed %d exceeds limit %d", totalUncompressed, limits.MaxTotalUncompressedBytes))
		}
	}

	return nil
}

// checkPathTraversal inspects the raw entry name — not a normalized
// path — for a ".." component or an absolute path. Normalizing first
// (e.g. filepath.Clean) would resolve ".." and defeat the check, so
// this splits on both slash styles by hand instead of using
// path/filepath.
func checkPathTraversal(rawName string) error {
	if strings.HasPrefix(rawName, "/") || strings.HasPrefix(rawName, `\`) {
		return vaulterr.New(vaulterr.ZipSlipDetected, fmt.Errorf("entry %q is an absolute path", rawName))
	}
	if len(rawName) >= 2 && rawName[1] == ':' {
		return vaulterr.New(vaulterr.ZipSlipDetected, fmt.Errorf("entry %q has a drive-letter prefix", rawName))
	}

	normalized := strings.ReplaceAll(rawName, `\`, "/")
	for _, component := range strings.Split(normalized, "/") {
		if component == ".." {
			return vaulterr.New(vaulterr.ZipSlipDetected, fmt.Errorf("entry %q contains a \"..\" component", rawName))
		}
	}
	return nil
}
