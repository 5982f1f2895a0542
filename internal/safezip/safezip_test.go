package safezip

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/localarchive/convovault/internal/vaulterr"
)

func buildZip(t *testing.T, entries map[string]struct {
	data   []byte
	method uint16
}) *zip.Reader {
	t.Helper()
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for name, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: e.method})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(e.data); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	return zr
}

func TestPreScan_PathTraversalDetected(t *testing.T) {
	zr := buildZip(t, map[string]struct {
		data   []byte
		method uint16
	}{
		"../outside.txt": {data: []byte("escape"), method: zip.Store},
	})

	err := PreScan(zr, DefaultLimits())
	if vaulterr.CodeOf(err) != vaulterr.ZipSlipDetected {
		t.Errorf("CodeOf(err) = %v, want ZIP_SLIP_DETECTED", vaulterr.CodeOf(err))
	}
}

func TestPreScan_AbsolutePathDetected(t *testing.T) {
	zr := buildZip(t, map[string]struct {
		data   []byte
		method uint16
	}{
		"/etc/passwd": {data: []byte("escape"), method: zip.Store},
	})

	err := PreScan(zr, DefaultLimits())
	if vaulterr.CodeOf(err) != vaulterr.ZipSlipDetected {
		t.Errorf("CodeOf(err) = %v, want ZIP_SLIP_DETECTED", vaulterr.CodeOf(err))
	}
}

func TestPreScan_RatioBomb(t *testing.T) {
	highlyCompressible := bytes.Repeat([]byte("A"), 200_000)
	zr := buildZip(t, map[string]struct {
		data   []byte
		method uint16
	}{
		"bomb.txt": {data: highlyCompressible, method: zip.Deflate},
	})

	err := PreScan(zr, DefaultLimits())
	if vaulterr.CodeOf(err) != vaulterr.ZipCorrupt {
		t.Errorf("CodeOf(err) = %v, want ZIP_CORRUPT", vaulterr.CodeOf(err))
	}
}

func TestPreScan_TooManyEntries(t *testing.T) {
	entries := map[string]struct {
		data   []byte
		method uint16
	}{}
	for i := 0; i < 5; i++ {
		entries[strings.Repeat("x", i+1)+".txt"] = struct {
			data   []byte
			method uint16
		}{data: []byte("hi"), method: zip.Store}
	}
	zr := buildZip(t, entries)

	limits := DefaultLimits()
	limits.MaxEntries = 3

	err := PreScan(zr, limits)
	if vaulterr.CodeOf(err) != vaulterr.ZipTooManyEntries {
		t.Errorf("CodeOf(err) = %v, want ZIP_TOO_MANY_ENTRIES", vaulterr.CodeOf(err))
	}
}

func TestPreScan_SingleFileTooLarge(t *testing.T) {
	zr := buildZip(t, map[string]struct {
		data   []byte
		method uint16
	}{
		"big.txt": {data: bytes.Repeat([]byte("x"), 1000), method: zip.Store},
	})

	limits := DefaultLimits()
	limits.MaxSingleFileBytes = 500

	err := PreScan(zr, limits)
	if vaulterr.CodeOf(err) != vaulterr.ZipEntryTooLarge {
		t.Errorf("CodeOf(err) = %v, want ZIP_ENTRY_TOO_LARGE", vaulterr.CodeOf(err))
	}
}

func TestPreScan_Passes(t *testing.T) {
	zr := buildZip(t, map[string]struct {
		data   []byte
		method uint16
	}{
		"conversations.json": {data: []byte(`[]`), method: zip.Deflate},
	})

	if err := PreScan(zr, DefaultLimits()); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}
