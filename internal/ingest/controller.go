// Package ingest implements the Ingest Controller (§4.5): the single
// entry point that turns one caller-supplied file into a run, its
// artifacts, and — where the bytes parse — normalized threads and
// messages. It is the orchestration layer above safezip, parser, and
// store; none of those packages know about each other.
package ingest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/localarchive/convovault/internal/parser"
	"github.com/localarchive/convovault/internal/provider"
	"github.com/localarchive/convovault/internal/safezip"
	"github.com/localarchive/convovault/internal/store"
	"github.com/localarchive/convovault/internal/vaulterr"
)

// Result is the return shape of ImportHeadless (§6 RPC surface).
type Result struct {
	RunID      int64
	ArtifactID int64
}

// ImportHeadless reads filePath whole, opens a run, stores the whole
// file as the parent artifact, and either parses it directly (plain
// JSON) or runs the ZIP Safety Protocol followed by the extraction
// loop (archive). The run is always finalized exactly once, complete
// or failed.
func ImportHeadless(s *store.Store, tag provider.Tag, filePath string) (Result, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Result{}, vaulterr.New(vaulterr.FSWriteFailed, fmt.Errorf("read %s: %w", filePath, err))
	}

	run, err := s.CreateIngestionRun(string(tag), filepath.Base(filePath))
	if err != nil {
		return Result{}, vaulterr.New(vaulterr.DBWriteFailed, err)
	}

	artifactType := "json"
	if strings.EqualFold(filepath.Ext(filePath), ".zip") {
		artifactType = "zip"
	}

	parentResult, err := s.StoreRawArtifact(run, string(tag), artifactType, filepath.Base(filePath), data, nil, "")
	if err != nil {
		fail(s, run, vaulterr.FSWriteFailed, err)
		return Result{}, vaulterr.New(vaulterr.FSWriteFailed, err)
	}

	if artifactType == "zip" {
		if err := importZip(s, run, tag, parentResult.ID, data); err != nil {
			fail(s, run, vaulterr.CodeOf(err), err)
			return Result{}, err
		}
	} else {
		if err := importFlatFile(s, run, tag, parentResult.ID, data); err != nil {
			fail(s, run, vaulterr.CodeOf(err), err)
			return Result{}, err
		}
	}

	if err := s.FinalizeIngestionRun(run, "complete", ""); err != nil {
		return Result{}, vaulterr.New(vaulterr.DBWriteFailed, err)
	}

	return Result{RunID: run.ID, ArtifactID: parentResult.ID}, nil
}

func fail(s *store.Store, run store.Run, code vaulterr.Code, cause error) {
	msg := fmt.Sprintf("%s: %v", code, cause)
	s.FinalizeIngestionRun(run, "failed", msg)
}

// importFlatFile handles the non-archive case: the whole file is
// decoded as UTF-8 and handed to the parser selected by provider tag
// alone (§4.5 step 3).
func importFlatFile(s *store.Store, run store.Run, tag provider.Tag, artifactID int64, data []byte) error {
	p := flatFileParser(tag)
	return runParserTx(s, run, artifactID, p, data)
}

// importZip runs the ZIP Safety Protocol, then the extraction loop
// (§4.5 step 4). Each entry is stored as a child artifact; entries
// matching a known filename are parsed in their own transaction, so
// one bad entry never rolls back siblings already committed.
func importZip(s *store.Store, run store.Run, tag provider.Tag, parentArtifactID int64, data []byte) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return vaulterr.New(vaulterr.ZipCorrupt, err)
	}

	if err := safezip.PreScan(zr, safezip.DefaultLimits()); err != nil {
		return err
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return vaulterr.New(vaulterr.ZipCorrupt, err)
		}
		entryData, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return vaulterr.New(vaulterr.ZipCorrupt, err)
		}

		parentID := parentArtifactID
		result, err := s.StoreRawArtifact(run, string(tag), entryArtifactType(f.Name), path.Base(f.Name), entryData, &parentID, f.Name)
		if err != nil {
			return vaulterr.New(vaulterr.FSWriteFailed, err)
		}

		p := selectParser(tag, f.Name)
		if p == nil {
			continue // stored for forensic preservation, not parsed
		}

		// A parse failure on one entry is tolerated: partial yield
		// beats zero yield. The error is not propagated to the
		// overall run outcome.
		_ = runParserTx(s, run, result.ID, p, entryData)
	}

	return nil
}

func runParserTx(s *store.Store, run store.Run, artifactID int64, p parser.Parser, data []byte) error {
	if p == nil {
		return vaulterr.New(vaulterr.SchemaMismatch, fmt.Errorf("no parser for provider %q", run.Provider))
	}

	// Held for the whole parser invocation, not just one statement: a
	// search must observe either the pre-parse or post-commit state of
	// messages, never a partial insert sequence (§5).
	s.Lock()
	defer s.Unlock()

	tx, err := s.DB().Begin()
	if err != nil {
		return vaulterr.New(vaulterr.DBWriteFailed, err)
	}

	if err := p.Parse(tx, run.Provider, run.ID, artifactID, data); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return vaulterr.New(vaulterr.DBWriteFailed, err)
	}
	return nil
}

func flatFileParser(tag provider.Tag) parser.Parser {
	switch tag {
	case provider.ChatGPT:
		return parser.ChatGPTParser{}
	case provider.Claude:
		return parser.ClaudeParser{}
	case provider.Gemini:
		return parser.GeminiParser{}
	default:
		return nil
	}
}

// selectParser implements the dispatch table from §4.5: chosen by
// (provider, entry name) — conversations.json/chat.html for ChatGPT,
// any .json for Claude and Gemini.
func selectParser(tag provider.Tag, entryName string) parser.Parser {
	base := path.Base(entryName)
	switch tag {
	case provider.ChatGPT:
		switch base {
		case "conversations.json":
			return parser.ChatGPTParser{}
		case "chat.html":
			return parser.ChatGPTHTMLParser{}
		}
		return nil
	case provider.Claude:
		if strings.HasSuffix(base, ".json") {
			return parser.ClaudeParser{}
		}
		return nil
	case provider.Gemini:
		if strings.HasSuffix(base, ".json") {
			return parser.GeminiParser{}
		}
		return nil
	default:
		return nil
	}
}

func entryArtifactType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	switch ext {
	case ".json":
		return "json"
	case ".html":
		return "html"
	case ".zip":
		return "zip"
	default:
		return strings.TrimPrefix(ext, ".")
	}
}
