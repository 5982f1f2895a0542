package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/localarchive/convovault/internal/provider"
	"github.com/localarchive/convovault/internal/vaulterr"
)

// smokeReport is the exact JSON shape a release pipeline's smoke test
// reads back (§6). electronVersion/nodeVersion are left blank for the
// same reason diagnostics() leaves them blank: this binary is a
// standalone Go core, not an Electron-embedded process.
type smokeReport struct {
	AppVersion      string `json:"app_version"`
	CommitSHA       string `json:"commit_sha"`
	ElectronVersion string `json:"electron_version"`
	NodeVersion     string `json:"node_version"`
	Platform        string `json:"platform"`
	Provider        string `json:"provider"`
	FixtureName     string `json:"fixture_name"`
	Sentinel        string `json:"sentinel"`
	Pass            bool   `json:"pass"`
	ImportMS        int64  `json:"import_ms"`
	SearchHits      int    `json:"search_hits"`
	SearchMS        int64  `json:"search_ms"`
	WipeOK          bool   `json:"wipe_ok"`
	PostWipeHits    int    `json:"post_wipe_hits"`
	ErrorCode       string `json:"error_code,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
}

type smokeOpts struct {
	vaultDir string
	importF  string
	sentinel string
	provTag  string
	smokeOut string
}

// runSmoke drives exactly the §6 contract: import a fixture, search for
// a sentinel it's known to embed, wipe, confirm the sentinel is gone,
// and write a JSON report. Exit code (via the returned error) is 1 on
// any failure; the report itself is still written on a best-effort
// basis so a failing run is diagnosable.
func runSmoke(opts smokeOpts) error {
	report := smokeReport{
		AppVersion: version,
		CommitSHA:  commitSHA,
		Platform:   runtime.GOOS,
		Provider:   opts.provTag,
		FixtureName: filepath.Base(opts.importF),
		Sentinel:   opts.sentinel,
	}

	if opts.importF == "" || opts.sentinel == "" || opts.provTag == "" || opts.vaultDir == "" {
		report.ErrorCode = string(vaulterr.UnknownError)
		report.ErrorMessage = "missing one of --vault-dir, --import, --sentinel, --provider"
		return finishSmoke(opts.smokeOut, report)
	}

	tag, err := provider.Parse(opts.provTag)
	if err != nil {
		report.ErrorMessage = err.Error()
		return finishSmoke(opts.smokeOut, report)
	}

	svc, cleanup, err := openService(opts.vaultDir, false)
	if err != nil {
		report.ErrorMessage = err.Error()
		return finishSmoke(opts.smokeOut, report)
	}
	defer cleanup()

	importStart := time.Now()
	_, err = svc.ImportHeadless(tag, opts.importF)
	report.ImportMS = time.Since(importStart).Milliseconds()
	if err != nil {
		report.ErrorCode = string(vaulterr.CodeOf(err))
		report.ErrorMessage = err.Error()
		return finishSmoke(opts.smokeOut, report)
	}

	searchStart := time.Now()
	hits, err := svc.Search(opts.sentinel)
	report.SearchMS = time.Since(searchStart).Milliseconds()
	if err != nil {
		report.ErrorMessage = err.Error()
		return finishSmoke(opts.smokeOut, report)
	}
	report.SearchHits = len(hits)

	if err := svc.Wipe(); err != nil {
		report.ErrorMessage = err.Error()
		return finishSmoke(opts.smokeOut, report)
	}
	report.WipeOK = true

	postWipeHits, err := svc.Search(opts.sentinel)
	if err != nil {
		report.ErrorMessage = err.Error()
		return finishSmoke(opts.smokeOut, report)
	}
	report.PostWipeHits = len(postWipeHits)

	report.Pass = report.SearchHits > 0 && report.WipeOK && report.PostWipeHits == 0
	return finishSmoke(opts.smokeOut, report)
}

func finishSmoke(outPath string, report smokeReport) error {
	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}

	if outPath != "" {
		if werr := os.WriteFile(outPath, encoded, 0o644); werr != nil {
			return werr
		}
	} else {
		fmt.Println(string(encoded))
	}

	if !report.Pass {
		return fmt.Errorf("smoke run failed: %s", report.ErrorMessage)
	}
	return nil
}
