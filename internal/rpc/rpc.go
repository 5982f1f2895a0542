// Package rpc is the facade consumed by the host shell / driver (§6):
// a small surface over Store, the Ingest Controller, Diagnostics, and
// Watch so a caller never reaches into internal packages directly.
package rpc

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/localarchive/convovault/internal/diagnostics"
	"github.com/localarchive/convovault/internal/ingest"
	"github.com/localarchive/convovault/internal/pathroot"
	"github.com/localarchive/convovault/internal/provider"
	"github.com/localarchive/convovault/internal/store"
	"github.com/localarchive/convovault/internal/watch"
)

// Service binds a Store to the operations in §6. appVersion/isPackaged
// are carried through to diagnostics() verbatim.
type Service struct {
	store      *store.Store
	log        *zap.Logger
	appVersion string
	isPackaged bool

	watcher *watch.Watcher
	cancel  context.CancelFunc
}

func New(s *store.Store, log *zap.Logger, appVersion string, isPackaged bool) *Service {
	return &Service{store: s, log: log, appVersion: appVersion, isPackaged: isPackaged}
}

// StatusResult is status()'s return shape.
type StatusResult struct {
	Status    string `json:"status"`
	LocalOnly bool   `json:"localOnly"`
	VaultPath string `json:"vaultPath"`
}

func (s *Service) Status() StatusResult {
	return StatusResult{Status: "secure", LocalOnly: true, VaultPath: pathroot.Get().Vault}
}

func (s *Service) Search(query string) ([]store.Hit, error) {
	return s.store.Search(query)
}

// ImportHeadless is the bypass-the-picker path used by the smoke
// driver and by the watch component.
func (s *Service) ImportHeadless(tag provider.Tag, absolutePath string) (ingest.Result, error) {
	s.log.Info("import starting", zap.String("provider", string(tag)), zap.String("path", absolutePath))
	result, err := ingest.ImportHeadless(s.store, tag, absolutePath)
	if err != nil {
		s.log.Error("import failed", zap.Error(err))
		return ingest.Result{}, err
	}
	s.log.Info("import complete", zap.Int64("run_id", result.RunID))
	return result, nil
}

func (s *Service) Wipe() error {
	s.log.Warn("wipe starting")
	if err := s.store.Wipe(); err != nil {
		s.log.Error("wipe failed", zap.Error(err))
		return err
	}
	s.log.Warn("wipe complete")
	return nil
}

func (s *Service) Diagnostics() (diagnostics.Report, error) {
	return diagnostics.Collect(s.store.DB(), pathroot.Get().Artifacts, s.appVersion, s.isPackaged, time.Now())
}

// WatchInbox creates the inbox directory if needed and starts watching
// it, dispatching each settled file to ImportHeadless. providers maps a
// path suffix (typically a file extension) to a tag; a path matching no
// suffix is imported with defaultTag.
func (s *Service) WatchInbox(providers map[string]provider.Tag, defaultTag provider.Tag) (bool, error) {
	if s.watcher != nil {
		return true, nil // already watching
	}

	paths := pathroot.Get()
	if err := os.MkdirAll(paths.Inbox, 0o755); err != nil {
		return false, err
	}
	w := watch.New(paths.Inbox, 0)
	ctx, cancel := context.WithCancel(context.Background())

	events, err := w.Start(ctx)
	if err != nil {
		cancel()
		return false, err
	}

	s.watcher = w
	s.cancel = cancel

	go func() {
		for ev := range events {
			if ev.Err != nil {
				s.log.Error("watch error", zap.Error(ev.Err))
				continue
			}
			tag := resolveTag(providers, ev.Path, defaultTag)
			if _, err := s.ImportHeadless(tag, ev.Path); err != nil {
				s.log.Error("watch-triggered import failed", zap.String("path", ev.Path), zap.Error(err))
			}
		}
	}()

	return true, nil
}

func (s *Service) StopWatching() bool {
	if s.watcher == nil {
		return false
	}
	s.cancel()
	s.watcher.Stop()
	s.watcher = nil
	s.cancel = nil
	return false
}

func resolveTag(providers map[string]provider.Tag, path string, defaultTag provider.Tag) provider.Tag {
	for suffix, tag := range providers {
		if len(path) >= len(suffix) && path[len(path)-len(suffix):] == suffix {
			return tag
		}
	}
	return defaultTag
}
