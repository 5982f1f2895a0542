package rpc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/localarchive/convovault/internal/pathroot"
	"github.com/localarchive/convovault/internal/provider"
	"github.com/localarchive/convovault/internal/store"
)

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	pathroot.Reset()
	t.Cleanup(pathroot.Reset)
	pathroot.Init(dir)
	paths := pathroot.Get()

	s, err := store.OpenAt(paths.DB, paths.Artifacts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	if err := os.MkdirAll(paths.Inbox, 0o755); err != nil {
		t.Fatal(err)
	}

	svc := New(s, zap.NewNop(), "0.0.0-test", false)
	return svc, dir
}

func TestStatus_ReportsLocalOnly(t *testing.T) {
	svc, _ := newTestService(t)
	st := svc.Status()
	if !st.LocalOnly {
		t.Error("expected localOnly=true")
	}
	if st.Status == "" {
		t.Error("expected non-empty status")
	}
}

const sampleChatGPT = `[
  {
    "title": "rpc smoke",
    "create_time": 1700000000,
    "mapping": {
      "n1": {
        "id": "n1",
        "message": {
          "id": "m1",
          "author": {"role": "user"},
          "content": {"content_type": "text", "parts": ["SENTINEL_RPC_001"]},
          "create_time": 1700000000
        }
      }
    }
  }
]`

func TestImportHeadless_ThenSearch_RoundTrip(t *testing.T) {
	svc, dir := newTestService(t)

	fixture := filepath.Join(dir, "conversations.json")
	if err := os.WriteFile(fixture, []byte(sampleChatGPT), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := svc.ImportHeadless(provider.ChatGPT, fixture)
	if err != nil {
		t.Fatalf("ImportHeadless: %v", err)
	}
	if result.RunID == 0 {
		t.Error("expected non-zero run id")
	}

	hits, err := svc.Search("SENTINEL_RPC_001")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}

	report, err := svc.Diagnostics()
	if err != nil {
		t.Fatal(err)
	}
	encoded, _ := json.Marshal(report)
	if len(encoded) == 0 {
		t.Error("expected non-empty diagnostics report")
	}

	if err := svc.Wipe(); err != nil {
		t.Fatal(err)
	}
	hits, err = svc.Search("SENTINEL_RPC_001")
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("expected 0 hits after wipe, got %d", len(hits))
	}
}

func TestWatchInbox_DetectsDroppedFileAndImports(t *testing.T) {
	svc, _ := newTestService(t)

	started, err := svc.WatchInbox(map[string]provider.Tag{".json": provider.ChatGPT}, provider.ChatGPT)
	if err != nil {
		t.Fatal(err)
	}
	if !started {
		t.Fatal("expected watch to start")
	}
	defer svc.StopWatching()

	inbox := pathroot.Get().Inbox
	dropped := filepath.Join(inbox, "dropped.json")
	if err := os.WriteFile(dropped, []byte(sampleChatGPT), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		hits, err := svc.Search("SENTINEL_RPC_001")
		if err == nil && len(hits) == 1 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("timed out waiting for watch-triggered import")
}

func TestStopWatching_WithoutStart_IsNoop(t *testing.T) {
	svc, _ := newTestService(t)
	if svc.StopWatching() {
		t.Error("expected false when nothing was watching")
	}
}
