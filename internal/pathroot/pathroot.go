// Package pathroot resolves the on-disk layout of the vault exactly once
// per process and freezes it. Every other package reads paths through
// this package instead of recomputing them, so a caller (a smoke test, an
// embedding host) gets exactly one chance to redirect storage before any
// file is touched.
package pathroot

import (
	"fmt"
	"path/filepath"
	"sync"
)

// Paths is the frozen set of absolute filesystem locations the vault
// owns. Zero value is never valid outside this package; callers obtain
// one through Init/Get.
type Paths struct {
	UserData  string
	Vault     string
	DB        string
	Artifacts string
	Inbox     string
	Logs      string
}

var (
	mu       sync.Mutex
	current  *Paths
	initOnce bool
)

// Init resolves Paths from userData and freezes them for the lifetime of
// the process. Calling Init a second time is a programming error (the
// whole point of this package is to let exactly one caller — usually a
// test harness injecting a temp directory — win the race before anyone
// reads a path) and panics rather than silently keeping the first value
// or silently accepting the second.
func Init(userData string) Paths {
	mu.Lock()
	defer mu.Unlock()

	if initOnce {
		panic("pathroot: Init called more than once")
	}

	abs, err := filepath.Abs(userData)
	if err != nil {
		abs = userData
	}

	p := Paths{
		UserData:  abs,
		Vault:     filepath.Join(abs, "vault"),
		DB:        filepath.Join(abs, "vault", "vault.db"),
		Artifacts: filepath.Join(abs, "vault", "artifacts"),
		Inbox:     filepath.Join(abs, "inbox"),
		Logs:      filepath.Join(abs, "logs"),
	}
	current = &p
	initOnce = true
	return p
}

// Get returns the frozen Paths. Calling Get before Init is a programming
// error: every entry point (CLI, smoke driver, embedding host) must call
// Init first, so a read-before-init means the wiring is wrong, not that
// some default should be invented.
func Get() Paths {
	mu.Lock()
	defer mu.Unlock()

	if !initOnce {
		panic("pathroot: Get called before Init")
	}
	return *current
}

// Reset clears the frozen state. It exists only for tests, which each
// want their own Init in their own temp directory; production code never
// calls it.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	current = nil
	initOnce = false
}

func (p Paths) String() string {
	return fmt.Sprintf("vault=%s db=%s artifacts=%s", p.Vault, p.DB, p.Artifacts)
}
