package main

import (
	"fmt"

	"go.uber.org/zap/zapcore"

	"github.com/localarchive/convovault/internal/logging"
	"github.com/localarchive/convovault/internal/pathroot"
	"github.com/localarchive/convovault/internal/rpc"
	"github.com/localarchive/convovault/internal/store"
)

// openService initializes PathRoot, the Store, and the logger for one
// CLI invocation, returning the rpc facade and a cleanup func.
// withFileLog controls whether a file sink is attached: the smoke driver passes
// false so a one-shot invocation doesn't leave a log file behind in a
// throwaway temp vault.
func openService(vaultDir string, withFileLog bool) (*rpc.Service, func(), error) {
	paths := pathroot.Init(vaultDir)

	logDir := ""
	if withFileLog {
		logDir = paths.Logs
	}
	log, err := logging.New(logging.Options{LogDir: logDir, Level: zapcore.InfoLevel})
	if err != nil {
		return nil, nil, fmt.Errorf("init logging: %w", err)
	}

	s, err := store.Open()
	if err != nil {
		log.Sync()
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	svc := rpc.New(s, log, version, false)

	cleanup := func() {
		s.Close()
		log.Sync()
	}
	return svc, cleanup, nil
}
