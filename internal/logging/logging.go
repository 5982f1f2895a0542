// Package logging builds the structured, leveled logger used for run
// lifecycle, migration steps, and wipe phases (SPEC_FULL.md ambient
// stack). The teacher has no logger of its own (it is a TUI and routes
// everything through its dashboard), so this is adopted wholesale from
// theRebelliousNerd-codenerd's stack: zap for structured logging paired
// with lumberjack for rotation, since a long-running watch-mode host
// needs a file sink that doesn't grow without bound.
package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the logger. LogDir is typically pathroot's Logs
// path; when empty, only stderr is used (useful for one-shot CLI
// invocations like --smoke that shouldn't leave a log file behind).
type Options struct {
	LogDir string
	Level  zapcore.Level
}

// New builds a zap.Logger writing structured JSON to a rotated file in
// opts.LogDir (if set) and human-readable console output to stderr.
func New(opts Options) (*zap.Logger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.AddSync(os.Stderr),
		opts.Level,
	)

	cores := []zapcore.Core{consoleCore}

	if opts.LogDir != "" {
		if err := os.MkdirAll(opts.LogDir, 0o755); err != nil {
			return nil, err
		}
		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(opts.LogDir, "convovault.log"),
			MaxSize:    20, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderCfg),
			zapcore.AddSync(rotator),
			opts.Level,
		)
		cores = append(cores, fileCore)
	}

	return zap.New(zapcore.NewTee(cores...)), nil
}
