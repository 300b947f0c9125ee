package diag

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ProtonOS/ProtonOS-sub008/hal"
)

// consoleSink adapts a hal.Console into a zapcore.WriteSyncer so the core's
// logger never touches a hosted-OS facility (os.Stderr, a file) — it only
// ever calls the one collaborator method spec.md section 6 grants it.
// Grounded on gopheros's kernel/kfmt, which exists for the same reason.
type consoleSink struct {
	console hal.Console
}

func (s *consoleSink) Write(p []byte) (int, error) {
	s.console.Write(string(p))
	return len(p), nil
}

// Sync is a no-op: Console.Write is already synchronous from the core's
// point of view.
func (s *consoleSink) Sync() error { return nil }

// NewConsoleLogger builds a zap.Logger that writes every log line through
// console. level is the minimum enabled level (e.g. zapcore.InfoLevel).
func NewConsoleLogger(console hal.Console, level zapcore.Level) *zap.Logger {
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:        "", // no wall clock before Timer is wired; omit
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	})

	core := zapcore.NewCore(enc, &consoleSink{console: console}, level)
	return zap.New(core)
}
