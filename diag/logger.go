// Package diag provides the core's diagnostic logging and dump facilities.
// Every other package logs through Logger(); none of them touch os.Stderr
// or any hosted-OS facility directly, since the core is freestanding
// (spec.md section 1).
package diag

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the core's shared logger. It defaults to a no-op logger
// until SetLogger installs one backed by a Console-writing sink.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger installs the core's logger, normally constructed with
// NewConsoleLogger over a Console collaborator. Must be called before any
// component logs, typically during Boot.
func SetLogger(l *zap.Logger) {
	loggerOnce.Do(func() {})
	logger = l
}
