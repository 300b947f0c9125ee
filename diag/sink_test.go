package diag

import (
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

type fakeConsole struct {
	lines []string
}

func (f *fakeConsole) Write(s string) { f.lines = append(f.lines, s) }

func TestNewConsoleLogger_WritesThroughConsole(t *testing.T) {
	con := &fakeConsole{}
	logger := NewConsoleLogger(con, zapcore.InfoLevel)

	logger.Info("boot complete", zapcore.Field{Key: "cpus", Type: zapcore.Int64Type, Integer: 4})

	if len(con.lines) == 0 {
		t.Fatalf("expected at least one line written through console")
	}
	if !strings.Contains(con.lines[0], "boot complete") {
		t.Errorf("expected log line to contain message, got %q", con.lines[0])
	}
}

func TestNewConsoleLogger_RespectsLevel(t *testing.T) {
	con := &fakeConsole{}
	logger := NewConsoleLogger(con, zapcore.WarnLevel)

	logger.Info("should not appear")
	if len(con.lines) != 0 {
		t.Errorf("expected info below threshold to be suppressed, got %v", con.lines)
	}

	logger.Warn("should appear")
	if len(con.lines) != 1 {
		t.Errorf("expected exactly one warn line, got %d", len(con.lines))
	}
}
