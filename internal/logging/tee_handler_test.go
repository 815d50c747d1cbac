package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewTeeHandlerCollapses(t *testing.T) {
	if _, ok := newTeeHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when every handler is nil")
	}
	inner := slog.NewTextHandler(&bytes.Buffer{}, nil)
	if got := newTeeHandler(nil, inner); got != inner {
		t.Fatal("expected a single handler to be returned unwrapped")
	}
}

func TestTeeHandlerConsoleAndFileLevels(t *testing.T) {
	var console, file bytes.Buffer
	consoleLevel := new(slog.LevelVar)
	consoleLevel.Set(slog.LevelInfo)
	fileLevel := new(slog.LevelVar)
	fileLevel.Set(slog.LevelDebug)

	logger := slog.New(newTeeHandler(
		newConsoleHandler(&console, consoleLevel, false),
		newJSONHandler(&file, fileLevel, false),
	)).With(String(FieldComponent, "comfy"))

	logger.Debug("frame decoded")
	logger.Info("job completed", String(FieldJobID, "abcdef0123456789"))

	if strings.Contains(console.String(), "frame decoded") {
		t.Fatalf("console should drop debug records: %q", console.String())
	}
	if !strings.Contains(console.String(), "job completed") {
		t.Fatalf("console missing info record: %q", console.String())
	}
	if !strings.Contains(file.String(), `"msg":"frame decoded"`) {
		t.Fatalf("file should keep debug records: %q", file.String())
	}
	if !strings.Contains(file.String(), `"component":"comfy"`) {
		t.Fatalf("WithAttrs not propagated to file handler: %q", file.String())
	}
}
