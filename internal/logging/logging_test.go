package logging

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLoggerRejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		format string
	}{
		{"unknown level", "loud", "json"},
		{"unknown format", "info", "xml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := newLogger(tt.level, tt.format); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewLoggerLevel(t *testing.T) {
	logger, err := newLogger("warn", "console")
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Error("info should be disabled at warn level")
	}
	if !logger.Core().Enabled(zapcore.ErrorLevel) {
		t.Error("error should be enabled at warn level")
	}
}

func TestHandlerForwardsAttributes(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := slog.New(newHandler(core))

	log.Info("HoldingsWorker: refresh failed", "attempt", 2, "error", errors.New("boom"))

	if logs.Len() != 1 {
		t.Fatalf("entries = %d, want 1", logs.Len())
	}
	entry := logs.All()[0]
	if entry.Message != "HoldingsWorker: refresh failed" {
		t.Errorf("message = %q", entry.Message)
	}
	fields := entry.ContextMap()
	if fields["attempt"] != int64(2) {
		t.Errorf("attempt = %v (%T), want 2", fields["attempt"], fields["attempt"])
	}
	if _, ok := fields["error"]; !ok {
		t.Error("error attribute missing")
	}
	if !log.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be enabled")
	}
}
