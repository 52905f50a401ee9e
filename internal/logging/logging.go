// Package logging installs the process-wide slog logger backed by zap.
package logging

import (
	"fmt"
	"log/slog"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// Setup builds a zap logger for level ("debug", "info", "warn", "error") and format ("json" or
// "console"), installs it as the slog default and returns a flush function for shutdown.
func Setup(level, format string) (func(), error) {
	logger, err := newLogger(level, format)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(slog.New(newHandler(logger.Core())))
	return func() { _ = logger.Sync() }, nil
}

func newLogger(level, format string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("parsing log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch format {
	case "json":
		cfg = zap.NewProductionConfig()
	case "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}

func newHandler(core zapcore.Core) slog.Handler {
	return zapslog.NewHandler(core, zapslog.WithName("livefolio"), zapslog.WithCaller(true))
}
