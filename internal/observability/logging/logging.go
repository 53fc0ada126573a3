// Package logging builds the engine-wide slog JSON logger. Every sweep
// worker logs through a child logger tagged with its name so one service's
// output can be filtered per background pass.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config names the service identity stamped on every line and the minimum
// level. Output is overridable for tests; nil means stdout.
type Config struct {
	ServiceName string
	Environment string
	Level       string
	Output      io.Writer
}

// NewLogger returns a JSON logger at the configured level with the service
// identity attached.
func NewLogger(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
	})

	logger := slog.New(handler)
	if cfg.ServiceName != "" {
		logger = logger.With(slog.String("service", cfg.ServiceName))
	}
	if cfg.Environment != "" {
		logger = logger.With(slog.String("env", cfg.Environment))
	}
	return logger
}

// ParseLevel maps a LOG_LEVEL string to a slog level. Unknown strings fall
// back to info so a typo in the environment never silences the engine.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Worker returns a child logger for one background pass (retry, scheduled,
// progress, weekly-report, weekly-reminder).
func Worker(base *slog.Logger, name string) *slog.Logger {
	return base.With(slog.String("worker", name))
}
