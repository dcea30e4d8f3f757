// Package logger builds the structured slog loggers shared by every binary.
// Output is JSON or text depending on configuration, and each line carries the
// service identity so logs from the control plane, data plane and syncer can be
// told apart once aggregated.
package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/rafaeljc/discountrules/internal/config"
)

// New creates a logger writing to os.Stdout.
func New(cfg *config.AppConfig) *slog.Logger {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter creates a logger writing to w. Panics on a nil config because a
// service cannot start without knowing its own identity.
func NewWithWriter(cfg *config.AppConfig, w io.Writer) *slog.Logger {
	if cfg == nil {
		panic("logger: config cannot be nil")
	}

	opts := &slog.HandlerOptions{
		Level: ParseLevel(cfg.LogLevel),
		// file:line is useful while developing and too costly in production
		AddSource: cfg.Environment != config.EnvironmentProduction,
	}

	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With(
		slog.String("service", cfg.Name),
		slog.String("version", cfg.Version),
		slog.String("env", cfg.Environment),
	)
}

// Discard returns a logger that drops every record. Meant for tests and for
// components constructed without a logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// ParseLevel converts a level name (case-insensitive) to slog.Level, defaulting to INFO.
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
