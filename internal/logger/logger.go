// Package logger provides the structured logger shared by Daffodil services.
// It wraps "log/slog" so every binary emits the same format (JSON or text)
// with the same identity attributes.
package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/rafaeljc/daffodil/internal/config"
)

// New creates a *slog.Logger from the application config, writing to os.Stdout.
func New(cfg *config.AppConfig) *slog.Logger {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter is New with an explicit destination. Useful for tests.
func NewWithWriter(cfg *config.AppConfig, w io.Writer) *slog.Logger {
	if cfg == nil {
		panic("logger: config cannot be nil")
	}

	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
		// file:line is useful while developing and too expensive in production
		AddSource: cfg.Environment != config.EnvironmentProduction,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With(
		slog.String("service", cfg.Name),
		slog.String("version", cfg.Version),
		slog.String("env", cfg.Environment),
	)
}

// Discard returns a logger that drops everything. Handy as a default in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// parseLevel converts a string to slog.Level. Defaults to INFO.
func parseLevel(s string) slog.Level {
	var level slog.Level
	// UnmarshalText is case insensitive (INFO, info, Info)
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
