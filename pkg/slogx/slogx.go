// Package slogx configures log/slog for the service and carries
// request-scoped loggers through contexts.
package slogx

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

type Config struct {
	Service string
	Version string
	Env     string // "dev", "test", "prod"
	Level   string // "debug", "info", "warn", "error"
	Format  string // "json" or "text"

	// Output defaults to stdout.
	Output io.Writer

	// Levels, when set, is used as the handler level so it can be changed
	// while the process runs. It is initialised from Level.
	Levels *slog.LevelVar
}

// New builds the service logger and installs it as the slog default.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	var level slog.Leveler = ParseLevel(cfg.Level)
	if cfg.Levels != nil {
		cfg.Levels.Set(ParseLevel(cfg.Level))
		level = cfg.Levels
	}

	opts := &slog.HandlerOptions{
		AddSource: cfg.Env == "dev",
		Level:     level,
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	logger := slog.New(handler).With(
		"service", cfg.Service,
		"version", cfg.Version,
		"env", cfg.Env,
	)

	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(lvl string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
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
