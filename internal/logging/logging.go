// Package logging provides structured logging for the strata storage
// engine.
//
// It wraps the standard library's log/slog package so every component
// logs through the same handler. It supports text and JSON output,
// configurable levels, and component-scoped loggers.
//
// Usage:
//
//	logging.Init(slog.LevelInfo, false) // Text format
//	log := logging.Component("tiered")
//	log.Warn("tier read failed", "tier", tier, "key", key, "error", err)
package logging

import (
	"log/slog"
	"os"
)

// Logger is the global logger instance.
var Logger *slog.Logger

// Init initializes the global logger with the specified level and format.
// If jsonFormat is true, logs are output as JSON; otherwise, human-readable text.
func Init(level slog.Level, jsonFormat bool) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if jsonFormat {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// InitWithHandler initializes the global logger with a custom handler.
// Useful for tests or custom output destinations.
func InitWithHandler(handler slog.Handler) {
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// Component returns a logger scoped to a named component. The component
// name is included in every log entry from the returned logger.
func Component(name string) *slog.Logger {
	if Logger == nil {
		return slog.Default().With("component", name)
	}
	return Logger.With("component", name)
}

// With returns a new logger with additional attributes.
func With(args ...any) *slog.Logger {
	if Logger == nil {
		return slog.Default().With(args...)
	}
	return Logger.With(args...)
}
