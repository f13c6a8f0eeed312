// Package logging builds the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Format values accepted by New
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// New returns a logger writing to w. An empty format picks the console
// handler for development and JSON everywhere else.
func New(w io.Writer, environment, level, format string) *slog.Logger {
	if format == "" {
		format = FormatJSON
		if environment == "development" {
			format = FormatConsole
		}
	}

	lvl := ParseLevel(level)
	var handler slog.Handler
	switch strings.ToLower(format) {
	case FormatConsole:
		handler = tint.NewHandler(w, &tint.Options{
			Level:      lvl,
			TimeFormat: time.TimeOnly,
		})
	default:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	}
	return slog.New(handler)
}

// Setup builds the logger and installs it as slog's default
func Setup(w io.Writer, environment, level, format string) *slog.Logger {
	logger := New(w, environment, level, format)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps debug/info/warn/error to a slog level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
