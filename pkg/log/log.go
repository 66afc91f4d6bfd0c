// Package log configures the process-wide slog logger.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(logLevel string) slog.Level {
	switch strings.ToLower(logLevel) {
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

// Setup installs a text handler on stderr as the default logger.
func Setup(logLevel string) {
	slog.SetDefault(New(os.Stderr, logLevel))
}

// New creates a text logger writing to w.
func New(w io.Writer, logLevel string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(logLevel),
	}))
}

func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
