package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns the JSON logger every syshub process writes to stdout.
func NewLogger(level string, serviceName string, env string) *slog.Logger {
	return New(os.Stdout, level, serviceName, env)
}

func New(w io.Writer, level string, serviceName string, env string) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return slog.New(h).With(
		slog.String("service", serviceName),
		slog.String("env", env),
	)
}

// Discard is used by tests and by tools that must stay quiet.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

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
