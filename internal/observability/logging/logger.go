package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewJSONLogger writes JSON records tagged with the service name.
func NewJSONLogger(w io.Writer, service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return slog.New(handler).With("service", service)
}

// Install makes a stdout JSON logger the process default. The standard
// log package is routed through it as well.
func Install(service, level string) *slog.Logger {
	logger := NewJSONLogger(os.Stdout, service, level)
	slog.SetDefault(logger)
	return logger
}

// InstallStderr is Install for processes whose stdout carries a protocol.
func InstallStderr(service, level string) *slog.Logger {
	logger := NewJSONLogger(os.Stderr, service, level)
	slog.SetDefault(logger)
	return logger
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
