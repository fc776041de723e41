// Package logger configures the process-wide structured logger.
package logger

import (
	"io"
	"log/slog"
	"strings"
)

// Setup builds a JSON logger at the given level and installs it as the slog default.
// Unknown levels fall back to info.
func Setup(w io.Writer, level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: l}))
	slog.SetDefault(logger)
	return logger
}
