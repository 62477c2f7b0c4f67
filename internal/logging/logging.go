// Package logging configures the process-wide structured logger.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// New builds a text logger on stdout at the named level. An unrecognized
// level string selects debug, so a misconfigured deployment logs everything
// rather than nothing.
func New(level string) *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: Level(level),
	})
	return slog.New(handler)
}

// Level maps a configuration string to its slog level.
func Level(value string) slog.Level {
	if lvl, ok := levelNames[strings.ToLower(strings.TrimSpace(value))]; ok {
		return lvl
	}
	return slog.LevelDebug
}
