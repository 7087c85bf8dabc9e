package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New builds the process logger on stdout. See NewWithWriter.
func New(service, level, format string) *slog.Logger {
	return NewWithWriter(os.Stdout, service, level, format)
}

// NewWithWriter builds a logger tagged with service. format "text" selects the
// human-readable handler; anything else logs JSON lines.
func NewWithWriter(w io.Writer, service, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler).With("service", service)
}

func parseLevel(level string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		if strings.EqualFold(strings.TrimSpace(level), "warning") {
			return slog.LevelWarn
		}
		return slog.LevelInfo
	}
	return lvl
}
