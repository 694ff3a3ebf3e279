// Package observability configures structured logging for the simulator.
package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Channel separates routine engine logs from the audit trail
type Channel string

const (
	ChannelSystem Channel = "system"
	ChannelAudit  Channel = "audit"
	ChannelApp    Channel = "app"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

// Options controls the process-wide logger
type Options struct {
	Format string // "text" or "json"
	Level  string // debug, info, warn, error
	Output io.Writer
}

// Setup replaces the default logger and returns it
func Setup(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	var h slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		h = slog.NewJSONHandler(out, handlerOpts)
	} else {
		h = slog.NewTextHandler(out, handlerOpts)
	}

	logger = slog.New(h)
	return logger
}

// Logger returns the process-wide logger
func Logger() *slog.Logger {
	return logger
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// For returns l tagged with a channel, falling back to the global logger
func For(l *slog.Logger, ch Channel) *slog.Logger {
	if l == nil {
		l = logger
	}
	return l.With("channel", string(ch))
}

// ParseLevel maps a config string onto a slog level, defaulting to info
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
