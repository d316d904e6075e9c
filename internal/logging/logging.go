// Package logging builds the daemon's slog logger from settings.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sweeney/reptile-core/internal/settings"
)

// New returns a logger writing to cfg.Output in cfg.Format at cfg.Level,
// tagged with the service name and version.
func New(cfg settings.LoggingConfig, version string) *slog.Logger {
	return newWithWriter(cfg, version, output(cfg.Output))
}

func newWithWriter(cfg settings.LoggingConfig, version string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "reptile-core"),
		slog.String("version", version),
	})
	return slog.New(handler)
}

func output(name string) io.Writer {
	if strings.ToLower(name) == "stderr" {
		return os.Stderr
	}
	return os.Stdout
}

// ParseLevel maps debug, info, warn and error to slog levels.
// Anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
