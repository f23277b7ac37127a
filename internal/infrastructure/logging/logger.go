package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/lumen-core/internal/infrastructure/config"
)

// serviceName tags every log line so aggregated streams from multiple
// local services stay separable.
const serviceName = "lumen"

// Logger is the process-wide structured logger. It embeds slog.Logger,
// so call sites use the familiar Info/Warn/Error/Debug with key-value
// pairs; it also satisfies the per-package Logger interfaces the rest of
// the codebase declares.
//
// Thread Safety: safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds the logger described by cfg. JSON is the default output
// format; "text" is friendlier when watching a terminal. The service
// name and version ride on every entry.
func New(cfg config.LoggingConfig, version string) *Logger {
	handler := newHandler(cfg).WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(handler)}
}

// With returns a child logger carrying extra default attributes. Used at
// wiring time to scope a component's log lines:
//
//	client.SetLogger(log.With("component", "bridge"))
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default is the logger used before configuration loads: JSON to stdout
// at info level, version "dev".
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}

func newHandler(cfg config.LoggingConfig) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.NewTextHandler(outputWriter(cfg.Output), opts)
	}
	return slog.NewJSONHandler(outputWriter(cfg.Output), opts)
}

func outputWriter(name string) io.Writer {
	if strings.EqualFold(name, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

// parseLevel maps a config level name to slog's levels. Unknown names
// fall back to info rather than failing startup.
func parseLevel(level string) slog.Level {
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
