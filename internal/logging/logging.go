// Package logging builds the daemon's one structured logger from its
// LoggingConfig: a level- and format-configurable log/slog.Logger built
// once at bootstrap and threaded through every component rather than
// constructed per package.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"agentwatch/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds a *slog.Logger from cfg: level and encoding are configurable,
// and an empty File writes to stdout. A non-empty File rotates via
// lumberjack once it exceeds MaxFileMB, keeping MaxFiles old generations.
func New(cfg config.LoggingConfig) *slog.Logger {
	return slog.New(handlerFor(cfg))
}

func handlerFor(cfg config.LoggingConfig) slog.Handler {
	out := writer(cfg)
	opts := &slog.HandlerOptions{Level: level(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.NewJSONHandler(out, opts)
	}
	return slog.NewTextHandler(out, opts)
}

func writer(cfg config.LoggingConfig) io.Writer {
	if cfg.File == "" {
		return os.Stdout
	}
	maxFiles := cfg.MaxFiles
	if maxFiles <= 0 {
		maxFiles = 5
	}
	maxMB := cfg.MaxFileMB
	if maxMB == 0 {
		maxMB = 10
	}
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    int(maxMB),
		MaxBackups: maxFiles,
	}
}

func level(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace", "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
