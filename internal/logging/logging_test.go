package logging

import (
	"log/slog"
	"path/filepath"
	"testing"

	"agentwatch/internal/config"
)

func TestNewDefaultsToStdoutText(t *testing.T) {
	logger := New(config.LoggingConfig{Level: "info", Format: "text"})
	if logger == nil {
		t.Fatal("expected a non-nil logger")
	}
	if !logger.Enabled(nil, slog.LevelInfo) {
		t.Fatal("expected info level enabled")
	}
	if logger.Enabled(nil, slog.LevelDebug) {
		t.Fatal("expected debug level disabled at info")
	}
}

func TestNewDebugLevelEnablesDebug(t *testing.T) {
	logger := New(config.LoggingConfig{Level: "debug", Format: "text"})
	if !logger.Enabled(nil, slog.LevelDebug) {
		t.Fatal("expected debug level enabled")
	}
}

func TestNewWritesToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.log")
	logger := New(config.LoggingConfig{Level: "info", Format: "json", File: path, MaxFileMB: 1, MaxFiles: 2})
	logger.Info("hello", "key", "value")
}

func TestLevelParsing(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"debug":   slog.LevelDebug,
		"trace":   slog.LevelDebug,
		"bogus":   slog.LevelInfo,
	}
	for input, want := range cases {
		if got := level(input); got != want {
			t.Fatalf("level(%q) = %v, want %v", input, got, want)
		}
	}
}
