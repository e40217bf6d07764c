package daemon

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func isolatedEnv(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
}

func TestBuildWithNoSingleInstanceSkipsLock(t *testing.T) {
	isolatedEnv(t)

	app, err := Build(Options{
		PipePath:         filepath.Join(t.TempDir(), "agentwatchd.sock"),
		WSPort:           0,
		HTTPPort:         0,
		NoSingleInstance: true,
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if app.lock != nil {
		t.Fatal("expected no lock when NoSingleInstance is set")
	}
	if app.wsServer != nil {
		t.Fatal("expected ws server to be nil when WSPort is 0")
	}
	if app.httpServer != nil {
		t.Fatal("expected http server to be nil when HTTPPort is 0")
	}
}

func TestStartAndShutdownRoundTrip(t *testing.T) {
	isolatedEnv(t)

	app, err := Build(Options{
		PipePath:         filepath.Join(t.TempDir(), "agentwatchd.sock"),
		WSPort:           0,
		HTTPPort:         0,
		NoSingleInstance: true,
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if app.pipeServer.Path() == "" {
		t.Fatal("expected pipe server to have a listen path")
	}

	if err := app.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}

func TestReadAdminTokenMissingFileReturnsEmpty(t *testing.T) {
	got := readAdminToken(filepath.Join(t.TempDir(), "missing-token"), noopLogger())
	if got != "" {
		t.Fatalf("expected empty token for missing file, got %q", got)
	}
}

func TestReadAdminTokenTrimsWhitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("  secret-token\n"), 0o600); err != nil {
		t.Fatalf("write token file: %v", err)
	}
	got := readAdminToken(path, noopLogger())
	if got != "secret-token" {
		t.Fatalf("expected trimmed token, got %q", got)
	}
}
