package config

import (
	"errors"
	"strings"
	"testing"
)

func TestDefaultsParseAndValidate(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestTOMLMissingFieldsUseDefaults(t *testing.T) {
	cfg, err := FromTOMLString("[capture]\ncapture-output = true\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg.ApplyEnvOverrides()
	if !cfg.Capture.CaptureOutput {
		t.Fatal("expected capture-output true")
	}
	if cfg.Server.Bind != "127.0.0.1:3847" {
		t.Fatalf("expected default bind, got %q", cfg.Server.Bind)
	}
}

func TestInvalidRedactionRegexFailsValidation(t *testing.T) {
	cfg := Default()
	cfg.Privacy.RedactionPatterns = []string{"[unclosed"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "invalid redaction regex") {
		t.Fatalf("expected redaction regex error, got %v", err)
	}
}

func TestPollingIntervalBelowMinimumFailsValidation(t *testing.T) {
	cfg := Default()
	cfg.Polling.SnapshotIntervalMS = 100
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for interval below minimum")
	}
}

func TestPollingIntervalAboveMaximumFailsValidation(t *testing.T) {
	cfg := Default()
	cfg.Polling.SnapshotIntervalMS = 70_000
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for interval above maximum")
	}
}

func TestApplyEnvOverridesServerBind(t *testing.T) {
	t.Setenv("NTM_TRACKER_SERVER_BIND", "0.0.0.0:9000")
	cfg := Default()
	cfg.ApplyEnvOverrides()
	if cfg.Server.Bind != "0.0.0.0:9000" {
		t.Fatalf("expected overridden bind, got %q", cfg.Server.Bind)
	}
}

func TestApplyEnvOverridesPollingInterval(t *testing.T) {
	t.Setenv("NTM_TRACKER_POLLING_SNAPSHOT_INTERVAL_MS", "5000")
	cfg := Default()
	cfg.ApplyEnvOverrides()
	if cfg.Polling.SnapshotIntervalMS != 5000 {
		t.Fatalf("expected overridden interval, got %d", cfg.Polling.SnapshotIntervalMS)
	}
}

func TestApplyEnvOverridesCaptureOutput(t *testing.T) {
	t.Setenv("NTM_TRACKER_CAPTURE_OUTPUT", "true")
	cfg := Default()
	cfg.ApplyEnvOverrides()
	if !cfg.Capture.CaptureOutput {
		t.Fatal("expected capture output enabled")
	}
}

func TestApplyEnvOverridesRedactionPatterns(t *testing.T) {
	t.Setenv("NTM_TRACKER_PRIVACY_REDACTION_PATTERNS", "foo, bar ,")
	cfg := Default()
	cfg.ApplyEnvOverrides()
	if len(cfg.Privacy.RedactionPatterns) != 2 || cfg.Privacy.RedactionPatterns[0] != "foo" || cfg.Privacy.RedactionPatterns[1] != "bar" {
		t.Fatalf("expected [foo bar], got %v", cfg.Privacy.RedactionPatterns)
	}
}

func TestManagerCurrentReturnsDefaultsWithoutFile(t *testing.T) {
	m := NewManager()
	if m.Current().Server.Bind != "127.0.0.1:3847" {
		t.Fatal("expected default bind from a file-less manager")
	}
}

func TestManagerReloadWithoutPathIsNoop(t *testing.T) {
	m := NewManager()
	cfg, err := m.Reload()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cfg.Server.Bind != m.Current().Server.Bind {
		t.Fatal("expected reload on a file-less manager to return the current config")
	}
}

func TestLoadFromFSUsesInjectedLoader(t *testing.T) {
	loader := func(path string) (string, error) {
		if path != "/tmp/daemon.toml" {
			t.Fatalf("unexpected path %q", path)
		}
		return "[server]\nbind = \"127.0.0.1:9999\"\n", nil
	}
	m, err := LoadFromFS("/tmp/daemon.toml", loader)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.Current().Server.Bind != "127.0.0.1:9999" {
		t.Fatalf("expected overridden bind, got %q", m.Current().Server.Bind)
	}
	if m.ConfigPath() != "/tmp/daemon.toml" {
		t.Fatalf("expected config path recorded, got %q", m.ConfigPath())
	}
}

func TestLoadFromFSPropagatesLoaderError(t *testing.T) {
	boom := errors.New("boom")
	loader := func(path string) (string, error) { return "", boom }
	if _, err := LoadFromFS("/tmp/daemon.toml", loader); err == nil {
		t.Fatal("expected loader error to propagate")
	}
}

func TestLoadFromFSPropagatesValidationError(t *testing.T) {
	loader := func(path string) (string, error) {
		return "[polling]\nsnapshot-interval-ms = 1\n", nil
	}
	if _, err := LoadFromFS("/tmp/daemon.toml", loader); err == nil {
		t.Fatal("expected validation error to propagate")
	}
}

func TestReloadSwapsInNewConfig(t *testing.T) {
	bind := "127.0.0.1:1111"
	loader := func(path string) (string, error) {
		return "[server]\nbind = \"" + bind + "\"\n", nil
	}
	m, err := LoadFromFS("/tmp/daemon.toml", loader)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	bind = "127.0.0.1:2222"
	cfg, err := m.Reload()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cfg.Server.Bind != "127.0.0.1:2222" || m.Current().Server.Bind != "127.0.0.1:2222" {
		t.Fatalf("expected reloaded bind to take effect, got %q", m.Current().Server.Bind)
	}
}

func TestReloadOnFailureKeepsPreviousConfig(t *testing.T) {
	good := true
	loader := func(path string) (string, error) {
		if good {
			return "[server]\nbind = \"127.0.0.1:3333\"\n", nil
		}
		return "[polling]\nsnapshot-interval-ms = 1\n", nil
	}
	m, err := LoadFromFS("/tmp/daemon.toml", loader)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	good = false
	if _, err := m.Reload(); err == nil {
		t.Fatal("expected reload to fail validation")
	}
	if m.Current().Server.Bind != "127.0.0.1:3333" {
		t.Fatalf("expected previous config preserved after failed reload, got %q", m.Current().Server.Bind)
	}
}
