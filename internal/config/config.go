// Package config holds the daemon's typed runtime configuration: defaults,
// environment-variable overrides, validation, and a ConfigManager that
// serves the current config to every component and supports hot reload.
//
// Reading the config file itself off disk is an injectable collaborator
// (Loader) rather than something this package owns directly, so tests and
// the real binary can supply raw config text without the manager caring
// where it came from.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// ServerConfig controls the transport listeners.
type ServerConfig struct {
	Bind string `toml:"bind"`
}

// PollingConfig controls the collectors' poll cadence.
type PollingConfig struct {
	SnapshotIntervalMS uint64 `toml:"snapshot-interval-ms"`
}

// CaptureConfig controls whether raw pane output is captured.
type CaptureConfig struct {
	CaptureOutput bool `toml:"capture-output"`
}

// SecurityConfig controls admin-token enforcement.
type SecurityConfig struct {
	AdminTokenPath string `toml:"admin-token-path"`
}

// PrivacyConfig controls redaction behavior.
type PrivacyConfig struct {
	RedactionPatterns []string `toml:"redaction-patterns"`
}

// LoggingConfig controls the level, encoding, and destination of daemon
// logs. File empty means stdout; otherwise logs rotate via MaxFileMB/MaxFiles.
type LoggingConfig struct {
	Level     string `toml:"level"`
	Format    string `toml:"format"`
	File      string `toml:"file"`
	MaxFileMB uint64 `toml:"max-file-mb"`
	MaxFiles  int    `toml:"max-files"`
}

// DaemonConfig is the full set of typed daemon configuration.
type DaemonConfig struct {
	Server   ServerConfig   `toml:"server"`
	Polling  PollingConfig  `toml:"polling"`
	Capture  CaptureConfig  `toml:"capture"`
	Security SecurityConfig `toml:"security"`
	Privacy  PrivacyConfig  `toml:"privacy"`
	Logging  LoggingConfig  `toml:"logging"`
}

// Default returns the daemon's built-in configuration defaults.
func Default() DaemonConfig {
	return DaemonConfig{
		Server:  ServerConfig{Bind: "127.0.0.1:3847"},
		Polling: PollingConfig{SnapshotIntervalMS: 2000},
		Logging: LoggingConfig{Level: "info", Format: "text", MaxFileMB: 10, MaxFiles: 5},
	}
}

// FromTOMLString parses raw TOML text into a DaemonConfig, starting from
// Default() so any field absent from raw keeps its default value.
func FromTOMLString(raw string) (DaemonConfig, error) {
	cfg := Default()
	if _, err := toml.Decode(raw, &cfg); err != nil {
		return DaemonConfig{}, fmt.Errorf("TOML parse error: %w", err)
	}
	return cfg, nil
}

// ApplyEnvOverrides mutates cfg in place from NTM_TRACKER_* environment
// variables, matching the daemon's documented override surface.
func (cfg *DaemonConfig) ApplyEnvOverrides() {
	if bind := strings.TrimSpace(os.Getenv("NTM_TRACKER_SERVER_BIND")); bind != "" {
		cfg.Server.Bind = bind
	}
	if interval := os.Getenv("NTM_TRACKER_POLLING_SNAPSHOT_INTERVAL_MS"); interval != "" {
		if parsed, err := strconv.ParseUint(interval, 10, 64); err == nil {
			cfg.Polling.SnapshotIntervalMS = parsed
		}
	}
	if capture := strings.ToLower(strings.TrimSpace(os.Getenv("NTM_TRACKER_CAPTURE_OUTPUT"))); capture != "" {
		switch capture {
		case "1", "true", "yes", "on":
			cfg.Capture.CaptureOutput = true
		default:
			cfg.Capture.CaptureOutput = false
		}
	}
	if patterns := os.Getenv("NTM_TRACKER_PRIVACY_REDACTION_PATTERNS"); patterns != "" {
		var parsed []string
		for _, p := range strings.Split(patterns, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				parsed = append(parsed, p)
			}
		}
		if len(parsed) > 0 {
			cfg.Privacy.RedactionPatterns = parsed
		}
	}
	if path := strings.TrimSpace(os.Getenv("NTM_TRACKER_SECURITY_ADMIN_TOKEN_PATH")); path != "" {
		cfg.Security.AdminTokenPath = path
	}
	if level := strings.TrimSpace(os.Getenv("NTM_TRACKER_LOGGING_LEVEL")); level != "" {
		cfg.Logging.Level = level
	}
	if format := strings.TrimSpace(os.Getenv("NTM_TRACKER_LOGGING_FORMAT")); format != "" {
		cfg.Logging.Format = format
	}
	if file := strings.TrimSpace(os.Getenv("NTM_TRACKER_LOGGING_FILE")); file != "" {
		cfg.Logging.File = file
	}
}

// Validate checks cfg for internally-inconsistent or dangerous settings.
func (cfg DaemonConfig) Validate() error {
	if cfg.Polling.SnapshotIntervalMS < 250 {
		return fmt.Errorf("polling.snapshot-interval-ms must be >= 250")
	}
	if cfg.Polling.SnapshotIntervalMS > 60_000 {
		return fmt.Errorf("polling.snapshot-interval-ms must be <= 60000")
	}
	for _, pattern := range cfg.Privacy.RedactionPatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("invalid redaction regex %q: %w", pattern, err)
		}
	}
	if cfg.Security.AdminTokenPath != "" {
		if err := validateTokenFilePermissions(cfg.Security.AdminTokenPath); err != nil {
			return err
		}
	}
	return nil
}

func validateTokenFilePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("unable to stat token file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("admin token path is not a file")
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		return fmt.Errorf("admin token file permissions must be 0600 (got %o)", mode)
	}
	return nil
}

// Loader reads raw config text for a given path. Injected so Manager never
// needs to know whether the text came from disk, a test fixture, or
// anywhere else.
type Loader func(path string) (string, error)

// ReadFileLoader is the Loader used by the real binary: plain os.ReadFile.
func ReadFileLoader(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Manager holds the daemon's current configuration behind a read-write
// lock, serving clones to readers and atomically swapping in a new config
// on Reload.
type Manager struct {
	mu     sync.RWMutex
	path   string
	loader Loader
	config DaemonConfig
}

// NewManager builds a Manager holding only the built-in defaults, with no
// backing file. Reload on a path-less Manager is a no-op that returns the
// current config unchanged.
func NewManager() *Manager {
	return &Manager{config: Default()}
}

// LoadFromFS resolves a config path (an explicit override, or the usual
// XDG/HOME/etc search), reads it via loader, and builds a Manager from the
// result. A nil loader defaults to ReadFileLoader. No config file found
// along the search path is not an error: the Manager falls back to defaults.
func LoadFromFS(pathOverride string, loader Loader) (*Manager, error) {
	if loader == nil {
		loader = ReadFileLoader
	}
	path := resolveConfigPath(pathOverride)

	cfg := Default()
	if path != "" {
		raw, err := loader(path)
		if err != nil {
			return nil, fmt.Errorf("unable to read config %q: %w", path, err)
		}
		cfg, err = FromTOMLString(raw)
		if err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Manager{path: path, loader: loader, config: cfg}, nil
}

// Current returns a copy of the presently-active configuration.
func (m *Manager) Current() DaemonConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Reload re-reads the backing file (if any), applies env overrides, and
// validates before swapping the config in. On any error the previously
// active config is left untouched.
func (m *Manager) Reload() (DaemonConfig, error) {
	m.mu.RLock()
	path, loader := m.path, m.loader
	m.mu.RUnlock()

	if path == "" {
		// Nothing to reload: running on defaults only.
		return m.Current(), nil
	}

	raw, err := loader(path)
	if err != nil {
		return DaemonConfig{}, fmt.Errorf("unable to read config %q: %w", path, err)
	}
	cfg, err := FromTOMLString(raw)
	if err != nil {
		return DaemonConfig{}, err
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return DaemonConfig{}, err
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()

	return cfg, nil
}

// ConfigPath returns the path the Manager was loaded from, or "" when
// running on defaults only.
func (m *Manager) ConfigPath() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.path
}

// resolveConfigPath follows the documented search order: an
// explicit override first, then XDG_CONFIG_HOME (HOME/.config only when
// XDG_CONFIG_HOME is unset), then /etc, returning the first candidate that
// exists on disk.
func resolveConfigPath(override string) string {
	if override != "" {
		return override
	}

	var candidates []string
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		candidates = append(candidates, filepath.Join(xdg, "ntm-tracker", "daemon.toml"))
	} else if home := strings.TrimSpace(os.Getenv("HOME")); home != "" {
		candidates = append(candidates, filepath.Join(home, ".config", "ntm-tracker", "daemon.toml"))
	}
	candidates = append(candidates, filepath.Join("/etc", "ntm-tracker", "daemon.toml"))

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}
