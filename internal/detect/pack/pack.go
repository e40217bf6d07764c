// Package pack loads the configurable detection pattern pack: the set of
// compact, escalation, and prompt regexes detectors match against. A default
// pack is embedded at build time; an optional override on disk replaces it
// and can be hot-reloaded without restarting the daemon.
package pack

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

//go:embed data/default_detectors.toml
var defaultPackTOML string

// CompactPattern is a compiled pattern used by the compact detector.
type CompactPattern struct {
	Regex            *regexp.Regexp
	Confidence       float32
	Category         string
	Reason           string
	Source           string
	OriginalPattern  string
}

// EscalationPattern is a compiled pattern used by the escalation detector.
type EscalationPattern struct {
	Regex           *regexp.Regexp
	Severity        string
	Confidence      float32
	RequiresPrompt  bool
	Source          string
	OriginalPattern string
}

// Pack is a fully loaded, compiled detector pack.
type Pack struct {
	Version          string
	MinDaemonVersion string
	Description      string
	CompactPatterns  []CompactPattern
	EscalationPatterns []EscalationPattern
	PromptPatterns   []*regexp.Regexp
	SourcePath       string
}

type rawPack struct {
	Pack              rawMeta               `toml:"pack"`
	CompactPatterns   []rawCompactPattern   `toml:"compact_patterns"`
	EscalationPatterns []rawEscalationPattern `toml:"escalation_patterns"`
	PromptPatterns    []rawPromptPattern    `toml:"prompt_patterns"`
}

type rawMeta struct {
	Version          string `toml:"version"`
	MinDaemonVersion string `toml:"min_daemon_version"`
	Description      string `toml:"description"`
}

type rawCompactPattern struct {
	Pattern    string  `toml:"pattern"`
	Flags      string  `toml:"flags"`
	Confidence float32 `toml:"confidence"`
	Category   string  `toml:"category"`
	Reason     string  `toml:"reason"`
	Source     string  `toml:"source"`
}

type rawEscalationPattern struct {
	Pattern        string  `toml:"pattern"`
	Flags          string  `toml:"flags"`
	Severity       string  `toml:"severity"`
	Confidence     float32 `toml:"confidence"`
	RequiresPrompt bool    `toml:"requires_prompt"`
	Source         string  `toml:"source"`
}

type rawPromptPattern struct {
	Pattern     string `toml:"pattern"`
	Flags       string `toml:"flags"`
	Description string `toml:"description"`
}

// LoadErrorKind labels a pack load failure.
type LoadErrorKind int

const (
	ErrParse LoadErrorKind = iota
	ErrIO
	ErrVersionMismatch
)

// LoadError describes why a pack failed to load outright (an individual
// invalid pattern is skipped instead and reported in LoadResult.Skipped).
type LoadError struct {
	Kind     LoadErrorKind
	Required string
	Current  string
	Err      error
}

func (e *LoadError) Error() string {
	switch e.Kind {
	case ErrParse:
		return fmt.Sprintf("parse detector pack: %v", e.Err)
	case ErrIO:
		return fmt.Sprintf("read detector pack: %v", e.Err)
	case ErrVersionMismatch:
		return fmt.Sprintf("pack requires daemon %s, current is %s", e.Required, e.Current)
	default:
		return "detector pack load error"
	}
}

func (e *LoadError) Unwrap() error { return e.Err }

// SkippedPattern records a pattern dropped during load because it failed to
// compile. Callers should log these rather than fail the whole load.
type SkippedPattern struct {
	Pattern string
	Reason  string
}

// LoadResult pairs a loaded pack with any patterns skipped along the way.
type LoadResult struct {
	Pack     Pack
	Skipped  []SkippedPattern
}

// LoadDefault loads the embedded default pack.
func LoadDefault(currentVersion string) (LoadResult, error) {
	return fromTOML(defaultPackTOML, "", currentVersion)
}

// LoadFromFile loads and compiles a pack from an on-disk TOML file.
func LoadFromFile(path, currentVersion string) (LoadResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return LoadResult{}, &LoadError{Kind: ErrIO, Err: err}
	}
	return fromTOML(string(content), path, currentVersion)
}

// LoadWithOverride loads the pack at configDir/detectors.toml if it exists,
// otherwise falls back to the embedded default.
func LoadWithOverride(configDir, currentVersion string) (LoadResult, error) {
	if configDir != "" {
		candidate := filepath.Join(configDir, "detectors.toml")
		if _, err := os.Stat(candidate); err == nil {
			return LoadFromFile(candidate, currentVersion)
		}
	}
	return LoadDefault(currentVersion)
}

func fromTOML(content, sourcePath, currentVersion string) (LoadResult, error) {
	var raw rawPack
	if _, err := toml.Decode(content, &raw); err != nil {
		return LoadResult{}, &LoadError{Kind: ErrParse, Err: err}
	}

	if raw.Pack.MinDaemonVersion != "" && currentVersion != "" {
		if !versionCompatible(raw.Pack.MinDaemonVersion, currentVersion) {
			return LoadResult{}, &LoadError{
				Kind:     ErrVersionMismatch,
				Required: raw.Pack.MinDaemonVersion,
				Current:  currentVersion,
			}
		}
	}

	var skipped []SkippedPattern

	compactPatterns := make([]CompactPattern, 0, len(raw.CompactPatterns))
	for _, rp := range raw.CompactPatterns {
		re, err := compilePattern(rp.Pattern, rp.Flags)
		if err != nil {
			skipped = append(skipped, SkippedPattern{Pattern: rp.Pattern, Reason: err.Error()})
			continue
		}
		confidence := rp.Confidence
		if confidence == 0 {
			confidence = 0.8
		}
		category := rp.Category
		if category == "" {
			category = "hard"
		}
		compactPatterns = append(compactPatterns, CompactPattern{
			Regex:           re,
			Confidence:      confidence,
			Category:        category,
			Reason:          rp.Reason,
			Source:          rp.Source,
			OriginalPattern: rp.Pattern,
		})
	}

	escalationPatterns := make([]EscalationPattern, 0, len(raw.EscalationPatterns))
	for _, rp := range raw.EscalationPatterns {
		re, err := compilePattern(rp.Pattern, rp.Flags)
		if err != nil {
			skipped = append(skipped, SkippedPattern{Pattern: rp.Pattern, Reason: err.Error()})
			continue
		}
		confidence := rp.Confidence
		if confidence == 0 {
			confidence = 0.8
		}
		severity := rp.Severity
		if severity == "" {
			severity = "warn"
		}
		escalationPatterns = append(escalationPatterns, EscalationPattern{
			Regex:           re,
			Severity:        severity,
			Confidence:      confidence,
			RequiresPrompt:  rp.RequiresPrompt,
			Source:          rp.Source,
			OriginalPattern: rp.Pattern,
		})
	}

	promptPatterns := make([]*regexp.Regexp, 0, len(raw.PromptPatterns))
	for _, rp := range raw.PromptPatterns {
		re, err := compilePattern(rp.Pattern, rp.Flags)
		if err != nil {
			skipped = append(skipped, SkippedPattern{Pattern: rp.Pattern, Reason: err.Error()})
			continue
		}
		promptPatterns = append(promptPatterns, re)
	}

	return LoadResult{
		Pack: Pack{
			Version:            raw.Pack.Version,
			MinDaemonVersion:   raw.Pack.MinDaemonVersion,
			Description:        raw.Pack.Description,
			CompactPatterns:    compactPatterns,
			EscalationPatterns: escalationPatterns,
			PromptPatterns:     promptPatterns,
			SourcePath:         sourcePath,
		},
		Skipped: skipped,
	}, nil
}

func compilePattern(pattern, flags string) (*regexp.Regexp, error) {
	if strings.Contains(flags, "i") {
		pattern = "(?i)" + pattern
	}
	return regexp.Compile(pattern)
}

// IsPrompt reports whether line matches any configured prompt pattern.
func (p *Pack) IsPrompt(line string) bool {
	for _, re := range p.PromptPatterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// MatchCompact returns the first matching compact pattern, if any.
func (p *Pack) MatchCompact(line string) *CompactPattern {
	for i := range p.CompactPatterns {
		if p.CompactPatterns[i].Regex.MatchString(line) {
			return &p.CompactPatterns[i]
		}
	}
	return nil
}

// MatchEscalation returns the first matching escalation pattern, if any.
func (p *Pack) MatchEscalation(line string) *EscalationPattern {
	for i := range p.EscalationPatterns {
		if p.EscalationPatterns[i].Regex.MatchString(line) {
			return &p.EscalationPatterns[i]
		}
	}
	return nil
}

func versionCompatible(required, current string) bool {
	req, ok1 := parseVersion(required)
	cur, ok2 := parseVersion(current)
	if !ok1 || !ok2 {
		return true
	}
	for i := 0; i < 3; i++ {
		if cur[i] > req[i] {
			return true
		}
		if cur[i] < req[i] {
			return false
		}
	}
	return true
}

func parseVersion(v string) ([3]int, bool) {
	var out [3]int
	parts := strings.Split(v, ".")
	if len(parts) == 0 || len(parts) > 3 {
		return out, false
	}
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return out, false
		}
		out[i] = n
	}
	return out, true
}

// Holder is a thread-safe pack holder supporting hot reload.
type Holder struct {
	mu   sync.RWMutex
	pack Pack
}

// NewHolder builds a holder seeded with the given pack.
func NewHolder(p Pack) *Holder {
	return &Holder{pack: p}
}

// Get returns a snapshot of the current pack. The returned value shares no
// mutable state with the holder: reloading afterward cannot race readers.
func (h *Holder) Get() Pack {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.pack
}

// Set replaces the held pack, e.g. after a successful reload.
func (h *Holder) Set(p Pack) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pack = p
}

var errEmptyPath = errors.New("pack: empty path")

// ReloadFrom reloads the holder's pack from the given file path.
func (h *Holder) ReloadFrom(path, currentVersion string) error {
	if path == "" {
		return errEmptyPath
	}
	result, err := LoadFromFile(path, currentVersion)
	if err != nil {
		return err
	}
	h.Set(result.Pack)
	return nil
}
