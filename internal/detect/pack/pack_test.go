package pack

import "testing"

func TestLoadDefaultPack(t *testing.T) {
	result, err := LoadDefault("1.0.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Pack.Version != "1.0.0" {
		t.Fatalf("unexpected version: %s", result.Pack.Version)
	}
	if len(result.Pack.CompactPatterns) == 0 || len(result.Pack.EscalationPatterns) == 0 {
		t.Fatal("expected non-empty default patterns")
	}
}

func TestMatchCompactCaseInsensitive(t *testing.T) {
	result, err := LoadDefault("1.0.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := result.Pack
	matched := p.MatchCompact("AUTO-COMPACTING CONVERSATION NOW")
	if matched == nil {
		t.Fatal("expected a match")
	}
	if matched.Reason != "auto_compacting" {
		t.Fatalf("unexpected reason: %s", matched.Reason)
	}
}

func TestMatchEscalation(t *testing.T) {
	result, err := LoadDefault("1.0.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	matched := result.Pack.MatchEscalation("fatal error occurred")
	if matched == nil || matched.Severity != "error" {
		t.Fatalf("unexpected match: %+v", matched)
	}
}

func TestIsPrompt(t *testing.T) {
	result, err := LoadDefault("1.0.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := result.Pack
	cases := []struct {
		line string
		want bool
	}{
		{"Continue? (y/n)", true},
		{"user@host:~$ ", true},
		{"What next? > ", true},
		{"Press enter to continue", true},
		{"just some text", false},
	}
	for _, c := range cases {
		if got := p.IsPrompt(c.line); got != c.want {
			t.Errorf("IsPrompt(%q) = %v, want %v", c.line, got, c.want)
		}
	}
}

func TestVersionCompatibility(t *testing.T) {
	cases := []struct {
		required, current string
		want               bool
	}{
		{"0.1.0", "0.1.0", true},
		{"0.1.0", "0.2.0", true},
		{"0.1.0", "1.0.0", true},
		{"1.0.0", "0.9.0", false},
		{"0.2.0", "0.1.0", false},
	}
	for _, c := range cases {
		if got := versionCompatible(c.required, c.current); got != c.want {
			t.Errorf("versionCompatible(%q, %q) = %v, want %v", c.required, c.current, got, c.want)
		}
	}
}

func TestHandlesInvalidTOML(t *testing.T) {
	_, err := fromTOML("invalid { toml", "", "1.0.0")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestHandlesMissingPatterns(t *testing.T) {
	minimal := "[pack]\nversion = \"1.0.0\"\n"
	result, err := fromTOML(minimal, "", "1.0.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Pack.CompactPatterns) != 0 || len(result.Pack.EscalationPatterns) != 0 {
		t.Fatal("expected empty pattern sets")
	}
}

func TestSkipsInvalidRegex(t *testing.T) {
	withBadPattern := `
[pack]
version = "1.0.0"

[[compact_patterns]]
pattern = "[invalid("
confidence = 1.0
category = "hard"
reason = "test"

[[compact_patterns]]
pattern = "valid pattern"
confidence = 1.0
category = "hard"
reason = "test2"
`
	result, err := fromTOML(withBadPattern, "", "1.0.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Pack.CompactPatterns) != 1 {
		t.Fatalf("expected 1 compiled pattern, got %d", len(result.Pack.CompactPatterns))
	}
	if result.Pack.CompactPatterns[0].Reason != "test2" {
		t.Fatalf("unexpected surviving pattern: %+v", result.Pack.CompactPatterns[0])
	}
	if len(result.Skipped) != 1 {
		t.Fatalf("expected 1 skipped pattern, got %d", len(result.Skipped))
	}
}

func TestVersionMismatchRejectsLoad(t *testing.T) {
	withMinVersion := `
[pack]
version = "1.0.0"
min_daemon_version = "9.0.0"
`
	_, err := fromTOML(withMinVersion, "", "1.0.0")
	if err == nil {
		t.Fatal("expected version mismatch error")
	}
	var lerr *LoadError
	if !asLoadError(err, &lerr) || lerr.Kind != ErrVersionMismatch {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}

func asLoadError(err error, target **LoadError) bool {
	le, ok := err.(*LoadError)
	if !ok {
		return false
	}
	*target = le
	return true
}

func TestHolderGetAndReload(t *testing.T) {
	result, err := LoadDefault("1.0.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h := NewHolder(result.Pack)
	if len(h.Get().CompactPatterns) == 0 {
		t.Fatal("expected patterns from seeded pack")
	}

	if err := h.ReloadFrom("", "1.0.0"); err == nil {
		t.Fatal("expected error reloading from empty path")
	}
}
