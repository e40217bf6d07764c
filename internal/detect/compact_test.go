package detect

import (
	"testing"

	"agentwatch/internal/detect/pack"
)

func testPack(t *testing.T) *pack.Pack {
	t.Helper()
	result, err := pack.LoadDefault("1.0.0")
	if err != nil {
		t.Fatalf("load default pack: %v", err)
	}
	return &result.Pack
}

func u64(n uint64) *uint64 { return &n }

func TestCompactDetectorHardPattern(t *testing.T) {
	d := NewCompactDetector(DefaultCompactConfig(), testPack(t))
	result := d.Detect(CompactInput{
		Now:            100,
		Line:           "Auto-compacting conversation due to context limit.",
		ContextTokens:  u64(90000),
		PreviousTokens: u64(90000),
	})
	if result == nil {
		t.Fatal("expected detection")
	}
	if result.Reason != "auto_compacting" {
		t.Fatalf("unexpected reason: %s", result.Reason)
	}
	if result.Confidence < 1.0 {
		t.Fatalf("expected confidence >= 1.0, got %v", result.Confidence)
	}
}

func TestCompactDetectorDebounceBlocksRepeat(t *testing.T) {
	d := NewCompactDetector(DefaultCompactConfig(), testPack(t))
	input := CompactInput{Now: 100, Line: "Context limit reached", ContextTokens: u64(80000), PreviousTokens: u64(80000)}
	if d.Detect(input) == nil {
		t.Fatal("expected first detection")
	}
	second := input
	second.Now = 120
	if d.Detect(second) != nil {
		t.Fatal("expected debounced second detection to be nil")
	}
}

func TestCompactDetectorCounterIncrease(t *testing.T) {
	d := NewCompactDetector(DefaultCompactConfig(), testPack(t))
	result := d.Detect(CompactInput{
		Now:               100,
		Line:              "",
		AgentCompactCount: u64(1),
		ContextTokens:     u64(1000),
		PreviousTokens:    u64(1000),
	})
	if result == nil || result.Reason != "ntm_counter" {
		t.Fatalf("expected counter-based detection, got %+v", result)
	}
}

func TestCompactDetectorCounterOnlyFiresOnIncrease(t *testing.T) {
	d := NewCompactDetector(CompactConfig{DebounceSecs: 0, DropMinTokens: 20000, DropRatio: 0.75}, testPack(t))
	first := d.Detect(CompactInput{Now: 100, Line: "", AgentCompactCount: u64(1)})
	if first == nil {
		t.Fatal("expected first counter detection")
	}
	second := d.Detect(CompactInput{Now: 200, Line: "", AgentCompactCount: u64(1)})
	if second != nil {
		t.Fatal("expected no detection when counter unchanged")
	}
}

func TestCompactDetectorContextDrop(t *testing.T) {
	d := NewCompactDetector(DefaultCompactConfig(), testPack(t))
	result := d.Detect(CompactInput{
		Now:            100,
		Line:           "",
		ContextTokens:  u64(10000),
		PreviousTokens: u64(50000),
	})
	if result == nil || result.Reason != "context_drop" {
		t.Fatalf("expected context_drop detection, got %+v", result)
	}
}

func TestCompactDetectorNoEvidenceYieldsNil(t *testing.T) {
	d := NewCompactDetector(DefaultCompactConfig(), testPack(t))
	result := d.Detect(CompactInput{Now: 100, Line: "just some ordinary output"})
	if result != nil {
		t.Fatalf("expected nil, got %+v", result)
	}
}
