package detect

import "testing"

func i64(n int64) *int64 { return &n }

func TestEscalationDetectorDetectsPattern(t *testing.T) {
	d := NewEscalationDetector(DefaultEscalationConfig(), testPack(t))
	event := d.Detect(EscalationInput{
		Now:              100,
		PaneUID:          "pane-1",
		Line:             "Please confirm delete (y/n)",
		PaneLastActivity: i64(95),
		WaitingHint:      true,
	})
	if event == nil {
		t.Fatal("expected detection")
	}
	if event.Status != EscalationPending {
		t.Fatalf("unexpected status: %s", event.Status)
	}
	if event.Severity != "warn" {
		t.Fatalf("unexpected severity: %s", event.Severity)
	}
}

func TestEscalationDetectorDebouncePreventsRepeat(t *testing.T) {
	d := NewEscalationDetector(DefaultEscalationConfig(), testPack(t))
	input := EscalationInput{Now: 100, PaneUID: "pane-1", Line: "fatal error", PaneLastActivity: i64(95), WaitingHint: true}
	if d.Detect(input) == nil {
		t.Fatal("expected first detection")
	}
	second := input
	second.Now = 110
	if d.Detect(second) != nil {
		t.Fatal("expected debounced repeat to be nil")
	}
}

func TestEscalationDetectorResolvesOnActivity(t *testing.T) {
	d := NewEscalationDetector(DefaultEscalationConfig(), testPack(t))
	input := EscalationInput{
		Now:              100,
		PaneUID:          "pane-2",
		Line:             "need human input (y/n)",
		PaneLastActivity: i64(99),
		WaitingHint:      true,
	}
	if d.Detect(input) == nil {
		t.Fatal("expected detection")
	}
	resolved := d.ResolveOnActivity("pane-2", 120)
	if resolved == nil || resolved.Status != EscalationResolved {
		t.Fatalf("expected resolved event, got %+v", resolved)
	}
	if _, ok := d.ActiveForPane("pane-2"); ok {
		t.Fatal("expected pane-2 to no longer be active after resolution")
	}
}

func TestEscalationDetectorResolveOutsideWindowLeavesActive(t *testing.T) {
	d := NewEscalationDetector(DefaultEscalationConfig(), testPack(t))
	d.Detect(EscalationInput{Now: 100, PaneUID: "pane-3", Line: "fatal error", PaneLastActivity: i64(99), WaitingHint: true})
	resolved := d.ResolveOnActivity("pane-3", 100+DefaultEscalationConfig().ActivityWindowSecs+1)
	if resolved != nil {
		t.Fatalf("expected no resolution outside the activity window, got %+v", resolved)
	}
	if _, ok := d.ActiveForPane("pane-3"); !ok {
		t.Fatal("expected escalation to remain active")
	}
}

func TestEscalationDetectorDismiss(t *testing.T) {
	d := NewEscalationDetector(DefaultEscalationConfig(), testPack(t))
	d.Detect(EscalationInput{Now: 100, PaneUID: "pane-4", Line: "fatal error", PaneLastActivity: i64(99), WaitingHint: true})
	dismissed := d.Dismiss("pane-4")
	if dismissed == nil || dismissed.Status != EscalationDismissed {
		t.Fatalf("expected dismissed event, got %+v", dismissed)
	}
	if _, ok := d.ActiveForPane("pane-4"); ok {
		t.Fatal("expected pane-4 removed from active set after dismiss")
	}
}

func TestEscalationDetectorDismissUnknownPaneReturnsNil(t *testing.T) {
	d := NewEscalationDetector(DefaultEscalationConfig(), testPack(t))
	if d.Dismiss("never-seen") != nil {
		t.Fatal("expected nil for unknown pane")
	}
}

func TestEscalationDetectorRequiresWaitingHintOrPromptShape(t *testing.T) {
	d := NewEscalationDetector(DefaultEscalationConfig(), testPack(t))
	event := d.Detect(EscalationInput{
		Now:              100,
		PaneUID:          "pane-5",
		Line:             "fatal error occurred during a normal log line",
		PaneLastActivity: i64(95),
		WaitingHint:      false,
	})
	if event != nil {
		t.Fatalf("expected nil without waiting hint or prompt shape, got %+v", event)
	}
}

func TestEscalationDetectorStaleActivityBlocksDetection(t *testing.T) {
	d := NewEscalationDetector(DefaultEscalationConfig(), testPack(t))
	event := d.Detect(EscalationInput{
		Now:              1000,
		PaneUID:          "pane-6",
		Line:             "fatal error",
		PaneLastActivity: i64(1),
		WaitingHint:      true,
	})
	if event != nil {
		t.Fatalf("expected nil for stale activity, got %+v", event)
	}
}
