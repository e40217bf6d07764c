package detect

import (
	"sync"

	"agentwatch/internal/detect/pack"
)

// EscalationStatus is the lifecycle state of a raised escalation event.
type EscalationStatus string

const (
	EscalationPending   EscalationStatus = "pending"
	EscalationResolved  EscalationStatus = "resolved"
	EscalationDismissed EscalationStatus = "dismissed"
)

// EscalationInput is the evidence considered for one pane output line.
type EscalationInput struct {
	Now              int64
	PaneUID          string
	Line             string
	PaneLastActivity *int64
	WaitingHint      bool
}

// EscalationEvent is a raised (or resolved/dismissed) escalation.
type EscalationEvent struct {
	PaneUID    string
	DetectedAt int64
	Severity   string
	Status     EscalationStatus
	Message    string
	Confidence float32
}

// EscalationConfig tunes debounce and how long a resolving activity burst
// is still attributed to an outstanding escalation.
type EscalationConfig struct {
	DebounceSecs       int64
	ActivityWindowSecs int64
}

// DefaultEscalationConfig mirrors the upstream defaults.
func DefaultEscalationConfig() EscalationConfig {
	return EscalationConfig{DebounceSecs: 30, ActivityWindowSecs: 300}
}

// EscalationDetector tracks one outstanding escalation per pane and is safe
// for concurrent use across the daemon's collector and RPC goroutines.
type EscalationDetector struct {
	mu             sync.Mutex
	lastDetectedAt *int64
	active         map[string]EscalationEvent
	config         EscalationConfig
	pack           *pack.Pack
}

// NewEscalationDetector builds a detector bound to the given pattern pack.
func NewEscalationDetector(config EscalationConfig, p *pack.Pack) *EscalationDetector {
	return &EscalationDetector{config: config, pack: p, active: make(map[string]EscalationEvent)}
}

// SetPack swaps the pattern pack used for subsequent detections.
func (d *EscalationDetector) SetPack(p *pack.Pack) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pack = p
}

// Detect evaluates one line of evidence. An escalation only fires when the
// pane has had recent activity, the line looks like it is waiting on the
// user (either via an explicit hint or a prompt-shaped line), and a
// configured escalation phrase matches.
func (d *EscalationDetector) Detect(input EscalationInput) *EscalationEvent {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isDebounced(input.Now) {
		return nil
	}
	if !d.isRecentActivity(input.Now, input.PaneLastActivity) {
		return nil
	}
	if !input.WaitingHint && !d.pack.IsPrompt(input.Line) {
		return nil
	}

	match := d.pack.MatchEscalation(input.Line)
	if match == nil {
		return nil
	}

	event := EscalationEvent{
		PaneUID:    input.PaneUID,
		DetectedAt: input.Now,
		Severity:   match.Severity,
		Status:     EscalationPending,
		Message:    input.Line,
		Confidence: match.Confidence,
	}

	now := input.Now
	d.lastDetectedAt = &now
	d.active[input.PaneUID] = event
	return &event
}

// ActiveForPane returns the outstanding escalation for a pane, if any.
func (d *EscalationDetector) ActiveForPane(paneUID string) (EscalationEvent, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	event, ok := d.active[paneUID]
	return event, ok
}

// ResolveOnActivity clears a pane's outstanding escalation when fresh
// activity lands within the configured activity window, marking it
// resolved. Activity outside that window leaves the escalation untouched.
func (d *EscalationDetector) ResolveOnActivity(paneUID string, now int64) *EscalationEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	event, ok := d.active[paneUID]
	if !ok {
		return nil
	}
	if now-event.DetectedAt <= d.config.ActivityWindowSecs {
		delete(d.active, paneUID)
		event.Status = EscalationResolved
		return &event
	}
	return nil
}

// Dismiss marks a pane's outstanding escalation as dismissed and removes it
// from the active set. Backs the escalations.dismiss RPC method.
func (d *EscalationDetector) Dismiss(paneUID string) *EscalationEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	event, ok := d.active[paneUID]
	if !ok {
		return nil
	}
	delete(d.active, paneUID)
	event.Status = EscalationDismissed
	return &event
}

func (d *EscalationDetector) isDebounced(now int64) bool {
	if d.lastDetectedAt == nil {
		return false
	}
	return now-*d.lastDetectedAt < d.config.DebounceSecs
}

func (d *EscalationDetector) isRecentActivity(now int64, lastActivity *int64) bool {
	if lastActivity == nil {
		return false
	}
	return now-*lastActivity <= d.config.ActivityWindowSecs
}
