package detect

import "agentwatch/internal/detect/pack"

// CompactInput is the evidence considered on one pane output line.
type CompactInput struct {
	Now               int64
	Line              string
	AgentCompactCount *uint64
	ContextTokens     *uint64
	PreviousTokens    *uint64
}

// CompactDetection is a single compaction event surfaced by the detector.
type CompactDetection struct {
	Confidence   float32
	Trigger      string
	ContextBefore *uint64
	Reason       string
	MatchedText  *string
}

// CompactConfig tunes debounce and the context-drop heuristic.
type CompactConfig struct {
	DebounceSecs  int64
	DropMinTokens uint64
	DropRatio     float32
}

// DefaultCompactConfig mirrors the upstream defaults.
func DefaultCompactConfig() CompactConfig {
	return CompactConfig{DebounceSecs: 60, DropMinTokens: 20000, DropRatio: 0.75}
}

// CompactDetector evaluates compaction evidence for one pane. It is not
// safe for concurrent use; callers keep one instance per pane.
type CompactDetector struct {
	lastDetectedAt   *int64
	lastCompactCount *uint64
	config           CompactConfig
	pack             *pack.Pack
}

// NewCompactDetector builds a detector bound to the given pattern pack.
// The pack pointer is read-only; swap it out (e.g. on hot reload) by
// constructing a new detector or calling SetPack.
func NewCompactDetector(config CompactConfig, p *pack.Pack) *CompactDetector {
	return &CompactDetector{config: config, pack: p}
}

// SetPack swaps the pattern pack used for subsequent detections.
func (d *CompactDetector) SetPack(p *pack.Pack) {
	d.pack = p
}

// Detect evaluates one line of evidence, in priority order: hard phrase
// match, warning phrase match, external compact counter increase, then a
// token-drop heuristic. Returns nil when nothing fires or the detector is
// still debounced from a prior detection.
func (d *CompactDetector) Detect(input CompactInput) *CompactDetection {
	if d.isDebounced(input.Now) {
		return nil
	}

	stripped := stripANSI(input.Line)

	if match := d.pack.MatchCompact(stripped); match != nil {
		text := stripped
		return d.markDetected(input.Now, CompactDetection{
			Confidence:    match.Confidence,
			Trigger:       "auto",
			ContextBefore: input.ContextTokens,
			Reason:        match.Reason,
			MatchedText:   &text,
		})
	}

	if input.AgentCompactCount != nil {
		count := *input.AgentCompactCount
		if d.lastCompactCount == nil || count > *d.lastCompactCount {
			d.lastCompactCount = &count
			return d.markDetected(input.Now, CompactDetection{
				Confidence:    0.8,
				Trigger:       "auto",
				ContextBefore: input.ContextTokens,
				Reason:        "ntm_counter",
			})
		}
	}

	if input.PreviousTokens != nil && input.ContextTokens != nil {
		previous := *input.PreviousTokens
		current := *input.ContextTokens
		if previous >= d.config.DropMinTokens {
			dropRatio := float32(1.0) - float32(current)/float32(previous)
			if dropRatio >= d.config.DropRatio {
				return d.markDetected(input.Now, CompactDetection{
					Confidence:    0.6,
					Trigger:       "auto",
					ContextBefore: &previous,
					Reason:        "context_drop",
				})
			}
		}
	}

	return nil
}

func (d *CompactDetector) isDebounced(now int64) bool {
	if d.lastDetectedAt == nil {
		return false
	}
	return now-*d.lastDetectedAt < d.config.DebounceSecs
}

func (d *CompactDetector) markDetected(now int64, detection CompactDetection) *CompactDetection {
	d.lastDetectedAt = &now
	return &detection
}
