package collect

import (
	"context"
	"strings"
	"time"

	"agentwatch/internal/bus"
	"agentwatch/internal/cache"
	"agentwatch/internal/detect"
	"agentwatch/internal/detect/pack"
	"agentwatch/internal/model"
	"agentwatch/internal/parser"
)

// TailSource is the read side of the agent-status client the detect
// collector needs. Defined here, not in the agentstatus package, so tests
// can supply a fake without spawning a real child process.
type TailSource interface {
	RobotTail(ctx context.Context, session string, lines int) (parser.AgentStatusTail, error)
}

// DetectConfig configures the detect collector's tail window and the two
// detectors it drives.
type DetectConfig struct {
	TailLines  int
	Compact    detect.CompactConfig
	Escalation detect.EscalationConfig
}

// DefaultDetectConfig holds the documented detect-polling defaults.
func DefaultDetectConfig() DetectConfig {
	return DetectConfig{
		TailLines:  50,
		Compact:    detect.DefaultCompactConfig(),
		Escalation: detect.DefaultEscalationConfig(),
	}
}

// DetectPollResult summarizes one poll cycle.
type DetectPollResult struct {
	LinesSeen   int
	Compacts    int
	Escalations int
}

// DetectCollector tails each active session's recent transcript and runs
// newly observed lines through the compact and escalation detectors. This
// completes the wiring the upstream agent-status tail command was left
// without: robot_tail is defined and parsed but nothing there ever consumes
// it downstream. Escalations is the same detector instance shared with the
// RPC context, so a detector-raised escalation and an escalations.dismiss
// call operate on the same outstanding state.
type DetectCollector struct {
	client     TailSource
	bus        *bus.Bus
	cache      *cache.Cache
	packs      *pack.Holder
	config     DetectConfig
	escalation *detect.EscalationDetector

	sessionUIDByName map[string]string
	paneUIDByKey     map[string]string

	compactByPane map[string]*detect.CompactDetector
	lastLine      map[string]string
	lastActivity  map[string]int64
}

// NewDetectCollector builds a DetectCollector. sessionUIDByName and
// paneUIDByKey are the same identity maps the agent-status collector owns;
// sharing them keeps pane resolution consistent across both collectors.
func NewDetectCollector(
	client TailSource,
	b *bus.Bus,
	c *cache.Cache,
	packs *pack.Holder,
	escalation *detect.EscalationDetector,
	sessionUIDByName map[string]string,
	paneUIDByKey map[string]string,
	config DetectConfig,
) *DetectCollector {
	return &DetectCollector{
		client:           client,
		bus:              b,
		cache:            c,
		packs:            packs,
		config:           config,
		escalation:       escalation,
		sessionUIDByName: sessionUIDByName,
		paneUIDByKey:     paneUIDByKey,
		compactByPane:    make(map[string]*detect.CompactDetector),
		lastLine:         make(map[string]string),
		lastActivity:     make(map[string]int64),
	}
}

// PollOnce tails every active session once and runs newly observed lines
// through the detector stack.
func (d *DetectCollector) PollOnce(ctx context.Context) (DetectPollResult, error) {
	now := time.Now()
	currentPack := d.packs.Get()
	d.escalation.SetPack(&currentPack)
	var result DetectPollResult

	for _, session := range d.cache.AllSessions() {
		if session.EndedAt != nil {
			continue
		}
		paneUID, pane, ok := d.resolvePane(session)
		if !ok {
			continue
		}

		tail, err := d.client.RobotTail(ctx, session.Name, d.config.TailLines)
		if err != nil {
			continue
		}

		var lastActivity *int64
		if pane.LastActivityAt != nil {
			v := pane.LastActivityAt.Unix()
			lastActivity = &v
		}

		newLines := d.newLines(session.SessionUID, tail.Lines)
		result.LinesSeen += len(newLines)

		compactDetector := d.compactDetectorFor(paneUID, &currentPack)

		for _, line := range newLines {
			if detection := compactDetector.Detect(detect.CompactInput{Now: now.Unix(), Line: line}); detection != nil {
				d.recordCompact(session.SessionUID, paneUID, now, detection)
				result.Compacts++
			}
			if event := d.escalation.Detect(detect.EscalationInput{
				Now:              now.Unix(),
				PaneUID:          paneUID,
				Line:             line,
				PaneLastActivity: lastActivity,
			}); event != nil {
				d.recordEscalationEvent(session.SessionUID, paneUID, now, event)
				result.Escalations++
			}
		}

		if lastActivity != nil && *lastActivity > d.lastActivity[paneUID] {
			d.lastActivity[paneUID] = *lastActivity
			if resolved := d.escalation.ResolveOnActivity(paneUID, now.Unix()); resolved != nil {
				d.recordEscalationEvent(session.SessionUID, paneUID, now, resolved)
			}
		}
	}

	return result, nil
}

// resolvePane picks the pane a session's tailed lines should be attributed
// to: a cached pane of this session whose reconcile key starts with the
// session's name (which one is not defined when several match, since the
// key map is walked in map order), falling back to any still-live pane
// belonging to the session.
func (d *DetectCollector) resolvePane(session model.Session) (string, model.Pane, bool) {
	prefix := session.Name + ":"
	for key, paneUID := range d.paneUIDByKey {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if pane, ok := d.cache.GetPane(paneUID); ok && pane.SessionUID == session.SessionUID {
			return paneUID, pane, true
		}
	}
	for _, pane := range d.cache.AllPanes() {
		if pane.SessionUID == session.SessionUID && pane.EndedAt == nil {
			return pane.PaneUID, pane, true
		}
	}
	return "", model.Pane{}, false
}

// compactDetectorFor returns the per-pane compact detector, lazily
// constructing one on first use (CompactDetector is not safe to share
// across panes) and refreshing its pattern pack on every call so a hot
// reload takes effect without rebuilding the detector.
func (d *DetectCollector) compactDetectorFor(paneUID string, p *pack.Pack) *detect.CompactDetector {
	detector, ok := d.compactByPane[paneUID]
	if !ok {
		detector = detect.NewCompactDetector(d.config.Compact, p)
		d.compactByPane[paneUID] = detector
		return detector
	}
	detector.SetPack(p)
	return detector
}

// newLines returns the lines appended since the last poll, keyed by session
// since robot_tail addresses sessions, not panes. The first observation of
// a session only surfaces its final line, so a restart doesn't replay the
// whole visible backlog as fresh detections.
func (d *DetectCollector) newLines(sessionUID string, lines []string) []string {
	if len(lines) == 0 {
		return nil
	}
	last, seenBefore := d.lastLine[sessionUID]
	d.lastLine[sessionUID] = lines[len(lines)-1]
	if !seenBefore {
		return lines[len(lines)-1:]
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if lines[i] == last {
			return lines[i+1:]
		}
	}
	return lines
}

func (d *DetectCollector) recordCompact(sessionUID, paneUID string, now time.Time, detection *detect.CompactDetection) {
	pane := paneUID
	payload := map[string]any{
		"confidence": detection.Confidence,
		"trigger":    detection.Trigger,
		"reason":     detection.Reason,
	}
	if detection.ContextBefore != nil {
		payload["contextBefore"] = *detection.ContextBefore
	}
	if detection.MatchedText != nil {
		payload["matchedText"] = *detection.MatchedText
	}

	d.cache.RecordEvent(model.Event{
		SessionUID: sessionUID,
		PaneUID:    &pane,
		Type:       model.EventCompact,
		DetectedAt: now,
		Payload:    payload,
	})
	_, _ = d.bus.PublishEvent(model.DaemonEvent{
		Type:       model.EventCompact,
		SessionUID: sessionUID,
		PaneUID:    &pane,
		DetectedAt: now,
		Payload:    payload,
	})
}

func (d *DetectCollector) recordEscalationEvent(sessionUID, paneUID string, now time.Time, event *detect.EscalationEvent) {
	pane := paneUID
	severity := event.Severity
	status := model.EscalationStatus(event.Status)
	payload := map[string]any{
		"confidence": event.Confidence,
		"message":    event.Message,
	}

	d.cache.RecordEvent(model.Event{
		SessionUID: sessionUID,
		PaneUID:    &pane,
		Type:       model.EventEscalation,
		DetectedAt: now,
		Severity:   &severity,
		Status:     &status,
		Payload:    payload,
	})
	_, _ = d.bus.PublishEvent(model.DaemonEvent{
		Type:       model.EventEscalation,
		SessionUID: sessionUID,
		PaneUID:    &pane,
		DetectedAt: now,
		Payload:    payload,
	})
}
