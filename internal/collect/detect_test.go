package collect

import (
	"context"
	"testing"
	"time"

	"agentwatch/internal/bus"
	"agentwatch/internal/cache"
	"agentwatch/internal/detect"
	"agentwatch/internal/detect/pack"
	"agentwatch/internal/model"
	"agentwatch/internal/parser"
)

type fakeTailSource struct {
	lines []string
	err   error
}

func (f *fakeTailSource) RobotTail(ctx context.Context, session string, lines int) (parser.AgentStatusTail, error) {
	return parser.AgentStatusTail{Lines: f.lines}, f.err
}

func seedSessionAndPane(t *testing.T, c *cache.Cache, name string, lastActivity time.Time) (string, string) {
	t.Helper()
	now := time.Now()
	sessionUID := model.NewUID()
	paneUID := model.NewUID()

	c.UpsertSession(model.Session{
		SessionUID: sessionUID,
		SourceID:   "agent-status",
		Name:       name,
		CreatedAt:  now,
		LastSeenAt: now,
		Status:     model.SessionActive,
	})
	c.UpsertPane(model.Pane{
		PaneUID:        paneUID,
		SessionUID:     sessionUID,
		PaneIndex:      0,
		CreatedAt:      now,
		LastSeenAt:     now,
		LastActivityAt: &lastActivity,
		Status:         model.PaneActive,
	})
	return sessionUID, paneUID
}

func testHolder(t *testing.T) *pack.Holder {
	t.Helper()
	result, err := pack.LoadDefault("")
	if err != nil {
		t.Fatalf("load default pack: %v", err)
	}
	return pack.NewHolder(result.Pack)
}

func TestDetectPollOnceEmitsCompactEvent(t *testing.T) {
	c := cache.New(100)
	sessionUID, paneUID := seedSessionAndPane(t, c, "alpha", time.Now())
	paneUIDByKey := map[string]string{"alpha:0": paneUID}

	source := &fakeTailSource{lines: []string{"working...", "auto-compacting conversation now"}}
	collector := NewDetectCollector(source, bus.New(4), c, testHolder(t),
		detect.NewEscalationDetector(detect.DefaultEscalationConfig(), nil),
		map[string]string{}, paneUIDByKey, DefaultDetectConfig())

	result, err := collector.PollOnce(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if result.Compacts != 1 {
		t.Fatalf("expected 1 compact detection, got %d", result.Compacts)
	}

	found := false
	for _, event := range c.RecentEvents() {
		if event.Type == model.EventCompact && event.SessionUID == sessionUID {
			found = true
			if event.PaneUID == nil || *event.PaneUID != paneUID {
				t.Fatalf("expected event pane %s, got %v", paneUID, event.PaneUID)
			}
		}
	}
	if !found {
		t.Fatal("expected a compact event recorded in cache")
	}
}

func TestDetectPollOnceEmitsEscalationEvent(t *testing.T) {
	c := cache.New(100)
	_, paneUID := seedSessionAndPane(t, c, "alpha", time.Now())
	paneUIDByKey := map[string]string{"alpha:0": paneUID}

	source := &fakeTailSource{lines: []string{"fatal error: cannot proceed >"}}
	collector := NewDetectCollector(source, bus.New(4), c, testHolder(t),
		detect.NewEscalationDetector(detect.DefaultEscalationConfig(), nil),
		map[string]string{}, paneUIDByKey, DefaultDetectConfig())

	result, err := collector.PollOnce(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if result.Escalations != 1 {
		t.Fatalf("expected 1 escalation detection, got %d", result.Escalations)
	}

	escalation, ok := collector.escalation.ActiveForPane(paneUID)
	if !ok {
		t.Fatal("expected an active escalation for the pane")
	}
	if escalation.Severity != "error" {
		t.Fatalf("expected severity error, got %s", escalation.Severity)
	}
}

func TestDetectPollOnceSkipsAlreadySeenLines(t *testing.T) {
	c := cache.New(100)
	_, paneUID := seedSessionAndPane(t, c, "alpha", time.Now())
	paneUIDByKey := map[string]string{"alpha:0": paneUID}

	source := &fakeTailSource{lines: []string{"auto-compacting conversation now"}}
	collector := NewDetectCollector(source, bus.New(4), c, testHolder(t),
		detect.NewEscalationDetector(detect.DefaultEscalationConfig(), nil),
		map[string]string{}, paneUIDByKey, DefaultDetectConfig())

	first, err := collector.PollOnce(context.Background())
	if err != nil {
		t.Fatalf("first poll: %v", err)
	}
	if first.Compacts != 1 {
		t.Fatalf("expected first poll to detect once, got %d", first.Compacts)
	}

	second, err := collector.PollOnce(context.Background())
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if second.LinesSeen != 0 {
		t.Fatalf("expected no new lines on second poll, got %d", second.LinesSeen)
	}
}

func TestDetectPollOnceSkipsEndedSessions(t *testing.T) {
	c := cache.New(100)
	sessionUID, paneUID := seedSessionAndPane(t, c, "alpha", time.Now())
	ended, _ := c.GetSession(sessionUID)
	endedAt := time.Now()
	ended.EndedAt = &endedAt
	ended.Status = model.SessionEnded
	c.UpsertSession(ended)
	paneUIDByKey := map[string]string{"alpha:0": paneUID}

	source := &fakeTailSource{lines: []string{"auto-compacting conversation now"}}
	collector := NewDetectCollector(source, bus.New(4), c, testHolder(t),
		detect.NewEscalationDetector(detect.DefaultEscalationConfig(), nil),
		map[string]string{}, paneUIDByKey, DefaultDetectConfig())

	result, err := collector.PollOnce(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if result.LinesSeen != 0 || result.Compacts != 0 {
		t.Fatalf("expected ended session to be skipped, got %+v", result)
	}
}
