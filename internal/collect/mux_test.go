package collect

import (
	"testing"

	"agentwatch/internal/bus"
	"agentwatch/internal/cache"
	"agentwatch/internal/model"
	"agentwatch/internal/parser"
	"agentwatch/internal/runner"
)

func TestMuxDiffDetectsChangesAndRemovals(t *testing.T) {
	collector := NewMuxCollector(runner.New(runner.DefaultConfig()), bus.New(4), cache.New(100), DefaultMuxConfig())

	meta := parser.PaneMeta{
		SessionID:      "$1",
		WindowID:       "@1",
		PaneID:         "%1",
		PaneIndex:      0,
		PanePID:        42,
		CurrentCommand: "bash",
		LastActivity:   1,
		Dead:           false,
		InMode:         false,
	}

	changed, removed := collector.diffState([]parser.PaneMeta{meta})
	if changed != 1 || removed != 0 {
		t.Fatalf("expected 1 changed 0 removed, got %d/%d", changed, removed)
	}

	changedAgain, removedAgain := collector.diffState(nil)
	if changedAgain != 0 || removedAgain != 1 {
		t.Fatalf("expected 0 changed 1 removed, got %d/%d", changedAgain, removedAgain)
	}
}

func TestMuxDiffNoChangeOnIdenticalMeta(t *testing.T) {
	collector := NewMuxCollector(runner.New(runner.DefaultConfig()), bus.New(4), cache.New(100), DefaultMuxConfig())
	meta := parser.PaneMeta{SessionID: "$1", PaneID: "%1", CurrentCommand: "bash", LastActivity: 1}

	collector.diffState([]parser.PaneMeta{meta})
	changed, removed := collector.diffState([]parser.PaneMeta{meta})
	if changed != 0 || removed != 0 {
		t.Fatalf("expected no changes on identical poll, got %d/%d", changed, removed)
	}
}

func TestMuxUpdateCachePersistsIdentity(t *testing.T) {
	collector := NewMuxCollector(runner.New(runner.DefaultConfig()), bus.New(4), cache.New(100), DefaultMuxConfig())
	meta := parser.PaneMeta{SessionID: "$1", PaneID: "%1", CurrentCommand: "bash", LastActivity: 1}

	sessions, panes := collector.updateCache([]parser.PaneMeta{meta})
	if len(sessions) != 1 || len(panes) != 1 {
		t.Fatalf("expected 1 session and 1 pane")
	}
	firstPaneUID := panes[0].PaneUID

	sessionsAgain, panesAgain := collector.updateCache([]parser.PaneMeta{meta})
	if panesAgain[0].PaneUID != firstPaneUID {
		t.Fatalf("expected stable pane identity across polls")
	}
	if sessionsAgain[0].SessionUID != sessions[0].SessionUID {
		t.Fatalf("expected stable session identity across polls")
	}
}

func TestMuxUpdateCacheMarksIdlePaneByActivityThreshold(t *testing.T) {
	collector := NewMuxCollector(runner.New(runner.DefaultConfig()), bus.New(4), cache.New(100), DefaultMuxConfig())
	meta := parser.PaneMeta{SessionID: "$1", PaneID: "%1", CurrentCommand: "bash", LastActivity: 1}

	_, panes := collector.updateCache([]parser.PaneMeta{meta})
	if panes[0].Status != model.PaneIdle {
		t.Fatalf("expected idle status for stale activity, got %s", panes[0].Status)
	}
}

func TestMuxUpdateCacheClassifiesAgentFromCommand(t *testing.T) {
	collector := NewMuxCollector(runner.New(runner.DefaultConfig()), bus.New(4), cache.New(100), DefaultMuxConfig())
	meta := parser.PaneMeta{SessionID: "$1", PaneID: "%1", CurrentCommand: "claude", LastActivity: 1}

	_, panes := collector.updateCache([]parser.PaneMeta{meta})
	if panes[0].AgentType == nil || *panes[0].AgentType != "claude" {
		t.Fatalf("expected agent type claude, got %v", panes[0].AgentType)
	}
}

func TestMuxUpdateCacheMarksDeadPaneEnded(t *testing.T) {
	collector := NewMuxCollector(runner.New(runner.DefaultConfig()), bus.New(4), cache.New(100), DefaultMuxConfig())
	meta := parser.PaneMeta{SessionID: "$1", PaneID: "%1", CurrentCommand: "bash", LastActivity: 1, Dead: true}

	_, panes := collector.updateCache([]parser.PaneMeta{meta})
	if panes[0].Status != model.PaneEnded {
		t.Fatalf("expected ended status for dead pane, got %s", panes[0].Status)
	}
	if panes[0].EndedAt == nil {
		t.Fatal("expected ended_at set for dead pane")
	}
}
