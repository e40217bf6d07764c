package collect

import (
	"context"
	"time"

	"agentwatch/internal/agentstatus"
	"agentwatch/internal/bus"
	"agentwatch/internal/cache"
	"agentwatch/internal/model"
	"agentwatch/internal/parser"
	"agentwatch/internal/reconcile"
)

// MarkdownSource is the read side of the agent-status client the collector
// needs. Defined here, not in the agentstatus package, so tests can supply
// a fake without spawning a real child process.
type MarkdownSource interface {
	RobotMarkdown(ctx context.Context) (parser.AgentStatusMarkdown, error)
}

// AgentStatusConfig configures the agent-status collector's adaptive poll
// cadence.
type AgentStatusConfig struct {
	ActiveInterval     time.Duration
	IdleInterval       time.Duration
	IdleThreshold      time.Duration
}

// DefaultAgentStatusConfig holds the documented agent-status polling defaults.
func DefaultAgentStatusConfig() AgentStatusConfig {
	return AgentStatusConfig{
		ActiveInterval: 15 * time.Second,
		IdleInterval:   60 * time.Second,
		IdleThreshold:  300 * time.Second,
	}
}

// AgentStatusPollResult summarizes one poll cycle.
type AgentStatusPollResult struct {
	Changed      int
	Ended        int
	Degraded     bool
	NextInterval time.Duration
}

// AgentStatusCollector polls the agent-status side channel and reconciles
// its markdown snapshot against the cache.
type AgentStatusCollector struct {
	client MarkdownSource
	bus    *bus.Bus
	cache  *cache.Cache
	config AgentStatusConfig

	sessionUIDByName map[string]string
	paneUIDByKey     map[string]string
	failureCount     int
}

// NewAgentStatusCollector builds an AgentStatusCollector.
func NewAgentStatusCollector(client MarkdownSource, b *bus.Bus, c *cache.Cache, config AgentStatusConfig) *AgentStatusCollector {
	return &AgentStatusCollector{
		client:           client,
		bus:              b,
		cache:            c,
		config:           config,
		sessionUIDByName: make(map[string]string),
		paneUIDByKey:     make(map[string]string),
	}
}

// PollOnce runs one markdown fetch + reconcile cycle.
func (a *AgentStatusCollector) PollOnce(ctx context.Context) (AgentStatusPollResult, error) {
	now := time.Now()
	fallbackInterval := a.nextInterval(now)

	markdown, err := a.client.RobotMarkdown(ctx)
	if err != nil {
		a.failureCount++
		unavailable := false
		if agentErr, ok := err.(*agentstatus.Error); ok {
			unavailable = agentErr.Kind == agentstatus.ErrUnavailable
		}
		degraded := unavailable || a.failureCount >= 3
		status := "ok"
		if degraded {
			status = "degraded"
		}
		reason := "agent-status: " + err.Error()
		a.cache.SetHealth(cache.HealthStatus{Status: status, LastError: &reason})
		return AgentStatusPollResult{Degraded: degraded, NextInterval: fallbackInterval}, nil
	}

	a.failureCount = 0
	a.cache.SetHealth(cache.HealthStatus{Status: "ok"})

	result := reconcile.Reconcile(a.cache, markdown, now, a.sessionUIDByName, a.paneUIDByKey)
	for _, session := range result.Sessions {
		a.cache.UpsertSession(session)
	}
	for _, pane := range result.Panes {
		a.cache.UpsertPane(pane)
	}

	changed := result.ChangeCount()
	if changed > 0 {
		_, _ = a.bus.PublishState(model.StateChange{
			Sessions:   result.Sessions,
			Panes:      result.Panes,
			ObservedAt: now,
		})
	}

	return AgentStatusPollResult{
		Changed:      changed,
		Ended:        result.EndedSessions,
		NextInterval: a.nextInterval(now),
	}, nil
}

// IdentityMaps returns the collector's session/pane identity maps by
// reference, so a DetectCollector tailing the same sessions resolves panes
// using the exact same name-to-UID assignments instead of a second,
// independently-drifting set.
func (a *AgentStatusCollector) IdentityMaps() (sessionUIDByName, paneUIDByKey map[string]string) {
	return a.sessionUIDByName, a.paneUIDByKey
}

func (a *AgentStatusCollector) nextInterval(now time.Time) time.Duration {
	for _, session := range a.cache.AllSessions() {
		if session.EndedAt == nil && now.Sub(session.LastSeenAt) <= a.config.IdleThreshold {
			return a.config.ActiveInterval
		}
	}
	return a.config.IdleInterval
}
