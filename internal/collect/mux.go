// Package collect runs the three pollers that feed the cache: MuxCollector
// polls the terminal multiplexer directly for pane enumeration,
// AgentStatusCollector polls the agent-status side channel for richer
// per-pane agent state, and DetectCollector runs the detectors over each
// session's tailed agent output.
package collect

import (
	"context"
	"time"

	"agentwatch/internal/bus"
	"agentwatch/internal/cache"
	"agentwatch/internal/detect"
	"agentwatch/internal/model"
	"agentwatch/internal/parser"
	"agentwatch/internal/runner"
)

const sourceMux = "mux"

// MuxConfig configures the mux collector's poll.
type MuxConfig struct {
	Program        string
	Format         string
	Timeout        time.Duration
	MaxOutputBytes int
	Status         detect.StatusConfig
}

// DefaultMuxConfig holds the documented mux-polling defaults.
func DefaultMuxConfig() MuxConfig {
	return MuxConfig{
		Program:        "tmux",
		Format:         "#{session_id}:#{window_id}:#{pane_id}:#{pane_index}:#{pane_pid}:#{pane_current_command}:#{pane_last_activity}:#{pane_dead}:#{pane_in_mode}",
		MaxOutputBytes: 256 * 1024,
		Status:         detect.DefaultStatusConfig(),
	}
}

// MuxPollResult summarizes one poll cycle.
type MuxPollResult struct {
	Changed  int
	Removed  int
	Degraded bool
}

// MuxCollector polls the multiplexer's pane listing and publishes a
// StateChange whenever the observed pane set differs from the last poll.
type MuxCollector struct {
	runner *runner.Runner
	bus    *bus.Bus
	cache  *cache.Cache
	config MuxConfig

	lastState       map[string]parser.PaneMeta
	paneUIDByMux    map[string]string
	sessionUIDByMux map[string]string
	failureCount    int
}

// NewMuxCollector builds a MuxCollector.
func NewMuxCollector(r *runner.Runner, b *bus.Bus, c *cache.Cache, config MuxConfig) *MuxCollector {
	return &MuxCollector{
		runner:          r,
		bus:             b,
		cache:           c,
		config:          config,
		lastState:       make(map[string]parser.PaneMeta),
		paneUIDByMux:    make(map[string]string),
		sessionUIDByMux: make(map[string]string),
	}
}

// PollOnce runs one list-panes cycle. After three consecutive failures the
// poll is reported degraded rather than erroring, matching the runner's own
// circuit-breaker posture of preferring a soft signal over a hard failure.
func (m *MuxCollector) PollOnce(ctx context.Context) (MuxPollResult, error) {
	spec := runner.Spec{
		Program:        m.config.Program,
		Args:           []string{"list-panes", "-a", "-F", m.config.Format},
		Timeout:        m.config.Timeout,
		MaxOutputBytes: m.config.MaxOutputBytes,
		Category:       runner.MuxFast,
	}

	output, err := m.runner.Run(ctx, spec)
	if err != nil {
		m.failureCount++
		if m.failureCount >= 3 {
			return MuxPollResult{Degraded: true}, nil
		}
		return MuxPollResult{}, err
	}
	m.failureCount = 0

	metas, err := parser.ParsePanes(string(output.Stdout))
	if err != nil {
		return MuxPollResult{}, err
	}

	changed, removed := m.diffState(metas)
	if changed > 0 || removed > 0 {
		sessions, panes := m.updateCache(metas)
		_, _ = m.bus.PublishState(model.StateChange{
			Sessions:   sessions,
			Panes:      panes,
			ObservedAt: time.Now(),
		})
	}

	return MuxPollResult{Changed: changed, Removed: removed}, nil
}

func (m *MuxCollector) diffState(metas []parser.PaneMeta) (changed, removed int) {
	next := make(map[string]parser.PaneMeta, len(metas))
	for _, meta := range metas {
		key := meta.PaneID
		if prev, ok := m.lastState[key]; !ok || prev != meta {
			changed++
		}
		next[key] = meta
	}
	for key := range m.lastState {
		if _, ok := next[key]; !ok {
			removed++
		}
	}
	m.lastState = next
	return changed, removed
}

func (m *MuxCollector) updateCache(metas []parser.PaneMeta) ([]model.Session, []model.Pane) {
	sessions := make([]model.Session, 0, len(metas))
	panes := make([]model.Pane, 0, len(metas))

	for _, meta := range metas {
		sessionUID, ok := m.sessionUIDByMux[meta.SessionID]
		if !ok {
			sessionUID = model.NewUID()
			m.sessionUIDByMux[meta.SessionID] = sessionUID
		}
		paneUID, ok := m.paneUIDByMux[meta.PaneID]
		if !ok {
			paneUID = model.NewUID()
			m.paneUIDByMux[meta.PaneID] = paneUID
		}

		lastActivity := time.Unix(meta.LastActivity, 0)
		muxSessionID := meta.SessionID
		statusReason := "mux_poll"

		session := model.Session{
			SessionUID:   sessionUID,
			SourceID:     sourceMux,
			MuxSessionID: &muxSessionID,
			Name:         meta.SessionID,
			CreatedAt:    lastActivity,
			LastSeenAt:   lastActivity,
			Status:       model.SessionActive,
			StatusReason: &statusReason,
		}

		muxPaneID := meta.PaneID
		muxWindowID := meta.WindowID
		panePID := meta.PanePID
		currentCommand := meta.CurrentCommand

		activityUnix := meta.LastActivity
		statusResult := detect.DetectStatus(detect.StatusInput{
			Now:                time.Now().Unix(),
			PaneLastActivity:   &activityUnix,
			PaneDead:           meta.Dead,
			PaneCurrentCommand: &currentCommand,
		}, m.config.Status)

		paneStatusReason := statusResult.Reason
		pane := model.Pane{
			PaneUID:        paneUID,
			SessionUID:     sessionUID,
			MuxPaneID:      &muxPaneID,
			MuxWindowID:    &muxWindowID,
			MuxPanePID:     &panePID,
			PaneIndex:      meta.PaneIndex,
			CreatedAt:      lastActivity,
			LastSeenAt:     lastActivity,
			LastActivityAt: &lastActivity,
			CurrentCommand: &currentCommand,
			Status:         statusResult.Status,
			StatusReason:   &paneStatusReason,
		}
		if meta.Dead {
			endedAt := lastActivity
			pane.EndedAt = &endedAt
		}

		if agentDetection := detect.DetectFromCommand(&currentCommand); agentDetection != nil {
			agentType := string(agentDetection.AgentType)
			pane.AgentType = &agentType
		}

		m.cache.UpsertSession(session)
		m.cache.UpsertPane(pane)
		sessions = append(sessions, session)
		panes = append(panes, pane)
	}

	return sessions, panes
}
