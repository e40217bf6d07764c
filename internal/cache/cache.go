// Package cache holds the daemon's in-memory, queryable view of sessions,
// panes, recent events, and collector health. Every read returns a clone so
// callers never observe a torn or later-mutated record.
package cache

import (
	"sync"
	"sync/atomic"

	"agentwatch/internal/model"
)

// StatsAggregate is the rolled-up activity summary for the current day.
type StatsAggregate struct {
	TotalCompacts   uint64
	ActiveMinutes   uint64
	EstimatedTokens uint64
}

// HealthStatus is the daemon's self-reported collector health.
type HealthStatus struct {
	Status    string
	LastError *string
}

// PollingState is the current polling cadence for each collector channel.
type PollingState struct {
	Snapshot model.PollingDatum
	Mux      model.PollingDatum
	Agent    model.PollingDatum
}

// Snapshot is a full point-in-time dump of cache state, used for
// save/restore across a daemon restart.
type Snapshot struct {
	Sessions   []model.Session
	Panes      []model.Pane
	Events     []model.Event
	StatsToday StatsAggregate
	Health     HealthStatus
}

// Metrics reports cache hit/miss counters.
type Metrics struct {
	SessionHits   uint64
	SessionMisses uint64
	PaneHits      uint64
	PaneMisses    uint64
}

// Cache is the daemon's concurrent in-memory store. Sessions and panes are
// guarded by their own mutex-protected maps rather than sync.Map: the
// access pattern here is read-heavy-iterate-everything (all_sessions,
// all_panes), which sync.Map does not optimize for.
type Cache struct {
	sessionsMu sync.RWMutex
	sessions   map[string]model.Session

	panesMu sync.RWMutex
	panes   map[string]model.Pane

	eventsMu  sync.Mutex
	events    []model.Event
	maxEvents int
	nextEventID int64

	statsMu sync.RWMutex
	stats   StatsAggregate

	healthMu sync.RWMutex
	health   HealthStatus

	pollingMu sync.RWMutex
	polling   PollingState

	sessionHits   atomic.Uint64
	sessionMisses atomic.Uint64
	paneHits      atomic.Uint64
	paneMisses    atomic.Uint64
}

// New builds an empty cache. maxEvents is clamped to at least 1.
func New(maxEvents int) *Cache {
	if maxEvents < 1 {
		maxEvents = 1
	}
	return &Cache{
		sessions:  make(map[string]model.Session),
		panes:     make(map[string]model.Pane),
		events:    make([]model.Event, 0, maxEvents),
		maxEvents: maxEvents,
	}
}

// UpsertSession inserts or replaces a session record.
func (c *Cache) UpsertSession(session model.Session) {
	c.sessionsMu.Lock()
	defer c.sessionsMu.Unlock()
	c.sessions[session.SessionUID] = session.Clone()
}

// GetSession returns a clone of the session, recording a hit or miss.
func (c *Cache) GetSession(sessionUID string) (model.Session, bool) {
	c.sessionsMu.RLock()
	session, ok := c.sessions[sessionUID]
	c.sessionsMu.RUnlock()
	if ok {
		c.sessionHits.Add(1)
		return session.Clone(), true
	}
	c.sessionMisses.Add(1)
	return model.Session{}, false
}

// AllSessions returns clones of every cached session.
func (c *Cache) AllSessions() []model.Session {
	c.sessionsMu.RLock()
	defer c.sessionsMu.RUnlock()
	out := make([]model.Session, 0, len(c.sessions))
	for _, session := range c.sessions {
		out = append(out, session.Clone())
	}
	return out
}

// RemoveSession deletes a session by UID.
func (c *Cache) RemoveSession(sessionUID string) {
	c.sessionsMu.Lock()
	defer c.sessionsMu.Unlock()
	delete(c.sessions, sessionUID)
}

// SessionCount returns the number of cached sessions.
func (c *Cache) SessionCount() int {
	c.sessionsMu.RLock()
	defer c.sessionsMu.RUnlock()
	return len(c.sessions)
}

// UpsertPane inserts or replaces a pane record.
func (c *Cache) UpsertPane(pane model.Pane) {
	c.panesMu.Lock()
	defer c.panesMu.Unlock()
	c.panes[pane.PaneUID] = pane.Clone()
}

// GetPane returns a clone of the pane, recording a hit or miss.
func (c *Cache) GetPane(paneUID string) (model.Pane, bool) {
	c.panesMu.RLock()
	pane, ok := c.panes[paneUID]
	c.panesMu.RUnlock()
	if ok {
		c.paneHits.Add(1)
		return pane.Clone(), true
	}
	c.paneMisses.Add(1)
	return model.Pane{}, false
}

// AllPanes returns clones of every cached pane.
func (c *Cache) AllPanes() []model.Pane {
	c.panesMu.RLock()
	defer c.panesMu.RUnlock()
	out := make([]model.Pane, 0, len(c.panes))
	for _, pane := range c.panes {
		out = append(out, pane.Clone())
	}
	return out
}

// RemovePane deletes a pane by UID.
func (c *Cache) RemovePane(paneUID string) {
	c.panesMu.Lock()
	defer c.panesMu.Unlock()
	delete(c.panes, paneUID)
}

// PaneCount returns the number of cached panes.
func (c *Cache) PaneCount() int {
	c.panesMu.RLock()
	defer c.panesMu.RUnlock()
	return len(c.panes)
}

// RecordEvent appends an event to the ring buffer, assigning it the next
// event ID and evicting the oldest entry once the buffer is full.
func (c *Cache) RecordEvent(event model.Event) model.Event {
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()
	c.nextEventID++
	event.EventID = c.nextEventID
	if len(c.events) >= c.maxEvents {
		c.events = c.events[1:]
	}
	c.events = append(c.events, event.Clone())
	return event
}

// RecentEvents returns clones of every event currently in the ring.
func (c *Cache) RecentEvents() []model.Event {
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()
	out := make([]model.Event, len(c.events))
	for i, event := range c.events {
		out[i] = event.Clone()
	}
	return out
}

// EventCount returns the number of events currently in the ring.
func (c *Cache) EventCount() int {
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()
	return len(c.events)
}

// SetStatsToday replaces the day's rolled-up stats.
func (c *Cache) SetStatsToday(stats StatsAggregate) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.stats = stats
}

// StatsToday returns the day's rolled-up stats.
func (c *Cache) StatsToday() StatsAggregate {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	return c.stats
}

// SetHealth replaces the daemon's self-reported health.
func (c *Cache) SetHealth(health HealthStatus) {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()
	c.health = health
}

// Health returns the daemon's self-reported health.
func (c *Cache) Health() HealthStatus {
	c.healthMu.RLock()
	defer c.healthMu.RUnlock()
	return c.health
}

// PollingState returns the current polling cadence for every channel.
func (c *Cache) PollingState() PollingState {
	c.pollingMu.RLock()
	defer c.pollingMu.RUnlock()
	return c.polling
}

// pollingEqual compares two PollingDatum values field by field, using
// time.Time.Equal rather than == so monotonic-clock readings never cause a
// false "changed" result.
func pollingEqual(a, b model.PollingDatum) bool {
	return a.IntervalMS == b.IntervalMS &&
		a.Mode == b.Mode &&
		a.Reason == b.Reason &&
		a.LastChangeAt.Equal(b.LastChangeAt)
}

// UpdatePollingSnapshot sets the snapshot channel's cadence, returning false
// if it is unchanged from the current value (idempotent no-op signal).
func (c *Cache) UpdatePollingSnapshot(next model.PollingDatum) bool {
	c.pollingMu.Lock()
	defer c.pollingMu.Unlock()
	if pollingEqual(c.polling.Snapshot, next) {
		return false
	}
	c.polling.Snapshot = next
	return true
}

// UpdatePollingMux sets the mux collector channel's cadence.
func (c *Cache) UpdatePollingMux(next model.PollingDatum) bool {
	c.pollingMu.Lock()
	defer c.pollingMu.Unlock()
	if pollingEqual(c.polling.Mux, next) {
		return false
	}
	c.polling.Mux = next
	return true
}

// UpdatePollingAgent sets the agent-status collector channel's cadence.
func (c *Cache) UpdatePollingAgent(next model.PollingDatum) bool {
	c.pollingMu.Lock()
	defer c.pollingMu.Unlock()
	if pollingEqual(c.polling.Agent, next) {
		return false
	}
	c.polling.Agent = next
	return true
}

// MetricsSnapshot returns the current hit/miss counters.
func (c *Cache) MetricsSnapshot() Metrics {
	return Metrics{
		SessionHits:   c.sessionHits.Load(),
		SessionMisses: c.sessionMisses.Load(),
		PaneHits:      c.paneHits.Load(),
		PaneMisses:    c.paneMisses.Load(),
	}
}

// ApplySnapshot replaces session, pane, and event state wholesale. Used to
// restore cache contents across a daemon restart.
func (c *Cache) ApplySnapshot(snapshot Snapshot) {
	c.sessionsMu.Lock()
	c.sessions = make(map[string]model.Session, len(snapshot.Sessions))
	for _, session := range snapshot.Sessions {
		c.sessions[session.SessionUID] = session.Clone()
	}
	c.sessionsMu.Unlock()

	c.panesMu.Lock()
	c.panes = make(map[string]model.Pane, len(snapshot.Panes))
	for _, pane := range snapshot.Panes {
		c.panes[pane.PaneUID] = pane.Clone()
	}
	c.panesMu.Unlock()

	c.eventsMu.Lock()
	capped := snapshot.Events
	if len(capped) > c.maxEvents {
		capped = capped[:c.maxEvents]
	}
	c.events = make([]model.Event, len(capped))
	for i, event := range capped {
		c.events[i] = event.Clone()
	}
	c.eventsMu.Unlock()

	c.SetStatsToday(snapshot.StatsToday)
	c.SetHealth(snapshot.Health)
}
