// Package model holds the entities shared across the collection
// pipeline, the cache, the bus, and the RPC surface.
package model

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// NewUID mints a time-ordered unique identifier. Sessions, panes, and the
// daemon's own instance/run identifiers all use the same minting scheme so
// identity is orderable without a separate sequence.
func NewUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the time source misbehaves; fall back to a
		// random v4 rather than propagating an error from identity minting.
		return uuid.NewString()
	}
	return id.String()
}

// SessionStatus is the lifecycle state of a Session.
type SessionStatus string

const (
	SessionUnknown SessionStatus = "unknown"
	SessionActive  SessionStatus = "active"
	SessionIdle    SessionStatus = "idle"
	SessionEnded   SessionStatus = "ended"
)

// PaneStatus is the lifecycle state of a Pane.
type PaneStatus string

const (
	PaneUnknown PaneStatus = "unknown"
	PaneActive  PaneStatus = "active"
	PaneWaiting PaneStatus = "waiting"
	PaneIdle    PaneStatus = "idle"
	PaneEnded   PaneStatus = "ended"
)

// Session is a logical multiplexer session.
type Session struct {
	SessionUID      string         `json:"sessionUid"`
	SourceID        string         `json:"sourceId"`
	MuxSessionID    *string        `json:"muxSessionId,omitempty"`
	Name            string         `json:"name"`
	CreatedAt       time.Time      `json:"createdAt"`
	LastSeenAt      time.Time      `json:"lastSeenAt"`
	EndedAt         *time.Time     `json:"endedAt,omitempty"`
	Status          SessionStatus  `json:"status"`
	StatusReason    *string        `json:"statusReason,omitempty"`
	PaneCount       int            `json:"paneCount"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Clone returns a deep copy so callers never share mutable state with the
// cache's internal maps.
func (s Session) Clone() Session {
	out := s
	if s.MuxSessionID != nil {
		v := *s.MuxSessionID
		out.MuxSessionID = &v
	}
	if s.EndedAt != nil {
		v := *s.EndedAt
		out.EndedAt = &v
	}
	if s.StatusReason != nil {
		v := *s.StatusReason
		out.StatusReason = &v
	}
	if s.Metadata != nil {
		out.Metadata = make(map[string]any, len(s.Metadata))
		maps.Copy(out.Metadata, s.Metadata)
	}
	return out
}

// NewSession mints a new session identity.
func NewSession(sourceID, name string, muxSessionID *string, now time.Time) Session {
	return Session{
		SessionUID:   NewUID(),
		SourceID:     sourceID,
		MuxSessionID: muxSessionID,
		Name:         name,
		CreatedAt:    now,
		LastSeenAt:   now,
		Status:       SessionUnknown,
	}
}

// Pane is a terminal inside a session.
type Pane struct {
	PaneUID         string     `json:"paneUid"`
	SessionUID      string     `json:"sessionUid"`
	MuxPaneID       *string    `json:"muxPaneId,omitempty"`
	MuxWindowID     *string    `json:"muxWindowId,omitempty"`
	MuxPanePID      *int64     `json:"muxPanePid,omitempty"`
	PaneIndex       int        `json:"paneIndex"`
	AgentType       *string    `json:"agentType,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	LastSeenAt      time.Time  `json:"lastSeenAt"`
	LastActivityAt  *time.Time `json:"lastActivityAt,omitempty"`
	CurrentCommand  *string    `json:"currentCommand,omitempty"`
	EndedAt         *time.Time `json:"endedAt,omitempty"`
	Status          PaneStatus `json:"status"`
	StatusReason    *string    `json:"statusReason,omitempty"`
}

// Clone returns a deep copy.
func (p Pane) Clone() Pane {
	out := p
	if p.MuxPaneID != nil {
		v := *p.MuxPaneID
		out.MuxPaneID = &v
	}
	if p.MuxWindowID != nil {
		v := *p.MuxWindowID
		out.MuxWindowID = &v
	}
	if p.MuxPanePID != nil {
		v := *p.MuxPanePID
		out.MuxPanePID = &v
	}
	if p.AgentType != nil {
		v := *p.AgentType
		out.AgentType = &v
	}
	if p.LastActivityAt != nil {
		v := *p.LastActivityAt
		out.LastActivityAt = &v
	}
	if p.CurrentCommand != nil {
		v := *p.CurrentCommand
		out.CurrentCommand = &v
	}
	if p.EndedAt != nil {
		v := *p.EndedAt
		out.EndedAt = &v
	}
	if p.StatusReason != nil {
		v := *p.StatusReason
		out.StatusReason = &v
	}
	return out
}

// NewPane mints a new pane identity.
func NewPane(sessionUID string, paneIndex int, now time.Time, muxPaneID, muxWindowID *string, muxPanePID *int64) Pane {
	return Pane{
		PaneUID:     NewUID(),
		SessionUID:  sessionUID,
		MuxPaneID:   muxPaneID,
		MuxWindowID: muxWindowID,
		MuxPanePID:  muxPanePID,
		PaneIndex:   paneIndex,
		CreatedAt:   now,
		LastSeenAt:  now,
		Status:      PaneUnknown,
	}
}

// EventType classifies a detected occurrence.
type EventType string

const (
	EventCompact        EventType = "compact"
	EventEscalation     EventType = "escalation"
	EventPaneStatus     EventType = "pane_status"
	EventSessionStatus  EventType = "session_status"
	EventCustom         EventType = "custom"
)

// EscalationStatus tracks the lifecycle of an escalation event.
type EscalationStatus string

const (
	EscalationPending   EscalationStatus = "pending"
	EscalationResolved  EscalationStatus = "resolved"
	EscalationDismissed EscalationStatus = "dismissed"
)

// Event is an immutable detected occurrence. EventID is assigned by the
// cache's event ring, not by the detector that produced it.
type Event struct {
	EventID      int64             `json:"eventId"`
	SessionUID   string            `json:"sessionUid"`
	PaneUID      *string           `json:"paneUid,omitempty"`
	Type         EventType         `json:"type"`
	DetectedAt   time.Time         `json:"detectedAt"`
	Severity     *string           `json:"severity,omitempty"`
	Status       *EscalationStatus `json:"status,omitempty"`
	Payload      map[string]any    `json:"payload,omitempty"`
}

// Clone returns a deep copy.
func (e Event) Clone() Event {
	out := e
	if e.PaneUID != nil {
		v := *e.PaneUID
		out.PaneUID = &v
	}
	if e.Severity != nil {
		v := *e.Severity
		out.Severity = &v
	}
	if e.Status != nil {
		v := *e.Status
		out.Status = &v
	}
	if e.Payload != nil {
		out.Payload = make(map[string]any, len(e.Payload))
		maps.Copy(out.Payload, e.Payload)
	}
	return out
}

// StateChange is a coherent snapshot of changed sessions+panes, published as
// one unit by the collectors.
type StateChange struct {
	Sessions   []Session `json:"sessions"`
	Panes      []Pane    `json:"panes"`
	ObservedAt time.Time `json:"observedAt"`
}

// DaemonEvent is pushed on the events bus channel whenever a detector fires.
type DaemonEvent struct {
	Type       EventType      `json:"type"`
	SessionUID string         `json:"sessionUid"`
	PaneUID    *string        `json:"paneUid,omitempty"`
	DetectedAt time.Time      `json:"detectedAt"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// ClientUpdate is a generic push sent to RPC clients (e.g. sessions.snapshot).
type ClientUpdate struct {
	Kind    string         `json:"kind"`
	Payload map[string]any `json:"payload,omitempty"`
}

// PollingDatum describes one poller's current cadence.
type PollingDatum struct {
	IntervalMS   int64     `json:"intervalMs"`
	Mode         string    `json:"mode"`
	Reason       string    `json:"reason"`
	LastChangeAt time.Time `json:"lastChangeAt"`
}

// Capabilities are advertised to clients at handshake and via health.get.
type Capabilities struct {
	MuxAvailable                 bool `json:"muxAvailable"`
	AgentStatusAvailable         bool `json:"agentStatusAvailable"`
	StreamingSupported           bool `json:"streamingSupported"`
	ProcessSupervisionSupported  bool `json:"processSupervisionSupported"`
}
