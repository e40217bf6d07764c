package rpc

import (
	"agentwatch/internal/model"
)

// helloPayload describes the handshake response returned to a freshly
// connected client, before it has issued any other call.
type helloPayload struct {
	DaemonVersion   string              `json:"daemonVersion"`
	ProtocolVersion int                 `json:"protocolVersion"`
	SchemaVersion   int                 `json:"schemaVersion"`
	InstanceID      string              `json:"instanceId"`
	RunID           string              `json:"runId"`
	Capabilities    capabilitiesPayload `json:"capabilities"`
}

type capabilitiesPayload struct {
	Mux                bool `json:"mux"`
	AgentStatus        bool `json:"agentStatus"`
	Stream             bool `json:"stream"`
	ProcessSupervision bool `json:"processSupervision"`
}

func toCapabilitiesPayload(ctx *Context) capabilitiesPayload {
	return capabilitiesPayload{
		Mux:                ctx.Capabilities.MuxAvailable,
		AgentStatus:        ctx.Capabilities.AgentStatusAvailable,
		Stream:             ctx.Capabilities.StreamingSupported,
		ProcessSupervision: ctx.Capabilities.ProcessSupervisionSupported,
	}
}

// daemonVersion is overridden at link time via -ldflags in real builds.
var daemonVersion = "dev"

func hello(ctx *Context) (Result, *Error) {
	return helloPayload{
		DaemonVersion:   daemonVersion,
		ProtocolVersion: ctx.ProtocolVersion,
		SchemaVersion:   ctx.SchemaVersion,
		InstanceID:      ctx.InstanceID,
		RunID:           ctx.RunID,
		Capabilities:    toCapabilitiesPayload(ctx),
	}, nil
}

// HelloPayload builds the handshake payload a transport pushes to a client
// immediately upon connection, before the client has issued any call of its
// own (the WebSocket transport does this; the pipe transport does not, and
// HTTP, being request/response only, does not either).
func HelloPayload(ctx *Context) Result {
	result, _ := hello(ctx)
	return result
}

// pollingDatumView is PollingDatum re-expressed with its timestamp encoded
// as Unix seconds, matching the RPC boundary's integer-timestamp
// convention rather than RFC3339 strings.
type pollingDatumView struct {
	IntervalMS   int64  `json:"intervalMs"`
	Mode         string `json:"mode"`
	Reason       string `json:"reason"`
	LastChangeAt int64  `json:"lastChangeAt"`
}

func toPollingDatumView(d model.PollingDatum) pollingDatumView {
	return pollingDatumView{
		IntervalMS:   d.IntervalMS,
		Mode:         d.Mode,
		Reason:       d.Reason,
		LastChangeAt: unixSeconds(d.LastChangeAt),
	}
}

type pollingPayload struct {
	Snapshot pollingDatumView     `json:"snapshot"`
	Mux      pollingDatumView     `json:"mux"`
	Agent    pollingDatumView     `json:"agent"`
	Config   pollingConfigPayload `json:"config"`
}

type pollingConfigPayload struct {
	SnapshotIntervalMS uint64 `json:"snapshotIntervalMs"`
}

type healthPayload struct {
	Status          string              `json:"status"`
	Uptime          int64               `json:"uptime"`
	Version         string              `json:"version"`
	InstanceID      string              `json:"instanceId"`
	RunID           string              `json:"runId"`
	SchemaVersion   int                 `json:"schemaVersion"`
	ProtocolVersion int                 `json:"protocolVersion"`
	Capabilities    capabilitiesPayload `json:"capabilities"`
	LastEventID     int64               `json:"lastEventId"`
	LastError       *string             `json:"lastError"`
	Polling         pollingPayload      `json:"polling"`
}

func healthGet(ctx *Context) (Result, *Error) {
	health := ctx.Cache.Health()
	polling := ctx.Cache.PollingState()
	pollingConfig := ctx.Config.Current().Polling

	return healthPayload{
		Status:          health.Status,
		Uptime:          ctx.UptimeSecs(),
		Version:         daemonVersion,
		InstanceID:      ctx.InstanceID,
		RunID:           ctx.RunID,
		SchemaVersion:   ctx.SchemaVersion,
		ProtocolVersion: ctx.ProtocolVersion,
		Capabilities:    toCapabilitiesPayload(ctx),
		LastEventID:     lastEventID(ctx.Cache),
		LastError:       health.LastError,
		Polling: pollingPayload{
			Snapshot: toPollingDatumView(polling.Snapshot),
			Mux:      toPollingDatumView(polling.Mux),
			Agent:    toPollingDatumView(polling.Agent),
			Config:   pollingConfigPayload{SnapshotIntervalMS: pollingConfig.SnapshotIntervalMS},
		},
	}, nil
}

type capabilitiesGetPayload struct {
	ProtocolVersion int                 `json:"protocolVersion"`
	SchemaVersion   int                 `json:"schemaVersion"`
	Capabilities    capabilitiesPayload `json:"capabilities"`
}

func capabilitiesGet(ctx *Context) (Result, *Error) {
	return capabilitiesGetPayload{
		ProtocolVersion: ctx.ProtocolVersion,
		SchemaVersion:   ctx.SchemaVersion,
		Capabilities:    toCapabilitiesPayload(ctx),
	}, nil
}

type snapshotPayload struct {
	Sessions    []SessionView      `json:"sessions"`
	Panes       []PaneView         `json:"panes"`
	Events      []EventView        `json:"events"`
	Stats       snapshotStatsBlock `json:"stats"`
	LastEventID int64              `json:"lastEventId"`
}

type snapshotStatsBlock struct {
	Summary StatsSummary `json:"summary"`
	Hourly  []any        `json:"hourly"`
	Daily   []any        `json:"daily"`
}

func snapshotGet(ctx *Context) (Result, *Error) {
	return snapshotPayload{
		Sessions: sessionViews(ctx.Cache),
		Panes:    paneViews(ctx.Cache),
		Events:   eventViews(ctx.Cache, nil, nil),
		Stats: snapshotStatsBlock{
			Summary: summaryPayload(ctx.Cache),
			Hourly:  []any{},
			Daily:   []any{},
		},
		LastEventID: lastEventID(ctx.Cache),
	}, nil
}
