// Package rpc implements the daemon's JSON-RPC method surface: a single
// method-name dispatcher shared by every transport (pipe, WebSocket, HTTP).
package rpc

import (
	"encoding/json"
	"fmt"
	"time"

	"agentwatch/internal/cache"
	"agentwatch/internal/config"
	"agentwatch/internal/detect"
	"agentwatch/internal/metrics"
	"agentwatch/internal/model"
	"agentwatch/internal/runner"
)

// Error codes returned at the RPC boundary, mirroring the wire contract.
const (
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeForbidden     = "FORBIDDEN"
	CodeRateLimited   = "RATE_LIMITED"
	CodeStaleCursor   = "STALE_CURSOR"
	CodeUnsupported   = "UNSUPPORTED"
	CodeDegraded      = "DEGRADED"
	CodeNotFound      = "NOT_FOUND"
	CodeInvalidParams = "INVALID_PARAMS"
)

// ProtocolVersion and SchemaVersion are advertised to every client at
// handshake time and never change within a single daemon build.
const (
	ProtocolVersion = 1
	SchemaVersion   = 1
)

// Error is the typed error returned by every handler. It carries a fixed
// code from the table above, a human-readable message, and optional
// structured data (e.g. a parse failure's underlying cause).
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds an Error with no structured data.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorWithData builds an Error carrying structured data.
func NewErrorWithData(code, message string, data any) *Error {
	return &Error{Code: code, Message: message, Data: data}
}

// Result is the outcome of one RPC call: either a JSON-able value or an
// *Error, never both.
type Result = any

// Context carries everything a handler needs: the cache, the config
// manager, metrics, identity, capabilities, and whether the caller has
// presented a valid admin token.
type Context struct {
	Cache       *cache.Cache
	Config      *config.Manager
	Metrics     *metrics.Metrics
	Escalations *detect.EscalationDetector
	Runner      *runner.Runner

	InstanceID      string
	RunID           string
	StartedAt       time.Time
	ProtocolVersion int
	SchemaVersion   int
	Capabilities    model.Capabilities
	IsAdmin         bool
}

// NewContext builds a Context with freshly minted instance/run identifiers
// and the daemon's default capability set.
func NewContext(c *cache.Cache, cfg *config.Manager) *Context {
	return &Context{
		Cache:           c,
		Config:          cfg,
		Metrics:         metrics.New(),
		Runner:          runner.New(runner.DefaultConfig()),
		InstanceID:      model.NewUID(),
		RunID:           model.NewUID(),
		StartedAt:       time.Now(),
		ProtocolVersion: ProtocolVersion,
		SchemaVersion:   SchemaVersion,
		Capabilities: model.Capabilities{
			MuxAvailable:         true,
			AgentStatusAvailable: true,
		},
	}
}

// WithCapabilities is the same as NewContext but with an explicit
// capability set, used by tests that want to pin ctx.capabilities.
func WithCapabilities(c *cache.Cache, cfg *config.Manager, caps model.Capabilities) *Context {
	ctx := NewContext(c, cfg)
	ctx.Capabilities = caps
	return ctx
}

// Uptime returns how long the daemon has been running.
func (ctx *Context) Uptime() time.Duration {
	return time.Since(ctx.StartedAt)
}

// UptimeSecs is Uptime truncated to whole seconds, the unit used on the wire.
func (ctx *Context) UptimeSecs() int64 {
	return int64(ctx.Uptime().Seconds())
}

// RequireAdmin returns a CodeForbidden error unless ctx.IsAdmin is set.
func RequireAdmin(ctx *Context) *Error {
	if ctx.IsAdmin {
		return nil
	}
	return NewError(CodeForbidden, "Admin token required for this method")
}

// ParseParams decodes raw JSON params into T, returning a CodeInvalidParams
// error on failure. A nil/empty params value decodes into T's zero value.
func ParseParams[T any](params json.RawMessage) (T, *Error) {
	var out T
	if len(params) == 0 || string(params) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(params, &out); err != nil {
		return out, NewErrorWithData(CodeInvalidParams, "Invalid params", err.Error())
	}
	return out, nil
}

// HandlerFunc answers one RPC call.
type HandlerFunc func(ctx *Context, params json.RawMessage) (Result, *Error)

// Dispatcher owns the method-name-to-handler registry.
type Dispatcher struct {
	handlers map[string]HandlerFunc
}

// NewDispatcher builds a Dispatcher wired to every method this daemon
// supports.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{handlers: make(map[string]HandlerFunc)}
	d.register("health.get", wrapNoParams(healthGet))
	d.register("capabilities.get", wrapNoParams(capabilitiesGet))
	d.register("snapshot.get", wrapNoParams(snapshotGet))
	d.register("sessions.list", sessionsList)
	d.register("sessions.get", sessionsGet)
	d.register("panes.get", panesGet)
	d.register("panes.outputPreview", panesOutputPreview)
	d.register("events.list", eventsList)
	d.register("subscribe", subscribe)
	d.register("escalations.list", wrapNoParams(escalationsList))
	d.register("escalations.dismiss", escalationsDismiss)
	d.register("stats.summary", wrapNoParams(statsSummary))
	d.register("stats.hourly", statsHourly)
	d.register("stats.daily", statsDaily)
	d.register("config.get", wrapNoParams(configGet))
	d.register("config.set", configSet)
	d.register("config.reload", wrapNoParams(configReload))
	d.register("detectors.list", wrapNoParams(detectorsList))
	d.register("detectors.reload", wrapNoParams(detectorsReload))
	d.register("actions.sessionKill", sessionKill)
	d.register("actions.paneSend", paneSend)
	d.register("attach.command", attachCommand)
	d.register("debug.diagnostics", wrapNoParams(debugDiagnostics))
	d.register("debug.selfTest", wrapNoParams(debugSelfTest))
	d.register("debug.metrics", wrapNoParams(debugMetrics))
	d.register("debug.logTail", wrapNoParams(debugLogTail))
	return d
}

func (d *Dispatcher) register(method string, fn HandlerFunc) {
	d.handlers[method] = fn
}

// Handle dispatches one call by method name. An unknown method returns
// CodeUnsupported, matching the original's default arm.
func (d *Dispatcher) Handle(ctx *Context, method string, params json.RawMessage) (Result, *Error) {
	timer := metrics.StartTimer(ctx.Metrics.RPCRequest)
	defer timer.Stop()

	handler, ok := d.handlers[method]
	if !ok {
		return nil, NewError(CodeUnsupported, fmt.Sprintf("Unsupported method: %s", method))
	}
	return handler(ctx, params)
}

func wrapNoParams(fn func(ctx *Context) (Result, *Error)) HandlerFunc {
	return func(ctx *Context, _ json.RawMessage) (Result, *Error) {
		return fn(ctx)
	}
}
