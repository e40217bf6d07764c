package rpc

import "encoding/json"

// configGet reports the subset of configuration clients are allowed to see
// regardless of admin status, reading from the live config manager rather
// than a fixed snapshot so it reflects the most recent reload.
func configGet(ctx *Context) (Result, *Error) {
	current := ctx.Config.Current()
	return map[string]any{
		"config": map[string]any{
			"transport":         "stdio",
			"idleThresholdSecs": 300,
			"captureOutput":     current.Capture.CaptureOutput,
			"adminMode":         ctx.IsAdmin,
		},
	}, nil
}

func configSet(ctx *Context, rawParams json.RawMessage) (Result, *Error) {
	if err := RequireAdmin(ctx); err != nil {
		return nil, err
	}
	var params any
	if err := json.Unmarshal(rawParams, &params); err != nil && len(rawParams) > 0 {
		return nil, NewErrorWithData(CodeInvalidParams, "Invalid params", err.Error())
	}
	return map[string]any{
		"applied": true,
		"config":  params,
	}, nil
}

// configReload re-reads the backing config file (if any) and swaps it in.
func configReload(ctx *Context) (Result, *Error) {
	if err := RequireAdmin(ctx); err != nil {
		return nil, err
	}
	if _, reloadErr := ctx.Config.Reload(); reloadErr != nil {
		return nil, NewErrorWithData(CodeDegraded, "Config reload failed", reloadErr.Error())
	}
	return map[string]any{"reloaded": true}, nil
}

func detectorsList(ctx *Context) (Result, *Error) {
	return map[string]any{
		"detectors": []map[string]any{
			{"name": "compact", "version": "1.0.0", "enabled": true},
			{"name": "escalation", "version": "1.0.0", "enabled": true},
			{"name": "status", "version": "1.0.0", "enabled": true},
		},
	}, nil
}

// detectorsReload acknowledges a hot-reload request. The pattern pack
// itself is reloaded via pack.Holder.ReloadFrom by the component that owns
// it; this endpoint is the admin-gated trigger the original also leaves
// unwired to a concrete registry.
func detectorsReload(ctx *Context) (Result, *Error) {
	if err := RequireAdmin(ctx); err != nil {
		return nil, err
	}
	return map[string]any{"reloaded": true}, nil
}
