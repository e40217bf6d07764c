package rpc

import (
	"encoding/json"
	"fmt"
)

type sessionKillParams struct {
	SessionID string `json:"sessionId"`
}

type paneSendParams struct {
	PaneID  string `json:"paneId"`
	Payload string `json:"payload"`
}

type attachCommandParams struct {
	PaneID string `json:"paneId"`
}

// sessionKill is intentionally unimplemented: killing a session means
// tearing down the multiplexer session and every pane under it, an action
// this daemon has chosen not to perform on a client's behalf yet.
func sessionKill(ctx *Context, rawParams json.RawMessage) (Result, *Error) {
	if err := RequireAdmin(ctx); err != nil {
		return nil, err
	}
	params, parseErr := ParseParams[sessionKillParams](rawParams)
	if parseErr != nil {
		return nil, parseErr
	}
	return nil, NewError(CodeUnsupported, fmt.Sprintf("sessionKill not implemented for %s", params.SessionID))
}

// paneSend is intentionally unimplemented: injecting keystrokes into a pane
// on a client's behalf is out of scope for this daemon.
func paneSend(ctx *Context, rawParams json.RawMessage) (Result, *Error) {
	if err := RequireAdmin(ctx); err != nil {
		return nil, err
	}
	params, parseErr := ParseParams[paneSendParams](rawParams)
	if parseErr != nil {
		return nil, parseErr
	}
	return nil, NewError(CodeUnsupported, fmt.Sprintf("paneSend not implemented for %s", params.PaneID))
}

// attachCommand hands back the shell command a client can run locally to
// attach to the pane's multiplexer session.
func attachCommand(ctx *Context, rawParams json.RawMessage) (Result, *Error) {
	params, parseErr := ParseParams[attachCommandParams](rawParams)
	if parseErr != nil {
		return nil, parseErr
	}
	return map[string]any{
		"command": fmt.Sprintf("mux attach -t %s", params.PaneID),
	}, nil
}
