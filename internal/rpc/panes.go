package rpc

import (
	"encoding/json"

	"agentwatch/internal/cache"
	"agentwatch/internal/model"
	"agentwatch/internal/redact"
)

// PaneView is the wire shape of a Pane.
type PaneView struct {
	PaneID         string  `json:"paneId"`
	SessionID      string  `json:"sessionId"`
	Status         string  `json:"status"`
	StatusReason   *string `json:"statusReason,omitempty"`
	PaneIndex      int     `json:"paneIndex"`
	AgentType      *string `json:"agentType,omitempty"`
	CreatedAt      int64   `json:"createdAt"`
	LastSeenAt     int64   `json:"lastSeenAt"`
	LastActivityAt *int64  `json:"lastActivityAt,omitempty"`
	CurrentCommand *string `json:"currentCommand,omitempty"`
	EndedAt        *int64  `json:"endedAt,omitempty"`
	MuxPaneID      *string `json:"muxPaneId,omitempty"`
	MuxWindowID    *string `json:"muxWindowId,omitempty"`
	MuxPanePID     *int64  `json:"muxPanePid,omitempty"`
}

func paneViewFromPane(pane model.Pane) PaneView {
	return PaneView{
		PaneID:         pane.PaneUID,
		SessionID:      pane.SessionUID,
		Status:         string(pane.Status),
		StatusReason:   pane.StatusReason,
		PaneIndex:      pane.PaneIndex,
		AgentType:      pane.AgentType,
		CreatedAt:      unixSeconds(pane.CreatedAt),
		LastSeenAt:     unixSeconds(pane.LastSeenAt),
		LastActivityAt: unixSecondsPtr(pane.LastActivityAt),
		CurrentCommand: pane.CurrentCommand,
		EndedAt:        unixSecondsPtr(pane.EndedAt),
		MuxPaneID:      pane.MuxPaneID,
		MuxWindowID:    pane.MuxWindowID,
		MuxPanePID:     pane.MuxPanePID,
	}
}

type paneGetParams struct {
	PaneID string `json:"paneId"`
}

type panePreviewParams struct {
	PaneID   string `json:"paneId"`
	MaxLines *int   `json:"maxLines"`
	MaxChars *int   `json:"maxChars"`
}

func paneViews(c *cache.Cache) []PaneView {
	panes := c.AllPanes()
	views := make([]PaneView, 0, len(panes))
	for _, pane := range panes {
		views = append(views, paneViewFromPane(pane))
	}
	return views
}

func panesGet(ctx *Context, rawParams json.RawMessage) (Result, *Error) {
	params, parseErr := ParseParams[paneGetParams](rawParams)
	if parseErr != nil {
		return nil, parseErr
	}

	pane, ok := ctx.Cache.GetPane(params.PaneID)
	if !ok {
		return nil, NewError(CodeNotFound, "Pane not found")
	}

	return map[string]any{"pane": paneViewFromPane(pane)}, nil
}

// panesOutputPreview returns a pane's recent raw output, redacted; the
// requested line and character limits are echoed back, not applied. No
// collector in this daemon retains raw pane text beyond what a detector
// consumes line-by-line, so the preview is always empty until a capture
// buffer exists; the redaction pass still runs so the response shape never
// changes once one does.
func panesOutputPreview(ctx *Context, rawParams json.RawMessage) (Result, *Error) {
	params, parseErr := ParseParams[panePreviewParams](rawParams)
	if parseErr != nil {
		return nil, parseErr
	}

	preview := redact.Default().Redact("")

	maxLines := 0
	if params.MaxLines != nil {
		maxLines = *params.MaxLines
	}
	maxChars := 0
	if params.MaxChars != nil {
		maxChars = *params.MaxChars
	}

	return map[string]any{
		"paneId":   params.PaneID,
		"preview":  preview,
		"redacted": true,
		"maxLines": maxLines,
		"maxChars": maxChars,
	}, nil
}
