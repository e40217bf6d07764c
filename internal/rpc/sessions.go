package rpc

import (
	"encoding/json"

	"agentwatch/internal/cache"
	"agentwatch/internal/model"
)

// SessionView is the wire shape of a Session: pane_count is recomputed from
// the live pane set rather than trusted from the stored session record,
// since collectors update panes and sessions independently.
type SessionView struct {
	SessionID    string         `json:"sessionId"`
	Name         string         `json:"name"`
	Status       string         `json:"status"`
	StatusReason *string        `json:"statusReason,omitempty"`
	PaneCount    int            `json:"paneCount"`
	CreatedAt    int64          `json:"createdAt"`
	LastSeenAt   int64          `json:"lastSeenAt"`
	EndedAt      *int64         `json:"endedAt,omitempty"`
	MuxSessionID *string        `json:"muxSessionId,omitempty"`
	SourceID     string         `json:"sourceId"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func sessionViewFromSessionWithPaneCount(session model.Session, paneCount int) SessionView {
	return SessionView{
		SessionID:    session.SessionUID,
		Name:         session.Name,
		Status:       string(session.Status),
		StatusReason: session.StatusReason,
		PaneCount:    paneCount,
		CreatedAt:    unixSeconds(session.CreatedAt),
		LastSeenAt:   unixSeconds(session.LastSeenAt),
		EndedAt:      unixSecondsPtr(session.EndedAt),
		MuxSessionID: session.MuxSessionID,
		SourceID:     session.SourceID,
		Metadata:     session.Metadata,
	}
}

func sessionViewFromSession(session model.Session) SessionView {
	return sessionViewFromSessionWithPaneCount(session, session.PaneCount)
}

type sessionsListParams struct {
	Status     *string  `json:"status"`
	SessionIDs []string `json:"sessionIds"`
}

type sessionGetParams struct {
	SessionID string `json:"sessionId"`
}

// sessionViews returns every session, with pane counts computed from the
// live pane set rather than each session's own stored count.
func sessionViews(c *cache.Cache) []SessionView {
	paneCounts := make(map[string]int)
	for _, pane := range c.AllPanes() {
		paneCounts[pane.SessionUID]++
	}

	sessions := c.AllSessions()
	views := make([]SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, sessionViewFromSessionWithPaneCount(session, paneCounts[session.SessionUID]))
	}
	return views
}

func sessionsList(ctx *Context, rawParams json.RawMessage) (Result, *Error) {
	params, parseErr := ParseParams[sessionsListParams](rawParams)
	if parseErr != nil {
		return nil, parseErr
	}

	sessions := sessionViews(ctx.Cache)

	if params.SessionIDs != nil {
		allowed := make(map[string]bool, len(params.SessionIDs))
		for _, id := range params.SessionIDs {
			allowed[id] = true
		}
		filtered := sessions[:0]
		for _, session := range sessions {
			if allowed[session.SessionID] {
				filtered = append(filtered, session)
			}
		}
		sessions = filtered
	}
	if params.Status != nil {
		filtered := make([]SessionView, 0, len(sessions))
		for _, session := range sessions {
			if session.Status == *params.Status {
				filtered = append(filtered, session)
			}
		}
		sessions = filtered
	}

	return map[string]any{"sessions": sessions}, nil
}

func sessionsGet(ctx *Context, rawParams json.RawMessage) (Result, *Error) {
	params, parseErr := ParseParams[sessionGetParams](rawParams)
	if parseErr != nil {
		return nil, parseErr
	}

	session, ok := ctx.Cache.GetSession(params.SessionID)
	if !ok {
		return nil, NewError(CodeNotFound, "Session not found")
	}

	paneCount := 0
	for _, pane := range ctx.Cache.AllPanes() {
		if pane.SessionUID == session.SessionUID {
			paneCount++
		}
	}
	return map[string]any{"session": sessionViewFromSessionWithPaneCount(session, paneCount)}, nil
}
