package rpc

import (
	"encoding/json"
	"sort"

	"agentwatch/internal/cache"
	"agentwatch/internal/model"
)

// EventView is the wire shape of a cached Event.
type EventView struct {
	ID         int64   `json:"id"`
	EventType  string  `json:"eventType"`
	SessionID  string  `json:"sessionId"`
	PaneID     string  `json:"paneId"`
	DetectedAt int64   `json:"detectedAt"`
	Severity   *string `json:"severity,omitempty"`
	Status     *string `json:"status,omitempty"`
}

// EscalationView is the wire shape of an escalation-flavored Event.
type EscalationView struct {
	ID         int64   `json:"id"`
	SessionID  string  `json:"sessionId"`
	PaneID     string  `json:"paneId"`
	DetectedAt int64   `json:"detectedAt"`
	Status     *string `json:"status,omitempty"`
}

type eventsListParams struct {
	Cursor *int64 `json:"cursor"`
	Limit  *int   `json:"limit"`
}

type subscribeParams struct {
	Channels     []string `json:"channels"`
	SinceEventID *int64   `json:"sinceEventId"`
}

type escalationDismissParams struct {
	EscalationID int64 `json:"escalationId"`
}

func paneUIDOf(event model.Event) string {
	if event.PaneUID == nil {
		return ""
	}
	return *event.PaneUID
}

func statusStringOf(event model.Event) *string {
	if event.Status == nil {
		return nil
	}
	s := string(*event.Status)
	return &s
}

func toEventView(event model.Event) EventView {
	return EventView{
		ID:         event.EventID,
		EventType:  string(event.Type),
		SessionID:  event.SessionUID,
		PaneID:     paneUIDOf(event),
		DetectedAt: unixSeconds(event.DetectedAt),
		Severity:   event.Severity,
		Status:     statusStringOf(event),
	}
}

// eventViews returns events with an id strictly greater than cursor (when
// given), oldest first, capped to limit (when given).
func eventViews(c *cache.Cache, cursor *int64, limit *int) []EventView {
	records := c.RecentEvents()
	views := make([]EventView, 0, len(records))
	for _, record := range records {
		if cursor != nil && record.EventID <= *cursor {
			continue
		}
		views = append(views, toEventView(record))
	}

	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	if limit != nil && *limit < len(views) {
		views = views[:*limit]
	}
	return views
}

// lastEventID returns the highest event id currently in the cache, or 0 if
// the cache holds no events.
func lastEventID(c *cache.Cache) int64 {
	var max int64
	for _, event := range c.RecentEvents() {
		if event.EventID > max {
			max = event.EventID
		}
	}
	return max
}

func eventsList(ctx *Context, rawParams json.RawMessage) (Result, *Error) {
	params, parseErr := ParseParams[eventsListParams](rawParams)
	if parseErr != nil {
		return nil, parseErr
	}

	events := eventViews(ctx.Cache, params.Cursor, params.Limit)
	var nextEventID int64
	if len(events) > 0 {
		nextEventID = events[len(events)-1].ID + 1
	}

	return map[string]any{
		"events":      events,
		"nextEventId": nextEventID,
	}, nil
}

func subscribe(ctx *Context, rawParams json.RawMessage) (Result, *Error) {
	params, parseErr := ParseParams[subscribeParams](rawParams)
	if parseErr != nil {
		return nil, parseErr
	}

	last := params.SinceEventID
	var lastID int64
	if last != nil {
		lastID = *last
	} else {
		lastID = lastEventID(ctx.Cache)
	}

	return map[string]any{
		"subscribed":  true,
		"channels":    params.Channels,
		"lastEventId": lastID,
	}, nil
}

func escalationsList(ctx *Context) (Result, *Error) {
	records := ctx.Cache.RecentEvents()
	views := make([]EscalationView, 0)
	for _, record := range records {
		if record.Type != model.EventEscalation {
			continue
		}
		views = append(views, EscalationView{
			ID:         record.EventID,
			SessionID:  record.SessionUID,
			PaneID:     paneUIDOf(record),
			DetectedAt: unixSeconds(record.DetectedAt),
			Status:     statusStringOf(record),
		})
	}

	return map[string]any{"escalations": views}, nil
}

// escalationsDismiss resolves the escalation/event id to the pane it was
// raised on, then dismisses it through the escalation detector. Unlike the
// upstream stub, this call actually clears the outstanding escalation.
func escalationsDismiss(ctx *Context, rawParams json.RawMessage) (Result, *Error) {
	params, parseErr := ParseParams[escalationDismissParams](rawParams)
	if parseErr != nil {
		return nil, parseErr
	}

	var found *model.Event
	for _, record := range ctx.Cache.RecentEvents() {
		if record.EventID == params.EscalationID {
			r := record
			found = &r
			break
		}
	}
	if found == nil || found.PaneUID == nil {
		return nil, NewError(CodeNotFound, "Escalation not found")
	}
	if ctx.Escalations == nil {
		return nil, NewError(CodeUnsupported, "Escalation detector not available")
	}

	dismissed := ctx.Escalations.Dismiss(*found.PaneUID)
	if dismissed == nil {
		return nil, NewError(CodeNotFound, "Escalation not found")
	}

	return map[string]any{
		"dismissed":    true,
		"escalationId": params.EscalationID,
	}, nil
}
