package rpc

import (
	"encoding/json"
	"testing"
	"time"

	"agentwatch/internal/detect"
	"agentwatch/internal/detect/pack"
	"agentwatch/internal/model"
)

func strPtr(s string) *string { return &s }

func seedEvents(t *testing.T, ctx *Context) {
	t.Helper()
	for i := int64(1); i <= 5; i++ {
		paneUID := strPtr("pane-" + string(rune('0'+i)))
		eventType := model.EventCompact
		var status *model.EscalationStatus
		if i == 3 {
			eventType = model.EventEscalation
			s := model.EscalationPending
			status = &s
		}
		ctx.Cache.RecordEvent(model.Event{
			SessionUID: "sess",
			PaneUID:    paneUID,
			Type:       eventType,
			DetectedAt: time.Unix(1000+i, 0),
			Severity:   strPtr("info"),
			Status:     status,
		})
	}
}

func TestEventsListEmptyCache(t *testing.T) {
	ctx := testContext()
	result, rpcErr := eventsList(ctx, nil)
	if rpcErr != nil {
		t.Fatalf("unexpected error: %v", rpcErr)
	}
	payload := result.(map[string]any)
	if len(payload["events"].([]EventView)) != 0 {
		t.Fatalf("expected no events")
	}
	if payload["nextEventId"] != int64(0) {
		t.Fatalf("expected nextEventId 0, got %v", payload["nextEventId"])
	}
}

func TestEventsListReturnsAllEvents(t *testing.T) {
	ctx := testContext()
	seedEvents(t, ctx)
	result, rpcErr := eventsList(ctx, nil)
	if rpcErr != nil {
		t.Fatalf("unexpected error: %v", rpcErr)
	}
	events := result.(map[string]any)["events"].([]EventView)
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}
}

func TestEventsListWithCursorFilters(t *testing.T) {
	ctx := testContext()
	seedEvents(t, ctx)
	raw, _ := json.Marshal(map[string]any{"cursor": 3})
	result, rpcErr := eventsList(ctx, raw)
	if rpcErr != nil {
		t.Fatalf("unexpected error: %v", rpcErr)
	}
	events := result.(map[string]any)["events"].([]EventView)
	if len(events) != 2 || events[0].ID != 4 || events[1].ID != 5 {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestEventsListWithLimit(t *testing.T) {
	ctx := testContext()
	seedEvents(t, ctx)
	raw, _ := json.Marshal(map[string]any{"limit": 2})
	result, rpcErr := eventsList(ctx, raw)
	if rpcErr != nil {
		t.Fatalf("unexpected error: %v", rpcErr)
	}
	events := result.(map[string]any)["events"].([]EventView)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
}

func TestEventsListNextEventID(t *testing.T) {
	ctx := testContext()
	seedEvents(t, ctx)
	result, rpcErr := eventsList(ctx, nil)
	if rpcErr != nil {
		t.Fatalf("unexpected error: %v", rpcErr)
	}
	if result.(map[string]any)["nextEventId"] != int64(6) {
		t.Fatalf("expected nextEventId 6, got %v", result.(map[string]any)["nextEventId"])
	}
}

func TestEscalationsListFiltersByType(t *testing.T) {
	ctx := testContext()
	seedEvents(t, ctx)
	result, rpcErr := escalationsList(ctx)
	if rpcErr != nil {
		t.Fatalf("unexpected error: %v", rpcErr)
	}
	escalations := result.(map[string]any)["escalations"].([]EscalationView)
	if len(escalations) != 1 || escalations[0].ID != 3 {
		t.Fatalf("unexpected escalations: %+v", escalations)
	}
	if *escalations[0].Status != "pending" {
		t.Fatalf("expected pending status, got %v", escalations[0].Status)
	}
}

func TestEscalationsListEmptyWhenNoEscalations(t *testing.T) {
	ctx := testContext()
	ctx.Cache.RecordEvent(model.Event{SessionUID: "s", Type: model.EventCompact, DetectedAt: time.Unix(100, 0)})
	result, rpcErr := escalationsList(ctx)
	if rpcErr != nil {
		t.Fatalf("unexpected error: %v", rpcErr)
	}
	if len(result.(map[string]any)["escalations"].([]EscalationView)) != 0 {
		t.Fatalf("expected no escalations")
	}
}

func loadTestPack(t *testing.T) *pack.Pack {
	t.Helper()
	result, err := pack.LoadDefault("1.0.0")
	if err != nil {
		t.Fatalf("load default pack: %v", err)
	}
	return &result.Pack
}

func TestEscalationsDismissResolvesPaneAndClearsEscalation(t *testing.T) {
	ctx := testContext()
	ctx.Escalations = detect.NewEscalationDetector(detect.DefaultEscalationConfig(), loadTestPack(t))

	paneUID := "pane-3"
	ctx.Escalations.Detect(detect.EscalationInput{
		Now:              1000,
		PaneUID:          paneUID,
		Line:             "Please confirm delete (y/n)",
		PaneLastActivity: int64Ptr(999),
		WaitingHint:      true,
	})

	event := ctx.Cache.RecordEvent(model.Event{
		SessionUID: "sess",
		PaneUID:    &paneUID,
		Type:       model.EventEscalation,
		DetectedAt: time.Unix(1000, 0),
	})

	raw, _ := json.Marshal(map[string]any{"escalationId": event.EventID})
	result, rpcErr := escalationsDismiss(ctx, raw)
	if rpcErr != nil {
		t.Fatalf("unexpected error: %v", rpcErr)
	}
	if result.(map[string]any)["dismissed"] != true {
		t.Fatalf("expected dismissed=true, got %+v", result)
	}

	if _, active := ctx.Escalations.ActiveForPane(paneUID); active {
		t.Fatalf("expected escalation to be cleared from active set")
	}
}

func TestEscalationsDismissNotFound(t *testing.T) {
	ctx := testContext()
	ctx.Escalations = detect.NewEscalationDetector(detect.DefaultEscalationConfig(), nil)

	raw, _ := json.Marshal(map[string]any{"escalationId": 42})
	_, rpcErr := escalationsDismiss(ctx, raw)
	if rpcErr == nil || rpcErr.Code != CodeNotFound {
		t.Fatalf("expected CodeNotFound, got %v", rpcErr)
	}
}

func TestSubscribeReturnsChannels(t *testing.T) {
	ctx := testContext()
	raw, _ := json.Marshal(map[string]any{"channels": []string{"sessions", "events"}})
	result, rpcErr := subscribe(ctx, raw)
	if rpcErr != nil {
		t.Fatalf("unexpected error: %v", rpcErr)
	}
	payload := result.(map[string]any)
	if payload["subscribed"] != true {
		t.Fatalf("expected subscribed=true")
	}
	channels := payload["channels"].([]string)
	if len(channels) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(channels))
	}
}

func int64Ptr(v int64) *int64 { return &v }
