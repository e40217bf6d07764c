package rpc

import (
	"encoding/json"
	"testing"
)

func TestConfigGetReportsCaptureOutput(t *testing.T) {
	ctx := testContext()
	result, rpcErr := configGet(ctx)
	if rpcErr != nil {
		t.Fatalf("unexpected error: %v", rpcErr)
	}
	cfg := result.(map[string]any)["config"].(map[string]any)
	if cfg["adminMode"] != false {
		t.Fatalf("expected adminMode false, got %+v", cfg)
	}
	if cfg["captureOutput"] != false {
		t.Fatalf("expected captureOutput false by default, got %+v", cfg)
	}
}

func TestConfigSetRequiresAdmin(t *testing.T) {
	ctx := testContext()
	raw, _ := json.Marshal(map[string]any{"foo": "bar"})
	_, rpcErr := configSet(ctx, raw)
	if rpcErr == nil || rpcErr.Code != CodeForbidden {
		t.Fatalf("expected CodeForbidden, got %v", rpcErr)
	}
}

func TestConfigSetAppliesAsAdmin(t *testing.T) {
	ctx := testContext()
	ctx.IsAdmin = true
	raw, _ := json.Marshal(map[string]any{"foo": "bar"})
	result, rpcErr := configSet(ctx, raw)
	if rpcErr != nil {
		t.Fatalf("unexpected error: %v", rpcErr)
	}
	if result.(map[string]any)["applied"] != true {
		t.Fatalf("expected applied=true, got %+v", result)
	}
}

func TestConfigReloadRequiresAdmin(t *testing.T) {
	ctx := testContext()
	_, rpcErr := configReload(ctx)
	if rpcErr == nil || rpcErr.Code != CodeForbidden {
		t.Fatalf("expected CodeForbidden, got %v", rpcErr)
	}
}

func TestConfigReloadAsAdminWithoutBackingFileIsNoop(t *testing.T) {
	ctx := testContext()
	ctx.IsAdmin = true
	result, rpcErr := configReload(ctx)
	if rpcErr != nil {
		t.Fatalf("unexpected error: %v", rpcErr)
	}
	if result.(map[string]any)["reloaded"] != true {
		t.Fatalf("expected reloaded=true, got %+v", result)
	}
}

func TestDetectorsListReturnsThreeEntries(t *testing.T) {
	ctx := testContext()
	result, rpcErr := detectorsList(ctx)
	if rpcErr != nil {
		t.Fatalf("unexpected error: %v", rpcErr)
	}
	detectors := result.(map[string]any)["detectors"].([]map[string]any)
	if len(detectors) != 3 {
		t.Fatalf("expected 3 detectors, got %d", len(detectors))
	}
}

func TestDetectorsReloadRequiresAdmin(t *testing.T) {
	ctx := testContext()
	_, rpcErr := detectorsReload(ctx)
	if rpcErr == nil || rpcErr.Code != CodeForbidden {
		t.Fatalf("expected CodeForbidden, got %v", rpcErr)
	}
}
