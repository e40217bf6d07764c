package rpc

import (
	"encoding/json"

	"agentwatch/internal/cache"
)

// StatsSummary is the daemon's rolled-up activity summary for today.
type StatsSummary struct {
	Sessions        int    `json:"sessions"`
	Panes           int    `json:"panes"`
	TotalCompacts   uint64 `json:"totalCompacts"`
	ActiveMinutes   uint64 `json:"activeMinutes"`
	EstimatedTokens uint64 `json:"estimatedTokens"`
}

type statsRangeParams struct {
	SessionID *string `json:"sessionId"`
	Start     *int64  `json:"start"`
	End       *int64  `json:"end"`
	Limit     *int    `json:"limit"`
}

func summaryPayload(c *cache.Cache) StatsSummary {
	today := c.StatsToday()
	return StatsSummary{
		Sessions:        c.SessionCount(),
		Panes:           c.PaneCount(),
		TotalCompacts:   today.TotalCompacts,
		ActiveMinutes:   today.ActiveMinutes,
		EstimatedTokens: today.EstimatedTokens,
	}
}

func statsSummary(ctx *Context) (Result, *Error) {
	return map[string]any{"summary": summaryPayload(ctx.Cache)}, nil
}

// statsHourly and statsDaily are rollup stubs: the cache keeps only today's
// aggregate, with no hourly/daily bucketing store behind it yet.
func statsHourly(ctx *Context, rawParams json.RawMessage) (Result, *Error) {
	if _, parseErr := ParseParams[statsRangeParams](rawParams); parseErr != nil {
		return nil, parseErr
	}
	return map[string]any{"hourly": []any{}}, nil
}

func statsDaily(ctx *Context, rawParams json.RawMessage) (Result, *Error) {
	if _, parseErr := ParseParams[statsRangeParams](rawParams); parseErr != nil {
		return nil, parseErr
	}
	return map[string]any{"daily": []any{}}, nil
}
