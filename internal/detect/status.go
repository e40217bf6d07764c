package detect

import (
	"fmt"
	"strings"

	"agentwatch/internal/model"
)

// StatusInput is the evidence considered when recomputing a pane's status.
type StatusInput struct {
	Now                int64
	PaneLastActivity    *int64
	PaneDead            bool
	PaneCurrentCommand  *string
	OutputLine          *string
}

// StatusConfig tunes the idle threshold.
type StatusConfig struct {
	IdleThresholdSecs int64
}

// DefaultStatusConfig mirrors the upstream default.
func DefaultStatusConfig() StatusConfig {
	return StatusConfig{IdleThresholdSecs: 300}
}

// StatusResult is the recomputed pane status plus the reason it was chosen.
type StatusResult struct {
	Status model.PaneStatus
	Reason string
}

// DetectStatus is a total, stateless function: the same input always
// produces the same output, independent of any prior call. Priority order:
// Ended (pane dead) > Waiting (prompt-shaped output with recent activity) >
// Active (output matches a working pattern) > Idle (no recent activity) >
// Active (fallback, tagged with the current command).
func DetectStatus(input StatusInput, config StatusConfig) StatusResult {
	if input.PaneDead {
		return StatusResult{Status: model.PaneEnded, Reason: "pane_dead"}
	}

	recentActivity := false
	if input.PaneLastActivity != nil {
		recentActivity = input.Now-*input.PaneLastActivity <= config.IdleThresholdSecs
	}

	var output string
	if input.OutputLine != nil {
		output = stripANSI(*input.OutputLine)
	}

	if recentActivity && input.OutputLine != nil && isWaitingPattern(output) {
		return StatusResult{Status: model.PaneWaiting, Reason: "waiting_pattern"}
	}

	if input.OutputLine != nil && isActivePattern(output) {
		return StatusResult{Status: model.PaneActive, Reason: "active_pattern"}
	}

	if !recentActivity {
		return StatusResult{Status: model.PaneIdle, Reason: "idle_timeout"}
	}

	commandHint := "unknown"
	if input.PaneCurrentCommand != nil {
		commandHint = *input.PaneCurrentCommand
	}
	return StatusResult{Status: model.PaneActive, Reason: fmt.Sprintf("recent_activity:%s", commandHint)}
}

func isWaitingPattern(input string) bool {
	lowered := strings.ToLower(input)
	if strings.Contains(lowered, "waiting for input") {
		return true
	}
	if strings.Contains(lowered, "(y/n)") || strings.Contains(lowered, "press enter") {
		return true
	}
	if strings.HasSuffix(strings.TrimRight(input, " \t"), ">") {
		return true
	}
	return false
}

func isActivePattern(input string) bool {
	lowered := strings.ToLower(input)
	if strings.Contains(lowered, "thinking...") || strings.Contains(lowered, "processing") {
		return true
	}
	if strings.Contains(lowered, "reading") && strings.Contains(lowered, "file") {
		return true
	}
	if strings.Contains(lowered, "executing") {
		return true
	}
	return false
}
