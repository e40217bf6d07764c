package parser

import "encoding/json"

// AgentStatusTail is the parsed result of the agent-status JSON tail
// command. Raw is always preserved even though nothing downstream reads it
// today — see the open question recorded in DESIGN.md.
type AgentStatusTail struct {
	Session *string
	Pane    *string
	Lines   []string
	Raw     any
}

// ParseAgentStatusTail accepts either an array of strings or an object
// {session?, pane?, lines: []}. Malformed JSON is the only failure mode.
func ParseAgentStatusTail(input string) (AgentStatusTail, error) {
	var raw any
	if err := json.Unmarshal([]byte(input), &raw); err != nil {
		return AgentStatusTail{}, &ParseError{Line: input, Reason: "invalid json: " + err.Error()}
	}

	out := AgentStatusTail{Raw: raw}
	switch value := raw.(type) {
	case []any:
		for _, item := range value {
			if s, ok := item.(string); ok {
				out.Lines = append(out.Lines, s)
			}
		}
	case map[string]any:
		if s, ok := value["session"].(string); ok {
			out.Session = &s
		}
		if s, ok := value["pane"].(string); ok {
			out.Pane = &s
		}
		if lines, ok := value["lines"].([]any); ok {
			for _, item := range lines {
				if s, ok := item.(string); ok {
					out.Lines = append(out.Lines, s)
				}
			}
		}
	}
	return out, nil
}
