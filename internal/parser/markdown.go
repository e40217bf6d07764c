package parser

import (
	"strings"
)

// AgentSession is a session row parsed from an agent-status markdown table.
type AgentSession struct {
	Name     string
	Status   *string
	Metadata map[string]string
}

// AgentPane is a pane row parsed from an agent-status markdown table.
type AgentPane struct {
	Session  string
	Pane     string
	Status   *string
	Agent    *string
	Metadata map[string]string
}

// AgentStatusMarkdown is the full set of rows parsed from one table.
type AgentStatusMarkdown struct {
	Sessions []AgentSession
	Panes    []AgentPane
}

var (
	sessionAliases = []string{"session", "session_name", "name"}
	paneAliases    = []string{"pane", "pane_id", "pane index"}
	statusAliases  = []string{"status", "state"}
	agentAliases   = []string{"agent", "agent_type"}
)

// ParseAgentStatusMarkdown extracts markdown-table rows. Column names are
// matched case-insensitively against alias lists. Rows carrying a pane
// column become panes; rows carrying only a session column become
// sessions. A missing header is the only fatal condition.
func ParseAgentStatusMarkdown(input string) (AgentStatusMarkdown, error) {
	rows, err := parseMarkdownTable(input)
	if err != nil {
		return AgentStatusMarkdown{}, err
	}

	var out AgentStatusMarkdown
	for _, row := range rows {
		if paneValue, ok := getField(row, paneAliases); ok {
			sessionValue, ok := getField(row, sessionAliases)
			if !ok {
				sessionValue = "unknown"
			}
			out.Panes = append(out.Panes, AgentPane{
				Session:  sessionValue,
				Pane:     paneValue,
				Status:   getFieldPtr(row, statusAliases),
				Agent:    getFieldPtr(row, agentAliases),
				Metadata: row,
			})
		} else if sessionValue, ok := getField(row, sessionAliases); ok {
			out.Sessions = append(out.Sessions, AgentSession{
				Name:     sessionValue,
				Status:   getFieldPtr(row, statusAliases),
				Metadata: row,
			})
		}
	}
	return out, nil
}

func parseMarkdownTable(input string) ([]map[string]string, error) {
	var tableLines []string
	for _, line := range strings.Split(input, "\n") {
		if strings.Contains(line, "|") {
			tableLines = append(tableLines, line)
		}
	}
	if len(tableLines) == 0 {
		return nil, &ParseError{Line: input, Reason: "missing header"}
	}

	headers := splitRow(tableLines[0])

	var rows []map[string]string
	for _, line := range tableLines[1:] {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "|") && strings.Contains(line, "---") {
			continue
		}
		values := splitRow(line)
		if len(values) == 0 {
			continue
		}
		row := make(map[string]string)
		for idx, header := range headers {
			var value string
			if idx < len(values) {
				value = values[idx]
			}
			if header != "" {
				row[strings.ToLower(header)] = value
			}
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func splitRow(line string) []string {
	trimmed := strings.Trim(strings.TrimSpace(line), "|")
	parts := strings.Split(trimmed, "|")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}

func getField(row map[string]string, keys []string) (string, bool) {
	for _, key := range keys {
		if value, ok := row[strings.ToLower(key)]; ok && value != "" {
			return value, true
		}
	}
	return "", false
}

func getFieldPtr(row map[string]string, keys []string) *string {
	if value, ok := getField(row, keys); ok {
		return &value
	}
	return nil
}
