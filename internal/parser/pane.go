// Package parser converts raw external output into typed records. Every
// function here is total: it returns a value or a ParseError, and never
// panics on hostile input.
package parser

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseError names the offending field and echoes the failing line.
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %q", e.Reason, e.Line)
}

// PaneMeta is one parsed pane-enumeration record.
type PaneMeta struct {
	SessionID      string
	WindowID       string
	PaneID         string
	PaneIndex      int
	PanePID        int64
	CurrentCommand string
	LastActivity   int64
	Dead           bool
	InMode         bool
}

// ParsePanes splits each non-blank line on ':' into the nine pane-
// enumeration fields. Blank lines are skipped, not errors.
func ParsePanes(text string) ([]PaneMeta, error) {
	var out []PaneMeta
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimRight(line, "\r")
		if strings.TrimSpace(trimmed) == "" {
			continue
		}
		meta, err := parsePaneLine(trimmed)
		if err != nil {
			return nil, err
		}
		out = append(out, meta)
	}
	return out, nil
}

func parsePaneLine(line string) (PaneMeta, error) {
	fields := strings.Split(line, ":")
	if len(fields) != 9 {
		return PaneMeta{}, &ParseError{Line: line, Reason: fmt.Sprintf("expected 9 fields, got %d", len(fields))}
	}

	paneIndex, err := strconv.Atoi(fields[3])
	if err != nil {
		return PaneMeta{}, &ParseError{Line: line, Reason: "bad pane_index"}
	}
	panePID, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return PaneMeta{}, &ParseError{Line: line, Reason: "bad pane_pid"}
	}
	lastActivity, err := strconv.ParseInt(fields[6], 10, 64)
	if err != nil {
		return PaneMeta{}, &ParseError{Line: line, Reason: "bad last_activity"}
	}
	dead, err := parseBool(fields[7])
	if err != nil {
		return PaneMeta{}, &ParseError{Line: line, Reason: "bad dead flag"}
	}
	inMode, err := parseBool(fields[8])
	if err != nil {
		return PaneMeta{}, &ParseError{Line: line, Reason: "bad in_mode flag"}
	}

	return PaneMeta{
		SessionID:      fields[0],
		WindowID:       fields[1],
		PaneID:         fields[2],
		PaneIndex:      paneIndex,
		PanePID:        panePID,
		CurrentCommand: fields[5],
		LastActivity:   lastActivity,
		Dead:           dead,
		InMode:         inMode,
	}, nil
}

func parseBool(field string) (bool, error) {
	switch field {
	case "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, fmt.Errorf("not 0/1: %q", field)
	}
}
