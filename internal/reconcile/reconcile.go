// Package reconcile diffs a parsed agent-status snapshot against the cache,
// minting or updating session and pane identities while preserving them
// across agent-status restarts.
package reconcile

import (
	"strconv"
	"strings"
	"time"

	"agentwatch/internal/model"
	"agentwatch/internal/parser"
)

const sourceAgentStatus = "agent-status"

// Source is the read side of the cache the reconciler needs. Defined here,
// not in the cache package, so the cache stays free of a reconciler import.
type Source interface {
	AllSessions() []model.Session
	AllPanes() []model.Pane
	GetPane(paneUID string) (model.Pane, bool)
}

// Result is the outcome of one reconcile pass.
type Result struct {
	Sessions      []model.Session
	Panes         []model.Pane
	EndedSessions int
}

// ChangeCount is the total number of session+pane records touched this
// pass; collectors publish a StateChange only when this is non-zero.
func (r Result) ChangeCount() int {
	return len(r.Sessions) + len(r.Panes)
}

// Reconcile diffs markdown against cache, using and updating the two
// persistent lookup maps so identity survives an agent-status restart.
// sessionUIDByName and paneUIDByKey are owned by the caller (typically the
// agent-status collector) and must be reused across calls.
func Reconcile(
	cache Source,
	markdown parser.AgentStatusMarkdown,
	now time.Time,
	sessionUIDByName map[string]string,
	paneUIDByKey map[string]string,
) Result {
	existingSessions := cache.AllSessions()
	sessionByName := make(map[string]model.Session, len(existingSessions))
	sessionNameByUID := make(map[string]string, len(existingSessions))
	for _, session := range existingSessions {
		sessionByName[session.Name] = session
		sessionNameByUID[session.SessionUID] = session.Name
		if _, ok := sessionUIDByName[session.Name]; !ok {
			sessionUIDByName[session.Name] = session.SessionUID
		}
	}

	if len(paneUIDByKey) == 0 {
		for _, pane := range cache.AllPanes() {
			if sessionName, ok := sessionNameByUID[pane.SessionUID]; ok {
				key := sessionName + ":" + strconv.Itoa(pane.PaneIndex)
				if _, ok := paneUIDByKey[key]; !ok {
					paneUIDByKey[key] = pane.PaneUID
				}
			}
		}
	}

	sessionsOut := make(map[string]model.Session)
	var panesOut []model.Pane
	seenSessions := make(map[string]bool)
	paneCounts := make(map[string]int)

	for _, session := range markdown.Sessions {
		record := upsertSession(session, now, sessionByName, sessionUIDByName)
		seenSessions[record.Name] = true
		sessionsOut[record.Name] = record
	}

	for _, pane := range markdown.Panes {
		sessionName := pane.Session
		sessionUID, ok := sessionUIDByName[sessionName]
		if !ok {
			if existing, ok := sessionByName[sessionName]; ok {
				sessionUID = existing.SessionUID
			} else {
				sessionUID = model.NewSession(sourceAgentStatus, sessionName, nil, now).SessionUID
			}
			sessionUIDByName[sessionName] = sessionUID
		}

		if !seenSessions[sessionName] {
			fallback := parser.AgentSession{Name: sessionName}
			record := upsertSession(fallback, now, sessionByName, sessionUIDByName)
			seenSessions[record.Name] = true
			sessionsOut[record.Name] = record
		}

		paneIndex := parsePaneIndex(pane.Pane)
		paneKey := sessionName + ":" + pane.Pane
		numericKey := sessionName + ":" + strconv.Itoa(paneIndex)

		paneUID, ok := paneUIDByKey[paneKey]
		if !ok {
			paneUID, ok = paneUIDByKey[numericKey]
		}
		if !ok {
			paneUID = model.NewUID()
		}
		if _, ok := paneUIDByKey[paneKey]; !ok {
			paneUIDByKey[paneKey] = paneUID
		}
		if _, ok := paneUIDByKey[numericKey]; !ok {
			paneUIDByKey[numericKey] = paneUID
		}

		record, ok := cache.GetPane(paneUID)
		if !ok {
			record = model.NewPane(sessionUID, paneIndex, now, nil, nil, nil)
			record.PaneUID = paneUID
		}
		record.SessionUID = sessionUID
		record.PaneIndex = paneIndex
		record.LastSeenAt = now

		if pane.Agent != nil && *pane.Agent != "" {
			agent := *pane.Agent
			record.AgentType = &agent
		}
		if status, ok := mapPaneStatus(pane.Status); ok {
			record.Status = status
			reason := "agent_status"
			record.StatusReason = &reason
		}
		if command, ok := extractMetadata(pane.Metadata, "command", "cmd", "current_command"); ok {
			record.CurrentCommand = &command
		}

		panesOut = append(panesOut, record)
		paneCounts[sessionUID]++
	}

	endedSessions := 0
	for sessionName := range sessionUIDByName {
		if seenSessions[sessionName] {
			continue
		}
		session, ok := sessionByName[sessionName]
		if !ok {
			continue
		}
		if session.SourceID != sourceAgentStatus || session.EndedAt != nil {
			continue
		}
		endedAt := now
		session.EndedAt = &endedAt
		session.Status = model.SessionEnded
		reason := "agent_missing"
		session.StatusReason = &reason
		sessionsOut[sessionName] = session
		endedSessions++
	}

	for name, session := range sessionsOut {
		if count, ok := paneCounts[session.SessionUID]; ok {
			session.PaneCount = count
			sessionsOut[name] = session
		}
	}

	sessions := make([]model.Session, 0, len(sessionsOut))
	for _, session := range sessionsOut {
		sessions = append(sessions, session)
	}

	return Result{Sessions: sessions, Panes: panesOut, EndedSessions: endedSessions}
}

func upsertSession(
	session parser.AgentSession,
	now time.Time,
	sessionByName map[string]model.Session,
	sessionUIDByName map[string]string,
) model.Session {
	sessionUID, ok := sessionUIDByName[session.Name]
	if !ok {
		if existing, ok := sessionByName[session.Name]; ok {
			sessionUID = existing.SessionUID
		} else {
			sessionUID = model.NewUID()
		}
		sessionUIDByName[session.Name] = sessionUID
	}

	record, ok := sessionByName[session.Name]
	if !ok {
		record = model.NewSession(sourceAgentStatus, session.Name, nil, now)
	}
	record.SessionUID = sessionUID
	record.LastSeenAt = now
	record.EndedAt = nil

	if status, ok := mapSessionStatus(session.Status); ok {
		record.Status = status
		reason := "agent_status"
		record.StatusReason = &reason
	}
	if len(session.Metadata) > 0 {
		metadata := make(map[string]any, len(session.Metadata))
		for k, v := range session.Metadata {
			metadata[k] = v
		}
		record.Metadata = metadata
	}
	return record
}

func parsePaneIndex(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return n
}

func mapSessionStatus(status *string) (model.SessionStatus, bool) {
	if status == nil {
		return "", false
	}
	switch strings.ToLower(strings.TrimSpace(*status)) {
	case "active", "running", "working":
		return model.SessionActive, true
	case "idle":
		return model.SessionIdle, true
	case "ended", "stopped", "dead":
		return model.SessionEnded, true
	default:
		return "", false
	}
}

func mapPaneStatus(status *string) (model.PaneStatus, bool) {
	if status == nil {
		return "", false
	}
	switch strings.ToLower(strings.TrimSpace(*status)) {
	case "active", "running", "working":
		return model.PaneActive, true
	case "waiting":
		return model.PaneWaiting, true
	case "idle":
		return model.PaneIdle, true
	case "ended", "stopped", "dead":
		return model.PaneEnded, true
	default:
		return "", false
	}
}

func extractMetadata(metadata map[string]string, keys ...string) (string, bool) {
	for _, key := range keys {
		if value, ok := metadata[strings.ToLower(key)]; ok && value != "" {
			return value, true
		}
	}
	return "", false
}
