package detect

import (
	"regexp"
	"strings"
	"sync"
)

// AgentType identifies which CLI agent (or plain shell) a pane is running.
type AgentType string

const (
	AgentClaude  AgentType = "claude"
	AgentCodex   AgentType = "codex"
	AgentGemini  AgentType = "gemini"
	AgentShell   AgentType = "shell"
	AgentUnknown AgentType = "unknown"
)

// ParseAgentType maps a stored string back to an AgentType, defaulting to
// AgentUnknown for anything unrecognized.
func ParseAgentType(s string) AgentType {
	switch strings.ToLower(s) {
	case string(AgentClaude):
		return AgentClaude
	case string(AgentCodex):
		return AgentCodex
	case string(AgentGemini):
		return AgentGemini
	case string(AgentShell):
		return AgentShell
	default:
		return AgentUnknown
	}
}

// AgentDetection is the outcome of classifying a pane's agent type.
type AgentDetection struct {
	AgentType      AgentType
	Confidence     float32
	MatchedPattern *string
}

var (
	agentTypePatternsOnce sync.Once
	claudePattern         *regexp.Regexp
	codexPattern          *regexp.Regexp
	geminiPattern         *regexp.Regexp
	shellPattern          *regexp.Regexp
)

func compileAgentTypePatterns() {
	claudePattern = regexp.MustCompile(`(?i)(claude>|Claude Code|claude-code|anthropic)`)
	codexPattern = regexp.MustCompile(`(?i)(codex>|OpenAI Codex|codex-cli|openai codex)`)
	geminiPattern = regexp.MustCompile(`(?i)(gemini>|Google Gemini|gemini-cli|google gemini)`)
	shellPattern = regexp.MustCompile(`(?m)(\$\s*$|bash-\d|#\s*$|❯\s*|➜\s*|>\s*$)`)
}

// DetectAgentType classifies pane output by priority: Claude, Codex,
// Gemini, then a generic shell-prompt pattern, lowest priority since agent
// CLIs can also echo shell-like prompts.
func DetectAgentType(paneOutput string) AgentDetection {
	agentTypePatternsOnce.Do(compileAgentTypePatterns)
	stripped := stripANSI(paneOutput)

	if m := claudePattern.FindString(stripped); m != "" {
		return AgentDetection{AgentType: AgentClaude, Confidence: 0.9, MatchedPattern: &m}
	}
	if m := codexPattern.FindString(stripped); m != "" {
		return AgentDetection{AgentType: AgentCodex, Confidence: 0.9, MatchedPattern: &m}
	}
	if m := geminiPattern.FindString(stripped); m != "" {
		return AgentDetection{AgentType: AgentGemini, Confidence: 0.9, MatchedPattern: &m}
	}
	if m := shellPattern.FindString(stripped); m != "" {
		return AgentDetection{AgentType: AgentShell, Confidence: 0.6, MatchedPattern: &m}
	}
	return AgentDetection{AgentType: AgentUnknown, Confidence: 0}
}

// DetectFromCommand classifies the current foreground command of a pane,
// returning nil when nothing recognizable is running.
func DetectFromCommand(command *string) *AgentDetection {
	if command == nil {
		return nil
	}
	lowered := strings.ToLower(*command)

	switch {
	case strings.Contains(lowered, "claude"):
		return &AgentDetection{AgentType: AgentClaude, Confidence: 0.95, MatchedPattern: command}
	case strings.Contains(lowered, "codex"):
		return &AgentDetection{AgentType: AgentCodex, Confidence: 0.95, MatchedPattern: command}
	case strings.Contains(lowered, "gemini"):
		return &AgentDetection{AgentType: AgentGemini, Confidence: 0.95, MatchedPattern: command}
	}

	switch lowered {
	case "bash", "zsh", "fish", "sh", "dash":
		return &AgentDetection{AgentType: AgentShell, Confidence: 0.8, MatchedPattern: command}
	}

	return nil
}

// CombinedDetection prefers a high-confidence command-based match, falls
// back to output-based detection, then to a lower-confidence command match,
// and finally to AgentUnknown.
func CombinedDetection(paneOutput *string, command *string) AgentDetection {
	if detection := DetectFromCommand(command); detection != nil && detection.Confidence >= 0.9 {
		return *detection
	}

	if paneOutput != nil {
		detection := DetectAgentType(*paneOutput)
		if detection.AgentType != AgentUnknown {
			return detection
		}
	}

	if detection := DetectFromCommand(command); detection != nil {
		return *detection
	}

	return AgentDetection{AgentType: AgentUnknown, Confidence: 0}
}
