// Package agentstatus wraps the agent-status side-channel binary behind
// the Command Runner, exposing its three query shapes (markdown snapshot,
// session tail, session list) as typed Go calls.
package agentstatus

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"agentwatch/internal/parser"
	"agentwatch/internal/runner"
)

// Config configures where the agent-status binary lives and how long each
// query shape is allowed to take.
type Config struct {
	Path             string
	StatusTimeout    time.Duration
	MarkdownTimeout  time.Duration
	TailTimeout      time.Duration
	MaxOutputBytes   int
}

// DefaultConfig holds the documented agent-status client defaults.
func DefaultConfig() Config {
	return Config{
		Path:            "agent-status",
		StatusTimeout:   10 * time.Second,
		MarkdownTimeout: 20 * time.Second,
		TailTimeout:     15 * time.Second,
		MaxOutputBytes:  256 * 1024,
	}
}

// ErrKind classifies why a client call failed.
type ErrKind int

const (
	ErrUnavailable ErrKind = iota
	ErrCommandFailed
	ErrParseFailed
)

// Error is the typed error surfaced by every Client method.
type Error struct {
	Kind   ErrKind
	Reason string
}

func (e *Error) Error() string { return e.Reason }

// Client queries the agent-status binary through the shared Command Runner
// so its calls obey the same concurrency cap and circuit breaker as every
// other child-process invocation.
type Client struct {
	runner *runner.Runner
	config Config
}

// New builds a Client.
func New(r *runner.Runner, config Config) *Client {
	return &Client{runner: r, config: config}
}

// RobotMarkdown fetches the full sessions/panes markdown snapshot.
func (c *Client) RobotMarkdown(ctx context.Context) (parser.AgentStatusMarkdown, error) {
	spec := runner.Spec{
		Program:        c.config.Path,
		Args:           []string{"--robot-markdown", "--md-compact", "--md-sections", "sessions"},
		Timeout:        c.config.MarkdownTimeout,
		MaxOutputBytes: c.config.MaxOutputBytes,
		Category:       runner.AgentStatus,
	}
	output, err := c.runner.Run(ctx, spec)
	if err != nil {
		return parser.AgentStatusMarkdown{}, mapRunnerError(err)
	}
	markdown, parseErr := parser.ParseAgentStatusMarkdown(string(output.Stdout))
	if parseErr != nil {
		return parser.AgentStatusMarkdown{}, &Error{Kind: ErrParseFailed, Reason: parseErr.Error()}
	}
	return markdown, nil
}

// RobotTail fetches the last N lines of a session's transcript.
func (c *Client) RobotTail(ctx context.Context, session string, lines int) (parser.AgentStatusTail, error) {
	spec := runner.Spec{
		Program:        c.config.Path,
		Args:           []string{"--robot-tail", session, "--lines", strconv.Itoa(lines), "--json"},
		Timeout:        c.config.TailTimeout,
		MaxOutputBytes: c.config.MaxOutputBytes,
		Category:       runner.AgentTail,
	}
	output, err := c.runner.Run(ctx, spec)
	if err != nil {
		return parser.AgentStatusTail{}, mapRunnerError(err)
	}
	tail, parseErr := parser.ParseAgentStatusTail(string(output.Stdout))
	if parseErr != nil {
		return parser.AgentStatusTail{}, &Error{Kind: ErrParseFailed, Reason: parseErr.Error()}
	}
	return tail, nil
}

// ListSessions lists known session names, one per output line.
func (c *Client) ListSessions(ctx context.Context) ([]string, error) {
	spec := runner.Spec{
		Program:        c.config.Path,
		Args:           []string{"list"},
		Timeout:        c.config.StatusTimeout,
		MaxOutputBytes: c.config.MaxOutputBytes,
		Category:       runner.AgentStatus,
	}
	output, err := c.runner.Run(ctx, spec)
	if err != nil {
		return nil, mapRunnerError(err)
	}
	return parseSessionLines(string(output.Stdout)), nil
}

func parseSessionLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func mapRunnerError(err error) error {
	var runnerErr *runner.Error
	if !errors.As(err, &runnerErr) {
		return &Error{Kind: ErrCommandFailed, Reason: err.Error()}
	}
	switch runnerErr.Kind {
	case runner.KindSpawn:
		return &Error{Kind: ErrUnavailable, Reason: "agent-status: spawn failed"}
	case runner.KindExitNonZero:
		return &Error{Kind: ErrCommandFailed, Reason: "exit code"}
	case runner.KindTimeout:
		return &Error{Kind: ErrCommandFailed, Reason: "timeout"}
	case runner.KindOutputTooLarge:
		return &Error{Kind: ErrCommandFailed, Reason: "output too large"}
	case runner.KindIO:
		return &Error{Kind: ErrCommandFailed, Reason: runnerErr.Error()}
	case runner.KindCircuitOpen:
		return &Error{Kind: ErrCommandFailed, Reason: "circuit open"}
	default:
		return &Error{Kind: ErrCommandFailed, Reason: runnerErr.Error()}
	}
}
