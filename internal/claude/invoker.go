// Package claude provides utilities for invoking the Claude CLI in headless mode.
package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultSystemPrompt is the standard system prompt enforcing JSON-only output.
// This prevents agents from outputting prose, markdown, XML tags, or other content
// that breaks JSON parsing.
const DefaultSystemPrompt = "You are a developer assistant. Your ONLY output must be valid JSON matching the provided schema. No markdown, no code fences, no XML tags, no prose, no explanations. Output raw JSON only."

// DefaultTimeout is the default headless-invocation timeout per spec.
const DefaultTimeout = 10 * time.Minute

// Invoker is a reusable client for invoking the Claude CLI in headless mode.
// It follows the http.Client pattern: create once, use many times.
// Thread-safe for concurrent use.
type Invoker struct {
	// ClaudePath is the path to the claude CLI binary.
	// Defaults to "claude" (found in PATH).
	ClaudePath string

	// Timeout bounds a single invocation. Defaults to DefaultTimeout.
	Timeout time.Duration

	// SystemPrompt is the system prompt sent with all invocations.
	// Defaults to DefaultSystemPrompt if empty when using NewInvoker.
	SystemPrompt string
}

// Request holds per-invocation configuration for a Claude CLI call.
type Request struct {
	// Prompt is the user prompt to send to Claude (required).
	Prompt string

	// Schema is the JSON schema for structured output (optional).
	Schema string

	// AgentJSON is the serialized agent definition for --agents flag (optional).
	AgentJSON string

	// ResumeID is a session ID to resume from (optional).
	ResumeID string

	// BypassPerms enables --permission-mode bypassPermissions (optional).
	BypassPerms bool
}

// Result is the normalized headless-protocol response: a
// subtype of "success" or "error", an optional result/error string, an
// optional session id, and optional cost/duration/turn counters.
type Result struct {
	Subtype      string  `json:"subtype"`
	Result       string  `json:"result,omitempty"`
	Error        string  `json:"error,omitempty"`
	SessionID    string  `json:"session_id,omitempty"`
	CostUSD      float64 `json:"cost_usd,omitempty"`
	DurationMS   int64   `json:"duration_ms,omitempty"`
	NumTurns     int     `json:"num_turns,omitempty"`
}

// IsSuccess reports whether the invocation succeeded.
func (r *Result) IsSuccess() bool { return r.Subtype == "success" }

// NewInvoker creates a new Invoker with default settings.
func NewInvoker() *Invoker {
	return &Invoker{
		ClaudePath:   "claude",
		Timeout:      DefaultTimeout,
		SystemPrompt: DefaultSystemPrompt,
	}
}

// Invoke executes a single headless Claude CLI call, bounded by Timeout
// (DefaultTimeout if unset). Exit-code-only failures (no parseable JSON on
// stdout) are normalized into a Result with Subtype "error"; success output
// that is not JSON is normalized into a Result with Subtype "success" whose
// Result field carries the raw text.
func (inv *Invoker) Invoke(ctx context.Context, req Request) (*Result, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("prompt is required")
	}

	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctxToUse, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := buildArgs(inv, req)

	claudePath := inv.ClaudePath
	if claudePath == "" {
		claudePath = "claude"
	}

	cmd := exec.CommandContext(ctxToUse, claudePath, args...)
	SetCleanEnv(cmd)

	output, runErr := cmd.CombinedOutput()
	return normalizeOutput(output, runErr), nil
}

func buildArgs(inv *Invoker, req Request) []string {
	args := []string{}

	if req.ResumeID != "" {
		args = append(args, "--resume", req.ResumeID)
	}
	if req.AgentJSON != "" {
		args = append(args, "--agents", req.AgentJSON)
	}

	systemPrompt := inv.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	args = append(args, "--system-prompt", systemPrompt)
	args = append(args, "-p", req.Prompt)

	if req.Schema != "" {
		args = append(args, "--json-schema", req.Schema)
	}
	args = append(args, "--output-format", "json")

	if req.BypassPerms {
		args = append(args, "--permission-mode", "bypassPermissions")
	}
	args = append(args, "--settings", `{"disableAllHooks": true}`)

	return args
}

// normalizeOutput maps raw CLI output + process error into the headless
// protocol's Result shape.
func normalizeOutput(output []byte, runErr error) *Result {
	var parsed Result
	if err := json.Unmarshal(output, &parsed); err == nil && parsed.Subtype != "" {
		return &parsed
	}

	// Non-JSON output: try to extract an embedded JSON object.
	text := string(output)
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		if err := json.Unmarshal([]byte(text[start:end+1]), &parsed); err == nil && parsed.Subtype != "" {
			return &parsed
		}
	}

	if runErr != nil {
		return &Result{Subtype: "error", Error: fmt.Sprintf("%v: %s", runErr, strings.TrimSpace(text))}
	}
	return &Result{Subtype: "success", Result: text}
}
