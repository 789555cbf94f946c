package models

import (
	"strings"
	"testing"
	"time"
)

func TestRecoveryRequest_TailOutput(t *testing.T) {
	t.Run("short output is returned whole", func(t *testing.T) {
		req := RecoveryRequest{RecentOutput: "short output"}
		if req.TailOutput() != "short output" {
			t.Errorf("TailOutput() = %q, want the full output", req.TailOutput())
		}
	})

	t.Run("long output keeps only the tail", func(t *testing.T) {
		long := strings.Repeat("x", RecoveryOutputTailBytes*2) + "THE END"
		req := RecoveryRequest{RecentOutput: long}

		tail := req.TailOutput()
		if len(tail) != RecoveryOutputTailBytes {
			t.Errorf("len(TailOutput()) = %d, want %d", len(tail), RecoveryOutputTailBytes)
		}
		if !strings.HasSuffix(tail, "THE END") {
			t.Error("TailOutput() should keep the end of the output")
		}
	})
}

func TestBuildRecoveryPrompt(t *testing.T) {
	req := RecoveryRequest{
		TaskName:        "implement parser",
		TaskDescription: "parse the plan files",
		IdleDuration:    7 * time.Minute,
		RetryCount:      1,
		MaxRetries:      3,
		RecentOutput:    "HTTP 429 rate_limit",
	}

	prompt := BuildRecoveryPrompt(req)

	for _, want := range []string{
		"implement parser",
		"parse the plan files",
		"7m0s",
		"Retries so far: 1 of 3",
		"HTTP 429 rate_limit",
		"restart",
		"abort",
		"escalate",
		"decompose",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestParseRecoveryDecision(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		expectAction string
	}{
		{
			name:         "valid restart JSON",
			raw:          `{"action": "restart", "reason": "rate limited"}`,
			expectAction: RecoveryActionRestart,
		},
		{
			name:         "valid abort JSON",
			raw:          `{"action": "abort", "reason": "credentials are wrong"}`,
			expectAction: RecoveryActionAbort,
		},
		{
			name:         "JSON wrapped in prose",
			raw:          "Here is my decision:\n{\"action\": \"escalate\", \"reason\": \"needs a human\"}\nDone.",
			expectAction: RecoveryActionEscalate,
		},
		{
			name:         "decompose with subtasks",
			raw:          `{"action": "decompose", "subtasks": ["part one", "part two"]}`,
			expectAction: RecoveryActionDecompose,
		},
		{
			name:         "decompose missing subtasks degrades to restart",
			raw:          `{"action": "decompose"}`,
			expectAction: RecoveryActionRestart,
		},
		{
			name:         "decompose with one subtask degrades to restart",
			raw:          `{"action": "decompose", "subtasks": ["only one"]}`,
			expectAction: RecoveryActionRestart,
		},
		{
			name:         "free text with action keyword",
			raw:          "I think you should abort this task, the credentials are invalid.",
			expectAction: RecoveryActionAbort,
		},
		{
			name:         "unrecognized text defaults to restart",
			raw:          "no idea what to do here",
			expectAction: RecoveryActionRestart,
		},
		{
			name:         "empty response defaults to restart",
			raw:          "",
			expectAction: RecoveryActionRestart,
		},
		{
			name:         "unknown action in JSON defaults to restart",
			raw:          `{"action": "reboot"}`,
			expectAction: RecoveryActionRestart,
		},
		{
			name:         "action is case-normalized",
			raw:          `{"action": "ABORT"}`,
			expectAction: RecoveryActionAbort,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := ParseRecoveryDecision(tt.raw)
			if decision.Action != tt.expectAction {
				t.Errorf("ParseRecoveryDecision(%q).Action = %q, want %q", tt.raw, decision.Action, tt.expectAction)
			}
		})
	}
}

func TestParseRecoveryDecision_KeepsSubtasks(t *testing.T) {
	decision := ParseRecoveryDecision(`{"action": "decompose", "subtasks": ["split the parser", "split the writer"]}`)
	if len(decision.Subtasks) != 2 {
		t.Fatalf("len(Subtasks) = %d, want 2", len(decision.Subtasks))
	}
	if decision.Subtasks[0] != "split the parser" {
		t.Errorf("Subtasks[0] = %q", decision.Subtasks[0])
	}
}

func TestRecoveryDecisionSchema(t *testing.T) {
	schema := RecoveryDecisionSchema()
	for _, want := range []string{`"action"`, "restart", "abort", "escalate", "decompose", `"subtasks"`} {
		if !strings.Contains(schema, want) {
			t.Errorf("schema missing %q", want)
		}
	}
}
