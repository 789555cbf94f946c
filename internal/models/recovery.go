package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RecoveryOutputTailBytes is how much trailing agent output is included in a
// recovery classification request. Pane captures can run to megabytes; the
// tail is where the failure evidence lives.
const RecoveryOutputTailBytes = 2000

// Recovery action names a classifier may return.
const (
	RecoveryActionRestart   = "restart"
	RecoveryActionAbort     = "abort"
	RecoveryActionEscalate  = "escalate"
	RecoveryActionDecompose = "decompose"
)

// RecoveryRequest summarizes an unhealthy agent for classification: how long
// it has been idle, how often its task has been retried, and the tail of its
// recent output.
type RecoveryRequest struct {
	TaskName        string
	TaskDescription string
	IdleDuration    time.Duration
	RetryCount      int
	MaxRetries      int
	RecentOutput    string
}

// TailOutput returns the last RecoveryOutputTailBytes bytes of RecentOutput.
func (r *RecoveryRequest) TailOutput() string {
	if len(r.RecentOutput) <= RecoveryOutputTailBytes {
		return r.RecentOutput
	}
	return r.RecentOutput[len(r.RecentOutput)-RecoveryOutputTailBytes:]
}

// RecoveryDecision is a classifier's verdict on an unhealthy agent.
type RecoveryDecision struct {
	// Action is one of the RecoveryAction* constants.
	Action string `json:"action"`

	// Reason is the classifier's one-line justification.
	Reason string `json:"reason,omitempty"`

	// Subtasks carries the replacement task descriptions for a decompose
	// decision. A decompose with fewer than two subtasks is not actionable.
	Subtasks []string `json:"subtasks,omitempty"`
}

// RecoveryDecisionSchema returns the JSON schema enforced on recovery
// classification responses.
func RecoveryDecisionSchema() string {
	return `{
  "type": "object",
  "properties": {
    "action": {
      "type": "string",
      "enum": ["restart", "abort", "escalate", "decompose"],
      "description": "The recovery action to take for this agent"
    },
    "reason": {
      "type": "string",
      "description": "One-line justification for the chosen action"
    },
    "subtasks": {
      "type": "array",
      "items": {"type": "string"},
      "description": "Replacement task descriptions; required for decompose, minimum 2"
    }
  },
  "required": ["action"],
  "additionalProperties": false
}`
}

// BuildRecoveryPrompt renders a RecoveryRequest into the classification
// prompt sent to the agent binary.
func BuildRecoveryPrompt(req RecoveryRequest) string {
	var sb strings.Builder
	sb.WriteString("An AI coding agent working on a task appears to be stuck or failing. ")
	sb.WriteString("Decide the recovery action.\n\n")
	fmt.Fprintf(&sb, "Task: %s\n", req.TaskName)
	if req.TaskDescription != "" {
		fmt.Fprintf(&sb, "Description: %s\n", req.TaskDescription)
	}
	fmt.Fprintf(&sb, "Idle for: %s\n", req.IdleDuration.Round(time.Second))
	fmt.Fprintf(&sb, "Retries so far: %d of %d\n\n", req.RetryCount, req.MaxRetries)
	sb.WriteString("Recent output from the agent's terminal:\n")
	sb.WriteString("---\n")
	sb.WriteString(req.TailOutput())
	sb.WriteString("\n---\n\n")
	sb.WriteString("Choose exactly one action:\n")
	sb.WriteString("- restart: the failure looks transient; run the task again\n")
	sb.WriteString("- abort: the failure is unrecoverable; stop working on this task\n")
	sb.WriteString("- escalate: a human needs to look at this\n")
	sb.WriteString("- decompose: the task is too large; split it into subtasks (list at least 2)\n\n")
	sb.WriteString("Respond with JSON matching the schema: ")
	sb.WriteString(`{"action": "...", "reason": "...", "subtasks": ["..."]}`)
	return sb.String()
}

// ParseRecoveryDecision interprets a classifier response. Valid JSON wins;
// otherwise the text is scanned for an action keyword. Unrecognized
// responses and decompose decisions missing their subtasks both degrade to
// restart, the safest action.
func ParseRecoveryDecision(raw string) RecoveryDecision {
	decision, ok := decodeRecoveryJSON(raw)
	if !ok {
		decision = scanRecoveryKeywords(raw)
	}

	switch decision.Action {
	case RecoveryActionAbort, RecoveryActionEscalate:
		return decision
	case RecoveryActionDecompose:
		if len(decision.Subtasks) >= 2 {
			return decision
		}
		return RecoveryDecision{Action: RecoveryActionRestart, Reason: "decompose response missing subtasks"}
	case RecoveryActionRestart:
		return decision
	default:
		return RecoveryDecision{Action: RecoveryActionRestart, Reason: "unrecognized recovery response"}
	}
}

// decodeRecoveryJSON extracts and decodes the first JSON object in raw.
func decodeRecoveryJSON(raw string) (RecoveryDecision, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return RecoveryDecision{}, false
	}

	var decision RecoveryDecision
	if err := json.Unmarshal([]byte(raw[start:end+1]), &decision); err != nil {
		return RecoveryDecision{}, false
	}
	decision.Action = strings.ToLower(strings.TrimSpace(decision.Action))
	return decision, decision.Action != ""
}

// scanRecoveryKeywords falls back to keyword matching over free text.
func scanRecoveryKeywords(raw string) RecoveryDecision {
	lower := strings.ToLower(raw)
	for _, action := range []string{
		RecoveryActionAbort,
		RecoveryActionEscalate,
		RecoveryActionDecompose,
		RecoveryActionRestart,
	} {
		if strings.Contains(lower, action) {
			return RecoveryDecision{Action: action}
		}
	}
	return RecoveryDecision{}
}
