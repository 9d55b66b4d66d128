package agent

import "github.com/sweetpotato0/nl2sql/message"

// OutcomeKind discriminates the terminal states of an orchestration run.
type OutcomeKind string

const (
	// OutcomeFinalAnswer means the model produced a final textual answer.
	OutcomeFinalAnswer OutcomeKind = "final_answer"

	// OutcomeClientToolRequest means the model requested a client-side tool;
	// the caller executes it and resumes with the result appended.
	OutcomeClientToolRequest OutcomeKind = "client_tool_request"
)

// Outcome is the successful terminal state of a run. Failures are reported as
// kinded errors alongside a nil Outcome; together they form the three-way
// result of an orchestration run.
type Outcome struct {
	Kind OutcomeKind `json:"kind"`

	// Answer holds the final text when Kind is OutcomeFinalAnswer.
	Answer string `json:"answer,omitempty"`

	// ToolCall holds the pending call when Kind is OutcomeClientToolRequest.
	ToolCall *message.ToolCall `json:"tool_call,omitempty"`

	// SessionID identifies the run for logging and correlation.
	SessionID string `json:"session_id"`

	// Iterations is the number of model calls the run consumed.
	Iterations int `json:"iterations"`

	// Messages is the full conversation history. Callers resuming after a
	// client-side hand-off must pass it back; the server keeps no state.
	Messages []*message.Message `json:"messages"`
}
