package agent

import (
	"context"

	"github.com/sweetpotato0/nl2sql/message"
)

// GenerateRequest bundles inputs for a non-streaming LLM invocation.
type GenerateRequest struct {
	Messages []*message.Message
	Tools    []map[string]any
}

// GenerateResponse captures the LLM reply for non-streaming calls. The reply
// is either a final textual answer or an ordered list of requested tool calls
// on the message.
type GenerateResponse struct {
	Message *message.Message
}

// LLMClient defines the interface for LLM providers
type LLMClient interface {
	// Generate generates a response from the LLM
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
}
