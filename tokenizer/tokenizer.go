// Package tokenizer provides token counting and history trimming so that long
// conversations stay within a model's context budget.
package tokenizer

import (
	"encoding/json"

	"github.com/pkoukk/tiktoken-go"

	"github.com/sweetpotato0/nl2sql/message"
)

// Counter counts tokens for a piece of text.
type Counter interface {
	Count(text string) int
}

// Tiktoken counts tokens using OpenAI BPE encodings.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken resolves an encoding by model name, falling back to lookup by
// encoding name (e.g. "cl100k_base").
func NewTiktoken(name string) (*Tiktoken, error) {
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		enc, err = tiktoken.GetEncoding(name)
		if err != nil {
			return nil, err
		}
	}
	return &Tiktoken{enc: enc}, nil
}

func (t *Tiktoken) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t *Tiktoken) Count(text string) int {
	return len(t.Encode(text))
}

func (t *Tiktoken) Decode(ids []int) string {
	return t.enc.Decode(ids)
}

// messageTokens approximates the token cost of a message: its content plus a
// small per-message framing overhead.
func messageTokens(c Counter, msg *message.Message) int {
	const overhead = 4
	n := c.Count(msg.Content) + overhead
	for _, call := range msg.ToolCalls {
		n += c.Count(call.Name)
		if len(call.Args) > 0 {
			if raw, err := json.Marshal(call.Args); err == nil {
				n += c.Count(string(raw))
			}
		}
	}
	return n
}

// TrimMessages drops the oldest non-system messages until the history fits
// within budget. System messages are always kept, as is the most recent
// message regardless of size. The input slice is not modified.
func TrimMessages(msgs []*message.Message, c Counter, budget int) []*message.Message {
	if c == nil || budget <= 0 || len(msgs) == 0 {
		return msgs
	}

	total := 0
	for _, m := range msgs {
		total += messageTokens(c, m)
	}
	if total <= budget {
		return msgs
	}

	var system, rest []*message.Message
	for _, m := range msgs {
		if m.Role == message.RoleSystem {
			system = append(system, m)
		} else {
			rest = append(rest, m)
		}
	}

	used := 0
	for _, m := range system {
		used += messageTokens(c, m)
	}

	// An assistant message carrying tool calls and the tool results that
	// follow it trim as one unit, so a tool result never reaches the gateway
	// without its originating call.
	starts := unitStarts(rest)

	// Walk backwards keeping the newest units that fit.
	keepFrom := len(rest)
	for u := len(starts) - 1; u >= 0; u-- {
		end := len(rest)
		if u+1 < len(starts) {
			end = starts[u+1]
		}
		cost := 0
		for i := starts[u]; i < end; i++ {
			cost += messageTokens(c, rest[i])
		}
		if used+cost > budget && keepFrom < len(rest) {
			break
		}
		used += cost
		keepFrom = starts[u]
	}

	trimmed := make([]*message.Message, 0, len(system)+len(rest)-keepFrom)
	trimmed = append(trimmed, system...)
	trimmed = append(trimmed, rest[keepFrom:]...)
	return trimmed
}

// unitStarts returns the start index of each trim unit: a lone message, or an
// assistant message with tool calls grouped with its following tool results.
func unitStarts(msgs []*message.Message) []int {
	starts := make([]int, 0, len(msgs))
	for i := 0; i < len(msgs); {
		starts = append(starts, i)
		j := i + 1
		if msgs[i].Role == message.RoleAssistant && len(msgs[i].ToolCalls) > 0 {
			for j < len(msgs) && msgs[j].Role == message.RoleTool {
				j++
			}
		}
		i = j
	}
	return starts
}
