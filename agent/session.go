package agent

import (
	"github.com/google/uuid"
	"github.com/sweetpotato0/nl2sql/message"
)

// session is the per-request mutable state: an append-only message history
// and the iteration counter. It is owned by exactly one in-flight run and
// discarded when the run terminates.
type session struct {
	id         string
	messages   []*message.Message
	iterations int
}

func newSession(history ...*message.Message) *session {
	return &session{
		id:       uuid.NewString(),
		messages: append([]*message.Message(nil), history...),
	}
}

// append adds a message to the history. Prior entries are never mutated.
func (s *session) append(msg *message.Message) {
	if msg == nil {
		return
	}
	s.messages = append(s.messages, msg)
}

// history returns a snapshot of the message sequence.
func (s *session) history() []*message.Message {
	return append([]*message.Message(nil), s.messages...)
}
