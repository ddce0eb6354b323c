package agent

import (
	"sync"

	"github.com/fabfab/support-agent/llm"
)

// Session holds the append-only conversation history for one conversation.
// The host owns its lifecycle; histories are never shared across
// conversations. Appends are serialized so concurrent requests on the same
// session keep turn ordering intact.
type Session struct {
	mu    sync.Mutex
	turns []llm.Message
}

func NewSession() *Session {
	return &Session{}
}

// Turns returns a snapshot of the recorded history.
func (s *Session) Turns() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Message(nil), s.turns...)
}

func (s *Session) Append(messages ...llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, messages...)
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}
