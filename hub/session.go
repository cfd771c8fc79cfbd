package hub

import (
	"sync"

	"marketlink/protocol"
)

const sendBuffer = 64

// Session is one connected socket client and its subscription set.
type Session struct {
	UserID string

	mu     sync.Mutex
	topics map[string]struct{}
	send   chan []byte
}

// NewSession creates a session for a user.
func NewSession(userID string) *Session {
	return &Session{
		UserID: userID,
		topics: make(map[string]struct{}),
		send:   make(chan []byte, sendBuffer),
	}
}

// Outbound returns the channel the write pump drains. Closed by Unregister.
func (s *Session) Outbound() <-chan []byte { return s.send }

// Enqueue queues a frame for this session only. Drops when the session's
// buffer is full.
func (s *Session) Enqueue(f *protocol.Frame) {
	data, err := f.Encode()
	if err != nil {
		return
	}
	select {
	case s.send <- data:
	default:
	}
}

func (s *Session) subscribe(topic string) {
	if topic == "" {
		return
	}
	s.mu.Lock()
	s.topics[topic] = struct{}{}
	s.mu.Unlock()
}

func (s *Session) unsubscribe(topic string) {
	s.mu.Lock()
	delete(s.topics, topic)
	s.mu.Unlock()
}

func (s *Session) subscribed(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.topics[topic]
	return ok
}

// Topics returns a copy of the session's subscription set.
func (s *Session) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	return out
}
