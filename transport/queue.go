package transport

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Envelope is an outbound frame held while the connection is down. Envelopes
// are replayed in enqueue order after reconnect and are only dropped by
// explicit TTL expiry.
type Envelope struct {
	ID         string
	Topic      string
	Data       []byte
	EnqueuedAt time.Time
}

// Queue is a FIFO of pending outbound envelopes. A zero TTL keeps envelopes
// forever.
type Queue struct {
	mu   sync.Mutex
	ttl  time.Duration
	envs []Envelope
}

// NewQueue creates a queue with the given TTL policy.
func NewQueue(ttl time.Duration) *Queue {
	return &Queue{ttl: ttl}
}

// Enqueue appends an envelope for the topic and returns its ID.
func (q *Queue) Enqueue(topic string, data []byte) string {
	env := Envelope{
		ID:         uuid.New().String(),
		Topic:      topic,
		Data:       data,
		EnqueuedAt: time.Now(),
	}
	q.mu.Lock()
	q.envs = append(q.envs, env)
	q.mu.Unlock()
	return env.ID
}

// Drain removes and returns all unexpired envelopes in enqueue order.
func (q *Queue) Drain() []Envelope {
	q.mu.Lock()
	defer q.mu.Unlock()

	envs := q.envs
	q.envs = nil
	if q.ttl <= 0 {
		return envs
	}

	cutoff := time.Now().Add(-q.ttl)
	kept := envs[:0]
	for _, e := range envs {
		if e.EnqueuedAt.After(cutoff) {
			kept = append(kept, e)
		}
	}
	return kept
}

// Requeue puts envelopes back at the front, preserving order. Used when a
// replay flush fails partway so nothing is lost.
func (q *Queue) Requeue(envs []Envelope) {
	if len(envs) == 0 {
		return
	}
	q.mu.Lock()
	q.envs = append(envs, q.envs...)
	q.mu.Unlock()
}

// Len returns the number of queued envelopes.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.envs)
}
