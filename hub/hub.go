// Package hub is the server-side realtime core: it tracks connected socket
// sessions, their topic subscriptions, and fans published frames out to
// local subscribers and to peer hub nodes through the broker outbox.
package hub

import (
	"log"
	"sync"

	"marketlink/protocol"
)

// PublishSink receives locally published frames for side effects beyond
// fan-out: chat persistence, cross-node forwarding.
type PublishSink func(f *protocol.Frame)

// Hub manages sessions and per-topic fan-out.
type Hub struct {
	nodeID string

	mu       sync.RWMutex
	sessions map[*Session]struct{}
	monitors map[chan []byte]struct{}
	sink     PublishSink
}

// New creates a hub for this node.
func New(nodeID string) *Hub {
	return &Hub{
		nodeID:   nodeID,
		sessions: make(map[*Session]struct{}),
		monitors: make(map[chan []byte]struct{}),
	}
}

// SetPublishSink registers the side-effect hook for inbound publishes.
func (h *Hub) SetPublishSink(sink PublishSink) {
	h.mu.Lock()
	h.sink = sink
	h.mu.Unlock()
}

// Register adds a session to the hub.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
	log.Printf("hub: session for %s connected", s.UserID)
}

// Unregister removes a session and closes its send channel.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s]; ok {
		delete(h.sessions, s)
		close(s.send)
	}
	h.mu.Unlock()
	log.Printf("hub: session for %s disconnected", s.UserID)
}

// AddMonitor registers a channel that receives every encoded frame the hub
// broadcasts, regardless of topic. Used by the admin event feed.
func (h *Hub) AddMonitor() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.monitors[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// RemoveMonitor drops a monitor channel and closes it.
func (h *Hub) RemoveMonitor(ch chan []byte) {
	h.mu.Lock()
	delete(h.monitors, ch)
	h.mu.Unlock()
	close(ch)
}

// SessionCount returns the number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// HandleFrame processes one inbound frame from a session. Control frames
// mutate the session's subscription set; publishes fan out.
func (h *Hub) HandleFrame(s *Session, f *protocol.Frame) {
	switch f.Type {
	case protocol.FrameSubscribe:
		s.subscribe(f.Topic)
	case protocol.FrameUnsubscribe:
		s.unsubscribe(f.Topic)
	case protocol.FramePing:
		s.Enqueue(protocol.NewPongFrame())
	case protocol.FramePong:
		// activity already noted by the read pump
	case protocol.FramePublish:
		h.publish(s, f)
	}
}

// publish validates the payload, fans the frame out locally, and hands it to
// the sink for persistence and cross-node delivery. Clients may only publish
// chat; order, booking and notification pushes are server-originated.
func (h *Hub) publish(from *Session, f *protocol.Frame) {
	if !protocol.IsChatTopic(f.Topic) {
		log.Printf("hub: rejecting publish from %s on restricted topic %s", from.UserID, f.Topic)
		return
	}
	if _, err := protocol.DecodeTopicPayload(f.Topic, f.Payload); err != nil {
		log.Printf("hub: rejecting publish from %s on %s: %v", from.UserID, f.Topic, err)
		return
	}

	h.Broadcast(f)

	h.mu.RLock()
	sink := h.sink
	h.mu.RUnlock()
	if sink != nil {
		sink(f)
	}
}

// Broadcast delivers a frame to every local session subscribed to its topic.
// Slow sessions drop rather than block the hub; their next resync heals the
// gap.
func (h *Hub) Broadcast(f *protocol.Frame) {
	data, err := f.Encode()
	if err != nil {
		log.Printf("hub: encode broadcast on %s: %v", f.Topic, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.sessions {
		if !s.subscribed(f.Topic) {
			continue
		}
		select {
		case s.send <- data:
		default:
			log.Printf("hub: dropping frame for slow session %s", s.UserID)
		}
	}
	for ch := range h.monitors {
		select {
		case ch <- data:
		default:
		}
	}
}
