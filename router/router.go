// Package router demultiplexes inbound socket frames by logical topic and
// multiplexes subscribe/unsubscribe/publish frames onto the transport.
package router

import (
	"errors"
	"log"
	"sync"

	"marketlink/protocol"
	"marketlink/transport"
)

// Link is the outbound half of the transport the router drives. Send fails
// fast while disconnected; Enqueue holds a frame for replay after reconnect.
type Link interface {
	Send(f *protocol.Frame) error
	Enqueue(f *protocol.Frame) (string, error)
}

// Listener receives decoded payloads for one topic, in transport delivery
// order.
type Listener func(topic string, payload any)

// Subscription is the handle returned by Subscribe, used to unsubscribe.
type Subscription struct {
	topic string
	id    int64
}

type listener struct {
	id int64
	fn Listener
}

type topicEntry struct {
	listeners []listener
}

// Router fans inbound frames out to per-topic listener sets. Topic
// membership is reference-counted: the first listener triggers a subscribe
// frame upstream, the last unsubscribe triggers an unsubscribe frame.
type Router struct {
	link   Link
	frames <-chan *protocol.Frame

	mu     sync.Mutex
	topics map[string]*topicEntry
	order  []string // active topics in original subscription order
	nextID int64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a router reading from the given inbound frame stream and
// writing through link.
func New(link Link, frames <-chan *protocol.Frame) *Router {
	return &Router{
		link:   link,
		frames: frames,
		topics: make(map[string]*topicEntry),
		stopCh: make(chan struct{}),
	}
}

// Attach wires the router to a transport connection: inbound dispatch plus
// the resubscribe replay provider.
func Attach(conn *transport.Conn) *Router {
	r := New(conn, conn.Frames())
	conn.SetReplayProvider(r.SubscribeFrames)
	return r
}

// Start begins the dispatch loop.
func (r *Router) Start() {
	r.wg.Add(1)
	go r.dispatchLoop()
}

// Stop halts dispatch. Pending listeners finish their current frame.
func (r *Router) Stop() {
	select {
	case <-r.stopCh:
	default:
		close(r.stopCh)
	}
	r.wg.Wait()
}

// Subscribe registers a listener for a topic. The first listener on a topic
// sends exactly one subscribe frame upstream; further listeners piggyback on
// the existing subscription.
func (r *Router) Subscribe(topic string, fn Listener) Subscription {
	r.mu.Lock()
	entry, ok := r.topics[topic]
	if !ok {
		entry = &topicEntry{}
		r.topics[topic] = entry
		r.order = append(r.order, topic)
	}
	r.nextID++
	sub := Subscription{topic: topic, id: r.nextID}
	entry.listeners = append(entry.listeners, listener{id: sub.id, fn: fn})
	first := len(entry.listeners) == 1
	r.mu.Unlock()

	if first {
		r.sendOrQueue(protocol.NewSubscribeFrame(topic))
	}
	return sub
}

// Unsubscribe removes a listener. When the last listener for a topic is
// gone, an unsubscribe frame is sent upstream and the topic leaves the
// reconnect replay set.
func (r *Router) Unsubscribe(sub Subscription) {
	r.mu.Lock()
	entry, ok := r.topics[sub.topic]
	if !ok {
		r.mu.Unlock()
		return
	}
	for i, l := range entry.listeners {
		if l.id == sub.id {
			entry.listeners = append(entry.listeners[:i], entry.listeners[i+1:]...)
			break
		}
	}
	last := len(entry.listeners) == 0
	if last {
		delete(r.topics, sub.topic)
		for i, t := range r.order {
			if t == sub.topic {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()

	if last {
		r.sendOrQueue(protocol.NewUnsubscribeFrame(sub.topic))
	}
}

// Publish sends an application payload on a topic, queueing it for replay if
// the transport is down.
func (r *Router) Publish(topic string, payload any) error {
	f, err := protocol.NewPublishFrame(topic, payload)
	if err != nil {
		return err
	}
	r.sendOrQueue(f)
	return nil
}

// SubscribeFrames returns subscribe frames for every topic with a non-zero
// listener count, in original subscription order. The transport replays
// these ahead of the queued envelopes on every reconnect.
func (r *Router) SubscribeFrames() []*protocol.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	frames := make([]*protocol.Frame, 0, len(r.order))
	for _, topic := range r.order {
		frames = append(frames, protocol.NewSubscribeFrame(topic))
	}
	return frames
}

func (r *Router) sendOrQueue(f *protocol.Frame) {
	err := r.link.Send(f)
	if err == nil {
		return
	}
	if !errors.Is(err, transport.ErrNotConnected) {
		log.Printf("router: send %s %s: %v", f.Type, f.Topic, err)
	}
	if _, qerr := r.link.Enqueue(f); qerr != nil {
		log.Printf("router: enqueue %s %s: %v", f.Type, f.Topic, qerr)
	}
}

func (r *Router) dispatchLoop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.stopCh:
			return
		case f, ok := <-r.frames:
			if !ok {
				return
			}
			r.dispatch(f)
		}
	}
}

// dispatch decodes a publish frame once and fans it out. A malformed frame
// is logged and dropped without affecting delivery on other topics.
func (r *Router) dispatch(f *protocol.Frame) {
	if f.Type != protocol.FramePublish {
		return
	}

	payload, err := protocol.DecodeTopicPayload(f.Topic, f.Payload)
	if err != nil {
		log.Printf("router: dropping frame on %s: %v", f.Topic, err)
		return
	}

	r.mu.Lock()
	entry, ok := r.topics[f.Topic]
	if !ok {
		r.mu.Unlock()
		return
	}
	subs := make([]listener, len(entry.listeners))
	copy(subs, entry.listeners)
	r.mu.Unlock()

	// Listeners run synchronously in subscription order so per-topic
	// ordering matches transport delivery order.
	for _, l := range subs {
		l.fn(f.Topic, payload)
	}
}
