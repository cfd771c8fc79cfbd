package router

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"marketlink/protocol"
	"marketlink/transport"
)

// fakeLink records sent and enqueued frames, optionally refusing sends.
type fakeLink struct {
	mu       sync.Mutex
	sent     []*protocol.Frame
	enqueued []*protocol.Frame
	down     bool
}

func (l *fakeLink) Send(f *protocol.Frame) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.down {
		return transport.ErrNotConnected
	}
	l.sent = append(l.sent, f)
	return nil
}

func (l *fakeLink) Enqueue(f *protocol.Frame) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enqueued = append(l.enqueued, f)
	return f.ID, nil
}

func (l *fakeLink) sentOfType(ft string) []*protocol.Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*protocol.Frame
	for _, f := range l.sent {
		if f.Type == ft {
			out = append(out, f)
		}
	}
	return out
}

func newTestRouter(t *testing.T) (*Router, *fakeLink, chan *protocol.Frame) {
	t.Helper()
	link := &fakeLink{}
	frames := make(chan *protocol.Frame, 16)
	r := New(link, frames)
	r.Start()
	t.Cleanup(r.Stop)
	return r, link, frames
}

func publishFrame(t *testing.T, topic string, payload any) *protocol.Frame {
	t.Helper()
	f, err := protocol.NewPublishFrame(topic, payload)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestSubscribeSendsOneFramePerTopic(t *testing.T) {
	r, link, _ := newTestRouter(t)

	s1 := r.Subscribe(protocol.TopicOrders, func(string, any) {})
	s2 := r.Subscribe(protocol.TopicOrders, func(string, any) {})
	r.Subscribe(protocol.TopicBookings, func(string, any) {})

	if got := link.sentOfType(protocol.FrameSubscribe); len(got) != 2 {
		t.Fatalf("sent %d subscribe frames, want 2", len(got))
	}

	// Dropping one of two listeners keeps the upstream subscription.
	r.Unsubscribe(s1)
	if got := link.sentOfType(protocol.FrameUnsubscribe); len(got) != 0 {
		t.Fatalf("sent %d unsubscribe frames, want 0", len(got))
	}
	// Dropping the last listener releases it.
	r.Unsubscribe(s2)
	got := link.sentOfType(protocol.FrameUnsubscribe)
	if len(got) != 1 || got[0].Topic != protocol.TopicOrders {
		t.Fatalf("unsubscribes = %v, want one for orders", got)
	}
}

func TestDispatchDecodedPayloadInOrder(t *testing.T) {
	r, _, frames := newTestRouter(t)

	var mu sync.Mutex
	var got []string
	r.OnOrderPush(func(p *protocol.OrderPush) {
		mu.Lock()
		got = append(got, p.Status)
		mu.Unlock()
	})

	frames <- publishFrame(t, protocol.TopicOrders, &protocol.OrderPush{OrderID: "o1", Status: "PROCESSING"})
	frames <- publishFrame(t, protocol.TopicOrders, &protocol.OrderPush{OrderID: "o1", Status: "COMPLETED"})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	})
	mu.Lock()
	defer mu.Unlock()
	if got[0] != "PROCESSING" || got[1] != "COMPLETED" {
		t.Errorf("delivery order %v, want [PROCESSING COMPLETED]", got)
	}
}

func TestDispatchOnlyToMatchingTopic(t *testing.T) {
	r, _, frames := newTestRouter(t)

	var mu sync.Mutex
	var ev1, ev2 int
	r.OnEventUpdate("ev1", func(*protocol.EventUpdate) {
		mu.Lock()
		ev1++
		mu.Unlock()
	})
	r.OnEventUpdate("ev2", func(*protocol.EventUpdate) {
		mu.Lock()
		ev2++
		mu.Unlock()
	})

	frames <- publishFrame(t, protocol.EventTopic("ev1"), &protocol.EventUpdate{EventID: "ev1", Type: protocol.EventStarted})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ev1 == 1
	})
	mu.Lock()
	defer mu.Unlock()
	if ev2 != 0 {
		t.Errorf("ev2 listener fired %d times, want 0", ev2)
	}
}

func TestMalformedPayloadDoesNotStallStream(t *testing.T) {
	r, _, frames := newTestRouter(t)

	var mu sync.Mutex
	var got int
	r.OnOrderPush(func(*protocol.OrderPush) {
		mu.Lock()
		got++
		mu.Unlock()
	})

	bad := &protocol.Frame{
		Version: protocol.Version,
		Type:    protocol.FramePublish,
		Topic:   protocol.TopicOrders,
		Payload: json.RawMessage(`{"order_id":`),
	}
	frames <- bad
	frames <- publishFrame(t, protocol.TopicOrders, &protocol.OrderPush{OrderID: "o1", Status: "PROCESSING"})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got == 1
	})
}

func TestPublishQueuesWhileDown(t *testing.T) {
	r, link, _ := newTestRouter(t)
	link.mu.Lock()
	link.down = true
	link.mu.Unlock()

	if err := r.SendChat(&protocol.ChatMessage{EventID: "ev1", SenderID: "u1", Content: "hi"}); err != nil {
		t.Fatal(err)
	}

	link.mu.Lock()
	defer link.mu.Unlock()
	if len(link.enqueued) != 1 {
		t.Fatalf("enqueued %d frames, want 1", len(link.enqueued))
	}
	if link.enqueued[0].Topic != protocol.ChatTopic("ev1") {
		t.Errorf("enqueued topic = %s", link.enqueued[0].Topic)
	}
}

func TestSubscribeFramesOriginalOrder(t *testing.T) {
	r, _, _ := newTestRouter(t)

	r.Subscribe(protocol.TopicOrders, func(string, any) {})
	bookings := r.Subscribe(protocol.TopicBookings, func(string, any) {})
	r.Subscribe(protocol.EventTopic("ev1"), func(string, any) {})
	r.Subscribe(protocol.TopicOrders, func(string, any) {}) // refcount only
	r.Unsubscribe(bookings)

	frames := r.SubscribeFrames()
	want := []string{protocol.TopicOrders, protocol.EventTopic("ev1")}
	if len(frames) != len(want) {
		t.Fatalf("got %d frames, want %d", len(frames), len(want))
	}
	for i, topic := range want {
		if frames[i].Topic != topic || frames[i].Type != protocol.FrameSubscribe {
			t.Errorf("frames[%d] = %s %s, want subscribe %s", i, frames[i].Type, frames[i].Topic, topic)
		}
	}
}

func TestTypedListenersIgnoreWrongVariant(t *testing.T) {
	r, _, frames := newTestRouter(t)

	var mu sync.Mutex
	var chats, updates int
	r.OnChatMessage("ev1", func(*protocol.ChatMessage) {
		mu.Lock()
		chats++
		mu.Unlock()
	})
	r.OnEventUpdate("ev1", func(*protocol.EventUpdate) {
		mu.Lock()
		updates++
		mu.Unlock()
	})

	frames <- publishFrame(t, protocol.ChatTopic("ev1"), &protocol.ChatMessage{EventID: "ev1", SenderID: "u1", Content: "hello"})
	frames <- publishFrame(t, protocol.EventTopic("ev1"), &protocol.EventUpdate{EventID: "ev1", Type: protocol.EventDetailsChanged})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return chats == 1 && updates == 1
	})
}
