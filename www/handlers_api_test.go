package www

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"marketlink/config"
	"marketlink/hub"
	"marketlink/orders"
	"marketlink/presence"
	"marketlink/protocol"
	"marketlink/store"
)

type testServer struct {
	srv      *httptest.Server
	client   *http.Client
	handlers *Handlers
	hub      *hub.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.Defaults()
	db, err := store.Open(&config.StoreConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	hb := hub.New("hub-test")
	pres := presence.NewManager(db, nil, "hub-test", time.Minute)
	h := newHandlers(cfg, db, hb, pres)
	srv := httptest.NewServer(h.routes())
	t.Cleanup(srv.Close)

	jar, _ := cookiejar.New(nil)
	return &testServer{
		srv:      srv,
		client:   &http.Client{Jar: jar},
		handlers: h,
		hub:      hb,
	}
}

func (ts *testServer) post(t *testing.T, path string, body any, out any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := ts.client.Post(ts.srv.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 400 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp
}

func (ts *testServer) get(t *testing.T, path string, out any) *http.Response {
	t.Helper()
	resp, err := ts.client.Get(ts.srv.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 400 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp
}

func (ts *testServer) register(t *testing.T, username string) {
	t.Helper()
	resp := ts.post(t, "/api/register", map[string]string{
		"username": username,
		"password": "long-enough-pw",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register: status %d", resp.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.get(t, "/api/orders", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestRegisterLoginLogout(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "ana")

	// Session from register works.
	if resp := ts.get(t, "/api/orders", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("authorized list: status %d", resp.StatusCode)
	}

	ts.post(t, "/api/logout", nil, nil)
	if resp := ts.get(t, "/api/orders", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("after logout: status %d, want 401", resp.StatusCode)
	}

	var login map[string]any
	resp := ts.post(t, "/api/login", map[string]string{"username": "ana", "password": "long-enough-pw"}, &login)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status %d", resp.StatusCode)
	}

	resp = ts.post(t, "/api/login", map[string]string{"username": "ana", "password": "wrong"}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad password: status %d, want 401", resp.StatusCode)
	}
}

func TestOrderLifecycleOverAPI(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "ana")

	var o orders.Order
	resp := ts.post(t, "/api/orders", map[string]any{
		"items": []orders.OrderItem{{ProductID: "p1", Name: "Poster", Quantity: 1, UnitPrice: 900}},
	}, &o)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create: status %d", resp.StatusCode)
	}
	if o.Status != orders.StatusPending {
		t.Fatalf("status = %s", o.Status)
	}

	path := fmt.Sprintf("/api/orders/%s/status", o.ID)
	var updated orders.Order
	if resp := ts.post(t, path, map[string]string{"status": orders.StatusProcessing}, &updated); resp.StatusCode != http.StatusOK {
		t.Fatalf("transition: status %d", resp.StatusCode)
	}
	if updated.Status != orders.StatusProcessing {
		t.Errorf("status = %s", updated.Status)
	}

	// Invalid transition maps to 409; so does re-asserting the current
	// status, which no table lists.
	if resp := ts.post(t, path, map[string]string{"status": orders.StatusPending}, nil); resp.StatusCode != http.StatusConflict {
		t.Errorf("backward transition: status %d, want 409", resp.StatusCode)
	}
	if resp := ts.post(t, path, map[string]string{"status": orders.StatusProcessing}, nil); resp.StatusCode != http.StatusConflict {
		t.Errorf("same-status transition: status %d, want 409", resp.StatusCode)
	}

	var hist []store.HistoryEntry
	ts.get(t, fmt.Sprintf("/api/orders/%s/history", o.ID), &hist)
	if len(hist) != 1 {
		t.Errorf("history rows = %d, want 1", len(hist))
	}

	if resp := ts.get(t, "/api/orders/ghost", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing order: status %d, want 404", resp.StatusCode)
	}
}

func TestOrderStatusChangeBroadcasts(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "ana")

	sess := hub.NewSession("watcher")
	ts.hub.Register(sess)
	ts.hub.HandleFrame(sess, protocol.NewSubscribeFrame(protocol.TopicOrders))

	var o orders.Order
	ts.post(t, "/api/orders", map[string]any{
		"items": []orders.OrderItem{{ProductID: "p1", Quantity: 1}},
	}, &o)
	ts.post(t, fmt.Sprintf("/api/orders/%s/status", o.ID), map[string]string{"status": orders.StatusProcessing}, nil)

	select {
	case data := <-sess.Outbound():
		f, err := protocol.DecodeFrame(data)
		if err != nil {
			t.Fatal(err)
		}
		var push protocol.OrderPush
		json.Unmarshal(f.Payload, &push)
		if push.OrderID != o.ID || push.Status != orders.StatusProcessing {
			t.Errorf("push = %+v", push)
		}
	case <-time.After(time.Second):
		t.Fatal("no push broadcast")
	}
}

func TestBookingCheckInFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "ana")

	var b orders.Booking
	resp := ts.post(t, "/api/bookings", map[string]string{"event_id": "ev1"}, &b)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create booking: status %d", resp.StatusCode)
	}
	if len(b.QRCode) == 0 {
		t.Error("booking should carry a QR code")
	}

	path := fmt.Sprintf("/api/bookings/%s/checkin", b.ID)

	// Wrong code is rejected and the booking stays pending.
	if resp := ts.post(t, path, map[string]string{"code": "000000"}, nil); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("bad code: status %d, want 403", resp.StatusCode)
	}

	code, err := ts.handlers.otp.Issue(b.ID)
	if err != nil {
		t.Fatal(err)
	}
	var checked orders.Booking
	if resp := ts.post(t, path, map[string]string{"code": code}, &checked); resp.StatusCode != http.StatusOK {
		t.Fatalf("checkin: status %d", resp.StatusCode)
	}
	if checked.Status != orders.BookingCheckedIn {
		t.Errorf("status = %s", checked.Status)
	}

	// The code was consumed; a second check-in cannot reuse it.
	if resp := ts.post(t, path, map[string]string{"code": code}, nil); resp.StatusCode != http.StatusForbidden {
		t.Errorf("reused code: status %d, want 403", resp.StatusCode)
	}
}

func TestVerifyEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "ana")

	code, _ := ts.handlers.otp.Issue("order-1")
	resp := ts.post(t, "/api/verify", map[string]string{"target_id": "order-1", "code": code}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify: status %d", resp.StatusCode)
	}
	// Single use.
	resp = ts.post(t, "/api/verify", map[string]string{"target_id": "order-1", "code": code}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("reuse: status %d, want 403", resp.StatusCode)
	}
}

func TestChatHistoryEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "ana")

	ts.handlers.db.AppendChatMessage(&protocol.ChatMessage{EventID: "ev1", SenderID: "u1", Content: "hello"})

	var hist []protocol.ChatMessage
	resp := ts.get(t, "/api/events/ev1/chat", &hist)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if len(hist) != 1 || hist[0].Content != "hello" {
		t.Errorf("history = %+v", hist)
	}
}

func TestOTPAuditTrail(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "ana")

	resp := ts.post(t, "/api/otp", map[string]string{"target_id": "b1"}, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("issue status = %d", resp.StatusCode)
	}
	resp = ts.post(t, "/api/verify", map[string]string{"target_id": "b1", "code": "000000"}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("bad code status = %d", resp.StatusCode)
	}
	code, err := ts.handlers.otp.Issue("b1")
	if err != nil {
		t.Fatal(err)
	}
	resp = ts.post(t, "/api/verify", map[string]string{"target_id": "b1", "code": code}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("good code status = %d", resp.StatusCode)
	}

	events, err := ts.handlers.db.OTPHistory("b1")
	if err != nil {
		t.Fatal(err)
	}
	// The direct re-issue above bypasses the handler, so it leaves no row.
	want := []string{store.OTPIssued, store.OTPRejected, store.OTPAccepted}
	if len(events) != len(want) {
		t.Fatalf("events = %+v", events)
	}
	for i, e := range events {
		if e.Outcome != want[i] {
			t.Errorf("event %d outcome = %s, want %s", i, e.Outcome, want[i])
		}
	}
}

func TestAdminEventFeed(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "ana")

	req, err := http.NewRequest(http.MethodGet, ts.srv.URL+"/api/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := ts.client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	f, err := protocol.NewPublishFrame(protocol.TopicOrders, &protocol.OrderPush{OrderID: "o1", Status: "PROCESSING"})
	if err != nil {
		t.Fatal(err)
	}
	// Broadcast repeatedly; the first sends may race the handler attaching
	// its monitor channel.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			ts.hub.Broadcast(f)
			select {
			case <-stop:
				return
			case <-time.After(20 * time.Millisecond):
			}
		}
	}()

	lines := make(chan string, 16)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	timeout := time.After(3 * time.Second)
	for {
		select {
		case line := <-lines:
			if strings.HasPrefix(line, "data: ") && strings.Contains(line, `"o1"`) {
				return
			}
		case <-timeout:
			t.Fatal("no frame event on feed")
		}
	}
}
