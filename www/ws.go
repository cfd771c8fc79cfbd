package www

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"marketlink/hub"
	"marketlink/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Sessions are cookie-authenticated; cross-origin socket pages are fine.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleSocket upgrades an authenticated request and runs the read/write
// pumps for one hub session.
func (h *Handlers) handleSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.sessions.userID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("www: socket upgrade: %v", err)
		return
	}

	uid := strconv.FormatInt(userID, 10)
	sess := hub.NewSession(uid)
	h.hub.Register(sess)
	if h.presence != nil {
		h.presence.Connected(r.Context(), uid)
	}

	go h.writePump(conn, sess)
	h.readPump(conn, sess, uid)
}

// readPump decodes inbound frames until the socket errors. Any inbound
// traffic counts as liveness: the read deadline is two heartbeat periods.
func (h *Handlers) readPump(conn *websocket.Conn, sess *hub.Session, uid string) {
	defer func() {
		h.hub.Unregister(sess)
		if h.presence != nil {
			h.presence.Disconnected(context.Background(), uid)
		}
		conn.Close()
	}()

	deadline := 2 * h.heartbeatPeriod
	conn.SetReadDeadline(time.Now().Add(deadline))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(deadline))
		if h.presence != nil {
			h.presence.Heartbeat(context.Background(), uid)
		}

		f, err := protocol.DecodeFrame(data)
		if err != nil {
			log.Printf("www: dropping malformed frame from %s: %v", uid, err)
			continue
		}
		h.hub.HandleFrame(sess, f)
	}
}

// writePump drains the session's outbound channel onto the socket.
func (h *Handlers) writePump(conn *websocket.Conn, sess *hub.Session) {
	for data := range sess.Outbound() {
		conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			// Keep draining so Unregister's close is observed.
			for range sess.Outbound() {
			}
			return
		}
	}
	conn.Close()
}
