package www

import (
	"fmt"
	"log"
	"net/http"
	"time"
)

// handleEvents is the admin feed: a Server-Sent Events stream of every frame
// the hub broadcasts, mirrored from a hub monitor channel.
func (h *Handlers) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	ch := h.hub.AddMonitor()
	defer h.hub.RemoveMonitor(ch)

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case data, open := <-ch:
			if !open {
				return
			}
			if _, err := fmt.Fprintf(w, "event: frame\ndata: %s\n\n", data); err != nil {
				log.Printf("www: sse write: %v", err)
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, "event: keepalive\ndata: ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
