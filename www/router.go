// Package www is the hub's HTTP surface: the websocket endpoint, the REST
// API, and cookie-session authentication.
package www

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"marketlink/config"
	"marketlink/hub"
	"marketlink/presence"
	"marketlink/store"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	db       *store.DB
	hub      *hub.Hub
	presence *presence.Manager
	sessions *sessionStore
	otp      *otpIssuer

	heartbeatPeriod time.Duration
	writeTimeout    time.Duration
	pushTopic       string
	nodeID          string
}

// NewRouter creates the chi router for the hub.
func NewRouter(cfg *config.Config, db *store.DB, hb *hub.Hub, pres *presence.Manager) http.Handler {
	return newHandlers(cfg, db, hb, pres).routes()
}

func newHandlers(cfg *config.Config, db *store.DB, hb *hub.Hub, pres *presence.Manager) *Handlers {
	h := &Handlers{
		db:              db,
		hub:             hb,
		presence:        pres,
		sessions:        newSessionStore(cfg.Web.SessionSecret),
		otp:             newOTPIssuer(cfg.Verify.MaxAttempts, cfg.Verify.Timeout),
		heartbeatPeriod: cfg.Socket.HeartbeatPeriod,
		writeTimeout:    cfg.Socket.WriteTimeout,
		pushTopic:       cfg.Messaging.PushTopic,
		nodeID:          cfg.NodeID,
	}
	if h.heartbeatPeriod <= 0 {
		h.heartbeatPeriod = 30 * time.Second
	}
	if h.writeTimeout <= 0 {
		h.writeTimeout = 10 * time.Second
	}
	return h
}

func (h *Handlers) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/socket", h.handleSocket)

	r.Post("/api/register", h.apiRegister)
	r.Post("/api/login", h.apiLogin)
	r.Post("/api/logout", h.apiLogout)

	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware)

		r.Get("/api/orders", h.apiListOrders)
		r.Post("/api/orders", h.apiCreateOrder)
		r.Get("/api/orders/{orderID}", h.apiGetOrder)
		r.Post("/api/orders/{orderID}/status", h.apiOrderStatus)
		r.Get("/api/orders/{orderID}/history", h.apiOrderHistory)

		r.Get("/api/bookings", h.apiListBookings)
		r.Post("/api/bookings", h.apiCreateBooking)
		r.Get("/api/bookings/{bookingID}", h.apiGetBooking)
		r.Post("/api/bookings/{bookingID}/checkin", h.apiCheckIn)

		r.Post("/api/otp", h.apiIssueOTP)
		r.Post("/api/verify", h.apiVerify)

		r.Get("/api/events/{eventID}/chat", h.apiChatHistory)
		r.Get("/api/presence", h.apiPresence)
		r.Get("/api/events", h.handleEvents)
	})

	return r
}

// authMiddleware rejects requests without a logged-in session.
func (h *Handlers) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := h.sessions.userID(r); !ok {
			writeError(w, http.StatusUnauthorized, "login required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
