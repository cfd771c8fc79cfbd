package www

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"marketlink/messaging"
	"marketlink/orders"
	"marketlink/protocol"
	"marketlink/store"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrInvalidTransition), errors.Is(err, orders.ErrPreconditionFailed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// --- Auth ---

func (h *Handlers) apiRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username    string `json:"username"`
		Password    string `json:"password"`
		DisplayName string `json:"display_name"`
		Role        string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Username == "" || len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "username and a password of at least 8 characters are required")
		return
	}
	if req.Role == "" {
		req.Role = "attendee"
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "hash password")
		return
	}
	id, err := h.db.CreateUser(req.Username, hash, req.DisplayName, req.Role)
	if err != nil {
		writeError(w, http.StatusConflict, "username taken")
		return
	}
	h.sessions.setUser(w, r, id, req.Username)
	writeJSON(w, map[string]any{"id": id, "username": req.Username})
}

func (h *Handlers) apiLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	u, err := h.db.GetUser(req.Username)
	if err != nil || !checkPassword(req.Password, u.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	h.sessions.setUser(w, r, u.ID, u.Username)
	writeJSON(w, map[string]any{"id": u.ID, "username": u.Username, "role": u.Role})
}

func (h *Handlers) apiLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.clear(w, r)
	writeJSON(w, map[string]string{"status": "ok"})
}

// --- Orders ---

func (h *Handlers) apiListOrders(w http.ResponseWriter, r *http.Request) {
	userID, _ := h.sessions.userID(r)
	list, err := h.db.ListOrdersByUser(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]orders.Order, 0, len(list))
	for _, o := range list {
		out = append(out, o.Order)
	}
	writeJSON(w, out)
}

func (h *Handlers) apiCreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, _ := h.sessions.userID(r)
	var req struct {
		Items []orders.OrderItem `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "order needs at least one item")
		return
	}

	o := &store.StoredOrder{
		Order:  orders.Order{ID: uuid.New().String(), Items: req.Items},
		UserID: userID,
	}
	if err := h.db.CreateOrder(o); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	created, err := h.db.GetOrder(o.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, created.Order)
}

func (h *Handlers) apiGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.db.GetOrder(chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, o.Order)
}

func (h *Handlers) apiOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	var req struct {
		Track  string `json:"track"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Track == "" {
		req.Track = store.TrackStatus
	}

	o, err := h.db.UpdateOrderStatus(orderID, req.Track, req.Status)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	push := &protocol.OrderPush{OrderID: orderID, Timestamp: o.UpdatedAt}
	switch req.Track {
	case store.TrackStatus:
		push.Status = req.Status
	case store.TrackDelivery:
		push.DeliveryStatus = req.Status
	case store.TrackPayment:
		push.PaymentStatus = req.Status
	}
	h.pushFrame(protocol.TopicOrders, push)
	writeJSON(w, o.Order)
}

func (h *Handlers) apiOrderHistory(w http.ResponseWriter, r *http.Request) {
	hist, err := h.db.OrderHistory(chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, hist)
}

// --- Bookings ---

func (h *Handlers) apiListBookings(w http.ResponseWriter, r *http.Request) {
	userID, _ := h.sessions.userID(r)
	list, err := h.db.ListBookingsByUser(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]orders.Booking, 0, len(list))
	for _, b := range list {
		out = append(out, b.Booking)
	}
	writeJSON(w, out)
}

func (h *Handlers) apiCreateBooking(w http.ResponseWriter, r *http.Request) {
	userID, _ := h.sessions.userID(r)
	var req struct {
		EventID string `json:"event_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.EventID == "" {
		writeError(w, http.StatusBadRequest, "event_id required")
		return
	}

	b := &store.StoredBooking{
		Booking: orders.Booking{
			ID:      uuid.New().String(),
			EventID: req.EventID,
			QRCode:  []byte(uuid.New().String()),
		},
		UserID: userID,
	}
	if err := h.db.CreateBooking(b); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	created, _ := h.db.GetBooking(b.ID)
	writeJSON(w, created.Booking)
}

func (h *Handlers) apiGetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.db.GetBooking(chi.URLParam(r, "bookingID"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, b.Booking)
}

func (h *Handlers) apiCheckIn(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingID")
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.otp.Check(bookingID, req.Code); err != nil {
		h.auditOTP(bookingID, store.OTPRejected)
		writeError(w, http.StatusForbidden, "code rejected")
		return
	}
	h.auditOTP(bookingID, store.OTPAccepted)
	if err := h.db.CheckInBooking(bookingID); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	b, _ := h.db.GetBooking(bookingID)
	h.pushFrame(protocol.TopicBookings, &protocol.BookingPush{
		BookingID: bookingID,
		Status:    orders.BookingCheckedIn,
		Timestamp: b.UpdatedAt,
	})
	writeJSON(w, b.Booking)
}

// --- Verification ---

func (h *Handlers) apiIssueOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TargetID string `json:"target_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TargetID == "" {
		writeError(w, http.StatusBadRequest, "target_id required")
		return
	}
	code, err := h.otp.Issue(req.TargetID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.auditOTP(req.TargetID, store.OTPIssued)
	// Delivery is out of band (SMS/email). Logged for development setups.
	log.Printf("www: issued code %s for %s", code, req.TargetID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) apiVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TargetID string `json:"target_id"`
		Code     string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.otp.Check(req.TargetID, req.Code); err != nil {
		h.auditOTP(req.TargetID, store.OTPRejected)
		writeError(w, http.StatusForbidden, "code rejected")
		return
	}
	h.auditOTP(req.TargetID, store.OTPAccepted)
	writeJSON(w, map[string]string{"status": "ok"})
}

// --- Chat and presence ---

func (h *Handlers) apiChatHistory(w http.ResponseWriter, r *http.Request) {
	hist, err := h.db.ChatHistory(chi.URLParam(r, "eventID"), 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if hist == nil {
		hist = []*protocol.ChatMessage{}
	}
	writeJSON(w, hist)
}

func (h *Handlers) apiPresence(w http.ResponseWriter, r *http.Request) {
	online, err := h.presence.Online(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, online)
}

// auditOTP appends a challenge audit row. Auditing never blocks the request.
func (h *Handlers) auditOTP(targetID, outcome string) {
	if err := h.db.RecordOTPEvent(targetID, outcome); err != nil {
		log.Printf("www: otp audit %s/%s: %v", targetID, outcome, err)
	}
}

// pushFrame broadcasts a server-originated push locally and enqueues it for
// peer nodes.
func (h *Handlers) pushFrame(topic string, payload any) {
	f, err := protocol.NewPublishFrame(topic, payload)
	if err != nil {
		log.Printf("www: encode push on %s: %v", topic, err)
		return
	}
	h.hub.Broadcast(f)

	data, err := f.Encode()
	if err != nil {
		return
	}
	enveloped, err := messaging.EncodePush(h.nodeID, data)
	if err != nil {
		log.Printf("www: wrap push for %s: %v", topic, err)
		return
	}
	if err := h.db.EnqueueOutbox(h.pushTopic, enveloped); err != nil {
		log.Printf("www: enqueue push outbox: %v", err)
	}
}
