package orders

import (
	"errors"
	"time"
)

// Order statuses.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusCancelled  = "CANCELLED"
)

// Delivery statuses.
const (
	DeliveryPending   = "PENDING"
	DeliveryPickedUp  = "PICKED_UP"
	DeliveryInTransit = "IN_TRANSIT"
	DeliveryDelivered = "DELIVERED"
	DeliveryFailed    = "FAILED"
)

// Payment statuses.
const (
	PaymentPending  = "PENDING"
	PaymentPaid     = "PAID"
	PaymentFailed   = "FAILED"
	PaymentRefunded = "REFUNDED"
)

// Track names for the three status dimensions of an order, as carried by
// status-change requests and pushes.
const (
	TrackStatus   = "status"
	TrackDelivery = "delivery"
	TrackPayment  = "payment"
)

// Digital booking statuses. CheckedIn is terminal and reachable only through
// a successful verification challenge.
const (
	BookingPending   = "PENDING"
	BookingCheckedIn = "CHECKED_IN"
)

var (
	// ErrInvalidTransition signals a (from, to) pair outside the transition
	// table. Never retried automatically.
	ErrInvalidTransition = errors.New("orders: invalid transition")
	// ErrPreconditionFailed signals a transition whose cross-track
	// precondition does not hold (e.g. DELIVERED before COMPLETED).
	ErrPreconditionFailed = errors.New("orders: precondition failed")
	// ErrUnknownOrder signals an order id the coordinator is not tracking.
	ErrUnknownOrder = errors.New("orders: unknown order")
	// ErrUnknownBooking signals a booking id the coordinator is not tracking.
	ErrUnknownBooking = errors.New("orders: unknown booking")
)

// Order is the coordinator's in-memory view of one order. Status tracks
// evolve independently but are order-constrained by the transition tables.
type Order struct {
	ID             string      `json:"id"`
	Status         string      `json:"status"`
	DeliveryStatus string      `json:"delivery_status"`
	PaymentStatus  string      `json:"payment_status"`
	Items          []OrderItem `json:"items,omitempty"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// OrderItem is one line of an order.
type OrderItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price_cents"`
}

// Booking is a digital booking redeemable by QR check-in.
type Booking struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	QRCode    []byte    `json:"qr_code,omitempty"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

var validStatusTransitions = map[string][]string{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusCancelled},
}

var validDeliveryTransitions = map[string][]string{
	DeliveryPending:   {DeliveryPickedUp, DeliveryFailed},
	DeliveryPickedUp:  {DeliveryInTransit, DeliveryFailed},
	DeliveryInTransit: {DeliveryDelivered, DeliveryFailed},
}

var validPaymentTransitions = map[string][]string{
	PaymentPending: {PaymentPaid, PaymentFailed},
	PaymentPaid:    {PaymentRefunded},
}

// Forward ranks used by push reconciliation to tell a stale push from a
// missed intermediate state.
var statusRank = map[string]int{
	StatusPending:    0,
	StatusProcessing: 1,
	StatusCompleted:  2,
	StatusCancelled:  2,
}

var deliveryRank = map[string]int{
	DeliveryPending:   0,
	DeliveryPickedUp:  1,
	DeliveryInTransit: 2,
	DeliveryDelivered: 3,
	DeliveryFailed:    3,
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// IsValidTransition checks the order status table.
func IsValidTransition(from, to string) bool {
	return contains(validStatusTransitions[from], to)
}

// IsValidDeliveryTransition checks the delivery status table.
func IsValidDeliveryTransition(from, to string) bool {
	return contains(validDeliveryTransitions[from], to)
}

// IsValidPaymentTransition checks the payment status table.
func IsValidPaymentTransition(from, to string) bool {
	return contains(validPaymentTransitions[from], to)
}

// IsTerminal returns true for terminal order statuses.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}

// IsTerminalDelivery returns true for terminal delivery statuses.
func IsTerminalDelivery(status string) bool {
	return status == DeliveryDelivered || status == DeliveryFailed
}
