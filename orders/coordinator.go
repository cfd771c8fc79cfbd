package orders

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"marketlink/verify"
)

// Backend is the REST collaborator that owns durable order/booking state.
// The coordinator calls it for authoritative resync, check-in confirmation,
// and persisting locally applied transitions; it never owns storage itself.
type Backend interface {
	FetchOrder(ctx context.Context, orderID string) (*Order, error)
	ConfirmCheckIn(ctx context.Context, bookingID, code string) error
	UpdateOrderStatus(ctx context.Context, orderID, track, status string) error
}

// BatchResult is the per-id outcome of a batch transition.
type BatchResult struct {
	OrderID string
	Order   Order
	Err     error
}

// Coordinator holds in-memory order, delivery, and booking state, applies
// validated transitions, and reconciles with pushes from the realtime
// channel. Mutation is serialized per order id so transitions on different
// orders never block each other.
type Coordinator struct {
	gate    *verify.Gate
	backend Backend
	emitter EventEmitter

	mu       sync.Mutex
	orders   map[string]Order
	bookings map[string]Booking
	locks    map[string]*sync.Mutex
	selected map[string]struct{}
	selOrder []string

	resyncCh chan string
	pending  map[string]struct{}
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewCoordinator creates a coordinator. emitter may be nil.
func NewCoordinator(gate *verify.Gate, backend Backend, emitter EventEmitter) *Coordinator {
	if emitter == nil {
		emitter = NoopEmitter{}
	}
	return &Coordinator{
		gate:     gate,
		backend:  backend,
		emitter:  emitter,
		orders:   make(map[string]Order),
		bookings: make(map[string]Booking),
		locks:    make(map[string]*sync.Mutex),
		selected: make(map[string]struct{}),
		resyncCh: make(chan string, 64),
		pending:  make(map[string]struct{}),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the resync worker.
func (c *Coordinator) Start() {
	c.wg.Add(1)
	go c.resyncLoop()
}

// Stop halts the resync worker.
func (c *Coordinator) Stop() {
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
	c.wg.Wait()
}

// Track seeds or replaces the local view of an order.
func (c *Coordinator) Track(o Order) {
	if o.Status == "" {
		o.Status = StatusPending
	}
	if o.DeliveryStatus == "" {
		o.DeliveryStatus = DeliveryPending
	}
	if o.PaymentStatus == "" {
		o.PaymentStatus = PaymentPending
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = time.Now()
	}
	c.mu.Lock()
	c.orders[o.ID] = o
	c.mu.Unlock()
}

// TrackBooking seeds or replaces the local view of a booking.
func (c *Coordinator) TrackBooking(b Booking) {
	if b.Status == "" {
		b.Status = BookingPending
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = time.Now()
	}
	c.mu.Lock()
	c.bookings[b.ID] = b
	c.mu.Unlock()
}

// Order returns a copy of the tracked order.
func (c *Coordinator) Order(id string) (Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.orders[id]
	return o, ok
}

// Booking returns a copy of the tracked booking.
func (c *Coordinator) Booking(id string) (Booking, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.bookings[id]
	return b, ok
}

// Snapshot returns a copy of all tracked orders.
func (c *Coordinator) Snapshot() []Order {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Order, 0, len(c.orders))
	for _, o := range c.orders {
		out = append(out, o)
	}
	return out
}

// Bookings returns a copy of all tracked bookings.
func (c *Coordinator) Bookings() []Booking {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Booking, 0, len(c.bookings))
	for _, b := range c.bookings {
		out = append(out, b)
	}
	return out
}

// lockFor returns the per-order mutex, creating it on first use.
func (c *Coordinator) lockFor(id string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[id]
	if !ok {
		l = &sync.Mutex{}
		c.locks[id] = l
	}
	return l
}

// ApplyTransition moves an order to a new status with validation against the
// transition table.
func (c *Coordinator) ApplyTransition(orderID, newStatus string) (Order, error) {
	l := c.lockFor(orderID)
	l.Lock()
	defer l.Unlock()

	c.mu.Lock()
	o, ok := c.orders[orderID]
	c.mu.Unlock()
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	if !IsValidTransition(o.Status, newStatus) {
		return o, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, newStatus)
	}

	old := o.Status
	o.Status = newStatus
	o.UpdatedAt = time.Now()
	c.mu.Lock()
	c.orders[orderID] = o
	c.mu.Unlock()

	c.emitter.EmitOrderStatusChanged(orderID, old, newStatus)
	c.persistTransition(orderID, TrackStatus, newStatus)
	return o, nil
}

// ApplyDeliveryTransition moves an order's delivery track forward. DELIVERED
// additionally requires the order itself to be COMPLETED.
func (c *Coordinator) ApplyDeliveryTransition(orderID, newDelivery string) (Order, error) {
	l := c.lockFor(orderID)
	l.Lock()
	defer l.Unlock()

	c.mu.Lock()
	o, ok := c.orders[orderID]
	c.mu.Unlock()
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	if !IsValidDeliveryTransition(o.DeliveryStatus, newDelivery) {
		return o, fmt.Errorf("%w: delivery %s -> %s", ErrInvalidTransition, o.DeliveryStatus, newDelivery)
	}
	if newDelivery == DeliveryDelivered && o.Status != StatusCompleted {
		return o, fmt.Errorf("%w: delivery requires completed order, status is %s", ErrPreconditionFailed, o.Status)
	}

	old := o.DeliveryStatus
	o.DeliveryStatus = newDelivery
	o.UpdatedAt = time.Now()
	c.mu.Lock()
	c.orders[orderID] = o
	c.mu.Unlock()

	c.emitter.EmitDeliveryStatusChanged(orderID, old, newDelivery)
	c.persistTransition(orderID, TrackDelivery, newDelivery)
	return o, nil
}

// ApplyPaymentTransition moves an order's payment track.
func (c *Coordinator) ApplyPaymentTransition(orderID, newPayment string) (Order, error) {
	l := c.lockFor(orderID)
	l.Lock()
	defer l.Unlock()

	c.mu.Lock()
	o, ok := c.orders[orderID]
	c.mu.Unlock()
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	if !IsValidPaymentTransition(o.PaymentStatus, newPayment) {
		return o, fmt.Errorf("%w: payment %s -> %s", ErrInvalidTransition, o.PaymentStatus, newPayment)
	}

	old := o.PaymentStatus
	o.PaymentStatus = newPayment
	o.UpdatedAt = time.Now()
	c.mu.Lock()
	c.orders[orderID] = o
	c.mu.Unlock()

	c.emitter.EmitPaymentStatusChanged(orderID, old, newPayment)
	c.persistTransition(orderID, TrackPayment, newPayment)
	return o, nil
}

// ApplyBatchTransition evaluates each id independently and never aborts
// early: one order's failure cannot undo another's success. The caller gets
// a per-id outcome list.
func (c *Coordinator) ApplyBatchTransition(orderIDs []string, newStatus string) []BatchResult {
	results := make([]BatchResult, 0, len(orderIDs))
	for _, id := range orderIDs {
		o, err := c.ApplyTransition(id, newStatus)
		results = append(results, BatchResult{OrderID: id, Order: o, Err: err})
	}
	return results
}

// Select adds an order to the batch selection set.
func (c *Coordinator) Select(orderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.selected[orderID]; ok {
		return
	}
	c.selected[orderID] = struct{}{}
	c.selOrder = append(c.selOrder, orderID)
}

// Deselect removes an order from the selection set.
func (c *Coordinator) Deselect(orderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.selected[orderID]; !ok {
		return
	}
	delete(c.selected, orderID)
	for i, id := range c.selOrder {
		if id == orderID {
			c.selOrder = append(c.selOrder[:i], c.selOrder[i+1:]...)
			break
		}
	}
}

// Selected returns the selection set in selection order.
func (c *Coordinator) Selected() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.selOrder...)
}

// ApplySelectedTransition runs a batch transition over the current selection.
// The selection is cleared after the batch returns, regardless of the
// outcome mix.
func (c *Coordinator) ApplySelectedTransition(newStatus string) []BatchResult {
	ids := c.Selected()
	results := c.ApplyBatchTransition(ids, newStatus)

	c.mu.Lock()
	c.selected = make(map[string]struct{})
	c.selOrder = nil
	c.mu.Unlock()
	return results
}

// BeginChallenge opens a verification challenge guarding the given order or
// booking id.
func (c *Coordinator) BeginChallenge(targetID string) string {
	return c.gate.BeginChallenge(targetID)
}

// ApplyGatedTransition routes an order transition through the verification
// gate. State is mutated only after the gate resolves Success; on any gate
// failure the order is returned untouched. An empty challengeID opens a
// fresh challenge for this attempt.
func (c *Coordinator) ApplyGatedTransition(ctx context.Context, orderID, newStatus, challengeID, code string) (Order, error) {
	if challengeID == "" {
		challengeID = c.gate.BeginChallenge(orderID)
	}
	if err := c.gate.Verify(ctx, challengeID, code); err != nil {
		o, _ := c.Order(orderID)
		return o, err
	}
	return c.ApplyTransition(orderID, newStatus)
}

// CheckInBooking redeems a digital booking through the verification gate and
// the backend's QR confirmation. CHECKED_IN is terminal and reachable only
// through this path.
func (c *Coordinator) CheckInBooking(ctx context.Context, bookingID, challengeID, code string) (Booking, error) {
	if challengeID == "" {
		challengeID = c.gate.BeginChallenge(bookingID)
	}
	if err := c.gate.Verify(ctx, challengeID, code); err != nil {
		b, _ := c.Booking(bookingID)
		return b, err
	}

	l := c.lockFor(bookingID)
	l.Lock()
	defer l.Unlock()

	c.mu.Lock()
	b, ok := c.bookings[bookingID]
	c.mu.Unlock()
	if !ok {
		return Booking{}, fmt.Errorf("%w: %s", ErrUnknownBooking, bookingID)
	}
	if b.Status == BookingCheckedIn {
		return b, fmt.Errorf("%w: booking already checked in", ErrInvalidTransition)
	}

	if c.backend != nil {
		if err := c.backend.ConfirmCheckIn(ctx, bookingID, code); err != nil {
			return b, fmt.Errorf("confirm check-in: %w", err)
		}
	}

	b.Status = BookingCheckedIn
	b.UpdatedAt = time.Now()
	c.mu.Lock()
	c.bookings[bookingID] = b
	c.mu.Unlock()

	c.emitter.EmitBookingCheckedIn(bookingID)
	return b, nil
}

// persistTransition writes a locally applied transition back through the
// backend, which owns durable state and fans the change out to peers. A
// failed write schedules a resync so the local view converges on the
// backend's view.
func (c *Coordinator) persistTransition(orderID, track, status string) {
	if c.backend == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.backend.UpdateOrderStatus(ctx, orderID, track, status); err != nil {
		log.Printf("orders: persist %s %s=%s: %v", orderID, track, status, err)
		c.scheduleResync(orderID)
	}
}
