package orders

import (
	"context"
	"log"
	"time"

	"marketlink/protocol"
)

// HandlePush applies a server-originated order push. Pushes are advisory, not
// authoritative overwrites: a push is accepted only when it is a valid
// forward transition from the local view. Anything else means the local view
// has drifted, so a resync is scheduled instead of trusting the push.
func (c *Coordinator) HandlePush(push *protocol.OrderPush) {
	l := c.lockFor(push.OrderID)
	l.Lock()
	defer l.Unlock()

	c.mu.Lock()
	o, ok := c.orders[push.OrderID]
	c.mu.Unlock()
	if !ok {
		log.Printf("orders: push for untracked order %s, scheduling resync", push.OrderID)
		c.scheduleResync(push.OrderID)
		return
	}

	changed := false
	if push.Status != "" && push.Status != o.Status {
		switch {
		case IsValidTransition(o.Status, push.Status):
			old := o.Status
			o.Status = push.Status
			changed = true
			c.emitter.EmitOrderStatusChanged(o.ID, old, push.Status)
		case statusRank[push.Status] < statusRank[o.Status]:
			// Stale push from before our local state. Ignore, but resync in
			// case the server really did regress.
			log.Printf("orders: stale push %s for %s (local %s), scheduling resync", push.Status, o.ID, o.Status)
			c.scheduleResync(o.ID)
		default:
			// Forward but unreachable from here: we missed intermediates.
			log.Printf("orders: push %s unreachable from %s for %s, scheduling resync", push.Status, o.Status, o.ID)
			c.scheduleResync(o.ID)
		}
	}

	if push.DeliveryStatus != "" && push.DeliveryStatus != o.DeliveryStatus {
		switch {
		case IsValidDeliveryTransition(o.DeliveryStatus, push.DeliveryStatus):
			old := o.DeliveryStatus
			o.DeliveryStatus = push.DeliveryStatus
			changed = true
			c.emitter.EmitDeliveryStatusChanged(o.ID, old, push.DeliveryStatus)
		case deliveryRank[push.DeliveryStatus] < deliveryRank[o.DeliveryStatus]:
			log.Printf("orders: stale delivery push %s for %s (local %s), scheduling resync", push.DeliveryStatus, o.ID, o.DeliveryStatus)
			c.scheduleResync(o.ID)
		default:
			log.Printf("orders: delivery push %s unreachable from %s for %s, scheduling resync", push.DeliveryStatus, o.DeliveryStatus, o.ID)
			c.scheduleResync(o.ID)
		}
	}

	if push.PaymentStatus != "" && push.PaymentStatus != o.PaymentStatus {
		if IsValidPaymentTransition(o.PaymentStatus, push.PaymentStatus) {
			old := o.PaymentStatus
			o.PaymentStatus = push.PaymentStatus
			changed = true
			c.emitter.EmitPaymentStatusChanged(o.ID, old, push.PaymentStatus)
		} else {
			log.Printf("orders: payment push %s invalid from %s for %s, scheduling resync", push.PaymentStatus, o.PaymentStatus, o.ID)
			c.scheduleResync(o.ID)
		}
	}

	if changed {
		if !push.Timestamp.IsZero() {
			o.UpdatedAt = push.Timestamp
		} else {
			o.UpdatedAt = time.Now()
		}
		c.mu.Lock()
		c.orders[o.ID] = o
		c.mu.Unlock()
	}
}

// HandleBookingPush applies a server-originated booking push. CHECKED_IN is
// accepted from the server (another scanner may have redeemed the booking);
// any other disagreement triggers nothing since bookings have only the one
// transition.
func (c *Coordinator) HandleBookingPush(push *protocol.BookingPush) {
	l := c.lockFor(push.BookingID)
	l.Lock()
	defer l.Unlock()

	c.mu.Lock()
	b, ok := c.bookings[push.BookingID]
	c.mu.Unlock()
	if !ok {
		log.Printf("orders: push for untracked booking %s, ignoring", push.BookingID)
		return
	}
	if push.Status != BookingCheckedIn || b.Status == BookingCheckedIn {
		return
	}
	b.Status = BookingCheckedIn
	if !push.Timestamp.IsZero() {
		b.UpdatedAt = push.Timestamp
	} else {
		b.UpdatedAt = time.Now()
	}
	c.mu.Lock()
	c.bookings[b.ID] = b
	c.mu.Unlock()
	c.emitter.EmitBookingCheckedIn(b.ID)
}

// scheduleResync queues an order for authoritative refetch. Repeat requests
// for an order already pending coalesce into one fetch.
func (c *Coordinator) scheduleResync(orderID string) {
	c.mu.Lock()
	if _, ok := c.pending[orderID]; ok {
		c.mu.Unlock()
		return
	}
	c.pending[orderID] = struct{}{}
	c.mu.Unlock()

	c.emitter.EmitResyncScheduled(orderID)
	select {
	case c.resyncCh <- orderID:
	default:
		// Channel full. Drop the pending mark so a later push retries.
		c.mu.Lock()
		delete(c.pending, orderID)
		c.mu.Unlock()
		log.Printf("orders: resync queue full, dropping %s", orderID)
	}
}

func (c *Coordinator) resyncLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stopCh:
			return
		case id := <-c.resyncCh:
			c.resyncOne(id)
		}
	}
}

func (c *Coordinator) resyncOne(id string) {
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if c.backend == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	o, err := c.backend.FetchOrder(ctx, id)
	if err != nil {
		log.Printf("orders: resync %s: %v", id, err)
		return
	}

	// The fetched state is authoritative and replaces the local view
	// wholesale, transition table notwithstanding.
	l := c.lockFor(id)
	l.Lock()
	c.mu.Lock()
	prev, had := c.orders[id]
	c.orders[id] = *o
	c.mu.Unlock()
	l.Unlock()

	if had {
		if prev.Status != o.Status {
			c.emitter.EmitOrderStatusChanged(id, prev.Status, o.Status)
		}
		if prev.DeliveryStatus != o.DeliveryStatus {
			c.emitter.EmitDeliveryStatusChanged(id, prev.DeliveryStatus, o.DeliveryStatus)
		}
		if prev.PaymentStatus != o.PaymentStatus {
			c.emitter.EmitPaymentStatusChanged(id, prev.PaymentStatus, o.PaymentStatus)
		}
	}
}
