package orders

// EventEmitter is the interface the coordinator uses to surface state
// changes to UI layers.
type EventEmitter interface {
	EmitOrderStatusChanged(orderID, oldStatus, newStatus string)
	EmitDeliveryStatusChanged(orderID, oldStatus, newStatus string)
	EmitPaymentStatusChanged(orderID, oldStatus, newStatus string)
	EmitBookingCheckedIn(bookingID string)
	EmitResyncScheduled(orderID string)
}

// NoopEmitter discards all events.
type NoopEmitter struct{}

func (NoopEmitter) EmitOrderStatusChanged(orderID, oldStatus, newStatus string)    {}
func (NoopEmitter) EmitDeliveryStatusChanged(orderID, oldStatus, newStatus string) {}
func (NoopEmitter) EmitPaymentStatusChanged(orderID, oldStatus, newStatus string)  {}
func (NoopEmitter) EmitBookingCheckedIn(bookingID string)                          {}
func (NoopEmitter) EmitResyncScheduled(orderID string)                             {}
