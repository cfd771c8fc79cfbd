package orders

import "testing"

func TestStatusTransitions(t *testing.T) {
	allowed := map[[2]string]bool{
		{StatusPending, StatusProcessing}:   true,
		{StatusPending, StatusCancelled}:    true,
		{StatusProcessing, StatusCompleted}: true,
		{StatusProcessing, StatusCancelled}: true,
	}
	all := []string{StatusPending, StatusProcessing, StatusCompleted, StatusCancelled}

	// Every pair not in the table, self-loops included, must be invalid.
	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]string{from, to}]
			if got := IsValidTransition(from, to); got != want {
				t.Errorf("IsValidTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestDeliveryTransitions(t *testing.T) {
	cases := []struct {
		from, to string
		ok       bool
	}{
		{DeliveryPending, DeliveryPickedUp, true},
		{DeliveryPickedUp, DeliveryInTransit, true},
		{DeliveryInTransit, DeliveryDelivered, true},
		{DeliveryPending, DeliveryFailed, true},
		{DeliveryPickedUp, DeliveryFailed, true},
		{DeliveryInTransit, DeliveryFailed, true},
		{DeliveryDelivered, DeliveryFailed, false},
		{DeliveryFailed, DeliveryPending, false},
		{DeliveryPending, DeliveryInTransit, false},
		{DeliveryPending, DeliveryDelivered, false},
		{DeliveryDelivered, DeliveryPending, false},
	}
	for _, tc := range cases {
		if got := IsValidDeliveryTransition(tc.from, tc.to); got != tc.ok {
			t.Errorf("IsValidDeliveryTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestPaymentTransitions(t *testing.T) {
	cases := []struct {
		from, to string
		ok       bool
	}{
		{PaymentPending, PaymentPaid, true},
		{PaymentPending, PaymentFailed, true},
		{PaymentPaid, PaymentRefunded, true},
		{PaymentFailed, PaymentPending, false},
		{PaymentFailed, PaymentPaid, false},
		{PaymentRefunded, PaymentPaid, false},
		{PaymentPaid, PaymentPending, false},
	}
	for _, tc := range cases {
		if got := IsValidPaymentTransition(tc.from, tc.to); got != tc.ok {
			t.Errorf("IsValidPaymentTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	if !IsTerminal(StatusCompleted) || !IsTerminal(StatusCancelled) {
		t.Error("completed and cancelled should be terminal")
	}
	if IsTerminal(StatusPending) || IsTerminal(StatusProcessing) {
		t.Error("pending and processing should not be terminal")
	}
	if !IsTerminalDelivery(DeliveryDelivered) || !IsTerminalDelivery(DeliveryFailed) {
		t.Error("delivered and failed should be terminal")
	}
}
