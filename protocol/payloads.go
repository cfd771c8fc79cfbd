package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventUpdate is an inbound push on an event topic. Immutable.
type EventUpdate struct {
	EventID   string            `json:"event_id"`
	Type      string            `json:"type"`
	Data      map[string]string `json:"data,omitempty"`
	Timestamp time.Time         `json:"ts"`
}

// ChatMessage flows both directions on a chat topic. Immutable.
type ChatMessage struct {
	EventID    string    `json:"event_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"ts"`
}

// OrderPush is an inbound order state change on the orders topic.
// Empty status fields mean "unchanged".
type OrderPush struct {
	OrderID        string    `json:"order_id"`
	Status         string    `json:"status,omitempty"`
	DeliveryStatus string    `json:"delivery_status,omitempty"`
	PaymentStatus  string    `json:"payment_status,omitempty"`
	Timestamp      time.Time `json:"ts"`
}

// BookingPush is an inbound digital booking state change.
type BookingPush struct {
	BookingID string    `json:"booking_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"ts"`
}

// NotificationPush carries fraud alerts and platform notifications.
type NotificationPush struct {
	Kind      string            `json:"kind"`
	TargetID  string            `json:"target_id,omitempty"`
	Severity  string            `json:"severity,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
	Timestamp time.Time         `json:"ts"`
}

// DecodeTopicPayload decodes raw publish payload bytes into the closed typed
// variant for the topic. Unknown topics and malformed payloads return an
// error; callers log and drop, they never propagate.
func DecodeTopicPayload(topic string, raw json.RawMessage) (any, error) {
	switch {
	case IsEventTopic(topic):
		var p EventUpdate
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode event update: %w", err)
		}
		if !IsValidUpdateType(p.Type) {
			return nil, fmt.Errorf("unknown event update type: %q", p.Type)
		}
		return &p, nil
	case IsChatTopic(topic):
		var p ChatMessage
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode chat message: %w", err)
		}
		return &p, nil
	case topic == TopicOrders:
		var p OrderPush
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode order push: %w", err)
		}
		if p.OrderID == "" {
			return nil, fmt.Errorf("order push missing order_id")
		}
		return &p, nil
	case topic == TopicBookings:
		var p BookingPush
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode booking push: %w", err)
		}
		if p.BookingID == "" {
			return nil, fmt.Errorf("booking push missing booking_id")
		}
		return &p, nil
	case topic == TopicNotifications:
		var p NotificationPush
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode notification: %w", err)
		}
		return &p, nil
	default:
		return nil, fmt.Errorf("unknown topic: %q", topic)
	}
}
