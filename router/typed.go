package router

import "marketlink/protocol"

// Typed accessors filter the generic stream by topic and hand listeners the
// decoded variant directly.

// OnEventUpdate subscribes to update pushes for one event.
func (r *Router) OnEventUpdate(eventID string, fn func(*protocol.EventUpdate)) Subscription {
	return r.Subscribe(protocol.EventTopic(eventID), func(_ string, payload any) {
		if p, ok := payload.(*protocol.EventUpdate); ok {
			fn(p)
		}
	})
}

// OnChatMessage subscribes to chat messages for one event.
func (r *Router) OnChatMessage(eventID string, fn func(*protocol.ChatMessage)) Subscription {
	return r.Subscribe(protocol.ChatTopic(eventID), func(_ string, payload any) {
		if p, ok := payload.(*protocol.ChatMessage); ok {
			fn(p)
		}
	})
}

// OnOrderPush subscribes to order state pushes.
func (r *Router) OnOrderPush(fn func(*protocol.OrderPush)) Subscription {
	return r.Subscribe(protocol.TopicOrders, func(_ string, payload any) {
		if p, ok := payload.(*protocol.OrderPush); ok {
			fn(p)
		}
	})
}

// OnBookingPush subscribes to digital booking pushes.
func (r *Router) OnBookingPush(fn func(*protocol.BookingPush)) Subscription {
	return r.Subscribe(protocol.TopicBookings, func(_ string, payload any) {
		if p, ok := payload.(*protocol.BookingPush); ok {
			fn(p)
		}
	})
}

// OnNotification subscribes to fraud and platform notification pushes.
func (r *Router) OnNotification(fn func(*protocol.NotificationPush)) Subscription {
	return r.Subscribe(protocol.TopicNotifications, func(_ string, payload any) {
		if p, ok := payload.(*protocol.NotificationPush); ok {
			fn(p)
		}
	})
}

// SendChat publishes a chat message on the event's chat topic.
func (r *Router) SendChat(msg *protocol.ChatMessage) error {
	return r.Publish(protocol.ChatTopic(msg.EventID), msg)
}
