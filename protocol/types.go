package protocol

// Frame type constants for the socket wire protocol.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePublish     = "publish"
	FramePing        = "ping"
	FramePong        = "pong"
)

// Well-known topics. Event and chat topics are per-event and built with
// EventTopic / ChatTopic.
const (
	TopicOrders        = "orders"
	TopicBookings      = "bookings"
	TopicNotifications = "notifications"
)

// Topic kind prefixes.
const (
	eventTopicPrefix = "event:"
	chatTopicPrefix  = "chat:"
)

// EventUpdate types.
const (
	EventDetailsChanged = "DETAILS_CHANGED"
	EventAttendeeJoined = "ATTENDEE_JOINED"
	EventAttendeeLeft   = "ATTENDEE_LEFT"
	EventCancelled      = "EVENT_CANCELLED"
	EventStarted        = "EVENT_STARTED"
	EventEnded          = "EVENT_ENDED"
)

// Protocol version.
const Version = 1

// EventTopic returns the update topic for a specific event.
func EventTopic(eventID string) string {
	return eventTopicPrefix + eventID
}

// ChatTopic returns the chat topic for a specific event.
func ChatTopic(eventID string) string {
	return chatTopicPrefix + eventID
}

// IsEventTopic reports whether the topic carries event updates.
func IsEventTopic(topic string) bool {
	return len(topic) > len(eventTopicPrefix) && topic[:len(eventTopicPrefix)] == eventTopicPrefix
}

// IsChatTopic reports whether the topic carries chat messages.
func IsChatTopic(topic string) bool {
	return len(topic) > len(chatTopicPrefix) && topic[:len(chatTopicPrefix)] == chatTopicPrefix
}

// IsValidUpdateType reports whether t is one of the known event update types.
func IsValidUpdateType(t string) bool {
	switch t {
	case EventDetailsChanged, EventAttendeeJoined, EventAttendeeLeft,
		EventCancelled, EventStarted, EventEnded:
		return true
	}
	return false
}
