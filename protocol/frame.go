package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Frame is the universal message wrapper for everything crossing the socket:
// control (subscribe/unsubscribe/ping/pong) and application data (publish).
// Payload stays raw until the topic is known; it is decoded exactly once at
// the router boundary.
type Frame struct {
	Version   int             `json:"v"`
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Topic     string          `json:"topic,omitempty"`
	Timestamp time.Time       `json:"ts"`
	Payload   json.RawMessage `json:"p,omitempty"`
}

// NewPublishFrame creates an outbound publish frame with a fresh ID.
func NewPublishFrame(topic string, payload any) (*Frame, error) {
	p, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", topic, err)
	}
	return &Frame{
		Version:   Version,
		Type:      FramePublish,
		ID:        uuid.New().String(),
		Topic:     topic,
		Timestamp: time.Now().UTC(),
		Payload:   p,
	}, nil
}

// NewSubscribeFrame creates a subscribe control frame.
func NewSubscribeFrame(topic string) *Frame {
	return &Frame{Version: Version, Type: FrameSubscribe, Topic: topic, Timestamp: time.Now().UTC()}
}

// NewUnsubscribeFrame creates an unsubscribe control frame.
func NewUnsubscribeFrame(topic string) *Frame {
	return &Frame{Version: Version, Type: FrameUnsubscribe, Topic: topic, Timestamp: time.Now().UTC()}
}

// NewPingFrame creates a ping control frame.
func NewPingFrame() *Frame {
	return &Frame{Version: Version, Type: FramePing, Timestamp: time.Now().UTC()}
}

// NewPongFrame creates a pong reply to a ping.
func NewPongFrame() *Frame {
	return &Frame{Version: Version, Type: FramePong, Timestamp: time.Now().UTC()}
}

// Encode marshals the frame to JSON.
func (f *Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// DecodeFrame unmarshals raw socket bytes into a Frame and validates the
// frame type. The payload is left raw.
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	switch f.Type {
	case FrameSubscribe, FrameUnsubscribe, FramePublish, FramePing, FramePong:
	default:
		return nil, fmt.Errorf("unknown frame type: %q", f.Type)
	}
	return &f, nil
}
