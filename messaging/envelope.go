package messaging

import (
	"encoding/json"
	"fmt"
)

// PushEnvelope wraps a frame crossing the broker. Brokers echo a node's own
// publishes back to it; the node field lets subscribers skip those.
type PushEnvelope struct {
	Node  string          `json:"node"`
	Frame json.RawMessage `json:"frame"`
}

// EncodePush wraps an encoded frame in an envelope tagged with the
// originating node.
func EncodePush(node string, frame []byte) ([]byte, error) {
	data, err := json.Marshal(&PushEnvelope{Node: node, Frame: frame})
	if err != nil {
		return nil, fmt.Errorf("encode push envelope: %w", err)
	}
	return data, nil
}

// DecodePush unwraps a broker message into its envelope.
func DecodePush(data []byte) (*PushEnvelope, error) {
	var env PushEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode push envelope: %w", err)
	}
	if env.Node == "" || len(env.Frame) == 0 {
		return nil, fmt.Errorf("decode push envelope: missing node or frame")
	}
	return &env, nil
}
