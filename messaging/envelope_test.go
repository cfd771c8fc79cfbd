package messaging

import (
	"bytes"
	"testing"
)

func TestPushEnvelopeRoundTrip(t *testing.T) {
	frame := []byte(`{"v":1,"type":"publish","topic":"orders"}`)
	data, err := EncodePush("hub-2", frame)
	if err != nil {
		t.Fatalf("EncodePush: %v", err)
	}
	env, err := DecodePush(data)
	if err != nil {
		t.Fatalf("DecodePush: %v", err)
	}
	if env.Node != "hub-2" {
		t.Errorf("node = %s, want hub-2", env.Node)
	}
	if !bytes.Equal(env.Frame, frame) {
		t.Errorf("frame = %s", env.Frame)
	}
}

func TestDecodePushRejectsIncomplete(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"frame":{"v":1}}`,
		`{"node":"hub-1"}`,
	} {
		if _, err := DecodePush([]byte(raw)); err == nil {
			t.Errorf("DecodePush(%s) accepted", raw)
		}
	}
}
