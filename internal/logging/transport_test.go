package logging

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/boeni-industries/aico-gateway/internal/envelope"
)

type fakePublisher struct {
	topic string
	env   envelope.Envelope
}

func (f *fakePublisher) Publish(ctx context.Context, topic string, env envelope.Envelope) error {
	f.topic = topic
	f.env = env
	return nil
}

func TestBusTransportSendPublishesUnderLogsPrefix(t *testing.T) {
	pub := &fakePublisher{}
	transport := NewBusTransport(pub, "gateway-core")

	err := transport.Send(context.Background(), Entry{
		Level:     LevelInfo,
		Subsystem: "router",
		Module:    "dispatch",
		Message:   "routed",
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if pub.topic != "logs/router/dispatch" {
		t.Errorf("topic = %q, want logs/router/dispatch", pub.topic)
	}
	if pub.env.Metadata.Source != "gateway-core" {
		t.Errorf("Source = %q, want gateway-core", pub.env.Metadata.Source)
	}

	var wire wirePayload
	if err := json.Unmarshal(pub.env.Payload, &wire); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if wire.Message != "routed" {
		t.Errorf("payload message = %q, want routed", wire.Message)
	}
}
