package logging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/boeni-industries/aico-gateway/internal/envelope"
)

// Publisher is the subset of the bus client the transport needs. internal/busclient's Client satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, env envelope.Envelope) error
}

// BusTransport publishes log entries onto the bus under logs/<subsystem>/<module>, where the log consumer picks
// them up. It becomes ready only once the underlying bus client has completed its initial connection.
type BusTransport struct {
	pub    Publisher
	source string
}

// NewBusTransport builds a transport that publishes through pub, tagging every envelope with source as the
// producing component's identity.
func NewBusTransport(pub Publisher, source string) *BusTransport {
	return &BusTransport{pub: pub, source: source}
}

// Send publishes a single log entry onto the bus.
func (t *BusTransport) Send(ctx context.Context, e Entry) error {
	topic := fmt.Sprintf("%s/%s/%s", TopicPrefix, e.Subsystem, e.Module)

	raw, err := json.Marshal(e.toWire())
	if err != nil {
		return fmt.Errorf("logging: marshal entry: %w", err)
	}

	env, err := envelope.New(t.source, topic, json.RawMessage(raw))
	if err != nil {
		return fmt.Errorf("logging: build envelope: %w", err)
	}
	return t.pub.Publish(ctx, topic, env)
}
