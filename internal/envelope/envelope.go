// Package envelope defines the universal message carrier used on the bus, by the router, and by the logging
// pipeline, plus the topic normalization and matching rules shared by the broker and bus client.
package envelope

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Metadata describes a MessageEnvelope's provenance and routing information.
type Metadata struct {
	MessageID   uuid.UUID         `json:"message_id"`
	Timestamp   time.Time         `json:"timestamp"`
	Source      string            `json:"source"`
	MessageType string            `json:"message_type"`
	Version     string            `json:"version"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// Envelope is the universal carrier on the bus. Payload is an opaque JSON blob; callers marshal/unmarshal it against
// whatever schema message_type implies.
type Envelope struct {
	Metadata Metadata        `json:"metadata"`
	Payload  json.RawMessage `json:"payload"`
}

// CorrelationIDKey is the attributes key carrying the correlation ID that pairs a response with its request.
const CorrelationIDKey = "correlation_id"

// ExternalTopicKey is the attributes key the router stamps with the original external message type before
// republishing to the internal topic.
const ExternalTopicKey = "external_topic"

// New builds an envelope with a freshly generated message ID and the current timestamp. source and messageType must
// be non-empty; New panics otherwise since every producer on the bus is expected to supply both.
func New(source, messageType string, payload any) (Envelope, error) {
	if messageType == "" {
		return Envelope{}, fmt.Errorf("envelope: message_type must not be empty")
	}
	if source == "" {
		return Envelope{}, fmt.Errorf("envelope: source must not be empty")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("envelope: marshal payload: %w", err)
	}

	return Envelope{
		Metadata: Metadata{
			MessageID:   uuid.New(),
			Timestamp:   time.Now().UTC(),
			Source:      source,
			MessageType: messageType,
			Version:     "1.0",
			Attributes:  map[string]string{},
		},
		Payload: raw,
	}, nil
}

// CorrelationID returns the envelope's correlation ID attribute, if present.
func (e Envelope) CorrelationID() (string, bool) {
	if e.Metadata.Attributes == nil {
		return "", false
	}
	id, ok := e.Metadata.Attributes[CorrelationIDKey]
	return id, ok
}

// WithAttribute returns a copy of e with the given attribute set. The original envelope's attribute map is not
// mutated, so concurrent producers sharing a template envelope cannot race on it.
func (e Envelope) WithAttribute(key, value string) Envelope {
	attrs := make(map[string]string, len(e.Metadata.Attributes)+1)
	for k, v := range e.Metadata.Attributes {
		attrs[k] = v
	}
	attrs[key] = value
	e.Metadata.Attributes = attrs
	return e
}

// Size returns the serialized byte size of the envelope, used to enforce MaxMessageSize in the router.
func (e Envelope) Size() (int, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return 0, fmt.Errorf("envelope: size: %w", err)
	}
	return len(b), nil
}

// Unmarshal decodes the envelope's payload into v.
func (e Envelope) Unmarshal(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("envelope: unmarshal payload: %w", err)
	}
	return nil
}
