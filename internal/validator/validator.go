// Package validator schema-checks envelope payloads against a registry of per-topic schemas (spec §4, C9), the last
// step before a request reaches the authorization manager. Schemas are plain Go structs with json tags plus a
// Validate method, mirroring the teacher's request-DTO-plus-field-validator style rather than a reflection-driven
// tag language.
package validator

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/boeni-industries/aico-gateway/internal/envelope"
	"github.com/boeni-industries/aico-gateway/internal/ferror"
)

// Schema validates a decoded payload. Implementations typically unmarshal payload into a concrete request struct
// and run field-by-field checks, returning a *ferror.Error with KindValidation on the first failure.
type Schema interface {
	Validate(payload json.RawMessage) error
}

// SchemaFunc adapts a plain function to the Schema interface.
type SchemaFunc func(payload json.RawMessage) error

func (f SchemaFunc) Validate(payload json.RawMessage) error { return f(payload) }

// Registry maps topic (message_type) to the Schema that validates its payload. A topic with no registered schema is
// passed through unchecked: the registry only constrains the topics an operator has opted to describe, matching the
// spec's "registry of per-topic schemas" rather than a closed-world default-deny.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]Schema
}

// NewRegistry creates an empty schema registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]Schema)}
}

// Register associates topic with schema. A later call for the same topic replaces the earlier one.
func (r *Registry) Register(topic string, schema Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[topic] = schema
}

// Lookup returns the schema registered for topic, if any.
func (r *Registry) Lookup(topic string) (Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[topic]
	return s, ok
}

// Validate checks env's payload against the schema registered for env.Metadata.MessageType. Returns nil when no
// schema is registered for the topic. Schema failures are wrapped as ferror.KindValidation, the kind the REST and
// WebSocket adapters map to a 400/validation-error response.
func (r *Registry) Validate(env *envelope.Envelope) error {
	schema, ok := r.Lookup(env.Metadata.MessageType)
	if !ok {
		return nil
	}
	if err := schema.Validate(env.Payload); err != nil {
		if ferror.Is(err, ferror.KindValidation) {
			return err
		}
		return ferror.Wrap(ferror.KindValidation, fmt.Sprintf("payload for %q failed validation", env.Metadata.MessageType), err)
	}
	return nil
}
