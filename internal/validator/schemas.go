package validator

import (
	"encoding/json"
	"regexp"

	"github.com/boeni-industries/aico-gateway/internal/ferror"
)

// pinPattern matches the 4-to-6 digit PIN carried by the authenticate request.
var pinPattern = regexp.MustCompile(`^[0-9]{4,6}$`)

// AuthenticateRequest is the payload for the "auth/authenticate" topic.
type AuthenticateRequest struct {
	UserUUID string `json:"user_uuid"`
	Pin      string `json:"pin"`
}

// Validate implements Schema.
func (AuthenticateRequest) schemaValidate(payload json.RawMessage) error {
	var req AuthenticateRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return ferror.Wrap(ferror.KindValidation, "request body is not valid JSON", err)
	}
	if err := RequireUUID("user_uuid", req.UserUUID); err != nil {
		return err
	}
	if err := RequirePattern("pin", req.Pin, pinPattern); err != nil {
		return err
	}
	return nil
}

// ConversationSendRequest is the payload for the "conversation.send" topic.
type ConversationSendRequest struct {
	ConversationUUID string `json:"conversation_uuid"`
	Text             string `json:"text"`
}

func (ConversationSendRequest) schemaValidate(payload json.RawMessage) error {
	var req ConversationSendRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return ferror.Wrap(ferror.KindValidation, "request body is not valid JSON", err)
	}
	if err := RequireUUID("conversation_uuid", req.ConversationUUID); err != nil {
		return err
	}
	if err := RequireLength("text", req.Text, 1, 8192); err != nil {
		return err
	}
	return nil
}

// EchoRequest is the payload for the "api/echo" topic used by the end-to-end correlation scenarios.
type EchoRequest struct {
	Body string `json:"body"`
}

func (EchoRequest) schemaValidate(payload json.RawMessage) error {
	var req EchoRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return ferror.Wrap(ferror.KindValidation, "request body is not valid JSON", err)
	}
	return RequireNonEmpty("body", req.Body)
}

// DefaultRegistry returns a Registry preloaded with the schemas for the gateway's own topics. Adapters and domain
// collaborators register additional schemas onto the same Registry at startup; topics with no schema remain
// unchecked.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("auth/authenticate", SchemaFunc(AuthenticateRequest{}.schemaValidate))
	r.Register("conversation/send", SchemaFunc(ConversationSendRequest{}.schemaValidate))
	r.Register("api/echo", SchemaFunc(EchoRequest{}.schemaValidate))
	return r
}
