package gateway

import (
	"encoding/json"
	"time"

	"github.com/boeni-industries/aico-gateway/internal/ferror"
	"github.com/boeni-industries/aico-gateway/internal/router"
)

// inboundFrame is the shape every client->server frame decodes into first, so the read loop can dispatch on Type
// before interpreting the type-specific fields (spec §4.8b's frame table).
type inboundFrame struct {
	Type        string          `json:"type"`
	Token       string          `json:"token,omitempty"`        // auth
	Topic       string          `json:"topic,omitempty"`        // subscribe, unsubscribe
	ID          string          `json:"id,omitempty"`           // request
	MessageType string          `json:"message_type,omitempty"` // request
	Payload     json.RawMessage `json:"payload,omitempty"`      // request
}

const (
	frameTypeWelcome      = "welcome"
	frameTypeAuth         = "auth"
	frameTypeSubscribe    = "subscribe"
	frameTypeUnsubscribe  = "unsubscribe"
	frameTypeRequest      = "request"
	frameTypeResponse     = "response"
	frameTypeHeartbeat    = "heartbeat"
	frameTypeHeartbeatAck = "heartbeat_ack"
	frameTypeBroadcast    = "broadcast"
	frameTypeError        = "error"
)

// welcomeFrame is the first frame the server sends on every upgraded connection.
type welcomeFrame struct {
	Type     string `json:"type"`
	ClientID string `json:"client_id"`
	Server   string `json:"server"`
	Version  string `json:"version"`
}

func newWelcomeFrame(clientID, server, version string) ([]byte, error) {
	return json.Marshal(welcomeFrame{Type: frameTypeWelcome, ClientID: clientID, Server: server, Version: version})
}

// heartbeatAckFrame answers a heartbeat frame.
type heartbeatAckFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

func newHeartbeatAckFrame(now time.Time) ([]byte, error) {
	return json.Marshal(heartbeatAckFrame{Type: frameTypeHeartbeatAck, Timestamp: now.Unix()})
}

// broadcastFrame carries a bus event out to every connection subscribed to its topic.
type broadcastFrame struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

func newBroadcastFrame(topic string, payload json.RawMessage) ([]byte, error) {
	return json.Marshal(broadcastFrame{Type: frameTypeBroadcast, Topic: topic, Payload: payload})
}

// frameErrorBody mirrors httputil.ErrorBody's shape so all three adapters report a failed request identically.
type frameErrorBody struct {
	Code    ferror.Kind `json:"code"`
	Message string      `json:"message"`
}

// responseFrame answers a request frame, win or lose.
type responseFrame struct {
	Type          string          `json:"type"`
	ID            string          `json:"id"`
	Success       bool            `json:"success"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	Error         *frameErrorBody `json:"error,omitempty"`
}

// newResponseFrameFromResult builds a response frame from a completed router.Result, distinguishing a router
// timeout from any other downstream failure the same way the REST and local IPC adapters do.
func newResponseFrameFromResult(id string, result router.Result) ([]byte, error) {
	if !result.Success {
		code := ferror.KindInternal
		if result.TimedOut {
			code = ferror.KindTimeout
		}
		return json.Marshal(responseFrame{
			Type:          frameTypeResponse,
			ID:            id,
			Success:       false,
			CorrelationID: result.CorrelationID,
			Error:         &frameErrorBody{Code: code, Message: result.Error},
		})
	}
	return json.Marshal(responseFrame{
		Type:          frameTypeResponse,
		ID:            id,
		Success:       true,
		CorrelationID: result.CorrelationID,
		Data:          result.Response.Payload,
	})
}

// newResponseErrorFrame builds a response frame for a request frame that failed before ever reaching the router
// (security, auth, rate limit, validation, or authorization rejection).
func newResponseErrorFrame(id string, err *ferror.Error) ([]byte, error) {
	return json.Marshal(responseFrame{
		Type:    frameTypeResponse,
		ID:      id,
		Success: false,
		Error:   &frameErrorBody{Code: err.Kind, Message: err.Message},
	})
}

// errorFrame reports a protocol-level problem (e.g. a subscribe denied by authorization) without closing the
// connection, distinct from the close codes used for connection-ending failures.
type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newErrorFrame(message string) ([]byte, error) {
	return json.Marshal(errorFrame{Type: frameTypeError, Message: message})
}
