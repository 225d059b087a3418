package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/boeni-industries/aico-gateway/internal/envelope"
	"github.com/boeni-industries/aico-gateway/internal/ferror"
	"github.com/boeni-industries/aico-gateway/internal/router"
)

func TestNewWelcomeFrameFields(t *testing.T) {
	t.Parallel()

	raw, err := newWelcomeFrame("client-1", "aico-gateway", "1.0")
	if err != nil {
		t.Fatalf("newWelcomeFrame() error = %v", err)
	}

	var decoded welcomeFrame
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != frameTypeWelcome || decoded.ClientID != "client-1" || decoded.Server != "aico-gateway" {
		t.Errorf("welcome frame = %+v, want type=welcome client_id=client-1 server=aico-gateway", decoded)
	}
}

func TestNewResponseFrameFromResultSuccess(t *testing.T) {
	t.Parallel()

	env, _ := envelope.New("worker", "api/response/echo", map[string]string{"body": "hi"})
	result := router.Result{Success: true, Response: env, CorrelationID: "corr-1"}

	raw, err := newResponseFrameFromResult("req-1", result)
	if err != nil {
		t.Fatalf("newResponseFrameFromResult() error = %v", err)
	}

	var decoded responseFrame
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Success || decoded.ID != "req-1" || decoded.CorrelationID != "corr-1" {
		t.Errorf("response frame = %+v, want success=true id=req-1 correlation_id=corr-1", decoded)
	}
}

func TestNewResponseFrameFromResultDistinguishesTimeout(t *testing.T) {
	t.Parallel()

	result := router.Result{Success: false, Error: "no response received", TimedOut: true}

	raw, err := newResponseFrameFromResult("req-2", result)
	if err != nil {
		t.Fatalf("newResponseFrameFromResult() error = %v", err)
	}

	var decoded responseFrame
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Success || decoded.Error == nil || decoded.Error.Code != ferror.KindTimeout {
		t.Errorf("response frame error.code = %+v, want %s", decoded.Error, ferror.KindTimeout)
	}
}

func TestNewResponseFrameFromResultNonTimeoutFailure(t *testing.T) {
	t.Parallel()

	result := router.Result{Success: false, Error: "downstream rejected", TimedOut: false}

	raw, err := newResponseFrameFromResult("req-3", result)
	if err != nil {
		t.Fatalf("newResponseFrameFromResult() error = %v", err)
	}

	var decoded responseFrame
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Error == nil || decoded.Error.Code != ferror.KindInternal {
		t.Errorf("response frame error.code = %+v, want %s", decoded.Error, ferror.KindInternal)
	}
}

func TestNewBroadcastFrameCarriesTopicAndPayload(t *testing.T) {
	t.Parallel()

	raw, err := newBroadcastFrame("conversation/updates", json.RawMessage(`{"text":"hi"}`))
	if err != nil {
		t.Fatalf("newBroadcastFrame() error = %v", err)
	}

	var decoded broadcastFrame
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != frameTypeBroadcast || decoded.Topic != "conversation/updates" {
		t.Errorf("broadcast frame = %+v, want type=broadcast topic=conversation/updates", decoded)
	}
}

func TestNewHeartbeatAckFrameHasTimestamp(t *testing.T) {
	t.Parallel()

	raw, err := newHeartbeatAckFrame(time.Unix(1700000000, 0))
	if err != nil {
		t.Fatalf("newHeartbeatAckFrame() error = %v", err)
	}

	var decoded heartbeatAckFrame
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != frameTypeHeartbeatAck || decoded.Timestamp != 1700000000 {
		t.Errorf("heartbeat ack frame = %+v, want type=heartbeat_ack timestamp=1700000000", decoded)
	}
}

func TestNewErrorFrameCarriesMessage(t *testing.T) {
	t.Parallel()

	raw, err := newErrorFrame("not authorized")
	if err != nil {
		t.Fatalf("newErrorFrame() error = %v", err)
	}

	var decoded errorFrame
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != frameTypeError || decoded.Message != "not authorized" {
		t.Errorf("error frame = %+v, want type=error message=%q", decoded, "not authorized")
	}
}
