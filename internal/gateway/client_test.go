package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/boeni-industries/aico-gateway/internal/auth"
	"github.com/boeni-industries/aico-gateway/internal/authz"
	"github.com/boeni-industries/aico-gateway/internal/busclient"
	"github.com/boeni-industries/aico-gateway/internal/envelope"
	"github.com/boeni-industries/aico-gateway/internal/pipeline"
	"github.com/boeni-industries/aico-gateway/internal/router"
)

// routerBus is the in-memory router.Bus double used by this file's pipeline-level tests, redeclared here since
// router.Bus's implementation in internal/router's own tests is unexported.
type routerBus struct {
	published []envelope.Envelope
	handlers  map[string][]func(envelope.Envelope)
}

func newRouterBus() *routerBus {
	return &routerBus{handlers: make(map[string][]func(envelope.Envelope))}
}

func (b *routerBus) Publish(_ context.Context, _ string, env envelope.Envelope) error {
	b.published = append(b.published, env)
	return nil
}

func (b *routerBus) Subscribe(_ context.Context, pattern string, handler func(envelope.Envelope)) (busclient.SubscriptionHandle, error) {
	b.handlers[pattern] = append(b.handlers[pattern], handler)
	return busclient.SubscriptionHandle(0), nil
}

func (b *routerBus) deliver(pattern string, env envelope.Envelope) {
	for _, h := range b.handlers[pattern] {
		h(env)
	}
}

type allowAllRoleStore struct{}

func (allowAllRoleStore) PermissionsForRole(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

func TestClientHandleAuthAcceptsValidToken(t *testing.T) {
	t.Parallel()
	authMgr := auth.New(auth.DefaultConfig(), []byte("test-signing-secret-32-bytes-long!!"), "746573742d6861736b2d6b6579", nil, nil, nil, zerolog.Nop())
	hub := testHub(nil)
	hub.deps = pipeline.Dependencies{Auth: authMgr}
	c := testClient(hub)

	identity := auth.Identity{UserUUID: auth.TrustedLocalUUID, Username: "companion-app"}
	tok, err := authMgr.GenerateAccessToken(context.Background(), identity, "device-1")
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	c.handleAuth(tok)

	if !c.isAuthenticated() {
		t.Error("handleAuth() did not mark the client authenticated on a valid token")
	}
}

func TestClientHandleAuthRejectsEmptyToken(t *testing.T) {
	t.Parallel()
	hub := testHub(nil)
	c := testClient(hub)

	c.handleAuth("")

	if c.isAuthenticated() {
		t.Error("handleAuth(\"\") should not authenticate the client")
	}
}

func TestClientHandleRequestRunsThroughPipeline(t *testing.T) {
	t.Parallel()
	bus := newRouterBus()
	rt, err := router.New(bus, router.DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("router.New() error = %v", err)
	}
	if err := rt.Start(context.Background()); err != nil {
		t.Fatalf("router.Start() error = %v", err)
	}

	hub := testHub(nil)
	hub.deps = pipeline.Dependencies{Router: rt}
	c := testClient(hub)
	c.mu.Lock()
	c.authenticated = true
	c.mu.Unlock()

	go func() {
		for {
			if len(bus.published) > 0 {
				published := bus.published[len(bus.published)-1]
				correlationID, _ := published.CorrelationID()
				resp, _ := envelope.New("worker", "api/response/echo", map[string]string{"body": "hi"})
				resp = resp.WithAttribute(envelope.CorrelationIDKey, correlationID)
				bus.deliver("api/response/", resp)
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	c.handleRequest("req-1", "api/echo", json.RawMessage(`{"body":"hi"}`))

	select {
	case msg := <-c.send:
		var frame responseFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			t.Fatalf("unmarshal response frame: %v", err)
		}
		if frame.ID != "req-1" || !frame.Success {
			t.Errorf("response frame = %+v, want id=req-1 success=true", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handleRequest() never enqueued a response frame")
	}
}

func TestClientHandleSubscribeDeniedByAuthz(t *testing.T) {
	t.Parallel()
	resolver := authz.NewResolver(allowAllRoleStore{}, nil, authz.PolicyDeny, zerolog.Nop())
	hub := testHub(nil)
	hub.deps = pipeline.Dependencies{Authz: resolver}
	c := testClient(hub)
	c.mu.Lock()
	c.authenticated = true
	c.mu.Unlock()

	c.handleSubscribe("restricted/topic")

	select {
	case msg := <-c.send:
		var frame errorFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			t.Fatalf("unmarshal error frame: %v", err)
		}
		if frame.Type != frameTypeError {
			t.Errorf("frame.Type = %q, want %q", frame.Type, frameTypeError)
		}
	case <-time.After(time.Second):
		t.Fatal("handleSubscribe() should have sent an error frame for a denied subscription")
	}

	if _, ok := c.subscriptions["restricted/topic"]; ok {
		t.Error("a denied subscribe should not be recorded in the client's subscription set")
	}
}

func TestClientHandleHeartbeatRefreshesLivenessAndAcks(t *testing.T) {
	t.Parallel()
	hub := testHub(nil)
	c := testClient(hub)
	c.lastHeartbeat.Store(0)

	c.handleHeartbeat()

	if c.lastHeartbeat.Load() == 0 {
		t.Error("handleHeartbeat() did not refresh lastHeartbeat")
	}

	select {
	case msg := <-c.send:
		var frame heartbeatAckFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			t.Fatalf("unmarshal heartbeat ack: %v", err)
		}
		if frame.Type != frameTypeHeartbeatAck {
			t.Errorf("frame.Type = %q, want %q", frame.Type, frameTypeHeartbeatAck)
		}
	case <-time.After(time.Second):
		t.Fatal("handleHeartbeat() never enqueued a heartbeat_ack frame")
	}
}

func TestSubscribeActionNamespacesTopic(t *testing.T) {
	t.Parallel()
	if got := subscribeAction("conversation/updates"); got != "ws.subscribe.conversation.updates" {
		t.Errorf("subscribeAction() = %q, want %q", got, "ws.subscribe.conversation.updates")
	}
}
