package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/boeni-industries/aico-gateway/internal/busclient"
	"github.com/boeni-industries/aico-gateway/internal/envelope"
	"github.com/boeni-industries/aico-gateway/internal/pipeline"
)

// fakeBus is an in-memory Bus double recording subscriptions, redeclared per test file since it is unexported.
type fakeBus struct {
	mu       sync.Mutex
	handlers map[string]func(envelope.Envelope)
	nextID   uint64
	byHandle map[busclient.SubscriptionHandle]string
	unsubbed []busclient.SubscriptionHandle
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		handlers: make(map[string]func(envelope.Envelope)),
		byHandle: make(map[busclient.SubscriptionHandle]string),
	}
}

func (b *fakeBus) Subscribe(_ context.Context, pattern string, handler func(envelope.Envelope)) (busclient.SubscriptionHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	handle := busclient.SubscriptionHandle(b.nextID)
	b.handlers[pattern] = handler
	b.byHandle[handle] = pattern
	return handle, nil
}

func (b *fakeBus) Unsubscribe(handle busclient.SubscriptionHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pattern, ok := b.byHandle[handle]; ok {
		delete(b.handlers, pattern)
		delete(b.byHandle, handle)
		b.unsubbed = append(b.unsubbed, handle)
	}
	return nil
}

func (b *fakeBus) deliver(topic string, env envelope.Envelope) {
	b.mu.Lock()
	h := b.handlers[topic]
	b.mu.Unlock()
	if h != nil {
		h(env)
	}
}

func (b *fakeBus) subscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers)
}

func testHub(bus Bus) *Hub {
	cfg := DefaultConfig()
	cfg.MaxConnections = 2
	return NewHub(cfg, pipeline.Dependencies{}, bus, zerolog.Nop())
}

func testClient(hub *Hub) *Client {
	c := &Client{
		hub:           hub,
		cfg:           hub.cfg,
		deps:          hub.deps,
		log:           zerolog.Nop(),
		id:            newClientID(),
		send:          make(chan []byte, 16),
		done:          make(chan struct{}),
		subscriptions: make(map[string]struct{}),
	}
	c.lastHeartbeat.Store(time.Now().UnixNano())
	return c
}

func TestHubRegisterEnforcesMaxConnections(t *testing.T) {
	t.Parallel()
	hub := testHub(nil)

	c1, c2, c3 := testClient(hub), testClient(hub), testClient(hub)

	if err := hub.register(c1); err != nil {
		t.Fatalf("register(c1) error = %v", err)
	}
	if err := hub.register(c2); err != nil {
		t.Fatalf("register(c2) error = %v", err)
	}
	if err := hub.register(c3); err != ErrOverloaded {
		t.Errorf("register(c3) error = %v, want %v", err, ErrOverloaded)
	}
	if hub.ClientCount() != 2 {
		t.Errorf("ClientCount() = %d, want 2", hub.ClientCount())
	}
}

func TestHubUnregisterRemovesClientAndSubscriptions(t *testing.T) {
	t.Parallel()
	bus := newFakeBus()
	hub := testHub(bus)
	c := testClient(hub)

	if err := hub.register(c); err != nil {
		t.Fatalf("register() error = %v", err)
	}
	if err := hub.subscribe(context.Background(), "conversation/updates", c); err != nil {
		t.Fatalf("subscribe() error = %v", err)
	}
	c.subscriptions["conversation/updates"] = struct{}{}

	hub.unregister(c)

	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", hub.ClientCount())
	}
	if bus.subscriberCount() != 0 {
		t.Errorf("bus subscriberCount() = %d, want 0 after last subscriber leaves", bus.subscriberCount())
	}
}

func TestHubSubscribeSharesOneBusSubscriptionAcrossClients(t *testing.T) {
	t.Parallel()
	bus := newFakeBus()
	hub := testHub(bus)
	c1, c2 := testClient(hub), testClient(hub)

	if err := hub.subscribe(context.Background(), "topic/a", c1); err != nil {
		t.Fatalf("subscribe(c1) error = %v", err)
	}
	if err := hub.subscribe(context.Background(), "topic/a", c2); err != nil {
		t.Fatalf("subscribe(c2) error = %v", err)
	}
	if bus.subscriberCount() != 1 {
		t.Errorf("bus subscriberCount() = %d, want 1 (one bus subscription shared by both clients)", bus.subscriberCount())
	}

	hub.unsubscribe("topic/a", c1)
	if bus.subscriberCount() != 1 {
		t.Errorf("bus subscriberCount() = %d, want 1 (c2 still subscribed)", bus.subscriberCount())
	}

	hub.unsubscribe("topic/a", c2)
	if bus.subscriberCount() != 0 {
		t.Errorf("bus subscriberCount() = %d, want 0 after last subscriber leaves", bus.subscriberCount())
	}
}

func TestHubBroadcastDeliversToSubscribersOnly(t *testing.T) {
	t.Parallel()
	bus := newFakeBus()
	hub := testHub(bus)
	subscribed, notSubscribed := testClient(hub), testClient(hub)

	if err := hub.subscribe(context.Background(), "topic/a", subscribed); err != nil {
		t.Fatalf("subscribe() error = %v", err)
	}

	env, _ := envelope.New("worker", "topic/a", map[string]string{"msg": "hi"})
	bus.deliver("topic/a", env)

	select {
	case msg := <-subscribed.send:
		if len(msg) == 0 {
			t.Error("subscribed client received an empty broadcast frame")
		}
	case <-time.After(time.Second):
		t.Error("subscribed client never received a broadcast frame")
	}

	select {
	case <-notSubscribed.send:
		t.Error("unsubscribed client should not receive a broadcast frame")
	default:
	}
}
