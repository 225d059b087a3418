package gateway

import (
	"context"
	"sync"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/boeni-industries/aico-gateway/internal/busclient"
	"github.com/boeni-industries/aico-gateway/internal/envelope"
	"github.com/boeni-industries/aico-gateway/internal/pipeline"
)

// Bus is the subset of *busclient.Client the hub needs to turn a client's subscribe/unsubscribe frames into real bus
// subscriptions, named so tests can substitute a fake bus without a real broker connection.
type Bus interface {
	Subscribe(ctx context.Context, pattern string, handler func(envelope.Envelope)) (busclient.SubscriptionHandle, error)
	Unsubscribe(handle busclient.SubscriptionHandle) error
}

// Hub is the central WebSocket connection registry (spec §4.8b, C14). It enforces max_connections, routes inbound
// `request` frames through the shared pipeline, and fans bus events out as `broadcast` frames to every connection
// subscribed to the matching topic.
type Hub struct {
	cfg  Config
	deps pipeline.Dependencies
	bus  Bus
	log  zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*Client

	subMu   sync.Mutex
	topics  map[string]map[string]*Client           // topic -> client id -> client
	handles map[string]busclient.SubscriptionHandle // topic -> the hub's own bus subscription for it
}

// NewHub creates a new gateway hub. bus may be nil, in which case subscribe/unsubscribe frames are accepted but no
// broadcast ever fires -- useful for tests exercising only the request/response path.
func NewHub(cfg Config, deps pipeline.Dependencies, bus Bus, log zerolog.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		deps:    deps,
		bus:     bus,
		clients: make(map[string]*Client),
		topics:  make(map[string]map[string]*Client),
		handles: make(map[string]busclient.SubscriptionHandle),
		log:     log.With().Str("component", "gateway").Logger(),
	}
}

// ServeWebSocket initializes a new client for an upgraded WebSocket connection. It enforces max_connections before
// doing anything else, then sends the welcome frame and starts the client's read and write pumps.
func (h *Hub) ServeWebSocket(conn *websocket.Conn) {
	client := newClient(h, conn, h.cfg, h.deps, h.log)

	if err := h.register(client); err != nil {
		h.log.Debug().Err(err).Msg("rejecting connection over max_connections")
		client.closeWithCode(CloseOverloaded, err.Error())
		_ = conn.Close()
		return
	}

	welcome, err := newWelcomeFrame(client.id, h.cfg.ServerName, h.cfg.Version)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to build welcome frame")
		h.unregister(client)
		_ = conn.Close()
		return
	}

	go client.writePump()
	client.enqueue(welcome)
	client.readPump()
}

// register adds a newly upgraded connection to the registry, before it has authenticated.
func (h *Hub) register(client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.clients) >= h.cfg.MaxConnections {
		return ErrOverloaded
	}
	h.clients[client.id] = client
	return nil
}

// unregister removes a client from the registry and drops it from every topic it subscribed to.
func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	delete(h.clients, client.id)
	h.mu.Unlock()

	for _, topic := range client.subscribedTopics() {
		h.removeSubscriber(topic, client)
	}
}

// ClientCount returns the number of currently registered connections, authenticated or not.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// subscribe adds client to topic's subscriber set, establishing the hub's own bus subscription for topic the first
// time it gains a subscriber.
func (h *Hub) subscribe(ctx context.Context, topic string, client *Client) error {
	h.subMu.Lock()
	defer h.subMu.Unlock()

	if _, ok := h.topics[topic]; !ok {
		h.topics[topic] = make(map[string]*Client)
	}
	h.topics[topic][client.id] = client

	if h.bus == nil {
		return nil
	}
	if _, ok := h.handles[topic]; ok {
		return nil
	}

	handle, err := h.bus.Subscribe(ctx, topic, func(env envelope.Envelope) {
		h.broadcast(topic, env)
	})
	if err != nil {
		delete(h.topics[topic], client.id)
		return err
	}
	h.handles[topic] = handle
	return nil
}

// unsubscribe removes client from topic's subscriber set, tearing down the hub's bus subscription once the topic has
// no subscribers left.
func (h *Hub) unsubscribe(topic string, client *Client) {
	h.removeSubscriber(topic, client)
}

func (h *Hub) removeSubscriber(topic string, client *Client) {
	h.subMu.Lock()
	defer h.subMu.Unlock()

	subs, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(subs, client.id)
	if len(subs) > 0 {
		return
	}

	delete(h.topics, topic)
	if handle, ok := h.handles[topic]; ok {
		delete(h.handles, topic)
		if err := h.bus.Unsubscribe(handle); err != nil {
			h.log.Warn().Err(err).Str("topic", topic).Msg("failed to unsubscribe from bus topic")
		}
	}
}

// broadcast fans env out to every connection currently subscribed to topic.
func (h *Hub) broadcast(topic string, env envelope.Envelope) {
	frame, err := newBroadcastFrame(topic, env.Payload)
	if err != nil {
		h.log.Error().Err(err).Str("topic", topic).Msg("failed to build broadcast frame")
		return
	}

	h.subMu.Lock()
	targets := make([]*Client, 0, len(h.topics[topic]))
	for _, c := range h.topics[topic] {
		targets = append(targets, c)
	}
	h.subMu.Unlock()

	for _, c := range targets {
		c.enqueue(frame)
	}
}

// Shutdown closes every active connection with the normal-closure close code, per spec §5's graceful shutdown
// requirement that adapters stop accepting work and release clients promptly.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		c.closeWithCode(CloseNormal, "server shutting down")
	}
	h.log.Info().Msg("gateway hub shut down")
}

// newClientID generates a per-connection identifier reported in the welcome frame.
func newClientID() string {
	return uuid.New().String()
}
