package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"

	"github.com/boeni-industries/aico-gateway/internal/auth"
	"github.com/boeni-industries/aico-gateway/internal/envelope"
	"github.com/boeni-industries/aico-gateway/internal/ferror"
	"github.com/boeni-industries/aico-gateway/internal/pipeline"
)

// envelopeSource identifies this adapter as an envelope's origin before the router republishes it.
const envelopeSource = "ws-adapter"

// writeWait is the time allowed to write a single message to the peer.
const writeWait = 10 * time.Second

// Client represents a single upgraded WebSocket connection. It runs two goroutines (readPump and writePump) plus a
// heartbeat monitor, communicating with the Hub through enqueue and the subscribe/unsubscribe registry.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	cfg  Config
	deps pipeline.Dependencies
	log  zerolog.Logger

	id       string
	remoteIP string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu            sync.RWMutex
	authenticated bool
	credentials   auth.Credentials
	subscriptions map[string]struct{}

	lastHeartbeat atomic.Int64 // unix nano
}

func newClient(hub *Hub, conn *websocket.Conn, cfg Config, deps pipeline.Dependencies, logger zerolog.Logger) *Client {
	c := &Client{
		hub:           hub,
		conn:          conn,
		cfg:           cfg,
		deps:          deps,
		log:           logger,
		id:            newClientID(),
		send:          make(chan []byte, 256),
		done:          make(chan struct{}),
		subscriptions: make(map[string]struct{}),
	}
	if addr := conn.RemoteAddr(); addr != nil {
		c.remoteIP = addr.String()
	}
	c.lastHeartbeat.Store(time.Now().UnixNano())
	return c
}

// closeSend signals the client's write loop and heartbeat monitor to stop. Safe to call more than once or from
// multiple goroutines; only the first call has any effect.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) subscribedTopics() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	topics := make([]string, 0, len(c.subscriptions))
	for t := range c.subscriptions {
		topics = append(topics, t)
	}
	return topics
}

// readPump reads frames from the connection and dispatches them by type. It runs in its own goroutine and owns
// closing the connection when the read loop exits.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.closeSend()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxFrameSize)

	go c.heartbeatMonitor()

	authDeadline := time.AfterFunc(c.cfg.AuthTimeout, func() {
		if !c.isAuthenticated() {
			c.log.Debug().Msg("client did not authenticate in time")
			c.closeWithCode(CloseUnauthorized, ErrAuthTimeout.Error())
		}
	})
	defer authDeadline.Stop()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("websocket read error")
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.closeWithCode(websocket.CloseUnsupportedData, "invalid JSON frame")
			return
		}

		if frame.Type == frameTypeAuth {
			authDeadline.Stop()
			c.handleAuth(frame.Token)
			continue
		}

		if !c.isAuthenticated() {
			c.closeWithCode(CloseUnauthorized, "auth frame required")
			return
		}

		switch frame.Type {
		case frameTypeSubscribe:
			c.handleSubscribe(frame.Topic)
		case frameTypeUnsubscribe:
			c.handleUnsubscribe(frame.Topic)
		case frameTypeRequest:
			c.handleRequest(frame.ID, frame.MessageType, frame.Payload)
		case frameTypeHeartbeat:
			c.handleHeartbeat()
		default:
			if msg, mErr := newErrorFrame("unknown frame type: " + frame.Type); mErr == nil {
				c.enqueue(msg)
			}
		}
	}
}

// writePump writes messages from the send channel to the connection. It runs in its own goroutine and exits when
// done is closed, draining any buffered messages first so the peer receives them before the socket closes.
func (c *Client) writePump() {
	defer func() { _ = c.conn.Close() }()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug().Err(err).Msg("websocket write error")
				return
			}
		case <-c.done:
			for {
				select {
				case msg := <-c.send:
					_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// heartbeatMonitor closes the connection once its last heartbeat is older than 3x the configured interval (spec
// §4.8b, §5's liveness requirement). It checks at the configured interval, which is frequent enough to catch a stale
// connection within one further interval of the 3x threshold lapsing.
func (c *Client) heartbeatMonitor() {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	threshold := 3 * c.cfg.HeartbeatInterval
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			last := time.Unix(0, c.lastHeartbeat.Load())
			if time.Since(last) > threshold {
				c.log.Debug().Str("client_id", c.id).Msg("client missed heartbeat deadline")
				c.closeWithCode(CloseNormal, "heartbeat timeout")
				return
			}
		}
	}
}

func (c *Client) handleAuth(token string) {
	if c.isAuthenticated() {
		return
	}
	if token == "" {
		c.closeWithCode(CloseUnauthorized, "token required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	creds := auth.Credentials{BearerToken: token}
	if c.deps.Auth != nil {
		if _, err := c.deps.Auth.Resolve(ctx, creds); err != nil {
			c.log.Debug().Err(err).Msg("auth frame rejected")
			c.closeWithCode(CloseUnauthorized, ErrUnauthorized.Error())
			return
		}
	}

	c.mu.Lock()
	c.authenticated = true
	c.credentials = creds
	c.mu.Unlock()
}

func (c *Client) isAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

func (c *Client) handleSubscribe(topic string) {
	if topic == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.deps.Authz != nil {
		identity, err := c.resolveIdentity(ctx)
		if err != nil {
			c.sendProtocolError("could not resolve identity for subscribe")
			return
		}
		allowed, err := c.deps.Authz.Authorize(ctx, identity, subscribeAction(topic), nil)
		if err != nil {
			c.sendProtocolError("authorization check failed")
			return
		}
		if !allowed {
			c.sendProtocolError("not authorized to subscribe to " + topic)
			return
		}
	}

	if err := c.hub.subscribe(ctx, topic, c); err != nil {
		c.log.Warn().Err(err).Str("topic", topic).Msg("failed to subscribe to bus topic")
		c.sendProtocolError("subscribe failed")
		return
	}

	c.mu.Lock()
	c.subscriptions[topic] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) handleUnsubscribe(topic string) {
	if topic == "" {
		return
	}
	c.mu.Lock()
	delete(c.subscriptions, topic)
	c.mu.Unlock()
	c.hub.unsubscribe(topic, c)
}

// handleRequest runs a `request` frame's payload through the same pipeline the REST and local IPC adapters use,
// then answers with a `response` frame (spec §4.8b).
func (c *Client) handleRequest(id, messageType string, payload json.RawMessage) {
	env, err := envelope.New(envelopeSource, messageType, json.RawMessage(payload))
	if err != nil {
		if msg, mErr := newResponseErrorFrame(id, ferror.New(ferror.KindValidation, err.Error())); mErr == nil {
			c.enqueue(msg)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	outcome, err := pipeline.Run(ctx, c.deps, pipeline.Request{
		RemoteIP:    c.remoteIP,
		Credentials: c.currentCredentials(),
		Envelope:    env,
	})
	if err != nil {
		if msg, mErr := newResponseErrorFrame(id, ferror.From(err)); mErr == nil {
			c.enqueue(msg)
		}
		return
	}

	if msg, mErr := newResponseFrameFromResult(id, outcome.Result); mErr == nil {
		c.enqueue(msg)
	}
}

func (c *Client) handleHeartbeat() {
	c.lastHeartbeat.Store(time.Now().UnixNano())
	if msg, err := newHeartbeatAckFrame(time.Now()); err == nil {
		c.enqueue(msg)
	}
}

func (c *Client) currentCredentials() auth.Credentials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.credentials
}

func (c *Client) resolveIdentity(ctx context.Context) (auth.Identity, error) {
	if c.deps.Auth == nil {
		return auth.Identity{}, nil
	}
	return c.deps.Auth.Resolve(ctx, c.currentCredentials())
}

func (c *Client) sendProtocolError(message string) {
	if msg, err := newErrorFrame(message); err == nil {
		c.enqueue(msg)
	}
}

// enqueue sends a message to the client's write channel. If the client is shutting down the message is silently
// dropped; if the channel is full, the message is dropped and the connection closed to stop backpressure from
// stalling the hub's broadcast fan-out.
func (c *Client) enqueue(msg []byte) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- msg:
	case <-c.done:
	default:
		c.log.Warn().Msg("client send buffer full, closing connection")
		c.closeSend()
		_ = c.conn.Close()
	}
}

// closeWithCode sends a WebSocket close frame with the given code and reason, then closes the connection.
func (c *Client) closeWithCode(code int, reason string) {
	c.closeSend()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = c.conn.Close()
}

// subscribeAction derives the authorization action string for a subscribe request, namespacing it under "ws." so it
// cannot collide with the request-frame actions pipeline.Run derives from message_type.
func subscribeAction(topic string) string {
	return "ws.subscribe." + strings.ReplaceAll(topic, "/", ".")
}
