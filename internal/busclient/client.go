// Package busclient connects to the message bus broker and exposes publish/subscribe over the broker's
// length-delimited TCP frame protocol.
package busclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/boeni-industries/aico-gateway/internal/envelope"
)

// ErrNotConnected is returned by Publish/Subscribe/Unsubscribe when the client has no active connection.
var ErrNotConnected = errors.New("busclient: not connected")

// ErrConnectFailed is returned by Connect when the broker is unreachable.
var ErrConnectFailed = errors.New("busclient: connect failed")

const (
	subscribeControlTopic   = "\x00subscribe"
	unsubscribeControlTopic = "\x00unsubscribe"
)

type subscription struct {
	id      uint64
	prefix  string
	pattern string
	handler func(envelope.Envelope)
}

// Client is a bus session: it publishes envelopes and dispatches subscription callbacks on a single receive loop,
// preserving per-client publish order and per-subscription callback order.
type Client struct {
	source string
	log    zerolog.Logger

	connMu     sync.Mutex
	pubConn    net.Conn
	pubWriteMu sync.Mutex
	pubWrite   *bufio.Writer
	subConn    net.Conn
	subWrite   *bufio.Writer
	connected  bool

	subsMu     sync.Mutex
	subs       map[uint64]*subscription
	prefixRefs map[string]int
	nextSubID  uint64

	recvDone chan struct{}
	stopOnce sync.Once
}

// New creates a client identifying itself as source in every envelope it publishes.
func New(source string, log zerolog.Logger) *Client {
	return &Client{
		source:     source,
		log:        log.With().Str("component", "busclient").Str("source", source).Logger(),
		subs:       make(map[uint64]*subscription),
		prefixRefs: make(map[string]int),
	}
}

// Connect opens a publisher socket and a subscriber socket to the broker and starts the receive loop. Connect is
// re-entrant: calling it again after a successful connection is a no-op.
func (c *Client) Connect(ctx context.Context, brokerHost string, pubPort, subPort int) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.connected {
		return nil
	}

	dialer := net.Dialer{}
	pubConn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", brokerHost, pubPort))
	if err != nil {
		return fmt.Errorf("%w: publisher endpoint: %v", ErrConnectFailed, err)
	}
	subConn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", brokerHost, subPort))
	if err != nil {
		pubConn.Close()
		return fmt.Errorf("%w: subscriber endpoint: %v", ErrConnectFailed, err)
	}

	c.pubConn = pubConn
	c.pubWrite = bufio.NewWriter(pubConn)
	c.subConn = subConn
	c.subWrite = bufio.NewWriter(subConn)
	c.connected = true
	c.recvDone = make(chan struct{})

	go c.receiveLoop(subConn, c.recvDone)

	c.log.Info().Msg("connected to broker")
	return nil
}

// Disconnect closes both sockets with zero linger, cancels the receive loop, and waits for in-flight callbacks to
// drain.
func (c *Client) Disconnect() error {
	c.connMu.Lock()
	if !c.connected {
		c.connMu.Unlock()
		return nil
	}
	c.connected = false
	pubConn, subConn, done := c.pubConn, c.subConn, c.recvDone
	c.connMu.Unlock()

	setZeroLinger(pubConn)
	setZeroLinger(subConn)
	pubConn.Close()
	subConn.Close()

	if done != nil {
		<-done
	}
	c.log.Info().Msg("disconnected from broker")
	return nil
}

func setZeroLinger(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetLinger(0)
	}
}

// Publish constructs a MessageEnvelope for payload, assigns a fresh message ID and timestamp, and sends it as a
// two-frame message on the given topic.
func (c *Client) Publish(ctx context.Context, topic string, env envelope.Envelope) error {
	c.connMu.Lock()
	w, connected := c.pubWrite, c.connected
	c.connMu.Unlock()
	if !connected {
		return ErrNotConnected
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("busclient: marshal envelope: %w", err)
	}

	c.pubWriteMu.Lock()
	err = writeMessage(w, envelope.Normalize(topic), raw)
	c.pubWriteMu.Unlock()
	if err != nil {
		return fmt.Errorf("busclient: publish: %w", err)
	}
	return nil
}

// PublishNew builds a fresh envelope via envelope.New and publishes it, the common case of producing a brand-new
// message rather than forwarding one already built.
func (c *Client) PublishNew(ctx context.Context, topic string, payload any) error {
	env, err := envelope.New(c.source, topic, payload)
	if err != nil {
		return err
	}
	return c.Publish(ctx, topic, env)
}

// SubscriptionHandle identifies a registered subscription for later Unsubscribe.
type SubscriptionHandle uint64

// Subscribe records handler under pattern, sends the broker the maximal static (non-wildcard) prefix of pattern as
// its server-side filter, and returns a handle for Unsubscribe. Subscribe and Unsubscribe calls are serialized with
// respect to each other but may run concurrently with Publish.
func (c *Client) Subscribe(ctx context.Context, pattern string, handler func(envelope.Envelope)) (SubscriptionHandle, error) {
	if err := envelope.ValidatePattern(pattern); err != nil {
		return 0, err
	}

	c.connMu.Lock()
	connected := c.connected
	c.connMu.Unlock()
	if !connected {
		return 0, ErrNotConnected
	}

	prefix := envelope.StaticPrefix(pattern)

	c.subsMu.Lock()
	id := c.nextSubID + 1
	c.nextSubID = id
	c.subs[id] = &subscription{id: id, prefix: prefix, pattern: pattern, handler: handler}
	firstForPrefix := c.prefixRefs[prefix] == 0
	c.prefixRefs[prefix]++
	c.subsMu.Unlock()

	if firstForPrefix {
		if err := c.sendControl(subscribeControlTopic, prefix); err != nil {
			return 0, err
		}
	}
	return SubscriptionHandle(id), nil
}

// Unsubscribe removes the callback registered for handle. If it was the last callback sharing that prefix, the
// broker-side filter for that prefix is cancelled.
func (c *Client) Unsubscribe(handle SubscriptionHandle) error {
	c.subsMu.Lock()
	sub, ok := c.subs[uint64(handle)]
	if !ok {
		c.subsMu.Unlock()
		return nil
	}
	delete(c.subs, uint64(handle))
	c.prefixRefs[sub.prefix]--
	lastForPrefix := c.prefixRefs[sub.prefix] <= 0
	if lastForPrefix {
		delete(c.prefixRefs, sub.prefix)
	}
	c.subsMu.Unlock()

	if lastForPrefix {
		return c.sendControl(unsubscribeControlTopic, sub.prefix)
	}
	return nil
}

func (c *Client) sendControl(controlTopic, prefix string) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if !c.connected {
		return ErrNotConnected
	}
	if err := writeMessage(c.subWrite, controlTopic, []byte(prefix)); err != nil {
		return fmt.Errorf("busclient: send subscription control: %w", err)
	}
	return c.subWrite.Flush()
}

// receiveLoop is the single task every received frame and every matching callback runs on, preserving per-topic
// delivery order.
func (c *Client) receiveLoop(conn net.Conn, done chan struct{}) {
	defer close(done)
	defer c.markDisconnected(conn)
	r := bufio.NewReader(conn)
	for {
		topic, body, err := readMessage(r)
		if err != nil {
			return
		}
		var env envelope.Envelope
		if err := json.Unmarshal(body, &env); err != nil {
			c.log.Warn().Err(err).Str("topic", topic).Msg("discarding malformed envelope")
			continue
		}
		c.dispatch(topic, env)
	}
}

func (c *Client) dispatch(topic string, env envelope.Envelope) {
	c.subsMu.Lock()
	var matched []*subscription
	for _, sub := range c.subs {
		if envelope.MatchPattern(sub.pattern, topic) {
			matched = append(matched, sub)
		}
	}
	c.subsMu.Unlock()

	for _, sub := range matched {
		sub.handler(env)
	}
}

// markDisconnected tears down connection state after the receive loop exits on its own (broker-side drop), so a
// subsequent Connect call actually redials instead of treating the stale connection as live.
func (c *Client) markDisconnected(subConn net.Conn) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.subConn != subConn || !c.connected {
		return // already torn down by an explicit Disconnect
	}
	c.connected = false
	setZeroLinger(c.pubConn)
	setZeroLinger(c.subConn)
	c.pubConn.Close()
	c.subConn.Close()
}

// Connected reports whether the client currently holds an open connection.
func (c *Client) Connected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.connected
}
