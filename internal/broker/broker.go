package broker

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ErrPortInUse is returned by Start when either the publisher or subscriber port cannot be bound.
var ErrPortInUse = errors.New("broker: port already in use")

// subscriberConn is one connected subscriber: its wire connection plus the set of prefixes it has registered.
type subscriberConn struct {
	conn     net.Conn
	w        *bufio.Writer
	mu       sync.Mutex     // serializes writes to conn
	prefixes map[string]int // prefix -> refcount, for shared-prefix unsubscribe bookkeeping
}

// Broker is a pub/sub relay: a forwarding loop copies messages from publisher connections to subscriber connections
// whose registered prefix matches the message topic. It does no queuing beyond the OS socket buffers and no
// persistence.
type Broker struct {
	log zerolog.Logger

	mu          sync.Mutex
	started     bool
	pubListener net.Listener
	subListener net.Listener

	subsMu sync.RWMutex
	subs   map[*subscriberConn]struct{}

	wg sync.WaitGroup
}

// New creates a broker. Start must be called before it forwards any traffic.
func New(log zerolog.Logger) *Broker {
	return &Broker{
		log:  log.With().Str("component", "broker").Logger(),
		subs: make(map[*subscriberConn]struct{}),
	}
}

// Start binds the publisher and subscriber TCP endpoints and begins forwarding. It returns once both listeners are
// bound; accept loops run in background goroutines.
func (b *Broker) Start(bindHost string, pubPort, subPort int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return fmt.Errorf("broker: already started")
	}

	pubAddr := fmt.Sprintf("%s:%d", bindHost, pubPort)
	pubLn, err := net.Listen("tcp", pubAddr)
	if err != nil {
		return fmt.Errorf("%w: publisher endpoint %s: %v", ErrPortInUse, pubAddr, err)
	}

	subAddr := fmt.Sprintf("%s:%d", bindHost, subPort)
	subLn, err := net.Listen("tcp", subAddr)
	if err != nil {
		pubLn.Close()
		return fmt.Errorf("%w: subscriber endpoint %s: %v", ErrPortInUse, subAddr, err)
	}

	b.pubListener = pubLn
	b.subListener = subLn
	b.started = true

	b.wg.Add(2)
	go b.acceptPublishers()
	go b.acceptSubscribers()

	b.log.Info().Str("publisher_addr", pubAddr).Str("subscriber_addr", subAddr).Msg("broker started")
	return nil
}

// Stop closes both listeners and every open connection with zero linger, then waits for the accept loops to exit.
// Stop is idempotent.
func (b *Broker) Stop() error {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return nil
	}
	b.started = false
	pubLn, subLn := b.pubListener, b.subListener
	b.mu.Unlock()

	if pubLn != nil {
		pubLn.Close()
	}
	if subLn != nil {
		subLn.Close()
	}

	b.subsMu.Lock()
	for s := range b.subs {
		setZeroLinger(s.conn)
		s.conn.Close()
	}
	b.subs = make(map[*subscriberConn]struct{})
	b.subsMu.Unlock()

	b.wg.Wait()
	b.log.Info().Msg("broker stopped")
	return nil
}

func (b *Broker) acceptPublishers() {
	defer b.wg.Done()
	for {
		conn, err := b.pubListener.Accept()
		if err != nil {
			return
		}
		go b.handlePublisher(conn)
	}
}

func (b *Broker) acceptSubscribers() {
	defer b.wg.Done()
	for {
		conn, err := b.subListener.Accept()
		if err != nil {
			return
		}
		go b.handleSubscriber(conn)
	}
}

func (b *Broker) handlePublisher(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		msg, err := readMessage(r)
		if err != nil {
			return // publisher disconnect; does not affect other publishers
		}
		b.forward(msg)
	}
}

func (b *Broker) handleSubscriber(conn net.Conn) {
	sub := &subscriberConn{
		conn:     conn,
		w:        bufio.NewWriter(conn),
		prefixes: make(map[string]int),
	}

	b.subsMu.Lock()
	b.subs[sub] = struct{}{}
	b.subsMu.Unlock()

	defer func() {
		b.subsMu.Lock()
		delete(b.subs, sub)
		b.subsMu.Unlock()
		conn.Close()
	}()

	r := bufio.NewReader(conn)
	for {
		msg, err := readMessage(r)
		if err != nil {
			return // subscriber disconnect absorbed silently
		}
		switch msg.topic {
		case subscribeControlTopic:
			sub.addPrefix(string(msg.body))
		case unsubscribeControlTopic:
			sub.removePrefix(string(msg.body))
		}
	}
}

func (s *subscriberConn) addPrefix(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefixes[prefix]++
}

func (s *subscriberConn) removePrefix(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prefixes[prefix] <= 1 {
		delete(s.prefixes, prefix)
		return
	}
	s.prefixes[prefix]--
}

func (s *subscriberConn) matches(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for prefix := range s.prefixes {
		if strings.HasPrefix(topic, prefix) {
			return true
		}
	}
	return false
}

// forward copies msg to every subscriber whose registered prefix matches its topic. A slow subscriber that fills its
// OS socket buffer loses messages rather than stalling the broker for everyone else: the write below is
// best-effort and its error, if any, only tears down that one subscriber.
func (b *Broker) forward(msg message) {
	b.subsMu.RLock()
	targets := make([]*subscriberConn, 0, len(b.subs))
	for s := range b.subs {
		if s.matches(msg.topic) {
			targets = append(targets, s)
		}
	}
	b.subsMu.RUnlock()

	for _, s := range targets {
		s.mu.Lock()
		err := writeMessage(s.w, msg)
		if err == nil {
			err = s.w.Flush()
		}
		s.mu.Unlock()
		if err != nil {
			s.conn.Close()
		}
	}
}
