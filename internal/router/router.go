// Package router implements the gateway's message router (spec §4.3, C12): the request/response correlator that
// maps external request topics onto internal ones, publishes with a fresh correlation id, and awaits the matching
// response (or times out), returning the result to the originating adapter.
package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/boeni-industries/aico-gateway/internal/busclient"
	"github.com/boeni-industries/aico-gateway/internal/envelope"
	"github.com/boeni-industries/aico-gateway/internal/ferror"
)

// responseTopicPattern and errorTopicPattern are the bus subscriptions the router establishes on Start, per
// spec §4.3.
const (
	responseTopicPattern = "api/response/"
	errorTopicPattern    = "system/error/"

	routerSource = "router"
)

// Bus is the subset of *busclient.Client the router depends on, named so tests can substitute a fake bus without a
// real broker connection.
type Bus interface {
	Publish(ctx context.Context, topic string, env envelope.Envelope) error
	Subscribe(ctx context.Context, pattern string, handler func(envelope.Envelope)) (busclient.SubscriptionHandle, error)
}

// Result is what RouteMessage returns: either a successful response envelope or a failure reason. TimedOut
// distinguishes the one failure case an adapter must map to a different status/close code than a generic
// downstream failure (spec §4.8a's "timeout -> 504"): it is set only when the router's own wait elapsed with no
// matching response or error envelope, never for an explicit system/error/ envelope.
type Result struct {
	Success       bool
	Response      envelope.Envelope
	Error         string
	CorrelationID string
	TimedOut      bool
}

// pendingRequest is a single in-flight route_message call's completion handle. Completion is single-shot: the first
// of the response handler or the timeout path to fire wins, and sync.Once makes any other attempt a no-op instead
// of a panic on a full/closed channel.
type pendingRequest struct {
	once sync.Once
	done chan Result
}

func (p *pendingRequest) complete(result Result) {
	p.once.Do(func() {
		p.done <- result
	})
}

// Router binds a bus client and a topic mapping table to implement route_message.
type Router struct {
	bus Bus
	cfg Config
	log zerolog.Logger

	mu      sync.Mutex
	pending map[string]*pendingRequest
}

// New creates a Router. cfg is validated immediately; a malformed topic_mapping table (ambiguous prefixes, a
// non-positive timeout or max_message_size) is a configuration error raised at construction rather than discovered
// per-request.
func New(bus Bus, cfg Config, log zerolog.Logger) (*Router, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Router{
		bus:     bus,
		cfg:     cfg,
		log:     log.With().Str("component", "router").Logger(),
		pending: make(map[string]*pendingRequest),
	}, nil
}

// Start subscribes to the response and error topics the router correlates against. It must be called once, after
// the bus client is connected, before any RouteMessage call can complete successfully.
func (r *Router) Start(ctx context.Context) error {
	if _, err := r.bus.Subscribe(ctx, responseTopicPattern, r.handleResponse); err != nil {
		return fmt.Errorf("router: subscribe to %s: %w", responseTopicPattern, err)
	}
	if _, err := r.bus.Subscribe(ctx, errorTopicPattern, r.handleError); err != nil {
		return fmt.Errorf("router: subscribe to %s: %w", errorTopicPattern, err)
	}
	return nil
}

// PendingCount reports the number of in-flight route_message calls, for tests and the metrics endpoint asserting
// the spec's pending-map invariants.
func (r *Router) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// RouteMessage implements spec §4.3's route_message algorithm.
func (r *Router) RouteMessage(ctx context.Context, env envelope.Envelope) (Result, error) {
	internalTopic, ok := r.cfg.resolve(env.Metadata.MessageType)
	if !ok {
		return Result{}, ferror.New(ferror.KindNoRoute, fmt.Sprintf("no route for %q", env.Metadata.MessageType))
	}

	size, err := env.Size()
	if err != nil {
		return Result{}, ferror.Wrap(ferror.KindInternal, "failed to measure envelope size", err)
	}
	if size > r.cfg.MaxMessageSize {
		return Result{}, ferror.New(ferror.KindMessageTooLarge, "message exceeds the maximum allowed size")
	}

	correlationID := uuid.New().String()

	pr := &pendingRequest{done: make(chan Result, 1)}
	r.mu.Lock()
	r.pending[correlationID] = pr
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.pending, correlationID)
		r.mu.Unlock()
	}()

	routed := env
	routed.Metadata.Source = routerSource
	routed = routed.WithAttribute(envelope.CorrelationIDKey, correlationID)
	routed = routed.WithAttribute(envelope.ExternalTopicKey, env.Metadata.MessageType)

	if err := r.bus.Publish(ctx, internalTopic, routed); err != nil {
		return Result{}, ferror.Wrap(ferror.KindPublishFailed, "failed to publish routed message", err)
	}

	select {
	case result := <-pr.done:
		return result, nil
	case <-time.After(r.cfg.Timeout):
		return Result{
			Success:       false,
			Error:         fmt.Sprintf("Request timeout after %gs", r.cfg.Timeout.Seconds()),
			CorrelationID: correlationID,
			TimedOut:      true,
		}, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// handleResponse completes the pending request matching env's correlation id with a success result. A missing
// correlation id, an unknown correlation id (already completed, timed out, or never issued by this router), are
// all logged and dropped rather than treated as errors, per spec §4.3.
func (r *Router) handleResponse(env envelope.Envelope) {
	r.dispatch(env, true)
}

// handleError completes the pending request matching env's correlation id with a failure result.
func (r *Router) handleError(env envelope.Envelope) {
	r.dispatch(env, false)
}

func (r *Router) dispatch(env envelope.Envelope, success bool) {
	correlationID, ok := env.CorrelationID()
	if !ok {
		r.log.Warn().Str("message_type", env.Metadata.MessageType).Msg("received envelope without a correlation id, dropping")
		return
	}

	r.mu.Lock()
	pr, ok := r.pending[correlationID]
	r.mu.Unlock()
	if !ok {
		r.log.Warn().Str("correlation_id", correlationID).Msg("no pending request for correlation id, dropping")
		return
	}

	result := Result{Success: success, CorrelationID: correlationID}
	if success {
		result.Response = env
	} else {
		result.Error = errorMessage(env)
	}
	pr.complete(result)
}

// errorMessage extracts a human-readable message from a system/error/ envelope's payload, falling back to a generic
// message if the payload has no "message" field.
func errorMessage(env envelope.Envelope) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := env.Unmarshal(&body); err == nil && body.Message != "" {
		return body.Message
	}
	return "request failed"
}
