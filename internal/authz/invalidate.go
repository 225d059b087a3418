package authz

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// InvalidationMessage is published whenever a user's roles change, or a role's permission set changes.
type InvalidationMessage struct {
	UserUUID string `json:"user_uuid,omitempty"` // set for a single user's role change
	Role     string `json:"role,omitempty"`      // set for a role-wide permission change: invalidates everyone
}

// Publisher sends cache invalidation messages via Valkey pub/sub.
type Publisher struct {
	client *redis.Client
}

// NewPublisher creates an invalidation publisher.
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// InvalidateUser publishes an invalidation for every cached permission union belonging to userUUID.
func (p *Publisher) InvalidateUser(ctx context.Context, userUUID string) error {
	return p.publish(ctx, InvalidationMessage{UserUUID: userUUID})
}

// InvalidateRole publishes an invalidation for a role-wide permission change. Since the cache has no index from
// role to the users holding it, subscribers respond by dropping the entire cache.
func (p *Publisher) InvalidateRole(ctx context.Context, role string) error {
	return p.publish(ctx, InvalidationMessage{Role: role})
}

func (p *Publisher) publish(ctx context.Context, msg InvalidationMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal invalidation: %w", err)
	}
	return p.client.Publish(ctx, InvalidateChannel, data).Err()
}

// Subscriber listens for invalidation messages and evicts the corresponding cache entries.
type Subscriber struct {
	cache  Cache
	client *redis.Client
	log    zerolog.Logger
}

// NewSubscriber creates an invalidation subscriber.
func NewSubscriber(cache Cache, client *redis.Client, log zerolog.Logger) *Subscriber {
	return &Subscriber{cache: cache, client: client, log: log.With().Str("component", "authz.invalidate").Logger()}
}

// Run subscribes to the invalidation channel and processes messages until ctx is cancelled. Blocks; call in a
// goroutine.
func (s *Subscriber) Run(ctx context.Context) error {
	sub := s.client.Subscribe(ctx, InvalidateChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.handleMessage(ctx, msg.Payload)
		}
	}
}

func (s *Subscriber) handleMessage(ctx context.Context, payload string) {
	var msg InvalidationMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		s.log.Warn().Err(err).Str("payload", payload).Msg("invalid invalidation message")
		return
	}

	var err error
	switch {
	case msg.UserUUID != "":
		err = s.cache.DeleteByUser(ctx, msg.UserUUID)
	case msg.Role != "":
		err = s.cache.DeleteAll(ctx)
	default:
		return
	}

	if err != nil {
		s.log.Warn().Err(err).Msg("cache invalidation failed")
	}
}
