package logging

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/boeni-industries/aico-gateway/internal/envelope"
)

// Subscriber is the subset of the bus client the consumer needs to receive log entries.
type Subscriber interface {
	Subscribe(ctx context.Context, pattern string, handler func(envelope.Envelope)) error
}

// Inserter persists one log entry. *Repository satisfies this.
type Inserter interface {
	Insert(ctx context.Context, e Entry) error
}

// Consumer subscribes to the logs/** topic and writes every entry it receives to a repository. Its own identifier
// belongs on the pipeline's deny list: a failure logged by the consumer must not re-enter the stream it drains.
type Consumer struct {
	repo Inserter
	log  zerolog.Logger
}

// NewConsumer creates a log consumer writing through repo.
func NewConsumer(repo Inserter, log zerolog.Logger) *Consumer {
	return &Consumer{repo: repo, log: log}
}

// Subsystem and Module are this consumer's own identifier, used to deny-list its logging from the pipeline it
// drains.
const (
	Subsystem = "logging"
	Module    = "consumer"
)

// Run subscribes to the log stream and blocks handling entries until ctx is cancelled or the subscription errors.
func (c *Consumer) Run(ctx context.Context, sub Subscriber) error {
	return sub.Subscribe(ctx, TopicPrefix+"/**", func(env envelope.Envelope) {
		var wire wirePayload
		if err := json.Unmarshal(env.Payload, &wire); err != nil {
			c.log.Error().Err(err).Str("topic", env.Metadata.MessageType).Msg("discarding malformed log entry")
			return
		}
		entry, err := wire.toEntry()
		if err != nil {
			c.log.Error().Err(err).Msg("discarding log entry with invalid level or timestamp")
			return
		}
		if err := c.repo.Insert(ctx, entry); err != nil {
			c.log.Error().Err(err).Msg("failed to persist log entry")
		}
	})
}
