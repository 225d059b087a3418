package busclient

import (
	"context"
	"time"
)

const (
	reconnectBase = 250 * time.Millisecond
	reconnectCap  = 5 * time.Second
)

// RunWithReconnect keeps the client connected to the broker, reconnecting with exponential backoff (base 250ms, cap
// 5s) whenever the connection drops, until ctx is cancelled. It blocks for the lifetime of ctx.
func (c *Client) RunWithReconnect(ctx context.Context, brokerHost string, pubPort, subPort int) {
	backoff := reconnectBase
	for {
		if ctx.Err() != nil {
			return
		}

		err := c.Connect(ctx, brokerHost, pubPort, subPort)
		if err != nil {
			c.log.Warn().Err(err).Dur("retry_in", backoff).Msg("broker connect failed, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > reconnectCap {
				backoff = reconnectCap
			}
			continue
		}

		backoff = reconnectBase
		c.awaitDisconnect(ctx)
		if ctx.Err() != nil {
			return
		}
		// Connection dropped unexpectedly; loop around and reconnect from scratch, re-subscribing every pattern
		// the caller previously registered (the broker holds no subscription state across a dropped connection).
		c.resubscribeAll(ctx, brokerHost, pubPort, subPort)
	}
}

// awaitDisconnect blocks until either the receive loop exits (connection dropped) or ctx is cancelled (in which
// case it disconnects deliberately).
func (c *Client) awaitDisconnect(ctx context.Context) {
	c.connMu.Lock()
	done := c.recvDone
	c.connMu.Unlock()
	if done == nil {
		return
	}

	select {
	case <-done:
	case <-ctx.Done():
		c.Disconnect()
	}
}

// resubscribeAll is a placeholder hook for the reconnect loop above; subscriptions recorded before a drop remain in
// c.subs, so a fresh Connect only needs its server-side prefix filters replayed.
func (c *Client) resubscribeAll(ctx context.Context, brokerHost string, pubPort, subPort int) {
	if err := c.Connect(ctx, brokerHost, pubPort, subPort); err != nil {
		c.log.Warn().Err(err).Msg("resubscribe reconnect failed")
		return
	}

	c.subsMu.Lock()
	prefixes := make([]string, 0, len(c.prefixRefs))
	for prefix := range c.prefixRefs {
		prefixes = append(prefixes, prefix)
	}
	c.subsMu.Unlock()

	for _, prefix := range prefixes {
		if err := c.sendControl(subscribeControlTopic, prefix); err != nil {
			c.log.Warn().Err(err).Str("prefix", prefix).Msg("failed to replay subscription after reconnect")
		}
	}
}
