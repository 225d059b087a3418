package logging

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"

	"github.com/boeni-industries/aico-gateway/internal/envelope"
)

type fakeSubscriber struct {
	pattern string
	handler func(envelope.Envelope)
}

func (f *fakeSubscriber) Subscribe(ctx context.Context, pattern string, handler func(envelope.Envelope)) error {
	f.pattern = pattern
	f.handler = handler
	return nil
}

type fakeInserter struct {
	inserted []Entry
	fail     error
}

func (f *fakeInserter) Insert(ctx context.Context, e Entry) error {
	if f.fail != nil {
		return f.fail
	}
	f.inserted = append(f.inserted, e)
	return nil
}

func TestConsumerRunSubscribesUnderLogsPrefix(t *testing.T) {
	repo := &fakeInserter{}
	c := NewConsumer(repo, zerolog.Nop())
	sub := &fakeSubscriber{}

	if err := c.Run(context.Background(), sub); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sub.pattern != "logs/**" {
		t.Errorf("pattern = %q, want logs/**", sub.pattern)
	}
}

func TestConsumerInsertsReceivedEntry(t *testing.T) {
	repo := &fakeInserter{}
	c := NewConsumer(repo, zerolog.Nop())
	sub := &fakeSubscriber{}
	_ = c.Run(context.Background(), sub)

	raw, _ := json.Marshal(wirePayload{
		Timestamp: "2026-07-30T12:00:00Z",
		Level:     "info",
		Subsystem: "router",
		Module:    "dispatch",
		Message:   "hello",
	})
	env, _ := envelope.New("router", "logs/router/dispatch", json.RawMessage(raw))
	sub.handler(env)

	if len(repo.inserted) != 1 || repo.inserted[0].Message != "hello" {
		t.Errorf("inserted = %+v, want one entry with message hello", repo.inserted)
	}
}

func TestConsumerDiscardsMalformedPayload(t *testing.T) {
	repo := &fakeInserter{}
	c := NewConsumer(repo, zerolog.Nop())
	sub := &fakeSubscriber{}
	_ = c.Run(context.Background(), sub)

	env, _ := envelope.New("router", "logs/router/dispatch", json.RawMessage(`{"level":123}`))
	sub.handler(env)

	if len(repo.inserted) != 0 {
		t.Errorf("inserted = %+v, want none for malformed payload", repo.inserted)
	}
}
