// Package logging implements the gateway's logging pipeline: logger -> LogBuffer -> Transport -> bus topic ->
// LogConsumer -> repository -> database. Until the transport is ready, entries queue in a bounded buffer; once
// ready, the buffer flushes in FIFO order and new entries go straight to the transport. A configurable deny list of
// (subsystem, module) pairs bypasses the pipeline entirely via a direct synchronous console write, so the pipeline's
// own logging (and the consumer's) can never cycle back through itself.
package logging

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Transport delivers a single log entry off-process (onto the bus, in production).
type Transport interface {
	Send(ctx context.Context, e Entry) error
}

// Pipeline is the in-process front end every component logs through. It is safe for concurrent use.
type Pipeline struct {
	mu        sync.RWMutex
	buf       *Buffer
	transport Transport
	ready     bool
	levels    *LevelResolver
	denyList  map[string]bool // "subsystem/module" -> bypass via fallback
	fallback  zerolog.Logger
	source    string
}

// Option configures a Pipeline at construction time.
type Option func(*Pipeline)

// WithDenyList marks (subsystem, module) pairs that must never flow through the buffer/transport, falling back to a
// direct synchronous write on fallback instead. The consumer's own identifier belongs here, to guarantee its writes
// can never themselves enqueue onto the pipeline it is draining.
func WithDenyList(pairs ...[2]string) Option {
	return func(p *Pipeline) {
		for _, pair := range pairs {
			p.denyList[pair[0]+"/"+pair[1]] = true
		}
	}
}

// WithLevels sets the pipeline's level resolver. Without this option every entry is emitted regardless of level.
func WithLevels(levels *LevelResolver) Option {
	return func(p *Pipeline) { p.levels = levels }
}

// NewPipeline creates a pipeline buffering up to capacity entries before a transport is attached. fallback is the
// synchronous logger used for deny-listed identifiers and for the buffer's own overflow warning.
func NewPipeline(capacity int, fallback zerolog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		ready:    false,
		denyList: make(map[string]bool),
		fallback: fallback,
	}
	p.buf = NewBuffer(capacity, func(dropped uint64) {
		p.fallback.Warn().Uint64("dropped_total", dropped).Msg("log buffer overflow, oldest entries dropped")
	})
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Log records one entry. It never blocks on network or disk: deny-listed entries write synchronously to the
// fallback logger; everything else either flushes straight to the transport (if ready) or is enqueued.
func (p *Pipeline) Log(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	p.mu.RLock()
	levels := p.levels
	p.mu.RUnlock()
	if levels != nil && !levels.Enabled(e.Subsystem, e.Module, e.Level) {
		return
	}

	if p.denyList[e.Subsystem+"/"+e.Module] {
		p.writeFallback(e)
		return
	}

	p.mu.RLock()
	ready := p.ready
	transport := p.transport
	p.mu.RUnlock()

	if ready && transport != nil {
		// Best-effort: a transport send failure falls back to the synchronous writer rather than being silently
		// lost, per "never lose a log."
		if err := transport.Send(context.Background(), e); err != nil {
			p.writeFallback(e)
		}
		return
	}

	p.buf.Push(e)
}

func (p *Pipeline) writeFallback(e Entry) {
	evt := p.fallback.WithLevel(zerologLevel(e.Level)).
		Str("subsystem", e.Subsystem).
		Str("module", e.Module)
	if e.Topic != "" {
		evt = evt.Str("topic", e.Topic)
	}
	if e.TraceID != "" {
		evt = evt.Str("trace_id", e.TraceID)
	}
	evt.Msg(e.Message)
}

func zerologLevel(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// MarkReady attaches transport and flushes the buffer's backlog onto it in FIFO order. New entries logged after
// this call go straight to the transport; it must be called at most once per pipeline lifetime.
func (p *Pipeline) MarkReady(transport Transport) {
	backlog := p.buf.Drain()

	p.mu.Lock()
	p.transport = transport
	p.ready = true
	p.mu.Unlock()

	for _, e := range backlog {
		if err := transport.Send(context.Background(), e); err != nil {
			p.writeFallback(e)
		}
	}
}

// BufferedCount reports how many entries are currently queued awaiting a ready transport.
func (p *Pipeline) BufferedCount() int {
	return p.buf.Len()
}
