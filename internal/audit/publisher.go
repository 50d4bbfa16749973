package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"datashare/pkg/requestcontext"
)

// Sink receives every published event in addition to the store. Used for the
// optional Kafka fan-out.
type Sink interface {
	Send(ctx context.Context, event Event) error
}

// Publisher captures structured audit events. By default writes are
// synchronous; WithAsyncBuffer switches to a buffered channel drained by one
// worker goroutine. When the buffer is full events are dropped rather than
// blocking the request path.
type Publisher struct {
	store  Store
	sink   Sink
	logger *slog.Logger

	inbox     chan Event
	done      chan struct{}
	closeOnce sync.Once

	onDrop func()
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithAsyncBuffer enables asynchronous publishing with the given buffer size.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.inbox = make(chan Event, size)
		}
	}
}

// WithSink adds a fan-out sink alongside the store.
func WithSink(sink Sink) Option {
	return func(p *Publisher) {
		p.sink = sink
	}
}

// WithDropCounter registers a callback invoked for every dropped event.
func WithDropCounter(fn func()) Option {
	return func(p *Publisher) {
		p.onDrop = fn
	}
}

func NewPublisher(store Store, logger *slog.Logger, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: logger,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		go p.run()
	}
	return p
}

// Publish records an event, enriching it with request metadata from the
// context. In async mode a full buffer drops the event.
func (p *Publisher) Publish(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.IP == "" {
		event.IP = requestcontext.ClientIP(ctx)
	}
	if event.UserAgent == "" {
		event.UserAgent = requestcontext.UserAgent(ctx)
	}

	if p.inbox == nil {
		p.persist(context.WithoutCancel(ctx), event)
		return
	}

	select {
	case p.inbox <- event:
	default:
		if p.onDrop != nil {
			p.onDrop()
		}
		p.logger.Warn("audit buffer full, event dropped", "action", string(event.Action))
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for event := range p.inbox {
		p.persist(context.Background(), event)
	}
}

func (p *Publisher) persist(ctx context.Context, event Event) {
	if err := p.store.Append(ctx, event); err != nil {
		p.logger.Error("failed to persist audit event",
			"action", string(event.Action),
			"error", err,
		)
	}
	if p.sink != nil {
		if err := p.sink.Send(ctx, event); err != nil {
			p.logger.Error("failed to forward audit event to sink",
				"action", string(event.Action),
				"error", err,
			)
		}
	}
}

// Close drains the async buffer and stops the worker. Safe to call on a
// synchronous publisher and safe to call twice.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		if p.inbox == nil {
			close(p.done)
			return
		}
		close(p.inbox)
		select {
		case <-p.done:
		case <-time.After(5 * time.Second):
			p.logger.Warn("audit publisher close timed out before drain finished")
		}
	})
}
