package outbox

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	domoutbox "github.com/Zhima-Mochi/restaurant-pos/internal/domain/outbox"
	"github.com/Zhima-Mochi/restaurant-pos/internal/observability"
	"github.com/Zhima-Mochi/restaurant-pos/internal/observability/logctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

const componentOutbox = "outbox"

// ErrClosed is returned by Publish once the bus has been stopped.
var ErrClosed = errors.New("outbox: bus is stopped")

// Options size the bus. Zero values fall back to the defaults.
type Options struct {
	QueueSize      int
	Concurrency    int
	HandlerTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 8
	}
	if o.HandlerTimeout <= 0 {
		o.HandlerTimeout = 30 * time.Second
	}
	return o
}

// Delivery identifies one dispatch of an event to its handlers.
type Delivery struct {
	ID         string
	Event      string
	EnqueuedAt time.Time
}

type deliveryKey struct{}

// DeliveryFrom returns the delivery the handler context belongs to.
func DeliveryFrom(ctx context.Context) (Delivery, bool) {
	d, ok := ctx.Value(deliveryKey{}).(Delivery)
	return d, ok
}

type envelope struct {
	event    domoutbox.Event
	delivery Delivery
	span     trace.SpanContext
}

// Bus is an in-process event bus. Events committed by a use case are queued
// and fanned out to subscribers on a dispatcher goroutine. It is not durable;
// the RabbitMQ relay forwards events that must leave the process.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]domoutbox.Handler
	// closeMu guards closed and sends on queue; the dispatcher never takes it.
	closeMu sync.RWMutex
	closed  bool
	queue   chan envelope
	done    chan struct{}
	opts    Options
	started sync.Once
	stopped sync.Once
	cancel  context.CancelFunc
	log     observability.Logger
}

func NewBus(logger observability.Logger, opts Options) *Bus {
	if logger == nil {
		logger = observability.NopLogger()
	}
	opts = opts.withDefaults()
	return &Bus{
		subs:  make(map[string][]domoutbox.Handler),
		queue: make(chan envelope, opts.QueueSize),
		done:  make(chan struct{}),
		opts:  opts,
		log:   logger.With(observability.F("component", componentOutbox)),
	}
}

func (b *Bus) Subscribe(eventName string, h domoutbox.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventName] = append(b.subs[eventName], h)
}

func (b *Bus) Start(ctx context.Context) {
	b.started.Do(func() {
		bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
		b.cancel = cancel
		go b.dispatchLoop(bg)
		logctx.FromOr(ctx, b.log).Info("event_bus_started",
			observability.F("queue_size", b.opts.QueueSize),
			observability.F("concurrency", b.opts.Concurrency),
		)
	})
}

// Stop closes the queue and waits until queued events are dispatched or ctx
// expires.
func (b *Bus) Stop(ctx context.Context) {
	b.stopped.Do(func() {
		b.closeMu.Lock()
		b.closed = true
		close(b.queue)
		b.closeMu.Unlock()

		select {
		case <-b.done:
		case <-ctx.Done():
			logctx.FromOr(ctx, b.log).Warn("event_bus_drain_aborted", observability.F("pending", len(b.queue)))
		}
		if b.cancel != nil {
			b.cancel()
		}
		logctx.FromOr(ctx, b.log).Info("event_bus_stopped")
	})
}

func (b *Bus) Publish(ctx context.Context, e domoutbox.Event) error {
	if e == nil {
		return nil
	}
	env := envelope{
		event: e,
		delivery: Delivery{
			ID:         uuid.NewString(),
			Event:      e.EventName(),
			EnqueuedAt: time.Now().UTC(),
		},
		span: trace.SpanContextFromContext(ctx),
	}

	b.closeMu.RLock()
	defer b.closeMu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	logger := logctx.FromOr(ctx, b.log).With(observability.F("event", env.delivery.Event))
	select {
	case b.queue <- env:
		logger.Debug("event_enqueued", observability.F("delivery_id", env.delivery.ID))
		return nil
	case <-ctx.Done():
		logger.Warn("event_enqueue_aborted", observability.F("error", ctx.Err()))
		return ctx.Err()
	}
}

func (b *Bus) dispatchLoop(ctx context.Context) {
	defer close(b.done)
	for env := range b.queue {
		b.fanout(ctx, env)
	}
}

func (b *Bus) fanout(ctx context.Context, env envelope) {
	name := env.delivery.Event

	b.mu.RLock()
	handlers := append([]domoutbox.Handler(nil), b.subs[name]...)
	b.mu.RUnlock()

	logger := b.log.With(
		observability.F("event", name),
		observability.F("delivery_id", env.delivery.ID),
	)
	if len(handlers) == 0 {
		logger.Debug("event_dropped_no_subscriber")
		return
	}

	ctx = context.WithValue(ctx, deliveryKey{}, env.delivery)
	if env.span.IsValid() {
		ctx = trace.ContextWithRemoteSpanContext(ctx, env.span)
	}
	ctx = logctx.With(ctx, logger)

	sem := make(chan struct{}, b.opts.Concurrency)
	var wg sync.WaitGroup
	for _, h := range handlers {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("event_handler_panic",
						observability.F("panic", r),
						observability.F("stack", string(debug.Stack())),
					)
				}
				<-sem
				wg.Done()
			}()

			hctx, cancel := context.WithTimeout(ctx, b.opts.HandlerTimeout)
			defer cancel()
			if err := h(hctx, env.event); err != nil {
				logger.Warn("event_handler_error", observability.F("error", err))
			}
		}()
	}
	wg.Wait()

	logger.Debug("event_fanned_out", observability.F("handlers", len(handlers)))
}
