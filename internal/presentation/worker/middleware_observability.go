package workerpresentation

import (
	"context"
	"time"

	domoutbox "github.com/Zhima-Mochi/restaurant-pos/internal/domain/outbox"
	"github.com/Zhima-Mochi/restaurant-pos/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/restaurant-pos/internal/observability"
	"github.com/Zhima-Mochi/restaurant-pos/internal/observability/logctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// WithEventContext injects an event-scoped logger for background handlers.
// Dynamic fields only: trace_id/span_id (if valid), event_id (generated if empty),
// plus caller-provided low-cardinality attributes (e.g. "consumer", "event").
func WithEventContext(
	ctx context.Context,
	base observability.Logger,
	traceID trace.TraceID,
	spanID trace.SpanID,
	attrs map[string]string,
) context.Context {
	if base == nil {
		base = observability.NopLogger()
	}

	fields := make([]observability.Field, 0, len(attrs)+3)

	evtID := attrs["event_id"]
	if evtID == "" {
		evtID = uuid.NewString()
	}
	fields = append(fields, observability.F("event_id", evtID))

	if traceID.IsValid() {
		fields = append(fields, observability.F("trace_id", traceID.String()))
	}
	if spanID.IsValid() {
		fields = append(fields, observability.F("span_id", spanID.String()))
	}
	for k, v := range attrs {
		if k == "event_id" || v == "" {
			continue
		}
		fields = append(fields, observability.F(k, v))
	}

	return logctx.With(ctx, base.With(fields...))
}

// Subscriber decorates a subscriber so every handler it registers runs with an
// event-scoped logger and reports delivery metrics.
type Subscriber struct {
	next     domoutbox.Subscriber
	consumer string
	log      observability.Logger
	handled  observability.Counter
	duration observability.Histogram
}

func NewSubscriber(next domoutbox.Subscriber, consumer string, tel observability.Observability) *Subscriber {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Subscriber{
		next:     next,
		consumer: consumer,
		log:      tel.Logger(),
		handled:  tel.Metrics().Counter(observability.MEventsHandled),
		duration: tel.Metrics().Histogram(observability.MEventHandlerDuration),
	}
}

func (s *Subscriber) Subscribe(eventName string, h domoutbox.Handler) {
	s.next.Subscribe(eventName, func(ctx context.Context, e domoutbox.Event) error {
		attrs := map[string]string{"consumer": s.consumer}
		// the bus logger already carries the event name
		if d, ok := outbox.DeliveryFrom(ctx); ok {
			attrs["event_id"] = d.ID
		} else {
			attrs["event"] = eventName
		}
		sc := trace.SpanContextFromContext(ctx)
		ctx = WithEventContext(ctx, logctx.FromOr(ctx, s.log), sc.TraceID(), sc.SpanID(), attrs)

		start := time.Now()
		err := h(ctx, e)
		outcome := "success"
		if err != nil {
			outcome = "error"
			logctx.FromOr(ctx, s.log).Warn("event_handler_failed", observability.F("error", err))
		}
		s.handled.Add(1,
			observability.L("consumer", s.consumer),
			observability.L("event", eventName),
			observability.L("outcome", outcome),
		)
		s.duration.Observe(time.Since(start).Seconds(),
			observability.L("consumer", s.consumer),
			observability.L("event", eventName),
		)
		return err
	})
}
