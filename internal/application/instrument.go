package application

import (
	"context"
	"time"

	"github.com/Zhima-Mochi/restaurant-pos/internal/domain/errs"
	domoutbox "github.com/Zhima-Mochi/restaurant-pos/internal/domain/outbox"
	"github.com/Zhima-Mochi/restaurant-pos/internal/observability"
	"github.com/Zhima-Mochi/restaurant-pos/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	SpanPrefix     = "UC."
	publishPeer    = "outbox"
	publishTimeout = 300 * time.Millisecond
)

// Instrumentation carries the RED metrics, tracer and base logger shared by
// the use cases of one service.
type Instrumentation struct {
	tracer observability.Tracer
	log    observability.Logger

	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewInstrumentation(service string, tel observability.Observability) *Instrumentation {
	if tel == nil {
		tel = observability.Nop()
	}
	m := tel.Metrics()
	return &Instrumentation{
		tracer:       tel.Tracer(),
		log:          tel.Logger().With(observability.F("service", service)),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
	}
}

// Logger is the service logger, for code running outside a use case.
func (in *Instrumentation) Logger() observability.Logger { return in.log }

// Run tracks one use case execution from Start to End.
type Run struct {
	in         *Instrumentation
	ctx        context.Context
	span       trace.Span
	useCase    string
	start      time.Time
	outcome    string
	status     string
	logger     observability.Logger
	fields     []observability.Field
	publishErr error
}

// Start opens the span for useCase and binds a use-case logger to the
// returned context.
func (in *Instrumentation) Start(ctx context.Context, useCase, spanName string, attrs ...attribute.KeyValue) (context.Context, *Run) {
	attrs = append([]attribute.KeyValue{attribute.String("use_case", useCase)}, attrs...)
	ctx, span := in.tracer.Start(ctx, SpanPrefix+spanName, attrs...)

	logger := logctx.FromOr(ctx, in.log).With(observability.F("use_case", useCase))
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		logger = logger.With(
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	ctx = logctx.With(ctx, logger)

	return ctx, &Run{
		in:      in,
		ctx:     ctx,
		span:    span,
		useCase: useCase,
		start:   time.Now(),
		outcome: "success",
		status:  "OK",
		logger:  logger,
	}
}

// Fail marks the run as failed with a specific status text.
func (r *Run) Fail(status string) {
	r.outcome, r.status = "error", status
}

// SetStatus replaces the status text without changing the outcome.
func (r *Run) SetStatus(status string) {
	r.status = status
}

// Field adds a field to the use_case_done line.
func (r *Run) Field(k string, v any) {
	r.fields = append(r.fields, observability.F(k, v))
}

func (r *Run) Attr(attrs ...attribute.KeyValue) {
	r.span.SetAttributes(attrs...)
}

func (r *Run) Event(name string, attrs ...attribute.KeyValue) {
	r.span.AddEvent(name, trace.WithAttributes(attrs...))
}

func (r *Run) Logger() observability.Logger { return r.logger }

// Publish sends events after commit. Failures are recorded but never fail the
// use case; the state change is already durable.
func (r *Run) Publish(pub domoutbox.Publisher, events ...domoutbox.Event) {
	if pub == nil {
		return
	}
	for _, e := range events {
		pubCtx, cancel := context.WithTimeout(r.ctx, publishTimeout)
		pubStart := time.Now()
		outcome := "success"

		err := pub.Publish(pubCtx, e)
		if err != nil {
			outcome = "error"
		} else if pubCtx.Err() != nil {
			outcome = "canceled"
			err = pubCtx.Err()
		}
		cancel()

		r.in.extCounter.Add(1,
			observability.L("peer", publishPeer),
			observability.L("endpoint", e.EventName()),
			observability.L("outcome", outcome),
		)
		r.in.extHistogram.Observe(time.Since(pubStart).Seconds(),
			observability.L("peer", publishPeer),
			observability.L("endpoint", e.EventName()),
		)

		if err != nil {
			r.publishErr = err
			r.span.RecordError(err)
			r.logger.Warn("event_publish_failed",
				observability.F("event", e.EventName()),
				observability.F("error", err.Error()),
			)
		}
	}
}

// End closes the span, records RED metrics and emits the single
// use_case_done line.
func (r *Run) End(err error) {
	if err != nil && r.outcome != "error" {
		r.Fail(errs.Code(err))
	}
	lat := time.Since(r.start).Seconds()

	if err != nil {
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, r.status)
	} else {
		r.span.SetStatus(codes.Ok, r.status)
	}
	r.span.End()

	r.in.reqCounter.Add(1,
		observability.L("use_case", r.useCase),
		observability.L("outcome", r.outcome),
	)
	r.in.durHistogram.Observe(lat,
		observability.L("use_case", r.useCase),
	)

	fields := []observability.Field{
		observability.F("outcome", r.outcome),
		observability.F("status", r.status),
		observability.F("latency_seconds", lat),
	}
	fields = append(fields, r.fields...)
	if r.publishErr != nil {
		fields = append(fields, observability.F("event_publish_error", r.publishErr.Error()))
	}
	if err != nil {
		fields = append(fields, observability.F("error", err.Error()))
	}
	r.logger.Info("use_case_done", fields...)
}
