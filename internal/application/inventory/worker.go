package inventory

import (
	"context"
	"time"

	dominv "github.com/Zhima-Mochi/restaurant-pos/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/restaurant-pos/internal/domain/outbox"
	"github.com/Zhima-Mochi/restaurant-pos/internal/observability"
	"github.com/Zhima-Mochi/restaurant-pos/internal/observability/logctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const workerService = "inventory_worker"

// AlertWorker turns committed low and negative stock events into warnings and
// counters.
type AlertWorker struct {
	subscriber domoutbox.Subscriber
	tel        observability.Observability

	log          observability.Logger
	reqCounter   observability.Counter // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram
	negative     observability.Counter // inventory_negative_stock_total{restaurant_id}
	low          observability.Counter // inventory_low_stock_alerts_total{restaurant_id}
}

func NewAlertWorker(
	subscriber domoutbox.Subscriber,
	tel observability.Observability,
	logger observability.Logger,
) *AlertWorker {
	if tel == nil {
		tel = observability.Nop()
	}
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = tel.Logger()
	}
	m := tel.Metrics()
	return &AlertWorker{
		subscriber:   subscriber,
		tel:          tel,
		log:          baseLogger.With(observability.F("service", workerService)),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
		negative:     m.Counter(observability.MNegativeStock),
		low:          m.Counter(observability.MLowStockAlerts),
	}
}

func (w *AlertWorker) Start() {
	if w.subscriber == nil {
		return
	}
	w.subscriber.Subscribe(dominv.NegativeStockEvent{}.EventName(), w.handleNegativeStock)
	w.subscriber.Subscribe(dominv.LowStockEvent{}.EventName(), w.handleLowStock)
}

func (w *AlertWorker) handleNegativeStock(ctx context.Context, e domoutbox.Event) error {
	const useCase = "inventory.worker.negative_stock"
	evt, ok := e.(dominv.NegativeStockEvent)
	if !ok {
		w.count(useCase, "ignored")
		return nil
	}

	ctx, done := w.begin(ctx, useCase, "NegativeStock", e,
		observability.F("restaurant_id", evt.RestaurantID),
		observability.F("menu_item_id", evt.MenuItemID),
	)
	defer done()

	w.negative.Add(1, observability.L("restaurant_id", evt.RestaurantID))
	logctx.FromOr(ctx, w.log).Warn("negative_stock",
		observability.F("quantity", evt.Quantity.String()),
		observability.F("entry_id", evt.EntryID),
		observability.F("order_id", evt.OrderID),
	)
	return nil
}

func (w *AlertWorker) handleLowStock(ctx context.Context, e domoutbox.Event) error {
	const useCase = "inventory.worker.low_stock"
	evt, ok := e.(dominv.LowStockEvent)
	if !ok {
		w.count(useCase, "ignored")
		return nil
	}

	ctx, done := w.begin(ctx, useCase, "LowStock", e,
		observability.F("restaurant_id", evt.RestaurantID),
		observability.F("menu_item_id", evt.MenuItemID),
	)
	defer done()

	w.low.Add(1, observability.L("restaurant_id", evt.RestaurantID))
	logctx.FromOr(ctx, w.log).Warn("low_stock",
		observability.F("quantity", evt.Quantity.String()),
		observability.F("threshold", evt.Threshold.String()),
	)
	return nil
}

// begin opens the span and scoped logger for one event; the returned func
// records the outcome.
func (w *AlertWorker) begin(ctx context.Context, useCase, span string, e domoutbox.Event, fields ...observability.Field) (context.Context, func()) {
	ctx, sp := w.tel.Tracer().Start(ctx, "UC."+span,
		attribute.String("use_case", useCase),
		attribute.String("event", e.EventName()),
	)
	start := time.Now()

	logger := logctx.FromOr(ctx, w.log).With(observability.F("use_case", useCase))
	logger = logger.With(fields...)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		logger = logger.With(
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	ctx = logctx.With(ctx, logger)

	return ctx, func() {
		lat := time.Since(start).Seconds()
		w.observe(useCase, "success", lat)
		logger.Info("use_case_done",
			observability.F("outcome", "success"),
			observability.F("status", "OK"),
			observability.F("latency_seconds", lat),
		)
		sp.SetStatus(codes.Ok, "OK")
		sp.End()
	}
}

func (w *AlertWorker) count(useCase, outcome string) {
	w.reqCounter.Add(1,
		observability.L("use_case", useCase),
		observability.L("outcome", outcome),
	)
}

func (w *AlertWorker) observe(useCase string, outcome string, latencySeconds float64) {
	w.count(useCase, outcome)
	w.durHistogram.Observe(latencySeconds,
		observability.L("use_case", useCase),
	)
}
