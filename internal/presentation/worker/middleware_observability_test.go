package workerpresentation

import (
	"context"
	"errors"
	"testing"
	"time"

	domoutbox "github.com/Zhima-Mochi/restaurant-pos/internal/domain/outbox"
	infraobs "github.com/Zhima-Mochi/restaurant-pos/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/restaurant-pos/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/restaurant-pos/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/restaurant-pos/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/restaurant-pos/internal/observability"
	"github.com/Zhima-Mochi/restaurant-pos/internal/observability/logctx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type pingEvent struct{}

func (pingEvent) EventName() string { return "test.ping" }

func TestSubscriberScopesLoggerAndCounts(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	reg := prometheus.NewRegistry()
	metrics := prometrics.NewWith(reg, "pos", "")
	tel := infraobs.New(nil, zaplogger.New(zap.New(core)), infraobs.Instruments{
		Counters: map[observability.MetricKey]observability.Counter{
			observability.MEventsHandled: metrics.Counter(string(observability.MEventsHandled), "events handled", "consumer", "event", "outcome"),
		},
	})

	bus := outbox.NewBus(tel.Logger(), outbox.Options{})
	subs := NewSubscriber(bus, "alerts", tel)
	done := make(chan struct{}, 2)
	subs.Subscribe("test.ping", func(ctx context.Context, _ domoutbox.Event) error {
		logctx.From(ctx).Info("handled")
		done <- struct{}{}
		return nil
	})
	subs.Subscribe("test.ping", func(context.Context, domoutbox.Event) error {
		done <- struct{}{}
		return errors.New("downstream unavailable")
	})

	bus.Start(context.Background())
	if err := bus.Publish(context.Background(), pingEvent{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("handler not called")
		}
	}
	bus.Stop(context.Background())

	handled := logs.FilterMessage("handled").All()
	if len(handled) != 1 {
		t.Fatalf("handled lines = %d", len(handled))
	}
	fields := handled[0].ContextMap()
	if fields["consumer"] != "alerts" || fields["event"] != "test.ping" || fields["event_id"] == "" {
		t.Fatalf("fields = %v", fields)
	}
	if logs.FilterMessage("event_handler_failed").Len() != 1 {
		t.Fatalf("failure not logged: %+v", logs.All())
	}
	// one success series and one error series
	n, err := testutil.GatherAndCount(reg, "pos_events_handled_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n != 2 {
		t.Fatalf("events handled series = %d, want 2", n)
	}
}
