package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domoutbox "github.com/Zhima-Mochi/restaurant-pos/internal/domain/outbox"
	"go.opentelemetry.io/otel/trace"
)

type testEvent struct{ name string }

func (e testEvent) EventName() string { return e.name }

func TestBusFansOutToSubscribers(t *testing.T) {
	bus := NewBus(nil, Options{Concurrency: 2})
	var mu sync.Mutex
	got := map[string]int{}
	var wg sync.WaitGroup
	wg.Add(3)
	handler := func(tag string) domoutbox.Handler {
		return func(ctx context.Context, e domoutbox.Event) error {
			defer wg.Done()
			d, ok := DeliveryFrom(ctx)
			if !ok || d.ID == "" || d.Event != e.EventName() {
				t.Errorf("delivery = %+v, %v", d, ok)
			}
			mu.Lock()
			got[tag+":"+e.EventName()]++
			mu.Unlock()
			return nil
		}
	}
	bus.Subscribe("a", handler("h1"))
	bus.Subscribe("a", handler("h2"))
	bus.Subscribe("b", handler("h1"))

	ctx := context.Background()
	bus.Start(ctx)
	for _, name := range []string{"a", "b", "unrouted"} {
		if err := bus.Publish(ctx, testEvent{name}); err != nil {
			t.Fatalf("Publish(%s): %v", name, err)
		}
	}
	wg.Wait()
	bus.Stop(ctx)

	if got["h1:a"] != 1 || got["h2:a"] != 1 || got["h1:b"] != 1 {
		t.Fatalf("deliveries = %v", got)
	}
}

func TestBusCarriesSpanContext(t *testing.T) {
	bus := NewBus(nil, Options{})
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3},
		SpanID:     trace.SpanID{4, 5, 6},
		TraceFlags: trace.FlagsSampled,
	})
	seen := make(chan trace.SpanContext, 1)
	bus.Subscribe("a", func(ctx context.Context, _ domoutbox.Event) error {
		seen <- trace.SpanContextFromContext(ctx)
		return nil
	})
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	if err := bus.Publish(trace.ContextWithSpanContext(context.Background(), sc), testEvent{"a"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case got := <-seen:
		if got.TraceID() != sc.TraceID() || got.SpanID() != sc.SpanID() || !got.IsRemote() {
			t.Fatalf("span context = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
}

func TestBusSurvivesHandlerFailures(t *testing.T) {
	bus := NewBus(nil, Options{})
	done := make(chan struct{})
	bus.Subscribe("a", func(context.Context, domoutbox.Event) error { panic("boom") })
	bus.Subscribe("a", func(context.Context, domoutbox.Event) error { return errors.New("nope") })
	bus.Subscribe("b", func(context.Context, domoutbox.Event) error {
		close(done)
		return nil
	})
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	_ = bus.Publish(context.Background(), testEvent{"a"})
	_ = bus.Publish(context.Background(), testEvent{"b"})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher stopped after a failing handler")
	}
}

func TestStopDrainsAndRejectsLatePublishes(t *testing.T) {
	bus := NewBus(nil, Options{QueueSize: 16})
	var mu sync.Mutex
	n := 0
	bus.Subscribe("a", func(context.Context, domoutbox.Event) error {
		mu.Lock()
		n++
		mu.Unlock()
		return nil
	})
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if err := bus.Publish(ctx, testEvent{"a"}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	bus.Start(ctx)
	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	bus.Stop(stopCtx)

	mu.Lock()
	defer mu.Unlock()
	if n != 10 {
		t.Fatalf("handled %d of 10 queued events", n)
	}
	if err := bus.Publish(ctx, testEvent{"a"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("publish after stop: %v", err)
	}
}
