package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	dominv "github.com/Zhima-Mochi/restaurant-pos/internal/domain/inventory"
	infraobs "github.com/Zhima-Mochi/restaurant-pos/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/restaurant-pos/internal/observability"
)

type fakeSource struct {
	mu      sync.Mutex
	records []dominv.Record
	err     error
	calls   int
}

func (f *fakeSource) LowStock(context.Context) ([]dominv.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.records, f.err
}

type recordingGauge struct {
	mu     sync.Mutex
	values map[string]float64
}

func (g *recordingGauge) Set(v float64, labels ...observability.Label) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.values[labels[0].Value] = v
}

func TestRunReportsPerRestaurantAndClearsStale(t *testing.T) {
	src := &fakeSource{records: []dominv.Record{
		{RestaurantID: "R1", MenuItemID: "I1"},
		{RestaurantID: "R1", MenuItemID: "I2"},
		{RestaurantID: "R2", MenuItemID: "I9"},
	}}
	g := &recordingGauge{values: map[string]float64{}}
	tel := infraobs.New(nil, nil, infraobs.Instruments{
		Gauges: map[observability.MetricKey]observability.Gauge{observability.MLowStockItems: g},
	})
	s := NewLowStockSweep(src, time.Minute, tel)

	counts, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if counts["R1"] != 2 || counts["R2"] != 1 || g.values["R1"] != 2 || g.values["R2"] != 1 {
		t.Fatalf("counts = %v gauge = %v", counts, g.values)
	}

	src.records = src.records[:2]
	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if g.values["R2"] != 0 || g.values["R1"] != 2 {
		t.Fatalf("stale restaurant not cleared: %v", g.values)
	}
}

func TestRunReturnsSourceError(t *testing.T) {
	src := &fakeSource{err: errors.New("db down")}
	s := NewLowStockSweep(src, time.Minute, nil)
	if _, err := s.Run(context.Background()); !errors.Is(err, src.err) {
		t.Fatalf("err = %v", err)
	}
}

func TestStartRunsOnSchedule(t *testing.T) {
	src := &fakeSource{}
	s := NewLowStockSweep(src, 20*time.Millisecond, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		src.mu.Lock()
		n := src.calls
		src.mu.Unlock()
		if n >= 2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("sweep did not run twice")
}
