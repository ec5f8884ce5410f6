package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	dominv "github.com/Zhima-Mochi/restaurant-pos/internal/domain/inventory"
	"github.com/Zhima-Mochi/restaurant-pos/internal/observability"
	"github.com/go-co-op/gocron"
)

const sweepTimeout = 10 * time.Second

// LowStockSource lists records at or below their threshold.
type LowStockSource interface {
	LowStock(ctx context.Context) ([]dominv.Record, error)
}

// LowStockSweep periodically refreshes the low-stock gauge per restaurant.
type LowStockSweep struct {
	source    LowStockSource
	interval  time.Duration
	gauge     observability.Gauge
	log       observability.Logger
	scheduler *gocron.Scheduler

	mu       sync.Mutex
	reported map[string]bool
}

func NewLowStockSweep(source LowStockSource, interval time.Duration, tel observability.Observability) *LowStockSweep {
	if tel == nil {
		tel = observability.Nop()
	}
	return &LowStockSweep{
		source:   source,
		interval: interval,
		gauge:    tel.Metrics().Gauge(observability.MLowStockItems),
		log:      tel.Logger().With(observability.F("component", "low_stock_sweep")),
		reported: make(map[string]bool),
	}
}

// Start schedules the sweep; runs never overlap.
func (s *LowStockSweep) Start() error {
	sch := gocron.NewScheduler(time.UTC)
	sch.SingletonModeAll()
	if _, err := sch.Every(s.interval).Do(s.tick); err != nil {
		return fmt.Errorf("schedule: low stock sweep: %w", err)
	}
	sch.StartAsync()
	s.scheduler = sch
	s.log.Info("low_stock_sweep_started", observability.F("interval", s.interval.String()))
	return nil
}

func (s *LowStockSweep) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
		s.log.Info("low_stock_sweep_stopped")
	}
}

func (s *LowStockSweep) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	if _, err := s.Run(ctx); err != nil {
		s.log.Warn("low_stock_sweep_failed", observability.F("error", err))
	}
}

// Run performs one sweep and returns the low item count per restaurant.
// Restaurants that no longer have low items are reported as zero.
func (s *LowStockSweep) Run(ctx context.Context) (map[string]int, error) {
	records, err := s.source.LowStock(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, r := range records {
		counts[r.RestaurantID]++
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for rid := range s.reported {
		if _, ok := counts[rid]; !ok {
			s.gauge.Set(0, observability.L("restaurant_id", rid))
			delete(s.reported, rid)
		}
	}
	for rid, n := range counts {
		s.gauge.Set(float64(n), observability.L("restaurant_id", rid))
		s.reported[rid] = true
	}
	s.log.Debug("low_stock_sweep_done", observability.F("low_items", len(records)))
	return counts, nil
}
