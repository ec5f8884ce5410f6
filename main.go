package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Zhima-Mochi/restaurant-pos/internal/application"
	appcoupon "github.com/Zhima-Mochi/restaurant-pos/internal/application/coupon"
	appinventory "github.com/Zhima-Mochi/restaurant-pos/internal/application/inventory"
	apporder "github.com/Zhima-Mochi/restaurant-pos/internal/application/order"
	apppayment "github.com/Zhima-Mochi/restaurant-pos/internal/application/payment"
	dominv "github.com/Zhima-Mochi/restaurant-pos/internal/domain/inventory"
	"github.com/Zhima-Mochi/restaurant-pos/internal/domain/menu"
	"github.com/Zhima-Mochi/restaurant-pos/internal/infrastructure/config"
	"github.com/Zhima-Mochi/restaurant-pos/internal/infrastructure/id"
	"github.com/Zhima-Mochi/restaurant-pos/internal/infrastructure/memory"
	infraobs "github.com/Zhima-Mochi/restaurant-pos/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/restaurant-pos/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/restaurant-pos/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/restaurant-pos/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/restaurant-pos/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/restaurant-pos/internal/infrastructure/postgres"
	"github.com/Zhima-Mochi/restaurant-pos/internal/infrastructure/rabbitmq"
	"github.com/Zhima-Mochi/restaurant-pos/internal/infrastructure/schedule"
	"github.com/Zhima-Mochi/restaurant-pos/internal/observability"
	"github.com/Zhima-Mochi/restaurant-pos/internal/pkg/logging"
	httppresentation "github.com/Zhima-Mochi/restaurant-pos/internal/presentation/http"
	workerpresentation "github.com/Zhima-Mochi/restaurant-pos/internal/presentation/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 10 * time.Second
	seedActor       = "system:seed"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	baseLogger, err := logging.NewLogger(logging.Options{
		Service: cfg.Service,
		Env:     cfg.Env,
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
	})
	if err != nil {
		return err
	}
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	logger := zaplogger.New(baseLogger)
	tel := infraobs.New(oteltrace.New(cfg.Service), logger, newInstruments(prometrics.New("pos", "")))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, catalog, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	bus := outbox.NewBus(logger, outbox.Options{
		QueueSize:   cfg.Events.QueueSize,
		Concurrency: cfg.Events.Concurrency,
	})

	ids := id.NewUUID()
	inventoryService := appinventory.NewService(store, ids, bus, tel)
	couponService := appcoupon.NewService(store, ids, bus, tel)
	paymentService := apppayment.NewService(store, ids, inventoryService, bus, tel)
	orderService := apporder.NewService(apporder.Deps{
		UnitOfWork: store,
		Catalog:    catalog,
		Stock:      inventoryService,
		Coupons:    couponService,
		Refunder:   paymentService,
		Publisher:  bus,
	}, tel)

	if cfg.SeedFile != "" {
		if err := seedCatalog(ctx, cfg.SeedFile, catalog, inventoryService); err != nil {
			return err
		}
		logger.Info("catalog_seeded", observability.F("file", cfg.SeedFile))
	}

	appinventory.NewAlertWorker(workerpresentation.NewSubscriber(bus, "stock_alerts", tel), tel, logger).Start()

	if cfg.RabbitMQ.URL != "" {
		client, err := rabbitmq.Dial(cfg.RabbitMQ.URL)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		relay := rabbitmq.NewRelay(client.Channel(), cfg.RabbitMQ.Exchange, cfg.Service, tel)
		if err := relay.Declare(); err != nil {
			return err
		}
		relay.Start(workerpresentation.NewSubscriber(bus, "rabbitmq_relay", tel))
		logger.Info("event_relay_enabled", observability.F("exchange", cfg.RabbitMQ.Exchange))
	}

	bus.Start(ctx)
	defer bus.Stop(context.Background())

	if cfg.LowStockSweep > 0 {
		sweep := schedule.NewLowStockSweep(inventoryService, cfg.LowStockSweep, tel)
		if err := sweep.Start(); err != nil {
			return err
		}
		defer sweep.Stop()
	}

	handler := httppresentation.NewHandler(httppresentation.Services{
		Orders:    orderService,
		Payments:  paymentService,
		Inventory: inventoryService,
		Coupons:   couponService,
	}, promhttp.Handler(), logger, tel)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http_server_start", observability.F("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http_server_shutdown_error", observability.F("error", err))
			return err
		}
		logger.Info("http_server_stopped")
		return nil
	})
	return g.Wait()
}

// openStore returns the unit of work and catalog for the configured driver.
func openStore(ctx context.Context, cfg config.Config, logger observability.Logger) (application.UnitOfWork, seedableCatalog, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		pg, err := postgres.Connect(ctx, cfg.Storage.Postgres.DSN())
		if err != nil {
			return nil, nil, nil, err
		}
		if cfg.Storage.Postgres.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				pg.Close()
				return nil, nil, nil, err
			}
		}
		logger.Info("storage_ready", observability.F("driver", config.DriverPostgres))
		return pg, postgresCatalog{postgres.NewCatalog(pg)}, pg.Close, nil
	default:
		logger.Info("storage_ready", observability.F("driver", config.DriverMemory))
		return memory.NewStore(), memoryCatalog{memory.NewCatalog()}, func() {}, nil
	}
}

// seedableCatalog is a menu catalog that can be loaded from a seed file.
type seedableCatalog interface {
	menu.Catalog
	Load(ctx context.Context, r menu.Restaurant, items []menu.Item) error
}

type memoryCatalog struct{ *memory.Catalog }

func (c memoryCatalog) Load(_ context.Context, r menu.Restaurant, items []menu.Item) error {
	c.AddRestaurant(r)
	for _, it := range items {
		c.AddItem(it)
	}
	return nil
}

type postgresCatalog struct{ *postgres.Catalog }

func (c postgresCatalog) Load(ctx context.Context, r menu.Restaurant, items []menu.Item) error {
	return c.Upsert(ctx, r, items)
}

// seedCatalog loads the menu fixture and starts tracking stocked items. Items
// already tracked keep their current level.
func seedCatalog(ctx context.Context, path string, catalog seedableCatalog, inventory *appinventory.Service) error {
	seed, err := config.LoadSeed(path)
	if err != nil {
		return err
	}
	for _, r := range seed.Restaurants {
		items := make([]menu.Item, 0, len(r.Items))
		for _, it := range r.Items {
			price, err := it.PriceValue()
			if err != nil {
				return fmt.Errorf("seed: item %s/%s price: %w", r.ID, it.ID, err)
			}
			items = append(items, menu.Item{
				ID:           it.ID,
				RestaurantID: r.ID,
				Name:         it.Name,
				CategoryID:   it.CategoryID,
				Price:        price,
				Available:    it.IsAvailable(),
			})
		}
		if err := catalog.Load(ctx, menu.Restaurant{ID: r.ID, Name: r.Name}, items); err != nil {
			return fmt.Errorf("seed: restaurant %s: %w", r.ID, err)
		}

		for _, it := range r.Items {
			if it.Stock == nil {
				continue
			}
			qty, err := decimal.NewFromString(*it.Stock)
			if err != nil {
				return fmt.Errorf("seed: item %s/%s stock: %w", r.ID, it.ID, err)
			}
			threshold := decimal.Zero
			if it.LowStockThreshold != "" {
				if threshold, err = decimal.NewFromString(it.LowStockThreshold); err != nil {
					return fmt.Errorf("seed: item %s/%s threshold: %w", r.ID, it.ID, err)
				}
			}
			_, err = inventory.Track(ctx, appinventory.TrackInput{
				RestaurantID:      r.ID,
				MenuItemID:        it.ID,
				Unit:              it.Unit,
				LowStockThreshold: threshold,
				InitialQuantity:   qty,
				Actor:             seedActor,
			})
			if err != nil && !errors.Is(err, dominv.ErrAlreadyTracked) {
				return fmt.Errorf("seed: track %s/%s: %w", r.ID, it.ID, err)
			}
		}
	}
	return nil
}

// newInstruments registers one collector per metric key.
func newInstruments(reg prometrics.Registry) infraobs.Instruments {
	return infraobs.Instruments{
		Counters: map[observability.MetricKey]observability.Counter{
			observability.MUsecaseRequests: reg.Counter(string(observability.MUsecaseRequests),
				"Total number of use case invocations.", "use_case", "outcome"),
			observability.MHTTPRequests: reg.Counter(string(observability.MHTTPRequests),
				"Total number of HTTP requests.", "method", "route", "status"),
			observability.MExternalRequests: reg.Counter(string(observability.MExternalRequests),
				"Calls to external peers such as the event bus and broker.", "peer", "endpoint", "outcome"),
			observability.MEventsHandled: reg.Counter(string(observability.MEventsHandled),
				"Events handled by background consumers.", "consumer", "event", "outcome"),
			observability.MNegativeStock: reg.Counter(string(observability.MNegativeStock),
				"Deductions that left an item below zero.", "restaurant_id"),
			observability.MLowStockAlerts: reg.Counter(string(observability.MLowStockAlerts),
				"Low stock alerts raised.", "restaurant_id"),
		},
		Histograms: map[observability.MetricKey]observability.Histogram{
			observability.MUsecaseDuration: reg.Histogram(string(observability.MUsecaseDuration),
				"Duration of use case execution in seconds.", prometheus.DefBuckets, "use_case"),
			observability.MHTTPRequestDuration: reg.Histogram(string(observability.MHTTPRequestDuration),
				"Duration of HTTP requests in seconds.", prometheus.DefBuckets, "method", "route", "status"),
			observability.MExternalRequestDuration: reg.Histogram(string(observability.MExternalRequestDuration),
				"Duration of external calls in seconds.", prometheus.DefBuckets, "peer", "endpoint"),
			observability.MEventHandlerDuration: reg.Histogram(string(observability.MEventHandlerDuration),
				"Duration of event handlers in seconds.", prometheus.DefBuckets, "consumer", "event"),
		},
		Gauges: map[observability.MetricKey]observability.Gauge{
			observability.MLowStockItems: reg.Gauge(string(observability.MLowStockItems),
				"Items at or below their low stock threshold.", "restaurant_id"),
		},
	}
}
