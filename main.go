package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	appCart "github.com/Zhima-Mochi/minishop-cart/internal/application/cart"
	appInventory "github.com/Zhima-Mochi/minishop-cart/internal/application/inventory"
	appOrder "github.com/Zhima-Mochi/minishop-cart/internal/application/order"
	"github.com/Zhima-Mochi/minishop-cart/internal/config"
	dominv "github.com/Zhima-Mochi/minishop-cart/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/observability/telemetry"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-cart/internal/infrastructure/postgres"
	"github.com/Zhima-Mochi/minishop-cart/internal/pkg/logging"
	httppresentation "github.com/Zhima-Mochi/minishop-cart/internal/presentation/http"
	workerpresentation "github.com/Zhima-Mochi/minishop-cart/internal/presentation/worker"
)

// catalogStore is everything the services need from the authoritative product store.
type catalogStore interface {
	dominv.Catalog
	dominv.CatalogWriter
	dominv.Committer
}

func main() {
	cfg := config.MustLoad(os.Getenv("CONFIG_PATH"))

	baseLogger := logging.MustNewLogger(logging.Options{
		Service: cfg.Service,
		Env:     cfg.Env,
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
	})
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	systemLogger := logging.WithTrace(baseLogger, logging.SystemTraceID, logging.SystemSpanID)

	counters, histograms := prometrics.Instruments(prometrics.New(prometheus.DefaultRegisterer, "", ""))
	tel := telemetry.New(
		oteltrace.New(cfg.Service),
		zaplogger.New(baseLogger),
		counters,
		histograms,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog, closeCatalog, err := openCatalog(ctx, cfg)
	if err != nil {
		systemLogger.Fatal("catalog_open_failed", zap.String("driver", cfg.Catalog.Driver), zap.Error(err))
	}
	defer closeCatalog()

	ledger := memory.NewStockLedger()
	cartStore := memory.NewCartStore(ledger)
	orderRepo := memory.NewOrderRepository()

	// In-memory event bus carrying order and cart events between contexts
	bus := outbox.NewBus(tel)
	bus.Start(ctx)
	defer bus.Stop(context.Background())

	inventoryService := appInventory.NewService(ledger, catalog, catalog, bus, tel)
	if seeded, err := inventoryService.SeedAll(ctx); err != nil {
		systemLogger.Warn("inventory_seed_failed", zap.Error(err))
	} else {
		systemLogger.Info("inventory_seeded", zap.Int("products", seeded))
	}

	cartService := appCart.NewService(cartStore, inventoryService, tel)
	checkout := appOrder.NewCheckoutUseCase(cartStore, catalog, orderRepo, id.NewUUIDGenerator(), bus, tel)

	appCart.NewCheckoutWorker(cartStore, workerpresentation.NewSubscriber(bus, tel), tel).Start()

	sweeper := appCart.NewSweeper(cartStore, bus, tel,
		appCart.WithIdleTTL(cfg.Cart.IdleTTL),
		appCart.WithInterval(cfg.Cart.SweepInterval),
	)

	handler := httppresentation.NewHandler(cartService, inventoryService, checkout, tel)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		systemLogger.Info("http_server_start", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		systemLogger.Info("http_server_stopped")
		return nil
	})

	if err := g.Wait(); err != nil {
		systemLogger.Error("http_server_error", zap.Error(err))
	}
}

func openCatalog(ctx context.Context, cfg *config.Config) (catalogStore, func(), error) {
	if cfg.Catalog.Driver != config.DriverPostgres {
		return memory.NewCatalog(cfg.Catalog.Products), func() {}, nil
	}

	db, err := postgres.Open(ctx, cfg.Catalog.DatabaseURL, postgres.OpenOptions{})
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewCatalog(db), func() { _ = db.Close() }, nil
}
