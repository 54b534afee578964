package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/cache"
	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/config"
	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/consumer"
	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/db"
	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/discovery"
	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/handlers"
	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/logging"
	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/messaging"
	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/observability"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load(config.InventoryServiceName, 8081)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.ServiceName, cfg.OtelEndpoint)
	if err != nil {
		logger.Fatal("Failed to set up tracing", zap.Error(err))
	}

	database, err := db.NewPostgresDB(ctx, cfg.GetDBConnectionString(), logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	if err := database.Migrate(db.InventorySchema, logger); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	rabbitMQ, err := messaging.NewRabbitMQ(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer rabbitMQ.Close()

	if err := rabbitMQ.DeclareQueue(cfg.OrderPlacedQueue, cfg.MaxDeliveryCount); err != nil {
		logger.Fatal("Failed to declare queue", zap.Error(err))
	}

	productRepo := db.NewProductRepository(database)
	var products handlers.ProductStore = productRepo
	var stockCache consumer.StockCache

	redisCache, err := cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.CacheTTL, logger)
	if err != nil {
		logger.Warn("Redis unavailable, serving inventory without cache", zap.Error(err))
	} else {
		defer redisCache.Close()
		products = db.NewCachedProductRepository(productRepo, redisCache, logger)
		stockCache = redisCache
	}

	stockStore := db.NewStockStore(database)
	deducer := consumer.NewStockDeducer(func(ctx context.Context) (consumer.UnitOfWork, error) {
		uow, err := stockStore.Begin(ctx)
		if err != nil {
			return nil, err
		}
		return uow, nil
	}, logger)
	inventoryConsumer := consumer.NewInventoryConsumer(rabbitMQ, deducer, stockCache,
		cfg.OrderPlacedQueue, cfg.MaxDeliveryCount, logger)

	router := handlers.NewRouter(cfg.ServiceName, logger)
	handlers.NewInventoryHandler(products, logger).RegisterRoutes(router)

	server := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: router,
	}

	deregister := discovery.Announce(cfg.ConsulEnabled, cfg.ConsulAddr, discovery.ServiceConfig{
		Name: cfg.ServiceName,
		ID:   cfg.ServiceID,
		Port: cfg.HTTPPort,
		Tags: []string{"inventory", "api"},
	}, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Inventory Service starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return inventoryConsumer.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down Inventory Service")
		deregister()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Inventory Service stopped with error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("Tracer shutdown failed", zap.Error(err))
	}

	logger.Info("Inventory Service stopped")
}
