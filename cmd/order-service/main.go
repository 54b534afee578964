package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/config"
	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/db"
	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/discovery"
	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/handlers"
	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/logging"
	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/messaging"
	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/observability"
	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/orders"
	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/publisher"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(config.OrderServiceName, 8082)
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

	if err := database.Migrate(db.OrdersSchema, logger); err != nil {
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

	orderPublisher := publisher.NewOrderPublisher(rabbitMQ, cfg.OrderPlacedQueue, logger)
	orderService := orders.NewService(db.NewOrderRepository(database), orderPublisher, logger)

	router := handlers.NewRouter(cfg.ServiceName, logger)
	handlers.NewOrderHandler(orderService, logger).RegisterRoutes(router)

	server := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: router,
	}

	go func() {
		logger.Info("Order Service starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	deregister := discovery.Announce(cfg.ConsulEnabled, cfg.ConsulAddr, discovery.ServiceConfig{
		Name: cfg.ServiceName,
		ID:   cfg.ServiceID,
		Port: cfg.HTTPPort,
		Tags: []string{"orders", "api"},
	}, logger)

	<-ctx.Done()
	logger.Info("Shutting down Order Service")

	deregister()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("Tracer shutdown failed", zap.Error(err))
	}

	logger.Info("Order Service stopped")
}
