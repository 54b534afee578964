package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/config"
	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/discovery"
	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/gateway"
	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/handlers"
	"github.com/prudhivi99/Distributed-Systems/stockflow/internal/logging"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(config.GatewayServiceName, 8080)
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

	var resolver gateway.Resolver
	if cfg.ConsulEnabled {
		consul, err := discovery.NewConsulClient(cfg.ConsulAddr, logger)
		if err != nil {
			logger.Warn("Failed to connect to Consul, using static service URLs", zap.Error(err))
		} else {
			resolver = consul
		}
	}

	gw := gateway.New(resolver, map[string]string{
		config.OrderServiceName:     cfg.OrderServiceURL,
		config.InventoryServiceName: cfg.InventoryServiceURL,
	}, logger)
	go gw.Watch(ctx, cfg.DiscoveryInterval)

	router := handlers.NewRouter(cfg.ServiceName, logger)
	router.GET("/services", gw.ListServices)
	router.GET("/health/services", gw.HealthCheck)
	gw.Route(router, "/api/orders", config.OrderServiceName)
	gw.Route(router, "/api/inventory", config.InventoryServiceName)

	server := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: router,
	}

	go func() {
		logger.Info("API Gateway starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down API Gateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	logger.Info("API Gateway stopped")
}
