package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joao-fontenele/foodorder/internal/config"
	"github.com/joao-fontenele/foodorder/internal/gateway"
	"github.com/joao-fontenele/foodorder/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadGateway()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "gateway", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	httpClient := telemetry.HTTPClient(&http.Client{Timeout: 10 * time.Second})

	ordersProxy := gateway.NewServiceProxy(cfg.OrdersServiceURL, httpClient)
	catalogProxy := gateway.NewServiceProxy(cfg.CatalogServiceURL, httpClient)
	handler := gateway.NewHandler(ordersProxy, catalogProxy, logger)

	mux := http.NewServeMux()
	for _, pattern := range []string{
		"POST /orders",
		"GET /orders/mine",
		"GET /orders/restaurant",
		"GET /orders/delivery/mine",
		"GET /orders/{id}",
		"GET /orders/{id}/history",
		"PUT /orders/{id}/status",
		"PUT /orders/{id}/cancel",
		"PUT /orders/{id}/assign-delivery",
		"PUT /orders/{id}/delivery-status",
		"GET /delivery-partners",
		"GET /delivery-partners/available",
		"GET /delivery-partners/{partnerId}/orders",
	} {
		mux.HandleFunc(pattern, telemetry.WithHTTPRoute(handler.HandleOrders))
	}
	mux.HandleFunc("POST /catalog/menu-items/snapshot", telemetry.WithHTTPRoute(handler.HandleCatalog))
	mux.HandleFunc("GET /catalog/menu-items/{id}", telemetry.WithHTTPRoute(handler.HandleCatalog))
	mux.HandleFunc("GET /catalog/restaurants/{restaurantId}/menu-items", telemetry.WithHTTPRoute(handler.HandleCatalog))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      telemetry.HTTPHandler(mux, "gateway"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting gateway service", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
