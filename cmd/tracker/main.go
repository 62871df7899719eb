package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joao-fontenele/foodorder/internal/auth"
	"github.com/joao-fontenele/foodorder/internal/config"
	"github.com/joao-fontenele/foodorder/internal/messaging"
	"github.com/joao-fontenele/foodorder/internal/telemetry"
	"github.com/joao-fontenele/foodorder/internal/tracking"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadTracker()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "tracker", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	hub := tracking.NewHub(auth.NewVerifier(cfg.JWTSecret), logger)
	go hub.Run(ctx)

	consumer := messaging.NewConsumer(cfg.KafkaBrokers, cfg.EventsTopic, cfg.GroupID, logger)
	defer func() { _ = consumer.Close() }()
	eventHandler := tracking.NewEventHandler(hub, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", hub.HandleWebSocket)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// No WriteTimeout: it would cut long-lived WebSocket connections.
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting tracker service", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("consuming order events", "brokers", cfg.KafkaBrokers, "topic", cfg.EventsTopic, "group_id", cfg.GroupID)
	consumeErr := consumer.Consume(ctx, eventHandler.Handle)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	if consumeErr != nil && !errors.Is(consumeErr, context.Canceled) {
		logger.Error("consumer error", "error", consumeErr)
		os.Exit(1)
	}
	logger.Info("consumer stopped")
}
