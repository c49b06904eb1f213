package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"kakeibo/internal/amqp"
	"kakeibo/internal/backend"
	"kakeibo/internal/cli"
	"kakeibo/internal/events"
	apphttp "kakeibo/internal/http"
	logfields "kakeibo/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(logfields.ComponentHTTP)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", logfields.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.WithComponent(logfields.ComponentBackend).Slog()).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to create backend", logfields.FieldError, err, logfields.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}
	defer res.Close()

	// Mutations are relayed to the broker so workers refresh their snapshot.
	bus := events.NewBus()
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, ledger changes will not be relayed", logfields.FieldError, err)
		} else {
			defer amqpClient.Close()
			relay, unsubscribe := amqp.NewRelay(bus, amqpClient, "kakeibo-server")
			defer unsubscribe()
			go func() { _ = relay.Run(ctx) }()
			logger.Info("Relaying ledger changes to AMQP", "exchange", cfg.AMQPExchange)
		}
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		Backend:            res.Backend,
		ReadCacheTTL:       cfg.ReadCacheTTL,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
		Clock:              cfg.Clock(),
		Publisher:          bus,
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", logfields.FieldError, err)
		}
	}()

	logger.Info("Starting kakeibo server",
		logfields.FieldOperation, logfields.OpStartup,
		"port", cfg.Port,
		logfields.FieldBackend, cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", logfields.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
