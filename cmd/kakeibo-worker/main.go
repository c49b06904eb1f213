package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"kakeibo/internal/amqp"
	"kakeibo/internal/cli"
	"kakeibo/internal/events"
	logfields "kakeibo/internal/log"
	"kakeibo/internal/worker"
)

func main() {
	direct := flag.Bool("direct", false, "read the configured DATA_BACKEND instead of the proxy")
	flag.Parse()

	cli.LoadEnvFile()
	logger := cli.SetupLogger(logfields.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	source := cli.SourceAPI
	if *direct {
		source = cli.SourceDirect
	}
	rt, err := cli.NewRuntime(ctx, cfg, logger, source)
	if err != nil {
		logger.Error("Failed to initialize ledger store", logfields.FieldError, err)
		os.Exit(1)
	}
	defer rt.Close()

	origin := fmt.Sprintf("kakeibo-worker-%s", uuid.NewString()[:8])
	rt.Bus.Subscribe(events.LedgerReloaded, func(events.Name) {
		logger.Debug("Snapshot refreshed", logfields.FieldOperation, logfields.OpPersist)
	})

	var consumer worker.Consumer
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", logfields.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		consumer = amqpClient
	} else {
		logger.Info("AMQP_URL not set, revalidating on the ticker only")
	}

	w := worker.NewRevalidator(rt.Store, cfg.RevalidateInterval, origin, logger.WithComponent(logfields.ComponentWorker).Slog())
	logger.Info("Starting kakeibo worker",
		logfields.FieldOperation, logfields.OpStartup,
		"origin", origin,
		"interval", cfg.RevalidateInterval)
	if err := w.Run(ctx, consumer); err != nil {
		logger.Error("Worker stopped with error", logfields.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
