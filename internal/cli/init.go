// Package cli holds the bootstrap shared by the kakeibo binaries: logging,
// .env loading, configuration, signal handling and the wired ledger store.
package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"kakeibo/internal/backend"
	"kakeibo/internal/config"
	"kakeibo/internal/events"
	"kakeibo/internal/ledger"
	logfields "kakeibo/internal/log"
	"kakeibo/internal/sheets"
	"kakeibo/internal/sheets/remote"
	"kakeibo/internal/snapshot"
)

// SetupLogger installs the default logger for a binary.
func SetupLogger(component string) *logfields.Logger {
	return logfields.Setup(component)
}

// LoadEnvFile loads .env for local development. A missing file is fine.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and exits on validation failure.
func LoadAndValidateConfig(logger *logfields.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", logfields.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext(logger *logfields.Logger) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received", logfields.FieldOperation, logfields.OpShutdown)
	}()
	return ctx, stop
}

// Source selects where a client-side ledger store reads from.
type Source int

const (
	// SourceAPI goes through the proxy at API_BASE_URL.
	SourceAPI Source = iota
	// SourceDirect uses the configured DATA_BACKEND in process.
	SourceDirect
)

// Runtime is a ledger store wired to its backend, snapshot storage and bus.
type Runtime struct {
	Config  *config.Config
	Backend sheets.Backend
	Store   *ledger.Store
	Bus     *events.Bus

	closers []func() error
}

// NewRuntime builds the ledger store the CLI and the worker share.
func NewRuntime(ctx context.Context, cfg *config.Config, logger *logfields.Logger, source Source) (*Runtime, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	factory := backend.NewFactory(logger.WithComponent(logfields.ComponentBackend).Slog())
	rt := &Runtime{Config: cfg, Bus: events.NewBus()}

	switch source {
	case SourceDirect:
		res, err := factory.CreateBackend(ctx, bcfg)
		if err != nil {
			return nil, err
		}
		rt.Backend = res.Backend
		rt.closers = append(rt.closers, res.Close)
	default:
		rt.Backend = remote.New(cfg.APIBaseURL,
			remote.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
			remote.WithClock(cfg.Clock()))
	}

	snaps, err := factory.CreateSnapshotStorage(bcfg)
	if err != nil {
		// The store works without a durable snapshot.
		logger.Warn("Snapshot storage unavailable, continuing without it",
			logfields.FieldOperation, logfields.OpPersist,
			logfields.FieldError, err)
	} else {
		rt.closers = append(rt.closers, snaps.Close)
	}

	var storage snapshot.Storage
	if snaps != nil {
		storage = snaps.Storage
	}
	snapLogger := logger.WithComponent(logfields.ComponentSnapshot).Slog()
	rt.Store = ledger.New(rt.Backend,
		ledger.WithSnapshots(snapshot.NewCache(storage, snapLogger)),
		ledger.WithPublisher(rt.Bus),
		ledger.WithLogger(logger.WithComponent(logfields.ComponentLedger).Slog()),
		ledger.WithDefaultMaxAge(cfg.CacheMaxAge),
	)
	return rt, nil
}

// Close releases storages and backends in reverse order.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close runtime: %w", errors.Join(errs...))
	}
	return nil
}
