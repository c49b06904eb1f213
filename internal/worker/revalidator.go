// Package worker keeps the durable ledger snapshot fresh in the background.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"kakeibo/internal/amqp"
	"kakeibo/internal/ledger"
	logfields "kakeibo/internal/log"
)

// Loader is the part of ledger.Store the worker drives.
type Loader interface {
	Load(ctx context.Context, opts ...ledger.LoadOption) error
}

// Consumer delivers ledger-changed messages until ctx is done.
type Consumer interface {
	ConsumeLedgerChanged(ctx context.Context, handler func(context.Context, *amqp.LedgerChangedMessage) error) error
}

// Revalidator reloads the ledger when another process reports a change,
// and on a ticker as a backstop for lost messages.
type Revalidator struct {
	store    Loader
	interval time.Duration
	origin   string
	logger   *slog.Logger
}

func NewRevalidator(store Loader, interval time.Duration, origin string, logger *slog.Logger) *Revalidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Revalidator{
		store:    store,
		interval: interval,
		origin:   origin,
		logger:   logger,
	}
}

// HandleLedgerChanged force-reloads unless the message is our own echo.
// A failed reload is returned so the broker redelivers the message.
func (w *Revalidator) HandleLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
	if msg.Origin != "" && msg.Origin == w.origin {
		w.logger.DebugContext(ctx, "Skipping own ledger change", "message_id", msg.ID)
		return nil
	}
	start := time.Now()
	if err := w.store.Load(ctx, ledger.Force()); err != nil {
		return err
	}
	w.logger.InfoContext(ctx, "Ledger reloaded after remote change",
		logfields.FieldOperation, logfields.OpRevalidate,
		"message_id", msg.ID,
		"origin", msg.Origin,
		"event", msg.Event,
		logfields.FieldDuration, time.Since(start).Milliseconds())
	return nil
}

// Revalidate loads with the default freshness window. Errors are logged;
// the next tick tries again.
func (w *Revalidator) Revalidate(ctx context.Context) {
	if err := w.store.Load(ctx); err != nil && ctx.Err() == nil {
		w.logger.WarnContext(ctx, "Periodic revalidation failed",
			logfields.FieldOperation, logfields.OpRevalidate,
			logfields.FieldError, err)
	}
}

// Run revalidates once, then serves messages from consumer (when not nil)
// and ticks until ctx is cancelled or the consumer fails.
func (w *Revalidator) Run(ctx context.Context, consumer Consumer) error {
	w.Revalidate(ctx)

	g, gctx := errgroup.WithContext(ctx)
	if consumer != nil {
		g.Go(func() error {
			return consumer.ConsumeLedgerChanged(gctx, w.HandleLedgerChanged)
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				w.Revalidate(gctx)
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}
