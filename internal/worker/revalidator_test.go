package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"kakeibo/internal/amqp"
	"kakeibo/internal/ledger"
)

type fakeLoader struct {
	mu     sync.Mutex
	calls  int
	forced int
	err    error
}

func (f *fakeLoader) Load(ctx context.Context, opts ...ledger.LoadOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(opts) > 0 {
		f.forced++
	}
	return f.err
}

func (f *fakeLoader) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.forced
}

type fakeConsumer struct {
	msgs []*amqp.LedgerChangedMessage
	errs []error
	err  error
}

func (c *fakeConsumer) ConsumeLedgerChanged(ctx context.Context, handler func(context.Context, *amqp.LedgerChangedMessage) error) error {
	for _, m := range c.msgs {
		c.errs = append(c.errs, handler(ctx, m))
	}
	if c.err != nil {
		return c.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandleLedgerChanged(t *testing.T) {
	loader := &fakeLoader{}
	w := NewRevalidator(loader, time.Minute, "worker-1", discard())
	ctx := context.Background()

	if err := w.HandleLedgerChanged(ctx, amqp.NewLedgerChangedMessage("worker-1", "ledger:changed")); err != nil {
		t.Fatal(err)
	}
	if calls, _ := loader.counts(); calls != 0 {
		t.Fatalf("own message triggered %d loads", calls)
	}

	if err := w.HandleLedgerChanged(ctx, amqp.NewLedgerChangedMessage("cli-7", "ledger:changed")); err != nil {
		t.Fatal(err)
	}
	if calls, forced := loader.counts(); calls != 1 || forced != 1 {
		t.Fatalf("calls=%d forced=%d, want one forced load", calls, forced)
	}

	loader.err = errors.New("upstream down")
	if err := w.HandleLedgerChanged(ctx, amqp.NewLedgerChangedMessage("cli-7", "ledger:changed")); err == nil {
		t.Fatal("expected the reload error so the message is redelivered")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	loader := &fakeLoader{}
	consumer := &fakeConsumer{msgs: []*amqp.LedgerChangedMessage{
		amqp.NewLedgerChangedMessage("server", "ledger:changed"),
	}}
	w := NewRevalidator(loader, 10*time.Millisecond, "worker-1", discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, consumer) }()

	deadline := time.After(2 * time.Second)
	for {
		calls, forced := loader.counts()
		if calls >= 3 && forced == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("calls=%d forced=%d", calls, forced)
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run = %v, want nil on cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestRunReturnsConsumerFailure(t *testing.T) {
	boom := errors.New("channel closed for good")
	w := NewRevalidator(&fakeLoader{}, time.Hour, "worker-1", discard())
	err := w.Run(context.Background(), &fakeConsumer{err: boom})
	if !errors.Is(err, boom) {
		t.Fatalf("Run = %v, want %v", err, boom)
	}
}

func TestRevalidateSwallowsErrors(t *testing.T) {
	loader := &fakeLoader{err: errors.New("offline")}
	w := NewRevalidator(loader, time.Hour, "", discard())
	w.Revalidate(context.Background())
	if calls, forced := loader.counts(); calls != 1 || forced != 0 {
		t.Fatalf("calls=%d forced=%d", calls, forced)
	}
}
