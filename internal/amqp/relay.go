package amqp

import (
	"context"
	"log/slog"

	"kakeibo/internal/events"
)

// Publisher is the part of Client the relay needs.
type Publisher interface {
	PublishLedgerChanged(ctx context.Context, msg *LedgerChangedMessage) error
}

// Relay forwards bus events to the broker from a single goroutine so that
// Bus.Publish never waits on the network. When the buffer is full the
// event is dropped: consumers only need to know that something changed.
type Relay struct {
	pub    Publisher
	origin string
	queue  chan events.Name
}

// NewRelay subscribes to names on bus. Call Run to start forwarding and the
// returned func to unsubscribe.
func NewRelay(bus *events.Bus, pub Publisher, origin string, names ...events.Name) (*Relay, func()) {
	r := &Relay{
		pub:    pub,
		origin: origin,
		queue:  make(chan events.Name, 16),
	}
	if len(names) == 0 {
		names = []events.Name{events.LedgerChanged}
	}
	unsubs := make([]func(), 0, len(names))
	for _, name := range names {
		unsubs = append(unsubs, bus.Subscribe(name, r.enqueue))
	}
	return r, func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (r *Relay) enqueue(name events.Name) {
	select {
	case r.queue <- name:
	default:
		slog.Warn("AMQP relay buffer full, dropping event", "event", string(name))
	}
}

// Run publishes queued events until ctx is done. Publish failures are
// logged and not retried.
func (r *Relay) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case name := <-r.queue:
			msg := NewLedgerChangedMessage(r.origin, string(name))
			if err := r.pub.PublishLedgerChanged(ctx, msg); err != nil {
				slog.WarnContext(ctx, "Failed to relay ledger event", "event", string(name), "error", err)
			}
		}
	}
}
