package notice

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"kakeibo/internal/core"
	"kakeibo/internal/events"
)

type fakeSource struct {
	mu     sync.Mutex
	living []core.LivingExpense
}

func (f *fakeSource) LivingExpenses() []core.LivingExpense {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.LivingExpense(nil), f.living...)
}

type fakeRecorder struct {
	mu     sync.Mutex
	calls  []core.ExpenseDraft
	err    error
	block  chan struct{}
	called chan struct{}
}

func (f *fakeRecorder) CreateExpense(_ context.Context, d core.ExpenseDraft) (core.Expense, error) {
	f.mu.Lock()
	f.calls = append(f.calls, d)
	block, called, err := f.block, f.called, f.err
	f.mu.Unlock()
	if called != nil {
		called <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if err != nil {
		return core.Expense{}, err
	}
	return d.WithID("R1"), nil
}

func (f *fakeRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type eventCounter struct {
	mu    sync.Mutex
	names []events.Name
}

func (c *eventCounter) Publish(n events.Name) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = append(c.names, n)
}

var (
	jst   = time.FixedZone("JST", 9*3600)
	today = time.Date(2026, time.February, 20, 8, 30, 0, 0, jst)
)

func electricity() core.LivingExpense {
	return core.LivingExpense{Recurring: core.Recurring{
		ID: "l1", Detail: "電気", Day: 10, Category: "光熱費", Payment: "口座", Memo: "東京電力",
	}}
}

func newEngine(src *fakeSource, rec *fakeRecorder, pub events.Publisher) *Engine {
	return New(src, rec,
		WithPublisher(pub),
		WithClock(func() time.Time { return today }),
		WithLocation(jst),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func TestAcknowledge_SuppressesWithoutRefetch(t *testing.T) {
	src := &fakeSource{living: []core.LivingExpense{electricity(), {Recurring: core.Recurring{ID: "l2", Detail: "ガス", Day: 5}}}}
	rec := &fakeRecorder{}
	pub := &eventCounter{}
	e := newEngine(src, rec, pub)

	if got := ids(e.Due()); !equalIDs(got, []string{"l2", "l1"}) {
		t.Fatalf("initial due list = %v", got)
	}

	expense, err := e.Acknowledge(context.Background(), electricity(), "8,200")
	if err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if expense.ID != "R1" {
		t.Errorf("expense id = %q", expense.ID)
	}

	if got := ids(e.Due()); !equalIDs(got, []string{"l2"}) {
		t.Fatalf("acknowledged item still due: %v", got)
	}

	d := rec.calls[0]
	if d.Date != "2026/02/20" || d.Detail != "電気" || d.Category != "光熱費" || d.Payment != "口座" || d.Memo != "東京電力" {
		t.Errorf("unexpected draft %+v", d)
	}
	if !d.Amount.Equal(decimal.NewFromInt(8200)) {
		t.Errorf("amount = %s", d.Amount)
	}
	if len(pub.names) != 1 || pub.names[0] != events.LedgerChanged {
		t.Errorf("expected one ledger changed event, got %v", pub.names)
	}
	if ym, ok := e.Overlay().Get("l1"); !ok || ym != (core.YearMonth{Year: 2026, Month: time.February}) {
		t.Errorf("overlay = %v %v", ym, ok)
	}

	st := e.State("l1")
	if st.Input != "8,200" || st.Saving || st.Err != nil {
		t.Errorf("unexpected state %+v", st)
	}
}

func TestAcknowledge_ValidationSkipsNetwork(t *testing.T) {
	for _, input := range []string{"0", "-5", "abc", "", "  "} {
		t.Run(input, func(t *testing.T) {
			src := &fakeSource{living: []core.LivingExpense{electricity()}}
			rec := &fakeRecorder{}
			pub := &eventCounter{}
			e := newEngine(src, rec, pub)

			_, err := e.Acknowledge(context.Background(), electricity(), input)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if ve.RecordID != "l1" || !errors.Is(err, core.ErrInvalidAmount) {
				t.Errorf("unexpected error %#v", ve)
			}
			if rec.count() != 0 {
				t.Fatalf("validation failure issued %d network calls", rec.count())
			}
			if len(pub.names) != 0 {
				t.Error("validation failure published an event")
			}
			st := e.State("l1")
			if st.Saving || st.Err == nil || st.Input != input {
				t.Errorf("unexpected state %+v", st)
			}
			if len(e.Due()) != 1 {
				t.Error("rejected item left the due list")
			}
		})
	}
}

func TestAcknowledge_BackendFailureKeepsItemDue(t *testing.T) {
	src := &fakeSource{living: []core.LivingExpense{electricity()}}
	boom := errors.New("http 500")
	rec := &fakeRecorder{err: boom}
	e := newEngine(src, rec, &eventCounter{})

	if _, err := e.Acknowledge(context.Background(), electricity(), "100"); !errors.Is(err, boom) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if len(e.Due()) != 1 {
		t.Fatal("failed acknowledgement suppressed the item")
	}
	if st := e.State("l1"); st.Saving || !errors.Is(st.Err, boom) {
		t.Errorf("unexpected state %+v", st)
	}

	// A user retry succeeds.
	rec.mu.Lock()
	rec.err = nil
	rec.mu.Unlock()
	if _, err := e.Acknowledge(context.Background(), electricity(), "100"); err != nil {
		t.Fatal(err)
	}
	if len(e.Due()) != 0 {
		t.Error("retry did not suppress the item")
	}
	if st := e.State("l1"); st.Err != nil {
		t.Errorf("error not cleared after retry: %v", st.Err)
	}
}

func TestAcknowledge_PerRecordSavingState(t *testing.T) {
	gas := core.LivingExpense{Recurring: core.Recurring{ID: "l2", Detail: "ガス", Day: 5}}
	src := &fakeSource{living: []core.LivingExpense{electricity(), gas}}
	rec := &fakeRecorder{block: make(chan struct{}), called: make(chan struct{}, 4)}
	e := newEngine(src, rec, &eventCounter{})

	done := make(chan error, 1)
	go func() {
		_, err := e.Acknowledge(context.Background(), electricity(), "100")
		done <- err
	}()
	<-rec.called

	if !e.State("l1").Saving {
		t.Fatal("expected l1 to be saving")
	}
	if _, err := e.Acknowledge(context.Background(), electricity(), "100"); !errors.Is(err, ErrInProgress) {
		t.Fatalf("expected ErrInProgress for a double submit, got %v", err)
	}

	// Another record stays interactable.
	_, err := e.Acknowledge(context.Background(), gas, "0")
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.RecordID != "l2" {
		t.Fatalf("expected validation error scoped to l2, got %v", err)
	}
	if e.State("l2").Saving {
		t.Error("l2 saving flag not cleared")
	}

	close(rec.block)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if e.State("l1").Saving {
		t.Error("l1 saving flag not cleared")
	}
}

func TestWatch_ReconcilesOnReload(t *testing.T) {
	src := &fakeSource{living: []core.LivingExpense{electricity()}}
	bus := events.NewBus()
	e := newEngine(src, &fakeRecorder{}, bus)
	unsubscribe := e.Watch(bus)
	defer unsubscribe()

	if _, err := e.Acknowledge(context.Background(), electricity(), "100"); err != nil {
		t.Fatal(err)
	}

	// Reload before the server reflects the payment: overlay stays.
	bus.Publish(events.LedgerReloaded)
	if e.Overlay().Len() != 1 {
		t.Fatal("overlay dropped before the server confirmed it")
	}

	feb := core.YearMonth{Year: 2026, Month: time.February}
	src.mu.Lock()
	src.living[0].Settled = &feb
	src.mu.Unlock()
	bus.Publish(events.LedgerReloaded)
	if e.Overlay().Len() != 0 {
		t.Fatal("overlay not cleared after the server confirmed it")
	}
	if len(e.Due()) != 0 {
		t.Error("item due again after reconciliation")
	}
}

func TestSetInput(t *testing.T) {
	e := newEngine(&fakeSource{}, &fakeRecorder{}, nil)
	e.SetInput("l1", "1200")
	if got := e.State("l1").Input; got != "1200" {
		t.Errorf("Input = %q", got)
	}
	if got := e.State("unknown"); got != (ItemState{}) {
		t.Errorf("unexpected state for unknown id %+v", got)
	}
}
