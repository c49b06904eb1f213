package notice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"kakeibo/internal/core"
	"kakeibo/internal/events"
	logfields "kakeibo/internal/log"
	"kakeibo/internal/sheets"
)

// ErrInProgress is returned while an acknowledgement of the same record
// is still being saved.
var ErrInProgress = errors.New("acknowledgement already in progress")

// ValidationError rejects an entered amount for one record.
type ValidationError struct {
	RecordID string
	Input    string
	Err      error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("record %s: amount %q must be a positive number", e.RecordID, e.Input)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Source supplies the current living expenses, usually the ledger store.
type Source interface {
	LivingExpenses() []core.LivingExpense
}

// ItemState is the per-record form state of a due item.
type ItemState struct {
	Input  string
	Saving bool
	Err    error
}

// Engine computes the due list and handles acknowledgements. Errors and
// saving flags are tracked per record so one failing item never blocks
// the others.
type Engine struct {
	source   Source
	recorder sheets.ExpenseCreator
	bus      events.Publisher
	overlay  *Overlay
	now      func() time.Time
	loc      *time.Location
	logger   *slog.Logger

	mu     sync.Mutex
	states map[string]*ItemState
}

type Option func(*Engine)

func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.bus = p }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocation sets the zone "today" is evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.loc = loc }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithOverlay(o *Overlay) Option {
	return func(e *Engine) { e.overlay = o }
}

func New(source Source, recorder sheets.ExpenseCreator, opts ...Option) *Engine {
	e := &Engine{
		source:   source,
		recorder: recorder,
		overlay:  NewOverlay(),
		now:      time.Now,
		loc:      time.Local,
		logger:   slog.Default(),
		states:   make(map[string]*ItemState),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(logfields.FieldComponent, logfields.ComponentNotice)
	return e
}

// Subscriber is the part of events.Bus the engine listens on.
type Subscriber interface {
	Subscribe(events.Name, events.Listener) func()
}

// Watch reconciles the overlay after every reload of the source.
func (e *Engine) Watch(sub Subscriber) (unsubscribe func()) {
	return sub.Subscribe(events.LedgerReloaded, func(events.Name) {
		if n := e.overlay.Reconcile(e.source.LivingExpenses()); n > 0 {
			e.logger.Debug("Overlay entries confirmed by server", logfields.FieldCount, n)
		}
	})
}

func (e *Engine) today() time.Time {
	y, m, d := e.now().In(e.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, e.loc)
}

// Due returns the current due list.
func (e *Engine) Due() []Item {
	return DueList(e.source.LivingExpenses(), e.today(), e.overlay)
}

// Overlay exposes the local settlement overlay.
func (e *Engine) Overlay() *Overlay {
	return e.overlay
}

// SetInput stores the amount typed for id.
func (e *Engine) SetInput(id, input string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state(id).Input = input
}

// State returns a copy of the form state for id.
func (e *Engine) State(id string) ItemState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.states[id]; ok {
		return *st
	}
	return ItemState{}
}

func (e *Engine) state(id string) *ItemState {
	st, ok := e.states[id]
	if !ok {
		st = &ItemState{}
		e.states[id] = st
	}
	return st
}

// Acknowledge records a payment of entered for rec dated today and, on
// success, marks rec settled for the current month in the overlay. An
// invalid amount is rejected without contacting the backend. The entered
// text is kept as the item's input in every case.
func (e *Engine) Acknowledge(ctx context.Context, rec core.LivingExpense, entered string) (core.Expense, error) {
	id := rec.ID
	e.mu.Lock()
	st := e.state(id)
	if st.Saving {
		e.mu.Unlock()
		return core.Expense{}, ErrInProgress
	}
	st.Input = entered
	st.Saving = true
	st.Err = nil
	e.mu.Unlock()

	expense, err := e.acknowledge(ctx, rec, entered)

	e.mu.Lock()
	st.Saving = false
	st.Err = err
	e.mu.Unlock()
	return expense, err
}

func (e *Engine) acknowledge(ctx context.Context, rec core.LivingExpense, entered string) (core.Expense, error) {
	amount, err := core.ParsePositiveAmount(entered)
	if err != nil {
		return core.Expense{}, &ValidationError{RecordID: rec.ID, Input: entered, Err: err}
	}

	today := e.today()
	draft := core.ExpenseDraft{
		Date:     core.FormatDate(today),
		Detail:   rec.Detail,
		Amount:   amount,
		Category: rec.Category,
		Memo:     rec.Memo,
		Payment:  rec.Payment,
	}
	expense, err := e.recorder.CreateExpense(ctx, draft)
	if err != nil {
		e.logger.WarnContext(ctx, "Acknowledgement not recorded",
			logfields.FieldOperation, logfields.OpAcknowledge,
			logfields.FieldRecordID, rec.ID,
			logfields.FieldError, err)
		return core.Expense{}, fmt.Errorf("record payment for %s: %w", rec.Detail, err)
	}

	period := core.YearMonthOf(today)
	e.overlay.Set(rec.ID, period)
	e.logger.InfoContext(ctx, "Living expense acknowledged",
		logfields.FieldOperation, logfields.OpAcknowledge,
		logfields.FieldRecordID, rec.ID,
		logfields.FieldPeriod, period.String(),
		logfields.FieldAmount, amount.String())
	if e.bus != nil {
		e.bus.Publish(events.LedgerChanged)
	}
	return expense, nil
}
