// Package ledger holds the in-memory copy of the four record collections.
//
// The Store resolves loads from the durable snapshot while it is fresh and
// from the backend otherwise, with at most one read-all in flight at a
// time. Writes go to the backend first; local state changes only after the
// backend reported success.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"kakeibo/internal/core"
	"kakeibo/internal/events"
	logfields "kakeibo/internal/log"
	"kakeibo/internal/sheets"
	"kakeibo/internal/snapshot"
)

const fetchKey = "read-all"

// Ref points at a record by collection and id.
type Ref struct {
	Collection core.Collection
	ID         string
}

// RefOf returns the reference of rec.
func RefOf(rec core.Record) Ref {
	return Ref{Collection: rec.Collection(), ID: rec.RecordID()}
}

type Store struct {
	backend   sheets.Backend
	snapshots *snapshot.Cache
	bus       events.Publisher
	logger    *slog.Logger
	now       func() time.Time
	maxAge    time.Duration

	mu       sync.RWMutex
	ledger   core.Ledger
	loading  bool
	selected *Ref
	// gen counts applied mutations. A fetch that started under an older
	// generation must not overwrite the newer local state.
	gen uint64
	// syncedAt is when the in-memory state was last written to or taken
	// from a snapshot; older snapshots are never applied over it.
	syncedAt time.Time

	group    singleflight.Group
	flightMu sync.Mutex
	inflight bool
}

func New(backend sheets.Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		logger:  slog.Default(),
		now:     time.Now,
		maxAge:  DefaultMaxAge,
		ledger:  core.Ledger{}.Normalized(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logfields.FieldComponent, logfields.ComponentLedger)
	return s
}

// Load makes the collections reflect either a fresh snapshot or a fetched
// read-all. When a stale snapshot is found it is applied before the
// revalidating fetch starts, so readers see it while Load waits.
func (s *Store) Load(ctx context.Context, opts ...LoadOption) error {
	cfg := loadConfig{maxAge: s.maxAge, revalidate: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.force {
		// Never overlap another fetch: wait for the current one, then start
		// (or share) the next.
		if ch, ok := s.joinInFlight(ctx); ok {
			_ = s.wait(ctx, ch)
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		return s.wait(ctx, s.startFetch(ctx))
	}

	if ch, ok := s.joinInFlight(ctx); ok {
		return s.wait(ctx, ch)
	}

	if snap, ok := s.snapshots.Load(ctx); ok {
		s.applySnapshot(snap)
		age := snap.Age(s.now())
		if age <= cfg.maxAge {
			s.logger.DebugContext(ctx, "Serving fresh snapshot", logfields.FieldAge, age.Milliseconds())
			return nil
		}
		if !cfg.revalidate {
			s.logger.DebugContext(ctx, "Serving stale snapshot without revalidation", logfields.FieldAge, age.Milliseconds())
			return nil
		}
		s.logger.InfoContext(ctx, "Snapshot stale, revalidating", logfields.FieldAge, age.Milliseconds())
	}
	return s.wait(ctx, s.startFetch(ctx))
}

// joinInFlight attaches to the running fetch, if any.
func (s *Store) joinInFlight(ctx context.Context) (<-chan singleflight.Result, bool) {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	if !s.inflight {
		return nil, false
	}
	return s.group.DoChan(fetchKey, s.fetchFunc(ctx)), true
}

func (s *Store) startFetch(ctx context.Context) <-chan singleflight.Result {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	s.inflight = true
	return s.group.DoChan(fetchKey, s.fetchFunc(ctx))
}

func (s *Store) fetchFunc(ctx context.Context) func() (any, error) {
	// The fetch is shared; one caller giving up must not cancel it for
	// the others.
	fctx := context.WithoutCancel(ctx)
	return func() (any, error) {
		defer func() {
			s.flightMu.Lock()
			s.inflight = false
			s.group.Forget(fetchKey)
			s.flightMu.Unlock()
		}()
		return nil, s.fetch(fctx)
	}
}

func (s *Store) wait(ctx context.Context, ch <-chan singleflight.Result) error {
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) fetch(ctx context.Context) error {
	s.mu.Lock()
	gen := s.gen
	if s.ledger.IsEmpty() {
		s.loading = true
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	}()

	start := s.now()
	l, err := s.backend.ReadAll(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Read-all failed",
			logfields.FieldOperation, logfields.OpLoad,
			logfields.FieldError, err)
		return fmt.Errorf("load ledger: %w", err)
	}
	l = l.Normalized()

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		s.logger.InfoContext(ctx, "Discarding read-all that started before a local write",
			logfields.FieldOperation, logfields.OpLoad)
		return nil
	}
	s.ledger = l
	s.syncedAt = s.now()
	s.mu.Unlock()

	s.snapshots.Save(ctx, l)
	s.logger.InfoContext(ctx, "Ledger loaded",
		logfields.FieldOperation, logfields.OpLoad,
		logfields.FieldCount, len(l.Expenses)+len(l.Incomes)+len(l.FixedExpenses)+len(l.LivingExpenses),
		logfields.FieldDuration, s.now().Sub(start).Milliseconds())
	s.publish(events.LedgerReloaded)
	return nil
}

func (s *Store) applySnapshot(snap snapshot.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.SavedAt.Before(s.syncedAt) {
		return
	}
	s.ledger = snap.Ledger.Normalized()
	s.syncedAt = snap.SavedAt
}

// Ledger returns a copy of the current collections.
func (s *Store) Ledger() core.Ledger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.Clone()
}

// LivingExpenses returns a copy of the living-expense collection.
func (s *Store) LivingExpenses() []core.LivingExpense {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.Clone().LivingExpenses
}

// Loading reports whether a fetch is filling an empty store.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Select opens ref for viewing; nil closes it.
func (s *Store) Select(ref *Ref) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref == nil {
		s.selected = nil
		return
	}
	r := *ref
	s.selected = &r
}

// Selected resolves the selection against the current collections. A
// record that no longer exists resolves to nothing.
func (s *Store) Selected() (core.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == nil {
		return nil, false
	}
	return s.ledger.Find(s.selected.Collection, s.selected.ID)
}

// DeleteRecord removes a record remotely and, once confirmed, locally.
func (s *Store) DeleteRecord(ctx context.Context, c core.Collection, id string) error {
	if !c.IsValid() {
		return fmt.Errorf("%w: %q", core.ErrUnknownCollection, c)
	}
	if id == "" {
		return core.ErrEmptyID
	}
	if err := s.backend.DeleteRecord(ctx, c, id); err != nil {
		s.logWriteFailure(ctx, logfields.OpDelete, c, id, err)
		return err
	}
	s.commit(ctx, logfields.OpDelete, c, id, func(l *core.Ledger) {
		l.Remove(c, id)
	})
	return nil
}

// UpdateRecord replaces a record remotely and, once confirmed, locally.
func (s *Store) UpdateRecord(ctx context.Context, rec core.Record) error {
	if rec == nil {
		return errors.New("nil record")
	}
	if rec.RecordID() == "" {
		return core.ErrEmptyID
	}
	if err := s.backend.UpdateRecord(ctx, rec); err != nil {
		s.logWriteFailure(ctx, logfields.OpUpdate, rec.Collection(), rec.RecordID(), err)
		return err
	}
	s.commit(ctx, logfields.OpUpdate, rec.Collection(), rec.RecordID(), func(l *core.Ledger) {
		if !l.Replace(rec) {
			s.logger.DebugContext(ctx, "Updated record not held locally",
				logfields.FieldCollection, rec.Collection(),
				logfields.FieldRecordID, rec.RecordID())
		}
	})
	return nil
}

// AddExpense creates an expense and appends what the backend returned.
func (s *Store) AddExpense(ctx context.Context, d core.ExpenseDraft) (core.Expense, error) {
	e, err := s.backend.CreateExpense(ctx, d)
	if err != nil {
		s.logWriteFailure(ctx, logfields.OpCreate, core.Expenses, "", err)
		return core.Expense{}, err
	}
	s.commit(ctx, logfields.OpCreate, core.Expenses, e.ID, func(l *core.Ledger) {
		l.Expenses = append(l.Expenses, e)
	})
	return e, nil
}

// AddRecurring creates a fixed or living expense template.
func (s *Store) AddRecurring(ctx context.Context, c core.Collection, r core.Recurring) (core.Recurring, error) {
	created, err := s.backend.CreateRecurring(ctx, c, r)
	if err != nil {
		s.logWriteFailure(ctx, logfields.OpCreate, c, "", err)
		return core.Recurring{}, err
	}
	s.commit(ctx, logfields.OpCreate, c, created.ID, func(l *core.Ledger) {
		switch c {
		case core.FixedExpenses:
			l.FixedExpenses = append(l.FixedExpenses, core.FixedExpense{Recurring: created})
		case core.LivingExpenses:
			l.LivingExpenses = append(l.LivingExpenses, core.LivingExpense{Recurring: created})
		}
	})
	return created, nil
}

// commit applies a confirmed write, persists the snapshot and announces
// the change.
func (s *Store) commit(ctx context.Context, op string, c core.Collection, id string, apply func(*core.Ledger)) {
	s.mu.Lock()
	next := s.ledger.Clone()
	apply(&next)
	s.ledger = next
	s.gen++
	s.selected = nil
	s.syncedAt = s.now()
	persisted := next.Clone()
	s.mu.Unlock()

	s.snapshots.Save(ctx, persisted)
	s.logger.InfoContext(ctx, "Ledger updated",
		logfields.FieldOperation, op,
		logfields.FieldCollection, c,
		logfields.FieldRecordID, id)
	s.publish(events.LedgerChanged)
}

func (s *Store) logWriteFailure(ctx context.Context, op string, c core.Collection, id string, err error) {
	s.logger.WarnContext(ctx, "Write rejected, local state unchanged",
		logfields.FieldOperation, op,
		logfields.FieldCollection, c,
		logfields.FieldRecordID, id,
		logfields.FieldError, err)
}

func (s *Store) publish(name events.Name) {
	if s.bus != nil {
		s.bus.Publish(name)
	}
}
