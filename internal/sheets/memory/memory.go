package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"kakeibo/internal/core"
	ports "kakeibo/internal/sheets"
)

// Store is an in-process ledger backend for local runs and tests. Reads
// return clones so callers never share slices with the store.
type Store struct {
	mu     sync.Mutex
	ledger core.Ledger
	reads  int
	fail   error
}

var _ ports.Backend = (*Store)(nil)

func New(seed core.Ledger) *Store {
	return &Store{ledger: seed.Clone().Normalized()}
}

// NewFromFile seeds the store from a read-all style JSON document. A
// missing file yields an empty ledger. now is the reference for relative
// done markers; nil means time.Now.
func NewFromFile(path string, now func() time.Time) (*Store, error) {
	if now == nil {
		now = time.Now
	}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(core.Ledger{}), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	var w ports.WireLedger
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return New(w.Core(now())), nil
}

// FailWith makes every subsequent call return err until cleared with nil.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

// Reads reports how many times ReadAll reached the store.
func (s *Store) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func (s *Store) ReadAll(ctx context.Context) (core.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if err := s.check(ctx); err != nil {
		return core.Ledger{}, err
	}
	return s.ledger.Clone(), nil
}

func (s *Store) CreateExpense(ctx context.Context, d core.ExpenseDraft) (core.Expense, error) {
	if err := d.Validate(); err != nil {
		return core.Expense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return core.Expense{}, err
	}
	e := d.WithID(uuid.NewString())
	s.ledger.Expenses = append(s.ledger.Expenses, e)
	return e, nil
}

func (s *Store) CreateRecurring(ctx context.Context, c core.Collection, r core.Recurring) (core.Recurring, error) {
	if err := r.Validate(); err != nil {
		return core.Recurring{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return core.Recurring{}, err
	}
	r.ID = uuid.NewString()
	switch c {
	case core.FixedExpenses:
		s.ledger.FixedExpenses = append(s.ledger.FixedExpenses, core.FixedExpense{Recurring: r})
	case core.LivingExpenses:
		s.ledger.LivingExpenses = append(s.ledger.LivingExpenses, core.LivingExpense{Recurring: r})
	default:
		return core.Recurring{}, fmt.Errorf("%w: %q", core.ErrUnknownCollection, c)
	}
	return r, nil
}

func (s *Store) UpdateRecord(ctx context.Context, rec core.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	next := s.ledger.Clone()
	if !next.Replace(rec) {
		return fmt.Errorf("%s %q: %w", rec.Collection(), rec.RecordID(), core.ErrNotFound)
	}
	s.ledger = next
	return nil
}

func (s *Store) DeleteRecord(ctx context.Context, c core.Collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if !s.ledger.Remove(c, id) {
		return fmt.Errorf("%s %q: %w", c, id, core.ErrNotFound)
	}
	return nil
}

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.fail
}
