// Package notice derives which living expenses are due and unsettled this
// month and records their payment.
package notice

import (
	"sort"
	"sync"
	"time"

	"kakeibo/internal/core"
)

// Item is a due obligation resolved against the evaluation month.
type Item struct {
	Record  core.LivingExpense
	DueDay  int
	DueDate time.Time
}

// DueList returns the living expenses whose resolved due day has arrived
// in today's month and that are not settled for it, earliest first. The
// overlay, when non-nil, takes precedence over each record's own settled
// period.
func DueList(living []core.LivingExpense, today time.Time, overlay *Overlay) []Item {
	y, m, d := today.Date()
	ym := core.YearMonth{Year: y, Month: m}

	var items []Item
	for _, rec := range living {
		if settled := overlay.Effective(rec.Recurring); settled != nil && *settled == ym {
			continue
		}
		day := core.DueDay(rec.Day, ym)
		if day > d {
			continue
		}
		items = append(items, Item{
			Record:  rec,
			DueDay:  day,
			DueDate: ym.Date(day, today.Location()),
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].DueDate.Before(items[j].DueDate)
	})
	return items
}

// Overlay holds settlements acknowledged in this session that the server
// data may not show yet. It is never persisted.
type Overlay struct {
	mu      sync.RWMutex
	settled map[string]core.YearMonth
}

func NewOverlay() *Overlay {
	return &Overlay{settled: make(map[string]core.YearMonth)}
}

// Set records id as settled for ym.
func (o *Overlay) Set(id string, ym core.YearMonth) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.settled == nil {
		o.settled = make(map[string]core.YearMonth)
	}
	o.settled[id] = ym
}

func (o *Overlay) Get(id string) (core.YearMonth, bool) {
	if o == nil {
		return core.YearMonth{}, false
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	ym, ok := o.settled[id]
	return ym, ok
}

// Effective is the overlay entry for r if there is one, else r's own
// settled period.
func (o *Overlay) Effective(r core.Recurring) *core.YearMonth {
	if ym, ok := o.Get(r.ID); ok {
		return &ym
	}
	return r.Settled
}

// Reconcile drops entries the reloaded server data already reflects, and
// entries whose record is gone. It returns how many were dropped.
func (o *Overlay) Reconcile(living []core.LivingExpense) int {
	if o == nil {
		return 0
	}
	byID := make(map[string]core.Recurring, len(living))
	for _, rec := range living {
		byID[rec.ID] = rec.Recurring
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	dropped := 0
	for id, ym := range o.settled {
		rec, ok := byID[id]
		if ok && (rec.Settled == nil || ym.After(*rec.Settled)) {
			continue
		}
		delete(o.settled, id)
		dropped++
	}
	return dropped
}

func (o *Overlay) Len() int {
	if o == nil {
		return 0
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.settled)
}
