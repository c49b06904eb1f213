package core

// Ledger holds the four record collections.
type Ledger struct {
	Expenses       []Expense       `json:"expenses"`
	Incomes        []Income        `json:"incomes"`
	FixedExpenses  []FixedExpense  `json:"fixedExpenses"`
	LivingExpenses []LivingExpense `json:"livingExpenses"`
}

// IsEmpty reports whether no collection holds any record.
func (l Ledger) IsEmpty() bool {
	return len(l.Expenses) == 0 && len(l.Incomes) == 0 &&
		len(l.FixedExpenses) == 0 && len(l.LivingExpenses) == 0
}

// Normalized replaces nil collections with empty ones so that they encode
// as [] rather than null.
func (l Ledger) Normalized() Ledger {
	if l.Expenses == nil {
		l.Expenses = []Expense{}
	}
	if l.Incomes == nil {
		l.Incomes = []Income{}
	}
	if l.FixedExpenses == nil {
		l.FixedExpenses = []FixedExpense{}
	}
	if l.LivingExpenses == nil {
		l.LivingExpenses = []LivingExpense{}
	}
	return l
}

// Clone returns a copy whose slices do not alias l.
func (l Ledger) Clone() Ledger {
	return Ledger{
		Expenses:       append([]Expense{}, l.Expenses...),
		Incomes:        append([]Income{}, l.Incomes...),
		FixedExpenses:  cloneFixed(l.FixedExpenses),
		LivingExpenses: cloneLiving(l.LivingExpenses),
	}
}

// Find returns the record with id in collection c.
func (l Ledger) Find(c Collection, id string) (Record, bool) {
	switch c {
	case Expenses:
		return findByID(l.Expenses, id)
	case Incomes:
		return findByID(l.Incomes, id)
	case FixedExpenses:
		return findByID(l.FixedExpenses, id)
	case LivingExpenses:
		return findByID(l.LivingExpenses, id)
	}
	return nil, false
}

// Len returns the number of records in collection c.
func (l Ledger) Len(c Collection) int {
	switch c {
	case Expenses:
		return len(l.Expenses)
	case Incomes:
		return len(l.Incomes)
	case FixedExpenses:
		return len(l.FixedExpenses)
	case LivingExpenses:
		return len(l.LivingExpenses)
	}
	return 0
}

// Replace swaps the record sharing rec's id for rec. It reports false when
// no such record exists.
func (l *Ledger) Replace(rec Record) bool {
	switch r := rec.(type) {
	case Expense:
		return replaceByID(l.Expenses, r)
	case Income:
		return replaceByID(l.Incomes, r)
	case FixedExpense:
		return replaceByID(l.FixedExpenses, r)
	case LivingExpense:
		return replaceByID(l.LivingExpenses, r)
	}
	return false
}

// Remove drops the record with id from collection c.
func (l *Ledger) Remove(c Collection, id string) bool {
	var ok bool
	switch c {
	case Expenses:
		l.Expenses, ok = removeByID(l.Expenses, id)
	case Incomes:
		l.Incomes, ok = removeByID(l.Incomes, id)
	case FixedExpenses:
		l.FixedExpenses, ok = removeByID(l.FixedExpenses, id)
	case LivingExpenses:
		l.LivingExpenses, ok = removeByID(l.LivingExpenses, id)
	}
	return ok
}

type identified interface {
	RecordID() string
}

func findByID[T Record](items []T, id string) (Record, bool) {
	for _, it := range items {
		if it.RecordID() == id {
			return it, true
		}
	}
	return nil, false
}

func replaceByID[T identified](items []T, rec T) bool {
	for i := range items {
		if items[i].RecordID() == rec.RecordID() {
			items[i] = rec
			return true
		}
	}
	return false
}

func removeByID[T identified](items []T, id string) ([]T, bool) {
	out := make([]T, 0, len(items))
	found := false
	for _, it := range items {
		if it.RecordID() == id {
			found = true
			continue
		}
		out = append(out, it)
	}
	return out, found
}

func cloneFixed(items []FixedExpense) []FixedExpense {
	out := append([]FixedExpense{}, items...)
	for i := range out {
		out[i].Settled = clonePeriod(out[i].Settled)
	}
	return out
}

func cloneLiving(items []LivingExpense) []LivingExpense {
	out := append([]LivingExpense{}, items...)
	for i := range out {
		out[i].Settled = clonePeriod(out[i].Settled)
	}
	return out
}

func clonePeriod(p *YearMonth) *YearMonth {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
