package sheets

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"kakeibo/internal/core"
)

// Action discriminators understood by the spreadsheet web app.
const (
	ActionAddExpense          = "addExpense"
	ActionAddSubscription     = "addSubscription"
	ActionUpdateLivingExpense = "updateLivingExpense"
	ActionUpdate              = "update"
	ActionDelete              = "delete"
	ActionReadAll             = "readAll"
)

// Kinds of recurring templates in an addSubscription request.
const (
	KindFixed  = "fixed"
	KindLiving = "living"
)

// FlexString accepts a JSON string or number. Sheet cells holding ids
// come back as numbers when they look numeric.
type FlexString string

func (s *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*s = ""
	case len(b) > 0 && b[0] == '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = FlexString(v)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("expected string or number, got %s", b)
		}
		*s = FlexString(n.String())
	}
	return nil
}

// FlexAmount accepts a number, a numeric string ("1,200", "¥980") or an
// empty cell, which decodes as zero.
type FlexAmount struct {
	decimal.Decimal
}

func (a *FlexAmount) UnmarshalJSON(b []byte) error {
	var s FlexString
	if err := s.UnmarshalJSON(b); err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	if strings.TrimSpace(string(s)) == "" {
		a.Decimal = decimal.Zero
		return nil
	}
	d, err := core.ParseAmount(string(s))
	if err != nil {
		return fmt.Errorf("amount %q: %w", string(s), err)
	}
	a.Decimal = d
	return nil
}

func (a FlexAmount) MarshalJSON() ([]byte, error) {
	return a.Decimal.MarshalJSON()
}

// FlexDay accepts a day-of-month as number or string. Fractions are
// floored and out-of-range values clamp to [0, 31]; blanks decode as zero.
type FlexDay int

func (d *FlexDay) UnmarshalJSON(b []byte) error {
	var s FlexString
	if err := s.UnmarshalJSON(b); err != nil {
		return fmt.Errorf("day: %w", err)
	}
	str := strings.TrimSpace(string(s))
	if str == "" {
		*d = 0
		return nil
	}
	f, err := strconv.ParseFloat(str, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("day %q: %w", str, core.ErrInvalidDay)
	}
	*d = FlexDay(int(math.Max(0, math.Min(31, f))))
	return nil
}

type (
	// WireExpense is an expense as the web app sends it.
	WireExpense struct {
		ID       FlexString `json:"id"`
		Date     string     `json:"date"`
		Detail   string     `json:"detail"`
		Amount   FlexAmount `json:"amount"`
		Category string     `json:"category"`
		Memo     string     `json:"memo"`
		Payment  string     `json:"payment"`
	}

	WireIncome struct {
		ID     FlexString `json:"id"`
		Date   string     `json:"date"`
		Detail string     `json:"detail"`
		Amount FlexAmount `json:"amount"`
	}

	// WireRecurring carries the legacy free-text done marker.
	WireRecurring struct {
		ID       FlexString `json:"id"`
		Detail   string     `json:"detail"`
		Amount   FlexAmount `json:"amount"`
		Day      FlexDay    `json:"day"`
		Category string     `json:"category"`
		Payment  string     `json:"payment"`
		Done     string     `json:"done"`
		Memo     string     `json:"memo"`
	}

	// WireLedger is the data object of a read-all response.
	WireLedger struct {
		Expenses       []WireExpense   `json:"expenses"`
		Incomes        []WireIncome    `json:"incomes"`
		FixedExpenses  []WireRecurring `json:"fixedExpenses"`
		LivingExpenses []WireRecurring `json:"livingExpenses"`
	}
)

func (w WireExpense) Core() core.Expense {
	return core.Expense{
		ID:       string(w.ID),
		Date:     w.Date,
		Detail:   w.Detail,
		Amount:   w.Amount.Decimal,
		Category: w.Category,
		Memo:     w.Memo,
		Payment:  w.Payment,
	}
}

func ExpenseToWire(e core.Expense) WireExpense {
	return WireExpense{
		ID:       FlexString(e.ID),
		Date:     e.Date,
		Detail:   e.Detail,
		Amount:   FlexAmount{e.Amount},
		Category: e.Category,
		Memo:     e.Memo,
		Payment:  e.Payment,
	}
}

func (w WireIncome) Core() core.Income {
	return core.Income{ID: string(w.ID), Date: w.Date, Detail: w.Detail, Amount: w.Amount.Decimal}
}

func IncomeToWire(i core.Income) WireIncome {
	return WireIncome{ID: FlexString(i.ID), Date: i.Date, Detail: i.Detail, Amount: FlexAmount{i.Amount}}
}

// Core converts w, decoding the done marker relative to ref.
func (w WireRecurring) Core(ref time.Time) core.Recurring {
	return core.Recurring{
		ID:       string(w.ID),
		Detail:   w.Detail,
		Amount:   w.Amount.Decimal,
		Day:      int(w.Day),
		Category: w.Category,
		Payment:  w.Payment,
		Settled:  core.DecodeSettledMarker(w.Done, ref),
		Memo:     w.Memo,
	}
}

// RecurringToWire encodes the settled period as a "YYYY/MM済" marker.
func RecurringToWire(r core.Recurring) WireRecurring {
	w := WireRecurring{
		ID:       FlexString(r.ID),
		Detail:   r.Detail,
		Amount:   FlexAmount{r.Amount},
		Day:      FlexDay(r.Day),
		Category: r.Category,
		Payment:  r.Payment,
		Memo:     r.Memo,
	}
	if r.Settled != nil {
		w.Done = r.Settled.Marker()
	}
	return w
}

// Core converts the whole payload. ref is the moment the response was read.
func (w WireLedger) Core(ref time.Time) core.Ledger {
	l := core.Ledger{
		Expenses:       make([]core.Expense, 0, len(w.Expenses)),
		Incomes:        make([]core.Income, 0, len(w.Incomes)),
		FixedExpenses:  make([]core.FixedExpense, 0, len(w.FixedExpenses)),
		LivingExpenses: make([]core.LivingExpense, 0, len(w.LivingExpenses)),
	}
	for _, e := range w.Expenses {
		l.Expenses = append(l.Expenses, e.Core())
	}
	for _, i := range w.Incomes {
		l.Incomes = append(l.Incomes, i.Core())
	}
	for _, r := range w.FixedExpenses {
		l.FixedExpenses = append(l.FixedExpenses, core.FixedExpense{Recurring: r.Core(ref)})
	}
	for _, r := range w.LivingExpenses {
		l.LivingExpenses = append(l.LivingExpenses, core.LivingExpense{Recurring: r.Core(ref)})
	}
	return l
}

func LedgerToWire(l core.Ledger) WireLedger {
	w := WireLedger{
		Expenses:       make([]WireExpense, 0, len(l.Expenses)),
		Incomes:        make([]WireIncome, 0, len(l.Incomes)),
		FixedExpenses:  make([]WireRecurring, 0, len(l.FixedExpenses)),
		LivingExpenses: make([]WireRecurring, 0, len(l.LivingExpenses)),
	}
	for _, e := range l.Expenses {
		w.Expenses = append(w.Expenses, ExpenseToWire(e))
	}
	for _, i := range l.Incomes {
		w.Incomes = append(w.Incomes, IncomeToWire(i))
	}
	for _, r := range l.FixedExpenses {
		w.FixedExpenses = append(w.FixedExpenses, RecurringToWire(r.Recurring))
	}
	for _, r := range l.LivingExpenses {
		w.LivingExpenses = append(w.LivingExpenses, RecurringToWire(r.Recurring))
	}
	return w
}

// RecordToWire returns the wire form of any record.
func RecordToWire(rec core.Record) (any, error) {
	switch r := rec.(type) {
	case core.Expense:
		return ExpenseToWire(r), nil
	case core.Income:
		return IncomeToWire(r), nil
	case core.FixedExpense:
		return RecurringToWire(r.Recurring), nil
	case core.LivingExpense:
		return RecurringToWire(r.Recurring), nil
	}
	return nil, fmt.Errorf("%w: %T", core.ErrUnknownCollection, rec)
}

// DecodeRecord parses a wire record of collection c.
func DecodeRecord(c core.Collection, raw json.RawMessage, ref time.Time) (core.Record, error) {
	switch c {
	case core.Expenses:
		var w WireExpense
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return w.Core(), nil
	case core.Incomes:
		var w WireIncome
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return w.Core(), nil
	case core.FixedExpenses, core.LivingExpenses:
		var w WireRecurring
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		if c == core.FixedExpenses {
			return core.FixedExpense{Recurring: w.Core(ref)}, nil
		}
		return core.LivingExpense{Recurring: w.Core(ref)}, nil
	}
	return nil, fmt.Errorf("%w: %q", core.ErrUnknownCollection, c)
}

// ExpenseRequest is the create-expense body.
type ExpenseRequest struct {
	Action   string     `json:"action,omitempty"`
	Date     string     `json:"date"`
	Detail   string     `json:"detail"`
	Amount   FlexAmount `json:"amount"`
	Category string     `json:"category"`
	Memo     string     `json:"memo"`
	Payment  string     `json:"payment"`
}

func NewExpenseRequest(d core.ExpenseDraft) ExpenseRequest {
	return ExpenseRequest{
		Date:     d.Date,
		Detail:   d.Detail,
		Amount:   FlexAmount{d.Amount},
		Category: d.Category,
		Memo:     d.Memo,
		Payment:  d.Payment,
	}
}

func (r ExpenseRequest) Draft() core.ExpenseDraft {
	return core.ExpenseDraft{
		Date:     r.Date,
		Detail:   r.Detail,
		Amount:   r.Amount.Decimal,
		Category: r.Category,
		Memo:     r.Memo,
		Payment:  r.Payment,
	}
}

// SubscriptionRequest creates a fixed or living expense template.
type SubscriptionRequest struct {
	Action string `json:"action"`
	Kind   string `json:"kind"`
	WireRecurring
}

// LivingExpenseRequest rewrites a living expense, typically its done marker.
type LivingExpenseRequest struct {
	Action string `json:"action"`
	WireRecurring
}

// UpdateRequest replaces a record by id.
type UpdateRequest struct {
	Action     string          `json:"action"`
	Collection core.Collection `json:"collection"`
	Record     json.RawMessage `json:"record"`
}

// DeleteRequest removes a record by id.
type DeleteRequest struct {
	Action     string          `json:"action"`
	Collection core.Collection `json:"collection"`
	ID         string          `json:"id"`
}

// KindOf maps a recurring collection to its addSubscription kind.
func KindOf(c core.Collection) (string, error) {
	switch c {
	case core.FixedExpenses:
		return KindFixed, nil
	case core.LivingExpenses:
		return KindLiving, nil
	}
	return "", fmt.Errorf("%w: %q is not recurring", core.ErrUnknownCollection, c)
}

// CollectionOfKind is the inverse of KindOf.
func CollectionOfKind(kind string) (core.Collection, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindFixed, "subscription":
		return core.FixedExpenses, nil
	case KindLiving:
		return core.LivingExpenses, nil
	}
	return "", fmt.Errorf("%w: kind %q", core.ErrUnknownCollection, kind)
}
