package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire and display format of record dates.
const DateLayout = "2006/01/02"

// Collection names one of the four record collections.
type Collection string

const (
	Expenses       Collection = "expenses"
	Incomes        Collection = "incomes"
	FixedExpenses  Collection = "fixedExpenses"
	LivingExpenses Collection = "livingExpenses"
)

var (
	ErrInvalidDate       = errors.New("invalid date")
	ErrInvalidDay        = errors.New("invalid day of month")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrEmptyDetail       = errors.New("empty detail")
	ErrDetailTooLong     = errors.New("detail too long (max 200 characters)")
	ErrEmptyID           = errors.New("empty record id")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrNotFound          = errors.New("record not found")
)

// Collections returns every collection in display order.
func Collections() []Collection {
	return []Collection{Expenses, Incomes, FixedExpenses, LivingExpenses}
}

func (c Collection) String() string {
	return string(c)
}

// IsValid reports whether c is one of the four known collections.
func (c Collection) IsValid() bool {
	switch c {
	case Expenses, Incomes, FixedExpenses, LivingExpenses:
		return true
	default:
		return false
	}
}

// ParseCollection accepts the canonical names plus a few short aliases used by the CLI.
func ParseCollection(s string) (Collection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "expenses", "expense":
		return Expenses, nil
	case "incomes", "income":
		return Incomes, nil
	case "fixedexpenses", "fixed", "subscriptions":
		return FixedExpenses, nil
	case "livingexpenses", "living":
		return LivingExpenses, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCollection, s)
}

// Record is implemented by every concrete record type.
type Record interface {
	RecordID() string
	Collection() Collection
}

type (
	// Expense is a single outgoing payment. Amount is signed yen.
	Expense struct {
		ID       string          `json:"id"`
		Date     string          `json:"date"`
		Detail   string          `json:"detail"`
		Amount   decimal.Decimal `json:"amount"`
		Category string          `json:"category"`
		Memo     string          `json:"memo"`
		Payment  string          `json:"payment"`
	}

	// ExpenseDraft carries the fields submitted when creating an expense.
	ExpenseDraft struct {
		Date     string          `json:"date"`
		Detail   string          `json:"detail"`
		Amount   decimal.Decimal `json:"amount"`
		Category string          `json:"category"`
		Memo     string          `json:"memo"`
		Payment  string          `json:"payment"`
	}

	Income struct {
		ID     string          `json:"id"`
		Date   string          `json:"date"`
		Detail string          `json:"detail"`
		Amount decimal.Decimal `json:"amount"`
	}

	// Recurring is the shared shape of monthly obligations. Day is
	// resolved against the evaluation month, see DueDay.
	Recurring struct {
		ID       string          `json:"id"`
		Detail   string          `json:"detail"`
		Amount   decimal.Decimal `json:"amount"`
		Day      int             `json:"day"`
		Category string          `json:"category"`
		Payment  string          `json:"payment"`
		Settled  *YearMonth      `json:"settled,omitempty"`
		Memo     string          `json:"memo"`
	}

	// FixedExpense is a fixed-amount monthly cost (subscriptions, rent).
	FixedExpense struct {
		Recurring
	}

	// LivingExpense is a variable-amount monthly bill (utilities).
	LivingExpense struct {
		Recurring
	}
)

func (e Expense) RecordID() string           { return e.ID }
func (Expense) Collection() Collection       { return Expenses }
func (i Income) RecordID() string            { return i.ID }
func (Income) Collection() Collection        { return Incomes }
func (r Recurring) RecordID() string         { return r.ID }
func (FixedExpense) Collection() Collection  { return FixedExpenses }
func (LivingExpense) Collection() Collection { return LivingExpenses }

// WithID builds the expense a successful create produced.
func (d ExpenseDraft) WithID(id string) Expense {
	return Expense{
		ID:       id,
		Date:     d.Date,
		Detail:   d.Detail,
		Amount:   d.Amount,
		Category: d.Category,
		Memo:     d.Memo,
		Payment:  d.Payment,
	}
}

func (d ExpenseDraft) Validate() error {
	if _, err := ParseDate(d.Date); err != nil {
		return err
	}
	if err := validateDetail(d.Detail); err != nil {
		return err
	}
	if d.Amount.IsZero() {
		return ErrInvalidAmount
	}
	return nil
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return ErrEmptyID
	}
	return ExpenseDraft{Date: e.Date, Detail: e.Detail, Amount: e.Amount}.Validate()
}

func (i Income) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return ErrEmptyID
	}
	if _, err := ParseDate(i.Date); err != nil {
		return err
	}
	if err := validateDetail(i.Detail); err != nil {
		return err
	}
	if i.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

// Validate checks the template fields. The id is assigned by the backend,
// so an empty id is accepted here.
func (r Recurring) Validate() error {
	if err := validateDetail(r.Detail); err != nil {
		return err
	}
	if r.Day < 1 || r.Day > 31 {
		return ErrInvalidDay
	}
	if r.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

// SettledFor reports whether the obligation is marked paid for ym.
func (r Recurring) SettledFor(ym YearMonth) bool {
	return r.Settled != nil && *r.Settled == ym
}

func validateDetail(detail string) error {
	if strings.TrimSpace(detail) == "" {
		return ErrEmptyDetail
	}
	if len([]rune(detail)) > 200 {
		return ErrDetailTooLong
	}
	return nil
}

// ParseDate parses a "YYYY/MM/DD" date. A zero-padded or plain day and
// month are both accepted, and "-" works as separator.
func ParseDate(s string) (time.Time, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "-", "/")
	for _, layout := range []string{DateLayout, "2006/1/2"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// FormatDate renders t in the record date format.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
