package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount decimal.Decimal
}

// MonthSummary is a compact summary for a specific year+month.
type MonthSummary struct {
	Period     YearMonth
	Expenses   decimal.Decimal
	Incomes    decimal.Decimal
	ByCategory []CategoryAmount
}

// Balance is income minus expenses.
func (s MonthSummary) Balance() decimal.Decimal {
	return s.Incomes.Sub(s.Expenses)
}

// Summarize totals the expenses and incomes dated in ym. Categories keep
// first-seen order; records with unparsable dates are skipped.
func Summarize(l Ledger, ym YearMonth) MonthSummary {
	sum := MonthSummary{Period: ym}
	byCat := map[string]decimal.Decimal{}
	var order []string
	for _, e := range l.Expenses {
		if !inMonth(e.Date, ym) {
			continue
		}
		sum.Expenses = sum.Expenses.Add(e.Amount)
		name := strings.TrimSpace(e.Category)
		if name == "" {
			name = "(未分類)"
		}
		if _, seen := byCat[name]; !seen {
			order = append(order, name)
		}
		byCat[name] = byCat[name].Add(e.Amount)
	}
	for _, in := range l.Incomes {
		if inMonth(in.Date, ym) {
			sum.Incomes = sum.Incomes.Add(in.Amount)
		}
	}
	for _, name := range order {
		sum.ByCategory = append(sum.ByCategory, CategoryAmount{Name: name, Amount: byCat[name]})
	}
	return sum
}

func inMonth(date string, ym YearMonth) bool {
	t, err := ParseDate(date)
	if err != nil {
		return false
	}
	return YearMonthOf(t) == ym
}
