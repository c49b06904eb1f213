// Package core provides money parsing and handling utilities.
//
// Amounts are whole or fractional yen held as decimal.Decimal so that values
// read from the spreadsheet (numbers or numeric strings) round-trip exactly.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts travel as JSON numbers, matching the spreadsheet backend.
	decimal.MarshalJSONWithoutQuotes = true
}

// ParseAmount parses a user-entered amount.
//
// It tolerates surrounding whitespace, a leading "¥" or "￥", a trailing "円"
// and "," thousands separators. Signed values are accepted; use
// ParsePositiveAmount when only payments are meaningful.
//
// Examples:
//
//	ParseAmount("1,200")  -> 1200, nil
//	ParseAmount("¥980")   -> 980, nil
//	ParseAmount("-5")     -> -5, nil
//	ParseAmount("abc")    -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "¥")
	s = strings.TrimPrefix(s, "￥")
	s = strings.TrimSuffix(s, "円")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParsePositiveAmount is ParseAmount restricted to values strictly above zero.
func ParsePositiveAmount(s string) (decimal.Decimal, error) {
	d, err := ParseAmount(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// FormatYen renders an amount for display, e.g. "¥1,200" or "-¥300".
func FormatYen(d decimal.Decimal) string {
	neg := d.IsNegative()
	s := d.Abs().StringFixed(0)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-¥" + b.String()
	}
	return "¥" + b.String()
}
