package core

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"400", 400, true},
		{" 1,200 ", 1200, true},
		{"¥980", 980, true},
		{"3000円", 3000, true},
		{"-5", -5, true},
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.NewFromInt(tc.out)) {
				t.Fatalf("%q expected %d, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestParsePositiveAmount(t *testing.T) {
	for _, in := range []string{"0", "-5", "abc", ""} {
		if _, err := ParsePositiveAmount(in); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%q expected ErrInvalidAmount, got %v", in, err)
		}
	}
	if d, err := ParsePositiveAmount("12.5"); err != nil || d.String() != "12.5" {
		t.Fatalf("expected 12.5, got %s (err=%v)", d, err)
	}
}

func TestFormatYen(t *testing.T) {
	cases := map[int64]string{
		0:        "¥0",
		400:      "¥400",
		1200:     "¥1,200",
		-300:     "-¥300",
		12345678: "¥12,345,678",
	}
	for in, want := range cases {
		if got := FormatYen(decimal.NewFromInt(in)); got != want {
			t.Errorf("FormatYen(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestExpenseDraftValidate(t *testing.T) {
	good := ExpenseDraft{Date: "2026/02/19", Detail: "Coffee", Amount: decimal.NewFromInt(400), Category: "食費", Payment: "現金"}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []ExpenseDraft{
		{Date: "", Detail: "a", Amount: decimal.NewFromInt(1)},
		{Date: "2026/13/01", Detail: "a", Amount: decimal.NewFromInt(1)},
		{Date: "2026/02/19", Detail: " ", Amount: decimal.NewFromInt(1)},
		{Date: "2026/02/19", Detail: "a", Amount: decimal.Zero},
	}
	for i, d := range bads {
		if err := d.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestParseDate(t *testing.T) {
	for _, in := range []string{"2026/02/19", "2026/2/19", "2026-02-19"} {
		got, err := ParseDate(in)
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if !got.Equal(time.Date(2026, 2, 19, 0, 0, 0, 0, time.UTC)) {
			t.Fatalf("%q parsed to %v", in, got)
		}
	}
}

func TestParseCollection(t *testing.T) {
	for in, want := range map[string]Collection{
		"expenses":       Expenses,
		"income":         Incomes,
		"fixed":          FixedExpenses,
		"livingExpenses": LivingExpenses,
	} {
		got, err := ParseCollection(in)
		if err != nil || got != want {
			t.Fatalf("%q: got %q err=%v", in, got, err)
		}
	}
	if _, err := ParseCollection("bogus"); !errors.Is(err, ErrUnknownCollection) {
		t.Fatalf("expected ErrUnknownCollection, got %v", err)
	}
}
