package sheets

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"kakeibo/internal/core"
)

func coffeeDraft() core.ExpenseDraft {
	return core.ExpenseDraft{
		Date:     "2026/02/19",
		Detail:   "Coffee",
		Amount:   decimal.NewFromInt(400),
		Category: "食費",
		Memo:     "",
		Payment:  "現金",
	}
}

func TestReconcileCreatedExpense(t *testing.T) {
	draft := coffeeDraft()

	tests := []struct {
		name string
		body string
		want core.Expense
	}{
		{
			name: "recordId",
			body: `{"ok":true,"recordId":"R1"}`,
			want: draft.WithID("R1"),
		},
		{
			name: "id",
			body: `{"ok":true,"id":"R2"}`,
			want: draft.WithID("R2"),
		},
		{
			name: "numeric id",
			body: `{"ok":true,"id":42}`,
			want: draft.WithID("42"),
		},
		{
			name: "full expense",
			body: `{"ok":true,"expense":{"id":"R3","date":"2026/02/19","detail":"Coffee (large)","amount":450,"category":"食費","memo":"m","payment":"カード"}}`,
			want: core.Expense{ID: "R3", Date: "2026/02/19", Detail: "Coffee (large)", Amount: decimal.NewFromInt(450), Category: "食費", Memo: "m", Payment: "カード"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReconcileCreatedExpense(draft, http.StatusOK, []byte(tt.body))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.ID != tt.want.ID || got.Date != tt.want.Date || got.Detail != tt.want.Detail ||
				!got.Amount.Equal(tt.want.Amount) || got.Category != tt.want.Category ||
				got.Memo != tt.want.Memo || got.Payment != tt.want.Payment {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestReconcileCreatedExpenseFailures(t *testing.T) {
	draft := coffeeDraft()

	t.Run("non json body", func(t *testing.T) {
		body := "<html>" + strings.Repeat("エラー", 400) + "</html>"
		_, err := ReconcileCreatedExpense(draft, http.StatusOK, []byte(body))

		var te *TransportError
		if !errors.As(err, &te) {
			t.Fatalf("expected TransportError, got %T %v", err, err)
		}
		if n := utf8.RuneCountInString(te.Snippet); n == 0 || n > SnippetLimit {
			t.Fatalf("snippet has %d runes", n)
		}
		if !strings.HasPrefix(te.Snippet, "<html>") {
			t.Fatalf("snippet should be the start of the body: %q", te.Snippet)
		}
	})

	t.Run("http error", func(t *testing.T) {
		_, err := ReconcileCreatedExpense(draft, http.StatusBadGateway, []byte(`{"ok":false,"error":"upstream down"}`))
		var te *TransportError
		if !errors.As(err, &te) || te.Status != http.StatusBadGateway {
			t.Fatalf("expected TransportError with status, got %v", err)
		}
	})

	for name, body := range map[string]string{
		"falsy ok":        `{"ok":false,"error":"sheet locked"}`,
		"missing ok":      `{"recordId":"R1"}`,
		"ok without id":   `{"ok":true}`,
		"blank id":        `{"ok":true,"id":"  "}`,
		"expense no id":   `{"ok":true,"expense":{"detail":"x"}}`,
		"string false ok": `{"ok":"false","id":"R1"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ReconcileCreatedExpense(draft, http.StatusOK, []byte(body))
			var fe *FailureError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FailureError, got %T %v", err, err)
			}
			if string(fe.Payload) != body {
				t.Errorf("payload = %s, want original body", fe.Payload)
			}
		})
	}
}

func TestSnippet(t *testing.T) {
	if got := Snippet([]byte("short")); got != "short" {
		t.Errorf("Snippet(short) = %q", got)
	}
	long := strings.Repeat("a", 1000)
	if got := Snippet([]byte(long)); len(got) != SnippetLimit {
		t.Errorf("len = %d, want %d", len(got), SnippetLimit)
	}
	multi := strings.Repeat("円", SnippetLimit+1)
	got := Snippet([]byte(multi))
	if !utf8.ValidString(got) || utf8.RuneCountInString(got) != SnippetLimit {
		t.Errorf("multi-byte snippet cut badly: %d runes", utf8.RuneCountInString(got))
	}
}

func TestDecodeReadAll(t *testing.T) {
	ref := time.Date(2026, 2, 19, 9, 0, 0, 0, time.UTC)
	body := `{"ok":true,"data":{
		"expenses":[{"id":1,"date":"2026/02/19","detail":"Coffee","amount":"400","category":"食費","memo":"","payment":"現金"}],
		"incomes":null,
		"livingExpenses":[
			{"id":"L1","detail":"Electricity","amount":"","day":"31","done":"2026/02済"},
			{"id":"L2","detail":"Gas","amount":3200,"day":27.9,"done":"今月済"},
			{"id":"L3","detail":"Water","amount":"¥2,100","day":10,"done":""}
		]
	}}`

	l, err := DecodeReadAll(http.StatusOK, []byte(body), ref)
	if err != nil {
		t.Fatalf("DecodeReadAll: %v", err)
	}
	if len(l.Expenses) != 1 || l.Expenses[0].ID != "1" || !l.Expenses[0].Amount.Equal(decimal.NewFromInt(400)) {
		t.Errorf("unexpected expenses: %+v", l.Expenses)
	}
	if l.Incomes == nil || len(l.Incomes) != 0 || l.FixedExpenses == nil {
		t.Errorf("null and missing collections should decode as empty: %+v", l)
	}
	if len(l.LivingExpenses) != 3 {
		t.Fatalf("expected 3 living expenses, got %d", len(l.LivingExpenses))
	}
	feb := core.YearMonth{Year: 2026, Month: time.February}
	if !l.LivingExpenses[0].SettledFor(feb) || l.LivingExpenses[0].Day != 31 || !l.LivingExpenses[0].Amount.IsZero() {
		t.Errorf("L1 decoded wrong: %+v", l.LivingExpenses[0])
	}
	if !l.LivingExpenses[1].SettledFor(feb) || l.LivingExpenses[1].Day != 27 {
		t.Errorf("L2 decoded wrong: %+v", l.LivingExpenses[1])
	}
	if l.LivingExpenses[2].Settled != nil || !l.LivingExpenses[2].Amount.Equal(decimal.NewFromInt(2100)) {
		t.Errorf("L3 decoded wrong: %+v", l.LivingExpenses[2])
	}
}

func TestDecodeReadAllRejectsMalformed(t *testing.T) {
	ref := time.Now()
	for name, body := range map[string]string{
		"data array":     `{"ok":true,"data":[]}`,
		"data missing":   `{"ok":true}`,
		"collection obj": `{"ok":true,"data":{"expenses":{}}}`,
		"collection str": `{"ok":true,"data":{"livingExpenses":"none"}}`,
		"bad amount":     `{"ok":true,"data":{"expenses":[{"id":"1","amount":"abc"}]}}`,
		"not ok":         `{"ok":false,"data":{}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeReadAll(http.StatusOK, []byte(body), ref)
			if !IsFailure(err) {
				t.Fatalf("expected FailureError, got %v", err)
			}
		})
	}

	if _, err := DecodeReadAll(http.StatusOK, []byte("Service Unavailable"), ref); IsFailure(err) || err == nil {
		t.Fatalf("non-JSON should be a transport error, got %v", err)
	}
}

func TestFlexDay(t *testing.T) {
	tests := []struct {
		in      string
		want    FlexDay
		wantErr bool
	}{
		{in: `15`, want: 15},
		{in: `"7"`, want: 7},
		{in: `12.9`, want: 12},
		{in: `""`, want: 0},
		{in: `1e30`, want: 31},
		{in: `-1e30`, want: 0},
		{in: `"1e400"`, wantErr: true},
		{in: `"NaN"`, wantErr: true},
		{in: `"-Inf"`, wantErr: true},
		{in: `"soon"`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var d FlexDay
			err := d.UnmarshalJSON([]byte(tt.in))
			if tt.wantErr {
				if !errors.Is(err, core.ErrInvalidDay) {
					t.Fatalf("error = %v, want ErrInvalidDay", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d != tt.want {
				t.Errorf("day = %d, want %d", d, tt.want)
			}
		})
	}
}

func TestRecurringToWireRoundTrip(t *testing.T) {
	feb := core.YearMonth{Year: 2026, Month: time.February}
	r := core.Recurring{ID: "L1", Detail: "Electricity", Amount: decimal.NewFromInt(5000), Day: 27, Settled: &feb}

	w := RecurringToWire(r)
	if w.Done != "2026/02済" {
		t.Fatalf("Done = %q", w.Done)
	}
	back := w.Core(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	if !back.SettledFor(feb) || back.ID != "L1" || back.Day != 27 {
		t.Fatalf("round trip lost data: %+v", back)
	}

	r.Settled = nil
	if RecurringToWire(r).Done != "" {
		t.Fatal("unsettled record should have an empty marker")
	}
}

func TestEnvelopeSucceeded(t *testing.T) {
	for raw, want := range map[string]bool{
		`true`: true, `false`: false, `1`: true, `0`: false,
		`"yes"`: true, `"false"`: false, `""`: false, `null`: false,
	} {
		if got := (Envelope{OK: []byte(raw)}).Succeeded(); got != want {
			t.Errorf("ok=%s: got %v, want %v", raw, got, want)
		}
	}
}
