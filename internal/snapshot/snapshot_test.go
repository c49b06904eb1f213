package snapshot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"kakeibo/internal/core"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleLedger() core.Ledger {
	feb := core.YearMonth{Year: 2026, Month: time.February}
	return core.Ledger{
		Expenses: []core.Expense{
			{ID: "e1", Date: "2026/02/19", Detail: "Coffee", Amount: decimal.NewFromInt(400), Category: "食費", Payment: "現金"},
		},
		Incomes: []core.Income{
			{ID: "i1", Date: "2026/02/25", Detail: "Salary", Amount: decimal.NewFromInt(250000)},
		},
		LivingExpenses: []core.LivingExpense{
			{Recurring: core.Recurring{ID: "l1", Detail: "Electricity", Day: 31, Settled: &feb}},
		},
	}
}

func TestEncodeDecode(t *testing.T) {
	savedAt := time.UnixMilli(1771459200123)
	data, err := Encode(sampleLedger(), savedAt)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(string(data), `"fixedExpenses":[]`) {
		t.Errorf("empty collections should encode as arrays: %s", data)
	}
	if !strings.Contains(string(data), `"savedAt":1771459200123`) {
		t.Errorf("savedAt should be epoch milliseconds: %s", data)
	}

	snap, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !snap.SavedAt.Equal(savedAt) {
		t.Errorf("SavedAt = %v, want %v", snap.SavedAt, savedAt)
	}
	if len(snap.Ledger.Expenses) != 1 || !snap.Ledger.Expenses[0].Amount.Equal(decimal.NewFromInt(400)) {
		t.Errorf("unexpected expenses: %+v", snap.Ledger.Expenses)
	}
	settled := snap.Ledger.LivingExpenses[0].Settled
	if settled == nil || *settled != (core.YearMonth{Year: 2026, Month: time.February}) {
		t.Errorf("settled period lost: %v", settled)
	}
	if snap.Ledger.FixedExpenses == nil {
		t.Error("decoded collections should never be nil")
	}
}

func TestDecodeRejectsInvalidSnapshots(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"not json", `{"schemaVersion":`, ErrMalformed},
		{"old version", `{"schemaVersion":1,"savedAt":0,"expenses":[],"incomes":[],"fixedExpenses":[],"livingExpenses":[]}`, ErrVersionMismatch},
		{"missing collection", `{"schemaVersion":2,"savedAt":0,"expenses":[],"incomes":[],"fixedExpenses":[]}`, ErrMalformed},
		{"null collection", `{"schemaVersion":2,"savedAt":0,"expenses":null,"incomes":[],"fixedExpenses":[],"livingExpenses":[]}`, ErrMalformed},
		{"object collection", `{"schemaVersion":2,"savedAt":0,"expenses":{},"incomes":[],"fixedExpenses":[],"livingExpenses":[]}`, ErrMalformed},
		{"bad record", `{"schemaVersion":2,"savedAt":0,"expenses":[{"amount":"abc"}],"incomes":[],"fixedExpenses":[],"livingExpenses":[]}`, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			if !errors.Is(err, tt.want) {
				t.Fatalf("Decode error = %v, want %v", err, tt.want)
			}
		})
	}
}

type brokenStorage struct{}

func (brokenStorage) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("storage disabled")
}
func (brokenStorage) Set(context.Context, string, []byte) error { return errors.New("quota exceeded") }
func (brokenStorage) Delete(context.Context, string) error      { return errors.New("storage disabled") }

func TestBestEffortSwallowsErrors(t *testing.T) {
	ctx := context.Background()
	b := NewBestEffort(brokenStorage{}, quietLogger())

	if _, ok := b.Get(ctx, "k"); ok {
		t.Error("Get should miss on failure")
	}
	if b.Set(ctx, "k", []byte("v")) {
		t.Error("Set should report false on failure")
	}
	b.Clear(ctx, "k")

	var nilStore *BestEffort
	if _, ok := nilStore.Get(ctx, "k"); ok {
		t.Error("nil BestEffort should miss")
	}
}

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 2, 19, 9, 0, 0, 0, time.UTC)
	c := NewCache(NewMemory(), quietLogger(), WithClock(func() time.Time { return now }))

	if _, ok := c.Load(ctx); ok {
		t.Fatal("empty cache should miss")
	}
	if !c.Save(ctx, sampleLedger()) {
		t.Fatal("Save failed")
	}
	snap, ok := c.Load(ctx)
	if !ok {
		t.Fatal("Load missed after Save")
	}
	if got := snap.Age(now.Add(4 * time.Minute)); got != 4*time.Minute {
		t.Errorf("Age = %v, want 4m", got)
	}

	c.Clear(ctx)
	if _, ok := c.Load(ctx); ok {
		t.Fatal("Load hit after Clear")
	}
}

func TestCacheDiscardsCorruptSnapshot(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	_ = mem.Set(ctx, DefaultKey, []byte(`{"schemaVersion":2,"expenses":"oops"}`))
	c := NewCache(mem, quietLogger())

	if _, ok := c.Load(ctx); ok {
		t.Fatal("corrupt snapshot should miss")
	}
	if _, err := mem.Get(ctx, DefaultKey); !errors.Is(err, ErrNotFound) {
		t.Fatalf("corrupt snapshot should be cleared, got %v", err)
	}
}

func TestCacheWithBrokenStorage(t *testing.T) {
	c := NewCache(brokenStorage{}, quietLogger())
	ctx := context.Background()

	if c.Save(ctx, sampleLedger()) {
		t.Error("Save should fail quietly")
	}
	if _, ok := c.Load(ctx); ok {
		t.Error("Load should miss quietly")
	}
}

func TestFileStorage(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	f, err := NewFile(dir)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	if _, err := f.Get(ctx, "kakeibo:ledger"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := f.Set(ctx, "kakeibo:ledger", []byte("one")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := f.Set(ctx, "kakeibo:ledger", []byte("two")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := f.Get(ctx, "kakeibo:ledger")
	if err != nil || string(got) != "two" {
		t.Fatalf("Get = %q, %v", got, err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 || entries[0].Name() != "kakeibo_ledger.json" {
		t.Fatalf("unexpected files: %v", entries)
	}
	if _, err := os.Stat(filepath.Join(dir, "kakeibo_ledger.json")); err != nil {
		t.Fatal(err)
	}

	if err := f.Delete(ctx, "kakeibo:ledger"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := f.Delete(ctx, "kakeibo:ledger"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}
