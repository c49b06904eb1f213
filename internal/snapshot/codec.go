// Package snapshot persists a copy of the ledger for fast startup.
//
// Persistence is an accelerator only. Every read or write failure degrades
// to "no snapshot" and is logged, never returned to the ledger store.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"kakeibo/internal/core"
)

// SchemaVersion is bumped whenever the record shapes change incompatibly.
// Snapshots written with another version are ignored.
const SchemaVersion = 2

var (
	ErrVersionMismatch = errors.New("snapshot schema version mismatch")
	ErrMalformed       = errors.New("malformed snapshot")
)

// Snapshot is a decoded durable copy of the ledger.
type Snapshot struct {
	SavedAt time.Time
	Ledger  core.Ledger
}

// Age returns how old the snapshot is at now.
func (s Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.SavedAt)
}

type envelope struct {
	SchemaVersion  int             `json:"schemaVersion"`
	SavedAt        int64           `json:"savedAt"`
	Expenses       json.RawMessage `json:"expenses"`
	Incomes        json.RawMessage `json:"incomes"`
	FixedExpenses  json.RawMessage `json:"fixedExpenses"`
	LivingExpenses json.RawMessage `json:"livingExpenses"`
}

// Encode serializes l with savedAt in epoch milliseconds.
func Encode(l core.Ledger, savedAt time.Time) ([]byte, error) {
	l = l.Normalized()
	env := struct {
		SchemaVersion  int                  `json:"schemaVersion"`
		SavedAt        int64                `json:"savedAt"`
		Expenses       []core.Expense       `json:"expenses"`
		Incomes        []core.Income        `json:"incomes"`
		FixedExpenses  []core.FixedExpense  `json:"fixedExpenses"`
		LivingExpenses []core.LivingExpense `json:"livingExpenses"`
	}{
		SchemaVersion:  SchemaVersion,
		SavedAt:        savedAt.UnixMilli(),
		Expenses:       l.Expenses,
		Incomes:        l.Incomes,
		FixedExpenses:  l.FixedExpenses,
		LivingExpenses: l.LivingExpenses,
	}
	return json.Marshal(env)
}

// Decode parses data. It fails unless the version matches and all four
// collections are present as JSON arrays.
func Decode(data []byte) (Snapshot, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.SchemaVersion != SchemaVersion {
		return Snapshot{}, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, env.SchemaVersion, SchemaVersion)
	}

	var l core.Ledger
	fields := []struct {
		name string
		raw  json.RawMessage
		dst  any
	}{
		{"expenses", env.Expenses, &l.Expenses},
		{"incomes", env.Incomes, &l.Incomes},
		{"fixedExpenses", env.FixedExpenses, &l.FixedExpenses},
		{"livingExpenses", env.LivingExpenses, &l.LivingExpenses},
	}
	for _, f := range fields {
		if !isArray(f.raw) {
			return Snapshot{}, fmt.Errorf("%w: %s is not an array", ErrMalformed, f.name)
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return Snapshot{}, fmt.Errorf("%w: %s: %v", ErrMalformed, f.name, err)
		}
	}

	return Snapshot{
		SavedAt: time.UnixMilli(env.SavedAt),
		Ledger:  l.Normalized(),
	}, nil
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}
