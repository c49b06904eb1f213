package sheets

import (
	"context"

	"kakeibo/internal/core"
)

// Ports for outbound adapters.
type (
	// LedgerReader returns all four collections in one call.
	LedgerReader interface {
		ReadAll(ctx context.Context) (core.Ledger, error)
	}

	// ExpenseCreator stores a new expense and returns it with its
	// backend-assigned id.
	ExpenseCreator interface {
		CreateExpense(ctx context.Context, d core.ExpenseDraft) (core.Expense, error)
	}

	// RecordMutator replaces or removes an existing record. Implementations
	// return an error unless the backend confirmed the change.
	RecordMutator interface {
		UpdateRecord(ctx context.Context, rec core.Record) error
		DeleteRecord(ctx context.Context, c core.Collection, id string) error
	}

	// RecurringCreator adds a fixed or living expense template.
	RecurringCreator interface {
		CreateRecurring(ctx context.Context, c core.Collection, r core.Recurring) (core.Recurring, error)
	}

	// Backend is everything a ledger data source offers.
	Backend interface {
		LedgerReader
		ExpenseCreator
		RecordMutator
		RecurringCreator
	}
)
