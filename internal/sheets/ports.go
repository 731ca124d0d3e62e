package sheets

import (
	"context"

	"ledger/internal/core"
)

// Ports for outbound adapters.
type (
	// ExpenseAppender writes expenses as new rows at the end of the mirror sheet,
	// preserving order. It returns a reference to the rows written.
	ExpenseAppender interface {
		AppendExpenses(ctx context.Context, expenses []core.Expense) (rowRef string, err error)
	}
)
