package memory

import (
	"context"
	"fmt"
	"sync"

	"ledger/internal/core"
	ports "ledger/internal/sheets"
)

// Store is an in-memory mirror sheet, used for dry runs and tests.
type Store struct {
	mu   sync.Mutex
	rows []core.Expense
}

var _ ports.ExpenseAppender = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// AppendExpenses stores the expenses and returns a synthetic row range.
func (s *Store) AppendExpenses(_ context.Context, expenses []core.Expense) (string, error) {
	if len(expenses) == 0 {
		return "", nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	first := len(s.rows) + 1
	s.rows = append(s.rows, expenses...)
	return fmt.Sprintf("mem:%d-%d", first, len(s.rows)), nil
}

// Expenses returns a copy of every row appended so far.
func (s *Store) Expenses() []core.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Expense(nil), s.rows...)
}
