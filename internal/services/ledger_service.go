package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ledger/internal/amqp"
	"ledger/internal/core"
)

type (
	// Store is the ledger persistence the service writes through.
	Store interface {
		Add(ctx context.Context, in core.ExpenseInput) (int64, error)
		AddBulk(ctx context.Context, batch []core.ExpenseInput) (int, error)
		ListExpenses(ctx context.Context, r core.DateRange) ([]core.Expense, error)
		Summarize(ctx context.Context, start, end string, category *string) ([]core.CategoryTotal, error)
		Close() error
	}

	// Publisher announces committed expenses to the mirror.
	Publisher interface {
		PublishExpensesRecorded(ctx context.Context, msg *amqp.ExpensesRecordedMessage) error
		Close() error
	}
)

// LedgerService orchestrates ledger operations across the store and the
// optional mirror publisher. The store is the source of truth: a publish
// failure is logged and never fails the request.
type LedgerService struct {
	store     Store
	publisher Publisher
}

// NewLedgerService wires the service. publisher may be nil, which disables
// mirroring.
func NewLedgerService(store Store, publisher Publisher) *LedgerService {
	return &LedgerService{
		store:     store,
		publisher: publisher,
	}
}

// AddExpense saves one expense and returns its id.
func (s *LedgerService) AddExpense(ctx context.Context, in core.ExpenseInput) (int64, error) {
	id, err := s.store.Add(ctx, in)
	if err != nil {
		return 0, err
	}

	e := in.Expense()
	e.ID = id
	s.publish(ctx, core.OpAddExpense, []core.Expense{e})

	return id, nil
}

// AddExpensesBulk saves every element of batch atomically and returns how many
// were stored.
func (s *LedgerService) AddExpensesBulk(ctx context.Context, batch []core.ExpenseInput) (int, error) {
	n, err := s.store.AddBulk(ctx, batch)
	if err != nil {
		return 0, err
	}

	if n > 0 {
		expenses := make([]core.Expense, 0, len(batch))
		for _, in := range batch {
			expenses = append(expenses, in.Expense())
		}
		s.publish(ctx, core.OpAddExpensesBulk, expenses)
	}

	return n, nil
}

func (s *LedgerService) ListExpenses(ctx context.Context, r core.DateRange) ([]core.Expense, error) {
	return s.store.ListExpenses(ctx, r)
}

func (s *LedgerService) Summarize(ctx context.Context, start, end string, category *string) ([]core.CategoryTotal, error) {
	return s.store.Summarize(ctx, start, end, category)
}

func (s *LedgerService) publish(ctx context.Context, op string, expenses []core.Expense) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "Mirror publisher not configured, skipping", "operation", op)
		return
	}

	msg := amqp.NewExpensesRecordedMessage(op, expenses)
	if err := s.publisher.PublishExpensesRecorded(ctx, msg); err != nil {
		// Expenses are already committed locally.
		slog.ErrorContext(ctx, "Failed to publish expenses recorded message",
			"operation", op,
			"count", len(expenses),
			"error", err)
	}
}

// Close closes both the store and the publisher.
func (s *LedgerService) Close() error {
	var errs []error

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %w", errors.Join(errs...))
	}

	return nil
}
