package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/sheets"
)

// Consumer delivers ExpensesRecordedMessages until ctx is done or the
// underlying subscription breaks.
type Consumer interface {
	ConsumeExpensesRecorded(ctx context.Context, handler func(context.Context, *amqp.ExpensesRecordedMessage) error) error
}

// MirrorWorker copies recorded expenses into the mirror sheet.
type MirrorWorker struct {
	consumer Consumer
	sink     sheets.ExpenseAppender
	backoff  func(attempt int) time.Duration
}

func NewMirrorWorker(consumer Consumer, sink sheets.ExpenseAppender) *MirrorWorker {
	return &MirrorWorker{
		consumer: consumer,
		sink:     sink,
		backoff:  amqp.Backoff,
	}
}

// HandleExpensesRecorded appends the message's expenses to the sheet. An error
// causes the message to be redelivered.
func (w *MirrorWorker) HandleExpensesRecorded(ctx context.Context, msg *amqp.ExpensesRecordedMessage) error {
	if len(msg.Expenses) == 0 {
		slog.WarnContext(ctx, "Empty expenses recorded message, nothing to mirror",
			"operation", msg.Operation)
		return nil
	}

	start := time.Now()
	ref, err := w.sink.AppendExpenses(ctx, msg.CoreExpenses())
	if err != nil {
		return fmt.Errorf("%s: append %d expenses: %w", core.OpMirrorExpenses, len(msg.Expenses), err)
	}

	slog.InfoContext(ctx, "Mirrored expenses", log.NewFields().
		With(log.FieldComponent, log.ComponentWorker).
		WithOperation(msg.Operation).
		With(log.FieldCount, len(msg.Expenses)).
		With(log.FieldSheetsRef, ref).
		WithDuration(time.Since(start).Milliseconds()).
		ToSlice()...)

	return nil
}

// Run consumes until ctx is cancelled, resubscribing with exponential backoff
// whenever the subscription drops.
func (w *MirrorWorker) Run(ctx context.Context) error {
	attempt := 0
	for {
		delivered := false
		handler := func(ctx context.Context, msg *amqp.ExpensesRecordedMessage) error {
			delivered = true
			return w.HandleExpensesRecorded(ctx, msg)
		}

		err := w.consumer.ConsumeExpensesRecorded(ctx, handler)
		if ctx.Err() != nil {
			slog.InfoContext(ctx, "Mirror worker stopped")
			return nil
		}
		if delivered {
			attempt = 0
		}

		wait := w.backoff(attempt)
		slog.ErrorContext(ctx, "Message consumption failed, retrying",
			log.FieldComponent, log.ComponentWorker,
			log.FieldError, err,
			"attempt", attempt+1,
			"retry_in", wait)

		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Mirror worker stopped")
			return nil
		case <-time.After(wait):
		}
		attempt++
	}
}
