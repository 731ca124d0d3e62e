package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"ledger/internal/core"
	"ledger/internal/log"

	_ "modernc.org/sqlite"
)

const (
	insertExpenseSQL = `INSERT INTO expenses(date, amount, category, subcategory, note) VALUES(?, ?, ?, ?, ?)`

	selectExpensesSQL = `SELECT id, date, amount, category, subcategory, note FROM expenses`

	summarizeSQL = `SELECT category, SUM(amount) AS total_amount FROM expenses WHERE date BETWEEN ? AND ?`
)

// SQLiteStore is the ledger. It owns the expenses table; nothing else reads
// or writes it directly.
//
// Writers are serialized by SQLite itself: the connection string asks for WAL
// journaling, a busy timeout and immediate write transactions, so concurrent
// inserts queue on the database write lock and ids stay strictly increasing.
// Readers do not block each other and see the data committed when their
// statement started.
type SQLiteStore struct {
	db *sql.DB
}

// DSN builds the connection string used for both the store and its migrations.
func DSN(path string) string {
	return filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_txlock=immediate"
}

// Open initializes the ledger at path: it creates the parent directory, opens
// the database and makes sure the schema exists. Calling it again on the same
// path is harmless.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, storageErr(core.OpInitialize, fmt.Errorf("create db directory: %w", err))
	}

	dsn := DSN(path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storageErr(core.OpInitialize, fmt.Errorf("open sqlite database: %w", err))
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, storageErr(core.OpInitialize, fmt.Errorf("ping database: %w", err))
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, storageErr(core.OpInitialize, err)
	}

	slog.InfoContext(ctx, "Ledger store ready",
		log.FieldComponent, log.ComponentStorage,
		"db_path", path)

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storageErr(core.OpInitialize, fmt.Errorf("ping database: %w", err))
	}
	return nil
}

// Add appends one expense and returns the id the engine assigned to it.
func (s *SQLiteStore) Add(ctx context.Context, in core.ExpenseInput) (int64, error) {
	if err := core.ValidateInput(core.OpAddExpense, in); err != nil {
		return 0, err
	}
	e := in.Expense()

	res, err := s.db.ExecContext(ctx, insertExpenseSQL, e.Date, e.Amount, e.Category, e.Subcategory, e.Note)
	if err != nil {
		return 0, storageErr(core.OpAddExpense, fmt.Errorf("insert expense: %w", err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr(core.OpAddExpense, fmt.Errorf("read assigned id: %w", err))
	}

	slog.InfoContext(ctx, "Expense saved to SQLite", log.NewFields().
		With(log.FieldComponent, log.ComponentStorage).
		With(log.FieldExpenseID, id).
		WithExpense(e.Date, e.Amount, e.Category).
		ToSlice()...)

	return id, nil
}

// AddBulk appends every element of batch in order inside a single transaction.
// The whole batch is validated before anything is written; either all rows are
// committed or none are.
func (s *SQLiteStore) AddBulk(ctx context.Context, batch []core.ExpenseInput) (int, error) {
	if err := core.ValidateBatch(core.OpAddExpensesBulk, batch); err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageErr(core.OpAddExpensesBulk, fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertExpenseSQL)
	if err != nil {
		return 0, storageErr(core.OpAddExpensesBulk, fmt.Errorf("prepare insert: %w", err))
	}
	defer stmt.Close()

	for i, in := range batch {
		e := in.Expense()
		if _, err := stmt.ExecContext(ctx, e.Date, e.Amount, e.Category, e.Subcategory, e.Note); err != nil {
			return 0, storageErr(core.OpAddExpensesBulk, fmt.Errorf("insert expenses[%d]: %w", i, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, storageErr(core.OpAddExpensesBulk, fmt.Errorf("commit: %w", err))
	}

	slog.InfoContext(ctx, "Expense batch saved to SQLite",
		log.FieldComponent, log.ComponentStorage,
		log.FieldCount, len(batch))

	return len(batch), nil
}

// ListExpenses returns expenses in insertion order. When r is bounded only the
// expenses whose date falls inside [start, end] are returned.
func (s *SQLiteStore) ListExpenses(ctx context.Context, r core.DateRange) ([]core.Expense, error) {
	query := selectExpensesSQL
	var args []any
	if r.Bounded() {
		query += ` WHERE date BETWEEN ? AND ?`
		args = append(args, *r.Start, *r.End)
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(core.OpListExpenses, fmt.Errorf("query expenses: %w", err))
	}
	defer rows.Close()

	expenses := make([]core.Expense, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, storageErr(core.OpListExpenses, err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(core.OpListExpenses, fmt.Errorf("iterate expenses: %w", err))
	}

	fields := log.NewFields().
		With(log.FieldComponent, log.ComponentStorage).
		With(log.FieldCount, len(expenses))
	if r.Bounded() {
		fields.WithRange(*r.Start, *r.End)
	}
	slog.DebugContext(ctx, "Expenses listed", fields.ToSlice()...)

	return expenses, nil
}

// Summarize sums amounts per category over the inclusive date range, optionally
// restricted to a single category. Rows are ordered by category name and
// categories without matching expenses are omitted.
func (s *SQLiteStore) Summarize(ctx context.Context, start, end string, category *string) ([]core.CategoryTotal, error) {
	query := summarizeSQL
	args := []any{start, end}
	if category != nil {
		query += ` AND category = ?`
		args = append(args, *category)
	}
	query += ` GROUP BY category ORDER BY category ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(core.OpSummarize, fmt.Errorf("query totals: %w", err))
	}
	defer rows.Close()

	totals := make([]core.CategoryTotal, 0)
	for rows.Next() {
		var ct core.CategoryTotal
		if err := rows.Scan(&ct.Category, &ct.Total); err != nil {
			return nil, storageErr(core.OpSummarize, fmt.Errorf("scan total: %w", err))
		}
		totals = append(totals, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(core.OpSummarize, fmt.Errorf("iterate totals: %w", err))
	}

	fields := log.NewFields().
		With(log.FieldComponent, log.ComponentStorage).
		WithRange(start, end).
		With(log.FieldCount, len(totals))
	if category != nil {
		fields.With(log.FieldCategory, *category)
	}
	slog.DebugContext(ctx, "Expenses summarized", fields.ToSlice()...)

	return totals, nil
}

// Get returns a single expense by id.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (core.Expense, error) {
	row := s.db.QueryRowContext(ctx, selectExpensesSQL+` WHERE id = ?`, id)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, storageErr(core.OpGetExpense, fmt.Errorf("id %d: %w", id, ErrNotFound))
	}
	if err != nil {
		return core.Expense{}, storageErr(core.OpGetExpense, err)
	}
	return e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanExpense tolerates NULL subcategory/note, which older databases may hold.
func scanExpense(sc scanner) (core.Expense, error) {
	var (
		e           core.Expense
		subcategory sql.NullString
		note        sql.NullString
	)
	if err := sc.Scan(&e.ID, &e.Date, &e.Amount, &e.Category, &subcategory, &note); err != nil {
		return e, fmt.Errorf("scan expense: %w", err)
	}
	e.Subcategory = subcategory.String
	e.Note = note.String
	return e, nil
}
