package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"golang.org/x/sync/errgroup"

	"ledger/internal/core"
	"ledger/internal/log"
)

func openTestStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "expenses.db")
	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func mustAdd(t *testing.T, s *SQLiteStore, in core.ExpenseInput) int64 {
	t.Helper()
	id, err := s.Add(context.Background(), in)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	return id
}

func strPtr(s string) *string { return &s }

// seedScenario inserts the three expenses used throughout the ledger examples.
func seedScenario(t *testing.T, s *SQLiteStore) {
	t.Helper()
	mustAdd(t, s, core.NewExpenseInput("2024-01-01", 10.0, "food", "", ""))
	mustAdd(t, s, core.NewExpenseInput("2024-01-02", 5.0, "food", "", ""))
	mustAdd(t, s, core.NewExpenseInput("2024-02-01", 20.0, "transport", "", ""))
}

func TestOpenIsIdempotent(t *testing.T) {
	s, path := openTestStore(t)
	mustAdd(t, s, core.NewExpenseInput("2024-01-01", 1, "food", "", ""))
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	for i := 0; i < 2; i++ {
		again, err := Open(context.Background(), path)
		if err != nil {
			t.Fatalf("reopen %d: %v", i, err)
		}
		got, err := again.ListExpenses(context.Background(), core.DateRange{})
		again.Close()
		if err != nil {
			t.Fatalf("list after reopen: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("reopen %d: expected 1 expense, got %d", i, len(got))
		}
	}
}

func TestOpenAdoptsExistingTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "expenses.db")

	// A database created without migration bookkeeping, with a NULL note.
	raw, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw: %v", err)
	}
	_, err = raw.Exec(`CREATE TABLE expenses(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL,
		amount REAL NOT NULL,
		category TEXT NOT NULL,
		subcategory TEXT DEFAULT '',
		note TEXT DEFAULT ''
	)`)
	if err != nil {
		t.Fatalf("create legacy table: %v", err)
	}
	if _, err := raw.Exec(`INSERT INTO expenses(date, amount, category, subcategory, note) VALUES('2023-12-31', 3.5, 'coffee', NULL, NULL)`); err != nil {
		t.Fatalf("seed legacy row: %v", err)
	}
	raw.Close()

	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open over legacy database: %v", err)
	}
	defer s.Close()

	id := mustAdd(t, s, core.NewExpenseInput("2024-01-01", 2, "food", "", ""))
	if id != 2 {
		t.Fatalf("expected id 2 after legacy row, got %d", id)
	}
	got, err := s.ListExpenses(context.Background(), core.DateRange{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].Category != "coffee" || got[0].Note != "" {
		t.Fatalf("unexpected rows: %+v", got)
	}
}

func TestAddRoundTrip(t *testing.T) {
	s, _ := openTestStore(t)
	id := mustAdd(t, s, core.NewExpenseInput("2024-05-06", -12.75, "shopping", "clothing", "returned jacket"))

	got, err := s.ListExpenses(context.Background(), core.DateRange{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := core.Expense{ID: id, Date: "2024-05-06", Amount: -12.75, Category: "shopping", Subcategory: "clothing", Note: "returned jacket"}
	if len(got) != 1 || got[0] != want {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
	}

	one, err := s.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if one != want {
		t.Fatalf("get mismatch: got %+v, want %+v", one, want)
	}
}

func TestAddStoresCategoryVerbatim(t *testing.T) {
	s, _ := openTestStore(t)
	id := mustAdd(t, s, core.NewExpenseInput("2024-05-06", 1, " ", "", ""))

	got, err := s.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Category != " " {
		t.Fatalf("category = %q, want a single space", got.Category)
	}
}

func TestAddLogsExpenseFields(t *testing.T) {
	s, _ := openTestStore(t)

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	id := mustAdd(t, s, core.NewExpenseInput("2024-03-04", 9.5, "food", "", ""))

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("decode log record %q: %v", buf.String(), err)
	}
	checks := map[string]any{
		log.FieldComponent: log.ComponentStorage,
		log.FieldExpenseID: float64(id),
		log.FieldDate:      "2024-03-04",
		log.FieldAmount:    9.5,
		log.FieldCategory:  "food",
	}
	for k, want := range checks {
		if rec[k] != want {
			t.Errorf("%s = %v, want %v", k, rec[k], want)
		}
	}
}

func TestAddDefaultsOptionalFields(t *testing.T) {
	s, _ := openTestStore(t)
	date, amount, category := "2024-01-01", 4.0, "food"
	id := mustAdd(t, s, core.ExpenseInput{Date: &date, Amount: &amount, Category: &category})

	e, err := s.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if e.Subcategory != "" || e.Note != "" {
		t.Fatalf("expected empty optional fields, got %+v", e)
	}
}

func TestAddValidation(t *testing.T) {
	s, _ := openTestStore(t)
	amount := 3.0
	_, err := s.Add(context.Background(), core.ExpenseInput{Date: strPtr("2024-01-01"), Amount: &amount})
	if !errors.Is(err, core.ErrMissingCategory) {
		t.Fatalf("expected missing category, got %v", err)
	}
	if IsStorageError(err) {
		t.Fatal("validation failures must not be reported as storage errors")
	}

	got, _ := s.ListExpenses(context.Background(), core.DateRange{})
	if len(got) != 0 {
		t.Fatalf("rejected input must not be stored, got %d rows", len(got))
	}
}

func TestMonotonicIDs(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	first := mustAdd(t, s, core.NewExpenseInput("2024-03-01", 1, "a", "", ""))
	n, err := s.AddBulk(ctx, []core.ExpenseInput{
		core.NewExpenseInput("2024-01-01", 2, "b", "", ""),
		core.NewExpenseInput("2023-01-01", 3, "c", "", ""),
	})
	if err != nil || n != 2 {
		t.Fatalf("bulk: n=%d err=%v", n, err)
	}
	last := mustAdd(t, s, core.NewExpenseInput("2022-01-01", 4, "d", "", ""))

	got, err := s.ListExpenses(ctx, core.DateRange{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(got))
	}
	if got[0].ID != first || got[3].ID != last {
		t.Fatalf("unexpected ids: first=%d last=%d rows=%+v", first, last, got)
	}
	for i := 1; i < len(got); i++ {
		if got[i].ID <= got[i-1].ID {
			t.Fatalf("ids not strictly increasing: %+v", got)
		}
	}
	// Bulk preserves input order.
	if got[1].Category != "b" || got[2].Category != "c" {
		t.Fatalf("bulk order not preserved: %+v", got)
	}
}

func TestListExpensesRange(t *testing.T) {
	s, _ := openTestStore(t)
	seedScenario(t, s)
	ctx := context.Background()

	january, err := s.ListExpenses(ctx, core.NewDateRange("2024-01-01", "2024-01-31"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(january) != 2 {
		t.Fatalf("expected 2 january expenses, got %+v", january)
	}
	if january[0].ID >= january[1].ID || january[0].Category != "food" || january[1].Category != "food" {
		t.Fatalf("unexpected january rows: %+v", january)
	}

	tests := []struct {
		name string
		r    core.DateRange
		want int
	}{
		{"no bounds", core.DateRange{}, 3},
		{"start only", core.DateRange{Start: strPtr("2024-02-01")}, 3},
		{"end only", core.DateRange{End: strPtr("2023-01-01")}, 3},
		{"inclusive single day", core.NewDateRange("2024-02-01", "2024-02-01"), 1},
		{"empty window", core.NewDateRange("2025-01-01", "2025-12-31"), 0},
		{"inverted window", core.NewDateRange("2024-12-31", "2024-01-01"), 0},
		{"empty string bounds", core.NewDateRange("", ""), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListExpenses(ctx, tt.r)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if got == nil {
				t.Fatal("expected empty slice, got nil")
			}
			if len(got) != tt.want {
				t.Fatalf("expected %d rows, got %d", tt.want, len(got))
			}
			for _, e := range got {
				if !tt.r.Contains(e.Date) {
					t.Errorf("row %+v outside range", e)
				}
			}
		})
	}
}

func TestListExpensesComparesLexicographically(t *testing.T) {
	s, _ := openTestStore(t)
	mustAdd(t, s, core.NewExpenseInput("2024-1-5", 1, "odd", "", ""))
	mustAdd(t, s, core.NewExpenseInput("2024-01-05", 1, "even", "", ""))

	// "2024-1-5" sorts after "2024-01-31", so it falls outside January.
	got, err := s.ListExpenses(context.Background(), core.NewDateRange("2024-01-01", "2024-01-31"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Category != "even" {
		t.Fatalf("unexpected rows: %+v", got)
	}
}

func TestSummarize(t *testing.T) {
	s, _ := openTestStore(t)
	seedScenario(t, s)
	ctx := context.Background()

	got, err := s.Summarize(ctx, "2024-01-01", "2024-02-28", nil)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	want := []core.CategoryTotal{{Category: "food", Total: 15.0}, {Category: "transport", Total: 20.0}}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	t.Run("category filter", func(t *testing.T) {
		got, err := s.Summarize(ctx, "2024-01-01", "2024-12-31", strPtr("transport"))
		if err != nil {
			t.Fatalf("summarize: %v", err)
		}
		if len(got) != 1 || got[0] != (core.CategoryTotal{Category: "transport", Total: 20}) {
			t.Fatalf("unexpected totals: %+v", got)
		}
	})

	t.Run("absent categories omitted", func(t *testing.T) {
		got, err := s.Summarize(ctx, "2024-01-01", "2024-01-31", nil)
		if err != nil {
			t.Fatalf("summarize: %v", err)
		}
		if len(got) != 1 || got[0].Category != "food" {
			t.Fatalf("unexpected totals: %+v", got)
		}
	})

	t.Run("no matches", func(t *testing.T) {
		got, err := s.Summarize(ctx, "2030-01-01", "2030-12-31", nil)
		if err != nil {
			t.Fatalf("summarize: %v", err)
		}
		if got == nil || len(got) != 0 {
			t.Fatalf("expected empty non-nil result, got %#v", got)
		}
	})

	t.Run("unknown category", func(t *testing.T) {
		got, err := s.Summarize(ctx, "2024-01-01", "2024-12-31", strPtr("travel"))
		if err != nil {
			t.Fatalf("summarize: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("expected no totals, got %+v", got)
		}
	})

	t.Run("empty category filters rather than widens", func(t *testing.T) {
		got, err := s.Summarize(ctx, "2024-01-01", "2024-12-31", strPtr(""))
		if err != nil {
			t.Fatalf("summarize: %v", err)
		}
		if got == nil || len(got) != 0 {
			t.Fatalf("expected empty non-nil result, got %#v", got)
		}
	})
}

func TestSummarizeOrdersByCategoryAndKeepsSigns(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	_, err := s.AddBulk(ctx, []core.ExpenseInput{
		core.NewExpenseInput("2024-01-03", 8, "zoo", "", ""),
		core.NewExpenseInput("2024-01-03", 4, "Zebra", "", ""),
		core.NewExpenseInput("2024-01-04", 2.5, "alpha", "", ""),
		core.NewExpenseInput("2024-01-05", -2.5, "alpha", "", "refund"),
		core.NewExpenseInput("2024-01-05", 1.25, "zoo", "", ""),
	})
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}

	got, err := s.Summarize(ctx, "2024-01-01", "2024-01-31", nil)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	// Byte order: upper case sorts before lower case.
	want := []core.CategoryTotal{
		{Category: "Zebra", Total: 4},
		{Category: "alpha", Total: 0},
		{Category: "zoo", Total: 9.25},
	}
	if len(got) != len(want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestAddBulkRejectsWholeBatch(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	mustAdd(t, s, core.NewExpenseInput("2024-01-01", 1, "before", "", ""))

	amount := 9.0
	n, err := s.AddBulk(ctx, []core.ExpenseInput{
		core.NewExpenseInput("2024-01-02", 2, "ok", "", ""),
		core.NewExpenseInput("2024-01-03", 3, "ok", "", ""),
		{Date: strPtr("2024-01-04"), Amount: &amount},
	})
	if n != 0 {
		t.Fatalf("expected count 0 on failure, got %d", n)
	}
	var verr *core.ValidationError
	if !errors.As(err, &verr) || verr.Index != 2 || verr.Field != "category" {
		t.Fatalf("expected validation error on element 2, got %v", err)
	}

	got, err := s.ListExpenses(ctx, core.DateRange{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("no element of a rejected batch may be stored, got %+v", got)
	}
}

func TestAddBulkRollsBackWhenAnInsertFails(t *testing.T) {
	s, path := openTestStore(t)

	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		t.Fatalf("open second handle: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(`CREATE TRIGGER boom BEFORE INSERT ON expenses
		WHEN NEW.category = 'boom'
		BEGIN SELECT RAISE(ABORT, 'boom'); END`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	_, err = s.AddBulk(context.Background(), []core.ExpenseInput{
		core.NewExpenseInput("2024-01-02", 2, "food", "", ""),
		core.NewExpenseInput("2024-01-03", 3, "boom", "", ""),
	})
	if !IsStorageError(err) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if !strings.Contains(err.Error(), "expenses[1]") {
		t.Fatalf("error does not name the failing element: %v", err)
	}

	got, err := s.ListExpenses(context.Background(), core.DateRange{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected the first row to be rolled back, got %+v", got)
	}
}

func TestAddBulkCanceledContextWritesNothing(t *testing.T) {
	s, _ := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.AddBulk(ctx, []core.ExpenseInput{
		core.NewExpenseInput("2024-01-02", 2, "a", "", ""),
		core.NewExpenseInput("2024-01-03", 3, "b", "", ""),
	})
	if !IsStorageError(err) {
		t.Fatalf("expected storage error, got %v", err)
	}

	got, err := s.ListExpenses(context.Background(), core.DateRange{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected nothing stored, got %+v", got)
	}
}

func TestAddBulkEmpty(t *testing.T) {
	s, _ := openTestStore(t)
	n, err := s.AddBulk(context.Background(), nil)
	if err != nil || n != 0 {
		t.Fatalf("empty bulk: n=%d err=%v", n, err)
	}
}

func TestGetNotFound(t *testing.T) {
	s, _ := openTestStore(t)
	_, err := s.Get(context.Background(), 42)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !IsStorageError(err) {
		t.Fatalf("expected storage error wrapper, got %T", err)
	}
}

func TestConcurrentWritersGetUniqueIDs(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	const (
		writers   = 8
		perWriter = 10
	)

	var (
		mu  sync.Mutex
		ids = make(map[int64]struct{})
	)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < writers; w++ {
		g.Go(func() error {
			for i := 0; i < perWriter; i++ {
				id, err := s.Add(gctx, core.NewExpenseInput("2024-06-01", 1, "load", "", ""))
				if err != nil {
					return err
				}
				mu.Lock()
				ids[id] = struct{}{}
				mu.Unlock()
			}
			return nil
		})
		g.Go(func() error {
			_, err := s.Summarize(gctx, "2024-01-01", "2024-12-31", nil)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent writes: %v", err)
	}

	if len(ids) != writers*perWriter {
		t.Fatalf("expected %d unique ids, got %d", writers*perWriter, len(ids))
	}

	got, err := s.ListExpenses(ctx, core.DateRange{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != writers*perWriter {
		t.Fatalf("expected %d rows, got %d", writers*perWriter, len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].ID <= got[i-1].ID {
			t.Fatalf("rows not in ascending id order at %d", i)
		}
	}

	totals, err := s.Summarize(ctx, "2024-06-01", "2024-06-01", nil)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if len(totals) != 1 || totals[0].Total != float64(writers*perWriter) {
		t.Fatalf("unexpected totals: %+v", totals)
	}
}
