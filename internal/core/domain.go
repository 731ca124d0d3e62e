package core

import "math"

// Operation names, shared by errors, logs and the tool gateway.
const (
	OpAddExpense      = "add_expense"
	OpAddExpensesBulk = "add_expenses_bulk"
	OpListExpenses    = "list_expenses"
	OpSummarize       = "summarize"
	OpGetExpense      = "get_expense"
	OpInitialize      = "initialize"
	OpReadCategories  = "read_categories"
	OpPublishRecorded = "publish_recorded"
	OpMirrorExpenses  = "mirror_expenses"
)

type (
	// Expense is a single ledger entry. Date is kept as the caller supplied it;
	// range filters compare it lexicographically, so callers should use YYYY-MM-DD.
	Expense struct {
		ID          int64
		Date        string
		Amount      float64
		Category    string
		Subcategory string
		Note        string
	}

	// ExpenseInput is a partial expense as accepted by the insert operations.
	// Required fields are pointers so that "absent" can be told apart from a zero value.
	ExpenseInput struct {
		Date        *string
		Amount      *float64
		Category    *string
		Subcategory string
		Note        string
	}

	// CategoryTotal is one row of a summary.
	CategoryTotal struct {
		Category string
		Total    float64
	}

	// DateRange holds optional inclusive bounds. The filter applies only when
	// both bounds are present; an empty string is a present bound.
	DateRange struct {
		Start *string
		End   *string
	}
)

// NewExpenseInput builds an input with every required field present.
func NewExpenseInput(date string, amount float64, category, subcategory, note string) ExpenseInput {
	return ExpenseInput{
		Date:        &date,
		Amount:      &amount,
		Category:    &category,
		Subcategory: subcategory,
		Note:        note,
	}
}

// Validate checks that the required fields are present.
func (in ExpenseInput) Validate() error {
	return in.validate("", -1)
}

func (in ExpenseInput) validate(op string, index int) error {
	fail := func(field string, err error) error {
		return &ValidationError{Op: op, Field: field, Index: index, Err: err}
	}
	if in.Date == nil {
		return fail("date", ErrMissingDate)
	}
	if in.Amount == nil {
		return fail("amount", ErrMissingAmount)
	}
	if math.IsNaN(*in.Amount) || math.IsInf(*in.Amount, 0) {
		return fail("amount", ErrInvalidAmount)
	}
	if in.Category == nil {
		return fail("category", ErrMissingCategory)
	}
	if *in.Category == "" {
		return fail("category", ErrEmptyCategory)
	}
	return nil
}

// Expense materialises the input. Absent fields become zero values, so it
// should only be called on validated input.
func (in ExpenseInput) Expense() Expense {
	e := Expense{
		Subcategory: in.Subcategory,
		Note:        in.Note,
	}
	if in.Date != nil {
		e.Date = *in.Date
	}
	if in.Amount != nil {
		e.Amount = *in.Amount
	}
	if in.Category != nil {
		e.Category = *in.Category
	}
	return e
}

// ValidateInput validates a single-record insert on behalf of op.
func ValidateInput(op string, in ExpenseInput) error {
	return in.validate(op, -1)
}

// ValidateBatch validates every element of a bulk insert and reports the first
// failing element with its position.
func ValidateBatch(op string, batch []ExpenseInput) error {
	for i, in := range batch {
		if err := in.validate(op, i); err != nil {
			return err
		}
	}
	return nil
}

// NewDateRange returns a range with both bounds present.
func NewDateRange(start, end string) DateRange {
	return DateRange{Start: &start, End: &end}
}

// Bounded reports whether the range filters anything.
func (r DateRange) Bounded() bool {
	return r.Start != nil && r.End != nil
}

// Contains applies the same inclusive lexicographic comparison the store uses.
func (r DateRange) Contains(date string) bool {
	if !r.Bounded() {
		return true
	}
	return *r.Start <= date && date <= *r.End
}
