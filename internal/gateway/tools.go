package gateway

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"ledger/internal/core"
)

const statusOK = "ok"

// ExpenseInput is one expense as supplied by a tool client.
type ExpenseInput struct {
	Date        string  `json:"date" jsonschema:"expense date, YYYY-MM-DD"`
	Amount      float64 `json:"amount" jsonschema:"amount spent; negative amounts are refunds"`
	Category    string  `json:"category" jsonschema:"top-level category"`
	Subcategory string  `json:"subcategory,omitempty" jsonschema:"optional subcategory"`
	Note        string  `json:"note,omitempty" jsonschema:"optional free-text note"`
}

// ExpenseRecord is a stored expense as returned to tool clients.
type ExpenseRecord struct {
	ID          int64   `json:"id" jsonschema:"ledger-assigned identifier"`
	Date        string  `json:"date" jsonschema:"expense date"`
	Amount      float64 `json:"amount" jsonschema:"amount"`
	Category    string  `json:"category" jsonschema:"category"`
	Subcategory string  `json:"subcategory" jsonschema:"subcategory, empty when not set"`
	Note        string  `json:"note" jsonschema:"note, empty when not set"`
}

// AddExpenseResult represents the MCP tool output for add_expense.
type AddExpenseResult struct {
	Status string `json:"status" jsonschema:"always ok"`
	ID     int64  `json:"id" jsonschema:"identifier assigned to the new expense"`
}

// ListExpensesInput represents the MCP tool input for list_expenses. The range
// applies only when both bounds are supplied.
type ListExpensesInput struct {
	StartDate *string `json:"start_date,omitempty" jsonschema:"inclusive lower date bound"`
	EndDate   *string `json:"end_date,omitempty" jsonschema:"inclusive upper date bound"`
}

// ListExpensesResult represents the MCP tool output for list_expenses.
type ListExpensesResult struct {
	Expenses []ExpenseRecord `json:"expenses" jsonschema:"expenses in insertion order"`
}

// AddExpensesBulkInput represents the MCP tool input for add_expenses_bulk.
type AddExpensesBulkInput struct {
	Expenses []ExpenseInput `json:"expenses" jsonschema:"expenses to insert atomically, in order"`
}

// AddExpensesBulkResult represents the MCP tool output for add_expenses_bulk.
type AddExpensesBulkResult struct {
	Status string `json:"status" jsonschema:"always ok"`
	Count  int    `json:"count" jsonschema:"number of expenses inserted"`
}

// SummarizeInput represents the MCP tool input for summarize.
type SummarizeInput struct {
	StartDate string  `json:"start_date" jsonschema:"inclusive lower date bound"`
	EndDate   string  `json:"end_date" jsonschema:"inclusive upper date bound"`
	Category  *string `json:"category,omitempty" jsonschema:"restrict the summary to this category"`
}

// CategoryTotal is one summary row.
type CategoryTotal struct {
	Category    string  `json:"category" jsonschema:"category name"`
	TotalAmount float64 `json:"total_amount" jsonschema:"sum of amounts in the range"`
}

// SummarizeResult represents the MCP tool output for summarize.
type SummarizeResult struct {
	Totals []CategoryTotal `json:"totals" jsonschema:"per-category totals ordered by category"`
}

// AddExpenseTool defines the MCP tool schema for recording one expense.
func AddExpenseTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        core.OpAddExpense,
		Description: "Add a new expense entry to the database",
	}
}

// ListExpensesTool defines the MCP tool schema for listing expenses.
func ListExpensesTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        core.OpListExpenses,
		Description: "List expense entries, optionally within an inclusive date range",
	}
}

// AddExpensesBulkTool defines the MCP tool schema for atomic batch inserts.
func AddExpensesBulkTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        core.OpAddExpensesBulk,
		Description: "Add several expenses at once; either all are stored or none",
	}
}

// SummarizeTool defines the MCP tool schema for per-category totals.
func SummarizeTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        core.OpSummarize,
		Description: "Summarize expenses by category within an inclusive date range",
	}
}

func (in ExpenseInput) toCore() core.ExpenseInput {
	return core.NewExpenseInput(in.Date, in.Amount, in.Category, in.Subcategory, in.Note)
}

func (s *Server) addExpenseHandler() mcp.ToolHandlerFor[ExpenseInput, AddExpenseResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ExpenseInput) (*mcp.CallToolResult, AddExpenseResult, error) {
		id, err := s.ledger.AddExpense(ctx, input.toCore())
		if err != nil {
			return nil, AddExpenseResult{}, err
		}
		return nil, AddExpenseResult{Status: statusOK, ID: id}, nil
	}
}

func (s *Server) listExpensesHandler() mcp.ToolHandlerFor[ListExpensesInput, ListExpensesResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ListExpensesInput) (*mcp.CallToolResult, ListExpensesResult, error) {
		expenses, err := s.ledger.ListExpenses(ctx, core.DateRange{Start: input.StartDate, End: input.EndDate})
		if err != nil {
			return nil, ListExpensesResult{}, err
		}

		result := ListExpensesResult{Expenses: make([]ExpenseRecord, 0, len(expenses))}
		for _, e := range expenses {
			result.Expenses = append(result.Expenses, ExpenseRecord{
				ID:          e.ID,
				Date:        e.Date,
				Amount:      e.Amount,
				Category:    e.Category,
				Subcategory: e.Subcategory,
				Note:        e.Note,
			})
		}
		return nil, result, nil
	}
}

func (s *Server) addExpensesBulkHandler() mcp.ToolHandlerFor[AddExpensesBulkInput, AddExpensesBulkResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input AddExpensesBulkInput) (*mcp.CallToolResult, AddExpensesBulkResult, error) {
		batch := make([]core.ExpenseInput, 0, len(input.Expenses))
		for _, e := range input.Expenses {
			batch = append(batch, e.toCore())
		}

		n, err := s.ledger.AddExpensesBulk(ctx, batch)
		if err != nil {
			return nil, AddExpensesBulkResult{}, err
		}
		return nil, AddExpensesBulkResult{Status: statusOK, Count: n}, nil
	}
}

func (s *Server) summarizeHandler() mcp.ToolHandlerFor[SummarizeInput, SummarizeResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SummarizeInput) (*mcp.CallToolResult, SummarizeResult, error) {
		totals, err := s.ledger.Summarize(ctx, input.StartDate, input.EndDate, input.Category)
		if err != nil {
			return nil, SummarizeResult{}, err
		}

		result := SummarizeResult{Totals: make([]CategoryTotal, 0, len(totals))}
		for _, t := range totals {
			result.Totals = append(result.Totals, CategoryTotal{Category: t.Category, TotalAmount: t.Total})
		}
		return nil, result, nil
	}
}
