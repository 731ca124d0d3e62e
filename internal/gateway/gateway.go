// Package gateway exposes the ledger to tool-calling clients over the Model
// Context Protocol.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/storage"
)

const (
	ServerName    = "ExpenseTracker"
	ServerVersion = "1.0.0"
)

type (
	// Ledger is the set of operations the gateway publishes as tools.
	Ledger interface {
		AddExpense(ctx context.Context, in core.ExpenseInput) (int64, error)
		AddExpensesBulk(ctx context.Context, batch []core.ExpenseInput) (int, error)
		ListExpenses(ctx context.Context, r core.DateRange) ([]core.Expense, error)
		Summarize(ctx context.Context, start, end string, category *string) ([]core.CategoryTotal, error)
	}

	// CategoryReader returns the category document served as a resource.
	CategoryReader interface {
		Read(ctx context.Context) ([]byte, error)
	}
)

// Server owns the MCP server and the ledger it dispatches to.
type Server struct {
	mcp        *mcp.Server
	ledger     Ledger
	categories CategoryReader
	logger     *log.Logger
}

// NewServer registers every tool and resource on a fresh MCP server.
func NewServer(ledger Ledger, categories CategoryReader, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		}, nil),
		ledger:     ledger,
		categories: categories,
		logger:     logger.WithComponent(log.ComponentGateway),
	}

	mcp.AddTool(s.mcp, AddExpenseTool(), withLogging(s.logger, core.OpAddExpense, s.addExpenseHandler()))
	mcp.AddTool(s.mcp, ListExpensesTool(), withLogging(s.logger, core.OpListExpenses, s.listExpensesHandler()))
	mcp.AddTool(s.mcp, AddExpensesBulkTool(), withLogging(s.logger, core.OpAddExpensesBulk, s.addExpensesBulkHandler()))
	mcp.AddTool(s.mcp, SummarizeTool(), withLogging(s.logger, core.OpSummarize, s.summarizeHandler()))

	s.mcp.AddResource(CategoriesResource(), s.categoriesHandler())

	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// withLogging records the outcome and latency of every tool call.
func withLogging[In, Out any](logger *log.Logger, tool string, next mcp.ToolHandlerFor[In, Out]) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input In) (*mcp.CallToolResult, Out, error) {
		start := time.Now()
		result, output, err := next(ctx, req, input)

		fields := log.NewFields().
			With(log.FieldTool, tool).
			WithDuration(time.Since(start).Milliseconds()).
			With(log.FieldSuccess, err == nil)
		if req != nil && req.Session != nil {
			fields.With(log.FieldSessionID, req.Session.ID())
		}

		if err != nil {
			fields.WithError(err).WithErrorType(errorType(err))
			if core.IsValidationError(err) {
				logger.WarnContext(ctx, "Tool call rejected", fields.ToSlice()...)
			} else {
				logger.ErrorContext(ctx, "Tool call failed", fields.ToSlice()...)
			}
			return result, output, err
		}

		logger.InfoContext(ctx, "Tool call completed", fields.ToSlice()...)
		return result, output, nil
	}
}

func errorType(err error) string {
	switch {
	case core.IsValidationError(err):
		return log.ErrorTypeValidation
	case errors.Is(err, storage.ErrNotFound):
		return log.ErrorTypeNotFound
	case storage.IsStorageError(err):
		return log.ErrorTypeDatabase
	default:
		return log.ErrorTypeInternal
	}
}
