package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"ledger/internal/core"
	"ledger/internal/log"
	ports "ledger/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Header is the column layout of the mirror sheet. Appends span exactly
// these columns.
var Header = []string{"Date", "Amount", "Category", "Subcategory", "Note", "ID"}

type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

// Client appends ledger rows to a Google Sheet.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var _ ports.ExpenseAppender = (*Client)(nil)

// NewClient creates a Sheets client authenticated with a service account.
// Inline JSON credentials win over a credentials file; when neither is set
// GOOGLE_APPLICATION_CREDENTIALS is consulted.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	creds, err := loadCredentials(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return newClient(ctx, cfg,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
}

func newClient(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	sheetName := strings.TrimSpace(cfg.SheetName)
	if sheetName == "" {
		sheetName = "Expenses"
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created",
		"spreadsheet_id", spreadsheetID,
		"sheet", sheetName)

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

func loadCredentials(ctx context.Context, cfg Config) ([]byte, error) {
	inline := strings.TrimSpace(cfg.CredentialsJSON)
	file := strings.TrimSpace(cfg.CredentialsFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		return []byte(inline), nil
	case file != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", file)
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// AppendExpenses writes one row per expense below the last used row, in order,
// as a single API call.
func (c *Client) AppendExpenses(ctx context.Context, expenses []core.Expense) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if len(expenses) == 0 {
		return "", nil
	}

	rng := fmt.Sprintf("%s!A:%c", c.sheetName, 'A'+rune(len(Header)-1))
	vr := &gsheet.ValueRange{Values: rows(expenses)}

	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", c.sheetName, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}

	slog.InfoContext(ctx, "Expenses appended to sheet",
		log.FieldComponent, log.ComponentSheets,
		"sheet", c.sheetName,
		log.FieldCount, len(expenses),
		log.FieldSheetsRef, ref)

	return ref, nil
}

// rows lays expenses out in Header order. Bulk-inserted expenses carry no id
// and leave the ID cell blank.
func rows(expenses []core.Expense) [][]any {
	out := make([][]any, 0, len(expenses))
	for _, e := range expenses {
		var id any = ""
		if e.ID > 0 {
			id = e.ID
		}
		out = append(out, []any{e.Date, e.Amount, e.Category, e.Subcategory, e.Note, id})
	}
	return out
}
