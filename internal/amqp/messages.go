package amqp

import (
	"encoding/json"
	"time"

	"ledger/internal/core"
)

// RecordedExpense is the wire form of a stored expense. ID is zero for rows
// written by a bulk insert, whose ids are not reported back.
type RecordedExpense struct {
	ID          int64   `json:"id,omitempty"`
	Date        string  `json:"date"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	Subcategory string  `json:"subcategory,omitempty"`
	Note        string  `json:"note,omitempty"`
}

// ExpensesRecordedMessage announces expenses that were committed to the ledger.
// It carries the full records so consumers never need to read the database.
type ExpensesRecordedMessage struct {
	Operation string            `json:"operation"`
	Expenses  []RecordedExpense `json:"expenses"`
	Timestamp time.Time         `json:"timestamp"`
}

func NewExpensesRecordedMessage(op string, expenses []core.Expense) *ExpensesRecordedMessage {
	recorded := make([]RecordedExpense, 0, len(expenses))
	for _, e := range expenses {
		recorded = append(recorded, RecordedExpense{
			ID:          e.ID,
			Date:        e.Date,
			Amount:      e.Amount,
			Category:    e.Category,
			Subcategory: e.Subcategory,
			Note:        e.Note,
		})
	}
	return &ExpensesRecordedMessage{
		Operation: op,
		Expenses:  recorded,
		Timestamp: time.Now(),
	}
}

// CoreExpenses converts the payload back to domain expenses.
func (m *ExpensesRecordedMessage) CoreExpenses() []core.Expense {
	out := make([]core.Expense, 0, len(m.Expenses))
	for _, r := range m.Expenses {
		out = append(out, core.Expense{
			ID:          r.ID,
			Date:        r.Date,
			Amount:      r.Amount,
			Category:    r.Category,
			Subcategory: r.Subcategory,
			Note:        r.Note,
		})
	}
	return out
}

// ToJSON converts the message to JSON bytes
func (m *ExpensesRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ExpensesRecordedMessageFromJSON(data []byte) (*ExpensesRecordedMessage, error) {
	var msg ExpensesRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
