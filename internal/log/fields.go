package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldSessionID  = "session_id"
	FieldClientIP   = "client_ip"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldSuccess    = "success"
	FieldError      = "error"
	FieldErrorType  = "error_type"
	FieldOperation  = "operation"
	FieldTool       = "tool"
	FieldExpenseID  = "id"
	FieldDate       = "date"
	FieldAmount     = "amount"
	FieldCategory   = "category"
	FieldCount      = "count"
	FieldStartDate  = "start_date"
	FieldEndDate    = "end_date"
	FieldSheetsRef  = "sheets_ref"
	FieldTransport  = "transport"
)

// Components
const (
	ComponentApp       = "app"
	ComponentGateway   = "gateway"
	ComponentHTTP      = "http"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
	ComponentTaxonomy  = "taxonomy"
	ComponentSecurity  = "security"
	ComponentRateLimit = "rate_limit"
)

// Error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeNotFound      = "not_found_error"
	ErrorTypeInternal      = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	if requestID != "" {
		f[FieldRequestID] = requestID
	}
	return f
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithErrorType(errorType string) LogFields {
	f[FieldErrorType] = errorType
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

func (f LogFields) WithDuration(ms int64) LogFields {
	f[FieldDuration] = ms
	return f
}

// WithExpense adds the identifying fields of one expense.
func (f LogFields) WithExpense(date string, amount float64, category string) LogFields {
	f[FieldDate] = date
	f[FieldAmount] = amount
	f[FieldCategory] = category
	return f
}

func (f LogFields) WithRange(start, end string) LogFields {
	f[FieldStartDate] = start
	f[FieldEndDate] = end
	return f
}

func (f LogFields) With(key string, value any) LogFields {
	f[key] = value
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
