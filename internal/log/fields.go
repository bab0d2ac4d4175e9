package log

// Common field names for structured logging.
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldError         = "error"
	FieldOwnerID       = "owner_id"
	FieldTransactionID = "transaction_id"
	FieldRecurrenceID  = "recurrence_id"
	FieldRecordCount   = "record_count"
	FieldYear          = "year"
	FieldMonth         = "month"
	FieldEventType     = "event_type"
)

// Standard component names.
const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentEngine  = "engine"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
)
