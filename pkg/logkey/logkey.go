package logkey

// Keys used as slog attribute names across the service.
const (
	TraceID = "TRACE ID"
	ERROR   = "ERROR"
	OrderID = "ORDER ID"
	UserID  = "USER ID"
)
