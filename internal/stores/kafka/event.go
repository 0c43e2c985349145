package kafka

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event names, sent as the "event" record header and in the envelope.
const (
	EventOrderCreated       = `order.created`
	EventOrderStatusChanged = `order.status-changed`
	EventBulkOrderUpdated   = `bulk-order.updated`
)

// Envelope wraps every record value published by the service.
type Envelope struct {
	Event      string    `json:"event"`
	TraceID    string    `json:"trace_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

type OrderCreated struct {
	OrderID       string          `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	UserID        string          `json:"user_id,omitempty"`
	Email         string          `json:"email"`
	Total         decimal.Decimal `json:"total"`
	Currency      string          `json:"currency"`
	PaymentMethod string          `json:"payment_method"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
}

// OrderStatusChanged records one status update and whether its side effects happened, so a
// consumer can reconcile updates whose email was never delivered.
type OrderStatusChanged struct {
	OrderID           string `json:"order_id"`
	OrderNumber       string `json:"order_number"`
	PreviousStatus    string `json:"previous_status"`
	Status            string `json:"status"`
	PreviousPayment   string `json:"previous_payment_status"`
	PaymentStatus     string `json:"payment_status"`
	TrackingNumber    string `json:"tracking_number,omitempty"`
	EmailRequested    bool   `json:"email_requested"`
	EmailSent         bool   `json:"email_sent"`
	BroadcastDelivery int    `json:"broadcast_delivery"`
	ChangedBy         string `json:"changed_by"`
}

type BulkOrderUpdated struct {
	RequestID   string `json:"request_id"`
	CompanyName string `json:"company_name"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	Created     bool   `json:"created"`
}
