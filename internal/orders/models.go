package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order represents an order entity in the database
type Order struct {
	ID               string          `json:"id"`                           // UUID generated at checkout
	OrderNumber      string          `json:"order_number"`                 // Human readable number shown to customers
	UserID           *string         `json:"user_id"`                      // Owner, nil for guest checkout
	ShippingAddress  Address         `json:"shipping_address"`             // Snapshot taken at checkout
	Subtotal         decimal.Decimal `json:"subtotal"`                     // Sum of item unit price * quantity
	Shipping         decimal.Decimal `json:"shipping"`                     // Shipping fee
	Tax              decimal.Decimal `json:"tax"`                          // Tax amount
	Total            decimal.Decimal `json:"total"`                        // Subtotal + Shipping + Tax, fixed at creation
	Currency         string          `json:"currency"`                     // ISO 4217 code
	Status           Status          `json:"status"`                       // Lifecycle status
	PaymentStatus    PaymentStatus   `json:"payment_status"`               // Payment status
	PaymentMethod    PaymentMethod   `json:"payment_method"`               // cod or online
	GatewayOrderID   string          `json:"gateway_order_id,omitempty"`   // Payment gateway order/intent id
	GatewayPaymentID string          `json:"gateway_payment_id,omitempty"` // Payment gateway payment id
	TrackingNumber   string          `json:"tracking_number,omitempty"`    // Carrier tracking number
	Items            []OrderItem     `json:"items,omitempty"`              // Line items, loaded on single order reads
	CreatedAt        time.Time       `json:"created_at"`                   // When the order was created
	UpdatedAt        time.Time       `json:"updated_at"`                   // When the order was last updated
}

// Address is copied into the order at checkout and never follows later profile edits.
type Address struct {
	Name       string `json:"name" binding:"required"`
	Email      string `json:"email" binding:"required,email"`
	Phone      string `json:"phone" binding:"required"`
	Line1      string `json:"line1" binding:"required"`
	Line2      string `json:"line2"`
	City       string `json:"city" binding:"required"`
	State      string `json:"state" binding:"required"`
	PostalCode string `json:"postal_code" binding:"required"`
	Country    string `json:"country" binding:"required"`
}

// OrderItem is a snapshot of the product as it was sold.
type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     string          `json:"order_id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	Size        string          `json:"size,omitempty"`
	Color       string          `json:"color,omitempty"`
}

// NewItem is what the customer submits; name and price are resolved from the catalog.
type NewItem struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
	Size      string `json:"size"`
	Color     string `json:"color"`
}

type NewOrder struct {
	UserID           *string
	ShippingAddress  Address
	Items            []NewItem
	Currency         string
	Status           Status
	PaymentStatus    PaymentStatus
	PaymentMethod    PaymentMethod
	GatewayOrderID   string
	GatewayPaymentID string
	// PaidAmount is what the gateway captured for an online order. When set, the computed total
	// must equal it or the order is not written.
	PaidAmount *decimal.Decimal
}

// Patch carries the fields an admin or payment callback may change after creation.
// Nil fields are left untouched.
type Patch struct {
	Status         *Status
	PaymentStatus  *PaymentStatus
	TrackingNumber *string

	// ExpectedStatus and ExpectedPayment, when set, make the update apply only if the stored
	// order still has them, i.e. the state the transition was checked against.
	ExpectedStatus  Status
	ExpectedPayment PaymentStatus
}

func (p Patch) Empty() bool {
	return p.Status == nil && p.PaymentStatus == nil && p.TrackingNumber == nil
}

type Filter struct {
	UserID        string
	Status        Status
	PaymentStatus PaymentStatus
	Limit         int
	Offset        int
}

// Customer aggregates orders placed under one email address.
type Customer struct {
	Email       string          `json:"email"`
	Name        string          `json:"name"`
	UserID      *string         `json:"user_id"`
	OrderCount  int             `json:"order_count"`
	TotalSpent  decimal.Decimal `json:"total_spent"`
	LastOrderAt time.Time       `json:"last_order_at"`
}

// Payment is the payment view of an order used by the admin payments page.
type Payment struct {
	OrderID          string          `json:"order_id"`
	OrderNumber      string          `json:"order_number"`
	CustomerName     string          `json:"customer_name"`
	CustomerEmail    string          `json:"customer_email"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	PaymentMethod    PaymentMethod   `json:"payment_method"`
	PaymentStatus    PaymentStatus   `json:"payment_status"`
	GatewayOrderID   string          `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string          `json:"gateway_payment_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Pricing holds the shipping and tax policy applied at checkout.
type Pricing struct {
	ShippingFlatFee       decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	TaxRate               decimal.Decimal
}

// Totals returns shipping, tax and total for subtotal. Shipping is waived once the subtotal
// reaches a positive threshold; tax is rounded to two places.
func (p Pricing) Totals(subtotal decimal.Decimal) (shipping, tax, total decimal.Decimal) {
	shipping = p.ShippingFlatFee
	if p.FreeShippingThreshold.IsPositive() && subtotal.GreaterThanOrEqual(p.FreeShippingThreshold) {
		shipping = decimal.Zero
	}
	tax = subtotal.Mul(p.TaxRate).Round(2)
	total = subtotal.Add(shipping).Add(tax)
	return shipping, tax, total
}
