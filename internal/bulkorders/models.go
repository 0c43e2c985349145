package bulkorders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusReceived   Status = "received"
	StatusContacted  Status = "contacted"
	StatusProcessing Status = "processing"
	StatusConfirmed  Status = "confirmed"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// pipeline is the forward order a request moves through; cancelled sits outside it.
var pipeline = []Status{StatusReceived, StatusContacted, StatusProcessing, StatusConfirmed, StatusCompleted}

func (s Status) rank() int {
	for i, p := range pipeline {
		if p == s {
			return i
		}
	}
	return -1
}

func (s Status) Valid() bool {
	return s == StatusCancelled || s.rank() >= 0
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// CanTransition allows staying put, moving forward along the pipeline, and cancelling any
// request that is not finished yet.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	if from.Terminal() {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	return to.rank() > from.rank()
}

// Request is a bulk order lead captured from the storefront form.
type Request struct {
	ID             string           `json:"id"`
	CompanyName    string           `json:"company_name"`
	ContactName    string           `json:"contact_name"`
	Email          string           `json:"email"`
	Phone          string           `json:"phone"`
	ProductType    string           `json:"product_type"`
	Quantity       int              `json:"quantity"`
	Description    string           `json:"description"`
	Status         Status           `json:"status"`
	Priority       Priority         `json:"priority"`
	AdminNotes     string           `json:"admin_notes"`
	EstimatedPrice *decimal.Decimal `json:"estimated_price"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

type NewRequest struct {
	CompanyName string `json:"company_name" binding:"required,max=200"`
	ContactName string `json:"contact_name" binding:"required,max=200"`
	Email       string `json:"email" binding:"required,email"`
	Phone       string `json:"phone" binding:"required,max=30"`
	ProductType string `json:"product_type" binding:"required,max=200"`
	Quantity    int    `json:"quantity" binding:"required,min=1"`
	Description string `json:"description" binding:"max=5000"`
}

// Patch holds the admin editable fields; nil means unchanged.
type Patch struct {
	Status         *Status
	Priority       *Priority
	AdminNotes     *string
	EstimatedPrice *decimal.Decimal

	// ExpectedStatus, when set, is the status the change was checked against; the update is
	// refused if the stored request has moved on.
	ExpectedStatus Status
}

func (p Patch) Empty() bool {
	return p.Status == nil && p.Priority == nil && p.AdminNotes == nil && p.EstimatedPrice == nil
}

type Filter struct {
	Status   Status
	Priority Priority
	Limit    int
	Offset   int
}
