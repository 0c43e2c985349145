package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category is a top level category when ParentID is nil and a subcategory otherwise.
type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	ParentID  *string   `json:"parent_id"`
	CreatedAt time.Time `json:"created_at"`
}

type NewCategory struct {
	Name     string  `json:"name" validate:"required,min=2,max=80"`
	Slug     string  `json:"slug" validate:"omitempty,max=80"`
	ParentID *string `json:"parent_id"`
}

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name" validate:"required,min=2"`
	Slug        string          `json:"slug"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	CategoryID  *string         `json:"category_id"`
	Sizes       []string        `json:"sizes"`
	Colors      []string        `json:"colors"`
	Stock       int             `json:"stock" validate:"min=0"`
	ImageURL    string          `json:"image_url" validate:"omitempty,url"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type NewProduct struct {
	Name        string          `json:"name" validate:"required,min=2,max=200"`
	Slug        string          `json:"slug" validate:"omitempty,max=200"`
	Description string          `json:"description" validate:"max=5000"`
	Price       decimal.Decimal `json:"price"`
	CategoryID  *string         `json:"category_id"`
	Sizes       []string        `json:"sizes"`
	Colors      []string        `json:"colors"`
	Stock       int             `json:"stock" validate:"min=0"`
	ImageURL    string          `json:"image_url" validate:"omitempty,url"`
}

type ProductFilter struct {
	CategoryID string
	Search     string
	Limit      int
	Offset     int
}
