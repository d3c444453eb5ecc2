package menu

import (
	"errors"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("menu item not found")
	ErrInvalidPrice    = errors.New("price must be a non-negative amount")
	ErrInvalidCategory = errors.New("invalid category")
	ErrNameRequired    = errors.New("name is required")
	ErrForbidden       = errors.New("forbidden")
)

type Category string

const (
	CategoryMain      Category = "ana_yemek"
	CategoryDrink     Category = "icecek"
	CategoryDessert   Category = "tatli"
	CategoryAppetizer Category = "aperatif"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryMain, CategoryDrink, CategoryDessert, CategoryAppetizer:
		return true
	default:
		return false
	}
}

type Item struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	Category      Category        `json:"category"`
	IsAvailable   bool            `json:"is_available"`
	ImageURL      string          `json:"image_url"`
	StockQuantity int             `json:"stock_quantity"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Update is a partial change. Nil fields are left untouched.
type Update struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Category    *Category
	IsAvailable *bool
	ImageURL    *string
}

type Filter struct {
	Category      Category
	AvailableOnly bool
	Search        string
}

// NormalizePrice rounds to cents and rejects negative amounts.
func NormalizePrice(p decimal.Decimal) (decimal.Decimal, error) {
	if p.IsNegative() {
		return decimal.Decimal{}, ErrInvalidPrice
	}
	return p.Round(2), nil
}
