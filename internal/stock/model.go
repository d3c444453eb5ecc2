package stock

import (
	"errors"
	"time"

	"github.com/gofrs/uuid"
)

var (
	ErrNotFound         = errors.New("stock not found")
	ErrMenuItemNotFound = errors.New("menu item not found")
	ErrNegativeQuantity = errors.New("quantity cannot be negative")
	ErrForbidden        = errors.New("forbidden")
)

type Stock struct {
	ID           uuid.UUID `json:"id"`
	MenuItemID   uuid.UUID `json:"menu_item"`
	MenuItemName string    `json:"menu_item_name"`
	Quantity     int       `json:"quantity"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Change describes a committed quantity mutation.
type Change struct {
	Stock   Stock
	Before  int
	Created bool
}

func (c Change) Delta() int {
	return c.Stock.Quantity - c.Before
}
