package order

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrItemNotFound       = errors.New("order item not found")
	ErrMenuItemNotFound   = errors.New("menu item not found")
	ErrUserNotFound       = errors.New("target user not found")
	ErrNoStockRecord      = errors.New("no stock information for menu item")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrOrderNotModifiable = errors.New("order cannot be modified in its current status")
	ErrForbidden          = errors.New("not permitted")
	ErrInvalidPrice       = errors.New("invalid price")
	ErrItemUnavailable    = errors.New("menu item is not available")
	ErrPriceConflict      = errors.New("line exists; adjust price via update first")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrInvalidQuantity    = errors.New("quantity must be a positive number within range")
	ErrOrderReference     = errors.New("changing the order reference is not allowed")
	ErrDuplicateLine      = errors.New("order already has a line for this menu item")
	ErrCancelTooMany      = errors.New("cannot cancel more than existing quantity")
	ErrEmptyOrder         = errors.New("order has no lines")
	ErrUnknownItem        = errors.New("menu item not found by name")
	ErrConflict           = errors.New("concurrent update conflict, retry the request")
)

// InsufficientStockError names the menu item that could not be covered.
type InsufficientStockError struct {
	Item      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.Item, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// UnknownItemError names a spoken or typed item that is not on the menu.
type UnknownItemError struct {
	Name string
}

func (e *UnknownItemError) Error() string {
	return fmt.Sprintf("menu item %q not found", e.Name)
}

func (e *UnknownItemError) Is(target error) bool {
	return target == ErrUnknownItem
}
