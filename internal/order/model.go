package order

import (
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Cancellation goes through CancelOrder so that stock is returned; it is
// listed here so status updates can be routed there. Nothing leaves
// cancelled or completed.
var transitions = map[Status][]Status{
	StatusPending:   {StatusPreparing, StatusReady, StatusCompleted, StatusCancelled},
	StatusPreparing: {StatusReady, StatusCompleted, StatusCancelled},
	StatusReady:     {StatusCompleted},
	StatusCompleted: {},
	StatusCancelled: {},
}

func (s Status) String() string {
	return string(s)
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Modifiable reports whether lines may be added, changed or restocked.
func (s Status) Modifiable() bool {
	return s == StatusPending || s == StatusPreparing
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Item struct {
	ID               uuid.UUID       `json:"id"`
	OrderID          uuid.UUID       `json:"order"`
	MenuItemID       uuid.UUID       `json:"menu_item"`
	MenuItemName     string          `json:"menu_item_name"`
	Quantity         int             `json:"quantity"`
	PriceAtOrderTime decimal.Decimal `json:"price_at_order_time"`
	LineTotal        decimal.Decimal `json:"line_total"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Recalculate refreshes LineTotal from quantity and the price snapshot.
func (it *Item) Recalculate() {
	it.LineTotal = it.PriceAtOrderTime.Mul(decimal.NewFromInt(int64(it.Quantity))).Round(2)
}

type Order struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user"`
	UserUsername string          `json:"user_username"`
	Status       Status          `json:"status"`
	Total        decimal.Decimal `json:"total"`
	Notes        string          `json:"notes"`
	Items        []Item          `json:"order_items"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ComputeTotal sums the line totals. A cancelled order keeps its lines as
// history but is worth nothing.
func ComputeTotal(status Status, items []Item) decimal.Decimal {
	total := decimal.Zero
	if status == StatusCancelled {
		return total
	}
	for _, it := range items {
		total = total.Add(it.LineTotal)
	}
	return total.Round(2)
}

// Product is the catalog view the engine needs while holding locks.
type Product struct {
	ID        uuid.UUID
	Name      string
	Price     decimal.Decimal
	Available bool
}

type AddItemInput struct {
	OrderID    uuid.UUID
	MenuItemID uuid.UUID
	Quantity   int
	// Price is the raw override as sent by the client; honored for staff and admin only.
	Price *string
}

type UpdateItemInput struct {
	OrderID    *uuid.UUID
	MenuItemID *uuid.UUID
	Quantity   *int
	Price      *string
}

type CreateOrderInput struct {
	UserID *uuid.UUID
	Notes  string
}

type CartLine struct {
	MenuItemID uuid.UUID
	Quantity   int
}

type PlaceOrderInput struct {
	UserID *uuid.UUID
	Notes  string
	Lines  []CartLine
}

// NamedLine is an order line that refers to the menu by item name.
type NamedLine struct {
	Name     string
	Quantity int
}

type ListFilter struct {
	UserID *uuid.UUID
	Status Status
}

type ItemFilter struct {
	OrderID *uuid.UUID
	UserID  *uuid.UUID
}

// Cancellation describes the outcome of cancelling part or all of a line.
type Cancellation struct {
	// Item is the shrunken line, nil when the line was removed.
	Item       *Item           `json:"item,omitempty"`
	ItemID     uuid.UUID       `json:"item_id"`
	Cancelled  int             `json:"cancelled_quantity"`
	Removed    bool            `json:"removed"`
	Restocked  bool            `json:"restocked"`
	OrderTotal decimal.Decimal `json:"order_total"`
}

// ResolvedLine is a named line matched against the menu.
type ResolvedLine struct {
	MenuItemID uuid.UUID       `json:"menu_item"`
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	LineTotal  decimal.Decimal `json:"line_total"`
	Available  bool            `json:"is_available"`
}
