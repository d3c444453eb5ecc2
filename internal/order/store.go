package order

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

// Store is the persistence boundary of the engine. Reads outside WithTx see
// committed state only.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	ListOrders(ctx context.Context, f ListFilter) ([]Order, error)
	// GetItem returns the line and the id of the user owning its order.
	GetItem(ctx context.Context, id uuid.UUID) (*Item, uuid.UUID, error)
	ListItems(ctx context.Context, f ItemFilter) ([]Item, error)
}

// Tx is one database transaction. Lock methods hold their row locks until
// commit or rollback. Callers lock the order row before any stock row.
type Tx interface {
	InsertOrder(ctx context.Context, o *Order) error
	LockOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	SetStatus(ctx context.Context, id uuid.UUID, status Status) error
	SetOwner(ctx context.Context, id, userID uuid.UUID) error
	SetTotal(ctx context.Context, id uuid.UUID, total decimal.Decimal) error
	DeleteOrder(ctx context.Context, id uuid.UUID) error

	// ItemOrderID reads the order of a line without locking anything.
	ItemOrderID(ctx context.Context, itemID uuid.UUID) (uuid.UUID, error)
	LockItem(ctx context.Context, id uuid.UUID) (*Item, error)
	// FindLine returns the line for (order, menu item), or nil when none exists.
	FindLine(ctx context.Context, orderID, menuItemID uuid.UUID) (*Item, error)
	OrderItems(ctx context.Context, orderID uuid.UUID) ([]Item, error)
	InsertItem(ctx context.Context, it *Item) error
	UpdateItem(ctx context.Context, it *Item) error
	DeleteItem(ctx context.Context, id uuid.UUID) error

	// LockStocks locks the stock rows of the given menu items in ascending
	// menu item id order and returns their quantities. A menu item without a
	// stock row fails with ErrNoStockRecord.
	LockStocks(ctx context.Context, menuItemIDs []uuid.UUID) (map[uuid.UUID]int, error)
	SetStock(ctx context.Context, menuItemID uuid.UUID, qty int) error

	Product(ctx context.Context, id uuid.UUID) (*Product, error)
	Products(ctx context.Context) ([]Product, error)
	Username(ctx context.Context, userID uuid.UUID) (string, error)
}

// Observer receives engine events for metrics.
type Observer interface {
	OrderPlaced(source string)
	ItemsAdded(n int)
	StockRejected()
}

type nopObserver struct{}

func (nopObserver) OrderPlaced(string) {}
func (nopObserver) ItemsAdded(int)     {}
func (nopObserver) StockRejected()     {}
