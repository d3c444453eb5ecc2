package order

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/kantinyonetim/canteen-service/internal/audit"
	"github.com/kantinyonetim/canteen-service/internal/stock"
	"github.com/kantinyonetim/canteen-service/internal/user"
)

type Service interface {
	CreateOrder(ctx context.Context, actor user.Actor, in CreateOrderInput) (*Order, error)
	// PlaceOrder creates an order with all its lines in one transaction.
	PlaceOrder(ctx context.Context, actor user.Actor, in PlaceOrderInput) (*Order, error)
	// PlaceNamedOrder is PlaceOrder for lines that name menu items instead of
	// referencing them by id.
	PlaceNamedOrder(ctx context.Context, actor user.Actor, notes string, lines []NamedLine) (*Order, error)
	ResolveNames(ctx context.Context, lines []NamedLine) ([]ResolvedLine, error)

	GetOrder(ctx context.Context, actor user.Actor, id uuid.UUID) (*Order, error)
	ListOrders(ctx context.Context, actor user.Actor, f ListFilter) ([]Order, error)
	UpdateStatus(ctx context.Context, actor user.Actor, id uuid.UUID, next Status) (*Order, error)
	CancelOrder(ctx context.Context, actor user.Actor, id uuid.UUID) (*Order, error)
	ReassignOrder(ctx context.Context, actor user.Actor, id, userID uuid.UUID) (*Order, error)
	DeleteOrder(ctx context.Context, actor user.Actor, id uuid.UUID) error

	AddItem(ctx context.Context, actor user.Actor, in AddItemInput) (*Item, error)
	UpdateItem(ctx context.Context, actor user.Actor, id uuid.UUID, in UpdateItemInput) (*Item, error)
	// CancelItem cancels qty units of a line, or the whole line when qty is nil.
	CancelItem(ctx context.Context, actor user.Actor, id uuid.UUID, qty *int) (*Cancellation, error)
	DeleteItem(ctx context.Context, actor user.Actor, id uuid.UUID) error
	GetItem(ctx context.Context, actor user.Actor, id uuid.UUID) (*Item, error)
	ListItems(ctx context.Context, actor user.Actor, f ItemFilter) ([]Item, error)
}

type service struct {
	store     Store
	recorder  audit.Recorder
	observer  Observer
	threshold int
}

func NewService(store Store, recorder audit.Recorder, observer Observer, lowStockThreshold int) Service {
	if recorder == nil {
		recorder = audit.Discard{}
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &service{store: store, recorder: recorder, observer: observer, threshold: lowStockThreshold}
}

// inTx runs fn in one transaction. Side effects collected in the buffer are
// delivered only after a successful commit.
func (s *service) inTx(ctx context.Context, fn func(tx Tx, fx *audit.Buffer) error) error {
	var fx audit.Buffer
	err := s.store.WithTx(ctx, func(tx Tx) error {
		return fn(tx, &fx)
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			s.observer.StockRejected()
		}
		return err
	}
	fx.Flush(ctx, s.recorder)
	return nil
}

func (s *service) CreateOrder(ctx context.Context, actor user.Actor, in CreateOrderInput) (*Order, error) {
	var out *Order
	err := s.inTx(ctx, func(tx Tx, fx *audit.Buffer) error {
		o, err := newOrder(ctx, tx, actor, in.UserID, in.Notes)
		if err != nil {
			return err
		}
		s.announce(fx, actor, o, audit.ActionCreate, map[string]any{})
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.observer.OrderPlaced("api")
	return out, nil
}

func (s *service) PlaceOrder(ctx context.Context, actor user.Actor, in PlaceOrderInput) (*Order, error) {
	lines, err := mergeLines(in.Lines)
	if err != nil {
		return nil, err
	}

	var out *Order
	err = s.inTx(ctx, func(tx Tx, fx *audit.Buffer) error {
		products := make(map[uuid.UUID]*Product, len(lines))
		for _, l := range lines {
			p, err := tx.Product(ctx, l.MenuItemID)
			if err != nil {
				return err
			}
			products[p.ID] = p
		}
		o, err := s.place(ctx, tx, fx, actor, in.UserID, in.Notes, lines, products, "cart")
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.observer.OrderPlaced("cart")
	s.observer.ItemsAdded(len(lines))
	return out, nil
}

func (s *service) PlaceNamedOrder(ctx context.Context, actor user.Actor, notes string, named []NamedLine) (*Order, error) {
	if len(named) == 0 {
		return nil, ErrEmptyOrder
	}

	var out *Order
	var count int
	err := s.inTx(ctx, func(tx Tx, fx *audit.Buffer) error {
		catalog, err := tx.Products(ctx)
		if err != nil {
			return err
		}
		lines, products, err := resolveNames(catalog, named)
		if err != nil {
			return err
		}
		o, err := s.place(ctx, tx, fx, actor, nil, notes, lines, products, "voice")
		if err != nil {
			return err
		}
		out, count = o, len(lines)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.observer.OrderPlaced("voice")
	s.observer.ItemsAdded(count)
	return out, nil
}

func (s *service) ResolveNames(ctx context.Context, named []NamedLine) ([]ResolvedLine, error) {
	if len(named) == 0 {
		return nil, ErrEmptyOrder
	}

	var out []ResolvedLine
	err := s.store.WithTx(ctx, func(tx Tx) error {
		catalog, err := tx.Products(ctx)
		if err != nil {
			return err
		}
		lines, products, err := resolveNames(catalog, named)
		if err != nil {
			return err
		}
		out = make([]ResolvedLine, 0, len(lines))
		for _, l := range lines {
			p := products[l.MenuItemID]
			out = append(out, ResolvedLine{
				MenuItemID: p.ID,
				Name:       p.Name,
				Quantity:   l.Quantity,
				UnitPrice:  p.Price,
				LineTotal:  p.Price.Mul(decimal.NewFromInt(int64(l.Quantity))).Round(2),
				Available:  p.Available,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// place validates every line against the locked stock before writing
// anything, so a failing line leaves no trace of the order.
func (s *service) place(ctx context.Context, tx Tx, fx *audit.Buffer, actor user.Actor, userID *uuid.UUID,
	notes string, lines []CartLine, products map[uuid.UUID]*Product, source string,
) (*Order, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		p := products[l.MenuItemID]
		if !p.Available {
			return nil, fmt.Errorf("%w: %s", ErrItemUnavailable, p.Name)
		}
		ids = append(ids, p.ID)
	}

	levels, err := tx.LockStocks(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, l := range lines {
		if available := levels[l.MenuItemID]; l.Quantity > available {
			return nil, &InsufficientStockError{Item: products[l.MenuItemID].Name, Available: available, Requested: l.Quantity}
		}
	}
	before := make(map[uuid.UUID]int, len(levels))
	for id, qty := range levels {
		before[id] = qty
	}

	o, err := newOrder(ctx, tx, actor, userID, notes)
	if err != nil {
		return nil, err
	}
	for _, l := range lines {
		if _, err := addLine(ctx, tx, actor, o, products[l.MenuItemID], l.Quantity, nil, levels); err != nil {
			return nil, err
		}
	}
	if err := recalculate(ctx, tx, o); err != nil {
		return nil, err
	}

	for _, l := range lines {
		s.noteLowStock(fx, products[l.MenuItemID], before[l.MenuItemID], levels[l.MenuItemID])
	}
	s.announce(fx, actor, o, audit.ActionOrderPlaced, map[string]any{
		"source": source,
		"lines":  len(lines),
	})
	return o, nil
}

func (s *service) GetOrder(ctx context.Context, actor user.Actor, id uuid.UUID) (*Order, error) {
	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(o.UserID) {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (s *service) ListOrders(ctx context.Context, actor user.Actor, f ListFilter) ([]Order, error) {
	if !actor.IsElevated() {
		f.UserID = &actor.ID
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, f.Status)
	}
	return s.store.ListOrders(ctx, f)
}

func (s *service) UpdateStatus(ctx context.Context, actor user.Actor, id uuid.UUID, next Status) (*Order, error) {
	if !actor.IsElevated() {
		return nil, ErrForbidden
	}
	if !next.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next)
	}

	err := s.inTx(ctx, func(tx Tx, fx *audit.Buffer) error {
		o, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		switch {
		case o.Status == next:
			return nil
		case o.Status == StatusCancelled:
			return fmt.Errorf("%w: cancelled orders cannot be reactivated", ErrInvalidTransition)
		case !o.Status.CanTransitionTo(next):
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, o.Status, next)
		case next == StatusCancelled:
			return s.cancelLocked(ctx, tx, fx, actor, o)
		}

		old := o.Status
		if err := tx.SetStatus(ctx, o.ID, next); err != nil {
			return err
		}
		o.Status = next
		s.statusChanged(fx, actor, o, old)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.store.GetOrder(ctx, id)
}

func (s *service) CancelOrder(ctx context.Context, actor user.Actor, id uuid.UUID) (*Order, error) {
	err := s.inTx(ctx, func(tx Tx, fx *audit.Buffer) error {
		o, err := lockOwned(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		if !o.Status.Modifiable() {
			return fmt.Errorf("%w: cannot cancel a %s order", ErrInvalidTransition, o.Status)
		}
		return s.cancelLocked(ctx, tx, fx, actor, o)
	})
	if err != nil {
		return nil, err
	}
	return s.store.GetOrder(ctx, id)
}

// cancelLocked returns every line to stock and marks the order cancelled.
// The order row must already be locked and modifiable.
func (s *service) cancelLocked(ctx context.Context, tx Tx, fx *audit.Buffer, actor user.Actor, o *Order) error {
	items, err := tx.OrderItems(ctx, o.ID)
	if err != nil {
		return err
	}
	if err := restock(ctx, tx, items); err != nil {
		return err
	}
	for _, it := range items {
		fx.Record(audit.Entry{
			UserID:       &actor.ID,
			Action:       audit.ActionItemCancelled,
			ResourceType: "order_item",
			ResourceID:   it.ID.String(),
			Details: map[string]any{
				"order_id":           o.ID.String(),
				"menu_item":          it.MenuItemName,
				"cancelled_quantity": it.Quantity,
				"full_cancellation":  true,
				"via_order_cancel":   true,
			},
		})
	}

	old := o.Status
	if err := tx.SetStatus(ctx, o.ID, StatusCancelled); err != nil {
		return err
	}
	o.Status = StatusCancelled
	if err := recalculate(ctx, tx, o); err != nil {
		return err
	}
	s.statusChanged(fx, actor, o, old)
	return nil
}

func (s *service) statusChanged(fx *audit.Buffer, actor user.Actor, o *Order, old Status) {
	fx.Record(audit.Entry{
		UserID:       &actor.ID,
		Action:       audit.ActionOrderStatusChanged,
		ResourceType: "order",
		ResourceID:   o.ID.String(),
		Details: map[string]any{
			"order_id":   o.ID.String(),
			"old_status": old.String(),
			"new_status": o.Status.String(),
			"customer":   o.UserUsername,
		},
	})
	fx.Notify(audit.Notification{
		RecipientID:  o.UserID,
		Type:         audit.NotificationOrderStatus,
		Priority:     audit.PriorityMedium,
		Title:        "Sipariş durumu güncellendi",
		Message:      fmt.Sprintf("#%s numaralı siparişinizin durumu: %s", shortID(o.ID), o.Status),
		ResourceType: "order",
		ResourceID:   o.ID.String(),
	})
}

func (s *service) ReassignOrder(ctx context.Context, actor user.Actor, id, userID uuid.UUID) (*Order, error) {
	if !actor.IsElevated() {
		return nil, ErrForbidden
	}

	err := s.inTx(ctx, func(tx Tx, fx *audit.Buffer) error {
		o, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		username, err := tx.Username(ctx, userID)
		if err != nil {
			return err
		}
		if o.UserID == userID {
			return nil
		}
		if err := tx.SetOwner(ctx, o.ID, userID); err != nil {
			return err
		}
		fx.Record(audit.Entry{
			UserID:       &actor.ID,
			Action:       audit.ActionReassign,
			ResourceType: "order",
			ResourceID:   o.ID.String(),
			Details: map[string]any{
				"order_id":     o.ID.String(),
				"old_customer": o.UserUsername,
				"new_customer": username,
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.store.GetOrder(ctx, id)
}

// DeleteOrder removes an order and its lines. Lines of an order that was
// still open go back to stock.
func (s *service) DeleteOrder(ctx context.Context, actor user.Actor, id uuid.UUID) error {
	if !actor.IsElevated() {
		return ErrForbidden
	}

	return s.inTx(ctx, func(tx Tx, fx *audit.Buffer) error {
		o, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		restocked := false
		if o.Status.Modifiable() {
			items, err := tx.OrderItems(ctx, o.ID)
			if err != nil {
				return err
			}
			if err := restock(ctx, tx, items); err != nil {
				return err
			}
			restocked = len(items) > 0
		}
		if err := tx.DeleteOrder(ctx, o.ID); err != nil {
			return err
		}
		fx.Record(audit.Entry{
			UserID:       &actor.ID,
			Action:       audit.ActionDelete,
			ResourceType: "order",
			ResourceID:   o.ID.String(),
			Details: map[string]any{
				"order_id":  o.ID.String(),
				"total":     o.Total.StringFixed(2),
				"customer":  o.UserUsername,
				"status":    o.Status.String(),
				"restocked": restocked,
			},
		})
		return nil
	})
}

func (s *service) AddItem(ctx context.Context, actor user.Actor, in AddItemInput) (*Item, error) {
	if !validQuantity(in.Quantity) {
		return nil, ErrInvalidQuantity
	}

	var line *Item
	err := s.inTx(ctx, func(tx Tx, fx *audit.Buffer) error {
		o, err := lockOwned(ctx, tx, actor, in.OrderID)
		if err != nil {
			return err
		}
		if !o.Status.Modifiable() {
			return ErrOrderNotModifiable
		}
		p, err := tx.Product(ctx, in.MenuItemID)
		if err != nil {
			return err
		}
		levels, err := tx.LockStocks(ctx, []uuid.UUID{p.ID})
		if err != nil {
			return err
		}
		before := levels[p.ID]

		it, err := addLine(ctx, tx, actor, o, p, in.Quantity, in.Price, levels)
		if err != nil {
			return err
		}
		if err := recalculate(ctx, tx, o); err != nil {
			return err
		}

		fx.Record(audit.Entry{
			UserID:       &actor.ID,
			Action:       audit.ActionOrderItemAdded,
			ResourceType: "order_item",
			ResourceID:   it.ID.String(),
			Details: map[string]any{
				"order_id":            o.ID.String(),
				"menu_item":           p.Name,
				"quantity_added":      in.Quantity,
				"line_quantity":       it.Quantity,
				"price_at_order_time": it.PriceAtOrderTime.StringFixed(2),
				"order_total":         o.Total.StringFixed(2),
			},
		})
		s.noteLowStock(fx, p, before, levels[p.ID])
		line = it
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.observer.ItemsAdded(1)
	return line, nil
}

// addLine adds qty of p to the order, merging into an existing line for the
// same menu item. levels holds the locked stock and is updated in place.
func addLine(ctx context.Context, tx Tx, actor user.Actor, o *Order, p *Product, qty int,
	rawPrice *string, levels map[uuid.UUID]int,
) (*Item, error) {
	price, overridden, err := resolvePrice(actor, rawPrice, p.Price)
	if err != nil {
		return nil, err
	}
	if !p.Available {
		return nil, fmt.Errorf("%w: %s", ErrItemUnavailable, p.Name)
	}
	available := levels[p.ID]
	if qty > available {
		return nil, &InsufficientStockError{Item: p.Name, Available: available, Requested: qty}
	}

	line, err := tx.FindLine(ctx, o.ID, p.ID)
	if err != nil {
		return nil, err
	}
	if line != nil {
		if overridden && !price.Equal(line.PriceAtOrderTime) {
			return nil, ErrPriceConflict
		}
		combined := line.Quantity + qty
		if combined > available {
			return nil, &InsufficientStockError{Item: p.Name, Available: available, Requested: combined}
		}
		line.Quantity = combined
		line.Recalculate()
		if err := tx.UpdateItem(ctx, line); err != nil {
			return nil, err
		}
	} else {
		line = &Item{
			OrderID:          o.ID,
			MenuItemID:       p.ID,
			MenuItemName:     p.Name,
			Quantity:         qty,
			PriceAtOrderTime: price,
		}
		line.Recalculate()
		if err := tx.InsertItem(ctx, line); err != nil {
			return nil, err
		}
	}

	levels[p.ID] = available - qty
	if err := tx.SetStock(ctx, p.ID, levels[p.ID]); err != nil {
		return nil, err
	}
	return line, nil
}

func (s *service) UpdateItem(ctx context.Context, actor user.Actor, id uuid.UUID, in UpdateItemInput) (*Item, error) {
	if in.Quantity != nil && !validQuantity(*in.Quantity) {
		return nil, ErrInvalidQuantity
	}

	var line *Item
	err := s.inTx(ctx, func(tx Tx, fx *audit.Buffer) error {
		orderID, err := tx.ItemOrderID(ctx, id)
		if err != nil {
			return err
		}
		o, err := lockOwned(ctx, tx, actor, orderID)
		if err != nil {
			return err
		}
		it, err := tx.LockItem(ctx, id)
		if err != nil {
			return err
		}
		if in.OrderID != nil && *in.OrderID != it.OrderID {
			return ErrOrderReference
		}
		if !o.Status.Modifiable() {
			return ErrOrderNotModifiable
		}
		price, overridden, err := resolvePrice(actor, in.Price, it.PriceAtOrderTime)
		if err != nil {
			return err
		}

		before := *it
		qty := it.Quantity
		if in.Quantity != nil {
			qty = *in.Quantity
		}
		target := it.MenuItemID
		if in.MenuItemID != nil {
			target = *in.MenuItemID
		}

		if target != it.MenuItemID {
			p, err := tx.Product(ctx, target)
			if err != nil {
				return err
			}
			if !p.Available {
				return fmt.Errorf("%w: %s", ErrItemUnavailable, p.Name)
			}
			dup, err := tx.FindLine(ctx, o.ID, target)
			if err != nil {
				return err
			}
			if dup != nil {
				return ErrDuplicateLine
			}
			levels, err := tx.LockStocks(ctx, []uuid.UUID{it.MenuItemID, target})
			if err != nil {
				return err
			}
			available := levels[target]
			if qty > available {
				return &InsufficientStockError{Item: p.Name, Available: available, Requested: qty}
			}
			if err := tx.SetStock(ctx, it.MenuItemID, levels[it.MenuItemID]+it.Quantity); err != nil {
				return err
			}
			if err := tx.SetStock(ctx, target, available-qty); err != nil {
				return err
			}
			s.noteLowStock(fx, p, available, available-qty)

			it.MenuItemID, it.MenuItemName = p.ID, p.Name
			if !overridden {
				price = p.Price
			}
		} else if delta := qty - it.Quantity; delta != 0 {
			levels, err := tx.LockStocks(ctx, []uuid.UUID{it.MenuItemID})
			if err != nil {
				return err
			}
			available := levels[it.MenuItemID]
			if delta > 0 {
				p, err := tx.Product(ctx, it.MenuItemID)
				if err != nil {
					return err
				}
				if !p.Available {
					return fmt.Errorf("%w: %s", ErrItemUnavailable, p.Name)
				}
				if delta > available {
					return &InsufficientStockError{Item: it.MenuItemName, Available: available, Requested: delta}
				}
				s.noteLowStock(fx, p, available, available-delta)
			}
			if err := tx.SetStock(ctx, it.MenuItemID, available-delta); err != nil {
				return err
			}
		}

		it.Quantity = qty
		it.PriceAtOrderTime = price
		it.Recalculate()
		if err := tx.UpdateItem(ctx, it); err != nil {
			return err
		}
		if err := recalculate(ctx, tx, o); err != nil {
			return err
		}

		if !before.PriceAtOrderTime.Equal(it.PriceAtOrderTime) {
			fx.Record(audit.Entry{
				UserID:       &actor.ID,
				Action:       audit.ActionPriceChanged,
				ResourceType: "order_item",
				ResourceID:   it.ID.String(),
				Details: map[string]any{
					"order_id":  o.ID.String(),
					"menu_item": it.MenuItemName,
					"old_price": before.PriceAtOrderTime.StringFixed(2),
					"new_price": it.PriceAtOrderTime.StringFixed(2),
				},
			})
		}
		if before.Quantity != it.Quantity || before.MenuItemID != it.MenuItemID {
			fx.Record(audit.Entry{
				UserID:       &actor.ID,
				Action:       audit.ActionUpdate,
				ResourceType: "order_item",
				ResourceID:   it.ID.String(),
				Details: map[string]any{
					"order_id":      o.ID.String(),
					"old_menu_item": before.MenuItemName,
					"new_menu_item": it.MenuItemName,
					"old_quantity":  before.Quantity,
					"new_quantity":  it.Quantity,
					"order_total":   o.Total.StringFixed(2),
				},
			})
		}
		line = it
		return nil
	})
	if err != nil {
		return nil, err
	}
	return line, nil
}

func (s *service) CancelItem(ctx context.Context, actor user.Actor, id uuid.UUID, qty *int) (*Cancellation, error) {
	if qty != nil && *qty <= 0 {
		return nil, ErrInvalidQuantity
	}

	var out *Cancellation
	err := s.inTx(ctx, func(tx Tx, fx *audit.Buffer) error {
		o, it, err := lockItemOwned(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		n := it.Quantity
		if qty != nil {
			if *qty > it.Quantity {
				return fmt.Errorf("%w (%d)", ErrCancelTooMany, it.Quantity)
			}
			n = *qty
		}

		c, err := removeUnits(ctx, tx, o, it, n)
		if err != nil {
			return err
		}
		details := map[string]any{
			"order_id":           o.ID.String(),
			"menu_item":          it.MenuItemName,
			"cancelled_quantity": n,
			"full_cancellation":  c.Removed,
			"restocked":          c.Restocked,
		}
		if !c.Removed {
			details["new_quantity"] = it.Quantity
		}
		fx.Record(audit.Entry{
			UserID:       &actor.ID,
			Action:       audit.ActionItemCancelled,
			ResourceType: "order_item",
			ResourceID:   it.ID.String(),
			Details:      details,
		})
		s.notifyLineRemoved(fx, o, it.MenuItemName, n)
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *service) DeleteItem(ctx context.Context, actor user.Actor, id uuid.UUID) error {
	return s.inTx(ctx, func(tx Tx, fx *audit.Buffer) error {
		o, it, err := lockItemOwned(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		n := it.Quantity
		c, err := removeUnits(ctx, tx, o, it, n)
		if err != nil {
			return err
		}
		fx.Record(audit.Entry{
			UserID:       &actor.ID,
			Action:       audit.ActionDelete,
			ResourceType: "order_item",
			ResourceID:   it.ID.String(),
			Details: map[string]any{
				"order_id":    o.ID.String(),
				"menu_item":   it.MenuItemName,
				"quantity":    n,
				"restocked":   c.Restocked,
				"order_total": o.Total.StringFixed(2),
			},
		})
		s.notifyLineRemoved(fx, o, it.MenuItemName, n)
		return nil
	})
}

func (s *service) notifyLineRemoved(fx *audit.Buffer, o *Order, name string, n int) {
	fx.Notify(audit.Notification{
		RecipientID:  o.UserID,
		Type:         audit.NotificationOrderStatus,
		Priority:     audit.PriorityMedium,
		Title:        "Sipariş kalemi iptal edildi",
		Message:      fmt.Sprintf("#%s numaralı siparişinizden %d x %s iptal edildi", shortID(o.ID), n, name),
		ResourceType: "order",
		ResourceID:   o.ID.String(),
	})
}

// removeUnits takes n units off a locked line. Stock is returned only while
// the order is still open.
func removeUnits(ctx context.Context, tx Tx, o *Order, it *Item, n int) (*Cancellation, error) {
	c := &Cancellation{ItemID: it.ID, Cancelled: n}
	if o.Status.Modifiable() {
		levels, err := tx.LockStocks(ctx, []uuid.UUID{it.MenuItemID})
		if err != nil {
			return nil, err
		}
		if err := tx.SetStock(ctx, it.MenuItemID, levels[it.MenuItemID]+n); err != nil {
			return nil, err
		}
		c.Restocked = true
	}

	if n == it.Quantity {
		if err := tx.DeleteItem(ctx, it.ID); err != nil {
			return nil, err
		}
		c.Removed = true
	} else {
		it.Quantity -= n
		it.Recalculate()
		if err := tx.UpdateItem(ctx, it); err != nil {
			return nil, err
		}
		c.Item = it
	}

	if err := recalculate(ctx, tx, o); err != nil {
		return nil, err
	}
	c.OrderTotal = o.Total
	return c, nil
}

func (s *service) GetItem(ctx context.Context, actor user.Actor, id uuid.UUID) (*Item, error) {
	it, owner, err := s.store.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(owner) {
		return nil, ErrItemNotFound
	}
	return it, nil
}

func (s *service) ListItems(ctx context.Context, actor user.Actor, f ItemFilter) ([]Item, error) {
	if !actor.IsElevated() {
		f.UserID = &actor.ID
	}
	return s.store.ListItems(ctx, f)
}

func (s *service) noteLowStock(fx *audit.Buffer, p *Product, before, after int) {
	if after < before && stock.IsLow(after, s.threshold) {
		log.Info().Stringer("menu_item_id", p.ID).Int("quantity", after).Msg("service: stock fell to alert level")
		fx.NotifyStaff(stock.LowStockNotification(p.ID, p.Name, after))
	}
}

func (s *service) announce(fx *audit.Buffer, actor user.Actor, o *Order, action audit.Action, details map[string]any) {
	details["order_id"] = o.ID.String()
	details["customer"] = o.UserUsername
	details["total"] = o.Total.StringFixed(2)
	if o.UserID != actor.ID {
		details["created_for"] = o.UserUsername
	}
	fx.Record(audit.Entry{
		UserID:       &actor.ID,
		Action:       action,
		ResourceType: "order",
		ResourceID:   o.ID.String(),
		Details:      details,
	})
	fx.NotifyStaff(audit.Notification{
		Type:         audit.NotificationOrderNew,
		Priority:     audit.PriorityHigh,
		Title:        "Yeni sipariş",
		Message:      fmt.Sprintf("%s yeni bir sipariş verdi (#%s)", o.UserUsername, shortID(o.ID)),
		ResourceType: "order",
		ResourceID:   o.ID.String(),
	})
	fx.Notify(audit.Notification{
		RecipientID:  o.UserID,
		Type:         audit.NotificationOrderStatus,
		Priority:     audit.PriorityMedium,
		Title:        "Siparişiniz alındı",
		Message:      fmt.Sprintf("#%s numaralı siparişiniz alındı", shortID(o.ID)),
		ResourceType: "order",
		ResourceID:   o.ID.String(),
	})
}

// newOrder inserts an empty pending order. Staff and admins may place it on
// behalf of another user; anyone else always orders for themselves.
func newOrder(ctx context.Context, tx Tx, actor user.Actor, userID *uuid.UUID, notes string) (*Order, error) {
	o := &Order{
		UserID:       actor.ID,
		UserUsername: actor.Username,
		Status:       StatusPending,
		Total:        decimal.Zero,
		Notes:        strings.TrimSpace(notes),
		Items:        []Item{},
	}
	if userID != nil && actor.IsElevated() && *userID != actor.ID {
		name, err := tx.Username(ctx, *userID)
		if err != nil {
			return nil, err
		}
		o.UserID, o.UserUsername = *userID, name
	}
	if err := tx.InsertOrder(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func lockOwned(ctx context.Context, tx Tx, actor user.Actor, id uuid.UUID) (*Order, error) {
	o, err := tx.LockOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(o.UserID) {
		return nil, ErrForbidden
	}
	return o, nil
}

// lockItemOwned locks the order of a line and then the line itself.
func lockItemOwned(ctx context.Context, tx Tx, actor user.Actor, id uuid.UUID) (*Order, *Item, error) {
	orderID, err := tx.ItemOrderID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	o, err := lockOwned(ctx, tx, actor, orderID)
	if err != nil {
		return nil, nil, err
	}
	it, err := tx.LockItem(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return o, it, nil
}

// recalculate reloads the lines of o and stores the resulting total.
func recalculate(ctx context.Context, tx Tx, o *Order) error {
	items, err := tx.OrderItems(ctx, o.ID)
	if err != nil {
		return err
	}
	o.Items = items
	o.Total = ComputeTotal(o.Status, items)
	return tx.SetTotal(ctx, o.ID, o.Total)
}

func restock(ctx context.Context, tx Tx, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.MenuItemID)
	}
	levels, err := tx.LockStocks(ctx, ids)
	if err != nil {
		return err
	}
	for _, it := range items {
		levels[it.MenuItemID] += it.Quantity
		if err := tx.SetStock(ctx, it.MenuItemID, levels[it.MenuItemID]); err != nil {
			return err
		}
	}
	return nil
}

// resolvePrice returns the price snapshot for a line. Overrides are honored
// for staff and admins only and are otherwise ignored.
func resolvePrice(actor user.Actor, raw *string, fallback decimal.Decimal) (decimal.Decimal, bool, error) {
	if raw == nil || !actor.IsElevated() {
		return fallback, false, nil
	}
	price, err := decimal.NewFromString(strings.TrimSpace(*raw))
	if err != nil || price.IsNegative() {
		return decimal.Zero, false, fmt.Errorf("%w: %q", ErrInvalidPrice, *raw)
	}
	return price.Round(2), true, nil
}

// maxLineQuantity matches the INTEGER quantity columns.
const maxLineQuantity = math.MaxInt32

func validQuantity(q int) bool {
	return q > 0 && q <= maxLineQuantity
}

// mergeLines folds repeated menu items into one line, keeping first-seen order.
func mergeLines(lines []CartLine) ([]CartLine, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyOrder
	}
	merged := make([]CartLine, 0, len(lines))
	index := make(map[uuid.UUID]int, len(lines))
	for _, l := range lines {
		if !validQuantity(l.Quantity) {
			return nil, ErrInvalidQuantity
		}
		if i, ok := index[l.MenuItemID]; ok {
			if l.Quantity > maxLineQuantity-merged[i].Quantity {
				return nil, ErrInvalidQuantity
			}
			merged[i].Quantity += l.Quantity
			continue
		}
		index[l.MenuItemID] = len(merged)
		merged = append(merged, l)
	}
	return merged, nil
}

// resolveNames matches names against the catalog case-insensitively using
// Turkish casing rules. There is no fuzzy matching.
func resolveNames(catalog []Product, named []NamedLine) ([]CartLine, map[uuid.UUID]*Product, error) {
	fold := cases.Lower(language.Turkish)
	byName := make(map[string]*Product, len(catalog))
	for i := range catalog {
		byName[fold.String(strings.TrimSpace(catalog[i].Name))] = &catalog[i]
	}

	products := make(map[uuid.UUID]*Product, len(named))
	lines := make([]CartLine, 0, len(named))
	for _, n := range named {
		if !validQuantity(n.Quantity) {
			return nil, nil, ErrInvalidQuantity
		}
		p, ok := byName[fold.String(strings.TrimSpace(n.Name))]
		if !ok {
			return nil, nil, &UnknownItemError{Name: n.Name}
		}
		products[p.ID] = p
		lines = append(lines, CartLine{MenuItemID: p.ID, Quantity: n.Quantity})
	}

	merged, err := mergeLines(lines)
	if err != nil {
		return nil, nil, err
	}
	return merged, products, nil
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}
