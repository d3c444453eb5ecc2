package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kantinyonetim/canteen-service/internal/audit"
	"github.com/kantinyonetim/canteen-service/internal/user"
)

type Service interface {
	List(ctx context.Context, actor user.Actor) ([]Stock, error)
	Get(ctx context.Context, actor user.Actor, id uuid.UUID) (*Stock, error)
	// CreateOrIncrement adds qty to the menu item's stock, creating the record if needed.
	CreateOrIncrement(ctx context.Context, actor user.Actor, menuItemID uuid.UUID, qty int) (*Change, error)
	// SetQuantity overwrites the stock level.
	SetQuantity(ctx context.Context, actor user.Actor, id uuid.UUID, qty int) (*Change, error)
}

type service struct {
	repo      Repository
	recorder  audit.Recorder
	threshold int
}

func NewService(repo Repository, recorder audit.Recorder, lowStockThreshold int) Service {
	if recorder == nil {
		recorder = audit.Discard{}
	}
	return &service{repo: repo, recorder: recorder, threshold: lowStockThreshold}
}

func (s *service) List(ctx context.Context, actor user.Actor) ([]Stock, error) {
	if !actor.IsElevated() {
		return nil, ErrForbidden
	}
	stocks, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stocks: %w", err)
	}
	return stocks, nil
}

func (s *service) Get(ctx context.Context, actor user.Actor, id uuid.UUID) (*Stock, error) {
	if !actor.IsElevated() {
		return nil, ErrForbidden
	}
	st, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get stock '%s': %w", id, err)
	}
	return st, nil
}

func (s *service) CreateOrIncrement(ctx context.Context, actor user.Actor, menuItemID uuid.UUID, qty int) (*Change, error) {
	if !actor.IsElevated() {
		return nil, ErrForbidden
	}
	if qty < 0 {
		return nil, ErrNegativeQuantity
	}

	change, err := s.repo.Increment(ctx, menuItemID, qty)
	if err != nil {
		if errors.Is(err, ErrMenuItemNotFound) {
			return nil, err
		}
		log.Error().Err(err).Stringer("menu_item_id", menuItemID).Msg("service: failed to increment stock")
		return nil, fmt.Errorf("failed to increment stock: %w", err)
	}

	if change.Created {
		s.recorder.Record(ctx, audit.Entry{
			UserID:       &actor.ID,
			Action:       audit.ActionCreate,
			ResourceType: "stock",
			ResourceID:   change.Stock.ID.String(),
			Details: map[string]any{
				"menu_item": change.Stock.MenuItemName,
				"quantity":  change.Stock.Quantity,
			},
		})
	} else {
		s.recorder.Record(ctx, audit.Entry{
			UserID:       &actor.ID,
			Action:       audit.ActionStockUpdated,
			ResourceType: "stock",
			ResourceID:   change.Stock.ID.String(),
			Details: map[string]any{
				"menu_item":      change.Stock.MenuItemName,
				"old_quantity":   change.Before,
				"new_quantity":   change.Stock.Quantity,
				"quantity_added": qty,
			},
		})
	}
	return change, nil
}

func (s *service) SetQuantity(ctx context.Context, actor user.Actor, id uuid.UUID, qty int) (*Change, error) {
	if !actor.IsElevated() {
		return nil, ErrForbidden
	}
	if qty < 0 {
		return nil, ErrNegativeQuantity
	}

	change, err := s.repo.Set(ctx, id, qty)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		log.Error().Err(err).Stringer("stock_id", id).Msg("service: failed to set stock")
		return nil, fmt.Errorf("failed to set stock: %w", err)
	}

	s.recorder.Record(ctx, audit.Entry{
		UserID:       &actor.ID,
		Action:       audit.ActionStockUpdated,
		ResourceType: "stock",
		ResourceID:   change.Stock.ID.String(),
		Details: map[string]any{
			"menu_item":        change.Stock.MenuItemName,
			"old_quantity":     change.Before,
			"new_quantity":     change.Stock.Quantity,
			"quantity_changed": change.Delta(),
		},
	})
	if change.Delta() < 0 && IsLow(change.Stock.Quantity, s.threshold) {
		s.recorder.NotifyStaff(ctx, LowStockNotification(change.Stock.MenuItemID, change.Stock.MenuItemName, change.Stock.Quantity))
	}
	return change, nil
}

// IsLow reports whether qty has fallen to the alert threshold.
func IsLow(qty, threshold int) bool {
	return qty <= threshold
}

func LowStockNotification(menuItemID uuid.UUID, name string, qty int) audit.Notification {
	priority := audit.PriorityHigh
	if qty == 0 {
		priority = audit.PriorityUrgent
	}
	return audit.Notification{
		Type:         audit.NotificationStockLow,
		Priority:     priority,
		Title:        "Düşük stok uyarısı",
		Message:      fmt.Sprintf("%s için stok %d adede düştü", name, qty),
		ResourceType: "menu_item",
		ResourceID:   menuItemID.String(),
	}
}
