package menu

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kantinyonetim/canteen-service/internal/audit"
	"github.com/kantinyonetim/canteen-service/internal/user"
)

type Service interface {
	Create(ctx context.Context, actor user.Actor, item *Item) (*Item, error)
	Get(ctx context.Context, id uuid.UUID) (*Item, error)
	List(ctx context.Context, f Filter) ([]Item, error)
	Update(ctx context.Context, actor user.Actor, id uuid.UUID, upd Update) (*Item, error)
	Delete(ctx context.Context, actor user.Actor, id uuid.UUID) error
}

type service struct {
	repo     Repository
	recorder audit.Recorder
}

func NewService(repo Repository, recorder audit.Recorder) Service {
	if recorder == nil {
		recorder = audit.Discard{}
	}
	return &service{repo: repo, recorder: recorder}
}

func validate(item *Item) error {
	item.Name = strings.TrimSpace(item.Name)
	if item.Name == "" {
		return ErrNameRequired
	}
	if item.Category == "" {
		item.Category = CategoryMain
	}
	if !item.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, item.Category)
	}
	price, err := NormalizePrice(item.Price)
	if err != nil {
		return err
	}
	item.Price = price
	return nil
}

func (s *service) Create(ctx context.Context, actor user.Actor, item *Item) (*Item, error) {
	if !actor.IsElevated() {
		return nil, ErrForbidden
	}
	if err := validate(item); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, item); err != nil {
		log.Error().Err(err).Str("name", item.Name).Msg("service: failed to create menu item")
		return nil, fmt.Errorf("failed to create menu item: %w", err)
	}

	s.recorder.Record(ctx, audit.Entry{
		UserID:       &actor.ID,
		Action:       audit.ActionCreate,
		ResourceType: "menu_item",
		ResourceID:   item.ID.String(),
		Details: map[string]any{
			"name":     item.Name,
			"price":    item.Price.StringFixed(2),
			"category": string(item.Category),
		},
	})
	return item, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Item, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get menu item '%s': %w", id, err)
	}
	return item, nil
}

func (s *service) List(ctx context.Context, f Filter) ([]Item, error) {
	items, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to list menu items: %w", err)
	}
	return items, nil
}

func (s *service) Update(ctx context.Context, actor user.Actor, id uuid.UUID, upd Update) (*Item, error) {
	if !actor.IsElevated() {
		return nil, ErrForbidden
	}
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *item

	if upd.Name != nil {
		item.Name = *upd.Name
	}
	if upd.Description != nil {
		item.Description = *upd.Description
	}
	if upd.Price != nil {
		item.Price = *upd.Price
	}
	if upd.Category != nil {
		item.Category = *upd.Category
	}
	if upd.IsAvailable != nil {
		item.IsAvailable = *upd.IsAvailable
	}
	if upd.ImageURL != nil {
		item.ImageURL = *upd.ImageURL
	}
	if err := validate(item); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, item); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		log.Error().Err(err).Stringer("menu_item_id", id).Msg("service: failed to update menu item")
		return nil, fmt.Errorf("failed to update menu item '%s': %w", id, err)
	}

	changes := diff(before, *item)
	if len(changes) > 0 {
		action := audit.ActionUpdate
		if _, ok := changes["price"]; ok {
			action = audit.ActionPriceChanged
		}
		s.recorder.Record(ctx, audit.Entry{
			UserID:       &actor.ID,
			Action:       action,
			ResourceType: "menu_item",
			ResourceID:   id.String(),
			Details:      map[string]any{"name": item.Name, "changes": changes},
		})
	}
	return item, nil
}

func diff(before, after Item) map[string]any {
	changes := map[string]any{}
	pair := func(from, to any) map[string]any {
		return map[string]any{"old": from, "new": to}
	}
	if before.Name != after.Name {
		changes["name"] = pair(before.Name, after.Name)
	}
	if before.Description != after.Description {
		changes["description"] = pair(before.Description, after.Description)
	}
	if !before.Price.Equal(after.Price) {
		changes["price"] = pair(before.Price.StringFixed(2), after.Price.StringFixed(2))
	}
	if before.Category != after.Category {
		changes["category"] = pair(string(before.Category), string(after.Category))
	}
	if before.IsAvailable != after.IsAvailable {
		changes["is_available"] = pair(before.IsAvailable, after.IsAvailable)
	}
	if before.ImageURL != after.ImageURL {
		changes["image_url"] = pair(before.ImageURL, after.ImageURL)
	}
	return changes
}

func (s *service) Delete(ctx context.Context, actor user.Actor, id uuid.UUID) error {
	if !actor.IsElevated() {
		return ErrForbidden
	}
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	affected, err := s.repo.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete menu item '%s': %w", id, err)
	}

	s.recorder.Record(ctx, audit.Entry{
		UserID:       &actor.ID,
		Action:       audit.ActionDelete,
		ResourceType: "menu_item",
		ResourceID:   id.String(),
		Details: map[string]any{
			"menu_item_name":  item.Name,
			"affected_orders": len(affected),
		},
	})
	if len(affected) > 0 {
		log.Info().Stringer("menu_item_id", id).Int("orders", len(affected)).Msg("service: removed menu item lines from orders")
	}
	return nil
}
