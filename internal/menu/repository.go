package menu

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kantinyonetim/canteen-service/internal/db"
)

type Repository interface {
	Create(ctx context.Context, item *Item) error
	GetByID(ctx context.Context, id uuid.UUID) (*Item, error)
	List(ctx context.Context, f Filter) ([]Item, error)
	Update(ctx context.Context, item *Item) error
	// Delete removes the item together with its stock and order lines and
	// returns the orders whose totals were recalculated.
	Delete(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

const itemColumns = `m.id, m.name, m.description, m.price, m.category, m.is_available, m.image_url,
	COALESCE(s.quantity, 0), m.created_at, m.updated_at`

func scanItem(row pgx.Row) (*Item, error) {
	var it Item
	err := row.Scan(
		&it.ID,
		&it.Name,
		&it.Description,
		&it.Price,
		&it.Category,
		&it.IsAvailable,
		&it.ImageURL,
		&it.StockQuantity,
		&it.CreatedAt,
		&it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// Create inserts the item together with an empty stock record.
func (r *postgresRepository) Create(ctx context.Context, item *Item) error {
	itemID, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("repository: failed to generate menu item ID: %w", err)
	}
	stockID, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("repository: failed to generate stock ID: %w", err)
	}
	now := time.Now().UTC()

	err = db.RunInTx(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO menu_items (id, name, description, price, category, is_available, image_url, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			itemID, item.Name, item.Description, item.Price, string(item.Category), item.IsAvailable, item.ImageURL, now, now,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to insert menu item: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO stocks (id, menu_item_id, quantity, created_at, updated_at)
			VALUES ($1, $2, 0, $3, $3)`,
			stockID, itemID, now,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to insert stock for menu item: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	item.ID = itemID
	item.StockQuantity = 0
	item.CreatedAt = now
	item.UpdatedAt = now
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM menu_items m LEFT JOIN stocks s ON s.menu_item_id = m.id WHERE m.id = $1`
	it, err := scanItem(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to select menu item %s: %w", id, err)
	}
	return it, nil
}

func (r *postgresRepository) List(ctx context.Context, f Filter) ([]Item, error) {
	var (
		conds []string
		args  []any
	)
	if f.Category != "" {
		args = append(args, string(f.Category))
		conds = append(conds, fmt.Sprintf("m.category = $%d", len(args)))
	}
	if f.AvailableOnly {
		conds = append(conds, "m.is_available")
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+s+"%")
		conds = append(conds, fmt.Sprintf("m.name ILIKE $%d", len(args)))
	}

	query := `SELECT ` + itemColumns + ` FROM menu_items m LEFT JOIN stocks s ON s.menu_item_id = m.id`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY m.category, m.name"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query menu items: %w", err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan menu item: %w", err)
		}
		items = append(items, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating menu items: %w", err)
	}
	return items, nil
}

func (r *postgresRepository) Update(ctx context.Context, item *Item) error {
	now := time.Now().UTC()
	cmdTag, err := r.pool.Exec(ctx, `
		UPDATE menu_items
		SET name = $1, description = $2, price = $3, category = $4, is_available = $5, image_url = $6, updated_at = $7
		WHERE id = $8`,
		item.Name, item.Description, item.Price, string(item.Category), item.IsAvailable, item.ImageURL, now, item.ID,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to update menu item %s: %w", item.ID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	item.UpdatedAt = now
	return nil
}

func (r *postgresRepository) Delete(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	var affected []uuid.UUID
	err := db.RunInTx(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT o.id FROM orders o
			WHERE o.id IN (SELECT order_id FROM order_items WHERE menu_item_id = $1)
			ORDER BY o.id
			FOR UPDATE`, id)
		if err != nil {
			return fmt.Errorf("repository: failed to lock orders of menu item %s: %w", id, err)
		}
		affected, err = pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
		if err != nil {
			return fmt.Errorf("repository: failed to scan order ids: %w", err)
		}

		cmdTag, err := tx.Exec(ctx, `DELETE FROM menu_items WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("repository: failed to delete menu item %s: %w", id, err)
		}
		if cmdTag.RowsAffected() == 0 {
			return ErrNotFound
		}
		if len(affected) == 0 {
			return nil
		}

		ids := make([]string, 0, len(affected))
		for _, orderID := range affected {
			ids = append(ids, orderID.String())
		}
		// Cancelled orders are worth nothing regardless of their lines.
		_, err = tx.Exec(ctx, `
			UPDATE orders o SET
				total = CASE WHEN o.status = 'cancelled' THEN 0
					ELSE COALESCE((SELECT SUM(oi.line_total) FROM order_items oi WHERE oi.order_id = o.id), 0) END,
				updated_at = NOW()
			WHERE o.id = ANY($1::text[]::uuid[])`, ids)
		if err != nil {
			return fmt.Errorf("repository: failed to recalculate order totals: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return affected, nil
}
