package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kantinyonetim/canteen-service/internal/db"
)

type Repository interface {
	List(ctx context.Context) ([]Stock, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Stock, error)
	// Increment adds qty to the record for menuItemID, creating it when absent.
	Increment(ctx context.Context, menuItemID uuid.UUID, qty int) (*Change, error)
	// Set overwrites the quantity of the record id.
	Set(ctx context.Context, id uuid.UUID, qty int) (*Change, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
	iso  pgx.TxIsoLevel
}

func NewRepository(pool *pgxpool.Pool, iso pgx.TxIsoLevel) Repository {
	return &postgresRepository{pool: pool, iso: iso}
}

const stockSelect = `
	SELECT s.id, s.menu_item_id, m.name, s.quantity, s.created_at, s.updated_at
	FROM stocks s
	JOIN menu_items m ON m.id = s.menu_item_id`

func scanStock(row pgx.Row) (*Stock, error) {
	var st Stock
	if err := row.Scan(&st.ID, &st.MenuItemID, &st.MenuItemName, &st.Quantity, &st.CreatedAt, &st.UpdatedAt); err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *postgresRepository) List(ctx context.Context) ([]Stock, error) {
	rows, err := r.pool.Query(ctx, stockSelect+` ORDER BY m.name`)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query stocks: %w", err)
	}
	defer rows.Close()

	stocks := make([]Stock, 0)
	for rows.Next() {
		st, err := scanStock(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan stock: %w", err)
		}
		stocks = append(stocks, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating stocks: %w", err)
	}
	return stocks, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Stock, error) {
	st, err := scanStock(r.pool.QueryRow(ctx, stockSelect+` WHERE s.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to select stock %s: %w", id, err)
	}
	return st, nil
}

func (r *postgresRepository) Increment(ctx context.Context, menuItemID uuid.UUID, qty int) (*Change, error) {
	var change *Change
	err := db.RunInTx(ctx, r.pool, r.iso, func(tx pgx.Tx) error {
		current, err := scanStock(tx.QueryRow(ctx, stockSelect+` WHERE s.menu_item_id = $1 FOR UPDATE OF s`, menuItemID))
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("repository: failed to lock stock for menu item %s: %w", menuItemID, err)
		}

		now := time.Now().UTC()
		if current == nil {
			id, err := uuid.NewV4()
			if err != nil {
				return fmt.Errorf("repository: failed to generate stock ID: %w", err)
			}
			// A concurrent first increment may insert the row after our lookup.
			var (
				stockID  uuid.UUID
				quantity int
				inserted bool
			)
			err = tx.QueryRow(ctx, `
				INSERT INTO stocks (id, menu_item_id, quantity, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $4)
				ON CONFLICT (menu_item_id) DO UPDATE
				SET quantity = stocks.quantity + EXCLUDED.quantity, updated_at = EXCLUDED.updated_at
				RETURNING id, quantity, (xmax = 0)`,
				id, menuItemID, qty, now,
			).Scan(&stockID, &quantity, &inserted)
			if err != nil {
				return mapWriteError(err)
			}
			reloaded, err := scanStock(tx.QueryRow(ctx, stockSelect+` WHERE s.id = $1`, stockID))
			if err != nil {
				return fmt.Errorf("repository: failed to reload stock %s: %w", stockID, err)
			}
			change = &Change{Stock: *reloaded, Before: quantity - qty, Created: inserted}
			return nil
		}

		before := current.Quantity
		current.Quantity += qty
		current.UpdatedAt = now
		if _, err := tx.Exec(ctx, `UPDATE stocks SET quantity = $1, updated_at = $2 WHERE id = $3`,
			current.Quantity, now, current.ID); err != nil {
			return mapWriteError(err)
		}
		change = &Change{Stock: *current, Before: before}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

func (r *postgresRepository) Set(ctx context.Context, id uuid.UUID, qty int) (*Change, error) {
	var change *Change
	err := db.RunInTx(ctx, r.pool, r.iso, func(tx pgx.Tx) error {
		current, err := scanStock(tx.QueryRow(ctx, stockSelect+` WHERE s.id = $1 FOR UPDATE OF s`, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("repository: failed to lock stock %s: %w", id, err)
		}

		before := current.Quantity
		current.Quantity = qty
		current.UpdatedAt = time.Now().UTC()
		if _, err := tx.Exec(ctx, `UPDATE stocks SET quantity = $1, updated_at = $2 WHERE id = $3`,
			current.Quantity, current.UpdatedAt, current.ID); err != nil {
			return mapWriteError(err)
		}
		change = &Change{Stock: *current, Before: before}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.ForeignKeyViolation:
			return ErrMenuItemNotFound
		case pgerrcode.CheckViolation:
			return ErrNegativeQuantity
		}
	}
	return fmt.Errorf("repository: failed to write stock: %w", err)
}
