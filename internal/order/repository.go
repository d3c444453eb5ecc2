package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kantinyonetim/canteen-service/internal/db"
)

type postgresStore struct {
	pool *pgxpool.Pool
	iso  pgx.TxIsoLevel
}

func NewRepository(pool *pgxpool.Pool, iso pgx.TxIsoLevel) Store {
	return &postgresStore{pool: pool, iso: iso}
}

const orderSelect = `
	SELECT o.id, o.user_id, u.username, o.status, o.total, o.notes, o.created_at, o.updated_at
	FROM orders o
	JOIN users u ON u.id = o.user_id`

const itemSelect = `
	SELECT oi.id, oi.order_id, oi.menu_item_id, m.name, oi.quantity,
		oi.price_at_order_time, oi.line_total, oi.created_at, oi.updated_at
	FROM order_items oi
	JOIN menu_items m ON m.id = oi.menu_item_id`

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.UserID, &o.UserUsername, &o.Status, &o.Total, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Items = []Item{}
	return &o, nil
}

func scanItem(row pgx.Row) (*Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.MenuItemName, &it.Quantity,
		&it.PriceAtOrderTime, &it.LineTotal, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func queryItems(ctx context.Context, q querier, sql string, args ...any) ([]Item, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items: %w", err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item: %w", err)
		}
		items = append(items, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating order items: %w", err)
	}
	return items, nil
}

func (r *postgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	err := db.RunInTx(ctx, r.pool, r.iso, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
	return classify(err)
}

func (r *postgresStore) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, orderSelect+` WHERE o.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order %s: %w", id, err)
	}
	o.Items, err = queryItems(ctx, r.pool, itemSelect+` WHERE oi.order_id = $1 ORDER BY oi.created_at, oi.id`, id)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *postgresStore) ListOrders(ctx context.Context, f ListFilter) ([]Order, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != nil {
		args = append(args, *f.UserID)
		where = append(where, fmt.Sprintf("o.user_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("o.status = $%d", len(args)))
	}
	query := orderSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY o.created_at DESC, o.id"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]Order, 0)
	index := make(map[uuid.UUID]int)
	ids := make([]string, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		index[o.ID] = len(orders)
		ids = append(ids, o.ID.String())
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating orders: %w", err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	items, err := queryItems(ctx, r.pool,
		itemSelect+` WHERE oi.order_id = ANY($1::text[]::uuid[]) ORDER BY oi.created_at, oi.id`, ids)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		o := &orders[index[it.OrderID]]
		o.Items = append(o.Items, it)
	}
	return orders, nil
}

func (r *postgresStore) GetItem(ctx context.Context, id uuid.UUID) (*Item, uuid.UUID, error) {
	var owner uuid.UUID
	err := r.pool.QueryRow(ctx, `
		SELECT o.user_id FROM order_items oi JOIN orders o ON o.id = oi.order_id
		WHERE oi.id = $1`, id).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, uuid.Nil, ErrItemNotFound
		}
		return nil, uuid.Nil, fmt.Errorf("repository: failed to select order item %s: %w", id, err)
	}
	it, err := scanItem(r.pool.QueryRow(ctx, itemSelect+` WHERE oi.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, uuid.Nil, ErrItemNotFound
		}
		return nil, uuid.Nil, fmt.Errorf("repository: failed to select order item %s: %w", id, err)
	}
	return it, owner, nil
}

func (r *postgresStore) ListItems(ctx context.Context, f ItemFilter) ([]Item, error) {
	var (
		where []string
		args  []any
	)
	if f.OrderID != nil {
		args = append(args, *f.OrderID)
		where = append(where, fmt.Sprintf("oi.order_id = $%d", len(args)))
	}
	if f.UserID != nil {
		args = append(args, *f.UserID)
		where = append(where, fmt.Sprintf("o.user_id = $%d", len(args)))
	}
	query := itemSelect + ` JOIN orders o ON o.id = oi.order_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY oi.created_at DESC, oi.id"
	return queryItems(ctx, r.pool, query, args...)
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) InsertOrder(ctx context.Context, o *Order) error {
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("repository: failed to generate order ID: %w", err)
	}
	now := time.Now().UTC()
	_, err = t.tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, status, total, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		id, o.UserID, string(o.Status), o.Total, o.Notes, now,
	)
	if err != nil {
		return mapWriteError(err)
	}
	o.ID, o.CreatedAt, o.UpdatedAt = id, now, now
	return nil
}

func (t *pgTx) LockOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, orderSelect+` WHERE o.id = $1 FOR UPDATE OF o`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to lock order %s: %w", id, err)
	}
	return o, nil
}

func (t *pgTx) exec(ctx context.Context, what string, sql string, args ...any) error {
	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repository: %s: no rows affected", what)
	}
	return nil
}

func (t *pgTx) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	return t.exec(ctx, "set order status",
		`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`, string(status), id)
}

func (t *pgTx) SetOwner(ctx context.Context, id, userID uuid.UUID) error {
	return t.exec(ctx, "set order owner",
		`UPDATE orders SET user_id = $1, updated_at = NOW() WHERE id = $2`, userID, id)
}

func (t *pgTx) SetTotal(ctx context.Context, id uuid.UUID, total decimal.Decimal) error {
	return t.exec(ctx, "set order total",
		`UPDATE orders SET total = $1, updated_at = NOW() WHERE id = $2`, total, id)
}

func (t *pgTx) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("repository: failed to delete order %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (t *pgTx) ItemOrderID(ctx context.Context, itemID uuid.UUID) (uuid.UUID, error) {
	var orderID uuid.UUID
	err := t.tx.QueryRow(ctx, `SELECT order_id FROM order_items WHERE id = $1`, itemID).Scan(&orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrItemNotFound
		}
		return uuid.Nil, fmt.Errorf("repository: failed to select order item %s: %w", itemID, err)
	}
	return orderID, nil
}

func (t *pgTx) LockItem(ctx context.Context, id uuid.UUID) (*Item, error) {
	it, err := scanItem(t.tx.QueryRow(ctx, itemSelect+` WHERE oi.id = $1 FOR UPDATE OF oi`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("repository: failed to lock order item %s: %w", id, err)
	}
	return it, nil
}

func (t *pgTx) FindLine(ctx context.Context, orderID, menuItemID uuid.UUID) (*Item, error) {
	it, err := scanItem(t.tx.QueryRow(ctx,
		itemSelect+` WHERE oi.order_id = $1 AND oi.menu_item_id = $2 FOR UPDATE OF oi`, orderID, menuItemID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("repository: failed to lock order line: %w", err)
	}
	return it, nil
}

func (t *pgTx) OrderItems(ctx context.Context, orderID uuid.UUID) ([]Item, error) {
	return queryItems(ctx, t.tx, itemSelect+` WHERE oi.order_id = $1 ORDER BY oi.created_at, oi.id`, orderID)
}

func (t *pgTx) InsertItem(ctx context.Context, it *Item) error {
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("repository: failed to generate order item ID: %w", err)
	}
	now := time.Now().UTC()
	_, err = t.tx.Exec(ctx, `
		INSERT INTO order_items (id, order_id, menu_item_id, quantity, price_at_order_time, line_total, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		id, it.OrderID, it.MenuItemID, it.Quantity, it.PriceAtOrderTime, it.LineTotal, now,
	)
	if err != nil {
		return mapWriteError(err)
	}
	it.ID, it.CreatedAt, it.UpdatedAt = id, now, now
	return nil
}

func (t *pgTx) UpdateItem(ctx context.Context, it *Item) error {
	it.UpdatedAt = time.Now().UTC()
	return t.exec(ctx, "update order item", `
		UPDATE order_items
		SET menu_item_id = $1, quantity = $2, price_at_order_time = $3, line_total = $4, updated_at = $5
		WHERE id = $6`,
		it.MenuItemID, it.Quantity, it.PriceAtOrderTime, it.LineTotal, it.UpdatedAt, it.ID,
	)
}

func (t *pgTx) DeleteItem(ctx context.Context, id uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM order_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("repository: failed to delete order item %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// LockStocks relies on ORDER BY being applied before FOR UPDATE takes the
// row locks, which gives every transaction the same acquisition order.
func (t *pgTx) LockStocks(ctx context.Context, menuItemIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	wanted := make(map[uuid.UUID]struct{}, len(menuItemIDs))
	ids := make([]string, 0, len(menuItemIDs))
	for _, id := range menuItemIDs {
		if _, ok := wanted[id]; ok {
			continue
		}
		wanted[id] = struct{}{}
		ids = append(ids, id.String())
	}

	rows, err := t.tx.Query(ctx, `
		SELECT menu_item_id, quantity FROM stocks
		WHERE menu_item_id = ANY($1::text[]::uuid[])
		ORDER BY menu_item_id
		FOR UPDATE`, ids)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to lock stocks: %w", err)
	}
	defer rows.Close()

	levels := make(map[uuid.UUID]int, len(ids))
	for rows.Next() {
		var (
			id  uuid.UUID
			qty int
		)
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, fmt.Errorf("repository: failed to scan stock: %w", err)
		}
		levels[id] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating stocks: %w", err)
	}

	for id := range wanted {
		if _, ok := levels[id]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoStockRecord, id)
		}
	}
	return levels, nil
}

func (t *pgTx) SetStock(ctx context.Context, menuItemID uuid.UUID, qty int) error {
	return t.exec(ctx, "set stock",
		`UPDATE stocks SET quantity = $1, updated_at = NOW() WHERE menu_item_id = $2`, qty, menuItemID)
}

func (t *pgTx) Product(ctx context.Context, id uuid.UUID) (*Product, error) {
	var p Product
	err := t.tx.QueryRow(ctx, `SELECT id, name, price, is_available FROM menu_items WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Price, &p.Available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMenuItemNotFound
		}
		return nil, fmt.Errorf("repository: failed to select menu item %s: %w", id, err)
	}
	return &p, nil
}

func (t *pgTx) Products(ctx context.Context) ([]Product, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, name, price, is_available FROM menu_items ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query menu items: %w", err)
	}
	defer rows.Close()

	products := make([]Product, 0)
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Available); err != nil {
			return nil, fmt.Errorf("repository: failed to scan menu item: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating menu items: %w", err)
	}
	return products, nil
}

func (t *pgTx) Username(ctx context.Context, userID uuid.UUID) (string, error) {
	var name string
	err := t.tx.QueryRow(ctx, `SELECT username FROM users WHERE id = $1`, userID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("repository: failed to select user %s: %w", userID, err)
	}
	return name, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			if pgErr.ConstraintName == "order_items_order_menu_item_key" {
				return ErrDuplicateLine
			}
		case pgerrcode.ForeignKeyViolation:
			switch pgErr.ConstraintName {
			case "orders_user_id_fkey":
				return ErrUserNotFound
			case "order_items_menu_item_id_fkey":
				return ErrMenuItemNotFound
			case "order_items_order_id_fkey":
				return ErrOrderNotFound
			}
		case pgerrcode.CheckViolation:
			if pgErr.ConstraintName == "stocks_quantity_non_negative" {
				return ErrInsufficientStock
			}
		}
	}
	return fmt.Errorf("repository: failed to write order data: %w", err)
}

// classify turns lock conflicts reported by Postgres into ErrConflict.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		}
	}
	return err
}
