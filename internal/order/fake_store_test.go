package order_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"

	"github.com/kantinyonetim/canteen-service/internal/audit"
	"github.com/kantinyonetim/canteen-service/internal/order"
)

// memStore is an in-memory order.Store. Transactions run one at a time and
// a failed transaction restores the state it started from.
type memStore struct {
	mu       sync.Mutex
	orders   map[uuid.UUID]order.Order
	items    map[uuid.UUID]order.Item
	stocks   map[uuid.UUID]int
	products map[uuid.UUID]order.Product
	users    map[uuid.UUID]string
	clock    time.Time
}

func newMemStore() *memStore {
	return &memStore{
		orders:   make(map[uuid.UUID]order.Order),
		items:    make(map[uuid.UUID]order.Item),
		stocks:   make(map[uuid.UUID]int),
		products: make(map[uuid.UUID]order.Product),
		users:    make(map[uuid.UUID]string),
		clock:    time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) addUser(name string) uuid.UUID {
	id := uuid.Must(uuid.NewV4())
	s.users[id] = name
	return id
}

func (s *memStore) addProduct(name, price string, qty int) uuid.UUID {
	id := uuid.Must(uuid.NewV4())
	s.products[id] = order.Product{ID: id, Name: name, Price: decimal.RequireFromString(price), Available: true}
	s.stocks[id] = qty
	return id
}

func (s *memStore) addOrder(userID uuid.UUID, status order.Status) uuid.UUID {
	id := uuid.Must(uuid.NewV4())
	s.orders[id] = order.Order{ID: id, UserID: userID, Status: status, Total: decimal.Zero, CreatedAt: s.tick()}
	return id
}

func (s *memStore) stock(id uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stocks[id]
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Millisecond)
	return s.clock
}

type snapshot struct {
	orders map[uuid.UUID]order.Order
	items  map[uuid.UUID]order.Item
	stocks map[uuid.UUID]int
}

func (s *memStore) snapshot() snapshot {
	snap := snapshot{
		orders: make(map[uuid.UUID]order.Order, len(s.orders)),
		items:  make(map[uuid.UUID]order.Item, len(s.items)),
		stocks: make(map[uuid.UUID]int, len(s.stocks)),
	}
	for k, v := range s.orders {
		snap.orders[k] = v
	}
	for k, v := range s.items {
		snap.items[k] = v
	}
	for k, v := range s.stocks {
		snap.stocks[k] = v
	}
	return snap
}

func (s *memStore) WithTx(ctx context.Context, fn func(tx order.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&memTx{s: s}); err != nil {
		s.orders, s.items, s.stocks = snap.orders, snap.items, snap.stocks
		return err
	}
	return nil
}

func (s *memStore) GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadOrder(id, true)
}

func (s *memStore) ListOrders(ctx context.Context, f order.ListFilter) ([]order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]order.Order, 0)
	for id, o := range s.orders {
		if f.UserID != nil && o.UserID != *f.UserID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		full, _ := s.loadOrder(id, true)
		out = append(out, *full)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) GetItem(ctx context.Context, id uuid.UUID) (*order.Item, uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[id]
	if !ok {
		return nil, uuid.Nil, order.ErrItemNotFound
	}
	return &it, s.orders[it.OrderID].UserID, nil
}

func (s *memStore) ListItems(ctx context.Context, f order.ItemFilter) ([]order.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]order.Item, 0)
	for _, it := range s.items {
		if f.OrderID != nil && it.OrderID != *f.OrderID {
			continue
		}
		if f.UserID != nil && s.orders[it.OrderID].UserID != *f.UserID {
			continue
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) loadOrder(id uuid.UUID, withItems bool) (*order.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	o.UserUsername = s.users[o.UserID]
	o.Items = []order.Item{}
	if withItems {
		o.Items = s.orderItems(id)
	}
	return &o, nil
}

func (s *memStore) orderItems(orderID uuid.UUID) []order.Item {
	out := make([]order.Item, 0)
	for _, it := range s.items {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

type memTx struct {
	s *memStore
}

func (t *memTx) InsertOrder(ctx context.Context, o *order.Order) error {
	if _, ok := t.s.users[o.UserID]; !ok {
		return order.ErrUserNotFound
	}
	o.ID = uuid.Must(uuid.NewV4())
	o.CreatedAt = t.s.tick()
	o.UpdatedAt = o.CreatedAt
	stored := *o
	stored.Items = nil
	t.s.orders[o.ID] = stored
	return nil
}

func (t *memTx) LockOrder(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return t.s.loadOrder(id, false)
}

func (t *memTx) update(id uuid.UUID, fn func(o *order.Order)) error {
	o, ok := t.s.orders[id]
	if !ok {
		return order.ErrOrderNotFound
	}
	fn(&o)
	t.s.orders[id] = o
	return nil
}

func (t *memTx) SetStatus(ctx context.Context, id uuid.UUID, status order.Status) error {
	return t.update(id, func(o *order.Order) { o.Status = status })
}

func (t *memTx) SetOwner(ctx context.Context, id, userID uuid.UUID) error {
	return t.update(id, func(o *order.Order) { o.UserID = userID })
}

func (t *memTx) SetTotal(ctx context.Context, id uuid.UUID, total decimal.Decimal) error {
	return t.update(id, func(o *order.Order) { o.Total = total })
}

func (t *memTx) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	if _, ok := t.s.orders[id]; !ok {
		return order.ErrOrderNotFound
	}
	delete(t.s.orders, id)
	for itemID, it := range t.s.items {
		if it.OrderID == id {
			delete(t.s.items, itemID)
		}
	}
	return nil
}

func (t *memTx) ItemOrderID(ctx context.Context, itemID uuid.UUID) (uuid.UUID, error) {
	it, ok := t.s.items[itemID]
	if !ok {
		return uuid.Nil, order.ErrItemNotFound
	}
	return it.OrderID, nil
}

func (t *memTx) LockItem(ctx context.Context, id uuid.UUID) (*order.Item, error) {
	it, ok := t.s.items[id]
	if !ok {
		return nil, order.ErrItemNotFound
	}
	return &it, nil
}

func (t *memTx) FindLine(ctx context.Context, orderID, menuItemID uuid.UUID) (*order.Item, error) {
	for _, it := range t.s.items {
		if it.OrderID == orderID && it.MenuItemID == menuItemID {
			return &it, nil
		}
	}
	return nil, nil
}

func (t *memTx) OrderItems(ctx context.Context, orderID uuid.UUID) ([]order.Item, error) {
	return t.s.orderItems(orderID), nil
}

func (t *memTx) InsertItem(ctx context.Context, it *order.Item) error {
	if existing, _ := t.FindLine(ctx, it.OrderID, it.MenuItemID); existing != nil {
		return order.ErrDuplicateLine
	}
	it.ID = uuid.Must(uuid.NewV4())
	it.CreatedAt = t.s.tick()
	it.UpdatedAt = it.CreatedAt
	t.s.items[it.ID] = *it
	return nil
}

func (t *memTx) UpdateItem(ctx context.Context, it *order.Item) error {
	if _, ok := t.s.items[it.ID]; !ok {
		return order.ErrItemNotFound
	}
	t.s.items[it.ID] = *it
	return nil
}

func (t *memTx) DeleteItem(ctx context.Context, id uuid.UUID) error {
	if _, ok := t.s.items[id]; !ok {
		return order.ErrItemNotFound
	}
	delete(t.s.items, id)
	return nil
}

func (t *memTx) LockStocks(ctx context.Context, menuItemIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	levels := make(map[uuid.UUID]int, len(menuItemIDs))
	for _, id := range menuItemIDs {
		qty, ok := t.s.stocks[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", order.ErrNoStockRecord, id)
		}
		levels[id] = qty
	}
	return levels, nil
}

func (t *memTx) SetStock(ctx context.Context, menuItemID uuid.UUID, qty int) error {
	if qty < 0 {
		return order.ErrInsufficientStock
	}
	t.s.stocks[menuItemID] = qty
	return nil
}

func (t *memTx) Product(ctx context.Context, id uuid.UUID) (*order.Product, error) {
	p, ok := t.s.products[id]
	if !ok {
		return nil, order.ErrMenuItemNotFound
	}
	return &p, nil
}

func (t *memTx) Products(ctx context.Context) ([]order.Product, error) {
	out := make([]order.Product, 0, len(t.s.products))
	for _, p := range t.s.products {
		out = append(out, p)
	}
	return out, nil
}

func (t *memTx) Username(ctx context.Context, userID uuid.UUID) (string, error) {
	name, ok := t.s.users[userID]
	if !ok {
		return "", order.ErrUserNotFound
	}
	return name, nil
}

// recorder captures flushed side effects.
type recorder struct {
	mu      sync.Mutex
	entries []audit.Entry
	direct  []audit.Notification
	staff   []audit.Notification
}

func (r *recorder) Record(_ context.Context, e audit.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recorder) Notify(_ context.Context, n audit.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.direct = append(r.direct, n)
}

func (r *recorder) NotifyStaff(_ context.Context, n audit.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.staff = append(r.staff, n)
}

func (r *recorder) actions() []audit.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audit.Action, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

type counter struct {
	mu       sync.Mutex
	placed   map[string]int
	added    int
	rejected int
}

func (c *counter) OrderPlaced(source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.placed == nil {
		c.placed = make(map[string]int)
	}
	c.placed[source]++
}

func (c *counter) ItemsAdded(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.added += n
}

func (c *counter) StockRejected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejected++
}

// seedLine writes a line without touching stock.
func (s *memStore) seedLine(orderID, productID uuid.UUID, qty int) uuid.UUID {
	p := s.products[productID]
	it := order.Item{
		ID:               uuid.Must(uuid.NewV4()),
		OrderID:          orderID,
		MenuItemID:       productID,
		MenuItemName:     p.Name,
		Quantity:         qty,
		PriceAtOrderTime: p.Price,
		CreatedAt:        s.tick(),
	}
	it.Recalculate()
	s.items[it.ID] = it
	return it.ID
}
