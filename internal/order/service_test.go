package order_test

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kantinyonetim/canteen-service/internal/audit"
	"github.com/kantinyonetim/canteen-service/internal/order"
	"github.com/kantinyonetim/canteen-service/internal/user"
)

type fixture struct {
	store    *memStore
	rec      *recorder
	obs      *counter
	svc      order.Service
	customer user.Actor
	staff    user.Actor
	tea      uuid.UUID
	toast    uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := newMemStore()
	f := &fixture{store: st, rec: &recorder{}, obs: &counter{}}
	f.customer = user.Actor{ID: st.addUser("ogrenci"), Username: "ogrenci", Role: user.RoleCustomer}
	f.staff = user.Actor{ID: st.addUser("personel"), Username: "personel", Role: user.RoleStaff}
	f.tea = st.addProduct("Çay", "5.00", 10)
	f.toast = st.addProduct("Tost", "45.50", 10)
	f.svc = order.NewService(st, f.rec, f.obs, 2)
	return f
}

func (f *fixture) openOrder() uuid.UUID {
	return f.store.addOrder(f.customer.ID, order.StatusPending)
}

func (f *fixture) add(t *testing.T, actor user.Actor, orderID, menuItemID uuid.UUID, qty int) *order.Item {
	t.Helper()
	it, err := f.svc.AddItem(context.Background(), actor, order.AddItemInput{OrderID: orderID, MenuItemID: menuItemID, Quantity: qty})
	require.NoError(t, err)
	return it
}

func (f *fixture) total(t *testing.T, orderID uuid.UUID) string {
	t.Helper()
	o, err := f.store.GetOrder(context.Background(), orderID)
	require.NoError(t, err)
	return o.Total.StringFixed(2)
}

func ptr[T any](v T) *T {
	return &v
}

func TestAddItem_DecrementsStockAndRecomputesTotal(t *testing.T) {
	f := newFixture(t)
	orderID := f.openOrder()

	it := f.add(t, f.customer, orderID, f.tea, 3)

	assert.Equal(t, 3, it.Quantity)
	assert.Equal(t, "5.00", it.PriceAtOrderTime.StringFixed(2))
	assert.Equal(t, "15.00", it.LineTotal.StringFixed(2))
	assert.Equal(t, 7, f.store.stock(f.tea))
	assert.Equal(t, "15.00", f.total(t, orderID))

	require.Len(t, f.rec.entries, 1)
	entry := f.rec.entries[0]
	assert.Equal(t, audit.ActionOrderItemAdded, entry.Action)
	assert.Equal(t, "15.00", entry.Details["order_total"])
	assert.Equal(t, 1, f.obs.added)
}

func TestStockRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.openOrder()

	it := f.add(t, f.customer, orderID, f.tea, 3)
	assert.Equal(t, 7, f.store.stock(f.tea))

	updated, err := f.svc.UpdateItem(ctx, f.customer, it.ID, order.UpdateItemInput{Quantity: ptr(5)})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Quantity)
	assert.Equal(t, 5, f.store.stock(f.tea))
	assert.Equal(t, "25.00", f.total(t, orderID))

	require.NoError(t, f.svc.DeleteItem(ctx, f.customer, it.ID))
	assert.Equal(t, 10, f.store.stock(f.tea))
	assert.Equal(t, "0.00", f.total(t, orderID))
}

func TestAddItem_InsufficientStockLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	orderID := f.openOrder()

	_, err := f.svc.AddItem(context.Background(), f.customer, order.AddItemInput{OrderID: orderID, MenuItemID: f.tea, Quantity: 11})

	var stockErr *order.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.ErrorIs(t, err, order.ErrInsufficientStock)
	assert.Equal(t, order.InsufficientStockError{Item: "Çay", Available: 10, Requested: 11}, *stockErr)
	assert.Equal(t, 10, f.store.stock(f.tea))
	assert.Empty(t, f.store.orderItems(orderID))
	assert.Empty(t, f.rec.entries)
	assert.Equal(t, 1, f.obs.rejected)
}

func TestAddItem_ConcurrentExhaustion(t *testing.T) {
	f := newFixture(t)
	lemonade := f.store.addProduct("Limonata", "20.00", 5)

	const buyers = 10
	orders := make([]uuid.UUID, buyers)
	actors := make([]user.Actor, buyers)
	for i := range orders {
		id := f.store.addUser("alici")
		actors[i] = user.Actor{ID: id, Username: "alici", Role: user.RoleCustomer}
		orders[i] = f.store.addOrder(id, order.StatusPending)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failures  []error
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.AddItem(context.Background(), actors[i], order.AddItemInput{OrderID: orders[i], MenuItemID: lemonade, Quantity: 1})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			succeeded++
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	require.Len(t, failures, 5)
	for _, err := range failures {
		assert.ErrorIs(t, err, order.ErrInsufficientStock)
	}
	assert.Equal(t, 0, f.store.stock(lemonade))
}

func TestAddItem_MergeRevalidatesCombinedQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.openOrder()

	first := f.add(t, f.customer, orderID, f.tea, 3)
	merged := f.add(t, f.customer, orderID, f.tea, 3)

	assert.Equal(t, first.ID, merged.ID)
	assert.Equal(t, 6, merged.Quantity)
	assert.Equal(t, 4, f.store.stock(f.tea))

	_, err := f.svc.AddItem(ctx, f.customer, order.AddItemInput{OrderID: orderID, MenuItemID: f.tea, Quantity: 3})
	var stockErr *order.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 9, stockErr.Requested)
	assert.Equal(t, 4, stockErr.Available)
	assert.Equal(t, 4, f.store.stock(f.tea))
	assert.Len(t, f.store.orderItems(orderID), 1)
}

func TestAddItem_PriceOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.openOrder()

	staffLine, err := f.svc.AddItem(ctx, f.staff, order.AddItemInput{OrderID: orderID, MenuItemID: f.toast, Quantity: 2, Price: ptr("5.50")})
	require.NoError(t, err)
	assert.Equal(t, "5.50", staffLine.PriceAtOrderTime.StringFixed(2))
	assert.Equal(t, "11.00", staffLine.LineTotal.StringFixed(2))

	customerLine, err := f.svc.AddItem(ctx, f.customer, order.AddItemInput{OrderID: orderID, MenuItemID: f.tea, Quantity: 1, Price: ptr("1.00")})
	require.NoError(t, err)
	assert.Equal(t, "5.00", customerLine.PriceAtOrderTime.StringFixed(2))
	assert.Equal(t, "16.00", f.total(t, orderID))

	for _, raw := range []string{"abc", "-1"} {
		_, err := f.svc.AddItem(ctx, f.staff, order.AddItemInput{OrderID: orderID, MenuItemID: f.tea, Quantity: 1, Price: ptr(raw)})
		assert.ErrorIs(t, err, order.ErrInvalidPrice, raw)
	}
}

func TestAddItem_PriceConflictOnMerge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.openOrder()

	_, err := f.svc.AddItem(ctx, f.staff, order.AddItemInput{OrderID: orderID, MenuItemID: f.toast, Quantity: 1, Price: ptr("5.50")})
	require.NoError(t, err)

	_, err = f.svc.AddItem(ctx, f.staff, order.AddItemInput{OrderID: orderID, MenuItemID: f.toast, Quantity: 1, Price: ptr("6.00")})
	require.ErrorIs(t, err, order.ErrPriceConflict)
	assert.Equal(t, 9, f.store.stock(f.toast))

	merged, err := f.svc.AddItem(ctx, f.staff, order.AddItemInput{OrderID: orderID, MenuItemID: f.toast, Quantity: 1, Price: ptr("5.5")})
	require.NoError(t, err)
	assert.Equal(t, 2, merged.Quantity)
	assert.Equal(t, "11.00", merged.LineTotal.StringFixed(2))
}

func TestAddItem_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	completed := f.store.addOrder(f.customer.ID, order.StatusCompleted)
	_, err := f.svc.AddItem(ctx, f.customer, order.AddItemInput{OrderID: completed, MenuItemID: f.tea, Quantity: 1})
	assert.ErrorIs(t, err, order.ErrOrderNotModifiable)

	other := user.Actor{ID: f.store.addUser("baska"), Username: "baska", Role: user.RoleCustomer}
	_, err = f.svc.AddItem(ctx, other, order.AddItemInput{OrderID: f.openOrder(), MenuItemID: f.tea, Quantity: 1})
	assert.ErrorIs(t, err, order.ErrForbidden)

	soup := f.store.addProduct("Çorba", "30.00", 10)
	p := f.store.products[soup]
	p.Available = false
	f.store.products[soup] = p
	_, err = f.svc.AddItem(ctx, f.customer, order.AddItemInput{OrderID: f.openOrder(), MenuItemID: soup, Quantity: 1})
	assert.ErrorIs(t, err, order.ErrItemUnavailable)
	assert.Equal(t, 10, f.store.stock(soup))

	_, err = f.svc.AddItem(ctx, f.customer, order.AddItemInput{OrderID: f.openOrder(), MenuItemID: f.tea, Quantity: 0})
	assert.ErrorIs(t, err, order.ErrInvalidQuantity)

	_, err = f.svc.AddItem(ctx, f.customer, order.AddItemInput{OrderID: f.openOrder(), MenuItemID: uuid.Must(uuid.NewV4()), Quantity: 1})
	assert.ErrorIs(t, err, order.ErrMenuItemNotFound)
}

func TestAddItem_LowStockAlertsStaff(t *testing.T) {
	f := newFixture(t)
	orderID := f.openOrder()

	f.add(t, f.customer, orderID, f.tea, 7)
	assert.Equal(t, 3, f.store.stock(f.tea))
	assert.Empty(t, f.rec.staff)

	f.add(t, f.customer, f.openOrder(), f.tea, 1)
	assert.Equal(t, 2, f.store.stock(f.tea))
	require.Len(t, f.rec.staff, 1)
	assert.Equal(t, audit.NotificationStockLow, f.rec.staff[0].Type)
	assert.Equal(t, audit.PriorityHigh, f.rec.staff[0].Priority)
}

func TestUpdateItem_SwapMenuItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.openOrder()
	it := f.add(t, f.customer, orderID, f.tea, 2)

	swapped, err := f.svc.UpdateItem(ctx, f.customer, it.ID, order.UpdateItemInput{MenuItemID: ptr(f.toast)})
	require.NoError(t, err)

	assert.Equal(t, f.toast, swapped.MenuItemID)
	assert.Equal(t, "45.50", swapped.PriceAtOrderTime.StringFixed(2))
	assert.Equal(t, "91.00", swapped.LineTotal.StringFixed(2))
	assert.Equal(t, 10, f.store.stock(f.tea))
	assert.Equal(t, 8, f.store.stock(f.toast))
	assert.Equal(t, "91.00", f.total(t, orderID))
	assert.Contains(t, f.rec.actions(), audit.ActionPriceChanged)
	assert.Contains(t, f.rec.actions(), audit.ActionUpdate)
}

func TestUpdateItem_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.openOrder()
	it := f.add(t, f.customer, orderID, f.tea, 2)

	_, err := f.svc.UpdateItem(ctx, f.customer, it.ID, order.UpdateItemInput{OrderID: ptr(f.openOrder())})
	assert.ErrorIs(t, err, order.ErrOrderReference)

	_, err = f.svc.UpdateItem(ctx, f.customer, it.ID, order.UpdateItemInput{Quantity: ptr(11)})
	assert.ErrorIs(t, err, order.ErrInsufficientStock)
	assert.Equal(t, 8, f.store.stock(f.tea))

	ignored, err := f.svc.UpdateItem(ctx, f.customer, it.ID, order.UpdateItemInput{Quantity: ptr(3), Price: ptr("1.00")})
	require.NoError(t, err)
	assert.Equal(t, "5.00", ignored.PriceAtOrderTime.StringFixed(2))
	assert.Equal(t, 7, f.store.stock(f.tea))

	repriced, err := f.svc.UpdateItem(ctx, f.staff, it.ID, order.UpdateItemInput{Price: ptr("4.25")})
	require.NoError(t, err)
	assert.Equal(t, "12.75", repriced.LineTotal.StringFixed(2))
	assert.Equal(t, "12.75", f.total(t, orderID))

	other := f.add(t, f.customer, orderID, f.toast, 1)
	_, err = f.svc.UpdateItem(ctx, f.customer, other.ID, order.UpdateItemInput{MenuItemID: ptr(f.tea)})
	assert.ErrorIs(t, err, order.ErrDuplicateLine)
}

func TestCancelItem_PartialThenFull(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.openOrder()
	it := f.add(t, f.customer, orderID, f.tea, 4)
	assert.Equal(t, 6, f.store.stock(f.tea))

	c, err := f.svc.CancelItem(ctx, f.customer, it.ID, ptr(1))
	require.NoError(t, err)
	assert.False(t, c.Removed)
	assert.True(t, c.Restocked)
	require.NotNil(t, c.Item)
	assert.Equal(t, 3, c.Item.Quantity)
	assert.Equal(t, "15.00", c.OrderTotal.StringFixed(2))
	assert.Equal(t, 7, f.store.stock(f.tea))

	_, err = f.svc.CancelItem(ctx, f.customer, it.ID, ptr(5))
	assert.ErrorIs(t, err, order.ErrCancelTooMany)
	_, err = f.svc.CancelItem(ctx, f.customer, it.ID, ptr(0))
	assert.ErrorIs(t, err, order.ErrInvalidQuantity)

	c, err = f.svc.CancelItem(ctx, f.customer, it.ID, nil)
	require.NoError(t, err)
	assert.True(t, c.Removed)
	assert.Nil(t, c.Item)
	assert.Equal(t, 10, f.store.stock(f.tea))
	assert.Equal(t, "0.00", f.total(t, orderID))

	require.Len(t, f.rec.direct, 2)
	assert.Equal(t, f.customer.ID, f.rec.direct[1].RecipientID)
	assert.Equal(t, audit.NotificationOrderStatus, f.rec.direct[1].Type)
}

func TestCancelItem_CompletedOrderIsNotRestocked(t *testing.T) {
	f := newFixture(t)
	orderID := f.store.addOrder(f.customer.ID, order.StatusCompleted)
	f.store.stocks[f.tea] = 8
	itemID := f.store.seedLine(orderID, f.tea, 2)

	c, err := f.svc.CancelItem(context.Background(), f.staff, itemID, nil)
	require.NoError(t, err)

	assert.True(t, c.Removed)
	assert.False(t, c.Restocked)
	assert.Equal(t, 8, f.store.stock(f.tea))
}

func TestDeleteItem_Forbidden(t *testing.T) {
	f := newFixture(t)
	it := f.add(t, f.customer, f.openOrder(), f.tea, 1)
	other := user.Actor{ID: f.store.addUser("baska"), Username: "baska", Role: user.RoleCustomer}

	err := f.svc.DeleteItem(context.Background(), other, it.ID)
	assert.ErrorIs(t, err, order.ErrForbidden)
	assert.Equal(t, 9, f.store.stock(f.tea))
}

func TestCancelOrder_RestocksEveryLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.openOrder()
	f.add(t, f.customer, orderID, f.tea, 2)
	f.add(t, f.customer, orderID, f.toast, 1)
	f.rec.entries = nil

	o, err := f.svc.CancelOrder(ctx, f.customer, orderID)
	require.NoError(t, err)

	assert.Equal(t, order.StatusCancelled, o.Status)
	assert.True(t, o.Total.IsZero())
	assert.Len(t, o.Items, 2)
	assert.Equal(t, 10, f.store.stock(f.tea))
	assert.Equal(t, 10, f.store.stock(f.toast))
	want := []audit.Action{audit.ActionItemCancelled, audit.ActionItemCancelled, audit.ActionOrderStatusChanged}
	if diff := cmp.Diff(want, f.rec.actions()); diff != "" {
		t.Errorf("audit actions mismatch (-want +got):\n%s", diff)
	}

	_, err = f.svc.CancelOrder(ctx, f.customer, orderID)
	assert.ErrorIs(t, err, order.ErrInvalidTransition)
}

func TestCancelOrder_NotFromReady(t *testing.T) {
	f := newFixture(t)
	orderID := f.store.addOrder(f.customer.ID, order.StatusReady)

	_, err := f.svc.CancelOrder(context.Background(), f.customer, orderID)
	assert.ErrorIs(t, err, order.ErrInvalidTransition)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.openOrder()

	_, err := f.svc.UpdateStatus(ctx, f.customer, orderID, order.StatusPreparing)
	require.ErrorIs(t, err, order.ErrForbidden)

	for _, next := range []order.Status{order.StatusPreparing, order.StatusReady} {
		o, err := f.svc.UpdateStatus(ctx, f.staff, orderID, next)
		require.NoError(t, err)
		assert.Equal(t, next, o.Status)
	}

	_, err = f.svc.UpdateStatus(ctx, f.staff, orderID, order.StatusCancelled)
	assert.ErrorIs(t, err, order.ErrInvalidTransition)
	_, err = f.svc.UpdateStatus(ctx, f.staff, orderID, order.StatusPending)
	assert.ErrorIs(t, err, order.ErrInvalidTransition)
	_, err = f.svc.UpdateStatus(ctx, f.staff, orderID, order.Status("lost"))
	assert.ErrorIs(t, err, order.ErrInvalidTransition)

	o, err := f.svc.UpdateStatus(ctx, f.staff, orderID, order.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, o.Status)
	assert.Len(t, f.rec.direct, 3)
}

func TestUpdateStatus_CancelRestocksAndIsFinal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.openOrder()
	f.add(t, f.customer, orderID, f.tea, 3)

	o, err := f.svc.UpdateStatus(ctx, f.staff, orderID, order.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, o.Status)
	assert.Equal(t, "0.00", o.Total.StringFixed(2))
	assert.Equal(t, 10, f.store.stock(f.tea))

	_, err = f.svc.UpdateStatus(ctx, f.staff, orderID, order.StatusPending)
	assert.ErrorIs(t, err, order.ErrInvalidTransition)
}

func TestPlaceOrder_AllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.stocks[f.toast] = 1

	_, err := f.svc.PlaceOrder(ctx, f.customer, order.PlaceOrderInput{Lines: []order.CartLine{
		{MenuItemID: f.tea, Quantity: 2},
		{MenuItemID: f.toast, Quantity: 3},
	}})
	var stockErr *order.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Tost", stockErr.Item)
	assert.Equal(t, 0, f.store.orderCount())
	assert.Equal(t, 10, f.store.stock(f.tea))
	assert.Equal(t, 1, f.store.stock(f.toast))

	o, err := f.svc.PlaceOrder(ctx, f.customer, order.PlaceOrderInput{Notes: " acısız ", Lines: []order.CartLine{
		{MenuItemID: f.tea, Quantity: 2},
		{MenuItemID: f.toast, Quantity: 1},
		{MenuItemID: f.tea, Quantity: 1},
	}})
	require.NoError(t, err)
	assert.Equal(t, "acısız", o.Notes)
	assert.Len(t, o.Items, 2)
	assert.Equal(t, "60.50", o.Total.StringFixed(2))
	assert.Equal(t, 7, f.store.stock(f.tea))
	assert.Equal(t, 0, f.store.stock(f.toast))
	assert.Equal(t, 1, f.obs.placed["cart"])

	types := make([]audit.NotificationType, 0, len(f.rec.staff))
	for _, n := range f.rec.staff {
		types = append(types, n.Type)
	}
	assert.ElementsMatch(t, []audit.NotificationType{audit.NotificationStockLow, audit.NotificationOrderNew}, types)
	assert.Contains(t, f.rec.actions(), audit.ActionOrderPlaced)
}

func TestPlaceOrder_OnBehalfOfUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	line := []order.CartLine{{MenuItemID: f.tea, Quantity: 1}}

	o, err := f.svc.PlaceOrder(ctx, f.staff, order.PlaceOrderInput{UserID: &f.customer.ID, Lines: line})
	require.NoError(t, err)
	assert.Equal(t, f.customer.ID, o.UserID)
	assert.Equal(t, "ogrenci", o.UserUsername)

	o, err = f.svc.PlaceOrder(ctx, f.customer, order.PlaceOrderInput{UserID: &f.staff.ID, Lines: line})
	require.NoError(t, err)
	assert.Equal(t, f.customer.ID, o.UserID)

	missing := uuid.Must(uuid.NewV4())
	_, err = f.svc.PlaceOrder(ctx, f.staff, order.PlaceOrderInput{UserID: &missing, Lines: line})
	assert.ErrorIs(t, err, order.ErrUserNotFound)

	_, err = f.svc.PlaceOrder(ctx, f.customer, order.PlaceOrderInput{})
	assert.ErrorIs(t, err, order.ErrEmptyOrder)
}

func TestPlaceNamedOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.svc.PlaceNamedOrder(ctx, f.customer, "", []order.NamedLine{
		{Name: "ÇAY", Quantity: 2},
		{Name: " tost ", Quantity: 1},
	})
	require.NoError(t, err)
	assert.Len(t, o.Items, 2)
	assert.Equal(t, "55.50", o.Total.StringFixed(2))
	assert.Equal(t, 8, f.store.stock(f.tea))
	assert.Equal(t, 1, f.obs.placed["voice"])

	_, err = f.svc.PlaceNamedOrder(ctx, f.customer, "", []order.NamedLine{
		{Name: "Çay", Quantity: 1},
		{Name: "Pizza", Quantity: 1},
	})
	var unknown *order.UnknownItemError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "Pizza", unknown.Name)
	assert.Equal(t, 8, f.store.stock(f.tea))
	assert.Equal(t, 1, f.store.orderCount())
}

func TestPlaceOrder_RejectsOverflowingQuantities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.PlaceOrder(ctx, f.customer, order.PlaceOrderInput{Lines: []order.CartLine{
		{MenuItemID: f.tea, Quantity: math.MaxInt},
		{MenuItemID: f.tea, Quantity: math.MaxInt},
	}})
	assert.ErrorIs(t, err, order.ErrInvalidQuantity)

	_, err = f.svc.PlaceOrder(ctx, f.customer, order.PlaceOrderInput{Lines: []order.CartLine{
		{MenuItemID: f.tea, Quantity: math.MaxInt32},
		{MenuItemID: f.tea, Quantity: 1},
	}})
	assert.ErrorIs(t, err, order.ErrInvalidQuantity)

	_, err = f.svc.PlaceNamedOrder(ctx, f.customer, "", []order.NamedLine{
		{Name: "Çay", Quantity: math.MaxInt},
		{Name: "çay", Quantity: math.MaxInt},
	})
	assert.ErrorIs(t, err, order.ErrInvalidQuantity)

	_, err = f.svc.AddItem(ctx, f.customer, order.AddItemInput{OrderID: f.openOrder(), MenuItemID: f.tea, Quantity: math.MaxInt})
	assert.ErrorIs(t, err, order.ErrInvalidQuantity)

	assert.Equal(t, 10, f.store.stock(f.tea))
	assert.Equal(t, 1, f.store.orderCount())
	assert.Empty(t, f.rec.staff)
}

func TestResolveNames(t *testing.T) {
	f := newFixture(t)

	lines, err := f.svc.ResolveNames(context.Background(), []order.NamedLine{{Name: "tost", Quantity: 2}})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, f.toast, lines[0].MenuItemID)
	assert.Equal(t, "Tost", lines[0].Name)
	assert.True(t, lines[0].LineTotal.Equal(decimal.RequireFromString("91")))
	assert.Equal(t, 10, f.store.stock(f.toast))
}

func TestReassignOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.openOrder()
	newOwner := f.store.addUser("yeni")

	_, err := f.svc.ReassignOrder(ctx, f.customer, orderID, newOwner)
	require.ErrorIs(t, err, order.ErrForbidden)

	_, err = f.svc.ReassignOrder(ctx, f.staff, orderID, uuid.Must(uuid.NewV4()))
	require.ErrorIs(t, err, order.ErrUserNotFound)

	o, err := f.svc.ReassignOrder(ctx, f.staff, orderID, newOwner)
	require.NoError(t, err)
	assert.Equal(t, newOwner, o.UserID)
	assert.Equal(t, "yeni", o.UserUsername)
	require.Len(t, f.rec.entries, 1)
	assert.Equal(t, audit.ActionReassign, f.rec.entries[0].Action)
	assert.Equal(t, "ogrenci", f.rec.entries[0].Details["old_customer"])
}

func TestDeleteOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orderID := f.openOrder()
	f.add(t, f.customer, orderID, f.tea, 3)

	require.ErrorIs(t, f.svc.DeleteOrder(ctx, f.customer, orderID), order.ErrForbidden)

	require.NoError(t, f.svc.DeleteOrder(ctx, f.staff, orderID))
	assert.Equal(t, 10, f.store.stock(f.tea))
	_, err := f.store.GetOrder(ctx, orderID)
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestReads_AreScopedToOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine := f.openOrder()
	it := f.add(t, f.customer, mine, f.tea, 1)
	other := user.Actor{ID: f.store.addUser("baska"), Username: "baska", Role: user.RoleCustomer}
	f.store.addOrder(other.ID, order.StatusPending)

	_, err := f.svc.GetOrder(ctx, other, mine)
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
	_, err = f.svc.GetItem(ctx, other, it.ID)
	assert.ErrorIs(t, err, order.ErrItemNotFound)

	orders, err := f.svc.ListOrders(ctx, f.customer, order.ListFilter{})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, mine, orders[0].ID)

	all, err := f.svc.ListOrders(ctx, f.staff, order.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	items, err := f.svc.ListItems(ctx, other, order.ItemFilter{})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCreateOrder_NotifiesStaffAndCustomer(t *testing.T) {
	f := newFixture(t)

	o, err := f.svc.CreateOrder(context.Background(), f.customer, order.CreateOrderInput{Notes: "masa 4"})
	require.NoError(t, err)

	assert.Equal(t, order.StatusPending, o.Status)
	assert.True(t, o.Total.IsZero())
	require.Len(t, f.rec.staff, 1)
	assert.Equal(t, audit.NotificationOrderNew, f.rec.staff[0].Type)
	require.Len(t, f.rec.direct, 1)
	assert.Equal(t, f.customer.ID, f.rec.direct[0].RecipientID)
}
