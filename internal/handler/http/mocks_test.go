package http_test

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/kantinyonetim/canteen-service/internal/audit"
	"github.com/kantinyonetim/canteen-service/internal/menu"
	"github.com/kantinyonetim/canteen-service/internal/order"
	"github.com/kantinyonetim/canteen-service/internal/stock"
	"github.com/kantinyonetim/canteen-service/internal/user"
	"github.com/kantinyonetim/canteen-service/internal/voice"
)

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) order(args mock.Arguments) (*order.Order, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) item(args mock.Arguments) (*order.Item, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Item), args.Error(1)
}

func (m *MockOrderService) CreateOrder(ctx context.Context, actor user.Actor, in order.CreateOrderInput) (*order.Order, error) {
	return m.order(m.Called(ctx, actor, in))
}

func (m *MockOrderService) PlaceOrder(ctx context.Context, actor user.Actor, in order.PlaceOrderInput) (*order.Order, error) {
	return m.order(m.Called(ctx, actor, in))
}

func (m *MockOrderService) PlaceNamedOrder(ctx context.Context, actor user.Actor, notes string, lines []order.NamedLine) (*order.Order, error) {
	return m.order(m.Called(ctx, actor, notes, lines))
}

func (m *MockOrderService) ResolveNames(ctx context.Context, lines []order.NamedLine) ([]order.ResolvedLine, error) {
	args := m.Called(ctx, lines)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.ResolvedLine), args.Error(1)
}

func (m *MockOrderService) GetOrder(ctx context.Context, actor user.Actor, id uuid.UUID) (*order.Order, error) {
	return m.order(m.Called(ctx, actor, id))
}

func (m *MockOrderService) ListOrders(ctx context.Context, actor user.Actor, f order.ListFilter) ([]order.Order, error) {
	args := m.Called(ctx, actor, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockOrderService) UpdateStatus(ctx context.Context, actor user.Actor, id uuid.UUID, next order.Status) (*order.Order, error) {
	return m.order(m.Called(ctx, actor, id, next))
}

func (m *MockOrderService) CancelOrder(ctx context.Context, actor user.Actor, id uuid.UUID) (*order.Order, error) {
	return m.order(m.Called(ctx, actor, id))
}

func (m *MockOrderService) ReassignOrder(ctx context.Context, actor user.Actor, id, userID uuid.UUID) (*order.Order, error) {
	return m.order(m.Called(ctx, actor, id, userID))
}

func (m *MockOrderService) DeleteOrder(ctx context.Context, actor user.Actor, id uuid.UUID) error {
	return m.Called(ctx, actor, id).Error(0)
}

func (m *MockOrderService) AddItem(ctx context.Context, actor user.Actor, in order.AddItemInput) (*order.Item, error) {
	return m.item(m.Called(ctx, actor, in))
}

func (m *MockOrderService) UpdateItem(ctx context.Context, actor user.Actor, id uuid.UUID, in order.UpdateItemInput) (*order.Item, error) {
	return m.item(m.Called(ctx, actor, id, in))
}

func (m *MockOrderService) CancelItem(ctx context.Context, actor user.Actor, id uuid.UUID, qty *int) (*order.Cancellation, error) {
	args := m.Called(ctx, actor, id, qty)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Cancellation), args.Error(1)
}

func (m *MockOrderService) DeleteItem(ctx context.Context, actor user.Actor, id uuid.UUID) error {
	return m.Called(ctx, actor, id).Error(0)
}

func (m *MockOrderService) GetItem(ctx context.Context, actor user.Actor, id uuid.UUID) (*order.Item, error) {
	return m.item(m.Called(ctx, actor, id))
}

func (m *MockOrderService) ListItems(ctx context.Context, actor user.Actor, f order.ItemFilter) ([]order.Item, error) {
	args := m.Called(ctx, actor, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Item), args.Error(1)
}

type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) user(args mock.Arguments) (*user.User, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func (m *MockUserService) CreateUser(ctx context.Context, actor user.Actor, u *user.User, password string) (*user.User, error) {
	return m.user(m.Called(ctx, actor, u, password))
}

func (m *MockUserService) GetUser(ctx context.Context, actor user.Actor, id uuid.UUID) (*user.User, error) {
	return m.user(m.Called(ctx, actor, id))
}

func (m *MockUserService) ListUsers(ctx context.Context, actor user.Actor, search string, limit int) ([]user.User, error) {
	args := m.Called(ctx, actor, search, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]user.User), args.Error(1)
}

func (m *MockUserService) UpdateUser(ctx context.Context, actor user.Actor, id uuid.UUID, upd user.Update) (*user.User, error) {
	return m.user(m.Called(ctx, actor, id, upd))
}

func (m *MockUserService) DeleteUser(ctx context.Context, actor user.Actor, id uuid.UUID) error {
	return m.Called(ctx, actor, id).Error(0)
}

func (m *MockUserService) Authenticate(ctx context.Context, login, password string) (*user.User, error) {
	return m.user(m.Called(ctx, login, password))
}

func (m *MockUserService) Logout(ctx context.Context, actor user.Actor) {
	m.Called(ctx, actor)
}

func (m *MockUserService) StaffIDs(ctx context.Context) ([]uuid.UUID, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

type MockStockService struct {
	mock.Mock
}

func (m *MockStockService) List(ctx context.Context, actor user.Actor) ([]stock.Stock, error) {
	args := m.Called(ctx, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]stock.Stock), args.Error(1)
}

func (m *MockStockService) Get(ctx context.Context, actor user.Actor, id uuid.UUID) (*stock.Stock, error) {
	args := m.Called(ctx, actor, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stock.Stock), args.Error(1)
}

func (m *MockStockService) CreateOrIncrement(ctx context.Context, actor user.Actor, menuItemID uuid.UUID, qty int) (*stock.Change, error) {
	args := m.Called(ctx, actor, menuItemID, qty)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stock.Change), args.Error(1)
}

func (m *MockStockService) SetQuantity(ctx context.Context, actor user.Actor, id uuid.UUID, qty int) (*stock.Change, error) {
	args := m.Called(ctx, actor, id, qty)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stock.Change), args.Error(1)
}

type MockAuditService struct {
	mock.Mock
}

func (m *MockAuditService) ListEntries(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]audit.Entry), args.Error(1)
}

func (m *MockAuditService) CreateEntry(ctx context.Context, e audit.Entry) (*audit.Entry, error) {
	args := m.Called(ctx, e)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*audit.Entry), args.Error(1)
}

func (m *MockAuditService) ListNotifications(ctx context.Context, recipientID uuid.UUID) ([]audit.Notification, error) {
	args := m.Called(ctx, recipientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]audit.Notification), args.Error(1)
}

func (m *MockAuditService) MarkRead(ctx context.Context, id, recipientID uuid.UUID) error {
	return m.Called(ctx, id, recipientID).Error(0)
}

type MockVoiceOrderer struct {
	mock.Mock
}

func (m *MockVoiceOrderer) Run(ctx context.Context, actor user.Actor, audio []byte, filename string) (*voice.Result, error) {
	args := m.Called(ctx, actor, audio, filename)
	res, _ := args.Get(0).(*voice.Result)
	return res, args.Error(1)
}

func (m *MockVoiceOrderer) Parse(ctx context.Context, audio []byte, filename string) (*voice.Result, error) {
	args := m.Called(ctx, audio, filename)
	res, _ := args.Get(0).(*voice.Result)
	return res, args.Error(1)
}

type MockMenuService struct {
	mock.Mock
}

func (m *MockMenuService) Create(ctx context.Context, actor user.Actor, item *menu.Item) (*menu.Item, error) {
	args := m.Called(ctx, actor, item)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*menu.Item), args.Error(1)
}

func (m *MockMenuService) Get(ctx context.Context, id uuid.UUID) (*menu.Item, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*menu.Item), args.Error(1)
}

func (m *MockMenuService) List(ctx context.Context, f menu.Filter) ([]menu.Item, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]menu.Item), args.Error(1)
}

func (m *MockMenuService) Update(ctx context.Context, actor user.Actor, id uuid.UUID, upd menu.Update) (*menu.Item, error) {
	args := m.Called(ctx, actor, id, upd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*menu.Item), args.Error(1)
}

func (m *MockMenuService) Delete(ctx context.Context, actor user.Actor, id uuid.UUID) error {
	return m.Called(ctx, actor, id).Error(0)
}
