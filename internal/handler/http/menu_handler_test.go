package http_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kantinyonetim/canteen-service/internal/menu"
	"github.com/kantinyonetim/canteen-service/internal/user"
)

func TestMenuHandler_PublicList(t *testing.T) {
	s := newTestServer(t)
	s.menu.On("List", mock.Anything, menu.Filter{Category: menu.CategoryDrink, AvailableOnly: true}).
		Return([]menu.Item{{ID: uuid.Must(uuid.NewV4()), Name: "Çay", Price: decimal.RequireFromString("5.00")}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/menu-items/?category=icecek&available=true", nil)
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"name":"Çay"`)

	rr = s.do(t, user.Actor{}, http.MethodGet, "/menu-items/?category=pizza", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMenuHandler_WritesNeedToken(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(t, user.Actor{}, http.MethodPost, "/menu-items/", `{"name": "Simit", "price": "10.00", "category": "aperatif"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMenuHandler_Create(t *testing.T) {
	s := newTestServer(t)
	staff := newActor(user.RoleStaff, "personel")

	s.menu.On("Create", mock.Anything, staff, mock.MatchedBy(func(it *menu.Item) bool {
		return it.Name == "Simit" && it.Price.Equal(decimal.RequireFromString("10")) && it.IsAvailable
	})).Return(&menu.Item{ID: uuid.Must(uuid.NewV4()), Name: "Simit"}, nil).Once()

	rr := s.do(t, staff, http.MethodPost, "/menu-items/", `{"name": "Simit", "price": "10.00", "category": "aperatif"}`)
	assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = s.do(t, staff, http.MethodPost, "/menu-items/", `{"name": "Simit", "price": "on lira", "category": "aperatif"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMenuHandler_UpdatePrice(t *testing.T) {
	s := newTestServer(t)
	staff := newActor(user.RoleStaff, "personel")
	id := uuid.Must(uuid.NewV4())

	s.menu.On("Update", mock.Anything, staff, id, mock.MatchedBy(func(upd menu.Update) bool {
		return upd.Price != nil && upd.Price.Equal(decimal.RequireFromString("-1")) && upd.Name == nil
	})).Return(nil, menu.ErrInvalidPrice).Once()

	rr := s.do(t, staff, http.MethodPatch, fmt.Sprintf("/menu-items/%s/", id), `{"price": -1}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
