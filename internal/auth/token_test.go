package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kantinyonetim/canteen-service/internal/user"
)

func TestTokenManager_IssueAndParse(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)
	u := &user.User{ID: uuid.Must(uuid.NewV4()), Username: "kasiyer", Role: user.RoleStaff}

	token, expires, err := m.Issue(u)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	actor, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, actor.ID)
	assert.Equal(t, user.RoleStaff, actor.Role)
	assert.True(t, actor.IsElevated())
}

func TestTokenManager_RejectsExpiredAndForeign(t *testing.T) {
	m := NewTokenManager("test-secret", time.Minute)
	u := &user.User{ID: uuid.Must(uuid.NewV4()), Username: "ogrenci", Role: user.RoleCustomer}

	token, _, err := m.Issue(u)
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = m.Parse(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	other := NewTokenManager("another-secret", time.Minute)
	foreign, _, err := other.Issue(u)
	require.NoError(t, err)
	_, err = NewTokenManager("test-secret", time.Minute).Parse(foreign)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_RejectsUnknownRole(t *testing.T) {
	m := NewTokenManager("test-secret", time.Minute)
	claims := Claims{
		Role: "root",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.Must(uuid.NewV4()).String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = m.Parse(raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)
	customer := &user.User{ID: uuid.Must(uuid.NewV4()), Username: "ogrenci", Role: user.RoleCustomer}
	staff := &user.User{ID: uuid.Must(uuid.NewV4()), Username: "kasiyer", Role: user.RoleStaff}

	var seen user.Actor
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = user.ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := m.Authenticate(RequireElevated(final))

	do := func(token string) int {
		req := httptest.NewRequest(http.MethodGet, "/stocks/", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusUnauthorized, do(""))
	assert.Equal(t, http.StatusUnauthorized, do("garbage"))

	customerToken, _, err := m.Issue(customer)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, do(customerToken))

	staffToken, _, err := m.Issue(staff)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, do(staffToken))
	assert.Equal(t, staff.ID, seen.ID)
}
