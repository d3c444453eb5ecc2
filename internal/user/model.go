package user

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleCustomer, RoleStaff, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// IsElevated reports whether the role may act on resources owned by others.
func (r Role) IsElevated() bool {
	switch r {
	case RoleStaff, RoleAdmin:
		return true
	case RoleCustomer:
		return false
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}

type User struct {
	ID           uuid.UUID  `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Role         Role       `json:"role"`
	IsActive     bool       `json:"is_active"`
	CreatedBy    *uuid.UUID `json:"created_by,omitempty"`
	ModifiedBy   *uuid.UUID `json:"modified_by,omitempty"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Update carries a partial change to a user. Nil fields are left untouched.
type Update struct {
	Username  *string
	Email     *string
	Password  *string
	FirstName *string
	LastName  *string
	Role      *Role
	IsActive  *bool
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID       uuid.UUID
	Username string
	Role     Role
}

func (a Actor) IsElevated() bool {
	return a.Role.IsElevated()
}

// CanAccess reports whether the actor may touch a resource owned by ownerID.
func (a Actor) CanAccess(ownerID uuid.UUID) bool {
	return a.IsElevated() || a.ID == ownerID
}

type actorKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
