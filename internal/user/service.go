package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/kantinyonetim/canteen-service/internal/audit"
)

// SystemActor performs operations started from the command line.
var SystemActor = Actor{Username: "system", Role: RoleAdmin}

type Service interface {
	CreateUser(ctx context.Context, actor Actor, user *User, password string) (*User, error)
	GetUser(ctx context.Context, actor Actor, id uuid.UUID) (*User, error)
	ListUsers(ctx context.Context, actor Actor, search string, limit int) ([]User, error)
	UpdateUser(ctx context.Context, actor Actor, id uuid.UUID, upd Update) (*User, error)
	DeleteUser(ctx context.Context, actor Actor, id uuid.UUID) error
	Authenticate(ctx context.Context, login, password string) (*User, error)
	Logout(ctx context.Context, actor Actor)
	StaffIDs(ctx context.Context) ([]uuid.UUID, error)
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

// canAssign reports whether actor may give role to an account.
func canAssign(actor Actor, role Role) bool {
	switch role {
	case RoleCustomer:
		return true
	case RoleStaff:
		return actor.IsElevated()
	case RoleAdmin:
		return actor.Role == RoleAdmin
	default:
		return false
	}
}

func actorRef(actor Actor) *uuid.UUID {
	if actor.ID == uuid.Nil {
		return nil
	}
	id := actor.ID
	return &id
}

func hashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to generate password hash")
		return "", fmt.Errorf("internal error hashing password: %w", err)
	}
	return string(hash), nil
}

func (s *service) CreateUser(ctx context.Context, actor Actor, user *User, password string) (*User, error) {
	if user.Role == "" {
		user.Role = RoleCustomer
	}
	if _, err := ParseRole(string(user.Role)); err != nil {
		return nil, err
	}
	if !canAssign(actor, user.Role) {
		return nil, ErrForbidden
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = hash
	user.IsActive = true
	user.CreatedBy = actorRef(actor)

	createdID, err := s.repo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, ErrEmailExists) || errors.Is(err, ErrUsernameExists) {
			return nil, err
		}
		log.Error().Err(err).Str("username", user.Username).Msg("service: failed to create user")
		return nil, fmt.Errorf("failed to save user: %w", err)
	}
	user.ID = createdID

	s.recorder.Record(ctx, audit.Entry{
		UserID:       actorRef(actor),
		Action:       audit.ActionUserCreated,
		ResourceType: "user",
		ResourceID:   createdID.String(),
		Details: map[string]any{
			"created_username": user.Username,
			"created_role":     string(user.Role),
		},
	})

	return user, nil
}

func (s *service) GetUser(ctx context.Context, actor Actor, id uuid.UUID) (*User, error) {
	if !actor.CanAccess(id) {
		return nil, ErrNotFound
	}
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by id '%s': %w", id, err)
	}
	return user, nil
}

func (s *service) ListUsers(ctx context.Context, actor Actor, search string, limit int) ([]User, error) {
	if !actor.IsElevated() {
		self, err := s.GetUser(ctx, actor, actor.ID)
		if err != nil {
			return nil, err
		}
		return []User{*self}, nil
	}
	users, err := s.repo.List(ctx, search, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (s *service) UpdateUser(ctx context.Context, actor Actor, id uuid.UUID, upd Update) (*User, error) {
	if !actor.CanAccess(id) {
		return nil, ErrForbidden
	}
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	oldRole := user.Role

	if upd.Role != nil && *upd.Role != user.Role {
		if _, err := ParseRole(string(*upd.Role)); err != nil {
			return nil, err
		}
		if actor.Role != RoleAdmin {
			return nil, ErrForbidden
		}
		user.Role = *upd.Role
	}
	if upd.IsActive != nil && *upd.IsActive != user.IsActive {
		if !actor.IsElevated() {
			return nil, ErrForbidden
		}
		user.IsActive = *upd.IsActive
	}
	if upd.Username != nil {
		user.Username = strings.TrimSpace(*upd.Username)
	}
	if upd.Email != nil {
		user.Email = strings.TrimSpace(*upd.Email)
	}
	if upd.FirstName != nil {
		user.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		user.LastName = *upd.LastName
	}
	if upd.Password != nil {
		hash, err := hashPassword(*upd.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}
	user.ModifiedBy = actorRef(actor)

	if err := s.repo.Update(ctx, user); err != nil {
		if errors.Is(err, ErrEmailExists) || errors.Is(err, ErrUsernameExists) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		log.Error().Err(err).Stringer("user_id", id).Msg("service: failed to update user")
		return nil, fmt.Errorf("failed to update user by id '%s': %w", id, err)
	}

	s.recorder.Record(ctx, audit.Entry{
		UserID:       actorRef(actor),
		Action:       audit.ActionUserModified,
		ResourceType: "user",
		ResourceID:   id.String(),
		Details: map[string]any{
			"modified_username": user.Username,
			"old_role":          string(oldRole),
			"new_role":          string(user.Role),
		},
	})

	return user, nil
}

func (s *service) DeleteUser(ctx context.Context, actor Actor, id uuid.UUID) error {
	if !actor.IsElevated() {
		return ErrForbidden
	}
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if user.Role == RoleAdmin && actor.Role != RoleAdmin {
		return ErrForbidden
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		log.Error().Err(err).Stringer("user_id", id).Msg("service: failed to delete user")
		return fmt.Errorf("failed to delete user by id '%s': %w", id, err)
	}

	s.recorder.Record(ctx, audit.Entry{
		UserID:       actorRef(actor),
		Action:       audit.ActionDelete,
		ResourceType: "user",
		ResourceID:   id.String(),
		Details: map[string]any{
			"deleted_username": user.Username,
			"deleted_role":     string(user.Role),
		},
	})
	return nil
}

// Authenticate resolves login as an email when it contains '@' and as a
// username otherwise.
func (s *service) Authenticate(ctx context.Context, login, password string) (*User, error) {
	login = strings.TrimSpace(login)

	var (
		user *User
		err  error
	)
	if strings.Contains(login, "@") {
		user, err = s.repo.GetByEmail(ctx, login)
	} else {
		user, err = s.repo.GetByUsername(ctx, login)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.recordLogin(ctx, nil, login, "failed", "unknown user")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.recordLogin(ctx, &user.ID, login, "failed", "wrong password")
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		s.recordLogin(ctx, &user.ID, login, "failed", "inactive")
		return nil, ErrInactive
	}

	if err := s.repo.TouchActivity(ctx, user.ID); err != nil {
		log.Warn().Err(err).Stringer("user_id", user.ID).Msg("service: failed to update last activity")
	}
	s.recordLogin(ctx, &user.ID, login, "success", "")
	return user, nil
}

func (s *service) recordLogin(ctx context.Context, userID *uuid.UUID, login, status, reason string) {
	details := map[string]any{"login": login, "status": status}
	if reason != "" {
		details["reason"] = reason
	}
	resourceID := ""
	if userID != nil {
		resourceID = userID.String()
	}
	s.recorder.Record(ctx, audit.Entry{
		UserID:       userID,
		Action:       audit.ActionLogin,
		ResourceType: "user",
		ResourceID:   resourceID,
		Details:      details,
	})
}

func (s *service) Logout(ctx context.Context, actor Actor) {
	s.recorder.Record(ctx, audit.Entry{
		UserID:       actorRef(actor),
		Action:       audit.ActionLogout,
		ResourceType: "user",
		ResourceID:   actor.ID.String(),
		Details:      map[string]any{"status": "success"},
	})
}

func (s *service) StaffIDs(ctx context.Context) ([]uuid.UUID, error) {
	return s.repo.ListIDsByRole(ctx, RoleStaff, RoleAdmin)
}
