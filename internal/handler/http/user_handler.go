package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"

	"github.com/kantinyonetim/canteen-service/internal/user"
)

type CreateUserRequest struct {
	Username  string `json:"username" validate:"required,min=3,max=150"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"max=150"`
	LastName  string `json:"last_name" validate:"max=150"`
	Role      string `json:"role" validate:"omitempty,oneof=customer staff admin"`
}

type UpdateUserRequest struct {
	Username  *string `json:"username,omitempty" validate:"omitempty,min=3,max=150"`
	Email     *string `json:"email,omitempty" validate:"omitempty,email"`
	Password  *string `json:"password,omitempty" validate:"omitempty,min=8"`
	FirstName *string `json:"first_name,omitempty" validate:"omitempty,max=150"`
	LastName  *string `json:"last_name,omitempty" validate:"omitempty,max=150"`
	Role      *string `json:"role,omitempty" validate:"omitempty,oneof=customer staff admin"`
	IsActive  *bool   `json:"is_active,omitempty"`
}

type UserResponse struct {
	ID           uuid.UUID  `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Role         user.Role  `json:"role"`
	IsActive     bool       `json:"is_active"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func toUserResponse(u *user.User) UserResponse {
	return UserResponse{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Role:         u.Role,
		IsActive:     u.IsActive,
		LastActivity: u.LastActivity,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

type UserHandler struct {
	service  user.Service
	validate *validator.Validate
}

func NewUserHandler(service user.Service) *UserHandler {
	return &UserHandler{
		service:  service,
		validate: newValidator(),
	}
}

func (h *UserHandler) RegisterRoutes(router chi.Router) {
	router.Get("/users", h.handleListUsers)
	router.Post("/users", h.handleCreateUser)
	router.Get("/users/me", h.handleMe)
	router.Get("/users/{id}", h.handleGetUser)
	router.Patch("/users/{id}", h.handleUpdateUser)
	router.Delete("/users/{id}", h.handleDeleteUser)
}

func (h *UserHandler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	var req CreateUserRequest
	if !decodeJSON(w, r, h.validate, &req, false) {
		return
	}

	role := user.RoleCustomer
	if req.Role != "" {
		role = user.Role(req.Role)
	}

	created, err := h.service.CreateUser(r.Context(), actor, &user.User{
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      role,
		IsActive:  true,
	}, req.Password)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to create user")
		return
	}

	respondWithJSON(w, http.StatusCreated, toUserResponse(created))
}

func (h *UserHandler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondWithError(w, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		limit = n
	}

	users, err := h.service.ListUsers(r.Context(), actor, r.URL.Query().Get("search"), limit)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to list users")
		return
	}

	out := make([]UserResponse, 0, len(users))
	for i := range users {
		out = append(out, toUserResponse(&users[i]))
	}
	respondWithJSON(w, http.StatusOK, out)
}

func (h *UserHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	me, err := h.service.GetUser(r.Context(), actor, actor.ID)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to get current user")
		return
	}
	respondWithJSON(w, http.StatusOK, toUserResponse(me))
}

func (h *UserHandler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	userID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	found, err := h.service.GetUser(r.Context(), actor, userID)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to get user by id")
		return
	}
	respondWithJSON(w, http.StatusOK, toUserResponse(found))
}

func (h *UserHandler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	userID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if !decodeJSON(w, r, h.validate, &req, false) {
		return
	}

	upd := user.Update{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		IsActive:  req.IsActive,
	}
	if req.Role != nil {
		role := user.Role(*req.Role)
		upd.Role = &role
	}

	updated, err := h.service.UpdateUser(r.Context(), actor, userID, upd)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to update user")
		return
	}
	respondWithJSON(w, http.StatusOK, toUserResponse(updated))
}

func (h *UserHandler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	userID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteUser(r.Context(), actor, userID); err != nil {
		respondWithServiceError(w, r, err, "Failed to delete user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
