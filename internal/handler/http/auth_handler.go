package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/hlog"

	"github.com/kantinyonetim/canteen-service/internal/user"
)

type TokenIssuer interface {
	Issue(u *user.User) (string, time.Time, error)
}

type TokenRequest struct {
	// Username accepts either the username or the email address.
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type TokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        UserResponse `json:"user"`
}

type AuthHandler struct {
	users    user.Service
	tokens   TokenIssuer
	validate *validator.Validate
}

func NewAuthHandler(users user.Service, tokens TokenIssuer) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, validate: newValidator()}
}

// RegisterPublicRoutes mounts the routes that work without a token.
func (h *AuthHandler) RegisterPublicRoutes(router chi.Router) {
	router.Post("/auth/token", h.handleToken)
}

func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Post("/auth/logout", h.handleLogout)
}

func (h *AuthHandler) handleToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !decodeJSON(w, r, h.validate, &req, false) {
		return
	}

	u, err := h.users.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to authenticate")
		return
	}

	token, expiresAt, err := h.tokens.Issue(u)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Failed to issue token")
		respondWithError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	respondWithJSON(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		User:        toUserResponse(u),
	})
}

func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	h.users.Logout(r.Context(), actor)
	w.WriteHeader(http.StatusNoContent)
}
