package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"

	"github.com/kantinyonetim/canteen-service/internal/user"
)

type errorBody struct {
	Error string `json:"error"`
}

func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Authenticate rejects requests without a valid bearer token and stores the
// caller in the request context.
func (m *TokenManager) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			deny(w, http.StatusUnauthorized, "authentication credentials were not provided")
			return
		}
		actor, err := m.Parse(raw)
		if err != nil {
			hlog.FromRequest(r).Debug().Err(err).Msg("rejected bearer token")
			deny(w, http.StatusUnauthorized, ErrInvalidToken.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(user.WithActor(r.Context(), actor)))
	})
}

// RequireElevated lets only staff and admin through.
func RequireElevated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := user.ActorFromContext(r.Context())
		if !ok {
			deny(w, http.StatusUnauthorized, "authentication credentials were not provided")
			return
		}
		if !actor.IsElevated() {
			deny(w, http.StatusForbidden, "you do not have permission to perform this action")
			return
		}
		next.ServeHTTP(w, r)
	})
}
