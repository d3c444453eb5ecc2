package http

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/kantinyonetim/canteen-service/internal/audit"
)

// Handlers groups everything the router mounts. Metrics and Instrument are
// optional.
type Handlers struct {
	Auth       *AuthHandler
	Users      *UserHandler
	Menu       *MenuHandler
	Stocks     *StockHandler
	Orders     *OrderHandler
	Items      *OrderItemHandler
	Voice      *VoiceHandler
	Audit      *AuditHandler
	Metrics    http.Handler
	Instrument func(http.Handler) http.Handler
}

type Authenticator interface {
	Authenticate(next http.Handler) http.Handler
}

func NewRouter(logger zerolog.Logger, authn Authenticator, requireElevated func(http.Handler) http.Handler, h Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(logger))
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(requestMeta)
	if h.Instrument != nil {
		r.Use(h.Instrument)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics)
	}

	h.Auth.RegisterPublicRoutes(r)
	h.Menu.RegisterPublicRoutes(r)

	r.Group(func(private chi.Router) {
		private.Use(authn.Authenticate)

		h.Auth.RegisterRoutes(private)
		h.Users.RegisterRoutes(private)
		h.Menu.RegisterRoutes(private)
		h.Stocks.RegisterRoutes(private)
		h.Orders.RegisterRoutes(private)
		h.Items.RegisterRoutes(private)
		h.Voice.RegisterRoutes(private)
		h.Audit.RegisterRoutes(private)

		private.Group(func(elevated chi.Router) {
			elevated.Use(requireElevated)
			h.Audit.RegisterElevatedRoutes(elevated)
		})
	})

	return r
}

func accessLog(next http.Handler) http.Handler {
	return hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("url", r.URL.String()).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("http request")
	})(next)
}

// requestMeta makes the caller address and agent available to audit entries.
func requestMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		ctx := audit.WithRequestMeta(r.Context(), ip, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
