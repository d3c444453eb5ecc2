package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/kantinyonetim/canteen-service/internal/audit"
	"github.com/kantinyonetim/canteen-service/internal/menu"
	"github.com/kantinyonetim/canteen-service/internal/order"
	"github.com/kantinyonetim/canteen-service/internal/stock"
	"github.com/kantinyonetim/canteen-service/internal/user"
	"github.com/kantinyonetim/canteen-service/internal/voice"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type ValidationErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details"`
}

// respondWithError sends a JSON error body
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

type statusRule struct {
	err  error
	code int
}

var statusRules = []statusRule{
	{user.ErrNotFound, http.StatusNotFound},
	{menu.ErrNotFound, http.StatusNotFound},
	{stock.ErrNotFound, http.StatusNotFound},
	{stock.ErrMenuItemNotFound, http.StatusNotFound},
	{order.ErrOrderNotFound, http.StatusNotFound},
	{order.ErrItemNotFound, http.StatusNotFound},
	{order.ErrMenuItemNotFound, http.StatusNotFound},
	{order.ErrUserNotFound, http.StatusNotFound},
	{audit.ErrNotificationNotFound, http.StatusNotFound},

	{user.ErrForbidden, http.StatusForbidden},
	{menu.ErrForbidden, http.StatusForbidden},
	{stock.ErrForbidden, http.StatusForbidden},
	{order.ErrForbidden, http.StatusForbidden},

	{user.ErrInvalidCredentials, http.StatusUnauthorized},
	{user.ErrInactive, http.StatusUnauthorized},

	{user.ErrEmailExists, http.StatusConflict},
	{user.ErrUsernameExists, http.StatusConflict},
	{order.ErrConflict, http.StatusConflict},

	{voice.ErrTranscription, http.StatusBadGateway},
	{voice.ErrExtraction, http.StatusUnprocessableEntity},

	{user.ErrInvalidRole, http.StatusBadRequest},
	{user.ErrEmptyPassword, http.StatusBadRequest},
	{menu.ErrInvalidPrice, http.StatusBadRequest},
	{menu.ErrInvalidCategory, http.StatusBadRequest},
	{menu.ErrNameRequired, http.StatusBadRequest},
	{stock.ErrNegativeQuantity, http.StatusBadRequest},
	{audit.ErrInvalidEntry, http.StatusBadRequest},
	{order.ErrNoStockRecord, http.StatusBadRequest},
	{order.ErrInsufficientStock, http.StatusBadRequest},
	{order.ErrOrderNotModifiable, http.StatusBadRequest},
	{order.ErrInvalidPrice, http.StatusBadRequest},
	{order.ErrItemUnavailable, http.StatusBadRequest},
	{order.ErrPriceConflict, http.StatusBadRequest},
	{order.ErrInvalidTransition, http.StatusBadRequest},
	{order.ErrInvalidQuantity, http.StatusBadRequest},
	{order.ErrOrderReference, http.StatusBadRequest},
	{order.ErrDuplicateLine, http.StatusBadRequest},
	{order.ErrCancelTooMany, http.StatusBadRequest},
	{order.ErrEmptyOrder, http.StatusBadRequest},
	{order.ErrUnknownItem, http.StatusBadRequest},
}

func matchRule(err error) (statusRule, bool) {
	for _, rule := range statusRules {
		if errors.Is(err, rule.err) {
			return rule, true
		}
	}
	return statusRule{}, false
}

func mapErrorToStatusCode(err error) int {
	if rule, ok := matchRule(err); ok {
		return rule.code
	}
	return http.StatusInternalServerError
}

// clientMessage picks the text shown to the caller. Typed domain errors carry
// the item name; for the rest the sentinel text hides wrapping context.
func clientMessage(err error) string {
	var stockErr *order.InsufficientStockError
	if errors.As(err, &stockErr) {
		return stockErr.Error()
	}
	var nameErr *order.UnknownItemError
	if errors.As(err, &nameErr) {
		return nameErr.Error()
	}
	if rule, ok := matchRule(err); ok {
		return rule.err.Error()
	}
	return ""
}

// respondWithServiceError logs err and writes the mapped status. Unknown
// errors become a 500 carrying fallback instead of the internal message.
func respondWithServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	code := mapErrorToStatusCode(err)
	if code == http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Msg(fallback)
		respondWithError(w, code, fallback)
		return
	}
	hlog.FromRequest(r).Warn().Err(err).Int("status", code).Msg(fallback)
	respondWithError(w, code, clientMessage(err))
}

func formatValidationErrors(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			details[field] = "This field is required."
		case "min", "gte":
			details[field] = fmt.Sprintf("Must be at least %s.", fe.Param())
		case "max", "lte":
			details[field] = fmt.Sprintf("Must be at most %s.", fe.Param())
		case "gt":
			details[field] = fmt.Sprintf("Must be greater than %s.", fe.Param())
		case "email":
			details[field] = "Enter a valid email address."
		case "oneof":
			details[field] = fmt.Sprintf("Must be one of: %s.", fe.Param())
		default:
			details[field] = fmt.Sprintf("Failed on the '%s' rule.", fe.Tag())
		}
	}
	return details
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON reads the body into dst and validates it. It writes the error
// response itself and reports whether the handler may continue. An empty
// body is accepted when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any, allowEmpty bool) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			hlog.FromRequest(r).Warn().Err(err).Msg("Failed to decode request body")
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request payload: %v", err))
			return false
		}
	}

	if err := v.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
				Error:   "Validation failed",
				Details: formatValidationErrors(validationErrors),
			})
		} else {
			log.Error().Err(err).Type("validation_error_type", err).Msg("Unexpected error type during validation")
			respondWithError(w, http.StatusInternalServerError, "Internal validation error")
		}
		return false
	}
	return true
}

func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idParam := chi.URLParam(r, "id")
	id, err := uuid.FromString(idParam)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("id", idParam).Msg("Failed to parse id parameter from URL")
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return uuid.Nil, false
	}
	return id, true
}

// currentActor returns the caller stored by the auth middleware.
func currentActor(w http.ResponseWriter, r *http.Request) (user.Actor, bool) {
	actor, ok := user.ActorFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "authentication credentials were not provided")
	}
	return actor, ok
}

func parseOptionalUUID(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.FromString(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
