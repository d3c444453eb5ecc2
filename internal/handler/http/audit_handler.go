package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/kantinyonetim/canteen-service/internal/audit"
)

const dateLayout = "2006-01-02"

type CreateAuditEntryRequest struct {
	Action       string         `json:"action" validate:"required,max=50"`
	ResourceType string         `json:"resource_type" validate:"required,max=50"`
	ResourceID   string         `json:"resource_id" validate:"max=100"`
	Details      map[string]any `json:"details"`
}

type AuditHandler struct {
	service  audit.Service
	validate *validator.Validate
}

func NewAuditHandler(service audit.Service) *AuditHandler {
	return &AuditHandler{service: service, validate: newValidator()}
}

// RegisterRoutes mounts the notification routes available to every caller.
func (h *AuditHandler) RegisterRoutes(router chi.Router) {
	router.Post("/audit-logs", h.handleCreateEntry)
	router.Get("/notifications", h.handleListNotifications)
	router.Post("/notifications/{id}/read", h.handleMarkRead)
}

// RegisterElevatedRoutes mounts the audit log listing for staff and admin.
func (h *AuditHandler) RegisterElevatedRoutes(router chi.Router) {
	router.Get("/audit-logs", h.handleListEntries)
}

func parseDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, time.Local)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (h *AuditHandler) handleListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := audit.Filter{
		Username:     q.Get("user"),
		Action:       audit.Action(q.Get("action")),
		ResourceType: q.Get("resource_type"),
	}

	from, err := parseDate(q.Get("date_from"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid date_from parameter, expected YYYY-MM-DD")
		return
	}
	to, err := parseDate(q.Get("date_to"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid date_to parameter, expected YYYY-MM-DD")
		return
	}
	f.From = from
	if to != nil {
		end := audit.EndOfDay(*to)
		f.To = &end
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondWithError(w, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		f.Limit = n
	}

	entries, err := h.service.ListEntries(r.Context(), f)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to list audit logs")
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	respondWithJSON(w, http.StatusOK, entries)
}

func (h *AuditHandler) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	var req CreateAuditEntryRequest
	if !decodeJSON(w, r, h.validate, &req, false) {
		return
	}

	entry, err := h.service.CreateEntry(r.Context(), audit.Entry{
		UserID:       &actor.ID,
		Action:       audit.Action(req.Action),
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Details:      req.Details,
	})
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to create audit log")
		return
	}
	respondWithJSON(w, http.StatusCreated, entry)
}

func (h *AuditHandler) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	notifications, err := h.service.ListNotifications(r.Context(), actor.ID)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to list notifications")
		return
	}
	if notifications == nil {
		notifications = []audit.Notification{}
	}
	respondWithJSON(w, http.StatusOK, notifications)
}

func (h *AuditHandler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.MarkRead(r.Context(), id, actor.ID); err != nil {
		respondWithServiceError(w, r, err, "Failed to mark notification as read")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "read"})
}
