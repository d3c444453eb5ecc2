package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/kantinyonetim/canteen-service/internal/menu"
)

type CreateMenuItemRequest struct {
	Name        string      `json:"name" validate:"required,max=200"`
	Description string      `json:"description"`
	Price       json.Number `json:"price" validate:"required"`
	Category    string      `json:"category" validate:"required,oneof=ana_yemek icecek tatli aperatif"`
	IsAvailable *bool       `json:"is_available,omitempty"`
	ImageURL    string      `json:"image_url" validate:"omitempty,url"`
}

type UpdateMenuItemRequest struct {
	Name        *string      `json:"name,omitempty" validate:"omitempty,max=200"`
	Description *string      `json:"description,omitempty"`
	Price       *json.Number `json:"price,omitempty"`
	Category    *string      `json:"category,omitempty" validate:"omitempty,oneof=ana_yemek icecek tatli aperatif"`
	IsAvailable *bool        `json:"is_available,omitempty"`
	ImageURL    *string      `json:"image_url,omitempty" validate:"omitempty,url"`
}

type MenuHandler struct {
	service  menu.Service
	validate *validator.Validate
}

func NewMenuHandler(service menu.Service) *MenuHandler {
	return &MenuHandler{service: service, validate: newValidator()}
}

// RegisterPublicRoutes mounts the read-only catalog.
func (h *MenuHandler) RegisterPublicRoutes(router chi.Router) {
	router.Get("/menu-items", h.handleList)
	router.Get("/menu-items/{id}", h.handleGet)
}

func (h *MenuHandler) RegisterRoutes(router chi.Router) {
	router.Post("/menu-items", h.handleCreate)
	router.Patch("/menu-items/{id}", h.handleUpdate)
	router.Delete("/menu-items/{id}", h.handleDelete)
}

func parsePrice(raw json.Number) (decimal.Decimal, error) {
	p, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Decimal{}, menu.ErrInvalidPrice
	}
	return p, nil
}

func (h *MenuHandler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := menu.Filter{
		Category: menu.Category(q.Get("category")),
		Search:   q.Get("search"),
	}
	if raw := q.Get("available"); raw != "" {
		available, err := strconv.ParseBool(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid available parameter")
			return
		}
		f.AvailableOnly = available
	}
	if f.Category != "" && !f.Category.Valid() {
		respondWithError(w, http.StatusBadRequest, menu.ErrInvalidCategory.Error())
		return
	}

	items, err := h.service.List(r.Context(), f)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to list menu items")
		return
	}
	respondWithJSON(w, http.StatusOK, items)
}

func (h *MenuHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}
	item, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to get menu item")
		return
	}
	respondWithJSON(w, http.StatusOK, item)
}

func (h *MenuHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	var req CreateMenuItemRequest
	if !decodeJSON(w, r, h.validate, &req, false) {
		return
	}
	price, err := parsePrice(req.Price)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to create menu item")
		return
	}

	item := &menu.Item{
		Name:        req.Name,
		Description: req.Description,
		Price:       price,
		Category:    menu.Category(req.Category),
		IsAvailable: true,
		ImageURL:    req.ImageURL,
	}
	if req.IsAvailable != nil {
		item.IsAvailable = *req.IsAvailable
	}

	created, err := h.service.Create(r.Context(), actor, item)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to create menu item")
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

func (h *MenuHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateMenuItemRequest
	if !decodeJSON(w, r, h.validate, &req, false) {
		return
	}

	upd := menu.Update{
		Name:        req.Name,
		Description: req.Description,
		IsAvailable: req.IsAvailable,
		ImageURL:    req.ImageURL,
	}
	if req.Price != nil {
		price, err := parsePrice(*req.Price)
		if err != nil {
			respondWithServiceError(w, r, err, "Failed to update menu item")
			return
		}
		upd.Price = &price
	}
	if req.Category != nil {
		c := menu.Category(*req.Category)
		upd.Category = &c
	}

	updated, err := h.service.Update(r.Context(), actor, id, upd)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to update menu item")
		return
	}
	respondWithJSON(w, http.StatusOK, updated)
}

func (h *MenuHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		respondWithServiceError(w, r, err, "Failed to delete menu item")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
