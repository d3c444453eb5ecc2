package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"

	"github.com/kantinyonetim/canteen-service/internal/stock"
)

type CreateStockRequest struct {
	MenuItemID uuid.UUID `json:"menu_item" validate:"required"`
	Quantity   *int      `json:"quantity" validate:"required,min=0"`
}

type UpdateStockRequest struct {
	Quantity *int `json:"quantity" validate:"required,min=0"`
}

type StockHandler struct {
	service  stock.Service
	validate *validator.Validate
}

func NewStockHandler(service stock.Service) *StockHandler {
	return &StockHandler{service: service, validate: newValidator()}
}

func (h *StockHandler) RegisterRoutes(router chi.Router) {
	router.Get("/stocks", h.handleList)
	router.Post("/stocks", h.handleCreateOrIncrement)
	router.Get("/stocks/{id}", h.handleGet)
	router.Patch("/stocks/{id}", h.handleSet)
}

func (h *StockHandler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	stocks, err := h.service.List(r.Context(), actor)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to list stocks")
		return
	}
	respondWithJSON(w, http.StatusOK, stocks)
}

func (h *StockHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}
	s, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to get stock")
		return
	}
	respondWithJSON(w, http.StatusOK, s)
}

func (h *StockHandler) handleCreateOrIncrement(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	var req CreateStockRequest
	if !decodeJSON(w, r, h.validate, &req, false) {
		return
	}

	change, err := h.service.CreateOrIncrement(r.Context(), actor, req.MenuItemID, *req.Quantity)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to update stock")
		return
	}

	code := http.StatusOK
	if change.Created {
		code = http.StatusCreated
	}
	respondWithJSON(w, code, change.Stock)
}

func (h *StockHandler) handleSet(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateStockRequest
	if !decodeJSON(w, r, h.validate, &req, false) {
		return
	}

	change, err := h.service.SetQuantity(r.Context(), actor, id, *req.Quantity)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to update stock")
		return
	}
	respondWithJSON(w, http.StatusOK, change.Stock)
}
