package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"

	"github.com/kantinyonetim/canteen-service/internal/order"
)

type CreateOrderRequest struct {
	User  *uuid.UUID `json:"user,omitempty"`
	Notes string     `json:"notes" validate:"max=1000"`
}

type UpdateOrderRequest struct {
	Status string `json:"status" validate:"required"`
}

type ReassignOrderRequest struct {
	User uuid.UUID `json:"user" validate:"required"`
}

type CartLineRequest struct {
	MenuItemID uuid.UUID `json:"menu_item" validate:"required"`
	Quantity   int       `json:"quantity" validate:"required,gt=0"`
}

type CartRequest struct {
	User  *uuid.UUID        `json:"user,omitempty"`
	Notes string            `json:"notes" validate:"max=1000"`
	Items []CartLineRequest `json:"items" validate:"required,min=1,dive"`
}

type OrderHandler struct {
	service  order.Service
	validate *validator.Validate
}

func NewOrderHandler(service order.Service) *OrderHandler {
	return &OrderHandler{service: service, validate: newValidator()}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Get("/orders", h.handleListOrders)
	router.Post("/orders", h.handleCreateOrder)
	router.Post("/orders/create-from-cart", h.handleCreateFromCart)
	router.Get("/orders/{id}", h.handleGetOrder)
	router.Patch("/orders/{id}", h.handleUpdateStatus)
	router.Delete("/orders/{id}", h.handleDeleteOrder)
	router.Post("/orders/{id}/cancel", h.handleCancelOrder)
	router.Post("/orders/{id}/reassign", h.handleReassignOrder)
}

func (h *OrderHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	var req CreateOrderRequest
	if !decodeJSON(w, r, h.validate, &req, true) {
		return
	}

	created, err := h.service.CreateOrder(r.Context(), actor, order.CreateOrderInput{UserID: req.User, Notes: req.Notes})
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to create order")
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

func (h *OrderHandler) handleCreateFromCart(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	var req CartRequest
	if !decodeJSON(w, r, h.validate, &req, false) {
		return
	}

	lines := make([]order.CartLine, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, order.CartLine{MenuItemID: it.MenuItemID, Quantity: it.Quantity})
	}

	placed, err := h.service.PlaceOrder(r.Context(), actor, order.PlaceOrderInput{
		UserID: req.User,
		Notes:  req.Notes,
		Lines:  lines,
	})
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to create order from cart")
		return
	}
	respondWithJSON(w, http.StatusCreated, placed)
}

func (h *OrderHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	userID, err := parseOptionalUUID(q.Get("user"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid user parameter")
		return
	}
	f := order.ListFilter{UserID: userID}
	if raw := q.Get("status"); raw != "" {
		f.Status = order.Status(raw)
		if !f.Status.Valid() {
			respondWithError(w, http.StatusBadRequest, "Invalid status parameter")
			return
		}
	}

	orders, err := h.service.ListOrders(r.Context(), actor, f)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to list orders")
		return
	}
	if orders == nil {
		orders = []order.Order{}
	}
	respondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	o, err := h.service.GetOrder(r.Context(), actor, id)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to get order")
		return
	}
	respondWithJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateOrderRequest
	if !decodeJSON(w, r, h.validate, &req, false) {
		return
	}

	updated, err := h.service.UpdateStatus(r.Context(), actor, id, order.Status(req.Status))
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to update order status")
		return
	}
	respondWithJSON(w, http.StatusOK, updated)
}

func (h *OrderHandler) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteOrder(r.Context(), actor, id); err != nil {
		respondWithServiceError(w, r, err, "Failed to delete order")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrderHandler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	cancelled, err := h.service.CancelOrder(r.Context(), actor, id)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to cancel order")
		return
	}
	respondWithJSON(w, http.StatusOK, cancelled)
}

func (h *OrderHandler) handleReassignOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	var req ReassignOrderRequest
	if !decodeJSON(w, r, h.validate, &req, false) {
		return
	}

	reassigned, err := h.service.ReassignOrder(r.Context(), actor, id, req.User)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to reassign order")
		return
	}
	respondWithJSON(w, http.StatusOK, reassigned)
}
