package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"

	"github.com/kantinyonetim/canteen-service/internal/order"
)

type CreateOrderItemRequest struct {
	OrderID    uuid.UUID    `json:"order" validate:"required"`
	MenuItemID uuid.UUID    `json:"menu_item" validate:"required"`
	Quantity   int          `json:"quantity" validate:"required,gt=0"`
	Price      *json.Number `json:"price_at_order_time,omitempty"`
}

type UpdateOrderItemRequest struct {
	OrderID    *uuid.UUID   `json:"order,omitempty"`
	MenuItemID *uuid.UUID   `json:"menu_item,omitempty"`
	Quantity   *int         `json:"quantity,omitempty" validate:"omitempty,gt=0"`
	Price      *json.Number `json:"price_at_order_time,omitempty"`
}

type CancelOrderItemRequest struct {
	Quantity *int `json:"quantity,omitempty" validate:"omitempty,gt=0"`
}

type OrderItemHandler struct {
	service  order.Service
	validate *validator.Validate
}

func NewOrderItemHandler(service order.Service) *OrderItemHandler {
	return &OrderItemHandler{service: service, validate: newValidator()}
}

func (h *OrderItemHandler) RegisterRoutes(router chi.Router) {
	router.Get("/order-items", h.handleList)
	router.Post("/order-items", h.handleCreate)
	router.Get("/order-items/{id}", h.handleGet)
	router.Patch("/order-items/{id}", h.handleUpdate)
	router.Delete("/order-items/{id}", h.handleDelete)
	router.Post("/order-items/{id}/cancel", h.handleCancel)
}

func numberString(n *json.Number) *string {
	if n == nil {
		return nil
	}
	s := n.String()
	return &s
}

func (h *OrderItemHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	var req CreateOrderItemRequest
	if !decodeJSON(w, r, h.validate, &req, false) {
		return
	}

	item, err := h.service.AddItem(r.Context(), actor, order.AddItemInput{
		OrderID:    req.OrderID,
		MenuItemID: req.MenuItemID,
		Quantity:   req.Quantity,
		Price:      numberString(req.Price),
	})
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to add order item")
		return
	}
	respondWithJSON(w, http.StatusCreated, item)
}

func (h *OrderItemHandler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	orderID, err := parseOptionalUUID(r.URL.Query().Get("order"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid order parameter")
		return
	}

	items, err := h.service.ListItems(r.Context(), actor, order.ItemFilter{OrderID: orderID})
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to list order items")
		return
	}
	if items == nil {
		items = []order.Item{}
	}
	respondWithJSON(w, http.StatusOK, items)
}

func (h *OrderItemHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	item, err := h.service.GetItem(r.Context(), actor, id)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to get order item")
		return
	}
	respondWithJSON(w, http.StatusOK, item)
}

func (h *OrderItemHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateOrderItemRequest
	if !decodeJSON(w, r, h.validate, &req, false) {
		return
	}

	item, err := h.service.UpdateItem(r.Context(), actor, id, order.UpdateItemInput{
		OrderID:    req.OrderID,
		MenuItemID: req.MenuItemID,
		Quantity:   req.Quantity,
		Price:      numberString(req.Price),
	})
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to update order item")
		return
	}
	respondWithJSON(w, http.StatusOK, item)
}

func (h *OrderItemHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteItem(r.Context(), actor, id); err != nil {
		respondWithServiceError(w, r, err, "Failed to delete order item")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrderItemHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	var req CancelOrderItemRequest
	if !decodeJSON(w, r, h.validate, &req, true) {
		return
	}

	result, err := h.service.CancelItem(r.Context(), actor, id, req.Quantity)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to cancel order item")
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}
