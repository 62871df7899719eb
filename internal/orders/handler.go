package orders

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/foodorder/internal/auth"
	"github.com/joao-fontenele/foodorder/internal/domain"
	"github.com/joao-fontenele/foodorder/internal/telemetry"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes mounts the order and delivery partner endpoints. The
// mux is expected to sit behind auth.Middleware.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /orders", telemetry.WithHTTPRoute(h.HandleCreate))
	mux.HandleFunc("GET /orders/mine", telemetry.WithHTTPRoute(h.HandleListMine))
	mux.HandleFunc("GET /orders/restaurant", telemetry.WithHTTPRoute(h.HandleListRestaurant))
	mux.HandleFunc("GET /orders/delivery/mine", telemetry.WithHTTPRoute(h.HandleListDelivery))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(h.HandleGet))
	mux.HandleFunc("GET /orders/{id}/history", telemetry.WithHTTPRoute(h.HandleHistory))
	mux.HandleFunc("PUT /orders/{id}/status", telemetry.WithHTTPRoute(h.HandleUpdateStatus))
	mux.HandleFunc("PUT /orders/{id}/cancel", telemetry.WithHTTPRoute(h.HandleCancel))
	mux.HandleFunc("PUT /orders/{id}/assign-delivery", telemetry.WithHTTPRoute(h.HandleAssignDelivery))
	mux.HandleFunc("PUT /orders/{id}/delivery-status", telemetry.WithHTTPRoute(h.HandleDeliveryStatus))
	mux.HandleFunc("GET /delivery-partners/available", telemetry.WithHTTPRoute(h.HandleAvailablePartners))
	mux.HandleFunc("GET /delivery-partners", telemetry.WithHTTPRoute(h.HandleRestaurantPartners))
	mux.HandleFunc("GET /delivery-partners/{partnerId}/orders", telemetry.WithHTTPRoute(h.HandlePartnerOrders))
}

type createOrderRequest struct {
	RestaurantID string `json:"restaurant_id"`
	Items        []struct {
		MenuItemID string `json:"menu_item_id"`
		Quantity   int    `json:"quantity"`
	} `json:"items"`
	TotalAmount *decimal.Decimal `json:"total_amount"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	in := CreateOrderInput{
		RestaurantID: req.RestaurantID,
		TotalAmount:  req.TotalAmount,
	}
	for _, item := range req.Items {
		in.Items = append(in.Items, ItemRequest{MenuItemID: item.MenuItemID, Quantity: item.Quantity})
	}

	order, err := h.service.CreateOrder(r.Context(), actor, in)
	if err != nil {
		h.writeServiceError(w, err, "failed to create order", "customer_id", actor.ID)
		return
	}

	h.writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	orders, err := h.service.ListForCustomer(r.Context(), actor)
	if err != nil {
		h.writeServiceError(w, err, "failed to list customer orders", "customer_id", actor.ID)
		return
	}

	h.logger.Info("orders listed", "customer_id", actor.ID, "count", len(orders))
	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) HandleListRestaurant(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	orders, err := h.service.ListForRestaurant(r.Context(), actor)
	if err != nil {
		h.writeServiceError(w, err, "failed to list restaurant orders", "restaurant_id", actor.ID)
		return
	}

	h.logger.Info("orders listed", "restaurant_id", actor.ID, "count", len(orders))
	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) HandleListDelivery(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	orders, err := h.service.ListForDeliveryPartner(r.Context(), actor)
	if err != nil {
		h.writeServiceError(w, err, "failed to list delivery orders", "partner_id", actor.ID)
		return
	}

	h.logger.Info("orders listed", "partner_id", actor.ID, "count", len(orders))
	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")

	order, access, err := h.service.GetOrder(r.Context(), actor, id)
	if err != nil {
		h.writeServiceError(w, err, "failed to get order", "order_id", id)
		return
	}

	if access == AccessDelivery {
		h.writeJSON(w, http.StatusOK, order.DeliveryView())
		return
	}
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")

	history, err := h.service.History(r.Context(), actor, id)
	if err != nil {
		h.writeServiceError(w, err, "failed to get order history", "order_id", id)
		return
	}

	h.writeJSON(w, http.StatusOK, history)
}

type updateStatusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeDecodeError(w, err)
		return
	}

	order, err := h.service.AdvanceStatus(r.Context(), actor, id, req.Status)
	if err != nil {
		h.writeServiceError(w, err, "failed to update order status", "order_id", id)
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")

	order, err := h.service.CancelByCustomer(r.Context(), actor, id)
	if err != nil {
		h.writeServiceError(w, err, "failed to cancel order", "order_id", id)
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

type assignDeliveryRequest struct {
	DeliveryPartnerID string `json:"delivery_partner_id"`
}

func (h *Handler) HandleAssignDelivery(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")

	var req assignDeliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeDecodeError(w, err)
		return
	}

	order, err := h.service.AssignPartner(r.Context(), actor, id, req.DeliveryPartnerID)
	if err != nil {
		h.writeServiceError(w, err, "failed to assign delivery partner", "order_id", id)
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

type deliveryStatusRequest struct {
	DeliveryStatus domain.DeliveryStatus `json:"delivery_status"`
}

func (h *Handler) HandleDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")

	var req deliveryStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeDecodeError(w, err)
		return
	}

	order, err := h.service.UpdateDeliveryStatus(r.Context(), actor, id, req.DeliveryStatus)
	if err != nil {
		h.writeServiceError(w, err, "failed to update delivery status", "order_id", id)
		return
	}

	h.writeJSON(w, http.StatusOK, order.DeliveryView())
}

func (h *Handler) HandleAvailablePartners(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	partners, err := h.service.AvailablePartners(r.Context(), actor)
	if err != nil {
		h.writeServiceError(w, err, "failed to list available partners")
		return
	}

	h.writeJSON(w, http.StatusOK, partners)
}

func (h *Handler) HandleRestaurantPartners(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	partners, err := h.service.RestaurantPartners(r.Context(), actor)
	if err != nil {
		h.writeServiceError(w, err, "failed to list restaurant partners", "restaurant_id", actor.ID)
		return
	}

	h.writeJSON(w, http.StatusOK, partners)
}

func (h *Handler) HandlePartnerOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	partnerID := r.PathValue("partnerId")

	orders, err := h.service.PartnerOrders(r.Context(), actor, partnerID)
	if err != nil {
		h.writeServiceError(w, err, "failed to list partner orders", "partner_id", partnerID)
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthenticated")
	}
	return actor, ok
}

func (h *Handler) writeDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrValidation) {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeError(w, http.StatusBadRequest, "invalid request body")
}

// writeServiceError maps domain errors to status codes. Anything else is
// logged and reported as a 500 without detail.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, msg string, attrs ...any) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		h.writeError(w, http.StatusUnauthorized, "unauthenticated")
	case errors.Is(err, domain.ErrForbidden):
		h.writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidTransition):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrConflict):
		h.writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error(msg, append([]any{"error", err}, attrs...)...)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
