package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/foodorder/internal/domain"
)

type Store interface {
	Snapshot(ctx context.Context, ids []string) (map[string]domain.MenuItemSnapshot, error)
	Get(ctx context.Context, id string) (*domain.MenuItemSnapshot, error)
	ListByRestaurant(ctx context.Context, restaurantID string) ([]domain.MenuItemSnapshot, error)
}

type Handler struct {
	store  Store
	logger *slog.Logger
}

func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger,
	}
}

type snapshotRequest struct {
	IDs []string `json:"ids"`
}

type snapshotResponse struct {
	Items map[string]domain.MenuItemSnapshot `json:"items"`
}

func (h *Handler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	var req snapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	items, err := h.store.Snapshot(r.Context(), req.IDs)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrNotFound):
			h.writeError(w, http.StatusNotFound, err.Error())
		default:
			h.logger.Error("failed to snapshot menu items", "error", err, "count", len(req.IDs))
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.logger.Info("menu items snapshotted", "count", len(items))
	h.writeJSON(w, http.StatusOK, snapshotResponse{Items: items})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing menu item id")
		return
	}

	item, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get menu item", "error", err, "menu_item_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if item == nil {
		h.writeError(w, http.StatusNotFound, "menu item not found")
		return
	}

	h.writeJSON(w, http.StatusOK, item)
}

func (h *Handler) HandleListByRestaurant(w http.ResponseWriter, r *http.Request) {
	restaurantID := r.PathValue("restaurantId")
	if restaurantID == "" {
		h.writeError(w, http.StatusBadRequest, "missing restaurant id")
		return
	}

	items, err := h.store.ListByRestaurant(r.Context(), restaurantID)
	if err != nil {
		h.logger.Error("failed to list menu items", "error", err, "restaurant_id", restaurantID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("menu listed", "restaurant_id", restaurantID, "count", len(items))
	h.writeJSON(w, http.StatusOK, items)
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
