package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/joao-fontenele/foodorder/internal/domain"
	"github.com/joao-fontenele/foodorder/internal/messaging"
)

type EventHandler struct {
	hub    *Hub
	logger *slog.Logger
}

func NewEventHandler(hub *Hub, logger *slog.Logger) *EventHandler {
	return &EventHandler{hub: hub, logger: logger}
}

// Handle decodes an order event from the bus and fans it out. Payloads
// that can never be decoded are discarded rather than retried.
func (h *EventHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return messaging.Discard(fmt.Errorf("unmarshal order event: %w", err))
	}
	if event.OrderID == "" || event.Type == "" {
		return messaging.Discard(errors.New("order event missing type or order id"))
	}

	h.logger.Info("order event received", "type", event.Type, "order_id", event.OrderID, "status", event.Status)

	if err := h.hub.Publish(ctx, event); err != nil {
		return fmt.Errorf("queue order event: %w", err)
	}
	return nil
}
