package domain

import "time"

type EventType string

const (
	EventOrderCreated          EventType = "order.created"
	EventStatusChanged         EventType = "order.status_changed"
	EventDeliveryAssigned      EventType = "order.delivery_assigned"
	EventDeliveryStatusChanged EventType = "order.delivery_status_changed"
)

type OrderEvent struct {
	Type              EventType      `json:"type"`
	OrderID           string         `json:"order_id"`
	CustomerID        string         `json:"customer_id"`
	RestaurantID      string         `json:"restaurant_id"`
	DeliveryPartnerID *string        `json:"delivery_partner_id"`
	Status            OrderStatus    `json:"status"`
	DeliveryStatus    DeliveryStatus `json:"delivery_status"`
	Timestamp         time.Time      `json:"timestamp"`
}

func NewOrderEvent(eventType EventType, order *Order, at time.Time) OrderEvent {
	return OrderEvent{
		Type:              eventType,
		OrderID:           order.ID,
		CustomerID:        order.CustomerID,
		RestaurantID:      order.RestaurantID,
		DeliveryPartnerID: order.DeliveryPartnerID,
		Status:            order.Status,
		DeliveryStatus:    order.DeliveryStatus,
		Timestamp:         at,
	}
}

// Involves reports whether the actor is a party to the order the event
// is about.
func (e OrderEvent) Involves(actor Actor) bool {
	switch actor.Role {
	case RoleCustomer:
		return e.CustomerID == actor.ID
	case RoleRestaurant:
		return e.RestaurantID == actor.ID
	case RoleDelivery:
		return e.DeliveryPartnerID != nil && *e.DeliveryPartnerID == actor.ID
	}
	return false
}
