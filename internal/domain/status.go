package domain

import (
	"encoding/json"
	"fmt"
)

type OrderStatus string

const (
	OrderStatusPlaced         OrderStatus = "placed"
	OrderStatusAccepted       OrderStatus = "accepted"
	OrderStatusPreparing      OrderStatus = "preparing"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusCompleted      OrderStatus = "completed"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// nextStatus is the linear fulfilment path. Cancellation is handled
// separately in ValidateTransition.
var nextStatus = map[OrderStatus]OrderStatus{
	OrderStatusPlaced:         OrderStatusAccepted,
	OrderStatusAccepted:       OrderStatusPreparing,
	OrderStatusPreparing:      OrderStatusOutForDelivery,
	OrderStatusOutForDelivery: OrderStatusCompleted,
}

var orderStatuses = map[OrderStatus]bool{
	OrderStatusPlaced:         true,
	OrderStatusAccepted:       true,
	OrderStatusPreparing:      true,
	OrderStatusOutForDelivery: true,
	OrderStatusCompleted:      true,
	OrderStatusCancelled:      true,
}

func (s OrderStatus) Valid() bool {
	return orderStatuses[s]
}

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// Next returns the successor of s on the fulfilment path.
func (s OrderStatus) Next() (OrderStatus, bool) {
	next, ok := nextStatus[s]
	return next, ok
}

func (s *OrderStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: status must be a string", ErrValidation)
	}
	status := OrderStatus(raw)
	if !status.Valid() {
		return fmt.Errorf("%w: unknown order status %q", ErrValidation, raw)
	}
	*s = status
	return nil
}

// AllowedNext lists every status reachable from s in one step.
func AllowedNext(s OrderStatus) []OrderStatus {
	if s.Terminal() || !s.Valid() {
		return nil
	}
	next, _ := s.Next()
	return []OrderStatus{next, OrderStatusCancelled}
}

// ValidateTransition applies the order state machine to a requested
// change from current to requested.
func ValidateTransition(current, requested OrderStatus) error {
	if current.Terminal() {
		return &InvalidTransitionError{From: current, To: requested}
	}
	if requested == OrderStatusCancelled {
		return nil
	}
	if next, ok := current.Next(); ok && next == requested {
		return nil
	}
	return &InvalidTransitionError{From: current, To: requested}
}

type DeliveryStatus string

const (
	DeliveryStatusUnassigned DeliveryStatus = "unassigned"
	DeliveryStatusAssigned   DeliveryStatus = "assigned"
	DeliveryStatusPickedUp   DeliveryStatus = "picked_up"
	DeliveryStatusOnTheWay   DeliveryStatus = "on_the_way"
	DeliveryStatusDelivered  DeliveryStatus = "delivered"
)

var deliveryStatuses = map[DeliveryStatus]bool{
	DeliveryStatusUnassigned: true,
	DeliveryStatusAssigned:   true,
	DeliveryStatusPickedUp:   true,
	DeliveryStatusOnTheWay:   true,
	DeliveryStatusDelivered:  true,
}

func (s DeliveryStatus) Valid() bool {
	return deliveryStatuses[s]
}

func (s *DeliveryStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: delivery status must be a string", ErrValidation)
	}
	status := DeliveryStatus(raw)
	if !status.Valid() {
		return fmt.Errorf("%w: unknown delivery status %q", ErrValidation, raw)
	}
	*s = status
	return nil
}
