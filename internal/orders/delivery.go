package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/joao-fontenele/foodorder/internal/auth"
	"github.com/joao-fontenele/foodorder/internal/domain"
)

// AssignPartner binds a delivery partner to one of the restaurant's open
// orders. Reassigning replaces the previous partner.
func (s *Service) AssignPartner(ctx context.Context, actor domain.Actor, orderID, partnerID string) (*domain.Order, error) {
	if err := auth.RequireRole(actor, domain.RoleRestaurant); err != nil {
		return nil, err
	}
	if strings.TrimSpace(partnerID) == "" {
		return nil, fmt.Errorf("%w: delivery_partner_id is required", domain.ErrValidation)
	}

	order, err := s.loadOwned(ctx, actor, orderID, restaurantOf)
	if err != nil {
		return nil, err
	}

	if s.requireAvailablePartner {
		partner, err := s.store.GetPartner(ctx, partnerID)
		if err != nil {
			return nil, fmt.Errorf("get delivery partner: %w", err)
		}
		if partner == nil {
			return nil, fmt.Errorf("%w: delivery partner %s", domain.ErrNotFound, partnerID)
		}
		if !partner.IsAvailable || partner.IsBlocked {
			return nil, fmt.Errorf("%w: delivery partner %s is not available", domain.ErrValidation, partnerID)
		}
	}

	ok, err := s.store.AssignPartner(ctx, order.ID, actor.ID, partnerID)
	if err != nil {
		return nil, fmt.Errorf("assign delivery partner: %w", err)
	}

	updated, err := s.reload(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Ownership is immutable, so the guard can only have failed on
		// a terminal status.
		return nil, &domain.InvalidTransitionError{From: updated.Status, To: updated.Status}
	}

	s.publish(ctx, domain.EventDeliveryAssigned, updated)
	s.logger.Info("delivery partner assigned", "order_id", order.ID, "partner_id", partnerID, "restaurant_id", actor.ID)
	return updated, nil
}

// UpdateDeliveryStatus records progress reported by the bound partner.
// Delivery status moves independently of the order status.
func (s *Service) UpdateDeliveryStatus(ctx context.Context, actor domain.Actor, orderID string, status domain.DeliveryStatus) (*domain.Order, error) {
	if err := auth.RequireRole(actor, domain.RoleDelivery); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown delivery status %q", domain.ErrValidation, status)
	}

	order, err := s.load(ctx, orderID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrForbidden
	}

	ok, err := s.store.UpdateDeliveryStatus(ctx, order.ID, actor.ID, status)
	if err != nil {
		return nil, fmt.Errorf("update delivery status: %w", err)
	}
	if !ok {
		return nil, domain.ErrForbidden
	}

	updated, err := s.reload(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.EventDeliveryStatusChanged, updated)
	s.logger.Info("delivery status updated", "order_id", order.ID, "partner_id", actor.ID, "delivery_status", status)
	return updated, nil
}

// ListForDeliveryPartner returns the partner's current and past
// assignments in the restricted delivery projection.
func (s *Service) ListForDeliveryPartner(ctx context.Context, actor domain.Actor) ([]domain.DeliveryView, error) {
	if err := auth.RequireRole(actor, domain.RoleDelivery); err != nil {
		return nil, err
	}
	orders, err := s.store.ListByDeliveryPartner(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list delivery partner orders: %w", err)
	}

	views := make([]domain.DeliveryView, 0, len(orders))
	for i := range orders {
		views = append(views, orders[i].DeliveryView())
	}
	return views, nil
}

func (s *Service) AvailablePartners(ctx context.Context, actor domain.Actor) ([]domain.DeliveryPartner, error) {
	if err := auth.RequireRole(actor, domain.RoleRestaurant); err != nil {
		return nil, err
	}
	partners, err := s.store.AvailablePartners(ctx)
	if err != nil {
		return nil, fmt.Errorf("list available partners: %w", err)
	}
	return partners, nil
}

func (s *Service) RestaurantPartners(ctx context.Context, actor domain.Actor) ([]domain.DeliveryPartner, error) {
	if err := auth.RequireRole(actor, domain.RoleRestaurant); err != nil {
		return nil, err
	}
	partners, err := s.store.PartnersForRestaurant(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list restaurant partners: %w", err)
	}
	return partners, nil
}

func (s *Service) PartnerOrders(ctx context.Context, actor domain.Actor, partnerID string) ([]domain.Order, error) {
	if err := auth.RequireRole(actor, domain.RoleRestaurant); err != nil {
		return nil, err
	}
	orders, err := s.store.ListByRestaurantAndPartner(ctx, actor.ID, partnerID)
	if err != nil {
		return nil, fmt.Errorf("list partner orders: %w", err)
	}
	return orders, nil
}
