package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/foodorder/internal/auth"
	"github.com/joao-fontenele/foodorder/internal/domain"
)

// maxTransitionAttempts bounds how many times a status change is
// re-evaluated after losing a compare-and-swap race.
const maxTransitionAttempts = 3

// Store is the persistence contract of the order service. Lookups
// return (nil, nil) when nothing matches; conditional writes report
// false when their guard did not hold.
type Store interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, id string, expected, next domain.OrderStatus, changedBy string) (bool, error)
	AssignPartner(ctx context.Context, id, restaurantID, partnerID string) (bool, error)
	UpdateDeliveryStatus(ctx context.Context, id, partnerID string, status domain.DeliveryStatus) (bool, error)
	ListByCustomer(ctx context.Context, customerID string) ([]domain.Order, error)
	ListByRestaurant(ctx context.Context, restaurantID string) ([]domain.Order, error)
	ListByDeliveryPartner(ctx context.Context, partnerID string) ([]domain.Order, error)
	ListByRestaurantAndPartner(ctx context.Context, restaurantID, partnerID string) ([]domain.Order, error)
	History(ctx context.Context, id string) ([]domain.StatusChange, error)
	GetPartner(ctx context.Context, id string) (*domain.DeliveryPartner, error)
	AvailablePartners(ctx context.Context) ([]domain.DeliveryPartner, error)
	PartnersForRestaurant(ctx context.Context, restaurantID string) ([]domain.DeliveryPartner, error)
}

// SnapshotReader resolves menu item ids to their current catalog data.
type SnapshotReader interface {
	Snapshot(ctx context.Context, ids []string) (map[string]domain.MenuItemSnapshot, error)
}

type Publisher interface {
	Publish(ctx context.Context, key string, value any) error
}

type Service struct {
	store                   Store
	catalog                 SnapshotReader
	publisher               Publisher
	logger                  *slog.Logger
	metrics                 *serviceMetrics
	recomputeTotal          bool
	requireAvailablePartner bool
	now                     func() time.Time
}

type Option func(*Service)

// WithPublisher emits an OrderEvent after every successful write.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithRecomputedTotal replaces the caller supplied total with the sum of
// the snapshot line totals.
func WithRecomputedTotal() Option {
	return func(s *Service) {
		s.recomputeTotal = true
	}
}

// WithAvailablePartnerCheck rejects assignments to partners that are
// unavailable or blocked in the directory.
func WithAvailablePartnerCheck() Option {
	return func(s *Service) {
		s.requireAvailablePartner = true
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(store Store, catalog SnapshotReader, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:   store,
		catalog: catalog,
		logger:  logger,
		metrics: newServiceMetrics(logger),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Limits of the orders.orders and orders.order_items columns.
const (
	maxQuantity    = math.MaxInt32
	amountScale    = 2
	maxTotalAmount = "9999999999.99"
)

var maxTotal = decimal.RequireFromString(maxTotalAmount)

type ItemRequest struct {
	MenuItemID string
	Quantity   int
}

type CreateOrderInput struct {
	RestaurantID string
	Items        []ItemRequest
	TotalAmount  *decimal.Decimal
}

func (in CreateOrderInput) validate() error {
	var problems []string
	if strings.TrimSpace(in.RestaurantID) == "" {
		problems = append(problems, "restaurant_id is required")
	}
	if len(in.Items) == 0 {
		problems = append(problems, "items must not be empty")
	}
	for i, item := range in.Items {
		if strings.TrimSpace(item.MenuItemID) == "" {
			problems = append(problems, fmt.Sprintf("items[%d].menu_item_id is required", i))
		}
		if item.Quantity < 1 {
			problems = append(problems, fmt.Sprintf("items[%d].quantity must be at least 1", i))
		} else if item.Quantity > maxQuantity {
			problems = append(problems, fmt.Sprintf("items[%d].quantity must be at most %d", i, maxQuantity))
		}
	}
	if in.TotalAmount == nil {
		problems = append(problems, "total_amount is required")
	} else {
		switch {
		case in.TotalAmount.IsNegative():
			problems = append(problems, "total_amount must not be negative")
		case in.TotalAmount.GreaterThan(maxTotal):
			problems = append(problems, "total_amount must be at most "+maxTotalAmount)
		case !in.TotalAmount.Equal(in.TotalAmount.Round(amountScale)):
			problems = append(problems, "total_amount must have at most 2 decimal places")
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

func (s *Service) CreateOrder(ctx context.Context, actor domain.Actor, in CreateOrderInput) (*domain.Order, error) {
	if err := auth.RequireRole(actor, domain.RoleCustomer); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(in.Items))
	for _, item := range in.Items {
		ids = append(ids, item.MenuItemID)
	}

	snapshots, err := s.catalog.Snapshot(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("snapshot menu items: %w", err)
	}

	items := make([]domain.OrderItem, 0, len(in.Items))
	for _, req := range in.Items {
		snap, ok := snapshots[req.MenuItemID]
		if !ok {
			return nil, fmt.Errorf("%w: menu item %s", domain.ErrNotFound, req.MenuItemID)
		}
		if snap.RestaurantID != in.RestaurantID {
			return nil, fmt.Errorf("%w: menu item %s does not belong to restaurant %s", domain.ErrValidation, req.MenuItemID, in.RestaurantID)
		}
		items = append(items, domain.OrderItem{
			MenuItemID: snap.ID,
			Name:       snap.Name,
			UnitPrice:  snap.Price,
			ImageRef:   snap.Image,
			Quantity:   req.Quantity,
		})
	}

	order := &domain.Order{
		CustomerID:     actor.ID,
		RestaurantID:   in.RestaurantID,
		Items:          items,
		TotalAmount:    *in.TotalAmount,
		Status:         domain.OrderStatusPlaced,
		DeliveryStatus: domain.DeliveryStatusUnassigned,
		CreatedAt:      s.now().UTC(),
	}

	if computed := order.ComputedTotal(); !computed.Equal(order.TotalAmount) {
		s.logger.Warn("order total does not match item snapshots",
			"customer_id", actor.ID, "submitted", order.TotalAmount.String(), "computed", computed.String())
		if s.recomputeTotal {
			if computed.GreaterThan(maxTotal) {
				return nil, fmt.Errorf("%w: computed total %s exceeds %s", domain.ErrValidation, computed, maxTotalAmount)
			}
			order.TotalAmount = computed
		}
	}

	if err := s.store.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.metrics.created(ctx)
	s.publish(ctx, domain.EventOrderCreated, order)
	s.logger.Info("order created", "order_id", order.ID, "customer_id", order.CustomerID, "restaurant_id", order.RestaurantID)
	return order, nil
}

// AdvanceStatus applies a restaurant-requested status change.
func (s *Service) AdvanceStatus(ctx context.Context, actor domain.Actor, orderID string, requested domain.OrderStatus) (*domain.Order, error) {
	if err := auth.RequireRole(actor, domain.RoleRestaurant); err != nil {
		return nil, err
	}
	if !requested.Valid() {
		return nil, fmt.Errorf("%w: unknown order status %q", domain.ErrValidation, requested)
	}

	order, err := s.loadOwned(ctx, actor, orderID, restaurantOf)
	if err != nil {
		return nil, err
	}

	return s.transition(ctx, actor, order, requested, nil)
}

// CancelByCustomer lets the customer withdraw an order nobody has
// accepted yet.
func (s *Service) CancelByCustomer(ctx context.Context, actor domain.Actor, orderID string) (*domain.Order, error) {
	if err := auth.RequireRole(actor, domain.RoleCustomer); err != nil {
		return nil, err
	}

	order, err := s.loadOwned(ctx, actor, orderID, customerOf)
	if err != nil {
		return nil, err
	}

	onlyPlaced := func(current domain.OrderStatus) error {
		if current != domain.OrderStatusPlaced {
			return &domain.InvalidTransitionError{From: current, To: domain.OrderStatusCancelled}
		}
		return nil
	}
	return s.transition(ctx, actor, order, domain.OrderStatusCancelled, onlyPlaced)
}

// transition validates and writes a status change with compare-and-swap.
// A lost race re-reads the order and re-validates against the status
// that won.
func (s *Service) transition(ctx context.Context, actor domain.Actor, order *domain.Order, requested domain.OrderStatus, guard func(domain.OrderStatus) error) (*domain.Order, error) {
	for attempt := 1; attempt <= maxTransitionAttempts; attempt++ {
		current := order.Status
		if guard != nil {
			if err := guard(current); err != nil {
				s.metrics.rejected(ctx, current, requested)
				return nil, err
			}
		}
		if err := domain.ValidateTransition(current, requested); err != nil {
			s.metrics.rejected(ctx, current, requested)
			return nil, err
		}

		ok, err := s.store.UpdateStatus(ctx, order.ID, current, requested, actor.ID)
		if err != nil {
			return nil, fmt.Errorf("update order status: %w", err)
		}

		if ok {
			updated, err := s.reload(ctx, order.ID)
			if err != nil {
				return nil, err
			}
			s.metrics.transitioned(ctx, current, requested)
			s.publish(ctx, domain.EventStatusChanged, updated)
			s.logger.Info("order status updated",
				"order_id", order.ID, "from", current, "to", requested, "changed_by", actor.ID)
			return updated, nil
		}

		s.metrics.conflict(ctx)
		s.logger.Warn("order status changed concurrently, re-evaluating",
			"order_id", order.ID, "expected", current, "requested", requested, "attempt", attempt)

		order, err = s.reload(ctx, order.ID)
		if err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: order %s", domain.ErrConflict, order.ID)
}

// Access tells how much of an order the caller may see.
type Access int

const (
	AccessFull Access = iota
	AccessDelivery
)

// GetOrder answers Forbidden for every caller that is not a party to the
// order, including when the order does not exist.
func (s *Service) GetOrder(ctx context.Context, actor domain.Actor, orderID string) (*domain.Order, Access, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, 0, domain.ErrForbidden
		}
		return nil, 0, err
	}
	if order == nil {
		return nil, 0, domain.ErrForbidden
	}

	switch {
	case actor.Role == domain.RoleCustomer && auth.RequireOwner(actor, order.CustomerID) == nil:
		return order, AccessFull, nil
	case actor.Role == domain.RoleRestaurant && auth.RequireOwner(actor, order.RestaurantID) == nil:
		return order, AccessFull, nil
	case actor.Role == domain.RoleDelivery && order.IsPartner(actor.ID):
		return order, AccessDelivery, nil
	}
	return nil, 0, domain.ErrForbidden
}

func (s *Service) History(ctx context.Context, actor domain.Actor, orderID string) ([]domain.StatusChange, error) {
	order, _, err := s.GetOrder(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleDelivery {
		return nil, domain.ErrForbidden
	}

	history, err := s.store.History(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("load status history: %w", err)
	}
	return history, nil
}

func (s *Service) ListForCustomer(ctx context.Context, actor domain.Actor) ([]domain.Order, error) {
	if err := auth.RequireRole(actor, domain.RoleCustomer); err != nil {
		return nil, err
	}
	orders, err := s.store.ListByCustomer(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list customer orders: %w", err)
	}
	return orders, nil
}

func (s *Service) ListForRestaurant(ctx context.Context, actor domain.Actor) ([]domain.Order, error) {
	if err := auth.RequireRole(actor, domain.RoleRestaurant); err != nil {
		return nil, err
	}
	orders, err := s.store.ListByRestaurant(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list restaurant orders: %w", err)
	}
	return orders, nil
}

// load fetches an order by id. Malformed ids can never match and are
// reported as ErrNotFound without touching the store.
func (s *Service) load(ctx context.Context, orderID string) (*domain.Order, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, domain.ErrNotFound
	}
	order, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// loadOwned loads an order the actor owns. Someone else's order answers
// ErrNotFound, same as a missing one.
func (s *Service) loadOwned(ctx context.Context, actor domain.Actor, orderID string, ownerOf func(*domain.Order) string) (*domain.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}
	if err := auth.RequireOwner(actor, ownerOf(order)); err != nil {
		return nil, domain.ErrNotFound
	}
	return order, nil
}

func restaurantOf(o *domain.Order) string { return o.RestaurantID }
func customerOf(o *domain.Order) string   { return o.CustomerID }

func (s *Service) reload(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}
	return order, nil
}

func (s *Service) publish(ctx context.Context, eventType domain.EventType, order *domain.Order) {
	if s.publisher == nil {
		return
	}
	event := domain.NewOrderEvent(eventType, order, s.now().UTC())
	if err := s.publisher.Publish(ctx, order.ID, event); err != nil {
		s.logger.Error("failed to publish order event", "error", err, "order_id", order.ID, "type", eventType)
	}
}
