package orders

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/foodorder/internal/domain"
)

// memStore is an in-memory Store with the same conditional write
// semantics as OrderRepository.
type memStore struct {
	mu          sync.Mutex
	orders      map[string]*domain.Order
	history     map[string][]domain.StatusChange
	assignments map[string][]string
	partners    map[string]domain.DeliveryPartner
	clock       time.Time

	// beforeUpdate runs inside UpdateStatus before the guard is checked.
	// Returning false forces a compare-and-swap miss.
	beforeUpdate func(order *domain.Order) bool
	failWith     error
}

func newMemStore() *memStore {
	return &memStore{
		orders:      make(map[string]*domain.Order),
		history:     make(map[string][]domain.StatusChange),
		assignments: make(map[string][]string),
		partners:    make(map[string]domain.DeliveryPartner),
		clock:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func copyOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Items = slices.Clone(o.Items)
	if o.DeliveryPartnerID != nil {
		id := *o.DeliveryPartnerID
		c.DeliveryPartnerID = &id
	}
	return &c
}

func (s *memStore) Create(_ context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}

	order.ID = uuid.New().String()
	order.UpdatedAt = order.CreatedAt
	s.orders[order.ID] = copyOrder(order)
	s.history[order.ID] = append(s.history[order.ID], domain.StatusChange{
		OrderID: order.ID, To: order.Status, ChangedBy: order.CustomerID, ChangedAt: order.CreatedAt,
	})
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	order, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	return copyOrder(order), nil
}

func (s *memStore) UpdateStatus(_ context.Context, id string, expected, next domain.OrderStatus, changedBy string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return false, nil
	}
	if s.beforeUpdate != nil && !s.beforeUpdate(order) {
		return false, nil
	}
	if order.Status != expected {
		return false, nil
	}

	from := expected
	order.Status = next
	order.UpdatedAt = s.tick()
	s.history[id] = append(s.history[id], domain.StatusChange{
		OrderID: id, From: &from, To: next, ChangedBy: changedBy, ChangedAt: order.UpdatedAt,
	})
	return true, nil
}

func (s *memStore) AssignPartner(_ context.Context, id, restaurantID, partnerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok || order.RestaurantID != restaurantID || order.Status.Terminal() {
		return false, nil
	}

	order.DeliveryPartnerID = &partnerID
	order.DeliveryStatus = domain.DeliveryStatusAssigned
	order.UpdatedAt = s.tick()
	s.assignments[partnerID] = append(s.assignments[partnerID], id)
	return true, nil
}

func (s *memStore) UpdateDeliveryStatus(_ context.Context, id, partnerID string, status domain.DeliveryStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok || !order.IsPartner(partnerID) {
		return false, nil
	}

	order.DeliveryStatus = status
	order.UpdatedAt = s.tick()
	return true, nil
}

func (s *memStore) filter(match func(*domain.Order) bool) []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	orders := []domain.Order{}
	for _, o := range s.orders {
		if match(o) {
			orders = append(orders, *copyOrder(o))
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders
}

func (s *memStore) ListByCustomer(_ context.Context, customerID string) ([]domain.Order, error) {
	return s.filter(func(o *domain.Order) bool { return o.CustomerID == customerID }), nil
}

func (s *memStore) ListByRestaurant(_ context.Context, restaurantID string) ([]domain.Order, error) {
	return s.filter(func(o *domain.Order) bool { return o.RestaurantID == restaurantID }), nil
}

func (s *memStore) ListByDeliveryPartner(_ context.Context, partnerID string) ([]domain.Order, error) {
	s.mu.Lock()
	past := slices.Clone(s.assignments[partnerID])
	s.mu.Unlock()
	return s.filter(func(o *domain.Order) bool {
		return o.IsPartner(partnerID) || slices.Contains(past, o.ID)
	}), nil
}

func (s *memStore) ListByRestaurantAndPartner(_ context.Context, restaurantID, partnerID string) ([]domain.Order, error) {
	return s.filter(func(o *domain.Order) bool {
		return o.RestaurantID == restaurantID && o.IsPartner(partnerID)
	}), nil
}

func (s *memStore) History(_ context.Context, id string) ([]domain.StatusChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history[id]), nil
}

func (s *memStore) GetPartner(_ context.Context, id string) (*domain.DeliveryPartner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partners[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *memStore) AvailablePartners(_ context.Context) ([]domain.DeliveryPartner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	partners := []domain.DeliveryPartner{}
	for _, p := range s.partners {
		if p.IsAvailable && !p.IsBlocked {
			partners = append(partners, p)
		}
	}
	sort.Slice(partners, func(i, j int) bool { return partners[i].Name < partners[j].Name })
	return partners, nil
}

func (s *memStore) PartnersForRestaurant(_ context.Context, restaurantID string) ([]domain.DeliveryPartner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	partners := []domain.DeliveryPartner{}
	for _, o := range s.orders {
		if o.RestaurantID != restaurantID || o.DeliveryPartnerID == nil || seen[*o.DeliveryPartnerID] {
			continue
		}
		seen[*o.DeliveryPartnerID] = true
		if p, ok := s.partners[*o.DeliveryPartnerID]; ok {
			partners = append(partners, p)
		}
	}
	sort.Slice(partners, func(i, j int) bool { return partners[i].Name < partners[j].Name })
	return partners, nil
}

type fakeCatalog struct {
	items map[string]domain.MenuItemSnapshot
	err   error
}

func (c *fakeCatalog) Snapshot(_ context.Context, ids []string) (map[string]domain.MenuItemSnapshot, error) {
	if c.err != nil {
		return nil, c.err
	}
	if len(ids) == 0 {
		return nil, domain.ErrValidation
	}
	result := make(map[string]domain.MenuItemSnapshot)
	for _, id := range ids {
		item, ok := c.items[id]
		if !ok {
			return nil, errors.Join(domain.ErrNotFound, errors.New("menu item "+id))
		}
		result[id] = item
	}
	return result, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OrderEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, value any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, value.(domain.OrderEvent))
	return nil
}

func (p *recordingPublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]domain.EventType, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.Type)
	}
	return types
}

var (
	customer    = domain.Actor{ID: "cust-1", Role: domain.RoleCustomer}
	otherCust   = domain.Actor{ID: "cust-2", Role: domain.RoleCustomer}
	restaurant  = domain.Actor{ID: "rest-1", Role: domain.RoleRestaurant}
	otherRest   = domain.Actor{ID: "rest-2", Role: domain.RoleRestaurant}
	partner     = domain.Actor{ID: "dp-1", Role: domain.RoleDelivery}
	otherDriver = domain.Actor{ID: "dp-2", Role: domain.RoleDelivery}
	admin       = domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}
)

func testCatalog() *fakeCatalog {
	return &fakeCatalog{items: map[string]domain.MenuItemSnapshot{
		"pizza": {ID: "pizza", RestaurantID: "rest-1", Name: "Margherita", Price: decimal.RequireFromString("12.50"), Image: "pizza.png", IsAvailable: true},
		"soda":  {ID: "soda", RestaurantID: "rest-1", Name: "Soda", Price: decimal.RequireFromString("2.00"), Image: "soda.png", IsAvailable: true},
		"sushi": {ID: "sushi", RestaurantID: "rest-2", Name: "Nigiri", Price: decimal.RequireFromString("9.00"), Image: "sushi.png", IsAvailable: true},
	}}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(store *memStore, opts ...Option) *Service {
	return NewService(store, testCatalog(), discardLogger(), opts...)
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
