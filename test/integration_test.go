//go:build integration

package test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/foodorder/internal/catalog"
	"github.com/joao-fontenele/foodorder/internal/domain"
	"github.com/joao-fontenele/foodorder/internal/messaging"
	"github.com/joao-fontenele/foodorder/internal/orders"
)

var (
	customer   = domain.Actor{ID: "cust-1", Role: domain.RoleCustomer}
	restaurant = domain.Actor{ID: "rest-1", Role: domain.RoleRestaurant}
	partner    = domain.Actor{ID: "dp-1", Role: domain.RoleDelivery}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newOrderService wires the order service to a real catalog service over
// HTTP, both backed by the test database.
func newOrderService(t *testing.T, pg *PostgresSetup, opts ...orders.Option) (*orders.Service, *orders.OrderRepository) {
	t.Helper()
	logger := discardLogger()

	catalogHandler := catalog.NewHandler(catalog.NewMenuRepository(pg.DB), logger)
	catalogMux := http.NewServeMux()
	catalogMux.HandleFunc("POST /menu-items/snapshot", catalogHandler.HandleSnapshot)
	catalogServer := httptest.NewServer(catalogMux)
	t.Cleanup(catalogServer.Close)

	repo := orders.NewOrderRepository(pg.DB)
	client := catalog.NewClient(catalogServer.URL, catalogServer.Client())
	return orders.NewService(repo, client, logger, opts...), repo
}

func createMargheritaOrder(ctx context.Context, t *testing.T, svc *orders.Service) *domain.Order {
	t.Helper()
	total := decimal.NewFromInt(20)
	order, err := svc.CreateOrder(ctx, customer, orders.CreateOrderInput{
		RestaurantID: "rest-1",
		Items:        []orders.ItemRequest{{MenuItemID: "m-margherita", Quantity: 2}},
		TotalAmount:  &total,
	})
	if err != nil {
		t.Fatalf("failed to create order: %v", err)
	}
	return order
}

func TestCatalogSnapshot(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	repo := catalog.NewMenuRepository(pg.DB)

	items, err := repo.Snapshot(ctx, []string{"m-margherita", "m-calzone", "m-margherita"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(items))
	}
	if !items["m-calzone"].Price.Equal(decimal.RequireFromString("14.50")) {
		t.Fatalf("expected price 14.50, got %s", items["m-calzone"].Price)
	}

	if _, err := repo.Snapshot(ctx, []string{"m-margherita", "m-old-special"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected deleted item to be not found, got %v", err)
	}

	if _, err := repo.Snapshot(ctx, nil); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestOrderLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	svc, repo := newOrderService(t, pg)

	order := createMargheritaOrder(ctx, t, svc)
	if order.Status != domain.OrderStatusPlaced {
		t.Fatalf("expected placed, got %s", order.Status)
	}
	if len(order.Items) != 1 || order.Items[0].Name != "Margherita" || order.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items: %+v", order.Items)
	}

	stored, err := repo.GetByID(ctx, order.ID)
	if err != nil || stored == nil {
		t.Fatalf("failed to reload order: %v", err)
	}
	if !stored.TotalAmount.Equal(decimal.NewFromInt(20)) || !stored.Items[0].UnitPrice.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected stored amounts: total=%s unit=%s", stored.TotalAmount, stored.Items[0].UnitPrice)
	}
	if stored.RestaurantName != "Napoli Express" || stored.CustomerName != "Alice Martins" {
		t.Fatalf("expected directory names to be joined, got %q / %q", stored.RestaurantName, stored.CustomerName)
	}

	if _, err := svc.AdvanceStatus(ctx, restaurant, order.ID, domain.OrderStatusPreparing); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	if _, err := svc.AdvanceStatus(ctx, restaurant, order.ID, domain.OrderStatusAccepted); err != nil {
		t.Fatalf("failed to accept: %v", err)
	}

	assigned, err := svc.AssignPartner(ctx, restaurant, order.ID, partner.ID)
	if err != nil {
		t.Fatalf("failed to assign: %v", err)
	}
	if assigned.DeliveryStatus != domain.DeliveryStatusAssigned || assigned.DeliveryPartnerName != "Carla Dias" {
		t.Fatalf("unexpected assignment: %+v", assigned)
	}

	delivered, err := svc.UpdateDeliveryStatus(ctx, partner, order.ID, domain.DeliveryStatusDelivered)
	if err != nil {
		t.Fatalf("failed to update delivery status: %v", err)
	}
	if delivered.Status != domain.OrderStatusAccepted {
		t.Fatalf("delivery status must not move the order status, got %s", delivered.Status)
	}

	history, err := svc.History(ctx, customer, order.ID)
	if err != nil {
		t.Fatalf("failed to load history: %v", err)
	}
	if len(history) != 2 || history[0].From != nil || *history[1].From != domain.OrderStatusPlaced {
		t.Fatalf("unexpected history: %+v", history)
	}

	views, err := svc.ListForDeliveryPartner(ctx, partner)
	if err != nil {
		t.Fatalf("failed to list delivery orders: %v", err)
	}
	if len(views) != 1 || views[0].CustomerPhone == "" {
		t.Fatalf("unexpected delivery list: %+v", views)
	}

	for _, next := range []domain.OrderStatus{domain.OrderStatusPreparing, domain.OrderStatusOutForDelivery, domain.OrderStatusCompleted} {
		if _, err := svc.AdvanceStatus(ctx, restaurant, order.ID, next); err != nil {
			t.Fatalf("failed to advance to %s: %v", next, err)
		}
	}

	if _, err := svc.AssignPartner(ctx, restaurant, order.ID, "dp-2"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected assignment on a completed order to fail, got %v", err)
	}

	if _, err := pg.DB.ExecContext(ctx, `
		UPDATE catalog.menu_items
		SET name = 'Margherita Deluxe', price = 99.90, image = 'deluxe.png', is_deleted = TRUE
		WHERE id = 'm-margherita'
	`); err != nil {
		t.Fatalf("failed to change menu item: %v", err)
	}

	after, _, err := svc.GetOrder(ctx, customer, order.ID)
	if err != nil {
		t.Fatalf("failed to read order after catalog change: %v", err)
	}
	if len(after.Items) != 1 {
		t.Fatalf("expected 1 item, got %+v", after.Items)
	}
	item := after.Items[0]
	if item.Name != "Margherita" || !item.UnitPrice.Equal(decimal.NewFromInt(10)) || item.ImageRef != "margherita.png" {
		t.Fatalf("order item changed with the catalog: %+v", item)
	}
	if !after.TotalAmount.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected total 20, got %s", after.TotalAmount)
	}
}

func TestOrderAmountsOutsideColumnRange(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	svc, _ := newOrderService(t, pg)

	for _, total := range []string{"123456789012345.678", "20.005"} {
		amount := decimal.RequireFromString(total)
		_, err := svc.CreateOrder(ctx, customer, orders.CreateOrderInput{
			RestaurantID: "rest-1",
			Items:        []orders.ItemRequest{{MenuItemID: "m-margherita", Quantity: 2}},
			TotalAmount:  &amount,
		})
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected validation error for total %s, got %v", total, err)
		}
	}

	var count int
	if err := pg.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders.orders`).Scan(&count); err != nil {
		t.Fatalf("failed to count orders: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no stored orders, got %d", count)
	}
}

func TestConcurrentStatusWrites(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	svc, repo := newOrderService(t, pg)
	order := createMargheritaOrder(ctx, t, svc)

	const writers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			requested := domain.OrderStatusAccepted
			if i%2 == 0 {
				requested = domain.OrderStatusCancelled
			}
			if _, err := svc.AdvanceStatus(ctx, restaurant, order.ID, requested); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, domain.ErrInvalidTransition) && !errors.Is(err, domain.ErrConflict) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	history, err := repo.History(ctx, order.ID)
	if err != nil {
		t.Fatalf("failed to load history: %v", err)
	}
	if len(history) != wins+1 {
		t.Fatalf("every successful write must be logged exactly once: wins=%d history=%d", wins, len(history))
	}

	final, _ := repo.GetByID(ctx, order.ID)
	for i := 1; i < len(history); i++ {
		if *history[i].From != history[i-1].To {
			t.Fatalf("history is not a chain: %+v", history)
		}
	}
	if history[len(history)-1].To != final.Status {
		t.Fatalf("last log entry %s does not match final status %s", history[len(history)-1].To, final.Status)
	}
}

func TestDeliveryPartnerDirectory(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	svc, _ := newOrderService(t, pg, orders.WithAvailablePartnerCheck())

	available, err := svc.AvailablePartners(ctx, restaurant)
	if err != nil {
		t.Fatalf("failed to list partners: %v", err)
	}
	if len(available) != 2 {
		t.Fatalf("expected 2 available partners, got %+v", available)
	}

	order := createMargheritaOrder(ctx, t, svc)
	if _, err := svc.AssignPartner(ctx, restaurant, order.ID, "dp-3"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected blocked partner to be rejected, got %v", err)
	}
	if _, err := svc.AssignPartner(ctx, restaurant, order.ID, "dp-2"); err != nil {
		t.Fatalf("failed to assign: %v", err)
	}

	partners, err := svc.RestaurantPartners(ctx, restaurant)
	if err != nil {
		t.Fatalf("failed to list restaurant partners: %v", err)
	}
	if len(partners) != 1 || partners[0].ID != "dp-2" {
		t.Fatalf("unexpected restaurant partners: %+v", partners)
	}

	if _, err := svc.AssignPartner(ctx, restaurant, order.ID, "dp-1"); err != nil {
		t.Fatalf("failed to reassign: %v", err)
	}

	partners, err = svc.RestaurantPartners(ctx, restaurant)
	if err != nil {
		t.Fatalf("failed to list restaurant partners: %v", err)
	}
	if len(partners) != 1 || partners[0].ID != "dp-1" {
		t.Fatalf("expected only the currently bound partner, got %+v", partners)
	}

	rows, err := pg.DB.QueryContext(ctx, `
		SELECT partner_id, assigned_by FROM orders.delivery_assignments
		WHERE order_id = $1 ORDER BY id
	`, order.ID)
	if err != nil {
		t.Fatalf("failed to query assignments: %v", err)
	}
	defer func() { _ = rows.Close() }()

	var got []string
	for rows.Next() {
		var partnerID, assignedBy string
		if err := rows.Scan(&partnerID, &assignedBy); err != nil {
			t.Fatalf("failed to scan assignment: %v", err)
		}
		got = append(got, partnerID+"/"+assignedBy)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("failed to read assignments: %v", err)
	}
	if len(got) != 2 || got[0] != "dp-2/rest-1" || got[1] != "dp-1/rest-1" {
		t.Fatalf("unexpected assignment log: %v", got)
	}

	past, err := svc.ListForDeliveryPartner(ctx, domain.Actor{ID: "dp-2", Role: domain.RoleDelivery})
	if err != nil {
		t.Fatalf("failed to list past partner orders: %v", err)
	}
	if len(past) != 1 || past[0].ID != order.ID {
		t.Fatalf("expected the reassigned order in the previous partner's list, got %+v", past)
	}
}

func TestOrderEventsOverKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	brokers, cleanup := SetupKafka(ctx, t)
	defer cleanup()

	const topic = "order.events"
	producer := messaging.NewProducer(brokers, topic)
	defer func() { _ = producer.Close() }()

	order := &domain.Order{
		ID:             "3f1c9b7e-0000-4000-8000-000000000001",
		CustomerID:     "cust-1",
		RestaurantID:   "rest-1",
		Status:         domain.OrderStatusAccepted,
		DeliveryStatus: domain.DeliveryStatusUnassigned,
	}
	sent := domain.NewOrderEvent(domain.EventStatusChanged, order, time.Now().UTC().Truncate(time.Second))
	if err := producer.Publish(ctx, order.ID, sent); err != nil {
		t.Fatalf("failed to publish: %v", err)
	}

	consumer := messaging.NewConsumer(brokers, topic, "integration-test", discardLogger(),
		messaging.WithStartOffset(kafka.FirstOffset))
	defer func() { _ = consumer.Close() }()

	consumeCtx, stop := context.WithCancel(ctx)
	var received domain.OrderEvent
	err := consumer.Consume(consumeCtx, func(_ context.Context, payload []byte) error {
		defer stop()
		return json.Unmarshal(payload, &received)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("consumer error: %v", err)
	}

	if received.OrderID != order.ID || received.Type != domain.EventStatusChanged || received.Status != domain.OrderStatusAccepted {
		t.Fatalf("unexpected event: %+v", received)
	}
	if !received.Timestamp.Equal(sent.Timestamp) {
		t.Fatalf("expected timestamp %s, got %s", sent.Timestamp, received.Timestamp)
	}
}
