package tracking

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/joao-fontenele/foodorder/internal/auth"
	"github.com/joao-fontenele/foodorder/internal/domain"
	"github.com/joao-fontenele/foodorder/internal/messaging"
)

const testSecret = "tracking-secret"

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(auth.NewVerifier(testSecret), logger)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", hub.HandleWebSocket)
	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return hub, server
}

func token(t *testing.T, actor domain.Actor) string {
	t.Helper()
	raw, err := auth.NewIssuer(testSecret, time.Hour).Issue(actor)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return raw
}

func dial(t *testing.T, server *httptest.Server, actor domain.Actor) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?access_token=" + token(t, actor)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, hub.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) (domain.OrderEvent, error) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var event domain.OrderEvent
	err := conn.ReadJSON(&event)
	return event, err
}

func TestHub_DeliversOnlyToParties(t *testing.T) {
	hub, server := startHub(t)

	partnerID := "dp-1"
	customerConn := dial(t, server, domain.Actor{ID: "cust-1", Role: domain.RoleCustomer})
	restaurantConn := dial(t, server, domain.Actor{ID: "rest-1", Role: domain.RoleRestaurant})
	partnerConn := dial(t, server, domain.Actor{ID: partnerID, Role: domain.RoleDelivery})
	strangerConn := dial(t, server, domain.Actor{ID: "cust-2", Role: domain.RoleCustomer})
	waitForClients(t, hub, 4)

	event := domain.OrderEvent{
		Type:              domain.EventDeliveryAssigned,
		OrderID:           "order-1",
		CustomerID:        "cust-1",
		RestaurantID:      "rest-1",
		DeliveryPartnerID: &partnerID,
		Status:            domain.OrderStatusAccepted,
		DeliveryStatus:    domain.DeliveryStatusAssigned,
		Timestamp:         time.Now().UTC(),
	}
	if err := hub.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	for name, conn := range map[string]*websocket.Conn{
		"customer":   customerConn,
		"restaurant": restaurantConn,
		"partner":    partnerConn,
	} {
		got, err := readEvent(t, conn)
		if err != nil {
			t.Fatalf("%s: expected event, got error %v", name, err)
		}
		if got.OrderID != "order-1" || got.Type != domain.EventDeliveryAssigned {
			t.Errorf("%s: unexpected event %+v", name, got)
		}
	}

	if _, err := readEvent(t, strangerConn); err == nil {
		t.Error("stranger must not receive the event")
	}
}

func TestHub_RejectsUnauthenticated(t *testing.T) {
	_, server := startHub(t)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %+v", resp)
	}
}

func TestHub_HeaderToken(t *testing.T) {
	hub, server := startHub(t)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	header := http.Header{"Authorization": []string{"Bearer " + token(t, domain.Actor{ID: "rest-1", Role: domain.RoleRestaurant})}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer func() { _ = conn.Close() }()

	waitForClients(t, hub, 1)
	_ = conn.Close()
	waitForClients(t, hub, 0)
}

func TestEventHandler_Handle(t *testing.T) {
	hub, server := startHub(t)
	handler := NewEventHandler(hub, slog.New(slog.NewTextHandler(io.Discard, nil)))

	conn := dial(t, server, domain.Actor{ID: "cust-1", Role: domain.RoleCustomer})
	waitForClients(t, hub, 1)

	t.Run("forwards decoded events", func(t *testing.T) {
		payload := `{"type":"order.status_changed","order_id":"o-1","customer_id":"cust-1","restaurant_id":"rest-1","delivery_partner_id":null,"status":"accepted","delivery_status":"unassigned","timestamp":"2024-05-01T12:00:00Z"}`
		if err := handler.Handle(context.Background(), []byte(payload)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err := readEvent(t, conn)
		if err != nil {
			t.Fatalf("expected event: %v", err)
		}
		if got.Status != domain.OrderStatusAccepted {
			t.Errorf("expected accepted, got %s", got.Status)
		}
	})

	t.Run("discards malformed payloads", func(t *testing.T) {
		for _, payload := range []string{`not json`, `{"type":"order.created"}`, `{"type":"x","order_id":"o","status":"shipped"}`} {
			err := handler.Handle(context.Background(), []byte(payload))
			if !messaging.IsDiscarded(err) {
				t.Errorf("payload %s: expected discarded error, got %v", payload, err)
			}
		}
	})
}
