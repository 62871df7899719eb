package orders

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/joao-fontenele/foodorder/internal/domain"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create persists the order, its item snapshots and the initial status
// log entry in one transaction.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	order.ID = uuid.New().String()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders.orders (id, customer_id, restaurant_id, total_amount, status, delivery_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, order.ID, order.CustomerID, order.RestaurantID, order.TotalAmount, order.Status, order.DeliveryStatus, order.CreatedAt)
	if err != nil {
		return err
	}

	for i, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO orders.order_items (id, order_id, position, menu_item_id, name, unit_price, image_ref, quantity)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, uuid.New().String(), order.ID, i, item.MenuItemID, item.Name, item.UnitPrice, item.ImageRef, item.Quantity)
		if err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders.order_status_log (order_id, from_status, to_status, changed_by, changed_at)
		VALUES ($1, NULL, $2, $3, $4)
	`, order.ID, order.Status, order.CustomerID, order.CreatedAt)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	order.UpdatedAt = order.CreatedAt
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	orders, err := r.list(ctx, `WHERE o.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return &orders[0], nil
}

// UpdateStatus moves the order from expected to next only if its status
// is still expected. It reports false when another writer got there
// first.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, expected, next domain.OrderStatus, changedBy string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE orders.orders SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, next, id, expected)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	if rowsAffected == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders.order_status_log (order_id, from_status, to_status, changed_by, changed_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, id, expected, next, changedBy)
	if err != nil {
		return false, err
	}

	return true, tx.Commit()
}

// AssignPartner binds the partner to a non-terminal order owned by the
// restaurant and records the assignment.
func (r *OrderRepository) AssignPartner(ctx context.Context, id, restaurantID, partnerID string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE orders.orders SET delivery_partner_id = $1, delivery_status = $2, updated_at = NOW()
		WHERE id = $3 AND restaurant_id = $4 AND status NOT IN ($5, $6)
	`, partnerID, domain.DeliveryStatusAssigned, id, restaurantID, domain.OrderStatusCompleted, domain.OrderStatusCancelled)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	if rowsAffected == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders.delivery_assignments (order_id, partner_id, assigned_by, assigned_at)
		VALUES ($1, $2, $3, NOW())
	`, id, partnerID, restaurantID)
	if err != nil {
		return false, err
	}

	return true, tx.Commit()
}

func (r *OrderRepository) UpdateDeliveryStatus(ctx context.Context, id, partnerID string, status domain.DeliveryStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders.orders SET delivery_status = $1, updated_at = NOW()
		WHERE id = $2 AND delivery_partner_id = $3
	`, status, id, partnerID)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]domain.Order, error) {
	return r.list(ctx, `WHERE o.customer_id = $1`, customerID)
}

func (r *OrderRepository) ListByRestaurant(ctx context.Context, restaurantID string) ([]domain.Order, error) {
	return r.list(ctx, `WHERE o.restaurant_id = $1`, restaurantID)
}

// ListByDeliveryPartner returns orders the partner is bound to now or
// was bound to before a reassignment.
func (r *OrderRepository) ListByDeliveryPartner(ctx context.Context, partnerID string) ([]domain.Order, error) {
	return r.list(ctx, `
		WHERE o.delivery_partner_id = $1
		   OR o.id IN (SELECT order_id FROM orders.delivery_assignments WHERE partner_id = $1)
	`, partnerID)
}

func (r *OrderRepository) ListByRestaurantAndPartner(ctx context.Context, restaurantID, partnerID string) ([]domain.Order, error) {
	return r.list(ctx, `WHERE o.restaurant_id = $1 AND o.delivery_partner_id = $2`, restaurantID, partnerID)
}

func (r *OrderRepository) History(ctx context.Context, id string) ([]domain.StatusChange, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, from_status, to_status, changed_by, changed_at
		FROM orders.order_status_log
		WHERE order_id = $1
		ORDER BY changed_at, id
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	history := []domain.StatusChange{}
	for rows.Next() {
		var change domain.StatusChange
		var from sql.NullString
		if err := rows.Scan(&change.OrderID, &from, &change.To, &change.ChangedBy, &change.ChangedAt); err != nil {
			return nil, err
		}
		if from.Valid {
			status := domain.OrderStatus(from.String)
			change.From = &status
		}
		history = append(history, change)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return history, nil
}

func (r *OrderRepository) GetPartner(ctx context.Context, id string) (*domain.DeliveryPartner, error) {
	partner := &domain.DeliveryPartner{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, phone, email, is_available, is_blocked
		FROM directory.delivery_partners
		WHERE id = $1
	`, id).Scan(&partner.ID, &partner.Name, &partner.Phone, &partner.Email, &partner.IsAvailable, &partner.IsBlocked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return partner, nil
}

func (r *OrderRepository) AvailablePartners(ctx context.Context) ([]domain.DeliveryPartner, error) {
	return r.partners(ctx, `
		SELECT id, name, phone, email, is_available, is_blocked
		FROM directory.delivery_partners
		WHERE is_available AND NOT is_blocked
		ORDER BY name
	`)
}

// PartnersForRestaurant lists the distinct partners currently bound to
// any of the restaurant's orders.
func (r *OrderRepository) PartnersForRestaurant(ctx context.Context, restaurantID string) ([]domain.DeliveryPartner, error) {
	return r.partners(ctx, `
		SELECT DISTINCT dp.id, dp.name, dp.phone, dp.email, dp.is_available, dp.is_blocked
		FROM directory.delivery_partners dp
		JOIN orders.orders o ON o.delivery_partner_id = dp.id
		WHERE o.restaurant_id = $1
		ORDER BY dp.name
	`, restaurantID)
}

func (r *OrderRepository) partners(ctx context.Context, query string, args ...any) ([]domain.DeliveryPartner, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	partners := []domain.DeliveryPartner{}
	for rows.Next() {
		var p domain.DeliveryPartner
		if err := rows.Scan(&p.ID, &p.Name, &p.Phone, &p.Email, &p.IsAvailable, &p.IsBlocked); err != nil {
			return nil, err
		}
		partners = append(partners, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return partners, nil
}

// list loads orders matching where, newest first, with their items and
// the directory names joined in. Items are fetched in a single query.
func (r *OrderRepository) list(ctx context.Context, where string, args ...any) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT o.id, o.customer_id, o.restaurant_id, o.total_amount, o.status,
		       o.delivery_partner_id, o.delivery_status, o.created_at, o.updated_at,
		       COALESCE(rs.name, ''), COALESCE(c.name, ''), COALESCE(c.phone, ''), COALESCE(dp.name, '')
		FROM orders.orders o
		LEFT JOIN directory.restaurants rs ON rs.id = o.restaurant_id
		LEFT JOIN directory.customers c ON c.id = o.customer_id
		LEFT JOIN directory.delivery_partners dp ON dp.id = o.delivery_partner_id
		`+where+`
		ORDER BY o.created_at DESC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		order := &domain.Order{}
		var partnerID sql.NullString
		if err := rows.Scan(
			&order.ID, &order.CustomerID, &order.RestaurantID, &order.TotalAmount, &order.Status,
			&partnerID, &order.DeliveryStatus, &order.CreatedAt, &order.UpdatedAt,
			&order.RestaurantName, &order.CustomerName, &order.CustomerPhone, &order.DeliveryPartnerName,
		); err != nil {
			return nil, err
		}
		if partnerID.Valid {
			order.DeliveryPartnerID = &partnerID.String
		}
		order.CreatedAt = order.CreatedAt.UTC()
		order.UpdatedAt = order.UpdatedAt.UTC()
		order.Items = []domain.OrderItem{}
		orderMap[order.ID] = order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT order_id, menu_item_id, name, unit_price, image_ref, quantity
		FROM orders.order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var orderID string
		var item domain.OrderItem
		if err := itemRows.Scan(&orderID, &item.MenuItemID, &item.Name, &item.UnitPrice, &item.ImageRef, &item.Quantity); err != nil {
			return nil, err
		}
		order := orderMap[orderID]
		order.Items = append(order.Items, item)
	}

	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

