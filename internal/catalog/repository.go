package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/joao-fontenele/foodorder/internal/domain"
)

type MenuRepository struct {
	db *sql.DB
}

func NewMenuRepository(db *sql.DB) *MenuRepository {
	return &MenuRepository{db: db}
}

// Snapshot resolves every id to its current catalog values. Deleted items
// do not resolve; any unresolved id fails the whole call.
func (r *MenuRepository) Snapshot(ctx context.Context, ids []string) (map[string]domain.MenuItemSnapshot, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no menu item ids", domain.ErrValidation)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, restaurant_id, name, price, image, is_available
		FROM catalog.menu_items
		WHERE id = ANY($1) AND NOT is_deleted
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	snapshots := make(map[string]domain.MenuItemSnapshot, len(ids))
	for rows.Next() {
		var item domain.MenuItemSnapshot
		if err := rows.Scan(&item.ID, &item.RestaurantID, &item.Name, &item.Price, &item.Image, &item.IsAvailable); err != nil {
			return nil, err
		}
		snapshots[item.ID] = item
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if missing := missingIDs(ids, snapshots); len(missing) > 0 {
		return nil, fmt.Errorf("%w: menu items %s", domain.ErrNotFound, strings.Join(missing, ", "))
	}

	return snapshots, nil
}

func (r *MenuRepository) Get(ctx context.Context, id string) (*domain.MenuItemSnapshot, error) {
	item := &domain.MenuItemSnapshot{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, restaurant_id, name, price, image, is_available
		FROM catalog.menu_items
		WHERE id = $1 AND NOT is_deleted
	`, id).Scan(&item.ID, &item.RestaurantID, &item.Name, &item.Price, &item.Image, &item.IsAvailable)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return item, nil
}

func (r *MenuRepository) ListByRestaurant(ctx context.Context, restaurantID string) ([]domain.MenuItemSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, restaurant_id, name, price, image, is_available
		FROM catalog.menu_items
		WHERE restaurant_id = $1 AND NOT is_deleted
		ORDER BY name
	`, restaurantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	items := []domain.MenuItemSnapshot{}
	for rows.Next() {
		var item domain.MenuItemSnapshot
		if err := rows.Scan(&item.ID, &item.RestaurantID, &item.Name, &item.Price, &item.Image, &item.IsAvailable); err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func missingIDs(ids []string, found map[string]domain.MenuItemSnapshot) []string {
	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
