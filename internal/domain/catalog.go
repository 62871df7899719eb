package domain

import "github.com/shopspring/decimal"

// MenuItemSnapshot is the catalog view of a menu item copied into an
// order at creation time.
type MenuItemSnapshot struct {
	ID           string          `json:"id"`
	RestaurantID string          `json:"restaurant_id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Image        string          `json:"image"`
	IsAvailable  bool            `json:"is_available"`
}
