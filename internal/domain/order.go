package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderItem struct {
	MenuItemID string          `json:"menu_item_id"`
	Name       string          `json:"name"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	ImageRef   string          `json:"image_ref"`
	Quantity   int             `json:"quantity"`
}

// LineTotal is UnitPrice × Quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID                string          `json:"id"`
	CustomerID        string          `json:"customer_id"`
	RestaurantID      string          `json:"restaurant_id"`
	Items             []OrderItem     `json:"items"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	Status            OrderStatus     `json:"status"`
	DeliveryPartnerID *string         `json:"delivery_partner_id"`
	DeliveryStatus    DeliveryStatus  `json:"delivery_status"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`

	// Read-side joins, filled by list queries only.
	RestaurantName      string `json:"restaurant_name,omitempty"`
	CustomerName        string `json:"customer_name,omitempty"`
	CustomerPhone       string `json:"customer_phone,omitempty"`
	DeliveryPartnerName string `json:"delivery_partner_name,omitempty"`
}

// ComputedTotal sums the line totals of the snapshot items.
func (o *Order) ComputedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// IsPartner reports whether partnerID is the delivery partner bound to the order.
func (o *Order) IsPartner(partnerID string) bool {
	return o.DeliveryPartnerID != nil && *o.DeliveryPartnerID == partnerID
}

// DeliveryItem is a line item as shown to a delivery partner.
type DeliveryItem struct {
	MenuItemID string `json:"menu_item_id"`
	Name       string `json:"name"`
	ImageRef   string `json:"image_ref"`
	Quantity   int    `json:"quantity"`
}

// DeliveryView is the restricted projection of an order returned to its
// bound delivery partner: no prices, no total.
type DeliveryView struct {
	ID             string         `json:"id"`
	CustomerID     string         `json:"customer_id"`
	RestaurantID   string         `json:"restaurant_id"`
	Items          []DeliveryItem `json:"items"`
	Status         OrderStatus    `json:"status"`
	DeliveryStatus DeliveryStatus `json:"delivery_status"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`

	RestaurantName string `json:"restaurant_name,omitempty"`
	CustomerName   string `json:"customer_name,omitempty"`
	CustomerPhone  string `json:"customer_phone,omitempty"`
}

func (o *Order) DeliveryView() DeliveryView {
	items := make([]DeliveryItem, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, DeliveryItem{
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			ImageRef:   item.ImageRef,
			Quantity:   item.Quantity,
		})
	}
	return DeliveryView{
		ID:             o.ID,
		CustomerID:     o.CustomerID,
		RestaurantID:   o.RestaurantID,
		Items:          items,
		Status:         o.Status,
		DeliveryStatus: o.DeliveryStatus,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
		RestaurantName: o.RestaurantName,
		CustomerName:   o.CustomerName,
		CustomerPhone:  o.CustomerPhone,
	}
}

// StatusChange is one row of an order's status audit trail. From is nil
// for the creation entry.
type StatusChange struct {
	OrderID   string       `json:"order_id"`
	From      *OrderStatus `json:"from_status"`
	To        OrderStatus  `json:"to_status"`
	ChangedBy string       `json:"changed_by"`
	ChangedAt time.Time    `json:"changed_at"`
}

// DeliveryPartner is a partner record from the external directory.
type DeliveryPartner struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
	IsAvailable bool   `json:"is_available"`
	IsBlocked   bool   `json:"is_blocked"`
}
