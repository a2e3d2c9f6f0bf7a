package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the fulfillment state of an order.
//
//	open → shipped
//
// A shipped order is immutable: no further scans or finalization are accepted.
type OrderStatus string

const (
	OrderOpen    OrderStatus = "open"
	OrderShipped OrderStatus = "shipped"
)

// Order is a customer request for a bundle of inventory units to be shipped.
// Orders are created by order entry; this package only drives the open → shipped transition.
type Order struct {
	ID          string      `json:"id"`
	OrderNumber string      `json:"order_number"`
	CustomerRef string      `json:"customer_ref"`
	Note        string      `json:"note,omitempty"`
	Status      OrderStatus `json:"status"`
	Items       []OrderItem `json:"items"`
	CreatedAt   time.Time   `json:"created_at"`
	ShippedAt   *time.Time  `json:"shipped_at,omitempty"`
}

// IsShipped reports whether the order has been closed by the finalizer.
func (o *Order) IsShipped() bool {
	return o.Status == OrderShipped
}

// Item returns the order item with the given id.
func (o *Order) Item(itemID string) (OrderItem, bool) {
	for _, it := range o.Items {
		if it.ID == itemID {
			return it, true
		}
	}
	return OrderItem{}, false
}

// OrderItem is one required category/quantity within an order.
// Width, Length and Weight are display hints only and never take part in matching identity.
type OrderItem struct {
	ID           string          `json:"id"`
	OrderID      string          `json:"order_id"`
	Position     int             `json:"position"`
	TypeTag      string          `json:"type_tag"`
	ProductLabel string          `json:"product_label,omitempty"`
	Quantity     int             `json:"quantity"`
	Width        decimal.Decimal `json:"width"`
	Length       decimal.Decimal `json:"length"`
	Weight       decimal.Decimal `json:"weight"`
}

// Validate checks the structural invariants of a new order before it is stored.
func (o *Order) Validate() error {
	if o.ID == "" {
		return invalidOrder("order id is required")
	}
	if len(o.Items) == 0 {
		return invalidOrder("order %s must have at least one item", o.ID)
	}
	seen := make(map[string]bool, len(o.Items))
	for _, it := range o.Items {
		if it.ID == "" {
			return invalidOrder("order %s has an item without id", o.ID)
		}
		if seen[it.ID] {
			return invalidOrder("order %s has duplicate item id %s", o.ID, it.ID)
		}
		seen[it.ID] = true
		if it.Quantity <= 0 {
			return invalidOrder("item %s quantity must be positive, got %d", it.ID, it.Quantity)
		}
	}
	return nil
}
