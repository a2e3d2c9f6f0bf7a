package core

import (
	"github.com/shopspring/decimal"
)

// UnitKind distinguishes whole bulk units from units cut out of a bulk unit.
type UnitKind string

const (
	UnitBulk       UnitKind = "bulk"
	UnitSubdivided UnitKind = "subdivided"
)

// InventoryUnit is a physical, individually barcoded unit of stock.
// Remaining only applies to bulk units and tracks the usable length/quantity left.
// OrderID and OrderItemID are set when the unit is reserved for an order line,
// and again by the finalizer when the unit ships.
type InventoryUnit struct {
	ID          string          `json:"id"`
	Barcode     string          `json:"barcode"`
	Kind        UnitKind        `json:"kind"`
	Category    string          `json:"category"`
	Inspected   bool            `json:"inspected"`
	Sold        bool            `json:"sold"`
	Remaining   decimal.Decimal `json:"remaining"`
	OrderID     *string         `json:"order_id,omitempty"`
	OrderItemID *string         `json:"order_item_id,omitempty"`
}

// ReservedElsewhere reports whether the unit is bound to an order other than orderID.
func (u *InventoryUnit) ReservedElsewhere(orderID string) bool {
	return u.OrderID != nil && *u.OrderID != "" && *u.OrderID != orderID
}

// eligibility returns a non-empty reason when the unit cannot be scanned into orderID.
func (u *InventoryUnit) eligibility(orderID string) string {
	switch {
	case !u.Inspected:
		return "not inspected"
	case u.Sold:
		return "already sold"
	case u.Kind == UnitBulk && !u.Remaining.IsPositive():
		return "no remaining quantity"
	case u.ReservedElsewhere(orderID):
		return "reserved to order " + *u.OrderID
	}
	return ""
}
