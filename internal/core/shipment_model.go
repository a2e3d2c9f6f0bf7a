package core

import "time"

// MatchMethod records how a scanned unit was associated with an order item.
type MatchMethod string

const (
	MatchBinding  MatchMethod = "binding"
	MatchType     MatchMethod = "type"
	MatchFallback MatchMethod = "fallback"
)

// ScanRecord is one accepted scan in the ledger. Records are append-only.
// UnitID is nil when the unit could not be resolved at capture time.
type ScanRecord struct {
	ID          string      `json:"id"`
	OrderID     string      `json:"order_id"`
	OrderItemID string      `json:"order_item_id"`
	Barcode     string      `json:"barcode"`
	UnitID      *string     `json:"unit_id,omitempty"`
	OperatorID  string      `json:"operator_id,omitempty"`
	Method      MatchMethod `json:"match_method"`
	NeedsReview bool        `json:"needs_review"`
	ScannedAt   time.Time   `json:"scanned_at"`
}

// Shipment is the immutable close-out record of an order.
type Shipment struct {
	ID        string            `json:"id"`
	OrderID   string            `json:"order_id"`
	Bindings  []ShipmentBinding `json:"bindings"`
	CreatedAt time.Time         `json:"created_at"`
}

// ShipmentBinding ties an order item to one shipped inventory unit.
type ShipmentBinding struct {
	OrderItemID string `json:"order_item_id"`
	UnitID      string `json:"unit_id"`
	Barcode     string `json:"barcode"`
}
