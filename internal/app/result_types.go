package app

import "fulfillment/internal/core"

// ScanResult is returned by SubmitScan.
type ScanResult struct {
	Result *core.AcceptResult
}

// ProgressResult is returned by GetProgress.
type ProgressResult struct {
	Progress *core.OrderProgress
	Cached   bool
}

// ScanListResult is returned by ListScans.
type ScanListResult struct {
	OrderID string
	Records []core.ScanRecord
}

// ShipmentResult is returned by FinalizeShipment and GetShipment.
type ShipmentResult struct {
	Shipment *core.Shipment
}

// OrderResult is returned by order lookups.
type OrderResult struct {
	Order *core.Order
}

// UnitResult is returned by RegisterUnit.
type UnitResult struct {
	Unit *core.InventoryUnit
}
