package core

import (
	"context"
	"time"
)

// Transactor runs fn inside a single storage transaction. Nested calls join the
// outer transaction. The transaction commits only when fn returns nil.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderStore reads orders and applies the open → shipped transition.
type OrderStore interface {
	// LockOrder loads the order and holds an exclusive per-order lock until the
	// surrounding transaction ends. Returns ErrOrderNotFound when absent.
	LockOrder(ctx context.Context, orderID string) (*Order, error)
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	CreateOrder(ctx context.Context, order Order) error
	MarkOrderShipped(ctx context.Context, orderID string, at time.Time) error
}

// UnitDirectory is the inventory unit collaborator. Fulfillment reads units, reserves
// them when a scan is accepted and marks them sold on finalize.
type UnitDirectory interface {
	// LookupByBarcode returns ErrNoSuchUnit when no unit carries the barcode.
	LookupByBarcode(ctx context.Context, barcode string) (*InventoryUnit, error)
	// ReserveUnit binds an unsold unit to orderID and orderItemID. It returns
	// ErrUnitNotEligible when the unit is sold or reserved to another order, so a
	// unit is claimed by at most one order's ledger.
	ReserveUnit(ctx context.Context, unitID, orderID, orderItemID string) error
	MarkSold(ctx context.Context, unitID, orderID, orderItemID string) error
	AddUnit(ctx context.Context, unit InventoryUnit) error
}

// LedgerStore persists scan records with uniqueness on (order id, barcode).
type LedgerStore interface {
	// InsertScan stores rec unless a record for the same order and barcode exists,
	// in which case the existing record is returned with created=false.
	InsertScan(ctx context.Context, rec ScanRecord) (ScanRecord, bool, error)
	// FindScan returns nil, nil when no record exists.
	FindScan(ctx context.Context, orderID, barcode string) (*ScanRecord, error)
	// ListScans returns records in insertion order.
	ListScans(ctx context.Context, orderID string) ([]ScanRecord, error)
}

// ShipmentStore persists finalized shipments.
type ShipmentStore interface {
	InsertShipment(ctx context.Context, s Shipment) error
	// GetShipmentByOrder returns ErrShipmentNotFound when the order has not shipped.
	GetShipmentByOrder(ctx context.Context, orderID string) (*Shipment, error)
}

// Store is everything the fulfillment services need from persistence.
type Store interface {
	Transactor
	OrderStore
	UnitDirectory
	LedgerStore
	ShipmentStore
}
