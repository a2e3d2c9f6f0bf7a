package app

import (
	"context"

	"fulfillment/internal/core"
)

// ApplicationService is the single interface all adapters (station, CLI, web) call.
// It decouples presentation from the fulfillment core. Implementations contain
// no display logic of any kind.
type ApplicationService interface {
	// SubmitScan matches and records one scan against an order. Rejections such as
	// NoMatch or QuantityExceeded come back as outcomes in the result, not as errors.
	SubmitScan(ctx context.Context, req SubmitScanRequest) (*ScanResult, error)

	// GetProgress returns the per-item scan status of an order, rebuilt from the ledger.
	GetProgress(ctx context.Context, orderID string) (*ProgressResult, error)

	// ListScans returns the accepted scan records of an order in acceptance order.
	ListScans(ctx context.Context, orderID string) (*ScanListResult, error)

	// FinalizeShipment closes a fully scanned order as shipped.
	FinalizeShipment(ctx context.Context, orderID string) (*ShipmentResult, error)

	// GetShipment returns the shipment of a finalized order.
	GetShipment(ctx context.Context, orderID string) (*ShipmentResult, error)

	GetOrder(ctx context.Context, orderID string) (*OrderResult, error)

	// CreateOrder registers an open order and its items.
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderResult, error)

	// RegisterUnit adds an inventory unit to the directory.
	RegisterUnit(ctx context.Context, req RegisterUnitRequest) (*UnitResult, error)
}

// ProgressCache is an optional projection cache. The ledger stays authoritative.
type ProgressCache interface {
	Get(ctx context.Context, orderID string) (*core.OrderProgress, bool, error)
	// Generation is read before projecting the ledger and passed to Set.
	Generation(ctx context.Context, orderID string) (int64, error)
	// Set stores progress unless Invalidate ran after generation was read.
	Set(ctx context.Context, progress *core.OrderProgress, generation int64) (bool, error)
	Invalidate(ctx context.Context, orderID string) error
}
