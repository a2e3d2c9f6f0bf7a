package core

import (
	"context"
	"errors"
	"fmt"

	"fulfillment/internal/clock"

	"github.com/google/uuid"
)

// ShipmentFinalizer closes a fully scanned order as shipped.
type ShipmentFinalizer interface {
	// Finalize checks completeness against the ledger and, in one transaction, marks every
	// scanned unit sold, writes the Shipment and marks the order shipped.
	// Returns *OrderIncompleteError, ErrOrderAlreadyShipped or ErrUnitNotEligible without
	// changing anything.
	Finalize(ctx context.Context, orderID string) (*Shipment, error)
}

type shipmentFinalizer struct {
	store  Store
	ledger ScanLedger
	clock  clock.Clock
}

func NewShipmentFinalizer(store Store, ledger ScanLedger, clk clock.Clock) ShipmentFinalizer {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &shipmentFinalizer{store: store, ledger: ledger, clock: clk}
}

func (f *shipmentFinalizer) Finalize(ctx context.Context, orderID string) (*Shipment, error) {
	var shipment *Shipment
	err := f.store.WithTx(ctx, func(ctx context.Context) error {
		order, err := f.store.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.IsShipped() {
			return fmt.Errorf("order %s: %w", order.ID, ErrOrderAlreadyShipped)
		}

		records, err := f.ledger.ListForOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		byItem := groupByItem(records)

		var missing []string
		for _, it := range order.Items {
			if len(DistinctBarcodes(byItem[it.ID])) != it.Quantity {
				missing = append(missing, it.ID)
			}
		}
		if len(missing) > 0 {
			return &OrderIncompleteError{OrderID: order.ID, MissingItemIDs: missing}
		}

		now := f.clock.Now()
		s := Shipment{
			ID:        uuid.NewString(),
			OrderID:   order.ID,
			Bindings:  make([]ShipmentBinding, 0, len(records)),
			CreatedAt: now,
		}
		for _, it := range order.Items {
			for _, rec := range byItem[it.ID] {
				unitID, err := f.checkUnit(ctx, order.ID, rec)
				if err != nil {
					return err
				}
				if err := f.store.MarkSold(ctx, unitID, order.ID, it.ID); err != nil {
					return fmt.Errorf("failed to mark unit %s sold: %w", rec.Barcode, err)
				}
				s.Bindings = append(s.Bindings, ShipmentBinding{
					OrderItemID: it.ID,
					UnitID:      unitID,
					Barcode:     rec.Barcode,
				})
			}
		}

		if err := f.store.InsertShipment(ctx, s); err != nil {
			return fmt.Errorf("failed to create shipment for order %s: %w", order.ID, err)
		}
		if err := f.store.MarkOrderShipped(ctx, order.ID, now); err != nil {
			return fmt.Errorf("failed to mark order %s shipped: %w", order.ID, err)
		}
		shipment = &s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return shipment, nil
}

// checkUnit re-reads the unit behind rec and confirms it can still ship with orderID.
func (f *shipmentFinalizer) checkUnit(ctx context.Context, orderID string, rec ScanRecord) (string, error) {
	unit, err := f.store.LookupByBarcode(ctx, rec.Barcode)
	if err != nil {
		if errors.Is(err, ErrNoSuchUnit) {
			return "", fmt.Errorf("scanned barcode %s no longer resolves: %w", rec.Barcode, ErrUnitNotEligible)
		}
		return "", fmt.Errorf("failed to look up barcode %s: %w", rec.Barcode, err)
	}
	if rec.UnitID != nil && *rec.UnitID != unit.ID {
		return "", fmt.Errorf("barcode %s now belongs to unit %s: %w", rec.Barcode, unit.ID, ErrUnitNotEligible)
	}
	if unit.Sold {
		return "", fmt.Errorf("unit %s already sold: %w", rec.Barcode, ErrUnitNotEligible)
	}
	if unit.ReservedElsewhere(orderID) {
		return "", fmt.Errorf("unit %s reserved to order %s: %w", rec.Barcode, *unit.OrderID, ErrUnitNotEligible)
	}
	return unit.ID, nil
}
