// Package seed loads demo orders and inventory units into a store.
package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"fulfillment/internal/core"
)

// Dataset is the JSON shape of a seed file.
type Dataset struct {
	Orders []core.Order         `json:"orders"`
	Units  []core.InventoryUnit `json:"units"`
}

// Summary counts what Apply inserted and skipped.
type Summary struct {
	OrdersCreated int
	OrdersSkipped int
	UnitsCreated  int
	UnitsSkipped  int
}

// LoadFile reads a Dataset from a JSON file.
func LoadFile(path string) (Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("read seed file: %w", err)
	}
	var ds Dataset
	if err := json.Unmarshal(raw, &ds); err != nil {
		return Dataset{}, fmt.Errorf("parse seed file: %w", err)
	}
	return ds, nil
}

// Apply inserts every order and unit not already present. Existing orders and
// barcodes are left untouched so the seed can be re-run.
func Apply(ctx context.Context, store core.Store, ds Dataset) (Summary, error) {
	var sum Summary
	for _, o := range ds.Orders {
		_, err := store.GetOrder(ctx, o.ID)
		switch {
		case err == nil:
			sum.OrdersSkipped++
			continue
		case !errors.Is(err, core.ErrOrderNotFound):
			return sum, err
		}
		if err := store.CreateOrder(ctx, o); err != nil {
			return sum, fmt.Errorf("seed order %s: %w", o.ID, err)
		}
		sum.OrdersCreated++
	}
	for _, u := range ds.Units {
		err := store.AddUnit(ctx, u)
		switch {
		case errors.Is(err, core.ErrDuplicateBarcode):
			sum.UnitsSkipped++
		case err != nil:
			return sum, fmt.Errorf("seed unit %s: %w", u.Barcode, err)
		default:
			sum.UnitsCreated++
		}
	}
	return sum, nil
}

// Demo returns a small warehouse: one order mixing serialized rolls, counted
// spools and a pre-bound pallet, plus units that exercise every eligibility rule.
func Demo() Dataset {
	const orderID = "DEMO-1001"
	boundItem := orderID + "-3"
	orderRef := orderID

	item := func(n int, tag, label string, qty int, width int64) core.OrderItem {
		return core.OrderItem{
			ID:           fmt.Sprintf("%s-%d", orderID, n),
			OrderID:      orderID,
			Position:     n,
			TypeTag:      tag,
			ProductLabel: label,
			Quantity:     qty,
			Width:        decimal.NewFromInt(width),
			Weight:       decimal.RequireFromString("18.5"),
		}
	}
	unit := func(barcode, category string) core.InventoryUnit {
		return core.InventoryUnit{
			ID:        "unit-" + barcode,
			Barcode:   barcode,
			Kind:      core.UnitSubdivided,
			Category:  category,
			Inspected: true,
		}
	}

	bound := unit("P-3001", "Pallet Wrap")
	bound.OrderID = &orderRef
	bound.OrderItemID = &boundItem

	uninspected := unit("J-9001", "Jumbo Roll")
	uninspected.Inspected = false

	bulk := unit("C-2002", "Cable Spool")
	bulk.Kind = core.UnitBulk
	bulk.Remaining = decimal.NewFromInt(40)

	return Dataset{
		Orders: []core.Order{{
			ID:          orderID,
			OrderNumber: "SO-1001",
			CustomerRef: "CUST-ACME",
			Note:        "demo order",
			Items: []core.OrderItem{
				item(1, "Jumbo Roll", "Jumbo Roll 1200mm", 2, 1200),
				item(2, "Cable Spool", "Cable Spool 50m", 2, 300),
				item(3, "Pallet Wrap", "Pallet Wrap 500mm", 1, 500),
			},
		}},
		Units: []core.InventoryUnit{
			unit("J-1001", "Jumbo Roll"),
			unit("J-1002", "Jumbo Roll"),
			unit("J-1003", "Jumbo Roll"),
			unit("C-2001", "Cable Spool"),
			bulk,
			bound,
			uninspected,
		},
	}
}
