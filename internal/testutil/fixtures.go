package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"fulfillment/internal/core"

	"github.com/shopspring/decimal"
)

// Epoch is the fixed instant used by test clocks.
var Epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// SingleItemOrder returns an open order with one item of the given type tag.
// The item id is orderID + "-1".
func SingleItemOrder(orderID, typeTag string, quantity int) core.Order {
	return core.Order{
		ID:          orderID,
		OrderNumber: "SO-" + orderID,
		CustomerRef: "CUST-1",
		CreatedAt:   Epoch,
		Items: []core.OrderItem{
			{
				ID:           orderID + "-1",
				Position:     1,
				TypeTag:      typeTag,
				ProductLabel: typeTag + " 1200mm",
				Quantity:     quantity,
				Width:        decimal.NewFromInt(1200),
				Weight:       decimal.RequireFromString("18.5"),
			},
		},
	}
}

// Unit returns an inspected subdivided unit of category, ready to scan.
func Unit(barcode, category string) core.InventoryUnit {
	return core.InventoryUnit{
		ID:        "unit-" + barcode,
		Barcode:   barcode,
		Kind:      core.UnitSubdivided,
		Category:  category,
		Inspected: true,
	}
}

// BulkUnit returns an inspected bulk unit with the given remaining quantity.
func BulkUnit(barcode, category string, remaining int64) core.InventoryUnit {
	u := Unit(barcode, category)
	u.Kind = core.UnitBulk
	u.Remaining = decimal.NewFromInt(remaining)
	return u
}

// Units returns one Unit per barcode.
func Units(category string, barcodes ...string) []core.InventoryUnit {
	out := make([]core.InventoryUnit, 0, len(barcodes))
	for _, b := range barcodes {
		out = append(out, Unit(b, category))
	}
	return out
}

// NumberedUnits returns n units with barcodes prefix1..prefixN.
func NumberedUnits(prefix, category string, n int) []core.InventoryUnit {
	out := make([]core.InventoryUnit, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, Unit(fmt.Sprintf("%s%d", prefix, i), category))
	}
	return out
}

// Seed stores order and units, failing the test on error.
func Seed(t *testing.T, ctx context.Context, store core.Store, order core.Order, units ...core.InventoryUnit) {
	t.Helper()
	if err := store.CreateOrder(ctx, order); err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	for _, u := range units {
		if err := store.AddUnit(ctx, u); err != nil {
			t.Fatalf("AddUnit %s failed: %v", u.Barcode, err)
		}
	}
}
