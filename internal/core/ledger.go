package core

import (
	"context"
	"fmt"

	"fulfillment/internal/clock"

	"github.com/google/uuid"
)

// ScanLedger is the durable, append-only record of accepted scans.
// Progress is always projected from it, never from caller-held state.
type ScanLedger interface {
	// Record appends a scan. A second call for the same order and barcode returns the
	// existing record with created=false. Storage failures are *LedgerWriteError.
	Record(ctx context.Context, rec ScanRecord) (ScanRecord, bool, error)
	// Find returns the record for (orderID, barcode), or nil.
	Find(ctx context.Context, orderID, barcode string) (*ScanRecord, error)
	// ListForOrder returns every record of the order in insertion order.
	ListForOrder(ctx context.Context, orderID string) ([]ScanRecord, error)
}

type scanLedger struct {
	store LedgerStore
	clock clock.Clock
}

func NewScanLedger(store LedgerStore, clk clock.Clock) ScanLedger {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &scanLedger{store: store, clock: clk}
}

func (l *scanLedger) Record(ctx context.Context, rec ScanRecord) (ScanRecord, bool, error) {
	if rec.OrderID == "" || rec.Barcode == "" || rec.OrderItemID == "" {
		return ScanRecord{}, false, fmt.Errorf("scan record requires order id, item id and barcode")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.ScannedAt.IsZero() {
		rec.ScannedAt = l.clock.Now()
	}

	stored, created, err := l.store.InsertScan(ctx, rec)
	if err != nil {
		return ScanRecord{}, false, &LedgerWriteError{OrderID: rec.OrderID, Barcode: rec.Barcode, Err: err}
	}
	return stored, created, nil
}

func (l *scanLedger) Find(ctx context.Context, orderID, barcode string) (*ScanRecord, error) {
	rec, err := l.store.FindScan(ctx, orderID, barcode)
	if err != nil {
		return nil, fmt.Errorf("failed to look up scan %s for order %s: %w", barcode, orderID, err)
	}
	return rec, nil
}

func (l *scanLedger) ListForOrder(ctx context.Context, orderID string) ([]ScanRecord, error) {
	recs, err := l.store.ListScans(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans for order %s: %w", orderID, err)
	}
	return recs, nil
}

// groupByItem buckets ledger records by order item id, preserving insertion order.
func groupByItem(records []ScanRecord) map[string][]ScanRecord {
	out := make(map[string][]ScanRecord)
	for _, r := range records {
		out[r.OrderItemID] = append(out[r.OrderItemID], r)
	}
	return out
}
