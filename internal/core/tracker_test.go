package core_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"fulfillment/internal/clock"
	"fulfillment/internal/core"
	"fulfillment/internal/memstore"
	"fulfillment/internal/testutil"
)

func newServices(t *testing.T, store core.Store, opts ...core.MatcherOption) *core.Services {
	t.Helper()
	return core.NewServices(store, core.DefaultRuleSet(), clock.NewFixed(testutil.Epoch), opts...)
}

func scan(t *testing.T, svc *core.Services, orderID, barcode string) *core.AcceptResult {
	t.Helper()
	res, err := svc.Tracker.Accept(context.Background(), core.ScanRequest{OrderID: orderID, Barcode: barcode, OperatorID: "op-1"})
	if err != nil {
		t.Fatalf("Accept(%s, %s) failed: %v", orderID, barcode, err)
	}
	return res
}

func expectOutcome(t *testing.T, res *core.AcceptResult, want core.Outcome, count int) {
	t.Helper()
	if res.Outcome != want {
		t.Fatalf("expected outcome %s, got %s (%s)", want, res.Outcome, res.Reason)
	}
	if res.Count != count {
		t.Errorf("expected count %d, got %d", count, res.Count)
	}
}

func TestTracker_StandardItemScenario(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	testutil.Seed(t, ctx, store, testutil.SingleItemOrder("O1", "Cable Spool", 2),
		testutil.Units("Cable Spool", "A", "B", "C")...)
	svc := newServices(t, store)

	res := scan(t, svc, "O1", "A")
	expectOutcome(t, res, core.OutcomeAccepted, 1)
	if res.Remaining != 1 {
		t.Errorf("expected remaining 1, got %d", res.Remaining)
	}
	if res.OrderItemID != "O1-1" {
		t.Errorf("expected item O1-1, got %s", res.OrderItemID)
	}
	if res.Method != core.MatchType {
		t.Errorf("expected type match, got %s", res.Method)
	}

	expectOutcome(t, scan(t, svc, "O1", "A"), core.OutcomeAlreadyScanned, 1)

	res = scan(t, svc, "O1", "B")
	expectOutcome(t, res, core.OutcomeAccepted, 2)
	if res.Remaining != 0 {
		t.Errorf("expected remaining 0, got %d", res.Remaining)
	}

	res = scan(t, svc, "O1", "C")
	if res.Outcome != core.OutcomeQuantityExceeded {
		t.Fatalf("expected quantity_exceeded, got %s", res.Outcome)
	}
	if res.Quantity != 2 || res.OrderItemID != "O1-1" {
		t.Errorf("expected item O1-1 quantity 2 in result, got %s/%d", res.OrderItemID, res.Quantity)
	}

	records, err := svc.Ledger.ListForOrder(ctx, "O1")
	if err != nil {
		t.Fatalf("ListForOrder failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 ledger records, got %d", len(records))
	}
	if records[0].Barcode != "A" || records[1].Barcode != "B" {
		t.Errorf("expected ledger order A, B, got %s, %s", records[0].Barcode, records[1].Barcode)
	}

	shipment, err := svc.Finalizer.Finalize(ctx, "O1")
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if len(shipment.Bindings) != 2 {
		t.Fatalf("expected 2 shipment bindings, got %d", len(shipment.Bindings))
	}
	if !shipment.CreatedAt.Equal(testutil.Epoch) {
		t.Errorf("expected shipment time %v, got %v", testutil.Epoch, shipment.CreatedAt)
	}

	for _, barcode := range []string{"A", "B"} {
		u, err := store.LookupByBarcode(ctx, barcode)
		if err != nil {
			t.Fatalf("LookupByBarcode %s failed: %v", barcode, err)
		}
		if !u.Sold {
			t.Errorf("unit %s should be sold", barcode)
		}
		if u.OrderID == nil || *u.OrderID != "O1" {
			t.Errorf("unit %s should be associated with O1", barcode)
		}
	}
	c, _ := store.LookupByBarcode(ctx, "C")
	if c.Sold {
		t.Error("unit C was never accepted and must not be sold")
	}

	order, err := store.GetOrder(ctx, "O1")
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if order.Status != core.OrderShipped || order.ShippedAt == nil {
		t.Errorf("expected shipped order with timestamp, got %s", order.Status)
	}
}

func TestTracker_SerializedItemScenario(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	testutil.Seed(t, ctx, store, testutil.SingleItemOrder("J", "Jumbo Roll", 3),
		testutil.NumberedUnits("J", "Jumbo Roll", 4)...)
	svc := newServices(t, store)

	for i, barcode := range []string{"J1", "J2", "J3"} {
		expectOutcome(t, scan(t, svc, "J", barcode), core.OutcomeAccepted, i+1)
	}

	res := scan(t, svc, "J", "J4")
	if res.Outcome != core.OutcomeQuantityExceeded {
		t.Fatalf("expected quantity_exceeded for distinct unseen barcode, got %s", res.Outcome)
	}

	expectOutcome(t, scan(t, svc, "J", "J2"), core.OutcomeAlreadyScanned, 3)

	progress, err := svc.Tracker.Progress(ctx, "J")
	if err != nil {
		t.Fatalf("Progress failed: %v", err)
	}
	item := progress.Items[0]
	if item.Rule != "distinct" {
		t.Errorf("expected distinct rule for Jumbo Roll, got %s", item.Rule)
	}
	if item.Scanned != 3 || !item.Complete || !progress.Complete {
		t.Errorf("expected complete item with 3 scans, got %+v", item)
	}
	if !reflect.DeepEqual(item.Barcodes, []string{"J1", "J2", "J3"}) {
		t.Errorf("expected barcodes in scan order, got %v", item.Barcodes)
	}
}

func TestTracker_ProgressSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	testutil.Seed(t, ctx, store, testutil.SingleItemOrder("R", "Cable Spool", 3),
		testutil.Units("Cable Spool", "R1", "R2", "R3")...)

	before := newServices(t, store)
	scan(t, before, "R", "R1")
	scan(t, before, "R", "R2")
	want, err := before.Tracker.Progress(ctx, "R")
	if err != nil {
		t.Fatalf("Progress failed: %v", err)
	}

	after := newServices(t, store)
	got, err := after.Tracker.Progress(ctx, "R")
	if err != nil {
		t.Fatalf("Progress after restart failed: %v", err)
	}
	if !reflect.DeepEqual(want, got) {
		t.Errorf("progress differs after restart:\nbefore %+v\nafter  %+v", want, got)
	}
	if got.Items[0].Scanned != 2 {
		t.Errorf("expected 2 scanned after restart, got %d", got.Items[0].Scanned)
	}

	expectOutcome(t, scan(t, after, "R", "R2"), core.OutcomeAlreadyScanned, 2)
	expectOutcome(t, scan(t, after, "R", "R3"), core.OutcomeAccepted, 3)
}

func TestTracker_ConcurrentScansNeverExceedQuantity(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	testutil.Seed(t, ctx, store, testutil.SingleItemOrder("C", "Cable Spool", 3),
		testutil.NumberedUnits("U", "Cable Spool", 12)...)
	svc := newServices(t, store)

	var accepted, exceeded, duplicates atomic.Int32
	var wg sync.WaitGroup
	for i := 1; i <= 12; i++ {
		for rep := 0; rep < 3; rep++ {
			wg.Add(1)
			go func(barcode string) {
				defer wg.Done()
				res, err := svc.Tracker.Accept(ctx, core.ScanRequest{OrderID: "C", Barcode: barcode})
				if err != nil {
					t.Errorf("Accept %s failed: %v", barcode, err)
					return
				}
				switch res.Outcome {
				case core.OutcomeAccepted:
					accepted.Add(1)
				case core.OutcomeQuantityExceeded:
					exceeded.Add(1)
				case core.OutcomeAlreadyScanned:
					duplicates.Add(1)
				}
			}(fmt.Sprintf("U%d", i))
		}
	}
	wg.Wait()

	if accepted.Load() != 3 {
		t.Errorf("expected exactly 3 accepted scans, got %d", accepted.Load())
	}
	if total := accepted.Load() + exceeded.Load() + duplicates.Load(); total != 36 {
		t.Errorf("expected 36 classified results, got %d", total)
	}
	records, _ := store.ListScans(ctx, "C")
	if len(records) != 3 {
		t.Errorf("expected 3 ledger records, got %d", len(records))
	}
}

func TestTracker_SameBarcodeRaceRecordsOnce(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	testutil.Seed(t, ctx, store, testutil.SingleItemOrder("D", "Cable Spool", 5),
		testutil.Unit("DUP", "Cable Spool"))
	svc := newServices(t, store)

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Tracker.Accept(ctx, core.ScanRequest{OrderID: "D", Barcode: "DUP"})
			if err != nil {
				t.Errorf("Accept failed: %v", err)
				return
			}
			if res.Outcome == core.OutcomeAccepted {
				accepted.Add(1)
			} else if res.Outcome != core.OutcomeAlreadyScanned {
				t.Errorf("unexpected outcome %s", res.Outcome)
			}
		}()
	}
	wg.Wait()

	if accepted.Load() != 1 {
		t.Errorf("expected exactly one accepted scan, got %d", accepted.Load())
	}
	records, _ := store.ListScans(ctx, "D")
	if len(records) != 1 {
		t.Errorf("expected 1 ledger record, got %d", len(records))
	}
}

// flakyLedgerStore fails every scan insert.
type flakyLedgerStore struct {
	core.Store
}

func (flakyLedgerStore) InsertScan(context.Context, core.ScanRecord) (core.ScanRecord, bool, error) {
	return core.ScanRecord{}, false, errors.New("storage unavailable")
}

func TestTracker_LedgerWriteFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	testutil.Seed(t, ctx, store, testutil.SingleItemOrder("F", "Cable Spool", 1),
		testutil.Unit("F1", "Cable Spool"))

	broken := newServices(t, flakyLedgerStore{Store: store})
	res, err := broken.Tracker.Accept(ctx, core.ScanRequest{OrderID: "F", Barcode: "F1"})
	if err == nil {
		t.Fatalf("expected ledger write error, got result %+v", res)
	}
	if !errors.Is(err, core.ErrLedgerWriteFailure) {
		t.Errorf("expected ErrLedgerWriteFailure, got %v", err)
	}
	if !core.Retryable(err) {
		t.Errorf("ledger write failure must be retryable: %v", err)
	}

	records, _ := store.ListScans(ctx, "F")
	if len(records) != 0 {
		t.Fatalf("failed write must leave no ledger entry, got %d", len(records))
	}

	healthy := newServices(t, store)
	expectOutcome(t, scan(t, healthy, "F", "F1"), core.OutcomeAccepted, 1)
}

func TestTracker_CancelledContextLeavesNoEntry(t *testing.T) {
	store := memstore.New()
	testutil.Seed(t, context.Background(), store, testutil.SingleItemOrder("X", "Cable Spool", 1),
		testutil.Unit("X1", "Cable Spool"))
	svc := newServices(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Tracker.Accept(ctx, core.ScanRequest{OrderID: "X", Barcode: "X1"}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	records, _ := store.ListScans(context.Background(), "X")
	if len(records) != 0 {
		t.Errorf("cancelled submission must not be recorded, got %d records", len(records))
	}
}

func TestTracker_UnknownOrder(t *testing.T) {
	svc := newServices(t, memstore.New())
	_, err := svc.Tracker.Accept(context.Background(), core.ScanRequest{OrderID: "missing", Barcode: "A"})
	if !errors.Is(err, core.ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
	if core.Retryable(err) {
		t.Error("unknown order must not be retryable")
	}
}

func TestTracker_UnitClaimedByOneOrderOnly(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	testutil.Seed(t, ctx, store, testutil.SingleItemOrder("O1", "Cable Spool", 1),
		testutil.Units("Cable Spool", "X", "Y")...)
	testutil.Seed(t, ctx, store, testutil.SingleItemOrder("O2", "Cable Spool", 1))
	svc := newServices(t, store)

	expectOutcome(t, scan(t, svc, "O1", "X"), core.OutcomeAccepted, 1)
	x, _ := store.LookupByBarcode(ctx, "X")
	if x.OrderID == nil || *x.OrderID != "O1" || x.Sold {
		t.Fatalf("accepted unit must be reserved to O1 and unsold, got %+v", x)
	}

	expectOutcome(t, scan(t, svc, "O2", "X"), core.OutcomeUnitNotEligible, 0)
	if records, _ := store.ListScans(ctx, "O2"); len(records) != 0 {
		t.Fatalf("unit claimed by O1 must not enter O2's ledger, got %d records", len(records))
	}

	if _, err := svc.Finalizer.Finalize(ctx, "O1"); err != nil {
		t.Fatalf("finalize O1 failed: %v", err)
	}
	expectOutcome(t, scan(t, svc, "O2", "Y"), core.OutcomeAccepted, 1)
	if _, err := svc.Finalizer.Finalize(ctx, "O2"); err != nil {
		t.Fatalf("finalize O2 failed: %v", err)
	}
}

// staleUnitStore hides reservations from the matcher, as a read taken before a
// concurrent claim committed would.
type staleUnitStore struct {
	core.Store
}

func (s staleUnitStore) LookupByBarcode(ctx context.Context, barcode string) (*core.InventoryUnit, error) {
	u, err := s.Store.LookupByBarcode(ctx, barcode)
	if err != nil {
		return nil, err
	}
	u.OrderID = nil
	u.OrderItemID = nil
	return u, nil
}

func TestTracker_ReservationRejectsUnitClaimedAtWriteTime(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	testutil.Seed(t, ctx, store, testutil.SingleItemOrder("O1", "Cable Spool", 1),
		testutil.Unit("X", "Cable Spool"))
	testutil.Seed(t, ctx, store, testutil.SingleItemOrder("O2", "Cable Spool", 1))

	expectOutcome(t, scan(t, newServices(t, store), "O1", "X"), core.OutcomeAccepted, 1)

	stale := newServices(t, staleUnitStore{Store: store})
	res := scan(t, stale, "O2", "X")
	if res.Outcome != core.OutcomeUnitNotEligible {
		t.Fatalf("expected unit_not_eligible, got %s", res.Outcome)
	}
	if records, _ := store.ListScans(ctx, "O2"); len(records) != 0 {
		t.Errorf("rejected claim must leave no ledger entry, got %d", len(records))
	}
	x, _ := store.LookupByBarcode(ctx, "X")
	if x.OrderID == nil || *x.OrderID != "O1" {
		t.Errorf("reservation must stay with O1, got %v", x.OrderID)
	}
}

func TestTracker_ConcurrentOrdersRaceForOneUnit(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	testutil.Seed(t, ctx, store, testutil.SingleItemOrder("R1", "Cable Spool", 1),
		testutil.Unit("Z", "Cable Spool"))
	for _, id := range []string{"R2", "R3", "R4"} {
		testutil.Seed(t, ctx, store, testutil.SingleItemOrder(id, "Cable Spool", 1))
	}
	svc := newServices(t, store)

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for _, id := range []string{"R1", "R2", "R3", "R4"} {
		wg.Add(1)
		go func(orderID string) {
			defer wg.Done()
			res, err := svc.Tracker.Accept(ctx, core.ScanRequest{OrderID: orderID, Barcode: "Z"})
			if err != nil {
				t.Errorf("Accept %s failed: %v", orderID, err)
				return
			}
			if res.Outcome == core.OutcomeAccepted {
				accepted.Add(1)
			}
		}(id)
	}
	wg.Wait()

	if accepted.Load() != 1 {
		t.Errorf("expected exactly one order to claim the unit, got %d", accepted.Load())
	}
	total := 0
	for _, id := range []string{"R1", "R2", "R3", "R4"} {
		records, _ := store.ListScans(ctx, id)
		total += len(records)
	}
	if total != 1 {
		t.Errorf("expected one ledger record across orders, got %d", total)
	}
}
