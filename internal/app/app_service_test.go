package app_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"fulfillment/internal/app"
	"fulfillment/internal/clock"
	"fulfillment/internal/core"
	"fulfillment/internal/memstore"
	"fulfillment/internal/testutil"
)

type mapCache struct {
	entries     map[string]*core.OrderProgress
	generations map[string]int64
	invalidated []string
	// beforeSet runs once, ahead of the next Set.
	beforeSet func()
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string]*core.OrderProgress{}, generations: map[string]int64{}}
}

func (c *mapCache) Get(_ context.Context, orderID string) (*core.OrderProgress, bool, error) {
	p, ok := c.entries[orderID]
	return p, ok, nil
}

func (c *mapCache) Generation(_ context.Context, orderID string) (int64, error) {
	return c.generations[orderID], nil
}

func (c *mapCache) Set(_ context.Context, p *core.OrderProgress, generation int64) (bool, error) {
	if hook := c.beforeSet; hook != nil {
		c.beforeSet = nil
		hook()
	}
	if c.generations[p.OrderID] != generation {
		return false, nil
	}
	c.entries[p.OrderID] = p
	return true, nil
}

func (c *mapCache) Invalidate(_ context.Context, orderID string) error {
	delete(c.entries, orderID)
	c.generations[orderID]++
	c.invalidated = append(c.invalidated, orderID)
	return nil
}

func newApp(t *testing.T, cache app.ProgressCache) (app.ApplicationService, *memstore.Store, *observer.ObservedLogs) {
	t.Helper()
	store := memstore.New()
	svc := core.NewServices(store, core.DefaultRuleSet(), clock.NewFixed(testutil.Epoch))
	zcore, logs := observer.New(zap.DebugLevel)
	return app.NewAppService(store, svc, cache, zap.New(zcore)), store, logs
}

func TestSubmitScan_LogsAndInvalidatesCache(t *testing.T) {
	cache := newMapCache()
	svc, store, logs := newApp(t, cache)
	ctx := context.Background()
	testutil.Seed(t, ctx, store, testutil.SingleItemOrder("O1", "Cable Spool", 2), testutil.Units("Cable Spool", "A", "B")...)

	first, err := svc.GetProgress(ctx, "O1")
	if err != nil {
		t.Fatalf("GetProgress failed: %v", err)
	}
	if first.Cached {
		t.Fatal("expected first read to miss the cache")
	}
	second, _ := svc.GetProgress(ctx, "O1")
	if !second.Cached {
		t.Fatal("expected second read to hit the cache")
	}

	res, err := svc.SubmitScan(ctx, app.SubmitScanRequest{OrderID: "O1", Barcode: "A", OperatorID: "op-1"})
	if err != nil {
		t.Fatalf("SubmitScan failed: %v", err)
	}
	if res.Result.Outcome != core.OutcomeAccepted {
		t.Fatalf("expected accepted, got %s", res.Result.Outcome)
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != "O1" {
		t.Fatalf("expected cache invalidation for O1, got %v", cache.invalidated)
	}

	third, _ := svc.GetProgress(ctx, "O1")
	if third.Cached || third.Progress.Scanned != 1 {
		t.Errorf("expected fresh progress with 1 scan, got cached=%v scanned=%d", third.Cached, third.Progress.Scanned)
	}

	entries := logs.FilterMessage("scan accepted").All()
	if len(entries) != 1 {
		t.Fatalf("expected one accepted log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["order_id"] != "O1" || fields["barcode"] != "A" || fields["operator_id"] != "op-1" {
		t.Errorf("unexpected log fields: %v", fields)
	}
}

func TestSubmitScan_RejectionIsNotInvalidated(t *testing.T) {
	cache := newMapCache()
	svc, store, logs := newApp(t, cache)
	ctx := context.Background()
	testutil.Seed(t, ctx, store, testutil.SingleItemOrder("O2", "Cable Spool", 1))

	res, err := svc.SubmitScan(ctx, app.SubmitScanRequest{OrderID: "O2", Barcode: "GHOST"})
	if err != nil {
		t.Fatalf("SubmitScan failed: %v", err)
	}
	if res.Result.Outcome != core.OutcomeNoMatch {
		t.Fatalf("expected no_match, got %s", res.Result.Outcome)
	}
	if len(cache.invalidated) != 0 {
		t.Errorf("expected no invalidation, got %v", cache.invalidated)
	}
	if logs.FilterMessage("scan not accepted").Len() != 1 {
		t.Error("expected rejection to be logged")
	}
}

func TestFinalizeShipment_IncompleteThenComplete(t *testing.T) {
	svc, store, logs := newApp(t, nil)
	ctx := context.Background()
	testutil.Seed(t, ctx, store, testutil.SingleItemOrder("O3", "Jumbo Roll", 2), testutil.Units("Jumbo Roll", "J1", "J2")...)

	_, err := svc.FinalizeShipment(ctx, "O3")
	var incomplete *core.OrderIncompleteError
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected OrderIncompleteError, got %v", err)
	}
	if len(incomplete.MissingItemIDs) != 1 || incomplete.MissingItemIDs[0] != "O3-1" {
		t.Errorf("unexpected missing items: %v", incomplete.MissingItemIDs)
	}
	if logs.FilterMessage("finalize refused, order incomplete").Len() != 1 {
		t.Error("expected incomplete finalize to be logged")
	}

	for _, b := range []string{"J1", "J2"} {
		if _, err := svc.SubmitScan(ctx, app.SubmitScanRequest{OrderID: "O3", Barcode: b}); err != nil {
			t.Fatalf("SubmitScan %s failed: %v", b, err)
		}
	}

	shipped, err := svc.FinalizeShipment(ctx, "O3")
	if err != nil {
		t.Fatalf("FinalizeShipment failed: %v", err)
	}
	got, err := svc.GetShipment(ctx, "O3")
	if err != nil {
		t.Fatalf("GetShipment failed: %v", err)
	}
	if got.Shipment.ID != shipped.Shipment.ID || len(got.Shipment.Bindings) != 2 {
		t.Errorf("unexpected shipment: %+v", got.Shipment)
	}

	order, _ := svc.GetOrder(ctx, "O3")
	if !order.Order.IsShipped() {
		t.Error("expected order to be shipped")
	}
}

func TestCreateOrderAndRegisterUnit(t *testing.T) {
	svc, _, _ := newApp(t, nil)
	ctx := context.Background()

	created, err := svc.CreateOrder(ctx, app.CreateOrderRequest{
		ID: "O4",
		Items: []app.OrderItemInput{
			{TypeTag: "Cable Spool", Quantity: 1},
			{ID: "custom", TypeTag: " Jumbo Roll ", Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	items := created.Order.Items
	if len(items) != 2 || items[0].ID != "O4-1" || items[1].ID != "custom" || items[1].TypeTag != "Jumbo Roll" {
		t.Fatalf("unexpected items: %+v", items)
	}
	if created.Order.OrderNumber != "O4" || created.Order.Status != core.OrderOpen {
		t.Errorf("unexpected order header: %+v", created.Order)
	}

	if _, err := svc.CreateOrder(ctx, app.CreateOrderRequest{ID: "O5"}); !errors.Is(err, core.ErrInvalidOrder) {
		t.Errorf("expected ErrInvalidOrder for empty order, got %v", err)
	}

	unit, err := svc.RegisterUnit(ctx, app.RegisterUnitRequest{Barcode: " NEW-1 ", Category: "Jumbo Roll", Inspected: true})
	if err != nil {
		t.Fatalf("RegisterUnit failed: %v", err)
	}
	if unit.Unit.Barcode != "NEW-1" || unit.Unit.Kind != core.UnitSubdivided {
		t.Errorf("unexpected unit: %+v", unit.Unit)
	}
	if _, err := svc.RegisterUnit(ctx, app.RegisterUnitRequest{Barcode: "NEW-1"}); !errors.Is(err, core.ErrDuplicateBarcode) {
		t.Errorf("expected ErrDuplicateBarcode, got %v", err)
	}

	res, err := svc.SubmitScan(ctx, app.SubmitScanRequest{OrderID: "O4", Barcode: "NEW-1"})
	if err != nil {
		t.Fatalf("SubmitScan failed: %v", err)
	}
	if res.Result.OrderItemID != "custom" {
		t.Errorf("expected type match to custom item, got %s", res.Result.OrderItemID)
	}
}

func TestListScans_UnknownOrder(t *testing.T) {
	svc, _, logs := newApp(t, nil)
	if _, err := svc.ListScans(context.Background(), "missing"); !errors.Is(err, core.ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
	if logs.FilterLevelExact(zapcore.ErrorLevel).Len() != 0 {
		t.Error("expected no error-level logs")
	}
}

func TestGetProgress_ScanDuringProjectionIsNotHiddenByCache(t *testing.T) {
	cache := newMapCache()
	svc, store, _ := newApp(t, cache)
	ctx := context.Background()
	testutil.Seed(t, ctx, store, testutil.SingleItemOrder("O5", "Cable Spool", 2), testutil.Units("Cable Spool", "A", "B")...)

	cache.beforeSet = func() {
		res, err := svc.SubmitScan(ctx, app.SubmitScanRequest{OrderID: "O5", Barcode: "A"})
		if err != nil || res.Result.Outcome != core.OutcomeAccepted {
			t.Errorf("concurrent scan not accepted: %v", err)
		}
	}

	first, err := svc.GetProgress(ctx, "O5")
	if err != nil {
		t.Fatalf("GetProgress failed: %v", err)
	}
	if first.Progress.Scanned != 0 {
		t.Fatalf("projection was taken before the scan, expected 0, got %d", first.Progress.Scanned)
	}
	if _, ok := cache.entries["O5"]; ok {
		t.Fatal("projection taken before the scan must not be cached")
	}

	second, err := svc.GetProgress(ctx, "O5")
	if err != nil {
		t.Fatalf("GetProgress failed: %v", err)
	}
	if second.Cached || second.Progress.Scanned != 1 {
		t.Errorf("expected fresh projection with 1 scan, got cached=%v scanned=%d", second.Cached, second.Progress.Scanned)
	}
	third, _ := svc.GetProgress(ctx, "O5")
	if !third.Cached || third.Progress.Scanned != 1 {
		t.Errorf("expected cached projection with 1 scan, got cached=%v scanned=%d", third.Cached, third.Progress.Scanned)
	}
}
