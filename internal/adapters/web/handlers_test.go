package web_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fulfillment/internal/adapters/web"
	"fulfillment/internal/app"
	"fulfillment/internal/clock"
	"fulfillment/internal/core"
	"fulfillment/internal/memstore"
	"fulfillment/internal/testutil"
)

type failingLedger struct {
	core.Store
}

func (failingLedger) InsertScan(context.Context, core.ScanRecord) (core.ScanRecord, bool, error) {
	return core.ScanRecord{}, false, context.DeadlineExceeded
}

func newServer(t *testing.T, store core.Store, opts web.Options) http.Handler {
	t.Helper()
	svc := core.NewServices(store, core.DefaultRuleSet(), clock.NewFixed(testutil.Epoch))
	return web.NewHandler(app.NewAppService(store, svc, nil, nil), opts)
}

func seededStore(t *testing.T) *memstore.Store {
	t.Helper()
	store := memstore.New()
	testutil.Seed(t, context.Background(), store, testutil.SingleItemOrder("O1", "Cable Spool", 1),
		testutil.Units("Cable Spool", "A", "B")...)
	return store
}

func do(t *testing.T, h http.Handler, method, path, body string, header map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &decoded)
	return rec, decoded
}

func TestScanEndpointStatusMapping(t *testing.T) {
	h := newServer(t, seededStore(t), web.Options{})

	cases := []struct {
		barcode string
		status  int
		code    string
	}{
		{barcode: "A", status: http.StatusCreated},
		{barcode: "A", status: http.StatusOK},
		{barcode: "B", status: http.StatusConflict, code: "QUANTITY_EXCEEDED"},
		{barcode: "GHOST", status: http.StatusNotFound, code: "NO_MATCH"},
	}
	for _, tc := range cases {
		rec, body := do(t, h, http.MethodPost, "/api/orders/O1/scans", `{"barcode":"`+tc.barcode+`"}`,
			map[string]string{"X-Operator-ID": "op-3"})
		if rec.Code != tc.status {
			t.Fatalf("scan %s: status %d, want %d (%s)", tc.barcode, rec.Code, tc.status, rec.Body.String())
		}
		if tc.code != "" && body["code"] != tc.code {
			t.Errorf("scan %s: code %v, want %s", tc.barcode, body["code"], tc.code)
		}
	}

	rec, body := do(t, h, http.MethodGet, "/api/orders/O1/scans", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list scans: status %d", rec.Code)
	}
	scans, _ := body["scans"].([]any)
	if len(scans) != 1 {
		t.Fatalf("expected 1 scan, got %v", body["scans"])
	}
	if first := scans[0].(map[string]any); first["operator_id"] != "op-3" {
		t.Errorf("expected operator op-3, got %v", first["operator_id"])
	}
}

func TestScanEndpointRejectsIneligibleUnit(t *testing.T) {
	store := seededStore(t)
	u := testutil.Unit("RAW", "Cable Spool")
	u.Inspected = false
	if err := store.AddUnit(context.Background(), u); err != nil {
		t.Fatalf("AddUnit failed: %v", err)
	}
	h := newServer(t, store, web.Options{})

	rec, body := do(t, h, http.MethodPost, "/api/orders/O1/scans", `{"barcode":"RAW"}`, nil)
	if rec.Code != http.StatusUnprocessableEntity || body["code"] != "UNIT_NOT_ELIGIBLE" {
		t.Fatalf("expected 422 UNIT_NOT_ELIGIBLE, got %d %v", rec.Code, body)
	}
}

func TestScanEndpointLedgerFailureIsRetryable(t *testing.T) {
	h := newServer(t, failingLedger{Store: seededStore(t)}, web.Options{})

	rec, body := do(t, h, http.MethodPost, "/api/orders/O1/scans", `{"barcode":"A"}`, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d (%s)", rec.Code, rec.Body.String())
	}
	if body["code"] != "LEDGER_WRITE_FAILED" || body["retryable"] != true {
		t.Errorf("unexpected body: %v", body)
	}
	if body["request_id"] == "" || body["request_id"] == nil {
		t.Error("expected request_id in error body")
	}
}

func TestFinalizeEndpoint(t *testing.T) {
	h := newServer(t, seededStore(t), web.Options{})

	rec, body := do(t, h, http.MethodPost, "/api/orders/O1/finalize", "", nil)
	if rec.Code != http.StatusConflict || body["code"] != "ORDER_INCOMPLETE" {
		t.Fatalf("expected 409 ORDER_INCOMPLETE, got %d %v", rec.Code, body)
	}
	missing, _ := body["missing_item_ids"].([]any)
	if len(missing) != 1 || missing[0] != "O1-1" {
		t.Errorf("unexpected missing items: %v", body["missing_item_ids"])
	}

	do(t, h, http.MethodPost, "/api/orders/O1/scans", `{"barcode":"A"}`, nil)

	rec, body = do(t, h, http.MethodPost, "/api/orders/O1/finalize", "", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if bindings, _ := body["bindings"].([]any); len(bindings) != 1 {
		t.Errorf("expected 1 binding, got %v", body["bindings"])
	}

	rec, body = do(t, h, http.MethodPost, "/api/orders/O1/scans", `{"barcode":"B"}`, nil)
	if rec.Code != http.StatusConflict || body["code"] != "ORDER_SHIPPED" {
		t.Errorf("expected 409 ORDER_SHIPPED on scan, got %d %v", rec.Code, body)
	}
	rec, _ = do(t, h, http.MethodGet, "/api/orders/O1/shipment", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected shipment lookup 200, got %d", rec.Code)
	}
	rec, body = do(t, h, http.MethodGet, "/api/orders/O1", "", nil)
	if rec.Code != http.StatusOK || body["status"] != "shipped" {
		t.Errorf("expected shipped order, got %d %v", rec.Code, body)
	}
}

func TestOrderNotFoundAndBadRequests(t *testing.T) {
	h := newServer(t, seededStore(t), web.Options{BodyLimitBytes: 64})

	for _, path := range []string{"/api/orders/nope", "/api/orders/nope/progress", "/api/orders/nope/scans"} {
		rec, body := do(t, h, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusNotFound || body["code"] != "ORDER_NOT_FOUND" {
			t.Errorf("%s: expected 404 ORDER_NOT_FOUND, got %d %v", path, rec.Code, body)
		}
	}

	rec, _ := do(t, h, http.MethodPost, "/api/orders/O1/scans", `{"barcode":""}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty barcode, got %d", rec.Code)
	}
	rec, _ = do(t, h, http.MethodPost, "/api/orders/O1/scans", `{"barcode":"`+strings.Repeat("x", 100)+`"}`, nil)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413 for oversized body, got %d", rec.Code)
	}
}

func TestCreateOrderAndProgress(t *testing.T) {
	h := newServer(t, memstore.New(), web.Options{})

	rec, body := do(t, h, http.MethodPost, "/api/orders",
		`{"id":"N1","items":[{"type_tag":"Jumbo Roll","quantity":2,"width":"1200"}]}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create order: %d %s", rec.Code, rec.Body.String())
	}
	items, _ := body["items"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["width"] != "1200" {
		t.Fatalf("unexpected items: %v", body["items"])
	}

	rec, _ = do(t, h, http.MethodPost, "/api/units", `{"barcode":"J1","category":"Jumbo Roll","inspected":true}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register unit: %d %s", rec.Code, rec.Body.String())
	}
	do(t, h, http.MethodPost, "/api/orders/N1/scans", `{"barcode":"J1"}`, nil)

	rec, body = do(t, h, http.MethodGet, "/api/orders/N1/progress", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("progress: %d", rec.Code)
	}
	if body["scanned"] != float64(1) || body["required"] != float64(2) || body["complete"] != false {
		t.Errorf("unexpected progress: %v", body)
	}

	rec, body = do(t, h, http.MethodPost, "/api/orders", `{"id":"N2","items":[]}`, nil)
	if rec.Code != http.StatusBadRequest || body["code"] != "INVALID_ORDER" {
		t.Errorf("expected 400 INVALID_ORDER, got %d %v", rec.Code, body)
	}
}

func TestRequireAuth(t *testing.T) {
	const secret = "test-secret"
	h := newServer(t, seededStore(t), web.Options{JWTSecret: secret})

	rec, _ := do(t, h, http.MethodGet, "/api/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health should be public, got %d", rec.Code)
	}

	rec, body := do(t, h, http.MethodPost, "/api/orders/O1/scans", `{"barcode":"A"}`, nil)
	if rec.Code != http.StatusUnauthorized || body["code"] != "UNAUTHORIZED" {
		t.Fatalf("expected 401, got %d %v", rec.Code, body)
	}

	bad, _ := web.SignOperatorToken("other-secret", "op-9", time.Hour)
	rec, _ = do(t, h, http.MethodGet, "/api/orders/O1", "", map[string]string{"Authorization": "Bearer " + bad})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for foreign token, got %d", rec.Code)
	}

	token, err := web.SignOperatorToken(secret, "op-9", time.Hour)
	if err != nil {
		t.Fatalf("SignOperatorToken failed: %v", err)
	}
	rec, body = do(t, h, http.MethodPost, "/api/orders/O1/scans", `{"barcode":"A"}`, map[string]string{
		"Authorization": "Bearer " + token,
		"X-Operator-ID": "spoofed",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 with token, got %d %v", rec.Code, body)
	}
	record, _ := body["record"].(map[string]any)
	if record["operator_id"] != "op-9" {
		t.Errorf("expected operator from token subject, got %v", record["operator_id"])
	}
}

func TestRequestIDAndCORS(t *testing.T) {
	h := newServer(t, seededStore(t), web.Options{AllowedOrigins: []string{"https://station.example"}})

	rec, _ := do(t, h, http.MethodGet, "/api/health", "", map[string]string{
		"X-Request-ID": "req-123",
		"Origin":       "https://station.example",
	})
	if got := rec.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("expected echoed request id, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://station.example" {
		t.Errorf("expected CORS origin header, got %q", got)
	}

	rec, _ = do(t, h, http.MethodGet, "/api/health", "", map[string]string{
		"X-Request-ID": "bad id with spaces",
		"Origin":       "https://evil.example",
	})
	if got := rec.Header().Get("X-Request-ID"); got == "bad id with spaces" || got == "" {
		t.Errorf("expected generated request id, got %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("expected no CORS header for unknown origin")
	}
}
