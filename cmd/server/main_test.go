package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"packflow/internal/fulfillment"
	"packflow/internal/ledger"
	"packflow/internal/payments"
	"packflow/internal/realtime"
	"packflow/internal/reservation"
	sagapkg "packflow/internal/saga"
)

func TestBuildStoresFallsBackToMemory(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	stockStore, sagaStore, cleanup, err := buildStores(context.Background(), zerolog.Nop())
	if err != nil {
		t.Fatalf("buildStores: %v", err)
	}
	t.Cleanup(cleanup)

	if _, ok := stockStore.(*ledger.MemoryStore); !ok {
		t.Fatalf("expected in-memory stock store, got %T", stockStore)
	}
	if _, ok := sagaStore.(*sagapkg.MemoryStore); !ok {
		t.Fatalf("expected in-memory saga store, got %T", sagaStore)
	}
}

func TestBuildHoldRecorderDisabledWithoutRedis(t *testing.T) {
	t.Setenv("REDIS_URL", "")

	holds, cleanup, err := buildHoldRecorder(context.Background(), zerolog.Nop())
	if err != nil {
		t.Fatalf("buildHoldRecorder: %v", err)
	}
	t.Cleanup(cleanup)

	if holds != nil {
		t.Fatalf("expected hold tracking disabled, got %T", holds)
	}
}

func newTestServer(t *testing.T, initialStock map[string]int) *server {
	t.Helper()
	return newTestServerWithGateway(t, initialStock, payments.NewApprovingGateway())
}

func newTestServerWithGateway(t *testing.T, initialStock map[string]int, gateway payments.Gateway) *server {
	t.Helper()

	stockLedger := ledger.NewLedger(ledger.NewMemoryStore(initialStock))
	logf := func(string, ...any) {}

	hub := realtime.NewHub()
	go hub.Run()

	coordinator := sagapkg.NewCoordinator(sagapkg.Config{
		Reservations:     reservation.NewService(stockLedger, nil, logf),
		Payments:         payments.NewProcessor(gateway, nil),
		Fulfillment:      fulfillment.NewService(),
		Store:            sagapkg.NewMemoryStore(),
		PaymentBaseDelay: time.Millisecond,
		Logf:             logf,
	})

	return &server{
		coordinator: coordinator,
		stock:       stockLedger,
		hub:         hub,
		logger:      zerolog.Nop(),
		upgrader:    websocket.Upgrader{},
	}
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func orderPayload() orderRequest {
	return orderRequest{
		Order: sagapkg.Order{
			ID: "order-1",
			Customer: payments.Customer{
				ID:             "cust-1",
				Email:          "ada@example.com",
				AccountAgeDays: 365,
			},
			Items: []sagapkg.OrderItem{{SKU: "A", Quantity: 2, UnitPrice: 10}},
			Shipping: sagapkg.Address{
				Line1:      "1 Main St",
				City:       "Springfield",
				PostalCode: "12345",
				Country:    "US",
			},
			Payment: payments.Method{
				Type:       payments.MethodCard,
				CardNumber: "4242424242424242",
				Expiry:     "12/27",
				CVV:        "123",
			},
			Currency: "USD",
		},
	}
}

func TestHandleOrders_Success(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, map[string]int{"A": 10})
	rr := postJSON(t, srv.routes(), "/orders", orderPayload())

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var result sagapkg.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.Success || result.TrackingNumber == "" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

type flakyGateway struct {
	mu       sync.Mutex
	declines int
	calls    int
}

func (g *flakyGateway) Charge(ctx context.Context, req payments.Request) (payments.Receipt, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.calls <= g.declines {
		return payments.Receipt{}, payments.ErrDeclined
	}
	return payments.Receipt{
		TransactionID: "pay-1",
		Reference:     "ref-1",
		Amount:        req.Amount,
		Currency:      req.Currency,
	}, nil
}

func TestHandleOrders_PartialOptionsKeepRetryDefault(t *testing.T) {
	t.Parallel()

	gateway := &flakyGateway{declines: 1}
	srv := newTestServerWithGateway(t, map[string]int{"A": 10}, gateway)

	payload := orderPayload()
	payload.Options = json.RawMessage(`{"expressShipping":true}`)

	rr := postJSON(t, srv.routes(), "/orders", payload)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var result sagapkg.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.Success || result.Carrier != fulfillment.CarrierExpress {
		t.Fatalf("express option not applied: %+v", result)
	}
	if gateway.calls != 2 {
		t.Fatalf("decline not retried under default options: calls=%d", gateway.calls)
	}
}

func TestHandleOrders_InsufficientInventoryIsConflict(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, map[string]int{"A": 1})
	rr := postJSON(t, srv.routes(), "/orders", orderPayload())

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rr.Code, rr.Body.String())
	}
	var result sagapkg.Result
	if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.ErrorCode != sagapkg.CodeInsufficientInventory {
		t.Fatalf("unexpected error code: %s", result.ErrorCode)
	}
}

func TestHandleOrders_InvalidOrderIsBadRequest(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, map[string]int{"A": 10})
	payload := orderPayload()
	payload.Order.Items = nil

	rr := postJSON(t, srv.routes(), "/orders", payload)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestHandleStock_ApplyAndRead(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, map[string]int{"A": 10})
	handler := srv.routes()

	rr := postJSON(t, handler, "/stock", stockRequest{
		BatchID: "restock-1",
		Deltas:  []stockDelta{{SKU: "A", Delta: 5}, {SKU: "B", Delta: 7}},
		Reason:  "restock",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp stockResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Changes) != 2 {
		t.Fatalf("expected 2 changes, got %+v", resp.Changes)
	}

	req := httptest.NewRequest(http.MethodGet, "/stock?skus=A,B", nil)
	read := httptest.NewRecorder()
	handler.ServeHTTP(read, req)
	if read.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", read.Code)
	}
	var quantities map[string]int
	if err := json.Unmarshal(read.Body.Bytes(), &quantities); err != nil {
		t.Fatalf("decode quantities: %v", err)
	}
	if quantities["A"] != 15 || quantities["B"] != 7 {
		t.Fatalf("unexpected quantities: %+v", quantities)
	}
}

func TestHandleStock_InsufficientIsConflict(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, map[string]int{"A": 2})
	rr := postJSON(t, srv.routes(), "/stock", stockRequest{
		BatchID: "sale-1",
		Deltas:  []stockDelta{{SKU: "A", Delta: -5}},
		Reason:  "sale",
	})
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp errorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Code != "insufficient_stock" || len(resp.SKUs) != 1 || resp.SKUs[0] != "A" {
		t.Fatalf("unexpected error response: %+v", resp)
	}
}

func TestHandleStock_DuplicateSKUIsBadRequest(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, map[string]int{"A": 10})
	rr := postJSON(t, srv.routes(), "/stock", stockRequest{
		BatchID: "bad-1",
		Deltas:  []stockDelta{{SKU: "A", Delta: -1}, {SKU: "A", Delta: -2}},
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp errorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Code != "duplicate_sku" {
		t.Fatalf("unexpected code: %s", resp.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	srv.routes().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}
