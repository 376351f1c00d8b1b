package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"outletpos/internal/domain"
	"outletpos/internal/logger"
	"outletpos/internal/metrics"
	"outletpos/internal/service"
	"outletpos/internal/store/memory"
)

const testSecret = "test-secret-key-with-at-least-32-chars"

type apiError struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
}

type envelope[T any] struct {
	OK    bool      `json:"ok"`
	Data  T         `json:"data"`
	Error *apiError `json:"error"`
}

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()
	return newTestAPIWith(t, Options{})
}

func newTestAPIWith(t *testing.T, opts Options) *API {
	t.Helper()
	t.Setenv("SEED_OWNER_PASSWORD", "owner-secret")
	t.Setenv("SEED_MANAGER_PASSWORD", "manager-secret")
	t.Setenv("SEED_CASHIER_PASSWORD", "cashier-secret")

	reg := prometheus.NewRegistry()
	repo := memory.NewSeeded()
	svc := service.New(repo, nil, metrics.NewPOSMetrics(reg), logger.Nop(), service.Options{})
	auth := NewAuthManager(testSecret, time.Hour)

	opts.AllowedOrigin = "*"
	opts.Gatherer = reg
	return New(svc, auth, logger.Nop(), opts)
}

func doJSON(t *testing.T, handler http.Handler, method string, path string, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope[T any](t *testing.T, rec *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var out envelope[T]
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return out
}

func login(t *testing.T, handler http.Handler, username string, password string) string {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: username, Password: password})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s failed, status %d: %s", username, rec.Code, rec.Body.String())
	}
	payload := decodeEnvelope[domain.LoginResponse](t, rec)
	if strings.TrimSpace(payload.Data.AccessToken) == "" {
		t.Fatalf("expected access token in login response")
	}
	return payload.Data.AccessToken
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "cashier", Password: "cashier-secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeEnvelope[domain.LoginResponse](t, rec)
	if payload.Data.Session.Role != domain.RoleCashier || payload.Data.Session.OutletID != memory.DemoCentralOutlet {
		t.Fatalf("unexpected session: %+v", payload.Data.Session)
	}
	if payload.Data.ExpiresAt == "" {
		t.Fatalf("expected expires_at")
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "cashier", Password: "nope-nope"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	payload := decodeEnvelope[any](t, rec)
	if payload.OK || payload.Error == nil || payload.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("unexpected error envelope: %+v", payload)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	handler := newTestAPI(t).Handler()

	for _, path := range []string{"/api/v1/products", "/api/v1/me", "/api/v1/dashboard/summary"} {
		rec := doJSON(t, handler, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, rec.Code)
		}
	}

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rec.Code)
	}
}

func TestCheckoutFlow(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "cashier", "cashier-secret")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/pos/catalog", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("catalog: expected 200, got %d", rec.Code)
	}
	catalog := decodeEnvelope[domain.POSCatalog](t, rec)
	if catalog.Data.OutletID != memory.DemoCentralOutlet || len(catalog.Data.Items) == 0 {
		t.Fatalf("unexpected catalog: %+v", catalog.Data)
	}

	checkout := domain.CheckoutRequest{
		OutletID:       memory.DemoNorthOutlet,
		PaymentMethod:  "cash",
		TotalAmount:    7770,
		IdempotencyKey: "till-1-0001",
		Items:          []domain.CheckoutLine{{ProductID: "prd_mie", Quantity: 2, UnitPrice: 3500}},
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/checkout", token, checkout)
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkout: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	first := decodeEnvelope[domain.CheckoutResponse](t, rec)
	if first.Data.Order.OutletID != memory.DemoCentralOutlet {
		t.Fatalf("pinned cashier must sell at central, got %s", first.Data.Order.OutletID)
	}
	if first.Data.Order.GrandTotal != 7770 || first.Data.Duplicate {
		t.Fatalf("unexpected order: %+v", first.Data)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/checkout", token, checkout)
	if rec.Code != http.StatusOK {
		t.Fatalf("replay: expected 200, got %d", rec.Code)
	}
	replay := decodeEnvelope[domain.CheckoutResponse](t, rec)
	if !replay.Data.Duplicate || replay.Data.Order.ID != first.Data.Order.ID {
		t.Fatalf("expected duplicate of %s, got %+v", first.Data.Order.ID, replay.Data)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/orders/"+first.Data.Order.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get order: expected 200, got %d", rec.Code)
	}
}

func TestCheckoutIdempotencyKeyFromHeader(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "cashier", "cashier-secret")

	send := func() *httptest.ResponseRecorder {
		raw, _ := json.Marshal(domain.CheckoutRequest{
			Items: []domain.CheckoutLine{{ProductID: "prd_kopi", Quantity: 1, UnitPrice: 2600}},
		})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Idempotency-Key", "hdr-key-1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := send(); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := send(); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d", rec.Code)
	}
}

func TestCheckoutInsufficientStockReturnsConflict(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "cashier", "cashier-secret")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/checkout", token, domain.CheckoutRequest{
		Items: []domain.CheckoutLine{
			{ProductID: "prd_kopi", Quantity: 1, UnitPrice: 2600},
			{ProductID: "prd_mie", Quantity: 500, UnitPrice: 3500},
		},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeEnvelope[any](t, rec)
	if payload.Error == nil || payload.Error.Code != "INSUFFICIENT_STOCK" {
		t.Fatalf("unexpected envelope: %+v", payload)
	}
	var details map[string]any
	if err := json.Unmarshal(payload.Error.Details, &details); err != nil {
		t.Fatalf("decode details: %v", err)
	}
	if details["product_id"] != "prd_mie" {
		t.Fatalf("expected shortfall on prd_mie, got %v", details)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/stock", token, nil)
	stock := decodeEnvelope[[]domain.StockRecord](t, rec)
	for _, record := range stock.Data {
		if record.ProductID == "prd_kopi" && record.Quantity != 120 {
			t.Fatalf("kopi stock must be untouched, got %d", record.Quantity)
		}
	}
}

func TestRejectsUnknownFields(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "cashier", "cashier-secret")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/checkout", token, map[string]any{"bogus": 1})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	payload := decodeEnvelope[any](t, rec)
	if payload.Error == nil || payload.Error.Code != "VALIDATION_ERROR" {
		t.Fatalf("unexpected envelope: %+v", payload)
	}
}

func TestValidationDetailsNameJSONFields(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "cashier", "cashier-secret")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/customers", token, domain.CustomerCreateRequest{Name: "Bu Sari", Email: "not-an-email"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	payload := decodeEnvelope[any](t, rec)
	if payload.Error == nil || !strings.Contains(string(payload.Error.Details), "email") {
		t.Fatalf("expected details naming email, got %+v", payload.Error)
	}
}

func TestCashierCannotAdjustStock(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "cashier", "cashier-secret")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/stock/adjust", token, domain.StockAdjustRequest{
		ProductID: "prd_mie",
		Mode:      "add",
		Quantity:  3,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestReceivePurchaseOrderFlow(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "manager", "manager-secret")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/purchase-orders", token, domain.PurchaseOrderCreateRequest{
		SupplierID: memory.DemoSupplierID,
		Status:     "ordered",
		Items:      []domain.PurchaseOrderItemInput{{ProductID: "prd_mie", Quantity: 10, UnitCost: 2600}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create po: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	po := decodeEnvelope[domain.PurchaseOrder](t, rec)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/purchase-orders/"+po.Data.ID+"/receive", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("receive: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	received := decodeEnvelope[domain.PurchaseOrderReceiveResponse](t, rec)
	if received.Data.PurchaseOrder.Status != domain.PurchaseOrderReceived {
		t.Fatalf("expected received status, got %s", received.Data.PurchaseOrder.Status)
	}
	if len(received.Data.SideEffects) != 2 {
		t.Fatalf("expected two side effect reports, got %+v", received.Data.SideEffects)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/purchase-orders/"+po.Data.ID+"/receive", token, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second receive: expected 409, got %d", rec.Code)
	}
}

func TestMetricsEndpointExposesCheckoutCounter(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "cashier", "cashier-secret")

	doJSON(t, handler, http.MethodPost, "/api/v1/checkout", token, domain.CheckoutRequest{
		Items: []domain.CheckoutLine{{ProductID: "prd_air", Quantity: 1, UnitPrice: 3900}},
	})

	rec := doJSON(t, handler, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `outletpos_checkout_total{result="success"} 1`) {
		t.Fatalf("expected checkout counter in metrics output:\n%s", rec.Body.String())
	}
}

func TestUnknownRouteUsesErrorEnvelope(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/nothing-here", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	payload := decodeEnvelope[any](t, rec)
	if payload.Error == nil || payload.Error.Code != "NOT_FOUND" {
		t.Fatalf("unexpected envelope: %+v", payload)
	}
}
