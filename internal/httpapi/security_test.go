package httpapi

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"outletpos/internal/domain"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if got := res.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := res.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := res.Header().Get("Referrer-Policy"); got == "" {
		t.Fatalf("expected Referrer-Policy to be set")
	}
}

func TestPreflightReturnsNoContent(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/checkout", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected configured origin, got %q", got)
	}
}

func TestLoginRateLimitReturns429(t *testing.T) {
	handler := newTestAPI(t).Handler()

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
			strings.NewReader(`{"username":"owner","password":"wrong-pass"}`))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "127.0.0.1:5000"
		res := httptest.NewRecorder()

		handler.ServeHTTP(res, req)

		if i < 5 && res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401 before limit, got %d", i+1, res.Code)
		}
		if i == 5 {
			if res.Code != http.StatusTooManyRequests {
				t.Fatalf("attempt 6 expected 429, got %d", res.Code)
			}
			payload := decodeEnvelope[any](t, res)
			if payload.Error == nil || payload.Error.Code != "RATE_LIMIT_EXCEEDED" {
				t.Fatalf("unexpected envelope: %+v", payload)
			}
		}
	}

	// Another client keeps its own budget.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"username":"owner","password":"owner-secret"}`))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "10.0.0.9:4000"
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected other client to log in, got %d", rec.Code)
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api := newTestAPI(t)
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"username":"%s","password":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too large body, got %d", res.Code)
	}
}

func TestInternalDetailsAreNotLeaked(t *testing.T) {
	api := newTestAPI(t)
	res := httptest.NewRecorder()

	api.writeError(res, nil, fmt.Errorf("pq: relation \"orders\" does not exist"))

	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
	if strings.Contains(res.Body.String(), "relation") {
		t.Fatalf("internal error leaked: %s", res.Body.String())
	}
	payload := decodeEnvelope[any](t, res)
	if payload.Error == nil || payload.Error.Message != "internal server error" {
		t.Fatalf("unexpected envelope: %+v", payload)
	}
}

func TestTokenForUnknownStaffIsRejected(t *testing.T) {
	api := newTestAPI(t)
	token, err := api.auth.Issue(domain.Session{StaffID: "stf_ghost", Role: domain.RoleOwner})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	rec := doJSON(t, api.Handler(), http.MethodGet, "/api/v1/me", token.AccessToken, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown staff, got %d", rec.Code)
	}
}

func TestParsePositiveLimitCaps(t *testing.T) {
	if got := parsePositiveLimit("9999", 50, 200); got != 200 {
		t.Fatalf("expected capped limit 200, got %d", got)
	}
	if got := parsePositiveLimit("", 50, 200); got != 50 {
		t.Fatalf("expected fallback limit 50, got %d", got)
	}
	if got := parsePositiveLimit("invalid", 50, 200); got != 50 {
		t.Fatalf("expected fallback on invalid input, got %d", got)
	}
}

func TestClientKey(t *testing.T) {
	cases := map[string]string{
		"127.0.0.1:5000":   "127.0.0.1",
		"[::1]:8080":       "::1",
		"10.1.2.3":         "10.1.2.3",
		"":                 "unknown",
		"proxy.local:1234": "proxy.local",
	}
	for remote, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		if got := clientKey(req); got != want {
			t.Fatalf("clientKey(%q) = %q, want %q", remote, got, want)
		}
	}
}

func loginFrom(t *testing.T, handler http.Handler, remote string, headers map[string]string, username string, password string) *httptest.ResponseRecorder {
	t.Helper()
	body := fmt.Sprintf(`{"username":%q,"password":%q}`, username, password)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = remote
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestLoginRateLimitIgnoresForwardedHeadersByDefault(t *testing.T) {
	handler := newTestAPI(t).Handler()

	for i := 0; i < 6; i++ {
		spoofed := fmt.Sprintf("203.0.113.%d", i+1)
		res := loginFrom(t, handler, "198.51.100.7:5000", map[string]string{
			"X-Forwarded-For": spoofed,
			"X-Real-IP":       spoofed,
		}, "owner", "wrong-pass")

		if i < 5 && res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401, got %d", i+1, res.Code)
		}
		if i == 5 && res.Code != http.StatusTooManyRequests {
			t.Fatalf("rotating forwarded headers must not reset the budget, got %d", res.Code)
		}
	}
}

func TestLoginRateLimitHonoursForwardedHeadersBehindTrustedProxy(t *testing.T) {
	handler := newTestAPIWith(t, Options{TrustProxy: true}).Handler()

	for i := 0; i < 5; i++ {
		res := loginFrom(t, handler, "10.0.0.1:5000", map[string]string{"X-Forwarded-For": "203.0.113.10"}, "manager", "wrong-pass")
		if res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401, got %d", i+1, res.Code)
		}
	}
	res := loginFrom(t, handler, "10.0.0.1:5000", map[string]string{"X-Forwarded-For": "203.0.113.10"}, "manager", "wrong-pass")
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected forwarded client to be limited, got %d", res.Code)
	}

	// Another client behind the same proxy keeps its own budget.
	res = loginFrom(t, handler, "10.0.0.1:5000", map[string]string{"X-Forwarded-For": "203.0.113.11"}, "cashier", "cashier-secret")
	if res.Code != http.StatusOK {
		t.Fatalf("expected other forwarded client to log in, got %d", res.Code)
	}
}

func TestLoginRateLimitPerAccountAcrossAddresses(t *testing.T) {
	handler := newTestAPI(t).Handler()

	for i := 0; i < 10; i++ {
		res := loginFrom(t, handler, fmt.Sprintf("192.0.2.%d:4000", i+1), nil, "Owner", "wrong-pass")
		if res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401, got %d", i+1, res.Code)
		}
	}

	res := loginFrom(t, handler, "192.0.2.200:4000", nil, "owner", "owner-secret")
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected account budget to be exhausted, got %d", res.Code)
	}
	payload := decodeEnvelope[any](t, res)
	if payload.Error == nil || payload.Error.Code != "RATE_LIMIT_EXCEEDED" {
		t.Fatalf("unexpected envelope: %+v", payload)
	}

	res = loginFrom(t, handler, "192.0.2.201:4000", nil, "manager", "manager-secret")
	if res.Code != http.StatusOK {
		t.Fatalf("expected other account to log in, got %d", res.Code)
	}
}

func TestPanicRendersInternalEnvelope(t *testing.T) {
	api := newTestAPI(t)
	handler := api.recoverPanics(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("nil map write")
	}))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))

	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
	if got := res.Header().Get("Content-Type"); !strings.HasPrefix(got, "application/json") {
		t.Fatalf("expected JSON content type, got %q", got)
	}
	if strings.Contains(res.Body.String(), "nil map") {
		t.Fatalf("panic value leaked: %s", res.Body.String())
	}
	payload := decodeEnvelope[any](t, res)
	if payload.OK || payload.Error == nil || payload.Error.Code != "INTERNAL_ERROR" {
		t.Fatalf("unexpected envelope: %+v", payload)
	}
}

func TestAbortHandlerPanicIsNotSwallowed(t *testing.T) {
	api := newTestAPI(t)
	handler := api.recoverPanics(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Fatalf("expected ErrAbortHandler to propagate, got %v", rec)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
