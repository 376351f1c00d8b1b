package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"reflect"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"outletpos/internal/apperr"
	"outletpos/internal/logger"
	"outletpos/internal/service"
)

const maxBodyBytes = 1 << 20

type API struct {
	service       *service.Service
	auth          *AuthManager
	log           *logger.Logger
	gatherer      prometheus.Gatherer
	allowedOrigin string
	trustProxy    bool
	// loginLimiter is keyed by client address, accountLimiter by username so
	// rotating addresses does not reset the budget of one account.
	loginLimiter   *attemptLimiter
	accountLimiter *attemptLimiter
	validate       *validator.Validate
}

type Options struct {
	AllowedOrigin string
	// Gatherer backs /metrics; the route is not mounted when nil.
	Gatherer prometheus.Gatherer
	// TrustProxy takes the client address from X-Forwarded-For or X-Real-IP.
	// Only enable it behind a proxy that overwrites those headers.
	TrustProxy bool
	// LoginAttempts per client IP per LoginWindow.
	LoginAttempts int
	// AccountAttempts per username per LoginWindow, defaulting to twice
	// LoginAttempts.
	AccountAttempts int
	LoginWindow     time.Duration
}

func New(svc *service.Service, auth *AuthManager, log *logger.Logger, opts Options) *API {
	allowedOrigin := strings.TrimSpace(opts.AllowedOrigin)
	if allowedOrigin == "" {
		allowedOrigin = "http://127.0.0.1:3000"
	}
	if opts.LoginAttempts < 1 {
		opts.LoginAttempts = 5
	}
	if opts.AccountAttempts < 1 {
		opts.AccountAttempts = 2 * opts.LoginAttempts
	}
	if log == nil {
		log = logger.Nop()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &API{
		service:       svc,
		auth:          auth,
		log:           log,
		gatherer:      opts.Gatherer,
		allowedOrigin:  allowedOrigin,
		trustProxy:     opts.TrustProxy,
		loginLimiter:   newAttemptLimiter(opts.LoginAttempts, opts.LoginWindow),
		accountLimiter: newAttemptLimiter(opts.AccountAttempts, opts.LoginWindow),
		validate:       validate,
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

// Allow records an attempt for key and reports whether it is within the
// sliding window budget.
func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func accountKey(username string) string {
	return "user:" + strings.ToLower(strings.TrimSpace(username))
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if a.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(
		a.accessLog,
		a.recoverPanics,
		a.securityHeaders,
	)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		a.writeError(w, nil, apperr.New(apperr.CodeNotFound, "route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorEnvelope("METHOD_NOT_ALLOWED", "method not allowed", nil))
	})

	r.Get("/healthz", a.handleHealth)
	if a.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)
		r.Post("/auth/register", a.handleRegister)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)

			r.Get("/me", a.handleMe)
			r.Get("/outlets", a.handleListOutlets)
			r.Post("/outlets", a.handleCreateOutlet)
			r.Get("/staff", a.handleListStaff)
			r.Post("/staff", a.handleCreateStaff)

			r.Get("/categories", a.handleListCategories)
			r.Post("/categories", a.handleCreateCategory)
			r.Get("/products", a.handleListProducts)
			r.Post("/products", a.handleCreateProduct)
			r.Get("/products/{productID}", a.handleGetProduct)
			r.Patch("/products/{productID}", a.handleUpdateProduct)
			r.Get("/products/{productID}/price-history", a.handlePriceHistory)
			r.Get("/taxes", a.handleListTaxes)
			r.Post("/taxes", a.handleCreateTax)
			r.Patch("/taxes/{taxID}", a.handleUpdateTax)

			r.Get("/stock", a.handleListStock)
			r.Get("/stock/low", a.handleLowStock)
			r.Post("/stock/adjust", a.handleAdjustStock)
			r.Get("/stock/movements", a.handleStockMovements)

			r.Get("/pos/catalog", a.handlePOSCatalog)
			r.Post("/cart/summary", a.handleCartSummary)
			r.Post("/checkout", a.handleCheckout)
			r.Get("/orders", a.handleListOrders)
			r.Get("/orders/{orderID}", a.handleGetOrder)

			r.Get("/suppliers", a.handleListSuppliers)
			r.Post("/suppliers", a.handleCreateSupplier)
			r.Get("/customers", a.handleListCustomers)
			r.Post("/customers", a.handleCreateCustomer)
			r.Get("/customers/{customerID}", a.handleGetCustomer)

			r.Get("/purchase-orders", a.handleListPurchaseOrders)
			r.Post("/purchase-orders", a.handleCreatePurchaseOrder)
			r.Get("/purchase-orders/{purchaseOrderID}", a.handleGetPurchaseOrder)
			r.Post("/purchase-orders/{purchaseOrderID}/order", a.handleMarkOrdered)
			r.Post("/purchase-orders/{purchaseOrderID}/receive", a.handleReceivePurchaseOrder)

			r.Get("/dashboard/summary", a.handleDashboardSummary)
			r.Get("/audit-logs", a.handleAuditLogs)
		})
	})
	return r
}

// requireAuth verifies the bearer token and stores the principal for the
// service to resolve. Role checks happen in the service.
func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			a.writeError(w, r, apperr.New(apperr.CodeUnauthorized, "missing bearer token"))
			return
		}
		principal, err := a.auth.ParseToken(token)
		if err != nil {
			a.writeError(w, r, apperr.Wrap(apperr.CodeUnauthorized, err, "invalid or expired token"))
			return
		}
		next.ServeHTTP(w, r.WithContext(service.WithPrincipal(r.Context(), principal)))
	})
}

func (a *API) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := a.log.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		r = r.WithContext(ctx)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		level := zerolog.InfoLevel
		if status >= http.StatusInternalServerError {
			level = zerolog.ErrorLevel
		}
		a.log.Event(ctx, level).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(startedAt)).
			Str("remote", clientKey(r)).
			Msg("http request")
	})
}

// recoverPanics turns a handler panic into the INTERNAL_ERROR envelope.
func (a *API) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			a.log.Event(r.Context(), zerolog.ErrorLevel).
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("path", r.URL.Path).
				Msg("handler panicked")
			a.writeError(w, nil, apperr.New(apperr.CodeInternal, "handler panicked"))
		}()
		next.ServeHTTP(w, r)
	})
}

// decodeJSON reads a single JSON object into dest and validates its tags.
func (a *API) decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.New(apperr.CodeValidation, "request body too large")
		}
		return apperr.Wrap(apperr.CodeValidation, err, "invalid JSON body")
	}
	if err := a.validate.Struct(dest); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			details := make([]map[string]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				details = append(details, map[string]string{
					"field": fe.Namespace(),
					"rule":  fe.Tag(),
				})
			}
			return apperr.New(apperr.CodeValidation, "request failed validation").WithDetails(details)
		}
		return apperr.Wrap(apperr.CodeValidation, err, "request failed validation")
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func errorEnvelope(code string, message string, details any) map[string]any {
	body := map[string]any{
		"code":    code,
		"message": message,
	}
	if details != nil {
		body["details"] = details
	}
	return map[string]any{"ok": false, "error": body}
}

// writeError renders err with the status of its code. Server-side failures
// get the generic public message and are logged with their cause.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperr.As(err)
	if appErr == nil {
		appErr = apperr.Wrap(apperr.CodeInternal, err, "")
	}
	meta := apperr.MetadataFor(appErr.Code())

	message := appErr.Message()
	if message == "" || meta.HTTPStatus >= http.StatusInternalServerError {
		message = meta.PublicMessage
	}
	var details any
	if meta.DetailsAllowed {
		details = appErr.Details()
	}

	if meta.HTTPStatus >= http.StatusInternalServerError && r != nil {
		a.log.Error(r.Context(), "request failed", err)
	}
	writeJSON(w, meta.HTTPStatus, errorEnvelope(string(appErr.Code()), message, details))
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{"ok": true, "data": data})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
