package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"freshmart/backend/internal/rbac"
	"freshmart/backend/internal/service"
	"freshmart/backend/internal/store"
)

const maxBodyBytes = 1 << 20

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	authLimiter   *clientLimiter
	csrfSecret    []byte
	metrics       *httpMetrics
}

// New wires the handlers. A nil registry gets a fresh one with the runtime
// collectors registered.
func New(svc *service.Service, auth *AuthManager, allowedOrigin string, registry *prometheus.Registry) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		log.Fatal().Err(err).Msg("failed to generate CSRF secret")
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		authLimiter:   newClientLimiter(5, time.Minute),
		csrfSecret:    csrfSecret,
		metrics:       newHTTPMetrics(registry),
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, a.metrics.instrument(pattern, h))
	}

	route("GET /healthz", a.handleHealth)
	mux.Handle("GET /metrics", a.metrics.handler())

	route("POST /api/v1/auth/login", a.handleLogin)
	route("POST /api/v1/auth/register", a.handleRegister)
	route("GET /api/v1/auth/csrf-token", a.handleCSRFToken)
	route("GET /api/v1/auth/me", a.requireAuth(a.handleMe))

	route("GET /api/v1/products", a.requireAuth(a.handleListProducts, rbac.PermProductsRead))
	route("POST /api/v1/products", a.requireAuth(a.handleCreateProduct, rbac.PermProductsWrite))
	route("GET /api/v1/products/{id}", a.requireAuth(a.handleGetProduct, rbac.PermProductsRead))
	route("PATCH /api/v1/products/{id}", a.requireAuth(a.handleUpdateProduct, rbac.PermProductsWrite))
	route("DELETE /api/v1/products/{id}", a.requireAuth(a.handleDeleteProduct, rbac.PermProductsWrite))
	route("POST /api/v1/products/{id}/stock", a.requireAuth(a.handleAdjustStock, rbac.PermInventoryWrite))

	route("GET /api/v1/orders", a.requireAuth(a.handleListOrders))
	route("POST /api/v1/orders", a.requireAuth(a.handleCreateOrder, rbac.PermOrdersCreate))
	route("GET /api/v1/orders/{id}", a.requireAuth(a.handleGetOrder))
	route("DELETE /api/v1/orders/{id}", a.requireAuth(a.handleDeleteOrder, rbac.PermOrdersDelete))
	route("PATCH /api/v1/orders/{id}/status", a.requireAuth(a.handleOrderStatus, rbac.PermOrdersUpdate))
	route("PATCH /api/v1/orders/{id}/delivery", a.requireAuth(a.handleDeliveryStatus, rbac.PermDeliveryUpdate))
	route("POST /api/v1/orders/{id}/verify-payment", a.requireAuth(a.handleVerifyPayment, rbac.PermPaymentsVerify))

	route("GET /api/v1/finance/financial-metrics", a.requireAuth(a.handleFinancialMetrics))
	route("GET /api/v1/finance/financial-metrics/export", a.requireAuth(a.handleExportMetrics, rbac.PermFinanceRead))
	route("GET /api/v1/finance/expenses", a.requireAuth(a.handleListExpenses))
	route("POST /api/v1/finance/expenses", a.requireAuth(a.handleCreateExpense))
	route("GET /api/v1/finance/vendor-bills", a.requireAuth(a.handleListVendorBills))
	route("POST /api/v1/finance/vendor-bills", a.requireAuth(a.handleCreateVendorBill))
	route("POST /api/v1/finance/vendor-bills/{id}/pay", a.requireAuth(a.handlePayVendorBill))
	route("GET /api/v1/dashboard", a.requireAuth(a.handleDashboard, rbac.PermDashboardRead))

	route("GET /api/v1/wallet", a.requireAuth(a.handleWallet, rbac.PermWalletUse))
	route("POST /api/v1/wallet/deposit", a.requireAuth(a.handleDeposit, rbac.PermWalletUse))
	route("POST /api/v1/wallet/withdraw", a.requireAuth(a.handleWithdraw, rbac.PermWalletUse))
	route("GET /api/v1/recurring-payments", a.requireAuth(a.handleListRecurring, rbac.PermWalletUse))
	route("POST /api/v1/recurring-payments", a.requireAuth(a.handleCreateRecurring, rbac.PermWalletUse))
	route("DELETE /api/v1/recurring-payments/{id}", a.requireAuth(a.handleCancelRecurring, rbac.PermWalletUse))
	route("POST /api/v1/recurring-payments/run", a.requireAuth(a.handleRunRecurring, rbac.PermRecurringRun))

	route("GET /api/v1/users", a.requireAuth(a.handleListUsers, rbac.PermUsersManage))
	route("POST /api/v1/users", a.requireAuth(a.handleCreateUser, rbac.PermUsersManage))
	route("GET /api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, rbac.PermAuditRead))

	return a.withMiddleware(mux)
}

// requireAuth resolves the bearer token into an actor and checks that its
// role holds every listed permission. Handlers with no permission listed
// accept any authenticated role and leave the decision to the service.
func (a *API) requireAuth(next http.HandlerFunc, perms ...rbac.Permission) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			a.metrics.denied("missing_token")
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		actor, err := a.auth.ParseToken(strings.TrimSpace(authorization[len("Bearer "):]))
		if err != nil {
			a.metrics.denied("invalid_token")
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		for _, perm := range perms {
			if !rbac.HasPermission(actor.Role, perm) {
				a.metrics.denied("permission")
				writeError(w, http.StatusForbidden, rbac.ErrInsufficientPermissions)
				return
			}
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if !a.checkCSRF(w, r) {
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		startedAt := time.Now()
		next.ServeHTTP(rec, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("latency", time.Since(startedAt)).
			Msg("http request")
	})
}

// statusForError maps domain errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, rbac.ErrInsufficientPermissions):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrAccountInactive):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, store.ErrInsufficientStock), errors.Is(err, store.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusForError(err), err)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
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

// parseDays reads the trailing window. Missing means the service default.
func parseDays(raw string) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}
	days, err := strconv.Atoi(trimmed)
	if err != nil || days < 0 || days > 3650 {
		return 0, errors.New("days must be an integer between 1 and 3650")
	}
	return days, nil
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx detail stays in the log.
	msg := err.Error()
	if status >= 500 {
		log.Error().Err(err).Int("status", status).Msg("internal error")
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
