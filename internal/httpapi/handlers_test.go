package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freshmart/backend/internal/domain"
	"freshmart/backend/internal/service"
	"freshmart/backend/internal/store/memory"
)

const testSecret = "test-secret-key-that-is-32-bytes!"

// newTestAPI builds a full API over a seeded in-memory store so handler tests
// exercise the complete request path.
func newTestAPI(t *testing.T) (*API, *memory.Store) {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo)
	auth := NewAuthManager(testSecret, time.Hour, repo)
	return New(svc, auth, "*", nil), repo
}

func login(t *testing.T, api *API, username, password string) string {
	t.Helper()

	body, err := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	var payload domain.LoginResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&payload))
	require.NotEmpty(t, payload.AccessToken)
	return payload.AccessToken
}

// fetchCSRFToken calls the CSRF token endpoint and returns the token string.
func fetchCSRFToken(t *testing.T, api *API) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf-token", nil)
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)

	var payload map[string]string
	require.NoError(t, json.NewDecoder(res.Body).Decode(&payload))
	require.NotEmpty(t, strings.TrimSpace(payload["csrfToken"]))
	return payload["csrfToken"]
}

func do(t *testing.T, api *API, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if method != http.MethodGet {
		req.Header.Set("X-CSRF-Token", fetchCSRFToken(t, api))
	}
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	return res
}

func decodeBody(t *testing.T, res *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	return body
}

func seedScenarioOrder(t *testing.T, repo *memory.Store) {
	t.Helper()
	ctx := context.Background()
	cost := 60.0
	product, err := repo.CreateProduct(ctx, domain.Product{
		ID: "prd-scenario", Name: "Scenario Item", Category: "pantry", Price: 100, PurchasePrice: &cost, Stock: 10, IsActive: true,
	})
	require.NoError(t, err)
	_, err = repo.CreateOrder(ctx, domain.Order{
		Total:     1500,
		Status:    domain.OrderStatusCompleted,
		CreatedAt: time.Now().UTC().Add(-48 * time.Hour),
		Items:     []domain.OrderItem{{ProductID: product.ID, Quantity: 2, Price: 100}},
	})
	require.NoError(t, err)
}

func TestHandleHealth(t *testing.T) {
	api, _ := newTestAPI(t)

	res := do(t, api, http.MethodGet, "/healthz", "", nil)

	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, true, decodeBody(t, res)["ok"])
}

func TestHandleLogin(t *testing.T) {
	api, _ := newTestAPI(t)

	token := login(t, api, "admin", "admin123")
	actor, err := api.auth.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, actor.Role)

	res := do(t, api, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "admin", Password: "wrongpassword"})
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Equal(t, "invalid credentials", decodeBody(t, res)["error"])
}

func TestHandleRegisterCreatesCustomer(t *testing.T) {
	api, _ := newTestAPI(t)

	res := do(t, api, http.MethodPost, "/api/v1/auth/register", "", domain.RegisterRequest{Username: "shopper1", Password: "fresh-produce"})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	user := decodeBody(t, res)["user"].(map[string]any)
	assert.Equal(t, "customer", user["role"])

	token := login(t, api, "shopper1", "fresh-produce")
	me := do(t, api, http.MethodGet, "/api/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Equal(t, false, decodeBody(t, me)["canAccessFinancialData"])

	dup := do(t, api, http.MethodPost, "/api/v1/auth/register", "", domain.RegisterRequest{Username: "shopper1", Password: "fresh-produce"})
	assert.Equal(t, http.StatusConflict, dup.Code)
}

func TestAuthMeReportsCapabilities(t *testing.T) {
	api, _ := newTestAPI(t)

	res := do(t, api, http.MethodGet, "/api/v1/auth/me", login(t, api, "finance", "finance123"), nil)
	require.Equal(t, http.StatusOK, res.Code)

	body := decodeBody(t, res)
	assert.Equal(t, "finance", body["username"])
	assert.Equal(t, "finance_manager", body["role"])
	assert.Equal(t, true, body["canAccessFinancialData"])
	assert.Contains(t, body["permissions"], "finance:read")
	assert.NotContains(t, body["permissions"], "users:manage")
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	api, _ := newTestAPI(t)

	for _, path := range []string{"/api/v1/products", "/api/v1/finance/financial-metrics", "/api/v1/auth/me"} {
		res := do(t, api, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, res.Code, path)
	}

	res := do(t, api, http.MethodGet, "/api/v1/products", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestFinancialMetricsRedactedPerRole(t *testing.T) {
	api, repo := newTestAPI(t)
	seedScenarioOrder(t, repo)

	admin := do(t, api, http.MethodGet, "/api/v1/finance/financial-metrics?days=30", login(t, api, "admin", "admin123"), nil)
	require.Equal(t, http.StatusOK, admin.Code, admin.Body.String())
	summary := decodeBody(t, admin)["summary"].(map[string]any)
	assert.Equal(t, 200.0, summary["totalRevenue"])
	assert.Equal(t, 120.0, summary["totalCost"])
	assert.Equal(t, 80.0, summary["totalProfit"])
	assert.Equal(t, 40.0, summary["profitMargin"])

	customer := do(t, api, http.MethodGet, "/api/v1/finance/financial-metrics?days=30", login(t, api, "customer", "customer123"), nil)
	require.Equal(t, http.StatusOK, customer.Code)
	body := decodeBody(t, customer)
	summary = body["summary"].(map[string]any)
	for _, field := range []string{"totalRevenue", "totalCost", "totalProfit", "profitMargin", "roi"} {
		value, present := summary[field]
		assert.True(t, present, field)
		assert.Nil(t, value, field)
	}
	assert.Equal(t, 1.0, summary["totalOrders"])

	products := body["products"].([]any)
	require.Len(t, products, 1)
	assert.Nil(t, products[0].(map[string]any)["totalRevenue"])
	assert.Equal(t, "Scenario Item", products[0].(map[string]any)["name"])
}

func TestFinancialMetricsRejectsBadDays(t *testing.T) {
	api, _ := newTestAPI(t)
	res := do(t, api, http.MethodGet, "/api/v1/finance/financial-metrics?days=lots", login(t, api, "admin", "admin123"), nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestExpensesEnforcedByService(t *testing.T) {
	api, _ := newTestAPI(t)

	for _, user := range [][2]string{{"customer", "customer123"}, {"employee", "employee123"}} {
		res := do(t, api, http.MethodGet, "/api/v1/finance/expenses?days=30", login(t, api, user[0], user[1]), nil)
		require.Equal(t, http.StatusForbidden, res.Code, user[0])
		assert.Contains(t, decodeBody(t, res)["error"], "Insufficient permissions")
	}

	finance := login(t, api, "finance", "finance123")
	created := do(t, api, http.MethodPost, "/api/v1/finance/expenses", finance, domain.ExpenseCreateRequest{Category: "utilities", Amount: 120})
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())

	res := do(t, api, http.MethodGet, "/api/v1/finance/expenses?days=30", finance, nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Len(t, decodeBody(t, res)["expenses"], 1)
}

func TestProductPurchasePriceRedaction(t *testing.T) {
	api, _ := newTestAPI(t)

	employee := do(t, api, http.MethodGet, "/api/v1/products/prd-milk-1l", login(t, api, "employee", "employee123"), nil)
	require.Equal(t, http.StatusOK, employee.Code, employee.Body.String())
	product := decodeBody(t, employee)["product"].(map[string]any)
	assert.Contains(t, product, "purchasePrice")
	assert.Nil(t, product["purchasePrice"])

	finance := do(t, api, http.MethodGet, "/api/v1/products/prd-milk-1l", login(t, api, "finance", "finance123"), nil)
	require.Equal(t, http.StatusOK, finance.Code)
	assert.NotNil(t, decodeBody(t, finance)["product"].(map[string]any)["purchasePrice"])
}

func TestCreateProductRequiresWritePermission(t *testing.T) {
	api, _ := newTestAPI(t)
	req := domain.ProductCreateRequest{Name: "Kale", Category: "produce", Price: 2.4, PurchasePrice: 1, InitialStock: 30}

	denied := do(t, api, http.MethodPost, "/api/v1/products", login(t, api, "customer", "customer123"), req)
	assert.Equal(t, http.StatusForbidden, denied.Code)

	created := do(t, api, http.MethodPost, "/api/v1/products", login(t, api, "employee", "employee123"), req)
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	assert.Equal(t, "Kale", decodeBody(t, created)["product"].(map[string]any)["name"])

	invalid := do(t, api, http.MethodPost, "/api/v1/products", login(t, api, "employee", "employee123"), domain.ProductCreateRequest{Name: "Kale", Category: "produce"})
	assert.Equal(t, http.StatusBadRequest, invalid.Code)
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	api, _ := newTestAPI(t)
	customer := login(t, api, "customer", "customer123")

	placed := do(t, api, http.MethodPost, "/api/v1/orders", customer, domain.CreateOrderRequest{
		PaymentMethod:   "wallet",
		DeliveryAddress: "12 Orchard Lane",
		Items:           []domain.CartItem{{ProductID: "prd-milk-1l", Quantity: 2}},
	})
	require.Equal(t, http.StatusCreated, placed.Code, placed.Body.String())
	order := decodeBody(t, placed)["order"].(map[string]any)
	id := order["id"].(string)
	assert.Equal(t, "storefront", order["channel"])
	assert.Equal(t, "paid", order["paymentStatus"])

	mine := do(t, api, http.MethodGet, "/api/v1/orders/"+id, customer, nil)
	assert.Equal(t, http.StatusOK, mine.Code)

	employee := login(t, api, "employee", "employee123")
	packed := do(t, api, http.MethodPatch, "/api/v1/orders/"+id+"/delivery", employee, domain.DeliveryStatusRequest{DeliveryStatus: "packed"})
	require.Equal(t, http.StatusOK, packed.Code, packed.Body.String())

	backwards := do(t, api, http.MethodPatch, "/api/v1/orders/"+id+"/delivery", employee, domain.DeliveryStatusRequest{DeliveryStatus: "pending"})
	assert.Equal(t, http.StatusConflict, backwards.Code)

	forbidden := do(t, api, http.MethodPatch, "/api/v1/orders/"+id+"/delivery", customer, domain.DeliveryStatusRequest{DeliveryStatus: "delivered"})
	assert.Equal(t, http.StatusForbidden, forbidden.Code)

	deleteDenied := do(t, api, http.MethodDelete, "/api/v1/orders/"+id, employee, nil)
	assert.Equal(t, http.StatusForbidden, deleteDenied.Code)

	deleted := do(t, api, http.MethodDelete, "/api/v1/orders/"+id, login(t, api, "admin", "admin123"), nil)
	assert.Equal(t, http.StatusNoContent, deleted.Code)

	missing := do(t, api, http.MethodGet, "/api/v1/orders/"+id, employee, nil)
	require.Equal(t, http.StatusNotFound, missing.Code)
	assert.Equal(t, "order not found", decodeBody(t, missing)["error"])
}

func TestWalletOrderWithoutFundsIsUnprocessable(t *testing.T) {
	api, _ := newTestAPI(t)

	res := do(t, api, http.MethodPost, "/api/v1/orders", login(t, api, "customer", "customer123"), domain.CreateOrderRequest{
		PaymentMethod:   "wallet",
		DeliveryAddress: "12 Orchard Lane",
		Items:           []domain.CartItem{{ProductID: "prd-olive-oil", Quantity: 10}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code, res.Body.String())
}

func TestVerifyPaymentRequiresFinanceRole(t *testing.T) {
	api, _ := newTestAPI(t)
	placed := do(t, api, http.MethodPost, "/api/v1/orders", login(t, api, "customer", "customer123"), domain.CreateOrderRequest{
		PaymentMethod:   "cod",
		DeliveryAddress: "12 Orchard Lane",
		Items:           []domain.CartItem{{ProductID: "prd-apple-gala", Quantity: 1}},
	})
	require.Equal(t, http.StatusCreated, placed.Code, placed.Body.String())
	id := decodeBody(t, placed)["order"].(map[string]any)["id"].(string)

	denied := do(t, api, http.MethodPost, "/api/v1/orders/"+id+"/verify-payment", login(t, api, "employee", "employee123"), domain.VerifyPaymentRequest{Approved: true})
	assert.Equal(t, http.StatusForbidden, denied.Code)

	verified := do(t, api, http.MethodPost, "/api/v1/orders/"+id+"/verify-payment", login(t, api, "finance", "finance123"), domain.VerifyPaymentRequest{Approved: true})
	require.Equal(t, http.StatusOK, verified.Code, verified.Body.String())
	assert.Equal(t, "paid", decodeBody(t, verified)["order"].(map[string]any)["paymentStatus"])
}

func TestWalletEndpoints(t *testing.T) {
	api, _ := newTestAPI(t)
	customer := login(t, api, "customer", "customer123")

	deposit := do(t, api, http.MethodPost, "/api/v1/wallet/deposit", customer, domain.WalletAmountRequest{Amount: 25})
	require.Equal(t, http.StatusCreated, deposit.Code, deposit.Body.String())

	wallet := do(t, api, http.MethodGet, "/api/v1/wallet", customer, nil)
	require.Equal(t, http.StatusOK, wallet.Code)
	assert.Equal(t, 75.0, decodeBody(t, wallet)["balance"])

	overdraw := do(t, api, http.MethodPost, "/api/v1/wallet/withdraw", customer, domain.WalletAmountRequest{Amount: 500})
	assert.Equal(t, http.StatusUnprocessableEntity, overdraw.Code)

	employee := do(t, api, http.MethodGet, "/api/v1/wallet", login(t, api, "employee", "employee123"), nil)
	assert.Equal(t, http.StatusForbidden, employee.Code)
}

func TestRecurringPaymentEndpoints(t *testing.T) {
	api, _ := newTestAPI(t)
	customer := login(t, api, "customer", "customer123")

	created := do(t, api, http.MethodPost, "/api/v1/recurring-payments", customer, domain.RecurringPaymentCreateRequest{Description: "weekly veg box", Amount: 20, Interval: "weekly"})
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())

	runDenied := do(t, api, http.MethodPost, "/api/v1/recurring-payments/run", customer, nil)
	assert.Equal(t, http.StatusForbidden, runDenied.Code)

	run := do(t, api, http.MethodPost, "/api/v1/recurring-payments/run", login(t, api, "admin", "admin123"), nil)
	require.Equal(t, http.StatusOK, run.Code, run.Body.String())
	body := decodeBody(t, run)
	assert.Equal(t, 1.0, body["processed"])
	assert.Equal(t, 1.0, body["succeeded"])

	list := do(t, api, http.MethodGet, "/api/v1/recurring-payments", customer, nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Len(t, decodeBody(t, list)["recurringPayments"], 1)
}

func TestUserManagementIsAdminOnly(t *testing.T) {
	api, _ := newTestAPI(t)
	req := domain.UserCreateRequest{Username: "ledger", Password: "balance-sheet", Role: "finance_manager"}

	denied := do(t, api, http.MethodPost, "/api/v1/users", login(t, api, "finance", "finance123"), req)
	assert.Equal(t, http.StatusForbidden, denied.Code)

	admin := login(t, api, "admin", "admin123")
	created := do(t, api, http.MethodPost, "/api/v1/users", admin, req)
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	assert.Equal(t, "finance_manager", decodeBody(t, created)["user"].(map[string]any)["role"])

	badRole := do(t, api, http.MethodPost, "/api/v1/users", admin, domain.UserCreateRequest{Username: "someone", Password: "long-enough", Role: "owner"})
	assert.Equal(t, http.StatusBadRequest, badRole.Code)

	list := do(t, api, http.MethodGet, "/api/v1/users", admin, nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Len(t, decodeBody(t, list)["users"], 5)
}

func TestDashboardAndExport(t *testing.T) {
	api, repo := newTestAPI(t)
	seedScenarioOrder(t, repo)

	employee := do(t, api, http.MethodGet, "/api/v1/dashboard", login(t, api, "employee", "employee123"), nil)
	require.Equal(t, http.StatusOK, employee.Code)
	overview := decodeBody(t, employee)
	assert.Nil(t, overview["totalRevenue"])
	assert.Equal(t, 1.0, overview["totalOrders"])

	csvDenied := do(t, api, http.MethodGet, "/api/v1/finance/financial-metrics/export", login(t, api, "employee", "employee123"), nil)
	assert.Equal(t, http.StatusForbidden, csvDenied.Code)

	csv := do(t, api, http.MethodGet, "/api/v1/finance/financial-metrics/export?days=7", login(t, api, "finance", "finance123"), nil)
	require.Equal(t, http.StatusOK, csv.Code)
	assert.Equal(t, "text/csv; charset=utf-8", csv.Header().Get("Content-Type"))
	assert.Contains(t, csv.Header().Get("Content-Disposition"), "financial-metrics-")
	assert.Contains(t, csv.Body.String(), "summary,total_revenue,200.00")
}

func TestAuditLogsRecordWrites(t *testing.T) {
	api, _ := newTestAPI(t)
	finance := login(t, api, "finance", "finance123")
	res := do(t, api, http.MethodPost, "/api/v1/finance/vendor-bills", finance, domain.VendorBillCreateRequest{VendorName: "Valley Dairy", Amount: 480, DueDate: "2026-12-01"})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())

	denied := do(t, api, http.MethodGet, "/api/v1/audit-logs", finance, nil)
	assert.Equal(t, http.StatusForbidden, denied.Code)

	logs := do(t, api, http.MethodGet, "/api/v1/audit-logs?limit=10", login(t, api, "admin", "admin123"), nil)
	require.Equal(t, http.StatusOK, logs.Code)
	entries := decodeBody(t, logs)["logs"].([]any)
	require.NotEmpty(t, entries)
	assert.Equal(t, "vendor_bill_create", entries[0].(map[string]any)["action"])
}

func TestMetricsEndpointExposesRequestCounters(t *testing.T) {
	api, _ := newTestAPI(t)
	do(t, api, http.MethodGet, "/healthz", "", nil)

	res := do(t, api, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `freshmart_http_requests_total{route="GET /healthz",status="200"} 1`)
}
