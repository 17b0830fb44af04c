package rbac

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freshmart/backend/internal/domain"
)

var restrictedRoles = []domain.Role{domain.RoleCustomer, domain.RoleEmployee, domain.RoleUnknown, domain.Role("guest")}

func ptr(v float64) *float64 { return &v }

func sampleMetrics() *domain.FinancialMetrics {
	return &domain.FinancialMetrics{
		Days: 30,
		Summary: &domain.FinancialSummary{
			TotalRevenue:      ptr(150000),
			TotalCost:         ptr(90000),
			TotalProfit:       ptr(60000),
			ProfitMargin:      ptr(40),
			ROI:               ptr(66.67),
			AverageOrderValue: 1500,
			TotalOrders:       100,
			TotalItems:        320,
		},
		Products: []domain.ProductMetrics{{
			ProductID: "prd-1", Name: "Apples", Category: "Produce", UnitsSold: 12,
			TotalRevenue: ptr(24), TotalCost: ptr(12), TotalProfit: ptr(12), ProfitMargin: ptr(50), ROI: ptr(100),
		}},
		Categories: []domain.CategoryMetrics{{
			Category: "Produce", UnitsSold: 12,
			TotalRevenue: ptr(24), TotalCost: ptr(12), TotalProfit: ptr(12), ProfitMargin: ptr(50), ROI: ptr(100),
		}},
	}
}

func TestFilterFinancialDataNullsSummaryForRestrictedRoles(t *testing.T) {
	for _, role := range restrictedRoles {
		in := sampleMetrics()
		out := FilterFinancialData(in, role)

		require.NotNil(t, out.Summary)
		assert.Nil(t, out.Summary.TotalRevenue)
		assert.Nil(t, out.Summary.TotalCost)
		assert.Nil(t, out.Summary.TotalProfit)
		assert.Nil(t, out.Summary.ProfitMargin)
		assert.Nil(t, out.Summary.ROI)
		assert.Equal(t, 100, out.Summary.TotalOrders)
		assert.Equal(t, 320, out.Summary.TotalItems)
		assert.Equal(t, 1500.0, out.Summary.AverageOrderValue)

		require.Len(t, out.Products, 1)
		assert.Equal(t, "Apples", out.Products[0].Name)
		assert.Equal(t, 12, out.Products[0].UnitsSold)
		assert.Nil(t, out.Products[0].TotalRevenue)
		assert.Nil(t, out.Categories[0].ROI)
		assert.Equal(t, "Produce", out.Categories[0].Category)
	}
}

func TestFilterFinancialDataDoesNotMutateInput(t *testing.T) {
	in := sampleMetrics()
	_ = FilterFinancialData(in, domain.RoleCustomer)

	require.NotNil(t, in.Summary.TotalRevenue)
	assert.Equal(t, 150000.0, *in.Summary.TotalRevenue)
	require.NotNil(t, in.Products[0].TotalCost)
	assert.Equal(t, 12.0, *in.Categories[0].TotalCost)
}

func TestFilterFinancialDataIsIdentityForAuthorizedRoles(t *testing.T) {
	for _, role := range []domain.Role{domain.RoleAdmin, domain.RoleFinanceManager} {
		in := sampleMetrics()
		out := FilterFinancialData(in, role)
		assert.Same(t, in, out)
		assert.Equal(t, 150000.0, *out.Summary.TotalRevenue)

		doc := map[string]any{"totalRevenue": 10.0}
		assert.Equal(t, doc, FilterFinancialData(doc, role))
	}
}

func TestFilterFinancialDataNilAndEmpty(t *testing.T) {
	for _, role := range append(restrictedRoles, domain.RoleAdmin) {
		var metrics *domain.FinancialMetrics
		assert.Nil(t, FilterFinancialData(metrics, role))

		var anything any
		assert.Nil(t, FilterFinancialData(anything, role))

		var doc map[string]any
		assert.Nil(t, FilterFinancialData(doc, role))

		assert.Equal(t, map[string]any{}, FilterFinancialData(map[string]any{}, role))
	}
}

func TestFilterFinancialDataRedactsEachArrayElement(t *testing.T) {
	list := []domain.FinancialMetrics{*sampleMetrics(), *sampleMetrics(), *sampleMetrics()}
	out := FilterFinancialData(list, domain.RoleEmployee)

	require.Len(t, out, 3)
	for _, item := range out {
		assert.Nil(t, item.Summary.TotalRevenue)
		assert.Nil(t, item.Summary.ROI)
		assert.Equal(t, 100, item.Summary.TotalOrders)
	}
	assert.NotNil(t, list[0].Summary.TotalRevenue)
}

func TestFilterFinancialDataGenericDocuments(t *testing.T) {
	doc := map[string]any{
		"summary": map[string]any{
			"totalRevenue": 150000.0,
			"totalCost":    90000.0,
			"totalProfit":  60000.0,
			"profitMargin": 40.0,
			"roi":          66.67,
			"totalOrders":  100.0,
		},
	}
	out := FilterFinancialData(doc, domain.RoleCustomer)
	summary := out["summary"].(map[string]any)
	for _, field := range SensitiveFields {
		value, present := summary[field]
		assert.True(t, present, field)
		assert.Nil(t, value, field)
	}
	assert.Equal(t, 100.0, summary["totalOrders"])
	assert.Equal(t, 150000.0, doc["summary"].(map[string]any)["totalRevenue"])

	flat := map[string]any{"name": "Dairy", "totalRevenue": 500.0, "roi": 12.5}
	redacted := FilterFinancialData(flat, domain.RoleEmployee)
	assert.Equal(t, map[string]any{"name": "Dairy", "totalRevenue": nil, "roi": nil}, redacted)

	list := []any{flat, map[string]any{"category": "Bakery"}}
	redactedList := FilterFinancialData(list, domain.RoleCustomer)
	require.Len(t, redactedList, 2)
	assert.Nil(t, redactedList[0].(map[string]any)["totalRevenue"])
	assert.Equal(t, "Bakery", redactedList[1].(map[string]any)["category"])
}

func TestFilterFinancialDataWireShape(t *testing.T) {
	payload, err := json.Marshal(FilterFinancialData(sampleMetrics(), domain.RoleCustomer))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	summary := decoded["summary"].(map[string]any)
	for _, field := range SensitiveFields {
		value, present := summary[field]
		assert.True(t, present, field)
		assert.Nil(t, value, field)
	}
}

func TestFilterFinancialDataHidesPurchasePrice(t *testing.T) {
	products := []domain.Product{{ID: "prd-1", Name: "Milk", Price: 2.5, PurchasePrice: ptr(1.2)}}
	out := FilterFinancialData(products, domain.RoleCustomer)
	assert.Nil(t, out[0].PurchasePrice)
	assert.Equal(t, 2.5, out[0].Price)
	assert.NotNil(t, products[0].PurchasePrice)

	single := FilterFinancialData(products[0], domain.RoleFinanceManager)
	assert.Equal(t, 1.2, *single.PurchasePrice)
}

func TestFilterFinancialDataDashboard(t *testing.T) {
	overview := domain.DashboardOverview{TotalOrders: 4, PendingDeliveries: 1, TotalRevenue: ptr(400), ROI: ptr(20)}
	out := FilterFinancialData(overview, domain.RoleEmployee)
	assert.Nil(t, out.TotalRevenue)
	assert.Nil(t, out.ROI)
	assert.Equal(t, 4, out.TotalOrders)
	assert.Equal(t, 1, out.PendingDeliveries)
}

func TestFilterFinancialDataPassesScalarsThrough(t *testing.T) {
	assert.Equal(t, "report", FilterFinancialData("report", domain.RoleCustomer))
	assert.Equal(t, 42, FilterFinancialData(42, domain.RoleCustomer))
}

func TestFilterFinancialDataWalksUnlistedContainers(t *testing.T) {
	rows := []map[string]any{{"totalRevenue": 150000.0, "name": "Dairy"}, {"roi": 12.5}}
	out := FilterFinancialData(rows, domain.RoleCustomer)
	require.Len(t, out, 2)
	value, present := out[0]["totalRevenue"]
	assert.True(t, present)
	assert.Nil(t, value)
	assert.Equal(t, "Dairy", out[0]["name"])
	assert.Nil(t, out[1]["roi"])
	assert.Equal(t, 150000.0, rows[0]["totalRevenue"])

	typed := map[string]any{"summary": map[string]float64{"totalRevenue": 150000, "totalOrders": 100}}
	typedOut := FilterFinancialData(typed, domain.RoleEmployee)
	summary := typedOut["summary"].(map[string]float64)
	assert.Zero(t, summary["totalRevenue"])
	assert.Equal(t, 100.0, summary["totalOrders"])
	assert.Equal(t, 150000.0, typed["summary"].(map[string]float64)["totalRevenue"])

	products := []*domain.Product{{ID: "prd-1", Price: 2.5, PurchasePrice: ptr(1.2)}, nil}
	productsOut := FilterFinancialData(products, domain.RoleCustomer)
	require.Len(t, productsOut, 2)
	assert.Nil(t, productsOut[0].PurchasePrice)
	assert.Equal(t, 2.5, productsOut[0].Price)
	assert.Nil(t, productsOut[1])
	assert.NotNil(t, products[0].PurchasePrice)

	overviews := []domain.DashboardOverview{{TotalOrders: 4, TotalRevenue: ptr(400), ProfitMargin: ptr(10)}}
	overviewsOut := FilterFinancialData(overviews, domain.RoleCustomer)
	assert.Nil(t, overviewsOut[0].TotalRevenue)
	assert.Nil(t, overviewsOut[0].ProfitMargin)
	assert.Equal(t, 4, overviewsOut[0].TotalOrders)
	assert.Equal(t, 400.0, *overviews[0].TotalRevenue)
}

func TestFilterFinancialDataWalksUnlistedStructs(t *testing.T) {
	type report struct {
		Title   string                     `json:"title"`
		Revenue *float64                   `json:"totalRevenue"`
		Metrics []*domain.FinancialMetrics `json:"metrics"`
		Extra   any                        `json:"extra"`
	}
	in := report{Title: "June", Revenue: ptr(10), Metrics: []*domain.FinancialMetrics{sampleMetrics()}, Extra: map[string]any{"roi": 3.0}}

	out := FilterFinancialData(in, domain.RoleCustomer)
	assert.Equal(t, "June", out.Title)
	assert.Nil(t, out.Revenue)
	require.Len(t, out.Metrics, 1)
	assert.Nil(t, out.Metrics[0].Summary.TotalRevenue)
	assert.Nil(t, out.Metrics[0].Products[0].ROI)
	assert.Equal(t, 100, out.Metrics[0].Summary.TotalOrders)
	assert.Nil(t, out.Extra.(map[string]any)["roi"])
	assert.Equal(t, 150000.0, *in.Metrics[0].Summary.TotalRevenue)

	boxed := FilterFinancialData[any](in, domain.RoleEmployee)
	assert.Nil(t, boxed.(report).Revenue)

	assert.Equal(t, 10.0, *FilterFinancialData(in, domain.RoleAdmin).Revenue)
}
