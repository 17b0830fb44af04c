package finance

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freshmart/backend/internal/domain"
)

func cost(v float64) *float64 { return &v }

func TestAggregateSingleOrderScenario(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	days, from, to := Window(30, now)
	require.Equal(t, 30, days)

	products := []domain.Product{{ID: "p1", Name: "Olive Oil", Category: "pantry", Price: 100, PurchasePrice: cost(60)}}
	orders := []domain.Order{{
		ID:        "o1",
		Total:     1500,
		CreatedAt: now.Add(-48 * time.Hour),
		Items:     []domain.OrderItem{{ProductID: "p1", Quantity: 2, Price: 100}},
	}}

	m := Aggregate(orders, products, from, to)
	require.NotNil(t, m.Summary)
	assert.Equal(t, 200.0, *m.Summary.TotalRevenue)
	assert.Equal(t, 120.0, *m.Summary.TotalCost)
	assert.Equal(t, 80.0, *m.Summary.TotalProfit)
	assert.Equal(t, 40.0, *m.Summary.ProfitMargin)
	assert.Equal(t, 66.67, *m.Summary.ROI)
	assert.Equal(t, 1, m.Summary.TotalOrders)
	assert.Equal(t, 2, m.Summary.TotalItems)
	assert.Equal(t, 1500.0, m.Summary.AverageOrderValue)

	require.Len(t, m.Products, 1)
	assert.Equal(t, 2, m.Products[0].UnitsSold)
	require.Len(t, m.Categories, 1)
	assert.Equal(t, "pantry", m.Categories[0].Category)
	assert.Equal(t, 80.0, *m.Categories[0].TotalProfit)
}

func TestAggregateIgnoresOrdersOutsideWindowAndCancelled(t *testing.T) {
	now := time.Now().UTC()
	_, from, to := Window(7, now)
	products := []domain.Product{{ID: "p1", Category: "dairy", Price: 2, PurchasePrice: cost(1)}}
	line := []domain.OrderItem{{ProductID: "p1", Quantity: 1, Price: 2}}
	orders := []domain.Order{
		{ID: "old", Total: 2, CreatedAt: now.Add(-8 * 24 * time.Hour), Items: line},
		{ID: "cancelled", Total: 2, CreatedAt: now.Add(-time.Hour), Status: domain.OrderStatusCancelled, Items: line},
		{ID: "kept", Total: 2, CreatedAt: now.Add(-time.Hour), Items: line},
	}

	m := Aggregate(orders, products, from, to)
	assert.Equal(t, 1, m.Summary.TotalOrders)
	assert.Equal(t, 2.0, *m.Summary.TotalRevenue)
}

func TestAggregateZeroDenominators(t *testing.T) {
	now := time.Now().UTC()
	_, from, to := Window(30, now)

	empty := Aggregate(nil, nil, from, to)
	assert.Zero(t, *empty.Summary.TotalRevenue)
	assert.Zero(t, *empty.Summary.ProfitMargin)
	assert.Zero(t, *empty.Summary.ROI)
	assert.Zero(t, empty.Summary.AverageOrderValue)
	assert.Empty(t, empty.Products)

	free := Aggregate([]domain.Order{{CreatedAt: now, Total: 5, Items: []domain.OrderItem{{ProductID: "p", Quantity: 1, Price: 5}}}},
		[]domain.Product{{ID: "p", Category: "bakery", Price: 5}}, from, to)
	assert.Equal(t, 5.0, *free.Summary.TotalProfit)
	assert.Equal(t, 100.0, *free.Summary.ProfitMargin)
	assert.Zero(t, *free.Summary.ROI)
}

func TestAggregateFallsBackToCatalogPriceAndSkipsMissingProducts(t *testing.T) {
	now := time.Now().UTC()
	_, from, to := Window(30, now)
	products := []domain.Product{{ID: "p1", Category: "produce", Price: 3, PurchasePrice: cost(1)}}
	orders := []domain.Order{{
		CreatedAt: now.Add(-time.Minute),
		Total:     9,
		Items: []domain.OrderItem{
			{ProductID: "p1", Quantity: 3},
			{ProductID: "gone", Quantity: 4, Price: 10},
		},
	}}

	m := Aggregate(orders, products, from, to)
	assert.Equal(t, 9.0, *m.Summary.TotalRevenue)
	assert.Equal(t, 3.0, *m.Summary.TotalCost)
	assert.Equal(t, 3, m.Summary.TotalItems)
}

func TestAggregateSortsBreakdownsByRevenue(t *testing.T) {
	now := time.Now().UTC()
	_, from, to := Window(30, now)
	products := []domain.Product{
		{ID: "cheap", Category: "produce", Price: 1, PurchasePrice: cost(0.5)},
		{ID: "dear", Category: "pantry", Price: 9, PurchasePrice: cost(4)},
	}
	orders := []domain.Order{{CreatedAt: now, Items: []domain.OrderItem{
		{ProductID: "cheap", Quantity: 2, Price: 1},
		{ProductID: "dear", Quantity: 1, Price: 9},
	}}}

	m := Aggregate(orders, products, from, to)
	require.Len(t, m.Products, 2)
	assert.Equal(t, "dear", m.Products[0].ProductID)
	assert.Equal(t, "pantry", m.Categories[0].Category)
}

func TestWindowDefaultsToThirtyDays(t *testing.T) {
	now := time.Now().UTC()
	days, from, _ := Window(0, now)
	assert.Equal(t, DefaultDays, days)
	assert.Equal(t, now.Add(-30*24*time.Hour), from)
}

func TestMetricsToCSVLeavesRedactedCellsEmpty(t *testing.T) {
	m := domain.FinancialMetrics{Days: 30, Summary: &domain.FinancialSummary{TotalOrders: 3, TotalRevenue: cost(12.5)}}
	out, err := MetricsToCSV(m)
	require.NoError(t, err)

	text := string(out)
	assert.True(t, strings.HasPrefix(text, "section,key,value\n"))
	assert.Contains(t, text, "summary,total_revenue,12.50\n")
	assert.Contains(t, text, "summary,total_cost,\n")
	assert.Contains(t, text, "summary,total_orders,3\n")
}
