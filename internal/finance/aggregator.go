// Package finance computes revenue, cost and profit read models from orders
// and the product catalog. Results are always complete; callers redact them
// per role before serving.
package finance

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"freshmart/backend/internal/domain"
	"freshmart/backend/internal/money"
)

const DefaultDays = 30

// Window returns the trailing days-long window ending at now. Non-positive
// day counts fall back to DefaultDays.
func Window(days int, now time.Time) (int, time.Time, time.Time) {
	if days < 1 {
		days = DefaultDays
	}
	return days, now.Add(-time.Duration(days) * 24 * time.Hour), now
}

type bucket struct {
	units   int
	revenue decimal.Decimal
	cost    decimal.Decimal
}

func (b *bucket) add(units int, revenue, cost decimal.Decimal) {
	b.units += units
	b.revenue = b.revenue.Add(revenue)
	b.cost = b.cost.Add(cost)
}

type figures struct {
	revenue, cost, profit, margin, roi *float64
}

func (b bucket) figures() figures {
	profit := b.revenue.Sub(b.cost)
	f := func(d decimal.Decimal) *float64 {
		v := money.Float(d)
		return &v
	}
	return figures{
		revenue: f(b.revenue),
		cost:    f(b.cost),
		profit:  f(profit),
		margin:  f(money.Percent(profit, b.revenue)),
		roi:     f(money.Percent(profit, b.cost)),
	}
}

// Aggregate builds the unredacted metrics for orders created within
// [from, to]. Cancelled orders are ignored. A line is priced at its recorded
// price, or the current catalog price when none was recorded, and costed at
// the product purchase price. Lines whose product no longer exists are
// skipped.
func Aggregate(orders []domain.Order, products []domain.Product, from, to time.Time) domain.FinancialMetrics {
	catalog := make(map[string]domain.Product, len(products))
	for _, p := range products {
		catalog[p.ID] = p
	}

	var (
		total       bucket
		orderCount  int
		orderTotals = decimal.Zero
		byProduct   = map[string]*bucket{}
		byCategory  = map[string]*bucket{}
	)

	for _, order := range orders {
		if order.CreatedAt.Before(from) || order.CreatedAt.After(to) {
			continue
		}
		if order.Status == domain.OrderStatusCancelled {
			continue
		}
		orderCount++
		orderTotals = orderTotals.Add(money.D(order.Total))

		for _, line := range order.Items {
			product, ok := catalog[line.ProductID]
			if !ok {
				continue
			}
			price := line.Price
			if price == 0 {
				price = product.Price
			}
			revenue := money.Line(price, line.Quantity)
			cost := money.Line(product.UnitCost(), line.Quantity)

			total.add(line.Quantity, revenue, cost)
			if byProduct[product.ID] == nil {
				byProduct[product.ID] = &bucket{}
			}
			byProduct[product.ID].add(line.Quantity, revenue, cost)
			category := strings.TrimSpace(product.Category)
			if byCategory[category] == nil {
				byCategory[category] = &bucket{}
			}
			byCategory[category].add(line.Quantity, revenue, cost)
		}
	}

	sum := total.figures()
	avg := decimal.Zero
	if orderCount > 0 {
		avg = orderTotals.Div(decimal.NewFromInt(int64(orderCount)))
	}

	metrics := domain.FinancialMetrics{
		From: from,
		To:   to,
		Summary: &domain.FinancialSummary{
			TotalRevenue:      sum.revenue,
			TotalCost:         sum.cost,
			TotalProfit:       sum.profit,
			ProfitMargin:      sum.margin,
			ROI:               sum.roi,
			AverageOrderValue: money.Float(avg),
			TotalOrders:       orderCount,
			TotalItems:        total.units,
		},
		Products:   make([]domain.ProductMetrics, 0, len(byProduct)),
		Categories: make([]domain.CategoryMetrics, 0, len(byCategory)),
	}

	for id, b := range byProduct {
		product := catalog[id]
		f := b.figures()
		metrics.Products = append(metrics.Products, domain.ProductMetrics{
			ProductID:    id,
			Name:         product.Name,
			Category:     product.Category,
			UnitsSold:    b.units,
			TotalRevenue: f.revenue,
			TotalCost:    f.cost,
			TotalProfit:  f.profit,
			ProfitMargin: f.margin,
			ROI:          f.roi,
		})
	}
	slices.SortFunc(metrics.Products, func(a, b domain.ProductMetrics) int {
		if c := compareDesc(*a.TotalRevenue, *b.TotalRevenue); c != 0 {
			return c
		}
		return strings.Compare(a.ProductID, b.ProductID)
	})

	for name, b := range byCategory {
		f := b.figures()
		metrics.Categories = append(metrics.Categories, domain.CategoryMetrics{
			Category:     name,
			UnitsSold:    b.units,
			TotalRevenue: f.revenue,
			TotalCost:    f.cost,
			TotalProfit:  f.profit,
			ProfitMargin: f.margin,
			ROI:          f.roi,
		})
	}
	slices.SortFunc(metrics.Categories, func(a, b domain.CategoryMetrics) int {
		if c := compareDesc(*a.TotalRevenue, *b.TotalRevenue); c != 0 {
			return c
		}
		return strings.Compare(a.Category, b.Category)
	})

	return metrics
}

func compareDesc(a, b float64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	default:
		return 0
	}
}
