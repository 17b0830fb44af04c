package finance

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"

	"freshmart/backend/internal/domain"
)

// MetricsToCSV flattens metrics into section,key,value rows. Redacted
// figures are written as empty cells.
func MetricsToCSV(m domain.FinancialMetrics) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	rows := [][]string{
		{"section", "key", "value"},
		{"summary", "from", m.From.Format(time.RFC3339)},
		{"summary", "to", m.To.Format(time.RFC3339)},
		{"summary", "days", strconv.Itoa(m.Days)},
	}
	if s := m.Summary; s != nil {
		rows = append(rows,
			[]string{"summary", "total_orders", strconv.Itoa(s.TotalOrders)},
			[]string{"summary", "total_items", strconv.Itoa(s.TotalItems)},
			[]string{"summary", "average_order_value", formatAmount(&s.AverageOrderValue)},
			[]string{"summary", "total_revenue", formatAmount(s.TotalRevenue)},
			[]string{"summary", "total_cost", formatAmount(s.TotalCost)},
			[]string{"summary", "total_profit", formatAmount(s.TotalProfit)},
			[]string{"summary", "profit_margin", formatAmount(s.ProfitMargin)},
			[]string{"summary", "roi", formatAmount(s.ROI)},
		)
	}
	for _, p := range m.Products {
		rows = append(rows,
			[]string{"product", p.ProductID + "_units_sold", strconv.Itoa(p.UnitsSold)},
			[]string{"product", p.ProductID + "_revenue", formatAmount(p.TotalRevenue)},
			[]string{"product", p.ProductID + "_profit", formatAmount(p.TotalProfit)},
		)
	}
	for _, c := range m.Categories {
		rows = append(rows,
			[]string{"category", c.Category + "_units_sold", strconv.Itoa(c.UnitsSold)},
			[]string{"category", c.Category + "_revenue", formatAmount(c.TotalRevenue)},
			[]string{"category", c.Category + "_profit", formatAmount(c.TotalProfit)},
		)
	}

	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatAmount(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}
