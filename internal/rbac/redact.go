package rbac

import (
	"reflect"
	"strings"

	"freshmart/backend/internal/domain"
)

// SensitiveFields are the financial figures hidden from roles without
// financial access. Generic documents are matched on these JSON keys.
var SensitiveFields = []string{"totalRevenue", "totalCost", "totalProfit", "profitMargin", "roi"}

const purchasePriceField = "purchasePrice"

// FilterFinancialData returns data unchanged for roles with financial access.
// For every other role it returns a copy whose sensitive fields are null,
// with key presence and all non-financial fields preserved. Input is never
// mutated. Nil input comes back as is.
//
// Types without a dedicated case are walked: map keys and struct fields
// (by JSON name) that match a sensitive field or purchasePrice are set to
// the zero value of their type, which is null for pointers and interfaces.
func FilterFinancialData[T any](data T, role domain.Role) T {
	if CanAccessFinancialData(role) {
		return data
	}

	var out any
	switch v := any(data).(type) {
	case *domain.FinancialMetrics:
		if v == nil {
			return data
		}
		redacted := redactMetrics(*v)
		out = &redacted
	case domain.FinancialMetrics:
		out = redactMetrics(v)
	case []domain.FinancialMetrics:
		if v == nil {
			return data
		}
		items := make([]domain.FinancialMetrics, len(v))
		for i := range v {
			items[i] = redactMetrics(v[i])
		}
		out = items
	case []*domain.FinancialMetrics:
		if v == nil {
			return data
		}
		items := make([]*domain.FinancialMetrics, len(v))
		for i, m := range v {
			if m == nil {
				continue
			}
			redacted := redactMetrics(*m)
			items[i] = &redacted
		}
		out = items
	case *domain.FinancialSummary:
		if v == nil {
			return data
		}
		redacted := redactSummary(*v)
		out = &redacted
	case domain.FinancialSummary:
		out = redactSummary(v)
	case domain.ProductMetrics:
		out = redactProductMetrics(v)
	case []domain.ProductMetrics:
		out = redactProductMetricsList(v)
	case domain.CategoryMetrics:
		out = redactCategoryMetrics(v)
	case []domain.CategoryMetrics:
		out = redactCategoryMetricsList(v)
	case domain.DashboardOverview:
		out = redactDashboard(v)
	case *domain.DashboardOverview:
		if v == nil {
			return data
		}
		redacted := redactDashboard(*v)
		out = &redacted
	case domain.Product:
		v.PurchasePrice = nil
		out = v
	case *domain.Product:
		if v == nil {
			return data
		}
		cp := *v
		cp.PurchasePrice = nil
		out = &cp
	case []domain.Product:
		if v == nil {
			return data
		}
		items := make([]domain.Product, len(v))
		for i, p := range v {
			p.PurchasePrice = nil
			items[i] = p
		}
		out = items
	default:
		value := reflect.ValueOf(data)
		if !value.IsValid() {
			return data
		}
		out = redactValue(value).Interface()
	}
	return out.(T)
}

func redactMetrics(m domain.FinancialMetrics) domain.FinancialMetrics {
	if m.Summary != nil {
		summary := redactSummary(*m.Summary)
		m.Summary = &summary
	}
	m.Products = redactProductMetricsList(m.Products)
	m.Categories = redactCategoryMetricsList(m.Categories)
	return m
}

func redactSummary(s domain.FinancialSummary) domain.FinancialSummary {
	s.TotalRevenue, s.TotalCost, s.TotalProfit, s.ProfitMargin, s.ROI = nil, nil, nil, nil, nil
	return s
}

func redactProductMetrics(p domain.ProductMetrics) domain.ProductMetrics {
	p.TotalRevenue, p.TotalCost, p.TotalProfit, p.ProfitMargin, p.ROI = nil, nil, nil, nil, nil
	return p
}

func redactProductMetricsList(items []domain.ProductMetrics) []domain.ProductMetrics {
	if items == nil {
		return nil
	}
	out := make([]domain.ProductMetrics, len(items))
	for i, p := range items {
		out[i] = redactProductMetrics(p)
	}
	return out
}

func redactCategoryMetrics(c domain.CategoryMetrics) domain.CategoryMetrics {
	c.TotalRevenue, c.TotalCost, c.TotalProfit, c.ProfitMargin, c.ROI = nil, nil, nil, nil, nil
	return c
}

func redactCategoryMetricsList(items []domain.CategoryMetrics) []domain.CategoryMetrics {
	if items == nil {
		return nil
	}
	out := make([]domain.CategoryMetrics, len(items))
	for i, c := range items {
		out[i] = redactCategoryMetrics(c)
	}
	return out
}

func redactDashboard(d domain.DashboardOverview) domain.DashboardOverview {
	d.TotalRevenue, d.TotalCost, d.TotalProfit, d.ProfitMargin, d.ROI = nil, nil, nil, nil, nil
	return d
}

func redactValue(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type().Elem())
		out.Elem().Set(redactValue(v.Elem()))
		return out
	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(redactValue(v.Elem()))
		return out
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		zero := reflect.Zero(v.Type().Elem())
		iter := v.MapRange()
		for iter.Next() {
			key := iter.Key()
			if key.Kind() == reflect.String && isRestrictedKey(key.String()) {
				out.SetMapIndex(key, zero)
				continue
			}
			out.SetMapIndex(key, redactValue(iter.Value()))
		}
		return out
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(redactValue(v.Index(i)))
		}
		return out
	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(redactValue(v.Index(i)))
		}
		return out
	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		for i := 0; i < v.NumField(); i++ {
			field := v.Type().Field(i)
			if !field.IsExported() {
				continue
			}
			if isRestrictedKey(jsonName(field)) {
				out.Field(i).Set(reflect.Zero(field.Type))
				continue
			}
			out.Field(i).Set(redactValue(v.Field(i)))
		}
		return out
	default:
		return v
	}
}

func jsonName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	if name == "" {
		return field.Name
	}
	return name
}

func isRestrictedKey(key string) bool {
	if strings.EqualFold(key, purchasePriceField) {
		return true
	}
	for _, field := range SensitiveFields {
		if strings.EqualFold(key, field) {
			return true
		}
	}
	return false
}
