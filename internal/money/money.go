// Package money keeps currency arithmetic off binary floating point. Values
// travel as float64 on the wire and in storage and are computed as decimals.
package money

import "github.com/shopspring/decimal"

const places = 2

func D(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

// Float rounds d to cents.
func Float(d decimal.Decimal) float64 {
	f, _ := d.Round(places).Float64()
	return f
}

func Round(v float64) float64 {
	return Float(D(v))
}

func Add(a, b float64) float64 {
	return Float(D(a).Add(D(b)))
}

func Sub(a, b float64) float64 {
	return Float(D(a).Sub(D(b)))
}

// Line is price times quantity.
func Line(price float64, qty int) decimal.Decimal {
	return D(price).Mul(decimal.NewFromInt(int64(qty)))
}

// Percent returns part/whole*100, or zero when whole is zero.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(decimal.NewFromInt(100))
}
