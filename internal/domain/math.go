package domain

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PercentChange returns (current - base) / base * 100.
// A non-positive base yields zero rather than an error.
func PercentChange(current, base decimal.Decimal) decimal.Decimal {
	if !base.IsPositive() {
		return decimal.Zero
	}
	return current.Sub(base).Div(base).Mul(hundred)
}

// RoundDisplay rounds a value to two decimal places for presentation (exports, logs).
func RoundDisplay(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
