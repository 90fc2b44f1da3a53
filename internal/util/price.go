// Package util provides common utility functions for price calculations.
package util

import (
	"math"

	"github.com/shopspring/decimal"
)

// RoundToTick rounds x to the nearest tick increment, ties away from zero.
// For example, with tick=0.05, 2.18 becomes 2.20 and -20.02 becomes -20.00.
// A zero tick, NaN or infinite input returns x unchanged; a negative tick uses its absolute value.
func RoundToTick(x, tick float64) float64 {
	if tick == 0 || math.IsNaN(tick) || math.IsInf(tick, 0) || math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	t := decimal.NewFromFloat(math.Abs(tick))
	return decimal.NewFromFloat(x).Div(t).Round(0).Mul(t).InexactFloat64()
}

// RoundCents rounds a premium to cent precision, half away from zero on the
// shortest decimal form of x, so 2.675 rounds to 2.68.
func RoundCents(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	return decimal.NewFromFloat(x).Round(2).InexactFloat64()
}
