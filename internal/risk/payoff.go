// Package risk computes worst-case loss, margin proxies and profit targets
// for multi-leg option orders. All amounts are per share of one order unit
// unless a quantity is applied.
package risk

import (
	"math"

	"github.com/bryan01993/QuantConnectProjectGit/internal/models"
)

// farSpotMultiple approximates spot → ∞ as a multiple of the underlying price.
const farSpotMultiple = 10.0

// LegPayoff is the expiry payoff of one leg at spot.
func LegPayoff(l models.Leg, spot float64) float64 {
	c := l.Contract
	return float64(l.Side) * math.Max(0, c.Right.Direction()*(spot-c.Strike))
}

// Payoff is the aggregate expiry payoff of legs at spot.
func Payoff(legs []models.Leg, spot float64) float64 {
	total := 0.0
	for _, l := range legs {
		total += LegPayoff(l, spot)
	}
	return total
}

// Breakpoints returns the spots where the piecewise-linear payoff can reach
// its minimum: zero, every strike, and a far spot standing in for infinity.
func Breakpoints(legs []models.Leg) []float64 {
	points := make([]float64, 0, len(legs)+2)
	points = append(points, 0)
	far := 0.0
	for _, l := range legs {
		points = append(points, l.Contract.Strike)
		far = math.Max(far, l.Contract.UnderlyingPrice)
		// Strikes can sit above the underlying; keep the far point beyond all of them
		far = math.Max(far, l.Contract.Strike)
	}
	return append(points, far*farSpotMultiple)
}

// MaxLoss returns the most negative expiry payoff over all breakpoints, capped
// at zero. The result never reports a gain and does not depend on leg order.
func MaxLoss(legs []models.Leg) float64 {
	if len(legs) == 0 {
		return 0
	}
	worst := math.Inf(1)
	for _, s := range Breakpoints(legs) {
		worst = math.Min(worst, Payoff(legs, s))
	}
	return math.Min(0, worst)
}

// TReg is the simplified Reg-T margin proxy: min(0, mid + maxLoss) × qty,
// with mid positive for a net credit.
func TReg(orderMidPrice, maxLoss float64, quantity int) float64 {
	return math.Min(0, orderMidPrice+maxLoss) * float64(quantity)
}

// StopLoss returns the stop level of a credit order: -multiplier × |mid|,
// no worse than mid + maxLoss when capped. Debit orders have no stop.
func StopLoss(credit bool, orderMidPrice, maxLoss, multiplier float64, capStopLoss bool) *float64 {
	if !credit || multiplier <= 0 {
		return nil
	}
	stop := -multiplier * math.Abs(orderMidPrice)
	if capStopLoss {
		stop = math.Max(stop, orderMidPrice+maxLoss)
	}
	return &stop
}
