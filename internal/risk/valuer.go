package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/bryan01993/QuantConnectProjectGit/internal/config"
	"github.com/bryan01993/QuantConnectProjectGit/internal/models"
	"github.com/bryan01993/QuantConnectProjectGit/internal/pricing"
)

// Valuer projects position values with a theoretical pricer.
type Valuer struct {
	pricer pricing.Pricer
}

// NewValuer creates a Valuer.
func NewValuer(p pricing.Pricer) *Valuer {
	return &Valuer{pricer: p}
}

// PositionValue returns the P&L per order unit of holding legs at spot and
// time at: Σ side × theoretical price, plus the net premium collected at entry.
func (v *Valuer) PositionValue(legs []models.Leg, openPremium, spot float64, at time.Time) (float64, error) {
	value := openPremium
	for _, l := range legs {
		p, err := v.pricer.Price(l.Contract, l.Contract.ImpliedVolatility, spot, at)
		if err != nil {
			return 0, fmt.Errorf("pricing %s at spot %.2f: %w", l.Contract.Symbol, spot, err)
		}
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return 0, fmt.Errorf("pricing %s at spot %.2f: %w: non-finite price", l.Contract.Symbol, spot, pricing.ErrInvalidInput)
		}
		value += float64(l.Side) * p
	}
	return value, nil
}

// StressMargin values the position with the underlying shocked down and up
// by stress (a fraction) at time at and returns min(0, down, up) × quantity.
func (v *Valuer) StressMargin(legs []models.Leg, openPremium, stress float64, quantity int, at time.Time) (float64, error) {
	if len(legs) == 0 {
		return 0, nil
	}
	spot := legs[0].Contract.UnderlyingPrice
	down, err := v.PositionValue(legs, openPremium, spot*(1-stress), at)
	if err != nil {
		return 0, err
	}
	up, err := v.PositionValue(legs, openPremium, spot*(1+stress), at)
	if err != nil {
		return 0, err
	}
	return math.Min(0, math.Min(down, up)) * float64(quantity), nil
}

// ProfitTargetInput carries what the profit target formulas need.
type ProfitTargetInput struct {
	At          time.Time
	ThetaDays   *int
	Method      config.ProfitTargetMethod
	Legs        []models.Leg
	Percent     float64
	OpenPremium float64
	TReg        float64
	Margin      float64
	Quantity    int
}

// ProfitTarget returns the profit target for the configured method, or nil
// when the method stores no explicit target: Premium, an unknown method, or
// Theta without a positive horizon.
func (v *Valuer) ProfitTarget(in ProfitTargetInput) (*float64, error) {
	qty := float64(in.Quantity)
	var target float64
	switch in.Method.Canonical() {
	case config.ProfitTargetTheta:
		if in.ThetaDays == nil || *in.ThetaDays <= 0 || len(in.Legs) == 0 {
			return nil, nil
		}
		spot := in.Legs[0].Contract.UnderlyingPrice
		projected, err := v.PositionValue(in.Legs, in.OpenPremium, spot, in.At.AddDate(0, 0, *in.ThetaDays))
		if err != nil {
			return nil, err
		}
		target = in.Percent * math.Abs(projected) * qty
	case config.ProfitTargetTReg:
		target = in.Percent * math.Abs(in.TReg) * qty
	case config.ProfitTargetMargin:
		target = in.Percent * math.Abs(in.Margin) * qty
	default:
		return nil, nil
	}
	return &target, nil
}
