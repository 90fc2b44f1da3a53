package pricing

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/bryan01993/QuantConnectProjectGit/internal/models"
)

const (
	daysPerYear = 365.0

	ivLow        = 1e-4
	ivHigh       = 5.0
	ivTolerance  = 1e-6
	ivIterations = 200
)

// BSM is a Black-Scholes-Merton pricer with a continuous dividend yield.
type BSM struct {
	RiskFreeRate  float64
	DividendYield float64
}

// NewBSM creates a BSM pricer.
func NewBSM(riskFreeRate, dividendYield float64) *BSM {
	return &BSM{RiskFreeRate: riskFreeRate, DividendYield: dividendYield}
}

// YearFraction returns the time from at to expiry in years, never negative.
func YearFraction(at, expiry time.Time) float64 {
	t := expiry.Sub(at).Hours() / 24 / daysPerYear
	if t < 0 {
		return 0
	}
	return t
}

// Price implements Pricer.
func (m *BSM) Price(c *models.Contract, sigma, spot float64, at time.Time) (float64, error) {
	if err := validate(c, spot); err != nil {
		return 0, err
	}
	t := YearFraction(at, c.Expiry)
	if t == 0 {
		return intrinsic(c, spot), nil
	}
	if sigma <= 0 || math.IsNaN(sigma) {
		return 0, fmt.Errorf("%w: %s volatility %v", ErrInvalidInput, c.Symbol, sigma)
	}
	return m.price(c.Right, spot, c.Strike, t, sigma), nil
}

func (m *BSM) price(right models.Right, s, k, t, sigma float64) float64 {
	dfR := math.Exp(-m.RiskFreeRate * t)
	if s == 0 {
		if right == models.RightCall {
			return 0
		}
		return k * dfR
	}
	dfQ := math.Exp(-m.DividendYield * t)
	d1, d2 := m.d1d2(s, k, t, sigma)
	if right == models.RightCall {
		return s*dfQ*cdf(d1) - k*dfR*cdf(d2)
	}
	return k*dfR*cdf(-d2) - s*dfQ*cdf(-d1)
}

func (m *BSM) d1d2(s, k, t, sigma float64) (float64, float64) {
	sqrtT := math.Sqrt(t)
	d1 := (math.Log(s/k) + (m.RiskFreeRate-m.DividendYield+0.5*sigma*sigma)*t) / (sigma * sqrtT)
	return d1, d1 - sigma*sqrtT
}

// Greeks returns the sensitivities of c. Delta is a fraction, Theta is per
// calendar day, Vega and Rho are per 1% move, Vomma is the change of Vega per 1% move.
func (m *BSM) Greeks(c *models.Contract, sigma, spot float64, at time.Time) (models.Greeks, error) {
	if err := validate(c, spot); err != nil {
		return models.Greeks{}, err
	}
	t := YearFraction(at, c.Expiry)
	if t == 0 || spot == 0 {
		var g models.Greeks
		if intrinsic(c, spot) > 0 {
			g.Delta = c.Right.Direction()
		}
		return g, nil
	}
	if sigma <= 0 || math.IsNaN(sigma) {
		return models.Greeks{}, fmt.Errorf("%w: %s volatility %v", ErrInvalidInput, c.Symbol, sigma)
	}

	s, k, r, q := spot, c.Strike, m.RiskFreeRate, m.DividendYield
	sqrtT := math.Sqrt(t)
	dfR, dfQ := math.Exp(-r*t), math.Exp(-q*t)
	d1, d2 := m.d1d2(s, k, t, sigma)
	nd1 := pdf(d1)
	vegaRaw := s * dfQ * nd1 * sqrtT

	g := models.Greeks{
		Gamma: dfQ * nd1 / (s * sigma * sqrtT),
		Vega:  vegaRaw / 100,
		Vomma: vegaRaw * d1 * d2 / sigma / 10000,
	}
	decay := -s * dfQ * nd1 * sigma / (2 * sqrtT)
	if c.Right == models.RightCall {
		g.Delta = dfQ * cdf(d1)
		g.Theta = (decay - r*k*dfR*cdf(d2) + q*s*dfQ*cdf(d1)) / daysPerYear
		g.Rho = k * t * dfR * cdf(d2) / 100
	} else {
		g.Delta = -dfQ * cdf(-d1)
		g.Theta = (decay + r*k*dfR*cdf(-d2) - q*s*dfQ*cdf(-d1)) / daysPerYear
		g.Rho = -k * t * dfR * cdf(-d2) / 100
	}
	if p := m.price(c.Right, s, k, t, sigma); p > 1e-9 {
		g.Elasticity = g.Delta * s / p
	}
	return g, nil
}

// ImpliedVolatility solves the volatility that reproduces price by bisection.
func (m *BSM) ImpliedVolatility(c *models.Contract, price, spot float64, at time.Time) (float64, error) {
	if err := validate(c, spot); err != nil {
		return 0, err
	}
	t := YearFraction(at, c.Expiry)
	if t == 0 || spot == 0 {
		return 0, fmt.Errorf("%w: %s has no time value", ErrNoConvergence, c.Symbol)
	}
	lo, hi := ivLow, ivHigh
	pLo, pHi := m.price(c.Right, spot, c.Strike, t, lo), m.price(c.Right, spot, c.Strike, t, hi)
	if price < pLo-ivTolerance || price > pHi+ivTolerance {
		return 0, fmt.Errorf("%w: %s price %.4f outside [%.4f, %.4f]", ErrNoConvergence, c.Symbol, price, pLo, pHi)
	}
	for i := 0; i < ivIterations; i++ {
		mid := (lo + hi) / 2
		p := m.price(c.Right, spot, c.Strike, t, mid)
		if math.Abs(p-price) < ivTolerance {
			return mid, nil
		}
		if p < price {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2, nil
}

// SetGreeks implements Pricer. Contracts without an implied volatility get one
// solved from their mid price.
func (m *BSM) SetGreeks(contracts []*models.Contract, at time.Time) error {
	for _, c := range contracts {
		if c == nil {
			continue
		}
		sigma := c.ImpliedVolatility
		if sigma <= 0 {
			iv, err := m.ImpliedVolatility(c, c.MidPrice(), c.UnderlyingPrice, at)
			if err != nil {
				return err
			}
			sigma = iv
		}
		g, err := m.Greeks(c, sigma, c.UnderlyingPrice, at)
		if err != nil {
			return err
		}
		c.ImpliedVolatility = sigma
		c.Greeks = &g
	}
	return nil
}

func validate(c *models.Contract, spot float64) error {
	if c == nil {
		return fmt.Errorf("%w: nil contract", ErrInvalidInput)
	}
	if !c.Right.Valid() {
		return fmt.Errorf("%w: %s unsupported option type %q", ErrInvalidInput, c.Symbol, c.Right)
	}
	if c.Strike <= 0 {
		return fmt.Errorf("%w: %s strike %v", ErrInvalidInput, c.Symbol, c.Strike)
	}
	if spot < 0 || math.IsNaN(spot) || math.IsInf(spot, 0) {
		return fmt.Errorf("%w: %s spot %v", ErrInvalidInput, c.Symbol, spot)
	}
	return nil
}

func intrinsic(c *models.Contract, spot float64) float64 {
	return math.Max(0, c.Right.Direction()*(spot-c.Strike))
}

func cdf(x float64) float64 { return distuv.UnitNormal.CDF(x) }

func pdf(x float64) float64 { return distuv.UnitNormal.Prob(x) }
