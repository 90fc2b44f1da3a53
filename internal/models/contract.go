package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DateLayout is the layout used for expiry strings.
const DateLayout = "2006-01-02"

// SharesPerContract is the number of underlying units one option contract controls.
const SharesPerContract = 100.0

// Right represents the type of option contract
type Right string

const (
	// RightCall represents a call option contract
	RightCall Right = "call"
	// RightPut represents a put option contract
	RightPut Right = "put"
)

// Valid returns true if the Right is one of the defined constants
func (r Right) Valid() bool {
	switch r {
	case RightCall, RightPut:
		return true
	default:
		return false
	}
}

// Direction returns +1 for calls and -1 for puts.
func (r Right) Direction() float64 {
	if r == RightCall {
		return 1
	}
	return -1
}

// ParseRight accepts "call", "put", "c" or "p" in any case.
func ParseRight(s string) (Right, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "c":
		return RightCall, nil
	case "put", "p":
		return RightPut, nil
	default:
		return "", fmt.Errorf("unsupported option type %q", s)
	}
}

// Greeks holds the theoretical sensitivities of one contract.
// Delta is a fraction in [-1, 1]; Vega and Rho are per 1% move.
type Greeks struct {
	Delta      float64 `json:"delta"`
	Gamma      float64 `json:"gamma"`
	Vega       float64 `json:"vega"`
	Theta      float64 `json:"theta"`
	Rho        float64 `json:"rho"`
	Vomma      float64 `json:"vomma"`
	Elasticity float64 `json:"elasticity"`
}

// Contract is a read-only market snapshot of a single option contract.
type Contract struct {
	Greeks            *Greeks   `json:"greeks,omitempty"`
	Expiry            time.Time `json:"expiry"`
	Symbol            string    `json:"symbol"`
	Underlying        string    `json:"underlying"`
	Right             Right     `json:"right"`
	Strike            float64   `json:"strike"`
	Bid               float64   `json:"bid"`
	Ask               float64   `json:"ask"`
	UnderlyingPrice   float64   `json:"underlying_price"`
	ImpliedVolatility float64   `json:"implied_volatility"`
}

// MidPrice returns the midpoint of the bid/ask quote.
func (c *Contract) MidPrice() float64 {
	return (c.Bid + c.Ask) / 2
}

// BidAskSpread returns the width of the quote.
func (c *Contract) BidAskSpread() float64 {
	return math.Abs(c.Ask - c.Bid)
}

// ExpiryString returns the expiry formatted with DateLayout.
func (c *Contract) ExpiryString() string {
	return c.Expiry.Format(DateLayout)
}

// DTE returns the calendar days between now and expiry, clamped at zero.
func (c *Contract) DTE(now time.Time) int {
	return DaysBetween(now, c.Expiry)
}

// DeltaPct returns the absolute delta expressed in percent (0.16 -> 16).
func (c *Contract) DeltaPct() float64 {
	if c.Greeks == nil {
		return math.NaN()
	}
	return math.Abs(c.Greeks.Delta) * 100
}

// DaysBetween returns whole calendar days from `from` to `to`, clamped at zero.
func DaysBetween(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	d := int(t.Sub(f).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// AccountSnapshot is the read-only portfolio state used for sizing.
type AccountSnapshot struct {
	TotalPortfolioValue float64 `json:"total_portfolio_value" yaml:"total_portfolio_value"`
	MarginRemaining     float64 `json:"margin_remaining" yaml:"margin_remaining"`
	TotalProfit         float64 `json:"total_profit" yaml:"total_profit"`
	InitialAccountValue float64 `json:"initial_account_value" yaml:"initial_account_value"`
}
