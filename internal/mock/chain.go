// Package mock generates synthetic option chains for paper runs.
package mock

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/bryan01993/QuantConnectProjectGit/internal/config"
	"github.com/bryan01993/QuantConnectProjectGit/internal/models"
	"github.com/bryan01993/QuantConnectProjectGit/internal/pricing"
	"github.com/bryan01993/QuantConnectProjectGit/internal/util"
)

// minPremium is the lowest mid quoted for any strike.
const minPremium = 0.05

// secureFloat64 generates a cryptographically secure random float64 between 0 and 1
func secureFloat64() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

// ChainProvider quotes every configured expiry around a moving spot.
// Contracts carry an implied volatility but no Greeks; those are filled by
// the pricer when a strategy looks at the chain.
type ChainProvider struct {
	mu     sync.Mutex
	cfg    config.MarketDataConfig
	pricer pricing.Pricer
	spot   float64
	random func() float64
}

// NewChainProvider creates a provider starting at cfg.Spot.
func NewChainProvider(cfg config.MarketDataConfig, pricer pricing.Pricer) *ChainProvider {
	return &ChainProvider{
		cfg:    cfg,
		pricer: pricer,
		spot:   cfg.Spot,
		random: secureFloat64,
	}
}

// Spot returns the current underlying price.
func (p *ChainProvider) Spot() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.spot
}

// Refresh moves the spot by up to ±Drift and returns the new value.
func (p *ChainProvider) Refresh() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cfg.Drift > 0 {
		p.spot += (p.random() - 0.5) * 2 * p.cfg.Drift
		p.spot = math.Max(p.cfg.StrikeInterval, p.spot)
	}
	return p.spot
}

// Volatility returns the skewed volatility of strike: out-of-the-money puts
// carry Skew per unit of log-moneyness on top of the at-the-money level.
func (p *ChainProvider) Volatility(strike, spot float64) float64 {
	return p.cfg.Volatility + p.cfg.Skew*math.Max(0, -math.Log(strike/spot))
}

// Chain returns puts and calls for every expiry, priced at now.
func (p *ChainProvider) Chain(now time.Time) ([]*models.Contract, error) {
	spot := p.Spot()
	step := p.cfg.StrikeInterval
	center := math.Round(spot/step) * step

	chain := make([]*models.Contract, 0, len(p.cfg.Expiries)*(4*p.cfg.StrikeCount+2))
	for _, dte := range p.cfg.Expiries {
		expiry := time.Date(now.Year(), now.Month(), now.Day()+dte, 16, 0, 0, 0, now.Location())
		for i := -p.cfg.StrikeCount; i <= p.cfg.StrikeCount; i++ {
			strike := center + float64(i)*step
			if strike <= 0 {
				continue
			}
			sigma := p.Volatility(strike, spot)
			for _, right := range []models.Right{models.RightPut, models.RightCall} {
				c, err := p.quote(right, strike, expiry, sigma, spot, now)
				if err != nil {
					return nil, err
				}
				chain = append(chain, c)
			}
		}
	}
	return chain, nil
}

func (p *ChainProvider) quote(right models.Right, strike float64, expiry time.Time, sigma, spot float64, now time.Time) (*models.Contract, error) {
	c := &models.Contract{
		Symbol:            Symbol(p.cfg.Underlying, expiry, right, strike),
		Underlying:        p.cfg.Underlying,
		Right:             right,
		Strike:            strike,
		Expiry:            expiry,
		UnderlyingPrice:   spot,
		ImpliedVolatility: sigma,
	}
	price, err := p.pricer.Price(c, sigma, spot, now)
	if err != nil {
		return nil, fmt.Errorf("pricing %s: %w", c.Symbol, err)
	}
	mid := math.Max(minPremium, util.RoundCents(price))
	c.Bid = util.RoundCents(math.Max(0, mid-p.cfg.HalfSpread))
	c.Ask = util.RoundCents(mid + p.cfg.HalfSpread)
	return c, nil
}

// Symbol builds an OCC-style option symbol.
func Symbol(underlying string, expiry time.Time, right models.Right, strike float64) string {
	r := "C"
	if right == models.RightPut {
		r = "P"
	}
	return fmt.Sprintf("%s%s%s%08d", underlying, expiry.Format("060102"), r, int(math.Round(strike*1000)))
}
