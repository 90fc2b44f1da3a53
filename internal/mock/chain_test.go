package mock

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/bryan01993/QuantConnectProjectGit/internal/config"
	"github.com/bryan01993/QuantConnectProjectGit/internal/contracts"
	"github.com/bryan01993/QuantConnectProjectGit/internal/models"
	"github.com/bryan01993/QuantConnectProjectGit/internal/pricing"
)

var testNow = time.Date(2024, 2, 1, 15, 0, 0, 0, time.UTC)

func testConfig() config.MarketDataConfig {
	return config.MarketDataConfig{
		Underlying:     "SPX",
		Spot:           4000,
		Volatility:     0.18,
		Skew:           0.4,
		StrikeInterval: 25,
		StrikeCount:    8,
		Expiries:       []int{14, 45},
		HalfSpread:     0.05,
	}
}

func TestChainProvider_Chain(t *testing.T) {
	p := NewChainProvider(testConfig(), pricing.NewBSM(0.045, 0.013))
	chain, err := p.Chain(testNow)
	if err != nil {
		t.Fatalf("Chain failed: %v", err)
	}

	// 17 strikes × 2 rights × 2 expiries
	if len(chain) != 68 {
		t.Fatalf("Expected 68 contracts, got %d", len(chain))
	}

	expiries := contracts.Expiries(chain)
	if len(expiries) != 2 || models.DaysBetween(testNow, expiries[1]) != 45 {
		t.Errorf("Unexpected expiries: %v", expiries)
	}

	for _, c := range chain {
		if c.Bid < 0 || c.Ask <= c.Bid {
			t.Errorf("%s: invalid quote %.2f/%.2f", c.Symbol, c.Bid, c.Ask)
		}
		if c.Greeks != nil {
			t.Errorf("%s: Greeks should be left to the pricer", c.Symbol)
		}
		if c.ImpliedVolatility < 0.18 {
			t.Errorf("%s: volatility %.4f below the at-the-money level", c.Symbol, c.ImpliedVolatility)
		}
	}

	atm := contracts.FindByStrike(contracts.FilterByExpiry(chain, expiries[1]), models.RightPut, 4000)
	if atm == nil {
		t.Fatal("Expected an at-the-money put")
	}
	if atm.Symbol != "SPX240317P04000000" {
		t.Errorf("Unexpected symbol %s", atm.Symbol)
	}
	if atm.MidPrice() < 50 || atm.MidPrice() > 200 {
		t.Errorf("At-the-money 45 day put priced at %.2f", atm.MidPrice())
	}
}

func TestChainProvider_GreeksFromPricer(t *testing.T) {
	bsm := pricing.NewBSM(0.045, 0.013)
	p := NewChainProvider(testConfig(), bsm)
	chain, err := p.Chain(testNow)
	if err != nil {
		t.Fatal(err)
	}
	if err := bsm.SetGreeks(chain, testNow); err != nil {
		t.Fatalf("SetGreeks failed on the synthetic chain: %v", err)
	}
	put := contracts.FindNearestByDelta(chain, models.RightPut, 20, true)
	if put == nil || put.Strike >= 4000 {
		t.Errorf("Expected an out-of-the-money 20 delta put, got %+v", put)
	}
}

func TestChainProvider_Skew(t *testing.T) {
	p := NewChainProvider(testConfig(), pricing.NewBSM(0, 0))
	if v := p.Volatility(4000, 4000); v != 0.18 {
		t.Errorf("Expected flat at-the-money volatility, got %v", v)
	}
	if v := p.Volatility(4400, 4000); v != 0.18 {
		t.Errorf("Expected no skew on calls above spot, got %v", v)
	}
	want := 0.18 + 0.4*math.Log(4000.0/3600.0)
	if v := p.Volatility(3600, 4000); math.Abs(v-want) > 1e-12 {
		t.Errorf("Expected %v, got %v", want, v)
	}
}

func TestChainProvider_Refresh(t *testing.T) {
	cfg := testConfig()
	p := NewChainProvider(cfg, pricing.NewBSM(0, 0))
	if got := p.Refresh(); got != 4000 {
		t.Errorf("Spot should not move without drift, got %v", got)
	}

	cfg.Drift = 10
	p = NewChainProvider(cfg, pricing.NewBSM(0, 0))
	p.random = func() float64 { return 1 }
	if got := p.Refresh(); got != 4010 {
		t.Errorf("Expected spot 4010, got %v", got)
	}
	p.random = func() float64 { return 0 }
	if got := p.Refresh(); got != 4000 {
		t.Errorf("Expected spot 4000, got %v", got)
	}

	for i := 0; i < 100; i++ {
		p.random = secureFloat64
		if s := p.Refresh(); s < cfg.StrikeInterval {
			t.Fatalf("Spot fell below the first strike: %v", s)
		}
	}
}

type brokenPricer struct{}

func (brokenPricer) Price(*models.Contract, float64, float64, time.Time) (float64, error) {
	return 0, errors.New("model offline")
}

func (brokenPricer) SetGreeks([]*models.Contract, time.Time) error { return nil }

func TestChainProvider_PricingError(t *testing.T) {
	p := NewChainProvider(testConfig(), brokenPricer{})
	if _, err := p.Chain(testNow); err == nil {
		t.Error("Expected pricing error to propagate")
	}
}

func TestSymbol(t *testing.T) {
	exp := time.Date(2024, 3, 15, 16, 0, 0, 0, time.UTC)
	if got := Symbol("SPY", exp, models.RightCall, 452.5); got != "SPY240315C00452500" {
		t.Errorf("Unexpected symbol %s", got)
	}
}
