package strategy

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bryan01993/QuantConnectProjectGit/internal/calendar"
	"github.com/bryan01993/QuantConnectProjectGit/internal/config"
	"github.com/bryan01993/QuantConnectProjectGit/internal/ledger"
	"github.com/bryan01993/QuantConnectProjectGit/internal/models"
	"github.com/bryan01993/QuantConnectProjectGit/internal/monitoring"
)

var (
	testNow    = time.Date(2024, 2, 1, 15, 0, 0, 0, time.UTC)
	testExpiry = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
)

// intrinsicPricer values contracts at intrinsic value and fills a fixed
// Greeks set on contracts that have none.
type intrinsicPricer struct {
	greeksErr error
	priceErr  error
}

func (p *intrinsicPricer) Price(c *models.Contract, _ float64, spot float64, _ time.Time) (float64, error) {
	if p.priceErr != nil {
		return 0, p.priceErr
	}
	return math.Max(0, c.Right.Direction()*(spot-c.Strike)), nil
}

func (p *intrinsicPricer) SetGreeks(contracts []*models.Contract, _ time.Time) error {
	if p.greeksErr != nil {
		return p.greeksErr
	}
	for _, c := range contracts {
		if c.ImpliedVolatility <= 0 {
			c.ImpliedVolatility = 0.2
		}
		if c.Greeks == nil {
			c.Greeks = &models.Greeks{Delta: c.Right.Direction() * 0.5, Theta: -0.1}
		}
	}
	return nil
}

type mockAccount struct {
	mock.Mock
}

func (m *mockAccount) Snapshot() models.AccountSnapshot {
	args := m.Called()
	return args.Get(0).(models.AccountSnapshot)
}

func defaultAccount() models.AccountSnapshot {
	return models.AccountSnapshot{
		TotalPortfolioValue: 112000,
		MarginRemaining:     80000,
		TotalProfit:         12000,
		InitialAccountValue: 100000,
	}
}

func newAccount(snap models.AccountSnapshot) *mockAccount {
	a := &mockAccount{}
	a.On("Snapshot").Return(snap)
	return a
}

type fixture struct {
	builder *Builder
	ledger  *ledger.Ledger
	ids     *models.OrderIDSequence
	pricer  *intrinsicPricer
	account *mockAccount
}

func newFixture(t *testing.T, params config.StrategyParameters) *fixture {
	t.Helper()
	return newFixtureWith(t, "Put Spread", params, &intrinsicPricer{}, newAccount(defaultAccount()), models.NewOrderIDSequence())
}

func newFixtureWith(t *testing.T, name string, params config.StrategyParameters, pricer *intrinsicPricer, account *mockAccount, ids *models.OrderIDSequence) *fixture {
	t.Helper()
	l := ledger.New(ledger.Config{Strategy: name, IncludeCancelledOrders: params.IncludeCancelledOrders}, nil, nil)
	b, err := NewBuilder(name, params, Deps{
		Pricer:   pricer,
		Calendar: calendar.New(time.UTC, nil),
		Account:  account,
		IDs:      ids,
		Ledger:   l,
		Metrics:  monitoring.NewMetrics(nil),
		Clock:    func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return &fixture{builder: b, ledger: l, ids: ids, pricer: pricer, account: account}
}

func quoted(right models.Right, strike, bid, ask float64) *models.Contract {
	return &models.Contract{
		Symbol:          fmt.Sprintf("SPX%s%s%.0f", testExpiry.Format("060102"), string(right[0]), strike),
		Underlying:      "SPX",
		Right:           right,
		Strike:          strike,
		Expiry:          testExpiry,
		Bid:             bid,
		Ask:             ask,
		UnderlyingPrice: 4000,
	}
}

// putSpreadLegs is short 3800 put (mid 10.20) and long 3750 put (mid 8.00):
// a 2.20 credit on a 50 point wide spread.
func putSpreadLegs() []models.Leg {
	return []models.Leg{
		{Contract: quoted(models.RightPut, 3800, 10.0, 10.4), Side: -1},
		{Contract: quoted(models.RightPut, 3750, 7.9, 8.1), Side: 1},
	}
}

// chainQuote is a contract with Greeks already set; the mid is a quarter of the delta.
func chainQuote(right models.Right, strike, deltaPct float64, expiry time.Time) *models.Contract {
	mid := deltaPct / 4
	c := quoted(right, strike, mid-0.05, mid+0.05)
	c.Symbol = fmt.Sprintf("SPX%s%s%.0f", expiry.Format("060102"), string(right[0]), strike)
	c.Expiry = expiry
	c.ImpliedVolatility = 0.18
	c.Greeks = &models.Greeks{Delta: right.Direction() * deltaPct / 100}
	return c
}

// testChain lists puts and calls from 3700 to 4300 around an underlying of 4000.
func testChain(expiry time.Time) []*models.Contract {
	puts := map[float64]float64{3700: 8, 3750: 12, 3800: 18, 3850: 25, 3900: 32, 3950: 40, 4000: 50}
	calls := map[float64]float64{4000: 50, 4050: 38, 4100: 30, 4150: 22, 4200: 15, 4250: 10, 4300: 6}
	var chain []*models.Contract
	for k, d := range puts {
		chain = append(chain, chainQuote(models.RightPut, k, d, expiry))
	}
	for k, d := range calls {
		chain = append(chain, chainQuote(models.RightCall, k, d, expiry))
	}
	return chain
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool        { return &v }
func stringPtr(v string) *string  { return &v }
