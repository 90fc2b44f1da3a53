package strategy

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan01993/QuantConnectProjectGit/internal/config"
	"github.com/bryan01993/QuantConnectProjectGit/internal/models"
)

func spreadParams() config.StrategyParameters {
	p := config.Defaults()
	p.Slippage = 0.01
	return p
}

func TestBuildOrder_PutSpread(t *testing.T) {
	f := newFixture(t, spreadParams())

	order, err := f.builder.BuildOrder(putSpreadLegs(), "Put Spread", true)
	require.NoError(t, err)
	require.NotNil(t, order)

	assert.Equal(t, int64(1), order.ID)
	assert.Equal(t, "PutSpread-1", order.Tag)
	assert.Equal(t, "PutSpread", order.StrategyID)
	assert.Equal(t, "Put Spread", order.Strategy)
	assert.Equal(t, models.StateConstructed, order.GetCurrentState())
	assert.True(t, order.Credit)

	// Expiry metadata
	assert.Equal(t, "2024-03-15", order.ExpiryStr)
	assert.Equal(t, testExpiry, order.ExpiryLastTradingDay)
	assert.Equal(t, time.Date(2024, 3, 15, 15, 45, 0, 0, time.UTC), order.ExpiryMarketCloseCutoff)

	// Economics
	assert.InDelta(t, 2.20, order.OrderMidPrice, 1e-9)
	assert.InDelta(t, 0.60, order.BidAskSpread, 1e-9)
	assert.InDelta(t, 0.02, order.TotalSlippage, 1e-9)
	assert.InDelta(t, 2.18, order.LimitPrice, 1e-9)
	assert.InDelta(t, 2.18, order.QtyMidPrice, 1e-9)
	assert.Equal(t, 1, order.Quantity)
	assert.Equal(t, 1, order.MaxOrderQuantity)
	assert.Nil(t, order.TargetPremium)

	// Risk
	assert.InDelta(t, -50, order.MaxLoss, 1e-9)
	assert.InDelta(t, -47.8, order.TReg, 1e-9)
	assert.InDelta(t, -47.8, order.PortfolioMargin, 1e-9, "stress down 12% puts both legs in the money")
	require.NotNil(t, order.StopLoss)
	assert.InDelta(t, -3.3, *order.StopLoss, 1e-9)
	assert.Nil(t, order.TargetProfit, "premium method stores no target")

	// Legs
	require.Len(t, order.Legs, 2)
	short, ok := order.Leg(models.ShortPut)
	require.True(t, ok)
	assert.Equal(t, 3800.0, short.Strike)
	assert.Equal(t, "shortPut", short.Description)
	assert.InDelta(t, 10.2, short.MidPrice, 1e-9)
	assert.InDelta(t, 0.2, short.ImpliedVolatility, 1e-9)
	assert.Equal(t, []string{"shortPut", "longPut"}, order.SideDescriptions())

	// Open record
	require.NotNil(t, order.Open.Limit)
	assert.True(t, order.Open.Limit.Enabled)
	assert.InDelta(t, 2.18, order.Open.Limit.Price, 1e-9)
	assert.Equal(t, testNow.Add(8*time.Hour), order.Open.Limit.ExpiresAt)
	assert.InDelta(t, 2.20, order.Open.OrderMidPrice, 1e-9)
	assert.Empty(t, order.Open.Orders)
	assert.False(t, order.Open.Filled)
}

func TestBuildOrder_DebitHasNoStopLoss(t *testing.T) {
	f := newFixture(t, spreadParams())
	legs := []models.Leg{
		{Contract: quoted(models.RightCall, 4000, 50, 51), Side: 1},
		{Contract: quoted(models.RightCall, 4050, 30, 31), Side: -1},
	}
	order, err := f.builder.BuildOrder(legs, "", false)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.InDelta(t, -20, order.OrderMidPrice, 1e-9)
	assert.Nil(t, order.StopLoss)
	assert.Equal(t, 0.0, order.MaxLoss, "the expiry payoff of a long call spread never goes negative")
	assert.InDelta(t, -20.02, order.LimitPrice, 1e-9)
	assert.Equal(t, "Put Spread", order.Strategy, "empty name falls back to the builder strategy")
}

func TestBuildOrder_LimitPrice(t *testing.T) {
	tests := []struct {
		name       string
		relative   float64
		absolute   *float64
		wantLimit  float64
		wantAdjust float64
	}{
		{"mid minus slippage", 0, nil, 2.18, 0},
		{"relative adjustment", 0.1, nil, 2.40, 0.1},
		{"absolute price", 0.1, floatPtr(2.5), 2.48, 2.5/2.2 - 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := spreadParams()
			p.LimitOrderRelativePriceAdjustment = tt.relative
			p.LimitOrderAbsolutePrice = tt.absolute
			f := newFixture(t, p)

			order, err := f.builder.BuildOrder(putSpreadLegs(), "Put Spread", true)
			require.NoError(t, err)
			require.NotNil(t, order)
			assert.InDelta(t, tt.wantLimit, order.LimitPrice, 1e-9)
			assert.InDelta(t, tt.wantAdjust, order.Open.Limit.Adjustment, 1e-6)
		})
	}
}

func TestBuildOrder_LimitPriceTick(t *testing.T) {
	tests := []struct {
		name      string
		tick      float64
		credit    bool
		wantLimit float64
	}{
		{"cent tick keeps mid minus slippage", 0.01, true, 2.18},
		{"nickel tick on a credit", 0.05, true, 2.20},
		{"dime tick on a credit", 0.10, true, 2.20},
		{"nickel tick on a debit", 0.05, false, -20.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := spreadParams()
			p.LimitOrderTick = tt.tick
			f := newFixture(t, p)

			legs := putSpreadLegs()
			if !tt.credit {
				legs = []models.Leg{
					{Contract: quoted(models.RightCall, 4000, 50, 51), Side: 1},
					{Contract: quoted(models.RightCall, 4050, 30, 31), Side: -1},
				}
			}
			order, err := f.builder.BuildOrder(legs, "Put Spread", tt.credit)
			require.NoError(t, err)
			require.NotNil(t, order)
			assert.InDelta(t, tt.wantLimit, order.LimitPrice, 1e-9)
			assert.InDelta(t, tt.wantLimit, order.Open.Limit.Price, 1e-9)
		})
	}
}

func TestBuildOrder_TargetPremiumSizing(t *testing.T) {
	t.Run("credit rounds to nearest using the limit price", func(t *testing.T) {
		p := spreadParams()
		p.MaxOrderQuantity = 10
		p.TargetPremium = floatPtr(1000)
		f := newFixture(t, p)

		order, err := f.builder.BuildOrder(putSpreadLegs(), "Put Spread", true)
		require.NoError(t, err)
		require.NotNil(t, order)
		assert.Equal(t, 5, order.Quantity, "1000 / 218 = 4.59")
		require.NotNil(t, order.TargetPremium)
		assert.Equal(t, 1000.0, *order.TargetPremium)
		assert.InDelta(t, -47.8*5, order.TReg, 1e-9)
	})

	t.Run("mid price when limit orders are off", func(t *testing.T) {
		p := spreadParams()
		p.MaxOrderQuantity = 10
		p.UseLimitOrders = false
		p.TargetPremium = floatPtr(1000)
		f := newFixture(t, p)

		order, err := f.builder.BuildOrder(putSpreadLegs(), "Put Spread", true)
		require.NoError(t, err)
		assert.InDelta(t, 2.20, order.QtyMidPrice, 1e-9)
		assert.Equal(t, 5, order.Quantity, "1000 / 220 = 4.55")
		assert.False(t, order.Open.Limit.Enabled)
	})

	t.Run("budget clamped to margin remaining", func(t *testing.T) {
		p := spreadParams()
		p.MaxOrderQuantity = 10
		p.TargetPremium = floatPtr(1000)
		acct := defaultAccount()
		acct.MarginRemaining = 300
		f := newFixtureWith(t, "Put Spread", p, &intrinsicPricer{}, newAccount(acct), models.NewOrderIDSequence())

		order, err := f.builder.BuildOrder(putSpreadLegs(), "Put Spread", true)
		require.NoError(t, err)
		assert.Equal(t, 1, order.Quantity)
		assert.Equal(t, 300.0, *order.TargetPremium)
		f.account.AssertExpectations(t)
	})

	t.Run("quantity above cap is rejected", func(t *testing.T) {
		p := spreadParams()
		p.MaxOrderQuantity = 2
		p.TargetPremium = floatPtr(1000)
		f := newFixture(t, p)

		order, err := f.builder.BuildOrder(putSpreadLegs(), "Put Spread", true)
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Nil(t, order)
	})

	t.Run("quantity above cap allowed without validation", func(t *testing.T) {
		p := spreadParams()
		p.MaxOrderQuantity = 2
		p.ValidateQuantity = false
		p.TargetPremium = floatPtr(1000)
		f := newFixture(t, p)

		order, err := f.builder.BuildOrder(putSpreadLegs(), "Put Spread", true)
		require.NoError(t, err)
		assert.Equal(t, 5, order.Quantity)
	})

	t.Run("debit order sized to zero is skipped", func(t *testing.T) {
		p := spreadParams()
		p.TargetPremium = floatPtr(100)
		f := newFixture(t, p)
		legs := []models.Leg{{Contract: quoted(models.RightCall, 4000, 50, 51), Side: 1}}

		order, err := f.builder.BuildOrder(legs, "Long Call", false)
		require.NoError(t, err)
		assert.Nil(t, order)
		assert.Equal(t, int64(0), f.ids.Last(), "no id consumed")
	})

	t.Run("percentage target scales the cap", func(t *testing.T) {
		p := spreadParams()
		p.MaxOrderQuantity = 10
		p.TargetPremiumPct = floatPtr(0.01)
		f := newFixture(t, p)

		order, err := f.builder.BuildOrder(putSpreadLegs(), "Put Spread", true)
		require.NoError(t, err)
		assert.Equal(t, 11, order.MaxOrderQuantity, "10 × 1.12 rounds to 11")
		assert.Equal(t, 1120.0, *order.TargetPremium)
		assert.Equal(t, 5, order.Quantity, "1120 / 218 = 5.14")
	})
}

func TestBuildOrder_ProfitTargetMethods(t *testing.T) {
	tests := []struct {
		method config.ProfitTargetMethod
		want   *float64
	}{
		{config.ProfitTargetPremium, nil},
		{config.ProfitTargetTReg, floatPtr(0.5 * 47.8)},
		{config.ProfitTargetMargin, floatPtr(0.5 * 47.8)},
		{"treg", floatPtr(0.5 * 47.8)},
		{"Unsupported", nil},
	}
	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			p := spreadParams()
			p.ProfitTarget = 0.5
			p.ProfitTargetMethod = tt.method
			f := newFixture(t, p)

			order, err := f.builder.BuildOrder(putSpreadLegs(), "Put Spread", true)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Nil(t, order.TargetProfit)
				return
			}
			require.NotNil(t, order.TargetProfit)
			assert.InDelta(t, *tt.want, *order.TargetProfit, 1e-9)
		})
	}
}

func TestBuildOrder_Duplicates(t *testing.T) {
	f := newFixture(t, spreadParams())

	first, err := f.builder.BuildOrder(putSpreadLegs(), "Put Spread", true)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Submit(first))
	assert.True(t, f.builder.IsDuplicate(putSpreadLegs()))

	again, err := f.builder.BuildOrder(putSpreadLegs(), "Put Spread", true)
	require.NoError(t, err)
	assert.Nil(t, again, "equivalent working order is a no-op")

	flipped := putSpreadLegs()
	flipped[0].Side, flipped[1].Side = 1, -1
	other, err := f.builder.BuildOrder(flipped, "Put Spread", false)
	require.NoError(t, err)
	require.NotNil(t, other, "a flipped side is not a duplicate")
	assert.Greater(t, other.ID, first.ID)
}

func TestBuildOrder_InputErrors(t *testing.T) {
	f := newFixture(t, spreadParams())

	tests := []struct {
		name string
		legs []models.Leg
		opts []Option
	}{
		{"no legs", nil, nil},
		{"zero side", []models.Leg{{Contract: quoted(models.RightPut, 3800, 1, 2), Side: 0}}, nil},
		{"nil contract", []models.Leg{{Side: 1}}, nil},
		{"unsupported type", []models.Leg{{Contract: &models.Contract{Symbol: "X", Right: "future", Strike: 1}, Side: 1}}, nil},
		{"side description count", putSpreadLegs(), []Option{WithSideDescriptions("only one")}},
		{"invalid overrides", putSpreadLegs(), []Option{WithOverrides(&config.Overrides{MaxOrderQuantity: intPtr(0)})}},
		{"repeated contract", []models.Leg{putSpreadLegs()[0], putSpreadLegs()[0]}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := f.builder.BuildOrder(tt.legs, "Put Spread", true, tt.opts...)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Nil(t, order)
		})
	}
}

func TestBuildOrder_BidAskSpreadValidation(t *testing.T) {
	p := spreadParams()
	p.ValidateBidAskSpread = true
	p.BidAskSpreadRatio = 0.2
	f := newFixture(t, p)

	_, err := f.builder.BuildOrder(putSpreadLegs(), "Put Spread", true)
	assert.ErrorIs(t, err, ErrInvalidInput, "0.60 / 2.20 exceeds 20%")

	p.BidAskSpreadRatio = 0.3
	f = newFixture(t, p)
	order, err := f.builder.BuildOrder(putSpreadLegs(), "Put Spread", true)
	require.NoError(t, err)
	assert.NotNil(t, order)
}

func TestBuildOrder_PricingFailure(t *testing.T) {
	t.Run("greeks", func(t *testing.T) {
		f := newFixtureWith(t, "Put Spread", spreadParams(), &intrinsicPricer{greeksErr: errors.New("no quote")},
			newAccount(defaultAccount()), models.NewOrderIDSequence())
		order, err := f.builder.BuildOrder(putSpreadLegs(), "Put Spread", true)
		assert.ErrorIs(t, err, ErrPricingFailure)
		assert.Nil(t, order)
	})

	t.Run("stress valuation", func(t *testing.T) {
		f := newFixtureWith(t, "Put Spread", spreadParams(), &intrinsicPricer{priceErr: errors.New("breaker open")},
			newAccount(defaultAccount()), models.NewOrderIDSequence())
		order, err := f.builder.BuildOrder(putSpreadLegs(), "Put Spread", true)
		assert.ErrorIs(t, err, ErrPricingFailure)
		assert.Nil(t, order)
		assert.Equal(t, int64(0), f.ids.Last())
	})
}

func TestBuildOrder_Options(t *testing.T) {
	f := newFixture(t, spreadParams())
	override := time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC) // Saturday

	order, err := f.builder.BuildOrder(putSpreadLegs(), "Put Spread", true,
		WithStrategyID("PCS"),
		WithExpiry(override),
		WithSideDescriptions("body", "wing"),
		WithOverrides(&config.Overrides{Slippage: floatPtr(0.05)}),
	)
	require.NoError(t, err)
	require.NotNil(t, order)

	assert.Equal(t, "PCS-1", order.Tag)
	assert.Equal(t, "2024-03-16", order.ExpiryStr)
	assert.Equal(t, testExpiry, order.ExpiryLastTradingDay, "rolls back to Friday")
	assert.Equal(t, []string{"body", "wing"}, order.SideDescriptions())
	assert.InDelta(t, 2.10, order.LimitPrice, 1e-9)
	assert.InDelta(t, 0.05, order.Slippage, 1e-9)
}

func TestBuildOrder_SharedIDSequence(t *testing.T) {
	ids := models.NewOrderIDSequence()
	a := newFixtureWith(t, "Put Spread", spreadParams(), &intrinsicPricer{}, newAccount(defaultAccount()), ids)
	b := newFixtureWith(t, "Call Spread", spreadParams(), &intrinsicPricer{}, newAccount(defaultAccount()), ids)

	first, err := a.builder.BuildOrder(putSpreadLegs(), "", true)
	require.NoError(t, err)
	second, err := b.builder.BuildOrder(putSpreadLegs(), "", true)
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
	assert.Equal(t, "CallSpread-2", second.Tag)
	assert.Equal(t, int64(3), a.builder.NextOrderID())
}

func TestNewBuilder_RequiresDeps(t *testing.T) {
	_, err := NewBuilder("x", config.Defaults(), Deps{})
	assert.Error(t, err)

	bad := config.Defaults()
	bad.PortfolioMarginStress = 2
	f := newFixture(t, config.Defaults())
	_, err = NewBuilder("x", bad, Deps{
		Pricer:   f.pricer,
		Calendar: f.builder.calendar,
		Account:  f.account,
		IDs:      f.ids,
		Ledger:   f.ledger,
	})
	assert.ErrorIs(t, err, config.ErrInvalidParameters)
}
