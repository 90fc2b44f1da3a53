package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan01993/QuantConnectProjectGit/internal/config"
	"github.com/bryan01993/QuantConnectProjectGit/internal/models"
)

func TestSizeQuantity(t *testing.T) {
	tests := []struct {
		name       string
		target     *float64
		max        int
		margin     float64
		price      float64
		credit     bool
		wantQty    int
		wantBudget *float64
	}{
		{"fixed quantity", nil, 3, 80000, 2.2, true, 3, nil},
		{"credit rounds half to even", floatPtr(250), 10, 80000, 1.0, true, 2, floatPtr(250)},
		{"credit never below one", floatPtr(40), 10, 80000, 1.0, true, 1, floatPtr(40)},
		{"debit truncates", floatPtr(190), 10, 80000, -1.0, false, 1, floatPtr(190)},
		{"debit may size to zero", floatPtr(90), 10, 80000, -1.0, false, 0, floatPtr(90)},
		{"budget limited by margin", floatPtr(1000), 10, 300, 1.0, true, 3, floatPtr(300)},
		{"zero price sizes one", floatPtr(1000), 10, 80000, 0, true, 1, floatPtr(1000)},
		{"debit without headroom sizes zero", floatPtr(1000), 10, -500, -1.0, false, 0, floatPtr(0)},
		{"credit without headroom falls to one", floatPtr(1000), 10, -500, 1.0, true, 1, floatPtr(0)},
		{"negative target premium", floatPtr(-200), 10, 80000, -1.0, false, 0, floatPtr(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qty, budget := SizeQuantity(tt.target, tt.max, tt.margin, tt.price, tt.credit)
			assert.Equal(t, tt.wantQty, qty)
			if tt.wantBudget == nil {
				assert.Nil(t, budget)
				return
			}
			require.NotNil(t, budget)
			assert.InDelta(t, *tt.wantBudget, *budget, 1e-9)
		})
	}
}

func TestMaxOrderQuantity(t *testing.T) {
	acct := func(profit float64) models.AccountSnapshot {
		a := defaultAccount()
		a.TotalProfit = profit
		return a
	}
	p := config.Defaults()
	p.MaxOrderQuantity = 2

	assert.Equal(t, 2, MaxOrderQuantity(p, acct(60000)), "no scaling without a percentage target")

	p.TargetPremiumPct = floatPtr(0.01)
	assert.Equal(t, 2, MaxOrderQuantity(p, acct(12000)), "2 × 1.12 rounds to 2")
	assert.Equal(t, 3, MaxOrderQuantity(p, acct(60000)), "2 × 1.6 rounds to 3")
	assert.Equal(t, 2, MaxOrderQuantity(p, acct(-50000)), "losses never shrink the cap")

	noInitial := acct(60000)
	noInitial.InitialAccountValue = 0
	assert.Equal(t, 2, MaxOrderQuantity(p, noInitial))
}

func TestTargetPremium(t *testing.T) {
	acct := defaultAccount()

	p := config.Defaults()
	assert.Nil(t, TargetPremium(p, acct))

	p.TargetPremium = floatPtr(500)
	require.NotNil(t, TargetPremium(p, acct))
	assert.Equal(t, 500.0, *TargetPremium(p, acct))

	p.TargetPremiumPct = floatPtr(0.02)
	assert.InDelta(t, 2240, *TargetPremium(p, acct), 1e-9, "percentage wins over the fixed target")

	p.TargetPremiumPct = floatPtr(1.5)
	assert.InDelta(t, 112000, *TargetPremium(p, acct), 1e-9)

	p.TargetPremiumPct = floatPtr(-0.5)
	assert.Equal(t, 0.0, *TargetPremium(p, acct))
}

func TestStaticAccount(t *testing.T) {
	a := NewStaticAccount(defaultAccount())
	assert.Equal(t, 80000.0, a.Snapshot().MarginRemaining)

	next := defaultAccount()
	next.MarginRemaining = 100
	a.Update(next)
	assert.Equal(t, 100.0, a.Snapshot().MarginRemaining)
}
