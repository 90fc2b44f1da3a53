package strategy

import (
	"math"

	"github.com/bryan01993/QuantConnectProjectGit/internal/config"
	"github.com/bryan01993/QuantConnectProjectGit/internal/models"
)

// zeroPrice is the order price below which premium targeting sizes one contract.
const zeroPrice = 1e-5

// MaxOrderQuantity returns the quantity cap. With dynamic premium targeting the
// configured cap grows with cumulative profit but never drops below it.
func MaxOrderQuantity(params config.StrategyParameters, account models.AccountSnapshot) int {
	base := params.MaxOrderQuantity
	if params.TargetPremiumPct == nil || account.InitialAccountValue <= 0 {
		return base
	}
	scaled := int(math.RoundToEven(float64(base) * (1 + account.TotalProfit/account.InitialAccountValue)))
	return max(base, scaled)
}

// TargetPremium returns the premium budget of one order, or nil when
// quantity is fixed. A percentage target is clamped to [0, 1] of the
// total portfolio value and takes precedence over a fixed target.
func TargetPremium(params config.StrategyParameters, account models.AccountSnapshot) *float64 {
	if params.TargetPremiumPct != nil {
		pct := math.Max(0, math.Min(1, *params.TargetPremiumPct))
		v := account.TotalPortfolioValue * pct
		return &v
	}
	if params.TargetPremium != nil {
		v := *params.TargetPremium
		return &v
	}
	return nil
}

// SizeQuantity returns the number of contracts to trade and the premium
// budget actually used. Without a target premium the quantity is maxQuantity.
// Otherwise the budget is clamped to [0, marginRemaining] and divided by the
// dollar price of one unit: credit orders round to nearest with a floor of
// one, debit orders truncate and may size to zero.
func SizeQuantity(targetPremium *float64, maxQuantity int, marginRemaining, price float64, credit bool) (int, *float64) {
	if targetPremium == nil {
		return maxQuantity, nil
	}
	budget := math.Max(0, math.Min(marginRemaining, *targetPremium))

	raw := 1.0
	if math.Abs(price) > zeroPrice {
		raw = math.Abs(budget / (price * models.SharesPerContract))
	}
	if credit {
		return max(1, int(math.RoundToEven(raw))), &budget
	}
	return int(math.Floor(raw)), &budget
}
