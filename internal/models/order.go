package models

import (
	"fmt"
	"math"
	"time"
)

// LegDetail is the per-leg snapshot recorded on an order at construction time.
type LegDetail struct {
	Expiry            time.Time `json:"expiry"`
	Description       string    `json:"description"`
	Symbol            string    `json:"symbol"`
	Right             Right     `json:"right"`
	Greeks            Greeks    `json:"greeks"`
	Key               LegKey    `json:"key"`
	Side              int       `json:"side"`
	Strike            float64   `json:"strike"`
	ImpliedVolatility float64   `json:"implied_volatility"`
	MidPrice          float64   `json:"mid_price"`
	BidAskSpread      float64   `json:"bid_ask_spread"`
}

// LimitOrder holds the limit-order fields of the opening execution record.
type LimitOrder struct {
	ExpiresAt  time.Time `json:"expires_at"`
	Enabled    bool      `json:"enabled"`
	Adjustment float64   `json:"adjustment"`
	Price      float64   `json:"price"`
}

// ExecutionRecord tracks one side (open or close) of an order's execution.
type ExecutionRecord struct {
	Limit         *LimitOrder `json:"limit,omitempty"`
	Orders        []string    `json:"orders"`
	Fills         int         `json:"fills"`
	Filled        bool        `json:"filled"`
	StalePrice    bool        `json:"stale_price"`
	OrderMidPrice float64     `json:"order_mid_price"`
	FillPrice     float64     `json:"fill_price"`
}

// OrderSpec is the fully priced and risk-sized multi-leg order.
// Everything except State, Open and Close is fixed once construction returns.
type OrderSpec struct {
	StateMachine *StateMachine `json:"-"`
	State        OrderState    `json:"state"`

	CreatedAt               time.Time `json:"created_at"`
	Expiry                  time.Time `json:"expiry"`
	ExpiryLastTradingDay    time.Time `json:"expiry_last_trading_day"`
	ExpiryMarketCloseCutoff time.Time `json:"expiry_market_close_cutoff"`
	ClosedAt                time.Time `json:"closed_at,omitempty"`

	TargetPremium *float64 `json:"target_premium,omitempty"`
	TargetProfit  *float64 `json:"target_profit,omitempty"`
	StopLoss      *float64 `json:"stop_loss,omitempty"`

	Tag                string      `json:"tag"`
	PositionID         string      `json:"position_id"`
	Strategy           string      `json:"strategy"`
	StrategyID         string      `json:"strategy_id"`
	ExpiryStr          string      `json:"expiry_str"`
	ProfitTargetMethod string      `json:"profit_target_method"`
	Legs               []LegDetail `json:"legs"`

	Open  ExecutionRecord `json:"open"`
	Close ExecutionRecord `json:"close"`

	ID               int64   `json:"id"`
	OrderMidPrice    float64 `json:"order_mid_price"`
	BidAskSpread     float64 `json:"bid_ask_spread"`
	Slippage         float64 `json:"slippage"`
	TotalSlippage    float64 `json:"total_slippage"`
	LimitPrice       float64 `json:"limit_price"`
	QtyMidPrice      float64 `json:"qty_mid_price"`
	Quantity         int     `json:"quantity"`
	MaxOrderQuantity int     `json:"max_order_quantity"`
	MaxLoss          float64 `json:"max_loss"`
	TReg             float64 `json:"treg"`
	PortfolioMargin  float64 `json:"portfolio_margin"`
	Credit           bool    `json:"credit"`
}

// Leg returns the first leg classified as key.
func (o *OrderSpec) Leg(key LegKey) (LegDetail, bool) {
	for _, l := range o.Legs {
		if l.Key == key {
			return l, true
		}
	}
	return LegDetail{}, false
}

// Sides returns the signed sides in leg order.
func (o *OrderSpec) Sides() []int {
	sides := make([]int, len(o.Legs))
	for i, l := range o.Legs {
		sides[i] = l.Side
	}
	return sides
}

// SideDescriptions returns the human-readable descriptor of each leg.
func (o *OrderSpec) SideDescriptions() []string {
	desc := make([]string, len(o.Legs))
	for i, l := range o.Legs {
		desc[i] = l.Description
	}
	return desc
}

// DTE returns days to expiration measured from now.
func (o *OrderSpec) DTE(now time.Time) int {
	return DaysBetween(now, o.Expiry)
}

// MaxLossDollars converts the per-share max loss into dollars for the whole order.
func (o *OrderSpec) MaxLossDollars() float64 {
	return o.MaxLoss * SharesPerContract * float64(o.Quantity)
}

// PremiumDollars is the net premium of the whole order at the mid price.
func (o *OrderSpec) PremiumDollars() float64 {
	return o.OrderMidPrice * SharesPerContract * float64(o.Quantity)
}

// BidAskSpreadRatio returns spread over |mid|, or +Inf when the mid is zero.
func (o *OrderSpec) BidAskSpreadRatio() float64 {
	if math.Abs(o.OrderMidPrice) < 1e-9 {
		return math.Inf(1)
	}
	return o.BidAskSpread / math.Abs(o.OrderMidPrice)
}

// TransitionState moves the order to a new state
func (o *OrderSpec) TransitionState(to OrderState, condition string) error {
	if err := o.ensureMachine().Transition(to, condition); err != nil {
		return fmt.Errorf("order %s state transition failed: %w", o.Tag, err)
	}
	o.State = to
	return nil
}

// GetCurrentState returns the canonical persisted state
func (o *OrderSpec) GetCurrentState() OrderState {
	if o.State == "" {
		return StateConstructed
	}
	return o.State
}

// IsWorking returns true while an opening or closing order is live
func (o *OrderSpec) IsWorking() bool {
	return o.ensureMachine().IsWorking()
}

// GetStateDescription returns a human-readable state description
func (o *OrderSpec) GetStateDescription() string {
	return o.ensureMachine().GetStateDescription()
}

// ensureMachine ensures the StateMachine is initialized from persisted state
func (o *OrderSpec) ensureMachine() *StateMachine {
	if o.StateMachine == nil {
		o.StateMachine = NewStateMachineFromState(o.GetCurrentState())
	}
	return o.StateMachine
}

// Clone returns a deep copy safe to hand out of a lock.
func (o *OrderSpec) Clone() *OrderSpec {
	if o == nil {
		return nil
	}
	c := *o
	c.StateMachine = o.StateMachine.Copy()
	c.Legs = append([]LegDetail(nil), o.Legs...)
	c.Open.Orders = append([]string(nil), o.Open.Orders...)
	c.Close.Orders = append([]string(nil), o.Close.Orders...)
	if o.Open.Limit != nil {
		l := *o.Open.Limit
		c.Open.Limit = &l
	}
	c.TargetPremium = cloneFloat(o.TargetPremium)
	c.TargetProfit = cloneFloat(o.TargetProfit)
	c.StopLoss = cloneFloat(o.StopLoss)
	return &c
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
