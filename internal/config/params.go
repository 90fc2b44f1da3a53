package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ProfitTargetMethod selects how the dollar profit target is derived.
type ProfitTargetMethod string

// Supported profit target methods. Any other value leaves the target unset.
const (
	ProfitTargetPremium ProfitTargetMethod = "Premium"
	ProfitTargetTheta   ProfitTargetMethod = "Theta"
	ProfitTargetTReg    ProfitTargetMethod = "TReg"
	ProfitTargetMargin  ProfitTargetMethod = "Margin"
)

// Canonical maps m case-insensitively onto a supported method, or returns m unchanged.
func (m ProfitTargetMethod) Canonical() ProfitTargetMethod {
	for _, known := range []ProfitTargetMethod{ProfitTargetPremium, ProfitTargetTheta, ProfitTargetTReg, ProfitTargetMargin} {
		if strings.EqualFold(string(m), string(known)) {
			return known
		}
	}
	return m
}

// Known reports whether m is one of the supported methods.
func (m ProfitTargetMethod) Known() bool {
	switch m.Canonical() {
	case ProfitTargetPremium, ProfitTargetTheta, ProfitTargetTReg, ProfitTargetMargin:
		return true
	default:
		return false
	}
}

// StrategyParameters is the fully resolved parameter set for one construction call.
// Pointer fields are optional; nil is a meaningful "not configured".
type StrategyParameters struct {
	// Order shape and sizing
	CreditStrategy     bool     `json:"credit_strategy"`
	MaxActivePositions *int     `json:"max_active_positions"`
	MaxOrderQuantity   int      `json:"max_order_quantity"`
	Slippage           float64  `json:"slippage"`
	TargetPremiumPct   *float64 `json:"target_premium_pct"`
	TargetPremium      *float64 `json:"target_premium"`
	ValidateQuantity   bool     `json:"validate_quantity"`

	// Exits
	ProfitTarget          float64            `json:"profit_target"`
	ProfitTargetMethod    ProfitTargetMethod `json:"profit_target_method"`
	ThetaProfitDays       *int               `json:"theta_profit_days"`
	StopLossMultiplier    float64            `json:"stop_loss_multiplier"`
	CapStopLoss           bool               `json:"cap_stop_loss"`
	PortfolioMarginStress float64            `json:"portfolio_margin_stress"`

	// Entry scheduling and expiry selection
	MinimumTradeScheduleDistance  Duration  `json:"minimum_trade_schedule_distance"`
	AllowMultipleEntriesPerExpiry bool      `json:"allow_multiple_entries_per_expiry"`
	UseFurthestExpiry             bool      `json:"use_furthest_expiry"`
	DynamicDTESelection           bool      `json:"dynamic_dte_selection"`
	DTE                           int       `json:"dte"`
	DTEWindow                     int       `json:"dte_window"`
	DTEThreshold                  int       `json:"dte_threshold"`
	ForceDTEThreshold             bool      `json:"force_dte_threshold"`
	DITThreshold                  *int      `json:"dit_threshold"`
	HardDITThreshold              *int      `json:"hard_dit_threshold"`
	ForceDITThreshold             bool      `json:"force_dit_threshold"`
	MarketCloseCutoffTime         ClockTime `json:"market_close_cutoff_time"`

	// Limit orders
	UseLimitOrders                    bool     `json:"use_limit_orders"`
	LimitOrderRelativePriceAdjustment float64  `json:"limit_order_relative_price_adjustment"`
	LimitOrderAbsolutePrice           *float64 `json:"limit_order_absolute_price"`
	LimitOrderTick                    float64  `json:"limit_order_tick"`
	LimitOrderExpiration              Duration `json:"limit_order_expiration"`
	ValidateBidAskSpread              bool     `json:"validate_bid_ask_spread"`
	BidAskSpreadRatio                 float64  `json:"bid_ask_spread_ratio"`

	// Leg templates (deltas in percent, wing sizes in strike points)
	Delta                  float64  `json:"delta"`
	WingSize               float64  `json:"wing_size"`
	PutDelta               float64  `json:"put_delta"`
	CallDelta              float64  `json:"call_delta"`
	NetDelta               *float64 `json:"net_delta"`
	PutWingSize            float64  `json:"put_wing_size"`
	CallWingSize           float64  `json:"call_wing_size"`
	ButterflyType          *string  `json:"butterfly_type"`
	ButterflyLeftWingSize  float64  `json:"butterfly_left_wing_size"`
	ButterflyRightWingSize float64  `json:"butterfly_right_wing_size"`

	// Bookkeeping
	IncludeCancelledOrders    bool     `json:"include_cancelled_orders"`
	IncludeLegDetails         bool     `json:"include_leg_details"`
	TrackLegDetails           bool     `json:"track_leg_details"`
	GreeksIncluded            []string `json:"greeks_included"`
	LegDetailsUpdateFrequency Duration `json:"leg_details_update_frequency"`
	ManagePositionFrequency   Duration `json:"manage_position_frequency"`
	EMAMemory                 int      `json:"ema_memory"`
}

// Defaults returns the built-in parameter set.
func Defaults() StrategyParameters {
	return StrategyParameters{
		CreditStrategy:   true,
		MaxOrderQuantity: 1,
		ValidateQuantity: true,

		ProfitTarget:          0.6,
		ProfitTargetMethod:    ProfitTargetPremium,
		StopLossMultiplier:    1.5,
		CapStopLoss:           true,
		PortfolioMarginStress: 0.12,

		UseFurthestExpiry:     true,
		DTE:                   45,
		DTEWindow:             7,
		DTEThreshold:          21,
		MarketCloseCutoffTime: ClockTime{Hour: 15, Minute: 45},

		UseLimitOrders:       true,
		LimitOrderTick:       0.01,
		LimitOrderExpiration: Duration(8 * time.Hour),
		BidAskSpreadRatio:    0.3,

		Delta:                  10,
		WingSize:               10,
		PutDelta:               10,
		CallDelta:              10,
		PutWingSize:            10,
		CallWingSize:           10,
		ButterflyLeftWingSize:  10,
		ButterflyRightWingSize: 10,

		IncludeCancelledOrders:    true,
		GreeksIncluded:            []string{"Delta", "Gamma", "Vega", "Theta", "Rho", "Vomma", "Elasticity"},
		LegDetailsUpdateFrequency: Duration(30 * time.Minute),
		ManagePositionFrequency:   Duration(time.Minute),
		EMAMemory:                 200,
	}
}

// Overrides holds optionally-set parameters for one precedence level.
// A nil field leaves the lower level's value in place.
type Overrides struct {
	CreditStrategy     *bool    `yaml:"credit_strategy"`
	MaxActivePositions *int     `yaml:"max_active_positions"`
	MaxOrderQuantity   *int     `yaml:"max_order_quantity"`
	Slippage           *float64 `yaml:"slippage"`
	TargetPremiumPct   *float64 `yaml:"target_premium_pct"`
	TargetPremium      *float64 `yaml:"target_premium"`
	ValidateQuantity   *bool    `yaml:"validate_quantity"`

	ProfitTarget          *float64            `yaml:"profit_target"`
	ProfitTargetMethod    *ProfitTargetMethod `yaml:"profit_target_method"`
	ThetaProfitDays       *int                `yaml:"theta_profit_days"`
	StopLossMultiplier    *float64            `yaml:"stop_loss_multiplier"`
	CapStopLoss           *bool               `yaml:"cap_stop_loss"`
	PortfolioMarginStress *float64            `yaml:"portfolio_margin_stress"`

	MinimumTradeScheduleDistance  *Duration  `yaml:"minimum_trade_schedule_distance"`
	AllowMultipleEntriesPerExpiry *bool      `yaml:"allow_multiple_entries_per_expiry"`
	UseFurthestExpiry             *bool      `yaml:"use_furthest_expiry"`
	DynamicDTESelection           *bool      `yaml:"dynamic_dte_selection"`
	DTE                           *int       `yaml:"dte"`
	DTEWindow                     *int       `yaml:"dte_window"`
	DTEThreshold                  *int       `yaml:"dte_threshold"`
	ForceDTEThreshold             *bool      `yaml:"force_dte_threshold"`
	DITThreshold                  *int       `yaml:"dit_threshold"`
	HardDITThreshold              *int       `yaml:"hard_dit_threshold"`
	ForceDITThreshold             *bool      `yaml:"force_dit_threshold"`
	MarketCloseCutoffTime         *ClockTime `yaml:"market_close_cutoff_time"`

	UseLimitOrders                    *bool     `yaml:"use_limit_orders"`
	LimitOrderRelativePriceAdjustment *float64  `yaml:"limit_order_relative_price_adjustment"`
	LimitOrderAbsolutePrice           *float64  `yaml:"limit_order_absolute_price"`
	LimitOrderTick                    *float64  `yaml:"limit_order_tick"`
	LimitOrderExpiration              *Duration `yaml:"limit_order_expiration"`
	ValidateBidAskSpread              *bool     `yaml:"validate_bid_ask_spread"`
	BidAskSpreadRatio                 *float64  `yaml:"bid_ask_spread_ratio"`

	Delta                  *float64 `yaml:"delta"`
	WingSize               *float64 `yaml:"wing_size"`
	PutDelta               *float64 `yaml:"put_delta"`
	CallDelta              *float64 `yaml:"call_delta"`
	NetDelta               *float64 `yaml:"net_delta"`
	PutWingSize            *float64 `yaml:"put_wing_size"`
	CallWingSize           *float64 `yaml:"call_wing_size"`
	ButterflyType          *string  `yaml:"butterfly_type"`
	ButterflyLeftWingSize  *float64 `yaml:"butterfly_left_wing_size"`
	ButterflyRightWingSize *float64 `yaml:"butterfly_right_wing_size"`

	IncludeCancelledOrders    *bool     `yaml:"include_cancelled_orders"`
	IncludeLegDetails         *bool     `yaml:"include_leg_details"`
	TrackLegDetails           *bool     `yaml:"track_leg_details"`
	GreeksIncluded            []string  `yaml:"greeks_included"`
	LegDetailsUpdateFrequency *Duration `yaml:"leg_details_update_frequency"`
	ManagePositionFrequency   *Duration `yaml:"manage_position_frequency"`
	EMAMemory                 *int      `yaml:"ema_memory"`
}

// Resolve merges the precedence levels: call-site overrides win over
// environment overrides, which win over defaults. Either level may be nil.
// The result never shares memory with its inputs.
func Resolve(defaults StrategyParameters, env, call *Overrides) StrategyParameters {
	p := defaults.clone()
	env.applyTo(&p)
	call.applyTo(&p)
	return p
}

func (o *Overrides) applyTo(p *StrategyParameters) {
	if o == nil {
		return
	}
	set(&p.CreditStrategy, o.CreditStrategy)
	setOptional(&p.MaxActivePositions, o.MaxActivePositions)
	set(&p.MaxOrderQuantity, o.MaxOrderQuantity)
	set(&p.Slippage, o.Slippage)
	setOptional(&p.TargetPremiumPct, o.TargetPremiumPct)
	setOptional(&p.TargetPremium, o.TargetPremium)
	set(&p.ValidateQuantity, o.ValidateQuantity)

	set(&p.ProfitTarget, o.ProfitTarget)
	set(&p.ProfitTargetMethod, o.ProfitTargetMethod)
	setOptional(&p.ThetaProfitDays, o.ThetaProfitDays)
	set(&p.StopLossMultiplier, o.StopLossMultiplier)
	set(&p.CapStopLoss, o.CapStopLoss)
	set(&p.PortfolioMarginStress, o.PortfolioMarginStress)

	set(&p.MinimumTradeScheduleDistance, o.MinimumTradeScheduleDistance)
	set(&p.AllowMultipleEntriesPerExpiry, o.AllowMultipleEntriesPerExpiry)
	set(&p.UseFurthestExpiry, o.UseFurthestExpiry)
	set(&p.DynamicDTESelection, o.DynamicDTESelection)
	set(&p.DTE, o.DTE)
	set(&p.DTEWindow, o.DTEWindow)
	set(&p.DTEThreshold, o.DTEThreshold)
	set(&p.ForceDTEThreshold, o.ForceDTEThreshold)
	setOptional(&p.DITThreshold, o.DITThreshold)
	setOptional(&p.HardDITThreshold, o.HardDITThreshold)
	set(&p.ForceDITThreshold, o.ForceDITThreshold)
	set(&p.MarketCloseCutoffTime, o.MarketCloseCutoffTime)

	set(&p.UseLimitOrders, o.UseLimitOrders)
	set(&p.LimitOrderRelativePriceAdjustment, o.LimitOrderRelativePriceAdjustment)
	setOptional(&p.LimitOrderAbsolutePrice, o.LimitOrderAbsolutePrice)
	set(&p.LimitOrderTick, o.LimitOrderTick)
	set(&p.LimitOrderExpiration, o.LimitOrderExpiration)
	set(&p.ValidateBidAskSpread, o.ValidateBidAskSpread)
	set(&p.BidAskSpreadRatio, o.BidAskSpreadRatio)

	set(&p.Delta, o.Delta)
	set(&p.WingSize, o.WingSize)
	set(&p.PutDelta, o.PutDelta)
	set(&p.CallDelta, o.CallDelta)
	setOptional(&p.NetDelta, o.NetDelta)
	set(&p.PutWingSize, o.PutWingSize)
	set(&p.CallWingSize, o.CallWingSize)
	setOptional(&p.ButterflyType, o.ButterflyType)
	set(&p.ButterflyLeftWingSize, o.ButterflyLeftWingSize)
	set(&p.ButterflyRightWingSize, o.ButterflyRightWingSize)

	set(&p.IncludeCancelledOrders, o.IncludeCancelledOrders)
	set(&p.IncludeLegDetails, o.IncludeLegDetails)
	set(&p.TrackLegDetails, o.TrackLegDetails)
	if o.GreeksIncluded != nil {
		p.GreeksIncluded = append([]string(nil), o.GreeksIncluded...)
	}
	set(&p.LegDetailsUpdateFrequency, o.LegDetailsUpdateFrequency)
	set(&p.ManagePositionFrequency, o.ManagePositionFrequency)
	set(&p.EMAMemory, o.EMAMemory)
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setOptional[T any](dst **T, v *T) {
	if v != nil {
		c := *v
		*dst = &c
	}
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func (p StrategyParameters) clone() StrategyParameters {
	c := p
	c.MaxActivePositions = clonePtr(p.MaxActivePositions)
	c.TargetPremiumPct = clonePtr(p.TargetPremiumPct)
	c.TargetPremium = clonePtr(p.TargetPremium)
	c.ThetaProfitDays = clonePtr(p.ThetaProfitDays)
	c.DITThreshold = clonePtr(p.DITThreshold)
	c.HardDITThreshold = clonePtr(p.HardDITThreshold)
	c.LimitOrderAbsolutePrice = clonePtr(p.LimitOrderAbsolutePrice)
	c.NetDelta = clonePtr(p.NetDelta)
	c.ButterflyType = clonePtr(p.ButterflyType)
	if p.GreeksIncluded != nil {
		c.GreeksIncluded = append([]string(nil), p.GreeksIncluded...)
	}
	return c
}

// ErrInvalidParameters is returned when a resolved parameter set is unusable.
var ErrInvalidParameters = errors.New("invalid strategy parameters")

// Validate checks ranges of the resolved parameters.
// An unrecognised profit target method is accepted and treated as unset.
func (p StrategyParameters) Validate() error {
	if p.MaxOrderQuantity < 1 {
		return fmt.Errorf("%w: max_order_quantity must be >= 1", ErrInvalidParameters)
	}
	if p.MaxActivePositions != nil && *p.MaxActivePositions < 0 {
		return fmt.Errorf("%w: max_active_positions must be >= 0", ErrInvalidParameters)
	}
	if p.Slippage < 0 {
		return fmt.Errorf("%w: slippage must be >= 0", ErrInvalidParameters)
	}
	if p.TargetPremium != nil && *p.TargetPremium < 0 {
		return fmt.Errorf("%w: target_premium must be >= 0", ErrInvalidParameters)
	}
	if p.ProfitTarget <= 0 {
		return fmt.Errorf("%w: profit_target must be > 0", ErrInvalidParameters)
	}
	if p.StopLossMultiplier <= 0 {
		return fmt.Errorf("%w: stop_loss_multiplier must be > 0", ErrInvalidParameters)
	}
	if p.PortfolioMarginStress <= 0 || p.PortfolioMarginStress >= 1 {
		return fmt.Errorf("%w: portfolio_margin_stress must be in (0,1)", ErrInvalidParameters)
	}
	if p.DTE < 0 || p.DTEWindow < 0 || p.DTEThreshold < 0 {
		return fmt.Errorf("%w: dte, dte_window and dte_threshold must be >= 0", ErrInvalidParameters)
	}
	if p.MinimumTradeScheduleDistance < 0 || p.LimitOrderExpiration < 0 {
		return fmt.Errorf("%w: durations must be >= 0", ErrInvalidParameters)
	}
	if p.LimitOrderTick <= 0 || p.LimitOrderTick > 1 {
		return fmt.Errorf("%w: limit_order_tick must be in (0,1]", ErrInvalidParameters)
	}
	if p.BidAskSpreadRatio <= 0 {
		return fmt.Errorf("%w: bid_ask_spread_ratio must be > 0", ErrInvalidParameters)
	}
	for name, d := range map[string]float64{"delta": p.Delta, "put_delta": p.PutDelta, "call_delta": p.CallDelta} {
		if d <= 0 || d > 100 {
			return fmt.Errorf("%w: %s must be in (0,100]", ErrInvalidParameters, name)
		}
	}
	for name, w := range map[string]float64{
		"wing_size":                 p.WingSize,
		"put_wing_size":             p.PutWingSize,
		"call_wing_size":            p.CallWingSize,
		"butterfly_left_wing_size":  p.ButterflyLeftWingSize,
		"butterfly_right_wing_size": p.ButterflyRightWingSize,
	} {
		if w < 0 {
			return fmt.Errorf("%w: %s must be >= 0", ErrInvalidParameters, name)
		}
	}
	if p.MarketCloseCutoffTime.Hour < 0 || p.MarketCloseCutoffTime.Hour > 23 ||
		p.MarketCloseCutoffTime.Minute < 0 || p.MarketCloseCutoffTime.Minute > 59 {
		return fmt.Errorf("%w: market_close_cutoff_time out of range", ErrInvalidParameters)
	}
	return nil
}
