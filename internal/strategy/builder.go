// Package strategy constructs priced and risk-sized multi-leg option orders
// and runs strategy instances that decide which legs to trade.
package strategy

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bryan01993/QuantConnectProjectGit/internal/calendar"
	"github.com/bryan01993/QuantConnectProjectGit/internal/config"
	"github.com/bryan01993/QuantConnectProjectGit/internal/ledger"
	"github.com/bryan01993/QuantConnectProjectGit/internal/models"
	"github.com/bryan01993/QuantConnectProjectGit/internal/monitoring"
	"github.com/bryan01993/QuantConnectProjectGit/internal/pricing"
	"github.com/bryan01993/QuantConnectProjectGit/internal/risk"
	"github.com/bryan01993/QuantConnectProjectGit/internal/util"
)

// zeroMid is the aggregate mid below which an absolute limit price implies no adjustment.
const zeroMid = 1e-9

// Deps are the collaborators of a Builder. Pricer, Calendar, Account, IDs
// and Ledger are required.
type Deps struct {
	Pricer   pricing.Pricer
	Calendar *calendar.Calendar
	Account  AccountProvider
	IDs      *models.OrderIDSequence
	Ledger   *ledger.Ledger
	Metrics  *monitoring.Metrics
	Logger   logrus.FieldLogger
	Clock    func() time.Time
}

// Builder is the pricing and quantity engine of one strategy instance.
type Builder struct {
	pricer   pricing.Pricer
	valuer   *risk.Valuer
	calendar *calendar.Calendar
	account  AccountProvider
	ids      *models.OrderIDSequence
	ledger   *ledger.Ledger
	metrics  *monitoring.Metrics
	logger   *logrus.Entry
	now      func() time.Time

	strategy string
	params   config.StrategyParameters
}

// NewBuilder creates a Builder for strategy with its resolved parameters.
func NewBuilder(strategy string, params config.StrategyParameters, deps Deps) (*Builder, error) {
	switch {
	case deps.Pricer == nil:
		return nil, fmt.Errorf("builder %s: pricer is required", strategy)
	case deps.Calendar == nil:
		return nil, fmt.Errorf("builder %s: calendar is required", strategy)
	case deps.Account == nil:
		return nil, fmt.Errorf("builder %s: account provider is required", strategy)
	case deps.IDs == nil:
		return nil, fmt.Errorf("builder %s: order id sequence is required", strategy)
	case deps.Ledger == nil:
		return nil, fmt.Errorf("builder %s: ledger is required", strategy)
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("builder %s: %w", strategy, err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Builder{
		pricer:   deps.Pricer,
		valuer:   risk.NewValuer(deps.Pricer),
		calendar: deps.Calendar,
		account:  deps.Account,
		ids:      deps.IDs,
		ledger:   deps.Ledger,
		metrics:  deps.Metrics,
		logger:   logger.WithFields(logrus.Fields{"component": "builder", "strategy": strategy}),
		now:      clock,
		strategy: strategy,
		params:   params,
	}, nil
}

// Strategy returns the default strategy name of built orders.
func (b *Builder) Strategy() string {
	return b.strategy
}

// Params returns a copy of the resolved parameters.
func (b *Builder) Params() config.StrategyParameters {
	return config.Resolve(b.params, nil, nil)
}

// Ledger returns the ledger orders are checked against.
func (b *Builder) Ledger() *ledger.Ledger {
	return b.ledger
}

// IsDuplicate reports whether an equivalent order is already working.
func (b *Builder) IsDuplicate(legs []models.Leg) bool {
	return b.ledger.IsDuplicate(legs)
}

// NextOrderID returns the next process-wide order id.
func (b *Builder) NextOrderID() int64 {
	return b.ids.Next()
}

type buildOptions struct {
	strategyID       string
	expiry           time.Time
	sideDescriptions []string
	overrides        *config.Overrides
}

// Option customizes a single BuildOrder call.
type Option func(*buildOptions)

// WithStrategyID sets the strategy id used in the order tag.
func WithStrategyID(id string) Option {
	return func(o *buildOptions) { o.strategyID = id }
}

// WithExpiry overrides the expiry taken from the first leg.
func WithExpiry(expiry time.Time) Option {
	return func(o *buildOptions) { o.expiry = expiry }
}

// WithSideDescriptions sets one descriptor per leg instead of the derived
// "<long|short><Call|Put>" names.
func WithSideDescriptions(desc ...string) Option {
	return func(o *buildOptions) { o.sideDescriptions = desc }
}

// WithOverrides applies call-site parameter overrides for this call only.
func WithOverrides(ov *config.Overrides) Option {
	return func(o *buildOptions) { o.overrides = ov }
}

// BuildOrder prices and sizes an order for legs. It returns (nil, nil) when
// an equivalent order is already working or a debit order sizes to zero
// contracts. Input problems wrap ErrInvalidInput and pricer failures wrap
// ErrPricingFailure; in both cases no order is returned.
func (b *Builder) BuildOrder(legs []models.Leg, strategyName string, credit bool, opts ...Option) (*models.OrderSpec, error) {
	if strategyName == "" {
		strategyName = b.strategy
	}
	start := time.Now()
	defer func() { b.metrics.ObserveBuildDuration(strategyName, time.Since(start)) }()

	order, reason, err := b.build(legs, strategyName, credit, opts)
	if reason != "" {
		b.metrics.RecordRejection(strategyName, reason)
	}
	if err != nil {
		entry := b.logger.WithError(err)
		if errors.Is(err, ErrPricingFailure) {
			entry.Error("Order construction abandoned")
		} else {
			entry.Warn("Order rejected")
		}
		return nil, err
	}
	if order != nil {
		b.metrics.RecordOrderBuilt(strategyName, order.Quantity, order.Credit)
	}
	return order, nil
}

func (b *Builder) build(legs []models.Leg, strategyName string, credit bool, opts []Option) (*models.OrderSpec, string, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	params := b.params
	if o.overrides != nil {
		params = config.Resolve(b.params, nil, o.overrides)
		if err := params.Validate(); err != nil {
			return nil, monitoring.ReasonInvalidInput, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}

	if len(legs) == 0 {
		return nil, monitoring.ReasonInvalidInput, fmt.Errorf("%w: no legs", ErrInvalidInput)
	}
	seen := make(map[string]int, len(legs))
	for i, leg := range legs {
		if err := leg.Validate(); err != nil {
			return nil, monitoring.ReasonInvalidInput, fmt.Errorf("%w: leg %d: %w", ErrInvalidInput, i, err)
		}
		if j, ok := seen[leg.Contract.Symbol]; ok {
			return nil, monitoring.ReasonInvalidInput, fmt.Errorf("%w: legs %d and %d repeat contract %s", ErrInvalidInput, j, i, leg.Contract.Symbol)
		}
		seen[leg.Contract.Symbol] = i
	}
	if o.sideDescriptions != nil && len(o.sideDescriptions) != len(legs) {
		return nil, monitoring.ReasonInvalidInput, fmt.Errorf("%w: %d side descriptions for %d legs", ErrInvalidInput, len(o.sideDescriptions), len(legs))
	}

	if b.ledger.IsDuplicate(legs) {
		b.logger.WithField("legs", len(legs)).Info("Duplicate order, an equivalent order is already working")
		return nil, monitoring.ReasonDuplicate, nil
	}

	now := b.now()
	strategyID := o.strategyID
	if strategyID == "" {
		strategyID = strings.ReplaceAll(strategyName, " ", "")
	}
	expiry := o.expiry
	if expiry.IsZero() {
		expiry = legs[0].Contract.Expiry
	}

	contracts := make([]*models.Contract, len(legs))
	for i, leg := range legs {
		contracts[i] = leg.Contract
	}
	if err := b.pricer.SetGreeks(contracts, now); err != nil {
		return nil, monitoring.ReasonPricingFailure, fmt.Errorf("%w: greeks: %w", ErrPricingFailure, err)
	}

	details := make([]models.LegDetail, len(legs))
	orderMid, spread, units := 0.0, 0.0, 0
	for i, leg := range legs {
		c := leg.Contract
		desc := leg.Key().String()
		if o.sideDescriptions != nil {
			desc = o.sideDescriptions[i]
		}
		var greeks models.Greeks
		if c.Greeks != nil {
			greeks = *c.Greeks
		}
		mid := c.MidPrice()
		details[i] = models.LegDetail{
			Key:               leg.Key(),
			Description:       desc,
			Symbol:            c.Symbol,
			Right:             c.Right,
			Side:              leg.Side,
			Strike:            c.Strike,
			Expiry:            c.Expiry,
			Greeks:            greeks,
			ImpliedVolatility: c.ImpliedVolatility,
			MidPrice:          mid,
			BidAskSpread:      c.BidAskSpread(),
		}
		orderMid -= float64(leg.Side) * mid
		spread += c.BidAskSpread()
		units += abs(leg.Side)
	}

	adjustment := params.LimitOrderRelativePriceAdjustment
	var limitPrice float64
	if params.LimitOrderAbsolutePrice != nil {
		adjustment = 0
		if math.Abs(orderMid) > zeroMid {
			adjustment = *params.LimitOrderAbsolutePrice/orderMid - 1
		}
		limitPrice = *params.LimitOrderAbsolutePrice
	} else {
		limitPrice = orderMid * (1 + adjustment)
	}
	totalSlippage := float64(units) * params.Slippage
	limitPrice -= totalSlippage

	orderMid = util.RoundCents(orderMid)
	limitPrice = util.RoundToTick(limitPrice, params.LimitOrderTick)

	if params.ValidateBidAskSpread && math.Abs(orderMid) > zeroMid && spread/math.Abs(orderMid) > params.BidAskSpreadRatio {
		return nil, monitoring.ReasonInvalidInput, fmt.Errorf("%w: bid-ask spread %.2f exceeds %.0f%% of mid %.2f",
			ErrInvalidInput, spread, params.BidAskSpreadRatio*100, orderMid)
	}

	qtyPrice := orderMid
	if params.UseLimitOrders {
		qtyPrice = limitPrice
	}
	account := b.account.Snapshot()
	maxQty := MaxOrderQuantity(params, account)
	quantity, targetPremium := SizeQuantity(TargetPremium(params, account), maxQty, account.MarginRemaining, qtyPrice, credit)
	if quantity == 0 {
		b.logger.WithFields(logrus.Fields{
			"target_premium": *targetPremium,
			"price":          qtyPrice,
		}).Info("Target premium buys no contracts, skipping order")
		return nil, monitoring.ReasonZeroQuantity, nil
	}
	if params.ValidateQuantity && targetPremium != nil && quantity > maxQty {
		return nil, monitoring.ReasonInvalidInput, fmt.Errorf("%w: quantity %d exceeds max order quantity %d", ErrInvalidInput, quantity, maxQty)
	}

	maxLoss := risk.MaxLoss(legs)
	treg := risk.TReg(orderMid, maxLoss, quantity)
	margin, err := b.valuer.StressMargin(legs, orderMid, params.PortfolioMarginStress, quantity, now)
	if err != nil {
		return nil, monitoring.ReasonPricingFailure, fmt.Errorf("%w: stress margin: %w", ErrPricingFailure, err)
	}
	targetProfit, err := b.valuer.ProfitTarget(risk.ProfitTargetInput{
		At:          now,
		ThetaDays:   params.ThetaProfitDays,
		Method:      params.ProfitTargetMethod,
		Legs:        legs,
		Percent:     params.ProfitTarget,
		OpenPremium: orderMid,
		TReg:        treg,
		Margin:      margin,
		Quantity:    quantity,
	})
	if err != nil {
		return nil, monitoring.ReasonPricingFailure, fmt.Errorf("%w: profit target: %w", ErrPricingFailure, err)
	}

	id := b.ids.Next()
	order := &models.OrderSpec{
		ID:                      id,
		Tag:                     fmt.Sprintf("%s-%d", strategyID, id),
		Strategy:                strategyName,
		StrategyID:              strategyID,
		CreatedAt:               now,
		Expiry:                  expiry,
		ExpiryStr:               expiry.Format(models.DateLayout),
		ExpiryLastTradingDay:    b.calendar.LastTradingDay(expiry),
		ExpiryMarketCloseCutoff: b.calendar.CloseCutoff(expiry, params.MarketCloseCutoffTime),
		Legs:                    details,
		Credit:                  credit,
		OrderMidPrice:           orderMid,
		BidAskSpread:            spread,
		Slippage:                params.Slippage,
		TotalSlippage:           totalSlippage,
		LimitPrice:              limitPrice,
		QtyMidPrice:             qtyPrice,
		Quantity:                quantity,
		MaxOrderQuantity:        maxQty,
		TargetPremium:           targetPremium,
		MaxLoss:                 maxLoss,
		TReg:                    treg,
		PortfolioMargin:         margin,
		TargetProfit:            targetProfit,
		StopLoss:                risk.StopLoss(credit, orderMid, maxLoss, params.StopLossMultiplier, params.CapStopLoss),
		ProfitTargetMethod:      string(params.ProfitTargetMethod),
		Open: models.ExecutionRecord{
			OrderMidPrice: orderMid,
			Limit: &models.LimitOrder{
				Enabled:    params.UseLimitOrders,
				Adjustment: adjustment,
				Price:      limitPrice,
				ExpiresAt:  now.Add(params.LimitOrderExpiration.Std()),
			},
		},
	}

	b.logger.WithFields(logrus.Fields{
		"id":          order.ID,
		"tag":         order.Tag,
		"quantity":    order.Quantity,
		"mid":         order.OrderMidPrice,
		"limit_price": order.LimitPrice,
		"max_loss":    order.MaxLoss,
	}).Info("Order constructed")
	return order, "", nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
