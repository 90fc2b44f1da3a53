package strategy

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/bryan01993/QuantConnectProjectGit/internal/config"
	"github.com/bryan01993/QuantConnectProjectGit/internal/contracts"
	"github.com/bryan01993/QuantConnectProjectGit/internal/models"
	"github.com/bryan01993/QuantConnectProjectGit/internal/monitoring"
)

// CustomLeg is one (side, type, target delta) tuple of a custom order.
// Delta is in percent.
type CustomLeg struct {
	Right models.Right
	Side  int
	Delta float64
}

// CustomLegs zips parallel lists into tuples. A single type applies to
// every leg. Mismatched lengths are an input error.
func CustomLegs(types []string, deltas []float64, sides []int) ([]CustomLeg, error) {
	if len(sides) == 0 {
		return nil, fmt.Errorf("%w: sides cannot be empty", ErrInvalidInput)
	}
	if len(deltas) != len(sides) {
		return nil, fmt.Errorf("%w: %d deltas for %d sides", ErrInvalidInput, len(deltas), len(sides))
	}
	if len(types) == 1 && len(sides) > 1 {
		expanded := make([]string, len(sides))
		for i := range expanded {
			expanded[i] = types[0]
		}
		types = expanded
	}
	if len(types) != len(sides) {
		return nil, fmt.Errorf("%w: %d types for %d sides", ErrInvalidInput, len(types), len(sides))
	}

	out := make([]CustomLeg, len(sides))
	for i := range sides {
		right, err := models.ParseRight(types[i])
		if err != nil {
			return nil, fmt.Errorf("%w: leg %d: %w", ErrInvalidInput, i, err)
		}
		out[i] = CustomLeg{Right: right, Side: sides[i], Delta: deltas[i]}
	}
	return out, nil
}

// CustomLegsFromConfig converts configured tuples.
func CustomLegsFromConfig(legs []config.CustomLeg) ([]CustomLeg, error) {
	types := make([]string, len(legs))
	deltas := make([]float64, len(legs))
	sides := make([]int, len(legs))
	for i, l := range legs {
		types[i], deltas[i], sides[i] = l.Type, l.Delta, l.Side
	}
	return CustomLegs(types, deltas, sides)
}

// BuildCustomOrder selects one contract per tuple by target delta and builds
// the order. Puts are searched from the highest strike down and calls from
// the lowest strike up. When credit is nil it is inferred from the net mid
// price of the selected legs. If any tuple matches no contract the result is
// (nil, nil).
func (b *Builder) BuildCustomOrder(chain []*models.Contract, tuples []CustomLeg, strategyName string, credit *bool, opts ...Option) (*models.OrderSpec, error) {
	if strategyName == "" {
		strategyName = b.strategy
	}
	if len(tuples) == 0 {
		b.metrics.RecordRejection(strategyName, monitoring.ReasonInvalidInput)
		return nil, fmt.Errorf("%w: no legs", ErrInvalidInput)
	}
	if err := b.ensureGreeks(chain); err != nil {
		b.metrics.RecordRejection(strategyName, monitoring.ReasonPricingFailure)
		b.logger.WithError(err).Error("Custom order abandoned")
		return nil, err
	}

	legs := make([]models.Leg, 0, len(tuples))
	netMid := 0.0
	for i, t := range tuples {
		if t.Side == 0 || !t.Right.Valid() {
			b.metrics.RecordRejection(strategyName, monitoring.ReasonInvalidInput)
			return nil, fmt.Errorf("%w: leg %d: side %d type %q", ErrInvalidInput, i, t.Side, t.Right)
		}
		c := contracts.FindNearestByDelta(chain, t.Right, t.Delta, contracts.DefaultDescending(t.Right))
		if c == nil {
			b.logger.WithFields(logrus.Fields{
				"leg":   i,
				"type":  t.Right,
				"delta": t.Delta,
			}).Info("No contract for custom leg, no order")
			b.metrics.RecordRejection(strategyName, monitoring.ReasonNoContracts)
			return nil, nil
		}
		legs = append(legs, models.Leg{Contract: c, Side: t.Side})
		netMid -= float64(t.Side) * c.MidPrice()
	}

	isCredit := netMid > 0
	if credit != nil {
		isCredit = *credit
	}
	return b.BuildOrder(legs, strategyName, isCredit, opts...)
}

// ensureGreeks fills Greeks on contracts that have none.
func (b *Builder) ensureGreeks(chain []*models.Contract) error {
	var missing []*models.Contract
	for _, c := range chain {
		if c != nil && c.Greeks == nil {
			missing = append(missing, c)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	if err := b.pricer.SetGreeks(missing, b.now()); err != nil {
		return fmt.Errorf("%w: greeks: %w", ErrPricingFailure, err)
	}
	return nil
}
