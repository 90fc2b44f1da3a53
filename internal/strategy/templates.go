package strategy

import (
	"fmt"
	"math"
	"strings"

	"github.com/bryan01993/QuantConnectProjectGit/internal/config"
	"github.com/bryan01993/QuantConnectProjectGit/internal/contracts"
	"github.com/bryan01993/QuantConnectProjectGit/internal/models"
)

// Selector picks how a LegTemplate finds its contract.
type Selector int

const (
	// SelectByDelta picks the nearest contract at or below a target delta.
	SelectByDelta Selector = iota
	// SelectByOffset picks the strike nearest to an earlier leg's strike plus an offset.
	SelectByOffset
	// SelectATM picks the strike nearest to the underlying price.
	SelectATM
)

// LegTemplate describes one leg of a strategy before contracts are known.
type LegTemplate struct {
	Right  models.Right
	Side   int
	Select Selector
	Delta  float64 // percent, SelectByDelta
	Anchor int     // index of an earlier leg, SelectByOffset
	Offset float64 // strike points from the anchor, SelectByOffset
}

// Template is the strategy-specific part of order construction.
type Template interface {
	Name() string
	DescribeLegs(params config.StrategyParameters) ([]LegTemplate, error)
	SupportsDynamicDTE() bool
}

// AssembleLegs resolves templates against a single-expiry chain. It returns
// ErrNoContract when any leg cannot be matched.
func AssembleLegs(chain []*models.Contract, templates []LegTemplate) ([]models.Leg, error) {
	legs := make([]models.Leg, 0, len(templates))
	for i, t := range templates {
		var c *models.Contract
		switch t.Select {
		case SelectByDelta:
			c = contracts.FindNearestByDelta(chain, t.Right, t.Delta, contracts.DefaultDescending(t.Right))
		case SelectATM:
			c = contracts.FindATM(chain, t.Right)
		case SelectByOffset:
			if t.Anchor < 0 || t.Anchor >= i {
				return nil, fmt.Errorf("%w: leg %d anchors on leg %d", ErrInvalidInput, i, t.Anchor)
			}
			anchor := legs[t.Anchor].Contract.Strike
			c = contracts.FindNearestStrike(chain, t.Right, anchor+t.Offset)
			// A wing that collapses onto its anchor is not a wing
			if c != nil && t.Offset != 0 && math.Abs(c.Strike-anchor) < 1e-9 {
				c = nil
			}
		default:
			return nil, fmt.Errorf("%w: leg %d has unknown selector %d", ErrInvalidInput, i, t.Select)
		}
		if c == nil {
			return nil, fmt.Errorf("%w: leg %d (%s)", ErrNoContract, i, models.KeyFor(t.Side, t.Right))
		}
		legs = append(legs, models.Leg{Contract: c, Side: t.Side})
	}
	return legs, nil
}

type putSpread struct{}

func (putSpread) Name() string             { return "put_spread" }
func (putSpread) SupportsDynamicDTE() bool { return true }
func (putSpread) DescribeLegs(p config.StrategyParameters) ([]LegTemplate, error) {
	return []LegTemplate{
		{Right: models.RightPut, Side: -1, Select: SelectByDelta, Delta: p.Delta},
		{Right: models.RightPut, Side: 1, Select: SelectByOffset, Anchor: 0, Offset: -p.WingSize},
	}, nil
}

type callSpread struct{}

func (callSpread) Name() string             { return "call_spread" }
func (callSpread) SupportsDynamicDTE() bool { return true }
func (callSpread) DescribeLegs(p config.StrategyParameters) ([]LegTemplate, error) {
	return []LegTemplate{
		{Right: models.RightCall, Side: -1, Select: SelectByDelta, Delta: p.Delta},
		{Right: models.RightCall, Side: 1, Select: SelectByOffset, Anchor: 0, Offset: p.WingSize},
	}, nil
}

type ironCondor struct{}

func (ironCondor) Name() string             { return "iron_condor" }
func (ironCondor) SupportsDynamicDTE() bool { return true }
func (ironCondor) DescribeLegs(p config.StrategyParameters) ([]LegTemplate, error) {
	return []LegTemplate{
		{Right: models.RightPut, Side: -1, Select: SelectByDelta, Delta: p.PutDelta},
		{Right: models.RightPut, Side: 1, Select: SelectByOffset, Anchor: 0, Offset: -p.PutWingSize},
		{Right: models.RightCall, Side: -1, Select: SelectByDelta, Delta: p.CallDelta},
		{Right: models.RightCall, Side: 1, Select: SelectByOffset, Anchor: 2, Offset: p.CallWingSize},
	}, nil
}

type strangle struct{}

func (strangle) Name() string             { return "strangle" }
func (strangle) SupportsDynamicDTE() bool { return true }
func (strangle) DescribeLegs(p config.StrategyParameters) ([]LegTemplate, error) {
	return []LegTemplate{
		{Right: models.RightPut, Side: -1, Select: SelectByDelta, Delta: p.PutDelta},
		{Right: models.RightCall, Side: -1, Select: SelectByDelta, Delta: p.CallDelta},
	}, nil
}

type straddle struct{}

func (straddle) Name() string             { return "straddle" }
func (straddle) SupportsDynamicDTE() bool { return true }
func (straddle) DescribeLegs(config.StrategyParameters) ([]LegTemplate, error) {
	return []LegTemplate{
		{Right: models.RightPut, Side: -1, Select: SelectATM},
		{Right: models.RightCall, Side: -1, Select: SelectByOffset, Anchor: 0},
	}, nil
}

type ironFly struct{}

func (ironFly) Name() string             { return "iron_fly" }
func (ironFly) SupportsDynamicDTE() bool { return true }
func (ironFly) DescribeLegs(p config.StrategyParameters) ([]LegTemplate, error) {
	return []LegTemplate{
		{Right: models.RightPut, Side: -1, Select: SelectATM},
		{Right: models.RightCall, Side: -1, Select: SelectByOffset, Anchor: 0},
		{Right: models.RightPut, Side: 1, Select: SelectByOffset, Anchor: 0, Offset: -p.PutWingSize},
		{Right: models.RightCall, Side: 1, Select: SelectByOffset, Anchor: 0, Offset: p.CallWingSize},
	}, nil
}

type butterfly struct{}

func (butterfly) Name() string             { return "butterfly" }
func (butterfly) SupportsDynamicDTE() bool { return true }
func (butterfly) DescribeLegs(p config.StrategyParameters) ([]LegTemplate, error) {
	right := models.RightCall
	if p.ButterflyType != nil {
		r, err := models.ParseRight(*p.ButterflyType)
		if err != nil {
			return nil, fmt.Errorf("%w: butterfly_type: %w", ErrInvalidInput, err)
		}
		right = r
	}
	if p.ButterflyLeftWingSize <= 0 || p.ButterflyRightWingSize <= 0 {
		return nil, fmt.Errorf("%w: butterfly wings must be > 0", ErrInvalidInput)
	}
	return []LegTemplate{
		{Right: right, Side: -2, Select: SelectATM},
		{Right: right, Side: 1, Select: SelectByOffset, Anchor: 0, Offset: -p.ButterflyLeftWingSize},
		{Right: right, Side: 1, Select: SelectByOffset, Anchor: 0, Offset: p.ButterflyRightWingSize},
	}, nil
}

// custom selects every leg by its own target delta.
type custom struct {
	legs []CustomLeg
}

func (custom) Name() string             { return "custom" }
func (custom) SupportsDynamicDTE() bool { return false }
func (c custom) DescribeLegs(config.StrategyParameters) ([]LegTemplate, error) {
	if len(c.legs) == 0 {
		return nil, fmt.Errorf("%w: custom strategy without legs", ErrInvalidInput)
	}
	out := make([]LegTemplate, len(c.legs))
	for i, l := range c.legs {
		out[i] = LegTemplate{Right: l.Right, Side: l.Side, Select: SelectByDelta, Delta: l.Delta}
	}
	return out, nil
}

// NewCustomTemplate returns a template selecting each leg by target delta.
func NewCustomTemplate(legs []CustomLeg) Template {
	return custom{legs: append([]CustomLeg(nil), legs...)}
}

// TemplateFor returns the built-in template with the given name. Custom
// templates take their tuples from legs.
func TemplateFor(name string, legs []config.CustomLeg) (Template, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "put_spread":
		return putSpread{}, nil
	case "call_spread":
		return callSpread{}, nil
	case "iron_condor":
		return ironCondor{}, nil
	case "strangle":
		return strangle{}, nil
	case "straddle":
		return straddle{}, nil
	case "iron_fly":
		return ironFly{}, nil
	case "butterfly":
		return butterfly{}, nil
	case "custom":
		tuples, err := CustomLegsFromConfig(legs)
		if err != nil {
			return nil, err
		}
		return NewCustomTemplate(tuples), nil
	default:
		return nil, fmt.Errorf("%w: unknown strategy template %q", ErrInvalidInput, name)
	}
}
