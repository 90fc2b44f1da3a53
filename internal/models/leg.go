package models

import "fmt"

// Leg pairs a contract with a signed side: positive is long, negative is short,
// the magnitude is the relative weight. A leg never mutates its contract.
type Leg struct {
	Contract *Contract
	Side     int
}

// NewLegs zips contracts and sides into legs.
func NewLegs(contracts []*Contract, sides []int) ([]Leg, error) {
	if len(contracts) != len(sides) {
		return nil, fmt.Errorf("contracts (%d) and sides (%d) must have the same length", len(contracts), len(sides))
	}
	legs := make([]Leg, len(contracts))
	for i := range contracts {
		legs[i] = Leg{Contract: contracts[i], Side: sides[i]}
	}
	return legs, nil
}

// Validate reports whether the leg can take part in an order.
func (l Leg) Validate() error {
	if l.Contract == nil {
		return fmt.Errorf("leg has no contract")
	}
	if l.Side == 0 {
		return fmt.Errorf("leg %s has zero side", l.Contract.Symbol)
	}
	if !l.Contract.Right.Valid() {
		return fmt.Errorf("leg %s: unsupported option type %q", l.Contract.Symbol, l.Contract.Right)
	}
	return nil
}

// Key returns the side/right classification of the leg.
func (l Leg) Key() LegKey {
	return KeyFor(l.Side, l.Contract.Right)
}

// LegKey is the closed set of side × right combinations.
type LegKey uint8

const (
	// LongCall is a bought call
	LongCall LegKey = iota
	// ShortCall is a sold call
	ShortCall
	// LongPut is a bought put
	LongPut
	// ShortPut is a sold put
	ShortPut
)

// KeyFor classifies a signed side and a right.
func KeyFor(side int, right Right) LegKey {
	switch {
	case side > 0 && right == RightCall:
		return LongCall
	case side > 0:
		return LongPut
	case right == RightCall:
		return ShortCall
	default:
		return ShortPut
	}
}

func (k LegKey) String() string {
	switch k {
	case LongCall:
		return "longCall"
	case ShortCall:
		return "shortCall"
	case LongPut:
		return "longPut"
	case ShortPut:
		return "shortPut"
	default:
		return "unknown"
	}
}

// MarshalText keeps the descriptor form in JSON output.
func (k LegKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses the descriptor form.
func (k *LegKey) UnmarshalText(b []byte) error {
	switch string(b) {
	case "longCall":
		*k = LongCall
	case "shortCall":
		*k = ShortCall
	case "longPut":
		*k = LongPut
	case "shortPut":
		*k = ShortPut
	default:
		return fmt.Errorf("unknown leg key %q", string(b))
	}
	return nil
}
