package strategy

import "errors"

var (
	// ErrInvalidInput covers unusable legs, mismatched leg lists, unsupported
	// option types, missing parameters and orders rejected by validation.
	ErrInvalidInput = errors.New("invalid order input")
	// ErrPricingFailure is returned when the theoretical pricer fails while an
	// order is being constructed. No partial order is returned.
	ErrPricingFailure = errors.New("pricing failure")
	// ErrNoContract is returned when a leg template matches nothing in the chain.
	ErrNoContract = errors.New("no matching contract")
)
