package ledger

import "errors"

var (
	// ErrDuplicateOrder is returned by Submit when an equivalent order is already working.
	ErrDuplicateOrder = errors.New("duplicate order")
	// ErrUnknownOrder is returned when a tag is not in the ledger.
	ErrUnknownOrder = errors.New("unknown order")
	// ErrOrderExists is returned when a tag is submitted twice.
	ErrOrderExists = errors.New("order already exists")
)
