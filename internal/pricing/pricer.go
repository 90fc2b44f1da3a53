// Package pricing provides the theoretical option pricer used for stress and
// time-decay projections, and the Greeks provider that fills contract snapshots.
package pricing

import (
	"errors"
	"time"

	"github.com/bryan01993/QuantConnectProjectGit/internal/models"
)

var (
	// ErrInvalidInput is returned when a contract cannot be priced with the given inputs.
	ErrInvalidInput = errors.New("invalid pricing input")
	// ErrNoConvergence is returned when implied volatility cannot be solved from the quote.
	ErrNoConvergence = errors.New("implied volatility did not converge")
)

// Pricer values one contract at an arbitrary spot and time.
// Implementations must be deterministic for given inputs.
type Pricer interface {
	// Price returns the theoretical per-share price of c with volatility sigma,
	// underlying at spot, evaluated at time at.
	Price(c *models.Contract, sigma, spot float64, at time.Time) (float64, error)
	// SetGreeks fills Greeks and implied volatility on each contract snapshot.
	SetGreeks(contracts []*models.Contract, at time.Time) error
}
