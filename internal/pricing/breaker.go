package pricing

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/bryan01993/QuantConnectProjectGit/internal/models"
)

// CircuitBreakerSettings configures circuit breaker behavior
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// DefaultCircuitBreakerSettings returns the settings used when none are configured.
func DefaultCircuitBreakerSettings() CircuitBreakerSettings {
	return CircuitBreakerSettings{
		MaxRequests:  3,                // Allow 3 requests when half-open
		Interval:     60 * time.Second, // Reset counts every minute
		Timeout:      30 * time.Second, // Open circuit for 30 seconds
		MinRequests:  5,                // Minimum requests before tripping
		FailureRatio: 0.6,              // Trip if 60% failure rate
	}
}

// BreakerPricer wraps a Pricer with circuit breaker functionality. While the
// breaker is open every call fails fast with gobreaker.ErrOpenState.
type BreakerPricer struct {
	pricer  Pricer
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerPricer creates a BreakerPricer with custom settings
func NewBreakerPricer(pricer Pricer, settings CircuitBreakerSettings, logger logrus.FieldLogger) *BreakerPricer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	gbSettings := gobreaker.Settings{
		Name:        "PricerCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	return &BreakerPricer{
		pricer:  pricer,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// execCircuitBreaker is a generic helper for circuit breaker wrapper methods
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	pricer Pricer,
	fn func(Pricer) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(pricer) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// Price wraps the underlying pricer call with circuit breaker
func (b *BreakerPricer) Price(c *models.Contract, sigma, spot float64, at time.Time) (float64, error) {
	return execCircuitBreaker(b.breaker, b.pricer, func(p Pricer) (float64, error) {
		return p.Price(c, sigma, spot, at)
	})
}

// SetGreeks wraps the underlying pricer call with circuit breaker
func (b *BreakerPricer) SetGreeks(contracts []*models.Contract, at time.Time) error {
	_, err := execCircuitBreaker(b.breaker, b.pricer, func(p Pricer) (struct{}, error) {
		return struct{}{}, p.SetGreeks(contracts, at)
	})
	return err
}

// State reports the breaker state for health endpoints.
func (b *BreakerPricer) State() gobreaker.State {
	return b.breaker.State()
}
