// Package contracts provides contract search over an option chain snapshot.
package contracts

import (
	"math"
	"sort"
	"time"

	"github.com/bryan01993/QuantConnectProjectGit/internal/models"
)

const strikeEpsilon = 1e-9

// FilterByRight returns the contracts of the given right, preserving order.
func FilterByRight(chain []*models.Contract, right models.Right) []*models.Contract {
	out := make([]*models.Contract, 0, len(chain))
	for _, c := range chain {
		if c != nil && c.Right == right {
			out = append(out, c)
		}
	}
	return out
}

// FilterByExpiry returns the contracts expiring on the same calendar day as expiry.
func FilterByExpiry(chain []*models.Contract, expiry time.Time) []*models.Contract {
	day := expiry.Format(models.DateLayout)
	out := make([]*models.Contract, 0, len(chain))
	for _, c := range chain {
		if c != nil && c.ExpiryString() == day {
			out = append(out, c)
		}
	}
	return out
}

// SortByStrike returns a copy of cs ordered by strike.
func SortByStrike(cs []*models.Contract, descending bool) []*models.Contract {
	out := append([]*models.Contract(nil), cs...)
	sort.SliceStable(out, func(i, j int) bool {
		if descending {
			return out[i].Strike > out[j].Strike
		}
		return out[i].Strike < out[j].Strike
	})
	return out
}

// FindNearestByDelta walks the contracts of the given right in strike order
// and returns the first whose absolute delta (in percent) does not exceed
// targetDelta. Puts are normally searched descending and calls ascending so
// the walk starts at the money and moves out. Contracts without Greeks are
// skipped. Returns nil when nothing qualifies.
func FindNearestByDelta(chain []*models.Contract, right models.Right, targetDelta float64, descending bool) *models.Contract {
	for _, c := range SortByStrike(FilterByRight(chain, right), descending) {
		d := c.DeltaPct()
		if math.IsNaN(d) {
			continue
		}
		if d <= targetDelta {
			return c
		}
	}
	return nil
}

// DefaultDescending returns the natural out-of-the-money search direction for right.
func DefaultDescending(right models.Right) bool {
	return right == models.RightPut
}

// FindByStrike returns the contract of the given right at exactly strike.
func FindByStrike(chain []*models.Contract, right models.Right, strike float64) *models.Contract {
	for _, c := range chain {
		if c != nil && c.Right == right && math.Abs(c.Strike-strike) < strikeEpsilon {
			return c
		}
	}
	return nil
}

// FindNearestStrike returns the contract of the given right whose strike is
// closest to strike. Ties go to the lower strike.
func FindNearestStrike(chain []*models.Contract, right models.Right, strike float64) *models.Contract {
	var best *models.Contract
	bestDist := math.Inf(1)
	for _, c := range SortByStrike(FilterByRight(chain, right), false) {
		if dist := math.Abs(c.Strike - strike); dist < bestDist-strikeEpsilon {
			best, bestDist = c, dist
		}
	}
	return best
}

// FindATM returns the contract of the given right nearest to the underlying price.
func FindATM(chain []*models.Contract, right models.Right) *models.Contract {
	for _, c := range chain {
		if c != nil && c.UnderlyingPrice > 0 {
			return FindNearestStrike(chain, right, c.UnderlyingPrice)
		}
	}
	return nil
}

// Expiries returns the distinct expiry dates in the chain, earliest first.
func Expiries(chain []*models.Contract) []time.Time {
	seen := make(map[string]bool)
	var out []time.Time
	for _, c := range chain {
		if c == nil {
			continue
		}
		key := c.ExpiryString()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c.Expiry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
