package strategy

import (
	"time"

	"github.com/bryan01993/QuantConnectProjectGit/internal/config"
	"github.com/bryan01993/QuantConnectProjectGit/internal/models"
)

// TargetDTE returns the DTE to aim for. With dynamic selection the DTE of the
// most recently closed position replaces the configured one.
func TargetDTE(params config.StrategyParameters, recentlyClosedDTE []int, dynamic bool) int {
	if dynamic && params.DynamicDTESelection && len(recentlyClosedDTE) > 0 {
		return recentlyClosedDTE[len(recentlyClosedDTE)-1]
	}
	return params.DTE
}

// SelectExpiry picks the expiry within ±dteWindow of the target DTE: the
// furthest one when useFurthestExpiry is set, the earliest otherwise.
// The second result is false when no expiry qualifies.
func SelectExpiry(expiries []time.Time, now time.Time, params config.StrategyParameters, recentlyClosedDTE []int, dynamic bool) (time.Time, bool) {
	target := TargetDTE(params, recentlyClosedDTE, dynamic)
	lo, hi := target-params.DTEWindow, target+params.DTEWindow

	var best time.Time
	found := false
	for _, e := range expiries {
		// Past expiries
		if models.DaysBetween(e, now) > 0 {
			continue
		}
		dte := models.DaysBetween(now, e)
		if dte < lo || dte > hi {
			continue
		}
		switch {
		case !found:
			best, found = e, true
		case params.UseFurthestExpiry && e.After(best):
			best = e
		case !params.UseFurthestExpiry && e.Before(best):
			best = e
		}
	}
	return best, found
}
