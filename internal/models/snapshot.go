package models

import "time"

// WorkingLeg is the registry entry of one contract of a working order.
type WorkingLeg struct {
	Expiry string `json:"expiry"`
	Side   int    `json:"side"`
}

// LedgerSnapshot is the persisted form of one strategy's ledger.
type LedgerSnapshot struct {
	LastUpdated       time.Time                        `json:"last_updated"`
	LastOpened        time.Time                        `json:"last_opened"`
	Working           map[string]map[string]WorkingLeg `json:"working"`
	Strategy          string                           `json:"strategy"`
	Orders            []*OrderSpec                     `json:"orders"`
	LimitOrders       []string                         `json:"limit_orders"`
	RecentlyClosedDTE []int                            `json:"recently_closed_dte"`
	ActivePositions   int                              `json:"active_positions"`
	WorkingOpenOrders int                              `json:"working_open_orders"`
}

// MaxOrderID returns the largest order id in the snapshot, or 0.
func (s *LedgerSnapshot) MaxOrderID() int64 {
	var maxID int64
	for _, o := range s.Orders {
		if o != nil && o.ID > maxID {
			maxID = o.ID
		}
	}
	return maxID
}
