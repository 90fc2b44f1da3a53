package models

import "sync/atomic"

// OrderIDSequence hands out process-wide order ids. One instance is shared by
// reference between all strategy instances; it is safe for concurrent use.
type OrderIDSequence struct {
	last atomic.Int64
}

// NewOrderIDSequence creates a sequence whose first id is 1.
func NewOrderIDSequence() *OrderIDSequence {
	return &OrderIDSequence{}
}

// Next returns the next id, strictly greater than every id returned before.
func (s *OrderIDSequence) Next() int64 {
	return s.last.Add(1)
}

// Last returns the most recently issued id, or 0.
func (s *OrderIDSequence) Last() int64 {
	return s.last.Load()
}

// Advance moves the sequence forward so the next id is greater than id.
// Used when restoring ledgers from a snapshot.
func (s *OrderIDSequence) Advance(id int64) {
	for {
		cur := s.last.Load()
		if id <= cur || s.last.CompareAndSwap(cur, id) {
			return
		}
	}
}
