package models

import "time"

// ExecutionEventType identifies what the execution layer observed.
type ExecutionEventType string

const (
	EventAccepted       ExecutionEventType = "accepted"        // opening order live at the broker
	EventFilled         ExecutionEventType = "filled"          // opening or closing order (partially) filled
	EventCancelled      ExecutionEventType = "cancelled"       // working order cancelled, terminal
	EventCloseSubmitted ExecutionEventType = "close_submitted" // closing order sent
	EventCloseCancelled ExecutionEventType = "close_cancelled" // closing order pulled, position stays open
	EventStalePrice     ExecutionEventType = "stale_price"     // quote too old to reprice
)

// ExecutionEvent is a fill/cancel notification for one order tag.
type ExecutionEvent struct {
	Time      time.Time          `json:"time"`
	Type      ExecutionEventType `json:"type"`
	Tag       string             `json:"tag"`
	BrokerRef string             `json:"broker_ref,omitempty"`
	// Fills is the number of contracts filled by this event; zero means the whole order.
	Fills     int     `json:"fills"`
	FillPrice float64 `json:"fill_price"`
	MidPrice  float64 `json:"mid_price"`
}
