// Package models provides data structures and state management for multi-leg option orders.
package models

import (
	"fmt"
	"time"
)

// OrderState represents the lifecycle state of an order
type OrderState string

const (
	// Entry states
	StateConstructed OrderState = "constructed"  // Built, not yet handed to execution
	StateSubmitted   OrderState = "submitted"    // Opening order handed to execution
	StateOpenWorking OrderState = "open_working" // Opening order working at the broker
	StateOpenFilled  OrderState = "open_filled"  // Position is open

	// Exit states
	StateCloseWorking OrderState = "close_working" // Closing order working at the broker
	StateCloseFilled  OrderState = "close_filled"  // Closing order filled
	StateClosed       OrderState = "closed"        // Position closed and booked

	StateCancelled OrderState = "cancelled" // Working order cancelled, terminal
)

// StateTransition defines valid state transitions
type StateTransition struct {
	From        OrderState
	To          OrderState
	Condition   string
	Description string
}

// ValidTransitions lists every allowed move of the order state machine.
var ValidTransitions = []StateTransition{
	// Opening
	{StateConstructed, StateSubmitted, "order_submitted", "Order handed to execution"},
	{StateSubmitted, StateOpenWorking, "order_accepted", "Broker accepted the opening order"},
	{StateSubmitted, StateOpenFilled, "order_filled", "Opening order filled immediately"},
	{StateOpenWorking, StateOpenFilled, "order_filled", "Opening order filled"},

	// Closing
	{StateOpenFilled, StateCloseWorking, "close_submitted", "Closing order handed to execution"},
	{StateCloseWorking, StateCloseFilled, "order_filled", "Closing order filled"},
	{StateCloseWorking, StateOpenFilled, "close_cancelled", "Closing order cancelled, position still open"},
	{StateCloseFilled, StateClosed, "position_closed", "Position booked as closed"},

	// Cancellation from any working state
	{StateSubmitted, StateCancelled, "order_cancelled", "Opening order cancelled before acceptance"},
	{StateOpenWorking, StateCancelled, "order_cancelled", "Opening order cancelled"},
	{StateCloseWorking, StateCancelled, "order_cancelled", "Closing order cancelled"},
}

// StateMachine manages order state transitions
type StateMachine struct {
	transitionTime  time.Time
	transitionCount map[OrderState]int
	currentState    OrderState
	previousState   OrderState
}

// NewStateMachine creates a new state machine
func NewStateMachine() *StateMachine {
	return &StateMachine{
		currentState:    StateConstructed,
		previousState:   StateConstructed,
		transitionTime:  time.Now().UTC(),
		transitionCount: make(map[OrderState]int),
	}
}

// NewStateMachineFromState rebuilds a machine positioned at a persisted state.
func NewStateMachineFromState(state OrderState) *StateMachine {
	sm := NewStateMachine()
	if state != "" {
		sm.currentState = state
		sm.previousState = state
	}
	return sm
}

// GetCurrentState returns the current state
func (sm *StateMachine) GetCurrentState() OrderState {
	return sm.currentState
}

// GetPreviousState returns the previous state
func (sm *StateMachine) GetPreviousState() OrderState {
	return sm.previousState
}

// IsValidTransition checks if a transition is valid
func (sm *StateMachine) IsValidTransition(to OrderState, condition string) error {
	for _, transition := range ValidTransitions {
		if transition.From == sm.currentState && transition.To == to && transition.Condition == condition {
			return nil
		}
	}
	return fmt.Errorf("invalid transition from %s to %s with condition '%s'",
		sm.currentState, to, condition)
}

// Transition moves to a new state
func (sm *StateMachine) Transition(to OrderState, condition string) error {
	if err := sm.IsValidTransition(to, condition); err != nil {
		return err
	}

	sm.previousState = sm.currentState
	sm.currentState = to
	sm.transitionTime = time.Now().UTC()
	sm.transitionCount[to]++
	return nil
}

// GetTransitionCount returns how many times we've been in a state
func (sm *StateMachine) GetTransitionCount(state OrderState) int {
	return sm.transitionCount[state]
}

// IsWorking returns true while an order is live at the broker
func (sm *StateMachine) IsWorking() bool {
	switch sm.currentState {
	case StateSubmitted, StateOpenWorking, StateCloseWorking:
		return true
	default:
		return false
	}
}

// IsTerminal returns true once no further transitions are possible
func (sm *StateMachine) IsTerminal() bool {
	return sm.currentState == StateClosed || sm.currentState == StateCancelled
}

// GetStateDescription returns a human-readable description of the current state
func (sm *StateMachine) GetStateDescription() string {
	switch sm.currentState {
	case StateConstructed:
		return "Order constructed, not yet submitted"
	case StateSubmitted:
		return "Opening order submitted, waiting for broker confirmation"
	case StateOpenWorking:
		return "Opening order working"
	case StateOpenFilled:
		return "Position open"
	case StateCloseWorking:
		return "Closing order working"
	case StateCloseFilled:
		return "Closing order filled, booking position"
	case StateClosed:
		return "Position closed"
	case StateCancelled:
		return "Order cancelled"
	default:
		return "Unknown state"
	}
}

// Copy creates a deep copy of the StateMachine
func (sm *StateMachine) Copy() *StateMachine {
	if sm == nil {
		return nil
	}

	newSM := &StateMachine{
		currentState:   sm.currentState,
		previousState:  sm.previousState,
		transitionTime: sm.transitionTime,
	}

	newSM.transitionCount = make(map[OrderState]int, len(sm.transitionCount))
	for k, v := range sm.transitionCount {
		newSM.transitionCount[k] = v
	}

	return newSM
}
