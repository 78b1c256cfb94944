// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package planner

import (
	"fmt"
	"sync"
)

// StateMachine manages valid status transitions for edit sessions.
//
// The state machine enforces the following transition graph:
//
//	pending → plan_generated        : Provider returned an edit plan
//	plan_generated → validated      : Validation pipeline ran over the plan
//	validated → formatted           : Formatting pipeline ran over the plan
//	validated → applied             : Eligible files written without formatting
//	formatted → applied             : Eligible files written to disk
//	applied → tested                : Test runner executed
//	* → failed                      : Unrecoverable stage failure
//
// Status is monotonic: a session never moves backward, and failed is
// terminal. Re-running a stage the session has already passed recomputes
// that stage's results without a status change.
//
// Thread Safety:
//
//	StateMachine is safe for concurrent use.
type StateMachine struct {
	mu sync.RWMutex

	// transitions maps (from, to) pairs that are valid.
	transitions map[SessionStatus]map[SessionStatus]bool
}

// NewStateMachine creates a new state machine with all valid transitions.
//
// Outputs:
//
//	*StateMachine - Configured state machine
func NewStateMachine() *StateMachine {
	sm := &StateMachine{
		transitions: make(map[SessionStatus]map[SessionStatus]bool),
	}

	// Initialize all statuses with empty transition maps
	for _, status := range AllStatuses() {
		sm.transitions[status] = make(map[SessionStatus]bool)
	}

	// Define valid transitions
	sm.addTransition(StatusPending, StatusPlanGenerated)

	sm.addTransition(StatusPlanGenerated, StatusValidated)

	sm.addTransition(StatusValidated, StatusFormatted)
	sm.addTransition(StatusValidated, StatusApplied)

	sm.addTransition(StatusFormatted, StatusApplied)

	sm.addTransition(StatusApplied, StatusTested)

	// failed is reachable from every non-terminal status
	for _, status := range AllStatuses() {
		if !status.IsTerminal() {
			sm.addTransition(status, StatusFailed)
		}
	}

	return sm
}

// addTransition registers a valid transition.
func (sm *StateMachine) addTransition(from, to SessionStatus) {
	sm.transitions[from][to] = true
}

// CanTransition checks if a transition from one status to another is valid.
//
// Inputs:
//
//	from - Current status
//	to - Target status
//
// Outputs:
//
//	bool - True if the transition is valid
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) CanTransition(from, to SessionStatus) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if toMap, ok := sm.transitions[from]; ok {
		return toMap[to]
	}
	return false
}

// Transition attempts to transition a session from its current status.
//
// Description:
//
//	Validates the transition and updates the session status if valid.
//	Returns an error if the transition is not allowed.
//
// Inputs:
//
//	session - The session to transition
//	to - Target status
//
// Outputs:
//
//	error - ErrInvalidTransition if transition not allowed
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) Transition(session *EditSession, to SessionStatus) error {
	from := session.GetStatus()

	if !sm.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	session.SetStatus(to)
	return nil
}

// ValidTransitionsFrom returns all valid transitions from a given status.
//
// Inputs:
//
//	from - The source status
//
// Outputs:
//
//	[]SessionStatus - All valid target statuses
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) ValidTransitionsFrom(from SessionStatus) []SessionStatus {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	var result []SessionStatus
	if toMap, ok := sm.transitions[from]; ok {
		for status, valid := range toMap {
			if valid {
				result = append(result, status)
			}
		}
	}
	return result
}

// TransitionReason provides a human-readable description of a transition.
//
// Inputs:
//
//	from - Source status
//	to - Target status
//
// Outputs:
//
//	string - Description of why this transition occurs
func (sm *StateMachine) TransitionReason(from, to SessionStatus) string {
	if to == StatusFailed {
		return "Stage failed unrecoverably"
	}

	key := from.String() + "->" + to.String()

	reasons := map[string]string{
		"pending->plan_generated":   "Provider returned an edit plan",
		"plan_generated->validated": "Validation pipeline ran over the plan",
		"validated->formatted":      "Formatting pipeline ran over the plan",
		"validated->applied":        "Eligible files written without formatting",
		"formatted->applied":        "Eligible files written to disk",
		"applied->tested":           "Test runner executed",
	}

	if reason, ok := reasons[key]; ok {
		return reason
	}
	return "Unknown transition"
}

// DefaultStateMachine is the shared state machine instance.
var DefaultStateMachine = NewStateMachine()

// Transition is a convenience function using the default state machine.
func Transition(session *EditSession, to SessionStatus) error {
	return DefaultStateMachine.Transition(session, to)
}

// CanTransition is a convenience function using the default state machine.
func CanTransition(from, to SessionStatus) bool {
	return DefaultStateMachine.CanTransition(from, to)
}
