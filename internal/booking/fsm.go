// Package booking implements the inspection scheduling workflow: a selection
// state machine plus the orchestrators that submit booking, cancellation and
// reschedule requests to the CRM.
package booking

import (
	"github.com/ridgeline-crm/ridgeline/internal/crm"
)

// State of a scheduling session.
type State string

const (
	StateIdle          State = "idle"
	StateBrowsing      State = "browsing"
	StateDateSelected  State = "date_selected"
	StateTimeSelected  State = "time_selected"
	StateReadyToSubmit State = "ready_to_submit"
	StateSubmitting    State = "submitting"
	StateConfirmed     State = "confirmed"
	StateFailed        State = "failed"
)

// PendingSelection is the in-progress, unsubmitted choice. It is promoted to
// a booking request only by a successful submit, and survives a failed one so
// the user can retry without re-entering anything.
type PendingSelection struct {
	Date             string        `json:"date,omitempty"` // YYYY-MM-DD
	Slot             *crm.TimeSlot `json:"time,omitempty"`
	Presence         crm.Presence  `json:"will_someone_be_present,omitempty"`
	InspectionTypeID string        `json:"inspection_type_id,omitempty"`
}

// Complete reports whether every field the booking endpoint needs is set.
func (p PendingSelection) Complete() bool {
	return p.Date != "" && p.Slot != nil && p.Presence != "" && p.InspectionTypeID != ""
}

// FSM guards the lifecycle transitions of a session. Selection progress
// within the browsing phase is derived from the pending data; the FSM covers
// the submit/confirm/fail edges where ordering actually matters.
type FSM struct {
	transitions map[State][]State
}

// NewFSM builds the workflow transition table.
func NewFSM() *FSM {
	return &FSM{
		transitions: map[State][]State{
			StateIdle:     {StateBrowsing},
			StateBrowsing: {StateDateSelected, StateSubmitting, StateIdle},
			// A cancel submit needs no slot, so Submitting is reachable from
			// every browsing-phase state; Book itself re-checks readiness.
			StateDateSelected:  {StateDateSelected, StateTimeSelected, StateBrowsing, StateSubmitting, StateIdle},
			StateTimeSelected:  {StateDateSelected, StateTimeSelected, StateReadyToSubmit, StateSubmitting, StateIdle},
			StateReadyToSubmit: {StateSubmitting, StateDateSelected, StateTimeSelected, StateReadyToSubmit, StateIdle},
			StateSubmitting:    {StateConfirmed, StateFailed},
			StateConfirmed:     {StateIdle, StateBrowsing},
			StateFailed:        {StateReadyToSubmit, StateSubmitting, StateIdle},
		},
	}
}

// CanTransition checks whether from -> to is an allowed edge.
func (f *FSM) CanTransition(from, to State) bool {
	for _, allowed := range f.transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// selectionState derives the browsing-phase state from the pending data.
func selectionState(p PendingSelection) State {
	switch {
	case p.Complete():
		return StateReadyToSubmit
	case p.Slot != nil:
		return StateTimeSelected
	case p.Date != "":
		return StateDateSelected
	default:
		return StateBrowsing
	}
}
