// Package domain provides core business rules for the leads bounded context.
package domain

// State is the closed scheduling state owned by the booking engine. It is
// deliberately separate from the free-form CRM status label that the lead
// management layer maintains; only the scheduling code writes this column.
type State string

const (
	// StateNone means the lead has no scheduling activity in flight.
	StateNone State = "none"
	// StateAlternativesOffered means a counter-proposal is awaiting a reply.
	StateAlternativesOffered State = "alternatives_offered"
	// StateTentativeOffered means a soft hold is stored on the lead.
	StateTentativeOffered State = "tentative_offered"
	// StateBooked means a scheduled appointment exists for the lead.
	StateBooked State = "booked"
	// StateCancelled means the last appointment was cancelled by the lead.
	StateCancelled State = "cancelled"
)

// Valid reports whether s is a member of the closed state set.
func (s State) Valid() bool {
	switch s {
	case StateNone, StateAlternativesOffered, StateTentativeOffered, StateBooked, StateCancelled:
		return true
	}
	return false
}

// AllowsAlternatives reports whether stored booking alternatives are legal in
// this state. Alternatives must be cleared in every other state.
func (s State) AllowsAlternatives() bool {
	return s == StateAlternativesOffered || s == StateTentativeOffered
}

// CanSelectAlternative reports whether a select_alternative action is valid.
// A tentative hold is selectable too: confirming it converts the hold into a
// real booking.
func (s State) CanSelectAlternative() bool {
	return s == StateAlternativesOffered || s == StateTentativeOffered
}
