package scheduling

import "errors"

var (
	// ErrAgentNotAssigned means the lead has no assigned agent yet. Fatal
	// for the action; the user is asked to wait.
	ErrAgentNotAssigned = errors.New("lead has no assigned agent")
	// ErrSlotConflict means the requested slot is taken. Expected and
	// recoverable; handled by offering an alternative, never surfaced raw.
	ErrSlotConflict = errors.New("requested slot conflicts with an existing booking")
	// ErrStateInconsistency means the lead's state claimed a booking with
	// no scheduled appointment behind it. Repaired by the reconciler.
	ErrStateInconsistency = errors.New("lead state inconsistent with appointment records")
)
