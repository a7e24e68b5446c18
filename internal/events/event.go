// Package events defines the domain events exchanged between modules.
package events

import (
	"context"
	"time"

	platformevents "estatebot_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types so modules only import internal/events.
type (
	Event       = platformevents.Event
	BaseEvent   = platformevents.BaseEvent
	Handler     = platformevents.Handler
	HandlerFunc = platformevents.HandlerFunc
	Bus         = platformevents.Bus
)

// NewBaseEvent creates a new base event with the current timestamp.
func NewBaseEvent() BaseEvent {
	return platformevents.NewBaseEvent()
}

// Event names for subscription.
const (
	NameAppointmentBooked      = "scheduling.appointment_booked"
	NameAppointmentRescheduled = "scheduling.appointment_rescheduled"
	NameAppointmentCancelled   = "scheduling.appointment_cancelled"
	NameAlternativeOffered     = "scheduling.alternative_offered"
	NameTentativeHoldPlaced    = "scheduling.tentative_hold_placed"
	NameLeadStateRepaired      = "scheduling.lead_state_repaired"
	NameHandoffRequired        = "scheduling.handoff_required"
	NameLeadCreated            = "leads.created"
)

// AppointmentBooked is published when a new appointment row is committed.
type AppointmentBooked struct {
	BaseEvent
	AppointmentID  uuid.UUID
	LeadID         uuid.UUID
	AgentID        uuid.UUID
	StartTime      time.Time
	EndTime        time.Time
	MeetingJoinURL string
	LeadName       string
	LeadPhone      string
	LeadEmail      string
}

func (e AppointmentBooked) EventName() string { return NameAppointmentBooked }

// AppointmentRescheduled is published when an existing appointment moves in time.
type AppointmentRescheduled struct {
	BaseEvent
	AppointmentID uuid.UUID
	LeadID        uuid.UUID
	AgentID       uuid.UUID
	OldStartTime  time.Time
	NewStartTime  time.Time
	LeadPhone     string
	LeadEmail     string
}

func (e AppointmentRescheduled) EventName() string { return NameAppointmentRescheduled }

// AppointmentCancelled is published when an appointment flips to cancelled.
type AppointmentCancelled struct {
	BaseEvent
	AppointmentID uuid.UUID
	LeadID        uuid.UUID
	AgentID       uuid.UUID
	StartTime     time.Time
	LeadPhone     string
	LeadEmail     string
}

func (e AppointmentCancelled) EventName() string { return NameAppointmentCancelled }

// AlternativeOffered is published when a conflict produced a counter-proposal.
type AlternativeOffered struct {
	BaseEvent
	LeadID      uuid.UUID
	AgentID     uuid.UUID
	Requested   *time.Time
	Alternative time.Time
}

func (e AlternativeOffered) EventName() string { return NameAlternativeOffered }

// TentativeHoldPlaced is published when a soft hold is stored on the lead.
type TentativeHoldPlaced struct {
	BaseEvent
	LeadID   uuid.UUID
	AgentID  uuid.UUID
	HoldTime time.Time
}

func (e TentativeHoldPlaced) EventName() string { return NameTentativeHoldPlaced }

// LeadStateRepaired is published when the reconciler corrected a lead whose
// state claimed a booking with no scheduled appointment behind it.
type LeadStateRepaired struct {
	BaseEvent
	LeadID   uuid.UUID
	OldState string
	NewState string
}

func (e LeadStateRepaired) EventName() string { return NameLeadStateRepaired }

// HandoffRequired is published when an action needs human review, such as a
// cancellation request against an appointment held by a different agent.
type HandoffRequired struct {
	BaseEvent
	LeadID uuid.UUID
	Reason string
}

func (e HandoffRequired) EventName() string { return NameHandoffRequired }

// LeadCreated is published when a first inbound message creates a lead.
type LeadCreated struct {
	BaseEvent
	LeadID uuid.UUID
	Phone  string
}

func (e LeadCreated) EventName() string { return NameLeadCreated }

// SubscribeFunc is a small helper to subscribe a typed handler function.
func SubscribeFunc[T Event](bus Bus, name string, fn func(ctx context.Context, evt T) error) {
	bus.Subscribe(name, HandlerFunc(func(ctx context.Context, event Event) error {
		typed, ok := event.(T)
		if !ok {
			return nil
		}
		return fn(ctx, typed)
	}))
}
