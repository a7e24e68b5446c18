// Package scheduling is the appointment negotiation core: it resolves time
// expressions, matches agent availability, books and repairs appointments,
// and turns every outcome into a single conversational reply.
package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	agentsrepo "estatebot_backend/internal/agents/repository"
	apptsrepo "estatebot_backend/internal/appointments/repository"
	"estatebot_backend/internal/events"
	"estatebot_backend/internal/leads/domain"
	leadsrepo "estatebot_backend/internal/leads/repository"
	"estatebot_backend/platform/logger"
)

// Action names the scheduling verbs the dispatcher routes on. The classifier
// proposes one; the dispatcher re-validates it against current lead and
// appointment state before executing.
type Action string

const (
	ActionInitiateBooking       Action = "initiate_booking"
	ActionRescheduleAppointment Action = "reschedule_appointment"
	ActionCancelAppointment     Action = "cancel_appointment"
	ActionSelectAlternative     Action = "select_alternative"
	ActionTentativeBooking      Action = "tentative_booking"
)

// Outcome is the dispatcher's verdict: whether the action made progress and
// the single reply to relay to the user.
type Outcome struct {
	Success     bool
	UserMessage string
}

// LeadStore is the slice of the leads repository the dispatcher reads.
type LeadStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (leadsrepo.Lead, error)
}

// AgentStore resolves the lead's assigned agent.
type AgentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (agentsrepo.Agent, error)
}

// Service is the action dispatcher, the single entry point into the
// scheduling core.
type Service struct {
	leads      LeadStore
	agents     AgentStore
	appts      AppointmentStore
	matcher    *Matcher
	manager    *Manager
	reconciler *Reconciler
	bus        events.Bus
	log        *logger.Logger
}

func New(leads LeadStore, agents AgentStore, appts AppointmentStore, matcher *Matcher, manager *Manager, reconciler *Reconciler, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		leads:      leads,
		agents:     agents,
		appts:      appts,
		matcher:    matcher,
		manager:    manager,
		reconciler: reconciler,
		bus:        bus,
		log:        log,
	}
}

// HandleSchedulingAction runs one scheduling action for the lead. Expected
// failures (conflicts, unparseable times, misclassified intents) are
// absorbed into a forward-moving reply; only infrastructure errors surface
// as err, and the caller maps those to a generic try-again message.
func (s *Service) HandleSchedulingAction(ctx context.Context, leadID uuid.UUID, action Action, rawMessage string) (Outcome, error) {
	lead, err := s.leads.GetByID(ctx, leadID)
	if err != nil {
		return Outcome{}, err
	}

	// Repair any claimed-but-missing booking before precondition checks.
	lead, err = s.reconciler.Reconcile(ctx, lead)
	if err != nil {
		return Outcome{}, err
	}

	if lead.AssignedAgentID == nil {
		s.log.Info("scheduling action refused, no agent assigned",
			"leadId", lead.ID.String(), "action", string(action), "error", ErrAgentNotAssigned)
		return Outcome{Success: false, UserMessage: msgNoAgent}, nil
	}

	agent, err := s.agents.GetByID(ctx, *lead.AssignedAgentID)
	if err != nil {
		return Outcome{}, err
	}

	// One appointment lookup shared by every branch, so branches never
	// re-query independently within a single dispatch.
	existing, err := s.currentAppointment(ctx, lead.ID)
	if err != nil {
		return Outcome{}, err
	}

	loc := s.leadLocation(lead, agent)

	switch action {
	case ActionInitiateBooking:
		if existing != nil {
			return Outcome{Success: false, UserMessage: msgAlreadyBooked(existing.StartTime, loc)}, nil
		}
		return s.initiateBooking(ctx, lead, agent, rawMessage, loc)

	case ActionRescheduleAppointment:
		if existing == nil {
			// Nothing to move; degrade to a fresh booking.
			return s.initiateBooking(ctx, lead, agent, rawMessage, loc)
		}
		return s.reschedule(ctx, lead, agent, *existing, rawMessage, loc)

	case ActionCancelAppointment:
		if existing == nil {
			return Outcome{Success: false, UserMessage: msgCancelNothing}, nil
		}
		if existing.AgentID != agent.ID {
			// Stale agent reassignment; never cancel on someone
			// else's behalf.
			s.bus.Publish(ctx, events.HandoffRequired{
				BaseEvent: events.NewBaseEvent(),
				LeadID:    lead.ID,
				Reason:    "cancellation requested but appointment belongs to a different agent",
			})
			return Outcome{Success: false, UserMessage: msgHandoff}, nil
		}
		if err := s.manager.Cancel(ctx, lead, *existing); err != nil {
			return Outcome{}, err
		}
		return Outcome{Success: true, UserMessage: msgCancelled(existing.StartTime, loc)}, nil

	case ActionSelectAlternative:
		if !lead.SchedulingState.CanSelectAlternative() ||
			(len(lead.BookingAlternatives) == 0 && lead.TentativeBookingTime == nil) {
			if existing != nil {
				return Outcome{Success: false, UserMessage: msgAlreadyBooked(existing.StartTime, loc)}, nil
			}
			// Misclassified intent; self-heal by treating the raw
			// message as a time expression.
			return s.initiateBooking(ctx, lead, agent, rawMessage, loc)
		}
		return s.selectAlternative(ctx, lead, agent, existing, rawMessage, loc)

	case ActionTentativeBooking:
		if existing != nil {
			return Outcome{Success: false, UserMessage: msgAlreadyBooked(existing.StartTime, loc)}, nil
		}
		return s.tentativeBooking(ctx, lead, agent, rawMessage, loc)

	default:
		return Outcome{Success: false, UserMessage: msgClarifyTime}, nil
	}
}

// initiateBooking resolves the requested time and books it, or offers the
// nearest alternative.
func (s *Service) initiateBooking(ctx context.Context, lead leadsrepo.Lead, agent agentsrepo.Agent, rawMessage string, loc *time.Location) (Outcome, error) {
	requested, ok := ResolveTimeExpression(rawMessage, s.matcher.clock.Now(), loc)
	if !ok {
		return Outcome{Success: false, UserMessage: msgClarifyTime}, nil
	}

	availability, err := s.matcher.Match(ctx, agent, &requested)
	if err != nil {
		return Outcome{}, err
	}

	if availability.ExactMatch != nil {
		return s.bookWithConflictRetry(ctx, lead, agent, *availability.ExactMatch, loc)
	}
	return s.offerFromAvailability(ctx, lead, agent, &requested, availability, loc)
}

// bookWithConflictRetry books the slot; a lost race is retried once against
// freshly recomputed availability so the loser gets an alternative, not an
// error.
func (s *Service) bookWithConflictRetry(ctx context.Context, lead leadsrepo.Lead, agent agentsrepo.Agent, start time.Time, loc *time.Location) (Outcome, error) {
	appt, err := s.manager.Book(ctx, lead, agent, start, nil)
	if errors.Is(err, ErrSlotConflict) {
		s.log.Info("booking lost a same-slot race, recomputing", "leadId", lead.ID.String(), "slot", start)
		availability, matchErr := s.matcher.Match(ctx, agent, &start)
		if matchErr != nil {
			return Outcome{}, matchErr
		}
		if availability.ExactMatch != nil {
			// The conflicting row vanished between insert and
			// re-check; one more attempt, no further retries.
			appt, err = s.manager.Book(ctx, lead, agent, *availability.ExactMatch, nil)
			if err == nil {
				return Outcome{Success: true, UserMessage: msgBooked(appt.StartTime, loc, joinURLOrEmpty(appt))}, nil
			}
			if !errors.Is(err, ErrSlotConflict) {
				return Outcome{}, err
			}
			availability.ExactMatch = nil
		}
		return s.offerFromAvailability(ctx, lead, agent, &start, availability, loc)
	}
	if errors.Is(err, apptsrepo.ErrLeadAlreadyBooked) {
		existing, lookupErr := s.currentAppointment(ctx, lead.ID)
		if lookupErr != nil || existing == nil {
			return Outcome{Success: false, UserMessage: msgTryAgain}, nil
		}
		return Outcome{Success: false, UserMessage: msgAlreadyBooked(existing.StartTime, loc)}, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Success: true, UserMessage: msgBooked(appt.StartTime, loc, joinURLOrEmpty(appt))}, nil
}

func (s *Service) offerFromAvailability(ctx context.Context, lead leadsrepo.Lead, agent agentsrepo.Agent, requested *time.Time, availability Availability, loc *time.Location) (Outcome, error) {
	if len(availability.Alternatives) == 0 {
		return Outcome{Success: false, UserMessage: msgNoSlotFound}, nil
	}
	alternative := availability.Alternatives[0]
	if err := s.manager.OfferAlternative(ctx, lead, agent.ID, requested, alternative); err != nil {
		return Outcome{}, err
	}
	return Outcome{Success: true, UserMessage: msgAlternative(requested, alternative, loc)}, nil
}

func (s *Service) reschedule(ctx context.Context, lead leadsrepo.Lead, agent agentsrepo.Agent, existing apptsrepo.Appointment, rawMessage string, loc *time.Location) (Outcome, error) {
	requested, ok := ResolveTimeExpression(rawMessage, s.matcher.clock.Now(), loc)
	if !ok {
		return Outcome{Success: false, UserMessage: msgClarifyTime}, nil
	}

	// The slot being vacated must not count against its own move.
	availability, err := s.matcher.MatchExcluding(ctx, agent, &requested, existing.ID)
	if err != nil {
		return Outcome{}, err
	}

	if availability.ExactMatch == nil {
		return s.offerFromAvailability(ctx, lead, agent, &requested, availability, loc)
	}
	return s.rescheduleToSlot(ctx, lead, agent, existing, *availability.ExactMatch, &requested, loc)
}

// rescheduleToSlot moves the existing appointment to start; a lost race
// falls back to a fresh counter-proposal.
func (s *Service) rescheduleToSlot(ctx context.Context, lead leadsrepo.Lead, agent agentsrepo.Agent, existing apptsrepo.Appointment, start time.Time, requested *time.Time, loc *time.Location) (Outcome, error) {
	appt, err := s.manager.Reschedule(ctx, lead, agent, existing, start)
	if errors.Is(err, ErrSlotConflict) {
		availability, matchErr := s.matcher.MatchExcluding(ctx, agent, requested, existing.ID)
		if matchErr != nil {
			return Outcome{}, matchErr
		}
		availability.ExactMatch = nil
		return s.offerFromAvailability(ctx, lead, agent, requested, availability, loc)
	}
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Success: true, UserMessage: msgRescheduled(appt.StartTime, loc, joinURLOrEmpty(appt))}, nil
}

// selectAlternative resolves the user's pick into a concrete slot and either
// books it, moves the existing appointment to it, or converts a tentative
// hold into a real booking.
func (s *Service) selectAlternative(ctx context.Context, lead leadsrepo.Lead, agent agentsrepo.Agent, existing *apptsrepo.Appointment, rawMessage string, loc *time.Location) (Outcome, error) {
	selection := ParseSelection(rawMessage, len(lead.BookingAlternatives))

	var chosen time.Time
	switch {
	case selection.Kind == SelectionSelected:
		chosen = lead.BookingAlternatives[selection.Index]
	case lead.SchedulingState == domain.StateTentativeOffered &&
		lead.TentativeBookingTime != nil &&
		len(lead.BookingAlternatives) == 0 &&
		IsAffirmation(rawMessage):
		// A plain yes converts an exact hold into the real thing.
		chosen = *lead.TentativeBookingTime
	default:
		// Ambiguous, unreadable, or out-of-range references never
		// mutate state.
		return Outcome{Success: false, UserMessage: msgClarifySelection}, nil
	}

	if existing != nil {
		// The alternative was offered during a reschedule; picking it
		// moves the appointment instead of refusing a double booking.
		return s.rescheduleToSlot(ctx, lead, agent, *existing, chosen, &chosen, loc)
	}
	return s.bookWithConflictRetry(ctx, lead, agent, chosen, loc)
}

// tentativeBooking stores a soft hold without creating an appointment row.
func (s *Service) tentativeBooking(ctx context.Context, lead leadsrepo.Lead, agent agentsrepo.Agent, rawMessage string, loc *time.Location) (Outcome, error) {
	requested, ok := ResolveTimeExpression(rawMessage, s.matcher.clock.Now(), loc)
	if !ok {
		return Outcome{Success: false, UserMessage: msgClarifyTime}, nil
	}

	availability, err := s.matcher.Match(ctx, agent, &requested)
	if err != nil {
		return Outcome{}, err
	}

	if availability.ExactMatch != nil {
		if err := s.manager.PlaceTentativeHold(ctx, lead, agent.ID, requested, nil); err != nil {
			return Outcome{}, err
		}
		return Outcome{Success: true, UserMessage: msgTentativeHeld(requested, loc)}, nil
	}

	if len(availability.Alternatives) == 0 {
		return Outcome{Success: false, UserMessage: msgNoSlotFound}, nil
	}
	alternative := availability.Alternatives[0]
	if err := s.manager.PlaceTentativeHold(ctx, lead, agent.ID, requested, &alternative); err != nil {
		return Outcome{}, err
	}
	return Outcome{Success: true, UserMessage: msgTentativeBusy(requested, alternative, loc)}, nil
}

// DescribeBookingStatus summarizes the lead's booking state in one line,
// used as conversational context for the intent classifier.
func (s *Service) DescribeBookingStatus(ctx context.Context, leadID uuid.UUID) (string, error) {
	lead, err := s.leads.GetByID(ctx, leadID)
	if err != nil {
		return "", err
	}

	loc := time.UTC
	if parsed, locErr := time.LoadLocation(lead.Timezone); locErr == nil {
		loc = parsed
	}

	appt, err := s.currentAppointment(ctx, lead.ID)
	if err != nil {
		return "", err
	}
	if appt != nil {
		return msgStatusBooked(appt.StartTime, loc), nil
	}
	if lead.SchedulingState == domain.StateAlternativesOffered && len(lead.BookingAlternatives) > 0 {
		return msgStatusAlternatives(lead.BookingAlternatives[0], loc), nil
	}
	if lead.TentativeBookingTime != nil {
		return msgStatusTentative(*lead.TentativeBookingTime, loc), nil
	}
	return msgStatusNone(), nil
}

func (s *Service) currentAppointment(ctx context.Context, leadID uuid.UUID) (*apptsrepo.Appointment, error) {
	appt, err := s.appts.GetScheduledByLead(ctx, leadID)
	if errors.Is(err, apptsrepo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &appt, nil
}

func (s *Service) leadLocation(lead leadsrepo.Lead, agent agentsrepo.Agent) *time.Location {
	if lead.Timezone != "" {
		if loc, err := time.LoadLocation(lead.Timezone); err == nil {
			return loc
		}
	}
	return agent.Location()
}

func joinURLOrEmpty(appt apptsrepo.Appointment) string {
	if appt.MeetingJoinURL == nil {
		return ""
	}
	return *appt.MeetingJoinURL
}
