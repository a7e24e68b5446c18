package scheduling

import (
	"context"
	"errors"

	"github.com/google/uuid"

	apptsrepo "estatebot_backend/internal/appointments/repository"
	"estatebot_backend/internal/events"
	"estatebot_backend/internal/leads/domain"
	leadsrepo "estatebot_backend/internal/leads/repository"
	"estatebot_backend/platform/logger"
)

// LeadReconcileStore is the slice of the leads repository the reconciler
// needs to persist a correction.
type LeadReconcileStore interface {
	UpdateScheduling(ctx context.Context, id uuid.UUID, upd leadsrepo.SchedulingUpdate) error
	Update(ctx context.Context, id uuid.UUID, params leadsrepo.UpdateLeadParams) (leadsrepo.Lead, error)
}

// Reconciler enforces the lead/appointment consistency invariant before any
// action is processed: a lead claiming "booked" must actually have a
// scheduled appointment row behind it.
type Reconciler struct {
	leads LeadReconcileStore
	appts AppointmentStore
	bus   events.Bus
	log   *logger.Logger
}

func NewReconciler(leads LeadReconcileStore, appts AppointmentStore, bus events.Bus, log *logger.Logger) *Reconciler {
	return &Reconciler{leads: leads, appts: appts, bus: bus, log: log}
}

// Reconcile checks and repairs the lead, returning the corrected lead. A
// booked lead with no scheduled appointment is demoted: back to the
// alternative-selection flow when alternatives are still stored, otherwise
// to a clean slate ready for a fresh booking attempt. The correction is
// persisted before the caller's precondition checks run, so user-visible
// behavior always matches the true appointment state.
func (r *Reconciler) Reconcile(ctx context.Context, lead leadsrepo.Lead) (leadsrepo.Lead, error) {
	if lead.SchedulingState != domain.StateBooked {
		return lead, nil
	}

	_, err := r.appts.GetScheduledByLead(ctx, lead.ID)
	if err == nil {
		return lead, nil
	}
	if !errors.Is(err, apptsrepo.ErrNotFound) {
		return lead, err
	}

	r.log.Warn("lead state inconsistent, repairing",
		"leadId", lead.ID.String(), "state", string(lead.SchedulingState), "error", ErrStateInconsistency)

	oldState := lead.SchedulingState
	newState := domain.StateNone
	upd := leadsrepo.SchedulingUpdate{State: domain.StateNone}
	if len(lead.BookingAlternatives) > 0 {
		newState = domain.StateAlternativesOffered
		upd.State = newState
		upd.BookingAlternatives = lead.BookingAlternatives
	}

	if err := r.leads.UpdateScheduling(ctx, lead.ID, upd); err != nil {
		return lead, err
	}

	if newState == domain.StateNone {
		// The CRM label tracked the phantom booking too; put the lead
		// back in the qualified pipeline stage.
		qualified := "qualified"
		if _, err := r.leads.Update(ctx, lead.ID, leadsrepo.UpdateLeadParams{CRMStatus: &qualified}); err != nil {
			r.log.Error("failed to reset crm status during repair", "error", err, "leadId", lead.ID.String())
		} else {
			lead.CRMStatus = qualified
		}
		lead.BookingAlternatives = nil
	}

	lead.SchedulingState = newState
	lead.TentativeBookingTime = nil

	r.bus.Publish(ctx, events.LeadStateRepaired{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		OldState:  string(oldState),
		NewState:  string(newState),
	})

	return lead, nil
}
