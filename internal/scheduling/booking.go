package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	agentsrepo "estatebot_backend/internal/agents/repository"
	apptsrepo "estatebot_backend/internal/appointments/repository"
	"estatebot_backend/internal/calendar"
	"estatebot_backend/internal/events"
	"estatebot_backend/internal/leads/domain"
	leadsrepo "estatebot_backend/internal/leads/repository"
	"estatebot_backend/internal/meeting"
	"estatebot_backend/internal/scheduler"
	"estatebot_backend/platform/logger"
)

// LeadSchedulingStore is the slice of the leads repository the booking
// manager writes. Scheduling-owned columns go through this path only.
type LeadSchedulingStore interface {
	UpdateScheduling(ctx context.Context, id uuid.UUID, upd leadsrepo.SchedulingUpdate) error
}

// AppointmentStore is the slice of the appointments repository the booking
// manager needs.
type AppointmentStore interface {
	InsertScheduled(ctx context.Context, params apptsrepo.InsertScheduledParams) (apptsrepo.Appointment, error)
	GetScheduledByLead(ctx context.Context, leadID uuid.UUID) (apptsrepo.Appointment, error)
	UpdateSchedule(ctx context.Context, id uuid.UUID, start, end time.Time) (apptsrepo.Appointment, error)
	SetProviderRefs(ctx context.Context, id uuid.UUID, calendarEventID, meetingProviderID, meetingJoinURL *string) error
	Cancel(ctx context.Context, id uuid.UUID) error
}

// Manager owns the booking transaction: the appointment row is the durable
// source of truth, written first; the calendar event and meeting link are
// best-effort mirrors that never roll the booking back.
type Manager struct {
	leads     LeadSchedulingStore
	appts     AppointmentStore
	calendar  calendar.Client
	meetings  meeting.Client
	repairs   scheduler.RepairScheduler
	reminders scheduler.ReminderScheduler
	bus       events.Bus
	clock     Clock
	slot      time.Duration
	log       *logger.Logger
}

func NewManager(
	leads LeadSchedulingStore,
	appts AppointmentStore,
	cal calendar.Client,
	meetings meeting.Client,
	repairs scheduler.RepairScheduler,
	reminders scheduler.ReminderScheduler,
	bus events.Bus,
	clock Clock,
	slotDuration time.Duration,
	log *logger.Logger,
) *Manager {
	return &Manager{
		leads:     leads,
		appts:     appts,
		calendar:  cal,
		meetings:  meetings,
		repairs:   repairs,
		reminders: reminders,
		bus:       bus,
		clock:     clock,
		slot:      slotDuration,
		log:       log,
	}
}

// reminderLeadTime is how far ahead of the appointment the reminder fires.
const reminderLeadTime = 24 * time.Hour

// Book creates the appointment for the lead at start. A lost same-slot race
// surfaces as ErrSlotConflict so the caller re-runs availability and offers
// a fresh alternative, indistinguishable from a pre-detected conflict.
func (m *Manager) Book(ctx context.Context, lead leadsrepo.Lead, agent agentsrepo.Agent, start time.Time, notes *string) (apptsrepo.Appointment, error) {
	// Re-check under the caller's earlier read; the unique index backs
	// this up against races.
	if _, err := m.appts.GetScheduledByLead(ctx, lead.ID); err == nil {
		return apptsrepo.Appointment{}, fmt.Errorf("lead %s: %w", lead.ID, apptsrepo.ErrLeadAlreadyBooked)
	} else if !errors.Is(err, apptsrepo.ErrNotFound) {
		return apptsrepo.Appointment{}, err
	}

	end := start.Add(m.slot)
	appt, err := m.appts.InsertScheduled(ctx, apptsrepo.InsertScheduledParams{
		LeadID:    lead.ID,
		AgentID:   agent.ID,
		StartTime: start,
		EndTime:   end,
		Notes:     notes,
	})
	if errors.Is(err, apptsrepo.ErrSlotTaken) {
		return apptsrepo.Appointment{}, ErrSlotConflict
	}
	if err != nil {
		return apptsrepo.Appointment{}, err
	}

	calendarEventID, meetingProviderID, joinURL := m.createMirrors(ctx, appt, agent, lead)

	if err := m.leads.UpdateScheduling(ctx, lead.ID, leadsrepo.SchedulingUpdate{State: domain.StateBooked}); err != nil {
		// The appointment stands; the reconciler picks this up on the
		// next action.
		m.log.Error("appointment committed but lead update failed", "error", err, "leadId", lead.ID.String())
	}

	m.scheduleReminder(ctx, appt.ID, start)

	m.bus.Publish(ctx, events.AppointmentBooked{
		BaseEvent:      events.NewBaseEvent(),
		AppointmentID:  appt.ID,
		LeadID:         lead.ID,
		AgentID:        agent.ID,
		StartTime:      start,
		EndTime:        end,
		MeetingJoinURL: joinURL,
		LeadName:       lead.FirstName + " " + lead.LastName,
		LeadPhone:      lead.Phone,
		LeadEmail:      emailOrEmpty(lead.Email),
	})

	appt.CalendarEventID = calendarEventID
	appt.MeetingProviderID = meetingProviderID
	if joinURL != "" {
		appt.MeetingJoinURL = &joinURL
	}
	return appt, nil
}

// createMirrors creates the calendar event and meeting link for a committed
// appointment, in parallel. Failures are logged and absorbed; a missing
// meeting link is queued for asynchronous repair.
func (m *Manager) createMirrors(ctx context.Context, appt apptsrepo.Appointment, agent agentsrepo.Agent, lead leadsrepo.Lead) (calendarEventID, meetingProviderID *string, joinURL string) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		eventID, err := m.calendar.CreateEvent(gctx, agent.ID, appt.StartTime, appt.EndTime, map[string]string{
			"leadName":  lead.FirstName + " " + lead.LastName,
			"leadPhone": lead.Phone,
		})
		if err != nil {
			m.log.Error("calendar event creation failed, booking stands", "error", err, "appointmentId", appt.ID.String())
			return nil
		}
		calendarEventID = &eventID
		return nil
	})

	g.Go(func() error {
		created, err := m.meetings.CreateMeeting(gctx, "Property viewing", appt.StartTime, int(m.slot.Minutes()))
		if err != nil {
			m.log.Error("meeting creation failed, scheduling repair", "error", err, "appointmentId", appt.ID.String())
			m.scheduleRepair(gctx, appt.ID)
			return nil
		}
		meetingProviderID = &created.MeetingID
		joinURL = created.JoinURL
		return nil
	})

	_ = g.Wait()

	if calendarEventID != nil || meetingProviderID != nil {
		var joinPtr *string
		if joinURL != "" {
			joinPtr = &joinURL
		}
		if err := m.appts.SetProviderRefs(ctx, appt.ID, calendarEventID, meetingProviderID, joinPtr); err != nil {
			m.log.Error("failed to persist provider refs", "error", err, "appointmentId", appt.ID.String())
		}
	}
	return calendarEventID, meetingProviderID, joinURL
}

// Reschedule moves an existing appointment in place, keeping its id. The
// meeting link is regenerated because the provider has no time-only update.
func (m *Manager) Reschedule(ctx context.Context, lead leadsrepo.Lead, agent agentsrepo.Agent, appt apptsrepo.Appointment, newStart time.Time) (apptsrepo.Appointment, error) {
	oldStart := appt.StartTime
	newEnd := newStart.Add(m.slot)

	updated, err := m.appts.UpdateSchedule(ctx, appt.ID, newStart, newEnd)
	if errors.Is(err, apptsrepo.ErrSlotTaken) {
		return apptsrepo.Appointment{}, ErrSlotConflict
	}
	if err != nil {
		return apptsrepo.Appointment{}, err
	}

	if appt.CalendarEventID != nil {
		if err := m.calendar.UpdateEvent(ctx, *appt.CalendarEventID, newStart, newEnd); err != nil {
			m.log.Error("calendar event move failed, booking stands", "error", err, "appointmentId", appt.ID.String())
		}
	}

	if appt.MeetingProviderID != nil {
		if err := m.meetings.DeleteMeeting(ctx, *appt.MeetingProviderID); err != nil {
			m.log.Warn("stale meeting cleanup failed", "error", err, "appointmentId", appt.ID.String())
		}
	}
	created, err := m.meetings.CreateMeeting(ctx, "Property viewing", newStart, int(m.slot.Minutes()))
	if err != nil {
		m.log.Error("meeting recreation failed, scheduling repair", "error", err, "appointmentId", appt.ID.String())
		empty := ""
		if refErr := m.appts.SetProviderRefs(ctx, appt.ID, nil, &empty, &empty); refErr != nil {
			m.log.Error("failed to clear stale meeting refs", "error", refErr, "appointmentId", appt.ID.String())
		}
		m.scheduleRepair(ctx, appt.ID)
	} else {
		if err := m.appts.SetProviderRefs(ctx, appt.ID, nil, &created.MeetingID, &created.JoinURL); err != nil {
			m.log.Error("failed to persist provider refs", "error", err, "appointmentId", appt.ID.String())
		}
		updated.MeetingProviderID = &created.MeetingID
		updated.MeetingJoinURL = &created.JoinURL
	}

	if err := m.leads.UpdateScheduling(ctx, lead.ID, leadsrepo.SchedulingUpdate{State: domain.StateBooked}); err != nil {
		m.log.Error("appointment moved but lead update failed", "error", err, "leadId", lead.ID.String())
	}

	m.scheduleReminder(ctx, appt.ID, newStart)

	m.bus.Publish(ctx, events.AppointmentRescheduled{
		BaseEvent:     events.NewBaseEvent(),
		AppointmentID: appt.ID,
		LeadID:        lead.ID,
		AgentID:       agent.ID,
		OldStartTime:  oldStart,
		NewStartTime:  newStart,
		LeadPhone:     lead.Phone,
		LeadEmail:     emailOrEmpty(lead.Email),
	})

	return updated, nil
}

// Cancel flips the appointment to cancelled and tears down the mirrors.
func (m *Manager) Cancel(ctx context.Context, lead leadsrepo.Lead, appt apptsrepo.Appointment) error {
	if err := m.appts.Cancel(ctx, appt.ID); err != nil {
		return err
	}

	if appt.CalendarEventID != nil {
		if err := m.calendar.DeleteEvent(ctx, *appt.CalendarEventID); err != nil {
			m.log.Warn("calendar event cleanup failed", "error", err, "appointmentId", appt.ID.String())
		}
	}
	if appt.MeetingProviderID != nil {
		if err := m.meetings.DeleteMeeting(ctx, *appt.MeetingProviderID); err != nil {
			m.log.Warn("meeting cleanup failed", "error", err, "appointmentId", appt.ID.String())
		}
	}

	if err := m.leads.UpdateScheduling(ctx, lead.ID, leadsrepo.SchedulingUpdate{State: domain.StateCancelled}); err != nil {
		m.log.Error("appointment cancelled but lead update failed", "error", err, "leadId", lead.ID.String())
	}

	m.bus.Publish(ctx, events.AppointmentCancelled{
		BaseEvent:     events.NewBaseEvent(),
		AppointmentID: appt.ID,
		LeadID:        lead.ID,
		AgentID:       appt.AgentID,
		StartTime:     appt.StartTime,
		LeadPhone:     lead.Phone,
		LeadEmail:     emailOrEmpty(lead.Email),
	})
	return nil
}

// OfferAlternative stores a single counter-proposal on the lead.
func (m *Manager) OfferAlternative(ctx context.Context, lead leadsrepo.Lead, agentID uuid.UUID, requested *time.Time, alternative time.Time) error {
	err := m.leads.UpdateScheduling(ctx, lead.ID, leadsrepo.SchedulingUpdate{
		State:               domain.StateAlternativesOffered,
		BookingAlternatives: []time.Time{alternative},
	})
	if err != nil {
		return err
	}

	m.bus.Publish(ctx, events.AlternativeOffered{
		BaseEvent:   events.NewBaseEvent(),
		LeadID:      lead.ID,
		AgentID:     agentID,
		Requested:   requested,
		Alternative: alternative,
	})
	return nil
}

// PlaceTentativeHold stores a soft hold on the lead without creating an
// appointment row. The user later converts it via a real booking action.
func (m *Manager) PlaceTentativeHold(ctx context.Context, lead leadsrepo.Lead, agentID uuid.UUID, hold time.Time, alternative *time.Time) error {
	upd := leadsrepo.SchedulingUpdate{
		State:                domain.StateTentativeOffered,
		TentativeBookingTime: &hold,
	}
	if alternative != nil {
		upd.BookingAlternatives = []time.Time{*alternative}
	}
	if err := m.leads.UpdateScheduling(ctx, lead.ID, upd); err != nil {
		return err
	}

	m.bus.Publish(ctx, events.TentativeHoldPlaced{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		AgentID:   agentID,
		HoldTime:  hold,
	})
	return nil
}

func (m *Manager) scheduleRepair(ctx context.Context, apptID uuid.UUID) {
	if m.repairs == nil {
		return
	}
	runAt := m.clock.Now().Add(2 * time.Minute)
	err := m.repairs.ScheduleMeetingRepair(ctx, scheduler.MeetingRepairPayload{AppointmentID: apptID.String()}, runAt)
	if err != nil {
		m.log.Error("failed to enqueue meeting repair", "error", err, "appointmentId", apptID.String())
	}
}

func (m *Manager) scheduleReminder(ctx context.Context, apptID uuid.UUID, start time.Time) {
	if m.reminders == nil {
		return
	}
	runAt := start.Add(-reminderLeadTime)
	if runAt.Before(m.clock.Now()) {
		return
	}
	err := m.reminders.ScheduleBookingReminder(ctx, scheduler.BookingReminderPayload{AppointmentID: apptID.String()}, runAt)
	if err != nil {
		m.log.Error("failed to enqueue booking reminder", "error", err, "appointmentId", apptID.String())
	}
}

func emailOrEmpty(email *string) string {
	if email == nil {
		return ""
	}
	return *email
}
