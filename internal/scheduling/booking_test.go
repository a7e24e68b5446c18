package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	apptsrepo "estatebot_backend/internal/appointments/repository"
	"estatebot_backend/internal/events"
	"estatebot_backend/internal/leads/domain"
)

func TestBookCommitsRowAndMirrors(t *testing.T) {
	env := newTestEnv()
	start := time.Date(2025, time.June, 26, 14, 0, 0, 0, time.UTC)

	appt, err := env.manager.Book(context.Background(), env.lead, env.agent, start, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !appt.StartTime.Equal(start) || !appt.EndTime.Equal(start.Add(time.Hour)) {
		t.Fatalf("unexpected appointment window %v - %v", appt.StartTime, appt.EndTime)
	}
	if appt.MeetingJoinURL == nil || *appt.MeetingJoinURL == "" {
		t.Fatal("expected the meeting join url on the returned appointment")
	}
	if env.calendar.createdCount != 1 {
		t.Fatalf("expected one calendar event, got %d", env.calendar.createdCount)
	}

	lead := env.currentLead()
	if lead.SchedulingState != domain.StateBooked {
		t.Fatalf("lead state is %q, want booked", lead.SchedulingState)
	}
	if len(lead.BookingAlternatives) != 0 || lead.TentativeBookingTime != nil {
		t.Fatal("booking must clear alternatives and tentative hold")
	}

	if len(env.reminders.runAts) != 1 {
		t.Fatalf("expected one reminder, got %d", len(env.reminders.runAts))
	}
	if want := start.Add(-24 * time.Hour); !env.reminders.runAts[0].Equal(want) {
		t.Fatalf("reminder at %v, want %v", env.reminders.runAts[0], want)
	}

	booked := env.bus.named(events.NameAppointmentBooked)
	if len(booked) != 1 {
		t.Fatalf("expected one booked event, got %d", len(booked))
	}
}

func TestBookSkipsReminderForNearTermAppointment(t *testing.T) {
	env := newTestEnv()
	// Less than 24h out; the reminder instant would be in the past.
	start := time.Date(2025, time.June, 25, 15, 0, 0, 0, time.UTC)

	if _, err := env.manager.Book(context.Background(), env.lead, env.agent, start, nil); err != nil {
		t.Fatal(err)
	}
	if len(env.reminders.runAts) != 0 {
		t.Fatalf("expected no reminder, got %d", len(env.reminders.runAts))
	}
}

func TestBookSurvivesMeetingFailureAndSchedulesRepair(t *testing.T) {
	env := newTestEnv()
	env.meetings.createErr = errors.New("provider down")
	start := time.Date(2025, time.June, 26, 14, 0, 0, 0, time.UTC)

	appt, err := env.manager.Book(context.Background(), env.lead, env.agent, start, nil)
	if err != nil {
		t.Fatal(err)
	}
	if appt.MeetingJoinURL != nil {
		t.Fatal("expected no join url when meeting creation failed")
	}
	if _, err := env.appts.GetScheduledByLead(context.Background(), env.lead.ID); err != nil {
		t.Fatal("the appointment row must stand despite the meeting failure")
	}
	if len(env.repairs.payloads) != 1 {
		t.Fatalf("expected one repair job, got %d", len(env.repairs.payloads))
	}
	if env.repairs.payloads[0].AppointmentID != appt.ID.String() {
		t.Fatalf("repair enqueued for %s, want %s", env.repairs.payloads[0].AppointmentID, appt.ID)
	}
	if env.currentLead().SchedulingState != domain.StateBooked {
		t.Fatal("degraded booking must still mark the lead booked")
	}
}

func TestBookSurvivesCalendarFailure(t *testing.T) {
	env := newTestEnv()
	env.calendar.createErr = errors.New("calendar down")
	start := time.Date(2025, time.June, 26, 14, 0, 0, 0, time.UTC)

	appt, err := env.manager.Book(context.Background(), env.lead, env.agent, start, nil)
	if err != nil {
		t.Fatal(err)
	}
	if appt.CalendarEventID != nil {
		t.Fatal("expected no calendar event id")
	}
	if appt.MeetingJoinURL == nil {
		t.Fatal("meeting creation should still have run")
	}
}

func TestBookMapsSlotRaceToConflict(t *testing.T) {
	env := newTestEnv()
	env.appts.failNextInsert = apptsrepo.ErrSlotTaken
	start := time.Date(2025, time.June, 26, 14, 0, 0, 0, time.UTC)

	_, err := env.manager.Book(context.Background(), env.lead, env.agent, start, nil)
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("got %v, want ErrSlotConflict", err)
	}
	if env.currentLead().SchedulingState != domain.StateNone {
		t.Fatal("a lost race must not mutate the lead")
	}
}

func TestBookRefusesSecondAppointment(t *testing.T) {
	env := newTestEnv()
	env.appts.addScheduled(env.lead.ID, env.agent.ID, time.Date(2025, time.June, 27, 10, 0, 0, 0, time.UTC), time.Hour)

	_, err := env.manager.Book(context.Background(), env.lead, env.agent, time.Date(2025, time.June, 26, 14, 0, 0, 0, time.UTC), nil)
	if !errors.Is(err, apptsrepo.ErrLeadAlreadyBooked) {
		t.Fatalf("got %v, want ErrLeadAlreadyBooked", err)
	}
}

func TestRescheduleKeepsAppointmentIDAndRegeneratesMeeting(t *testing.T) {
	env := newTestEnv()
	start := time.Date(2025, time.June, 26, 14, 0, 0, 0, time.UTC)
	appt, err := env.manager.Book(context.Background(), env.lead, env.agent, start, nil)
	if err != nil {
		t.Fatal(err)
	}

	newStart := time.Date(2025, time.June, 27, 10, 0, 0, 0, time.UTC)
	stored, _ := env.appts.GetScheduledByLead(context.Background(), env.lead.ID)
	moved, err := env.manager.Reschedule(context.Background(), env.lead, env.agent, stored, newStart)
	if err != nil {
		t.Fatal(err)
	}
	if moved.ID != appt.ID {
		t.Fatal("reschedule must keep the appointment id")
	}
	if !moved.StartTime.Equal(newStart) {
		t.Fatalf("moved to %v, want %v", moved.StartTime, newStart)
	}
	if len(env.meetings.deletedIDs) != 1 {
		t.Fatalf("expected the stale meeting to be deleted, got %v", env.meetings.deletedIDs)
	}
	if env.meetings.created != 2 {
		t.Fatalf("expected a fresh meeting, created=%d", env.meetings.created)
	}
	if len(env.bus.named(events.NameAppointmentRescheduled)) != 1 {
		t.Fatal("expected a rescheduled event")
	}
}

func TestRescheduleIntoTakenSlotIsConflict(t *testing.T) {
	env := newTestEnv()
	taken := time.Date(2025, time.June, 27, 10, 0, 0, 0, time.UTC)
	env.appts.addScheduled(env.lead.ID, env.agent.ID, time.Date(2025, time.June, 26, 14, 0, 0, 0, time.UTC), time.Hour)
	otherLead := testLead(env.agent.ID)
	env.appts.addScheduled(otherLead.ID, env.agent.ID, taken, time.Hour)

	stored, _ := env.appts.GetScheduledByLead(context.Background(), env.lead.ID)
	_, err := env.manager.Reschedule(context.Background(), env.lead, env.agent, stored, taken)
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("got %v, want ErrSlotConflict", err)
	}
}

func TestCancelTearsDownMirrorsAndState(t *testing.T) {
	env := newTestEnv()
	start := time.Date(2025, time.June, 26, 14, 0, 0, 0, time.UTC)
	if _, err := env.manager.Book(context.Background(), env.lead, env.agent, start, nil); err != nil {
		t.Fatal(err)
	}
	stored, _ := env.appts.GetScheduledByLead(context.Background(), env.lead.ID)

	if err := env.manager.Cancel(context.Background(), env.lead, stored); err != nil {
		t.Fatal(err)
	}
	if _, err := env.appts.GetScheduledByLead(context.Background(), env.lead.ID); !errors.Is(err, apptsrepo.ErrNotFound) {
		t.Fatal("the appointment must no longer be scheduled")
	}
	if len(env.calendar.deletedIDs) != 1 || len(env.meetings.deletedIDs) != 1 {
		t.Fatal("expected both mirrors to be torn down")
	}
	if env.currentLead().SchedulingState != domain.StateCancelled {
		t.Fatal("lead must move to cancelled")
	}
	if len(env.bus.named(events.NameAppointmentCancelled)) != 1 {
		t.Fatal("expected a cancelled event")
	}
}

func TestOfferAlternativeStoresSingleOption(t *testing.T) {
	env := newTestEnv()
	alt := time.Date(2025, time.June, 26, 15, 0, 0, 0, time.UTC)

	if err := env.manager.OfferAlternative(context.Background(), env.lead, env.agent.ID, nil, alt); err != nil {
		t.Fatal(err)
	}
	lead := env.currentLead()
	if lead.SchedulingState != domain.StateAlternativesOffered {
		t.Fatalf("lead state is %q, want alternatives_offered", lead.SchedulingState)
	}
	if len(lead.BookingAlternatives) != 1 || !lead.BookingAlternatives[0].Equal(alt) {
		t.Fatalf("got alternatives %v, want exactly [%v]", lead.BookingAlternatives, alt)
	}
}

func TestPlaceTentativeHoldStoresNoAppointmentRow(t *testing.T) {
	env := newTestEnv()
	hold := time.Date(2025, time.June, 26, 14, 0, 0, 0, time.UTC)

	if err := env.manager.PlaceTentativeHold(context.Background(), env.lead, env.agent.ID, hold, nil); err != nil {
		t.Fatal(err)
	}
	lead := env.currentLead()
	if lead.SchedulingState != domain.StateTentativeOffered {
		t.Fatalf("lead state is %q, want tentative_offered", lead.SchedulingState)
	}
	if lead.TentativeBookingTime == nil || !lead.TentativeBookingTime.Equal(hold) {
		t.Fatalf("got hold %v, want %v", lead.TentativeBookingTime, hold)
	}
	if _, err := env.appts.GetScheduledByLead(context.Background(), env.lead.ID); !errors.Is(err, apptsrepo.ErrNotFound) {
		t.Fatal("a tentative hold must not create an appointment row")
	}
}
