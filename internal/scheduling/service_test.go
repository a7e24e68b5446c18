package scheduling

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	apptsrepo "estatebot_backend/internal/appointments/repository"
	"estatebot_backend/internal/events"
	"estatebot_backend/internal/leads/domain"
)

func handle(t *testing.T, env *testEnv, action Action, msg string) Outcome {
	t.Helper()
	outcome, err := env.service.HandleSchedulingAction(context.Background(), env.lead.ID, action, msg)
	if err != nil {
		t.Fatal(err)
	}
	return outcome
}

func TestInitiateBookingBooksFreeSlot(t *testing.T) {
	env := newTestEnv()

	outcome := handle(t, env, ActionInitiateBooking, "tomorrow at 2pm")
	if !outcome.Success {
		t.Fatalf("expected success, got %+v", outcome)
	}
	if !strings.Contains(outcome.UserMessage, "Thursday, June 26 at 14:00") {
		t.Fatalf("reply does not confirm the slot: %q", outcome.UserMessage)
	}

	appt, err := env.appts.GetScheduledByLead(context.Background(), env.lead.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !appt.StartTime.Equal(time.Date(2025, time.June, 26, 14, 0, 0, 0, time.UTC)) {
		t.Fatalf("booked at %v", appt.StartTime)
	}
	if env.currentLead().SchedulingState != domain.StateBooked {
		t.Fatal("lead must be booked")
	}
}

func TestInitiateBookingBusySlotOffersSingleAlternative(t *testing.T) {
	env := newTestEnv()
	busy := time.Date(2025, time.June, 26, 14, 0, 0, 0, time.UTC)
	env.appts.addScheduled(uuid.New(), env.agent.ID, busy, time.Hour)

	outcome := handle(t, env, ActionInitiateBooking, "tomorrow at 2pm")
	if !outcome.Success {
		t.Fatalf("an alternative offer still moves the conversation forward: %+v", outcome)
	}
	if !strings.Contains(outcome.UserMessage, "15:00") {
		t.Fatalf("reply does not propose the nearest slot: %q", outcome.UserMessage)
	}

	lead := env.currentLead()
	if lead.SchedulingState != domain.StateAlternativesOffered {
		t.Fatalf("lead state is %q, want alternatives_offered", lead.SchedulingState)
	}
	if len(lead.BookingAlternatives) != 1 {
		t.Fatalf("exactly one alternative must be stored, got %d", len(lead.BookingAlternatives))
	}
	if _, err := env.appts.GetScheduledByLead(context.Background(), env.lead.ID); err == nil {
		t.Fatal("no appointment row may exist while an offer is pending")
	}
}

func TestSelectAlternativeBooksStoredSlot(t *testing.T) {
	env := newTestEnv()
	busy := time.Date(2025, time.June, 26, 14, 0, 0, 0, time.UTC)
	env.appts.addScheduled(uuid.New(), env.agent.ID, busy, time.Hour)
	handle(t, env, ActionInitiateBooking, "tomorrow at 2pm")
	env.lead = env.currentLead()

	outcome := handle(t, env, ActionSelectAlternative, "1")
	if !outcome.Success {
		t.Fatalf("expected booking, got %+v", outcome)
	}

	appt, err := env.appts.GetScheduledByLead(context.Background(), env.lead.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !appt.StartTime.Equal(time.Date(2025, time.June, 26, 15, 0, 0, 0, time.UTC)) {
		t.Fatalf("booked at %v, want the offered alternative", appt.StartTime)
	}
	lead := env.currentLead()
	if lead.SchedulingState != domain.StateBooked || len(lead.BookingAlternatives) != 0 {
		t.Fatalf("alternatives must clear on booking, got %+v", lead)
	}
}

func TestSelectAlternativeOutOfRangeMutatesNothing(t *testing.T) {
	env := newTestEnv()
	alt := time.Date(2025, time.June, 26, 15, 0, 0, 0, time.UTC)
	lead := env.lead
	lead.SchedulingState = domain.StateAlternativesOffered
	lead.BookingAlternatives = []time.Time{alt}
	env.leads.leads[lead.ID] = lead

	outcome := handle(t, env, ActionSelectAlternative, "3")
	if outcome.Success {
		t.Fatal("out-of-range pick must not succeed")
	}
	if outcome.UserMessage != msgClarifySelection {
		t.Fatalf("got %q, want clarification prompt", outcome.UserMessage)
	}

	stored := env.currentLead()
	if stored.SchedulingState != domain.StateAlternativesOffered || len(stored.BookingAlternatives) != 1 {
		t.Fatalf("state mutated on an unreadable pick: %+v", stored)
	}
	if _, err := env.appts.GetScheduledByLead(context.Background(), env.lead.ID); err == nil {
		t.Fatal("no appointment may be created")
	}
}

func TestSelectAlternativeInWrongStateSelfHeals(t *testing.T) {
	env := newTestEnv()
	// No alternatives pending; the classifier misfired. The raw message
	// carries a usable time, so it books directly.
	outcome := handle(t, env, ActionSelectAlternative, "tomorrow at 2pm")
	if !outcome.Success {
		t.Fatalf("expected self-healed booking, got %+v", outcome)
	}
	if _, err := env.appts.GetScheduledByLead(context.Background(), env.lead.ID); err != nil {
		t.Fatal("expected an appointment from the self-healed path")
	}
}

func TestInitiateBookingWhileBookedPointsAtExisting(t *testing.T) {
	env := newTestEnv()
	start := time.Date(2025, time.June, 26, 14, 0, 0, 0, time.UTC)
	env.appts.addScheduled(env.lead.ID, env.agent.ID, start, time.Hour)
	lead := env.lead
	lead.SchedulingState = domain.StateBooked
	env.leads.leads[lead.ID] = lead

	outcome := handle(t, env, ActionInitiateBooking, "friday at 10am")
	if outcome.Success {
		t.Fatal("double booking must be refused")
	}
	if !strings.Contains(outcome.UserMessage, "already have a viewing") {
		t.Fatalf("reply does not mention the existing booking: %q", outcome.UserMessage)
	}
}

func TestUnparseableTimeAsksForClarification(t *testing.T) {
	env := newTestEnv()

	outcome := handle(t, env, ActionInitiateBooking, "sometime soon maybe")
	if outcome.Success {
		t.Fatal("unparseable time must not succeed")
	}
	if outcome.UserMessage != msgClarifyTime {
		t.Fatalf("got %q, want time clarification", outcome.UserMessage)
	}
	if env.currentLead().SchedulingState != domain.StateNone {
		t.Fatal("no state change expected")
	}
}

func TestNoAgentAssignedRefusesPolitely(t *testing.T) {
	env := newTestEnv()
	lead := env.lead
	lead.AssignedAgentID = nil
	env.leads.leads[lead.ID] = lead

	outcome := handle(t, env, ActionInitiateBooking, "tomorrow at 2pm")
	if outcome.Success || outcome.UserMessage != msgNoAgent {
		t.Fatalf("got %+v, want the no-agent refusal", outcome)
	}
}

func TestRescheduleWithoutAppointmentDegradesToBooking(t *testing.T) {
	env := newTestEnv()

	outcome := handle(t, env, ActionRescheduleAppointment, "tomorrow at 2pm")
	if !outcome.Success {
		t.Fatalf("expected a fresh booking, got %+v", outcome)
	}
	if _, err := env.appts.GetScheduledByLead(context.Background(), env.lead.ID); err != nil {
		t.Fatal("expected an appointment row")
	}
}

func TestRescheduleMovesExistingAppointment(t *testing.T) {
	env := newTestEnv()
	start := time.Date(2025, time.June, 26, 14, 0, 0, 0, time.UTC)
	appt := env.appts.addScheduled(env.lead.ID, env.agent.ID, start, time.Hour)
	lead := env.lead
	lead.SchedulingState = domain.StateBooked
	env.leads.leads[lead.ID] = lead

	outcome := handle(t, env, ActionRescheduleAppointment, "friday at 10am")
	if !outcome.Success {
		t.Fatalf("expected reschedule, got %+v", outcome)
	}
	moved, err := env.appts.GetScheduledByLead(context.Background(), env.lead.ID)
	if err != nil {
		t.Fatal(err)
	}
	if moved.ID != appt.ID {
		t.Fatal("reschedule must keep the appointment id")
	}
	if !moved.StartTime.Equal(time.Date(2025, time.June, 27, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("moved to %v", moved.StartTime)
	}
}

func TestCancelWithoutAppointment(t *testing.T) {
	env := newTestEnv()

	outcome := handle(t, env, ActionCancelAppointment, "please cancel my viewing")
	if outcome.Success || outcome.UserMessage != msgCancelNothing {
		t.Fatalf("got %+v, want the nothing-to-cancel reply", outcome)
	}
}

func TestCancelCancelsOwnAgentAppointment(t *testing.T) {
	env := newTestEnv()
	start := time.Date(2025, time.June, 26, 14, 0, 0, 0, time.UTC)
	env.appts.addScheduled(env.lead.ID, env.agent.ID, start, time.Hour)
	lead := env.lead
	lead.SchedulingState = domain.StateBooked
	env.leads.leads[lead.ID] = lead

	outcome := handle(t, env, ActionCancelAppointment, "cancel it please")
	if !outcome.Success {
		t.Fatalf("expected cancellation, got %+v", outcome)
	}
	if env.currentLead().SchedulingState != domain.StateCancelled {
		t.Fatal("lead must move to cancelled")
	}
}

func TestCancelMismatchedAgentHandsOff(t *testing.T) {
	env := newTestEnv()
	start := time.Date(2025, time.June, 26, 14, 0, 0, 0, time.UTC)
	otherAgent := testAgent()
	env.agents.agents[otherAgent.ID] = otherAgent
	env.appts.addScheduled(env.lead.ID, otherAgent.ID, start, time.Hour)
	lead := env.lead
	lead.SchedulingState = domain.StateBooked
	env.leads.leads[lead.ID] = lead

	outcome := handle(t, env, ActionCancelAppointment, "cancel it please")
	if outcome.Success {
		t.Fatal("mismatched-agent cancellation must be refused")
	}
	if outcome.UserMessage != msgHandoff {
		t.Fatalf("got %q, want the handoff reply", outcome.UserMessage)
	}
	if len(env.bus.named(events.NameHandoffRequired)) != 1 {
		t.Fatal("expected a handoff event")
	}
	if _, err := env.appts.GetScheduledByLead(context.Background(), env.lead.ID); err != nil {
		t.Fatal("the appointment must remain untouched")
	}
}

func TestTentativeBookingHoldsWithoutAppointmentRow(t *testing.T) {
	env := newTestEnv()

	outcome := handle(t, env, ActionTentativeBooking, "maybe tomorrow at 2pm")
	if !outcome.Success {
		t.Fatalf("expected a tentative hold, got %+v", outcome)
	}
	lead := env.currentLead()
	if lead.SchedulingState != domain.StateTentativeOffered || lead.TentativeBookingTime == nil {
		t.Fatalf("hold not stored: %+v", lead)
	}
	if _, err := env.appts.GetScheduledByLead(context.Background(), env.lead.ID); err == nil {
		t.Fatal("a tentative hold must not create an appointment row")
	}
}

func TestTentativeBookingBusySlotAlsoOffersAlternative(t *testing.T) {
	env := newTestEnv()
	busy := time.Date(2025, time.June, 26, 14, 0, 0, 0, time.UTC)
	env.appts.addScheduled(uuid.New(), env.agent.ID, busy, time.Hour)

	outcome := handle(t, env, ActionTentativeBooking, "maybe tomorrow at 2pm")
	if !outcome.Success {
		t.Fatalf("expected a hold with alternative, got %+v", outcome)
	}
	lead := env.currentLead()
	if lead.SchedulingState != domain.StateTentativeOffered {
		t.Fatalf("lead state is %q", lead.SchedulingState)
	}
	if lead.TentativeBookingTime == nil || len(lead.BookingAlternatives) != 1 {
		t.Fatalf("expected hold plus one alternative, got %+v", lead)
	}
}

func TestConfirmingTentativeHoldBooksHeldSlot(t *testing.T) {
	env := newTestEnv()
	handle(t, env, ActionTentativeBooking, "maybe tomorrow at 2pm")
	env.lead = env.currentLead()
	if env.lead.TentativeBookingTime == nil {
		t.Fatal("precondition: hold must be stored")
	}

	outcome := handle(t, env, ActionSelectAlternative, "yes")
	if !outcome.Success {
		t.Fatalf("a plain yes must convert the hold, got %+v", outcome)
	}

	appt, err := env.appts.GetScheduledByLead(context.Background(), env.lead.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !appt.StartTime.Equal(time.Date(2025, time.June, 26, 14, 0, 0, 0, time.UTC)) {
		t.Fatalf("booked at %v, want the held slot", appt.StartTime)
	}
	lead := env.currentLead()
	if lead.SchedulingState != domain.StateBooked || lead.TentativeBookingTime != nil {
		t.Fatalf("hold must clear on booking, got %+v", lead)
	}
}

func TestOrdinalFromTentativeHoldBooksAlternative(t *testing.T) {
	env := newTestEnv()
	busy := time.Date(2025, time.June, 26, 14, 0, 0, 0, time.UTC)
	env.appts.addScheduled(uuid.New(), env.agent.ID, busy, time.Hour)
	handle(t, env, ActionTentativeBooking, "maybe tomorrow at 2pm")
	env.lead = env.currentLead()
	if len(env.lead.BookingAlternatives) != 1 {
		t.Fatal("precondition: one alternative must accompany the busy hold")
	}

	outcome := handle(t, env, ActionSelectAlternative, "1")
	if !outcome.Success {
		t.Fatalf("picking the alternative from a hold must book, got %+v", outcome)
	}

	appt, err := env.appts.GetScheduledByLead(context.Background(), env.lead.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !appt.StartTime.Equal(time.Date(2025, time.June, 26, 15, 0, 0, 0, time.UTC)) {
		t.Fatalf("booked at %v, want the offered alternative", appt.StartTime)
	}
}

func TestRescheduleOverlappingOwnSlotSucceeds(t *testing.T) {
	env := newTestEnv()
	start := time.Date(2025, time.June, 26, 14, 0, 0, 0, time.UTC)
	appt := env.appts.addScheduled(env.lead.ID, env.agent.ID, start, time.Hour)
	lead := env.lead
	lead.SchedulingState = domain.StateBooked
	env.leads.leads[lead.ID] = lead

	// The new time overlaps the slot being vacated; only a third party's
	// booking may block the move.
	outcome := handle(t, env, ActionRescheduleAppointment, "june 26 at 14:30")
	if !outcome.Success {
		t.Fatalf("expected the move, got %+v", outcome)
	}
	moved, err := env.appts.GetScheduledByLead(context.Background(), env.lead.ID)
	if err != nil {
		t.Fatal(err)
	}
	if moved.ID != appt.ID {
		t.Fatal("reschedule must keep the appointment id")
	}
	if !moved.StartTime.Equal(time.Date(2025, time.June, 26, 14, 30, 0, 0, time.UTC)) {
		t.Fatalf("moved to %v, want 14:30", moved.StartTime)
	}
}

func TestSelectAfterRescheduleConflictMovesAppointment(t *testing.T) {
	env := newTestEnv()
	own := time.Date(2025, time.June, 26, 10, 0, 0, 0, time.UTC)
	appt := env.appts.addScheduled(env.lead.ID, env.agent.ID, own, time.Hour)
	taken := time.Date(2025, time.June, 26, 14, 0, 0, 0, time.UTC)
	env.appts.addScheduled(uuid.New(), env.agent.ID, taken, time.Hour)
	lead := env.lead
	lead.SchedulingState = domain.StateBooked
	env.leads.leads[lead.ID] = lead

	outcome := handle(t, env, ActionRescheduleAppointment, "tomorrow at 2pm")
	if !outcome.Success || !strings.Contains(outcome.UserMessage, "15:00") {
		t.Fatalf("expected a counter-proposal for the move, got %+v", outcome)
	}
	env.lead = env.currentLead()
	if len(env.lead.BookingAlternatives) != 1 {
		t.Fatal("precondition: the offer must be stored")
	}

	outcome = handle(t, env, ActionSelectAlternative, "1")
	if !outcome.Success {
		t.Fatalf("picking the offered slot must move the booking, got %+v", outcome)
	}
	moved, err := env.appts.GetScheduledByLead(context.Background(), env.lead.ID)
	if err != nil {
		t.Fatal(err)
	}
	if moved.ID != appt.ID {
		t.Fatal("the move must keep the appointment id")
	}
	if !moved.StartTime.Equal(time.Date(2025, time.June, 26, 15, 0, 0, 0, time.UTC)) {
		t.Fatalf("moved to %v, want the selected alternative", moved.StartTime)
	}
	if env.currentLead().SchedulingState != domain.StateBooked {
		t.Fatal("lead must be booked after the move")
	}
}

func TestLostInsertRaceEndsInAlternativeOffer(t *testing.T) {
	env := newTestEnv()
	// The insert loses the race; by the time availability is recomputed
	// the winner's row occupies the slot.
	env.appts.failNextInsert = apptsrepo.ErrSlotTaken
	env.appts.raceWinnerOnFail = true

	outcome := handle(t, env, ActionInitiateBooking, "tomorrow at 2pm")
	if !outcome.Success {
		t.Fatalf("the loser must get a counter-proposal, got %+v", outcome)
	}
	if !strings.Contains(outcome.UserMessage, "15:00") {
		t.Fatalf("reply does not propose the nearest slot: %q", outcome.UserMessage)
	}
	lead := env.currentLead()
	if lead.SchedulingState != domain.StateAlternativesOffered || len(lead.BookingAlternatives) != 1 {
		t.Fatalf("expected one stored alternative, got %+v", lead)
	}
}

func TestVanishedConflictIsRetriedOnce(t *testing.T) {
	env := newTestEnv()
	// The insert fails but no competing row exists on re-check; the one
	// permitted retry lands the original slot.
	env.appts.failNextInsert = apptsrepo.ErrSlotTaken

	outcome := handle(t, env, ActionInitiateBooking, "tomorrow at 2pm")
	if !outcome.Success {
		t.Fatalf("expected the retry to book, got %+v", outcome)
	}
	appt, err := env.appts.GetScheduledByLead(context.Background(), env.lead.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !appt.StartTime.Equal(time.Date(2025, time.June, 26, 14, 0, 0, 0, time.UTC)) {
		t.Fatalf("booked at %v, want the original slot", appt.StartTime)
	}
}

func TestPhantomBookedStateIsRepairedBeforeDispatch(t *testing.T) {
	env := newTestEnv()
	lead := env.lead
	lead.SchedulingState = domain.StateBooked
	env.leads.leads[lead.ID] = lead

	// Without repair this would answer "already booked"; the reconciler
	// demotes the phantom state first, so the booking goes through.
	outcome := handle(t, env, ActionInitiateBooking, "tomorrow at 2pm")
	if !outcome.Success {
		t.Fatalf("expected booking after repair, got %+v", outcome)
	}
	if len(env.bus.named(events.NameLeadStateRepaired)) != 1 {
		t.Fatal("expected a repair event")
	}
	if _, err := env.appts.GetScheduledByLead(context.Background(), env.lead.ID); err != nil {
		t.Fatal("expected a real appointment after repair")
	}
}

func TestDescribeBookingStatus(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	status, err := env.service.DescribeBookingStatus(ctx, env.lead.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(status, "no appointment") {
		t.Fatalf("fresh lead status %q", status)
	}

	start := time.Date(2025, time.June, 26, 14, 0, 0, 0, time.UTC)
	env.appts.addScheduled(env.lead.ID, env.agent.ID, start, time.Hour)
	status, err = env.service.DescribeBookingStatus(ctx, env.lead.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(status, "June 26") {
		t.Fatalf("booked status %q does not mention the date", status)
	}
}
