package scheduling

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	agentsrepo "estatebot_backend/internal/agents/repository"
	apptsrepo "estatebot_backend/internal/appointments/repository"
	"estatebot_backend/internal/events"
	"estatebot_backend/internal/leads/domain"
	leadsrepo "estatebot_backend/internal/leads/repository"
	"estatebot_backend/internal/meeting"
	"estatebot_backend/internal/scheduler"
	"estatebot_backend/platform/config"
	"estatebot_backend/platform/logger"
)

// testNow is Wednesday, 2025-06-25 10:00 UTC.
var testNow = time.Date(2025, time.June, 25, 10, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		SlotDuration:  time.Hour,
		MinLeadTime:   2 * time.Hour,
		LookaheadDays: 14,
	}
}

func testAgent() agentsrepo.Agent {
	return agentsrepo.Agent{
		ID:        uuid.New(),
		Name:      "Eva de Vries",
		Timezone:  "UTC",
		WorkDays:  []int{1, 2, 3, 4, 5},
		WorkStart: 9 * 60,
		WorkEnd:   17 * 60,
	}
}

func testLead(agentID uuid.UUID) leadsrepo.Lead {
	return leadsrepo.Lead{
		ID:              uuid.New(),
		Phone:           "31612345678",
		FirstName:       "Jan",
		LastName:        "Jansen",
		CRMStatus:       "qualified",
		SchedulingState: domain.StateNone,
		AssignedAgentID: &agentID,
		Timezone:        "UTC",
	}
}

type fakeCalendar struct {
	busyWindows  [][2]time.Time
	freeBusyErr  error
	createErr    error
	createdCount int
	updatedCount int
	deletedIDs   []string
}

func (c *fakeCalendar) CreateEvent(ctx context.Context, agentID uuid.UUID, start, end time.Time, metadata map[string]string) (string, error) {
	if c.createErr != nil {
		return "", c.createErr
	}
	c.createdCount++
	return "cal-evt-1", nil
}

func (c *fakeCalendar) CheckFreeBusy(ctx context.Context, agentID uuid.UUID, start, end time.Time) (bool, error) {
	if c.freeBusyErr != nil {
		return false, c.freeBusyErr
	}
	for _, w := range c.busyWindows {
		if start.Before(w[1]) && w[0].Before(end) {
			return true, nil
		}
	}
	return false, nil
}

func (c *fakeCalendar) UpdateEvent(ctx context.Context, eventID string, start, end time.Time) error {
	c.updatedCount++
	return nil
}

func (c *fakeCalendar) DeleteEvent(ctx context.Context, eventID string) error {
	c.deletedIDs = append(c.deletedIDs, eventID)
	return nil
}

type fakeMeetings struct {
	createErr  error
	created    int
	deletedIDs []string
}

func (m *fakeMeetings) CreateMeeting(ctx context.Context, topic string, start time.Time, durationMinutes int) (meeting.Meeting, error) {
	if m.createErr != nil {
		return meeting.Meeting{}, m.createErr
	}
	m.created++
	return meeting.Meeting{MeetingID: "meet-1", JoinURL: "https://meet.example/abc"}, nil
}

func (m *fakeMeetings) DeleteMeeting(ctx context.Context, meetingID string) error {
	m.deletedIDs = append(m.deletedIDs, meetingID)
	return nil
}

// fakeApptStore is an in-memory appointments table enforcing the same
// uniqueness rules as the partial indexes.
type fakeApptStore struct {
	appts map[uuid.UUID]apptsrepo.Appointment

	// failNextInsert simulates losing a same-slot race: the first insert
	// fails with the given sentinel, subsequent ones behave normally.
	failNextInsert error

	// raceWinnerOnFail materializes the winner's row when failNextInsert
	// fires, so a later availability check sees the slot taken.
	raceWinnerOnFail bool
}

func newFakeApptStore() *fakeApptStore {
	return &fakeApptStore{appts: make(map[uuid.UUID]apptsrepo.Appointment)}
}

func (s *fakeApptStore) InsertScheduled(ctx context.Context, params apptsrepo.InsertScheduledParams) (apptsrepo.Appointment, error) {
	if s.failNextInsert != nil {
		err := s.failNextInsert
		s.failNextInsert = nil
		if s.raceWinnerOnFail {
			s.addScheduled(uuid.New(), params.AgentID, params.StartTime, params.EndTime.Sub(params.StartTime))
		}
		return apptsrepo.Appointment{}, err
	}
	for _, a := range s.appts {
		if a.Status != apptsrepo.StatusScheduled {
			continue
		}
		if a.LeadID == params.LeadID {
			return apptsrepo.Appointment{}, apptsrepo.ErrLeadAlreadyBooked
		}
		if a.AgentID == params.AgentID && a.StartTime.Equal(params.StartTime) {
			return apptsrepo.Appointment{}, apptsrepo.ErrSlotTaken
		}
	}
	appt := apptsrepo.Appointment{
		ID:        uuid.New(),
		LeadID:    params.LeadID,
		AgentID:   params.AgentID,
		StartTime: params.StartTime,
		EndTime:   params.EndTime,
		Status:    apptsrepo.StatusScheduled,
		Notes:     params.Notes,
	}
	s.appts[appt.ID] = appt
	return appt, nil
}

func (s *fakeApptStore) GetScheduledByLead(ctx context.Context, leadID uuid.UUID) (apptsrepo.Appointment, error) {
	for _, a := range s.appts {
		if a.LeadID == leadID && a.Status == apptsrepo.StatusScheduled {
			return a, nil
		}
	}
	return apptsrepo.Appointment{}, apptsrepo.ErrNotFound
}

func (s *fakeApptStore) UpdateSchedule(ctx context.Context, id uuid.UUID, start, end time.Time) (apptsrepo.Appointment, error) {
	appt, ok := s.appts[id]
	if !ok {
		return apptsrepo.Appointment{}, apptsrepo.ErrNotFound
	}
	for _, a := range s.appts {
		if a.ID != id && a.Status == apptsrepo.StatusScheduled && a.AgentID == appt.AgentID && a.StartTime.Equal(start) {
			return apptsrepo.Appointment{}, apptsrepo.ErrSlotTaken
		}
	}
	appt.StartTime = start
	appt.EndTime = end
	s.appts[id] = appt
	return appt, nil
}

func (s *fakeApptStore) SetProviderRefs(ctx context.Context, id uuid.UUID, calendarEventID, meetingProviderID, meetingJoinURL *string) error {
	appt, ok := s.appts[id]
	if !ok {
		return apptsrepo.ErrNotFound
	}
	if calendarEventID != nil {
		appt.CalendarEventID = calendarEventID
	}
	if meetingProviderID != nil {
		appt.MeetingProviderID = meetingProviderID
	}
	if meetingJoinURL != nil {
		appt.MeetingJoinURL = meetingJoinURL
	}
	s.appts[id] = appt
	return nil
}

func (s *fakeApptStore) Cancel(ctx context.Context, id uuid.UUID) error {
	appt, ok := s.appts[id]
	if !ok || appt.Status != apptsrepo.StatusScheduled {
		return apptsrepo.ErrNotFound
	}
	appt.Status = apptsrepo.StatusCancelled
	s.appts[id] = appt
	return nil
}

func (s *fakeApptStore) ListByAgent(ctx context.Context, agentID uuid.UUID, from, to time.Time) ([]apptsrepo.Appointment, error) {
	var out []apptsrepo.Appointment
	for _, a := range s.appts {
		if a.AgentID == agentID && a.Status == apptsrepo.StatusScheduled && a.StartTime.Before(to) && a.EndTime.After(from) {
			out = append(out, a)
		}
	}
	return out, nil
}

// addScheduled seeds an existing appointment row.
func (s *fakeApptStore) addScheduled(leadID, agentID uuid.UUID, start time.Time, slot time.Duration) apptsrepo.Appointment {
	appt := apptsrepo.Appointment{
		ID:        uuid.New(),
		LeadID:    leadID,
		AgentID:   agentID,
		StartTime: start,
		EndTime:   start.Add(slot),
		Status:    apptsrepo.StatusScheduled,
	}
	s.appts[appt.ID] = appt
	return appt
}

// fakeLeadStore is an in-memory leads table applying the same column
// clearing rules as the real UpdateScheduling.
type fakeLeadStore struct {
	leads map[uuid.UUID]leadsrepo.Lead
}

func newFakeLeadStore(seed ...leadsrepo.Lead) *fakeLeadStore {
	s := &fakeLeadStore{leads: make(map[uuid.UUID]leadsrepo.Lead)}
	for _, l := range seed {
		s.leads[l.ID] = l
	}
	return s
}

func (s *fakeLeadStore) GetByID(ctx context.Context, id uuid.UUID) (leadsrepo.Lead, error) {
	lead, ok := s.leads[id]
	if !ok {
		return leadsrepo.Lead{}, leadsrepo.ErrNotFound
	}
	return lead, nil
}

func (s *fakeLeadStore) UpdateScheduling(ctx context.Context, id uuid.UUID, upd leadsrepo.SchedulingUpdate) error {
	lead, ok := s.leads[id]
	if !ok {
		return leadsrepo.ErrNotFound
	}
	if !upd.State.AllowsAlternatives() {
		upd.BookingAlternatives = nil
	}
	if upd.State != domain.StateTentativeOffered {
		upd.TentativeBookingTime = nil
	}
	lead.SchedulingState = upd.State
	lead.BookingAlternatives = upd.BookingAlternatives
	lead.TentativeBookingTime = upd.TentativeBookingTime
	s.leads[id] = lead
	return nil
}

func (s *fakeLeadStore) Update(ctx context.Context, id uuid.UUID, params leadsrepo.UpdateLeadParams) (leadsrepo.Lead, error) {
	lead, ok := s.leads[id]
	if !ok {
		return leadsrepo.Lead{}, leadsrepo.ErrNotFound
	}
	if params.FirstName != nil {
		lead.FirstName = *params.FirstName
	}
	if params.LastName != nil {
		lead.LastName = *params.LastName
	}
	if params.Email != nil {
		lead.Email = params.Email
	}
	if params.CRMStatus != nil {
		lead.CRMStatus = *params.CRMStatus
	}
	if params.AssignedAgentID != nil {
		lead.AssignedAgentID = params.AssignedAgentID
	}
	s.leads[id] = lead
	return lead, nil
}

type fakeAgentStore struct {
	agents map[uuid.UUID]agentsrepo.Agent
}

func newFakeAgentStore(seed ...agentsrepo.Agent) *fakeAgentStore {
	s := &fakeAgentStore{agents: make(map[uuid.UUID]agentsrepo.Agent)}
	for _, a := range seed {
		s.agents[a.ID] = a
	}
	return s
}

func (s *fakeAgentStore) GetByID(ctx context.Context, id uuid.UUID) (agentsrepo.Agent, error) {
	agent, ok := s.agents[id]
	if !ok {
		return agentsrepo.Agent{}, agentsrepo.ErrNotFound
	}
	return agent, nil
}

// recordingBus captures published events synchronously.
type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(_ context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBus) PublishSync(ctx context.Context, event events.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *recordingBus) Subscribe(eventName string, handler events.Handler) {}

func (b *recordingBus) named(name string) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.Event
	for _, e := range b.events {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

type fakeRepairScheduler struct {
	payloads []scheduler.MeetingRepairPayload
}

func (f *fakeRepairScheduler) ScheduleMeetingRepair(ctx context.Context, payload scheduler.MeetingRepairPayload, runAt time.Time) error {
	f.payloads = append(f.payloads, payload)
	return nil
}

type fakeReminderScheduler struct {
	runAts []time.Time
}

func (f *fakeReminderScheduler) ScheduleBookingReminder(ctx context.Context, payload scheduler.BookingReminderPayload, runAt time.Time) error {
	f.runAts = append(f.runAts, runAt)
	return nil
}

// testEnv wires the full scheduling core over fakes.
type testEnv struct {
	service   *Service
	manager   *Manager
	matcher   *Matcher
	leads     *fakeLeadStore
	agents    *fakeAgentStore
	appts     *fakeApptStore
	calendar  *fakeCalendar
	meetings  *fakeMeetings
	bus       *recordingBus
	repairs   *fakeRepairScheduler
	reminders *fakeReminderScheduler
	agent     agentsrepo.Agent
	lead      leadsrepo.Lead
}

func newTestEnv() *testEnv {
	log := logger.New("development")
	agent := testAgent()
	lead := testLead(agent.ID)

	env := &testEnv{
		leads:     newFakeLeadStore(lead),
		agents:    newFakeAgentStore(agent),
		appts:     newFakeApptStore(),
		calendar:  &fakeCalendar{},
		meetings:  &fakeMeetings{},
		bus:       &recordingBus{},
		repairs:   &fakeRepairScheduler{},
		reminders: &fakeReminderScheduler{},
		agent:     agent,
		lead:      lead,
	}

	clock := FixedClock(testNow)
	cfg := testConfig()
	env.matcher = NewMatcher(env.calendar, env.appts, clock, cfg, log)
	env.manager = NewManager(env.leads, env.appts, env.calendar, env.meetings, env.repairs, env.reminders, env.bus, clock, cfg.SlotDuration, log)
	reconciler := NewReconciler(env.leads, env.appts, env.bus, log)
	env.service = New(env.leads, env.agents, env.appts, env.matcher, env.manager, reconciler, env.bus, log)
	return env
}

func (e *testEnv) currentLead() leadsrepo.Lead {
	lead, _ := e.leads.GetByID(context.Background(), e.lead.ID)
	return lead
}
