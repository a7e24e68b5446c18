package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"

	agentsrepo "estatebot_backend/internal/agents/repository"
	apptsrepo "estatebot_backend/internal/appointments/repository"
	"estatebot_backend/internal/calendar"
	"estatebot_backend/platform/config"
	"estatebot_backend/platform/logger"
)

// AppointmentReader is the slice of the appointments repository the matcher
// needs to treat already-booked rows as busy even when the calendar mirror
// for them failed.
type AppointmentReader interface {
	ListByAgent(ctx context.Context, agentID uuid.UUID, from, to time.Time) ([]apptsrepo.Appointment, error)
}

// Availability is the matcher's verdict for a candidate instant.
type Availability struct {
	// ExactMatch is non-nil when the requested instant itself is free.
	ExactMatch *time.Time
	// Alternatives holds at most one nearest free slot. A single
	// counter-proposal keeps the conversational select flow unambiguous.
	Alternatives []time.Time
}

// Matcher finds free viewing slots on an agent's calendar within their
// working hours.
type Matcher struct {
	calendar      calendar.Client
	appointments  AppointmentReader
	clock         Clock
	slotDuration  time.Duration
	minLeadTime   time.Duration
	lookaheadDays int
	log           *logger.Logger
}

func NewMatcher(cal calendar.Client, appts AppointmentReader, clock Clock, cfg config.SchedulingConfig, log *logger.Logger) *Matcher {
	return &Matcher{
		calendar:      cal,
		appointments:  appts,
		clock:         clock,
		slotDuration:  cfg.GetSlotDuration(),
		minLeadTime:   cfg.GetMinLeadTime(),
		lookaheadDays: cfg.GetLookaheadDays(),
		log:           log,
	}
}

// scanStep is the granularity of the forward scan for alternatives.
const scanStep = 30 * time.Minute

// Match checks the candidate instant (when given) and finds the nearest free
// slot otherwise. An empty result means nothing is free within the lookahead
// window; callers ask the user for a different preference instead of failing.
func (m *Matcher) Match(ctx context.Context, agent agentsrepo.Agent, candidate *time.Time) (Availability, error) {
	return m.MatchExcluding(ctx, agent, candidate, uuid.Nil)
}

// MatchExcluding is Match with one appointment left out of the busy set.
// Used when moving that appointment, so the slot it vacates does not count
// against the move.
func (m *Matcher) MatchExcluding(ctx context.Context, agent agentsrepo.Agent, candidate *time.Time, exclude uuid.UUID) (Availability, error) {
	now := m.clock.Now()
	earliest := now.Add(m.minLeadTime)
	deadline := now.AddDate(0, 0, m.lookaheadDays)

	busy, err := m.bookedSlots(ctx, agent.ID, now, deadline)
	if err != nil {
		return Availability{}, err
	}
	if exclude != uuid.Nil {
		kept := busy[:0]
		for _, appt := range busy {
			if appt.ID != exclude {
				kept = append(kept, appt)
			}
		}
		busy = kept
	}

	if candidate != nil {
		free, err := m.slotFree(ctx, agent, *candidate, earliest, busy)
		if err != nil {
			return Availability{}, err
		}
		if free {
			exact := *candidate
			return Availability{ExactMatch: &exact}, nil
		}
	}

	start := earliest
	if candidate != nil && candidate.After(earliest) {
		start = *candidate
	}

	alternative, found, err := m.scanForward(ctx, agent, start, deadline, busy)
	if err != nil {
		return Availability{}, err
	}
	if !found {
		return Availability{}, nil
	}
	return Availability{Alternatives: []time.Time{alternative}}, nil
}

// scanForward walks the agent's working hours in scanStep increments and
// returns the first free slot.
func (m *Matcher) scanForward(ctx context.Context, agent agentsrepo.Agent, from, deadline time.Time, busy []apptsrepo.Appointment) (time.Time, bool, error) {
	loc := agent.Location()
	current := from.In(loc).Truncate(scanStep)
	if current.Before(from) {
		current = current.Add(scanStep)
	}

	for current.Before(deadline) {
		if !m.insideWorkingHours(agent, current) {
			current = m.nextWorkingInstant(agent, current)
			continue
		}
		free, err := m.slotFree(ctx, agent, current, from, busy)
		if err != nil {
			return time.Time{}, false, err
		}
		if free {
			return current, true, nil
		}
		current = current.Add(scanStep)
	}
	return time.Time{}, false, nil
}

// slotFree applies every constraint to one candidate instant: minimum lead
// time, working hours, existing appointment rows, then the live calendar.
func (m *Matcher) slotFree(ctx context.Context, agent agentsrepo.Agent, start, earliest time.Time, busy []apptsrepo.Appointment) (bool, error) {
	if start.Before(earliest) {
		return false, nil
	}
	if !m.insideWorkingHours(agent, start) {
		return false, nil
	}

	end := start.Add(m.slotDuration)
	for _, appt := range busy {
		if start.Before(appt.EndTime) && appt.StartTime.Before(end) {
			return false, nil
		}
	}

	calendarBusy, err := m.calendar.CheckFreeBusy(ctx, agent.ID, start, end)
	if err != nil {
		return false, err
	}
	return !calendarBusy, nil
}

func (m *Matcher) insideWorkingHours(agent agentsrepo.Agent, start time.Time) bool {
	local := start.In(agent.Location())
	if !agent.WorksOn(local.Weekday()) {
		return false
	}
	startMinute := local.Hour()*60 + local.Minute()
	endMinute := startMinute + int(m.slotDuration.Minutes())
	return startMinute >= agent.WorkStart && endMinute <= agent.WorkEnd
}

// nextWorkingInstant jumps to the start of the next working window instead
// of crawling through off-hours step by step.
func (m *Matcher) nextWorkingInstant(agent agentsrepo.Agent, after time.Time) time.Time {
	loc := agent.Location()
	local := after.In(loc)

	for day := 0; day <= 7; day++ {
		candidate := local.AddDate(0, 0, day)
		dayStart := time.Date(candidate.Year(), candidate.Month(), candidate.Day(), 0, agent.WorkStart, 0, 0, loc)
		if day == 0 && !dayStart.After(local) {
			continue
		}
		if agent.WorksOn(dayStart.Weekday()) {
			return dayStart
		}
	}
	// No working day in range; return a step past the input so the scan
	// still terminates at the deadline.
	return local.Add(24 * time.Hour)
}

func (m *Matcher) bookedSlots(ctx context.Context, agentID uuid.UUID, from, to time.Time) ([]apptsrepo.Appointment, error) {
	if m.appointments == nil {
		return nil, nil
	}
	return m.appointments.ListByAgent(ctx, agentID, from, to)
}
