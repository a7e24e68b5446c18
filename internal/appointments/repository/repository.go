package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	StatusScheduled = "scheduled"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

var (
	ErrNotFound = errors.New("appointment not found")
	// ErrLeadAlreadyBooked is returned when the lead already holds a
	// scheduled appointment. Enforced by a partial unique index, so two
	// racing inserts cannot both win.
	ErrLeadAlreadyBooked = errors.New("lead already has a scheduled appointment")
	// ErrSlotTaken is returned when another lead won the same agent slot.
	ErrSlotTaken = errors.New("slot already taken for this agent")
)

const (
	idxLeadScheduled  = "appointments_one_scheduled_per_lead"
	idxAgentSlotTaken = "appointments_agent_slot_unique"
)

type Appointment struct {
	ID                uuid.UUID
	LeadID            uuid.UUID
	AgentID           uuid.UUID
	StartTime         time.Time
	EndTime           time.Time
	Status            string
	MeetingJoinURL    *string
	MeetingProviderID *string
	CalendarEventID   *string
	Notes             *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type InsertScheduledParams struct {
	LeadID    uuid.UUID
	AgentID   uuid.UUID
	StartTime time.Time
	EndTime   time.Time
	Notes     *string
}

// InsertScheduled inserts the appointment row as the durable source of truth.
// Provider ids are attached afterwards once the external mirrors succeed.
// Unique-index violations are mapped to typed sentinels so the booking path
// can treat a lost race exactly like a pre-detected conflict.
func (r *Repository) InsertScheduled(ctx context.Context, params InsertScheduledParams) (Appointment, error) {
	var appt Appointment
	err := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (lead_id, agent_id, start_time, end_time, status, notes)
		VALUES ($1, $2, $3, $4, 'scheduled', $5)
		RETURNING id, lead_id, agent_id, start_time, end_time, status,
			meeting_join_url, meeting_provider_id, calendar_event_id, notes, created_at, updated_at
	`, params.LeadID, params.AgentID, params.StartTime, params.EndTime, params.Notes).Scan(
		&appt.ID, &appt.LeadID, &appt.AgentID, &appt.StartTime, &appt.EndTime, &appt.Status,
		&appt.MeetingJoinURL, &appt.MeetingProviderID, &appt.CalendarEventID, &appt.Notes,
		&appt.CreatedAt, &appt.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			switch pgErr.ConstraintName {
			case idxLeadScheduled:
				return Appointment{}, ErrLeadAlreadyBooked
			case idxAgentSlotTaken:
				return Appointment{}, ErrSlotTaken
			}
			return Appointment{}, ErrSlotTaken
		}
		return Appointment{}, err
	}
	return appt, nil
}

// GetScheduledByLead returns the lead's single scheduled appointment, if any.
func (r *Repository) GetScheduledByLead(ctx context.Context, leadID uuid.UUID) (Appointment, error) {
	return r.getOne(ctx, `WHERE lead_id = $1 AND status = 'scheduled'`, leadID)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Appointment, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r *Repository) getOne(ctx context.Context, where string, arg any) (Appointment, error) {
	var appt Appointment
	err := r.pool.QueryRow(ctx, `
		SELECT id, lead_id, agent_id, start_time, end_time, status,
			meeting_join_url, meeting_provider_id, calendar_event_id, notes, created_at, updated_at
		FROM appointments
	`+where, arg).Scan(
		&appt.ID, &appt.LeadID, &appt.AgentID, &appt.StartTime, &appt.EndTime, &appt.Status,
		&appt.MeetingJoinURL, &appt.MeetingProviderID, &appt.CalendarEventID, &appt.Notes,
		&appt.CreatedAt, &appt.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Appointment{}, ErrNotFound
	}
	if err != nil {
		return Appointment{}, err
	}
	return appt, nil
}

func (r *Repository) ListByAgent(ctx context.Context, agentID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, agent_id, start_time, end_time, status,
			meeting_join_url, meeting_provider_id, calendar_event_id, notes, created_at, updated_at
		FROM appointments
		WHERE agent_id = $1 AND status = 'scheduled' AND start_time >= $2 AND start_time < $3
		ORDER BY start_time ASC
	`, agentID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	appts := make([]Appointment, 0)
	for rows.Next() {
		var appt Appointment
		if err := rows.Scan(
			&appt.ID, &appt.LeadID, &appt.AgentID, &appt.StartTime, &appt.EndTime, &appt.Status,
			&appt.MeetingJoinURL, &appt.MeetingProviderID, &appt.CalendarEventID, &appt.Notes,
			&appt.CreatedAt, &appt.UpdatedAt,
		); err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	return appts, rows.Err()
}

// SetProviderRefs attaches calendar and meeting ids after the external
// mirrors are created. Nil arguments leave the stored value untouched.
func (r *Repository) SetProviderRefs(ctx context.Context, id uuid.UUID, calendarEventID, meetingProviderID, meetingJoinURL *string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments SET
			calendar_event_id = COALESCE($2, calendar_event_id),
			meeting_provider_id = COALESCE($3, meeting_provider_id),
			meeting_join_url = COALESCE($4, meeting_join_url),
			updated_at = now()
		WHERE id = $1
	`, id, calendarEventID, meetingProviderID, meetingJoinURL)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateSchedule moves a scheduled appointment in place, keeping its id.
// A move into an occupied agent slot trips the same unique index as insert.
func (r *Repository) UpdateSchedule(ctx context.Context, id uuid.UUID, start, end time.Time) (Appointment, error) {
	var appt Appointment
	err := r.pool.QueryRow(ctx, `
		UPDATE appointments SET start_time = $2, end_time = $3, updated_at = now()
		WHERE id = $1 AND status = 'scheduled'
		RETURNING id, lead_id, agent_id, start_time, end_time, status,
			meeting_join_url, meeting_provider_id, calendar_event_id, notes, created_at, updated_at
	`, id, start, end).Scan(
		&appt.ID, &appt.LeadID, &appt.AgentID, &appt.StartTime, &appt.EndTime, &appt.Status,
		&appt.MeetingJoinURL, &appt.MeetingProviderID, &appt.CalendarEventID, &appt.Notes,
		&appt.CreatedAt, &appt.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Appointment{}, ErrSlotTaken
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return Appointment{}, ErrNotFound
		}
		return Appointment{}, err
	}
	return appt, nil
}

// Cancel flips a scheduled appointment to cancelled. Rows are never deleted.
func (r *Repository) Cancel(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments SET status = 'cancelled', updated_at = now()
		WHERE id = $1 AND status = 'scheduled'
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Complete marks a past appointment as completed (back-office operation).
func (r *Repository) Complete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments SET status = 'completed', updated_at = now()
		WHERE id = $1 AND status = 'scheduled'
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
