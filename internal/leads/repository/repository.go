package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"estatebot_backend/internal/leads/domain"
)

var ErrNotFound = errors.New("lead not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type Lead struct {
	ID                   uuid.UUID
	Phone                string
	FirstName            string
	LastName             string
	Email                *string
	CRMStatus            string
	SchedulingState      domain.State
	AssignedAgentID      *uuid.UUID
	BookingAlternatives  []time.Time
	TentativeBookingTime *time.Time
	Timezone             string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type CreateLeadParams struct {
	Phone           string
	FirstName       string
	LastName        string
	Email           *string
	AssignedAgentID *uuid.UUID
	Timezone        string
}

func (r *Repository) Create(ctx context.Context, params CreateLeadParams) (Lead, error) {
	var lead Lead
	err := r.pool.QueryRow(ctx, `
		INSERT INTO leads (phone, first_name, last_name, email, assigned_agent_id, timezone)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, phone, first_name, last_name, email, crm_status, scheduling_state,
			assigned_agent_id, booking_alternatives, tentative_booking_time, timezone, created_at, updated_at
	`, params.Phone, params.FirstName, params.LastName, params.Email, params.AssignedAgentID, params.Timezone).Scan(
		&lead.ID, &lead.Phone, &lead.FirstName, &lead.LastName, &lead.Email,
		&lead.CRMStatus, &lead.SchedulingState, &lead.AssignedAgentID,
		&lead.BookingAlternatives, &lead.TentativeBookingTime, &lead.Timezone,
		&lead.CreatedAt, &lead.UpdatedAt,
	)
	if err != nil {
		return Lead{}, err
	}
	return lead, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Lead, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r *Repository) GetByPhone(ctx context.Context, phone string) (Lead, error) {
	return r.getOne(ctx, `WHERE phone = $1`, phone)
}

func (r *Repository) getOne(ctx context.Context, where string, arg any) (Lead, error) {
	var lead Lead
	err := r.pool.QueryRow(ctx, `
		SELECT id, phone, first_name, last_name, email, crm_status, scheduling_state,
			assigned_agent_id, booking_alternatives, tentative_booking_time, timezone, created_at, updated_at
		FROM leads
	`+where, arg).Scan(
		&lead.ID, &lead.Phone, &lead.FirstName, &lead.LastName, &lead.Email,
		&lead.CRMStatus, &lead.SchedulingState, &lead.AssignedAgentID,
		&lead.BookingAlternatives, &lead.TentativeBookingTime, &lead.Timezone,
		&lead.CreatedAt, &lead.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	if err != nil {
		return Lead{}, err
	}
	return lead, nil
}

func (r *Repository) List(ctx context.Context, limit, offset int) ([]Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, phone, first_name, last_name, email, crm_status, scheduling_state,
			assigned_agent_id, booking_alternatives, tentative_booking_time, timezone, created_at, updated_at
		FROM leads
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := make([]Lead, 0)
	for rows.Next() {
		var lead Lead
		if err := rows.Scan(
			&lead.ID, &lead.Phone, &lead.FirstName, &lead.LastName, &lead.Email,
			&lead.CRMStatus, &lead.SchedulingState, &lead.AssignedAgentID,
			&lead.BookingAlternatives, &lead.TentativeBookingTime, &lead.Timezone,
			&lead.CreatedAt, &lead.UpdatedAt,
		); err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

type UpdateLeadParams struct {
	FirstName       *string
	LastName        *string
	Email           *string
	CRMStatus       *string
	AssignedAgentID *uuid.UUID
	Timezone        *string
}

func (r *Repository) Update(ctx context.Context, id uuid.UUID, params UpdateLeadParams) (Lead, error) {
	var lead Lead
	err := r.pool.QueryRow(ctx, `
		UPDATE leads SET
			first_name = COALESCE($2, first_name),
			last_name = COALESCE($3, last_name),
			email = COALESCE($4, email),
			crm_status = COALESCE($5, crm_status),
			assigned_agent_id = COALESCE($6, assigned_agent_id),
			timezone = COALESCE($7, timezone),
			updated_at = now()
		WHERE id = $1
		RETURNING id, phone, first_name, last_name, email, crm_status, scheduling_state,
			assigned_agent_id, booking_alternatives, tentative_booking_time, timezone, created_at, updated_at
	`, id, params.FirstName, params.LastName, params.Email, params.CRMStatus, params.AssignedAgentID, params.Timezone).Scan(
		&lead.ID, &lead.Phone, &lead.FirstName, &lead.LastName, &lead.Email,
		&lead.CRMStatus, &lead.SchedulingState, &lead.AssignedAgentID,
		&lead.BookingAlternatives, &lead.TentativeBookingTime, &lead.Timezone,
		&lead.CreatedAt, &lead.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, ErrNotFound
	}
	if err != nil {
		return Lead{}, err
	}
	return lead, nil
}

// SchedulingUpdate writes the scheduling-owned columns in one statement so the
// state and its companion fields never drift apart.
type SchedulingUpdate struct {
	State                domain.State
	BookingAlternatives  []time.Time
	TentativeBookingTime *time.Time
}

func (r *Repository) UpdateScheduling(ctx context.Context, id uuid.UUID, upd SchedulingUpdate) error {
	if !upd.State.AllowsAlternatives() {
		upd.BookingAlternatives = nil
	}
	if upd.State != domain.StateTentativeOffered {
		upd.TentativeBookingTime = nil
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads SET
			scheduling_state = $2,
			booking_alternatives = $3,
			tentative_booking_time = $4,
			updated_at = now()
		WHERE id = $1
	`, id, upd.State, upd.BookingAlternatives, upd.TentativeBookingTime)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
