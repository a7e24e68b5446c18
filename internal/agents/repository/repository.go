// Package repository provides read access to agent records. Agent lifecycle
// is managed by an external back-office system; this core only consults
// working hours and timezones when matching availability.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("agent not found")

type Agent struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Phone     string
	Timezone  string
	WorkDays  []int
	WorkStart int
	WorkEnd   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WorksOn reports whether weekday (time.Weekday numbering) is a working day.
func (a Agent) WorksOn(weekday time.Weekday) bool {
	for _, d := range a.WorkDays {
		if d == int(weekday) {
			return true
		}
	}
	return false
}

// Location resolves the agent's timezone, falling back to UTC.
func (a Agent) Location() *time.Location {
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Agent, error) {
	var agent Agent
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, timezone, work_days, work_start_minute, work_end_minute, created_at, updated_at
		FROM agents
		WHERE id = $1
	`, id).Scan(
		&agent.ID, &agent.Name, &agent.Email, &agent.Phone, &agent.Timezone,
		&agent.WorkDays, &agent.WorkStart, &agent.WorkEnd,
		&agent.CreatedAt, &agent.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Agent{}, ErrNotFound
	}
	if err != nil {
		return Agent{}, err
	}
	return agent, nil
}
