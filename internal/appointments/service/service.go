// Package service implements back-office appointment operations. Booking
// itself happens in the scheduling core; this service covers read access and
// manual interventions, routed through the same transaction manager so the
// calendar and meeting mirrors stay consistent.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"estatebot_backend/internal/appointments/repository"
	"estatebot_backend/internal/appointments/transport"
	leadsrepo "estatebot_backend/internal/leads/repository"
	"estatebot_backend/internal/scheduling"
	"estatebot_backend/platform/apperr"
)

type Service struct {
	repo    *repository.Repository
	leads   *leadsrepo.Repository
	manager *scheduling.Manager
}

func New(repo *repository.Repository, leads *leadsrepo.Repository, manager *scheduling.Manager) *Service {
	return &Service{repo: repo, leads: leads, manager: manager}
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (transport.AppointmentResponse, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return transport.AppointmentResponse{}, apperr.NotFound("appointment not found")
	}
	if err != nil {
		return transport.AppointmentResponse{}, err
	}
	return transport.ToAppointmentResponse(appt), nil
}

func (s *Service) GetScheduledByLead(ctx context.Context, leadID uuid.UUID) (transport.AppointmentResponse, error) {
	appt, err := s.repo.GetScheduledByLead(ctx, leadID)
	if errors.Is(err, repository.ErrNotFound) {
		return transport.AppointmentResponse{}, apperr.NotFound("no scheduled appointment for this lead")
	}
	if err != nil {
		return transport.AppointmentResponse{}, err
	}
	return transport.ToAppointmentResponse(appt), nil
}

func (s *Service) ListByAgent(ctx context.Context, agentID uuid.UUID, from, to time.Time) ([]transport.AppointmentResponse, error) {
	if to.IsZero() {
		to = from.AddDate(0, 0, 14)
	}
	appts, err := s.repo.ListByAgent(ctx, agentID, from, to)
	if err != nil {
		return nil, err
	}
	return transport.ToAppointmentResponses(appts), nil
}

// Cancel performs a back-office cancellation through the booking manager so
// the lead state, calendar event, and meeting are torn down together.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	appt, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("appointment not found")
	}
	if err != nil {
		return err
	}
	if appt.Status != repository.StatusScheduled {
		return apperr.Conflict("only scheduled appointments can be cancelled")
	}

	lead, err := s.leads.GetByID(ctx, appt.LeadID)
	if err != nil {
		return err
	}

	return s.manager.Cancel(ctx, lead, appt)
}

// Complete marks a held viewing as completed.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) error {
	err := s.repo.Complete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("appointment not found or not scheduled")
	}
	return err
}
