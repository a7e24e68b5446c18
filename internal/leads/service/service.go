// Package service implements back-office lead management. Scheduling-owned
// columns are off limits here; only the scheduling core writes those.
package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"estatebot_backend/internal/events"
	"estatebot_backend/internal/leads/repository"
	"estatebot_backend/internal/leads/transport"
	"estatebot_backend/platform/apperr"
	"estatebot_backend/platform/phone"
)

// Repository is the consumer-driven data access interface for this service.
type Repository interface {
	Create(ctx context.Context, params repository.CreateLeadParams) (repository.Lead, error)
	GetByID(ctx context.Context, id uuid.UUID) (repository.Lead, error)
	GetByPhone(ctx context.Context, phone string) (repository.Lead, error)
	List(ctx context.Context, limit, offset int) ([]repository.Lead, error)
	Update(ctx context.Context, id uuid.UUID, params repository.UpdateLeadParams) (repository.Lead, error)
}

type Service struct {
	repo Repository
	bus  events.Bus
}

func New(repo Repository, bus events.Bus) *Service {
	return &Service{repo: repo, bus: bus}
}

func (s *Service) Create(ctx context.Context, req transport.CreateLeadRequest) (transport.LeadResponse, error) {
	normalized := phone.NormalizeE164(req.Phone)

	if _, err := s.repo.GetByPhone(ctx, normalized); err == nil {
		return transport.LeadResponse{}, apperr.Conflict("a lead with this phone number already exists")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return transport.LeadResponse{}, err
	}

	timezone := req.Timezone
	if timezone == "" {
		timezone = "UTC"
	}

	lead, err := s.repo.Create(ctx, repository.CreateLeadParams{
		Phone:           normalized,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Email:           req.Email,
		AssignedAgentID: req.AssignedAgentID,
		Timezone:        timezone,
	})
	if err != nil {
		return transport.LeadResponse{}, err
	}

	s.bus.Publish(ctx, events.LeadCreated{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		Phone:     lead.Phone,
	})

	return transport.ToLeadResponse(lead), nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (transport.LeadResponse, error) {
	lead, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return transport.LeadResponse{}, apperr.NotFound("lead not found")
	}
	if err != nil {
		return transport.LeadResponse{}, err
	}
	return transport.ToLeadResponse(lead), nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]transport.LeadResponse, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	leads, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	return transport.ToLeadResponses(leads), nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req transport.UpdateLeadRequest) (transport.LeadResponse, error) {
	lead, err := s.repo.Update(ctx, id, repository.UpdateLeadParams{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		CRMStatus: req.CRMStatus,
		Timezone:  req.Timezone,
	})
	if errors.Is(err, repository.ErrNotFound) {
		return transport.LeadResponse{}, apperr.NotFound("lead not found")
	}
	if err != nil {
		return transport.LeadResponse{}, err
	}
	return transport.ToLeadResponse(lead), nil
}

// Assign points the lead at an agent. Appointments already scheduled with a
// previous agent are left untouched; the scheduling core refuses to act on
// the mismatch and flags it for human handoff instead.
func (s *Service) Assign(ctx context.Context, id uuid.UUID, agentID uuid.UUID) (transport.LeadResponse, error) {
	lead, err := s.repo.Update(ctx, id, repository.UpdateLeadParams{AssignedAgentID: &agentID})
	if errors.Is(err, repository.ErrNotFound) {
		return transport.LeadResponse{}, apperr.NotFound("lead not found")
	}
	if err != nil {
		return transport.LeadResponse{}, err
	}
	return transport.ToLeadResponse(lead), nil
}
