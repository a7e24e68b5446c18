// Package transport defines the wire-level DTOs for the leads module.
package transport

import (
	"time"

	"github.com/google/uuid"

	"estatebot_backend/internal/leads/repository"
)

type CreateLeadRequest struct {
	Phone           string     `json:"phone" validate:"required,min=6,max=20"`
	FirstName       string     `json:"firstName" validate:"max=100"`
	LastName        string     `json:"lastName" validate:"max=100"`
	Email           *string    `json:"email" validate:"omitempty,email"`
	AssignedAgentID *uuid.UUID `json:"assignedAgentId"`
	Timezone        string     `json:"timezone" validate:"max=64"`
}

type UpdateLeadRequest struct {
	FirstName *string `json:"firstName" validate:"omitempty,max=100"`
	LastName  *string `json:"lastName" validate:"omitempty,max=100"`
	Email     *string `json:"email" validate:"omitempty,email"`
	CRMStatus *string `json:"crmStatus" validate:"omitempty,max=50"`
	Timezone  *string `json:"timezone" validate:"omitempty,max=64"`
}

type AssignAgentRequest struct {
	AgentID uuid.UUID `json:"agentId" validate:"required"`
}

type LeadResponse struct {
	ID                   uuid.UUID   `json:"id"`
	Phone                string      `json:"phone"`
	FirstName            string      `json:"firstName"`
	LastName             string      `json:"lastName"`
	Email                *string     `json:"email"`
	CRMStatus            string      `json:"crmStatus"`
	SchedulingState      string      `json:"schedulingState"`
	AssignedAgentID      *uuid.UUID  `json:"assignedAgentId"`
	BookingAlternatives  []time.Time `json:"bookingAlternatives"`
	TentativeBookingTime *time.Time  `json:"tentativeBookingTime"`
	Timezone             string      `json:"timezone"`
	CreatedAt            time.Time   `json:"createdAt"`
	UpdatedAt            time.Time   `json:"updatedAt"`
}

func ToLeadResponse(lead repository.Lead) LeadResponse {
	return LeadResponse{
		ID:                   lead.ID,
		Phone:                lead.Phone,
		FirstName:            lead.FirstName,
		LastName:             lead.LastName,
		Email:                lead.Email,
		CRMStatus:            lead.CRMStatus,
		SchedulingState:      string(lead.SchedulingState),
		AssignedAgentID:      lead.AssignedAgentID,
		BookingAlternatives:  lead.BookingAlternatives,
		TentativeBookingTime: lead.TentativeBookingTime,
		Timezone:             lead.Timezone,
		CreatedAt:            lead.CreatedAt,
		UpdatedAt:            lead.UpdatedAt,
	}
}

func ToLeadResponses(leads []repository.Lead) []LeadResponse {
	out := make([]LeadResponse, 0, len(leads))
	for _, lead := range leads {
		out = append(out, ToLeadResponse(lead))
	}
	return out
}
