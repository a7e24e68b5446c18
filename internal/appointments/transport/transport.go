// Package transport defines the wire-level DTOs for the appointments module.
package transport

import (
	"time"

	"github.com/google/uuid"

	"estatebot_backend/internal/appointments/repository"
)

type AppointmentResponse struct {
	ID                uuid.UUID `json:"id"`
	LeadID            uuid.UUID `json:"leadId"`
	AgentID           uuid.UUID `json:"agentId"`
	StartTime         time.Time `json:"startTime"`
	EndTime           time.Time `json:"endTime"`
	Status            string    `json:"status"`
	MeetingJoinURL    *string   `json:"meetingJoinUrl"`
	MeetingProviderID *string   `json:"meetingProviderId"`
	CalendarEventID   *string   `json:"calendarEventId"`
	Notes             *string   `json:"notes"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func ToAppointmentResponse(appt repository.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                appt.ID,
		LeadID:            appt.LeadID,
		AgentID:           appt.AgentID,
		StartTime:         appt.StartTime,
		EndTime:           appt.EndTime,
		Status:            appt.Status,
		MeetingJoinURL:    appt.MeetingJoinURL,
		MeetingProviderID: appt.MeetingProviderID,
		CalendarEventID:   appt.CalendarEventID,
		Notes:             appt.Notes,
		CreatedAt:         appt.CreatedAt,
		UpdatedAt:         appt.UpdatedAt,
	}
}

func ToAppointmentResponses(appts []repository.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(appts))
	for _, appt := range appts {
		out = append(out, ToAppointmentResponse(appt))
	}
	return out
}
