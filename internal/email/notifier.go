package email

import (
	"context"
	"time"

	"estatebot_backend/internal/events"
	leadsrepo "estatebot_backend/internal/leads/repository"
	"estatebot_backend/platform/logger"

	"github.com/google/uuid"
)

const emailTimeFormat = "Monday, January 2 at 15:04"

// LeadReader supplies the lead name and timezone for rendering emails.
type LeadReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (leadsrepo.Lead, error)
}

// Notifier sends booking lifecycle emails in reaction to domain events.
// Leads without an email address are skipped silently.
type Notifier struct {
	sender Sender
	leads  LeadReader
	log    *logger.Logger
}

func NewNotifier(sender Sender, leads LeadReader, log *logger.Logger) *Notifier {
	return &Notifier{sender: sender, leads: leads, log: log}
}

// Register subscribes the notifier to the booking lifecycle events.
func (n *Notifier) Register(bus events.Bus) {
	events.SubscribeFunc(bus, events.NameAppointmentBooked, n.onBooked)
	events.SubscribeFunc(bus, events.NameAppointmentRescheduled, n.onRescheduled)
	events.SubscribeFunc(bus, events.NameAppointmentCancelled, n.onCancelled)
}

func (n *Notifier) onBooked(ctx context.Context, evt events.AppointmentBooked) error {
	if evt.LeadEmail == "" {
		return nil
	}
	name, loc := n.leadDisplay(ctx, evt.LeadID)
	err := n.sender.SendBookingConfirmation(ctx, evt.LeadEmail, name, evt.StartTime.In(loc).Format(emailTimeFormat), evt.MeetingJoinURL)
	if err != nil {
		n.log.Error("booking confirmation email failed", "leadId", evt.LeadID, "error", err)
	}
	return err
}

func (n *Notifier) onRescheduled(ctx context.Context, evt events.AppointmentRescheduled) error {
	if evt.LeadEmail == "" {
		return nil
	}
	name, loc := n.leadDisplay(ctx, evt.LeadID)
	err := n.sender.SendBookingRescheduled(ctx, evt.LeadEmail, name, evt.NewStartTime.In(loc).Format(emailTimeFormat), "")
	if err != nil {
		n.log.Error("reschedule email failed", "leadId", evt.LeadID, "error", err)
	}
	return err
}

func (n *Notifier) onCancelled(ctx context.Context, evt events.AppointmentCancelled) error {
	if evt.LeadEmail == "" {
		return nil
	}
	name, loc := n.leadDisplay(ctx, evt.LeadID)
	err := n.sender.SendBookingCancelled(ctx, evt.LeadEmail, name, evt.StartTime.In(loc).Format(emailTimeFormat))
	if err != nil {
		n.log.Error("cancellation email failed", "leadId", evt.LeadID, "error", err)
	}
	return err
}

// leadDisplay returns the lead's first name and timezone, falling back to a
// generic salutation and UTC when the lead cannot be loaded.
func (n *Notifier) leadDisplay(ctx context.Context, leadID uuid.UUID) (string, *time.Location) {
	lead, err := n.leads.GetByID(ctx, leadID)
	if err != nil {
		n.log.Warn("lead lookup for email failed", "leadId", leadID, "error", err)
		return "there", time.UTC
	}
	loc, err := time.LoadLocation(lead.Timezone)
	if err != nil {
		loc = time.UTC
	}
	name := lead.FirstName
	if name == "" {
		name = "there"
	}
	return name, loc
}
