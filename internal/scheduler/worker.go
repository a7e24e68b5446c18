package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	apptsrepo "estatebot_backend/internal/appointments/repository"
	leadsrepo "estatebot_backend/internal/leads/repository"
	"estatebot_backend/internal/meeting"
	"estatebot_backend/internal/whatsapp"
	"estatebot_backend/platform/config"
	"estatebot_backend/platform/logger"
)

type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	appts    *apptsrepo.Repository
	leads    *leadsrepo.Repository
	meetings meeting.Client
	sender   whatsapp.Sender
	log      *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, pool *pgxpool.Pool, meetings meeting.Client, sender whatsapp.Sender, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:   server,
		mux:      mux,
		appts:    apptsrepo.New(pool),
		leads:    leadsrepo.New(pool),
		meetings: meetings,
		sender:   sender,
		log:      log,
	}

	mux.HandleFunc(TaskMeetingRepair, w.handleMeetingRepair)
	mux.HandleFunc(TaskBookingReminder, w.handleBookingReminder)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

// handleMeetingRepair provisions the meeting link for a booking that was
// committed without one. Returning an error lets asynq retry with backoff.
func (w *Worker) handleMeetingRepair(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseMeetingRepairPayload(task)
	if err != nil {
		return err
	}

	apptID, err := uuid.Parse(payload.AppointmentID)
	if err != nil {
		return err
	}

	appt, err := w.appts.GetByID(ctx, apptID)
	if err != nil {
		return err
	}
	if appt.Status != apptsrepo.StatusScheduled {
		return nil
	}
	if appt.MeetingJoinURL != nil && *appt.MeetingJoinURL != "" {
		return nil
	}

	duration := int(appt.EndTime.Sub(appt.StartTime).Minutes())
	created, err := w.meetings.CreateMeeting(ctx, "Property viewing", appt.StartTime, duration)
	if err != nil {
		return fmt.Errorf("repair meeting for appointment %s: %w", apptID, err)
	}

	if err := w.appts.SetProviderRefs(ctx, apptID, nil, &created.MeetingID, &created.JoinURL); err != nil {
		return err
	}

	w.log.Info("meeting link repaired", "appointmentId", apptID.String())

	// Tell the lead their link is ready.
	lead, err := w.leads.GetByID(ctx, appt.LeadID)
	if err != nil {
		w.log.Error("meeting repaired but lead lookup failed", "error", err, "leadId", appt.LeadID.String())
		return nil
	}
	msg := fmt.Sprintf("Good news! Here is the video link for your viewing: %s", created.JoinURL)
	if err := w.sender.SendMessage(ctx, lead.Phone, msg); err != nil {
		w.log.Error("failed to send repaired meeting link", "error", err, "leadId", lead.ID.String())
	}
	return nil
}

// handleBookingReminder sends a WhatsApp reminder ahead of the appointment.
// A reminder for a since-moved or cancelled appointment is silently skipped;
// the reschedule path enqueues a fresh one.
func (w *Worker) handleBookingReminder(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseBookingReminderPayload(task)
	if err != nil {
		return err
	}

	apptID, err := uuid.Parse(payload.AppointmentID)
	if err != nil {
		return err
	}

	appt, err := w.appts.GetByID(ctx, apptID)
	if err != nil {
		return err
	}
	if appt.Status != apptsrepo.StatusScheduled {
		return nil
	}
	if time.Until(appt.StartTime) > 25*time.Hour || appt.StartTime.Before(time.Now()) {
		return nil
	}

	lead, err := w.leads.GetByID(ctx, appt.LeadID)
	if err != nil {
		return err
	}

	loc, locErr := time.LoadLocation(lead.Timezone)
	if locErr != nil {
		loc = time.UTC
	}
	when := appt.StartTime.In(loc).Format("Monday, January 2 at 15:04")
	msg := fmt.Sprintf("Reminder: your property viewing is on %s.", when)
	if appt.MeetingJoinURL != nil && *appt.MeetingJoinURL != "" {
		msg += " Join here: " + *appt.MeetingJoinURL
	}

	if err := w.sender.SendMessage(ctx, lead.Phone, msg); err != nil {
		return err
	}

	w.log.Info("booking reminder sent", "appointmentId", apptID.String(), "leadId", lead.ID.String())
	return nil
}
