package email

import (
	"context"
	"fmt"
	"net"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// SMTPSender implements the Sender interface using a direct SMTP connection
// via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewSMTPSender creates a new SMTPSender with the given SMTP credentials.
func NewSMTPSender(host string, port int, username, password, fromEmail, fromName string) *SMTPSender {
	return &SMTPSender{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromName:  fromName,
		fromEmail: fromEmail,
	}
}

func (s *SMTPSender) send(ctx context.Context, toEmail, subject, htmlContent string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

func (s *SMTPSender) SendBookingConfirmation(ctx context.Context, toEmail, leadName, scheduledDate, joinURL string) error {
	content, err := renderEmailTemplate("booking_confirmed.html", bookingConfirmedEmailData{
		baseEmailData: baseEmailData{
			Title:    "Viewing confirmed",
			Heading:  "Your viewing is confirmed",
			CTALabel: "Join video call",
			CTAURL:   joinURL,
		},
		LeadName:      leadName,
		ScheduledDate: scheduledDate,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subjectBookingConfirmed, content)
}

func (s *SMTPSender) SendBookingRescheduled(ctx context.Context, toEmail, leadName, scheduledDate, joinURL string) error {
	content, err := renderEmailTemplate("booking_rescheduled.html", bookingRescheduledEmailData{
		baseEmailData: baseEmailData{
			Title:    "Viewing rescheduled",
			Heading:  "Your viewing has moved",
			CTALabel: "Join video call",
			CTAURL:   joinURL,
		},
		LeadName:      leadName,
		ScheduledDate: scheduledDate,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subjectBookingRescheduled, content)
}

func (s *SMTPSender) SendBookingCancelled(ctx context.Context, toEmail, leadName, scheduledDate string) error {
	content, err := renderEmailTemplate("booking_cancelled.html", bookingCancelledEmailData{
		baseEmailData: baseEmailData{
			Title:   "Viewing cancelled",
			Heading: "Your viewing was cancelled",
		},
		LeadName:      leadName,
		ScheduledDate: scheduledDate,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subjectBookingCancelled, content)
}
