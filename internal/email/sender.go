// Package email sends booking lifecycle emails to leads who shared an
// email address. WhatsApp stays the primary channel; email is a courtesy
// copy with the calendar details.
package email

import (
	"context"
	"fmt"

	"estatebot_backend/platform/config"
)

type Sender interface {
	SendBookingConfirmation(ctx context.Context, toEmail, leadName, scheduledDate, joinURL string) error
	SendBookingRescheduled(ctx context.Context, toEmail, leadName, scheduledDate, joinURL string) error
	SendBookingCancelled(ctx context.Context, toEmail, leadName, scheduledDate string) error
}

// NoopSender is used when email delivery is disabled.
type NoopSender struct{}

func (NoopSender) SendBookingConfirmation(ctx context.Context, toEmail, leadName, scheduledDate, joinURL string) error {
	return nil
}

func (NoopSender) SendBookingRescheduled(ctx context.Context, toEmail, leadName, scheduledDate, joinURL string) error {
	return nil
}

func (NoopSender) SendBookingCancelled(ctx context.Context, toEmail, leadName, scheduledDate string) error {
	return nil
}

// NewSender picks the configured implementation.
func NewSender(cfg config.EmailConfig) (Sender, error) {
	if !cfg.GetEmailEnabled() {
		return NoopSender{}, nil
	}
	if cfg.GetSMTPHost() == "" || cfg.GetEmailFromAddress() == "" {
		return nil, fmt.Errorf("email enabled but SMTP_HOST or EMAIL_FROM_ADDRESS missing")
	}
	return NewSMTPSender(
		cfg.GetSMTPHost(),
		cfg.GetSMTPPort(),
		cfg.GetSMTPUsername(),
		cfg.GetSMTPPassword(),
		cfg.GetEmailFromAddress(),
		cfg.GetEmailFromName(),
	), nil
}
