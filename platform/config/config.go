// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// ServiceKeyConfig provides the static service key protecting back-office routes.
type ServiceKeyConfig interface {
	GetServiceAPIKey() string
}

// WebhookConfig provides settings for the inbound WhatsApp webhook.
type WebhookConfig interface {
	GetWebhookKey() string
	GetDispatchTimeout() time.Duration
}

// WhatsAppConfig provides settings for the outbound WhatsApp gateway.
type WhatsAppConfig interface {
	GetWhatsAppURL() string
	GetWhatsAppKey() string
	GetWhatsAppDeviceID() string
}

// IntentConfig provides settings for the AI intent classifier.
type IntentConfig interface {
	GetGeminiAPIKey() string
	GetIntentModel() string
}

// CalendarConfig provides settings for the calendar provider client.
type CalendarConfig interface {
	GetCalendarURL() string
	GetCalendarKey() string
}

// MeetingConfig provides settings for the video meeting provider client.
type MeetingConfig interface {
	GetMeetingURL() string
	GetMeetingKey() string
}

// SchedulingConfig provides tuning knobs for the booking engine.
type SchedulingConfig interface {
	GetSlotDuration() time.Duration
	GetMinLeadTime() time.Duration
	GetLookaheadDays() int
}

// SchedulerConfig provides settings for the asynq background job system.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// EmailConfig provides settings for email sending.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env              string
	HTTPAddr         string
	DatabaseURL      string
	CORSAllowAll     bool
	CORSOrigins      []string
	CORSAllowCreds   bool
	ServiceAPIKey    string
	WebhookKey       string
	DispatchTimeout  time.Duration
	WhatsAppURL      string
	WhatsAppKey      string
	WhatsAppDeviceID string
	GeminiAPIKey     string
	IntentModel      string
	CalendarURL      string
	CalendarKey      string
	MeetingURL       string
	MeetingKey       string
	SlotDuration     time.Duration
	MinLeadTime      time.Duration
	LookaheadDays    int
	RedisURL         string
	RedisTLSInsecure bool
	AsynqQueueName   string
	AsynqConcurrency int
	EmailEnabled     bool
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	EmailFromName    string
	EmailFromAddress string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// ServiceKeyConfig implementation
func (c *Config) GetServiceAPIKey() string { return c.ServiceAPIKey }

// WebhookConfig implementation
func (c *Config) GetWebhookKey() string             { return c.WebhookKey }
func (c *Config) GetDispatchTimeout() time.Duration { return c.DispatchTimeout }

// WhatsAppConfig implementation
func (c *Config) GetWhatsAppURL() string      { return c.WhatsAppURL }
func (c *Config) GetWhatsAppKey() string      { return c.WhatsAppKey }
func (c *Config) GetWhatsAppDeviceID() string { return c.WhatsAppDeviceID }

// IntentConfig implementation
func (c *Config) GetGeminiAPIKey() string { return c.GeminiAPIKey }
func (c *Config) GetIntentModel() string  { return c.IntentModel }

// CalendarConfig implementation
func (c *Config) GetCalendarURL() string { return c.CalendarURL }
func (c *Config) GetCalendarKey() string { return c.CalendarKey }

// MeetingConfig implementation
func (c *Config) GetMeetingURL() string { return c.MeetingURL }
func (c *Config) GetMeetingKey() string { return c.MeetingKey }

// SchedulingConfig implementation
func (c *Config) GetSlotDuration() time.Duration { return c.SlotDuration }
func (c *Config) GetMinLeadTime() time.Duration  { return c.MinLeadTime }
func (c *Config) GetLookaheadDays() int          { return c.LookaheadDays }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

// Load reads configuration from the environment, loading a .env file if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:              getEnv("APP_ENV", "development"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		CORSAllowAll:     corsAllowAll,
		CORSOrigins:      corsOrigins,
		CORSAllowCreds:   strings.EqualFold(getEnv("CORS_ALLOW_CREDS", "true"), "true"),
		ServiceAPIKey:    getEnv("SERVICE_API_KEY", ""),
		WebhookKey:       getEnv("WEBHOOK_KEY", ""),
		DispatchTimeout:  getDurationEnv("DISPATCH_TIMEOUT", 30*time.Second),
		WhatsAppURL:      getEnv("WHATSAPP_URL", ""),
		WhatsAppKey:      getEnv("WHATSAPP_KEY", ""),
		WhatsAppDeviceID: getEnv("WHATSAPP_DEVICE_ID", ""),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		IntentModel:      getEnv("INTENT_MODEL", "gemini-2.5-flash"),
		CalendarURL:      getEnv("CALENDAR_URL", ""),
		CalendarKey:      getEnv("CALENDAR_KEY", ""),
		MeetingURL:       getEnv("MEETING_URL", ""),
		MeetingKey:       getEnv("MEETING_KEY", ""),
		SlotDuration:     getDurationEnv("SLOT_DURATION", time.Hour),
		MinLeadTime:      getDurationEnv("MIN_LEAD_TIME", 2*time.Hour),
		LookaheadDays:    getIntEnv("LOOKAHEAD_DAYS", 14),
		RedisURL:         getEnv("REDIS_URL", ""),
		RedisTLSInsecure: strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency: getIntEnv("ASYNQ_CONCURRENCY", 10),
		EmailEnabled:     strings.EqualFold(getEnv("EMAIL_ENABLED", "false"), "true"),
		SMTPHost:         getEnv("SMTP_HOST", ""),
		SMTPPort:         getIntEnv("SMTP_PORT", 587),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "Scheduling Assistant"),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
