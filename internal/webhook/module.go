// Package webhook provides the inbound WhatsApp conversation module.
// This file defines the module that encapsulates webhook setup and route
// registration.
package webhook

import (
	"github.com/redis/go-redis/v9"

	"estatebot_backend/internal/events"
	apphttp "estatebot_backend/internal/http"
	"estatebot_backend/internal/intent"
	"estatebot_backend/internal/whatsapp"
	"estatebot_backend/platform/config"
	"estatebot_backend/platform/logger"
	"estatebot_backend/platform/validator"
)

// Module is the webhook bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	service *Service
}

// NewModule creates and initializes the webhook module with its dependencies.
func NewModule(leads LeadStore, dispatcher Dispatcher, classifier intent.Classifier, sender whatsapp.Sender, redisClient *redis.Client, bus events.Bus, cfg config.WebhookConfig, val *validator.Validator, log *logger.Logger) *Module {
	service := NewService(leads, dispatcher, classifier, sender, redisClient, bus, cfg, log)
	handler := NewHandler(service, val)

	return &Module{
		handler: handler,
		service: service,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts webhook routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Webhook.POST("/whatsapp", m.handler.HandleInboundMessage)
}

// Drain waits for in-flight conversation workers on shutdown.
func (m *Module) Drain() {
	m.service.Wait()
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
