// Package leads provides the lead management bounded context module.
// This file defines the module that encapsulates all leads setup and route registration.
package leads

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"estatebot_backend/internal/events"
	apphttp "estatebot_backend/internal/http"
	"estatebot_backend/internal/leads/handler"
	"estatebot_backend/internal/leads/repository"
	"estatebot_backend/internal/leads/service"
	"estatebot_backend/platform/validator"
)

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    *repository.Repository
}

// NewModule creates and initializes the leads module with its dependencies.
func NewModule(pool *pgxpool.Pool, eventBus events.Bus, val *validator.Validator) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, eventBus)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		service: svc,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// RegisterRoutes mounts lead routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/leads"))
}

// Repository exposes the shared leads repository to the composition root.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
