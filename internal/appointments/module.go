// Package appointments provides the appointment back-office module.
// This file defines the module that encapsulates appointment setup and route
// registration.
package appointments

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"estatebot_backend/internal/appointments/handler"
	"estatebot_backend/internal/appointments/repository"
	"estatebot_backend/internal/appointments/service"
	apphttp "estatebot_backend/internal/http"
	leadsrepo "estatebot_backend/internal/leads/repository"
	"estatebot_backend/internal/scheduling"
)

// Module is the appointments bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	repo    *repository.Repository
}

// NewModule creates and initializes the appointments module.
func NewModule(pool *pgxpool.Pool, leads *leadsrepo.Repository, manager *scheduling.Manager) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, leads, manager)
	h := handler.New(svc)

	return &Module{
		handler: h,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "appointments"
}

// RegisterRoutes mounts appointment routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/appointments"))
}

// Repository exposes the shared appointments repository to the composition root.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
