// Package sequences provides the outreach sequence bounded context: sequence
// definitions, enrollment executions, the due-execution executor, and the
// HTTP surface including the transport callback webhook.
package sequences

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"outreach_engine_backend/internal/email"
	"outreach_engine_backend/internal/events"
	apphttp "outreach_engine_backend/internal/http"
	"outreach_engine_backend/internal/sequences/domain"
	"outreach_engine_backend/internal/sequences/handler"
	"outreach_engine_backend/internal/sequences/repository"
	"outreach_engine_backend/internal/sequences/service"
	"outreach_engine_backend/platform/cache"
	"outreach_engine_backend/platform/logger"
	"outreach_engine_backend/platform/validator"
)

// Module is the sequences bounded context module implementing http.Module.
type Module struct {
	repo     *repository.Repository
	svc      *service.Service
	executor *service.Executor
	handler  *handler.Handler
	stats    *cache.Cache[map[domain.Status]int]
}

// NewModule wires the sequences repository, service, and executor. The
// sender may be nil in processes that never execute steps (the API serves
// definitions and callbacks only).
func NewModule(pool *pgxpool.Pool, leads service.LeadReader, sender email.Sender, bus events.Bus, val *validator.Validator, log *logger.Logger, execCfg service.ExecutorConfig) *Module {
	repo := repository.New(pool)
	stats := cache.New[map[domain.Status]int](time.Second)

	svc := service.New(repo, leads, stats, bus, log)

	var executor *service.Executor
	if sender != nil {
		executor = service.NewExecutor(repo, leads, sender, bus, log, execCfg)
	}

	return &Module{
		repo:     repo,
		svc:      svc,
		executor: executor,
		handler:  handler.New(svc, val),
		stats:    stats,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "sequences"
}

// Service exposes the sequence service to the composition root (seeding,
// scheduler wiring).
func (m *Module) Service() *service.Service {
	return m.svc
}

// Repository exposes the repository to the dispatcher, which claims due
// executions directly.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// Executor returns the step executor, or nil when no sender was wired.
func (m *Module) Executor() *service.Executor {
	return m.executor
}

// RegisterRoutes mounts sequence routes on the secured group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Secured.Group("/sequences"))
	m.handler.RegisterCallbackRoutes(ctx.Secured)
	m.handler.RegisterExecutionRoutes(ctx.Secured)
}

// StatsCache returns the stats cache so the composition root can run its
// sweep loop.
func (m *Module) StatsCache() *cache.Cache[map[domain.Status]int] {
	return m.stats
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
