// Package leads provides the lead/visitor store bounded context: the durable
// entity store with encrypted contact fields, its read-through caches, and
// the HTTP surface for lead reads and inbound replies.
package leads

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"outreach_engine_backend/internal/events"
	apphttp "outreach_engine_backend/internal/http"
	"outreach_engine_backend/internal/leads/handler"
	"outreach_engine_backend/internal/leads/repository"
	"outreach_engine_backend/internal/leads/service"
	"outreach_engine_backend/platform/cache"
	"outreach_engine_backend/platform/fieldcrypt"
	"outreach_engine_backend/platform/logger"
	"outreach_engine_backend/platform/validator"
)

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	svc      *service.Service
	handler  *handler.Handler
	entities *cache.Cache[repository.Lead]
	lists    *cache.Cache[[]repository.Lead]
}

// NewModule wires the leads repository, caches, and service. The caller
// starts the cache sweep loops on the caches returned by Caches.
func NewModule(pool *pgxpool.Pool, codec *fieldcrypt.Codec, bus events.Bus, val *validator.Validator, log *logger.Logger, abandonmentThreshold time.Duration) *Module {
	repo := repository.New(pool)
	entities := cache.New[repository.Lead](time.Second)
	lists := cache.New[[]repository.Lead](time.Second)

	svc := service.New(repo, codec, entities, lists, bus, log, abandonmentThreshold)
	svc.RegisterHandlers(bus)

	return &Module{
		svc:      svc,
		handler:  handler.New(svc, val),
		entities: entities,
		lists:    lists,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// Service exposes the lead service to sibling modules (ingestion upserts
// through it so cache invalidation is never skipped).
func (m *Module) Service() *service.Service {
	return m.svc
}

// RegisterRoutes mounts lead routes on the secured group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Secured.Group("/leads"))
}

// Caches returns the module's caches so the composition root can run their
// sweep loops.
func (m *Module) Caches() (*cache.Cache[repository.Lead], *cache.Cache[[]repository.Lead]) {
	return m.entities, m.lists
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
