package ingestion

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"outreach_engine_backend/internal/events"
	apphttp "outreach_engine_backend/internal/http"
	"outreach_engine_backend/platform/config"
	"outreach_engine_backend/platform/logger"
	"outreach_engine_backend/platform/validator"
)

// Config is the subset of application configuration the module needs.
type Config interface {
	config.IngestionConfig
}

// Module is the ingestion bounded context module implementing http.Module.
type Module struct {
	svc     *Service
	ledger  *Ledger
	norm    *Normalizer
	handler *Handler
}

// NewModule wires the ledger, normalizer, and ingestion service.
func NewModule(pool *pgxpool.Pool, leads LeadUpserter, cfg Config, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	ledger := NewLedger(pool)
	norm := NewNormalizer(val, cfg.GetHashIdentityEmail(), cfg.GetDefaultPhoneRegion())
	svc := NewService(ledger, leads, norm, cfg.GetRowErrorCeiling(), bus, log)

	return &Module{
		svc:     svc,
		ledger:  ledger,
		norm:    norm,
		handler: NewHandler(svc, ledger, val),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "ingestion"
}

// Service exposes the ingestion service to the batch poller.
func (m *Module) Service() *Service {
	return m.svc
}

// Ledger exposes the idempotency ledger to the batch poller.
func (m *Module) Ledger() *Ledger {
	return m.ledger
}

// RegisterRoutes mounts ingestion routes. The public submission endpoint is
// rate limited per IP; ledger queries sit behind the API key like the rest
// of the management surface.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ingest := ctx.Secured.Group("/ingest")
	ingest.POST("/leads", ctx.IngestRateLimiter.RateLimit(), m.handler.SubmitLeads)
	ingest.GET("/artifacts", m.handler.ListArtifacts)
	ingest.GET("/artifacts/:artifactId", m.handler.GetArtifact)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
