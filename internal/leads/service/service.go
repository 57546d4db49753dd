// Package service implements the lead/visitor store operations: upsert by
// identity, cached reads, inbound replies, and abandonment evaluation.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"outreach_engine_backend/internal/events"
	"outreach_engine_backend/internal/leads/repository"
	"outreach_engine_backend/internal/leads/transport"
	"outreach_engine_backend/platform/apperr"
	"outreach_engine_backend/platform/cache"
	"outreach_engine_backend/platform/fieldcrypt"
	"outreach_engine_backend/platform/logger"
)

const (
	entityTTL = 5 * time.Minute
	listTTL   = 30 * time.Second
)

// UpsertLead carries one normalized sighting of a lead. Email and Phone are
// plaintext here; the service encrypts them before they reach the store.
type UpsertLead struct {
	IdentityKey string
	Email       string
	Phone       string
	FirstName   string
	LastName    string
	Attributes  map[string]any
	Source      string
	SessionKey  string
}

// Service owns lead reads and writes. All mutations flow through here so the
// cache entries that could hold stale copies are always invalidated.
type Service struct {
	repo      repository.LeadsRepository
	codec     *fieldcrypt.Codec
	entities  *cache.Cache[repository.Lead]
	lists     *cache.Cache[[]repository.Lead]
	bus       events.Bus
	log       *logger.Logger
	threshold time.Duration
}

func New(repo repository.LeadsRepository, codec *fieldcrypt.Codec, entities *cache.Cache[repository.Lead], lists *cache.Cache[[]repository.Lead], bus events.Bus, log *logger.Logger, abandonmentThreshold time.Duration) *Service {
	return &Service{
		repo:      repo,
		codec:     codec,
		entities:  entities,
		lists:     lists,
		bus:       bus,
		log:       log,
		threshold: abandonmentThreshold,
	}
}

// Upsert merge-writes a lead sighting and invalidates every cache entry that
// could hold a stale copy: the entity keys exactly, the list views by pattern.
func (s *Service) Upsert(ctx context.Context, in UpsertLead) (repository.Lead, error) {
	emailEnc, err := s.codec.Encrypt(in.Email)
	if err != nil {
		return repository.Lead{}, fmt.Errorf("encrypt email: %w", err)
	}
	phoneEnc, err := s.codec.Encrypt(in.Phone)
	if err != nil {
		return repository.Lead{}, fmt.Errorf("encrypt phone: %w", err)
	}

	lead, err := s.repo.Upsert(ctx, repository.UpsertLeadParams{
		IdentityKey: in.IdentityKey,
		EmailEnc:    emailEnc,
		PhoneEnc:    phoneEnc,
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Attributes:  in.Attributes,
		Source:      in.Source,
		SessionKey:  in.SessionKey,
	})
	if err != nil {
		return repository.Lead{}, apperr.Unavailable("lead store write failed", err).WithOp("leads.Upsert")
	}

	s.invalidateLead(lead)
	return lead, nil
}

// GetByID returns the decrypted view of a lead, read through the cache.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (transport.LeadResponse, error) {
	lead, err := s.entities.GetOrLoad(ctx, entityKey(id), entityTTL, func(ctx context.Context) (repository.Lead, error) {
		return s.repo.GetByID(ctx, id)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.LeadResponse{}, apperr.NotFound("lead not found")
		}
		return transport.LeadResponse{}, apperr.Unavailable("lead store read failed", err).WithOp("leads.GetByID")
	}

	return s.toResponse(lead)
}

// List returns decrypted lead views for the given filters, read through the
// list cache.
func (s *Service) List(ctx context.Context, params repository.ListLeadsParams) ([]transport.LeadResponse, error) {
	key := listKey(params)
	leads, err := s.lists.GetOrLoad(ctx, key, listTTL, func(ctx context.Context) ([]repository.Lead, error) {
		return s.repo.List(ctx, params)
	})
	if err != nil {
		return nil, apperr.Unavailable("lead store read failed", err).WithOp("leads.List")
	}

	out := make([]transport.LeadResponse, 0, len(leads))
	for _, lead := range leads {
		resp, err := s.toResponse(lead)
		if err != nil {
			return nil, err
		}
		out = append(out, resp)
	}
	return out, nil
}

// RecordReply stores an inbound reply and refreshes the lead's activity.
// Replies feed the skip-if-responded condition at dispatch time.
func (s *Service) RecordReply(ctx context.Context, leadID uuid.UUID, body string) (transport.ReplyResponse, error) {
	reply, err := s.repo.RecordReply(ctx, leadID, body)
	if err != nil {
		return transport.ReplyResponse{}, apperr.Unavailable("reply write failed", err).WithOp("leads.RecordReply")
	}

	s.entities.Invalidate(entityKey(leadID))
	s.lists.InvalidatePattern("leads:list:*")

	s.bus.Publish(ctx, events.LeadReplied{BaseEvent: events.NewBaseEvent(), LeadID: leadID})

	return transport.ReplyResponse{ID: reply.ID, LeadID: reply.LeadID, ReceivedAt: reply.ReceivedAt}, nil
}

// Deactivate soft-deletes a lead.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("lead not found")
		}
		return apperr.Unavailable("lead store write failed", err).WithOp("leads.Deactivate")
	}

	s.entities.Invalidate(entityKey(id))
	s.lists.InvalidatePattern("leads:list:*")
	return nil
}

// EvaluateAbandonment flags visitors whose last sighting is older than the
// configured threshold. Runs after artifact ingestion and on a periodic sweep.
func (s *Service) EvaluateAbandonment(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.threshold)
	flagged, err := s.repo.MarkAbandonedBefore(ctx, cutoff)
	if err != nil {
		return 0, apperr.Unavailable("abandonment sweep failed", err).WithOp("leads.EvaluateAbandonment")
	}

	if flagged > 0 {
		s.lists.InvalidatePattern("leads:list:*")
		s.log.Info("visitors flagged abandoned", "count", flagged)
	}
	return flagged, nil
}

// RegisterHandlers subscribes the abandonment evaluation to artifact events.
func (s *Service) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.EventArtifactProcessed, events.HandlerFunc(func(ctx context.Context, _ events.Event) error {
		_, err := s.EvaluateAbandonment(ctx)
		return err
	}))
}

func (s *Service) invalidateLead(lead repository.Lead) {
	s.entities.Invalidate(entityKey(lead.ID))
	s.lists.InvalidatePattern("leads:list:*")
}

func (s *Service) toResponse(lead repository.Lead) (transport.LeadResponse, error) {
	email, err := s.codec.Decrypt(lead.EmailEnc)
	if err != nil {
		return transport.LeadResponse{}, apperr.Internal("contact field decryption failed").WithOp("leads.toResponse")
	}
	phone, err := s.codec.Decrypt(lead.PhoneEnc)
	if err != nil {
		return transport.LeadResponse{}, apperr.Internal("contact field decryption failed").WithOp("leads.toResponse")
	}

	return transport.LeadResponse{
		ID:             lead.ID,
		IdentityKey:    lead.IdentityKey,
		Email:          email,
		Phone:          phone,
		FirstName:      lead.FirstName,
		LastName:       lead.LastName,
		Attributes:     lead.Attributes,
		Source:         lead.Source,
		SessionKey:     lead.SessionKey,
		LastActivityAt: lead.LastActivityAt,
		Abandoned:      lead.Abandoned,
		Active:         lead.Active,
		CreatedAt:      lead.CreatedAt,
	}, nil
}

func entityKey(id uuid.UUID) string {
	return "lead:id:" + id.String()
}

func listKey(params repository.ListLeadsParams) string {
	return fmt.Sprintf("leads:list:%s:%t:%d:%d", params.Source, params.OnlyAbandoned, params.Offset, params.Limit)
}
