// Package ingestion provides the ingestion gateway: idempotent batch and
// real-time lead intake with per-row failure isolation.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"outreach_engine_backend/internal/events"
	leadsrepo "outreach_engine_backend/internal/leads/repository"
	leadsvc "outreach_engine_backend/internal/leads/service"
	"outreach_engine_backend/platform/apperr"
	"outreach_engine_backend/platform/logger"
)

// LeadUpserter is satisfied by the leads service. Routing upserts through it
// keeps cache invalidation on every write path.
type LeadUpserter interface {
	Upsert(ctx context.Context, in leadsvc.UpsertLead) (leadsrepo.Lead, error)
}

// RowError reports one rejected row.
type RowError struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// BatchResult is the in-band outcome of processing one artifact. Row and
// artifact level failures are carried here, never as a bare error.
type BatchResult struct {
	ArtifactID string     `json:"artifactId"`
	Accepted   int        `json:"accepted"`
	Rejected   int        `json:"rejected"`
	RowErrors  []RowError `json:"rowErrors,omitempty"`
	Aborted    bool       `json:"aborted"`
	Duplicate  bool       `json:"duplicate"`
	Status     string     `json:"status"`
}

// Service runs the validate/normalize/upsert pipeline for both ingestion
// paths, gated by the idempotency ledger.
type Service struct {
	ledger  LedgerRepository
	leads   LeadUpserter
	norm    *Normalizer
	ceiling int
	bus     events.Bus
	log     *logger.Logger
}

func NewService(ledger LedgerRepository, leads LeadUpserter, norm *Normalizer, rowErrorCeiling int, bus events.Bus, log *logger.Logger) *Service {
	if rowErrorCeiling < 1 {
		rowErrorCeiling = 100
	}
	return &Service{
		ledger:  ledger,
		leads:   leads,
		norm:    norm,
		ceiling: rowErrorCeiling,
		bus:     bus,
		log:     log,
	}
}

// Ingest processes one artifact's rows. An already-recorded artifact id is an
// idempotent no-op. One bad row never aborts the batch; crossing the row-error
// ceiling aborts the remaining rows of this artifact only, keeping the rows
// accepted so far committed.
func (s *Service) Ingest(ctx context.Context, artifactID string, sizeBytes int64, rows []RawRow) (BatchResult, error) {
	result := BatchResult{ArtifactID: artifactID}

	exists, err := s.ledger.Exists(ctx, artifactID)
	if err != nil {
		return result, apperr.Unavailable("idempotency ledger unreachable", err).WithOp("ingestion.Ingest")
	}
	if exists {
		s.log.IngestSkipped(artifactID)
		result.Duplicate = true
		result.Status = StatusProcessed
		return result, nil
	}

	start := time.Now()

	for i, row := range rows {
		upsert, err := s.norm.Normalize(row)
		if err != nil {
			result.Rejected++
			result.RowErrors = append(result.RowErrors, RowError{Index: i, Reason: err.Error()})
			if result.Rejected > s.ceiling {
				result.Aborted = true
				break
			}
			continue
		}

		if _, err := s.leads.Upsert(ctx, upsert); err != nil {
			// Store unavailability is fatal for the whole operation. The
			// ledger entry is not written, so a wholesale retry re-processes
			// the artifact; upsert-by-identity keeps that idempotent.
			return result, apperr.Unavailable(fmt.Sprintf("lead store write failed at row %d", i), err).WithOp("ingestion.Ingest")
		}
		result.Accepted++
	}

	result.Status = StatusProcessed
	if result.Rejected > 0 {
		result.Status = StatusProcessedWithErrors
	}

	durationMs := time.Since(start).Milliseconds()
	if err := s.ledger.Record(ctx, Artifact{
		ArtifactID: artifactID,
		SizeBytes:  sizeBytes,
		RowCount:   len(rows),
		ErrorCount: result.Rejected,
		DurationMs: durationMs,
		Status:     result.Status,
	}); err != nil {
		return result, apperr.Unavailable("idempotency ledger write failed", err).WithOp("ingestion.Ingest")
	}

	s.log.IngestResult(artifactID, result.Accepted, result.Rejected, durationMs, result.Status)

	s.bus.Publish(ctx, events.ArtifactProcessed{
		BaseEvent:  events.NewBaseEvent(),
		ArtifactID: artifactID,
		Accepted:   result.Accepted,
		Rejected:   result.Rejected,
		Status:     result.Status,
	})

	return result, nil
}
