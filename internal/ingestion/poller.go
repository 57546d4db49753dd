package ingestion

import (
	"context"
	"path"
	"strings"
	"time"

	"outreach_engine_backend/platform/logger"
)

// Poller periodically scans the remote batch source and runs every unseen
// file through the ingestion pipeline. It is independent of the execution
// dispatcher and never blocks it.
type Poller struct {
	source   BatchSource
	ledger   LedgerRepository
	svc      *Service
	interval time.Duration
	log      *logger.Logger
}

func NewPoller(source BatchSource, ledger LedgerRepository, svc *Service, interval time.Duration, log *logger.Logger) *Poller {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Poller{
		source:   source,
		ledger:   ledger,
		svc:      svc,
		interval: interval,
		log:      log,
	}
}

// Run polls until the context is cancelled. The first poll happens
// immediately so a restart picks up pending drops without waiting a full
// interval.
func (p *Poller) Run(ctx context.Context) {
	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	artifacts, err := p.source.ListArtifacts(ctx)
	if err != nil {
		p.log.Warn("batch source poll failed", "error", err)
		return
	}

	for _, artifact := range artifacts {
		if ctx.Err() != nil {
			return
		}

		// Fast-path skip: the ledger is re-checked inside Ingest, this only
		// avoids downloading files that were already processed.
		seen, err := p.ledger.Exists(ctx, artifact.Name)
		if err != nil {
			p.log.Warn("ledger check failed", "artifact", artifact.Name, "error", err)
			continue
		}
		if seen {
			continue
		}

		p.ingestFile(ctx, artifact)
	}
}

func (p *Poller) ingestFile(ctx context.Context, artifact RemoteArtifact) {
	body, err := p.source.Fetch(ctx, artifact.Name)
	if err != nil {
		p.log.Warn("batch file fetch failed", "artifact", artifact.Name, "error", err)
		return
	}
	defer body.Close()

	rows, err := ParseDelimited(body, sourceTagFromName(artifact.Name))
	if err != nil {
		p.log.Warn("batch file unreadable", "artifact", artifact.Name, "error", err)
		return
	}

	result, err := p.svc.Ingest(ctx, artifact.Name, artifact.SizeBytes, rows)
	if err != nil {
		p.log.Warn("batch ingest failed", "artifact", artifact.Name, "error", err)
		return
	}
	if result.Aborted {
		p.log.Error("batch ingest aborted at row-error ceiling",
			"artifact", artifact.Name, "accepted", result.Accepted, "rejected", result.Rejected)
	}
}

// sourceTagFromName derives a default source tag from the file name, e.g.
// "incoming/dealer-west_2026-08.csv" -> "dealer-west_2026-08".
func sourceTagFromName(name string) string {
	base := path.Base(name)
	return strings.TrimSuffix(base, path.Ext(base))
}
