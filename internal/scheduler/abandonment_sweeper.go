package scheduler

import (
	"context"
	"time"

	leadsservice "outreach_engine_backend/internal/leads/service"
	"outreach_engine_backend/platform/logger"
)

const defaultSweepInterval = 15 * time.Minute

// AbandonmentSweeper periodically flags leads that went quiet. The leads
// service also evaluates abandonment after each processed artifact; this
// loop covers the stretches between artifacts.
type AbandonmentSweeper struct {
	leads    *leadsservice.Service
	log      *logger.Logger
	interval time.Duration
}

func NewAbandonmentSweeper(leads *leadsservice.Service, log *logger.Logger, interval time.Duration) *AbandonmentSweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &AbandonmentSweeper{leads: leads, log: log, interval: interval}
}

func (s *AbandonmentSweeper) Run(ctx context.Context) {
	if s == nil || s.leads == nil {
		return
	}

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *AbandonmentSweeper) sweep(ctx context.Context) {
	flagged, err := s.leads.EvaluateAbandonment(ctx)
	if err != nil {
		s.log.Warn("abandonment sweep failed", "error", err)
		return
	}
	if flagged > 0 {
		s.log.Info("abandonment sweep flagged leads", "flagged", flagged)
	}
}
