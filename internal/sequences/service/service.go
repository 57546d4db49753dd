package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"outreach_engine_backend/internal/email"
	"outreach_engine_backend/internal/events"
	leadstransport "outreach_engine_backend/internal/leads/transport"
	"outreach_engine_backend/internal/sequences/domain"
	"outreach_engine_backend/internal/sequences/repository"
	"outreach_engine_backend/internal/sequences/transport"
	"outreach_engine_backend/platform/apperr"
	"outreach_engine_backend/platform/cache"
	"outreach_engine_backend/platform/logger"
)

// Known skip conditions evaluated before a step fires.
const (
	SkipIfResponded = "skip_if_responded"
	SkipIfOpened    = "skip_if_opened"
)

var knownSkipConditions = map[string]bool{
	SkipIfResponded: true,
	SkipIfOpened:    true,
}

const statsTTL = 30 * time.Second

// LeadReader is the slice of the leads service the sequences module needs.
type LeadReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (leadstransport.LeadResponse, error)
}

// CreateSequenceInput carries a validated sequence definition.
type CreateSequenceInput struct {
	Name        string
	Description string
	Active      bool
	Steps       []CreateStepInput
}

// CreateStepInput is one step of a new sequence.
type CreateStepInput struct {
	StepNumber     int
	TemplateID     string
	Delay          time.Duration
	SkipConditions []string
}

// Service owns sequence definitions, enrollment, and callback processing.
type Service struct {
	repo  repository.SequencesRepository
	leads LeadReader
	stats *cache.Cache[map[domain.Status]int]
	bus   events.Bus
	log   *logger.Logger
	now   func() time.Time
}

func New(repo repository.SequencesRepository, leads LeadReader, stats *cache.Cache[map[domain.Status]int], bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		repo:  repo,
		leads: leads,
		stats: stats,
		bus:   bus,
		log:   log,
		now:   time.Now,
	}
}

// Create validates and persists a new sequence definition. Steps must be
// numbered 1..N without gaps and delays must not decrease with step number,
// so later steps never fire before earlier ones.
func (s *Service) Create(ctx context.Context, in CreateSequenceInput) (transport.SequenceResponse, error) {
	if len(in.Steps) == 0 {
		return transport.SequenceResponse{}, apperr.Validation("sequence requires at least one step")
	}

	seen := make(map[int]bool, len(in.Steps))
	var prevDelay time.Duration
	for i, step := range in.Steps {
		if seen[step.StepNumber] {
			return transport.SequenceResponse{}, apperr.Validation(fmt.Sprintf("duplicate step number %d", step.StepNumber))
		}
		seen[step.StepNumber] = true
		if step.StepNumber != i+1 {
			return transport.SequenceResponse{}, apperr.Validation("steps must be numbered 1..N without gaps")
		}
		if !email.KnownTemplate(step.TemplateID) {
			return transport.SequenceResponse{}, apperr.Validation(fmt.Sprintf("unknown template %q", step.TemplateID))
		}
		if step.Delay < prevDelay {
			return transport.SequenceResponse{}, apperr.Validation(fmt.Sprintf("step %d delay is shorter than step %d", step.StepNumber, step.StepNumber-1))
		}
		prevDelay = step.Delay
		for _, cond := range step.SkipConditions {
			if !knownSkipConditions[cond] {
				return transport.SequenceResponse{}, apperr.Validation(fmt.Sprintf("unknown skip condition %q", cond))
			}
		}
	}

	if _, err := s.repo.GetSequenceByName(ctx, in.Name); err == nil {
		return transport.SequenceResponse{}, apperr.Conflict(fmt.Sprintf("sequence %q already exists", in.Name))
	} else if !errors.Is(err, repository.ErrNotFound) {
		return transport.SequenceResponse{}, err
	}

	params := repository.CreateSequenceParams{
		Name:        in.Name,
		Description: in.Description,
		Active:      in.Active,
	}
	for _, step := range in.Steps {
		params.Steps = append(params.Steps, repository.CreateStepParams{
			StepNumber:     step.StepNumber,
			Delay:          step.Delay,
			TemplateID:     step.TemplateID,
			SkipConditions: step.SkipConditions,
		})
	}

	seq, err := s.repo.CreateSequence(ctx, params)
	if err != nil {
		return transport.SequenceResponse{}, err
	}
	s.log.Info("sequence created", "sequence_id", seq.ID, "name", seq.Name, "steps", len(seq.Steps))
	return toSequenceResponse(seq), nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (transport.SequenceResponse, error) {
	seq, err := s.repo.GetSequence(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return transport.SequenceResponse{}, apperr.NotFound("sequence not found")
	}
	if err != nil {
		return transport.SequenceResponse{}, err
	}
	return toSequenceResponse(seq), nil
}

func (s *Service) List(ctx context.Context) ([]transport.SequenceResponse, error) {
	sequences, err := s.repo.ListSequences(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]transport.SequenceResponse, 0, len(sequences))
	for _, seq := range sequences {
		out = append(out, toSequenceResponse(seq))
	}
	return out, nil
}

// SetActive pauses or resumes a sequence. Paused sequences keep their
// scheduled executions; the dispatcher simply stops claiming them.
func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	err := s.repo.SetActive(ctx, id, active)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("sequence not found")
	}
	if err != nil {
		return err
	}
	s.log.Info("sequence active toggled", "sequence_id", id, "active", active)
	return nil
}

// Enroll schedules every step of the sequence for each lead. Leads that
// already hold executions for the sequence are reported as not enrolled;
// the existing rows are left untouched.
func (s *Service) Enroll(ctx context.Context, sequenceID uuid.UUID, leadIDs []uuid.UUID) (transport.EnrollResponse, error) {
	seq, err := s.repo.GetSequence(ctx, sequenceID)
	if errors.Is(err, repository.ErrNotFound) {
		return transport.EnrollResponse{}, apperr.NotFound("sequence not found")
	}
	if err != nil {
		return transport.EnrollResponse{}, err
	}
	if len(seq.Steps) == 0 {
		return transport.EnrollResponse{}, apperr.Validation("sequence has no steps")
	}

	now := s.now()
	resp := transport.EnrollResponse{SequenceID: sequenceID}
	for _, leadID := range leadIDs {
		result := transport.EnrollResult{LeadID: leadID}

		lead, err := s.leads.GetByID(ctx, leadID)
		switch {
		case apperr.Is(err, apperr.KindNotFound):
			result.Error = "lead not found"
		case err != nil:
			return resp, err
		case !lead.Active:
			result.Error = "lead is deactivated"
		default:
			executions := make([]repository.Execution, 0, len(seq.Steps))
			for _, step := range seq.Steps {
				executions = append(executions, repository.Execution{
					SequenceID: sequenceID,
					LeadID:     leadID,
					StepNumber: step.StepNumber,
					FireAt:     now.Add(step.Delay),
					Status:     domain.StatusScheduled,
				})
			}
			created, err := s.repo.InsertScheduled(ctx, executions)
			if err != nil {
				return resp, err
			}
			result.Enrolled = created > 0
			result.ExecutionsCreated = created
			if created == 0 {
				result.Error = "already enrolled"
			}
		}
		resp.Results = append(resp.Results, result)
	}

	s.stats.Invalidate(statsKey(sequenceID))
	return resp, nil
}

// Unenroll cancels every still-scheduled execution of the leads. Executions
// already handed to the transport are not touched.
func (s *Service) Unenroll(ctx context.Context, sequenceID uuid.UUID, leadIDs []uuid.UUID, reason string) (transport.UnenrollResponse, error) {
	if reason == "" {
		reason = "unenrolled"
	}
	resp := transport.UnenrollResponse{SequenceID: sequenceID}
	for _, leadID := range leadIDs {
		cancelled, err := s.repo.CancelScheduledForLead(ctx, sequenceID, leadID, reason)
		if err != nil {
			return resp, err
		}
		resp.Cancelled += cancelled
	}
	s.stats.Invalidate(statsKey(sequenceID))
	return resp, nil
}

// Stats returns per-status execution counts, cached briefly. Counts are
// always derived from the execution rows, never stored.
func (s *Service) Stats(ctx context.Context, sequenceID uuid.UUID) (transport.StatsResponse, error) {
	if _, err := s.repo.GetSequence(ctx, sequenceID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return transport.StatsResponse{}, apperr.NotFound("sequence not found")
		}
		return transport.StatsResponse{}, err
	}

	counts, err := s.stats.GetOrLoad(ctx, statsKey(sequenceID), statsTTL, func(ctx context.Context) (map[domain.Status]int, error) {
		return s.repo.CountByStatus(ctx, sequenceID)
	})
	if err != nil {
		return transport.StatsResponse{}, err
	}

	resp := transport.StatsResponse{SequenceID: sequenceID, Counts: make(map[string]int, len(counts))}
	for status, count := range counts {
		resp.Counts[string(status)] = count
		resp.Total += count
	}
	return resp, nil
}

// Upcoming lists scheduled executions firing within the horizon.
func (s *Service) Upcoming(ctx context.Context, horizon time.Duration, limit int) ([]transport.UpcomingExecution, error) {
	if horizon <= 0 {
		horizon = 24 * time.Hour
	}
	executions, err := s.repo.ListUpcoming(ctx, s.now().Add(horizon), limit)
	if err != nil {
		return nil, err
	}
	out := make([]transport.UpcomingExecution, 0, len(executions))
	for _, e := range executions {
		out = append(out, transport.UpcomingExecution{
			SequenceID: e.SequenceID,
			LeadID:     e.LeadID,
			StepNumber: e.StepNumber,
			FireAt:     e.FireAt,
			Attempts:   e.Attempts,
		})
	}
	return out, nil
}

// HandleCallback applies a delivery event to the execution holding the
// message ID. Advancement is monotonic: duplicate or out-of-order events are
// acknowledged without changing state.
func (s *Service) HandleCallback(ctx context.Context, messageID, event string) error {
	target, ok := domain.CallbackStatus(event)
	if !ok {
		return apperr.Validation(fmt.Sprintf("unknown callback event %q", event))
	}

	var applied bool
	var err error
	if target == domain.StatusFailed {
		applied, err = s.repo.FailByMessageID(ctx, messageID, "bounced")
	} else {
		applied, err = s.repo.AdvanceByMessageID(ctx, messageID, target)
	}
	if err != nil {
		return err
	}
	if applied {
		return nil
	}

	exists, err := s.repo.MessageExists(ctx, messageID)
	if err != nil {
		return err
	}
	if !exists {
		return apperr.NotFound("unknown message id")
	}
	// Known message, no transition: a regression or duplicate. Acknowledge.
	s.log.Debug("callback ignored", "message_id", messageID, "event", event)
	return nil
}

func statsKey(sequenceID uuid.UUID) string {
	return "sequence:stats:" + sequenceID.String()
}

func toSequenceResponse(seq repository.Sequence) transport.SequenceResponse {
	resp := transport.SequenceResponse{
		ID:          seq.ID,
		Name:        seq.Name,
		Description: seq.Description,
		Active:      seq.Active,
		Steps:       make([]transport.StepResponse, 0, len(seq.Steps)),
		CreatedAt:   seq.CreatedAt,
	}
	for _, step := range seq.Steps {
		resp.Steps = append(resp.Steps, transport.StepResponse{
			StepNumber:     step.StepNumber,
			TemplateID:     step.TemplateID,
			DelaySeconds:   int64(step.Delay / time.Second),
			SkipConditions: step.SkipConditions,
		})
	}
	return resp
}
