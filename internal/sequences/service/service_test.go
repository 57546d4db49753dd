package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"outreach_engine_backend/internal/events"
	leadstransport "outreach_engine_backend/internal/leads/transport"
	"outreach_engine_backend/internal/sequences/domain"
	"outreach_engine_backend/internal/sequences/repository"
	"outreach_engine_backend/platform/apperr"
	"outreach_engine_backend/platform/cache"
	"outreach_engine_backend/platform/logger"
)

type fakeSequencesRepo struct {
	sequences  map[uuid.UUID]repository.Sequence
	byName     map[string]uuid.UUID
	executions map[repository.ExecutionKey]*repository.Execution
	replies    map[uuid.UUID][]time.Time
	countCalls int
}

func newFakeSequencesRepo() *fakeSequencesRepo {
	return &fakeSequencesRepo{
		sequences:  make(map[uuid.UUID]repository.Sequence),
		byName:     make(map[string]uuid.UUID),
		executions: make(map[repository.ExecutionKey]*repository.Execution),
		replies:    make(map[uuid.UUID][]time.Time),
	}
}

func (f *fakeSequencesRepo) CreateSequence(_ context.Context, params repository.CreateSequenceParams) (repository.Sequence, error) {
	seq := repository.Sequence{
		ID:          uuid.New(),
		Name:        params.Name,
		Description: params.Description,
		Active:      params.Active,
		CreatedAt:   time.Now(),
	}
	for _, step := range params.Steps {
		seq.Steps = append(seq.Steps, repository.Step{
			ID:             uuid.New(),
			SequenceID:     seq.ID,
			StepNumber:     step.StepNumber,
			Delay:          step.Delay,
			TemplateID:     step.TemplateID,
			SkipConditions: step.SkipConditions,
		})
	}
	f.sequences[seq.ID] = seq
	f.byName[seq.Name] = seq.ID
	return seq, nil
}

func (f *fakeSequencesRepo) GetSequence(_ context.Context, id uuid.UUID) (repository.Sequence, error) {
	seq, ok := f.sequences[id]
	if !ok {
		return repository.Sequence{}, repository.ErrNotFound
	}
	return seq, nil
}

func (f *fakeSequencesRepo) GetSequenceByName(_ context.Context, name string) (repository.Sequence, error) {
	id, ok := f.byName[name]
	if !ok {
		return repository.Sequence{}, repository.ErrNotFound
	}
	return f.sequences[id], nil
}

func (f *fakeSequencesRepo) ListSequences(_ context.Context) ([]repository.Sequence, error) {
	out := make([]repository.Sequence, 0, len(f.sequences))
	for _, seq := range f.sequences {
		out = append(out, seq)
	}
	return out, nil
}

func (f *fakeSequencesRepo) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	seq, ok := f.sequences[id]
	if !ok {
		return repository.ErrNotFound
	}
	seq.Active = active
	f.sequences[id] = seq
	return nil
}

func (f *fakeSequencesRepo) InsertScheduled(_ context.Context, executions []repository.Execution) (int, error) {
	created := 0
	for _, e := range executions {
		key := e.Key()
		if _, exists := f.executions[key]; exists {
			continue
		}
		e.CreatedAt = time.Now()
		copied := e
		f.executions[key] = &copied
		created++
	}
	return created, nil
}

func (f *fakeSequencesRepo) GetExecution(_ context.Context, key repository.ExecutionKey) (repository.Execution, error) {
	e, ok := f.executions[key]
	if !ok {
		return repository.Execution{}, repository.ErrNotFound
	}
	return *e, nil
}

func (f *fakeSequencesRepo) CancelScheduledForLead(_ context.Context, sequenceID, leadID uuid.UUID, reason string) (int64, error) {
	var n int64
	for key, e := range f.executions {
		if key.SequenceID == sequenceID && key.LeadID == leadID && e.Status == domain.StatusScheduled {
			e.Status = domain.StatusCancelled
			e.LastError = &reason
			n++
		}
	}
	return n, nil
}

func (f *fakeSequencesRepo) ClaimDue(_ context.Context, now time.Time, requeueAfter time.Duration, _ int) ([]repository.Execution, error) {
	var out []repository.Execution
	for _, e := range f.executions {
		seq := f.sequences[e.SequenceID]
		if e.Status != domain.StatusScheduled || !seq.Active || e.FireAt.After(now) {
			continue
		}
		if e.EnqueuedAt != nil && e.EnqueuedAt.After(now.Add(-requeueAfter)) {
			continue
		}
		stamped := now
		e.EnqueuedAt = &stamped
		out = append(out, *e)
	}
	return out, nil
}

func (f *fakeSequencesRepo) transition(key repository.ExecutionKey, mutate func(*repository.Execution)) error {
	e, ok := f.executions[key]
	if !ok || e.Status != domain.StatusScheduled {
		return repository.ErrNotFound
	}
	mutate(e)
	e.EnqueuedAt = nil
	return nil
}

func (f *fakeSequencesRepo) MarkSent(_ context.Context, key repository.ExecutionKey, messageID string, attempts int) error {
	return f.transition(key, func(e *repository.Execution) {
		e.Status = domain.StatusSent
		e.MessageID = &messageID
		e.Attempts = attempts
		e.LastError = nil
	})
}

func (f *fakeSequencesRepo) MarkCancelled(_ context.Context, key repository.ExecutionKey, reason string) error {
	return f.transition(key, func(e *repository.Execution) {
		e.Status = domain.StatusCancelled
		e.LastError = &reason
	})
}

func (f *fakeSequencesRepo) MarkFailed(_ context.Context, key repository.ExecutionKey, reason string, attempts int) error {
	return f.transition(key, func(e *repository.Execution) {
		e.Status = domain.StatusFailed
		e.LastError = &reason
		e.Attempts = attempts
	})
}

func (f *fakeSequencesRepo) RescheduleRetry(_ context.Context, key repository.ExecutionKey, fireAt time.Time, reason string, attempts int) error {
	return f.transition(key, func(e *repository.Execution) {
		e.FireAt = fireAt
		e.LastError = &reason
		e.Attempts = attempts
	})
}

func (f *fakeSequencesRepo) AdvanceByMessageID(_ context.Context, messageID string, target domain.Status) (bool, error) {
	for _, e := range f.executions {
		if e.MessageID == nil || *e.MessageID != messageID {
			continue
		}
		if domain.CanAdvanceTo(e.Status, target) {
			e.Status = target
			return true, nil
		}
		return false, nil
	}
	return false, nil
}

func (f *fakeSequencesRepo) FailByMessageID(_ context.Context, messageID string, reason string) (bool, error) {
	for _, e := range f.executions {
		if e.MessageID == nil || *e.MessageID != messageID {
			continue
		}
		if e.Status.Terminal() {
			return false, nil
		}
		e.Status = domain.StatusFailed
		e.LastError = &reason
		return true, nil
	}
	return false, nil
}

func (f *fakeSequencesRepo) MessageExists(_ context.Context, messageID string) (bool, error) {
	for _, e := range f.executions {
		if e.MessageID != nil && *e.MessageID == messageID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeSequencesRepo) CountByStatus(_ context.Context, sequenceID uuid.UUID) (map[domain.Status]int, error) {
	f.countCalls++
	counts := make(map[domain.Status]int)
	for key, e := range f.executions {
		if key.SequenceID == sequenceID {
			counts[e.Status]++
		}
	}
	return counts, nil
}

func (f *fakeSequencesRepo) ListUpcoming(_ context.Context, until time.Time, _ int) ([]repository.Execution, error) {
	var out []repository.Execution
	for _, e := range f.executions {
		if e.Status == domain.StatusScheduled && !e.FireAt.After(until) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeSequencesRepo) HasReplySince(_ context.Context, leadID uuid.UUID, since time.Time) (bool, error) {
	for _, at := range f.replies[leadID] {
		if !at.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeSequencesRepo) HasPriorStepOpened(_ context.Context, sequenceID, leadID uuid.UUID, beforeStep int) (bool, error) {
	for key, e := range f.executions {
		if key.SequenceID == sequenceID && key.LeadID == leadID && key.StepNumber < beforeStep {
			if e.Status == domain.StatusOpened || e.Status == domain.StatusClicked {
				return true, nil
			}
		}
	}
	return false, nil
}

type fakeLeadReader struct {
	leads map[uuid.UUID]leadstransport.LeadResponse
}

func (f *fakeLeadReader) GetByID(_ context.Context, id uuid.UUID) (leadstransport.LeadResponse, error) {
	lead, ok := f.leads[id]
	if !ok {
		return leadstransport.LeadResponse{}, apperr.NotFound("lead not found")
	}
	return lead, nil
}

func newTestService(repo repository.SequencesRepository, leads LeadReader) *Service {
	log := logger.New("development")
	stats := cache.New[map[domain.Status]int](time.Second)
	return New(repo, leads, stats, events.NewInMemoryBus(log), log)
}

func activeLead(id uuid.UUID) leadstransport.LeadResponse {
	return leadstransport.LeadResponse{
		ID:     id,
		Email:  "jane@example.com",
		Active: true,
	}
}

func twoStepInput(name string) CreateSequenceInput {
	return CreateSequenceInput{
		Name:   name,
		Active: true,
		Steps: []CreateStepInput{
			{StepNumber: 1, TemplateID: "intro", Delay: 0},
			{StepNumber: 2, TemplateID: "follow_up", Delay: 48 * time.Hour},
		},
	}
}

func TestCreateRejectsStepGaps(t *testing.T) {
	svc := newTestService(newFakeSequencesRepo(), &fakeLeadReader{})

	_, err := svc.Create(context.Background(), CreateSequenceInput{
		Name: "gapped",
		Steps: []CreateStepInput{
			{StepNumber: 1, TemplateID: "intro"},
			{StepNumber: 3, TemplateID: "follow_up"},
		},
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateRejectsDecreasingDelays(t *testing.T) {
	svc := newTestService(newFakeSequencesRepo(), &fakeLeadReader{})

	_, err := svc.Create(context.Background(), CreateSequenceInput{
		Name: "backwards",
		Steps: []CreateStepInput{
			{StepNumber: 1, TemplateID: "intro", Delay: 48 * time.Hour},
			{StepNumber: 2, TemplateID: "follow_up", Delay: 24 * time.Hour},
		},
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateRejectsUnknownTemplate(t *testing.T) {
	svc := newTestService(newFakeSequencesRepo(), &fakeLeadReader{})

	_, err := svc.Create(context.Background(), CreateSequenceInput{
		Name:  "bad-template",
		Steps: []CreateStepInput{{StepNumber: 1, TemplateID: "nonexistent"}},
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	repo := newFakeSequencesRepo()
	svc := newTestService(repo, &fakeLeadReader{})

	if _, err := svc.Create(context.Background(), twoStepInput("nurture")); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := svc.Create(context.Background(), twoStepInput("nurture"))
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestEnrollSchedulesEveryStep(t *testing.T) {
	repo := newFakeSequencesRepo()
	leadID := uuid.New()
	leads := &fakeLeadReader{leads: map[uuid.UUID]leadstransport.LeadResponse{leadID: activeLead(leadID)}}
	svc := newTestService(repo, leads)

	seq, err := svc.Create(context.Background(), twoStepInput("nurture"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	before := time.Now()
	resp, err := svc.Enroll(context.Background(), seq.ID, []uuid.UUID{leadID})
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if len(resp.Results) != 1 || !resp.Results[0].Enrolled || resp.Results[0].ExecutionsCreated != 2 {
		t.Fatalf("unexpected enroll results: %+v", resp.Results)
	}

	step1, err := repo.GetExecution(context.Background(), repository.ExecutionKey{SequenceID: seq.ID, LeadID: leadID, StepNumber: 1})
	if err != nil {
		t.Fatalf("step 1 execution: %v", err)
	}
	if step1.FireAt.After(time.Now().Add(time.Minute)) {
		t.Fatalf("step 1 should fire immediately, fires at %v", step1.FireAt)
	}

	step2, err := repo.GetExecution(context.Background(), repository.ExecutionKey{SequenceID: seq.ID, LeadID: leadID, StepNumber: 2})
	if err != nil {
		t.Fatalf("step 2 execution: %v", err)
	}
	if step2.FireAt.Before(before.Add(47 * time.Hour)) {
		t.Fatalf("step 2 fires too early: %v", step2.FireAt)
	}
}

func TestEnrollIsIdempotentPerLead(t *testing.T) {
	repo := newFakeSequencesRepo()
	leadID := uuid.New()
	leads := &fakeLeadReader{leads: map[uuid.UUID]leadstransport.LeadResponse{leadID: activeLead(leadID)}}
	svc := newTestService(repo, leads)

	seq, err := svc.Create(context.Background(), twoStepInput("nurture"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Enroll(context.Background(), seq.ID, []uuid.UUID{leadID}); err != nil {
		t.Fatalf("first enroll: %v", err)
	}
	resp, err := svc.Enroll(context.Background(), seq.ID, []uuid.UUID{leadID})
	if err != nil {
		t.Fatalf("second enroll: %v", err)
	}
	if resp.Results[0].Enrolled || resp.Results[0].ExecutionsCreated != 0 {
		t.Fatalf("second enroll should be a no-op, got %+v", resp.Results[0])
	}
	if len(repo.executions) != 2 {
		t.Fatalf("expected 2 executions, got %d", len(repo.executions))
	}
}

func TestEnrollReportsMissingLead(t *testing.T) {
	repo := newFakeSequencesRepo()
	svc := newTestService(repo, &fakeLeadReader{leads: map[uuid.UUID]leadstransport.LeadResponse{}})

	seq, err := svc.Create(context.Background(), twoStepInput("nurture"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	resp, err := svc.Enroll(context.Background(), seq.ID, []uuid.UUID{uuid.New()})
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if resp.Results[0].Enrolled || resp.Results[0].Error == "" {
		t.Fatalf("expected per-lead error, got %+v", resp.Results[0])
	}
}

func TestUnenrollCancelsOnlyScheduled(t *testing.T) {
	repo := newFakeSequencesRepo()
	leadID := uuid.New()
	leads := &fakeLeadReader{leads: map[uuid.UUID]leadstransport.LeadResponse{leadID: activeLead(leadID)}}
	svc := newTestService(repo, leads)

	seq, err := svc.Create(context.Background(), twoStepInput("nurture"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Enroll(context.Background(), seq.ID, []uuid.UUID{leadID}); err != nil {
		t.Fatalf("enroll: %v", err)
	}

	key1 := repository.ExecutionKey{SequenceID: seq.ID, LeadID: leadID, StepNumber: 1}
	if err := repo.MarkSent(context.Background(), key1, "msg-1", 1); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	resp, err := svc.Unenroll(context.Background(), seq.ID, []uuid.UUID{leadID}, "opted out")
	if err != nil {
		t.Fatalf("unenroll: %v", err)
	}
	if resp.Cancelled != 1 {
		t.Fatalf("expected 1 cancelled, got %d", resp.Cancelled)
	}

	sent, _ := repo.GetExecution(context.Background(), key1)
	if sent.Status != domain.StatusSent {
		t.Fatalf("sent execution must survive unenroll, got %s", sent.Status)
	}
}

func TestCallbackAdvancesMonotonically(t *testing.T) {
	repo := newFakeSequencesRepo()
	leadID := uuid.New()
	leads := &fakeLeadReader{leads: map[uuid.UUID]leadstransport.LeadResponse{leadID: activeLead(leadID)}}
	svc := newTestService(repo, leads)

	seq, err := svc.Create(context.Background(), twoStepInput("nurture"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Enroll(context.Background(), seq.ID, []uuid.UUID{leadID}); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	key := repository.ExecutionKey{SequenceID: seq.ID, LeadID: leadID, StepNumber: 1}
	if err := repo.MarkSent(context.Background(), key, "msg-1", 1); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	// Early "opened" skips delivered; a late "delivered" must not regress.
	if err := svc.HandleCallback(context.Background(), "msg-1", "opened"); err != nil {
		t.Fatalf("opened callback: %v", err)
	}
	if err := svc.HandleCallback(context.Background(), "msg-1", "delivered"); err != nil {
		t.Fatalf("late delivered must be acknowledged: %v", err)
	}

	exec, _ := repo.GetExecution(context.Background(), key)
	if exec.Status != domain.StatusOpened {
		t.Fatalf("expected opened, got %s", exec.Status)
	}

	if err := svc.HandleCallback(context.Background(), "msg-1", "clicked"); err != nil {
		t.Fatalf("clicked callback: %v", err)
	}
	exec, _ = repo.GetExecution(context.Background(), key)
	if exec.Status != domain.StatusClicked {
		t.Fatalf("expected clicked, got %s", exec.Status)
	}
}

func TestCallbackBounceFails(t *testing.T) {
	repo := newFakeSequencesRepo()
	leadID := uuid.New()
	leads := &fakeLeadReader{leads: map[uuid.UUID]leadstransport.LeadResponse{leadID: activeLead(leadID)}}
	svc := newTestService(repo, leads)

	seq, err := svc.Create(context.Background(), twoStepInput("nurture"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Enroll(context.Background(), seq.ID, []uuid.UUID{leadID}); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	key := repository.ExecutionKey{SequenceID: seq.ID, LeadID: leadID, StepNumber: 1}
	if err := repo.MarkSent(context.Background(), key, "msg-1", 1); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	if err := svc.HandleCallback(context.Background(), "msg-1", "bounced"); err != nil {
		t.Fatalf("bounce callback: %v", err)
	}
	exec, _ := repo.GetExecution(context.Background(), key)
	if exec.Status != domain.StatusFailed {
		t.Fatalf("expected failed after bounce, got %s", exec.Status)
	}
}

func TestCallbackUnknownMessageIsNotFound(t *testing.T) {
	svc := newTestService(newFakeSequencesRepo(), &fakeLeadReader{})

	err := svc.HandleCallback(context.Background(), "no-such-message", "delivered")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStatsDerivedAndCached(t *testing.T) {
	repo := newFakeSequencesRepo()
	leadID := uuid.New()
	leads := &fakeLeadReader{leads: map[uuid.UUID]leadstransport.LeadResponse{leadID: activeLead(leadID)}}
	svc := newTestService(repo, leads)

	seq, err := svc.Create(context.Background(), twoStepInput("nurture"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Enroll(context.Background(), seq.ID, []uuid.UUID{leadID}); err != nil {
		t.Fatalf("enroll: %v", err)
	}

	stats, err := svc.Stats(context.Background(), seq.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Counts[string(domain.StatusScheduled)] != 2 || stats.Total != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	if _, err := svc.Stats(context.Background(), seq.ID); err != nil {
		t.Fatalf("second stats: %v", err)
	}
	if repo.countCalls != 1 {
		t.Fatalf("expected cached second read, got %d backing calls", repo.countCalls)
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	repo := newFakeSequencesRepo()
	svc := newTestService(repo, &fakeLeadReader{})

	seed := `
sequences:
  - name: nurture
    active: true
    steps:
      - stepNumber: 1
        templateId: intro
      - stepNumber: 2
        templateId: follow_up
        delayDays: 2
        skipConditions: [skip_if_responded]
`
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	if err := svc.SeedFromFile(context.Background(), path); err != nil {
		t.Fatalf("first seed: %v", err)
	}
	if err := svc.SeedFromFile(context.Background(), path); err != nil {
		t.Fatalf("second seed must be a no-op: %v", err)
	}
	if len(repo.sequences) != 1 {
		t.Fatalf("expected 1 sequence, got %d", len(repo.sequences))
	}

	seq, err := repo.GetSequenceByName(context.Background(), "nurture")
	if err != nil {
		t.Fatalf("seeded sequence: %v", err)
	}
	if len(seq.Steps) != 2 || seq.Steps[1].Delay != 48*time.Hour {
		t.Fatalf("unexpected seeded steps: %+v", seq.Steps)
	}
}
