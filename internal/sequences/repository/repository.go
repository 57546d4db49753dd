package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"outreach_engine_backend/internal/sequences/domain"
)

var (
	// ErrNotFound is returned when no sequence or execution matches.
	ErrNotFound = errors.New("not found")
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateSequence inserts the definition and its steps in one transaction.
func (r *Repository) CreateSequence(ctx context.Context, params CreateSequenceParams) (Sequence, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Sequence{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var seq Sequence
	err = tx.QueryRow(ctx, `
		INSERT INTO sequences (name, description, active)
		VALUES ($1, $2, $3)
		RETURNING id, name, description, active, created_at, updated_at
	`, params.Name, params.Description, params.Active).Scan(
		&seq.ID, &seq.Name, &seq.Description, &seq.Active, &seq.CreatedAt, &seq.UpdatedAt,
	)
	if err != nil {
		return Sequence{}, err
	}

	for _, step := range params.Steps {
		var s Step
		err = tx.QueryRow(ctx, `
			INSERT INTO sequence_steps (sequence_id, step_number, delay_seconds, template_id, skip_conditions)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, sequence_id, step_number, delay_seconds, template_id, skip_conditions
		`, seq.ID, step.StepNumber, int64(step.Delay/time.Second), step.TemplateID, step.SkipConditions,
		).Scan(&s.ID, &s.SequenceID, &s.StepNumber, &delaySecondsScanner{&s.Delay}, &s.TemplateID, &s.SkipConditions)
		if err != nil {
			return Sequence{}, err
		}
		seq.Steps = append(seq.Steps, s)
	}

	if err := tx.Commit(ctx); err != nil {
		return Sequence{}, err
	}
	return seq, nil
}

func (r *Repository) GetSequence(ctx context.Context, id uuid.UUID) (Sequence, error) {
	return r.getSequence(ctx, `WHERE id = $1`, id)
}

func (r *Repository) GetSequenceByName(ctx context.Context, name string) (Sequence, error) {
	return r.getSequence(ctx, `WHERE name = $1`, name)
}

func (r *Repository) getSequence(ctx context.Context, where string, arg any) (Sequence, error) {
	var seq Sequence
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, description, active, created_at, updated_at FROM sequences `+where,
		arg,
	).Scan(&seq.ID, &seq.Name, &seq.Description, &seq.Active, &seq.CreatedAt, &seq.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sequence{}, ErrNotFound
	}
	if err != nil {
		return Sequence{}, err
	}

	steps, err := r.loadSteps(ctx, seq.ID)
	if err != nil {
		return Sequence{}, err
	}
	seq.Steps = steps
	return seq, nil
}

func (r *Repository) loadSteps(ctx context.Context, sequenceID uuid.UUID) ([]Step, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, sequence_id, step_number, delay_seconds, template_id, skip_conditions
		FROM sequence_steps
		WHERE sequence_id = $1
		ORDER BY step_number ASC
	`, sequenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var s Step
		if err := rows.Scan(&s.ID, &s.SequenceID, &s.StepNumber, &delaySecondsScanner{&s.Delay}, &s.TemplateID, &s.SkipConditions); err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

func (r *Repository) ListSequences(ctx context.Context) ([]Sequence, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, description, active, created_at, updated_at FROM sequences ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sequences := make([]Sequence, 0)
	for rows.Next() {
		var seq Sequence
		if err := rows.Scan(&seq.ID, &seq.Name, &seq.Description, &seq.Active, &seq.CreatedAt, &seq.UpdatedAt); err != nil {
			return nil, err
		}
		sequences = append(sequences, seq)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	for i := range sequences {
		steps, err := r.loadSteps(ctx, sequences[i].ID)
		if err != nil {
			return nil, err
		}
		sequences[i].Steps = steps
	}
	return sequences, nil
}

func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sequences SET active = $2, updated_at = now() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertScheduled creates scheduled executions, skipping composite keys that
// already exist. Returns the number of newly created rows; conflicts are the
// idempotent re-enrollment no-op.
func (r *Repository) InsertScheduled(ctx context.Context, executions []Execution) (int, error) {
	inserted := 0
	for _, e := range executions {
		tag, err := r.pool.Exec(ctx, `
			INSERT INTO enrollment_executions (sequence_id, lead_id, step_number, fire_at, status)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (sequence_id, lead_id, step_number) DO NOTHING
		`, e.SequenceID, e.LeadID, e.StepNumber, e.FireAt, string(domain.StatusScheduled))
		if err != nil {
			return inserted, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

const executionColumns = `sequence_id, lead_id, step_number, fire_at, status, message_id,
	last_error, attempts, enqueued_at, created_at, updated_at`

func (r *Repository) GetExecution(ctx context.Context, key ExecutionKey) (Execution, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+executionColumns+`
		FROM enrollment_executions
		WHERE sequence_id = $1 AND lead_id = $2 AND step_number = $3
	`, key.SequenceID, key.LeadID, key.StepNumber)

	exec, err := scanExecution(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Execution{}, ErrNotFound
	}
	return exec, err
}

// CancelScheduledForLead cancels every still-scheduled execution of the lead
// in the sequence. Already-sent executions are untouched.
func (r *Repository) CancelScheduledForLead(ctx context.Context, sequenceID, leadID uuid.UUID, reason string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE enrollment_executions
		SET status = 'cancelled', last_error = $4, updated_at = now()
		WHERE sequence_id = $1 AND lead_id = $2 AND status = $3
	`, sequenceID, leadID, string(domain.StatusScheduled), reason)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ClaimDue atomically stamps and returns due executions of active sequences.
// SKIP LOCKED keeps concurrent claimers from double-pulling a row; a stale
// enqueued_at stamp makes crashed claims visible again after requeueAfter.
func (r *Repository) ClaimDue(ctx context.Context, now time.Time, requeueAfter time.Duration, limit int) ([]Execution, error) {
	if limit < 1 {
		limit = 100
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `WITH due AS (
		SELECT e.sequence_id, e.lead_id, e.step_number
		FROM enrollment_executions e
		JOIN sequences s ON s.id = e.sequence_id
		WHERE e.status = 'scheduled'
		  AND e.fire_at <= $1
		  AND s.active
		  AND (e.enqueued_at IS NULL OR e.enqueued_at < $2)
		ORDER BY e.fire_at ASC
		LIMIT $3
		FOR UPDATE OF e SKIP LOCKED
	)
	UPDATE enrollment_executions e
	SET enqueued_at = $1, updated_at = now()
	FROM due
	WHERE e.sequence_id = due.sequence_id
	  AND e.lead_id = due.lead_id
	  AND e.step_number = due.step_number
	RETURNING e.sequence_id, e.lead_id, e.step_number, e.fire_at, e.status, e.message_id,
		e.last_error, e.attempts, e.enqueued_at, e.created_at, e.updated_at`,
		now, now.Add(-requeueAfter), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executions []Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, exec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return executions, nil
}

func (r *Repository) MarkSent(ctx context.Context, key ExecutionKey, messageID string, attempts int) error {
	return r.transitionScheduled(ctx, key, `
		status = 'sent', message_id = $4, last_error = NULL, attempts = $5, enqueued_at = NULL
	`, messageID, attempts)
}

func (r *Repository) MarkCancelled(ctx context.Context, key ExecutionKey, reason string) error {
	return r.transitionScheduled(ctx, key, `
		status = 'cancelled', last_error = $4, enqueued_at = NULL
	`, reason)
}

func (r *Repository) MarkFailed(ctx context.Context, key ExecutionKey, reason string, attempts int) error {
	return r.transitionScheduled(ctx, key, `
		status = 'failed', last_error = $4, attempts = $5, enqueued_at = NULL
	`, reason, attempts)
}

// RescheduleRetry keeps the execution scheduled with a pushed-out fire time.
func (r *Repository) RescheduleRetry(ctx context.Context, key ExecutionKey, fireAt time.Time, reason string, attempts int) error {
	return r.transitionScheduled(ctx, key, `
		fire_at = $4, last_error = $5, attempts = $6, enqueued_at = NULL
	`, fireAt, reason, attempts)
}

// transitionScheduled applies an update guarded on status='scheduled' so a
// concurrent cancel or duplicate task cannot double-apply a transition.
func (r *Repository) transitionScheduled(ctx context.Context, key ExecutionKey, set string, args ...any) error {
	query := fmt.Sprintf(`
		UPDATE enrollment_executions
		SET %s, updated_at = now()
		WHERE sequence_id = $1 AND lead_id = $2 AND step_number = $3 AND status = 'scheduled'
	`, set)

	fullArgs := append([]any{key.SequenceID, key.LeadID, key.StepNumber}, args...)
	tag, err := r.pool.Exec(ctx, query, fullArgs...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AdvanceByMessageID moves the execution holding messageID to target if and
// only if its current status precedes the target. Out-of-order and duplicate
// callbacks fall out as affected-row-count zero, reported as ok=false.
func (r *Repository) AdvanceByMessageID(ctx context.Context, messageID string, target domain.Status) (bool, error) {
	preceding := domain.PrecedingStatuses(target)
	if len(preceding) == 0 {
		return false, fmt.Errorf("status %q is not a callback target", target)
	}

	allowed := make([]string, 0, len(preceding))
	for _, s := range preceding {
		allowed = append(allowed, string(s))
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE enrollment_executions
		SET status = $2, updated_at = now()
		WHERE message_id = $1 AND status = ANY($3)
	`, messageID, string(target), allowed)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// FailByMessageID marks a bounced execution failed unless it already reached
// a terminal state.
func (r *Repository) FailByMessageID(ctx context.Context, messageID string, reason string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE enrollment_executions
		SET status = 'failed', last_error = $2, updated_at = now()
		WHERE message_id = $1 AND status IN ('sent', 'delivered', 'opened')
	`, messageID, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) MessageExists(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM enrollment_executions WHERE message_id = $1)`,
		messageID,
	).Scan(&exists)
	return exists, err
}

// CountByStatus derives per-sequence statistics by counting executions.
// There are deliberately no stored counters that could drift.
func (r *Repository) CountByStatus(ctx context.Context, sequenceID uuid.UUID) (map[domain.Status]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM enrollment_executions
		WHERE sequence_id = $1
		GROUP BY status
	`, sequenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[domain.Status(status)] = count
	}
	return counts, rows.Err()
}

func (r *Repository) ListUpcoming(ctx context.Context, until time.Time, limit int) ([]Execution, error) {
	if limit < 1 || limit > 1000 {
		limit = 200
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+executionColumns+`
		FROM enrollment_executions
		WHERE status = 'scheduled' AND fire_at <= $1
		ORDER BY fire_at ASC
		LIMIT $2
	`, until, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	executions := make([]Execution, 0)
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, exec)
	}
	return executions, rows.Err()
}

func (r *Repository) HasReplySince(ctx context.Context, leadID uuid.UUID, since time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM lead_replies WHERE lead_id = $1 AND received_at >= $2)
	`, leadID, since).Scan(&exists)
	return exists, err
}

func (r *Repository) HasPriorStepOpened(ctx context.Context, sequenceID, leadID uuid.UUID, beforeStep int) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM enrollment_executions
			WHERE sequence_id = $1 AND lead_id = $2 AND step_number < $3
			  AND status IN ('opened', 'clicked')
		)
	`, sequenceID, leadID, beforeStep).Scan(&exists)
	return exists, err
}

func scanExecution(row pgx.Row) (Execution, error) {
	var e Execution
	var status string
	err := row.Scan(
		&e.SequenceID, &e.LeadID, &e.StepNumber, &e.FireAt, &status,
		&e.MessageID, &e.LastError, &e.Attempts, &e.EnqueuedAt,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return Execution{}, err
	}
	e.Status = domain.Status(status)
	return e, nil
}

// delaySecondsScanner converts the stored delay_seconds column into a Duration.
type delaySecondsScanner struct {
	dst *time.Duration
}

func (s *delaySecondsScanner) Scan(src any) error {
	switch v := src.(type) {
	case int64:
		*s.dst = time.Duration(v) * time.Second
		return nil
	default:
		return fmt.Errorf("unsupported delay_seconds type %T", src)
	}
}
