package ingestion

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Artifact statuses.
const (
	StatusProcessed           = "processed"
	StatusProcessedWithErrors = "processed_with_errors"
)

// Artifact is one immutable idempotency-ledger entry. Its existence is the
// marker that the artifact has been fully processed.
type Artifact struct {
	ArtifactID  string    `json:"artifactId"`
	SizeBytes   int64     `json:"sizeBytes"`
	RowCount    int       `json:"rowCount"`
	ErrorCount  int       `json:"errorCount"`
	DurationMs  int64     `json:"durationMs"`
	Status      string    `json:"status"`
	ProcessedAt time.Time `json:"processedAt"`
}

// LedgerRepository is the persistence boundary for the idempotency ledger.
type LedgerRepository interface {
	Exists(ctx context.Context, artifactID string) (bool, error)
	Record(ctx context.Context, artifact Artifact) error
	List(ctx context.Context, limit int) ([]Artifact, error)
}

// Ledger records processed ingestion artifacts in Postgres.
type Ledger struct {
	pool *pgxpool.Pool
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

func (l *Ledger) Exists(ctx context.Context, artifactID string) (bool, error) {
	var exists bool
	err := l.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM ingested_artifacts WHERE artifact_id = $1)`,
		artifactID,
	).Scan(&exists)
	return exists, err
}

// Record inserts the ledger entry. Concurrent double-inserts collapse to one
// row: the second insert is a no-op rather than an error.
func (l *Ledger) Record(ctx context.Context, artifact Artifact) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO ingested_artifacts (artifact_id, size_bytes, row_count, error_count, duration_ms, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (artifact_id) DO NOTHING
	`, artifact.ArtifactID, artifact.SizeBytes, artifact.RowCount, artifact.ErrorCount,
		artifact.DurationMs, artifact.Status)
	return err
}

func (l *Ledger) List(ctx context.Context, limit int) ([]Artifact, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}

	rows, err := l.pool.Query(ctx, `
		SELECT artifact_id, size_bytes, row_count, error_count, duration_ms, status, processed_at
		FROM ingested_artifacts
		ORDER BY processed_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	artifacts := make([]Artifact, 0)
	for rows.Next() {
		var a Artifact
		if err := rows.Scan(&a.ArtifactID, &a.SizeBytes, &a.RowCount, &a.ErrorCount,
			&a.DurationMs, &a.Status, &a.ProcessedAt); err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}

	return artifacts, rows.Err()
}

// Get returns a single ledger entry.
func (l *Ledger) Get(ctx context.Context, artifactID string) (Artifact, error) {
	var a Artifact
	err := l.pool.QueryRow(ctx, `
		SELECT artifact_id, size_bytes, row_count, error_count, duration_ms, status, processed_at
		FROM ingested_artifacts
		WHERE artifact_id = $1
	`, artifactID).Scan(&a.ArtifactID, &a.SizeBytes, &a.RowCount, &a.ErrorCount,
		&a.DurationMs, &a.Status, &a.ProcessedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Artifact{}, ErrArtifactNotFound
	}
	return a, err
}

// ErrArtifactNotFound is returned when no ledger entry matches.
var ErrArtifactNotFound = errors.New("artifact not found")
