package ingestion

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"outreach_engine_backend/platform/config"
)

// RemoteArtifact is one batch file visible on the remote source.
type RemoteArtifact struct {
	Name      string
	SizeBytes int64
}

// BatchSource lists and fetches batch file drops from a remote location.
type BatchSource interface {
	ListArtifacts(ctx context.Context) ([]RemoteArtifact, error)
	Fetch(ctx context.Context, name string) (io.ReadCloser, error)
}

// MinIOSource reads lead file drops from an S3-compatible bucket.
type MinIOSource struct {
	client  *minio.Client
	bucket  string
	prefix  string
	timeout time.Duration
}

// NewMinIOSource connects to the configured batch source endpoint.
func NewMinIOSource(cfg config.BatchSourceConfig) (*MinIOSource, error) {
	client, err := minio.New(cfg.GetBatchSourceEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetBatchSourceAccessKey(), cfg.GetBatchSourceSecretKey(), ""),
		Secure: cfg.GetBatchSourceUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("batch source client: %w", err)
	}

	return &MinIOSource{
		client:  client,
		bucket:  cfg.GetBatchSourceBucket(),
		prefix:  cfg.GetBatchSourcePrefix(),
		timeout: 30 * time.Second,
	}, nil
}

// ListArtifacts returns the delimited lead files under the configured prefix.
// Files not matching the naming convention are ignored.
func (s *MinIOSource) ListArtifacts(ctx context.Context) ([]RemoteArtifact, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var artifacts []RemoteArtifact
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, fmt.Errorf("list batch source: %w", object.Err)
		}
		if !strings.HasSuffix(strings.ToLower(object.Key), ".csv") {
			continue
		}
		artifacts = append(artifacts, RemoteArtifact{Name: object.Key, SizeBytes: object.Size})
	}

	return artifacts, nil
}

// Fetch opens one remote batch file for reading.
func (s *MinIOSource) Fetch(ctx context.Context, name string) (io.ReadCloser, error) {
	object, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", name, err)
	}
	return object, nil
}
