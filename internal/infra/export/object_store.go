package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/phenosat/sitefinder/internal/domain/evaluation"
)

// ObjectStore uploads GeoJSON snapshots to an S3-compatible bucket.
type ObjectStore struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// NewObjectStore constructs the uploader.
func NewObjectStore(endpoint, accessKey, secretKey, bucket, region string, logger *slog.Logger) (*ObjectStore, error) {
	cleanEndpoint := sanitizeEndpoint(endpoint)
	useSSL := strings.HasPrefix(strings.ToLower(endpoint), "https")
	client, err := minio.New(cleanEndpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure:       useSSL,
		Region:       region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("init object store client: %w", err)
	}
	return &ObjectStore{client: client, bucket: bucket, logger: logger.With("component", "export.objectstore")}, nil
}

// Upload renders the result set and stores it under a timestamped key.
// Returns the object key.
func (s *ObjectStore) Upload(ctx context.Context, results []evaluation.SeasonResult, at time.Time) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}

	payload, err := json.Marshal(Build(results))
	if err != nil {
		return "", fmt.Errorf("encode feature collection: %w", err)
	}

	key := fmt.Sprintf("evaluations/%s.geojson", at.UTC().Format("2006-01-02T15-04-05"))
	reader := bytes.NewReader(payload)
	info, err := s.client.PutObject(ctx, s.bucket, key, reader, int64(len(payload)), minio.PutObjectOptions{
		ContentType:      "application/geo+json",
		DisableMultipart: len(payload) < 5*1024*1024,
	})
	if err != nil {
		return "", fmt.Errorf("upload snapshot: %w", err)
	}
	s.logger.Info("snapshot uploaded", "key", key, "bytes", info.Size)
	return key, nil
}

func (s *ObjectStore) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err == nil && exists {
		return nil
	}
	err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "BucketAlreadyOwnedByYou" {
		return err
	}
	return nil
}

// sanitizeEndpoint strips schemes and paths so minio.New accepts the value.
func sanitizeEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	if idx := strings.Index(raw, "/"); idx >= 0 {
		raw = raw[:idx]
	}
	return raw
}
