package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/bobarin/docucast/internal/apperr"
	"github.com/bobarin/docucast/internal/models"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Minio stores objects in an S3-compatible bucket.
type Minio struct {
	client   *minio.Client
	endpoint string
	bucket   string
	useSSL   bool
	baseURL  string

	mu      sync.Mutex
	ensured bool // set once the bucket is known to exist
}

func NewMinio(endpoint, accessKey, secretKey, bucket string, useSSL bool, publicURL string) (*Minio, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &Minio{
		client:   client,
		endpoint: endpoint,
		bucket:   bucket,
		useSSL:   useSSL,
		baseURL:  publicURL,
	}, nil
}

func (m *Minio) Kind() models.StorageType { return models.StorageBucket }

// ensureBucket checks for the bucket once and creates it if missing. A
// failed attempt is retried on the next call.
func (m *Minio) ensureBucket(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ensured {
		return nil
	}

	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	m.ensured = true
	return nil
}

func (m *Minio) Store(ctx context.Context, obj Object) (models.BlobRef, error) {
	if err := m.ensureBucket(ctx); err != nil {
		return models.BlobRef{}, err
	}

	_, err := m.client.PutObject(ctx, m.bucket, obj.Path, bytes.NewReader(obj.Data), int64(len(obj.Data)), minio.PutObjectOptions{
		ContentType:  obj.ContentType,
		UserMetadata: obj.Metadata,
	})
	if err != nil {
		return models.BlobRef{}, fmt.Errorf("failed to put object: %w", err)
	}

	return models.BlobRef{
		Storage: models.StorageBucket,
		Key:     obj.Path,
		URL:     m.PublicURL(obj.Path),
	}, nil
}

func (m *Minio) Fetch(ctx context.Context, ref models.BlobRef) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, ref.Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	// GetObject is lazy; Stat surfaces a missing key before the caller starts streaming.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, apperr.NotFound("audio file")
		}
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}
	return obj, nil
}

func (m *Minio) Delete(ctx context.Context, ref models.BlobRef) error {
	return m.client.RemoveObject(ctx, m.bucket, ref.Key, minio.RemoveObjectOptions{})
}

func (m *Minio) PublicURL(key string) string {
	if m.baseURL != "" {
		return strings.TrimRight(m.baseURL, "/") + "/" + key
	}
	scheme := "http://"
	if m.useSSL {
		scheme = "https://"
	}
	return scheme + m.endpoint + "/" + m.bucket + "/" + key
}
