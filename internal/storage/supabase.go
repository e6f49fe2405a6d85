package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bobarin/docucast/internal/apperr"
	"github.com/bobarin/docucast/internal/models"
)

const (
	// Upload timeout, generous for 50MB voice samples
	uploadTimeout = 180 * time.Second
)

// Supabase stores objects in a Supabase Storage bucket over its REST API.
type Supabase struct {
	url        string
	serviceKey string
	Bucket     string
	client     *http.Client
}

func NewSupabase(url, serviceKey, bucket string) *Supabase {
	return &Supabase{
		url:        url,
		serviceKey: serviceKey,
		Bucket:     bucket,
		client: &http.Client{
			Timeout: uploadTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (s *Supabase) Kind() models.StorageType { return models.StorageBucket }

// Store uploads with PUT and x-upsert. Metadata is sent as x-meta-* headers.
func (s *Supabase) Store(ctx context.Context, obj Object) (models.BlobRef, error) {
	req, err := http.NewRequestWithContext(ctx, "PUT", s.objectURL(obj.Path), bytes.NewReader(obj.Data))
	if err != nil {
		return models.BlobRef{}, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", obj.ContentType)
	req.Header.Set("Content-Length", fmt.Sprintf("%d", len(obj.Data)))
	req.Header.Set("x-upsert", "true")
	for k, v := range obj.Metadata {
		req.Header.Set("x-meta-"+k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return models.BlobRef{}, fmt.Errorf("failed to upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return models.BlobRef{}, fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	return models.BlobRef{
		Storage: models.StorageBucket,
		Key:     obj.Path,
		URL:     s.GetPublicURL(obj.Path),
	}, nil
}

// Fetch streams the object body.
func (s *Supabase) Fetch(ctx context.Context, ref models.BlobRef) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", s.objectURL(ref.Key), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, apperr.NotFound("audio file")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("download failed with status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return resp.Body, nil
}

func (s *Supabase) Delete(ctx context.Context, ref models.BlobRef) error {
	req, err := http.NewRequestWithContext(ctx, "DELETE", s.objectURL(ref.Key), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to delete: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("delete failed with status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return nil
}

// GetPublicURL returns the public URL for a file
func (s *Supabase) GetPublicURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.url, s.Bucket, path)
}

func (s *Supabase) objectURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, s.Bucket, path)
}

// truncate limits a string to maxLen characters for log output
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
