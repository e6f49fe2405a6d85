package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/bobarin/docucast/internal/apperr"
	"github.com/bobarin/docucast/internal/config"
	"github.com/bobarin/docucast/internal/models"
	log "github.com/sirupsen/logrus"
)

const (
	// Timeout for a background release
	releaseTimeout = 30 * time.Second

	// Timeout for downloading a URL-only reference
	remoteTimeout = 2 * time.Minute

	failureBuffer = 64
)

// Kinds of stored artifacts, used as the middle segment of a key.
const (
	KindDocument  = "documents"
	KindPodcast   = "podcasts"
	KindConverted = "converted"
	KindSample    = "voice-samples"
)

// Object is a blob to be written.
type Object struct {
	Path        string
	Data        []byte
	ContentType string
	Metadata    map[string]string
}

// Backend is one place blobs can live.
type Backend interface {
	Kind() models.StorageType
	Store(ctx context.Context, obj Object) (models.BlobRef, error)
	Fetch(ctx context.Context, ref models.BlobRef) (io.ReadCloser, error)
	Delete(ctx context.Context, ref models.BlobRef) error
}

// ReleaseFailure reports a compensating delete that did not succeed.
type ReleaseFailure struct {
	Ref models.BlobRef
	Err error
}

// Manager routes blobs to backends. Writes go to the primary backend and fall
// back once to local disk; reads and deletes go to whichever backend the
// reference names.
type Manager struct {
	primary  Backend
	local    Backend
	backends map[models.StorageType]Backend

	failures chan ReleaseFailure
	pending  sync.WaitGroup

	client *http.Client // URL-only references
}

// NewManager builds the backends described by cfg. chunks backs the
// database-attached store.
func NewManager(cfg config.StorageConfig, chunks ChunkStore) (*Manager, error) {
	local, err := NewLocal(cfg.UploadsDir, cfg.PublicPath)
	if err != nil {
		return nil, err
	}

	backends := []Backend{local, NewDatabase(chunks, cfg.DBChunkSize)}
	primary := Backend(local)

	if cfg.Primary == "bucket" {
		var bucket Backend
		switch cfg.BucketDriver {
		case "minio":
			bucket, err = NewMinio(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL, cfg.MinioPublicURL)
			if err != nil {
				return nil, err
			}
		default:
			bucket = NewSupabase(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseBucket)
		}
		backends = append(backends, bucket)
		primary = bucket
		log.Printf("[Storage] Primary backend: %s bucket, local fallback at %s", cfg.BucketDriver, cfg.UploadsDir)
	} else {
		log.Printf("[Storage] Primary backend: local (%s)", cfg.UploadsDir)
	}

	return NewManagerWith(primary, local, backends...), nil
}

// NewManagerWith assembles a Manager from ready backends.
func NewManagerWith(primary, local Backend, others ...Backend) *Manager {
	m := &Manager{
		primary:  primary,
		local:    local,
		backends: make(map[models.StorageType]Backend),
		failures: make(chan ReleaseFailure, failureBuffer),
		client:   &http.Client{Timeout: remoteTimeout},
	}
	for _, b := range append([]Backend{primary, local}, others...) {
		if b != nil {
			m.backends[b.Kind()] = b
		}
	}
	return m
}

// Store writes to the primary backend, falling back once to local disk. The
// returned reference names the backend that accepted the write.
func (m *Manager) Store(ctx context.Context, obj Object) (models.BlobRef, error) {
	ref, err := m.primary.Store(ctx, obj)
	if err == nil {
		return ref, nil
	}
	if m.local == nil || m.primary.Kind() == m.local.Kind() {
		return models.BlobRef{}, apperr.Wrap(apperr.KindStorageFailure, err, "failed to store %s", obj.Path)
	}

	log.Errorf("[Storage] %s upload failed for %s, falling back to local: %v", m.primary.Kind(), obj.Path, err)
	ref, lerr := m.local.Store(ctx, obj)
	if lerr != nil {
		return models.BlobRef{}, apperr.Wrap(apperr.KindStorageFailure, lerr, "failed to store %s", obj.Path)
	}
	return ref, nil
}

// StoreIn writes to a specific backend without fallback.
func (m *Manager) StoreIn(ctx context.Context, kind models.StorageType, obj Object) (models.BlobRef, error) {
	b, ok := m.backends[kind]
	if !ok {
		return models.BlobRef{}, apperr.New(apperr.KindStorageFailure, "storage backend %q not configured", kind)
	}
	ref, err := b.Store(ctx, obj)
	if err != nil {
		return models.BlobRef{}, apperr.Wrap(apperr.KindStorageFailure, err, "failed to store %s", obj.Path)
	}
	return ref, nil
}

// Fetch opens the blob for reading. The caller closes it.
func (m *Manager) Fetch(ctx context.Context, ref models.BlobRef) (io.ReadCloser, error) {
	if ref.Storage == models.StorageBrowser {
		return nil, apperr.NotFound("audio file")
	}
	if ref.Key == "" {
		if isRemote(ref.URL) {
			return m.fetchURL(ctx, ref.URL)
		}
		return nil, apperr.NotFound("audio file")
	}
	b, ok := m.backends[ref.Storage]
	if !ok {
		return nil, apperr.New(apperr.KindStorageFailure, "storage backend %q not configured", ref.Storage)
	}
	rc, err := b.Fetch(ctx, ref)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, err
		}
		return nil, apperr.Wrap(apperr.KindStorageFailure, err, "failed to fetch %s", ref.Key)
	}
	return rc, nil
}

func isRemote(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// fetchURL downloads a reference that only carries a public URL.
func (m *Manager) fetchURL(ctx context.Context, raw string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSpace(raw), nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorageFailure, err, "failed to create request")
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorageFailure, err, "failed to download %s", raw)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		resp.Body.Close()
		return nil, apperr.NotFound("audio file")
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return nil, apperr.New(apperr.KindStorageFailure, "download of %s failed with status %d", raw, resp.StatusCode)
	}
	return resp.Body, nil
}

// Release deletes the blob in the background. It never blocks and never
// reports to the caller; failures are logged and published on Failures.
func (m *Manager) Release(ref models.BlobRef) {
	if ref.Key == "" || ref.Storage == models.StorageBrowser {
		return
	}
	b, ok := m.backends[ref.Storage]
	if !ok {
		log.Warnf("[Storage] Cannot release %s: backend %q not configured", ref.Key, ref.Storage)
		return
	}

	m.pending.Add(1)
	go func() {
		defer m.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()

		if err := b.Delete(ctx, ref); err != nil {
			log.Errorf("[Storage] Failed to release %s from %s: %v", ref.Key, ref.Storage, err)
			select {
			case m.failures <- ReleaseFailure{Ref: ref, Err: err}:
			default:
			}
		}
	}()
}

// Failures delivers release errors. Reports are dropped when nobody drains the channel.
func (m *Manager) Failures() <-chan ReleaseFailure {
	return m.failures
}

// Wait blocks until all pending releases have finished.
func (m *Manager) Wait() {
	m.pending.Wait()
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// NewKey builds "<owner>/<kind>/<unixmillis>_<name>".
func NewKey(owner, kind, name string, now time.Time) string {
	name = unsafeName.ReplaceAllString(path.Base(strings.ReplaceAll(name, "\\", "/")), "_")
	if name == "" || name == "." || name == "/" {
		name = "file"
	}
	return fmt.Sprintf("%s/%s/%d_%s", owner, kind, now.UnixMilli(), name)
}
