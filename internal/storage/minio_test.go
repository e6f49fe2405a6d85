package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bobarin/docucast/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 answers the handful of path-style S3 calls Minio makes.
type fakeS3 struct {
	bucket string

	mu      sync.Mutex
	exists  bool
	checks  int
	created int
	objects []string
	deleted []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/"+f.bucket), "/")
	switch {
	case r.URL.Query().Has("location"):
		w.Header().Set("Content-Type", "application/xml")
		io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><LocationConstraint xmlns="http://s3.amazonaws.com/doc/2006-03-01/"></LocationConstraint>`)
	case key == "" && r.Method == http.MethodHead:
		f.checks++
		if !f.exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case key == "" && r.Method == http.MethodPut:
		f.created++
		f.exists = true
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		io.Copy(io.Discard, r.Body)
		f.objects = append(f.objects, key)
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodDelete:
		f.deleted = append(f.deleted, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func newFakeMinio(t *testing.T, publicURL string) (*Minio, *fakeS3, string) {
	t.Helper()
	fake := &fakeS3{bucket: "docucast"}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	host := strings.TrimPrefix(srv.URL, "http://")
	m, err := NewMinio(host, "access", "secret", "docucast", false, publicURL)
	require.NoError(t, err)
	return m, fake, host
}

func TestMinioRetriesBucketCheckAfterFailure(t *testing.T) {
	m, fake, host := newFakeMinio(t, "")
	obj := Object{Path: "podcasts/a.mp3", Data: []byte("ID3"), ContentType: "audio/mpeg"}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Store(cancelled, obj)
	require.Error(t, err)

	ref, err := m.Store(context.Background(), obj)
	require.NoError(t, err)
	assert.Equal(t, models.StorageBucket, ref.Storage)
	assert.Equal(t, "podcasts/a.mp3", ref.Key)
	assert.Equal(t, "http://"+host+"/docucast/podcasts/a.mp3", ref.URL)

	fake.mu.Lock()
	assert.Equal(t, 1, fake.created)
	assert.Equal(t, []string{"podcasts/a.mp3"}, fake.objects)
	checks := fake.checks
	fake.mu.Unlock()

	_, err = m.Store(context.Background(), Object{Path: "podcasts/b.mp3", Data: []byte("ID3")})
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, checks, fake.checks)
	assert.Equal(t, 1, fake.created)
	assert.Len(t, fake.objects, 2)
}

func TestMinioExistingBucketAndDelete(t *testing.T) {
	m, fake, _ := newFakeMinio(t, "https://cdn.test/media/")
	fake.exists = true

	ref, err := m.Store(context.Background(), Object{Path: "voices/me.wav", Data: []byte("RIFF")})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/media/voices/me.wav", ref.URL)
	require.NoError(t, m.Delete(context.Background(), ref))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Zero(t, fake.created)
	assert.Equal(t, []string{"voices/me.wav"}, fake.deleted)
}
