package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bobarin/docucast/internal/apperr"
	"github.com/bobarin/docucast/internal/memstore"
	"github.com/bobarin/docucast/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	kind      models.StorageType
	storeErr  error
	deleteErr error

	mu      sync.Mutex
	stored  []string
	deleted []string
}

func (f *fakeBackend) Kind() models.StorageType { return f.kind }

func (f *fakeBackend) Store(ctx context.Context, obj Object) (models.BlobRef, error) {
	if f.storeErr != nil {
		return models.BlobRef{}, f.storeErr
	}
	f.mu.Lock()
	f.stored = append(f.stored, obj.Path)
	f.mu.Unlock()
	return models.BlobRef{Storage: f.kind, Key: obj.Path, URL: "https://cdn.test/" + obj.Path}, nil
}

func (f *fakeBackend) Fetch(ctx context.Context, ref models.BlobRef) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(ref.Key)), nil
}

func (f *fakeBackend) Delete(ctx context.Context, ref models.BlobRef) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, ref.Key)
	f.mu.Unlock()
	return f.deleteErr
}

func newLocal(t *testing.T) *Local {
	t.Helper()
	l, err := NewLocal(t.TempDir(), "/uploads")
	require.NoError(t, err)
	return l
}

func TestManagerStoreUsesPrimary(t *testing.T) {
	bucket := &fakeBackend{kind: models.StorageBucket}
	m := NewManagerWith(bucket, newLocal(t))

	ref, err := m.Store(context.Background(), Object{Path: "u/podcasts/1_a.mp3", Data: []byte("mp3")})
	require.NoError(t, err)
	assert.Equal(t, models.StorageBucket, ref.Storage)
	assert.Equal(t, []string{"u/podcasts/1_a.mp3"}, bucket.stored)
}

func TestManagerStoreFallsBackToLocal(t *testing.T) {
	bucket := &fakeBackend{kind: models.StorageBucket, storeErr: errors.New("bucket down")}
	m := NewManagerWith(bucket, newLocal(t))

	ref, err := m.Store(context.Background(), Object{Path: "u/podcasts/1_a.mp3", Data: []byte("mp3")})
	require.NoError(t, err)
	assert.Equal(t, models.StorageLocal, ref.Storage)
	assert.Equal(t, "/uploads/u/podcasts/1_a.mp3", ref.URL)

	rc, err := m.Fetch(context.Background(), ref)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "mp3", string(data))
}

func TestManagerStoreLocalPrimaryFailure(t *testing.T) {
	local := &fakeBackend{kind: models.StorageLocal, storeErr: errors.New("disk full")}
	m := NewManagerWith(local, local)

	_, err := m.Store(context.Background(), Object{Path: "k"})
	assert.Equal(t, apperr.KindStorageFailure, apperr.KindOf(err))
}

func TestManagerStoreIn(t *testing.T) {
	chunks := memstore.New()
	m := NewManagerWith(newLocal(t), nil, NewDatabase(chunks, 4))

	ref, err := m.StoreIn(context.Background(), models.StorageDatabase, Object{
		Path:        "u/voice-samples/1_s.wav",
		Data:        []byte("0123456789"),
		ContentType: "audio/wav",
		Metadata:    map[string]string{"filename": "s.wav"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.BlobRef{Storage: models.StorageDatabase, Key: "u/voice-samples/1_s.wav"}, ref)

	meta, err := chunks.BlobInfo(context.Background(), ref.Key)
	require.NoError(t, err)
	assert.Equal(t, 3, meta.ChunkCount)
	assert.Equal(t, "s.wav", meta.Filename)

	rc, err := m.Fetch(context.Background(), ref)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))

	_, err = m.StoreIn(context.Background(), models.StorageBucket, Object{Path: "x"})
	assert.Equal(t, apperr.KindStorageFailure, apperr.KindOf(err))
}

func TestDatabaseReaderSeeks(t *testing.T) {
	d := NewDatabase(memstore.New(), 4)
	ref, err := d.Store(context.Background(), Object{Path: "u/voice-samples/1_s.wav", Data: []byte("0123456789")})
	require.NoError(t, err)

	rc, err := d.Fetch(context.Background(), ref)
	require.NoError(t, err)
	defer rc.Close()
	rs, ok := rc.(io.ReadSeeker)
	require.True(t, ok)

	buf := make([]byte, 3)
	_, err = rs.Seek(5, io.SeekStart)
	require.NoError(t, err)
	_, err = io.ReadFull(rs, buf)
	require.NoError(t, err)
	assert.Equal(t, "567", string(buf))

	_, err = rs.Seek(-2, io.SeekEnd)
	require.NoError(t, err)
	rest, err := io.ReadAll(rs)
	require.NoError(t, err)
	assert.Equal(t, "89", string(rest))

	_, err = rs.Seek(0, io.SeekStart)
	require.NoError(t, err)
	all, err := io.ReadAll(rs)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(all))

	_, err = rs.Seek(-1, io.SeekStart)
	assert.Error(t, err)
}

func TestManagerFetchUnavailable(t *testing.T) {
	m := NewManagerWith(newLocal(t), nil)

	_, err := m.Fetch(context.Background(), models.BlobRef{Storage: models.StorageBrowser})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = m.Fetch(context.Background(), models.BlobRef{Storage: models.StorageLocal, Key: "missing.mp3"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestManagerFetchURLOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bucket/podcasts/a.mp3" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, "legacy-audio")
	}))
	defer srv.Close()
	m := NewManagerWith(newLocal(t), nil)

	rc, err := m.Fetch(context.Background(), models.BlobRef{Storage: models.StorageBucket, URL: srv.URL + "/bucket/podcasts/a.mp3"})
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "legacy-audio", string(data))

	_, err = m.Fetch(context.Background(), models.BlobRef{Storage: models.StorageBucket, URL: srv.URL + "/bucket/gone.mp3"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = m.Fetch(context.Background(), models.BlobRef{Storage: models.StorageLocal, URL: "/uploads/a.mp3"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestManagerReleaseReportsFailures(t *testing.T) {
	bucket := &fakeBackend{kind: models.StorageBucket, deleteErr: errors.New("403")}
	m := NewManagerWith(bucket, newLocal(t))

	m.Release(models.BlobRef{Storage: models.StorageBucket, Key: "a"})
	m.Release(models.BlobRef{Storage: models.StorageBrowser})
	m.Release(models.BlobRef{Storage: models.StorageDatabase, Key: "not-configured"})

	select {
	case f := <-m.Failures():
		assert.Equal(t, "a", f.Ref.Key)
		assert.EqualError(t, f.Err, "403")
	case <-time.After(5 * time.Second):
		t.Fatal("release failure was not published")
	}
	m.Wait()
	assert.Equal(t, []string{"a"}, bucket.deleted)
}

func TestManagerReleaseNeverBlocks(t *testing.T) {
	bucket := &fakeBackend{kind: models.StorageBucket, deleteErr: errors.New("boom")}
	m := NewManagerWith(bucket, newLocal(t))

	for i := 0; i < failureBuffer*2; i++ {
		m.Release(models.BlobRef{Storage: models.StorageBucket, Key: "k"})
	}
	m.Wait()
	assert.Len(t, m.Failures(), failureBuffer)
}

func TestLocalRejectsTraversal(t *testing.T) {
	l := newLocal(t)

	ref, err := l.Store(context.Background(), Object{Path: "../../etc/passwd", Data: []byte("x")})
	require.NoError(t, err)
	full, err := l.resolve(ref.Key)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(full, l.Root()))

	_, err = l.Store(context.Background(), Object{Path: ""})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	assert.NoError(t, l.Delete(context.Background(), models.BlobRef{Key: "never-written"}))
}

func TestNewKey(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	assert.Equal(t, "u1/podcasts/1700000000123_My_Episode.mp3", NewKey("u1", KindPodcast, "My Episode.mp3", now))
	assert.Equal(t, "u1/documents/1700000000123_report.pdf", NewKey("u1", KindDocument, `C:\tmp\report.pdf`, now))
	assert.Equal(t, "u1/voice-samples/1700000000123_file", NewKey("u1", KindSample, "", now))
}

func TestSupabaseStoreAndDelete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer svc", r.Header.Get("Authorization"))
		assert.Equal(t, "/storage/v1/object/media/u/podcasts/1_a.mp3", r.URL.Path)
		switch r.Method {
		case http.MethodPut:
			assert.Equal(t, "true", r.Header.Get("x-upsert"))
			assert.Equal(t, "audio/mpeg", r.Header.Get("Content-Type"))
			assert.Equal(t, "p1", r.Header.Get("x-meta-podcast"))
			w.WriteHeader(http.StatusOK)
		case http.MethodDelete:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	s := NewSupabase(srv.URL, "svc", "media")
	ref, err := s.Store(context.Background(), Object{
		Path:        "u/podcasts/1_a.mp3",
		Data:        []byte("mp3"),
		ContentType: "audio/mpeg",
		Metadata:    map[string]string{"podcast": "p1"},
	})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/storage/v1/object/public/media/u/podcasts/1_a.mp3", ref.URL)

	assert.NoError(t, s.Delete(context.Background(), ref))
}
