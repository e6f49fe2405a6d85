// Package memstore is an in-memory implementation of the persistence methods
// of db.DB. It applies the same compare-and-set rules and is used by the
// service and handler tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bobarin/docucast/internal/apperr"
	"github.com/bobarin/docucast/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

type blob struct {
	meta   models.BlobMeta
	chunks [][]byte
}

// Store holds every table behind one mutex.
type Store struct {
	mu        sync.Mutex
	seq       int64
	order     map[uuid.UUID]int64
	documents map[uuid.UUID]models.Document
	summaries map[uuid.UUID]models.Summary
	podcasts  map[uuid.UUID]models.Podcast
	voices    map[uuid.UUID]models.CustomVoice
	blobs     map[string]blob
}

func New() *Store {
	return &Store{
		order:     make(map[uuid.UUID]int64),
		documents: make(map[uuid.UUID]models.Document),
		summaries: make(map[uuid.UUID]models.Summary),
		podcasts:  make(map[uuid.UUID]models.Podcast),
		voices:    make(map[uuid.UUID]models.CustomVoice),
		blobs:     make(map[string]blob),
	}
}

func (s *Store) stamp(id uuid.UUID) time.Time {
	s.seq++
	s.order[id] = s.seq
	return time.Now().UTC()
}

// newestFirst sorts ids by insertion, latest first.
func (s *Store) newestFirst(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return s.order[ids[i]] > s.order[ids[j]] })
}

// Documents

func (s *Store) CreateDocument(ctx context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc.CreatedAt = s.stamp(doc.ID)
	doc.UpdatedAt = doc.CreatedAt
	s.documents[doc.ID] = *doc
	return nil
}

func (s *Store) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, apperr.NotFound("document")
	}
	return &doc, nil
}

func (s *Store) ListDocuments(ctx context.Context, userID uuid.UUID) ([]models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uuid.UUID
	for id, doc := range s.documents {
		if doc.UserID == userID {
			ids = append(ids, id)
		}
	}
	s.newestFirst(ids)
	out := make([]models.Document, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.documents[id])
	}
	return out, nil
}

func (s *Store) DeleteDocumentCascade(ctx context.Context, id uuid.UUID) ([]models.BlobRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, apperr.NotFound("document")
	}

	var refs []models.BlobRef
	if !doc.File.IsZero() {
		refs = append(refs, doc.File)
	}
	for pid, p := range s.podcasts {
		if p.DocumentID != id {
			continue
		}
		for _, ref := range []models.BlobRef{p.Audio, p.ConvertedAudio} {
			if !ref.IsZero() {
				refs = append(refs, ref)
			}
		}
		delete(s.podcasts, pid)
	}
	for sid, sum := range s.summaries {
		if sum.DocumentID == id {
			delete(s.summaries, sid)
		}
	}
	delete(s.documents, id)
	return refs, nil
}

// Summaries

func (s *Store) CreateSummary(ctx context.Context, sum *models.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum.CreatedAt = s.stamp(sum.ID)
	s.summaries[sum.ID] = *sum
	return nil
}

func (s *Store) GetSummary(ctx context.Context, id uuid.UUID) (*models.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, ok := s.summaries[id]
	if !ok {
		return nil, apperr.NotFound("summary")
	}
	return &sum, nil
}

func (s *Store) ListSummaries(ctx context.Context, documentID uuid.UUID) ([]models.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uuid.UUID
	for id, sum := range s.summaries {
		if sum.DocumentID == documentID {
			ids = append(ids, id)
		}
	}
	s.newestFirst(ids)
	out := make([]models.Summary, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.summaries[id])
	}
	return out, nil
}

// Podcasts

func (s *Store) CreatePodcast(ctx context.Context, p *models.Podcast) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.CreatedAt = s.stamp(p.ID)
	p.UpdatedAt = p.CreatedAt
	s.podcasts[p.ID] = *p
	return nil
}

func (s *Store) GetPodcast(ctx context.Context, id uuid.UUID) (*models.Podcast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.podcasts[id]
	if !ok {
		return nil, apperr.NotFound("podcast")
	}
	return &p, nil
}

func (s *Store) ListPodcasts(ctx context.Context, userID uuid.UUID) ([]models.Podcast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uuid.UUID
	for id, p := range s.podcasts {
		if p.UserID == userID {
			ids = append(ids, id)
		}
	}
	s.newestFirst(ids)
	out := make([]models.Podcast, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.podcasts[id])
	}
	return out, nil
}

// updatePodcast applies fn when guard accepts the current row.
func (s *Store) updatePodcast(id uuid.UUID, what string, guard func(models.Podcast) bool, fn func(*models.Podcast)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.podcasts[id]
	if !ok || !guard(p) {
		return apperr.New(apperr.KindInvalidTransition, "%s rejected: state changed", what)
	}
	fn(&p)
	p.UpdatedAt = time.Now().UTC()
	s.podcasts[id] = p
	return nil
}

func generating(p models.Podcast) bool { return p.Status == models.PodcastStatusGenerating }

func converting(p models.Podcast) bool {
	return p.ConversionStatus == models.ConversionStatusProcessing
}

func (s *Store) UpdatePodcastProgress(ctx context.Context, id uuid.UUID, progress int) error {
	return s.updatePodcast(id, "podcast progress", generating, func(p *models.Podcast) {
		p.Progress = progress
	})
}

func (s *Store) CompletePodcast(ctx context.Context, id uuid.UUID, audio models.PodcastAudio) error {
	return s.updatePodcast(id, "podcast completion", generating, func(p *models.Podcast) {
		p.Status = models.PodcastStatusCompleted
		p.Progress = 100
		p.Audio = audio.Audio
		p.AudioFormat = audio.Format
		p.DurationMs = audio.DurationMs
		p.SizeBytes = audio.SizeBytes
		p.ErrorMessage = nil
	})
}

func (s *Store) FailPodcast(ctx context.Context, id uuid.UUID, message string) error {
	return s.updatePodcast(id, "podcast failure", generating, func(p *models.Podcast) {
		p.Status = models.PodcastStatusFailed
		p.ErrorMessage = &message
	})
}

func (s *Store) BeginConversion(ctx context.Context, id, voiceID uuid.UUID) error {
	guard := func(p models.Podcast) bool {
		return p.Status == models.PodcastStatusCompleted &&
			(p.ConversionStatus == models.ConversionStatusNone || p.ConversionStatus == models.ConversionStatusFailed)
	}
	return s.updatePodcast(id, "conversion start", guard, func(p *models.Podcast) {
		p.ConversionStatus = models.ConversionStatusProcessing
		p.ConversionError = nil
		p.ConvertedVoiceID = &voiceID
	})
}

func (s *Store) CompleteConversion(ctx context.Context, id uuid.UUID, ref models.BlobRef) error {
	return s.updatePodcast(id, "conversion completion", converting, func(p *models.Podcast) {
		p.ConversionStatus = models.ConversionStatusCompleted
		p.ConvertedAudio = ref
		p.ConversionError = nil
	})
}

func (s *Store) FailConversion(ctx context.Context, id uuid.UUID, message string) error {
	return s.updatePodcast(id, "conversion failure", converting, func(p *models.Podcast) {
		p.ConversionStatus = models.ConversionStatusFailed
		p.ConversionError = &message
	})
}

func (s *Store) DeletePodcast(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.podcasts[id]; !ok {
		return apperr.NotFound("podcast")
	}
	delete(s.podcasts, id)
	return nil
}

// Custom voices

func (s *Store) CreateVoice(ctx context.Context, v *models.CustomVoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.Tags == nil {
		v.Tags = pq.StringArray{}
	}
	v.CreatedAt = s.stamp(v.ID)
	v.UpdatedAt = v.CreatedAt
	s.voices[v.ID] = *v
	return nil
}

func (s *Store) GetVoice(ctx context.Context, id uuid.UUID) (*models.CustomVoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.voices[id]
	if !ok {
		return nil, apperr.NotFound("voice")
	}
	return &v, nil
}

func (s *Store) ListVoices(ctx context.Context, userID uuid.UUID, readyOnly bool) ([]models.CustomVoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uuid.UUID
	for id, v := range s.voices {
		if v.UserID != userID || (readyOnly && v.Status != models.VoiceStatusReady) {
			continue
		}
		ids = append(ids, id)
	}
	s.newestFirst(ids)
	out := make([]models.CustomVoice, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.voices[id])
	}
	return out, nil
}

func (s *Store) GetDefaultVoice(ctx context.Context, userID uuid.UUID) (*models.CustomVoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.voices {
		if v.UserID == userID && v.IsDefault {
			return &v, nil
		}
	}
	return nil, apperr.NotFound("default voice")
}

func (s *Store) UpdateVoiceDetails(ctx context.Context, v *models.CustomVoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.voices[v.ID]
	if !ok {
		return apperr.NotFound("voice")
	}
	cur.Name = v.Name
	cur.Description = v.Description
	cur.Gender = v.Gender
	cur.Language = v.Language
	cur.Accent = v.Accent
	cur.Tags = v.Tags
	cur.UpdatedAt = time.Now().UTC()
	v.UpdatedAt = cur.UpdatedAt
	s.voices[v.ID] = cur
	return nil
}

func (s *Store) TransitionVoice(ctx context.Context, id uuid.UUID, from, to models.VoiceStatus, processingError, externalID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.voices[id]
	if !ok || v.Status != from {
		return apperr.New(apperr.KindInvalidTransition, "voice status change rejected: state changed")
	}
	v.Status = to
	v.ProcessingError = processingError
	if externalID != nil {
		v.ExternalVoiceID = externalID
	}
	v.UpdatedAt = time.Now().UTC()
	s.voices[id] = v
	return nil
}

func (s *Store) SetDefaultVoice(ctx context.Context, userID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.voices[id]
	if !ok || target.UserID != userID {
		return apperr.NotFound("voice")
	}
	for vid, v := range s.voices {
		if v.UserID == userID && v.IsDefault {
			v.IsDefault = false
			s.voices[vid] = v
		}
	}
	target.IsDefault = true
	s.voices[id] = target
	return nil
}

func (s *Store) ClearDefaultVoice(ctx context.Context, userID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.voices[id]; ok && v.UserID == userID {
		v.IsDefault = false
		s.voices[id] = v
	}
	return nil
}

func (s *Store) IncrementVoiceUsage(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.voices[id]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	v.TimesUsed++
	v.LastUsedAt = &now
	s.voices[id] = v
	return nil
}

func (s *Store) DeleteVoice(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.voices[id]; !ok {
		return apperr.NotFound("voice")
	}
	delete(s.voices, id)
	// converted_voice_id is ON DELETE SET NULL
	for pid, p := range s.podcasts {
		if p.ConvertedVoiceID != nil && *p.ConvertedVoiceID == id {
			p.ConvertedVoiceID = nil
			s.podcasts[pid] = p
		}
	}
	return nil
}

// Chunked blobs

func (s *Store) PutBlob(ctx context.Context, key, filename, contentType string, data []byte, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = len(data) + 1
	}
	b := blob{meta: models.BlobMeta{
		Filename:    filename,
		ContentType: contentType,
		Length:      int64(len(data)),
		ChunkSize:   chunkSize,
	}}
	for start := 0; start < len(data); start += chunkSize {
		end := start + chunkSize
		if end > len(data) {
			end = len(data)
		}
		b.chunks = append(b.chunks, append([]byte(nil), data[start:end]...))
	}
	b.meta.ChunkCount = len(b.chunks)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = b
	return nil
}

func (s *Store) BlobInfo(ctx context.Context, key string) (*models.BlobMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[key]
	if !ok {
		return nil, apperr.NotFound("blob")
	}
	meta := b.meta
	return &meta, nil
}

func (s *Store) BlobChunk(ctx context.Context, key string, n int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[key]
	if !ok || n < 0 || n >= len(b.chunks) {
		return nil, apperr.NotFound("blob chunk")
	}
	return b.chunks[n], nil
}

func (s *Store) DeleteBlob(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

// HasBlob reports whether key is stored. Test helper.
func (s *Store) HasBlob(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[key]
	return ok
}
