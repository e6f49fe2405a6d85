package documents

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/bobarin/docucast/internal/apperr"
	"github.com/bobarin/docucast/internal/memstore"
	"github.com/bobarin/docucast/internal/models"
	"github.com/bobarin/docucast/internal/services"
	"github.com/bobarin/docucast/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleText = "Podcasts turn long documents into something you can listen to on the way to work."

func docx(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtractDOCX(t *testing.T) {
	data := docx(t, `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First</w:t></w:r><w:r><w:t xml:space="preserve"> paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second</w:t><w:tab/><w:t>line</w:t><w:br/><w:t>after break</w:t></w:r></w:p>
  </w:body>
</w:document>`)

	text, err := ExtractText(data, TypeDOCX)
	require.NoError(t, err)
	assert.Equal(t, "First paragraph.\nSecond\tline\nafter break\n", text)
}

func TestExtractRejectsBrokenFiles(t *testing.T) {
	_, err := ExtractText([]byte("not a zip"), TypeDOCX)
	assert.Error(t, err)

	_, err = ExtractText(docx(t, "<x/>")[:10], TypeDOCX)
	assert.Error(t, err)

	_, err = ExtractText([]byte("not a pdf"), TypePDF)
	assert.Error(t, err)

	_, err = ExtractText([]byte("x"), "rtf")
	assert.Error(t, err)
}

func TestExtractTXTStripsBOM(t *testing.T) {
	text, err := ExtractText([]byte("\xef\xbb\xbfhello world"), TypeTXT)
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

type fixture struct {
	store *memstore.Store
	blobs *storage.Manager
	svc   *Service
	user  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	local, err := storage.NewLocal(t.TempDir(), "/uploads")
	require.NoError(t, err)
	blobs := storage.NewManagerWith(local, local)
	return &fixture{
		store: store,
		blobs: blobs,
		svc:   NewService(store, blobs, services.NewSummaryChain()),
		user:  uuid.New(),
	}
}

func (f *fixture) upload(t *testing.T, name, text string) *models.Document {
	t.Helper()
	doc, err := f.svc.Upload(context.Background(), Upload{UserID: f.user, FileName: name, Data: []byte(text)})
	require.NoError(t, err)
	return doc
}

func TestUpload(t *testing.T) {
	f := newFixture(t)

	doc := f.upload(t, "commute notes.txt", sampleText)
	assert.Equal(t, "commute notes", doc.Title)
	assert.Equal(t, TypeTXT, doc.FileType)
	assert.Equal(t, 15, doc.WordCount)
	assert.Equal(t, models.DocumentStatusCompleted, doc.ProcessingStatus)
	assert.Equal(t, models.StorageLocal, doc.File.Storage)
	assert.True(t, strings.HasPrefix(doc.File.Key, f.user.String()+"/documents/"))
	assert.True(t, strings.HasSuffix(doc.File.URL, "_commute_notes.txt"))

	stored, err := f.svc.Get(context.Background(), f.user, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, sampleText, stored.ExtractedText)
}

func TestUploadValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		file    string
		data    []byte
		message string
	}{
		{"type", "slides.pptx", []byte(sampleText), "Only PDF, DOCX, and TXT files are allowed"},
		{"size", "big.txt", make([]byte, MaxDocumentSize+1), "exceeds the 10MB limit"},
		{"empty", "blank.txt", []byte(" \n\t "), `"blank.txt" appears to be empty`},
		{"short", "short.txt", []byte("only four words here"), `"short.txt" is too short (4 words)`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Upload(ctx, Upload{UserID: f.user, FileName: tc.file, Data: tc.data})
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Contains(t, apperr.Message(err), tc.message)
		})
	}

	docs, err := f.svc.List(ctx, f.user)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestOwnership(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t, "notes.txt", sampleText)
	other := uuid.New()

	_, err := f.svc.Get(context.Background(), other, doc.ID)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	err = f.svc.Delete(context.Background(), other, doc.ID)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	_, err = f.svc.Get(context.Background(), f.user, uuid.New())
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestDeleteCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := f.upload(t, "notes.txt", sampleText)

	summary, err := f.svc.Summarize(ctx, f.user, doc.ID, "brief")
	require.NoError(t, err)

	podcast := &models.Podcast{ID: uuid.New(), UserID: f.user, DocumentID: doc.ID, Status: models.PodcastStatusGenerating}
	require.NoError(t, f.store.CreatePodcast(ctx, podcast))

	require.NoError(t, f.svc.Delete(ctx, f.user, doc.ID))
	f.blobs.Wait()

	_, err = f.store.GetSummary(ctx, summary.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	_, err = f.store.GetPodcast(ctx, podcast.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = f.blobs.Fetch(ctx, doc.File)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestSummarizeFallsBackToExtractive(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t, "notes.txt", sampleText+" A second sentence follows here.")

	summary, err := f.svc.Summarize(context.Background(), f.user, doc.ID, "")
	require.NoError(t, err)
	assert.Equal(t, services.StylePodcast, summary.Style)
	assert.Equal(t, services.ExtractiveProvider, summary.Provider)
	assert.Equal(t, sampleText+" A second sentence follows here.", summary.Content)

	list, err := f.svc.Summaries(context.Background(), f.user, doc.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, summary.ID, list[0].ID)
}
