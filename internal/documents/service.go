// Package documents handles uploaded source documents and their summaries.
package documents

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bobarin/docucast/internal/apperr"
	"github.com/bobarin/docucast/internal/models"
	"github.com/bobarin/docucast/internal/services"
	"github.com/bobarin/docucast/internal/storage"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	MaxDocumentSize = 10 << 20
	MinWords        = 10
)

// Store is the persistence used by Service. db.DB implements it.
type Store interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error)
	ListDocuments(ctx context.Context, userID uuid.UUID) ([]models.Document, error)
	DeleteDocumentCascade(ctx context.Context, id uuid.UUID) ([]models.BlobRef, error)
	CreateSummary(ctx context.Context, s *models.Summary) error
	ListSummaries(ctx context.Context, documentID uuid.UUID) ([]models.Summary, error)
}

type Service struct {
	store      Store
	blobs      *storage.Manager
	summarizer *services.SummaryChain
	now        func() time.Time
}

func NewService(store Store, blobs *storage.Manager, summarizer *services.SummaryChain) *Service {
	return &Service{store: store, blobs: blobs, summarizer: summarizer, now: time.Now}
}

// Upload is a file received from a client.
type Upload struct {
	UserID      uuid.UUID
	FileName    string
	ContentType string
	Data        []byte
}

// FileType returns the lower-case extension of name without the dot.
func FileType(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}

// Upload extracts and validates the text, stores the original file and
// records the document as completed.
func (s *Service) Upload(ctx context.Context, up Upload) (*models.Document, error) {
	if len(up.Data) > MaxDocumentSize {
		return nil, apperr.Validation("file exceeds the 10MB limit")
	}
	fileType := FileType(up.FileName)
	switch fileType {
	case TypePDF, TypeDOCX, TypeTXT:
	default:
		return nil, apperr.Validation("Only PDF, DOCX, and TXT files are allowed")
	}

	text, err := ExtractText(up.Data, fileType)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "could not read %q", up.FileName)
	}
	text = strings.TrimSpace(text)
	words := CountWords(text)

	log.Printf("[Documents] Upload %s (type=%s, size=%d, chars=%d, words=%d)",
		up.FileName, fileType, len(up.Data), len(text), words)

	if words == 0 {
		return nil, apperr.Validation("The uploaded file %q appears to be empty or contains only whitespace. Please upload a file with actual text content. Extracted %d characters but found 0 words.",
			up.FileName, len(text))
	}
	if words < MinWords {
		return nil, apperr.Validation("The uploaded file %q is too short (%d words). Please upload a document with at least %d words for meaningful processing.",
			up.FileName, words, MinWords)
	}

	contentType := up.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = contentTypes[fileType]
	}
	ref, err := s.blobs.Store(ctx, storage.Object{
		Path:        storage.NewKey(up.UserID.String(), storage.KindDocument, up.FileName, s.now()),
		Data:        up.Data,
		ContentType: contentType,
		Metadata: map[string]string{
			"original-name": up.FileName,
			"user-id":       up.UserID.String(),
		},
	})
	if err != nil {
		return nil, err
	}

	doc := &models.Document{
		ID:               uuid.New(),
		UserID:           up.UserID,
		Title:            strings.TrimSuffix(up.FileName, filepath.Ext(up.FileName)),
		OriginalName:     up.FileName,
		FileType:         fileType,
		FileSize:         int64(len(up.Data)),
		File:             ref,
		ExtractedText:    text,
		WordCount:        words,
		ProcessingStatus: models.DocumentStatusCompleted,
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		s.blobs.Release(ref)
		return nil, fmt.Errorf("failed to save document: %w", err)
	}
	return doc, nil
}

var contentTypes = map[string]string{
	TypePDF:  "application/pdf",
	TypeDOCX: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	TypeTXT:  "text/plain; charset=utf-8",
}

// Get returns the document when it belongs to userID.
func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*models.Document, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.UserID != userID {
		return nil, apperr.Unauthorized("not authorized to access this document")
	}
	return doc, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]models.Document, error) {
	docs, err := s.store.ListDocuments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// Delete removes the document with its summaries and podcasts, then releases
// every blob they referenced in the background.
func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	refs, err := s.store.DeleteDocumentCascade(ctx, id)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		s.blobs.Release(ref)
	}
	log.Printf("[Documents] Deleted %s (%d blob(s) released)", id, len(refs))
	return nil
}

// Summarize condenses the document text in the given style and saves the result.
func (s *Service) Summarize(ctx context.Context, userID, docID uuid.UUID, style string) (*models.Summary, error) {
	doc, err := s.Get(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	style = services.NormalizeStyle(style)

	content, provider, err := s.summarizer.Summarize(ctx, doc.ExtractedText, style)
	if err != nil {
		return nil, err
	}

	summary := &models.Summary{
		ID:         uuid.New(),
		UserID:     userID,
		DocumentID: doc.ID,
		Title:      fmt.Sprintf("%s (%s summary)", doc.Title, style),
		Style:      style,
		Content:    content,
		WordCount:  CountWords(content),
		Provider:   provider,
	}
	if err := s.store.CreateSummary(ctx, summary); err != nil {
		return nil, fmt.Errorf("failed to save summary: %w", err)
	}
	log.Printf("[Documents] Summarized %s with %s (%d words)", doc.ID, provider, summary.WordCount)
	return summary, nil
}

func (s *Service) Summaries(ctx context.Context, userID, docID uuid.UUID) ([]models.Summary, error) {
	if _, err := s.Get(ctx, userID, docID); err != nil {
		return nil, err
	}
	return s.store.ListSummaries(ctx, docID)
}
