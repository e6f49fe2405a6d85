package api

import (
	"encoding/json"
	"net/http"

	"github.com/bobarin/docucast/internal/documents"
	"github.com/bobarin/docucast/internal/models"
)

// documentView omits the extracted text from listings.
type documentView struct {
	models.Document
	ExtractedText string `json:"extracted_text,omitempty"`
}

func listView(docs []models.Document) []documentView {
	out := make([]documentView, len(docs))
	for i, d := range docs {
		out[i] = documentView{Document: d}
	}
	return out
}

// UploadDocument handles POST /v1/documents (multipart field "file")
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	name, contentType, data, ok := readUpload(w, r, "file", documents.MaxDocumentSize, "file exceeds the 10MB limit")
	if !ok {
		return
	}
	if data == nil {
		respondError(w, http.StatusBadRequest, "No file uploaded")
		return
	}

	doc, err := h.documents.Upload(r.Context(), documents.Upload{
		UserID:      userFrom(r.Context()),
		FileName:    name,
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		respondErr(w, r, err, "Failed to upload document")
		return
	}
	respondJSON(w, http.StatusCreated, doc)
}

// ListDocuments handles GET /v1/documents
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.documents.List(r.Context(), userFrom(r.Context()))
	if err != nil {
		respondErr(w, r, err, "Failed to list documents")
		return
	}
	respondJSON(w, http.StatusOK, listView(docs))
}

// GetDocument handles GET /v1/documents/{id}
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "document")
	if !ok {
		return
	}
	doc, err := h.documents.Get(r.Context(), userFrom(r.Context()), id)
	if err != nil {
		respondErr(w, r, err, "Failed to get document")
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

// DeleteDocument handles DELETE /v1/documents/{id}
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "document")
	if !ok {
		return
	}
	if err := h.documents.Delete(r.Context(), userFrom(r.Context()), id); err != nil {
		respondErr(w, r, err, "Failed to delete document")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Document deleted"})
}

// CreateSummary handles POST /v1/documents/{id}/summaries
func (h *Handler) CreateSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "document")
	if !ok {
		return
	}
	var req models.CreateSummaryRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	summary, err := h.documents.Summarize(r.Context(), userFrom(r.Context()), id, req.Style)
	if err != nil {
		respondErr(w, r, err, "Failed to summarize document")
		return
	}
	respondJSON(w, http.StatusCreated, summary)
}

// ListSummaries handles GET /v1/documents/{id}/summaries
func (h *Handler) ListSummaries(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "document")
	if !ok {
		return
	}
	list, err := h.documents.Summaries(r.Context(), userFrom(r.Context()), id)
	if err != nil {
		respondErr(w, r, err, "Failed to list summaries")
		return
	}
	respondJSON(w, http.StatusOK, list)
}
