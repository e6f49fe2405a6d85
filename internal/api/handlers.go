package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bobarin/docucast/internal/apperr"
	"github.com/bobarin/docucast/internal/documents"
	"github.com/bobarin/docucast/internal/pipeline"
	"github.com/bobarin/docucast/internal/services"
	"github.com/bobarin/docucast/internal/voices"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// QueueStats reports the backlog of the job queues. queue.Queue implements it.
type QueueStats interface {
	Lengths(ctx context.Context) (map[string]int64, error)
}

type Handler struct {
	documents    *documents.Service
	voices       *voices.Registry
	orchestrator *pipeline.Orchestrator
	tts          *services.Registry
	queue        QueueStats // nil when jobs run in-process
}

func NewHandler(docs *documents.Service, voiceRegistry *voices.Registry, orch *pipeline.Orchestrator, tts *services.Registry, q QueueStats) *Handler {
	return &Handler{
		documents:    docs,
		voices:       voiceRegistry,
		orchestrator: orch,
		tts:          tts,
		queue:        q,
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondErr maps a service error to its status. Internal errors are logged
// and answered with fallback.
func respondErr(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := apperr.HTTPStatus(err)
	if apperr.KindOf(err) == apperr.KindInternal {
		log.Errorf("[API] %s %s: %v", r.Method, r.URL.Path, err)
		respondError(w, status, fallback)
		return
	}
	if status >= http.StatusInternalServerError {
		log.Errorf("[API] %s %s: %v", r.Method, r.URL.Path, err)
	}
	respondError(w, status, apperr.Message(err))
}

func pathID(w http.ResponseWriter, r *http.Request, param, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid "+what+" ID")
		return uuid.Nil, false
	}
	return id, true
}

// readUpload reads one multipart file field. Bodies over limit are rejected
// with tooLarge.
func readUpload(w http.ResponseWriter, r *http.Request, field string, limit int64, tooLarge string) (name, contentType string, data []byte, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			respondError(w, http.StatusBadRequest, tooLarge)
			return "", "", nil, false
		}
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return "", "", nil, false
	}

	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return "", "", nil, true
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return "", "", nil, false
	}
	defer file.Close()

	data, err = io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return "", "", nil, false
	}
	return header.Filename, header.Header.Get("Content-Type"), data, true
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":    "ok",
		"providers": h.tts.Configured(),
		"time":      time.Now().UTC(),
	}
	if h.queue != nil {
		lengths, err := h.queue.Lengths(r.Context())
		if err != nil {
			resp["status"] = "degraded"
			resp["queue_error"] = err.Error()
		} else {
			resp["queues"] = lengths
		}
	}
	respondJSON(w, http.StatusOK, resp)
}
