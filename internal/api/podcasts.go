package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/bobarin/docucast/internal/models"
	"github.com/bobarin/docucast/internal/playback"
	"github.com/bobarin/docucast/internal/services"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// podcastResponse is a podcast with its resolved playback.
type podcastResponse struct {
	models.Podcast
	Playback playback.Playback `json:"playback"`
}

func withPlayback(p *models.Podcast) podcastResponse {
	return podcastResponse{Podcast: *p, Playback: playback.Resolve(p)}
}

// CreatePodcast handles POST /v1/podcasts
func (h *Handler) CreatePodcast(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePodcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.DocumentID == uuid.Nil {
		respondError(w, http.StatusBadRequest, "document_id is required")
		return
	}

	p, err := h.orchestrator.GeneratePodcast(r.Context(), userFrom(r.Context()), req)
	if err != nil {
		respondErr(w, r, err, "Failed to create podcast")
		return
	}
	respondJSON(w, http.StatusAccepted, withPlayback(p))
}

// ListPodcasts handles GET /v1/podcasts
func (h *Handler) ListPodcasts(w http.ResponseWriter, r *http.Request) {
	list, err := h.orchestrator.Podcasts(r.Context(), userFrom(r.Context()))
	if err != nil {
		respondErr(w, r, err, "Failed to list podcasts")
		return
	}
	out := make([]podcastResponse, len(list))
	for i := range list {
		out[i] = withPlayback(&list[i])
	}
	respondJSON(w, http.StatusOK, out)
}

// GetPodcast handles GET /v1/podcasts/{id}
func (h *Handler) GetPodcast(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "podcast")
	if !ok {
		return
	}
	p, err := h.orchestrator.Podcast(r.Context(), userFrom(r.Context()), id)
	if err != nil {
		respondErr(w, r, err, "Failed to get podcast")
		return
	}
	respondJSON(w, http.StatusOK, withPlayback(p))
}

// DeletePodcast handles DELETE /v1/podcasts/{id}
func (h *Handler) DeletePodcast(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "podcast")
	if !ok {
		return
	}
	if err := h.orchestrator.DeletePodcast(r.Context(), userFrom(r.Context()), id); err != nil {
		respondErr(w, r, err, "Failed to delete podcast")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Podcast deleted"})
}

// GetPodcastStatus handles GET /v1/podcasts/{id}/status
func (h *Handler) GetPodcastStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "podcast")
	if !ok {
		return
	}
	status, err := h.orchestrator.Status(r.Context(), userFrom(r.Context()), id)
	if err != nil {
		respondErr(w, r, err, "Failed to get podcast status")
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// GetPlayback handles GET /v1/podcasts/{id}/playback?variant=
func (h *Handler) GetPlayback(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "podcast")
	if !ok {
		return
	}
	p, err := h.orchestrator.Podcast(r.Context(), userFrom(r.Context()), id)
	if err != nil {
		respondErr(w, r, err, "Failed to get podcast")
		return
	}

	variant := r.URL.Query().Get("variant")
	if variant == "" {
		respondJSON(w, http.StatusOK, playback.Resolve(p))
		return
	}
	src, ok := playback.Select(p, variant)
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("No %s audio for this podcast", variant))
		return
	}
	respondJSON(w, http.StatusOK, src)
}

// StreamPodcastAudio handles GET /v1/podcasts/{id}/audio?variant=
func (h *Handler) StreamPodcastAudio(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "podcast")
	if !ok {
		return
	}
	rc, p, src, err := h.orchestrator.OpenAudio(r.Context(), userFrom(r.Context()), id, r.URL.Query().Get("variant"))
	if err != nil {
		respondErr(w, r, err, "Failed to open audio")
		return
	}
	if rc == nil {
		http.Redirect(w, r, src.Ref.URL, http.StatusFound)
		return
	}
	defer rc.Close()

	format := strings.TrimPrefix(path.Ext(src.Ref.Key), ".")
	if format == "" {
		format = p.AudioFormat
	}
	serveAudio(w, r, rc, path.Base(src.Ref.Key), services.ContentTypeFor(format), p.UpdatedAt)
}

// ConvertPodcast handles POST /v1/podcasts/{id}/conversion
func (h *Handler) ConvertPodcast(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "podcast")
	if !ok {
		return
	}
	var req models.ConvertPodcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.VoiceID == uuid.Nil {
		respondError(w, http.StatusBadRequest, "voice_id is required")
		return
	}

	p, err := h.orchestrator.RequestConversion(r.Context(), userFrom(r.Context()), id, req.VoiceID)
	if err != nil {
		respondErr(w, r, err, "Failed to start conversion")
		return
	}
	respondJSON(w, http.StatusAccepted, withPlayback(p))
}

// serveAudio streams rc. Range requests are answered by http.ServeContent,
// which needs a seeker. Local files, bucket objects and database chunks all
// seek; only plain HTTP bodies are buffered.
func serveAudio(w http.ResponseWriter, r *http.Request, rc io.Reader, name, contentType string, modified time.Time) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", name))
	w.Header().Set("Accept-Ranges", "bytes")

	if r.Header.Get("Range") == "" {
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, rc); err != nil {
			log.Warnf("[API] Streaming %s to %s stopped: %v", name, r.RemoteAddr, err)
		}
		return
	}

	rs, ok := rc.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(rc)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to read audio")
			return
		}
		rs = bytes.NewReader(data)
	}
	http.ServeContent(w, r, name, modified, rs)
}
