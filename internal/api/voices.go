package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bobarin/docucast/internal/models"
	"github.com/bobarin/docucast/internal/services"
	"github.com/bobarin/docucast/internal/voices"
)

// ListAvailableVoices handles GET /v1/voices/available?provider=&languageCode=
func (h *Handler) ListAvailableVoices(w http.ResponseWriter, r *http.Request) {
	provider := strings.ToLower(r.URL.Query().Get("provider"))
	if provider == "" {
		provider = services.ProviderGoogle
	}
	if !h.tts.Known(provider) {
		respondError(w, http.StatusBadRequest, "Unknown provider "+strconv.Quote(provider))
		return
	}
	language := r.URL.Query().Get("languageCode")
	if language == "" {
		language = "en-US"
	}
	respondJSON(w, http.StatusOK, h.tts.ListVoices(r.Context(), provider, language))
}

// UploadCustomVoice handles POST /v1/custom-voices (multipart field "voiceAudio")
func (h *Handler) UploadCustomVoice(w http.ResponseWriter, r *http.Request) {
	name, contentType, data, ok := readUpload(w, r, "voiceAudio", voices.MaxSampleSize, "voice sample exceeds the 50MB limit")
	if !ok {
		return
	}

	v, err := h.voices.Upload(r.Context(), voices.SampleUpload{
		UserID:      userFrom(r.Context()),
		FileName:    name,
		ContentType: contentType,
		Data:        data,
		Name:        r.FormValue("name"),
		Description: r.FormValue("description"),
		Gender:      r.FormValue("gender"),
		Language:    r.FormValue("language"),
		Accent:      r.FormValue("accent"),
		Tags:        splitTags(r.FormValue("tags")),
	})
	if err != nil {
		respondErr(w, r, err, "Failed to upload voice sample")
		return
	}
	respondJSON(w, http.StatusCreated, v)
}

func splitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

// CloneVoice handles POST /v1/custom-voices/clone (multipart fields "samples", "name", "description")
func (h *Handler) CloneVoice(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(services.MaxCloneSamples)*voices.MaxCloneSampleSize+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			respondError(w, http.StatusBadRequest, "samples exceed the upload limit")
			return
		}
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	var samples []services.Sample
	for _, fh := range r.MultipartForm.File["samples"] {
		f, err := fh.Open()
		if err != nil {
			respondError(w, http.StatusBadRequest, "Failed to read uploaded file")
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			respondError(w, http.StatusBadRequest, "Failed to read uploaded file")
			return
		}
		samples = append(samples, services.Sample{FileName: fh.Filename, Data: data})
	}

	v, err := h.voices.Clone(r.Context(), voices.CloneRequest{
		UserID:      userFrom(r.Context()),
		Name:        r.FormValue("name"),
		Description: r.FormValue("description"),
		Samples:     samples,
	})
	if err != nil {
		respondErr(w, r, err, "Failed to clone voice")
		return
	}
	respondJSON(w, http.StatusCreated, v)
}

// ListCustomVoices handles GET /v1/custom-voices?ready=
func (h *Handler) ListCustomVoices(w http.ResponseWriter, r *http.Request) {
	readyOnly, _ := strconv.ParseBool(r.URL.Query().Get("ready"))
	list, err := h.voices.List(r.Context(), userFrom(r.Context()), readyOnly)
	if err != nil {
		respondErr(w, r, err, "Failed to list voices")
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// GetCustomVoice handles GET /v1/custom-voices/{id}
func (h *Handler) GetCustomVoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "voice")
	if !ok {
		return
	}
	v, err := h.voices.Get(r.Context(), userFrom(r.Context()), id)
	if err != nil {
		respondErr(w, r, err, "Failed to get voice")
		return
	}
	respondJSON(w, http.StatusOK, v)
}

// UpdateCustomVoice handles PUT /v1/custom-voices/{id}
func (h *Handler) UpdateCustomVoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "voice")
	if !ok {
		return
	}
	var upd models.VoiceUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	v, err := h.voices.Update(r.Context(), userFrom(r.Context()), id, upd)
	if err != nil {
		respondErr(w, r, err, "Failed to update voice")
		return
	}
	respondJSON(w, http.StatusOK, v)
}

// DeleteCustomVoice handles DELETE /v1/custom-voices/{id}
func (h *Handler) DeleteCustomVoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "voice")
	if !ok {
		return
	}
	if err := h.voices.Delete(r.Context(), userFrom(r.Context()), id); err != nil {
		respondErr(w, r, err, "Failed to delete voice")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Voice deleted"})
}

// StreamVoiceSample handles GET /v1/custom-voices/{id}/audio
func (h *Handler) StreamVoiceSample(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "voice")
	if !ok {
		return
	}
	rc, v, err := h.voices.OpenSample(r.Context(), userFrom(r.Context()), id)
	if err != nil {
		respondErr(w, r, err, "Failed to open voice sample")
		return
	}
	defer rc.Close()
	serveAudio(w, r, rc, v.SampleFileName, services.ContentTypeFor(v.Format), v.UpdatedAt)
}

// TrainCustomVoice handles POST /v1/custom-voices/{id}/train
func (h *Handler) TrainCustomVoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "voice")
	if !ok {
		return
	}
	v, err := h.orchestrator.TrainVoice(r.Context(), userFrom(r.Context()), id)
	if err != nil {
		respondErr(w, r, err, "Failed to start training")
		return
	}
	respondJSON(w, http.StatusAccepted, v)
}

// GetVoiceDetails handles GET /v1/custom-voices/{id}/details
func (h *Handler) GetVoiceDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "voice")
	if !ok {
		return
	}
	details, err := h.voices.Details(r.Context(), userFrom(r.Context()), id)
	if err != nil {
		respondErr(w, r, err, "Failed to get voice details")
		return
	}
	respondJSON(w, http.StatusOK, details)
}

// SpeakWithVoice handles POST /v1/custom-voices/{id}/speech
func (h *Handler) SpeakWithVoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id", "voice")
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	res, err := h.voices.Speak(r.Context(), userFrom(r.Context()), id, req.Text)
	if err != nil {
		respondErr(w, r, err, "Failed to generate speech")
		return
	}
	format := res.Format
	if format == "" {
		format = "mp3"
	}
	serveAudio(w, r, bytes.NewReader(res.Audio), "speech."+format, services.ContentTypeFor(format), time.Now())
}

// TrainingProgress handles GET /v1/voice-service/training-progress/{voiceId}
func (h *Handler) TrainingProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "voiceId", "voice")
	if !ok {
		return
	}
	v, err := h.voices.Get(r.Context(), userFrom(r.Context()), id)
	if err != nil {
		respondErr(w, r, err, "Failed to get voice")
		return
	}
	progress, err := h.voices.TrainingProgress(r.Context(), v.ID.String())
	if err != nil {
		respondErr(w, r, err, "service unavailable")
		return
	}
	respondJSON(w, http.StatusOK, progress)
}

// VoiceServiceHealth handles GET /v1/voice-service/health
func (h *Handler) VoiceServiceHealth(w http.ResponseWriter, r *http.Request) {
	health, err := h.voices.ServiceHealth(r.Context())
	if err != nil {
		respondErr(w, r, err, "service unavailable")
		return
	}
	respondJSON(w, http.StatusOK, health)
}
