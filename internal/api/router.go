package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig holds settings for the API router.
type RouterConfig struct {
	// BackendAPIKey is the key that must be provided in X-API-Key or Authorization: Bearer <key>.
	// If empty, auth middleware is skipped (development mode).
	BackendAPIKey string

	// CorsAllowedOrigins is a comma-separated list of allowed origins.
	// If empty, defaults to "*" (development mode).
	CorsAllowedOrigins string

	// UploadsDir and PublicPath serve the local storage backend. Empty disables it.
	UploadsDir string
	PublicPath string
}

func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	allowedOrigins := []string{"*"}
	if cfg.CorsAllowedOrigins != "" {
		origins := strings.Split(cfg.CorsAllowedOrigins, ",")
		trimmed := make([]string, 0, len(origins))
		for _, o := range origins {
			if s := strings.TrimSpace(o); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			allowedOrigins = trimmed
		}
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Range", "X-API-Key", UserHeader},
		ExposedHeaders:   []string{"Accept-Ranges", "Content-Length", "Content-Range"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check, public
	r.Get("/health", h.Health)

	// Files written by the local storage backend
	if cfg.UploadsDir != "" && cfg.PublicPath != "" {
		prefix := "/" + strings.Trim(cfg.PublicPath, "/")
		r.Handle(prefix+"/*", http.StripPrefix(prefix+"/", http.FileServer(http.Dir(cfg.UploadsDir))))
	}

	r.Route("/v1", func(r chi.Router) {
		if cfg.BackendAPIKey != "" {
			r.Use(APIKeyAuth(cfg.BackendAPIKey))
		}

		// Provider voices and the voice service proxy need no user
		r.Get("/voices/available", h.ListAvailableVoices)
		r.Get("/voice-service/health", h.VoiceServiceHealth)

		r.Group(func(r chi.Router) {
			r.Use(RequireUser)

			r.Get("/voice-service/training-progress/{voiceId}", h.TrainingProgress)

			// Documents
			r.Post("/documents", h.UploadDocument)
			r.Get("/documents", h.ListDocuments)
			r.Get("/documents/{id}", h.GetDocument)
			r.Delete("/documents/{id}", h.DeleteDocument)
			r.Post("/documents/{id}/summaries", h.CreateSummary)
			r.Get("/documents/{id}/summaries", h.ListSummaries)

			// Podcasts
			r.Post("/podcasts", h.CreatePodcast)
			r.Get("/podcasts", h.ListPodcasts)
			r.Get("/podcasts/{id}", h.GetPodcast)
			r.Delete("/podcasts/{id}", h.DeletePodcast)
			r.Get("/podcasts/{id}/status", h.GetPodcastStatus)
			r.Get("/podcasts/{id}/playback", h.GetPlayback)
			r.Get("/podcasts/{id}/audio", h.StreamPodcastAudio)
			r.Post("/podcasts/{id}/conversion", h.ConvertPodcast)

			// Custom voices
			r.Post("/custom-voices", h.UploadCustomVoice)
			r.Post("/custom-voices/clone", h.CloneVoice)
			r.Get("/custom-voices", h.ListCustomVoices)
			r.Get("/custom-voices/{id}", h.GetCustomVoice)
			r.Put("/custom-voices/{id}", h.UpdateCustomVoice)
			r.Delete("/custom-voices/{id}", h.DeleteCustomVoice)
			r.Get("/custom-voices/{id}/audio", h.StreamVoiceSample)
			r.Post("/custom-voices/{id}/train", h.TrainCustomVoice)
			r.Get("/custom-voices/{id}/details", h.GetVoiceDetails)
			r.Post("/custom-voices/{id}/speech", h.SpeakWithVoice)
		})
	})

	return r
}
