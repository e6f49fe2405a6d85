package services

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/bobarin/docucast/internal/apperr"
)

// ---------------------------------------------------------------------------
// Provider contracts
// Every vendor integration normalizes its voices and audio to these types so
// the registry and the pipeline never see a vendor wire format.
// ---------------------------------------------------------------------------

// Provider names.
const (
	ProviderGoogle     = "google"
	ProviderElevenLabs = "elevenlabs"
	ProviderOpenAI     = "openai"
	ProviderCartesia   = "cartesia"
	ProviderBrowser    = "browser"
)

// Voice is a selectable speaker.
type Voice struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
	Language    string `json:"language"`
	Gender      string `json:"gender"`
	Quality     string `json:"quality"` // "standard", "high", "premium"
	Provider    string `json:"provider"`
}

// SynthesisResult is the common response type from any speech backend.
type SynthesisResult struct {
	Audio       []byte
	DurationMs  int
	Format      string // "mp3", "wav", etc.
	ContentType string
}

// Sample is an uploaded audio file handed to a cloning or conversion backend.
type Sample struct {
	FileName string
	Data     []byte
}

// TTSProvider is the interface that any TTS provider must implement.
type TTSProvider interface {
	Name() string
	// Configured reports whether credentials are present. An unconfigured
	// provider answers every call with a ProviderUnavailable error.
	Configured() bool
	ListVoices(ctx context.Context, languageCode string) ([]Voice, error)
	Synthesize(ctx context.Context, text, voiceID, languageCode string) (*SynthesisResult, error)
}

// VoiceCloner creates provider-hosted voices from samples and speaks with them.
type VoiceCloner interface {
	Configured() bool
	Clone(ctx context.Context, name, description string, samples []Sample) (string, error)
	SynthesizeWithVoice(ctx context.Context, text, externalVoiceID string) (*SynthesisResult, error)
	DeleteVoice(ctx context.Context, externalVoiceID string) error
	GetVoiceDetails(ctx context.Context, externalVoiceID string) (map[string]interface{}, error)
}

// VoiceConverter re-renders existing audio in a trained voice.
type VoiceConverter interface {
	Health(ctx context.Context) (map[string]interface{}, error)
	Train(ctx context.Context, modelID, name string, sample Sample) error
	Convert(ctx context.Context, modelID string, audio Sample) (*SynthesisResult, error)
	TrainingProgress(ctx context.Context, modelID string) (map[string]interface{}, error)
	DeleteModel(ctx context.Context, modelID string) error
}

// notConfigured is returned by providers without credentials.
func notConfigured(provider string) error {
	return apperr.New(apperr.KindProviderUnavailable, "%s is not configured", provider)
}

// classifyStatus turns a non-2xx vendor response into a provider error. Auth,
// quota and billing rejections mean the provider is unavailable to us; any
// other status is a failure of this request.
func classifyStatus(provider string, status int, body []byte) error {
	msg := truncate(strings.TrimSpace(string(body)), 300)
	if isUnavailable(status, msg) {
		return apperr.New(apperr.KindProviderUnavailable, "%s returned status %d: %s", provider, status, msg)
	}
	return apperr.New(apperr.KindProviderFailure, "%s returned status %d: %s", provider, status, msg)
}

func isUnavailable(status int, body string) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusPaymentRequired, http.StatusForbidden:
		return true
	}
	lower := strings.ToLower(body)
	return strings.Contains(body, "PERMISSION_DENIED") || strings.Contains(lower, "billing")
}

// requestFailed wraps a transport error.
func requestFailed(provider string, err error) error {
	return apperr.Wrap(apperr.KindProviderFailure, err, "%s request failed", provider)
}

// EstimateDuration is the narration length of text at normal speed, in ms.
func EstimateDuration(text string) int {
	return estimateAudioDuration(text, 1.0)
}

// estimateAudioDuration estimates duration based on text length and speed
// Average speaking rate is ~140 words per minute at normal speed (narration pace, not conversational)
func estimateAudioDuration(text string, speed float64) int {
	if speed <= 0 {
		speed = 1.0
	}
	words := len(bytes.Fields([]byte(text)))
	actualWPM := 140.0 * speed

	minutes := float64(words) / actualWPM
	return int(minutes * 60 * 1000)
}

func ContentTypeFor(format string) string {
	switch format {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "ogg":
		return "audio/ogg"
	case "m4a":
		return "audio/mp4"
	}
	return fmt.Sprintf("audio/%s", format)
}

// truncate limits a string to maxLen characters for log output
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
