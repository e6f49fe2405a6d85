package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/bobarin/docucast/internal/apperr"
	log "github.com/sirupsen/logrus"
)

// ---------------------------------------------------------------------------
// ElevenLabs Text-to-Speech and Instant Voice Cloning
// Uses the ElevenLabs REST API for premade voices, cloned voices and the
// clone lifecycle (add, details, delete).
// ---------------------------------------------------------------------------

const (
	elevenLabsDefaultModel = "eleven_multilingual_v2"
	elevenLabsDefaultVoice = "pNInz6obpgDQGcFmaJgB" // Adam
	elevenLabsOutputFormat = "mp3_44100_128"        // High-quality MP3

	MaxCloneSamples = 25
)

// ElevenLabsService handles text-to-speech and cloning via the ElevenLabs API.
type ElevenLabsService struct {
	apiKey  string
	baseURL string
	modelID string
	client  *http.Client
}

// Ensure ElevenLabsService implements both contracts at compile time.
var (
	_ TTSProvider = (*ElevenLabsService)(nil)
	_ VoiceCloner = (*ElevenLabsService)(nil)
)

// NewElevenLabsService creates a new ElevenLabs service. Empty baseURL and
// modelID select the public API and the default model.
func NewElevenLabsService(apiKey, baseURL, modelID string) *ElevenLabsService {
	if baseURL == "" {
		baseURL = "https://api.elevenlabs.io"
	}
	if modelID == "" {
		modelID = elevenLabsDefaultModel
	}
	return &ElevenLabsService{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		modelID: modelID,
		client:  &http.Client{Timeout: 90 * time.Second},
	}
}

func (s *ElevenLabsService) Name() string { return ProviderElevenLabs }

func (s *ElevenLabsService) Configured() bool { return s.apiKey != "" }

// ---------------------------------------------------------------------------
// Request types
// ---------------------------------------------------------------------------

type elevenLabsRequest struct {
	Text          string                   `json:"text"`
	ModelID       string                   `json:"model_id"`
	VoiceSettings *elevenLabsVoiceSettings `json:"voice_settings,omitempty"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

func (s *ElevenLabsService) ListVoices(ctx context.Context, languageCode string) ([]Voice, error) {
	if !s.Configured() {
		return nil, notConfigured(ProviderElevenLabs)
	}

	body, err := s.do(ctx, "GET", "/v1/voices", "", nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Voices []elevenLabsVoice `json:"voices"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, requestFailed(ProviderElevenLabs, fmt.Errorf("failed to parse voices: %w", err))
	}

	voices := make([]Voice, 0, len(resp.Voices))
	for _, v := range resp.Voices {
		quality := "premium"
		if v.Category == "cloned" {
			quality = "custom"
		}
		voices = append(voices, Voice{
			ID:          v.VoiceID,
			DisplayName: v.Name,
			Language:    languageCode,
			Gender:      strings.ToUpper(v.Labels["gender"]),
			Quality:     quality,
			Provider:    ProviderElevenLabs,
		})
	}
	return voices, nil
}

// Synthesize converts text to speech with a premade or cloned voice. languageCode
// is ignored; the multilingual model detects the language.
func (s *ElevenLabsService) Synthesize(ctx context.Context, text, voiceID, languageCode string) (*SynthesisResult, error) {
	if voiceID == "" {
		voiceID = elevenLabsDefaultVoice
	}
	return s.SynthesizeWithVoice(ctx, text, voiceID)
}

func (s *ElevenLabsService) SynthesizeWithVoice(ctx context.Context, text, voiceID string) (*SynthesisResult, error) {
	if !s.Configured() {
		return nil, notConfigured(ProviderElevenLabs)
	}

	reqBody := elevenLabsRequest{
		Text:    text,
		ModelID: s.modelID,
		VoiceSettings: &elevenLabsVoiceSettings{
			Stability:       0.50,
			SimilarityBoost: 0.75,
			UseSpeakerBoost: true,
		},
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ElevenLabs request: %w", err)
	}

	log.Printf("[ElevenLabs] Generating speech (voiceID=%s, model=%s, textLen=%d)", voiceID, s.modelID, len(text))

	path := fmt.Sprintf("/v1/text-to-speech/%s?output_format=%s", voiceID, elevenLabsOutputFormat)
	audioData, err := s.do(ctx, "POST", path, "application/json", bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	if len(audioData) == 0 {
		return nil, requestFailed(ProviderElevenLabs, fmt.Errorf("empty audio"))
	}

	// The endpoint does not report duration
	durationMs := estimateAudioDuration(text, 1.0)

	log.Printf("[ElevenLabs] Speech generated (%d bytes, estimated %dms)", len(audioData), durationMs)

	return &SynthesisResult{
		Audio:       audioData,
		DurationMs:  durationMs,
		Format:      "mp3",
		ContentType: ContentTypeFor("mp3"),
	}, nil
}

// Clone creates an instant voice clone from 1..25 samples and returns its voice id.
func (s *ElevenLabsService) Clone(ctx context.Context, name, description string, samples []Sample) (string, error) {
	if !s.Configured() {
		return "", notConfigured(ProviderElevenLabs)
	}
	if len(samples) == 0 || len(samples) > MaxCloneSamples {
		return "", apperr.Validation("clone needs 1 to %d samples, got %d", MaxCloneSamples, len(samples))
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("name", name)
	if description != "" {
		_ = mw.WriteField("description", description)
	}
	for _, sample := range samples {
		fw, err := mw.CreateFormFile("files", sample.FileName)
		if err != nil {
			return "", fmt.Errorf("failed to add sample %s: %w", sample.FileName, err)
		}
		if _, err := fw.Write(sample.Data); err != nil {
			return "", fmt.Errorf("failed to add sample %s: %w", sample.FileName, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to finish clone form: %w", err)
	}

	log.Printf("[ElevenLabs] Cloning voice %q from %d sample(s)", name, len(samples))

	body, err := s.do(ctx, "POST", "/v1/voices/add", mw.FormDataContentType(), &buf)
	if err != nil {
		return "", err
	}

	var resp struct {
		VoiceID string `json:"voice_id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.VoiceID == "" {
		return "", requestFailed(ProviderElevenLabs, fmt.Errorf("clone response has no voice_id: %s", truncate(string(body), 200)))
	}
	return resp.VoiceID, nil
}

func (s *ElevenLabsService) DeleteVoice(ctx context.Context, voiceID string) error {
	if !s.Configured() {
		return notConfigured(ProviderElevenLabs)
	}
	_, err := s.do(ctx, "DELETE", "/v1/voices/"+voiceID, "", nil)
	return err
}

func (s *ElevenLabsService) GetVoiceDetails(ctx context.Context, voiceID string) (map[string]interface{}, error) {
	if !s.Configured() {
		return nil, notConfigured(ProviderElevenLabs)
	}
	body, err := s.do(ctx, "GET", "/v1/voices/"+voiceID, "", nil)
	if err != nil {
		return nil, err
	}
	var details map[string]interface{}
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, requestFailed(ProviderElevenLabs, fmt.Errorf("failed to parse voice details: %w", err))
	}
	return details, nil
}

func (s *ElevenLabsService) do(ctx context.Context, method, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create ElevenLabs request: %w", err)
	}
	req.Header.Set("xi-api-key", s.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, requestFailed(ProviderElevenLabs, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, requestFailed(ProviderElevenLabs, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus(ProviderElevenLabs, resp.StatusCode, respBody)
	}
	return respBody, nil
}
