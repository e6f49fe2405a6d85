package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// Default Cartesia API version
	CartesiaAPIVersion = "2024-06-10"

	cartesiaDefaultVoice = "a0e99841-438c-4a64-b679-ae501e7d6091"
)

type CartesiaService struct {
	apiKey         string
	apiURL         string
	apiVersion     string
	defaultVoiceID string
	client         *http.Client
}

// Ensure CartesiaService implements TTSProvider at compile time.
var _ TTSProvider = (*CartesiaService)(nil)

// NewCartesiaService creates a Cartesia provider. An empty voiceID selects the default voice.
func NewCartesiaService(apiKey, apiURL, voiceID string) *CartesiaService {
	if voiceID == "" {
		voiceID = cartesiaDefaultVoice
	}
	return &CartesiaService{
		apiKey:         apiKey,
		apiURL:         strings.TrimRight(apiURL, "/"),
		apiVersion:     CartesiaAPIVersion,
		defaultVoiceID: voiceID,
		client:         &http.Client{Timeout: 60 * time.Second},
	}
}

func (s *CartesiaService) Name() string { return ProviderCartesia }

func (s *CartesiaService) Configured() bool { return s.apiKey != "" }

// CartesiaRequest matches the Cartesia /tts/bytes request body
type CartesiaRequest struct {
	ModelID      string                 `json:"model_id"`
	Transcript   string                 `json:"transcript"`
	Voice        CartesiaVoiceSpecifier `json:"voice"`
	Language     *string                `json:"language,omitempty"`
	OutputFormat CartesiaOutputFormat   `json:"output_format"`
}

type CartesiaVoiceSpecifier struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type CartesiaOutputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding,omitempty"`
	SampleRate int    `json:"sample_rate"`
	BitRate    int    `json:"bit_rate,omitempty"`
}

// ListVoices fetches the account's voices. Cartesia voices carry a bare
// language ("en"), so the filter compares against the first part of languageCode.
func (s *CartesiaService) ListVoices(ctx context.Context, languageCode string) ([]Voice, error) {
	if !s.Configured() {
		return nil, notConfigured(ProviderCartesia)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", s.apiURL+"/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	s.setHeaders(req)

	body, err := s.send(req)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Language string `json:"language"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, requestFailed(ProviderCartesia, fmt.Errorf("failed to parse voices: %w", err))
	}

	want := strings.SplitN(languageCode, "-", 2)[0]
	voices := make([]Voice, 0, len(raw))
	for _, v := range raw {
		if want != "" && v.Language != "" && v.Language != want {
			continue
		}
		voices = append(voices, Voice{
			ID:          v.ID,
			DisplayName: v.Name,
			Language:    languageCode,
			Gender:      "NEUTRAL",
			Quality:     "high",
			Provider:    ProviderCartesia,
		})
	}
	return voices, nil
}

// Synthesize generates audio from text using Cartesia TTS.
func (s *CartesiaService) Synthesize(ctx context.Context, text, voiceID, languageCode string) (*SynthesisResult, error) {
	if !s.Configured() {
		return nil, notConfigured(ProviderCartesia)
	}
	if voiceID == "" {
		voiceID = s.defaultVoiceID
	}
	lang := strings.SplitN(languageCode, "-", 2)[0]
	if lang == "" {
		lang = "en"
	}

	reqBody := CartesiaRequest{
		ModelID:    "sonic-multilingual",
		Transcript: text,
		Voice: CartesiaVoiceSpecifier{
			Mode: "id",
			ID:   voiceID,
		},
		Language: &lang,
		OutputFormat: CartesiaOutputFormat{
			Container:  "mp3",
			SampleRate: 44100,
			BitRate:    192000,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.apiURL+"/tts/bytes", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	s.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	audioData, err := s.send(req)
	if err != nil {
		return nil, err
	}

	return &SynthesisResult{
		Audio:       audioData,
		DurationMs:  estimateAudioDuration(text, 1.0),
		Format:      "mp3",
		ContentType: ContentTypeFor("mp3"),
	}, nil
}

func (s *CartesiaService) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Cartesia-Version", s.apiVersion)
}

func (s *CartesiaService) send(req *http.Request) ([]byte, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, requestFailed(ProviderCartesia, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, requestFailed(ProviderCartesia, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(ProviderCartesia, resp.StatusCode, body)
	}
	return body, nil
}
