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
// RVC voice conversion service
// A separate HTTP service that prepares a voice model from a sample and
// converts existing audio into that voice.
// ---------------------------------------------------------------------------

const (
	// Status and progress calls are cheap; conversion of a full episode is not.
	rvcProbeTimeout   = 5 * time.Second
	rvcConvertTimeout = 10 * time.Minute
)

type RVCService struct {
	baseURL string
	client  *http.Client
}

var _ VoiceConverter = (*RVCService)(nil)

func NewRVCService(baseURL string) *RVCService {
	return &RVCService{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: rvcConvertTimeout},
	}
}

func (s *RVCService) Health(ctx context.Context) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, rvcProbeTimeout)
	defer cancel()
	return s.getJSON(ctx, "/health")
}

func (s *RVCService) TrainingProgress(ctx context.Context, modelID string) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, rvcProbeTimeout)
	defer cancel()
	return s.getJSON(ctx, "/training-progress/"+modelID)
}

// Train uploads the sample and waits for the service to report the model ready.
func (s *RVCService) Train(ctx context.Context, modelID, name string, sample Sample) error {
	body, contentType, err := rvcForm(sample, map[string]string{
		"voice_id":   modelID,
		"voice_name": name,
	})
	if err != nil {
		return err
	}

	log.Printf("[RVC] Training model %s (%d bytes)", modelID, len(sample.Data))

	respBody, err := s.post(ctx, "/train", contentType, body)
	if err != nil {
		return err
	}

	var result struct {
		Success bool   `json:"success"`
		Status  string `json:"status"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return apperr.Wrap(apperr.KindProviderFailure, err, "rvc returned an unreadable training response")
	}
	if !result.Success {
		return apperr.New(apperr.KindProviderFailure, "rvc training failed: %s", result.Error)
	}
	return nil
}

// Convert re-renders audio in the model's voice. The service answers with WAV.
func (s *RVCService) Convert(ctx context.Context, modelID string, audio Sample) (*SynthesisResult, error) {
	body, contentType, err := rvcForm(audio, map[string]string{"model_id": modelID})
	if err != nil {
		return nil, err
	}

	log.Printf("[RVC] Converting %d bytes with model %s", len(audio.Data), modelID)

	converted, err := s.post(ctx, "/convert", contentType, body)
	if err != nil {
		return nil, err
	}
	if len(converted) == 0 {
		return nil, apperr.New(apperr.KindProviderFailure, "rvc returned empty audio")
	}

	return &SynthesisResult{
		Audio:       converted,
		Format:      "wav",
		ContentType: ContentTypeFor("wav"),
	}, nil
}

func (s *RVCService) DeleteModel(ctx context.Context, modelID string) error {
	req, err := http.NewRequestWithContext(ctx, "DELETE", s.baseURL+"/models/"+modelID, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return unreachable(err)
	}
	defer resp.Body.Close()

	// 404 means the model is already gone
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		b, _ := io.ReadAll(resp.Body)
		return apperr.New(apperr.KindProviderFailure, "rvc delete returned status %d: %s", resp.StatusCode, truncate(string(b), 200))
	}
	return nil
}

func (s *RVCService) getJSON(ctx context.Context, path string) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", s.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, unreachable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.New(apperr.KindServiceUnavailable, "voice service returned status %d", resp.StatusCode)
	}
	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperr.Wrap(apperr.KindServiceUnavailable, err, "voice service returned an unreadable response")
	}
	return out, nil
}

func (s *RVCService) post(ctx context.Context, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, unreachable(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProviderFailure, err, "failed to read rvc response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.New(apperr.KindProviderFailure, "rvc %s returned status %d: %s", path, resp.StatusCode, truncate(string(respBody), 200))
	}
	return respBody, nil
}

func rvcForm(sample Sample, fields map[string]string) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}
	fw, err := mw.CreateFormFile("audio", sample.FileName)
	if err != nil {
		return nil, "", fmt.Errorf("failed to add audio: %w", err)
	}
	if _, err := fw.Write(sample.Data); err != nil {
		return nil, "", fmt.Errorf("failed to add audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish form: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

func unreachable(err error) error {
	return apperr.Wrap(apperr.KindServiceUnavailable, err, "service unavailable")
}
