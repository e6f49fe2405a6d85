package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

// ---------------------------------------------------------------------------
// Gemini summaries
// Uses the Gemini API through the genai SDK.
// ---------------------------------------------------------------------------

const geminiProvider = "gemini"

type GeminiService struct {
	apiKey string
	model  string
}

var _ Summarizer = (*GeminiService)(nil)

func NewGeminiService(apiKey, model string) *GeminiService {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiService{apiKey: apiKey, model: model}
}

func (s *GeminiService) Name() string { return geminiProvider }

func (s *GeminiService) Configured() bool { return s.apiKey != "" }

func (s *GeminiService) Summarize(ctx context.Context, text, style string) (string, error) {
	if !s.Configured() {
		return "", notConfigured(geminiProvider)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create genai client: %w", err)
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(summaryInstructions(style), genai.RoleUser),
	}

	log.Printf("[Gemini] Summarizing (model=%s, style=%s, textLen=%d)", s.model, style, len(text))

	resp, err := client.Models.GenerateContent(ctx, s.model, genai.Text(text), config)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", classifyStatus(geminiProvider, apiErr.Code, []byte(apiErr.Status+": "+apiErr.Message))
		}
		return "", requestFailed(geminiProvider, err)
	}

	content := strings.TrimSpace(resp.Text())
	if content == "" {
		return "", requestFailed(geminiProvider, fmt.Errorf("empty summary"))
	}
	return content, nil
}
