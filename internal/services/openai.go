package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/bobarin/docucast/internal/apperr"
	"github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"
)

// OpenAIService covers the OpenAI features used here: speech synthesis,
// summaries and Whisper-based duration probing of voice samples.
type OpenAIService struct {
	client    *openai.Client
	apiKey    string
	ttsModel  string
	chatModel string
}

var (
	_ TTSProvider   = (*OpenAIService)(nil)
	_ Summarizer    = (*OpenAIService)(nil)
	_ DurationProbe = (*OpenAIService)(nil)
)

func NewOpenAIService(apiKey, ttsModel, chatModel string) *OpenAIService {
	return NewOpenAIServiceWithConfig(openai.DefaultConfig(apiKey), apiKey, ttsModel, chatModel)
}

// NewOpenAIServiceWithConfig allows a custom base URL (tests, proxies).
func NewOpenAIServiceWithConfig(cfg openai.ClientConfig, apiKey, ttsModel, chatModel string) *OpenAIService {
	if ttsModel == "" {
		ttsModel = string(openai.TTSModel1)
	}
	if chatModel == "" {
		chatModel = openai.GPT4oMini
	}
	return &OpenAIService{
		client:    openai.NewClientWithConfig(cfg),
		apiKey:    apiKey,
		ttsModel:  ttsModel,
		chatModel: chatModel,
	}
}

func (s *OpenAIService) Name() string { return ProviderOpenAI }

func (s *OpenAIService) Configured() bool { return s.apiKey != "" }

// ListVoices returns the fixed OpenAI voice set; the API has no listing endpoint.
func (s *OpenAIService) ListVoices(ctx context.Context, languageCode string) ([]Voice, error) {
	if !s.Configured() {
		return nil, notConfigured(ProviderOpenAI)
	}
	return CatalogueVoices(ProviderOpenAI, languageCode), nil
}

func (s *OpenAIService) Synthesize(ctx context.Context, text, voiceID, languageCode string) (*SynthesisResult, error) {
	if !s.Configured() {
		return nil, notConfigured(ProviderOpenAI)
	}
	if voiceID == "" {
		voiceID = string(openai.VoiceAlloy)
	}

	log.Printf("[OpenAI TTS] Generating speech (voice=%s, model=%s, textLen=%d)", voiceID, s.ttsModel, len(text))

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.ttsModel),
		Input:          text,
		Voice:          openai.SpeechVoice(voiceID),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, requestFailed(ProviderOpenAI, err)
	}
	if len(audio) == 0 {
		return nil, requestFailed(ProviderOpenAI, fmt.Errorf("empty audio"))
	}

	return &SynthesisResult{
		Audio:       audio,
		DurationMs:  estimateAudioDuration(text, 1.0),
		Format:      "mp3",
		ContentType: ContentTypeFor("mp3"),
	}, nil
}

func (s *OpenAIService) Summarize(ctx context.Context, text, style string) (string, error) {
	if !s.Configured() {
		return "", notConfigured(ProviderOpenAI)
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: summaryInstructions(style),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: text,
			},
		},
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", requestFailed(ProviderOpenAI, fmt.Errorf("no choices in response"))
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", requestFailed(ProviderOpenAI, fmt.Errorf("empty summary"))
	}
	return content, nil
}

// Duration asks Whisper for the length of an audio sample in seconds.
func (s *OpenAIService) Duration(ctx context.Context, fileName string, data []byte) (float64, error) {
	if !s.Configured() {
		return 0, notConfigured(ProviderOpenAI)
	}

	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		Reader:   bytes.NewReader(data),
		FilePath: fileName, // Filename hint for the API (required by the library)
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return 0, classifyOpenAIError(err)
	}

	log.Printf("[Whisper] Probed %s: %.1fs", fileName, resp.Duration)
	return resp.Duration, nil
}

// classifyOpenAIError maps go-openai errors onto provider error kinds.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		body := apiErr.Message
		if apiErr.Type != "" {
			body = apiErr.Type + ": " + body
		}
		return classifyStatus(ProviderOpenAI, apiErr.HTTPStatusCode, []byte(body))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(ProviderOpenAI, reqErr.HTTPStatusCode, []byte(reqErr.Error()))
	}
	if apperr.KindOf(err) != apperr.KindInternal {
		return err
	}
	return requestFailed(ProviderOpenAI, err)
}
