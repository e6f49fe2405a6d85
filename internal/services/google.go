package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ---------------------------------------------------------------------------
// Google Cloud Text-to-Speech
// REST API authenticated either with an API key or with service-account
// credentials (a JSON key file path or inline JSON).
// ---------------------------------------------------------------------------

const (
	googleTTSBaseURL = "https://texttospeech.googleapis.com"
	googleTTSScope   = "https://www.googleapis.com/auth/cloud-platform"

	// Requests above 5000 bytes are rejected; stay clear of the limit.
	googleMaxRequestBytes = 4500
)

type GoogleTTS struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

var _ TTSProvider = (*GoogleTTS)(nil)

// NewGoogleTTS builds the provider. An API key takes precedence; otherwise
// credentialsJSON is read as a file path or inline JSON. With neither, the
// provider is left unconfigured.
func NewGoogleTTS(ctx context.Context, apiKey, credentialsJSON string) (*GoogleTTS, error) {
	g := &GoogleTTS{
		apiKey:  apiKey,
		baseURL: googleTTSBaseURL,
	}

	switch {
	case apiKey != "":
		g.client = &http.Client{Timeout: 60 * time.Second}
	case credentialsJSON != "":
		data := []byte(credentialsJSON)
		if !strings.HasPrefix(strings.TrimSpace(credentialsJSON), "{") {
			fileData, err := os.ReadFile(credentialsJSON)
			if err != nil {
				return nil, fmt.Errorf("failed to read google credentials file: %w", err)
			}
			data = fileData
		}
		creds, err := google.CredentialsFromJSON(ctx, data, googleTTSScope)
		if err != nil {
			return nil, fmt.Errorf("failed to parse google credentials: %w", err)
		}
		g.client = oauth2.NewClient(ctx, creds.TokenSource)
		g.client.Timeout = 60 * time.Second
	}

	return g, nil
}

// WithBaseURL points the provider at another endpoint (tests, regional endpoints).
func (g *GoogleTTS) WithBaseURL(baseURL string) *GoogleTTS {
	g.baseURL = strings.TrimRight(baseURL, "/")
	return g
}

func (g *GoogleTTS) Name() string { return ProviderGoogle }

func (g *GoogleTTS) Configured() bool { return g.client != nil }

type googleVoicesResponse struct {
	Voices []struct {
		LanguageCodes          []string `json:"languageCodes"`
		Name                   string   `json:"name"`
		SSMLGender             string   `json:"ssmlGender"`
		NaturalSampleRateHertz int      `json:"naturalSampleRateHertz"`
	} `json:"voices"`
}

func (g *GoogleTTS) ListVoices(ctx context.Context, languageCode string) ([]Voice, error) {
	if !g.Configured() {
		return nil, notConfigured(ProviderGoogle)
	}

	params := url.Values{}
	if languageCode != "" {
		params.Set("languageCode", languageCode)
	}
	var resp googleVoicesResponse
	if err := g.do(ctx, "GET", "/v1/voices", params, nil, &resp); err != nil {
		return nil, err
	}

	voices := make([]Voice, 0, len(resp.Voices))
	for _, v := range resp.Voices {
		lang := languageCode
		if len(v.LanguageCodes) > 0 {
			lang = v.LanguageCodes[0]
		}
		voices = append(voices, Voice{
			ID:          v.Name,
			DisplayName: FormatVoiceName(v.Name),
			Language:    lang,
			Gender:      v.SSMLGender,
			Quality:     googleQuality(v.Name),
			Provider:    ProviderGoogle,
		})
	}
	return voices, nil
}

type googleSynthesizeRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name,omitempty"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding string `json:"audioEncoding"`
	} `json:"audioConfig"`
}

type googleSynthesizeResponse struct {
	AudioContent []byte `json:"audioContent"` // base64 in JSON
}

// Synthesize splits long text at sentence boundaries and concatenates the MP3 parts.
func (g *GoogleTTS) Synthesize(ctx context.Context, text, voiceID, languageCode string) (*SynthesisResult, error) {
	if !g.Configured() {
		return nil, notConfigured(ProviderGoogle)
	}
	if languageCode == "" {
		languageCode = "en-US"
	}

	chunks := SplitText(text, googleMaxRequestBytes)
	log.Printf("[Google TTS] Synthesizing %d chunk(s) (voice=%s, lang=%s, textLen=%d)", len(chunks), voiceID, languageCode, len(text))

	var audio bytes.Buffer
	for i, chunk := range chunks {
		var req googleSynthesizeRequest
		req.Input.Text = chunk
		req.Voice.LanguageCode = languageCode
		req.Voice.Name = voiceID
		req.AudioConfig.AudioEncoding = "MP3"

		var resp googleSynthesizeResponse
		if err := g.do(ctx, "POST", "/v1/text:synthesize", nil, req, &resp); err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		audio.Write(resp.AudioContent)
	}

	if audio.Len() == 0 {
		return nil, requestFailed(ProviderGoogle, fmt.Errorf("empty audio"))
	}

	return &SynthesisResult{
		Audio:       audio.Bytes(),
		DurationMs:  estimateAudioDuration(text, 1.0),
		Format:      "mp3",
		ContentType: ContentTypeFor("mp3"),
	}, nil
}

func (g *GoogleTTS) do(ctx context.Context, method, path string, params url.Values, body, out interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	if g.apiKey != "" {
		params.Set("key", g.apiKey)
	}
	endpoint := g.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal google request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create google request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return requestFailed(ProviderGoogle, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return requestFailed(ProviderGoogle, err)
	}
	if resp.StatusCode != http.StatusOK {
		return classifyStatus(ProviderGoogle, resp.StatusCode, respBody)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return requestFailed(ProviderGoogle, fmt.Errorf("failed to parse response: %w", err))
	}
	return nil
}

func googleQuality(name string) string {
	switch {
	case strings.Contains(name, "Studio"):
		return "premium"
	case strings.Contains(name, "Neural"), strings.Contains(name, "Wavenet"), strings.Contains(name, "Chirp"):
		return "high"
	}
	return "standard"
}

// SplitText breaks text into pieces of at most maxBytes, preferring sentence
// ends, then word boundaries. A single word longer than maxBytes is cut.
func SplitText(text string, maxBytes int) []string {
	text = strings.TrimSpace(text)
	if len(text) <= maxBytes {
		return []string{text}
	}

	var (
		chunks  []string
		current strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}
	add := func(piece string) {
		if current.Len() > 0 && current.Len()+1+len(piece) > maxBytes {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(piece)
	}

	for _, sentence := range splitSentences(text) {
		if len(sentence) <= maxBytes {
			add(sentence)
			continue
		}
		for _, word := range strings.Fields(sentence) {
			for len(word) > maxBytes {
				flush()
				cut := maxBytes
				for cut > 0 && !utf8RuneStart(word[cut]) {
					cut--
				}
				chunks = append(chunks, word[:cut])
				word = word[cut:]
			}
			add(word)
		}
	}
	flush()
	return chunks
}

func splitSentences(text string) []string {
	var (
		sentences []string
		start     int
	)
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' && c != '\n' {
			continue
		}
		if i+1 < len(text) && text[i+1] != ' ' && text[i+1] != '\n' {
			continue
		}
		if s := strings.TrimSpace(text[start : i+1]); s != "" {
			sentences = append(sentences, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }
