package services

import (
	"context"
	"sync"
	"testing"

	"github.com/bobarin/docucast/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name       string
	configured bool
	voices     []Voice
	listErr    error
	synthErr   error

	mu        sync.Mutex
	calls     int
	lastVoice string
	lists     int
}

func (f *fakeProvider) Name() string     { return f.name }
func (f *fakeProvider) Configured() bool { return f.configured }

func (f *fakeProvider) ListVoices(ctx context.Context, languageCode string) ([]Voice, error) {
	f.mu.Lock()
	f.lists++
	f.mu.Unlock()
	return f.voices, f.listErr
}

func (f *fakeProvider) Synthesize(ctx context.Context, text, voiceID, languageCode string) (*SynthesisResult, error) {
	f.mu.Lock()
	f.calls++
	f.lastVoice = voiceID
	f.mu.Unlock()
	if f.synthErr != nil {
		return nil, f.synthErr
	}
	return &SynthesisResult{Audio: []byte(f.name), Format: "mp3", ContentType: "audio/mpeg"}, nil
}

func unavailable(name string) error {
	return apperr.New(apperr.KindProviderUnavailable, "%s returned status 401", name)
}

func TestSynthesizeRequestedProvider(t *testing.T) {
	google := &fakeProvider{name: ProviderGoogle, configured: true}
	r := NewRegistry([]string{ProviderGoogle}, 2, google)

	s, err := r.Synthesize(context.Background(), ProviderGoogle, "en-US-Studio-O", "hello", "en-US")
	require.NoError(t, err)
	assert.Equal(t, ProviderGoogle, s.Provider)
	assert.Equal(t, "en-US-Studio-O", s.VoiceID)
	assert.False(t, s.Fallback)
	assert.False(t, s.Browser)
	assert.Equal(t, []byte(ProviderGoogle), s.Result.Audio)
}

func TestSynthesizeFillsDefaultVoice(t *testing.T) {
	openai := &fakeProvider{name: ProviderOpenAI, configured: true}
	r := NewRegistry(nil, 1, openai)

	s, err := r.Synthesize(context.Background(), ProviderOpenAI, "", "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "alloy", s.VoiceID)
	assert.Equal(t, "alloy", openai.lastVoice)
}

func TestSynthesizeFallsBackInOrder(t *testing.T) {
	google := &fakeProvider{name: ProviderGoogle, configured: true, synthErr: unavailable("google")}
	eleven := &fakeProvider{name: ProviderElevenLabs, configured: false}
	openai := &fakeProvider{name: ProviderOpenAI, configured: true}
	r := NewRegistry([]string{ProviderGoogle, ProviderElevenLabs, ProviderOpenAI}, 2, google, eleven, openai)

	s, err := r.Synthesize(context.Background(), ProviderGoogle, "en-US-Neural2-C", "hello", "en-US")
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, s.Provider)
	assert.Equal(t, DefaultVoice(ProviderOpenAI, "en-US"), s.VoiceID)
	assert.True(t, s.Fallback)
	assert.Equal(t, 0, eleven.calls)
}

func TestSynthesizeFailureIsTerminal(t *testing.T) {
	google := &fakeProvider{name: ProviderGoogle, configured: true,
		synthErr: apperr.New(apperr.KindProviderFailure, "google returned status 500")}
	openai := &fakeProvider{name: ProviderOpenAI, configured: true}
	r := NewRegistry([]string{ProviderGoogle, ProviderOpenAI}, 2, google, openai)

	_, err := r.Synthesize(context.Background(), ProviderGoogle, "", "hello", "en-US")
	require.Error(t, err)
	assert.Equal(t, apperr.KindProviderFailure, apperr.KindOf(err))
	assert.Equal(t, 0, openai.calls)
}

func TestSynthesizeEndsWithBrowserMarker(t *testing.T) {
	google := &fakeProvider{name: ProviderGoogle, configured: false}
	eleven := &fakeProvider{name: ProviderElevenLabs, configured: true, synthErr: unavailable("elevenlabs")}
	r := NewRegistry([]string{ProviderGoogle, ProviderElevenLabs}, 2, google, eleven)

	s, err := r.Synthesize(context.Background(), ProviderGoogle, "", "hello", "en-US")
	require.NoError(t, err)
	assert.True(t, s.Browser)
	assert.True(t, s.Fallback)
	assert.Equal(t, ProviderBrowser, s.Provider)
	assert.Equal(t, "en-US-Neural2-A", s.VoiceID)
	assert.Nil(t, s.Result)

	s, err = r.Synthesize(context.Background(), ProviderGoogle, "en-GB-Neural2-B", "hello", "en-GB")
	require.NoError(t, err)
	assert.Equal(t, "en-GB-Neural2-B", s.VoiceID)
}

func TestSynthesizeBrowserRequested(t *testing.T) {
	r := NewRegistry(nil, 1)

	s, err := r.Synthesize(context.Background(), ProviderBrowser, "female", "hello", "en-US")
	require.NoError(t, err)
	assert.True(t, s.Browser)
	assert.False(t, s.Fallback)
	assert.Equal(t, "female", s.VoiceID)
}

func TestSynthesizeUnknownProvider(t *testing.T) {
	r := NewRegistry(nil, 1)

	_, err := r.Synthesize(context.Background(), "polly", "", "hello", "en-US")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestListVoicesLiveIsCached(t *testing.T) {
	google := &fakeProvider{name: ProviderGoogle, configured: true,
		voices: []Voice{{ID: "en-US-Chirp3-HD-Achernar", Provider: ProviderGoogle}}}
	r := NewRegistry(nil, 1, google)

	first := r.ListVoices(context.Background(), ProviderGoogle, "en-US")
	second := r.ListVoices(context.Background(), ProviderGoogle, "en-US")

	assert.Equal(t, SourceLive, first.Source)
	assert.Equal(t, 1, first.Count)
	assert.Equal(t, first.Voices, second.Voices)
	assert.Equal(t, 1, google.lists)
}

func TestListVoicesFallsBackToCatalogue(t *testing.T) {
	cases := []struct {
		name     string
		provider *fakeProvider
		reason   string
	}{
		{"unconfigured", &fakeProvider{name: ProviderElevenLabs}, ReasonUnavailable},
		{"unavailable", &fakeProvider{name: ProviderElevenLabs, configured: true, listErr: unavailable("elevenlabs")}, ReasonUnavailable},
		{"failure", &fakeProvider{name: ProviderElevenLabs, configured: true, listErr: apperr.New(apperr.KindProviderFailure, "boom")}, ReasonFailure},
		{"empty", &fakeProvider{name: ProviderElevenLabs, configured: true}, ReasonEmpty},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRegistry(nil, 1, tc.provider)
			l := r.ListVoices(context.Background(), ProviderElevenLabs, "en-US")
			assert.Equal(t, SourceCatalogue, l.Source)
			assert.Equal(t, tc.reason, l.FallbackReason)
			require.NotEmpty(t, l.Voices)
			assert.Equal(t, "pNInz6obpgDQGcFmaJgB", l.Voices[0].ID)
			assert.Equal(t, len(l.Voices), l.Count)
		})
	}
}

func TestListVoicesNeverEmpty(t *testing.T) {
	r := NewRegistry(nil, 1)

	for _, p := range []string{ProviderGoogle, ProviderOpenAI, ProviderCartesia, ProviderBrowser, "unknown"} {
		l := r.ListVoices(context.Background(), p, "fr-FR")
		assert.NotEmpty(t, l.Voices, p)
	}
	assert.Equal(t, SourceBrowser, r.ListVoices(context.Background(), ProviderBrowser, "").Source)
}

func TestFormatVoiceName(t *testing.T) {
	cases := map[string]string{
		"en-US-Neural2-A":          "Neural A",
		"en-GB-Studio-B":           "Studio B",
		"en-US-Wavenet-D":          "Wavenet D",
		"en-US-Standard-C":         "Standard C",
		"en-US-Chirp3-HD-Achernar": "Chirp3 HD Achernar",
		"cmn-CN-Wavenet-A":         "Wavenet A",
		"custom-voice":             "custom voice",
	}
	for id, want := range cases {
		assert.Equal(t, want, FormatVoiceName(id), id)
	}
}
