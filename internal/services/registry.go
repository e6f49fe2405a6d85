package services

import (
	"context"
	"time"

	"github.com/bobarin/docucast/internal/apperr"
	gocache "github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Where a voice listing came from.
const (
	SourceLive      = "live"
	SourceCatalogue = "catalogue"
	SourceBrowser   = "browser"
)

// Why a listing fell back to the catalogue.
const (
	ReasonUnavailable = "unavailable"
	ReasonFailure     = "failure"
	ReasonEmpty       = "empty"
)

const (
	voiceCacheTTL     = 10 * time.Minute
	voiceCacheCleanup = 20 * time.Minute
)

// VoiceListing is the answer to a voice list request. Voices is never empty.
type VoiceListing struct {
	Provider       string  `json:"provider"`
	Voices         []Voice `json:"voices"`
	Count          int     `json:"count"`
	Source         string  `json:"source"`
	FallbackReason string  `json:"fallback_reason,omitempty"`
}

// Synthesis is the outcome of a registry synthesis. When Browser is set there
// is no audio: the client speaks the text itself with VoiceID.
type Synthesis struct {
	Provider string
	VoiceID  string
	Result   *SynthesisResult
	Browser  bool
	Fallback bool // a provider other than the requested one answered
}

// Registry selects TTS providers and falls back between them.
type Registry struct {
	providers     map[string]TTSProvider
	fallbackOrder []string
	voices        *gocache.Cache
	calls         *semaphore.Weighted
}

// NewRegistry registers providers by name. fallbackOrder lists the providers
// tried, in order, when the requested one is unavailable. maxCalls bounds
// concurrent synthesis calls across all providers.
func NewRegistry(fallbackOrder []string, maxCalls int, providers ...TTSProvider) *Registry {
	if maxCalls <= 0 {
		maxCalls = 1
	}
	r := &Registry{
		providers:     make(map[string]TTSProvider),
		fallbackOrder: fallbackOrder,
		voices:        gocache.New(voiceCacheTTL, voiceCacheCleanup),
		calls:         semaphore.NewWeighted(int64(maxCalls)),
	}
	for _, p := range providers {
		if p != nil {
			r.providers[p.Name()] = p
		}
	}
	return r
}

// Known reports whether name is a registered provider or the browser marker.
func (r *Registry) Known(name string) bool {
	if name == ProviderBrowser {
		return true
	}
	_, ok := r.providers[name]
	return ok
}

// Configured lists the names of providers that have credentials.
func (r *Registry) Configured() []string {
	var names []string
	for name, p := range r.providers {
		if p.Configured() {
			names = append(names, name)
		}
	}
	return names
}

// ListVoices returns live voices when the provider answers and the static
// catalogue otherwise.
func (r *Registry) ListVoices(ctx context.Context, provider, languageCode string) VoiceListing {
	if languageCode == "" {
		languageCode = "en-US"
	}
	if provider == ProviderBrowser {
		return listing(provider, CatalogueVoices(ProviderBrowser, languageCode), SourceBrowser, "")
	}

	cacheKey := provider + "|" + languageCode
	if cached, ok := r.voices.Get(cacheKey); ok {
		return listing(provider, cached.([]Voice), SourceLive, "")
	}

	p, ok := r.providers[provider]
	if !ok || !p.Configured() {
		log.Infof("[Voices] %s not configured, serving catalogue voices", provider)
		return listing(provider, CatalogueVoices(provider, languageCode), SourceCatalogue, ReasonUnavailable)
	}

	voices, err := p.ListVoices(ctx, languageCode)
	switch {
	case err != nil && apperr.KindOf(err) == apperr.KindProviderUnavailable:
		log.Infof("[Voices] %s unavailable, serving catalogue voices: %v", provider, err)
		return listing(provider, CatalogueVoices(provider, languageCode), SourceCatalogue, ReasonUnavailable)
	case err != nil:
		log.Errorf("[Voices] Failed to list %s voices, serving catalogue voices: %v", provider, err)
		return listing(provider, CatalogueVoices(provider, languageCode), SourceCatalogue, ReasonFailure)
	case len(voices) == 0:
		log.Warnf("[Voices] %s returned no voices for %s, serving catalogue voices", provider, languageCode)
		return listing(provider, CatalogueVoices(provider, languageCode), SourceCatalogue, ReasonEmpty)
	}

	r.voices.Set(cacheKey, voices, gocache.DefaultExpiration)
	return listing(provider, voices, SourceLive, "")
}

func listing(provider string, voices []Voice, source, reason string) VoiceListing {
	return VoiceListing{
		Provider:       provider,
		Voices:         voices,
		Count:          len(voices),
		Source:         source,
		FallbackReason: reason,
	}
}

// Synthesize resolves a provider for the request:
//  1. the requested provider, when configured;
//  2. when it is unavailable, each other configured provider in fallback
//     order with its default voice;
//  3. the browser marker.
//
// A ProviderFailure from any provider ends the resolution.
func (r *Registry) Synthesize(ctx context.Context, provider, voiceID, text, languageCode string) (*Synthesis, error) {
	if languageCode == "" {
		languageCode = "en-US"
	}
	if provider == ProviderBrowser {
		return browserSynthesis(voiceID, ProviderBrowser, languageCode, false), nil
	}
	if !r.Known(provider) {
		return nil, apperr.Validation("unknown provider %q", provider)
	}

	voice := voiceOrDefault(voiceID, provider, languageCode)
	res, err := r.try(ctx, provider, voice, text, languageCode)
	if err == nil {
		return &Synthesis{Provider: provider, VoiceID: voice, Result: res}, nil
	}
	if apperr.KindOf(err) != apperr.KindProviderUnavailable {
		return nil, err
	}
	log.Infof("[TTS] %s unavailable: %v", provider, err)

	for _, name := range r.fallbackOrder {
		if name == provider || name == ProviderBrowser {
			continue
		}
		p, ok := r.providers[name]
		if !ok || !p.Configured() {
			continue
		}
		fallbackVoice := DefaultVoice(name, languageCode)
		res, err := r.try(ctx, name, fallbackVoice, text, languageCode)
		if err == nil {
			log.Printf("[TTS] Fell back from %s to %s (voice=%s)", provider, name, fallbackVoice)
			return &Synthesis{Provider: name, VoiceID: fallbackVoice, Result: res, Fallback: true}, nil
		}
		if apperr.KindOf(err) != apperr.KindProviderUnavailable {
			return nil, err
		}
		log.Infof("[TTS] Fallback %s unavailable: %v", name, err)
	}

	log.Printf("[TTS] No provider available for %s, using browser synthesis", provider)
	return browserSynthesis(voiceID, provider, languageCode, true), nil
}

func (r *Registry) try(ctx context.Context, name, voiceID, text, languageCode string) (*SynthesisResult, error) {
	p := r.providers[name]
	if !p.Configured() {
		return nil, notConfigured(name)
	}
	if err := r.calls.Acquire(ctx, 1); err != nil {
		return nil, apperr.Wrap(apperr.KindProviderFailure, err, "waiting for a %s slot", name)
	}
	defer r.calls.Release(1)

	return p.Synthesize(ctx, text, voiceID, languageCode)
}

// browserSynthesis keeps the requested voice id, or the requested provider's
// catalogue default when none was given.
func browserSynthesis(voiceID, requested, languageCode string, fallback bool) *Synthesis {
	return &Synthesis{
		Provider: ProviderBrowser,
		VoiceID:  voiceOrDefault(voiceID, requested, languageCode),
		Browser:  true,
		Fallback: fallback,
	}
}

func voiceOrDefault(voiceID, provider, languageCode string) string {
	if voiceID != "" {
		return voiceID
	}
	return DefaultVoice(provider, languageCode)
}
