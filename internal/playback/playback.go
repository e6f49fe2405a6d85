// Package playback decides what a client can play for a podcast.
package playback

import (
	"net/url"
	"strings"

	"github.com/bobarin/docucast/internal/models"
)

// BrowserMarker is the audio URL recorded when the client must synthesize
// speech itself.
const BrowserMarker = "browser-tts"

// SourceKind classifies an audio reference.
type SourceKind string

const (
	FileBacked         SourceKind = "file"
	BrowserSynthesized SourceKind = "browser"
	Unavailable        SourceKind = "unavailable"
)

// Variants of a podcast's audio.
const (
	VariantOriginal  = "original"
	VariantConverted = "converted"
)

// State of a podcast as a playable item.
const (
	StateGenerating = "generating"
	StateFailed     = "failed"
	StateReady      = "ready"
	StateBrowser    = "browser"
	StateMissing    = "missing"
)

// Source is a classified audio reference.
type Source struct {
	Kind    SourceKind      `json:"kind"`
	Variant string          `json:"variant"`
	Ref     *models.BlobRef `json:"ref,omitempty"`
}

// Playback describes every playable variant of a podcast.
type Playback struct {
	State             string  `json:"state"`
	Default           Source  `json:"default"`
	Original          Source  `json:"original"`
	Converted         *Source `json:"converted,omitempty"`
	NeedsRegeneration bool    `json:"needs_regeneration"`
}

var placeholderHosts = []string{"example.com", "example.org"}

// SourceOf classifies a blob reference. A usable URL or a storage key is
// enough for file-backed audio; a junk or placeholder URL is never playable.
func SourceOf(ref models.BlobRef) SourceKind {
	if ref.Storage == models.StorageBrowser || ref.URL == BrowserMarker {
		return BrowserSynthesized
	}
	raw := strings.TrimSpace(ref.URL)
	switch strings.ToLower(raw) {
	case "null", "undefined":
		return Unavailable
	case "":
		// keys without a public URL are streamed through the API
		if ref.Key == "" || ref.Storage == "" {
			return Unavailable
		}
		return FileBacked
	}
	if isPlaceholder(raw) {
		return Unavailable
	}
	return FileBacked
}

// URLOnly reports whether a file-backed reference is reachable only by its
// URL, as with records written before storage keys existed.
func URLOnly(ref models.BlobRef) bool {
	return ref.Key == "" && strings.TrimSpace(ref.URL) != ""
}

func isPlaceholder(raw string) bool {
	host := raw
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		host = u.Hostname()
	}
	host = strings.ToLower(host)
	for _, p := range placeholderHosts {
		if host == p || strings.HasSuffix(host, "."+p) || strings.Contains(host, p+"/") {
			return true
		}
	}
	return false
}

func source(ref models.BlobRef, variant string) Source {
	s := Source{Kind: SourceOf(ref), Variant: variant}
	if s.Kind == FileBacked {
		r := ref
		s.Ref = &r
	}
	return s
}

// Resolve builds the playback view. The converted variant is the default once
// its conversion has completed with usable audio.
func Resolve(p *models.Podcast) Playback {
	original := source(p.Audio, VariantOriginal)
	pb := Playback{Original: original, Default: original}

	if p.HasConvertedAudio() {
		if c := source(p.ConvertedAudio, VariantConverted); c.Kind == FileBacked {
			pb.Converted = &c
			pb.Default = c
		}
	}

	switch p.Status {
	case models.PodcastStatusGenerating:
		pb.State = StateGenerating
	case models.PodcastStatusFailed:
		pb.State = StateFailed
	default:
		switch original.Kind {
		case FileBacked:
			pb.State = StateReady
		case BrowserSynthesized:
			pb.State = StateBrowser
		default:
			pb.State = StateMissing
			pb.NeedsRegeneration = pb.Converted == nil
		}
	}
	return pb
}

// Select returns the requested variant, or the default for an empty name. It
// reports false when the variant is unknown or not playable.
func Select(p *models.Podcast, variant string) (Source, bool) {
	pb := Resolve(p)
	switch variant {
	case "":
		return pb.Default, pb.Default.Kind != Unavailable
	case VariantOriginal:
		return pb.Original, pb.Original.Kind != Unavailable
	case VariantConverted:
		if pb.Converted == nil {
			return Source{Kind: Unavailable, Variant: VariantConverted}, false
		}
		return *pb.Converted, true
	}
	return Source{Kind: Unavailable, Variant: variant}, false
}
