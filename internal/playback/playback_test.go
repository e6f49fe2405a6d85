package playback

import (
	"testing"

	"github.com/bobarin/docucast/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	localAudio     = models.BlobRef{Storage: models.StorageLocal, Key: "u/podcasts/1_a.mp3", URL: "/uploads/u/podcasts/1_a.mp3"}
	convertedAudio = models.BlobRef{Storage: models.StorageBucket, Key: "u/converted/2_a.wav", URL: "https://cdn.docucast.io/u/converted/2_a.wav"}
)

func TestSourceOf(t *testing.T) {
	cases := []struct {
		name string
		ref  models.BlobRef
		want SourceKind
	}{
		{"local", localAudio, FileBacked},
		{"bucket", convertedAudio, FileBacked},
		{"database without url", models.BlobRef{Storage: models.StorageDatabase, Key: "k"}, FileBacked},
		{"browser backend", models.BlobRef{Storage: models.StorageBrowser}, BrowserSynthesized},
		{"browser marker", models.BlobRef{Storage: models.StorageLocal, URL: BrowserMarker}, BrowserSynthesized},
		{"empty", models.BlobRef{}, Unavailable},
		{"url only", models.BlobRef{Storage: models.StorageBucket, URL: "https://storage.googleapis.com/bucket/podcasts/a.mp3"}, FileBacked},
		{"relative url only", models.BlobRef{Storage: models.StorageLocal, URL: "/uploads/a.mp3"}, FileBacked},
		{"key without url", models.BlobRef{Storage: models.StorageLocal, Key: "k"}, FileBacked},
		{"key without backend", models.BlobRef{Key: "k"}, Unavailable},
		{"blank url", models.BlobRef{Storage: models.StorageBucket, URL: "  "}, Unavailable},
		{"null", models.BlobRef{Storage: models.StorageLocal, Key: "k", URL: "null"}, Unavailable},
		{"undefined", models.BlobRef{Storage: models.StorageLocal, Key: "k", URL: "undefined"}, Unavailable},
		{"placeholder", models.BlobRef{Storage: models.StorageBucket, Key: "k", URL: "https://example.com/audio.mp3"}, Unavailable},
		{"placeholder subdomain", models.BlobRef{Storage: models.StorageBucket, Key: "k", URL: "https://files.example.org/a.mp3"}, Unavailable},
		{"placeholder without scheme", models.BlobRef{Storage: models.StorageBucket, Key: "k", URL: "example.com/a.mp3"}, Unavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SourceOf(tc.ref))
		})
	}
}

func completed(audio models.BlobRef) *models.Podcast {
	return &models.Podcast{
		Status:           models.PodcastStatusCompleted,
		Audio:            audio,
		ConversionStatus: models.ConversionStatusNone,
	}
}

func TestResolveOriginalOnly(t *testing.T) {
	pb := Resolve(completed(localAudio))
	assert.Equal(t, StateReady, pb.State)
	assert.Equal(t, VariantOriginal, pb.Default.Variant)
	require.NotNil(t, pb.Default.Ref)
	assert.Equal(t, localAudio, *pb.Default.Ref)
	assert.Nil(t, pb.Converted)
	assert.False(t, pb.NeedsRegeneration)
}

func TestResolvePrefersConverted(t *testing.T) {
	p := completed(localAudio)
	p.ConversionStatus = models.ConversionStatusCompleted
	p.ConvertedAudio = convertedAudio

	pb := Resolve(p)
	require.NotNil(t, pb.Converted)
	assert.Equal(t, VariantConverted, pb.Default.Variant)
	assert.Equal(t, convertedAudio, *pb.Default.Ref)
	assert.Equal(t, localAudio, *pb.Original.Ref)

	p.ConversionStatus = models.ConversionStatusProcessing
	pb = Resolve(p)
	assert.Nil(t, pb.Converted)
	assert.Equal(t, VariantOriginal, pb.Default.Variant)
}

func TestResolveStates(t *testing.T) {
	assert.Equal(t, StateGenerating, Resolve(&models.Podcast{Status: models.PodcastStatusGenerating}).State)
	assert.Equal(t, StateFailed, Resolve(&models.Podcast{Status: models.PodcastStatusFailed}).State)

	browser := Resolve(completed(models.BlobRef{Storage: models.StorageBrowser, URL: BrowserMarker}))
	assert.Equal(t, StateBrowser, browser.State)
	assert.Equal(t, BrowserSynthesized, browser.Default.Kind)
	assert.Nil(t, browser.Default.Ref)
	assert.False(t, browser.NeedsRegeneration)

	legacy := Resolve(completed(models.BlobRef{Storage: models.StorageBucket, Key: "k", URL: "https://example.com/a.mp3"}))
	assert.Equal(t, StateMissing, legacy.State)
	assert.True(t, legacy.NeedsRegeneration)
}

func TestResolveURLOnlyRecord(t *testing.T) {
	ref := models.BlobRef{Storage: models.StorageBucket, URL: "https://storage.googleapis.com/bucket/podcasts/a.mp3"}
	pb := Resolve(completed(ref))
	assert.Equal(t, StateReady, pb.State)
	assert.False(t, pb.NeedsRegeneration)
	require.NotNil(t, pb.Default.Ref)
	assert.True(t, URLOnly(*pb.Default.Ref))
	assert.False(t, URLOnly(localAudio))
}

func TestSelect(t *testing.T) {
	p := completed(localAudio)
	before := *p

	src, ok := Select(p, "")
	assert.True(t, ok)
	assert.Equal(t, VariantOriginal, src.Variant)

	_, ok = Select(p, VariantConverted)
	assert.False(t, ok)

	_, ok = Select(p, "remix")
	assert.False(t, ok)

	p.ConversionStatus = models.ConversionStatusCompleted
	p.ConvertedAudio = convertedAudio
	src, ok = Select(p, VariantConverted)
	assert.True(t, ok)
	assert.Equal(t, convertedAudio, *src.Ref)

	src, ok = Select(p, VariantOriginal)
	assert.True(t, ok)
	assert.Equal(t, localAudio, *src.Ref)
	assert.Equal(t, before.Audio, p.Audio)
}
