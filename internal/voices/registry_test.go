package voices

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/bobarin/docucast/internal/apperr"
	"github.com/bobarin/docucast/internal/memstore"
	"github.com/bobarin/docucast/internal/models"
	"github.com/bobarin/docucast/internal/services"
	"github.com/bobarin/docucast/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCloner struct {
	configured bool
	cloneErr   error

	mu      sync.Mutex
	deleted []string
}

func (c *fakeCloner) Configured() bool { return c.configured }

func (c *fakeCloner) Clone(ctx context.Context, name, description string, samples []services.Sample) (string, error) {
	if c.cloneErr != nil {
		return "", c.cloneErr
	}
	return "el-" + name, nil
}

func (c *fakeCloner) SynthesizeWithVoice(ctx context.Context, text, externalVoiceID string) (*services.SynthesisResult, error) {
	return &services.SynthesisResult{Audio: []byte(text), Format: "mp3"}, nil
}

func (c *fakeCloner) DeleteVoice(ctx context.Context, externalVoiceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, externalVoiceID)
	return nil
}

func (c *fakeCloner) GetVoiceDetails(ctx context.Context, externalVoiceID string) (map[string]interface{}, error) {
	return map[string]interface{}{"voice_id": externalVoiceID}, nil
}

type fakeConverter struct {
	trainErr error

	mu      sync.Mutex
	trained map[string][]byte
	deleted []string
}

func (c *fakeConverter) Health(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{"status": "ok"}, nil
}

func (c *fakeConverter) Train(ctx context.Context, modelID, name string, sample services.Sample) error {
	if c.trainErr != nil {
		return c.trainErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.trained == nil {
		c.trained = make(map[string][]byte)
	}
	c.trained[modelID] = sample.Data
	return nil
}

func (c *fakeConverter) Convert(ctx context.Context, modelID string, audio services.Sample) (*services.SynthesisResult, error) {
	return &services.SynthesisResult{Audio: audio.Data, Format: "wav"}, nil
}

func (c *fakeConverter) TrainingProgress(ctx context.Context, modelID string) (map[string]interface{}, error) {
	return map[string]interface{}{"model_id": modelID, "progress": 50}, nil
}

func (c *fakeConverter) DeleteModel(ctx context.Context, modelID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, modelID)
	return nil
}

type fakeProbe struct{ seconds float64 }

func (p fakeProbe) Configured() bool { return true }

func (p fakeProbe) Duration(ctx context.Context, fileName string, data []byte) (float64, error) {
	return p.seconds, nil
}

type fixture struct {
	store     *memstore.Store
	blobs     *storage.Manager
	cloner    *fakeCloner
	converter *fakeConverter
	reg       *Registry
	user      uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	local, err := storage.NewLocal(t.TempDir(), "/uploads")
	require.NoError(t, err)
	blobs := storage.NewManagerWith(local, local, storage.NewDatabase(store, 4))
	f := &fixture{
		store:     store,
		blobs:     blobs,
		cloner:    &fakeCloner{configured: true},
		converter: &fakeConverter{},
		user:      uuid.New(),
	}
	f.reg = NewRegistry(store, blobs, f.cloner, f.converter, fakeProbe{seconds: 12.5})
	return f
}

func (f *fixture) upload(t *testing.T, name string) *models.CustomVoice {
	t.Helper()
	v, err := f.reg.Upload(context.Background(), SampleUpload{
		UserID:      f.user,
		FileName:    "me.wav",
		ContentType: "audio/wav",
		Data:        []byte("RIFF-sample"),
		Name:        name,
		Tags:        []string{" warm ", ""},
	})
	require.NoError(t, err)
	return v
}

func TestUpload(t *testing.T) {
	f := newFixture(t)

	v := f.upload(t, "  Narrator ")
	assert.Equal(t, "Narrator", v.Name)
	assert.Equal(t, models.VoiceStatusUploaded, v.Status)
	assert.Equal(t, models.VoiceProviderRVC, v.Provider)
	assert.Equal(t, "wav", v.Format)
	assert.Equal(t, "unknown", v.Gender)
	assert.Equal(t, "en-US", v.Language)
	assert.Equal(t, 12.5, v.DurationSec)
	assert.Equal(t, []string{"warm"}, []string(v.Tags))
	assert.Equal(t, models.StorageDatabase, v.Sample.Storage)
	assert.True(t, f.store.HasBlob(v.Sample.Key))

	rc, _, err := f.reg.OpenSample(context.Background(), f.user, v.ID)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "RIFF-sample", string(data))
}

func TestUploadValidation(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name    string
		up      SampleUpload
		message string
	}{
		{"no file", SampleUpload{Name: "x"}, "No audio file uploaded"},
		{"no name", SampleUpload{Data: []byte("a"), FileName: "a.mp3"}, "Voice name is required"},
		{"format", SampleUpload{Data: []byte("a"), FileName: "a.flac", Name: "x"}, "Only MP3, WAV, OGG, and M4A"},
		{"size", SampleUpload{Data: make([]byte, MaxSampleSize+1), FileName: "a.mp3", Name: "x"}, "50MB"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.up.UserID = f.user
			_, err := f.reg.Upload(context.Background(), tc.up)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Contains(t, apperr.Message(err), tc.message)
		})
	}
}

func TestSampleFormat(t *testing.T) {
	assert.Equal(t, "mp3", SampleFormat("audio/mpeg", "x.bin"))
	assert.Equal(t, "m4a", SampleFormat("audio/x-m4a", ""))
	assert.Equal(t, "ogg", SampleFormat("application/octet-stream", "voice.OGG"))
	assert.Equal(t, "", SampleFormat("video/mp4", "clip.mp4"))
}

func TestClone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.reg.Clone(ctx, CloneRequest{
		UserID:  f.user,
		Name:    "Host",
		Samples: []services.Sample{{FileName: "a.mp3", Data: []byte("one")}, {FileName: "b.mp3", Data: []byte("two")}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.VoiceStatusReady, v.Status)
	assert.Equal(t, models.VoiceProviderElevenLabs, v.Provider)
	require.NotNil(t, v.ExternalVoiceID)
	assert.Equal(t, "el-Host", *v.ExternalVoiceID)
	assert.Equal(t, "a.mp3", v.SampleFileName)

	details, err := f.reg.Details(ctx, f.user, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "el-Host", details["voice_id"])

	require.NoError(t, f.reg.Delete(ctx, f.user, v.ID))
	f.blobs.Wait()
	assert.Equal(t, []string{"el-Host"}, f.cloner.deleted)
	assert.False(t, f.store.HasBlob(v.Sample.Key))
}

func TestCloneValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.reg.Clone(ctx, CloneRequest{UserID: f.user, Name: "Host"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	tooMany := make([]services.Sample, services.MaxCloneSamples+1)
	_, err = f.reg.Clone(ctx, CloneRequest{UserID: f.user, Name: "Host", Samples: tooMany})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	big := []services.Sample{{FileName: "a.mp3", Data: make([]byte, MaxCloneSampleSize+1)}}
	_, err = f.reg.Clone(ctx, CloneRequest{UserID: f.user, Name: "Host", Samples: big})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	f.cloner.configured = false
	_, err = f.reg.Clone(ctx, CloneRequest{UserID: f.user, Name: "Host", Samples: []services.Sample{{FileName: "a.mp3", Data: []byte("x")}}})
	assert.Equal(t, apperr.KindProviderUnavailable, apperr.KindOf(err))

	voices, err := f.reg.List(ctx, f.user, false)
	require.NoError(t, err)
	assert.Empty(t, voices)
}

func TestSpeak(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v, err := f.reg.Clone(ctx, CloneRequest{
		UserID:  f.user,
		Name:    "Host",
		Samples: []services.Sample{{FileName: "a.mp3", Data: []byte("one")}},
	})
	require.NoError(t, err)

	res, err := f.reg.Speak(ctx, f.user, v.ID, "  hello there ")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello there"), res.Audio)
	assert.Equal(t, "mp3", res.Format)

	got, err := f.reg.Get(ctx, f.user, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TimesUsed)

	_, err = f.reg.Speak(ctx, f.user, v.ID, "   ")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = f.reg.Speak(ctx, f.user, v.ID, strings.Repeat("a", MaxSpeechChars+1))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = f.reg.Speak(ctx, uuid.New(), v.ID, "hello")
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	f.cloner.configured = false
	_, err = f.reg.Speak(ctx, f.user, v.ID, "hello")
	assert.Equal(t, apperr.KindProviderUnavailable, apperr.KindOf(err))
}

func TestSpeakRequiresReadyClone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	uploaded := f.upload(t, "Narrator")
	_, err := f.reg.Speak(ctx, f.user, uploaded.ID, "hello")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	ext := "el-Pending"
	pending := &models.CustomVoice{
		ID:              uuid.New(),
		UserID:          f.user,
		Name:            "Pending",
		Provider:        models.VoiceProviderElevenLabs,
		ExternalVoiceID: &ext,
		Status:          models.VoiceStatusProcessing,
	}
	require.NoError(t, f.store.CreateVoice(ctx, pending))
	_, err = f.reg.Speak(ctx, f.user, pending.ID, "hello")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	got, err := f.reg.Get(ctx, f.user, uploaded.ID)
	require.NoError(t, err)
	assert.Zero(t, got.TimesUsed)
}

func TestTraining(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.upload(t, "Narrator")

	started, err := f.reg.BeginTraining(ctx, f.user, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VoiceStatusProcessing, started.Status)

	_, err = f.reg.BeginTraining(ctx, f.user, v.ID)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	require.NoError(t, f.reg.RunTraining(ctx, v.ID))

	got, err := f.reg.Get(ctx, f.user, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VoiceStatusReady, got.Status)
	require.NotNil(t, got.ExternalVoiceID)
	assert.Equal(t, v.ID.String(), *got.ExternalVoiceID)
	assert.Equal(t, "RIFF-sample", string(f.converter.trained[v.ID.String()]))

	ready, err := f.reg.List(ctx, f.user, true)
	require.NoError(t, err)
	assert.Len(t, ready, 1)
}

func TestTrainingFailureCanRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.upload(t, "Narrator")
	f.converter.trainErr = apperr.New(apperr.KindServiceUnavailable, "service unavailable")

	_, err := f.reg.BeginTraining(ctx, f.user, v.ID)
	require.NoError(t, err)
	err = f.reg.RunTraining(ctx, v.ID)
	assert.Equal(t, apperr.KindServiceUnavailable, apperr.KindOf(err))

	got, err := f.reg.Get(ctx, f.user, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VoiceStatusFailed, got.Status)
	require.NotNil(t, got.ProcessingError)
	assert.Equal(t, "service unavailable", *got.ProcessingError)

	f.converter.trainErr = nil
	_, err = f.reg.BeginTraining(ctx, f.user, v.ID)
	require.NoError(t, err)
	require.NoError(t, f.reg.RunTraining(ctx, v.ID))

	got, err = f.reg.Get(ctx, f.user, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VoiceStatusReady, got.Status)
	assert.Nil(t, got.ProcessingError)
}

func TestRunTrainingRequiresProcessing(t *testing.T) {
	f := newFixture(t)
	v := f.upload(t, "Narrator")

	err := f.reg.RunTraining(context.Background(), v.ID)
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))
}

func TestTrainingWithoutConverter(t *testing.T) {
	f := newFixture(t)
	f.reg = NewRegistry(f.store, f.blobs, nil, nil, nil)
	v := f.upload(t, "Narrator")
	assert.Zero(t, v.DurationSec)

	_, err := f.reg.BeginTraining(context.Background(), f.user, v.ID)
	assert.Equal(t, apperr.KindServiceUnavailable, apperr.KindOf(err))

	_, err = f.reg.ServiceHealth(context.Background())
	assert.Equal(t, "service unavailable", apperr.Message(err))
}

func TestUpdateStatusTransitions(t *testing.T) {
	assert.True(t, CanTransition(models.VoiceStatusUploaded, models.VoiceStatusProcessing))
	assert.True(t, CanTransition(models.VoiceStatusFailed, models.VoiceStatusProcessing))
	assert.False(t, CanTransition(models.VoiceStatusReady, models.VoiceStatusProcessing))
	assert.False(t, CanTransition(models.VoiceStatusUploaded, models.VoiceStatusReady))

	f := newFixture(t)
	v := f.upload(t, "Narrator")
	err := f.reg.UpdateStatus(context.Background(), v.ID, models.VoiceStatusReady, "")
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))
	require.NoError(t, f.reg.UpdateStatus(context.Background(), v.ID, models.VoiceStatusProcessing, ""))
}

func TestUpdateAndDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.upload(t, "First")
	second := f.upload(t, "Second")

	yes, no := true, false
	name, gender := "Renamed", "Female"
	tags := []string{"calm"}

	got, err := f.reg.Update(ctx, f.user, first.ID, models.VoiceUpdate{Name: &name, Gender: &gender, Tags: &tags, IsDefault: &yes})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, "female", got.Gender)
	assert.True(t, got.IsDefault)

	_, err = f.reg.Update(ctx, f.user, second.ID, models.VoiceUpdate{IsDefault: &yes})
	require.NoError(t, err)
	def, err := f.reg.Default(ctx, f.user)
	require.NoError(t, err)
	assert.Equal(t, second.ID, def.ID)

	reloaded, err := f.reg.Get(ctx, f.user, first.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsDefault)

	_, err = f.reg.Update(ctx, f.user, second.ID, models.VoiceUpdate{IsDefault: &no})
	require.NoError(t, err)
	_, err = f.reg.Default(ctx, f.user)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	empty := "  "
	_, err = f.reg.Update(ctx, f.user, first.ID, models.VoiceUpdate{Name: &empty})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestOwnershipAndUsage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.upload(t, "Narrator")
	other := uuid.New()

	_, err := f.reg.Get(ctx, other, v.ID)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(f.reg.Delete(ctx, other, v.ID)))
	_, err = f.reg.Get(ctx, f.user, uuid.New())
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	require.NoError(t, f.reg.IncrementUsage(ctx, v.ID))
	require.NoError(t, f.reg.IncrementUsage(ctx, v.ID))
	got, err := f.reg.Get(ctx, f.user, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TimesUsed)
	assert.NotNil(t, got.LastUsedAt)
}

func TestDeleteTrainedVoiceRemovesModel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.upload(t, "Narrator")
	_, err := f.reg.BeginTraining(ctx, f.user, v.ID)
	require.NoError(t, err)
	require.NoError(t, f.reg.RunTraining(ctx, v.ID))

	require.NoError(t, f.reg.Delete(ctx, f.user, v.ID))
	f.blobs.Wait()
	assert.Equal(t, []string{v.ID.String()}, f.converter.deleted)

	_, err = f.reg.Get(ctx, f.user, v.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}
