// Package voices manages user-owned custom voices: uploaded samples trained
// on the RVC service and instant clones hosted by ElevenLabs.
package voices

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/bobarin/docucast/internal/apperr"
	"github.com/bobarin/docucast/internal/models"
	"github.com/bobarin/docucast/internal/services"
	"github.com/bobarin/docucast/internal/storage"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	MaxSampleSize      = 50 << 20
	MaxCloneSampleSize = 10 << 20
	MaxSpeechChars     = 5000
)

// Store is the persistence used by Registry. db.DB implements it.
type Store interface {
	CreateVoice(ctx context.Context, v *models.CustomVoice) error
	GetVoice(ctx context.Context, id uuid.UUID) (*models.CustomVoice, error)
	ListVoices(ctx context.Context, userID uuid.UUID, readyOnly bool) ([]models.CustomVoice, error)
	GetDefaultVoice(ctx context.Context, userID uuid.UUID) (*models.CustomVoice, error)
	UpdateVoiceDetails(ctx context.Context, v *models.CustomVoice) error
	TransitionVoice(ctx context.Context, id uuid.UUID, from, to models.VoiceStatus, processingError, externalID *string) error
	SetDefaultVoice(ctx context.Context, userID, id uuid.UUID) error
	ClearDefaultVoice(ctx context.Context, userID, id uuid.UUID) error
	IncrementVoiceUsage(ctx context.Context, id uuid.UUID) error
	DeleteVoice(ctx context.Context, id uuid.UUID) error
}

// Registry owns the custom voice lifecycle. cloner, converter and probe may be
// nil when the matching service is not configured.
type Registry struct {
	store     Store
	blobs     *storage.Manager
	cloner    services.VoiceCloner
	converter services.VoiceConverter
	probe     services.DurationProbe
	now       func() time.Time
}

func NewRegistry(store Store, blobs *storage.Manager, cloner services.VoiceCloner, converter services.VoiceConverter, probe services.DurationProbe) *Registry {
	return &Registry{
		store:     store,
		blobs:     blobs,
		cloner:    cloner,
		converter: converter,
		probe:     probe,
		now:       time.Now,
	}
}

// SampleUpload is a voice sample with its descriptive fields.
type SampleUpload struct {
	UserID      uuid.UUID
	FileName    string
	ContentType string
	Data        []byte
	Name        string
	Description string
	Gender      string
	Language    string
	Accent      string
	Tags        []string
}

// CloneRequest carries the samples for an instant clone.
type CloneRequest struct {
	UserID      uuid.UUID
	Name        string
	Description string
	Samples     []services.Sample
}

var formatsByContentType = map[string]string{
	"audio/mpeg":  "mp3",
	"audio/mp3":   "mp3",
	"audio/wav":   "wav",
	"audio/x-wav": "wav",
	"audio/wave":  "wav",
	"audio/ogg":   "ogg",
	"audio/x-m4a": "m4a",
	"audio/m4a":   "m4a",
	"audio/mp4":   "m4a",
}

// SampleFormat maps a sample to mp3, wav, ogg or m4a by content type, then by
// extension. It returns "" for anything else.
func SampleFormat(contentType, fileName string) string {
	if f, ok := formatsByContentType[strings.ToLower(contentType)]; ok {
		return f
	}
	switch ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), "."); ext {
	case "mp3", "wav", "ogg", "m4a":
		return ext
	}
	return ""
}

var genders = map[string]bool{"male": true, "female": true, "neutral": true, "unknown": true}

func normalizeGender(g string) string {
	g = strings.ToLower(strings.TrimSpace(g))
	if !genders[g] {
		return "unknown"
	}
	return g
}

// Upload stores the sample in the database backend and records an uploaded voice.
func (r *Registry) Upload(ctx context.Context, up SampleUpload) (*models.CustomVoice, error) {
	name := strings.TrimSpace(up.Name)
	if len(up.Data) == 0 {
		return nil, apperr.Validation("No audio file uploaded")
	}
	if name == "" {
		return nil, apperr.Validation("Voice name is required")
	}
	if len(up.Data) > MaxSampleSize {
		return nil, apperr.Validation("voice sample exceeds the 50MB limit")
	}
	format := SampleFormat(up.ContentType, up.FileName)
	if format == "" {
		return nil, apperr.Validation("Invalid file type. Only MP3, WAV, OGG, and M4A files are allowed.")
	}

	ref, err := r.storeSample(ctx, up.UserID, up.FileName, format, up.Data)
	if err != nil {
		return nil, err
	}

	language := up.Language
	if language == "" {
		language = "en-US"
	}
	v := &models.CustomVoice{
		ID:             uuid.New(),
		UserID:         up.UserID,
		Name:           name,
		Description:    strings.TrimSpace(up.Description),
		Sample:         ref,
		SampleFileName: up.FileName,
		SampleSize:     int64(len(up.Data)),
		DurationSec:    r.duration(ctx, up.FileName, up.Data),
		Format:         format,
		Status:         models.VoiceStatusUploaded,
		Provider:       models.VoiceProviderRVC,
		Gender:         normalizeGender(up.Gender),
		Language:       language,
		Accent:         up.Accent,
		Tags:           cleanTags(up.Tags),
	}
	if err := r.store.CreateVoice(ctx, v); err != nil {
		r.blobs.Release(ref)
		return nil, fmt.Errorf("failed to save voice: %w", err)
	}
	log.Printf("[Voices] Uploaded %q for user %s (%s, %d bytes)", v.Name, v.UserID, format, v.SampleSize)
	return v, nil
}

// Clone creates an ElevenLabs voice from 1..25 samples and records it ready.
// The first sample is kept for playback.
func (r *Registry) Clone(ctx context.Context, req CloneRequest) (*models.CustomVoice, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || len(req.Samples) == 0 {
		return nil, apperr.Validation("Voice name and at least one audio sample are required")
	}
	if len(req.Samples) > services.MaxCloneSamples {
		return nil, apperr.Validation("at most %d samples are allowed", services.MaxCloneSamples)
	}
	for _, s := range req.Samples {
		if len(s.Data) > MaxCloneSampleSize {
			return nil, apperr.Validation("sample %q exceeds the 10MB limit", s.FileName)
		}
	}
	if r.cloner == nil || !r.cloner.Configured() {
		return nil, apperr.New(apperr.KindProviderUnavailable, "voice cloning is not configured")
	}

	externalID, err := r.cloner.Clone(ctx, name, req.Description, req.Samples)
	if err != nil {
		return nil, err
	}

	first := req.Samples[0]
	format := SampleFormat("", first.FileName)
	if format == "" {
		format = "mp3"
	}
	ref, err := r.storeSample(ctx, req.UserID, first.FileName, format, first.Data)
	if err != nil {
		r.deleteExternal(externalID, models.VoiceProviderElevenLabs)
		return nil, err
	}

	v := &models.CustomVoice{
		ID:              uuid.New(),
		UserID:          req.UserID,
		Name:            name,
		Description:     strings.TrimSpace(req.Description),
		Sample:          ref,
		SampleFileName:  first.FileName,
		SampleSize:      int64(len(first.Data)),
		DurationSec:     r.duration(ctx, first.FileName, first.Data),
		Format:          format,
		Status:          models.VoiceStatusReady,
		Provider:        models.VoiceProviderElevenLabs,
		ExternalVoiceID: &externalID,
		Gender:          "unknown",
		Language:        "en-US",
		Tags:            cleanTags(nil),
	}
	if err := r.store.CreateVoice(ctx, v); err != nil {
		r.blobs.Release(ref)
		r.deleteExternal(externalID, models.VoiceProviderElevenLabs)
		return nil, fmt.Errorf("failed to save voice: %w", err)
	}
	log.Printf("[Voices] Cloned %q for user %s (external=%s, samples=%d)", v.Name, v.UserID, externalID, len(req.Samples))
	return v, nil
}

func (r *Registry) storeSample(ctx context.Context, userID uuid.UUID, fileName, format string, data []byte) (models.BlobRef, error) {
	return r.blobs.StoreIn(ctx, models.StorageDatabase, storage.Object{
		Path:        storage.NewKey(userID.String(), storage.KindSample, fileName, r.now()),
		Data:        data,
		ContentType: services.ContentTypeFor(format),
		Metadata: map[string]string{
			"filename": fileName,
			"user-id":  userID.String(),
		},
	})
}

// duration probes the sample length; zero when no probe is available.
func (r *Registry) duration(ctx context.Context, fileName string, data []byte) float64 {
	if r.probe == nil || !r.probe.Configured() {
		return 0
	}
	d, err := r.probe.Duration(ctx, fileName, data)
	if err != nil {
		log.Warnf("[Voices] Could not measure %s: %v", fileName, err)
		return 0
	}
	return d
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Get returns the voice when it belongs to userID.
func (r *Registry) Get(ctx context.Context, userID, id uuid.UUID) (*models.CustomVoice, error) {
	v, err := r.store.GetVoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if v.UserID != userID {
		return nil, apperr.Unauthorized("not authorized to access this voice")
	}
	return v, nil
}

// List returns the user's voices newest first.
func (r *Registry) List(ctx context.Context, userID uuid.UUID, readyOnly bool) ([]models.CustomVoice, error) {
	voices, err := r.store.ListVoices(ctx, userID, readyOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list voices: %w", err)
	}
	return voices, nil
}

func (r *Registry) Default(ctx context.Context, userID uuid.UUID) (*models.CustomVoice, error) {
	return r.store.GetDefaultVoice(ctx, userID)
}

// Update applies a partial update. IsDefault true makes the voice the user's
// only default.
func (r *Registry) Update(ctx context.Context, userID, id uuid.UUID, upd models.VoiceUpdate) (*models.CustomVoice, error) {
	v, err := r.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, apperr.Validation("Voice name cannot be empty")
		}
		v.Name = name
	}
	if upd.Description != nil {
		v.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Gender != nil {
		v.Gender = normalizeGender(*upd.Gender)
	}
	if upd.Language != nil && *upd.Language != "" {
		v.Language = *upd.Language
	}
	if upd.Accent != nil {
		v.Accent = *upd.Accent
	}
	if upd.Tags != nil {
		v.Tags = cleanTags(*upd.Tags)
	}
	if err := r.store.UpdateVoiceDetails(ctx, v); err != nil {
		return nil, err
	}

	if upd.IsDefault != nil {
		if *upd.IsDefault {
			err = r.SetDefault(ctx, userID, id)
		} else {
			err = r.store.ClearDefaultVoice(ctx, userID, id)
		}
		if err != nil {
			return nil, err
		}
		v.IsDefault = *upd.IsDefault
	}
	return v, nil
}

// SetDefault clears the user's current default and marks id in one transaction.
func (r *Registry) SetDefault(ctx context.Context, userID, id uuid.UUID) error {
	return r.store.SetDefaultVoice(ctx, userID, id)
}

// IncrementUsage records one synthesis with the voice.
func (r *Registry) IncrementUsage(ctx context.Context, id uuid.UUID) error {
	return r.store.IncrementVoiceUsage(ctx, id)
}

var transitions = map[models.VoiceStatus][]models.VoiceStatus{
	models.VoiceStatusUploaded:   {models.VoiceStatusProcessing},
	models.VoiceStatusProcessing: {models.VoiceStatusReady, models.VoiceStatusFailed},
	models.VoiceStatusFailed:     {models.VoiceStatusProcessing},
}

// CanTransition reports whether a voice may move from one status to another.
func CanTransition(from, to models.VoiceStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// UpdateStatus moves the voice to status with compare-and-set on its current status.
func (r *Registry) UpdateStatus(ctx context.Context, id uuid.UUID, to models.VoiceStatus, processingError string) error {
	v, err := r.store.GetVoice(ctx, id)
	if err != nil {
		return err
	}
	if !CanTransition(v.Status, to) {
		return apperr.New(apperr.KindInvalidTransition, "voice cannot move from %s to %s", v.Status, to)
	}
	var errMsg *string
	if processingError != "" {
		errMsg = &processingError
	}
	return r.store.TransitionVoice(ctx, id, v.Status, to, errMsg, nil)
}

// BeginTraining validates the voice and moves it to processing. The caller
// dispatches the training itself.
func (r *Registry) BeginTraining(ctx context.Context, userID, id uuid.UUID) (*models.CustomVoice, error) {
	v, err := r.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if v.Provider != models.VoiceProviderRVC {
		return nil, apperr.Validation("only uploaded voice samples can be trained")
	}
	if r.converter == nil {
		return nil, apperr.New(apperr.KindServiceUnavailable, "service unavailable")
	}
	if !CanTransition(v.Status, models.VoiceStatusProcessing) {
		return nil, apperr.Validation("voice is %s and cannot be trained", v.Status)
	}
	if err := r.store.TransitionVoice(ctx, id, v.Status, models.VoiceStatusProcessing, nil, nil); err != nil {
		return nil, err
	}
	v.Status = models.VoiceStatusProcessing
	v.ProcessingError = nil
	return v, nil
}

// RunTraining uploads the sample to the RVC service and records the outcome.
// The voice must be processing.
func (r *Registry) RunTraining(ctx context.Context, id uuid.UUID) error {
	v, err := r.store.GetVoice(ctx, id)
	if err != nil {
		return err
	}
	if v.Status != models.VoiceStatusProcessing {
		return apperr.New(apperr.KindInvalidTransition, "voice %s is %s, not processing", id, v.Status)
	}

	modelID := v.ID.String()
	trainErr := r.train(ctx, v, modelID)
	if trainErr != nil {
		log.Errorf("[Voices] Training %s failed: %v", id, trainErr)
		msg := apperr.Message(trainErr)
		if err := r.store.TransitionVoice(ctx, id, models.VoiceStatusProcessing, models.VoiceStatusFailed, &msg, nil); err != nil {
			return err
		}
		return trainErr
	}

	log.Printf("[Voices] Training %s finished, model %s ready", id, modelID)
	return r.store.TransitionVoice(ctx, id, models.VoiceStatusProcessing, models.VoiceStatusReady, nil, &modelID)
}

func (r *Registry) train(ctx context.Context, v *models.CustomVoice, modelID string) error {
	if r.converter == nil {
		return apperr.New(apperr.KindServiceUnavailable, "service unavailable")
	}
	rc, err := r.blobs.Fetch(ctx, v.Sample)
	if err != nil {
		return err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return apperr.Wrap(apperr.KindStorageFailure, err, "failed to read voice sample")
	}
	return r.converter.Train(ctx, modelID, v.Name, services.Sample{FileName: v.SampleFileName, Data: data})
}

// OpenSample streams the stored sample. The caller closes the reader.
func (r *Registry) OpenSample(ctx context.Context, userID, id uuid.UUID) (io.ReadCloser, *models.CustomVoice, error) {
	v, err := r.Get(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := r.blobs.Fetch(ctx, v.Sample)
	if err != nil {
		return nil, nil, err
	}
	return rc, v, nil
}

// Delete removes the record, then releases the sample and the external voice
// or model. Only the record removal can fail the call.
func (r *Registry) Delete(ctx context.Context, userID, id uuid.UUID) error {
	v, err := r.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := r.store.DeleteVoice(ctx, id); err != nil {
		return err
	}
	r.blobs.Release(v.Sample)
	if v.ExternalVoiceID != nil {
		r.deleteExternal(*v.ExternalVoiceID, v.Provider)
	}
	log.Printf("[Voices] Deleted %q (%s)", v.Name, id)
	return nil
}

func (r *Registry) deleteExternal(externalID, provider string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	switch {
	case provider == models.VoiceProviderElevenLabs && r.cloner != nil:
		err = r.cloner.DeleteVoice(ctx, externalID)
	case provider == models.VoiceProviderRVC && r.converter != nil:
		err = r.converter.DeleteModel(ctx, externalID)
	default:
		return
	}
	if err != nil {
		log.Errorf("[Voices] Failed to delete %s voice %s: %v", provider, externalID, err)
	}
}

// Details asks the hosting service about the voice.
func (r *Registry) Details(ctx context.Context, userID, id uuid.UUID) (map[string]interface{}, error) {
	v, err := r.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	switch v.Provider {
	case models.VoiceProviderElevenLabs:
		if r.cloner == nil || v.ExternalVoiceID == nil {
			return nil, apperr.New(apperr.KindProviderUnavailable, "voice cloning is not configured")
		}
		return r.cloner.GetVoiceDetails(ctx, *v.ExternalVoiceID)
	default:
		return r.TrainingProgress(ctx, v.ID.String())
	}
}

// Speak synthesizes text once with a cloned voice and counts the use.
func (r *Registry) Speak(ctx context.Context, userID, id uuid.UUID, text string) (*services.SynthesisResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Validation("Text is required")
	}
	if len([]rune(text)) > MaxSpeechChars {
		return nil, apperr.Validation("text exceeds %d characters", MaxSpeechChars)
	}
	v, err := r.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if v.Provider != models.VoiceProviderElevenLabs {
		return nil, apperr.Validation("voice %q is not a cloned voice", v.Name)
	}
	if v.Status != models.VoiceStatusReady || v.ExternalVoiceID == nil {
		return nil, apperr.Validation("voice %q is not ready", v.Name)
	}
	if r.cloner == nil || !r.cloner.Configured() {
		return nil, apperr.New(apperr.KindProviderUnavailable, "voice cloning is not configured")
	}

	res, err := r.cloner.SynthesizeWithVoice(ctx, text, *v.ExternalVoiceID)
	if err != nil {
		return nil, err
	}
	if err := r.IncrementUsage(ctx, v.ID); err != nil {
		log.Warnf("[Voices] Failed to count usage of %s: %v", v.ID, err)
	}
	return res, nil
}

// TrainingProgress proxies the RVC service's progress report.
func (r *Registry) TrainingProgress(ctx context.Context, modelID string) (map[string]interface{}, error) {
	if r.converter == nil {
		return nil, apperr.New(apperr.KindServiceUnavailable, "service unavailable")
	}
	return r.converter.TrainingProgress(ctx, modelID)
}

// ServiceHealth proxies the RVC service's health report.
func (r *Registry) ServiceHealth(ctx context.Context) (map[string]interface{}, error) {
	if r.converter == nil {
		return nil, apperr.New(apperr.KindServiceUnavailable, "service unavailable")
	}
	return r.converter.Health(ctx)
}
