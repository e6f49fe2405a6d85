package pipeline

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/bobarin/docucast/internal/apperr"
	"github.com/bobarin/docucast/internal/models"
	"github.com/bobarin/docucast/internal/playback"
	"github.com/bobarin/docucast/internal/services"
	"github.com/bobarin/docucast/internal/storage"
	"github.com/bobarin/docucast/internal/voices"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultProvider = services.ProviderGoogle
	DefaultLanguage = "en-US"
)

// Store is the persistence used by Orchestrator. db.DB implements it.
type Store interface {
	CreatePodcast(ctx context.Context, p *models.Podcast) error
	GetPodcast(ctx context.Context, id uuid.UUID) (*models.Podcast, error)
	ListPodcasts(ctx context.Context, userID uuid.UUID) ([]models.Podcast, error)
	UpdatePodcastProgress(ctx context.Context, id uuid.UUID, progress int) error
	CompletePodcast(ctx context.Context, id uuid.UUID, audio models.PodcastAudio) error
	FailPodcast(ctx context.Context, id uuid.UUID, message string) error
	BeginConversion(ctx context.Context, id, voiceID uuid.UUID) error
	CompleteConversion(ctx context.Context, id uuid.UUID, ref models.BlobRef) error
	FailConversion(ctx context.Context, id uuid.UUID, message string) error
	DeletePodcast(ctx context.Context, id uuid.UUID) error
	GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error)
	GetSummary(ctx context.Context, id uuid.UUID) (*models.Summary, error)
}

// Orchestrator accepts podcast and voice jobs, dispatches them and runs them
// when the dispatcher calls back through Run.
type Orchestrator struct {
	store      Store
	blobs      *storage.Manager
	tts        *services.Registry
	voices     *voices.Registry
	cloner     services.VoiceCloner
	converter  services.VoiceConverter
	dispatcher Dispatcher
	now        func() time.Time
}

// NewOrchestrator wires the job runner. cloner and converter may be nil.
func NewOrchestrator(
	store Store,
	blobs *storage.Manager,
	tts *services.Registry,
	voiceRegistry *voices.Registry,
	cloner services.VoiceCloner,
	converter services.VoiceConverter,
	dispatcher Dispatcher,
) *Orchestrator {
	return &Orchestrator{
		store:      store,
		blobs:      blobs,
		tts:        tts,
		voices:     voiceRegistry,
		cloner:     cloner,
		converter:  converter,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// GeneratePodcast validates the request, records a generating podcast and
// dispatches its synthesis. It returns before any audio exists.
func (o *Orchestrator) GeneratePodcast(ctx context.Context, userID uuid.UUID, req models.CreatePodcastRequest) (*models.Podcast, error) {
	doc, err := o.store.GetDocument(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}
	if doc.UserID != userID {
		return nil, apperr.Unauthorized("not authorized to access this document")
	}
	if req.SummaryID != nil {
		summary, err := o.store.GetSummary(ctx, *req.SummaryID)
		if err != nil {
			return nil, err
		}
		if summary.UserID != userID || summary.DocumentID != doc.ID {
			return nil, apperr.Validation("summary does not belong to this document")
		}
	}

	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" {
		provider = DefaultProvider
	}
	language := req.Language
	if language == "" {
		language = DefaultLanguage
	}

	// a custom voice id selects the cloned voice it names
	if voiceID, perr := uuid.Parse(req.VoiceID); perr == nil {
		v, err := o.voices.Get(ctx, userID, voiceID)
		if err != nil {
			return nil, err
		}
		if v.Status != models.VoiceStatusReady || v.Provider != models.VoiceProviderElevenLabs {
			return nil, apperr.Validation("voice %q cannot narrate podcasts", v.Name)
		}
		provider = services.ProviderElevenLabs
	} else if !o.tts.Known(provider) {
		return nil, apperr.Validation("unknown provider %q", provider)
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = doc.Title
	}

	p := &models.Podcast{
		ID:               uuid.New(),
		UserID:           userID,
		DocumentID:       doc.ID,
		SummaryID:        req.SummaryID,
		Title:            title,
		Status:           models.PodcastStatusGenerating,
		Provider:         provider,
		VoiceID:          req.VoiceID,
		Language:         language,
		ConversionStatus: models.ConversionStatusNone,
	}
	if err := o.store.CreatePodcast(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create podcast: %w", err)
	}

	if err := o.dispatcher.Dispatch(ctx, NewTask(TaskGenerate, p.ID)); err != nil {
		msg := "failed to start generation"
		if ferr := o.store.FailPodcast(ctx, p.ID, msg); ferr != nil {
			log.Errorf("[Pipeline] Failed to mark podcast %s failed: %v", p.ID, ferr)
		}
		return nil, fmt.Errorf("%s: %w", msg, err)
	}
	log.Printf("[Pipeline] Podcast %s queued (provider=%s, voice=%s, lang=%s)", p.ID, provider, req.VoiceID, language)
	return p, nil
}

// RequestConversion checks the podcast and voice, moves the conversion to
// processing and dispatches it.
func (o *Orchestrator) RequestConversion(ctx context.Context, userID, podcastID, voiceID uuid.UUID) (*models.Podcast, error) {
	p, err := o.Podcast(ctx, userID, podcastID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PodcastStatusCompleted {
		return nil, apperr.Validation("podcast must be completed before voice conversion")
	}

	v, err := o.voices.Get(ctx, userID, voiceID)
	if err != nil {
		return nil, err
	}
	if v.Status != models.VoiceStatusReady || v.ExternalVoiceID == nil {
		return nil, apperr.Validation("voice %q is not ready", v.Name)
	}
	if v.Provider == models.VoiceProviderRVC && playback.SourceOf(p.Audio) != playback.FileBacked {
		return nil, apperr.Validation("podcast has no audio file to convert")
	}

	if err := o.store.BeginConversion(ctx, p.ID, v.ID); err != nil {
		return nil, err
	}
	p.ConversionStatus = models.ConversionStatusProcessing
	p.ConversionError = nil
	p.ConvertedVoiceID = &v.ID
	if err := o.dispatcher.Dispatch(ctx, NewTask(TaskConvert, p.ID)); err != nil {
		msg := "failed to start conversion"
		if ferr := o.store.FailConversion(ctx, p.ID, msg); ferr != nil {
			log.Errorf("[Pipeline] Failed to mark conversion %s failed: %v", p.ID, ferr)
		}
		return nil, fmt.Errorf("%s: %w", msg, err)
	}
	log.Printf("[Pipeline] Conversion of %s to voice %s queued", p.ID, v.ID)
	return p, nil
}

// TrainVoice moves an uploaded voice to processing and dispatches training.
func (o *Orchestrator) TrainVoice(ctx context.Context, userID, voiceID uuid.UUID) (*models.CustomVoice, error) {
	v, err := o.voices.BeginTraining(ctx, userID, voiceID)
	if err != nil {
		return nil, err
	}
	if err := o.dispatcher.Dispatch(ctx, NewTask(TaskTrain, v.ID)); err != nil {
		msg := "failed to start training"
		if ferr := o.voices.UpdateStatus(ctx, v.ID, models.VoiceStatusFailed, msg); ferr != nil {
			log.Errorf("[Pipeline] Failed to mark voice %s failed: %v", v.ID, ferr)
		}
		return nil, fmt.Errorf("%s: %w", msg, err)
	}
	log.Printf("[Pipeline] Training of voice %s queued", v.ID)
	return v, nil
}

// Run executes a dispatched task.
func (o *Orchestrator) Run(ctx context.Context, task Task) error {
	switch task.Type {
	case TaskGenerate:
		return o.runGenerate(ctx, task.TargetID)
	case TaskConvert:
		return o.runConvert(ctx, task.TargetID)
	case TaskTrain:
		return o.voices.RunTraining(ctx, task.TargetID)
	}
	return fmt.Errorf("unknown task type %q", task.Type)
}

func (o *Orchestrator) runGenerate(ctx context.Context, id uuid.UUID) error {
	p, err := o.store.GetPodcast(ctx, id)
	if err != nil {
		return err
	}
	if p.Status != models.PodcastStatusGenerating {
		log.Warnf("[Pipeline] Podcast %s is %s, skipping generation", id, p.Status)
		return nil
	}

	if err := o.generate(ctx, p); err != nil {
		log.Errorf("[Pipeline] Generation of %s failed: %v", id, err)
		if ferr := o.store.FailPodcast(ctx, id, apperr.Message(err)); ferr != nil {
			log.Errorf("[Pipeline] Failed to mark podcast %s failed: %v", id, ferr)
		}
		return err
	}
	return nil
}

func (o *Orchestrator) generate(ctx context.Context, p *models.Podcast) error {
	text, err := o.sourceText(ctx, p)
	if err != nil {
		return err
	}
	o.progress(ctx, p.ID, 10)

	var (
		res         *services.SynthesisResult
		customVoice *models.CustomVoice
	)
	if voiceID, perr := uuid.Parse(p.VoiceID); perr == nil {
		customVoice, err = o.voices.Get(ctx, p.UserID, voiceID)
		if err != nil {
			return err
		}
		res, err = o.speakWith(ctx, customVoice, text)
		if err != nil {
			return err
		}
	} else {
		syn, err := o.tts.Synthesize(ctx, p.Provider, p.VoiceID, text, p.Language)
		if err != nil {
			return err
		}
		if syn.Browser {
			log.Printf("[Pipeline] Podcast %s will be spoken by the browser (voice=%s)", p.ID, syn.VoiceID)
			return o.store.CompletePodcast(ctx, p.ID, models.PodcastAudio{
				Audio:      models.BlobRef{Storage: models.StorageBrowser, URL: playback.BrowserMarker},
				DurationMs: services.EstimateDuration(text),
			})
		}
		if syn.Fallback {
			log.Printf("[Pipeline] Podcast %s synthesized by fallback provider %s", p.ID, syn.Provider)
		}
		res = syn.Result
	}
	o.progress(ctx, p.ID, 70)

	ref, err := o.storeAudio(ctx, p.UserID, storage.KindPodcast, p.ID, res)
	if err != nil {
		return err
	}
	o.progress(ctx, p.ID, 90)

	err = o.store.CompletePodcast(ctx, p.ID, models.PodcastAudio{
		Audio:      ref,
		Format:     res.Format,
		DurationMs: res.DurationMs,
		SizeBytes:  int64(len(res.Audio)),
	})
	if err != nil {
		o.blobs.Release(ref)
		return err
	}
	if customVoice != nil {
		o.countUsage(ctx, customVoice.ID)
	}
	log.Printf("[Pipeline] Podcast %s completed (%d bytes, %dms)", p.ID, len(res.Audio), res.DurationMs)
	return nil
}

func (o *Orchestrator) runConvert(ctx context.Context, id uuid.UUID) error {
	p, err := o.store.GetPodcast(ctx, id)
	if err != nil {
		return err
	}
	if p.ConversionStatus != models.ConversionStatusProcessing {
		log.Warnf("[Pipeline] Podcast %s conversion is %s, skipping", id, p.ConversionStatus)
		return nil
	}
	if p.ConvertedVoiceID == nil {
		log.Warnf("[Pipeline] Voice for conversion of %s was deleted", id)
		if err := o.store.FailConversion(ctx, id, "voice was deleted"); err != nil {
			return fmt.Errorf("failed to mark conversion %s failed: %w", id, err)
		}
		return nil
	}

	if err := o.convert(ctx, p); err != nil {
		log.Errorf("[Pipeline] Conversion of %s failed: %v", id, err)
		if ferr := o.store.FailConversion(ctx, id, apperr.Message(err)); ferr != nil {
			log.Errorf("[Pipeline] Failed to mark conversion %s failed: %v", id, ferr)
		}
		return err
	}
	return nil
}

func (o *Orchestrator) convert(ctx context.Context, p *models.Podcast) error {
	v, err := o.voices.Get(ctx, p.UserID, *p.ConvertedVoiceID)
	if err != nil {
		return err
	}

	var res *services.SynthesisResult
	switch v.Provider {
	case models.VoiceProviderElevenLabs:
		text, err := o.sourceText(ctx, p)
		if err != nil {
			return err
		}
		res, err = o.speakWith(ctx, v, text)
		if err != nil {
			return err
		}
	default:
		res, err = o.reRender(ctx, p, v)
		if err != nil {
			return err
		}
	}

	ref, err := o.storeAudio(ctx, p.UserID, storage.KindConverted, p.ID, res)
	if err != nil {
		return err
	}
	if err := o.store.CompleteConversion(ctx, p.ID, ref); err != nil {
		o.blobs.Release(ref)
		return err
	}
	o.countUsage(ctx, v.ID)
	log.Printf("[Pipeline] Podcast %s converted to voice %s", p.ID, v.ID)
	return nil
}

// speakWith synthesizes text with a cloned voice.
func (o *Orchestrator) speakWith(ctx context.Context, v *models.CustomVoice, text string) (*services.SynthesisResult, error) {
	if o.cloner == nil || !o.cloner.Configured() {
		return nil, apperr.New(apperr.KindProviderUnavailable, "voice cloning is not configured")
	}
	if v.ExternalVoiceID == nil {
		return nil, apperr.Validation("voice %q is not ready", v.Name)
	}
	return o.cloner.SynthesizeWithVoice(ctx, text, *v.ExternalVoiceID)
}

// reRender runs the original audio through the trained RVC model.
func (o *Orchestrator) reRender(ctx context.Context, p *models.Podcast, v *models.CustomVoice) (*services.SynthesisResult, error) {
	if o.converter == nil {
		return nil, apperr.New(apperr.KindServiceUnavailable, "service unavailable")
	}
	if v.ExternalVoiceID == nil {
		return nil, apperr.Validation("voice %q is not ready", v.Name)
	}
	rc, err := o.blobs.Fetch(ctx, p.Audio)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorageFailure, err, "failed to read podcast audio")
	}
	return o.converter.Convert(ctx, *v.ExternalVoiceID, services.Sample{FileName: path.Base(p.Audio.Key), Data: data})
}

// sourceText is the summary content when the podcast names one, else the
// document text.
func (o *Orchestrator) sourceText(ctx context.Context, p *models.Podcast) (string, error) {
	if p.SummaryID != nil {
		s, err := o.store.GetSummary(ctx, *p.SummaryID)
		if err != nil {
			return "", err
		}
		return s.Content, nil
	}
	doc, err := o.store.GetDocument(ctx, p.DocumentID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(doc.ExtractedText) == "" {
		return "", apperr.Validation("document has no text to narrate")
	}
	return doc.ExtractedText, nil
}

func (o *Orchestrator) storeAudio(ctx context.Context, userID uuid.UUID, kind string, podcastID uuid.UUID, res *services.SynthesisResult) (models.BlobRef, error) {
	format := res.Format
	if format == "" {
		format = "mp3"
	}
	contentType := res.ContentType
	if contentType == "" {
		contentType = services.ContentTypeFor(format)
	}
	return o.blobs.Store(ctx, storage.Object{
		Path:        storage.NewKey(userID.String(), kind, podcastID.String()+"."+format, o.now()),
		Data:        res.Audio,
		ContentType: contentType,
		Metadata: map[string]string{
			"podcast-id": podcastID.String(),
			"user-id":    userID.String(),
		},
	})
}

// progress is advisory; a rejected update only means the job moved on.
func (o *Orchestrator) progress(ctx context.Context, id uuid.UUID, pct int) {
	if err := o.store.UpdatePodcastProgress(ctx, id, pct); err != nil {
		log.Warnf("[Pipeline] Progress update for %s rejected: %v", id, err)
	}
}

func (o *Orchestrator) countUsage(ctx context.Context, voiceID uuid.UUID) {
	if err := o.voices.IncrementUsage(ctx, voiceID); err != nil {
		log.Warnf("[Pipeline] Failed to count usage of voice %s: %v", voiceID, err)
	}
}

// Podcast returns the podcast when it belongs to userID.
func (o *Orchestrator) Podcast(ctx context.Context, userID, id uuid.UUID) (*models.Podcast, error) {
	p, err := o.store.GetPodcast(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, apperr.Unauthorized("not authorized to access this podcast")
	}
	return p, nil
}

func (o *Orchestrator) Podcasts(ctx context.Context, userID uuid.UUID) ([]models.Podcast, error) {
	list, err := o.store.ListPodcasts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list podcasts: %w", err)
	}
	return list, nil
}

// Status is the progress poll view of a podcast.
func (o *Orchestrator) Status(ctx context.Context, userID, id uuid.UUID) (*models.PodcastStatusResponse, error) {
	p, err := o.Podcast(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return &models.PodcastStatusResponse{
		ID:               p.ID,
		Status:           p.Status,
		Progress:         p.Progress,
		ErrorMessage:     p.ErrorMessage,
		ConversionStatus: p.ConversionStatus,
		ConversionError:  p.ConversionError,
	}, nil
}

// OpenAudio opens the requested variant for streaming. Browser-synthesized and
// missing audio are reported as not found. A URL-only reference comes back
// with a nil reader; the caller sends the client to src.Ref.URL.
func (o *Orchestrator) OpenAudio(ctx context.Context, userID, id uuid.UUID, variant string) (io.ReadCloser, *models.Podcast, playback.Source, error) {
	p, err := o.Podcast(ctx, userID, id)
	if err != nil {
		return nil, nil, playback.Source{}, err
	}
	src, ok := playback.Select(p, variant)
	if !ok || src.Kind != playback.FileBacked {
		return nil, nil, src, apperr.NotFound("audio file")
	}
	if playback.URLOnly(*src.Ref) {
		return nil, p, src, nil
	}
	rc, err := o.blobs.Fetch(ctx, *src.Ref)
	if err != nil {
		return nil, nil, src, err
	}
	return rc, p, src, nil
}

// DeletePodcast removes the record and releases both audio variants.
func (o *Orchestrator) DeletePodcast(ctx context.Context, userID, id uuid.UUID) error {
	p, err := o.Podcast(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := o.store.DeletePodcast(ctx, id); err != nil {
		return err
	}
	o.blobs.Release(p.Audio)
	o.blobs.Release(p.ConvertedAudio)
	log.Printf("[Pipeline] Deleted podcast %s", id)
	return nil
}
