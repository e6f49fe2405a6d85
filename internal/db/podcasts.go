package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bobarin/docucast/internal/apperr"
	"github.com/bobarin/docucast/internal/models"
	"github.com/google/uuid"
)

const podcastColumns = `
	id, user_id, document_id, summary_id, title, processing_status, progress,
	error_message, provider, voice_id, language,
	audio_storage_type, audio_key, audio_url, audio_format, duration_ms, size_bytes,
	conversion_status, conversion_error,
	converted_storage_type, converted_key, converted_url, converted_voice_id,
	created_at, updated_at
`

func (db *DB) CreatePodcast(ctx context.Context, p *models.Podcast) error {
	query := `
		INSERT INTO podcasts (
			id, user_id, document_id, summary_id, title, processing_status, progress,
			provider, voice_id, language, conversion_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		p.ID, p.UserID, p.DocumentID, p.SummaryID, p.Title, p.Status, p.Progress,
		p.Provider, p.VoiceID, p.Language, p.ConversionStatus,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (db *DB) GetPodcast(ctx context.Context, id uuid.UUID) (*models.Podcast, error) {
	query := `SELECT ` + podcastColumns + ` FROM podcasts WHERE id = $1`

	p, err := scanPodcast(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("podcast")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get podcast: %w", err)
	}
	return p, nil
}

// ListPodcasts returns a user's podcasts, newest first.
func (db *DB) ListPodcasts(ctx context.Context, userID uuid.UUID) ([]models.Podcast, error) {
	query := `SELECT ` + podcastColumns + ` FROM podcasts WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list podcasts: %w", err)
	}
	defer rows.Close()

	var podcasts []models.Podcast
	for rows.Next() {
		p, err := scanPodcast(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan podcast: %w", err)
		}
		podcasts = append(podcasts, *p)
	}
	return podcasts, rows.Err()
}

// UpdatePodcastProgress records advisory progress while the podcast is generating.
func (db *DB) UpdatePodcastProgress(ctx context.Context, id uuid.UUID, progress int) error {
	query := `
		UPDATE podcasts SET progress = $1, updated_at = NOW()
		WHERE id = $2 AND processing_status = $3
	`
	return db.cas(ctx, "podcast progress", query, progress, id, models.PodcastStatusGenerating)
}

// CompletePodcast moves generating -> completed and attaches the audio.
func (db *DB) CompletePodcast(ctx context.Context, id uuid.UUID, audio models.PodcastAudio) error {
	query := `
		UPDATE podcasts
		SET processing_status = $1, progress = 100,
		    audio_storage_type = $2, audio_key = $3, audio_url = $4, audio_format = $5,
		    duration_ms = $6, size_bytes = $7, error_message = NULL, updated_at = NOW()
		WHERE id = $8 AND processing_status = $9
	`
	return db.cas(ctx, "podcast completion", query,
		models.PodcastStatusCompleted,
		audio.Audio.Storage, nullString(audio.Audio.Key), nullString(audio.Audio.URL), nullString(audio.Format),
		audio.DurationMs, audio.SizeBytes,
		id, models.PodcastStatusGenerating,
	)
}

// FailPodcast moves generating -> failed. Failed is terminal.
func (db *DB) FailPodcast(ctx context.Context, id uuid.UUID, message string) error {
	query := `
		UPDATE podcasts
		SET processing_status = $1, error_message = $2, updated_at = NOW()
		WHERE id = $3 AND processing_status = $4
	`
	return db.cas(ctx, "podcast failure", query,
		models.PodcastStatusFailed, message, id, models.PodcastStatusGenerating)
}

// BeginConversion moves conversion none|failed -> processing on a completed podcast.
func (db *DB) BeginConversion(ctx context.Context, id, voiceID uuid.UUID) error {
	query := `
		UPDATE podcasts
		SET conversion_status = $1, conversion_error = NULL, converted_voice_id = $2, updated_at = NOW()
		WHERE id = $3 AND processing_status = $4 AND conversion_status IN ($5, $6)
	`
	return db.cas(ctx, "conversion start", query,
		models.ConversionStatusProcessing, voiceID, id,
		models.PodcastStatusCompleted, models.ConversionStatusNone, models.ConversionStatusFailed,
	)
}

// CompleteConversion moves conversion processing -> completed and attaches the converted audio.
func (db *DB) CompleteConversion(ctx context.Context, id uuid.UUID, ref models.BlobRef) error {
	query := `
		UPDATE podcasts
		SET conversion_status = $1, converted_storage_type = $2, converted_key = $3, converted_url = $4,
		    conversion_error = NULL, updated_at = NOW()
		WHERE id = $5 AND conversion_status = $6
	`
	return db.cas(ctx, "conversion completion", query,
		models.ConversionStatusCompleted, ref.Storage, nullString(ref.Key), nullString(ref.URL),
		id, models.ConversionStatusProcessing,
	)
}

// FailConversion moves conversion processing -> failed. The base audio is left untouched.
func (db *DB) FailConversion(ctx context.Context, id uuid.UUID, message string) error {
	query := `
		UPDATE podcasts
		SET conversion_status = $1, conversion_error = $2, updated_at = NOW()
		WHERE id = $3 AND conversion_status = $4
	`
	return db.cas(ctx, "conversion failure", query,
		models.ConversionStatusFailed, message, id, models.ConversionStatusProcessing)
}

func (db *DB) DeletePodcast(ctx context.Context, id uuid.UUID) error {
	res, err := db.ExecContext(ctx, `DELETE FROM podcasts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete podcast: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("podcast")
	}
	return nil
}

// cas executes a conditional UPDATE and reports a lost race as an invalid transition.
func (db *DB) cas(ctx context.Context, what, query string, args ...interface{}) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to apply %s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to apply %s: %w", what, err)
	}
	if n == 0 {
		return apperr.New(apperr.KindInvalidTransition, "%s rejected: state changed", what)
	}
	return nil
}

func scanPodcast(row rowScanner) (*models.Podcast, error) {
	var (
		p                      models.Podcast
		aType, aKey, aURL      sql.NullString
		cType, cKey, cURL      sql.NullString
		format, errMsg, cvtErr sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.UserID, &p.DocumentID, &p.SummaryID, &p.Title, &p.Status, &p.Progress,
		&errMsg, &p.Provider, &p.VoiceID, &p.Language,
		&aType, &aKey, &aURL, &format, &p.DurationMs, &p.SizeBytes,
		&p.ConversionStatus, &cvtErr,
		&cType, &cKey, &cURL, &p.ConvertedVoiceID,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Audio = blobRef(aType, aKey, aURL)
	p.ConvertedAudio = blobRef(cType, cKey, cURL)
	p.AudioFormat = format.String
	if errMsg.Valid {
		p.ErrorMessage = &errMsg.String
	}
	if cvtErr.Valid {
		p.ConversionError = &cvtErr.String
	}
	return &p, nil
}
