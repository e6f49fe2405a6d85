package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bobarin/docucast/internal/apperr"
	"github.com/bobarin/docucast/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const voiceColumns = `
	id, user_id, name, description, sample_storage_type, sample_key, sample_url,
	sample_file_name, sample_size, duration_sec, format, status, processing_error,
	provider, external_voice_id, gender, language, accent, tags,
	times_used, last_used_at, is_default, created_at, updated_at
`

func (db *DB) CreateVoice(ctx context.Context, v *models.CustomVoice) error {
	query := `
		INSERT INTO custom_voices (
			id, user_id, name, description, sample_storage_type, sample_key, sample_url,
			sample_file_name, sample_size, duration_sec, format, status,
			provider, external_voice_id, gender, language, accent, tags
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING created_at, updated_at
	`

	if v.Tags == nil {
		v.Tags = pq.StringArray{}
	}
	return db.QueryRowContext(
		ctx, query,
		v.ID, v.UserID, v.Name, v.Description,
		nullString(string(v.Sample.Storage)), nullString(v.Sample.Key), nullString(v.Sample.URL),
		v.SampleFileName, v.SampleSize, v.DurationSec, v.Format, v.Status,
		v.Provider, v.ExternalVoiceID, v.Gender, v.Language, v.Accent, v.Tags,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
}

func (db *DB) GetVoice(ctx context.Context, id uuid.UUID) (*models.CustomVoice, error) {
	query := `SELECT ` + voiceColumns + ` FROM custom_voices WHERE id = $1`

	v, err := scanVoice(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("voice")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get voice: %w", err)
	}
	return v, nil
}

// ListVoices returns a user's voices newest first, optionally only the ready ones.
func (db *DB) ListVoices(ctx context.Context, userID uuid.UUID, readyOnly bool) ([]models.CustomVoice, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseSelect := `SELECT ` + voiceColumns + ` FROM custom_voices WHERE user_id = $1`
	if readyOnly {
		rows, err = db.QueryContext(ctx, baseSelect+` AND status = $2 ORDER BY created_at DESC`, userID, models.VoiceStatusReady)
	} else {
		rows, err = db.QueryContext(ctx, baseSelect+` ORDER BY created_at DESC`, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list voices: %w", err)
	}
	defer rows.Close()

	var voices []models.CustomVoice
	for rows.Next() {
		v, err := scanVoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan voice: %w", err)
		}
		voices = append(voices, *v)
	}
	return voices, rows.Err()
}

func (db *DB) GetDefaultVoice(ctx context.Context, userID uuid.UUID) (*models.CustomVoice, error) {
	query := `SELECT ` + voiceColumns + ` FROM custom_voices WHERE user_id = $1 AND is_default LIMIT 1`

	v, err := scanVoice(db.QueryRowContext(ctx, query, userID))
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("default voice")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get default voice: %w", err)
	}
	return v, nil
}

// UpdateVoiceDetails writes the user-editable metadata fields.
func (db *DB) UpdateVoiceDetails(ctx context.Context, v *models.CustomVoice) error {
	query := `
		UPDATE custom_voices
		SET name = $1, description = $2, gender = $3, language = $4, accent = $5, tags = $6,
		    updated_at = NOW()
		WHERE id = $7
		RETURNING updated_at
	`
	err := db.QueryRowContext(ctx, query,
		v.Name, v.Description, v.Gender, v.Language, v.Accent, v.Tags, v.ID,
	).Scan(&v.UpdatedAt)
	if err == sql.ErrNoRows {
		return apperr.NotFound("voice")
	}
	return err
}

// TransitionVoice moves a voice from one status to another. processingError
// replaces the stored error; externalID is written only when non-nil.
func (db *DB) TransitionVoice(ctx context.Context, id uuid.UUID, from, to models.VoiceStatus, processingError, externalID *string) error {
	query := `
		UPDATE custom_voices
		SET status = $1,
		    processing_error = $2,
		    external_voice_id = COALESCE($3, external_voice_id),
		    updated_at = NOW()
		WHERE id = $4 AND status = $5
	`
	return db.cas(ctx, "voice status change", query, to, processingError, externalID, id, from)
}

// SetDefaultVoice clears the user's current default and marks id, atomically.
func (db *DB) SetDefaultVoice(ctx context.Context, userID, id uuid.UUID) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE custom_voices SET is_default = FALSE, updated_at = NOW() WHERE user_id = $1 AND is_default`,
			userID,
		); err != nil {
			return fmt.Errorf("failed to clear default voice: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE custom_voices SET is_default = TRUE, updated_at = NOW() WHERE id = $1 AND user_id = $2`,
			id, userID,
		)
		if err != nil {
			return fmt.Errorf("failed to set default voice: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("voice")
		}
		return nil
	})
}

// ClearDefaultVoice unmarks id as the user's default.
func (db *DB) ClearDefaultVoice(ctx context.Context, userID, id uuid.UUID) error {
	_, err := db.ExecContext(ctx,
		`UPDATE custom_voices SET is_default = FALSE, updated_at = NOW() WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear default voice: %w", err)
	}
	return nil
}

func (db *DB) IncrementVoiceUsage(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE custom_voices SET times_used = times_used + 1, last_used_at = NOW() WHERE id = $1`
	_, err := db.ExecContext(ctx, query, id)
	return err
}

func (db *DB) DeleteVoice(ctx context.Context, id uuid.UUID) error {
	res, err := db.ExecContext(ctx, `DELETE FROM custom_voices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete voice: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("voice")
	}
	return nil
}

func scanVoice(row rowScanner) (*models.CustomVoice, error) {
	var (
		v                     models.CustomVoice
		storageType, key, url sql.NullString
		procErr, externalID   sql.NullString
	)
	err := row.Scan(
		&v.ID, &v.UserID, &v.Name, &v.Description, &storageType, &key, &url,
		&v.SampleFileName, &v.SampleSize, &v.DurationSec, &v.Format, &v.Status, &procErr,
		&v.Provider, &externalID, &v.Gender, &v.Language, &v.Accent, &v.Tags,
		&v.TimesUsed, &v.LastUsedAt, &v.IsDefault, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	v.Sample = blobRef(storageType, key, url)
	if procErr.Valid {
		v.ProcessingError = &procErr.String
	}
	if externalID.Valid {
		v.ExternalVoiceID = &externalID.String
	}
	return &v, nil
}
