package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bobarin/docucast/internal/apperr"
	"github.com/bobarin/docucast/internal/models"
	"github.com/google/uuid"
)

func (db *DB) CreateSummary(ctx context.Context, s *models.Summary) error {
	query := `
		INSERT INTO summaries (
			id, user_id, document_id, title, style, content, word_count, provider
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	return db.QueryRowContext(
		ctx, query,
		s.ID, s.UserID, s.DocumentID, s.Title, s.Style, s.Content, s.WordCount, s.Provider,
	).Scan(&s.CreatedAt)
}

func (db *DB) GetSummary(ctx context.Context, id uuid.UUID) (*models.Summary, error) {
	query := `
		SELECT id, user_id, document_id, title, style, content, word_count, provider, created_at
		FROM summaries
		WHERE id = $1
	`

	s := &models.Summary{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.UserID, &s.DocumentID, &s.Title, &s.Style,
		&s.Content, &s.WordCount, &s.Provider, &s.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("summary")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}
	return s, nil
}

func (db *DB) ListSummaries(ctx context.Context, documentID uuid.UUID) ([]models.Summary, error) {
	query := `
		SELECT id, user_id, document_id, title, style, content, word_count, provider, created_at
		FROM summaries
		WHERE document_id = $1
		ORDER BY created_at DESC
	`

	rows, err := db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}
	defer rows.Close()

	var summaries []models.Summary
	for rows.Next() {
		var s models.Summary
		if err := rows.Scan(
			&s.ID, &s.UserID, &s.DocumentID, &s.Title, &s.Style,
			&s.Content, &s.WordCount, &s.Provider, &s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
