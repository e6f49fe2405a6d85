package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bobarin/docucast/internal/apperr"
	"github.com/bobarin/docucast/internal/models"
	"github.com/google/uuid"
)

const documentColumns = `
	id, user_id, title, original_name, file_type, file_size,
	storage_type, storage_key, file_url, extracted_text, word_count,
	processing_status, created_at, updated_at
`

func (db *DB) CreateDocument(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (
			id, user_id, title, original_name, file_type, file_size,
			storage_type, storage_key, file_url, extracted_text, word_count,
			processing_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		doc.ID, doc.UserID, doc.Title, doc.OriginalName, doc.FileType, doc.FileSize,
		doc.File.Storage, nullString(doc.File.Key), nullString(doc.File.URL),
		doc.ExtractedText, doc.WordCount, doc.ProcessingStatus,
	).Scan(&doc.CreatedAt, &doc.UpdatedAt)
}

func (db *DB) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`

	doc, err := scanDocument(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("document")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// ListDocuments returns a user's documents, newest first.
func (db *DB) ListDocuments(ctx context.Context, userID uuid.UUID) ([]models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// DeleteDocumentCascade removes the document with its summaries and podcasts in
// one transaction and returns the blob references that are no longer owned by
// any row, for the caller to release.
func (db *DB) DeleteDocumentCascade(ctx context.Context, id uuid.UUID) ([]models.BlobRef, error) {
	var refs []models.BlobRef

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var storageType, key, url sql.NullString
		err := tx.QueryRowContext(ctx,
			`SELECT storage_type, storage_key, file_url FROM documents WHERE id = $1 FOR UPDATE`, id,
		).Scan(&storageType, &key, &url)
		if err == sql.ErrNoRows {
			return apperr.NotFound("document")
		}
		if err != nil {
			return fmt.Errorf("failed to lock document: %w", err)
		}
		if ref := blobRef(storageType, key, url); !ref.IsZero() {
			refs = append(refs, ref)
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT audio_storage_type, audio_key, audio_url,
			       converted_storage_type, converted_key, converted_url
			FROM podcasts WHERE document_id = $1
		`, id)
		if err != nil {
			return fmt.Errorf("failed to list document podcasts: %w", err)
		}
		for rows.Next() {
			var aType, aKey, aURL, cType, cKey, cURL sql.NullString
			if err := rows.Scan(&aType, &aKey, &aURL, &cType, &cKey, &cURL); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan podcast audio: %w", err)
			}
			for _, ref := range []models.BlobRef{blobRef(aType, aKey, aURL), blobRef(cType, cKey, cURL)} {
				if !ref.IsZero() {
					refs = append(refs, ref)
				}
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM podcasts WHERE document_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete podcasts: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM summaries WHERE document_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete summaries: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		doc                   models.Document
		storageType, key, url sql.NullString
	)
	err := row.Scan(
		&doc.ID, &doc.UserID, &doc.Title, &doc.OriginalName, &doc.FileType, &doc.FileSize,
		&storageType, &key, &url, &doc.ExtractedText, &doc.WordCount,
		&doc.ProcessingStatus, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.File = blobRef(storageType, key, url)
	return &doc, nil
}

func blobRef(storageType, key, url sql.NullString) models.BlobRef {
	return models.BlobRef{
		Storage: models.StorageType(storageType.String),
		Key:     key.String,
		URL:     url.String,
	}
}
