package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bobarin/docucast/internal/apperr"
	"github.com/bobarin/docucast/internal/models"
)

// PutBlob writes data under key split into chunkSize pieces, replacing any previous content.
func (db *DB) PutBlob(ctx context.Context, key, filename, contentType string, data []byte, chunkSize int) error {
	if chunkSize <= 0 {
		return fmt.Errorf("invalid chunk size %d", chunkSize)
	}
	count := (len(data) + chunkSize - 1) / chunkSize

	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM blob_files WHERE key = $1`, key); err != nil {
			return fmt.Errorf("failed to clear blob: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO blob_files (key, filename, content_type, length, chunk_size, chunk_count)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, key, filename, contentType, len(data), chunkSize, count); err != nil {
			return fmt.Errorf("failed to insert blob: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO blob_chunks (key, n, data) VALUES ($1, $2, $3)`)
		if err != nil {
			return fmt.Errorf("failed to prepare chunk insert: %w", err)
		}
		defer stmt.Close()

		for n := 0; n < count; n++ {
			end := (n + 1) * chunkSize
			if end > len(data) {
				end = len(data)
			}
			if _, err := stmt.ExecContext(ctx, key, n, data[n*chunkSize:end]); err != nil {
				return fmt.Errorf("failed to insert chunk %d: %w", n, err)
			}
		}
		return nil
	})
}

func (db *DB) BlobInfo(ctx context.Context, key string) (*models.BlobMeta, error) {
	meta := &models.BlobMeta{}
	err := db.QueryRowContext(ctx, `
		SELECT filename, content_type, length, chunk_size, chunk_count
		FROM blob_files WHERE key = $1
	`, key).Scan(&meta.Filename, &meta.ContentType, &meta.Length, &meta.ChunkSize, &meta.ChunkCount)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("blob")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get blob: %w", err)
	}
	return meta, nil
}

func (db *DB) BlobChunk(ctx context.Context, key string, n int) ([]byte, error) {
	var data []byte
	err := db.QueryRowContext(ctx, `SELECT data FROM blob_chunks WHERE key = $1 AND n = $2`, key, n).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("blob chunk")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk %d: %w", n, err)
	}
	return data, nil
}

func (db *DB) DeleteBlob(ctx context.Context, key string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM blob_files WHERE key = $1`, key)
	return err
}
