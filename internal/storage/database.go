package storage

import (
	"context"
	"errors"
	"io"

	"github.com/bobarin/docucast/internal/models"
)

// ChunkStore persists blobs as numbered chunks. db.DB implements it.
type ChunkStore interface {
	PutBlob(ctx context.Context, key, filename, contentType string, data []byte, chunkSize int) error
	BlobInfo(ctx context.Context, key string) (*models.BlobMeta, error)
	BlobChunk(ctx context.Context, key string, n int) ([]byte, error)
	DeleteBlob(ctx context.Context, key string) error
}

// Database keeps blobs attached to the primary database. Used for voice samples.
type Database struct {
	chunks    ChunkStore
	chunkSize int
}

func NewDatabase(chunks ChunkStore, chunkSize int) *Database {
	if chunkSize <= 0 {
		chunkSize = 255 * 1024
	}
	return &Database{chunks: chunks, chunkSize: chunkSize}
}

func (d *Database) Kind() models.StorageType { return models.StorageDatabase }

func (d *Database) Store(ctx context.Context, obj Object) (models.BlobRef, error) {
	filename := obj.Metadata["filename"]
	if filename == "" {
		filename = obj.Path
	}
	if err := d.chunks.PutBlob(ctx, obj.Path, filename, obj.ContentType, obj.Data, d.chunkSize); err != nil {
		return models.BlobRef{}, err
	}
	return models.BlobRef{Storage: models.StorageDatabase, Key: obj.Path}, nil
}

// Fetch returns a seekable reader that loads one chunk at a time.
func (d *Database) Fetch(ctx context.Context, ref models.BlobRef) (io.ReadCloser, error) {
	meta, err := d.chunks.BlobInfo(ctx, ref.Key)
	if err != nil {
		return nil, err
	}
	chunkSize := int64(meta.ChunkSize)
	if chunkSize <= 0 {
		chunkSize = meta.Length + 1
	}
	return &chunkReader{ctx: ctx, chunks: d.chunks, key: ref.Key, size: meta.Length, chunkSize: chunkSize, cur: -1}, nil
}

func (d *Database) Delete(ctx context.Context, ref models.BlobRef) error {
	return d.chunks.DeleteBlob(ctx, ref.Key)
}

type chunkReader struct {
	ctx       context.Context
	chunks    ChunkStore
	key       string
	size      int64
	chunkSize int64
	pos       int64
	cur       int // index of the loaded chunk, -1 when none
	data      []byte
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.pos >= r.size {
		return 0, io.EOF
	}
	n := int(r.pos / r.chunkSize)
	if n != r.cur {
		data, err := r.chunks.BlobChunk(r.ctx, r.key, n)
		if err != nil {
			return 0, err
		}
		r.cur, r.data = n, data
	}
	off := r.pos - int64(n)*r.chunkSize
	if off >= int64(len(r.data)) {
		return 0, io.ErrUnexpectedEOF
	}
	c := copy(p, r.data[off:])
	r.pos += int64(c)
	return c, nil
}

func (r *chunkReader) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = r.pos + offset
	case io.SeekEnd:
		pos = r.size + offset
	default:
		return 0, errors.New("chunkReader.Seek: invalid whence")
	}
	if pos < 0 {
		return 0, errors.New("chunkReader.Seek: negative position")
	}
	r.pos = pos
	return pos, nil
}

func (r *chunkReader) Close() error {
	r.data = nil
	r.cur = -1
	r.pos = r.size
	return nil
}
