package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bobarin/docucast/internal/apperr"
	"github.com/bobarin/docucast/internal/models"
)

// Local stores objects under a directory that the API serves at publicPath.
type Local struct {
	root       string
	publicPath string
}

func NewLocal(root, publicPath string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create uploads dir %s: %w", root, err)
	}
	return &Local{root: root, publicPath: strings.TrimRight(publicPath, "/")}, nil
}

func (l *Local) Kind() models.StorageType { return models.StorageLocal }

// Root is the directory files are written under.
func (l *Local) Root() string { return l.root }

func (l *Local) Store(ctx context.Context, obj Object) (models.BlobRef, error) {
	full, err := l.resolve(obj.Path)
	if err != nil {
		return models.BlobRef{}, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return models.BlobRef{}, fmt.Errorf("failed to create dir: %w", err)
	}
	if err := os.WriteFile(full, obj.Data, 0o644); err != nil {
		return models.BlobRef{}, fmt.Errorf("failed to write %s: %w", obj.Path, err)
	}

	return models.BlobRef{
		Storage: models.StorageLocal,
		Key:     obj.Path,
		URL:     l.publicPath + "/" + obj.Path,
	}, nil
}

func (l *Local) Fetch(ctx context.Context, ref models.BlobRef) (io.ReadCloser, error) {
	full, err := l.resolve(ref.Key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, apperr.NotFound("audio file")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", ref.Key, err)
	}
	return f, nil
}

func (l *Local) Delete(ctx context.Context, ref models.BlobRef) error {
	full, err := l.resolve(ref.Key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", ref.Key, err)
	}
	return nil
}

// resolve maps a key to a path inside root, rejecting traversal.
func (l *Local) resolve(key string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(key))
	full := filepath.Join(l.root, clean)
	if key == "" || clean == string(filepath.Separator) {
		return "", apperr.Validation("invalid storage key %q", key)
	}
	return full, nil
}
