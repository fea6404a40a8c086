package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// copyChunkSize bounds the buffer used when streaming files to disk.
const copyChunkSize = 16 * 1024

// ErrInvalidKey is returned when a persistence key would escape the upload directory.
var ErrInvalidKey = errors.New("storage: invalid key")

// Compile-time check that LocalStorage implements Storage.
var _ Storage = (*LocalStorage)(nil)

// LocalStorage implements the Storage interface using local disk.
// Temporary files live in tempDir; persisted uploads live in uploadDir.
type LocalStorage struct {
	tempDir   string
	uploadDir string
}

// NewLocalStorage creates a new LocalStorage instance.
// If tempDir is empty, a "media-watermark" directory under os.TempDir() is
// used. If uploadDir is empty, "uploads" under tempDir is used.
// Both directories are created if they don't exist.
func NewLocalStorage(tempDir, uploadDir string) (*LocalStorage, error) {
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "media-watermark")
	}
	if uploadDir == "" {
		uploadDir = filepath.Join(tempDir, "uploads")
	}

	if err := os.MkdirAll(tempDir, 0750); err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}
	if err := os.MkdirAll(uploadDir, 0750); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}

	return &LocalStorage{tempDir: tempDir, uploadDir: uploadDir}, nil
}

// TempDir returns the temporary directory path.
func (s *LocalStorage) TempDir() string {
	return s.tempDir
}

// UploadDir returns the directory persisted uploads are written to.
func (s *LocalStorage) UploadDir() string {
	return s.uploadDir
}

// SaveTemp copies data into a new temporary file in bounded chunks and
// returns the file path. The file is removed again if the copy fails.
func (s *LocalStorage) SaveTemp(ctx context.Context, pattern string, data io.Reader) (string, error) {
	f, err := s.createTemp(ctx, pattern)
	if err != nil {
		return "", err
	}

	fileName := f.Name()
	if _, err := copyChunked(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(fileName)
		return "", fmt.Errorf("write temp file: %w", err)
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(fileName)
		return "", fmt.Errorf("flush temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(fileName)
		return "", fmt.Errorf("close temp file: %w", err)
	}

	return fileName, nil
}

// ReserveTemp creates an empty temporary file and returns its path.
func (s *LocalStorage) ReserveTemp(ctx context.Context, pattern string) (string, error) {
	f, err := s.createTemp(ctx, pattern)
	if err != nil {
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return f.Name(), nil
}

func (s *LocalStorage) createTemp(ctx context.Context, pattern string) (*os.File, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	f, err := os.CreateTemp(s.tempDir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return f, nil
}

// LoadTemp reads a temporary file and returns a reader.
// The caller is responsible for closing the returned ReadCloser.
func (s *LocalStorage) LoadTemp(ctx context.Context, path string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	f, err := os.Open(path) // #nosec G304 - path is provided by trusted caller
	if err != nil {
		return nil, fmt.Errorf("open temp file: %w", err)
	}

	return f, nil
}

// CleanupTemp removes the specified temporary files.
// It continues cleanup even if some files fail to delete,
// returning the first error encountered.
func (s *LocalStorage) CleanupTemp(ctx context.Context, paths []string) error {
	var firstErr error
	for _, p := range paths {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove temp file %s: %w", p, err)
			}
		}
	}
	return firstErr
}

// Persist writes data to uploadDir/key and returns the absolute file path.
func (s *LocalStorage) Persist(ctx context.Context, key, _ string, data io.Reader, _ int64) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	dst, err := s.uploadPath(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return "", fmt.Errorf("create upload directory: %w", err)
	}

	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) // #nosec G304 - key is validated by uploadPath
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := copyChunked(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(dst)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("close upload file: %w", err)
	}

	abs, err := filepath.Abs(dst)
	if err != nil {
		return dst, nil
	}
	return abs, nil
}

func (s *LocalStorage) uploadPath(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if key == "" || strings.HasSuffix(key, "/") || clean == "/" {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.uploadDir, clean), nil
}

func copyChunked(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, copyChunkSize)
	return io.CopyBuffer(dst, src, buf)
}
