// Package storage provides temporary and persistent file storage capabilities.
// It defines the Storage interface (port) used by the watermark pipeline for
// per-request temp files and by the upload host for final persistence, with
// implementations for local disk and S3.
package storage

import (
	"context"
	"io"
)

// Storage defines the interface for temporary and persistent file storage.
type Storage interface {
	// SaveTemp writes data to a new temporary file and returns its path.
	// The pattern follows os.CreateTemp ("name_*.ext").
	SaveTemp(ctx context.Context, pattern string, data io.Reader) (path string, err error)

	// ReserveTemp creates a new empty temporary file and returns its path,
	// for tools that write their output to a path themselves.
	ReserveTemp(ctx context.Context, pattern string) (path string, err error)

	// LoadTemp reads a temporary file and returns a reader.
	// The caller is responsible for closing the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// Persist stores an accepted upload under key and returns its location.
	// size is the byte length of data, or -1 when it is not known up front.
	Persist(ctx context.Context, key, contentType string, data io.Reader, size int64) (location string, err error)
}
