// Package record keeps track of uploads the host has accepted and persisted.
package record

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an upload record cannot be found by ID.
var ErrNotFound = errors.New("upload record not found")

// Record describes one persisted upload.
type Record struct {
	// ID is the unique identifier of the upload.
	ID string
	// Filename is the filename that was persisted, after any substitution.
	Filename string
	// ContentType is the content type that was persisted.
	ContentType string
	// Size is the persisted byte length.
	Size int64
	// Location is where the bytes ended up: a local path or an object URL.
	Location string
	// Watermarked reports whether the pipeline substituted the upload.
	Watermarked bool
	// CreatedAt is when the upload was persisted.
	CreatedAt time.Time
}

// Clone returns a copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Repository defines the interface for upload record persistence.
type Repository interface {
	// Save stores a record, replacing any record with the same ID.
	Save(ctx context.Context, rec *Record) error

	// FindByID retrieves a record by its ID.
	// Returns ErrNotFound if the record does not exist.
	FindByID(ctx context.Context, id string) (*Record, error)
}
