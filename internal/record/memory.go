package record

import (
	"context"
	"sync"
)

// Compile-time check that MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository is an in-memory implementation of Repository.
// Records do not survive a restart.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryRepository creates a new in-memory record repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[string]*Record),
	}
}

// Save stores a clone of rec.
func (r *MemoryRepository) Save(_ context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.ID] = rec.Clone()
	return nil
}

// FindByID returns a clone of the record with the given ID.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}
