package watermark

import (
	"context"
	"fmt"

	"github.com/maauso/media-watermark/internal/storage"
	"github.com/maauso/media-watermark/internal/upload"
)

// materializer turns an upload handle into a readable path, spilling through
// the temp store when the handle is not file-backed.
type materializer struct {
	store storage.Storage
}

// materialize returns the source path and a release func that removes any
// spilled file. release is always non-nil and safe to call more than once.
func (m materializer) materialize(ctx context.Context, h *upload.Handle) (upload.Materialized, func(), error) {
	noop := func() {}
	if h == nil || h.Source == nil {
		return upload.Materialized{}, noop, fmt.Errorf("%w: %w", ErrIOFailure, upload.ErrNoSource)
	}

	src, err := h.Source.Materialize(ctx, m.store, h.Ext())
	if err != nil {
		return upload.Materialized{}, noop, fmt.Errorf("%w: materialize source: %w", ErrIOFailure, err)
	}
	if !src.Spilled {
		return src, noop, nil
	}

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		_ = m.store.CleanupTemp(context.WithoutCancel(ctx), []string{src.Path})
	}
	return src, release, nil
}
