package watermark

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/media-watermark/internal/media"
	"github.com/maauso/media-watermark/internal/storage"
	"github.com/maauso/media-watermark/internal/upload"
)

// Compile-time check that VideoTransform implements Processor.
var _ Processor = (*VideoTransform)(nil)

// VideoTransform burns the watermark into videos with an external overlay tool.
type VideoTransform struct {
	guards    *Guards
	store     storage.Storage
	overlayer media.VideoOverlayer
	src       materializer
	logger    *slog.Logger
	now       func() time.Time
}

// VideoOption configures a VideoTransform.
type VideoOption func(*VideoTransform)

// WithClock overrides the clock used for fallback filenames.
func WithClock(now func() time.Time) VideoOption {
	return func(t *VideoTransform) {
		t.now = now
	}
}

// NewVideoTransform creates a VideoTransform.
func NewVideoTransform(guards *Guards, store storage.Storage, overlayer media.VideoOverlayer, logger *slog.Logger, opts ...VideoOption) *VideoTransform {
	if logger == nil {
		logger = slog.Default()
	}
	t := &VideoTransform{
		guards:    guards,
		store:     store,
		overlayer: overlayer,
		src:       materializer{store: store},
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Process returns a watermarked copy of h, or nil if the video was skipped
// or the overlay failed. The overlay blocks for its full duration.
func (t *VideoTransform) Process(ctx context.Context, h *upload.Handle) *upload.Handle {
	return runTransform(ctx, t.logger, KindVideo, h, func(ctx context.Context) (*upload.Handle, error) {
		return t.process(ctx, h)
	})
}

func (t *VideoTransform) process(ctx context.Context, h *upload.Handle) (*upload.Handle, error) {
	if !t.guards.CanRunVideo() {
		return nil, fmt.Errorf("%w: video transcoder", ErrCapabilityUnavailable)
	}
	if !t.guards.WatermarkPresent() {
		return nil, fmt.Errorf("%w: %s", ErrAssetMissing, t.guards.WatermarkPath())
	}

	src, release, err := t.src.materialize(ctx, h)
	defer release()
	if err != nil {
		return nil, err
	}
	if err := t.guards.checkSize(src.Path); err != nil {
		return nil, err
	}

	out, err := t.store.ReserveTemp(ctx, "video_watermarked_*.mp4")
	if err != nil {
		return nil, fmt.Errorf("%w: reserve output: %w", ErrIOFailure, err)
	}
	// The tool output is copied into a handle-owned file below, so this one
	// never outlives the call.
	defer t.discard(ctx, out)

	t.logger.Info("running video overlay",
		slog.String("source", src.Path),
		slog.String("filename", filenameOf(h)),
	)

	res, runErr := t.overlayer.Overlay(ctx, media.OverlayRequest{
		Source:     src.Path,
		Watermark:  t.guards.WatermarkPath(),
		Output:     out,
		WidthRatio: WidthRatio,
		OffsetX:    VideoOffset,
		OffsetY:    VideoOffset,
	})
	if runErr != nil || res.ExitCode != 0 || !nonEmptyFile(out) {
		return nil, &processError{result: res, cause: runErr}
	}

	f, err := t.store.LoadTemp(ctx, out)
	if err != nil {
		return nil, fmt.Errorf("%w: open overlay output: %w", ErrIOFailure, err)
	}
	owned, err := t.store.SaveTemp(ctx, "wm_upload_*.mp4", f)
	_ = f.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: copy overlay output: %w", ErrIOFailure, err)
	}

	contentType := h.ContentType
	if contentType == "" {
		contentType = DefaultVideoContentType
	}

	return &upload.Handle{
		Source:      upload.NewOwnedPathSource(owned),
		Filename:    t.outputName(h),
		ContentType: contentType,
	}, nil
}

// outputName marks the filename as processed, falling back to a timestamp
// when the client sent no filename.
func (t *VideoTransform) outputName(h *upload.Handle) string {
	if h.Filename != "" {
		return ProcessedMarker + h.Filename
	}
	return fmt.Sprintf("video_%s%d.mp4", ProcessedMarker, t.now().Unix())
}

// discard removes a tool output file. Failures are not errors.
func (t *VideoTransform) discard(ctx context.Context, path string) {
	if err := t.store.CleanupTemp(ctx, []string{path}); err != nil {
		t.logger.Debug("could not remove overlay output",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
