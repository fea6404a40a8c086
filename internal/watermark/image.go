package watermark

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/maauso/media-watermark/internal/media"
	"github.com/maauso/media-watermark/internal/storage"
	"github.com/maauso/media-watermark/internal/upload"
)

// imageExtensions maps image content types to the extension used when the
// client filename carries none.
var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/bmp":  ".bmp",
	"image/tiff": ".tif",
}

// Compile-time check that ImageTransform implements Processor.
var _ Processor = (*ImageTransform)(nil)

// ImageTransform composites the watermark onto still images.
type ImageTransform struct {
	guards     *Guards
	store      storage.Storage
	compositor media.Compositor
	src        materializer
	logger     *slog.Logger
}

// NewImageTransform creates an ImageTransform.
func NewImageTransform(guards *Guards, store storage.Storage, compositor media.Compositor, logger *slog.Logger) *ImageTransform {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageTransform{
		guards:     guards,
		store:      store,
		compositor: compositor,
		src:        materializer{store: store},
		logger:     logger,
	}
}

// Process returns a watermarked copy of h, or nil if the image was skipped
// or the transform failed. h is never modified.
func (t *ImageTransform) Process(ctx context.Context, h *upload.Handle) *upload.Handle {
	return runTransform(ctx, t.logger, KindImage, h, func(ctx context.Context) (*upload.Handle, error) {
		return t.process(ctx, h)
	})
}

func (t *ImageTransform) process(ctx context.Context, h *upload.Handle) (*upload.Handle, error) {
	if !t.guards.CanRunImage() {
		return nil, fmt.Errorf("%w: image compositor", ErrCapabilityUnavailable)
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

	ext := imageOutputExt(h, src.Path)
	out, err := t.store.ReserveTemp(ctx, "watermarked_*"+ext)
	if err != nil {
		return nil, fmt.Errorf("%w: reserve output: %w", ErrIOFailure, err)
	}

	done := false
	defer func() {
		if !done {
			_ = t.store.CleanupTemp(ctx, []string{out})
		}
	}()

	err = t.compositor.Composite(ctx, media.CompositeRequest{
		Source:     src.Path,
		Watermark:  t.guards.WatermarkPath(),
		Output:     out,
		WidthRatio: WidthRatio,
		Padding:    ImagePadding,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: composite: %w", ErrUnexpected, err)
	}
	if !nonEmptyFile(out) {
		return nil, fmt.Errorf("%w: composite produced empty output", ErrIOFailure)
	}
	done = true

	filename := h.Filename
	if filename == "" {
		filename = filepath.Base(out)
	}
	contentType := h.ContentType
	if contentType == "" {
		contentType = DefaultImageContentType
	}

	t.logger.Debug("image watermarked",
		slog.String("filename", filename),
		slog.String("output", out),
	)

	return &upload.Handle{
		Source:      upload.NewOwnedPathSource(out),
		Filename:    filename,
		ContentType: contentType,
	}, nil
}

// imageOutputExt keeps the source format: the client filename's extension,
// then the materialized path's, then the one implied by the content type.
func imageOutputExt(h *upload.Handle, srcPath string) string {
	if ext := h.Ext(); ext != "" {
		return ext
	}
	if ext := filepath.Ext(srcPath); ext != "" {
		return ext
	}
	ct := strings.ToLower(strings.TrimSpace(strings.Split(ResolveContentType(h), ";")[0]))
	return imageExtensions[ct]
}
