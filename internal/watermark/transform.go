package watermark

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/maauso/media-watermark/internal/metrics"
	"github.com/maauso/media-watermark/internal/upload"
)

// Fixed placement constants.
const (
	// WidthRatio is the watermark width as a fraction of the source width.
	WidthRatio = 0.10
	// ImagePadding is the inset from the left and bottom edges of images.
	ImagePadding = 20
	// VideoOffset is the inset from the left and bottom edges of videos.
	VideoOffset = 10
	// ProcessedMarker prefixes the filenames of processed videos.
	ProcessedMarker = "watermarked_"

	// Component tags every log line the pipeline writes.
	Component = "media_watermark"

	DefaultImageContentType = "image/png"
	DefaultVideoContentType = "video/mp4"
)

// Processor produces a watermarked replacement for an upload, or nil when
// the upload should proceed unchanged.
type Processor interface {
	Process(ctx context.Context, h *upload.Handle) *upload.Handle
}

// runTransform is the failure boundary shared by both transforms. It turns
// every error and panic into a nil result, logs it and records metrics.
func runTransform(ctx context.Context, logger *slog.Logger, kind MediaKind, h *upload.Handle,
	fn func(context.Context) (*upload.Handle, error)) *upload.Handle {
	start := time.Now()
	// Once started, a transform runs to completion.
	out, err := safeCall(context.WithoutCancel(ctx), fn)
	metrics.TransformDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())

	if err == nil && out == nil {
		err = fmt.Errorf("%w: transform returned no result", ErrUnexpected)
	}
	if err != nil {
		if out != nil {
			_ = out.Close()
		}
		reason := failureKind(err)
		metrics.TransformsTotal.WithLabelValues(string(kind), reason).Inc()

		attrs := []any{
			slog.String("kind", string(kind)),
			slog.String("failure", reason),
			slog.String("filename", filenameOf(h)),
			slog.String("error", err.Error()),
		}
		if isSilent(err) {
			logger.Debug("watermark skipped", attrs...)
			return nil
		}
		attrs = append(attrs, slog.String("error_type", errorType(err)))
		if d := diagnostic(err); d != "" {
			attrs = append(attrs, slog.String("diagnostic", d))
		}
		logger.Error("watermark transform failed", attrs...)
		return nil
	}

	metrics.TransformsTotal.WithLabelValues(string(kind), "success").Inc()
	return out
}

func safeCall(ctx context.Context, fn func(context.Context) (*upload.Handle, error)) (out *upload.Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			if out != nil {
				_ = out.Close()
			}
			out = nil
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return fn(ctx)
}

// filenameOf returns the client filename, or the base name of a file-backed
// source when the client sent none.
func filenameOf(h *upload.Handle) string {
	if h == nil {
		return ""
	}
	if h.Filename != "" {
		return h.Filename
	}
	if h.Source != nil {
		if p, ok := h.Source.Path(); ok {
			return filepath.Base(p)
		}
	}
	return ""
}

// nonEmptyFile reports whether path is a regular file with at least one byte.
func nonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}
