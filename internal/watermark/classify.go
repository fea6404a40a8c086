package watermark

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/maauso/media-watermark/internal/config"
	"github.com/maauso/media-watermark/internal/upload"
)

// MediaKind is the coarse media class of an upload.
type MediaKind string

// Media kinds.
const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
)

// extensionContentTypes is the fallback used when neither the handle nor its
// part header declare a content type.
var extensionContentTypes = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// ResolveContentType returns the declared content type, then the part
// header's, then the one inferred from the filename extension. It returns ""
// when none applies.
func ResolveContentType(h *upload.Handle) string {
	if h == nil {
		return ""
	}
	if ct := strings.TrimSpace(h.ContentType); ct != "" {
		return ct
	}
	if h.Header != nil {
		if ct := strings.TrimSpace(h.Header.Get("Content-Type")); ct != "" {
			return ct
		}
	}
	return extensionContentTypes[strings.ToLower(filepath.Ext(h.Filename))]
}

// Classify resolves the content type of h and maps it to a media kind.
// ok is false when the content type is unknown or neither image nor video.
func Classify(h *upload.Handle) (kind MediaKind, contentType string, ok bool) {
	contentType = ResolveContentType(h)
	switch {
	case contentType == "":
		return "", "", false
	case strings.HasPrefix(contentType, string(KindImage)):
		return KindImage, contentType, true
	case strings.HasPrefix(contentType, string(KindVideo)):
		return KindVideo, contentType, true
	default:
		return "", contentType, false
	}
}

// Dispatcher routes a classified upload to the matching transform.
type Dispatcher struct {
	images Processor
	videos Processor
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(images, videos Processor, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{images: images, videos: videos, logger: logger}
}

// Dispatch runs the transform for kind if that kind is enabled and the
// content type matches it. It returns nil when nothing was produced.
func (d *Dispatcher) Dispatch(ctx context.Context, h *upload.Handle, kind MediaKind, contentType string, toggles config.Toggles) *upload.Handle {
	switch {
	case kind == KindImage && toggles.ImageEnabled && strings.HasPrefix(contentType, "image"):
		if d.images == nil {
			return nil
		}
		return d.images.Process(ctx, h)

	case kind == KindVideo && toggles.VideoEnabled && strings.HasPrefix(contentType, "video"):
		if AlreadyProcessed(h) {
			d.logger.Debug("detected already-processed video; skipping",
				slog.String("filename", filenameOf(h)),
			)
			return nil
		}
		if d.videos == nil {
			return nil
		}
		return d.videos.Process(ctx, h)

	default:
		d.logger.Debug("not image/video or disabled",
			slog.String("content_type", contentType),
		)
		return nil
	}
}

// AlreadyProcessed reports whether the upload's filename carries the marker
// the video transform puts on its own output.
func AlreadyProcessed(h *upload.Handle) bool {
	return strings.Contains(filenameOf(h), ProcessedMarker)
}
