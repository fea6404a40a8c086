// Package media wraps the engines that do the actual pixel work: an
// in-process image compositor and the ffmpeg CLI for video overlays.
package media

import "context"

// Compositor overlays a watermark image onto a still image.
type Compositor interface {
	// Available reports whether the compositing engine can run at all.
	// It never fails; absence is reported as false.
	Available() bool

	// Composite reads req.Source and req.Watermark, scales the watermark to
	// req.WidthRatio of the source width, places it req.Padding pixels in from
	// the bottom-left corner and writes the result to req.Output in the
	// format implied by its extension.
	Composite(ctx context.Context, req CompositeRequest) error
}

// CompositeRequest describes a single still-image composite.
type CompositeRequest struct {
	Source     string
	Watermark  string
	Output     string
	WidthRatio float64
	Padding    int
}

// VideoOverlayer burns a watermark image into every frame of a video.
type VideoOverlayer interface {
	// Available reports whether the overlay tool can be resolved.
	Available() bool

	// Overlay runs the overlay synchronously and returns the captured output
	// of the tool. A non-nil error means the tool could not be started or
	// exited unsuccessfully; the result is still populated when available.
	Overlay(ctx context.Context, req OverlayRequest) (RunResult, error)
}

// OverlayRequest describes a single video overlay.
type OverlayRequest struct {
	Source     string
	Watermark  string
	Output     string
	WidthRatio float64
	// OffsetX and OffsetY are measured from the left and bottom edges.
	OffsetX int
	OffsetY int
}

// RunResult is the captured outcome of an external process.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}
