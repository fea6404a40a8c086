package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"github.com/disintegration/imaging"

	// Extra decoders for sources imaging does not register itself.
	_ "golang.org/x/image/webp"
)

// jpegQuality is used when the output extension is .jpg/.jpeg.
const jpegQuality = 90

// Compile-time check that ImagingCompositor implements Compositor.
var _ Compositor = (*ImagingCompositor)(nil)

// ImagingCompositor implements Compositor with github.com/disintegration/imaging.
type ImagingCompositor struct{}

// NewImagingCompositor creates a new ImagingCompositor.
func NewImagingCompositor() *ImagingCompositor {
	return &ImagingCompositor{}
}

// Available round-trips a 1x1 PNG through the codec registry.
func (c *ImagingCompositor) Available() bool {
	var buf bytes.Buffer
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.White)
	if err := png.Encode(&buf, img); err != nil {
		return false
	}
	_, err := imaging.Decode(&buf)
	return err == nil
}

// Composite implements Compositor.
func (c *ImagingCompositor) Composite(ctx context.Context, req CompositeRequest) error {
	if req.Source == "" || req.Watermark == "" || req.Output == "" {
		return ErrMissingPath
	}
	if req.WidthRatio <= 0 || req.WidthRatio > 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidRatio, req.WidthRatio)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := imaging.Open(req.Source, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("open source image: %w", err)
	}

	// Always the watermark asset, never the source.
	mark, err := imaging.Open(req.Watermark)
	if err != nil {
		return fmt.Errorf("open watermark image: %w", err)
	}

	width := WatermarkWidth(src.Bounds().Dx(), req.WidthRatio)
	mark = imaging.Resize(mark, width, 0, imaging.Lanczos)

	pos := BottomLeft(src.Bounds(), mark.Bounds(), req.Padding)
	out := imaging.Overlay(src, mark, pos, 1.0)

	if err := imaging.Save(out, req.Output, imaging.JPEGQuality(jpegQuality)); err != nil {
		return fmt.Errorf("encode composited image: %w", err)
	}
	return nil
}

// WatermarkWidth returns round(sourceWidth * ratio), never less than 1.
func WatermarkWidth(sourceWidth int, ratio float64) int {
	w := int(math.Round(float64(sourceWidth) * ratio))
	if w < 1 {
		return 1
	}
	return w
}

// BottomLeft returns the top-left point at which mark must be drawn so its
// bottom-left corner sits padding pixels in from the bottom-left of dst.
func BottomLeft(dst, mark image.Rectangle, padding int) image.Point {
	return image.Pt(
		dst.Min.X+padding,
		dst.Max.Y-padding-mark.Dy(),
	)
}
