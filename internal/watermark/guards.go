package watermark

import (
	"fmt"
	"os"
)

// Guards answers the cheap "can this transform run at all" questions.
type Guards struct {
	caps           Capabilities
	watermarkPath  string
	maxSourceBytes int64
}

// NewGuards creates Guards. A maxSourceBytes of zero or less disables the
// size check.
func NewGuards(caps Capabilities, watermarkPath string, maxSourceBytes int64) *Guards {
	return &Guards{
		caps:           caps,
		watermarkPath:  watermarkPath,
		maxSourceBytes: maxSourceBytes,
	}
}

// CanRunImage reports whether the compositing engine was found at startup.
func (g *Guards) CanRunImage() bool { return g.caps.Image }

// CanRunVideo reports whether the transcoder was found at startup.
func (g *Guards) CanRunVideo() bool { return g.caps.Video }

// WatermarkPath returns the fixed watermark asset path.
func (g *Guards) WatermarkPath() string { return g.watermarkPath }

// WatermarkPresent stats the asset on every call so an operator can add it
// while the process runs.
func (g *Guards) WatermarkPresent() bool {
	if g.watermarkPath == "" {
		return false
	}
	info, err := os.Stat(g.watermarkPath)
	return err == nil && info.Mode().IsRegular()
}

// SizeOK reports whether path exists and is within the size threshold.
func (g *Guards) SizeOK(path string) bool {
	return g.checkSize(path) == nil
}

func (g *Guards) checkSize(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty source path", ErrIOFailure)
	}
	f, err := os.Open(path) // #nosec G304 - materialized by the pipeline
	if err != nil {
		return fmt.Errorf("%w: open source: %w", ErrIOFailure, err)
	}
	info, err := f.Stat()
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("%w: stat source: %w", ErrIOFailure, err)
	}
	if g.maxSourceBytes <= 0 {
		return nil
	}
	if info.Size() > g.maxSourceBytes {
		return fmt.Errorf("%w: %d > %d bytes", ErrSourceTooLarge, info.Size(), g.maxSourceBytes)
	}
	return nil
}
