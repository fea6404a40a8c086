package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
)

// Static errors for media operations.
var (
	// ErrInvalidRatio is returned when a watermark width ratio is not in (0, 1].
	ErrInvalidRatio = errors.New("invalid width ratio: must be in (0, 1]")
	// ErrMissingPath is returned when a request lacks an input or output path.
	ErrMissingPath = errors.New("source, watermark and output paths are required")
)

// Compile-time check that FFmpegProcessor implements VideoOverlayer.
var _ VideoOverlayer = (*FFmpegProcessor)(nil)

// FFmpegProcessor implements VideoOverlayer using the ffmpeg CLI.
type FFmpegProcessor struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	lookPath   func(string) (string, error)
}

// NewFFmpegProcessor creates a new FFmpegProcessor.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpegProcessor(ffmpegPath string) *FFmpegProcessor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegProcessor{ffmpegPath: ffmpegPath, lookPath: exec.LookPath}
}

// Path returns the configured ffmpeg binary.
func (p *FFmpegProcessor) Path() string {
	return p.ffmpegPath
}

// Available reports whether the ffmpeg binary resolves.
func (p *FFmpegProcessor) Available() bool {
	_, err := p.lookPath(p.ffmpegPath)
	return err == nil
}

// Overlay scales the watermark relative to the video width, overlays it on
// every frame and re-encodes the video with libx264, copying audio if present.
// The call blocks until ffmpeg exits; ctx cancellation is honoured only if the
// caller passes a cancellable context.
func (p *FFmpegProcessor) Overlay(ctx context.Context, req OverlayRequest) (RunResult, error) {
	args, err := overlayArgs(req)
	if err != nil {
		return RunResult{ExitCode: -1}, err
	}
	return p.runFFmpeg(ctx, args)
}

// overlayFilter builds the filter graph. scale2ref sizes input 1 (the
// watermark) against input 0 (the video): width is a fraction of the video
// width and height follows the watermark's own aspect ratio.
func overlayFilter(ratio float64, offsetX, offsetY int) string {
	return fmt.Sprintf(
		"[1][0]scale2ref=w=main_w*%s:h=ow/dar[wm][vid];[vid][wm]overlay=%d:main_h-overlay_h-%d[outv]",
		strconv.FormatFloat(ratio, 'f', -1, 64), offsetX, offsetY,
	)
}

func overlayArgs(req OverlayRequest) ([]string, error) {
	if req.Source == "" || req.Watermark == "" || req.Output == "" {
		return nil, ErrMissingPath
	}
	if req.WidthRatio <= 0 || req.WidthRatio > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidRatio, req.WidthRatio)
	}

	return []string{
		"-y",           // Overwrite output file without asking
		"-hide_banner", // Keep stderr to the point
		"-loglevel", "error",
		"-i", req.Source, // Input 0: video
		"-i", req.Watermark, // Input 1: watermark
		"-filter_complex", overlayFilter(req.WidthRatio, req.OffsetX, req.OffsetY),
		"-map", "[outv]", // Processed video stream
		"-map", "0:a?", // Audio if present
		"-c:v", "libx264", // Video codec
		"-preset", "veryfast", // Encoding speed preset
		"-crf", "23", // Constant quality
		"-c:a", "copy", // Audio unchanged
		req.Output,
	}, nil
}

// runFFmpeg executes ffmpeg with the given arguments, capturing stdout, stderr
// and the exit status. A non-zero exit yields an *FFmpegError.
func (p *FFmpegProcessor) runFFmpeg(ctx context.Context, args []string) (RunResult, error) {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := RunResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode(cmd, err),
	}
	if err != nil {
		// Check if context was cancelled
		if ctx.Err() != nil {
			return res, fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return res, &FFmpegError{
			Args:     args,
			Stderr:   res.Stderr,
			ExitCode: res.ExitCode,
			Err:      err,
		}
	}

	return res, nil
}

func exitCode(cmd *exec.Cmd, err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if err != nil {
		return -1
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return 0
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args     []string
	Stderr   string
	ExitCode int
	Err      error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error (exit %d): %v\nargs: %v\nstderr: %s", e.ExitCode, e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}
