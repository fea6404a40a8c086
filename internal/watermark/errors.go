package watermark

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/maauso/media-watermark/internal/media"
)

// Failure kinds. Every one of them ends in "no result"; none reaches the caller.
var (
	// ErrCapabilityUnavailable means the compositing library or transcoder is missing.
	ErrCapabilityUnavailable = errors.New("watermark: capability unavailable")
	// ErrAssetMissing means the watermark image is not on disk.
	ErrAssetMissing = errors.New("watermark: watermark asset missing")
	// ErrSourceTooLarge means the upload exceeds the size guard.
	ErrSourceTooLarge = errors.New("watermark: source exceeds size threshold")
	// ErrIOFailure means materialization or an output copy failed.
	ErrIOFailure = errors.New("watermark: i/o failure")
	// ErrExternalProcess means the transcoder failed or produced no output.
	ErrExternalProcess = errors.New("watermark: external process failure")
	// ErrUnexpected covers everything else, including recovered panics.
	ErrUnexpected = errors.New("watermark: unexpected failure")
)

// diagnosticLines bounds stack and stderr excerpts in logs.
const diagnosticLines = 10

// failureKind maps an error to the label used in logs and metrics.
func failureKind(err error) string {
	switch {
	case errors.Is(err, ErrCapabilityUnavailable):
		return "capability_unavailable"
	case errors.Is(err, ErrAssetMissing):
		return "asset_missing"
	case errors.Is(err, ErrSourceTooLarge):
		return "source_too_large"
	case errors.Is(err, ErrIOFailure):
		return "io_failure"
	case errors.Is(err, ErrExternalProcess):
		return "external_process_failure"
	default:
		return "unexpected_failure"
	}
}

// isSilent reports failures that are skipped without an error-level log.
func isSilent(err error) bool {
	return errors.Is(err, ErrCapabilityUnavailable) ||
		errors.Is(err, ErrAssetMissing) ||
		errors.Is(err, ErrSourceTooLarge)
}

// errorType names the type of the first cause in err's chain that is neither
// a failure-kind sentinel nor a plain fmt wrapper.
func errorType(err error) string {
	for cause := err; cause != nil; cause = nextCause(cause) {
		if !isKindSentinel(cause) && !isFmtWrapper(cause) {
			return fmt.Sprintf("%T", cause)
		}
	}
	return fmt.Sprintf("%T", err)
}

// nextCause unwraps one level, preferring a joined cause over a sentinel.
func nextCause(err error) error {
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return u.Unwrap()
	case interface{ Unwrap() []error }:
		var next error
		for _, e := range u.Unwrap() {
			if e == nil {
				continue
			}
			if next == nil || isKindSentinel(next) {
				next = e
			}
		}
		return next
	}
	return nil
}

func isKindSentinel(err error) bool {
	switch err {
	case ErrCapabilityUnavailable, ErrAssetMissing, ErrSourceTooLarge,
		ErrIOFailure, ErrExternalProcess, ErrUnexpected:
		return true
	}
	return false
}

func isFmtWrapper(err error) bool {
	t := reflect.TypeOf(err)
	return t.Kind() == reflect.Pointer && t.Elem().PkgPath() == "fmt"
}

// processError is an external-process failure carrying the captured output.
type processError struct {
	result media.RunResult
	cause  error
}

func (e *processError) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("%v: exit %d", ErrExternalProcess, e.result.ExitCode)
	}
	return fmt.Sprintf("%v: exit %d: %v", ErrExternalProcess, e.result.ExitCode, e.cause)
}

func (e *processError) Unwrap() []error {
	if e.cause == nil {
		return []error{ErrExternalProcess}
	}
	return []error{ErrExternalProcess, e.cause}
}

// panicError is a recovered panic.
type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("%v: panic: %v", ErrUnexpected, e.value)
}

func (e *panicError) Unwrap() error {
	return ErrUnexpected
}

// diagnostic returns a bounded excerpt for err: the head of a recovered
// stack, or the tail of a tool's stderr.
func diagnostic(err error) string {
	var pe *panicError
	if errors.As(err, &pe) {
		return headLines(string(pe.stack), diagnosticLines)
	}
	var xe *processError
	if errors.As(err, &xe) {
		return tailLines(xe.result.Stderr, diagnosticLines)
	}
	var fe *media.FFmpegError
	if errors.As(err, &fe) {
		return tailLines(fe.Stderr, diagnosticLines)
	}
	return ""
}

func headLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}

func tailLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
