package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrStreamConsumed is returned when a single-use stream is opened twice.
var ErrStreamConsumed = errors.New("upload: stream already consumed")

// Spiller writes a byte stream to a new temporary file and returns its path.
// The pattern follows os.CreateTemp: the last "*" is replaced by a random string.
type Spiller interface {
	SaveTemp(ctx context.Context, pattern string, data io.Reader) (string, error)
}

// Materialized is a concrete filesystem path holding an upload's bytes.
type Materialized struct {
	// Path is the readable file.
	Path string
	// Spilled is true when Path is a temporary file created for this
	// materialization; the caller must remove it.
	Spilled bool
}

// ByteSource supplies the bytes of an upload.
type ByteSource interface {
	// Path returns the backing file path if the source is file-backed.
	Path() (string, bool)
	// Open returns a reader over the bytes.
	Open() (io.ReadCloser, error)
	// Materialize guarantees a readable path, spilling to a temp file through
	// sp when the source is not already file-backed. ext is appended to the
	// temp file name and may be empty.
	Materialize(ctx context.Context, sp Spiller, ext string) (Materialized, error)
}

// Compile-time checks.
var (
	_ ByteSource = (*PathSource)(nil)
	_ ByteSource = (*StreamSource)(nil)
)

// PathSource is a file-backed byte source.
type PathSource struct {
	// File is the backing file path.
	File string
	// Owned marks files created by the pipeline; Close removes them.
	Owned bool
}

// NewPathSource returns a PathSource for a file owned by someone else.
func NewPathSource(path string) *PathSource {
	return &PathSource{File: path}
}

// NewOwnedPathSource returns a PathSource that removes its file on Close.
func NewOwnedPathSource(path string) *PathSource {
	return &PathSource{File: path, Owned: true}
}

// Path returns the backing file.
func (s *PathSource) Path() (string, bool) {
	return s.File, s.File != ""
}

// Open opens the backing file.
func (s *PathSource) Open() (io.ReadCloser, error) {
	f, err := os.Open(s.File) // #nosec G304 - path comes from the host or the pipeline
	if err != nil {
		return nil, fmt.Errorf("open upload file: %w", err)
	}
	return f, nil
}

// Materialize returns the backing path verbatim.
func (s *PathSource) Materialize(_ context.Context, _ Spiller, _ string) (Materialized, error) {
	return Materialized{Path: s.File}, nil
}

// Close removes the backing file if the source owns it.
func (s *PathSource) Close() error {
	if !s.Owned || s.File == "" {
		return nil
	}
	if err := os.Remove(s.File); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove owned upload file: %w", err)
	}
	return nil
}

// StreamSource is a byte source without a file path, such as an in-memory
// multipart part. Opener is called for every Open; a nil Opener with a
// Reader set makes the source single-use until it is materialized, after
// which reads are served from the spilled file.
type StreamSource struct {
	Opener func() (io.ReadCloser, error)
	Reader io.Reader

	consumed bool
	// spill holds the bytes of a single-use Reader once materialized. The
	// source owns it; Close removes it.
	spill string
}

// Compile-time check that StreamSource releases its spill.
var _ io.Closer = (*StreamSource)(nil)

// NewStreamSource returns a source that calls open for every read.
func NewStreamSource(open func() (io.ReadCloser, error)) *StreamSource {
	return &StreamSource{Opener: open}
}

// NewReaderSource returns a single-use source over r.
func NewReaderSource(r io.Reader) *StreamSource {
	return &StreamSource{Reader: r}
}

// Path returns the spill file of a materialized single-use source.
func (s *StreamSource) Path() (string, bool) {
	return s.spill, s.spill != ""
}

// Open returns a reader over the stream.
func (s *StreamSource) Open() (io.ReadCloser, error) {
	if s.Opener != nil {
		return s.Opener()
	}
	if s.spill != "" {
		f, err := os.Open(s.spill) // #nosec G304 - spill created by Materialize
		if err != nil {
			return nil, fmt.Errorf("open spilled upload: %w", err)
		}
		return f, nil
	}
	if s.consumed || s.Reader == nil {
		return nil, ErrStreamConsumed
	}
	s.consumed = true
	return io.NopCloser(s.Reader), nil
}

// Materialize drains the stream into a temp file created by sp. A re-openable
// source hands the file to the caller. A single-use source keeps it, so the
// upload stays readable whatever the caller does next.
func (s *StreamSource) Materialize(ctx context.Context, sp Spiller, ext string) (Materialized, error) {
	if s.spill != "" {
		return Materialized{Path: s.spill}, nil
	}

	rc, err := s.Open()
	if err != nil {
		return Materialized{}, err
	}
	defer func() { _ = rc.Close() }()

	path, err := sp.SaveTemp(ctx, spillPattern(ext), rc)
	if err != nil {
		return Materialized{}, err
	}
	if s.Opener == nil {
		s.spill = path
		return Materialized{Path: path}, nil
	}
	return Materialized{Path: path, Spilled: true}, nil
}

// Close removes the spill file of a materialized single-use source.
func (s *StreamSource) Close() error {
	if s.spill == "" {
		return nil
	}
	path := s.spill
	s.spill = ""
	s.consumed = true
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove spilled upload: %w", err)
	}
	return nil
}

func spillPattern(ext string) string {
	// os.CreateTemp rejects path separators in patterns.
	if strings.ContainsAny(ext, `/\`) {
		ext = ""
	}
	return "wm_src_*" + ext
}
