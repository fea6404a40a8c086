// Package upload models in-flight uploads exchanged between the HTTP host and
// the watermark pipeline: handles, the byte sources behind them, and the
// per-request parameter set the interceptor substitutes into.
package upload

import (
	"errors"
	"io"
	"net/textproto"
	"os"
	"path/filepath"
)

// ErrNoSource is returned when a handle has no byte source attached.
var ErrNoSource = errors.New("upload: handle has no byte source")

// Handle is an in-flight upload: a byte source, the client filename and the
// declared content type. Handles created by the host are never mutated by the
// pipeline; transforms build new ones.
type Handle struct {
	// Source provides the upload bytes.
	Source ByteSource
	// Filename is the client-supplied filename. May be empty.
	Filename string
	// ContentType is the declared content type. May be empty.
	ContentType string
	// Header is the MIME header of the multipart part, if any.
	Header textproto.MIMEHeader
}

// Open returns a reader over the upload bytes.
func (h *Handle) Open() (io.ReadCloser, error) {
	if h == nil || h.Source == nil {
		return nil, ErrNoSource
	}
	return h.Source.Open()
}

// Ext returns the extension of the client filename including the leading dot,
// or "" when there is none.
func (h *Handle) Ext() string {
	if h == nil {
		return ""
	}
	return filepath.Ext(h.Filename)
}

// Size reports the byte length of the upload when the source is backed by a
// file. It returns -1 when the size is not known without reading the stream.
func (h *Handle) Size() int64 {
	if h == nil || h.Source == nil {
		return -1
	}
	path, ok := h.Source.Path()
	if !ok {
		return -1
	}
	info, err := os.Stat(path)
	if err != nil {
		return -1
	}
	return info.Size()
}

// Close releases any file owned by the handle. Handles that merely point at a
// file owned by someone else are left alone.
func (h *Handle) Close() error {
	if h == nil || h.Source == nil {
		return nil
	}
	if c, ok := h.Source.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
