package upload

import (
	"context"
	"errors"
)

// Recognized upload field names, in priority order.
const (
	FieldFile       = "file"
	FieldUpload     = "upload"
	FieldQQFile     = "qqfile"
	FieldAttachment = "attachment"
)

// FieldNames lists the recognized upload fields; the first non-empty one wins.
var FieldNames = []string{FieldFile, FieldUpload, FieldQQFile, FieldAttachment}

// Params is the set of upload fields carried by one create-upload request.
// It is not safe for concurrent use; each request owns its own Params.
type Params struct {
	handles map[string]*Handle
	// replaced keeps handles removed by Replace so Close can release them.
	replaced []*Handle
}

// NewParams returns an empty parameter set.
func NewParams() *Params {
	return &Params{handles: make(map[string]*Handle)}
}

// Set stores h under name.
func (p *Params) Set(name string, h *Handle) {
	p.handles[name] = h
}

// Get returns the handle stored under name.
func (p *Params) Get(name string) (*Handle, bool) {
	h, ok := p.handles[name]
	return h, ok && h != nil
}

// Primary returns the first non-empty recognized upload field.
func (p *Params) Primary() (string, *Handle, bool) {
	for _, name := range FieldNames {
		if h, ok := p.Get(name); ok && h.Source != nil {
			return name, h, true
		}
	}
	return "", nil, false
}

// Replace installs h as the primary "file" field and drops every alternate
// recognized field so downstream code sees a single upload.
func (p *Params) Replace(h *Handle) {
	for _, name := range FieldNames {
		if old, ok := p.handles[name]; ok && old != nil {
			p.replaced = append(p.replaced, old)
		}
		delete(p.handles, name)
	}
	p.handles[FieldFile] = h
}

// Close releases every handle the set has ever held.
func (p *Params) Close() error {
	var errs []error
	for _, h := range p.handles {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, h := range p.replaced {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.replaced = nil
	return errors.Join(errs...)
}

type paramsKey struct{}

// WithParams returns a copy of ctx carrying p.
func WithParams(ctx context.Context, p *Params) context.Context {
	return context.WithValue(ctx, paramsKey{}, p)
}

// ParamsFromContext returns the Params stored by WithParams.
func ParamsFromContext(ctx context.Context) (*Params, bool) {
	p, ok := ctx.Value(paramsKey{}).(*Params)
	return p, ok && p != nil
}
