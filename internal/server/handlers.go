package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/media-watermark/internal/id"
	"github.com/maauso/media-watermark/internal/record"
	"github.com/maauso/media-watermark/internal/storage"
	"github.com/maauso/media-watermark/internal/upload"
	"github.com/maauso/media-watermark/internal/watermark"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	store     storage.Storage
	repo      record.Repository
	caps      watermark.Capabilities
	validator *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithCapabilities sets the engine availability reported by /health.
func WithCapabilities(caps watermark.Capabilities) HandlerOption {
	return func(h *Handlers) {
		h.caps = caps
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(store storage.Storage, repo record.Repository, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		store:     store,
		repo:      repo,
		validator: validator.New(),
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:            "ok",
		ImageWatermarking: h.caps.Image,
		VideoWatermarking: h.caps.Video,
	})
}

// CreateUpload handles POST /uploads requests. It persists whatever upload
// the request carries once the middleware chain has run, watermarked or not.
func (h *Handlers) CreateUpload(w http.ResponseWriter, r *http.Request) {
	params, ok := upload.ParamsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "multipart upload required", "MISSING_UPLOAD")
		return
	}
	field, file, ok := params.Primary()
	if !ok {
		writeError(w, http.StatusBadRequest, "no file in upload", "MISSING_FILE")
		return
	}

	req := persistRequest{
		Filename:    safeFilename(file.Filename),
		ContentType: watermark.ResolveContentType(file),
	}
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("upload validation failed",
			slog.String("field", field),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	rc, err := file.Open()
	if err != nil {
		h.logger.Error("failed to open upload",
			slog.String("field", field),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read upload", "UPLOAD_READ_FAILED")
		return
	}
	defer func() { _ = rc.Close() }()

	uploadID := id.Generate()
	size := file.Size()
	counter := &countingReader{r: rc}
	var body io.Reader = rc
	if size < 0 {
		body = counter
	}
	location, err := h.store.Persist(r.Context(), uploadID+"/"+req.Filename, req.ContentType, body, size)
	if err != nil {
		h.logger.Error("failed to persist upload",
			slog.String("upload_id", uploadID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to store upload", "UPLOAD_PERSIST_FAILED")
		return
	}

	if size < 0 {
		size = counter.n
	}

	rec := &record.Record{
		ID:          uploadID,
		Filename:    req.Filename,
		ContentType: req.ContentType,
		Size:        size,
		Location:    location,
		Watermarked: stateFromContext(r.Context()) == watermark.StateSubstituted,
		CreatedAt:   h.now().UTC(),
	}
	if err := h.repo.Save(r.Context(), rec); err != nil {
		h.logger.Error("failed to save upload record",
			slog.String("upload_id", uploadID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to save upload", "UPLOAD_SAVE_FAILED")
		return
	}

	h.logger.Info("upload stored",
		slog.String("upload_id", uploadID),
		slog.String("filename", rec.Filename),
		slog.Int64("size", rec.Size),
		slog.Bool("watermarked", rec.Watermarked),
	)

	writeJSON(w, http.StatusCreated, toUploadResponse(rec))
}

// GetUpload handles GET /uploads/{id} requests.
func (h *Handlers) GetUpload(w http.ResponseWriter, r *http.Request) {
	uploadID := r.PathValue("id")
	if uploadID == "" {
		writeError(w, http.StatusBadRequest, "upload ID is required", "MISSING_UPLOAD_ID")
		return
	}

	rec, err := h.repo.FindByID(r.Context(), uploadID)
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			writeError(w, http.StatusNotFound, "upload not found", "UPLOAD_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get upload",
			slog.String("upload_id", uploadID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get upload", "UPLOAD_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, toUploadResponse(rec))
}

func toUploadResponse(rec *record.Record) UploadResponse {
	return UploadResponse{
		ID:          rec.ID,
		Filename:    rec.Filename,
		ContentType: rec.ContentType,
		Size:        rec.Size,
		Location:    rec.Location,
		Watermarked: rec.Watermarked,
		CreatedAt:   rec.CreatedAt,
	}
}

// safeFilename strips any directory part a client put in the filename.
func safeFilename(name string) string {
	base := path.Base(path.Clean("/" + strings.ReplaceAll(name, `\`, "/")))
	if base == "/" || base == "." {
		return ""
	}
	return base
}

// countingReader counts the bytes read through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
