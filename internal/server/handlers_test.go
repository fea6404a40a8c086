package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/maauso/media-watermark/internal/config"
	"github.com/maauso/media-watermark/internal/media"
	"github.com/maauso/media-watermark/internal/record"
	"github.com/maauso/media-watermark/internal/storage"
	"github.com/maauso/media-watermark/internal/upload"
	"github.com/maauso/media-watermark/internal/watermark"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockInterceptor implements UploadInterceptor for testing.
type mockInterceptor struct {
	mock.Mock
}

func (m *mockInterceptor) Intercept(ctx context.Context, params *upload.Params) watermark.State {
	args := m.Called(ctx, params)
	return args.Get(0).(watermark.State)
}

// mockStorage implements storage.Storage for testing.
type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) SaveTemp(ctx context.Context, pattern string, data io.Reader) (string, error) {
	args := m.Called(ctx, pattern, data)
	return args.String(0), args.Error(1)
}

func (m *mockStorage) ReserveTemp(ctx context.Context, pattern string) (string, error) {
	args := m.Called(ctx, pattern)
	return args.String(0), args.Error(1)
}

func (m *mockStorage) LoadTemp(ctx context.Context, path string) (io.ReadCloser, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *mockStorage) CleanupTemp(ctx context.Context, paths []string) error {
	args := m.Called(ctx, paths)
	return args.Error(0)
}

func (m *mockStorage) Persist(ctx context.Context, key, contentType string, data io.Reader, size int64) (string, error) {
	args := m.Called(ctx, key, contentType, data, size)
	return args.String(0), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testEnv struct {
	router http.Handler
	store  *storage.LocalStorage
	repo   *record.MemoryRepository
	asset  string
}

// newTestEnv wires the real pipeline with image watermarking available and
// the given toggles.
func newTestEnv(t *testing.T, toggles config.Toggles) *testEnv {
	t.Helper()
	logger := testLogger()

	store, err := storage.NewLocalStorage(t.TempDir(), t.TempDir())
	require.NoError(t, err)
	repo := record.NewMemoryRepository()

	asset := filepath.Join(t.TempDir(), "watermark.png")
	writePNG(t, asset, 200, 100, color.White)

	caps := watermark.Capabilities{Image: true}
	guards := watermark.NewGuards(caps, asset, 0)
	images := watermark.NewImageTransform(guards, store, media.NewImagingCompositor(), logger)
	dispatcher := watermark.NewDispatcher(images, nil, logger)
	interceptor := watermark.NewInterceptor(config.StaticToggles(toggles), dispatcher, logger)

	h := NewHandlers(store, repo, logger, WithCapabilities(caps))
	return &testEnv{
		router: NewRouter(h, interceptor, logger, DefaultConfig()),
		store:  store,
		repo:   repo,
		asset:  asset,
	}
}

func writePNG(t *testing.T, path string, w, h int, c color.Color) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, pngBytes(t, w, h, c), 0600))
}

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// multipartBody builds a multipart body with a single file part.
func multipartBody(t *testing.T, field, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("title", "holiday"))
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func postUpload(t *testing.T, router http.Handler, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/uploads", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeUpload(t *testing.T, rec *httptest.ResponseRecorder) UploadResponse {
	t.Helper()
	var resp UploadResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, config.Toggles{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.ImageWatermarking)
	assert.False(t, resp.VideoWatermarking)
}

func TestCreateUpload_DisabledPersistsOriginal(t *testing.T) {
	env := newTestEnv(t, config.Toggles{Enabled: false, ImageEnabled: true, VideoEnabled: true})
	original := pngBytes(t, 400, 300, color.Black)

	body, ct := multipartBody(t, "file", "photo.png", "image/png", original)
	rec := postUpload(t, env.router, body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decodeUpload(t, rec)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "photo.png", resp.Filename)
	assert.Equal(t, "image/png", resp.ContentType)
	assert.Equal(t, int64(len(original)), resp.Size)
	assert.False(t, resp.Watermarked)

	stored, err := os.ReadFile(resp.Location)
	require.NoError(t, err)
	assert.Equal(t, original, stored)
}

func TestCreateUpload_EnabledPersistsWatermarked(t *testing.T) {
	env := newTestEnv(t, config.Toggles{Enabled: true, ImageEnabled: true, VideoEnabled: true})
	original := pngBytes(t, 400, 300, color.Black)

	body, ct := multipartBody(t, "file", "photo.png", "image/png", original)
	rec := postUpload(t, env.router, body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decodeUpload(t, rec)
	assert.Equal(t, "photo.png", resp.Filename)
	assert.True(t, resp.Watermarked)

	img, err := imaging.Open(resp.Location)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 400, 300), img.Bounds())
	r, g, b, _ := img.At(30, 270).RGBA()
	assert.Equal(t, [3]uint32{0xffff, 0xffff, 0xffff}, [3]uint32{r, g, b})

	// The watermarked temp output is released after persistence.
	entries, err := os.ReadDir(env.store.TempDir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.True(t, e.IsDir(), "unexpected temp file %s", e.Name())
	}
}

func TestCreateUpload_AlternateFieldIsSubstituted(t *testing.T) {
	env := newTestEnv(t, config.Toggles{Enabled: true, ImageEnabled: true, VideoEnabled: true})

	body, ct := multipartBody(t, "qqfile", "photo.png", "", pngBytes(t, 100, 100, color.Black))
	rec := postUpload(t, env.router, body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decodeUpload(t, rec)
	assert.True(t, resp.Watermarked)
	assert.Equal(t, "image/png", resp.ContentType)
}

func TestCreateUpload_NonMediaPassesThrough(t *testing.T) {
	env := newTestEnv(t, config.Toggles{Enabled: true, ImageEnabled: true, VideoEnabled: true})

	body, ct := multipartBody(t, "file", "notes.pdf", "application/pdf", []byte("%PDF-1.4"))
	rec := postUpload(t, env.router, body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decodeUpload(t, rec)
	assert.False(t, resp.Watermarked)
	stored, err := os.ReadFile(resp.Location)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(stored))
}

func TestCreateUpload_CorruptImageFallsBack(t *testing.T) {
	env := newTestEnv(t, config.Toggles{Enabled: true, ImageEnabled: true, VideoEnabled: true})

	body, ct := multipartBody(t, "file", "photo.png", "image/png", []byte("not a png"))
	rec := postUpload(t, env.router, body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decodeUpload(t, rec)
	assert.False(t, resp.Watermarked)
	stored, err := os.ReadFile(resp.Location)
	require.NoError(t, err)
	assert.Equal(t, "not a png", string(stored))
}

func TestCreateUpload_FilenameIsSanitized(t *testing.T) {
	env := newTestEnv(t, config.Toggles{})

	body, ct := multipartBody(t, "file", "../../etc/passwd.txt", "text/plain", []byte("x"))
	rec := postUpload(t, env.router, body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decodeUpload(t, rec)
	assert.Equal(t, "passwd.txt", resp.Filename)
	assert.True(t, strings.HasPrefix(resp.Location, env.store.UploadDir()))
}

func TestCreateUpload_MissingFile(t *testing.T) {
	env := newTestEnv(t, config.Toggles{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("title", "no file"))
	require.NoError(t, mw.Close())

	rec := postUpload(t, env.router, &buf, mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "MISSING_FILE", resp.Code)
}

func TestCreateUpload_NotMultipart(t *testing.T) {
	env := newTestEnv(t, config.Toggles{})

	rec := postUpload(t, env.router, strings.NewReader(`{"file":"x"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "INVALID_MULTIPART", resp.Code)
}

func TestCreateUpload_TooLarge(t *testing.T) {
	logger := testLogger()
	h := NewHandlers(&mockStorage{}, record.NewMemoryRepository(), logger)
	cfg := DefaultConfig()
	cfg.MaxUploadBytes = 1024
	router := NewRouter(h, nil, logger, cfg)

	body, ct := multipartBody(t, "file", "big.bin", "application/octet-stream", make([]byte, 4096))
	rec := postUpload(t, router, body, ct)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestCreateUpload_PersistFailure(t *testing.T) {
	logger := testLogger()
	store := &mockStorage{}
	store.On("Persist", mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasSuffix(key, "/photo.png")
	}), "image/png", mock.Anything, mock.Anything).Return("", errors.New("disk full"))

	h := NewHandlers(store, record.NewMemoryRepository(), logger)
	router := NewRouter(h, nil, logger, DefaultConfig())

	body, ct := multipartBody(t, "file", "photo.png", "image/png", []byte("png"))
	rec := postUpload(t, router, body, ct)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "UPLOAD_PERSIST_FAILED", resp.Code)
	store.AssertExpectations(t)
}

func TestInterceptor_OnlyOnCreateUpload(t *testing.T) {
	logger := testLogger()
	store, err := storage.NewLocalStorage(t.TempDir(), t.TempDir())
	require.NoError(t, err)
	interceptor := &mockInterceptor{}
	interceptor.On("Intercept", mock.Anything, mock.Anything).Return(watermark.StateDisabled).Once()

	h := NewHandlers(store, record.NewMemoryRepository(), logger)
	router := NewRouter(h, interceptor, logger, DefaultConfig())

	for _, path := range []string{"/health", "/uploads/missing", "/metrics"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}
	interceptor.AssertNotCalled(t, "Intercept", mock.Anything, mock.Anything)

	body, ct := multipartBody(t, "file", "a.txt", "text/plain", []byte("a"))
	rec := postUpload(t, router, body, ct)
	assert.Equal(t, http.StatusCreated, rec.Code)
	interceptor.AssertExpectations(t)
}

func TestGetUpload(t *testing.T) {
	env := newTestEnv(t, config.Toggles{})

	body, ct := multipartBody(t, "file", "a.txt", "text/plain", []byte("hello"))
	created := decodeUpload(t, postUpload(t, env.router, body, ct))

	req := httptest.NewRequest(http.MethodGet, "/uploads/"+created.ID, nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	got := decodeUpload(t, rec)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.Location, got.Location)
	assert.Equal(t, int64(5), got.Size)
}

func TestGetUpload_NotFound(t *testing.T) {
	env := newTestEnv(t, config.Toggles{})

	req := httptest.NewRequest(http.MethodGet, "/uploads/nonexistent", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "UPLOAD_NOT_FOUND", resp.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, config.Toggles{})

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `media_watermark_http_requests_total{method="GET",path="GET /health",status="200"}`)
}

func TestSafeFilename(t *testing.T) {
	tests := map[string]string{
		"photo.png":           "photo.png",
		"../../etc/passwd":    "passwd",
		`C:\Users\me\pic.jpg`: "pic.jpg",
		"dir/":                "dir",
		"/":                   "",
		"":                    "",
	}
	for in, want := range tests {
		assert.Equal(t, want, safeFilename(in), "input %q", in)
	}
}

func TestCreateUpload_ForwardsKnownSize(t *testing.T) {
	logger := testLogger()

	processed := filepath.Join(t.TempDir(), "processed.png")
	require.NoError(t, os.WriteFile(processed, []byte("12345"), 0600))

	interceptor := &mockInterceptor{}
	interceptor.On("Intercept", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		params := args.Get(1).(*upload.Params)
		params.Replace(&upload.Handle{Source: upload.NewPathSource(processed), Filename: "photo.png", ContentType: "image/png"})
	}).Return(watermark.StateSubstituted)

	store := &mockStorage{}
	store.On("Persist", mock.Anything, mock.Anything, "image/png", mock.MatchedBy(func(data io.Reader) bool {
		_, seekable := data.(io.Seeker)
		return seekable
	}), int64(5)).Return("/uploads/photo.png", nil)

	h := NewHandlers(store, record.NewMemoryRepository(), logger)
	router := NewRouter(h, interceptor, logger, DefaultConfig())

	body, ct := multipartBody(t, "file", "photo.png", "image/png", []byte("png"))
	rec := postUpload(t, router, body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decodeUpload(t, rec)
	assert.Equal(t, int64(5), resp.Size)
	assert.True(t, resp.Watermarked)
	store.AssertExpectations(t)
}

func TestCreateUpload_UnknownSizeIsCounted(t *testing.T) {
	logger := testLogger()

	store := &mockStorage{}
	store.On("Persist", mock.Anything, mock.Anything, "image/png", mock.Anything, int64(-1)).
		Run(func(args mock.Arguments) {
			_, _ = io.Copy(io.Discard, args.Get(3).(io.Reader))
		}).
		Return("/uploads/photo.png", nil)

	h := NewHandlers(store, record.NewMemoryRepository(), logger)
	router := NewRouter(h, nil, logger, DefaultConfig())

	body, ct := multipartBody(t, "file", "photo.png", "image/png", []byte("png"))
	rec := postUpload(t, router, body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Equal(t, int64(3), decodeUpload(t, rec).Size)
	store.AssertExpectations(t)
}
