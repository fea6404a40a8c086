package watermark

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/maauso/media-watermark/internal/media"
	"github.com/maauso/media-watermark/internal/storage"
	"github.com/maauso/media-watermark/internal/upload"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockProcessor implements Processor for testing.
type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) Process(ctx context.Context, h *upload.Handle) *upload.Handle {
	args := m.Called(ctx, h)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*upload.Handle)
}

// mockCompositor implements media.Compositor for testing.
type mockCompositor struct {
	mock.Mock
}

func (m *mockCompositor) Available() bool {
	return m.Called().Bool(0)
}

func (m *mockCompositor) Composite(ctx context.Context, req media.CompositeRequest) error {
	return m.Called(ctx, req).Error(0)
}

// mockOverlayer implements media.VideoOverlayer for testing.
type mockOverlayer struct {
	mock.Mock
}

func (m *mockOverlayer) Available() bool {
	return m.Called().Bool(0)
}

func (m *mockOverlayer) Overlay(ctx context.Context, req media.OverlayRequest) (media.RunResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(media.RunResult), args.Error(1)
}

// staticProbe is a Probe with a fixed answer.
type staticProbe bool

func (p staticProbe) Available() bool { return bool(p) }

// panicProbe panics when probed.
type panicProbe struct{}

func (panicProbe) Available() bool { panic("probe exploded") }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *storage.LocalStorage {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir(), t.TempDir())
	require.NoError(t, err)
	return store
}

func writePNG(t *testing.T, path string, w, h int, c color.Color) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path) // #nosec G304 - test file
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	require.NoError(t, png.Encode(f, img))
}

// writeWatermark creates a white 200x100 watermark asset and returns its path.
func writeWatermark(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "watermark.png")
	writePNG(t, path, 200, 100, color.White)
	return path
}

func tempEntries(t *testing.T, store *storage.LocalStorage) []string {
	t.Helper()
	entries, err := os.ReadDir(store.TempDir())
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names
}
