package server

import (
	"log/slog"
	"net/http"

	"github.com/maauso/media-watermark/internal/metrics"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// MaxUploadBytes caps the request body of POST /uploads.
	MaxUploadBytes int64
	// FormMemoryBytes is how much of a multipart form is kept in memory.
	FormMemoryBytes int64
	// MetricsEnabled exposes GET /metrics.
	MetricsEnabled bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins:  []string{"*"},
		MaxUploadBytes:  100 << 20,
		FormMemoryBytes: 32 << 20,
		MetricsEnabled:  true,
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing. The interceptor runs
// on POST /uploads only.
func NewRouter(h *Handlers, interceptor UploadInterceptor, logger *slog.Logger, cfg Config) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	createUpload := ChainMiddleware(
		UploadParamsMiddleware(cfg.MaxUploadBytes, cfg.FormMemoryBytes, logger),
		WatermarkMiddleware(interceptor),
	)(http.HandlerFunc(h.CreateUpload))

	// Register routes with method-based patterns (Go 1.22+)
	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("POST /uploads", createUpload)
	mux.HandleFunc("GET /uploads/{id}", h.GetUpload)
	if cfg.MetricsEnabled {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	// Apply middleware chain
	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		MetricsMiddleware(),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
