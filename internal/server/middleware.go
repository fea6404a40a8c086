package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/maauso/media-watermark/internal/metrics"
	"github.com/maauso/media-watermark/internal/upload"
	"github.com/maauso/media-watermark/internal/watermark"
)

// responseWriter is a wrapper that captures the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it.
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs HTTP requests with structured logging.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status code
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			logger.Info("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rw.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}

// RecoveryMiddleware recovers from panics and returns a 500 error.
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						slog.Any("error", err),
						slog.String("stack", string(debug.Stack())),
					)
					writeError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// CORSMiddleware adds CORS headers to responses.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			// Check if origin is allowed
			allowed := false
			for _, ao := range allowedOrigins {
				if ao == "*" || ao == origin {
					allowed = true
					break
				}
			}

			if allowed && origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			// Handle preflight requests
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ChainMiddleware chains multiple middleware functions together.
func ChainMiddleware(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// MetricsMiddleware records request counts and latencies by route pattern.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			path := r.Pattern
			if path == "" {
				path = "unmatched"
			}
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// UploadParamsMiddleware parses a multipart body into upload.Params and
// stores them in the request context. Parts the form spilled to disk become
// path-backed handles; in-memory parts become stream handles. Every file the
// request produced, including watermarked replacements, is removed once the
// downstream handler returns.
func UploadParamsMiddleware(maxBytes, memoryBytes int64, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			if err := r.ParseMultipartForm(memoryBytes); err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit", "UPLOAD_TOO_LARGE")
					return
				}
				logger.Warn("failed to parse multipart form",
					slog.String("error", err.Error()),
				)
				writeError(w, http.StatusBadRequest, "invalid multipart body", "INVALID_MULTIPART")
				return
			}
			defer func() { _ = r.MultipartForm.RemoveAll() }()

			params := upload.NewParams()
			defer func() {
				if err := params.Close(); err != nil {
					logger.Warn("failed to release upload files",
						slog.String("error", err.Error()),
					)
				}
			}()

			for name, headers := range r.MultipartForm.File {
				if len(headers) == 0 {
					continue
				}
				params.Set(name, handleFromPart(headers[0]))
			}

			next.ServeHTTP(w, r.WithContext(upload.WithParams(r.Context(), params)))
		})
	}
}

// handleFromPart wraps a multipart file part without copying it.
func handleFromPart(fh *multipart.FileHeader) *upload.Handle {
	h := &upload.Handle{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Header:      fh.Header,
	}
	f, err := fh.Open()
	if err != nil {
		h.Source = upload.NewStreamSource(func() (io.ReadCloser, error) { return fh.Open() })
		return h
	}
	defer func() { _ = f.Close() }()

	if osf, ok := f.(*os.File); ok {
		// Spilled by the form parser; removed by RemoveAll.
		h.Source = upload.NewPathSource(osf.Name())
		return h
	}
	h.Source = upload.NewStreamSource(func() (io.ReadCloser, error) { return fh.Open() })
	return h
}

// UploadInterceptor is run on every create-upload request before the handler.
type UploadInterceptor interface {
	Intercept(ctx context.Context, params *upload.Params) watermark.State
}

type stateKey struct{}

// WatermarkMiddleware runs the interceptor over the request's upload params.
// The interceptor never fails the request.
func WatermarkMiddleware(interceptor UploadInterceptor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			params, ok := upload.ParamsFromContext(r.Context())
			if !ok || interceptor == nil {
				next.ServeHTTP(w, r)
				return
			}
			state := interceptor.Intercept(r.Context(), params)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), stateKey{}, state)))
		})
	}
}

func stateFromContext(ctx context.Context) watermark.State {
	s, _ := ctx.Value(stateKey{}).(watermark.State)
	return s
}
