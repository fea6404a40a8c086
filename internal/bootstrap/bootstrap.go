// Package bootstrap provides dependency initialization for the media watermark server.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/maauso/media-watermark/internal/config"
	"github.com/maauso/media-watermark/internal/media"
	"github.com/maauso/media-watermark/internal/metrics"
	"github.com/maauso/media-watermark/internal/record"
	"github.com/maauso/media-watermark/internal/storage"
	"github.com/maauso/media-watermark/internal/watermark"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Storage      storage.Storage
	Records      record.Repository
	Capabilities watermark.Capabilities
	Interceptor  *watermark.Interceptor
}

// NewDependencies creates and initializes all dependencies for the application.
// Capabilities are probed once here and never refreshed.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	return newDependencies(cfg, config.NewEnvToggles(), logger)
}

func newDependencies(cfg *config.Config, toggles config.ToggleSource, logger *slog.Logger) (*Dependencies, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Initialize engines and probe them once
	compositor := media.NewImagingCompositor()
	ffmpeg := media.NewFFmpegProcessor(cfg.FFmpegPath)
	caps := watermark.DetectCapabilities(compositor, ffmpeg)

	metrics.CapabilityAvailable.WithLabelValues(string(watermark.KindImage)).Set(metrics.BoolGauge(caps.Image))
	metrics.CapabilityAvailable.WithLabelValues(string(watermark.KindVideo)).Set(metrics.BoolGauge(caps.Video))
	logger.Info("watermark capabilities detected",
		slog.Bool("image", caps.Image),
		slog.Bool("video", caps.Video),
		slog.String("ffmpeg_path", ffmpeg.Path()),
		slog.String("watermark_asset", cfg.WatermarkAsset),
	)

	// Initialize the pipeline
	guards := watermark.NewGuards(caps, cfg.WatermarkAsset, cfg.MaxSourceBytes)
	if !guards.WatermarkPresent() {
		logger.Warn("watermark asset not found; uploads will pass through until it is added",
			slog.String("path", cfg.WatermarkAsset),
		)
	}
	wmLogger := logger.With(slog.String("component", watermark.Component))
	images := watermark.NewImageTransform(guards, store, compositor, wmLogger)
	videos := watermark.NewVideoTransform(guards, store, ffmpeg, wmLogger)
	dispatcher := watermark.NewDispatcher(images, videos, wmLogger)
	interceptor := watermark.NewInterceptor(toggles, dispatcher, wmLogger)

	return &Dependencies{
		Storage:      store,
		Records:      record.NewMemoryRepository(),
		Capabilities: caps,
		Interceptor:  interceptor,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Prefix:          cfg.S3Prefix,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
			slog.String("prefix", cfg.S3Prefix),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir, cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", localStore.TempDir()),
		slog.String("upload_dir", localStore.UploadDir()),
	)
	return localStore, nil
}
