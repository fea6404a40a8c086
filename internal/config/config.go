// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
)

// DefaultMaxSourceBytes is the default watermarking size guard (10 MiB).
const DefaultMaxSourceBytes int64 = 10 * 1024 * 1024

// Static errors for configuration validation.
var (
	// ErrInvalidConfig is returned when a loaded value fails validation.
	ErrInvalidConfig = errors.New("config: invalid configuration")
	// ErrS3RegionRequired is returned when S3_BUCKET is set without S3_REGION.
	ErrS3RegionRequired = errors.New("config: S3_REGION is required when S3_BUCKET is set")
)

// Config holds all process-level configuration for the application.
// Enablement toggles are not part of it; see Toggles.
type Config struct {
	// Server settings
	Port           int   `env:"PORT, default=8080" json:"port" validate:"min=1,max=65535"`
	MaxUploadBytes int64 `env:"MAX_UPLOAD_BYTES, default=104857600" json:"max_upload_bytes" validate:"min=1"`
	// FormMemoryBytes is how much of a multipart form is held in memory
	// before parts spill to disk.
	FormMemoryBytes int64 `env:"FORM_MEMORY_BYTES, default=33554432" json:"form_memory_bytes" validate:"min=0"`

	// Storage settings
	TempDir   string `env:"TEMP_DIR, default=/tmp/media-watermark" json:"temp_dir" validate:"required"`
	UploadDir string `env:"UPLOAD_DIR" json:"upload_dir,omitempty"`

	// Watermark settings
	WatermarkAsset string `env:"WATERMARK_ASSET, default=assets/images/watermark.png" json:"watermark_asset" validate:"required"`
	// MaxSourceBytes bounds the size of uploads that get watermarked.
	// Zero disables the guard.
	MaxSourceBytes int64  `env:"WATERMARK_MAX_SOURCE_BYTES, default=10485760" json:"max_source_bytes" validate:"min=0"`
	FFmpegPath     string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path" validate:"required"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Prefix           string `env:"S3_PREFIX" json:"s3_prefix,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty" validate:"omitempty,url"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Metrics
	MetricsEnabled bool `env:"METRICS_ENABLED, default=true" json:"metrics_enabled"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format" validate:"oneof=text json TEXT JSON"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`                                       // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig
// and validates the result.
func Load() (*Config, error) {
	return load(envconfig.OsLookuper())
}

func load(lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

var validate = validator.New()

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.S3Bucket != "" && c.S3Region == "" {
		return ErrS3RegionRequired
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, TempDir: %s, UploadDir: %s, WatermarkAsset: %s, MaxSourceBytes: %d, FFmpegPath: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.TempDir,
		c.UploadDir,
		c.WatermarkAsset,
		c.MaxSourceBytes,
		c.FFmpegPath,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
