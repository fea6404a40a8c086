package storage

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Compile-time check that S3Storage implements Storage.
var _ Storage = (*S3Storage)(nil)

// S3Config holds the configuration for S3 storage.
type S3Config struct {
	Bucket          string
	Region          string
	Prefix          string // Optional: key prefix for persisted uploads
	Endpoint        string // Optional: for custom S3-compatible endpoints
	AccessKeyID     string // Optional: AWS access key ID
	SecretAccessKey string // Optional: AWS secret access key
}

// S3Storage wraps LocalStorage and persists accepted uploads to S3.
// Temporary files used while watermarking stay on local disk.
type S3Storage struct {
	*LocalStorage
	client *s3.Client
	bucket string
	region string
	prefix string
}

// NewS3Storage creates a new S3Storage instance.
// The tempDir parameter specifies where temporary files are stored.
// The cfg parameter contains S3 configuration.
func NewS3Storage(tempDir string, cfg S3Config) (*S3Storage, error) {
	local, err := NewLocalStorage(tempDir, "")
	if err != nil {
		return nil, err
	}

	var configOpts []func(*config.LoadOptions) error
	configOpts = append(configOpts, config.WithRegion(cfg.Region))

	// Use static credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), configOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, clientOpts...)

	return &S3Storage{
		LocalStorage: local,
		client:       client,
		bucket:       cfg.Bucket,
		region:       cfg.Region,
		prefix:       cfg.Prefix,
	}, nil
}

// Persist uploads data to S3 and returns the object URL.
// PutObject needs a content length; data of unknown size is staged in a
// temp file first.
func (s *S3Storage) Persist(ctx context.Context, key, contentType string, data io.Reader, size int64) (string, error) {
	objectKey := s.prefix + key

	if size < 0 {
		staged, err := s.SaveTemp(ctx, "persist_*", data)
		if err != nil {
			return "", fmt.Errorf("stage upload: %w", err)
		}
		defer func() { _ = s.CleanupTemp(context.WithoutCancel(ctx), []string{staged}) }()

		info, err := os.Stat(staged)
		if err != nil {
			return "", fmt.Errorf("stat staged upload: %w", err)
		}
		rc, err := s.LoadTemp(ctx, staged)
		if err != nil {
			return "", fmt.Errorf("load staged upload: %w", err)
		}
		defer func() { _ = rc.Close() }()
		data, size = rc, info.Size()
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey),
		Body:          data,
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("upload to S3: %w", err)
	}

	url := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, objectKey)
	return url, nil
}
