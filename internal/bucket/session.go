package bucket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dialvision/internal/config"
	"dialvision/internal/domain"
	"dialvision/internal/httpclient"
)

// Opener starts a bucket session.
type Opener func(ctx context.Context) (domain.Bucket, error)

// WithSession opens a bucket, runs fn and closes the bucket on every exit
// path, panics included. A close failure is joined into the returned error.
func WithSession(ctx context.Context, open Opener, fn func(b domain.Bucket) error) (err error) {
	b, err := open(ctx)
	if err != nil {
		return fmt.Errorf("open bucket: %w", err)
	}
	defer func() {
		if cerr := b.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close bucket: %w", cerr))
		}
	}()
	return fn(b)
}

// NewOpener returns the Opener for the configured storage backend.
func NewOpener(cfg *config.Config, logger *slog.Logger) (Opener, error) {
	switch cfg.Storage.Backend {
	case "", "dial":
		httpClient := httpclient.New(time.Duration(cfg.Dial.TimeoutSeconds) * time.Second)
		return func(ctx context.Context) (domain.Bucket, error) {
			return OpenDial(ctx, DialConfig{
				APIKey:     cfg.Dial.APIKey,
				BaseURL:    cfg.Dial.BaseURL,
				HTTPClient: httpClient,
				Logger:     logger,
			})
		}, nil
	case "s3":
		s3cfg := cfg.Storage.S3
		return func(ctx context.Context) (domain.Bucket, error) {
			return OpenS3(ctx, S3Config{
				Bucket:     s3cfg.Bucket,
				Region:     s3cfg.Region,
				Endpoint:   s3cfg.Endpoint,
				AccessKey:  s3cfg.AccessKey,
				SecretKey:  s3cfg.SecretKey,
				PresignTTL: time.Duration(s3cfg.PresignTTLMinutes) * time.Minute,
				Logger:     logger,
			})
		}, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
}
