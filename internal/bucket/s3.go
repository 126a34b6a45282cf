package bucket

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"dialvision/internal/domain"
)

var ErrNoS3Bucket = errors.New("s3: bucket name is required")

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type objectPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Client stores files in an S3 compatible bucket and hands out presigned
// download URLs, so any model that can fetch a URL can see the image.
type S3Client struct {
	bucket     string
	putter     objectPutter
	presigner  objectPresigner
	presignTTL time.Duration
	logger     *slog.Logger
}

type S3Config struct {
	Bucket     string
	Region     string
	Endpoint   string
	AccessKey  string
	SecretKey  string
	PresignTTL time.Duration
	Logger     *slog.Logger
}

// OpenS3 builds an S3 session from static credentials, or the default AWS
// credential chain when no access key is configured.
func OpenS3(ctx context.Context, cfg S3Config) (*S3Client, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoS3Bucket
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Client(cfg, client, s3.NewPresignClient(client)), nil
}

func newS3Client(cfg S3Config, putter objectPutter, presigner objectPresigner) *S3Client {
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &S3Client{
		bucket:     cfg.Bucket,
		putter:     putter,
		presigner:  presigner,
		presignTTL: cfg.PresignTTL,
		logger:     cfg.Logger,
	}
}

func (c *S3Client) PutFile(ctx context.Context, name, mimeType string, content io.Reader) (*domain.StoredFile, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}

	key, err := objectKey(name)
	if err != nil {
		return nil, err
	}

	_, err = c.putter.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(mimeType),
		ContentLength: aws.Int64(int64(len(data))),
		Metadata: map[string]string{
			"original-filename": name,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("s3 put object: %w", err)
	}

	ps, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, func(po *s3.PresignOptions) {
		po.Expires = c.presignTTL
	})
	if err != nil {
		return nil, fmt.Errorf("s3 presign: %w", err)
	}

	c.logger.Info("file uploaded", "name", name, "mime", mimeType, "bytes", len(data), "key", key)
	return &domain.StoredFile{
		Name:          name,
		Bucket:        c.bucket,
		URL:           ps.URL,
		ContentType:   mimeType,
		ContentLength: int64(len(data)),
	}, nil
}

// Close is a no-op: the SDK client holds no session state.
func (c *S3Client) Close() error { return nil }

func objectKey(name string) (string, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return "uploads/" + u.String() + "/" + path.Base(name), nil
}
