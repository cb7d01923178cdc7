package objectclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/markdave123-py/clausewise/internal/core"
)

const (
	uploadTimeout = 2 * time.Minute
	fetchTimeout  = 30 * time.Second
)

var _ core.ObjectClient = (*S3Client)(nil)

// S3Config names the bucket raw uploads live in.
type S3Config struct {
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	// Prefix is prepended to every key, e.g. "documents".
	Prefix string
}

// S3Client stores raw uploads in one bucket under an optional prefix.
type S3Client struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	cfg        S3Config
	logger     *slog.Logger
}

func NewS3Client(ctx context.Context, c S3Config, logger *slog.Logger) (*S3Client, error) {
	switch {
	case c.AccessKey == "" || c.SecretKey == "":
		return nil, errors.New("AWS credentials not set")
	case c.Region == "":
		return nil, errors.New("AWS_REGION not set")
	case c.Bucket == "":
		return nil, errors.New("BUCKET_NAME not set")
	}
	if logger == nil {
		logger = slog.Default()
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(c.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return &S3Client{
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		cfg:        c,
		logger:     logger,
	}, nil
}

func (c *S3Client) objectKey(key string) string {
	if c.cfg.Prefix == "" {
		return key
	}
	return path.Join(c.cfg.Prefix, key)
}

// UploadFile stores data and returns the object's virtual-hosted URL.
func (c *S3Client) UploadFile(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	k := c.objectKey(key)
	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.cfg.Bucket),
		Key:           aws.String(k),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload %s: %w", k, err)
	}
	c.logger.Debug("stored upload", "bucket", c.cfg.Bucket, "key", k, "bytes", len(data))
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.cfg.Bucket, c.cfg.Region, k), nil
}

// GetFile downloads an object in parallel parts. Missing keys wrap ErrObjectNotFound.
func (c *S3Client) GetFile(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	k := c.objectKey(key)
	buf := manager.NewWriteAtBuffer(nil)
	_, err := c.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(k),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("get %s: %w", k, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("s3 get %s: %w", k, err)
	}
	return buf.Bytes(), nil
}

func (c *S3Client) DeleteFile(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	k := c.objectKey(key)
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(k),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", k, err)
	}
	return nil
}
