package client

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/artworkup/api/internal/config"
)

// Archiver mirrors job artifacts to durable storage
type Archiver interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	Delete(ctx context.Context, key string) error
}

// ArchiveClient implements Archiver for S3-compatible storage (AWS S3, Cloudflare R2, MinIO)
type ArchiveClient struct {
	s3Client *s3.Client
	bucket   string
	prefix   string
}

// NewArchiveClient creates a new object storage client
func NewArchiveClient(ctx context.Context, cfg *config.ArchiveConfig) (*ArchiveClient, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("archive configuration incomplete")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &ArchiveClient{
		s3Client: s3Client,
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
	}, nil
}

func (c *ArchiveClient) objectKey(key string) string {
	return path.Join(c.prefix, key)
}

// Put uploads one object under the configured prefix
func (c *ArchiveClient) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(c.objectKey(key)),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", key, err)
	}
	return nil
}

// Delete removes one object under the configured prefix
func (c *ArchiveClient) Delete(ctx context.Context, key string) error {
	_, err := c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.objectKey(key)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete archived %s: %w", key, err)
	}
	return nil
}
