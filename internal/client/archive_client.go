package client

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/config"
)

// ObjectPutter is the subset of the S3 API the archive uses
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ArchiveClient keeps a copy of every uploaded source document in an
// S3-compatible bucket
type ArchiveClient struct {
	s3Client   ObjectPutter
	bucketName string
	publicURL  string
	now        func() time.Time
}

// NewArchiveClient creates an archive backed by an R2 bucket
func NewArchiveClient(cfg *config.ArchiveConfig) (*ArchiveClient, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("archive configuration incomplete")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})

	return NewArchiveClientWith(s3Client, cfg.BucketName, cfg.PublicURL), nil
}

// NewArchiveClientWith wraps an existing S3 client
func NewArchiveClientWith(s3Client ObjectPutter, bucket, publicURL string) *ArchiveClient {
	return &ArchiveClient{
		s3Client:   s3Client,
		bucketName: bucket,
		publicURL:  publicURL,
		now:        time.Now,
	}
}

// Archive stores a document and returns its URL
func (c *ArchiveClient) Archive(ctx context.Context, filename string, body []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := c.key(filename)
	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive document: %w", err)
	}
	return c.URL(key), nil
}

func (c *ArchiveClient) key(filename string) string {
	return path.Join("documents", c.now().UTC().Format("2006/01/02"), uuid.NewString(), path.Base(filename))
}

// URL returns the public URL for a key
func (c *ArchiveClient) URL(key string) string {
	if c.publicURL != "" {
		return fmt.Sprintf("%s/%s", c.publicURL, key)
	}
	return fmt.Sprintf("s3://%s/%s", c.bucketName, key)
}
