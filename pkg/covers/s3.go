package covers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/pressleaf/biblio/pkg/observability"
	"github.com/pressleaf/biblio/pkg/storage"
)

// s3API is the slice of the S3 client the store actually calls. Tests
// substitute a fake; production wiring passes *s3.Client.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// S3Store keeps covers in an S3 bucket. A custom endpoint switches the
// client to path-style addressing, which is what MinIO expects in
// development.
type S3Store struct {
	client  s3API
	bucket  string
	baseURL string
	logger  *observability.Logger
}

// NewS3Store builds the S3 client from config. Explicit access keys
// take priority; otherwise the SDK's default credential chain applies
// (environment, shared config, instance roles).
func NewS3Store(ctx context.Context, cfg storage.Config, logger *observability.Logger) (*S3Store, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("S3 bucket not configured")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.S3Region),
	}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
		if cfg.S3UsePathStyle {
			o.UsePathStyle = true
		}
	})

	store := &S3Store{
		client:  client,
		bucket:  cfg.S3Bucket,
		baseURL: coverBaseURL(cfg),
		logger:  logger.WithField("component", "covers"),
	}
	store.ensureBucket(ctx)
	return store, nil
}

// ensureBucket creates the bucket when it is missing, which keeps local
// MinIO setups working without a provisioning step. Production
// credentials rarely allow CreateBucket, so failures are logged and a
// truly absent bucket surfaces on the first Put.
func (s *S3Store) ensureBucket(ctx context.Context) {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return
	}
	if !isNotFound(err) {
		s.logger.WithError(err).WithField("bucket", s.bucket).Warn("Could not check cover bucket")
		return
	}

	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return
		}
		s.logger.WithError(err).WithField("bucket", s.bucket).Warn("Could not create cover bucket")
		return
	}
	s.logger.WithField("bucket", s.bucket).Info("Created cover bucket")
}

func (s *S3Store) Put(ctx context.Context, key string, content io.Reader, contentType string) error {
	if !validKey(key) {
		return fmt.Errorf("invalid cover key %q", key)
	}

	// Covers are capped to a few megabytes upstream, so buffering the
	// whole object to attach its digest is fine.
	data, err := io.ReadAll(content)
	if err != nil {
		return fmt.Errorf("failed to read cover content: %w", err)
	}
	digest := sha256.Sum256(data)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"sha256": hex.EncodeToString(digest[:]),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload cover to S3: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"key":          key,
		"content_type": contentType,
		"size":         len(data),
	}).Debug("Stored cover image")
	return nil
}

func (s *S3Store) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	if !validKey(key) {
		return nil, "", ErrNotFound
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to fetch cover from S3: %w", err)
	}

	contentType := aws.ToString(out.ContentType)
	if contentType == "" {
		contentType = ContentType(key)
	}
	return out.Body, contentType, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	if !validKey(key) {
		return nil
	}

	// S3 deletes are idempotent; a missing key still succeeds.
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete cover from S3: %w", err)
	}
	return nil
}

func (s *S3Store) URL(key string) string {
	return s.baseURL + "/" + key
}

func (s *S3Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("cover bucket unavailable: %w", err)
	}
	return nil
}

// coverBaseURL picks the public address covers resolve under. Custom
// endpoints serve path-style, AWS proper serves virtual-hosted.
func coverBaseURL(cfg storage.Config) string {
	if cfg.S3Endpoint != "" {
		return strings.TrimSuffix(cfg.S3Endpoint, "/") + "/" + cfg.S3Bucket
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.S3Bucket, cfg.S3Region)
}

// isNotFound matches the two shapes the SDK uses for missing objects
// and buckets.
func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noKey) || errors.As(err, &notFound)
}
