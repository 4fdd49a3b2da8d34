package storage

import (
	"context"
	"errors"
	"fmt"
	"irouter/internal/config"
	"irouter/internal/logger"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"
)

// ErrNotConfigured is returned by uploads when no bucket is configured
var ErrNotConfigured = errors.New("object storage not configured")

// UploadOptions are the object attributes of an upload
type UploadOptions struct {
	ACL         string
	ContentType string
}

// PutObjectAPI is the subset of the S3 client used for uploads
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store uploads files to an S3-compatible bucket served behind a CDN
type S3Store struct {
	client  PutObjectAPI
	bucket  string
	cdnBase string
}

// NewS3Store builds the S3 client from storage configuration
func NewS3Store(ctx context.Context, cfg config.StorageConfig) (*S3Store, error) {
	if cfg.Bucket == "" {
		return &S3Store{cdnBase: cfg.CDNBaseURL}, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error loading storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	logger.Log.WithFields(logrus.Fields{"bucket": cfg.Bucket, "endpoint": cfg.Endpoint}).Info("Object storage configured")
	return NewS3StoreWithClient(client, cfg.Bucket, cfg.CDNBaseURL), nil
}

// NewS3StoreWithClient wraps an existing client
func NewS3StoreWithClient(client PutObjectAPI, bucket, cdnBase string) *S3Store {
	return &S3Store{client: client, bucket: bucket, cdnBase: strings.TrimRight(cdnBase, "/")}
}

// UploadFile uploads the local file at localPath under key
func (s *S3Store) UploadFile(ctx context.Context, localPath, key string, opts UploadOptions) error {
	if s.client == nil || s.bucket == "" {
		return ErrNotConfigured
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("error opening %s: %w", localPath, err)
	}
	defer f.Close()

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   f,
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if opts.ACL != "" {
		input.ACL = types.ObjectCannedACL(opts.ACL)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("error uploading %s: %w", key, err)
	}

	logger.Log.WithFields(logrus.Fields{"bucket": s.bucket, "key": key}).Info("Uploaded object")
	return nil
}

// URL returns the public CDN URL of key
func (s *S3Store) URL(key string) string {
	return s.cdnBase + "/" + strings.TrimLeft(key, "/")
}
