// Package storage reads uploaded workbooks from and writes failure reports
// to S3 compatible object storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/example/bulk-record-processor/internal/apperr"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// API is the subset of the S3 client used by Store.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config selects the buckets and, optionally, a custom endpoint.
type Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UploadBucket    string
	FailureBucket   string
}

// Store downloads source workbooks and uploads failure reports.
type Store struct {
	api           API
	uploadBucket  string
	failureBucket string
	maxBytes      int64
	logger        zerolog.Logger
}

// NewClient builds an S3 client from the default AWS credential chain,
// honouring a custom endpoint (path style) and static keys when configured.
func NewClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// New constructs a Store. maxBytes bounds downloads; zero disables the limit.
func New(api API, cfg Config, maxBytes int64, logger zerolog.Logger) (*Store, error) {
	if api == nil {
		return nil, errors.New("storage: s3 client is required")
	}
	if strings.TrimSpace(cfg.UploadBucket) == "" {
		return nil, errors.New("storage: upload bucket is required")
	}
	if strings.TrimSpace(cfg.FailureBucket) == "" {
		return nil, errors.New("storage: failure bucket is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &Store{
		api:           api,
		uploadBucket:  cfg.UploadBucket,
		failureBucket: cfg.FailureBucket,
		maxBytes:      maxBytes,
		logger:        logger,
	}, nil
}

// Download returns the bytes of objectKey in the upload bucket.
func (s *Store) Download(ctx context.Context, objectKey string) ([]byte, error) {
	if strings.TrimSpace(objectKey) == "" {
		return nil, apperr.Validation("object key is required")
	}
	s.logger.Info().
		Str("bucket", s.uploadBucket).
		Str("object_key", objectKey).
		Msg("storage: downloading workbook")

	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.uploadBucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, apperr.Upstream(err, "download s3://%s/%s", s.uploadBucket, objectKey)
	}
	defer out.Body.Close()

	var reader io.Reader = out.Body
	if s.maxBytes > 0 {
		reader = io.LimitReader(out.Body, s.maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, apperr.Upstream(err, "read s3://%s/%s", s.uploadBucket, objectKey)
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return nil, apperr.Validation("workbook %s exceeds maximum size of %d bytes", objectKey, s.maxBytes)
	}
	return data, nil
}

// UploadFailureReport writes a report workbook to the failure bucket.
func (s *Store) UploadFailureReport(ctx context.Context, objectKey string, data []byte) error {
	s.logger.Info().
		Str("bucket", s.failureBucket).
		Str("object_key", objectKey).
		Int("bytes", len(data)).
		Msg("storage: uploading failure report")

	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.failureBucket),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(xlsxContentType),
	})
	if err != nil {
		return apperr.Upstream(err, "upload s3://%s/%s", s.failureBucket, objectKey)
	}
	return nil
}
