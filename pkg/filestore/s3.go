package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/ethpandaops/fuzzsync/pkg/config"
	"github.com/sirupsen/logrus"
)

// s3Backend implements Backend for S3-compatible storage.
type s3Backend struct {
	log    logrus.FieldLogger
	cfg    *config.S3Config
	client *s3.Client
}

// Ensure interface compliance.
var _ Backend = (*s3Backend)(nil)

// NewS3Backend creates a Backend writing to the configured S3 bucket.
func NewS3Backend(log logrus.FieldLogger, cfg *config.S3Config) Backend {
	return &s3Backend{
		log:    log.WithField("component", "s3-backend"),
		cfg:    cfg,
		client: newS3Client(cfg),
	}
}

func (b *s3Backend) String() string {
	return "s3://" + b.cfg.Bucket
}

// Put uploads body under key.
func (b *s3Backend) Put(
	ctx context.Context, key string, body io.ReadSeeker, size int64, meta map[string]string,
) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(b.cfg.Bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("application/zstd"),
		Metadata:      meta,
	}

	if b.cfg.StorageClass != "" {
		input.StorageClass = s3types.StorageClass(b.cfg.StorageClass)
	}

	if b.cfg.ACL != "" {
		input.ACL = s3types.ObjectCannedACL(b.cfg.ACL)
	}

	b.log.WithFields(logrus.Fields{
		"key":    key,
		"bucket": b.cfg.Bucket,
	}).Debug("Uploading object")

	if _, err := b.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("PutObject: %w", err)
	}

	return nil
}

// Get returns the body and user metadata of key.
func (b *s3Backend) Get(ctx context.Context, key string) (io.ReadCloser, map[string]string, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, nil, ErrNotFound
		}

		return nil, nil, fmt.Errorf("getting object %q: %w", key, err)
	}

	return out.Body, out.Metadata, nil
}

// isS3NotFound returns true if the error indicates the object does not exist.
func isS3NotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}

	var nf *s3types.NotFound
	if errors.As(err, &nf) {
		return true
	}

	// Some S3-compatible implementations return a generic error with
	// "NoSuchKey" in the message rather than the typed error.
	return strings.Contains(err.Error(), "NoSuchKey")
}

func newS3Client(cfg *config.S3Config) *s3.Client {
	opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.Region != "" {
				o.Region = cfg.Region
			} else {
				o.Region = "us-east-1"
			}

			if cfg.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.EndpointURL)
			}

			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}

			if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
				o.Credentials = credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID, cfg.SecretAccessKey, "",
				)
			}
		},
	}

	return s3.New(s3.Options{}, opts...)
}
