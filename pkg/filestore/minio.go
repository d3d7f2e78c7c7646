package filestore

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ethpandaops/fuzzsync/pkg/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

// minioBackend implements Backend for a MinIO server. The bucket is
// created on first upload when missing.
type minioBackend struct {
	log    logrus.FieldLogger
	client *minio.Client
	bucket string
	region string

	// bucketMu guards bucketReady. A failed check is retried on the next
	// upload.
	bucketMu    sync.Mutex
	bucketReady bool
}

// Ensure interface compliance.
var _ Backend = (*minioBackend)(nil)

// NewMinioBackend creates a Backend writing to a MinIO bucket.
func NewMinioBackend(log logrus.FieldLogger, cfg *config.MinioConfig) (Backend, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}

	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}

	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	// Empty keys make the client send anonymous requests.
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	return &minioBackend{
		log:    log.WithField("component", "minio-backend"),
		client: client,
		bucket: bucket,
		region: region,
	}, nil
}

func (b *minioBackend) String() string {
	return "minio://" + b.bucket
}

func (b *minioBackend) ensureBucket(ctx context.Context) error {
	b.bucketMu.Lock()
	defer b.bucketMu.Unlock()

	if b.bucketReady {
		return nil
	}

	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return err
	}

	if !exists {
		b.log.WithField("bucket", b.bucket).Info("Creating bucket")

		if err := b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{Region: b.region}); err != nil {
			return err
		}
	}

	b.bucketReady = true

	return nil
}

// Put uploads body under key.
func (b *minioBackend) Put(
	ctx context.Context, key string, body io.ReadSeeker, size int64, meta map[string]string,
) error {
	if err := b.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}

	_, err := b.client.PutObject(ctx, b.bucket, key, body, size, minio.PutObjectOptions{
		ContentType:  "application/zstd",
		UserMetadata: meta,
	})
	if err != nil {
		return fmt.Errorf("putting object %q: %w", key, err)
	}

	return nil
}

// Get returns the body and user metadata of key.
func (b *minioBackend) Get(ctx context.Context, key string) (io.ReadCloser, map[string]string, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, b.translate(key, err)
	}

	// GetObject is lazy; Stat surfaces missing keys before reading.
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()

		return nil, nil, b.translate(key, err)
	}

	return obj, info.UserMetadata, nil
}

func (b *minioBackend) translate(key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return ErrNotFound
	}

	return fmt.Errorf("getting object %q: %w", key, err)
}
