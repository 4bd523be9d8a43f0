package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dangthobach/data-extraction/internal/common"
)

type minioStore struct {
	client *minio.Client
	log    *slog.Logger
}

// NewMinioStore initializes a MinIO-backed blob store.
func NewMinioStore(cfg common.BlobConfig, log *slog.Logger) (BlobStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client init: %w", err)
	}
	log.Info("minio client initialized", "endpoint", cfg.Endpoint)
	return &minioStore{client: client, log: log}, nil
}

// EnsureBuckets creates the configured buckets when missing.
func EnsureBuckets(ctx context.Context, store BlobStore, cfg common.BlobConfig) error {
	ms, ok := store.(*minioStore)
	if !ok {
		return nil
	}
	for _, bucket := range []string{cfg.TempBucket, cfg.RawBucket} {
		exists, err := ms.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("checking bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := ms.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
				return fmt.Errorf("creating bucket %s: %w", bucket, err)
			}
			ms.log.Info("bucket created", "bucket", bucket)
		}
	}
	return nil
}

func (s *minioStore) Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		s.log.Error("blob upload failed", "bucket", bucket, "key", key, "error", err)
		return "", fmt.Errorf("uploading %s/%s: %w", bucket, key, err)
	}
	s.log.Debug("blob uploaded", "bucket", bucket, "key", key, "size", size)
	return S3URI(bucket, key), nil
}

func (s *minioStore) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: dstBucket, Object: dstKey},
		minio.CopySrcOptions{Bucket: srcBucket, Object: srcKey})
	if err != nil {
		return fmt.Errorf("copying %s/%s to %s/%s: %w", srcBucket, srcKey, dstBucket, dstKey, err)
	}
	return nil
}

func (s *minioStore) Stat(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("stat %s/%s: %w", bucket, key, err)
	}
	return &ObjectInfo{
		Bucket:      bucket,
		Key:         key,
		Size:        info.Size,
		ContentType: info.ContentType,
	}, nil
}

func (s *minioStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}
	return obj, nil
}
