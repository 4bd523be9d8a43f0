package storage

import (
	"context"
	"io"
)

// ObjectInfo describes a stored blob.
type ObjectInfo struct {
	Bucket      string
	Key         string
	Size        int64
	ContentType string
}

// BlobStore is the object store consumed by the gateway and the ingest
// worker. Implementations must honor the context deadline on every call.
type BlobStore interface {
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (string, error)
	Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error
	Stat(ctx context.Context, bucket, key string) (*ObjectInfo, error)
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// S3URI renders the s3://bucket/key form expected by the processing API.
func S3URI(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}
