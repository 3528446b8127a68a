package storage

import (
	"context"
	"time"
)

// ObjectInfo represents metadata for a remote file/object. Key is relative to
// the listed prefix.
type ObjectInfo struct {
	Key          string
	LastModified time.Time
}

// ObjectStorage captures the minimal S3-compatible operations seeding needs.
type ObjectStorage interface {
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
	DownloadObject(ctx context.Context, key string, destPath string) error
	UploadObject(ctx context.Context, key string, data []byte) error
}
