// Package storage fetches dataset files from S3-compatible object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrBucketNotFound is returned when the configured bucket does not exist.
var ErrBucketNotFound = errors.New("bucket not found")

// MinIOClient reads dataset files from MinIO.
type MinIOClient struct {
	client     *minio.Client
	bucketName string
}

// MinIOConfig holds MinIO connection settings.
type MinIOConfig struct {
	Endpoint  string // e.g., "localhost:9000"
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// NewMinIOClient creates a MinIO storage client. The bucket must exist.
func NewMinIOClient(ctx context.Context, cfg MinIOConfig) (*MinIOClient, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrBucketNotFound, cfg.Bucket)
	}

	return &MinIOClient{
		client:     client,
		bucketName: cfg.Bucket,
	}, nil
}

// Fetch downloads the object at key into dir and returns the local path.
// A local file of the same size is reused. NetCDF files need random access,
// so the object is always completed on disk before it is opened.
func (m *MinIOClient) Fetch(ctx context.Context, key, dir string) (string, error) {
	info, err := m.client.StatObject(ctx, m.bucketName, key, minio.StatObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", key, err)
	}

	local := filepath.Join(dir, path.Base(key))
	if fi, err := os.Stat(local); err == nil && fi.Size() == info.Size {
		return local, nil
	}

	if err := m.client.FGetObject(ctx, m.bucketName, key, local, minio.GetObjectOptions{}); err != nil {
		return "", fmt.Errorf("failed to download %s: %w", key, err)
	}
	return local, nil
}
