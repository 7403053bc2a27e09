package sound

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
)

// MinIOStore keeps the ambient loops under sounds/<theme>/<file>
type MinIOStore struct {
	client     *minio.Client
	bucketName string
}

func NewMinIOStore(client *minio.Client, bucketName string) *MinIOStore {
	return &MinIOStore{
		client:     client,
		bucketName: bucketName,
	}
}

// Upload stores one sound file
func (m *MinIOStore) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(
		ctx,
		m.bucketName,
		key,
		reader,
		size,
		minio.PutObjectOptions{
			ContentType:  contentType,
			CacheControl: "public, max-age=86400",
			UserMetadata: map[string]string{
				"uploaded": time.Now().Format(time.RFC3339),
			},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to upload to minio: %w", err)
	}
	return nil
}

// Size returns the stored object size, or -1 when the object is missing
func (m *MinIOStore) Size(ctx context.Context, key string) (int64, error) {
	info, err := m.client.StatObject(ctx, m.bucketName, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return -1, nil
		}
		return 0, fmt.Errorf("failed to get object info: %w", err)
	}
	return info.Size, nil
}

// PresignedURL returns a time limited GET url for key
func (m *MinIOStore) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	url, err := m.client.PresignedGetObject(ctx, m.bucketName, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned url: %w", err)
	}
	return url.String(), nil
}
