package media

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// minioAPI is the subset of *minio.Client used here; tests inject a fake.
type minioAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	SetBucketPolicy(ctx context.Context, bucketName, policy string) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

const publicReadPolicy = `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`

// MinioBackend stores images in a MinIO bucket.
type MinioBackend struct {
	api     minioAPI
	bucket  string
	baseURL string
}

// NewMinioClient dials a MinIO endpoint with static credentials.
func NewMinioClient(endpoint, accessKey, secretKey string, useSSL bool) (*minio.Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return client, nil
}

// NewMinioBackend wraps client and makes sure the bucket exists and is
// publicly readable, so returned URLs can be used directly by browsers.
func NewMinioBackend(ctx context.Context, client *minio.Client, bucket, baseURL string) (*MinioBackend, error) {
	return newMinioBackend(ctx, client, bucket, baseURL)
}

func newMinioBackend(ctx context.Context, api minioAPI, bucket, baseURL string) (*MinioBackend, error) {
	b := &MinioBackend{api: api, bucket: bucket, baseURL: baseURL}
	if err := b.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}
	return b, nil
}

func (b *MinioBackend) ensureBucket(ctx context.Context) error {
	exists, err := b.api.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if exists {
		return nil
	}
	if err := b.api.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	if err := b.api.SetBucketPolicy(ctx, b.bucket, fmt.Sprintf(publicReadPolicy, b.bucket)); err != nil {
		return fmt.Errorf("failed to set bucket policy: %w", err)
	}
	return nil
}

// Put uploads an object and returns its public URL.
func (b *MinioBackend) Put(ctx context.Context, key, contentType string, r io.Reader, size int64) (string, error) {
	_, err := b.api.PutObject(ctx, b.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to upload object: %w", err)
	}
	return publicURL(b.baseURL, b.bucket, key), nil
}
