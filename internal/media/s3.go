package media

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Options configures an S3Backend.
type S3Options struct {
	Region        string
	Endpoint      string
	Bucket        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

// S3Backend stores images in an S3 bucket.
type S3Backend struct {
	api     s3API
	bucket  string
	baseURL string
}

// NewS3Backend loads AWS configuration and builds an S3 client. Static
// credentials are used when both keys are set; otherwise the default chain
// applies. A custom endpoint switches to path-style addressing.
func NewS3Backend(ctx context.Context, opts S3Options) (*S3Backend, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	baseURL := opts.PublicBaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://s3.%s.amazonaws.com", opts.Region)
	}
	return newS3Backend(client, opts.Bucket, baseURL), nil
}

func newS3Backend(api s3API, bucket, baseURL string) *S3Backend {
	return &S3Backend{api: api, bucket: bucket, baseURL: baseURL}
}

// Put uploads an object and returns its public URL.
func (b *S3Backend) Put(ctx context.Context, key, contentType string, r io.Reader, size int64) (string, error) {
	_, err := b.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return publicURL(b.baseURL, b.bucket, key), nil
}
