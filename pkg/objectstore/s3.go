package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3Config struct {
	Bucket string
	Region string

	// Endpoint points at a non-AWS implementation such as MinIO. It turns
	// on path-style addressing.
	Endpoint string

	// Static credentials; when empty the default AWS chain is used.
	AccessKey string
	SecretKey string

	// PublicURL is the base objects are served from, e.g. a CDN. Defaults
	// to the bucket URL.
	PublicURL string
}

// s3API is the part of *s3.Client we call.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type S3 struct {
	client    s3API
	bucket    string
	publicURL string
}

// NewS3 builds an S3 backed store.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("objectstore: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	public := cfg.PublicURL
	switch {
	case public != "":
	case cfg.Endpoint != "":
		public = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	default:
		public = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}

	return &S3{client: client, bucket: cfg.Bucket, publicURL: strings.TrimRight(public, "/")}, nil
}

func (s *S3) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (Object, error) {
	if key == "" {
		return Object{}, errors.New("objectstore: empty key")
	}

	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}
	if size >= 0 {
		in.ContentLength = aws.Int64(size)
	}

	if _, err := s.client.PutObject(ctx, in); err != nil {
		return Object{}, fmt.Errorf("objectstore: put %s: %w", key, err)
	}
	return Object{Key: key, URL: s.URL(key)}, nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("objectstore: delete %s: %w", key, err)
	}
	return nil
}

// URL is the public address of key.
func (s *S3) URL(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.publicURL + "/" + strings.Join(segments, "/")
}
