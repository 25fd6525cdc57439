// Package storage keeps delivery-proof photos in S3-compatible object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// MaxPhotoBytes caps a single upload.
const MaxPhotoBytes = 5 << 20

var (
	ErrNotConfigured   = errors.New("photo storage not configured")
	ErrUnsupportedType = errors.New("unsupported photo type")
	ErrTooLarge        = errors.New("photo too large")
	ErrInvalidRef      = errors.New("invalid photo reference")
)

var extensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Configured reports whether enough is set to reach a bucket.
func (c S3Config) Configured() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// Photos uploads and serves task photos.
type Photos struct {
	client s3Client
	bucket string
}

// NewPhotos returns a Photos backed by cfg. Without credentials every call
// fails with ErrNotConfigured.
func NewPhotos(cfg S3Config) *Photos {
	p := &Photos{bucket: cfg.Bucket}
	if cfg.Configured() {
		p.client = newS3Client(cfg)
	}
	return p
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Enabled reports whether uploads can succeed.
func (p *Photos) Enabled() bool {
	return p.client != nil
}

// Upload stores a photo for taskID and returns its reference, which is the
// object key. size must be the exact body length.
func (p *Photos) Upload(ctx context.Context, taskID, contentType string, body io.Reader, size int64) (string, error) {
	if p.client == nil {
		return "", ErrNotConfigured
	}
	ext, ok := extensions[contentType]
	if !ok {
		return "", ErrUnsupportedType
	}
	if size <= 0 || size > MaxPhotoBytes {
		return "", ErrTooLarge
	}

	key := fmt.Sprintf("tasks/%s/%s.%s", taskID, uuid.NewString(), ext)
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload to s3: %w", err)
	}
	return key, nil
}

// Open streams a stored photo. The caller closes the reader.
func (p *Photos) Open(ctx context.Context, taskID, ref string) (io.ReadCloser, string, error) {
	if p.client == nil {
		return nil, "", ErrNotConfigured
	}
	if !BelongsTo(ref, taskID) {
		return nil, "", ErrInvalidRef
	}
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		return nil, "", fmt.Errorf("download from s3: %w", err)
	}
	return out.Body, aws.ToString(out.ContentType), nil
}

// Delete removes a stored photo.
func (p *Photos) Delete(ctx context.Context, ref string) error {
	if p.client == nil {
		return ErrNotConfigured
	}
	_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		return fmt.Errorf("delete from s3: %w", err)
	}
	return nil
}

// BelongsTo reports whether ref is a photo key under taskID.
func BelongsTo(ref, taskID string) bool {
	prefix := "tasks/" + taskID + "/"
	rest, ok := strings.CutPrefix(ref, prefix)
	return ok && taskID != "" && rest != "" && !strings.Contains(rest, "/")
}
