package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/gamefolio/backend/internal/config"
)

// Bucket names a logical object bucket.
type Bucket string

const (
	BucketClips   Bucket = "clips"
	BucketAvatars Bucket = "avatars"
)

// ErrEmptyKey is returned for blank object keys.
var ErrEmptyKey = errors.New("storage: empty key")

// S3Storage stores clip and avatar objects in an S3-compatible service.
type S3Storage struct {
	client    *s3.Client
	uploader  *manager.Uploader
	presigner *s3.PresignClient
	buckets   map[Bucket]string
	baseURL   string
}

// NewS3Storage configures a client targeting the provided object store.
func NewS3Storage(ctx context.Context, cfg config.StorageConfig) (*S3Storage, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("s3 storage: clips and avatars buckets are required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024
		u.LeavePartsOnError = false
	})

	return &S3Storage{
		client:    client,
		uploader:  uploader,
		presigner: s3.NewPresignClient(client),
		buckets: map[Bucket]string{
			BucketClips:   cfg.ClipsBucket,
			BucketAvatars: cfg.AvatarsBucket,
		},
		baseURL: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
	}, nil
}

// Put uploads r under key, overwriting any existing object, and returns its
// public URL.
func (s *S3Storage) Put(ctx context.Context, bucket Bucket, key string, r io.Reader, contentType string) (string, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", ErrEmptyKey
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucketName(bucket)),
		Key:    aws.String(key),
		Body:   r,
		ACL:    s3types.ObjectCannedACLPublicRead,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if bucket == BucketAvatars {
		input.CacheControl = aws.String("no-cache")
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("s3 storage upload %s/%s: %w", bucket, key, err)
	}
	return s.PublicURL(bucket, key), nil
}

// Delete removes objects. Missing keys are not an error.
func (s *S3Storage) Delete(ctx context.Context, bucket Bucket, keys ...string) error {
	objects := make([]s3types.ObjectIdentifier, 0, len(keys))
	for _, key := range keys {
		if key = strings.TrimLeft(key, "/"); key != "" {
			objects = append(objects, s3types.ObjectIdentifier{Key: aws.String(key)})
		}
	}
	if len(objects) == 0 {
		return nil
	}

	_, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucketName(bucket)),
		Delete: &s3types.Delete{Objects: objects, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return fmt.Errorf("s3 storage delete from %s: %w", bucket, err)
	}
	return nil
}

// PresignGet returns a time-limited download URL for a private object.
func (s *S3Storage) PresignGet(ctx context.Context, bucket Bucket, key string, ttl time.Duration) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName(bucket)),
		Key:    aws.String(strings.TrimLeft(key, "/")),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("s3 storage presign %s/%s: %w", bucket, key, err)
	}
	return req.URL, nil
}

// PublicURL derives the public location of an object without a round trip.
func (s *S3Storage) PublicURL(bucket Bucket, key string) string {
	return publicURL(s.baseURL, s.bucketName(bucket), key)
}

func (s *S3Storage) bucketName(bucket Bucket) string {
	if name, ok := s.buckets[bucket]; ok && name != "" {
		return name
	}
	return string(bucket)
}

func publicURL(baseURL, bucket, key string) string {
	key = strings.TrimLeft(key, "/")
	if baseURL == "" {
		return bucket + "/" + key
	}
	return fmt.Sprintf("%s/%s/%s", baseURL, bucket, key)
}
