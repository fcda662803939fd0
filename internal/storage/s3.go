// Package storage implements media.ObjectStore on S3 and on the local
// filesystem.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/JonMunkholm/listing-import/internal/media"
)

// maxDeleteKeys is the DeleteObjects limit per request.
const maxDeleteKeys = 1000

// S3API is the subset of *s3.Client used by S3.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3Config locates the bucket and its public URLs.
type S3Config struct {
	Bucket        string
	Region        string
	Endpoint      string
	UsePathStyle  bool
	PublicBaseURL string
	CacheControl  string
}

// S3 stores objects in one bucket.
type S3 struct {
	client S3API
	cfg    S3Config
}

var _ media.ObjectStore = (*S3)(nil)

// NewS3Client builds a client honoring a custom endpoint such as LocalStack
// or MinIO.
func NewS3Client(awsCfg aws.Config, cfg S3Config) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
}

// NewS3 returns an S3 object store.
func NewS3(client S3API, cfg S3Config) *S3 {
	if cfg.CacheControl == "" {
		cfg.CacheControl = "public, max-age=31536000, immutable"
	}
	return &S3{client: client, cfg: cfg}
}

func (s *S3) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
		CacheControl:  aws.String(s.cfg.CacheControl),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", key, err)
	}
	return nil
}

// Delete removes keys in chunks and returns how many were deleted. Per-key
// failures are joined into the returned error; the count still covers the
// keys that were removed.
func (s *S3) Delete(ctx context.Context, keys []string) (int, error) {
	deleted := 0
	var errs []error

	for start := 0; start < len(keys); start += maxDeleteKeys {
		end := min(start+maxDeleteKeys, len(keys))

		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(k)})
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.cfg.Bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(false)},
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("s3 delete batch %d-%d: %w", start, end, err))
			continue
		}
		deleted += len(out.Deleted)
		for _, e := range out.Errors {
			errs = append(errs, fmt.Errorf("s3 delete %s: %s", aws.ToString(e.Key), aws.ToString(e.Message)))
		}
	}
	return deleted, errors.Join(errs...)
}

// URL returns the public URL of key.
func (s *S3) URL(key string) string {
	switch {
	case s.cfg.PublicBaseURL != "":
		return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/" + key
	case s.cfg.Endpoint != "":
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.cfg.Endpoint, "/"), s.cfg.Bucket, key)
	case s.cfg.Region != "":
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
	default:
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.cfg.Bucket, key)
	}
}

func (s *S3) String() string { return fmt.Sprintf("s3(%s)", s.cfg.Bucket) }
