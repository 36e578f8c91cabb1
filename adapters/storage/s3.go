package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/Skryldev/image-source/core"
	apperrors "github.com/Skryldev/image-source/errors"
)

// S3Config selects the bucket and key layout. Credentials and endpoint
// settings belong to the injected S3Client.
type S3Config struct {
	Bucket string
	// ThumbnailPrefix is prepended to object keys for large thumbnails.
	ThumbnailPrefix string
}

// S3Client defines the minimal AWS S3 interface used by the adapter.
// This allows injection of real aws-sdk-go-v2 clients or test doubles.
type S3Client interface {
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// S3 is a core.RemoteClient backed by AWS S3 (or S3-compatible stores).
// Inject a real S3Client built with aws-sdk-go-v2 in production.
type S3 struct {
	client          S3Client
	bucket          string
	thumbnailPrefix string
}

// NewS3 creates an S3 remote client.  client must not be nil.
func NewS3(client S3Client, cfg S3Config) (*S3, error) {
	if client == nil {
		return nil, fmt.Errorf("s3 storage: client must not be nil")
	}
	if cfg.Bucket == "" {
		return nil, apperrors.New(apperrors.CategoryConfig, "s3.new", fmt.Errorf("empty bucket"))
	}
	prefix := cfg.ThumbnailPrefix
	if prefix == "" {
		prefix = "thumbnails/large"
	}
	return &S3{client: client, bucket: cfg.Bucket, thumbnailPrefix: prefix}, nil
}

// Key returns the object key for a remote path.
func (s *S3) Key(p string, kind core.RemoteKind) string {
	key := strings.TrimPrefix(path.Clean("/"+p), "/")
	if kind == core.RemoteLargeThumbnail {
		key = path.Join(s.thumbnailPrefix, key)
	}
	return key
}

// Open implements core.RemoteClient. Client failures are reported as
// transient so callers may retry them.
func (s *S3) Open(ctx context.Context, p string, kind core.RemoteKind) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Canceled("s3.get", err)
	}
	rc, err := s.client.GetObject(ctx, s.bucket, s.Key(p, kind))
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.Canceled("s3.get", ctx.Err())
		}
		return nil, apperrors.Transient("s3.get", err)
	}
	return rc, nil
}

var _ core.RemoteClient = (*S3)(nil)

// ──────────────────────────────────────────────────────────────────────────────
// Integration guide: wiring aws-sdk-go-v2
// ──────────────────────────────────────────────────────────────────────────────
//
//  import (
//      "github.com/aws/aws-sdk-go-v2/config"
//      "github.com/aws/aws-sdk-go-v2/service/s3"
//  )
//
//  type awsS3Wrapper struct{ client *s3.Client }
//
//  func (w *awsS3Wrapper) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
//      out, err := w.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
//      if err != nil {
//          return nil, err
//      }
//      return out.Body, nil
//  }
