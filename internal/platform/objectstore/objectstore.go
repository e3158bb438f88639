package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"syllabussync/internal/pkg/locator"
)

const defaultMaxObjectBytes = 50 << 20

var (
	ErrNotConfigured = errors.New("object store not configured")
	ErrTooLarge      = errors.New("object exceeds size limit")
)

type Config struct {
	EndpointURL string
	AccessKey   string
	SecretKey   string
	Region      string
	Bucket      string
	Secure      bool
	MaxBytes    int64
}

// Store reads s3:// locators through an S3-compatible endpoint and
// file:// locators from local disk. Without an endpoint only file://
// works.
type Store struct {
	client   *minio.Client
	bucket   string
	region   string
	maxBytes int64
}

func New(cfg Config) (*Store, error) {
	s := &Store{bucket: cfg.Bucket, region: cfg.Region, maxBytes: cfg.MaxBytes}
	if s.maxBytes <= 0 {
		s.maxBytes = defaultMaxObjectBytes
	}
	if strings.TrimSpace(cfg.EndpointURL) == "" {
		return s, nil
	}

	endpoint, secure := splitEndpoint(cfg.EndpointURL, cfg.Secure)
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client failed: %w", err)
	}
	s.client = client
	return s, nil
}

func (s *Store) Bucket() string {
	return s.bucket
}

// Fetch reads the whole object named by uri.
func (s *Store) Fetch(ctx context.Context, uri string) ([]byte, error) {
	rc, _, err := s.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read object failed: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, uri)
	}
	return data, nil
}

// Open streams the object named by uri and reports its size, -1 when
// unknown.
func (s *Store) Open(ctx context.Context, uri string) (io.ReadCloser, int64, error) {
	loc, err := locator.Parse(uri)
	if err != nil {
		return nil, 0, err
	}

	if loc.Scheme == locator.SchemeFile {
		f, err := os.Open(loc.Path)
		if err != nil {
			return nil, 0, fmt.Errorf("open local object failed: %w", err)
		}
		size := int64(-1)
		if info, err := f.Stat(); err == nil {
			size = info.Size()
		}
		return f, size, nil
	}

	if s.client == nil {
		return nil, 0, ErrNotConfigured
	}
	obj, err := s.client.GetObject(ctx, loc.Bucket, loc.Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("get object failed: %w", err)
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, 0, fmt.Errorf("stat object failed: %w", err)
	}
	return obj, info.Size, nil
}

func (s *Store) EnsureBucket(ctx context.Context) error {
	if s.client == nil {
		return ErrNotConfigured
	}
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket failed: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("create bucket failed: %w", err)
	}
	return nil
}

type PresignedPost struct {
	URL    string            `json:"url"`
	Fields map[string]string `json:"fields"`
}

// PresignPost returns a browser-usable POST form for uploading key.
func (s *Store) PresignPost(ctx context.Context, key, contentType string, maxBytes int64, expiry time.Duration) (*PresignedPost, error) {
	if s.client == nil {
		return nil, ErrNotConfigured
	}
	policy := minio.NewPostPolicy()
	if err := policy.SetBucket(s.bucket); err != nil {
		return nil, fmt.Errorf("set policy bucket failed: %w", err)
	}
	if err := policy.SetKey(key); err != nil {
		return nil, fmt.Errorf("set policy key failed: %w", err)
	}
	if err := policy.SetExpires(time.Now().UTC().Add(expiry)); err != nil {
		return nil, fmt.Errorf("set policy expiry failed: %w", err)
	}
	if contentType != "" {
		if err := policy.SetContentType(contentType); err != nil {
			return nil, fmt.Errorf("set policy content type failed: %w", err)
		}
	}
	if err := policy.SetContentLengthRange(1, maxBytes); err != nil {
		return nil, fmt.Errorf("set policy length range failed: %w", err)
	}

	u, fields, err := s.client.PresignedPostPolicy(ctx, policy)
	if err != nil {
		return nil, fmt.Errorf("presign post policy failed: %w", err)
	}
	return &PresignedPost{URL: u.String(), Fields: fields}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s.client == nil {
		return ErrNotConfigured
	}
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

// splitEndpoint accepts "host:port" or a full URL and returns the host
// part together with whether TLS is used.
func splitEndpoint(raw string, secure bool) (string, bool) {
	if !strings.Contains(raw, "://") {
		return raw, secure
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw, secure
	}
	return u.Host, u.Scheme == "https"
}
