package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNoObjects is returned when a prefix matches nothing.
var ErrNoObjects = errors.New("objectstore: no objects under prefix")

// ObjectAPI is the subset of *minio.Client used for downloads.
type ObjectAPI interface {
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	FGetObject(ctx context.Context, bucket, object, filePath string, opts minio.GetObjectOptions) error
}

// Option configures Client.
type Option func(*Config)

// Config holds S3-compatible endpoint settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Secure    bool
}

// WithCredentials sets static V4 credentials. Empty keys mean anonymous access.
func WithCredentials(accessKey, secretKey string) Option {
	return func(c *Config) {
		c.AccessKey = accessKey
		c.SecretKey = secretKey
	}
}

// WithRegion sets the bucket region.
func WithRegion(region string) Option {
	return func(c *Config) {
		c.Region = region
	}
}

// WithSecure toggles TLS.
func WithSecure(secure bool) Option {
	return func(c *Config) {
		c.Secure = secure
	}
}

// Client downloads artifacts from an S3-compatible bucket (S3, GCS interop, MinIO).
type Client struct {
	api ObjectAPI
}

// New creates a client for endpoint.
func New(endpoint string, opts ...Option) (*Client, error) {
	cfg := &Config{Endpoint: endpoint, Secure: true}
	for _, opt := range opts {
		opt(cfg)
	}
	endpoint = strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	if endpoint == "" {
		return nil, fmt.Errorf("object store endpoint is required")
	}

	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &Client{api: mc}, nil
}

// NewWith wraps an existing ObjectAPI.
func NewWith(api ObjectAPI) *Client {
	return &Client{api: api}
}

// DownloadPrefix copies every object under prefix into dir, keeping the
// layout relative to prefix. It returns the number of files written.
func (c *Client) DownloadPrefix(ctx context.Context, bucket, prefix, dir string) (int, error) {
	prefix = strings.TrimPrefix(prefix, "/")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create %s: %w", dir, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	n := 0
	for obj := range c.api.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return n, fmt.Errorf("list %s/%s: %w", bucket, prefix, obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		rel, err := relativeKey(prefix, obj.Key)
		if err != nil {
			return n, err
		}
		target := filepath.Join(dir, filepath.FromSlash(rel))
		if err := c.api.FGetObject(ctx, bucket, obj.Key, target, minio.GetObjectOptions{}); err != nil {
			return n, fmt.Errorf("download %s/%s: %w", bucket, obj.Key, err)
		}
		n++
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: %s/%s", ErrNoObjects, bucket, prefix)
	}
	return n, nil
}

// relativeKey maps an object key below prefix to a clean relative path.
// A key equal to the prefix (a single-object prefix) keeps its base name.
func relativeKey(prefix, key string) (string, error) {
	rel := strings.TrimPrefix(strings.TrimPrefix(key, prefix), "/")
	if rel == "" {
		rel = path.Base(key)
	}
	rel = path.Clean(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") || path.IsAbs(rel) {
		return "", fmt.Errorf("object key %q escapes download dir", key)
	}
	return rel, nil
}
