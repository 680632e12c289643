// Package loader materializes a model source on local disk and opens it.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/service/modelsource"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/service/predictor"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/logger"
)

var (
	// ErrInvalidConfig marks a source that can never load without a config
	// change.
	ErrInvalidConfig = errors.New("loader: invalid model source configuration")
	// ErrModelNotFound marks a local path that is missing or not a directory.
	ErrModelNotFound = errors.New("loader: model directory not found")
)

// IsFatal reports whether err should abort startup rather than leave the
// service running unready.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvalidConfig) || errors.Is(err, ErrModelNotFound)
}

// ArtifactDownloader fetches run artifacts and registry models.
type ArtifactDownloader interface {
	DownloadSource(ctx context.Context, src modelsource.Source, dst string) (string, error)
}

// BucketDownloader fetches every object under a bucket prefix.
type BucketDownloader interface {
	DownloadPrefix(ctx context.Context, bucket, prefix, dir string) (int, error)
}

// Opener deserializes a predictor from a local directory.
type Opener func(dir string) (predictor.Predictor, error)

// Loaded is the result of a successful load.
type Loaded struct {
	Predictor predictor.Predictor
	Source    modelsource.Source
	Dir       string
	LoadedAt  time.Time
}

// Loader turns a Source into a Predictor.
type Loader struct {
	registry ArtifactDownloader
	bucket   BucketDownloader
	open     Opener
	workDir  string
	log      *logger.Logger
	now      func() time.Time
}

// Option configures Loader.
type Option func(*Loader)

// WithRegistry enables run artifact and registry sources.
func WithRegistry(d ArtifactDownloader) Option {
	return func(l *Loader) { l.registry = d }
}

// WithBucket enables bucket sources.
func WithBucket(d BucketDownloader) Option {
	return func(l *Loader) { l.bucket = d }
}

// WithWorkDir sets the download cache root.
func WithWorkDir(dir string) Option {
	return func(l *Loader) { l.workDir = dir }
}

// WithLogger sets the logger.
func WithLogger(lg *logger.Logger) Option {
	return func(l *Loader) { l.log = lg }
}

// New creates a Loader. open deserializes the final directory.
func New(open Opener, opts ...Option) *Loader {
	l := &Loader{
		open:    open,
		workDir: filepath.Join(os.TempDir(), "model-cache"),
		log:     logger.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load materializes src and opens the predictor in it.
func (l *Loader) Load(ctx context.Context, src modelsource.Source) (*Loaded, error) {
	start := l.now()
	dir, err := l.materialize(ctx, src)
	if err != nil {
		return nil, err
	}
	p, err := l.open(dir)
	if err != nil {
		return nil, fmt.Errorf("open predictor from %s: %w", dir, err)
	}
	l.log.Info("model loaded",
		logger.String("source", src.String()),
		logger.String("origin", string(src.Origin)),
		logger.String("dir", dir),
		logger.String("kind", p.Info().Kind),
		logger.Duration("elapsed_ms", l.now().Sub(start)),
	)
	return &Loaded{Predictor: p, Source: src, Dir: dir, LoadedAt: l.now()}, nil
}

// materialize returns the local directory holding src.
func (l *Loader) materialize(ctx context.Context, src modelsource.Source) (string, error) {
	switch src.Kind {
	case modelsource.KindRunArtifact, modelsource.KindRegistry:
		if l.registry == nil {
			return "", fmt.Errorf("%w: %s source needs a registry tracking uri", ErrInvalidConfig, src.Kind)
		}
		dst, err := l.freshDir(src)
		if err != nil {
			return "", err
		}
		p, err := l.registry.DownloadSource(ctx, src, dst)
		if err != nil {
			return "", fmt.Errorf("download %s: %w", src, err)
		}
		return dirOf(p)

	case modelsource.KindBucket:
		if src.Bucket == "" || src.Prefix == "" {
			return "", fmt.Errorf("%w: bucket and bucket path are both required (bucket=%q path=%q)", ErrInvalidConfig, src.Bucket, src.Prefix)
		}
		if l.bucket == nil {
			return "", fmt.Errorf("%w: bucket source needs an object store endpoint", ErrInvalidConfig)
		}
		dst, err := l.freshDir(src)
		if err != nil {
			return "", err
		}
		n, err := l.bucket.DownloadPrefix(ctx, src.Bucket, src.Prefix, dst)
		if err != nil {
			return "", fmt.Errorf("download %s: %w", src, err)
		}
		l.log.Debug("bucket prefix downloaded", logger.Int("files", n), logger.String("dir", dst))
		return dst, nil

	case modelsource.KindLocal:
		fi, err := os.Stat(src.Path)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrModelNotFound, src.Path, err)
		}
		if !fi.IsDir() {
			return "", fmt.Errorf("%w: %s is not a directory", ErrModelNotFound, src.Path)
		}
		return src.Path, nil

	default:
		return "", fmt.Errorf("%w: unknown source kind %d", ErrInvalidConfig, src.Kind)
	}
}

// freshDir returns an empty per-source directory under the work dir.
func (l *Loader) freshDir(src modelsource.Source) (string, error) {
	dst := filepath.Join(l.workDir, sanitize(src.URI()))
	if err := os.RemoveAll(dst); err != nil {
		return "", fmt.Errorf("clear %s: %w", dst, err)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dst, err)
	}
	return dst, nil
}

// dirOf returns p when it is a directory, else its parent.
func dirOf(p string) (string, error) {
	fi, err := os.Stat(p)
	if err != nil {
		return "", fmt.Errorf("stat downloaded artifact: %w", err)
	}
	if fi.IsDir() {
		return p, nil
	}
	return filepath.Dir(p), nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}
