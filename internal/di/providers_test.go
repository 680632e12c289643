package di

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"

	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/service/modelsource"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/service/predictor"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/config"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/logger"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/objectstore"
)

type objectAPI struct {
	bucket  string
	objects map[string]string
}

func (f *objectAPI) ListObjects(_ context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	f.bucket = bucket
	ch := make(chan minio.ObjectInfo, len(f.objects))
	for k := range f.objects {
		if strings.HasPrefix(k, opts.Prefix) {
			ch <- minio.ObjectInfo{Key: k}
		}
	}
	close(ch)
	return ch
}

func (f *objectAPI) FGetObject(_ context.Context, _, object, filePath string, _ minio.GetObjectOptions) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(filePath, []byte(f.objects[object]), 0o644)
}

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Model.WorkDir = t.TempDir()
	return cfg
}

func TestProvideObjectStoreFollowsResolvedSource(t *testing.T) {
	cases := []struct {
		name string
		set  func(*config.Config)
		want bool
	}{
		{"explicit s3 uri", func(c *config.Config) { c.Model.URI = "s3://models/forecast/v1" }, true},
		{"explicit gs uri", func(c *config.Config) { c.Model.URI = "gs://models/forecast/v1" }, true},
		{"bucket candidate", func(c *config.Config) { c.Model.Bucket, c.Model.BucketPath = "models", "forecast/v1" }, true},
		{"local path wins over bucket", func(c *config.Config) {
			c.Model.LocalPath = "/models/ag"
			c.Model.Bucket, c.Model.BucketPath = "models", "forecast/v1"
		}, false},
		{"no source", func(*config.Config) {}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			tc.set(cfg)
			oc, err := ProvideObjectStore(cfg)
			if err != nil {
				t.Fatalf("provide: %v", err)
			}
			if (oc != nil) != tc.want {
				t.Fatalf("expected client=%v, got %v", tc.want, oc != nil)
			}
		})
	}
}

func TestExplicitBucketURIReachesDownload(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Model.URI = "s3://models/forecast/v1"
	if oc, err := ProvideObjectStore(cfg); err != nil || oc == nil {
		t.Fatalf("expected an object store client, got %v %v", oc, err)
	}

	api := &objectAPI{objects: map[string]string{
		"forecast/v1/" + predictor.ArtifactFile: `{"kind":"seasonal_naive"}`,
	}}
	ld := ProvideModelLoader(cfg, logger.NewNop(), nil, objectstore.NewWith(api))

	src, err := modelsource.Resolve(modelCandidates(cfg))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	loaded, err := ld.Load(context.Background(), src)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if api.bucket != "models" {
		t.Fatalf("expected download from bucket models, got %q", api.bucket)
	}
	if loaded.Predictor.Info().Kind != "seasonal_naive" {
		t.Fatalf("unexpected predictor %+v", loaded.Predictor.Info())
	}
}
