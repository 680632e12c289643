package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/service/modelsource"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/service/predictor"
)

type stubPredictor struct{ dir string }

func (s stubPredictor) Predict(context.Context, predictor.Request) ([]predictor.Point, error) {
	return nil, nil
}
func (s stubPredictor) Info() predictor.Info { return predictor.Info{Kind: "stub", Dir: s.dir} }

func stubOpener(opened *string) Opener {
	return func(dir string) (predictor.Predictor, error) {
		*opened = dir
		return stubPredictor{dir: dir}, nil
	}
}

// fakeRegistry writes a predictor file and returns the file path, like a
// registry download of a single artifact.
type fakeRegistry struct {
	returnFile bool
	err        error
	calls      int
}

func (f *fakeRegistry) DownloadSource(_ context.Context, _ modelsource.Source, dst string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	dir := filepath.Join(dst, "model")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	file := filepath.Join(dir, predictor.ArtifactFile)
	if err := os.WriteFile(file, []byte("{}"), 0o644); err != nil {
		return "", err
	}
	if f.returnFile {
		return file, nil
	}
	return dir, nil
}

type fakeBucket struct {
	bucket, prefix string
	calls          int
}

func (f *fakeBucket) DownloadPrefix(_ context.Context, bucket, prefix, dir string) (int, error) {
	f.calls++
	f.bucket, f.prefix = bucket, prefix
	return 1, os.WriteFile(filepath.Join(dir, predictor.ArtifactFile), []byte("{}"), 0o644)
}

func TestLoadRegistryFileUsesParentDir(t *testing.T) {
	var opened string
	reg := &fakeRegistry{returnFile: true}
	l := New(stubOpener(&opened), WithRegistry(reg), WithWorkDir(t.TempDir()))

	loaded, err := l.Load(context.Background(), modelsource.Source{Kind: modelsource.KindRunArtifact, RunID: "run123", ArtifactPath: "model/predictor.json"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if filepath.Base(opened) != "model" || loaded.Dir != opened {
		t.Fatalf("expected parent dir to be opened, got %s", opened)
	}
}

func TestLoadRegistryDirectory(t *testing.T) {
	var opened string
	l := New(stubOpener(&opened), WithRegistry(&fakeRegistry{}), WithWorkDir(t.TempDir()))
	if _, err := l.Load(context.Background(), modelsource.Source{Kind: modelsource.KindRegistry, Name: "m", Stage: "Production"}); err != nil {
		t.Fatalf("load: %v", err)
	}
	if filepath.Base(opened) != "model" {
		t.Fatalf("unexpected dir %s", opened)
	}
}

func TestLoadDownloadFailureIsNotFatal(t *testing.T) {
	var opened string
	l := New(stubOpener(&opened), WithRegistry(&fakeRegistry{err: errors.New("connection refused")}), WithWorkDir(t.TempDir()))
	_, err := l.Load(context.Background(), modelsource.Source{Kind: modelsource.KindRegistry, Name: "m", Stage: "Production"})
	if err == nil || IsFatal(err) {
		t.Fatalf("expected non-fatal error, got %v", err)
	}
}

func TestLoadBucketRequiresBothHalves(t *testing.T) {
	var opened string
	fb := &fakeBucket{}
	l := New(stubOpener(&opened), WithBucket(fb), WithWorkDir(t.TempDir()))

	for _, src := range []modelsource.Source{
		{Kind: modelsource.KindBucket, Bucket: "models"},
		{Kind: modelsource.KindBucket, Prefix: "ag/latest"},
	} {
		_, err := l.Load(context.Background(), src)
		if !errors.Is(err, ErrInvalidConfig) || !IsFatal(err) {
			t.Fatalf("expected fatal config error for %+v, got %v", src, err)
		}
	}
	if fb.calls != 0 {
		t.Fatalf("bucket must not be contacted on config error")
	}
}

func TestLoadBucketDownloadsIntoWorkDir(t *testing.T) {
	var opened string
	fb := &fakeBucket{}
	work := t.TempDir()
	l := New(stubOpener(&opened), WithBucket(fb), WithWorkDir(work))

	if _, err := l.Load(context.Background(), modelsource.Source{Kind: modelsource.KindBucket, Bucket: "models", Prefix: "ag/latest"}); err != nil {
		t.Fatalf("load: %v", err)
	}
	if fb.bucket != "models" || fb.prefix != "ag/latest" {
		t.Fatalf("unexpected bucket call %+v", fb)
	}
	if filepath.Dir(opened) != work {
		t.Fatalf("expected a directory under %s, got %s", work, opened)
	}
}

func TestLoadLocalPath(t *testing.T) {
	var opened string
	l := New(stubOpener(&opened))
	dir := t.TempDir()

	if _, err := l.Load(context.Background(), modelsource.Source{Kind: modelsource.KindLocal, Path: dir}); err != nil {
		t.Fatalf("load: %v", err)
	}
	if opened != dir {
		t.Fatalf("local path must be used as-is, got %s", opened)
	}

	_, err := l.Load(context.Background(), modelsource.Source{Kind: modelsource.KindLocal, Path: filepath.Join(dir, "missing")})
	if !errors.Is(err, ErrModelNotFound) || !IsFatal(err) {
		t.Fatalf("expected fatal not-found, got %v", err)
	}

	file := filepath.Join(dir, "predictor.pkl")
	_ = os.WriteFile(file, nil, 0o644)
	if _, err := l.Load(context.Background(), modelsource.Source{Kind: modelsource.KindLocal, Path: file}); !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("expected not-found for a file, got %v", err)
	}
}

func TestLoadRegistryWithoutClientIsConfigError(t *testing.T) {
	var opened string
	l := New(stubOpener(&opened))
	_, err := l.Load(context.Background(), modelsource.Source{Kind: modelsource.KindRunArtifact, RunID: "r"})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}
