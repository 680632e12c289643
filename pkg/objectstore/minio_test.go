package objectstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/minio/minio-go/v7"
)

type fakeBucket struct {
	objects map[string]string
	listErr error
}

func (f *fakeBucket) ListObjects(_ context.Context, _ string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	ch := make(chan minio.ObjectInfo, len(f.objects)+1)
	if f.listErr != nil {
		ch <- minio.ObjectInfo{Err: f.listErr}
	}
	for k := range f.objects {
		if len(k) >= len(opts.Prefix) && k[:len(opts.Prefix)] == opts.Prefix {
			ch <- minio.ObjectInfo{Key: k}
		}
	}
	close(ch)
	return ch
}

func (f *fakeBucket) FGetObject(_ context.Context, _, object, filePath string, _ minio.GetObjectOptions) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(filePath, []byte(f.objects[object]), 0o644)
}

func TestDownloadPrefixKeepsRelativeLayout(t *testing.T) {
	fb := &fakeBucket{objects: map[string]string{
		"models/chronos/predictor.json":     `{"kind":"seasonal_naive"}`,
		"models/chronos/models/weights.bin": "w",
		"models/chronos/":                   "",
		"models/other/predictor.json":       "x",
	}}
	dir := t.TempDir()

	n, err := NewWith(fb).DownloadPrefix(context.Background(), "bucket", "models/chronos", dir)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 files, got %d", n)
	}
	b, err := os.ReadFile(filepath.Join(dir, "predictor.json"))
	if err != nil || string(b) != `{"kind":"seasonal_naive"}` {
		t.Fatalf("predictor.json not downloaded: %v %q", err, b)
	}
	if _, err := os.Stat(filepath.Join(dir, "models", "weights.bin")); err != nil {
		t.Fatalf("nested file missing: %v", err)
	}
}

func TestDownloadPrefixEmpty(t *testing.T) {
	_, err := NewWith(&fakeBucket{}).DownloadPrefix(context.Background(), "bucket", "missing", t.TempDir())
	if !errors.Is(err, ErrNoObjects) {
		t.Fatalf("expected ErrNoObjects, got %v", err)
	}
}

func TestDownloadPrefixListError(t *testing.T) {
	fb := &fakeBucket{listErr: errors.New("access denied")}
	if _, err := NewWith(fb).DownloadPrefix(context.Background(), "bucket", "p", t.TempDir()); err == nil {
		t.Fatalf("expected list error")
	}
}

func TestRelativeKey(t *testing.T) {
	cases := []struct {
		prefix, key, want string
		fail              bool
	}{
		{"models/a", "models/a/x.json", "x.json", false},
		{"models/a/", "models/a/sub/y", "sub/y", false},
		{"models/a/predictor.json", "models/a/predictor.json", "predictor.json", false},
		{"m", "m/../../etc/passwd", "", true},
	}
	for _, tc := range cases {
		got, err := relativeKey(tc.prefix, tc.key)
		if tc.fail {
			if err == nil {
				t.Errorf("%q: expected error", tc.key)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("relativeKey(%q,%q) = %q, %v; want %q", tc.prefix, tc.key, got, err, tc.want)
		}
	}
}
