// Package registry talks to an MLflow tracking server over its REST API.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/service/modelsource"
	xhttp "github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/http"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/logger"
)

// ErrNoVersion is returned when a registered model has no version in the
// requested stage.
var ErrNoVersion = errors.New("registry: no model version in stage")

// ModelVersion is the subset of an MLflow model version we use.
type ModelVersion struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	CurrentStage string `json:"current_stage"`
	Source       string `json:"source"`
	RunID        string `json:"run_id"`
}

// FileInfo is one entry of an artifact listing.
type FileInfo struct {
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
}

// Option configures Client.
type Option func(*Client)

// WithHTTPClient replaces the transport client.
func WithHTTPClient(c *xhttp.Client) Option {
	return func(m *Client) { m.http = c }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(m *Client) { m.log = l }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(m *Client) { m.timeout = d }
}

// Client resolves registered models and downloads run artifacts.
type Client struct {
	baseURL string
	http    *xhttp.Client
	log     *logger.Logger
	timeout time.Duration
}

// NewClient creates a client for the tracking server at trackingURI.
func NewClient(trackingURI string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(trackingURI))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("registry: invalid tracking uri %q", trackingURI)
	}
	c := &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		log:     logger.NewNop(),
		timeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = xhttp.NewClient(xhttp.WithTimeout(c.timeout))
	}
	return c, nil
}

// LatestVersion returns the newest version of name in stage.
func (c *Client) LatestVersion(ctx context.Context, name, stage string) (*ModelVersion, error) {
	var resp struct {
		ModelVersions []ModelVersion `json:"model_versions"`
	}
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.baseURL + "/api/2.0/mlflow/registered-models/get-latest-versions",
		QueryParams: map[string][]string{"name": {name}, "stages": {stage}},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("get latest versions of %s: %w", name, err)
	}
	if len(resp.ModelVersions) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoVersion, name, stage)
	}
	latest := resp.ModelVersions[0]
	for _, v := range resp.ModelVersions[1:] {
		if versionNumber(v.Version) > versionNumber(latest.Version) {
			latest = v
		}
	}
	return &latest, nil
}

// ListArtifacts lists the direct children of artifactPath in a run.
func (c *Client) ListArtifacts(ctx context.Context, runID, artifactPath string) ([]FileInfo, error) {
	q := map[string][]string{"run_id": {runID}}
	if artifactPath != "" {
		q["path"] = []string{artifactPath}
	}
	var resp struct {
		RootURI string     `json:"root_uri"`
		Files   []FileInfo `json:"files"`
	}
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.baseURL + "/api/2.0/mlflow/artifacts/list",
		QueryParams: q,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("list artifacts %s/%s: %w", runID, artifactPath, err)
	}
	return resp.Files, nil
}

// DownloadArtifacts copies artifactPath of runID under dst and returns the
// local path of artifactPath, which is a file when the artifact is a single
// file.
func (c *Client) DownloadArtifacts(ctx context.Context, runID, artifactPath, dst string) (string, error) {
	artifactPath = strings.Trim(artifactPath, "/")
	files, err := c.ListArtifacts(ctx, runID, artifactPath)
	if err != nil {
		return "", err
	}
	local := filepath.Join(dst, filepath.FromSlash(artifactPath))
	if len(files) == 0 {
		if artifactPath == "" {
			return "", fmt.Errorf("run %s has no artifacts", runID)
		}
		// Listing a file path yields nothing; fetch it directly.
		if err := c.downloadFile(ctx, runID, artifactPath, local); err != nil {
			return "", err
		}
		return local, nil
	}
	if err := os.MkdirAll(local, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", local, err)
	}
	if err := c.downloadTree(ctx, runID, files, dst); err != nil {
		return "", err
	}
	return local, nil
}

func (c *Client) downloadTree(ctx context.Context, runID string, files []FileInfo, dst string) error {
	for _, f := range files {
		target := filepath.Join(dst, filepath.FromSlash(f.Path))
		if !f.IsDir {
			if err := c.downloadFile(ctx, runID, f.Path, target); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", target, err)
		}
		children, err := c.ListArtifacts(ctx, runID, f.Path)
		if err != nil {
			return err
		}
		if err := c.downloadTree(ctx, runID, children, dst); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) downloadFile(ctx context.Context, runID, artifactPath, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(target), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	err = c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.baseURL + "/get-artifact",
		QueryParams: map[string][]string{"run_uuid": {runID}, "path": {artifactPath}},
	}, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("download artifact %s/%s: %w", runID, artifactPath, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("move artifact into place: %w", err)
	}
	c.log.Debug("artifact downloaded", logger.String("run_id", runID), logger.String("path", artifactPath))
	return nil
}

// DownloadSource downloads a run artifact or registry source under dst.
func (c *Client) DownloadSource(ctx context.Context, src modelsource.Source, dst string) (string, error) {
	switch src.Kind {
	case modelsource.KindRunArtifact:
		return c.DownloadArtifacts(ctx, src.RunID, src.ArtifactPath, dst)
	case modelsource.KindRegistry:
		mv, err := c.LatestVersion(ctx, src.Name, src.Stage)
		if err != nil {
			return "", err
		}
		c.log.Info("registry version resolved",
			logger.String("model", src.Name),
			logger.String("stage", src.Stage),
			logger.String("version", mv.Version),
			logger.String("run_id", mv.RunID),
		)
		return c.DownloadArtifacts(ctx, mv.RunID, artifactPathFromSource(mv.Source), dst)
	default:
		return "", fmt.Errorf("registry cannot download %s source", src.Kind)
	}
}

// artifactPathFromSource extracts the run-relative artifact path from a
// model version source such as
// mlflow-artifacts:/1/<run>/artifacts/model or runs:/<run>/model.
func artifactPathFromSource(source string) string {
	if i := strings.LastIndex(source, "/artifacts/"); i >= 0 {
		return strings.Trim(source[i+len("/artifacts/"):], "/")
	}
	if src, err := modelsource.ParseURI(source); err == nil && src.Kind == modelsource.KindRunArtifact {
		return src.ArtifactPath
	}
	return path.Base(strings.TrimRight(source, "/"))
}

func versionNumber(v string) int {
	n := 0
	for _, r := range v {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}
