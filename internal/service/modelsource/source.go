// Package modelsource picks the single location a predictor is loaded from.
package modelsource

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ErrNoSource means no candidate is configured.
var ErrNoSource = errors.New("modelsource: no model source configured")

// Kind tags the active variant of a Source.
type Kind int

const (
	KindRunArtifact Kind = iota + 1
	KindRegistry
	KindLocal
	KindBucket
)

func (k Kind) String() string {
	switch k {
	case KindRunArtifact:
		return "run_artifact"
	case KindRegistry:
		return "registry"
	case KindLocal:
		return "local"
	case KindBucket:
		return "bucket"
	default:
		return "unknown"
	}
}

// Origin records which configured candidate produced the source.
type Origin string

const (
	OriginExplicit Origin = "explicit"
	OriginRegistry Origin = "registry"
	OriginLocal    Origin = "local"
	OriginBucket   Origin = "bucket"
)

// Source is a resolved model location. Only the fields of Kind are set.
type Source struct {
	Kind   Kind
	Origin Origin

	// KindRunArtifact
	RunID        string
	ArtifactPath string

	// KindRegistry
	Name  string
	Stage string

	// KindLocal
	Path string

	// KindBucket
	Bucket string
	Prefix string
}

// URI renders the source in the registry's addressing scheme.
func (s Source) URI() string {
	switch s.Kind {
	case KindRunArtifact:
		if s.ArtifactPath == "" {
			return "runs:/" + s.RunID
		}
		return "runs:/" + s.RunID + "/" + s.ArtifactPath
	case KindRegistry:
		return "models:/" + s.Name + "/" + s.Stage
	case KindLocal:
		return s.Path
	case KindBucket:
		return "s3://" + s.Bucket + "/" + strings.TrimPrefix(s.Prefix, "/")
	default:
		return ""
	}
}

func (s Source) String() string {
	return fmt.Sprintf("%s(%s)", s.Kind, s.URI())
}

// Candidates are the configured model locations.
type Candidates struct {
	URI           string
	RegistryName  string
	RegistryStage string
	LocalPath     string
	Bucket        string
	BucketPath    string
}

// Resolve applies the fixed priority explicit URI > registry > local path >
// bucket. A registry name without a stage is not a candidate. A bucket
// candidate counts when either half is set so that the loader can report
// the missing half as a configuration error.
func Resolve(c Candidates) (Source, error) {
	if uri := strings.TrimSpace(c.URI); uri != "" {
		src, err := ParseURI(uri)
		if err != nil {
			return Source{}, err
		}
		src.Origin = OriginExplicit
		return src, nil
	}
	name, stage := strings.TrimSpace(c.RegistryName), strings.TrimSpace(c.RegistryStage)
	if name != "" && stage != "" {
		return Source{Kind: KindRegistry, Origin: OriginRegistry, Name: name, Stage: stage}, nil
	}
	if p := strings.TrimSpace(c.LocalPath); p != "" {
		return Source{Kind: KindLocal, Origin: OriginLocal, Path: p}, nil
	}
	bucket, prefix := strings.TrimSpace(c.Bucket), strings.TrimSpace(c.BucketPath)
	if bucket != "" || prefix != "" {
		return Source{Kind: KindBucket, Origin: OriginBucket, Bucket: bucket, Prefix: prefix}, nil
	}
	return Source{}, ErrNoSource
}

// ParseURI turns an explicit locator into a Source. No network access.
//
//	runs:/<run>/<path>                         run artifact
//	mlflow-artifacts:/<run>/<n>/artifacts/<p>  rewritten to runs:/<run>/<p>
//	models:/<name>/<stage>                     registry reference
//	s3://<bucket>/<prefix>, gs://...           bucket
//	file:///<path>, /<path>                    local directory
func ParseURI(uri string) (Source, error) {
	switch {
	case strings.HasPrefix(uri, "mlflow-artifacts:"):
		return rewriteArtifactURI(uri)
	case strings.HasPrefix(uri, "runs:"):
		segs := splitSegments(strings.TrimPrefix(uri, "runs:"))
		if len(segs) == 0 {
			return Source{}, fmt.Errorf("modelsource: run id missing in %q", uri)
		}
		return Source{Kind: KindRunArtifact, RunID: segs[0], ArtifactPath: strings.Join(segs[1:], "/")}, nil
	case strings.HasPrefix(uri, "models:"):
		segs := splitSegments(strings.TrimPrefix(uri, "models:"))
		if len(segs) != 2 {
			return Source{}, fmt.Errorf("modelsource: expected models:/<name>/<stage>, got %q", uri)
		}
		return Source{Kind: KindRegistry, Name: segs[0], Stage: segs[1]}, nil
	case strings.HasPrefix(uri, "s3://"), strings.HasPrefix(uri, "gs://"):
		u, err := url.Parse(uri)
		if err != nil {
			return Source{}, fmt.Errorf("modelsource: parse %q: %w", uri, err)
		}
		return Source{Kind: KindBucket, Bucket: u.Host, Prefix: strings.TrimPrefix(u.Path, "/")}, nil
	case strings.HasPrefix(uri, "file://"):
		u, err := url.Parse(uri)
		if err != nil {
			return Source{}, fmt.Errorf("modelsource: parse %q: %w", uri, err)
		}
		return Source{Kind: KindLocal, Path: u.Path}, nil
	case strings.Contains(uri, "://"):
		return Source{}, fmt.Errorf("modelsource: unsupported scheme in %q", uri)
	default:
		return Source{Kind: KindLocal, Path: uri}, nil
	}
}

// rewriteArtifactURI maps mlflow-artifacts:/<run>/<experiment>/artifacts/<a>/<b>
// to the run artifact <run> with path <a>/<b>. Everything after the
// "artifacts" marker is kept. Without the marker the segments after the run
// id are used as-is.
func rewriteArtifactURI(uri string) (Source, error) {
	segs := splitSegments(strings.TrimPrefix(uri, "mlflow-artifacts:"))
	if len(segs) == 0 {
		return Source{}, fmt.Errorf("modelsource: run id missing in %q", uri)
	}
	runID, rest := segs[0], segs[1:]
	for i, s := range rest {
		if s == "artifacts" {
			rest = rest[i+1:]
			break
		}
	}
	return Source{Kind: KindRunArtifact, RunID: runID, ArtifactPath: path.Join(rest...)}, nil
}

func splitSegments(p string) []string {
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, s := range parts {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
