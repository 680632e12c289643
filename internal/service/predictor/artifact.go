// Package predictor opens model artifacts and produces point forecasts.
package predictor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/service/timeseries"
	xhttp "github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/http"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/logger"
)

// ArtifactFile is the descriptor every model directory carries.
const ArtifactFile = "predictor.json"

var (
	ErrArtifactNotFound = errors.New("predictor: artifact descriptor not found")
	ErrVersionMismatch  = errors.New("predictor: artifact library version mismatch")
	ErrUnknownKind      = errors.New("predictor: unknown predictor kind")
)

// Artifact is the content of predictor.json.
type Artifact struct {
	FormatVersion    int             `json:"format_version"`
	LibraryVersion   string          `json:"library_version"`
	Kind             string          `json:"kind"`
	Freq             string          `json:"freq"`
	PredictionLength int             `json:"prediction_length"`
	Target           string          `json:"target"`
	ItemIDColumn     string          `json:"item_id_column"`
	Models           []string        `json:"models"`
	Params           json.RawMessage `json:"params"`
}

// Point is one forecast step for one item.
type Point struct {
	ItemID    string
	Timestamp time.Time
	Mean      float64
}

// Request is a forecast call.
type Request struct {
	Table            *timeseries.Table
	PredictionLength int
	Model            string
}

// Info describes a loaded predictor.
type Info struct {
	Kind             string   `json:"kind"`
	LibraryVersion   string   `json:"library_version"`
	Dir              string   `json:"dir"`
	PredictionLength int      `json:"prediction_length"`
	Models           []string `json:"models,omitempty"`
}

// Predictor produces forecasts for every item of a table.
type Predictor interface {
	Predict(ctx context.Context, req Request) ([]Point, error)
	Info() Info
}

// Options controls Open.
type Options struct {
	RuntimeVersion string
	Strict         bool
	Logger         *logger.Logger
	HTTPClient     *xhttp.Client
}

// Option configures Open.
type Option func(*Options)

// WithRuntimeVersion sets the library version this process supports.
func WithRuntimeVersion(v string) Option {
	return func(o *Options) { o.RuntimeVersion = v }
}

// WithStrictVersion rejects artifacts built by a different library version.
func WithStrictVersion(strict bool) Option {
	return func(o *Options) { o.Strict = strict }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithHTTPClient sets the client used by remote predictors.
func WithHTTPClient(c *xhttp.Client) Option {
	return func(o *Options) { o.HTTPClient = c }
}

// Open reads dir/predictor.json and builds the predictor it describes.
// Library version mismatches only warn unless strict mode is on.
func Open(dir string, opts ...Option) (Predictor, error) {
	o := &Options{RuntimeVersion: "1.2", Logger: logger.NewNop()}
	for _, opt := range opts {
		opt(o)
	}

	a, err := ReadArtifact(dir)
	if err != nil {
		return nil, err
	}
	if !compatible(a.LibraryVersion, o.RuntimeVersion) {
		if o.Strict {
			return nil, fmt.Errorf("%w: artifact %s, runtime %s", ErrVersionMismatch, a.LibraryVersion, o.RuntimeVersion)
		}
		o.Logger.Warn("loading predictor built by a different library version",
			logger.String("artifact_version", a.LibraryVersion),
			logger.String("runtime_version", o.RuntimeVersion),
			logger.String("dir", dir),
		)
	}

	info := Info{
		Kind:             a.Kind,
		LibraryVersion:   a.LibraryVersion,
		Dir:              dir,
		PredictionLength: a.PredictionLength,
		Models:           a.Models,
	}
	switch a.Kind {
	case KindSeasonalNaive:
		return newSeasonalNaive(a, info)
	case KindRemote:
		return newRemote(a, info, o)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, a.Kind)
	}
}

// ReadArtifact parses dir/predictor.json and fills defaults.
func ReadArtifact(dir string) (*Artifact, error) {
	b, err := os.ReadFile(filepath.Join(dir, ArtifactFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w in %s", ErrArtifactNotFound, dir)
		}
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	var a Artifact
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ArtifactFile, err)
	}
	if a.Freq == "" {
		a.Freq = timeseries.FrequencyAlias
	}
	if a.Freq != timeseries.FrequencyAlias {
		return nil, fmt.Errorf("predictor: unsupported frequency %q", a.Freq)
	}
	if a.PredictionLength <= 0 {
		a.PredictionLength = 24
	}
	return &a, nil
}

// compatible compares major.minor; an empty version on either side passes.
func compatible(artifact, runtime string) bool {
	if artifact == "" || runtime == "" {
		return true
	}
	return majorMinor(artifact) == majorMinor(runtime)
}

func majorMinor(v string) string {
	parts := strings.SplitN(strings.TrimPrefix(v, "v"), ".", 3)
	if len(parts) >= 2 {
		return parts[0] + "." + parts[1]
	}
	return parts[0]
}

// futureTimestamps returns horizon steps after last at the table frequency.
func futureTimestamps(last time.Time, horizon int) []time.Time {
	out := make([]time.Time, horizon)
	for h := range out {
		out[h] = last.Add(time.Duration(h+1) * timeseries.Frequency)
	}
	return out
}
