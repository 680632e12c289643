package predictor

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/service/timeseries"
)

func writeArtifact(t *testing.T, a map[string]any) string {
	t.Helper()
	dir := t.TempDir()
	b, _ := json.Marshal(a)
	if err := os.WriteFile(filepath.Join(dir, ArtifactFile), b, 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return dir
}

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func hourlyTable(item string, values ...float64) *timeseries.Table {
	rows := make([]timeseries.Row, len(values))
	for i, v := range values {
		rows[i] = timeseries.Row{ItemID: item, Timestamp: t0.Add(time.Duration(i) * time.Hour), Target: v}
	}
	return &timeseries.Table{Rows: rows}
}

func TestOpenMissingDescriptor(t *testing.T) {
	if _, err := Open(t.TempDir()); !errors.Is(err, ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}
}

func TestOpenVersionMismatchRelaxedAndStrict(t *testing.T) {
	dir := writeArtifact(t, map[string]any{"kind": "seasonal_naive", "library_version": "1.1.0"})

	p, err := Open(dir, WithRuntimeVersion("1.2"))
	if err != nil {
		t.Fatalf("relaxed open should succeed: %v", err)
	}
	if p.Info().LibraryVersion != "1.1.0" {
		t.Fatalf("unexpected info %+v", p.Info())
	}
	if _, err := Open(dir, WithRuntimeVersion("1.2"), WithStrictVersion(true)); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
	if _, err := Open(dir, WithRuntimeVersion("1.1"), WithStrictVersion(true)); err != nil {
		t.Fatalf("same major.minor must pass strict mode: %v", err)
	}
}

func TestOpenUnknownKind(t *testing.T) {
	dir := writeArtifact(t, map[string]any{"kind": "deepar"})
	if _, err := Open(dir); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestSeasonalNaiveRepeatsLastSeason(t *testing.T) {
	dir := writeArtifact(t, map[string]any{
		"kind":   "seasonal_naive",
		"params": map[string]int{"season_length": 3, "seasons": 2},
	})
	p, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	// Two seasons: [1 2 3] [3 4 5] -> phase means 2 3 4.
	pts, err := p.Predict(context.Background(), Request{Table: hourlyTable("s1", 1, 2, 3, 3, 4, 5), PredictionLength: 4})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	want := []float64{2, 3, 4, 2}
	if len(pts) != len(want) {
		t.Fatalf("expected %d points, got %d", len(want), len(pts))
	}
	for i, w := range want {
		if pts[i].Mean != w {
			t.Fatalf("step %d: got %v want %v", i, pts[i].Mean, w)
		}
		if !pts[i].Timestamp.Equal(t0.Add(time.Duration(6+i) * time.Hour)) {
			t.Fatalf("step %d: unexpected timestamp %v", i, pts[i].Timestamp)
		}
	}
}

func TestSeasonalNaiveFallsBackToMean(t *testing.T) {
	dir := writeArtifact(t, map[string]any{"kind": "seasonal_naive"})
	p, _ := Open(dir)
	pts, err := p.Predict(context.Background(), Request{Table: hourlyTable("s1", 2, math.NaN(), 4), PredictionLength: 2})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	for _, pt := range pts {
		if pt.Mean != 3 {
			t.Fatalf("expected history mean 3, got %v", pt.Mean)
		}
	}
}

func TestRemotePredictor(t *testing.T) {
	var got remoteRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/forecast" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"predictions": []map[string]any{
			{"item_id": "s1", "timestamp": "2025-01-01 03:00:00", "mean": 3.5},
		}})
	}))
	defer srv.Close()

	dir := writeArtifact(t, map[string]any{
		"kind":   "remote",
		"models": []string{"ChronosFineTuned[bolt_small]"},
		"params": map[string]string{"endpoint": srv.URL, "path": "/v1/forecast"},
	})
	p, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	pts, err := p.Predict(context.Background(), Request{
		Table:            hourlyTable("s1", 1, math.NaN(), 2),
		PredictionLength: 1,
		Model:            "ChronosFineTuned[bolt_small]",
	})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if len(pts) != 1 || pts[0].Mean != 3.5 || !pts[0].Timestamp.Equal(t0.Add(3*time.Hour)) {
		t.Fatalf("unexpected points %+v", pts)
	}
	if got.Model != "ChronosFineTuned[bolt_small]" || got.PredictionLength != 1 || len(got.Data) != 3 {
		t.Fatalf("unexpected request %+v", got)
	}
	if got.Data[1].Target != nil {
		t.Fatalf("gap must be sent as null, got %v", *got.Data[1].Target)
	}
}

func TestRemoteRequiresEndpoint(t *testing.T) {
	dir := writeArtifact(t, map[string]any{"kind": "remote", "params": map[string]string{}})
	if _, err := Open(dir); err == nil {
		t.Fatalf("expected error without endpoint")
	}
}
