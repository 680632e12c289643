package predictor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/service/timeseries"
)

// KindSeasonalNaive averages the same phase of previous seasons.
const KindSeasonalNaive = "seasonal_naive"

type seasonalParams struct {
	SeasonLength int `json:"season_length"`
	Seasons      int `json:"seasons"`
}

type seasonalNaive struct {
	params seasonalParams
	info   Info
}

func newSeasonalNaive(a *Artifact, info Info) (*seasonalNaive, error) {
	p := seasonalParams{SeasonLength: 24, Seasons: 4}
	if len(a.Params) > 0 {
		if err := json.Unmarshal(a.Params, &p); err != nil {
			return nil, fmt.Errorf("seasonal_naive params: %w", err)
		}
	}
	if p.SeasonLength <= 0 || p.Seasons <= 0 {
		return nil, fmt.Errorf("seasonal_naive: season_length and seasons must be positive")
	}
	return &seasonalNaive{params: p, info: info}, nil
}

func (s *seasonalNaive) Info() Info { return s.info }

// Predict forecasts step h as the mean of the values observed at the same
// phase in the last Seasons seasons. Steps with no phase value fall back to
// the mean of the whole history.
func (s *seasonalNaive) Predict(ctx context.Context, req Request) ([]Point, error) {
	if req.Table == nil || req.Table.Len() == 0 {
		return nil, timeseries.ErrEmpty
	}
	horizon := req.PredictionLength
	if horizon <= 0 {
		horizon = s.info.PredictionLength
	}

	var out []Point
	for _, item := range req.Table.Items() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		series := req.Table.Series(item)
		history := make([]float64, len(series))
		for i, r := range series {
			history[i] = r.Target
		}
		fallback := mean(history)
		last := series[len(series)-1].Timestamp
		for h, ts := range futureTimestamps(last, horizon) {
			v, ok := s.phaseMean(history, h)
			if !ok {
				v = fallback
			}
			out = append(out, Point{ItemID: item, Timestamp: ts, Mean: v})
		}
	}
	return out, nil
}

func (s *seasonalNaive) phaseMean(history []float64, h int) (float64, bool) {
	n, L := len(history), s.params.SeasonLength
	sum, count := 0.0, 0
	for k := 1; k <= s.params.Seasons; k++ {
		// Same phase as step h, k seasons back.
		idx := n - k*L + h%L
		if idx < 0 || idx >= n {
			continue
		}
		if v := history[idx]; !math.IsNaN(v) {
			sum += v
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

func mean(values []float64) float64 {
	sum, count := 0.0, 0
	for _, v := range values {
		if !math.IsNaN(v) {
			sum += v
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
