package predictor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/service/timeseries"
	xhttp "github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/http"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/logger"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/util"
)

// KindRemote delegates inference to a model runtime over HTTP.
const KindRemote = "remote"

type remoteParams struct {
	Endpoint string `json:"endpoint"`
	Path     string `json:"path"`
	Timeout  string `json:"timeout"`
}

// remote posts the normalized table to an inference runtime hosting the
// artifact's weights.
type remote struct {
	url    string
	client *xhttp.Client
	info   Info
	log    *logger.Logger
}

type remoteRow struct {
	ItemID     string             `json:"item_id"`
	Timestamp  string             `json:"timestamp"`
	Target     *float64           `json:"target"`
	Covariates map[string]float64 `json:"covariates,omitempty"`
}

type remoteRequest struct {
	Model            string                       `json:"model,omitempty"`
	PredictionLength int                          `json:"prediction_length"`
	Freq             string                       `json:"freq"`
	Data             []remoteRow                  `json:"data"`
	Static           map[string]map[string]string `json:"static,omitempty"`
}

type remoteResponse struct {
	Predictions []struct {
		ItemID    string  `json:"item_id"`
		Timestamp string  `json:"timestamp"`
		Mean      float64 `json:"mean"`
	} `json:"predictions"`
}

func newRemote(a *Artifact, info Info, o *Options) (*remote, error) {
	var p remoteParams
	if err := json.Unmarshal(a.Params, &p); err != nil {
		return nil, fmt.Errorf("remote params: %w", err)
	}
	u, err := url.Parse(p.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("remote: invalid endpoint %q", p.Endpoint)
	}
	if p.Path == "" {
		p.Path = "/predict"
	}
	client := o.HTTPClient
	if client == nil {
		timeout := 120 * time.Second
		if p.Timeout != "" {
			if d, err := time.ParseDuration(p.Timeout); err == nil && d > 0 {
				timeout = d
			}
		}
		client = xhttp.NewClient(xhttp.WithTimeout(timeout))
	}
	return &remote{
		url:    strings.TrimRight(p.Endpoint, "/") + "/" + strings.TrimLeft(p.Path, "/"),
		client: client,
		info:   info,
		log:    o.Logger,
	}, nil
}

func (r *remote) Info() Info { return r.info }

func (r *remote) Predict(ctx context.Context, req Request) ([]Point, error) {
	if req.Table == nil || req.Table.Len() == 0 {
		return nil, timeseries.ErrEmpty
	}
	horizon := req.PredictionLength
	if horizon <= 0 {
		horizon = r.info.PredictionLength
	}

	body := remoteRequest{
		Model:            req.Model,
		PredictionLength: horizon,
		Freq:             timeseries.FrequencyAlias,
		Data:             make([]remoteRow, len(req.Table.Rows)),
		Static:           req.Table.Static,
	}
	for i, row := range req.Table.Rows {
		rr := remoteRow{
			ItemID:     row.ItemID,
			Timestamp:  util.FormatForecastTimestamp(row.Timestamp),
			Covariates: finiteOnly(row.Covariates),
		}
		if !math.IsNaN(row.Target) {
			v := row.Target
			rr.Target = &v
		}
		body.Data[i] = rr
	}

	var resp remoteResponse
	err := r.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     r.url,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    body,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("remote predict: %w", err)
	}

	out := make([]Point, 0, len(resp.Predictions))
	for _, p := range resp.Predictions {
		ts, ok := util.ParseTime(p.Timestamp)
		if !ok {
			return nil, fmt.Errorf("remote predict: bad timestamp %q", p.Timestamp)
		}
		out = append(out, Point{ItemID: p.ItemID, Timestamp: ts, Mean: p.Mean})
	}
	r.log.Debug("remote forecast received", logger.Int("points", len(out)), logger.String("model", req.Model))
	return out, nil
}

func finiteOnly(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[k] = v
		}
	}
	return out
}
