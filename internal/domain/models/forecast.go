package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/util"
)

// Timestamp accepts ISO datetimes with or without a zone offset.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	parsed, ok := util.ParseTime(s)
	if !ok {
		return fmt.Errorf("invalid timestamp %q", s)
	}
	t.Time = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format("2006-01-02T15:04:05"))
}

// DataRecord is one observed data point for a store at a timestamp.
// Numeric measures are pointers so that a missing field is distinguishable
// from zero.
type DataRecord struct {
	Timestamp         Timestamp `json:"timestamp" validate:"required"`
	StoreID           string    `json:"storeId" validate:"required"`
	CategoryMain      string    `json:"categoryMain" validate:"required"`
	CategorySub       string    `json:"categorySub" validate:"required"`
	CategoryItem      string    `json:"categoryItem" validate:"required"`
	Region            string    `json:"region" validate:"required"`
	RealOrderQuantity *int64    `json:"realOrderQuantity" validate:"required"`
	RealSalesRevenue  *int64    `json:"realSalesRevenue" validate:"required"`
	DayOfWeek         *int      `json:"dayOfWeek" validate:"required"`
	Hour              *int      `json:"hour" validate:"required"`
	MinOrderAmount    *int64    `json:"minOrderAmount" validate:"required"`
	AvgRating         *float64  `json:"avgRating" validate:"required"`
}

// PredictRequest is the body of POST /predict.
type PredictRequest struct {
	RealDataItemList []DataRecord `json:"realDataItemList" validate:"required,min=1,dive"`
	StoreID          string       `json:"store_id"`
	PredictionLength int          `json:"prediction_length" default:"24" validate:"min=1,max=168"`
}

// TargetStore returns the requested store, defaulting to the first record's.
func (r *PredictRequest) TargetStore() string {
	if r.StoreID != "" {
		return r.StoreID
	}
	if len(r.RealDataItemList) > 0 {
		return r.RealDataItemList[0].StoreID
	}
	return ""
}

// Prediction is one forecast step.
type Prediction struct {
	Timestamp         string `json:"timestamp"`
	PredOrderQuantity int64  `json:"pred_order_quantity"`
	PredSalesRevenue  int64  `json:"pred_sales_revenue"`
}

// PredictResponse is the body returned by POST /predict.
type PredictResponse struct {
	StoreID          string       `json:"store_id"`
	PredictionLength int          `json:"prediction_length"`
	Predictions      []Prediction `json:"predictions"`
	Timestamp        string       `json:"timestamp,omitempty"`
	Model            string       `json:"model,omitempty"`
}

type HealthStatus struct {
	Status string `json:"status"`
}

// ReadyStatus reports whether a predictor is loaded. ModelURI is null when
// no source is configured.
type ReadyStatus struct {
	Ready    bool    `json:"ready"`
	ModelURI *string `json:"model_uri"`
	Error    string  `json:"error,omitempty"`
}
