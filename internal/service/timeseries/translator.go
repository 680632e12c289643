package timeseries

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/domain/models"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/util"
)

// ErrEmpty is returned for a request without records.
var ErrEmpty = errors.New("timeseries: no records")

// Covariate columns, keyed by their request field name.
var CovariateColumns = map[string]string{
	"realSalesRevenue": "sales_revenue",
	"dayOfWeek":        "day_of_week",
	"hour":             "hour",
	"minOrderAmount":   "min_order_amount",
	"avgRating":        "avg_rating",
}

// Static columns, constant per item, keyed by their request field name.
var StaticColumns = map[string]string{
	"categoryMain": "category_main",
	"categorySub":  "category_sub",
	"categoryItem": "category_item",
	"region":       "region",
}

// Translate builds the hourly table for records. Records must already have
// passed request validation.
func Translate(records []models.DataRecord) (*Table, error) {
	if len(records) == 0 {
		return nil, ErrEmpty
	}

	rows := make([]Row, 0, len(records))
	static := make(map[string]map[string]string)
	for i := range records {
		row, err := toRow(&records[i])
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		rows = append(rows, row)
		if _, ok := static[row.ItemID]; !ok {
			static[row.ItemID] = staticOf(&records[i])
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].ItemID != rows[j].ItemID {
			return rows[i].ItemID < rows[j].ItemID
		}
		return rows[i].Timestamp.Before(rows[j].Timestamp)
	})

	return &Table{Rows: resample(rows), Static: static}, nil
}

func toRow(r *models.DataRecord) (Row, error) {
	if r.RealOrderQuantity == nil || r.RealSalesRevenue == nil || r.DayOfWeek == nil ||
		r.Hour == nil || r.MinOrderAmount == nil || r.AvgRating == nil || r.Timestamp.IsZero() {
		return Row{}, fmt.Errorf("missing required field for store %q", r.StoreID)
	}
	return Row{
		ItemID:    r.StoreID,
		Timestamp: r.Timestamp.UTC(),
		Target:    float64(*r.RealOrderQuantity),
		Covariates: map[string]float64{
			CovariateColumns["realSalesRevenue"]: float64(*r.RealSalesRevenue),
			CovariateColumns["dayOfWeek"]:        float64(*r.DayOfWeek),
			CovariateColumns["hour"]:             float64(*r.Hour),
			CovariateColumns["minOrderAmount"]:   float64(*r.MinOrderAmount),
			CovariateColumns["avgRating"]:        *r.AvgRating,
		},
	}, nil
}

func staticOf(r *models.DataRecord) map[string]string {
	return map[string]string{
		StaticColumns["categoryMain"]: r.CategoryMain,
		StaticColumns["categorySub"]:  r.CategorySub,
		StaticColumns["categoryItem"]: r.CategoryItem,
		StaticColumns["region"]:       r.Region,
	}
}

// resample aligns sorted rows to Frequency: timestamps are floored, rows
// sharing an hour are averaged and missing hours are inserted as filled rows.
func resample(sorted []Row) []Row {
	out := make([]Row, 0, len(sorted))
	for i := 0; i < len(sorted); {
		item := sorted[i].ItemID
		j := i
		for j < len(sorted) && sorted[j].ItemID == item {
			j++
		}
		out = appendSeries(out, sorted[i:j])
		i = j
	}
	return out
}

func appendSeries(out []Row, series []Row) []Row {
	var (
		cur   Row
		count int
		have  bool
	)
	flush := func() {
		if !have {
			return
		}
		cur.Target /= float64(count)
		for k := range cur.Covariates {
			cur.Covariates[k] /= float64(count)
		}
		if n := len(out); n > 0 && out[n-1].ItemID == cur.ItemID {
			for ts := out[n-1].Timestamp.Add(Frequency); ts.Before(cur.Timestamp); ts = ts.Add(Frequency) {
				out = append(out, filledRow(cur.ItemID, ts))
			}
		}
		out = append(out, cur)
	}

	for _, r := range series {
		ts := util.FloorToHour(r.Timestamp)
		if have && ts.Equal(cur.Timestamp) {
			cur.Target += r.Target
			for k, v := range r.Covariates {
				cur.Covariates[k] += v
			}
			count++
			continue
		}
		flush()
		cur = Row{ItemID: r.ItemID, Timestamp: ts, Target: r.Target, Covariates: copyCovariates(r.Covariates)}
		count, have = 1, true
	}
	flush()
	return out
}

func filledRow(item string, ts time.Time) Row {
	return Row{
		ItemID:    item,
		Timestamp: ts,
		Target:    math.NaN(),
		Covariates: map[string]float64{
			CovariateColumns["dayOfWeek"]: float64(ts.Weekday()),
			CovariateColumns["hour"]:      float64(ts.Hour()),
		},
		Filled: true,
	}
}

func copyCovariates(m map[string]float64) map[string]float64 {
	c := make(map[string]float64, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
