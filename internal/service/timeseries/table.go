// Package timeseries turns request records into the item/time indexed
// table predictors consume.
package timeseries

import (
	"math"
	"sort"
	"time"
)

// Canonical column names.
const (
	ColumnItemID    = "item_id"
	ColumnTimestamp = "timestamp"
	ColumnTarget    = "target"
)

// Frequency is the sampling interval every table is aligned to.
const Frequency = time.Hour

// FrequencyAlias names Frequency in artifact metadata.
const FrequencyAlias = "h"

// Row is one (item, timestamp) observation. Filled rows were inserted to
// close a gap and carry NaN measures.
type Row struct {
	ItemID     string             `json:"item_id"`
	Timestamp  time.Time          `json:"timestamp"`
	Target     float64            `json:"target"`
	Covariates map[string]float64 `json:"covariates,omitempty"`
	Filled     bool               `json:"filled,omitempty"`
}

// Table is sorted by (ItemID, Timestamp) and contiguous per item at
// Frequency.
type Table struct {
	Rows   []Row                        `json:"rows"`
	Static map[string]map[string]string `json:"static,omitempty"`
}

// Items returns the item ids in table order.
func (t *Table) Items() []string {
	var items []string
	for i, r := range t.Rows {
		if i == 0 || t.Rows[i-1].ItemID != r.ItemID {
			items = append(items, r.ItemID)
		}
	}
	return items
}

// Series returns the rows of item. The slice aliases the table.
func (t *Table) Series(item string) []Row {
	lo := sort.Search(len(t.Rows), func(i int) bool { return t.Rows[i].ItemID >= item })
	hi := lo
	for hi < len(t.Rows) && t.Rows[hi].ItemID == item {
		hi++
	}
	return t.Rows[lo:hi]
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Last returns the final timestamp of item and whether the item exists.
func (t *Table) Last(item string) (time.Time, bool) {
	s := t.Series(item)
	if len(s) == 0 {
		return time.Time{}, false
	}
	return s[len(s)-1].Timestamp, true
}

// IsSorted reports whether rows are ordered by (item, timestamp) with no
// duplicate keys.
func (t *Table) IsSorted() bool {
	for i := 1; i < len(t.Rows); i++ {
		a, b := t.Rows[i-1], t.Rows[i]
		if a.ItemID > b.ItemID || (a.ItemID == b.ItemID && !a.Timestamp.Before(b.Timestamp)) {
			return false
		}
	}
	return true
}

// Observed returns the non-NaN targets of item in order.
func (t *Table) Observed(item string) []float64 {
	s := t.Series(item)
	out := make([]float64, 0, len(s))
	for _, r := range s {
		if !math.IsNaN(r.Target) {
			out = append(out, r.Target)
		}
	}
	return out
}
