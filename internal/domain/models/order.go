package models

import "github.com/shopspring/decimal"

// OrderEvent is the part of an order-completed message the ingestor keeps.
type OrderEvent struct {
	StoreID    string
	TotalPrice decimal.Decimal
	Partition  int
	Offset     int64
}

// CSVHeader is the first row of the consumed orders file.
var CSVHeader = []string{"storeId", "totalPrice"}

// CSVRecord renders the event as a consumed orders row.
func (e *OrderEvent) CSVRecord() []string {
	return []string{e.StoreID, e.TotalPrice.String()}
}
