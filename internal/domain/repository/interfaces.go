package repository

import (
	"context"

	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/domain/models"
)

// OrderStore persists ingested order events.
type OrderStore interface {
	Append(ctx context.Context, e *models.OrderEvent) error
	Close() error
}

type Metrics interface {
	RecordPrediction(source string, points int)
	RecordError(kind string)
	RecordModelLoad(ok bool, loaded bool)
	RecordLatency(op string, seconds float64)
	RecordOrder(result string)
	RecordCache(hit bool)
}
