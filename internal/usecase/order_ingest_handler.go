package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/domain/models"
	domrepo "github.com/profect-team3/order-platform-msa-infer-pipeline/internal/domain/repository"
	pkgkafka "github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/kafka"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/logger"
)

// Order outcomes reported to metrics.
const (
	OrderStored    = "stored"
	OrderSkipped   = "skipped"
	OrderMalformed = "malformed"
	OrderFailed    = "write_failed"
)

var errMissingField = errors.New("missing required field")

// OrderIngestHandler appends storeId and totalPrice of each completed order
// to the order store. Bad messages and write failures are logged and the
// message still counts as consumed.
type OrderIngestHandler struct {
	topic   string
	store   domrepo.OrderStore
	metrics domrepo.Metrics
	log     *logger.Logger
}

func NewOrderIngestHandler(topic string, store domrepo.OrderStore, metrics domrepo.Metrics, l *logger.Logger) *OrderIngestHandler {
	if l == nil {
		l = logger.NewNop()
	}
	return &OrderIngestHandler{topic: topic, store: store, metrics: metrics, log: l}
}

func (h *OrderIngestHandler) Topic() string { return h.topic }

func (h *OrderIngestHandler) Handle(ctx context.Context, b []byte) error {
	meta, _ := pkgkafka.MessageMetaFrom(ctx)
	fields := []logger.Field{logger.Int("partition", meta.Partition), logger.Int64("offset", meta.Offset)}

	ev, err := decodeOrder(b)
	switch {
	case errors.Is(err, errMissingField):
		h.log.Warn("skipping order message", append(fields, logger.Error(err), logger.String("payload", truncate(b, 512)))...)
		h.record(OrderSkipped)
		return nil
	case err != nil:
		h.log.Warn("could not decode order message", append(fields, logger.Error(err), logger.String("payload", truncate(b, 512)))...)
		h.record(OrderMalformed)
		return nil
	}
	ev.Partition, ev.Offset = meta.Partition, meta.Offset

	if err := h.store.Append(ctx, ev); err != nil {
		h.log.Error("append order failed", append(fields, logger.String("store_id", ev.StoreID), logger.Error(err))...)
		h.record(OrderFailed)
		return nil
	}
	h.log.Debug("order stored", append(fields, logger.String("store_id", ev.StoreID), logger.String("total_price", ev.TotalPrice.String()))...)
	h.record(OrderStored)
	return nil
}

func (h *OrderIngestHandler) record(result string) {
	if h.metrics != nil {
		h.metrics.RecordOrder(result)
	}
}

// decodeOrder extracts storeId and totalPrice. storeId may be a string or
// a number; totalPrice a number or a numeric string. null counts as absent.
func decodeOrder(b []byte) (*models.OrderEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var m map[string]interface{}
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	rawStore, ok := m["storeId"]
	if !ok || rawStore == nil {
		return nil, fmt.Errorf("%w: storeId", errMissingField)
	}
	rawPrice, ok := m["totalPrice"]
	if !ok || rawPrice == nil {
		return nil, fmt.Errorf("%w: totalPrice", errMissingField)
	}

	var store string
	switch v := rawStore.(type) {
	case string:
		store = v
	case json.Number:
		store = v.String()
	default:
		return nil, fmt.Errorf("storeId has unsupported type %T", rawStore)
	}

	var price decimal.Decimal
	var err error
	switch v := rawPrice.(type) {
	case json.Number:
		price, err = decimal.NewFromString(v.String())
	case string:
		price, err = decimal.NewFromString(strings.TrimSpace(v))
	default:
		err = fmt.Errorf("unsupported type %T", rawPrice)
	}
	if err != nil {
		return nil, fmt.Errorf("totalPrice: %w", err)
	}
	return &models.OrderEvent{StoreID: store, TotalPrice: price}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

var _ pkgkafka.MessageHandler = (*OrderIngestHandler)(nil)
